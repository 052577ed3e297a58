// Package wire implements the CFU wire format: the fixed-layout frames
// exchanged between a host and a target, and the status/reason code tables
// that both sides interpret identically.
package wire

import "fmt"

// Version is the {major, minor, variant} triple carried in an offer and in
// a GetVersion response entry. Ordering is lexicographic on (Major, Minor);
// Variant carries signing/type bitfields that are not part of ordering.
type Version struct {
	Major   uint8
	Minor   uint16
	Variant uint8
}

// NewerThan reports whether v is a strictly newer version than other,
// comparing (Major, Minor) only. Variant never participates in ordering.
func (v Version) NewerThan(other Version) bool {
	if v.Major != other.Major {
		return v.Major > other.Major
	}
	return v.Minor > other.Minor
}

// Equal reports whether v and other carry the same (Major, Minor, Variant).
func (v Version) Equal(other Version) bool {
	return v == other
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Variant)
}

// packVersion writes a Version into a 4-byte little-endian field:
// [Major:1][Minor:2][Variant:1].
func packVersion(buf []byte, v Version) {
	buf[0] = v.Major
	buf[1] = byte(v.Minor)
	buf[2] = byte(v.Minor >> 8)
	buf[3] = v.Variant
}

func unpackVersion(buf []byte) Version {
	return Version{
		Major:   buf[0],
		Minor:   uint16(buf[1]) | uint16(buf[2])<<8,
		Variant: buf[3],
	}
}
