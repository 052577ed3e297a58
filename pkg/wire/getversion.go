package wire

import (
	"encoding/binary"
	"fmt"
)

// ProtocolRevision is the stable CFU protocol revision value (spec §6).
const ProtocolRevision = 2

// GetVersionHeaderSize is the size of the GetVersion response header.
const GetVersionHeaderSize = 4

// ComponentVersionEntrySize is the size of one GetVersion blob entry.
const ComponentVersionEntrySize = 8

// ComponentVersionEntry is one (version, product_info) tuple in a
// GetVersion response, emitted once per registered component in
// registration order (spec §3, §4.4).
type ComponentVersionEntry struct {
	Version     Version
	ProductInfo ProductInfo
}

// GetVersionResponse is the target's reply enumerating every registered
// component (spec §6).
type GetVersionResponse struct {
	FwUpdateRevision uint8 // 4 bits
	ExtensionFlag    bool
	Entries          []ComponentVersionEntry
}

// Pack serializes the response as header + one 8-byte entry per component.
func (g GetVersionResponse) Pack() []byte {
	buf := make([]byte, GetVersionHeaderSize+ComponentVersionEntrySize*len(g.Entries))
	buf[0] = uint8(len(g.Entries))
	// buf[1:3] reserved
	packed := g.FwUpdateRevision & 0x0F
	if g.ExtensionFlag {
		packed |= 0x80
	}
	buf[3] = packed

	off := GetVersionHeaderSize
	for _, e := range g.Entries {
		var versionWord [4]byte
		packVersion(versionWord[:], e.Version)
		copy(buf[off:off+4], versionWord[:])
		binary.LittleEndian.PutUint32(buf[off+4:off+8], e.ProductInfo.pack())
		off += ComponentVersionEntrySize
	}
	return buf
}

// ParseGetVersionResponse decodes a GetVersion response frame.
func ParseGetVersionResponse(data []byte) (GetVersionResponse, error) {
	if len(data) < GetVersionHeaderSize {
		return GetVersionResponse{}, fmt.Errorf("get-version response: need at least %d bytes, got %d", GetVersionHeaderSize, len(data))
	}
	count := int(data[0])
	want := GetVersionHeaderSize + ComponentVersionEntrySize*count
	if len(data) < want {
		return GetVersionResponse{}, fmt.Errorf("get-version response: component_count=%d needs %d bytes, got %d", count, want, len(data))
	}

	resp := GetVersionResponse{
		FwUpdateRevision: data[3] & 0x0F,
		ExtensionFlag:    data[3]&0x80 != 0,
		Entries:          make([]ComponentVersionEntry, count),
	}
	off := GetVersionHeaderSize
	for i := 0; i < count; i++ {
		resp.Entries[i] = ComponentVersionEntry{
			Version:     unpackVersion(data[off : off+4]),
			ProductInfo: unpackProductInfo(binary.LittleEndian.Uint32(data[off+4 : off+8])),
		}
		off += ComponentVersionEntrySize
	}
	return resp, nil
}
