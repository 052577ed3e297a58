package wire

import (
	"encoding/binary"
	"fmt"
)

// OfferCommandSize is the fixed size of an offer command frame (spec §3, §6).
const OfferCommandSize = 16

// ProductInfo packs the firmware's protocol revision, bank, milestone and
// product ID (spec §3).
type ProductInfo struct {
	ProtocolRevision uint8 // 4 bits
	Bank             uint8 // 2 bits
	Milestone        uint8 // 3 bits
	ProductID        uint16
}

func (p ProductInfo) pack() uint32 {
	return uint32(p.ProtocolRevision&0x0F) |
		uint32(p.Bank&0x03)<<4 |
		uint32(p.Milestone&0x07)<<6 |
		uint32(p.ProductID)<<9
}

func unpackProductInfo(raw uint32) ProductInfo {
	return ProductInfo{
		ProtocolRevision: uint8(raw & 0x0F),
		Bank:             uint8((raw >> 4) & 0x03),
		Milestone:        uint8((raw >> 6) & 0x07),
		ProductID:        uint16((raw >> 9) & 0xFFFF),
	}
}

// OfferDescriptor is the host->target offer (spec §3). ComponentID may be
// one of the reserved special values (ComponentSpecial, ComponentInfoOnly);
// callers distinguish those before treating Version/HardwareVariantMask/
// ProductInfo as meaningful.
type OfferDescriptor struct {
	Token                 uint8
	ComponentID           uint8
	Segment               uint8
	ForceImmediateReset   bool
	ForceIgnoreVersion    bool
	Version               Version
	HardwareVariantMask   uint32
	ProductInfo           ProductInfo
}

const (
	offerFlagForceReset       uint8 = 0x01
	offerFlagForceIgnoreVersn uint8 = 0x02
)

// Pack serializes the offer descriptor into a 16-byte little-endian frame.
func (o OfferDescriptor) Pack() [OfferCommandSize]byte {
	var buf [OfferCommandSize]byte
	buf[0] = o.ComponentID
	buf[1] = o.Token
	buf[2] = o.Segment

	var flags uint8
	if o.ForceImmediateReset {
		flags |= offerFlagForceReset
	}
	if o.ForceIgnoreVersion {
		flags |= offerFlagForceIgnoreVersn
	}
	buf[3] = flags

	packVersion(buf[4:8], o.Version)
	binary.LittleEndian.PutUint32(buf[8:12], o.HardwareVariantMask)
	binary.LittleEndian.PutUint32(buf[12:16], o.ProductInfo.pack())
	return buf
}

// ParseOfferCommand decodes a 16-byte offer frame.
func ParseOfferCommand(data []byte) (OfferDescriptor, error) {
	if len(data) < OfferCommandSize {
		return OfferDescriptor{}, fmt.Errorf("offer command: need %d bytes, got %d", OfferCommandSize, len(data))
	}
	flags := data[3]
	return OfferDescriptor{
		ComponentID:         data[0],
		Token:               data[1],
		Segment:             data[2],
		ForceImmediateReset: flags&offerFlagForceReset != 0,
		ForceIgnoreVersion:  flags&offerFlagForceIgnoreVersn != 0,
		Version:             unpackVersion(data[4:8]),
		HardwareVariantMask: binary.LittleEndian.Uint32(data[8:12]),
		ProductInfo:         unpackProductInfo(binary.LittleEndian.Uint32(data[12:16])),
	}, nil
}

// IsSpecial reports whether the descriptor targets the special offer opcode
// (component_id == 0xFE). Segment carries the sub-opcode in that case.
func (o OfferDescriptor) IsSpecial() bool {
	return o.ComponentID == ComponentSpecial
}

// IsInfoOnly reports whether the descriptor is an info-only offer
// (component_id == 0xFF).
func (o OfferDescriptor) IsInfoOnly() bool {
	return o.ComponentID == ComponentInfoOnly
}

// OfferResponseSize is the fixed size of an offer response frame (spec §6).
const OfferResponseSize = 16

// OfferResponse is the target->host reply to an offer (spec §3, §6).
type OfferResponse struct {
	Token        uint8
	Status       OfferStatus
	RejectReason RejectReason
}

// Pack serializes the response using the exact §6 byte layout:
// [reserved:3][token:1][reserved:4][reject_reason:1][reserved:3][status:1][reserved:3].
func (r OfferResponse) Pack() [OfferResponseSize]byte {
	var buf [OfferResponseSize]byte
	buf[3] = r.Token
	buf[8] = uint8(r.RejectReason)
	buf[12] = uint8(r.Status)
	return buf
}

// ParseOfferResponse decodes a 16-byte offer response frame.
func ParseOfferResponse(data []byte) (OfferResponse, error) {
	if len(data) < OfferResponseSize {
		return OfferResponse{}, fmt.Errorf("offer response: need %d bytes, got %d", OfferResponseSize, len(data))
	}
	return OfferResponse{
		Token:        data[3],
		RejectReason: RejectReason(data[8]),
		Status:       OfferStatus(data[12]),
	}, nil
}
