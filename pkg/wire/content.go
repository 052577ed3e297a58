package wire

import (
	"encoding/binary"
	"fmt"
)

// MaxContentDataSize is the fixed maximum payload carried by a single
// content block (spec §3: "typically 52").
const MaxContentDataSize = 52

// ContentHeaderSize is the size of a content command before its data
// payload: flags(1) + length(1) + sequence_number(2) + address(4).
const ContentHeaderSize = 8

// ContentCommand is one block of a firmware image (spec §3, §6).
type ContentCommand struct {
	Flags          uint8
	SequenceNumber uint16
	Address        uint32
	Data           []byte
}

// IsFirst reports whether the FIRST_BLOCK flag is set.
func (c ContentCommand) IsFirst() bool { return c.Flags&FlagFirstBlock != 0 }

// IsLast reports whether the LAST_BLOCK flag is set.
func (c ContentCommand) IsLast() bool { return c.Flags&FlagLastBlock != 0 }

// Pack serializes the content command as header+data, little-endian.
func (c ContentCommand) Pack() ([]byte, error) {
	if len(c.Data) > MaxContentDataSize {
		return nil, fmt.Errorf("content command: data length %d exceeds max %d", len(c.Data), MaxContentDataSize)
	}
	buf := make([]byte, ContentHeaderSize+len(c.Data))
	buf[0] = c.Flags
	buf[1] = uint8(len(c.Data))
	binary.LittleEndian.PutUint16(buf[2:4], c.SequenceNumber)
	binary.LittleEndian.PutUint32(buf[4:8], c.Address)
	copy(buf[8:], c.Data)
	return buf, nil
}

// ParseContentCommand decodes a content command frame. The declared length
// byte governs how much of data is consumed; a length of 0 is valid at the
// wire level (the pipeline maps it to ContentInvalid per spec §8).
func ParseContentCommand(data []byte) (ContentCommand, error) {
	if len(data) < ContentHeaderSize {
		return ContentCommand{}, fmt.Errorf("content command: need at least %d bytes, got %d", ContentHeaderSize, len(data))
	}
	length := data[1]
	if len(data) < ContentHeaderSize+int(length) {
		return ContentCommand{}, fmt.Errorf("content command: declared length %d exceeds frame size %d", length, len(data)-ContentHeaderSize)
	}
	payload := make([]byte, length)
	copy(payload, data[ContentHeaderSize:ContentHeaderSize+int(length)])
	return ContentCommand{
		Flags:          data[0],
		SequenceNumber: binary.LittleEndian.Uint16(data[2:4]),
		Address:        binary.LittleEndian.Uint32(data[4:8]),
		Data:           payload,
	}, nil
}

// ContentResponseSize is the fixed size of a content response frame (spec §6).
const ContentResponseSize = 16

// ContentResponse is the target->host reply to a content command (spec §3, §6).
type ContentResponse struct {
	SequenceNumber uint16
	Status         ContentStatus
}

// Pack serializes the response using the §6 byte layout:
// [sequence_number:2][reserved:2][status:1][reserved:3][reserved:8].
func (r ContentResponse) Pack() [ContentResponseSize]byte {
	var buf [ContentResponseSize]byte
	binary.LittleEndian.PutUint16(buf[0:2], r.SequenceNumber)
	buf[4] = uint8(r.Status)
	return buf
}

// ParseContentResponse decodes a 16-byte content response frame.
func ParseContentResponse(data []byte) (ContentResponse, error) {
	if len(data) < ContentResponseSize {
		return ContentResponse{}, fmt.Errorf("content response: need %d bytes, got %d", ContentResponseSize, len(data))
	}
	return ContentResponse{
		SequenceNumber: binary.LittleEndian.Uint16(data[0:2]),
		Status:         ContentStatus(data[4]),
	}, nil
}
