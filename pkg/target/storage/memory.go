// Package storage provides Storage back ends the target engine drives
// during the content pipeline (see pkg/target.Storage).
package storage

import (
	"fmt"
	"sync"

	"github.com/sigurn/crc16"

	"github.com/cfu-project/cfu/pkg/cfu"
)

// crcTable is shared across all Memory instances; crc16.MakeTable builds a
// lookup table once and is safe for concurrent Checksum calls.
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// region is one component's staging buffer.
type region struct {
	buf []byte
}

// Memory is an in-memory Storage implementation, one region per component
// ID, sized on first WriteAt. It is meant for tests and for targets whose
// staging area is backed by plain RAM rather than flash.
type Memory struct {
	mu      sync.Mutex
	regions map[uint8]*region
}

// NewMemory creates an empty in-memory storage back end.
func NewMemory() *Memory {
	return &Memory{regions: make(map[uint8]*region)}
}

// Prepare resets componentID's staging region to empty.
func (m *Memory) Prepare(componentID uint8) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.regions[componentID] = &region{}
	return nil
}

// WriteAt extends the region as needed and writes data at offset.
func (m *Memory) WriteAt(componentID uint8, offset uint32, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[componentID]
	if !ok {
		r = &region{}
		m.regions[componentID] = r
	}
	end := int(offset) + len(data)
	if end > len(r.buf) {
		grown := make([]byte, end)
		copy(grown, r.buf)
		r.buf = grown
	}
	copy(r.buf[offset:end], data)
	return nil
}

// ReadAt reads length bytes at offset from componentID's region.
func (m *Memory) ReadAt(componentID uint8, offset uint32, length int) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[componentID]
	if !ok {
		return nil, cfu.NewError(cfu.CodeNotFound, fmt.Sprintf("component %d has no staged image", componentID))
	}
	end := int(offset) + length
	if end > len(r.buf) {
		return nil, cfu.NewError(cfu.CodeInvalidArgument,
			fmt.Sprintf("read [%d:%d) exceeds staged region of %d bytes", offset, end, len(r.buf)))
	}
	out := make([]byte, length)
	copy(out, r.buf[offset:end])
	return out, nil
}

// ComputeCRC runs a CRC-16/CCITT-FALSE checksum over the whole staged region.
func (m *Memory) ComputeCRC(componentID uint8) (uint16, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.regions[componentID]
	if !ok {
		return 0, cfu.NewError(cfu.CodeNotFound, fmt.Sprintf("component %d has no staged image", componentID))
	}
	return crc16.Checksum(r.buf, crcTable), nil
}
