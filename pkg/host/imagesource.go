package host

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"

	"github.com/cfu-project/cfu/pkg/wire"
)

// Component is one (offer descriptor, firmware payload) pair the image
// feeder yields per update target (spec §4.6 H1 "Image Source").
type Component struct {
	Offer             wire.OfferDescriptor
	Payload           []byte
	FirstBlockAddress uint32 // subtracted from every block's address (spec §4.3.2)
}

// ImageSource yields the ordered sequence of components a host update run
// should attempt.
type ImageSource interface {
	Components() ([]Component, error)
}

// FileImageSource reads components from paired offer/payload files: for
// each entry, a 16-byte offer descriptor file and a raw firmware image
// file. This mirrors the original implementation's file-based image
// feeder (offer.bin + payload.bin per component), recovered here because
// the distilled spec treats image sourcing as an external interface, not
// the concrete CLI tool's actual file layout.
type FileImageSource struct {
	FS      fs.FS
	Entries []FileEntry
}

// FileEntry names one component's offer and payload files within FS.
type FileEntry struct {
	OfferPath             string
	PayloadPath           string
	FirstBlockAddress     uint32
}

// Components reads every entry's offer descriptor and payload from FS.
func (s *FileImageSource) Components() ([]Component, error) {
	out := make([]Component, 0, len(s.Entries))
	for _, entry := range s.Entries {
		offerBytes, err := fs.ReadFile(s.FS, entry.OfferPath)
		if err != nil {
			return nil, fmt.Errorf("reading offer file %s: %w", entry.OfferPath, err)
		}
		offer, err := wire.ParseOfferCommand(offerBytes)
		if err != nil {
			return nil, fmt.Errorf("parsing offer file %s: %w", entry.OfferPath, err)
		}
		payload, err := fs.ReadFile(s.FS, entry.PayloadPath)
		if err != nil {
			return nil, fmt.Errorf("reading payload file %s: %w", entry.PayloadPath, err)
		}
		out = append(out, Component{
			Offer:             offer,
			Payload:           payload,
			FirstBlockAddress: entry.FirstBlockAddress,
		})
	}
	return out, nil
}

// blockReader splits a payload into fixed-maximum-size content blocks,
// assigning sequence numbers and FIRST/LAST flags (spec §4.6 "compute_flags").
type blockReader struct {
	r       *bufio.Reader
	address uint32
	seq     uint16
	done    bool
}

func newBlockReader(payload []byte, baseAddress uint32) *blockReader {
	return &blockReader{r: bufio.NewReader(newByteReader(payload)), address: baseAddress}
}

// next returns the next content command and whether it is the last one, or
// io.EOF once the payload is exhausted. next sets LAST_BLOCK itself by
// peeking one byte ahead after filling the block.
func (b *blockReader) next() (wire.ContentCommand, bool, error) {
	if b.done {
		return wire.ContentCommand{}, false, io.EOF
	}
	buf := make([]byte, wire.MaxContentDataSize)
	n, err := io.ReadFull(b.r, buf)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return wire.ContentCommand{}, false, err
	}
	buf = buf[:n]

	// Peek to see whether more data remains, to decide LAST_BLOCK now
	// rather than emitting a trailing zero-length block.
	_, peekErr := b.r.Peek(1)
	isLast := peekErr != nil

	var flags uint8
	if b.seq == 0 {
		flags |= wire.FlagFirstBlock
	}
	if isLast {
		flags |= wire.FlagLastBlock
		b.done = true
	}

	cmd := wire.ContentCommand{
		Flags:          flags,
		SequenceNumber: b.seq,
		Address:        b.address,
		Data:           buf,
	}
	b.seq++
	b.address += uint32(n)
	return cmd, isLast, nil
}

func newByteReader(b []byte) io.Reader { return &sliceReader{data: b} }

type sliceReader struct {
	data []byte
	pos  int
}

func (s *sliceReader) Read(p []byte) (int, error) {
	if s.pos >= len(s.data) {
		return 0, io.EOF
	}
	n := copy(p, s.data[s.pos:])
	s.pos += n
	return n, nil
}
