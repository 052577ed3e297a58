// Package hidtransport implements transport.Channel over a USB HID device,
// prepending/stripping the 1-byte report ID the spec's HID binding
// requires (spec §6: "Implementations reusing a HID transport prepend a
// 1-byte report ID").
package hidtransport

import (
	"context"
	"sync"

	"github.com/karalabe/hid"

	"github.com/cfu-project/cfu/pkg/cfu"
	"github.com/cfu-project/cfu/pkg/transport"
)

var _ transport.Channel = (*Channel)(nil)

// ReportID is the fixed HID report ID CFU frames are sent under.
const ReportID = 0x00

// MaxFrameSize bounds a single HID report payload, report ID included.
const MaxFrameSize = 64

// Channel wraps an open HID device as a transport.Channel. Reads run on a
// dedicated goroutine (HID reads block on the OS handle) feeding a
// buffered channel, mirroring the teacher's goroutine+channel pattern for
// blocking syscalls (pkg/driver/ioctl.go's ioctlWithTimeout).
type Channel struct {
	dev *hid.Device

	mu      sync.Mutex
	closed  bool
	closeCh chan struct{}

	frames chan []byte
	errs   chan error
}

// Open opens the first HID device matching vendor/product ID and wraps it.
func Open(vendorID, productID uint16) (*Channel, error) {
	infos := hid.Enumerate(vendorID, productID)
	if len(infos) == 0 {
		return nil, cfu.NewError(cfu.CodeNotFound, "no matching hid device found")
	}
	dev, err := infos[0].Open()
	if err != nil {
		return nil, cfu.NewErrorWithCause(cfu.CodeInternal, "opening hid device", err)
	}
	return newChannel(dev), nil
}

func newChannel(dev *hid.Device) *Channel {
	c := &Channel{
		dev:     dev,
		closeCh: make(chan struct{}),
		frames:  make(chan []byte, 4),
		errs:    make(chan error, 4),
	}
	go c.readLoop()
	return c
}

func (c *Channel) readLoop() {
	buf := make([]byte, MaxFrameSize)
	for {
		n, err := c.dev.Read(buf)
		select {
		case <-c.closeCh:
			return
		default:
		}
		if err != nil {
			select {
			case c.errs <- cfu.NewErrorWithCause(cfu.CodeInternal, "hid read", err):
			case <-c.closeCh:
			}
			return
		}
		if n < 1 {
			continue
		}
		frame := make([]byte, n-1)
		copy(frame, buf[1:n]) // strip report ID
		select {
		case c.frames <- frame:
		case <-c.closeCh:
			return
		}
	}
}

// Send prepends the report ID and writes the frame to the device.
func (c *Channel) Send(ctx context.Context, frame []byte) error {
	buf := make([]byte, 1+len(frame))
	buf[0] = ReportID
	copy(buf[1:], frame)

	done := make(chan error, 1)
	go func() {
		_, err := c.dev.Write(buf)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			return cfu.NewErrorWithCause(cfu.CodeInternal, "hid write", err)
		}
		return nil
	case <-c.closeCh:
		return cfu.ErrTransportClosed
	case <-ctx.Done():
		return cfu.NewErrorWithCause(cfu.CodeTimeout, "hid send", ctx.Err())
	}
}

// Recv waits for the next frame assembled by readLoop.
func (c *Channel) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame := <-c.frames:
		return frame, nil
	case err := <-c.errs:
		return nil, err
	case <-c.closeCh:
		return nil, cfu.ErrTransportClosed
	case <-ctx.Done():
		return nil, cfu.NewErrorWithCause(cfu.CodeTimeout, "hid recv", ctx.Err())
	}
}

// Close stops the read loop and closes the underlying HID handle.
func (c *Channel) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.closeCh)
	c.dev.Close()
	return nil
}
