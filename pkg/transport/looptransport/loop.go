// Package looptransport provides an in-process Channel pair connected by
// buffered Go channels, used to exercise the full host/target protocol
// stack without real hardware.
package looptransport

import (
	"context"
	"sync"

	"github.com/cfu-project/cfu/pkg/cfu"
	"github.com/cfu-project/cfu/pkg/transport"
)

var _ transport.Channel = (*Endpoint)(nil)

// Pair creates two connected transport.Channel endpoints: frames sent on
// one are received on the other.
func Pair() (a, b *Endpoint) {
	ab := make(chan []byte, 4)
	ba := make(chan []byte, 4)
	closeOnce := &sync.Once{}
	closed := make(chan struct{})

	a = &Endpoint{out: ab, in: ba, closed: closed, closeOnce: closeOnce}
	b = &Endpoint{out: ba, in: ab, closed: closed, closeOnce: closeOnce}
	return a, b
}

// Endpoint is one side of an in-process loopback transport.Channel.
type Endpoint struct {
	out       chan<- []byte
	in        <-chan []byte
	closed    chan struct{}
	closeOnce *sync.Once
}

func (e *Endpoint) Send(ctx context.Context, frame []byte) error {
	cp := make([]byte, len(frame))
	copy(cp, frame)
	select {
	case e.out <- cp:
		return nil
	case <-e.closed:
		return cfu.ErrTransportClosed
	case <-ctx.Done():
		return cfu.NewErrorWithCause(cfu.CodeTimeout, "loop send", ctx.Err())
	}
}

func (e *Endpoint) Recv(ctx context.Context) ([]byte, error) {
	select {
	case frame, ok := <-e.in:
		if !ok {
			return nil, cfu.ErrTransportClosed
		}
		return frame, nil
	case <-e.closed:
		return nil, cfu.ErrTransportClosed
	case <-ctx.Done():
		return nil, cfu.NewErrorWithCause(cfu.CodeTimeout, "loop recv", ctx.Err())
	}
}

func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() { close(e.closed) })
	return nil
}
