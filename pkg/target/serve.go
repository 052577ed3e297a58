package target

import (
	"context"
	"errors"

	"github.com/cfu-project/cfu/pkg/cfu"
	"github.com/cfu-project/cfu/pkg/transport"
	"github.com/cfu-project/cfu/pkg/wire"
)

// Serve reads frames from ch in a loop, dispatches each through e, and
// writes back the response with the same leading opcode byte echoed (the
// host side splits requests and responses on that byte; see
// pkg/host/correlator.go). Serve returns when ctx is done or the channel
// is closed.
func Serve(ctx context.Context, ch transport.Channel, e *Engine) error {
	for {
		raw, err := ch.Recv(ctx)
		if err != nil {
			if errors.Is(err, cfu.ErrTransportClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
		if len(raw) == 0 {
			continue
		}
		opcode := wire.Opcode(raw[0])
		resp := e.HandleFrame(opcode, raw[1:])

		out := make([]byte, 1+len(resp))
		out[0] = uint8(opcode)
		copy(out[1:], resp)
		if err := ch.Send(ctx, out); err != nil {
			if errors.Is(err, cfu.ErrTransportClosed) || ctx.Err() != nil {
				return nil
			}
			return err
		}
	}
}
