package host

import (
	"context"

	"github.com/cfu-project/cfu/pkg/cfu"
	"github.com/cfu-project/cfu/pkg/transport"
	"github.com/cfu-project/cfu/pkg/wire"
)

// Every frame crossing a transport.Channel carries a leading opcode byte
// (the "report/opcode tag" of spec §1's framed message channel
// abstraction); pkg/target.Engine.HandleFrame consumes opcode and payload
// already split, so the host and target dispatch code are the only two
// places that know about this one-byte envelope.

func frameOf(opcode wire.Opcode, payload []byte) []byte {
	return append([]byte{uint8(opcode)}, payload...)
}

// correlator enforces the single-outstanding-request-per-channel contract
// (spec §4.7 H4): it sends one frame, then reads frames until one matches
// the expected token/sequence number, logging and discarding mismatches.
type correlator struct {
	ch     transport.Channel
	logger cfu.Logger
}

func newCorrelator(ch transport.Channel, logger cfu.Logger) *correlator {
	return &correlator{ch: ch, logger: logger}
}

// sendOffer writes an offer command and waits for the response whose
// token matches.
func (c *correlator) sendOffer(ctx context.Context, offer wire.OfferDescriptor) (wire.OfferResponse, error) {
	packed := offer.Pack()
	if err := c.ch.Send(ctx, frameOf(wire.OpcodeOffer, packed[:])); err != nil {
		return wire.OfferResponse{}, err
	}
	for {
		raw, err := c.ch.Recv(ctx)
		if err != nil {
			return wire.OfferResponse{}, err
		}
		resp, err := wire.ParseOfferResponse(stripOpcode(raw))
		if err != nil {
			c.logger.Printf("[cfu-host] discarding malformed offer response: %v", err)
			continue
		}
		if resp.Token != offer.Token {
			c.logger.Printf("[cfu-host] discarding offer response with mismatched token %d (want %d)", resp.Token, offer.Token)
			continue
		}
		return resp, nil
	}
}

// sendContent writes a content command and waits for the response whose
// sequence number matches.
func (c *correlator) sendContent(ctx context.Context, cmd wire.ContentCommand) (wire.ContentResponse, error) {
	packed, err := cmd.Pack()
	if err != nil {
		return wire.ContentResponse{}, err
	}
	if err := c.ch.Send(ctx, frameOf(wire.OpcodeContent, packed)); err != nil {
		return wire.ContentResponse{}, err
	}
	for {
		raw, err := c.ch.Recv(ctx)
		if err != nil {
			return wire.ContentResponse{}, err
		}
		resp, err := wire.ParseContentResponse(stripOpcode(raw))
		if err != nil {
			c.logger.Printf("[cfu-host] discarding malformed content response: %v", err)
			continue
		}
		if resp.SequenceNumber != cmd.SequenceNumber {
			c.logger.Printf("[cfu-host] discarding content response with mismatched sequence %d (want %d)",
				resp.SequenceNumber, cmd.SequenceNumber)
			continue
		}
		return resp, nil
	}
}

// sendGetVersion writes a GetVersion request and waits for the response.
// GetVersion carries no token/sequence to correlate on; the channel's
// half-duplex, single-outstanding-request contract is the only guarantee.
func (c *correlator) sendGetVersion(ctx context.Context) (wire.GetVersionResponse, error) {
	if err := c.ch.Send(ctx, frameOf(wire.OpcodeGetVersion, nil)); err != nil {
		return wire.GetVersionResponse{}, err
	}
	raw, err := c.ch.Recv(ctx)
	if err != nil {
		return wire.GetVersionResponse{}, err
	}
	return wire.ParseGetVersionResponse(stripOpcode(raw))
}

func stripOpcode(frame []byte) []byte {
	if len(frame) == 0 {
		return frame
	}
	return frame[1:]
}
