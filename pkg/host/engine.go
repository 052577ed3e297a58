package host

import (
	"context"
	"fmt"
	"io"
	"log"
	"time"

	"github.com/cfu-project/cfu/pkg/cfu"
	"github.com/cfu-project/cfu/pkg/transport"
	"github.com/cfu-project/cfu/pkg/wire"
)

// Outcome is the terminal result of driving one component's update.
type Outcome int

const (
	OutcomeCommitted Outcome = iota
	OutcomeSkipped
	OutcomeRejected
	OutcomeAborted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeCommitted:
		return "committed"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeRejected:
		return "rejected"
	case OutcomeAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// ComponentResult records what happened when the engine drove one
// Component through the offer/content loop.
type ComponentResult struct {
	Offer        wire.OfferDescriptor
	Outcome      Outcome
	RejectReason wire.RejectReason
	Err          error
}

// Engine drives the host side of the protocol over a single transport.Channel
// (spec §4.6 H2 "Host Protocol Engine").
type Engine struct {
	ch     transport.Channel
	cfg    Config
	logger cfu.Logger
	corr   *correlator
}

// NewEngine binds a host engine to a channel and configuration.
func NewEngine(ch transport.Channel, cfg Config, logger cfu.Logger) *Engine {
	if logger == nil {
		logger = log.Default()
	}
	return &Engine{ch: ch, cfg: cfg, logger: logger, corr: newCorrelator(ch, logger)}
}

// EnumerateComponents queries the target's GetVersion response before any
// offer is sent (spec §4.6 H3 "Version/Enumeration").
func (e *Engine) EnumerateComponents(ctx context.Context) (wire.GetVersionResponse, error) {
	ctx, cancel := context.WithTimeout(ctx, e.cfg.OfferTimeout)
	defer cancel()
	return e.corr.sendGetVersion(ctx)
}

// RunAll drives every Component from source in order. If abortOnFailure is
// set it stops at the first component whose outcome is neither Committed
// nor Skipped (a Rejected component stops the run as well as an Aborted
// one); otherwise it records the failure and continues to the next component
// (spec §2: "feeds multi-component firmware bundles in the correct
// order").
func (e *Engine) RunAll(ctx context.Context, components []Component, abortOnFailure bool) []ComponentResult {
	results := make([]ComponentResult, 0, len(components))
	for _, comp := range components {
		result := e.RunOne(ctx, comp)
		results = append(results, result)
		if abortOnFailure && result.Outcome != OutcomeCommitted && result.Outcome != OutcomeSkipped {
			break
		}
	}
	return results
}

// RunOne drives a single component through send_offer and, if accepted,
// the full content loop (spec §4.6's pseudocode).
func (e *Engine) RunOne(ctx context.Context, comp Component) ComponentResult {
	status, reason, err := e.sendOfferWithRetry(ctx, comp.Offer)
	if err != nil {
		return ComponentResult{Offer: comp.Offer, Outcome: OutcomeAborted, Err: err}
	}

	switch status {
	case wire.OfferSkip:
		return ComponentResult{Offer: comp.Offer, Outcome: OutcomeSkipped}
	case wire.OfferReject:
		if e.cfg.SupportProtocolSkipOptimization && reason == wire.ReasonSwapPending {
			if skip, skipErr := e.tryResumeSkip(ctx, comp); skipErr == nil && skip {
				return ComponentResult{Offer: comp.Offer, Outcome: OutcomeSkipped, RejectReason: reason}
			}
		}
		return ComponentResult{Offer: comp.Offer, Outcome: OutcomeRejected, RejectReason: reason}
	case wire.OfferCommandReady:
		return ComponentResult{Offer: comp.Offer, Outcome: OutcomeCommitted}
	case wire.OfferBusy:
		return ComponentResult{Offer: comp.Offer, Outcome: OutcomeAborted, RejectReason: reason,
			Err: cfu.NewError(cfu.CodeBusy, fmt.Sprintf("component %d still busy after %d attempts", comp.Offer.ComponentID, e.cfg.BusyRetry.MaxAttempts))}
	case wire.OfferAccept:
		// fall through to content loop
	default:
		return ComponentResult{Offer: comp.Offer, Outcome: OutcomeAborted,
			Err: cfu.NewError(cfu.CodeInternal, "unexpected offer status "+status.String())}
	}

	if err := e.streamContent(ctx, comp); err != nil {
		return ComponentResult{Offer: comp.Offer, Outcome: OutcomeAborted, Err: err}
	}
	return ComponentResult{Offer: comp.Offer, Outcome: OutcomeCommitted}
}

// sendOfferWithRetry implements "send_offer on Busy retries with bounded
// backoff" (spec §4.6).
func (e *Engine) sendOfferWithRetry(ctx context.Context, offer wire.OfferDescriptor) (wire.OfferStatus, wire.RejectReason, error) {
	attempts := e.cfg.BusyRetry.MaxAttempts
	if attempts <= 0 {
		attempts = 1
	}
	for attempt := 0; attempt < attempts; attempt++ {
		offerCtx, cancel := context.WithTimeout(ctx, e.cfg.OfferTimeout)
		resp, err := e.corr.sendOffer(offerCtx, offer)
		cancel()
		if err != nil {
			return 0, 0, err
		}
		if resp.Status != wire.OfferBusy {
			return resp.Status, resp.RejectReason, nil
		}
		e.logger.Printf("[cfu-host] offer for component %d busy, retry %d/%d", offer.ComponentID, attempt+1, attempts)
		select {
		case <-time.After(e.cfg.BusyRetry.Backoff):
		case <-ctx.Done():
			return 0, 0, ctx.Err()
		}
	}
	return wire.OfferBusy, wire.ReasonBusy, nil
}

// streamContent runs the per-block content loop for an accepted offer
// (spec §4.6's FOR seq loop, §4.3.2 relative addressing).
func (e *Engine) streamContent(ctx context.Context, comp Component) error {
	reader := newBlockReader(comp.Payload, comp.FirstBlockAddress)
	for {
		cmd, isLast, err := reader.next()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		// Relative addressing: the block's address already started at
		// FirstBlockAddress; subtract it back out so the wire carries an
		// offset relative to the image start (spec §4.3.2).
		cmd.Address -= comp.FirstBlockAddress

		contentCtx, cancel := context.WithTimeout(ctx, e.cfg.ContentTimeout)
		resp, err := e.corr.sendContent(contentCtx, cmd)
		cancel()
		if err != nil {
			return err
		}
		if !resp.Status.IsSuccess() {
			return cfu.NewError(cfu.CodeInternal,
				fmt.Sprintf("content block %s for component %d", resp.Status, comp.Offer.ComponentID))
		}
		if isLast {
			return nil
		}
	}
}

// tryResumeSkip re-queries versions and applies skip-optimization: if the
// target already reports the offered version for this component, the
// update is treated as already applied (spec §4.6 "skip-optimization").
func (e *Engine) tryResumeSkip(ctx context.Context, comp Component) (bool, error) {
	versions, err := e.EnumerateComponents(ctx)
	if err != nil {
		return false, err
	}
	for _, entry := range versions.Entries {
		if entry.ProductInfo.ProductID == comp.Offer.ProductInfo.ProductID && entry.Version.Equal(comp.Offer.Version) {
			return true, nil
		}
	}
	return false, nil
}

// ResumeOnConnect re-queries target versions after a reconnect and
// decides, per component, whether to skip or restart the offer (spec
// §4.6 "On transport reconnect mid-payload, if resume-on-connect is
// enabled..."). The protocol defines no mid-stream resume; a disconnect
// mid-payload is always treated as an offer failure for that component.
func (e *Engine) ResumeOnConnect(ctx context.Context, components []Component) ([]Component, error) {
	if !e.cfg.SupportResumeOnConnect {
		return components, nil
	}
	versions, err := e.EnumerateComponents(ctx)
	if err != nil {
		return nil, err
	}
	already := make(map[uint16]wire.Version)
	for _, entry := range versions.Entries {
		already[entry.ProductInfo.ProductID] = entry.Version
	}

	remaining := make([]Component, 0, len(components))
	for _, comp := range components {
		if current, ok := already[comp.Offer.ProductInfo.ProductID]; ok && current.Equal(comp.Offer.Version) {
			e.logger.Printf("[cfu-host] resume-on-connect: component %d already at offered version, skipping", comp.Offer.ComponentID)
			continue
		}
		remaining = append(remaining, comp)
	}
	return remaining, nil
}
