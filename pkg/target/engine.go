// Package target implements the device-side CFU protocol engine: the
// message dispatcher, offer acceptance state machine, content pipeline,
// component registry and failsafe timer of spec §4 (T1-T5).
package target

import (
	"encoding/binary"
	"log"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cfu-project/cfu/pkg/cfu"
	"github.com/cfu-project/cfu/pkg/wire"
)

// DefaultCompletionTimeout bounds how long the content pipeline waits for a
// handler's NotifySuccess to signal completion via readComplete before
// giving up and moving on anyway (spec §9: "the pipeline awaits a
// completion signal from the handler, with a well-defined timeout").
const DefaultCompletionTimeout = 5 * time.Second

type currentOfferState struct {
	componentID uint8
	forceReset  bool
}

// Engine is the target-side protocol engine (spec §3 "Target engine
// state"). It owns the registry, the storage and authentication back
// ends, and the small set of mutable flags the invariants in spec §3
// govern.
//
// Two locks are used, deliberately not one: dispatchMu serializes
// HandleFrame calls (spec §4.1: "Not reentrant with respect to its own
// engine state; callers serialize... the implementation wraps the entry
// point in a critical section"). stateMu guards only the handful of
// fields the invariants name (update_in_progress, bank_swap_pending,
// current_offer) and is also taken by the failsafe timer's fire callback,
// which can run while a HandleFrame call is still in flight. The content
// pipeline's completion signal takes neither lock: it only closes a
// channel that HandleFrame waits on, so a handler may call it from inside
// HandleFrame.
type Engine struct {
	dispatchMu sync.Mutex

	stateMu          sync.Mutex
	currentOffer     *currentOfferState
	updateInProgress bool
	bankSwapPending  bool

	registry *Registry
	storage  Storage
	auth     Authenticator
	logger   cfu.Logger

	clock             clock.Clock
	failsafeDuration  time.Duration
	completionTimeout time.Duration
	failsafe          *failsafeTimer
}

// Option configures an Engine at construction time.
type Option func(*Engine)

// WithClock overrides the clock used for the failsafe timer and the
// notify_success completion timeout, letting tests use a mock clock
// instead of real wall time (spec §8 "Failsafe fires").
func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithFailsafeDuration overrides DefaultFailsafeDuration.
func WithFailsafeDuration(d time.Duration) Option {
	return func(e *Engine) { e.failsafeDuration = d }
}

// WithCompletionTimeout overrides DefaultCompletionTimeout.
func WithCompletionTimeout(d time.Duration) Option {
	return func(e *Engine) { e.completionTimeout = d }
}

// WithLogger overrides the default log.Default() sink.
func WithLogger(l cfu.Logger) Option {
	return func(e *Engine) { e.logger = l }
}

// NewEngine creates a target engine bound to registry, storage and auth.
func NewEngine(registry *Registry, storage Storage, auth Authenticator, opts ...Option) *Engine {
	e := &Engine{
		registry:          registry,
		storage:           storage,
		auth:              auth,
		logger:            log.Default(),
		clock:             clock.New(),
		failsafeDuration:  DefaultFailsafeDuration,
		completionTimeout: DefaultCompletionTimeout,
	}
	for _, opt := range opts {
		opt(e)
	}
	e.failsafe = newFailsafeTimer(e.clock, e.failsafeDuration, e.onFailsafeFire)
	return e
}

// UpdateInProgress reports the current value of the update_in_progress flag.
func (e *Engine) UpdateInProgress() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.updateInProgress
}

// BankSwapPending reports the current value of the bank_swap_pending flag.
func (e *Engine) BankSwapPending() bool {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	return e.bankSwapPending
}

// ClearBankSwapPending clears bank_swap_pending, modeling "clears only on
// reset or transport close" (spec §3). Callers invoke this from their own
// reset handling; the engine does not decide when a reset happens.
func (e *Engine) ClearBankSwapPending() {
	e.stateMu.Lock()
	defer e.stateMu.Unlock()
	e.bankSwapPending = false
}

// HandleFrame is the single entry point of the target message dispatcher
// (spec §4.1, T1). Every inbound frame produces exactly one response
// frame; there is no batching.
func (e *Engine) HandleFrame(opcode wire.Opcode, payload []byte) []byte {
	e.dispatchMu.Lock()
	defer e.dispatchMu.Unlock()

	switch opcode {
	case wire.OpcodeGetVersion:
		return e.handleGetVersion()
	case wire.OpcodeOffer:
		return e.handleOffer(payload)
	case wire.OpcodeContent:
		return e.handleContent(payload)
	default:
		e.logger.Printf("[cfu] unsupported opcode %d", opcode)
		return []byte{uint8(wire.DispatchCmdNotSupported)}
	}
}

func (e *Engine) handleGetVersion() []byte {
	entries := make([]wire.ComponentVersionEntry, 0, e.registry.Len())
	for _, reg := range e.registry.Iter() {
		entries = append(entries, wire.ComponentVersionEntry{
			Version:     reg.Handler.Version(),
			ProductInfo: reg.Handler.ProductInfo(),
		})
	}
	resp := wire.GetVersionResponse{
		FwUpdateRevision: wire.ProtocolRevision,
		Entries:          entries,
	}
	return resp.Pack()
}

func (e *Engine) handleOffer(payload []byte) []byte {
	offer, err := wire.ParseOfferCommand(payload)
	if err != nil {
		e.logger.Printf("[cfu] malformed offer command: %v", err)
		resp := wire.OfferResponse{Status: wire.OfferCmdNotSupported}
		packed := resp.Pack()
		return packed[:]
	}

	decision := e.decideOffer(offer)
	resp := wire.OfferResponse{
		Token:        offer.Token,
		Status:       decision.Status,
		RejectReason: decision.Reason,
	}
	packed := resp.Pack()
	return packed[:]
}

// decideOffer implements the offer acceptance state machine (spec §4.2).
func (e *Engine) decideOffer(offer wire.OfferDescriptor) OfferDecision {
	e.stateMu.Lock()
	inProgress := e.updateInProgress
	swapPending := e.bankSwapPending
	e.stateMu.Unlock()

	// Engine-level state gates any offer before the component-level
	// algorithm runs; this matches §4.2's decision order: updateInProgress,
	// then the special GetStatus offer (which must answer even while a bank
	// swap is pending), then bankSwapPending, then the registry algorithm.
	if inProgress {
		return OfferDecision{Status: wire.OfferBusy, Reason: wire.ReasonBusy}
	}

	if offer.IsSpecial() {
		if wire.SpecialOpcode(offer.Segment) == wire.SpecialGetStatus {
			return OfferDecision{Status: wire.OfferCommandReady}
		}
		// No other special sub-opcode is defined by the spec; reject as an
		// unrecognized component rather than silently accepting it.
		return OfferDecision{Status: wire.OfferReject, Reason: wire.ReasonInvalidMcu}
	}

	if swapPending {
		return OfferDecision{Status: wire.OfferReject, Reason: wire.ReasonSwapPending}
	}

	// Idle-state decision algorithm (spec §4.2 steps 1-7).
	if offer.IsInfoOnly() {
		// Spec §3 defines 0xFF only as "carries an info code"; there is no
		// state change associated with it, so it is acknowledged as Skip.
		return OfferDecision{Status: wire.OfferSkip}
	}

	reg, ok := e.registry.Find(offer.ComponentID)
	if !ok {
		return OfferDecision{Status: wire.OfferReject, Reason: wire.ReasonInvalidMcu}
	}

	decision := reg.Handler.ProcessOffer(offer)

	// force_ignore_version rewrites only a Reject/OldFw outcome (spec §4.2
	// step 5); every other reject reason stands.
	if offer.ForceIgnoreVersion && decision.Status == wire.OfferReject && decision.Reason == wire.ReasonOldFw {
		decision = OfferDecision{Status: wire.OfferAccept}
	}

	if decision.Status == wire.OfferAccept {
		e.stateMu.Lock()
		e.currentOffer = &currentOfferState{
			componentID: offer.ComponentID,
			forceReset:  offer.ForceImmediateReset,
		}
		e.updateInProgress = true
		e.stateMu.Unlock()
		e.failsafe.Start()
	}

	return decision
}

func (e *Engine) handleContent(payload []byte) []byte {
	var seq uint16
	if len(payload) >= 4 {
		seq = binary.LittleEndian.Uint16(payload[2:4])
	}

	cmd, err := wire.ParseContentCommand(payload)
	if err != nil {
		e.logger.Printf("[cfu] malformed content command: %v", err)
		resp := wire.ContentResponse{SequenceNumber: seq, Status: wire.ContentInvalid}
		packed := resp.Pack()
		return packed[:]
	}

	status := e.processContent(cmd)
	resp := wire.ContentResponse{SequenceNumber: cmd.SequenceNumber, Status: status}
	packed := resp.Pack()
	return packed[:]
}

// processContent runs the per-block content pipeline (spec §4.3).
func (e *Engine) processContent(cmd wire.ContentCommand) wire.ContentStatus {
	e.stateMu.Lock()
	inProgress := e.updateInProgress
	var componentID uint8
	if e.currentOffer != nil {
		componentID = e.currentOffer.componentID
	}
	e.stateMu.Unlock()

	if !inProgress {
		return wire.ContentNoOffer
	}

	if len(cmd.Data) == 0 {
		e.failContent()
		return wire.ContentInvalid
	}

	if cmd.IsFirst() {
		if err := e.storage.Prepare(componentID); err != nil {
			e.logger.Printf("[cfu] prepare(%d) failed: %v", componentID, err)
			e.failContent()
			return wire.ContentPrepare
		}
	}

	if err := e.storage.WriteAt(componentID, cmd.Address, cmd.Data); err != nil {
		e.logger.Printf("[cfu] write(%d, %#x) failed: %v", componentID, cmd.Address, err)
		e.failContent()
		return wire.ContentWrite
	}

	if cmd.IsLast() {
		status := e.runIntegrityPipeline(componentID)
		if status != wire.ContentSuccess {
			e.failContent()
			return status
		}
		return wire.ContentSuccess
	}

	return wire.ContentSuccess
}

// failContent implements the "a content block fails ⇒ update_in_progress
// := false atomically with the response" rule (spec §3 invariant, §4.3
// step 6).
func (e *Engine) failContent() {
	e.stateMu.Lock()
	e.updateInProgress = false
	e.currentOffer = nil
	e.stateMu.Unlock()
	e.failsafe.Stop()
}

// runIntegrityPipeline runs the last-block integrity pipeline (spec
// §4.3.1): CRC verification (unless the component opts out), image
// authentication, and the component's notify_success commitment step.
func (e *Engine) runIntegrityPipeline(componentID uint8) wire.ContentStatus {
	reg, ok := e.registry.Find(componentID)
	if !ok {
		// Registration changed mid-update: spec calls this "invalid state".
		return wire.ContentInvalid
	}

	if crcOffset := reg.Handler.CrcOffset(); crcOffset != wire.CrcCheckNotRequired {
		calc, err := e.storage.ComputeCRC(componentID)
		if err != nil {
			e.logger.Printf("[cfu] compute_crc(%d) failed: %v", componentID, err)
			return wire.ContentCrc
		}
		stored, err := e.storage.ReadAt(componentID, crcOffset, 2)
		if err != nil || len(stored) != 2 {
			e.logger.Printf("[cfu] read stored crc(%d) failed: %v", componentID, err)
			return wire.ContentCrc
		}
		if calc != binary.LittleEndian.Uint16(stored) {
			return wire.ContentCrc
		}
	}

	if err := e.auth.Authenticate(componentID); err != nil {
		e.logger.Printf("[cfu] authenticate(%d) failed: %v", componentID, err)
		return wire.ContentSignature
	}

	e.stateMu.Lock()
	forceReset := e.currentOffer != nil && e.currentOffer.forceReset
	e.stateMu.Unlock()

	readFn := func(offset uint32, length int) ([]byte, error) {
		return e.storage.ReadAt(componentID, offset, length)
	}

	done := make(chan struct{})
	var closeOnce bool
	readComplete := func() {
		if !closeOnce {
			closeOnce = true
			close(done)
		}
	}

	if err := reg.Handler.NotifySuccess(forceReset, readFn, readComplete); err != nil {
		e.logger.Printf("[cfu] notify_success(%d) failed: %v", componentID, err)
		return wire.ContentComplete
	}

	select {
	case <-done:
	case <-e.clock.After(e.completionTimeout):
		e.logger.Printf("[cfu] notify_success(%d) completion signal timed out after %v", componentID, e.completionTimeout)
	}

	// Commitment boundary (spec §4.3.1 step 4, §5): bank_swap_pending
	// becomes true and update_in_progress clears together, strictly
	// before the LAST_BLOCK response is emitted, so the two flags are
	// never observed both true (spec §8).
	e.stateMu.Lock()
	e.bankSwapPending = true
	e.updateInProgress = false
	e.currentOffer = nil
	e.stateMu.Unlock()
	e.failsafe.Stop()

	return wire.ContentSuccess
}

// onFailsafeFire is the failsafe timer's fire callback (spec §4.5): it
// unilaterally returns the engine to Idle without retracting the
// partially-written image.
func (e *Engine) onFailsafeFire() {
	e.stateMu.Lock()
	e.updateInProgress = false
	e.currentOffer = nil
	e.stateMu.Unlock()
}
