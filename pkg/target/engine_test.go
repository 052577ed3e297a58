//go:build unit

package target

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/cfu-project/cfu/pkg/wire"
)

var errTestAuthFailure = errors.New("test: authentication failed")

// fakeHandler is a minimal in-memory Handler used across engine tests.
type fakeHandler struct {
	mu sync.Mutex

	version     wire.Version
	productInfo wire.ProductInfo
	crcOffset   uint32
	decision    OfferDecision

	notifyErr      error
	deferComplete  bool
	completeFn     ReadCompleteFunc
	notifyCalls    int
	lastForceReset bool
}

func (h *fakeHandler) Version() wire.Version         { return h.version }
func (h *fakeHandler) ProductInfo() wire.ProductInfo { return h.productInfo }
func (h *fakeHandler) CrcOffset() uint32             { return h.crcOffset }

func (h *fakeHandler) ProcessOffer(offer wire.OfferDescriptor) OfferDecision {
	return h.decision
}

func (h *fakeHandler) NotifySuccess(forceReset bool, read ReadFunc, readComplete ReadCompleteFunc) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.notifyCalls++
	h.lastForceReset = forceReset
	if h.notifyErr != nil {
		return h.notifyErr
	}
	if h.deferComplete {
		h.completeFn = readComplete
		return nil
	}
	readComplete()
	return nil
}

func (h *fakeHandler) fireDeferredComplete() {
	h.mu.Lock()
	fn := h.completeFn
	h.mu.Unlock()
	if fn != nil {
		fn()
	}
}

// fakeStorage is an in-memory Storage back end for engine tests.
type fakeStorage struct {
	mu          sync.Mutex
	prepareErr  error
	writeErr    error
	crc         uint16
	crcErr      error
	storedCRC   [2]byte
	readAtErr   error
	prepareCall int
	writes      map[uint32][]byte
}

func newFakeStorage() *fakeStorage {
	return &fakeStorage{writes: make(map[uint32][]byte)}
}

func (s *fakeStorage) Prepare(componentID uint8) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prepareCall++
	return s.prepareErr
}

func (s *fakeStorage) WriteAt(componentID uint8, offset uint32, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.writeErr != nil {
		return s.writeErr
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	s.writes[offset] = cp
	return nil
}

func (s *fakeStorage) ReadAt(componentID uint8, offset uint32, length int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readAtErr != nil {
		return nil, s.readAtErr
	}
	out := make([]byte, length)
	copy(out, s.storedCRC[:])
	return out, nil
}

func (s *fakeStorage) ComputeCRC(componentID uint8) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.crc, s.crcErr
}

// fakeAuth is an Authenticator stub.
type fakeAuth struct {
	err error
}

func (a *fakeAuth) Authenticate(componentID uint8) error { return a.err }

func newTestEngine(t *testing.T, mclock *clock.Mock, reg *Registry, storage Storage, auth Authenticator) *Engine {
	t.Helper()
	return NewEngine(reg, storage, auth,
		WithClock(mclock),
		WithFailsafeDuration(time.Minute),
		WithCompletionTimeout(50*time.Millisecond),
	)
}

func acceptOffer(componentID uint8) wire.OfferDescriptor {
	return wire.OfferDescriptor{Token: 7, ComponentID: componentID}
}

func packOffer(o wire.OfferDescriptor) []byte {
	b := o.Pack()
	return b[:]
}

func TestEngineGetVersionEnumeratesInRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	h1 := &fakeHandler{version: wire.Version{Major: 1}, productInfo: wire.ProductInfo{ProductID: 10}}
	h2 := &fakeHandler{version: wire.Version{Major: 2}, productInfo: wire.ProductInfo{ProductID: 20}}
	reg.Register(Registration{ComponentID: 1, Handler: h1})
	reg.Register(Registration{ComponentID: 2, Handler: h2})

	e := newTestEngine(t, clock.NewMock(), reg, newFakeStorage(), &fakeAuth{})
	raw := e.HandleFrame(wire.OpcodeGetVersion, nil)

	resp, err := wire.ParseGetVersionResponse(raw)
	if err != nil {
		t.Fatalf("ParseGetVersionResponse: %v", err)
	}
	if len(resp.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(resp.Entries))
	}
	if resp.Entries[0].ProductInfo.ProductID != 10 || resp.Entries[1].ProductInfo.ProductID != 20 {
		t.Errorf("entries out of registration order: %+v", resp.Entries)
	}
}

func TestEngineUnknownOpcode(t *testing.T) {
	e := newTestEngine(t, clock.NewMock(), NewRegistry(), newFakeStorage(), &fakeAuth{})
	raw := e.HandleFrame(wire.Opcode(0x7F), nil)
	if len(raw) != 1 || wire.OfferStatus(raw[0]) != wire.DispatchCmdNotSupported {
		t.Errorf("got %v, want single DispatchCmdNotSupported byte", raw)
	}
}

func TestEngineOfferAcceptSetsUpdateInProgress(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{decision: OfferDecision{Status: wire.OfferAccept}}
	reg.Register(Registration{ComponentID: 3, Handler: h})

	e := newTestEngine(t, clock.NewMock(), reg, newFakeStorage(), &fakeAuth{})
	offer := acceptOffer(3)
	raw := e.HandleFrame(wire.OpcodeOffer, packOffer(offer))
	resp, err := wire.ParseOfferResponse(raw)
	if err != nil {
		t.Fatalf("ParseOfferResponse: %v", err)
	}
	if resp.Status != wire.OfferAccept {
		t.Fatalf("status = %v, want accept", resp.Status)
	}
	if !e.UpdateInProgress() {
		t.Error("update_in_progress should be true after accept")
	}
}

func TestEngineOfferBusyWhileUpdateInProgress(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{decision: OfferDecision{Status: wire.OfferAccept}}
	reg.Register(Registration{ComponentID: 3, Handler: h})

	e := newTestEngine(t, clock.NewMock(), reg, newFakeStorage(), &fakeAuth{})
	e.HandleFrame(wire.OpcodeOffer, packOffer(acceptOffer(3)))

	raw := e.HandleFrame(wire.OpcodeOffer, packOffer(acceptOffer(3)))
	resp, err := wire.ParseOfferResponse(raw)
	if err != nil {
		t.Fatalf("ParseOfferResponse: %v", err)
	}
	if resp.Status != wire.OfferBusy || resp.RejectReason != wire.ReasonBusy {
		t.Errorf("got %+v, want Busy/ReasonBusy", resp)
	}
}

func TestEngineOfferRejectWhileBankSwapPending(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{decision: OfferDecision{Status: wire.OfferAccept}, crcOffset: wire.CrcCheckNotRequired}
	reg.Register(Registration{ComponentID: 3, Handler: h})

	mclock := clock.NewMock()
	e := newTestEngine(t, mclock, reg, newFakeStorage(), &fakeAuth{})
	e.HandleFrame(wire.OpcodeOffer, packOffer(acceptOffer(3)))
	driveToLastBlock(t, e, 3)

	if !e.BankSwapPending() {
		t.Fatal("expected bank_swap_pending after successful last block")
	}
	if e.UpdateInProgress() {
		t.Fatal("update_in_progress and bank_swap_pending must never both be true")
	}

	raw := e.HandleFrame(wire.OpcodeOffer, packOffer(acceptOffer(3)))
	resp, _ := wire.ParseOfferResponse(raw)
	if resp.Status != wire.OfferReject || resp.RejectReason != wire.ReasonSwapPending {
		t.Errorf("got %+v, want Reject/ReasonSwapPending", resp)
	}
}

func TestEngineSpecialGetStatusOffer(t *testing.T) {
	e := newTestEngine(t, clock.NewMock(), NewRegistry(), newFakeStorage(), &fakeAuth{})
	offer := wire.OfferDescriptor{Token: 1, ComponentID: wire.ComponentSpecial, Segment: uint8(wire.SpecialGetStatus)}
	raw := e.HandleFrame(wire.OpcodeOffer, packOffer(offer))
	resp, _ := wire.ParseOfferResponse(raw)
	if resp.Status != wire.OfferCommandReady {
		t.Errorf("status = %v, want command-ready", resp.Status)
	}
}

func TestEngineInfoOnlyOfferSkipped(t *testing.T) {
	e := newTestEngine(t, clock.NewMock(), NewRegistry(), newFakeStorage(), &fakeAuth{})
	offer := wire.OfferDescriptor{Token: 1, ComponentID: wire.ComponentInfoOnly}
	raw := e.HandleFrame(wire.OpcodeOffer, packOffer(offer))
	resp, _ := wire.ParseOfferResponse(raw)
	if resp.Status != wire.OfferSkip {
		t.Errorf("status = %v, want skip", resp.Status)
	}
}

func TestEngineForceIgnoreVersionOverridesOldFirmwareOnly(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{decision: OfferDecision{Status: wire.OfferReject, Reason: wire.ReasonOldFw}}
	reg.Register(Registration{ComponentID: 5, Handler: h})
	e := newTestEngine(t, clock.NewMock(), reg, newFakeStorage(), &fakeAuth{})

	offer := wire.OfferDescriptor{Token: 1, ComponentID: 5, ForceIgnoreVersion: true}
	raw := e.HandleFrame(wire.OpcodeOffer, packOffer(offer))
	resp, _ := wire.ParseOfferResponse(raw)
	if resp.Status != wire.OfferAccept {
		t.Errorf("status = %v, want accept (old-fw overridden)", resp.Status)
	}

	// A non-OldFw reject must stand even with force_ignore_version set.
	h2 := &fakeHandler{decision: OfferDecision{Status: wire.OfferReject, Reason: wire.ReasonBankInUse}}
	reg2 := NewRegistry()
	reg2.Register(Registration{ComponentID: 5, Handler: h2})
	e2 := newTestEngine(t, clock.NewMock(), reg2, newFakeStorage(), &fakeAuth{})
	raw2 := e2.HandleFrame(wire.OpcodeOffer, packOffer(offer))
	resp2, _ := wire.ParseOfferResponse(raw2)
	if resp2.Status != wire.OfferReject || resp2.RejectReason != wire.ReasonBankInUse {
		t.Errorf("got %+v, want reject/bank-in-use preserved", resp2)
	}
}

func TestEngineContentWithoutOfferIsNoOffer(t *testing.T) {
	e := newTestEngine(t, clock.NewMock(), NewRegistry(), newFakeStorage(), &fakeAuth{})
	cmd := wire.ContentCommand{Flags: wire.FlagFirstBlock | wire.FlagLastBlock, Data: []byte{1}}
	packed, _ := cmd.Pack()
	raw := e.HandleFrame(wire.OpcodeContent, packed)
	resp, _ := wire.ParseContentResponse(raw)
	if resp.Status != wire.ContentNoOffer {
		t.Errorf("status = %v, want no-offer", resp.Status)
	}
}

func TestEngineContentZeroLengthBlockFails(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{decision: OfferDecision{Status: wire.OfferAccept}}
	reg.Register(Registration{ComponentID: 3, Handler: h})
	e := newTestEngine(t, clock.NewMock(), reg, newFakeStorage(), &fakeAuth{})
	e.HandleFrame(wire.OpcodeOffer, packOffer(acceptOffer(3)))

	cmd := wire.ContentCommand{Flags: wire.FlagFirstBlock}
	packed, _ := cmd.Pack()
	raw := e.HandleFrame(wire.OpcodeContent, packed)
	resp, _ := wire.ParseContentResponse(raw)
	if resp.Status != wire.ContentInvalid {
		t.Errorf("status = %v, want invalid", resp.Status)
	}
	if e.UpdateInProgress() {
		t.Error("update_in_progress should clear after a failed block")
	}
}

func TestEngineContentCrcMismatchFailsUpdate(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{decision: OfferDecision{Status: wire.OfferAccept}, crcOffset: 0}
	reg.Register(Registration{ComponentID: 3, Handler: h})
	storage := newFakeStorage()
	storage.crc = 0xAAAA
	storage.storedCRC = [2]byte{0x00, 0x00} // mismatches storage.crc
	e := newTestEngine(t, clock.NewMock(), reg, storage, &fakeAuth{})
	e.HandleFrame(wire.OpcodeOffer, packOffer(acceptOffer(3)))

	cmd := wire.ContentCommand{Flags: wire.FlagFirstBlock | wire.FlagLastBlock, Data: []byte{1, 2, 3}}
	packed, _ := cmd.Pack()
	raw := e.HandleFrame(wire.OpcodeContent, packed)
	resp, _ := wire.ParseContentResponse(raw)
	if resp.Status != wire.ContentCrc {
		t.Errorf("status = %v, want crc-mismatch", resp.Status)
	}
	if e.UpdateInProgress() || e.BankSwapPending() {
		t.Error("a failed last block must not leave either flag set")
	}
}

func TestEngineContentSignatureFailure(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{decision: OfferDecision{Status: wire.OfferAccept}, crcOffset: wire.CrcCheckNotRequired}
	reg.Register(Registration{ComponentID: 3, Handler: h})
	e := newTestEngine(t, clock.NewMock(), reg, newFakeStorage(), &fakeAuth{err: errTestAuthFailure})
	e.HandleFrame(wire.OpcodeOffer, packOffer(acceptOffer(3)))

	cmd := wire.ContentCommand{Flags: wire.FlagFirstBlock | wire.FlagLastBlock, Data: []byte{1}}
	packed, _ := cmd.Pack()
	raw := e.HandleFrame(wire.OpcodeContent, packed)
	resp, _ := wire.ParseContentResponse(raw)
	if resp.Status != wire.ContentSignature {
		t.Errorf("status = %v, want signature-failed", resp.Status)
	}
}

func TestEngineNotifySuccessWaitsForDeferredCompletion(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{decision: OfferDecision{Status: wire.OfferAccept}, crcOffset: wire.CrcCheckNotRequired, deferComplete: true}
	reg.Register(Registration{ComponentID: 3, Handler: h})
	e := newTestEngine(t, clock.NewMock(), reg, newFakeStorage(), &fakeAuth{})
	e.HandleFrame(wire.OpcodeOffer, packOffer(acceptOffer(3)))

	resultCh := make(chan wire.ContentStatus, 1)
	go func() {
		cmd := wire.ContentCommand{Flags: wire.FlagFirstBlock | wire.FlagLastBlock, Data: []byte{1}}
		packed, _ := cmd.Pack()
		raw := e.HandleFrame(wire.OpcodeContent, packed)
		resp, _ := wire.ParseContentResponse(raw)
		resultCh <- resp.Status
	}()

	// Give the pipeline a moment to reach the wait point, then fire the
	// deferred completion signal; the call above must not have returned yet.
	select {
	case <-resultCh:
		t.Fatal("HandleFrame returned before the handler signalled completion")
	case <-time.After(20 * time.Millisecond):
	}
	h.fireDeferredComplete()

	select {
	case status := <-resultCh:
		if status != wire.ContentSuccess {
			t.Errorf("status = %v, want success", status)
		}
	case <-time.After(time.Second):
		t.Fatal("HandleFrame did not return after completion signal fired")
	}
	if !e.BankSwapPending() || e.UpdateInProgress() {
		t.Error("bank_swap_pending/update_in_progress must flip together on completion")
	}
}

func TestEngineFailsafeTimerClearsUpdateInProgress(t *testing.T) {
	reg := NewRegistry()
	h := &fakeHandler{decision: OfferDecision{Status: wire.OfferAccept}}
	reg.Register(Registration{ComponentID: 3, Handler: h})

	mclock := clock.NewMock()
	e := newTestEngine(t, mclock, reg, newFakeStorage(), &fakeAuth{})
	e.HandleFrame(wire.OpcodeOffer, packOffer(acceptOffer(3)))
	if !e.UpdateInProgress() {
		t.Fatal("expected update_in_progress after accept")
	}

	mclock.Add(time.Minute + time.Second)
	deadline := time.Now().Add(time.Second)
	for e.UpdateInProgress() && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if e.UpdateInProgress() {
		t.Error("failsafe timer should have cleared update_in_progress")
	}
}

// driveToLastBlock pushes a single-block image that is accepted (no CRC
// check, no auth failure), driving the engine through to LAST_BLOCK.
func driveToLastBlock(t *testing.T, e *Engine, componentID uint8) {
	t.Helper()
	cmd := wire.ContentCommand{Flags: wire.FlagFirstBlock | wire.FlagLastBlock, Data: []byte{1, 2, 3}}
	packed, err := cmd.Pack()
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	raw := e.HandleFrame(wire.OpcodeContent, packed)
	resp, err := wire.ParseContentResponse(raw)
	if err != nil {
		t.Fatalf("ParseContentResponse: %v", err)
	}
	if resp.Status != wire.ContentSuccess {
		t.Fatalf("last block status = %v, want success", resp.Status)
	}
}
