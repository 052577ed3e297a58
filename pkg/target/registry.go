package target

import (
	"sync"

	"github.com/cfu-project/cfu/pkg/wire"
)

// ReadFunc re-reads length bytes at offset from the just-committed image,
// for a handler's own post-write verification (spec §4.3.1, §9 "Callback
// with implicit completion").
type ReadFunc func(offset uint32, length int) ([]byte, error)

// ReadCompleteFunc is invoked by a handler once it has finished consuming
// ReadFunc, signalling the pipeline that update_in_progress may clear
// (spec §9). A handler may call it synchronously from within
// NotifySuccess, or later, from its own completion context.
type ReadCompleteFunc func()

// OfferDecision is a handler's tentative verdict on an offer, before the
// state machine applies the force-ignore-version override (spec §4.2 step 4).
type OfferDecision struct {
	Status wire.OfferStatus
	Reason wire.RejectReason
}

// Handler is the capability set a registered component exposes (spec §3
// "Handler vtable", §9 "Function-pointer vtables → capability set").
type Handler interface {
	// Version returns the component's currently-running firmware version.
	Version() wire.Version

	// ProductInfo returns the component's product info tuple.
	ProductInfo() wire.ProductInfo

	// ProcessOffer evaluates an incoming offer and returns a tentative
	// decision; the caller (the offer acceptance state machine) applies the
	// force-ignore-version override on top of this result.
	ProcessOffer(offer wire.OfferDescriptor) OfferDecision

	// CrcOffset returns the image-internal offset the content pipeline
	// should compare storage.ComputeCRC against, or wire.CrcCheckNotRequired
	// if this component skips CRC verification (spec §4.3.1).
	CrcOffset() uint32

	// NotifySuccess is invoked once authentication succeeds on LAST_BLOCK.
	// It may call read/readComplete synchronously or asynchronously; the
	// pipeline does not clear update_in_progress until readComplete fires
	// or the engine's completion timeout elapses, whichever comes first
	// (spec §4.3.1, §9).
	NotifySuccess(forceReset bool, read ReadFunc, readComplete ReadCompleteFunc) error
}

// Registration binds a component_id to its Handler (spec §3, §4.4).
type Registration struct {
	ComponentID uint8
	Handler     Handler
}

// Registry is the append-only ordered set of component registrations
// (spec §4.4). Lookups walk the list in registration order so the first
// registration for a duplicate component_id always wins; GetVersion
// iterates in the same order.
//
// The teacher's registration-order question in spec §9 — the original C
// source prepends, inverting iteration order — is resolved here by
// appending, per the spec's explicit instruction.
type Registry struct {
	mu      sync.Mutex
	entries []Registration
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Register appends reg to the registry. Registration is expected to
// complete before the engine starts processing frames (spec §4.4); any
// runtime registration must be guarded the same way frame dispatch is
// (the caller is expected to hold the engine's critical section, or to
// register only during setup).
func (r *Registry) Register(reg Registration) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, reg)
}

// Find returns the first registration matching componentID, in
// registration order.
func (r *Registry) Find(componentID uint8) (Registration, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, reg := range r.entries {
		if reg.ComponentID == componentID {
			return reg, true
		}
	}
	return Registration{}, false
}

// Iter returns a snapshot of all registrations in registration order.
func (r *Registry) Iter() []Registration {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Registration, len(r.entries))
	copy(out, r.entries)
	return out
}

// Len returns the number of registered components.
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
