// Package handlers provides example target.Handler implementations for
// common component shapes: a primary MCU image and a peripheral image
// that manages its own reset path.
package handlers

import (
	"github.com/cfu-project/cfu/pkg/target"
	"github.com/cfu-project/cfu/pkg/wire"
)

// Primary is a component whose bank swap is driven entirely by the host:
// it never clears bank_swap_pending itself, so the engine (and the host,
// via a subsequent reset) is the only path back to Idle. This is the
// common case — most components have no private reset mechanism.
type Primary struct {
	CurrentVersion     wire.Version
	CurrentProductInfo wire.ProductInfo
	CRCOffset          uint32

	// MinAcceptedVersion rejects any offer strictly older than this unless
	// force_ignore_version is set.
	MinAcceptedVersion wire.Version
}

var _ target.Handler = (*Primary)(nil)

func (p *Primary) Version() wire.Version         { return p.CurrentVersion }
func (p *Primary) ProductInfo() wire.ProductInfo { return p.CurrentProductInfo }
func (p *Primary) CrcOffset() uint32             { return p.CRCOffset }

// ProcessOffer accepts an offer whose product info protocol revision and
// product ID both match the component's own and whose version is not
// older than MinAcceptedVersion.
func (p *Primary) ProcessOffer(offer wire.OfferDescriptor) target.OfferDecision {
	if offer.ProductInfo.ProtocolRevision != p.CurrentProductInfo.ProtocolRevision {
		return target.OfferDecision{Status: wire.OfferReject, Reason: wire.ReasonInvalidProtocolRev}
	}
	if offer.ProductInfo.ProductID != p.CurrentProductInfo.ProductID {
		return target.OfferDecision{Status: wire.OfferReject, Reason: wire.ReasonPlatformMismatch}
	}
	if p.MinAcceptedVersion.NewerThan(offer.Version) {
		return target.OfferDecision{Status: wire.OfferReject, Reason: wire.ReasonOldFw}
	}
	return target.OfferDecision{Status: wire.OfferAccept}
}

// NotifySuccess signals completion synchronously without re-reading the
// committed image; a primary image has no asynchronous commit step of its
// own.
func (p *Primary) NotifySuccess(forceReset bool, read target.ReadFunc, readComplete target.ReadCompleteFunc) error {
	readComplete()
	return nil
}
