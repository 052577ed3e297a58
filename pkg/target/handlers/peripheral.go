package handlers

import (
	"github.com/cfu-project/cfu/pkg/target"
	"github.com/cfu-project/cfu/pkg/wire"
)

// ResetFunc performs whatever component-local action moves a peripheral
// out of the swap-pending window on its own, e.g. power-cycling a
// downstream chip immediately after the image commits.
type ResetFunc func(forceReset bool)

// Peripheral is a component that manages its own reset path: once
// NotifySuccess commits, it resets itself and calls ClearBankSwapPending,
// so the engine returns to Idle without waiting for the host to issue an
// explicit reset. This resolves the bank-swap "opt out" question in the
// spec's design notes: opting out is a property of the handler, not a
// flag the wire protocol carries.
type Peripheral struct {
	CurrentVersion     wire.Version
	CurrentProductInfo wire.ProductInfo
	CRCOffset          uint32

	Reset               ResetFunc
	ClearBankSwapPending func()
}

var _ target.Handler = (*Peripheral)(nil)

func (p *Peripheral) Version() wire.Version         { return p.CurrentVersion }
func (p *Peripheral) ProductInfo() wire.ProductInfo { return p.CurrentProductInfo }
func (p *Peripheral) CrcOffset() uint32             { return p.CRCOffset }

func (p *Peripheral) ProcessOffer(offer wire.OfferDescriptor) target.OfferDecision {
	if offer.ProductInfo.ProductID != p.CurrentProductInfo.ProductID {
		return target.OfferDecision{Status: wire.OfferReject, Reason: wire.ReasonPlatformMismatch}
	}
	if !offer.Version.NewerThan(p.CurrentVersion) {
		return target.OfferDecision{Status: wire.OfferReject, Reason: wire.ReasonOldFw}
	}
	return target.OfferDecision{Status: wire.OfferAccept}
}

// NotifySuccess resets the peripheral, signals completion, and then calls
// ClearBankSwapPending. The read callback is unused here: the
// peripheral trusts the CRC/auth pipeline that already ran and needs no
// further verification pass of its own.
func (p *Peripheral) NotifySuccess(forceReset bool, read target.ReadFunc, readComplete target.ReadCompleteFunc) error {
	if p.Reset != nil {
		p.Reset(forceReset)
	}
	readComplete()
	if p.ClearBankSwapPending != nil {
		p.ClearBankSwapPending()
	}
	return nil
}
