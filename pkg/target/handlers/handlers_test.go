//go:build unit

package handlers

import (
	"testing"

	"github.com/cfu-project/cfu/pkg/wire"
)

func TestPrimaryRejectsOldFirmware(t *testing.T) {
	p := &Primary{
		CurrentVersion:     wire.Version{Major: 2, Minor: 0},
		CurrentProductInfo: wire.ProductInfo{ProtocolRevision: 2, ProductID: 100},
		MinAcceptedVersion: wire.Version{Major: 2, Minor: 0},
	}
	offer := wire.OfferDescriptor{
		Version:     wire.Version{Major: 1, Minor: 9},
		ProductInfo: wire.ProductInfo{ProtocolRevision: 2, ProductID: 100},
	}
	decision := p.ProcessOffer(offer)
	if decision.Status != wire.OfferReject || decision.Reason != wire.ReasonOldFw {
		t.Errorf("got %+v, want reject/old-fw", decision)
	}
}

func TestPrimaryAcceptsNewerFirmware(t *testing.T) {
	p := &Primary{
		CurrentVersion:     wire.Version{Major: 1, Minor: 0},
		CurrentProductInfo: wire.ProductInfo{ProtocolRevision: 2, ProductID: 100},
		MinAcceptedVersion: wire.Version{Major: 1, Minor: 0},
	}
	offer := wire.OfferDescriptor{
		Version:     wire.Version{Major: 2, Minor: 0},
		ProductInfo: wire.ProductInfo{ProtocolRevision: 2, ProductID: 100},
	}
	decision := p.ProcessOffer(offer)
	if decision.Status != wire.OfferAccept {
		t.Errorf("got %+v, want accept", decision)
	}
}

func TestPrimaryRejectsProductMismatch(t *testing.T) {
	p := &Primary{CurrentProductInfo: wire.ProductInfo{ProtocolRevision: 2, ProductID: 100}}
	offer := wire.OfferDescriptor{ProductInfo: wire.ProductInfo{ProtocolRevision: 2, ProductID: 200}}
	decision := p.ProcessOffer(offer)
	if decision.Status != wire.OfferReject || decision.Reason != wire.ReasonPlatformMismatch {
		t.Errorf("got %+v, want reject/platform-mismatch", decision)
	}
}

func TestPeripheralNotifySuccessResetsAndClearsSwapPending(t *testing.T) {
	var resetCalled, clearedCalled bool
	var resetForce bool
	p := &Peripheral{
		Reset: func(forceReset bool) {
			resetCalled = true
			resetForce = forceReset
		},
		ClearBankSwapPending: func() { clearedCalled = true },
	}

	completed := false
	err := p.NotifySuccess(true, nil, func() { completed = true })
	if err != nil {
		t.Fatalf("NotifySuccess: %v", err)
	}
	if !resetCalled || !resetForce {
		t.Error("expected Reset to be called with forceReset=true")
	}
	if !completed {
		t.Error("expected readComplete to be invoked")
	}
	if !clearedCalled {
		t.Error("expected ClearBankSwapPending to be invoked")
	}
}
