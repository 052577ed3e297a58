package wire

import "fmt"

// OfferStatus is the target's decision on an offer (spec §3, §6).
type OfferStatus uint8

const (
	OfferSkip          OfferStatus = 0x00
	OfferAccept        OfferStatus = 0x01
	OfferReject        OfferStatus = 0x02
	OfferBusy          OfferStatus = 0x03
	OfferCommandReady  OfferStatus = 0x04
	OfferCmdNotSupported OfferStatus = 0xFF
)

var offerStatusNames = map[OfferStatus]string{
	OfferSkip:            "skip",
	OfferAccept:          "accept",
	OfferReject:          "reject",
	OfferBusy:            "busy",
	OfferCommandReady:    "command-ready",
	OfferCmdNotSupported: "cmd-not-supported",
}

func (s OfferStatus) String() string {
	if name, ok := offerStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("offer-status(%d)", uint8(s))
}

// RejectReason is the taxonomy carried alongside OfferReject (spec §3).
type RejectReason uint8

const (
	ReasonOldFw               RejectReason = 0x00
	ReasonInvalidMcu          RejectReason = 0x01
	ReasonSwapPending         RejectReason = 0x02
	ReasonVersionMismatch     RejectReason = 0x03
	ReasonBankInUse           RejectReason = 0x04
	ReasonPlatformMismatch    RejectReason = 0x05
	ReasonMilestoneMismatch   RejectReason = 0x06
	ReasonInvalidProtocolRev  RejectReason = 0x07
	ReasonVariantMismatch     RejectReason = 0x08

	// ReasonBusy is not part of the stable §6 reject-reason taxonomy (which
	// ends at 0x08); it is the value the state machine reports alongside
	// OfferBusy per §4.2's "Busy" transition, which names a Busy reason
	// without assigning it a wire value. 0x09 is the natural next slot.
	ReasonBusy RejectReason = 0x09
)

var rejectReasonNames = map[RejectReason]string{
	ReasonOldFw:              "old-firmware",
	ReasonInvalidMcu:         "invalid-mcu",
	ReasonSwapPending:        "swap-pending",
	ReasonVersionMismatch:    "version-mismatch",
	ReasonBankInUse:          "bank-in-use",
	ReasonPlatformMismatch:   "platform-mismatch",
	ReasonMilestoneMismatch:  "milestone-mismatch",
	ReasonInvalidProtocolRev: "invalid-protocol-revision",
	ReasonVariantMismatch:    "variant-mismatch",
	ReasonBusy:               "busy",
}

func (r RejectReason) String() string {
	if name, ok := rejectReasonNames[r]; ok {
		return name
	}
	return fmt.Sprintf("reject-reason(%d)", uint8(r))
}

// ContentStatus is the per-block outcome reported in a content response
// (spec §3, §6).
type ContentStatus uint8

const (
	ContentSuccess     ContentStatus = 0x00
	ContentPrepare     ContentStatus = 0x01
	ContentWrite       ContentStatus = 0x02
	ContentComplete    ContentStatus = 0x03
	ContentVerify      ContentStatus = 0x04
	ContentCrc         ContentStatus = 0x05
	ContentSignature   ContentStatus = 0x06
	ContentVersion     ContentStatus = 0x07
	ContentSwapPending ContentStatus = 0x08
	ContentInvalidAddr ContentStatus = 0x09
	ContentNoOffer     ContentStatus = 0x0A
	ContentInvalid     ContentStatus = 0x0B
)

var contentStatusNames = map[ContentStatus]string{
	ContentSuccess:     "success",
	ContentPrepare:     "prepare-failed",
	ContentWrite:       "write-failed",
	ContentComplete:    "complete-failed",
	ContentVerify:      "verify-failed",
	ContentCrc:         "crc-mismatch",
	ContentSignature:   "signature-failed",
	ContentVersion:     "version-failed",
	ContentSwapPending: "swap-pending",
	ContentInvalidAddr: "invalid-address",
	ContentNoOffer:     "no-offer",
	ContentInvalid:     "invalid",
}

func (s ContentStatus) String() string {
	if name, ok := contentStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("content-status(%d)", uint8(s))
}

// IsSuccess reports whether s represents a successful block outcome.
func (s ContentStatus) IsSuccess() bool {
	return s == ContentSuccess
}

// Content command flag bits (spec §3, §6).
const (
	FlagFirstBlock uint8 = 0x80
	FlagLastBlock  uint8 = 0x40
	FlagVerify     uint8 = 0x08
)

// Reserved component IDs (spec §3).
const (
	ComponentSpecial  uint8 = 0xFE // "special offer command"
	ComponentInfoOnly uint8 = 0xFF // "info-only offer"
)

// Special offer (component_id == ComponentSpecial) sub-opcodes.
type SpecialOpcode uint8

const (
	SpecialNotifyOnReady SpecialOpcode = 0x01
	SpecialNonce         SpecialOpcode = 0x02
	SpecialGetStatus     SpecialOpcode = 0x03
)

// CrcCheckNotRequired is the distinguished get_crc_offset return value that
// tells the content pipeline to skip CRC verification on LAST_BLOCK
// (spec §3, §4.3.1).
const CrcCheckNotRequired uint32 = 0xFFFFFFFF

// Opcode identifies the message being dispatched by the target (spec §4.1).
type Opcode uint8

const (
	OpcodeGetVersion Opcode = 0x01
	OpcodeOffer      Opcode = 0x02
	OpcodeContent    Opcode = 0x03
)

// DispatchCmdNotSupported is the outer status a dispatcher can report when it cannot
// even parse/route a frame (spec §4.1). It shares byte space with
// OfferStatus's CmdNotSupported value by design: both are "no content" outer
// statuses.
const DispatchCmdNotSupported = OfferCmdNotSupported
