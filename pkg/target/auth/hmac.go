package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"fmt"

	"github.com/cfu-project/cfu/pkg/cfu"
	"github.com/cfu-project/cfu/pkg/target"
)

// ImageReader is the subset of target.Storage an Authenticator needs to
// re-read the just-written image; target.Storage satisfies it directly.
type ImageReader interface {
	ReadAt(componentID uint8, offset uint32, length int) ([]byte, error)
}

// HMAC authenticates a component's staged image by comparing a trailing
// HMAC-SHA256 tag against one computed over the preceding bytes. The tag
// is expected to be the last TagSize bytes of the image, per componentID's
// declared image size.
type HMAC struct {
	Storage    ImageReader
	Key        []byte
	ImageSizes map[uint8]int // componentID -> total staged image size, tag included
}

// TagSize is the length of an HMAC-SHA256 tag.
const TagSize = sha256.Size

var _ target.Authenticator = (*HMAC)(nil)

// Authenticate recomputes the HMAC over the image body and compares it
// against the trailing tag using constant-time comparison.
func (h *HMAC) Authenticate(componentID uint8) error {
	size, ok := h.ImageSizes[componentID]
	if !ok || size <= TagSize {
		return cfu.NewError(cfu.CodeInvalidArgument, fmt.Sprintf("no declared image size for component %d", componentID))
	}

	image, err := h.Storage.ReadAt(componentID, 0, size)
	if err != nil {
		return cfu.NewErrorWithCause(cfu.CodeSignatureFailure, "reading staged image", err)
	}

	body, wantTag := image[:size-TagSize], image[size-TagSize:]

	mac := hmac.New(sha256.New, h.Key)
	mac.Write(body)
	gotTag := mac.Sum(nil)

	if !hmac.Equal(gotTag, wantTag) {
		return cfu.NewError(cfu.CodeSignatureFailure, fmt.Sprintf("hmac mismatch for component %d", componentID))
	}
	return nil
}
