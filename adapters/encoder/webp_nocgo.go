//go:build !cgo

package encoder

import (
	"context"

	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
)

// WebP reports ErrEncodeUnsupported: libwebp needs cgo.
type WebP struct{}

func NewWebP() *WebP { return &WebP{} }

func (w *WebP) CanEncode(format core.Format) bool { return format == core.FormatWebP }

func (w *WebP) Encode(context.Context, *core.ImageData, core.EncodeOptions) ([]byte, error) {
	return nil, apperrors.New(apperrors.CategoryEncode, "webp.encode", apperrors.ErrEncodeUnsupported)
}
