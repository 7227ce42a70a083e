// Package probe reads intrinsic image dimensions without decoding pixels.
package probe

import (
	"bytes"
	"context"
	"image"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/webp"

	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
	"github.com/Skryldev/image-tools/vector"
)

const op = "probe"

var configDecoders = map[core.Format]func(io.Reader) (image.Config, error){
	core.FormatJPEG: jpeg.DecodeConfig,
	core.FormatPNG:  png.DecodeConfig,
	core.FormatWebP: webp.DecodeConfig,
}

// Dimensions returns the natural size of data interpreted as format f.  SVG
// reports its declared size.
func Dimensions(ctx context.Context, data []byte, f core.Format) (core.Dimensions, error) {
	if err := ctx.Err(); err != nil {
		return core.Dimensions{}, apperrors.Wrap(apperrors.CategoryPipeline, op, err)
	}
	if len(data) == 0 {
		return core.Dimensions{}, apperrors.New(apperrors.CategoryDecode, op, apperrors.ErrEmptyInput)
	}

	if f == core.FormatSVG {
		dims, err := vector.Size(data)
		if err != nil {
			return core.Dimensions{}, apperrors.New(apperrors.CategoryDecode, op, err)
		}
		return dims, nil
	}

	decodeConfig, ok := configDecoders[f]
	if !ok {
		return core.Dimensions{}, apperrors.New(apperrors.CategoryDecode, op, apperrors.ErrUnsupportedFormat)
	}
	cfg, err := decodeConfig(bytes.NewReader(data))
	if err != nil {
		return core.Dimensions{}, apperrors.New(apperrors.CategoryDecode, op, err)
	}
	dims := core.Dimensions{Width: cfg.Width, Height: cfg.Height}
	if !dims.Valid() {
		return core.Dimensions{}, apperrors.New(apperrors.CategoryDecode, op, apperrors.ErrInvalidDimensions)
	}
	return dims, nil
}
