package decoder

import (
	"context"
	"image"
	"io"

	"github.com/srwiley/oksvg"
	"github.com/srwiley/rasterx"

	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
	"github.com/Skryldev/image-tools/utils"
	"github.com/Skryldev/image-tools/vector"
)

// SVG rasterizes SVG documents at their declared size so they can flow
// through the raster pipeline.
type SVG struct {
	// MaxPixels bounds the rasterization surface; <= 0 disables the check.
	MaxPixels int64
	// ChunkSize is the read buffer used to drain the source.
	ChunkSize int
}

func NewSVG(maxPixels int64, chunkSize int) *SVG {
	return &SVG{MaxPixels: maxPixels, ChunkSize: chunkSize}
}

func (s *SVG) CanDecode(format core.Format) bool { return format == core.FormatSVG }

func (s *SVG) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	const op = "svg.decode"
	data, err := utils.ReadAll(ctx, r, s.ChunkSize)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}

	dims, err := vector.Size(data)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, op, err)
	}
	if s.MaxPixels > 0 && int64(dims.Width)*int64(dims.Height) > s.MaxPixels {
		return nil, apperrors.New(apperrors.CategorySurface, op, apperrors.ErrSurfaceUnavailable)
	}

	icon, err := oksvg.ReadIconStream(utils.BytesReader(data), oksvg.IgnoreErrorMode)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryDecode, op, err)
	}
	icon.SetTarget(0, 0, float64(dims.Width), float64(dims.Height))

	img := image.NewNRGBA(image.Rect(0, 0, dims.Width, dims.Height))
	scanner := rasterx.NewScannerGV(dims.Width, dims.Height, img, img.Bounds())
	icon.Draw(rasterx.NewDasher(dims.Width, dims.Height, scanner), 1)

	out := wrapImage(img, core.FormatSVG)
	out.Data = data
	return out, nil
}
