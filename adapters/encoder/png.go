// Package encoder provides format-specific image encoders.
package encoder

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/draw"
	"image/png"

	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
)

// maxPaletteColors is the largest palette a PNG can carry.
const maxPaletteColors = 256

// PNG encodes images to PNG format.  Output is always lossless: images with
// at most 256 distinct colours are written with an exact palette, all others
// as truecolour.  EncodeOptions.Quality is ignored, so identical pixels always
// produce identical bytes.
type PNG struct {
	enc png.Encoder
}

func NewPNG() *PNG {
	return &PNG{enc: png.Encoder{CompressionLevel: png.BestCompression}}
}

func (p *PNG) CanEncode(format core.Format) bool { return format == core.FormatPNG }

func (p *PNG) Encode(ctx context.Context, img *core.ImageData, _ core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}

	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryEncode, "png.encode", apperrors.ErrEmptyInput)
	}

	pix := toNRGBA(src)
	var out image.Image = pix
	if pal, ok := quantize(pix); ok {
		out = pal
	}

	var buf bytes.Buffer
	if err := p.enc.Encode(&buf, out); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}
	return buf.Bytes(), nil
}

// toNRGBA reads back straight-alpha pixels, copying only when needed.
func toNRGBA(src image.Image) *image.NRGBA {
	if n, ok := src.(*image.NRGBA); ok && n.Rect.Min == (image.Point{}) {
		return n
	}
	b := src.Bounds()
	dst := image.NewNRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

// quantize builds an exact palette in first-occurrence order.  Fully
// transparent pixels collapse to a single entry.  It reports false when the
// image has more colours than a palette can hold.
func quantize(src *image.NRGBA) (*image.Paletted, bool) {
	b := src.Bounds()
	index := make(map[color.NRGBA]uint8, maxPaletteColors)
	palette := make(color.Palette, 0, maxPaletteColors)
	dst := image.NewPaletted(b, nil)

	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := src.NRGBAAt(x, y)
			if c.A == 0 {
				c = color.NRGBA{}
			}
			i, ok := index[c]
			if !ok {
				if len(palette) == maxPaletteColors {
					return nil, false
				}
				i = uint8(len(palette))
				index[c] = i
				palette = append(palette, c)
			}
			dst.SetColorIndex(x, y, i)
		}
	}
	dst.Palette = palette
	return dst, true
}
