package pipeline

import (
	"context"
	"fmt"
	"image"
	"image/draw"

	"github.com/disintegration/imaging"
	"github.com/nfnt/resize"
	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
)

// Scaler resamples a decoded image to an exact target size.
type Scaler interface {
	Scale(ctx context.Context, img *core.ImageData, target core.Dimensions) (*core.ImageData, error)
}

// Resampler draws src over the whole of dst.
type Resampler interface {
	Resample(dst *image.NRGBA, src image.Image)
}

type interpolator struct{ xdraw.Interpolator }

func (i interpolator) Resample(dst *image.NRGBA, src image.Image) {
	i.Scale(dst, dst.Bounds(), src, src.Bounds(), xdraw.Src, nil)
}

type lanczos struct{}

func (lanczos) Resample(dst *image.NRGBA, src image.Image) {
	b := dst.Bounds()
	out := imaging.Resize(src, b.Dx(), b.Dy(), imaging.Lanczos)
	draw.Draw(dst, b, out, image.Point{}, draw.Src)
}

type mitchell struct{}

func (mitchell) Resample(dst *image.NRGBA, src image.Image) {
	b := dst.Bounds()
	out := resize.Resize(uint(b.Dx()), uint(b.Dy()), src, resize.MitchellNetravali)
	draw.Draw(dst, b, out, out.Bounds().Min, draw.Src)
}

var resamplers = map[string]Resampler{
	"nearest":    interpolator{xdraw.NearestNeighbor},
	"bilinear":   interpolator{xdraw.BiLinear},
	"catmullrom": interpolator{xdraw.CatmullRom},
	"lanczos":    lanczos{},
	"mitchell":   mitchell{},
}

// ResamplerByName returns one of the resamplers listed in config.Resamplers.
func ResamplerByName(name string) (Resampler, bool) {
	r, ok := resamplers[name]
	return r, ok
}

// NewSurface allocates an off-screen w×h drawing surface.  It fails with a
// surface error when the area exceeds maxPixels (<= 0 disables the limit) or
// the allocation itself cannot be satisfied.
func NewSurface(w, h int, maxPixels int64) (surface *image.NRGBA, err error) {
	const op = "surface.create"
	if w < 1 || h < 1 {
		return nil, apperrors.New(apperrors.CategoryInput, op, apperrors.ErrInvalidDimensions)
	}
	if maxPixels > 0 && int64(w)*int64(h) > maxPixels {
		return nil, apperrors.New(apperrors.CategorySurface, op,
			fmt.Errorf("%w: %dx%d exceeds %d pixels", apperrors.ErrSurfaceUnavailable, w, h, maxPixels))
	}
	defer func() {
		if r := recover(); r != nil {
			surface = nil
			err = apperrors.New(apperrors.CategorySurface, op,
				fmt.Errorf("%w: %v", apperrors.ErrSurfaceUnavailable, r))
		}
	}()
	return image.NewNRGBA(image.Rect(0, 0, w, h)), nil
}

// SurfaceScaler draws the source onto a fresh surface of the target size in a
// single full-surface blit.
type SurfaceScaler struct {
	// Resampler defaults to bilinear.
	Resampler Resampler
	MaxPixels int64
}

func (s *SurfaceScaler) Scale(ctx context.Context, img *core.ImageData, target core.Dimensions) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, "scale", err)
	}
	src, ok := img.Image.(image.Image)
	if !ok || src == nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "scale", apperrors.ErrEmptyInput)
	}

	dst, err := NewSurface(target.Width, target.Height, s.MaxPixels)
	if err != nil {
		return nil, err
	}
	r := s.Resampler
	if r == nil {
		r = resamplers["bilinear"]
	}
	r.Resample(dst, src)

	out := *img
	out.Image = dst
	out.Meta.Width = target.Width
	out.Meta.Height = target.Height
	out.Meta.ColorSpace = core.ColorSpaceRGBA
	return &out, nil
}
