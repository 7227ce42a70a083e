// Package pipeline provides built-in pipeline steps and the extensible Step API.
package pipeline

import (
	"bytes"
	"context"
	"fmt"
	"image"

	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
	"github.com/Skryldev/image-tools/utils"
	"github.com/Skryldev/image-tools/vector"
)

// ── Decode ────────────────────────────────────────────────────────────────────

// DecodeStep decodes raw bytes in img.Data into an image.Image.
type DecodeStep struct {
	Registry core.Registry
}

func (s *DecodeStep) Name() string { return "decode" }

func (s *DecodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if img.Image != nil {
		return img, nil // already decoded
	}
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(), apperrors.ErrEmptyInput)
	}
	dec, ok := s.Registry.DecoderFor(img.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, img.Format))
	}

	decoded, err := dec.Decode(ctx, bytes.NewReader(img.Data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, s.Name(), err)
	}

	// Preserve the raw data bytes alongside the decoded representation.
	decoded.Data = img.Data
	decoded.OriginalSize = img.OriginalSize
	return decoded, nil
}

// ── Scale ─────────────────────────────────────────────────────────────────────

// ScaleStep resizes the image by Factor, or to Width×Height when either is
// set (a zero axis follows the aspect ratio).  Target axes are rounded to the
// nearest integer and must be at least 1.
type ScaleStep struct {
	Factor        float64
	Width, Height int
	// Scaler defaults to a bilinear SurfaceScaler without a pixel limit.
	Scaler Scaler
}

func (s *ScaleStep) Name() string { return "scale" }

func (s *ScaleStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}

	src := sourceDimensions(img)
	if !src.Valid() {
		return nil, apperrors.New(apperrors.CategoryDecode, s.Name(), apperrors.ErrInvalidDimensions)
	}
	target, err := s.Target(src)
	if err != nil {
		return nil, err
	}

	scaler := s.Scaler
	if scaler == nil {
		scaler = &SurfaceScaler{}
	}
	return scaler.Scale(ctx, img, target)
}

// Target computes the output size for a source of the given dimensions.
func (s *ScaleStep) Target(src core.Dimensions) (core.Dimensions, error) {
	var (
		w, h int
		err  error
	)
	if s.Width > 0 || s.Height > 0 {
		w, h, err = utils.ScaleDimensions(src.Width, src.Height, s.Width, s.Height)
	} else {
		w, h, err = utils.ScaleBy(src.Width, src.Height, s.Factor)
	}
	if err != nil {
		return core.Dimensions{}, apperrors.New(apperrors.CategoryInput, s.Name(),
			fmt.Errorf("%w: %s by %v", apperrors.ErrInvalidDimensions, src, s.Factor))
	}
	return core.Dimensions{Width: w, Height: h}, nil
}

func sourceDimensions(img *core.ImageData) core.Dimensions {
	if img.Meta.Width > 0 && img.Meta.Height > 0 {
		return core.Dimensions{Width: img.Meta.Width, Height: img.Meta.Height}
	}
	if src, ok := img.Image.(image.Image); ok && src != nil {
		b := src.Bounds()
		return core.Dimensions{Width: b.Dx(), Height: b.Dy()}
	}
	return core.Dimensions{}
}

// ── Format conversion ─────────────────────────────────────────────────────────

// FormatStep sets the resolved output format for the subsequent encode step.
type FormatStep struct {
	Format core.Format
}

func (s *FormatStep) Name() string { return "format" }

func (s *FormatStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	if !s.Format.Valid() {
		return nil, apperrors.New(apperrors.CategoryInput, s.Name(),
			fmt.Errorf("%w: %q", apperrors.ErrUnsupportedFormat, s.Format))
	}
	out := *img
	out.Format = s.Format
	out.Meta.Format = s.Format
	return &out, nil
}

// ── Encode ────────────────────────────────────────────────────────────────────

// EncodeStep serialises the image.Image into encoded bytes using the registry.
// A missing encoder, or one that yields no bytes, is reported as
// ErrEncodeUnsupported.
type EncodeStep struct {
	Registry core.Registry
	Options  core.EncodeOptions
}

func (s *EncodeStep) Name() string { return "encode" }

func (s *EncodeStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	enc, ok := s.Registry.EncoderFor(img.Format)
	if !ok {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(),
			fmt.Errorf("%w: no encoder for %s", apperrors.ErrEncodeUnsupported, img.Format))
	}

	data, err := enc.Encode(ctx, img, s.Options)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, s.Name(), err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryEncode, s.Name(),
			fmt.Errorf("%w: %s", apperrors.ErrEncodeUnsupported, img.Format))
	}

	out := *img
	out.Data = data
	out.Meta.SizeBytes = int64(len(data))
	return &out, nil
}

// ── Vector rescale ────────────────────────────────────────────────────────────

// VectorRescaleStep rewrites the declared size of the SVG document in img.Data
// without rasterizing it.  Width/Height override Factor as in ScaleStep.
type VectorRescaleStep struct {
	Factor        float64
	Width, Height int
	Options       vector.Options
}

func (s *VectorRescaleStep) Name() string { return "vector_rescale" }

func (s *VectorRescaleStep) Execute(ctx context.Context, img *core.ImageData) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, s.Name(), err)
	}
	if len(img.Data) == 0 {
		return nil, apperrors.New(apperrors.CategoryInvalidSVG, s.Name(), apperrors.ErrEmptyInput)
	}

	sx, sy := s.Factor, s.Factor
	if s.Width > 0 || s.Height > 0 {
		src, err := vector.Size(img.Data)
		if err != nil {
			return nil, err
		}
		target, err := (&ScaleStep{Width: s.Width, Height: s.Height}).Target(src)
		if err != nil {
			return nil, err
		}
		sx = float64(target.Width) / float64(src.Width)
		sy = float64(target.Height) / float64(src.Height)
	}

	data, dims, err := vector.Rescale(img.Data, sx, sy, s.Options)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryInvalidSVG, s.Name(), err)
	}

	return &core.ImageData{
		Data:         data,
		Format:       core.FormatSVG,
		OriginalSize: img.OriginalSize,
		Meta: core.Metadata{
			Width:      dims.Width,
			Height:     dims.Height,
			Format:     core.FormatSVG,
			ColorSpace: core.ColorSpaceRGBA,
			HasAlpha:   true,
			SizeBytes:  int64(len(data)),
		},
	}, nil
}
