//go:build cgo

package vips

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/image-tools/config"
	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
	"github.com/Skryldev/image-tools/pipeline"
	"github.com/Skryldev/image-tools/utils"
)

var rasterFormats = []core.Format{core.FormatJPEG, core.FormatPNG, core.FormatWebP}

// Backend is a unified libvips-powered Decoder, Encoder and pipeline.Scaler.
// Images not decoded by libvips (rasterized SVG, for instance) are handed to
// the codecs and scaler that were registered before it.
// Safe for concurrent use across goroutines.
type Backend struct {
	cfg       config.VipsConfig
	maxPixels int64

	mu        sync.RWMutex
	fallbacks map[core.Format]core.Encoder
	scaler    pipeline.Scaler
}

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg config.VipsConfig, maxPixels int64) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	govips.LoggingSettings(nil, govips.LogLevelWarning)
	govips.Startup(&govips.Config{
		ConcurrencyLevel: cfg.MaxWorkers,
		MaxCacheSize:     cfg.MaxCacheSize,
		ReportLeaks:      cfg.ReportLeaks,
		CollectStats:     true,
	})
	return &Backend{
		cfg:       cfg,
		maxPixels: maxPixels,
		fallbacks: make(map[core.Format]core.Encoder),
	}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// SetFallbackScaler sets the scaler used for non-libvips images.
func (b *Backend) SetFallbackScaler(s pipeline.Scaler) {
	b.mu.Lock()
	b.scaler = s
	b.mu.Unlock()
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanDecode(f core.Format) bool {
	return f == core.FormatJPEG || f == core.FormatPNG || f == core.FormatWebP
}

func (b *Backend) Decode(ctx context.Context, r io.Reader) (*core.ImageData, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	raw, err := utils.ReadAll(ctx, r, 32*1024)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	runtime.SetFinalizer(ref, func(r *govips.ImageRef) { r.Close() })

	format := vipsFormatToCore(ref.Format())
	return &core.ImageData{
		Data:   raw,
		Format: format,
		Image:  &VipsImage{ref: ref},
		Meta: core.Metadata{
			Width:      ref.Width(),
			Height:     ref.Height(),
			Format:     format,
			ColorSpace: vipsInterpretationToColorSpace(ref.Interpretation()),
			HasAlpha:   ref.HasAlpha(),
		},
		OriginalSize: int64(len(raw)),
	}, nil
}

// ─── Encoder ──────────────────────────────────────────────────────────────────

func (b *Backend) CanEncode(f core.Format) bool {
	return f == core.FormatJPEG || f == core.FormatPNG || f == core.FormatWebP
}

func (b *Backend) Encode(ctx context.Context, img *core.ImageData, opts core.EncodeOptions) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode", err)
	}

	vi, ok := img.Image.(*VipsImage)
	if !ok || vi == nil {
		b.mu.RLock()
		fb := b.fallbacks[img.Format]
		b.mu.RUnlock()
		if fb == nil {
			return nil, apperrors.New(apperrors.CategoryEncode, "vips.encode",
				fmt.Errorf("%w: %s", apperrors.ErrEncodeUnsupported, img.Format))
		}
		return fb.Encode(ctx, img, opts)
	}

	// libvips JPEG quality starts at 1; 0 maps there for both lossy codecs.
	quality := opts.Quality
	if quality < 1 {
		quality = 1
	} else if quality > 100 {
		quality = 100
	}

	switch img.Format {
	case core.FormatJPEG:
		ep := govips.NewJpegExportParams()
		ep.Quality = quality
		ep.StripMetadata = true
		buf, _, err := vi.ref.ExportJpeg(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.jpeg", err)
		}
		return buf, nil

	case core.FormatPNG:
		// Lossless; quality does not apply.
		ep := govips.NewPngExportParams()
		ep.Compression = 9
		ep.StripMetadata = true
		buf, _, err := vi.ref.ExportPng(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.png", err)
		}
		return buf, nil

	case core.FormatWebP:
		ep := govips.NewWebpExportParams()
		ep.Quality = quality
		ep.Lossless = opts.Lossless
		ep.StripMetadata = true
		buf, _, err := vi.ref.ExportWebp(ep)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryEncode, "vips.encode.webp", err)
		}
		return buf, nil

	default:
		return nil, apperrors.New(apperrors.CategoryEncode, "vips.encode",
			fmt.Errorf("%w: %s", apperrors.ErrEncodeUnsupported, img.Format))
	}
}

// ─── Scaler ───────────────────────────────────────────────────────────────────

// Scale resizes with vips_resize() and the Lanczos3 kernel.  The source
// reference is copied first so the input ImageData stays untouched.
func (b *Backend) Scale(ctx context.Context, img *core.ImageData, target core.Dimensions) (*core.ImageData, error) {
	const op = "vips.scale"
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryPipeline, op, err)
	}
	vi, ok := img.Image.(*VipsImage)
	if !ok || vi == nil {
		b.mu.RLock()
		s := b.scaler
		b.mu.RUnlock()
		if s == nil {
			s = &pipeline.SurfaceScaler{MaxPixels: b.maxPixels}
		}
		return s.Scale(ctx, img, target)
	}
	if !target.Valid() {
		return nil, apperrors.New(apperrors.CategoryInput, op, apperrors.ErrInvalidDimensions)
	}
	if b.maxPixels > 0 && int64(target.Width)*int64(target.Height) > b.maxPixels {
		return nil, apperrors.New(apperrors.CategorySurface, op,
			fmt.Errorf("%w: %s exceeds %d pixels", apperrors.ErrSurfaceUnavailable, target, b.maxPixels))
	}

	ref, err := vi.ref.Copy()
	if err != nil {
		return nil, apperrors.New(apperrors.CategorySurface, op, err)
	}
	runtime.SetFinalizer(ref, func(r *govips.ImageRef) { r.Close() })

	hscale := float64(target.Width) / float64(ref.Width())
	vscale := float64(target.Height) / float64(ref.Height())
	if hscale != 1 || vscale != 1 {
		if err := ref.ResizeWithVScale(hscale, vscale, govips.KernelLanczos3); err != nil {
			return nil, apperrors.New(apperrors.CategorySurface, op, err)
		}
	}

	out := *img
	out.Image = &VipsImage{ref: ref}
	out.Meta.Width = ref.Width()
	out.Meta.Height = ref.Height()
	return &out, nil
}

// ─── VipsImage ────────────────────────────────────────────────────────────────

// VipsImage wraps a *govips.ImageRef for storage in core.ImageData.Image.
type VipsImage struct {
	ref *govips.ImageRef
}

func (v *VipsImage) Width() int            { return v.ref.Width() }
func (v *VipsImage) Height() int           { return v.ref.Height() }
func (v *VipsImage) Ref() *govips.ImageRef { return v.ref }
func (v *VipsImage) Close()                { v.ref.Close() }

// ─── RegisterVipsBackend ──────────────────────────────────────────────────────

// RegisterVipsBackend replaces the raster codecs in reg with libvips.  The
// encoders it displaces become fallbacks for images libvips did not decode.
// SVG stays with whatever decoder is already registered.
func RegisterVipsBackend(reg core.Registry, b *Backend) {
	b.mu.Lock()
	for _, f := range rasterFormats {
		if prev, ok := reg.EncoderFor(f); ok && prev != core.Encoder(b) {
			b.fallbacks[f] = prev
		}
	}
	b.mu.Unlock()

	for _, f := range rasterFormats {
		reg.RegisterDecoder(f, b)
		reg.RegisterEncoder(f, b)
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	case govips.ImageTypeSVG:
		return core.FormatSVG
	default:
		return core.FormatUnknown
	}
}

func vipsInterpretationToColorSpace(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationSRGB, govips.InterpretationRGB16:
		return core.ColorSpaceRGB
	case govips.InterpretationBW:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

// compile-time interface checks
var (
	_ core.Decoder    = (*Backend)(nil)
	_ core.Encoder    = (*Backend)(nil)
	_ pipeline.Scaler = (*Backend)(nil)
)
