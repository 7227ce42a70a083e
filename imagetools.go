// Package imagetools resizes and re-encodes user-supplied images in-process.
//
// A caller loads bytes into a Descriptor with Load, then asks Process for a
// derivative at a given scale, quality and output format.  SVG output is
// produced by rewriting the document's declared size; every other output is
// decoded, drawn onto an off-screen surface and re-encoded.
package imagetools

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/go-playground/validator/v10"
	"go.uber.org/multierr"

	"github.com/Skryldev/image-tools/adapters/decoder"
	"github.com/Skryldev/image-tools/adapters/encoder"
	"github.com/Skryldev/image-tools/config"
	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
	"github.com/Skryldev/image-tools/handles"
	"github.com/Skryldev/image-tools/pipeline"
	"github.com/Skryldev/image-tools/probe"
	"github.com/Skryldev/image-tools/utils"
	"github.com/Skryldev/image-tools/vector"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	WebP = core.FormatWebP
	SVG  = core.FormatSVG
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Same requests the source's own format.
func Same() core.Target { return core.KeepOriginal() }

// To requests an explicit output format.
func To(f core.Format) core.Target { return core.To(f) }

// Processor is the primary entry point.
type Processor struct {
	cfg      config.Config
	inner    *core.Processor
	reg      *core.DefaultRegistry
	handles  *handles.Store
	validate *validator.Validate
	defaults core.ProcessOptions

	mu     sync.RWMutex
	scaler pipeline.Scaler
	logger core.Logger
}

// New creates a fully wired Processor with the built-in JPEG, PNG, WebP and
// SVG codecs registered.
func New(cfg config.Config) (*Processor, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "new", err)
	}
	target, err := core.ParseTarget(cfg.DefaultFormat)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryConfig, "new", err)
	}

	reg := core.NewRegistry()
	reg.RegisterDecoder(core.FormatJPEG, decoder.NewJPEG())
	reg.RegisterDecoder(core.FormatPNG, decoder.NewPNG())
	reg.RegisterDecoder(core.FormatWebP, decoder.NewWebP())
	reg.RegisterDecoder(core.FormatSVG, decoder.NewSVG(cfg.MaxSurfacePixels, cfg.ChunkSize))
	reg.RegisterEncoder(core.FormatJPEG, encoder.NewJPEG())
	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	reg.RegisterEncoder(core.FormatWebP, encoder.NewWebP())

	resampler, _ := pipeline.ResamplerByName(cfg.Resampler)
	return &Processor{
		cfg:      cfg,
		inner:    core.New(cfg, reg),
		reg:      reg,
		handles:  handles.NewStore(),
		validate: validator.New(validator.WithRequiredStructEnabled()),
		defaults: core.ProcessOptions{
			Scale:   cfg.DefaultScale,
			Quality: cfg.DefaultQuality,
			Format:  target,
		},
		scaler: &pipeline.SurfaceScaler{Resampler: resampler, MaxPixels: cfg.MaxSurfacePixels},
	}, nil
}

// DefaultOptions returns the ProcessOptions configured by Config.Default*.
func (p *Processor) DefaultOptions() core.ProcessOptions { return p.defaults }

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l core.Logger) {
	p.mu.Lock()
	p.logger = l
	p.mu.Unlock()
	p.inner.SetLogger(l)
}

// SetMetrics attaches a metrics collector.
func (p *Processor) SetMetrics(m core.MetricsCollector) { p.inner.SetMetrics(m) }

// AddHook registers an observer for pipeline step events.
func (p *Processor) AddHook(h core.Hook) { p.inner.AddHook(h) }

// SetScaler replaces the raster scaler, e.g. with the libvips backend.
func (p *Processor) SetScaler(s pipeline.Scaler) {
	p.mu.Lock()
	p.scaler = s
	p.mu.Unlock()
}

// Scaler returns the raster scaler currently in use.
func (p *Processor) Scaler() pipeline.Scaler {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.scaler
}

// RegisterDecoder registers a custom decoder for the given format.
func (p *Processor) RegisterDecoder(f core.Format, d core.Decoder) { p.reg.RegisterDecoder(f, d) }

// RegisterEncoder registers a custom encoder for the given format.
func (p *Processor) RegisterEncoder(f core.Format, e core.Encoder) { p.reg.RegisterEncoder(f, e) }

// OutputFormats lists the formats Process can currently produce.
func (p *Processor) OutputFormats() []core.Format {
	return append(p.reg.EncodableFormats(), core.FormatSVG)
}

// ── Load ──────────────────────────────────────────────────────────────────────

// Load reads an upload into a Descriptor.  A recognised declared MIME type is
// trusted as-is; only when none is given is the content sniffed.
func (p *Processor) Load(ctx context.Context, src core.Source) (*core.Descriptor, error) {
	const op = "load"
	if src.Reader == nil {
		return nil, apperrors.New(apperrors.CategoryInput, op, apperrors.ErrEmptyInput)
	}

	var r io.Reader = src.Reader
	if p.cfg.MaxImageBytes > 0 {
		r = &utils.LimitedReader{R: r, Max: p.cfg.MaxImageBytes}
	}
	data, err := utils.ReadAll(ctx, r, p.cfg.ChunkSize)
	if err != nil {
		if errors.Is(err, utils.ErrTooLarge) {
			return nil, apperrors.New(apperrors.CategoryInput, op, err)
		}
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, op, apperrors.ErrEmptyInput)
	}

	format := core.FormatFromMIME(src.ContentType)
	if format == core.FormatUnknown {
		format = core.Format(utils.DetectFormat(data))
	}
	if !format.Valid() {
		return nil, apperrors.New(apperrors.CategoryDecode, op,
			fmt.Errorf("%w: %q", apperrors.ErrUnsupportedFormat, src.ContentType))
	}

	dims, err := probe.Dimensions(ctx, data, format)
	if err != nil {
		return nil, err
	}

	name := src.Name
	if name == "" {
		name = utils.ReplaceExtension("", format.Extension())
	}
	return &core.Descriptor{
		Handle:     p.handles.Allocate(data, format),
		Name:       name,
		Size:       int64(len(data)),
		Format:     format,
		Content:    data,
		Dimensions: dims,
	}, nil
}

// ── Process ───────────────────────────────────────────────────────────────────

// Process produces a derivative of src.  The output format is opts.Format
// resolved against src.Format; SVG output rescales the document, anything
// else goes through decode, scale, format and encode.  On failure no
// descriptor is returned and nothing is allocated.
func (p *Processor) Process(ctx context.Context, src *core.Descriptor, opts core.ProcessOptions) (*core.Descriptor, error) {
	const op = "process"
	if src == nil {
		return nil, apperrors.New(apperrors.CategoryInput, op, apperrors.ErrEmptyInput)
	}
	if err := p.checkOptions(opts); err != nil {
		return nil, err
	}
	if !src.Format.Valid() {
		return nil, apperrors.New(apperrors.CategoryDecode, op,
			fmt.Errorf("%w: %q", apperrors.ErrUnsupportedFormat, src.Format))
	}

	target := core.Resolve(opts.Format, src.Format)
	content, err := p.content(src, target)
	if err != nil {
		return nil, err
	}
	img := &core.ImageData{
		Data:         content,
		Format:       src.Format,
		OriginalSize: int64(len(content)),
	}

	var steps []core.Step
	if target == core.FormatSVG {
		steps = []core.Step{&pipeline.VectorRescaleStep{
			Factor:  opts.Scale,
			Width:   opts.Width,
			Height:  opts.Height,
			Options: vector.Options{Minify: p.cfg.MinifySVG, Precision: p.cfg.SVGPrecision},
		}}
	} else {
		steps = []core.Step{
			&pipeline.DecodeStep{Registry: p.reg},
			&pipeline.ScaleStep{Factor: opts.Scale, Width: opts.Width, Height: opts.Height, Scaler: p.Scaler()},
			&pipeline.FormatStep{Format: target},
			&pipeline.EncodeStep{Registry: p.reg, Options: core.EncodeOptions{Quality: opts.Quality}},
		}
	}

	result, err := p.inner.Run(ctx, img, steps...)
	if err != nil {
		return nil, err
	}
	out := result.Primary
	return &core.Descriptor{
		Handle:     p.handles.Allocate(out.Data, target),
		Name:       utils.ReplaceExtension(src.Name, target.Extension()),
		Size:       int64(len(out.Data)),
		Format:     target,
		Content:    out.Data,
		Dimensions: core.Dimensions{Width: out.Meta.Width, Height: out.Meta.Height},
	}, nil
}

// content returns the bytes to transform.  Raster output reads through the
// handle; the vector path reads the document text directly.
func (p *Processor) content(src *core.Descriptor, target core.Format) ([]byte, error) {
	if target == core.FormatSVG && len(src.Content) > 0 {
		return src.Content, nil
	}
	if src.Handle != "" {
		return p.handles.Open(src.Handle)
	}
	if len(src.Content) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "process", apperrors.ErrEmptyInput)
	}
	return src.Content, nil
}

func (p *Processor) checkOptions(opts core.ProcessOptions) error {
	const op = "process.options"
	if err := p.validate.Struct(opts); err != nil {
		return apperrors.New(apperrors.CategoryInput, op, fmt.Errorf("%w: %v", apperrors.ErrInvalidOptions, err))
	}
	if !opts.HasExplicitSize() && !(opts.Scale > 0) {
		return apperrors.New(apperrors.CategoryInput, op,
			fmt.Errorf("%w: scale must be positive", apperrors.ErrInvalidOptions))
	}
	if f, ok := opts.Format.Format(); ok && !f.Valid() {
		return apperrors.New(apperrors.CategoryInput, op,
			fmt.Errorf("%w: %q", apperrors.ErrUnsupportedFormat, f))
	}
	return nil
}

// ── Batch ─────────────────────────────────────────────────────────────────────

// Progress reports batch completion after each item.
type Progress struct {
	Done    int
	Total   int
	Percent int // round(Done/Total*100)
}

// ProgressFunc observes batch progress.
type ProgressFunc func(Progress)

// BatchResult pairs a batch input with its outcome; exactly one of Result and
// Err is set.
type BatchResult struct {
	Source *core.Descriptor
	Result *core.Descriptor
	Err    error
}

// Batch processes sources one at a time in order with the same options.  A
// failed item does not stop the batch; all failures are combined into the
// returned error.  Cancelling ctx stops the batch before the next item but
// never interrupts the one in flight.
func (p *Processor) Batch(ctx context.Context, sources []*core.Descriptor, opts core.ProcessOptions, progress ProgressFunc) ([]BatchResult, error) {
	results := make([]BatchResult, 0, len(sources))
	var errs error
	total := len(sources)

	for i, src := range sources {
		if err := ctx.Err(); err != nil {
			errs = multierr.Append(errs, apperrors.Wrap(apperrors.CategoryPipeline, "batch", err))
			break
		}

		res, err := p.Process(context.WithoutCancel(ctx), src, opts)
		results = append(results, BatchResult{Source: src, Result: res, Err: err})
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", sourceName(src), err))
			p.logWarn("batch.item.failed", "item", i, "name", sourceName(src), "error", err.Error())
		}
		if progress != nil {
			progress(Progress{Done: i + 1, Total: total, Percent: utils.Percent(i+1, total)})
		}
	}
	return results, errs
}

func sourceName(d *core.Descriptor) string {
	if d == nil || d.Name == "" {
		return "<unnamed>"
	}
	return d.Name
}

func (p *Processor) logWarn(msg string, fields ...interface{}) {
	p.mu.RLock()
	l := p.logger
	p.mu.RUnlock()
	if l != nil {
		l.Warn(msg, fields...)
	}
}

// ── Handles ───────────────────────────────────────────────────────────────────

// Open returns the bytes behind a descriptor's handle.
func (p *Processor) Open(d *core.Descriptor) ([]byte, error) {
	return p.handles.Open(d.Handle)
}

// Release revokes a descriptor's handle.  The processor never releases the
// descriptors it returns; that is the caller's job.
func (p *Processor) Release(d *core.Descriptor) bool {
	if d == nil {
		return false
	}
	return p.handles.Release(d.Handle)
}

// ── Pipelines ─────────────────────────────────────────────────────────────────

// NewPipeline creates a reusable, standalone pipeline.
func (p *Processor) NewPipeline(steps ...core.Step) *pipeline.Pipeline {
	pl := pipeline.New()
	pl.Use(steps...)
	return pl
}

// Run executes custom steps through the processor's hooks and counters.
func (p *Processor) Run(ctx context.Context, img *core.ImageData, steps ...core.Step) (*core.ProcessingResult, error) {
	return p.inner.Run(ctx, img, steps...)
}

// Stats returns lightweight processing statistics.
func (p *Processor) Stats() (processed, errors int64) {
	return p.inner.ProcessedCount(), p.inner.ErrorCount()
}

// ── Step constructors ─────────────────────────────────────────────────────────

// DecodeWith returns a decode step bound to the given registry.
func DecodeWith(reg core.Registry) core.Step { return &pipeline.DecodeStep{Registry: reg} }

// Scale returns a step that multiplies both axes by factor.
func Scale(factor float64, s pipeline.Scaler) core.Step {
	return &pipeline.ScaleStep{Factor: factor, Scaler: s}
}

// Resize returns a resize step.  Pass 0 for one axis to preserve aspect ratio.
func Resize(width, height int, s pipeline.Scaler) core.Step {
	return &pipeline.ScaleStep{Width: width, Height: height, Scaler: s}
}

// ConvertFormat instructs subsequent steps to use the given output format.
func ConvertFormat(f core.Format) core.Step { return &pipeline.FormatStep{Format: f} }

// EncodeWith returns an encode step bound to the given registry and options.
func EncodeWith(reg core.Registry, opts core.EncodeOptions) core.Step {
	return &pipeline.EncodeStep{Registry: reg, Options: opts}
}

// RescaleSVG returns a step that rewrites an SVG document's declared size.
func RescaleSVG(factor float64, opts vector.Options) core.Step {
	return &pipeline.VectorRescaleStep{Factor: factor, Options: opts}
}
