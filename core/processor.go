package core

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/Skryldev/image-tools/config"
	apperrors "github.com/Skryldev/image-tools/errors"
)

// Processor runs step sequences over a single image.  It holds no per-image
// state, so concurrent Run calls are safe; the root package drives it one
// image at a time.
type Processor struct {
	cfg      config.Config
	registry Registry
	hooks    []Hook
	logger   Logger
	metrics  MetricsCollector

	// Atomic counters for lightweight internal metrics.
	processedCount int64
	errorCount     int64
}

// New creates a Processor with the given config and codec registry.
func New(cfg config.Config, reg Registry) *Processor {
	return &Processor{
		cfg:      cfg,
		registry: reg,
	}
}

// SetLogger attaches a structured logger.
func (p *Processor) SetLogger(l Logger) { p.logger = l }

// SetMetrics attaches a metrics collector.
func (p *Processor) SetMetrics(m MetricsCollector) { p.metrics = m }

// AddHook registers a pipeline hook.
func (p *Processor) AddHook(h Hook) { p.hooks = append(p.hooks, h) }

// Registry returns the underlying registry so callers can register
// encoders/decoders after construction.
func (p *Processor) Registry() Registry { return p.registry }

// Config returns the configuration the processor was built with.
func (p *Processor) Config() config.Config { return p.cfg }

// Run executes steps in order on img.  The first failing step aborts the run;
// its error is returned unchanged and no partial result is produced.
func (p *Processor) Run(ctx context.Context, img *ImageData, steps ...Step) (*ProcessingResult, error) {
	if img == nil || len(steps) == 0 {
		return nil, apperrors.New(apperrors.CategoryPipeline, "run", apperrors.ErrEmptyInput)
	}

	start := time.Now()
	timings := make(map[string]time.Duration, len(steps))
	current := img
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(step.Name(), apperrors.Wrap(apperrors.CategoryPipeline, step.Name(), err))
		}
		p.notifyBefore(ctx, step.Name(), current)
		t := time.Now()
		next, stepErr := step.Execute(ctx, current)
		elapsed := time.Since(t)
		timings[step.Name()] = elapsed
		p.notifyAfter(ctx, step.Name(), next, elapsed, stepErr)
		if stepErr != nil {
			return nil, p.fail(step.Name(), stepErr)
		}
		current = next
	}

	atomic.AddInt64(&p.processedCount, 1)
	total := time.Since(start)
	if p.metrics != nil {
		p.metrics.RecordProcessingTime("run", total)
	}
	if p.logger != nil {
		p.logger.Debug("pipeline.run.done",
			"format", current.Format,
			"width", current.Meta.Width,
			"height", current.Meta.Height,
			"bytes", len(current.Data),
			"duration_ms", total.Milliseconds(),
		)
	}

	return &ProcessingResult{
		Primary:        current,
		ProcessingTime: total,
		StepTimings:    timings,
	}, nil
}

func (p *Processor) fail(step string, err error) error {
	atomic.AddInt64(&p.errorCount, 1)
	if p.metrics != nil {
		p.metrics.RecordError(step, string(apperrors.CategoryOf(err)))
	}
	if p.logger != nil {
		p.logger.Warn("pipeline.run.failed", "step", step, "error", err.Error())
	}
	return err
}

func (p *Processor) notifyBefore(ctx context.Context, name string, img *ImageData) {
	for _, h := range p.hooks {
		h.BeforeStep(ctx, name, img)
	}
}

func (p *Processor) notifyAfter(ctx context.Context, name string, img *ImageData, d time.Duration, err error) {
	for _, h := range p.hooks {
		h.AfterStep(ctx, name, img, d, err)
	}
}

// ProcessedCount returns the total number of successful runs.
func (p *Processor) ProcessedCount() int64 { return atomic.LoadInt64(&p.processedCount) }

// ErrorCount returns the total number of failed runs.
func (p *Processor) ErrorCount() int64 { return atomic.LoadInt64(&p.errorCount) }
