package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"time"
)

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceCMYK ColorSpace = "cmyk"
	ColorSpaceGray ColorSpace = "gray"
)

// Metadata holds extracted image information without loading pixel data.
type Metadata struct {
	Width      int
	Height     int
	Format     Format
	ColorSpace ColorSpace
	HasAlpha   bool
	SizeBytes  int64
}

// ImageData is the in-memory representation passed through a pipeline.
// Data holds encoded bytes; Image holds the decoded pixel surface when needed.
type ImageData struct {
	// Encoded bytes, non-nil when the image has been encoded or is raw input.
	Data   []byte
	Format Format

	// Decoded pixels: image.Image for the stdlib codecs, a backend-specific
	// type for libvips.
	Image interface{}

	Meta Metadata

	// Size of the original raw input.
	OriginalSize int64
}

// ProcessingResult is returned by Processor.Run after all steps complete.
type ProcessingResult struct {
	Primary *ImageData

	// Observability.
	ProcessingTime time.Duration
	StepTimings    map[string]time.Duration
}

// Source abstracts where upload bytes come from.
type Source struct {
	Reader      io.Reader
	ContentType string // declared MIME type; trusted when recognised
	Name        string // original file name
	Size        int64  // -1 if unknown
}

// Dimensions is a pixel size.  Both axes are >= 1 on any descriptor.
type Dimensions struct {
	Width  int
	Height int
}

// Valid reports whether both axes are positive.
func (d Dimensions) Valid() bool { return d.Width >= 1 && d.Height >= 1 }

func (d Dimensions) String() string { return fmt.Sprintf("%dx%d", d.Width, d.Height) }

// Handle is an opaque, revocable reference to byte content.
type Handle string

// Descriptor describes a single image at some stage of the pipeline.  It is
// immutable once returned; the caller releases its Handle when done.
type Descriptor struct {
	Handle     Handle
	Name       string
	Size       int64
	Format     Format
	Content    []byte
	Dimensions Dimensions
}

// DataURL encodes the content as a base64 data URL.  It is computed on demand
// and never cached on the descriptor.
func (d *Descriptor) DataURL() string {
	return "data:" + d.Format.MIME() + ";base64," + base64.StdEncoding.EncodeToString(d.Content)
}

// ProcessOptions is the immutable per-call input to the orchestrator.
type ProcessOptions struct {
	// Scale multiplies both axes.  Required unless Width or Height is set.
	Scale float64 `validate:"omitempty,gt=0"`
	// Quality in [0,100]; used by lossy encoders only.
	Quality int `validate:"min=0,max=100"`
	// Format is the requested output; the zero value keeps the source format.
	Format Target

	// Width and Height request an explicit output size instead of Scale.  A
	// zero axis is derived from the aspect ratio.
	Width  int `validate:"min=0"`
	Height int `validate:"min=0"`
}

// HasExplicitSize reports whether Width or Height overrides Scale.
func (o ProcessOptions) HasExplicitSize() bool { return o.Width > 0 || o.Height > 0 }

// Step is the fundamental pipeline building block.  Each Step transforms an
// *ImageData value and must be safe for concurrent use across goroutines.
type Step interface {
	Name() string
	Execute(ctx context.Context, img *ImageData) (*ImageData, error)
}

// Hook is an optional observer invoked around pipeline steps.
type Hook interface {
	BeforeStep(ctx context.Context, stepName string, img *ImageData)
	AfterStep(ctx context.Context, stepName string, img *ImageData, d time.Duration, err error)
}

// StorageKey uniquely identifies a stored image.
type StorageKey struct {
	Bucket string
	Path   string
}
