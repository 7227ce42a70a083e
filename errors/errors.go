package errors

import (
	"errors"
	"fmt"
)

// Category classifies error types for targeted handling and monitoring.
type Category string

const (
	CategoryDecode     Category = "decode"
	CategorySurface    Category = "surface"
	CategoryEncode     Category = "encode"
	CategoryInvalidSVG Category = "invalid_svg"
	CategoryPipeline   Category = "pipeline"
	CategoryStorage    Category = "storage"
	CategoryConfig     Category = "config"
	CategoryInput      Category = "input"
)

// ProcessingError is the structured error type used throughout the module.
// Every failure is terminal for the image being processed.
type ProcessingError struct {
	Category Category
	Op       string // operation name
	Err      error
}

func (e *ProcessingError) Error() string {
	return fmt.Sprintf("[%s] %s: %v", e.Category, e.Op, e.Err)
}

func (e *ProcessingError) Unwrap() error { return e.Err }

// New creates a ProcessingError.
func New(category Category, op string, err error) *ProcessingError {
	return &ProcessingError{Category: category, Op: op, Err: err}
}

// Wrap wraps an existing error with context.  An error that already carries a
// category keeps it.
func Wrap(category Category, op string, err error) error {
	if err == nil {
		return nil
	}
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return err
	}
	return New(category, op, err)
}

// IsCategory reports whether err belongs to the given category.
func IsCategory(err error, cat Category) bool {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category == cat
	}
	return false
}

// CategoryOf returns the category of err, or "" for foreign errors.
func CategoryOf(err error) Category {
	var pe *ProcessingError
	if errors.As(err, &pe) {
		return pe.Category
	}
	return ""
}

// IsEncodeUnsupported reports whether err means the runtime has no encoder for
// the requested format.
func IsEncodeUnsupported(err error) bool {
	return IsCategory(err, CategoryEncode) && errors.Is(err, ErrEncodeUnsupported)
}

// Describe returns a short human-readable reason suitable for display text.
func Describe(err error) string {
	if err == nil {
		return ""
	}
	switch CategoryOf(err) {
	case CategoryDecode:
		return "the image could not be read"
	case CategorySurface:
		return "the drawing surface could not be created"
	case CategoryEncode:
		if errors.Is(err, ErrEncodeUnsupported) {
			return "this output format is not supported here"
		}
		return "the image could not be encoded"
	case CategoryInvalidSVG:
		return "the SVG document is invalid"
	case CategoryInput:
		return "invalid processing options"
	}
	return err.Error()
}

// Sentinel errors for common failure modes.
var (
	ErrUnsupportedFormat  = errors.New("unsupported image format")
	ErrInvalidDimensions  = errors.New("invalid dimensions")
	ErrEmptyInput         = errors.New("empty input")
	ErrSurfaceUnavailable = errors.New("drawing surface unavailable")
	ErrEncodeUnsupported  = errors.New("encoder returned no data")
	ErrInvalidSVG         = errors.New("invalid svg document")
	ErrHandleNotFound     = errors.New("resource handle not found")
	ErrInvalidOptions     = errors.New("invalid process options")
)
