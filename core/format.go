package core

import (
	"fmt"
	"strings"
)

// Format identifies a concrete image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatWebP    Format = "webp"
	FormatSVG     Format = "svg"
	FormatUnknown Format = "unknown"
)

// Formats lists every concrete output format.
var Formats = []Format{FormatPNG, FormatJPEG, FormatWebP, FormatSVG}

// Valid reports whether f is one of the concrete supported formats.
func (f Format) Valid() bool {
	switch f {
	case FormatJPEG, FormatPNG, FormatWebP, FormatSVG:
		return true
	}
	return false
}

// IsRaster reports whether f is a pixel format.
func (f Format) IsRaster() bool {
	return f == FormatJPEG || f == FormatPNG || f == FormatWebP
}

// MIME returns the media type for f.
func (f Format) MIME() string {
	switch f {
	case FormatJPEG:
		return "image/jpeg"
	case FormatPNG:
		return "image/png"
	case FormatWebP:
		return "image/webp"
	case FormatSVG:
		return "image/svg+xml"
	}
	return "application/octet-stream"
}

// Extension returns the canonical file extension, without the dot.
func (f Format) Extension() string {
	if f.Valid() {
		return string(f)
	}
	return ""
}

// FormatFromMIME maps MIME types to Format values.
func FormatFromMIME(ct string) Format {
	ct = strings.ToLower(strings.TrimSpace(ct))
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = strings.TrimSpace(ct[:i])
	}
	switch ct {
	case "image/jpeg", "image/jpg", "image/pjpeg":
		return FormatJPEG
	case "image/png":
		return FormatPNG
	case "image/webp":
		return FormatWebP
	case "image/svg+xml", "image/svg":
		return FormatSVG
	}
	return FormatUnknown
}

// FormatFromExtension maps a file extension (with or without the dot).
func FormatFromExtension(ext string) Format {
	switch strings.ToLower(strings.TrimPrefix(ext, ".")) {
	case "jpg", "jpeg", "jpe", "jfif":
		return FormatJPEG
	case "png":
		return FormatPNG
	case "webp":
		return FormatWebP
	case "svg":
		return FormatSVG
	}
	return FormatUnknown
}

// ── Target ────────────────────────────────────────────────────────────────────

// Target is a requested output format: either "keep the source's format" or an
// explicit Format.  The zero value keeps the original.  A Target must be
// passed through Resolve before reaching an encoder.
type Target struct {
	format Format
}

// KeepOriginal requests the source's own format.
func KeepOriginal() Target { return Target{} }

// To requests an explicit output format.
func To(f Format) Target { return Target{format: f} }

// IsKeepOriginal reports whether t defers to the source format.
func (t Target) IsKeepOriginal() bool { return t.format == "" }

// Format returns the explicit format and true, or "" and false when t keeps
// the original.
func (t Target) Format() (Format, bool) {
	return t.format, t.format != ""
}

func (t Target) String() string {
	if t.IsKeepOriginal() {
		return "same"
	}
	return string(t.format)
}

// ParseTarget parses "same", "png", "jpeg", "jpg", "webp" or "svg".
func ParseTarget(s string) (Target, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "same" || s == "original" {
		return KeepOriginal(), nil
	}
	if f := FormatFromExtension(s); f != FormatUnknown {
		return To(f), nil
	}
	if f := FormatFromMIME(s); f != FormatUnknown {
		return To(f), nil
	}
	return Target{}, fmt.Errorf("unknown output format %q", s)
}

// Resolve maps a requested target plus the source's format to the concrete
// output format.
func Resolve(t Target, source Format) Format {
	if f, ok := t.Format(); ok {
		return f
	}
	return source
}
