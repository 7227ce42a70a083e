package utils

import (
	"bytes"
	"errors"
	"math"

	"github.com/gabriel-vasile/mimetype"
)

const (
	formatJPEG    = "jpeg"
	formatPNG     = "png"
	formatWebP    = "webp"
	formatSVG     = "svg"
	formatUnknown = "unknown"
)

// ErrScaleOutOfRange is returned when a scaled axis rounds below one pixel or
// overflows.
var ErrScaleOutOfRange = errors.New("scaled dimensions out of range")

// maxAxis bounds a single axis so that w*h cannot overflow int64.
const maxAxis = 1 << 30

// DetectFormat sniffs content and returns the image format.  It is only used
// when the uploader declared no usable MIME type.
func DetectFormat(data []byte) string {
	if len(data) < 4 {
		return formatUnknown
	}
	// JPEG: FF D8 FF
	if data[0] == 0xFF && data[1] == 0xD8 && data[2] == 0xFF {
		return formatJPEG
	}
	// PNG: 89 50 4E 47
	if data[0] == 0x89 && data[1] == 0x50 && data[2] == 0x4E && data[3] == 0x47 {
		return formatPNG
	}
	// WebP: RIFF....WEBP
	if len(data) >= 12 &&
		data[0] == 'R' && data[1] == 'I' && data[2] == 'F' && data[3] == 'F' &&
		data[8] == 'W' && data[9] == 'E' && data[10] == 'B' && data[11] == 'P' {
		return formatWebP
	}
	// Fall back to full content sniffing; SVG is text and needs it.
	switch mt := mimetype.Detect(data); {
	case mt.Is("image/svg+xml"):
		return formatSVG
	case mt.Is("image/jpeg"):
		return formatJPEG
	case mt.Is("image/png"):
		return formatPNG
	case mt.Is("image/webp"):
		return formatWebP
	}
	return formatUnknown
}

// ScaleBy multiplies both axes by factor and rounds half away from zero.
// Either axis rounding below 1 is an error.
func ScaleBy(srcW, srcH int, factor float64) (int, int, error) {
	return scaleAxes(float64(srcW)*factor, float64(srcH)*factor)
}

// ScaleDimensions computes output (w, h) for an explicit target size,
// preserving aspect ratio when one axis is 0.  Pass 0 for both to keep the
// source size.
func ScaleDimensions(srcW, srcH, targetW, targetH int) (int, int, error) {
	switch {
	case targetW == 0 && targetH == 0:
		return scaleAxes(float64(srcW), float64(srcH))
	case targetW == 0:
		ratio := float64(targetH) / float64(srcH)
		return scaleAxes(float64(srcW)*ratio, float64(targetH))
	case targetH == 0:
		ratio := float64(targetW) / float64(srcW)
		return scaleAxes(float64(targetW), float64(srcH)*ratio)
	}
	return scaleAxes(float64(targetW), float64(targetH))
}

func scaleAxes(w, h float64) (int, int, error) {
	rw, rh := math.Round(w), math.Round(h)
	if math.IsNaN(rw) || math.IsNaN(rh) || rw < 1 || rh < 1 || rw > maxAxis || rh > maxAxis {
		return 0, 0, ErrScaleOutOfRange
	}
	return int(rw), int(rh), nil
}

// CloneBytes returns a copy of b (safe for use after the source buffer is released).
func CloneBytes(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

// BytesReader creates an io.Reader backed by b without allocation.
func BytesReader(b []byte) *bytes.Reader {
	return bytes.NewReader(b)
}
