// Package vector rewrites the declared size of SVG documents without
// rasterizing them.
package vector

import (
	"math"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/tdewolff/minify/v2"
	"github.com/tdewolff/minify/v2/css"
	"github.com/tdewolff/minify/v2/svg"

	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
)

const mediaType = "image/svg+xml"

// Options controls serialisation of the rescaled document.
type Options struct {
	// Minify strips whitespace and shortens path data after rescaling.
	Minify bool
	// Precision is the number of significant digits kept by the minifier;
	// 0 keeps the minifier default.
	Precision int
}

// DefaultOptions minifies with the minifier's default precision.
func DefaultOptions() Options { return Options{Minify: true} }

// length is a parsed width/height attribute value.
type length struct {
	value float64
	unit  string
}

func (l length) String() string {
	return strconv.FormatFloat(l.value, 'f', -1, 64) + l.unit
}

var units = []string{"px", "pt", "pc", "mm", "cm", "in", "em", "ex"}

// parseLength accepts "<number>[unit]".  Percentages are rejected because they
// carry no intrinsic size.
func parseLength(s string) (length, bool) {
	s = strings.TrimSpace(s)
	if s == "" || strings.HasSuffix(s, "%") {
		return length{}, false
	}
	var unit string
	for _, u := range units {
		if strings.HasSuffix(s, u) {
			unit = u
			s = strings.TrimSpace(strings.TrimSuffix(s, u))
			break
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || v <= 0 || math.IsInf(v, 0) || math.IsNaN(v) {
		return length{}, false
	}
	return length{value: v, unit: unit}, true
}

// viewBoxSize returns the width and height components of a viewBox attribute.
func viewBoxSize(s string) (float64, float64, bool) {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	if len(fields) != 4 {
		return 0, 0, false
	}
	w, errW := strconv.ParseFloat(fields[2], 64)
	h, errH := strconv.ParseFloat(fields[3], 64)
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return 0, 0, false
	}
	return w, h, true
}

// document is a parsed SVG with its resolved intrinsic size.
type document struct {
	doc           *etree.Document
	root          *etree.Element
	width, height length
}

func parse(op string, data []byte) (*document, error) {
	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(data); err != nil {
		return nil, apperrors.New(apperrors.CategoryInvalidSVG, op, err)
	}
	root := doc.Root()
	if root == nil || root.Tag != "svg" {
		return nil, apperrors.New(apperrors.CategoryInvalidSVG, op, apperrors.ErrInvalidSVG)
	}

	w, okW := parseLength(root.SelectAttrValue("width", ""))
	h, okH := parseLength(root.SelectAttrValue("height", ""))
	if !okW || !okH {
		vw, vh, ok := viewBoxSize(root.SelectAttrValue("viewBox", ""))
		if !ok {
			return nil, apperrors.New(apperrors.CategoryInvalidSVG, op, apperrors.ErrInvalidSVG)
		}
		if !okW {
			w = length{value: vw}
		}
		if !okH {
			h = length{value: vh}
		}
	}
	return &document{doc: doc, root: root, width: w, height: h}, nil
}

func (d *document) dimensions() (core.Dimensions, error) {
	dims := core.Dimensions{
		Width:  int(math.Round(d.width.value)),
		Height: int(math.Round(d.height.value)),
	}
	if !dims.Valid() {
		return core.Dimensions{}, apperrors.New(apperrors.CategoryInvalidSVG, "svg.size", apperrors.ErrInvalidDimensions)
	}
	return dims, nil
}

// Size returns the intrinsic size declared by an SVG document, falling back
// to the viewBox when width or height is missing or relative.
func Size(data []byte) (core.Dimensions, error) {
	d, err := parse("svg.size", data)
	if err != nil {
		return core.Dimensions{}, err
	}
	return d.dimensions()
}

// Rescale multiplies the declared width by sx and height by sy, keeping any
// unit, and returns the serialised document with its new rounded size.  The
// viewBox is left untouched so content scales with the viewport.
func Rescale(data []byte, sx, sy float64, opts Options) ([]byte, core.Dimensions, error) {
	const op = "svg.rescale"
	if !(sx > 0) || !(sy > 0) || math.IsInf(sx, 0) || math.IsInf(sy, 0) {
		return nil, core.Dimensions{}, apperrors.New(apperrors.CategoryInput, op, apperrors.ErrInvalidDimensions)
	}

	d, err := parse(op, data)
	if err != nil {
		return nil, core.Dimensions{}, err
	}
	d.width.value *= sx
	d.height.value *= sy
	dims, err := d.dimensions()
	if err != nil {
		return nil, core.Dimensions{}, apperrors.New(apperrors.CategoryInput, op, apperrors.ErrInvalidDimensions)
	}
	d.root.CreateAttr("width", d.width.String())
	d.root.CreateAttr("height", d.height.String())

	out, err := d.doc.WriteToBytes()
	if err != nil {
		return nil, core.Dimensions{}, apperrors.New(apperrors.CategoryInvalidSVG, op, err)
	}
	if opts.Minify {
		out, err = minifier(opts.Precision).Bytes(mediaType, out)
		if err != nil {
			return nil, core.Dimensions{}, apperrors.New(apperrors.CategoryInvalidSVG, op, err)
		}
	}
	return out, dims, nil
}

func minifier(precision int) *minify.M {
	m := minify.New()
	m.AddFunc("text/css", css.Minify)
	m.Add(mediaType, &svg.Minifier{Precision: precision})
	return m
}
