package imagetools_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"strings"
	"sync"
	"testing"

	"github.com/beevik/etree"
	"go.uber.org/multierr"

	imagetools "github.com/Skryldev/image-tools"
	"github.com/Skryldev/image-tools/config"
	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
	"github.com/Skryldev/image-tools/hooks"
)

// ── Test helpers ──────────────────────────────────────────────────────────────

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	return img
}

func newJPEG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, gradient(w, h), &jpeg.Options{Quality: 90}); err != nil {
		t.Fatalf("encode test jpeg: %v", err)
	}
	return buf.Bytes()
}

func newPNG(t testing.TB, w, h int) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, gradient(w, h)); err != nil {
		t.Fatalf("encode test png: %v", err)
	}
	return buf.Bytes()
}

const rectSVG = `<svg xmlns="http://www.w3.org/2000/svg" width="100" height="50" viewBox="0 0 100 50"><rect width="100" height="50" fill="#3366ff"/></svg>`

func newProc(t testing.TB) *imagetools.Processor {
	t.Helper()
	p, err := imagetools.New(imagetools.DefaultConfig())
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return p
}

func load(t testing.TB, p *imagetools.Processor, data []byte, mime, name string) *core.Descriptor {
	t.Helper()
	d, err := p.Load(context.Background(), core.Source{
		Reader:      bytes.NewReader(data),
		ContentType: mime,
		Name:        name,
		Size:        int64(len(data)),
	})
	if err != nil {
		t.Fatalf("Load(%s): %v", name, err)
	}
	return d
}

func decodedSize(t *testing.T, d *core.Descriptor) (int, int) {
	t.Helper()
	cfg, _, err := image.DecodeConfig(bytes.NewReader(d.Content))
	if err != nil {
		t.Fatalf("decode result %s: %v", d.Name, err)
	}
	return cfg.Width, cfg.Height
}

// ── Load ──────────────────────────────────────────────────────────────────────

func TestLoad_TrustsDeclaredMIME(t *testing.T) {
	proc := newProc(t)
	d := load(t, proc, newPNG(t, 30, 20), "image/png", "a.png")
	if d.Format != core.FormatPNG || d.Dimensions != (core.Dimensions{Width: 30, Height: 20}) {
		t.Errorf("got %s %s, want png 30x20", d.Format, d.Dimensions)
	}
	if !strings.HasPrefix(string(d.Handle), "blob:") {
		t.Errorf("handle %q not allocated", d.Handle)
	}

	// A PNG declared as JPEG is taken at its word and fails to probe.
	_, err := proc.Load(context.Background(), core.Source{Reader: bytes.NewReader(newPNG(t, 4, 4)), ContentType: "image/jpeg"})
	if !apperrors.IsCategory(err, apperrors.CategoryDecode) {
		t.Errorf("mislabelled upload: got %v, want decode error", err)
	}
}

func TestLoad_SniffsWithoutMIME(t *testing.T) {
	proc := newProc(t)
	d := load(t, proc, []byte(rectSVG), "", "")
	if d.Format != core.FormatSVG {
		t.Fatalf("format: got %s, want svg", d.Format)
	}
	if d.Name != "image.svg" {
		t.Errorf("name: got %q, want image.svg", d.Name)
	}
	if d.Dimensions != (core.Dimensions{Width: 100, Height: 50}) {
		t.Errorf("dimensions: got %s", d.Dimensions)
	}
}

func TestLoad_SizeLimit(t *testing.T) {
	cfg := imagetools.DefaultConfig()
	cfg.MaxImageBytes = 16
	proc, err := imagetools.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	_, err = proc.Load(context.Background(), core.Source{Reader: bytes.NewReader(newPNG(t, 10, 10)), ContentType: "image/png"})
	if !apperrors.IsCategory(err, apperrors.CategoryInput) {
		t.Errorf("got %v, want input error", err)
	}
}

// ── Process: raster ───────────────────────────────────────────────────────────

func TestProcess_RasterDimensions(t *testing.T) {
	proc := newProc(t)
	tests := []struct {
		w, h         int
		scale        float64
		wantW, wantH int
	}{
		{800, 600, 0.5, 400, 300},
		{640, 480, 1, 640, 480},
		{101, 51, 0.5, 51, 26},
		{10, 10, 2.25, 23, 23},
	}
	for _, tc := range tests {
		src := load(t, proc, newJPEG(t, tc.w, tc.h), "image/jpeg", "photo.jpg")
		out, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: tc.scale, Quality: 80})
		if err != nil {
			t.Fatalf("%dx%d*%v: %v", tc.w, tc.h, tc.scale, err)
		}
		if out.Dimensions != (core.Dimensions{Width: tc.wantW, Height: tc.wantH}) {
			t.Errorf("%dx%d*%v: got %s, want %dx%d", tc.w, tc.h, tc.scale, out.Dimensions, tc.wantW, tc.wantH)
		}
		if w, h := decodedSize(t, out); w != tc.wantW || h != tc.wantH {
			t.Errorf("%dx%d*%v: encoded %dx%d", tc.w, tc.h, tc.scale, w, h)
		}
	}
}

func TestProcess_PNGSameFormatFullSize(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newPNG(t, 1200, 800), "image/png", "diagram.png")

	out, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 1, Quality: 0, Format: imagetools.Same()})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Format != core.FormatPNG || out.Name != "diagram.png" {
		t.Errorf("got %s %q, want png diagram.png", out.Format, out.Name)
	}
	if out.Dimensions != (core.Dimensions{Width: 1200, Height: 800}) {
		t.Errorf("dimensions: got %s, want 1200x800", out.Dimensions)
	}
	if out.Size != int64(len(out.Content)) {
		t.Errorf("size %d does not match content length %d", out.Size, len(out.Content))
	}
}

func TestProcess_PNGIgnoresQuality(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newJPEG(t, 64, 48), "image/jpeg", "x.jpg")

	low, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 0.5, Quality: 0, Format: imagetools.To(imagetools.PNG)})
	if err != nil {
		t.Fatal(err)
	}
	high, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 0.5, Quality: 100, Format: imagetools.To(imagetools.PNG)})
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(low.Content, high.Content) {
		t.Error("PNG output differs between quality 0 and 100")
	}
	if low.Name != "x.png" {
		t.Errorf("name: got %q, want x.png", low.Name)
	}
}

func TestProcess_JPEGExtension(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newPNG(t, 20, 20), "image/png", "icon")
	out, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 1, Quality: 50, Format: imagetools.To(imagetools.JPEG)})
	if err != nil {
		t.Fatal(err)
	}
	if out.Name != "icon.jpeg" {
		t.Errorf("name: got %q, want icon.jpeg", out.Name)
	}
	if out.DataURL()[:23] != "data:image/jpeg;base64," {
		t.Errorf("data url prefix: %q", out.DataURL()[:23])
	}
}

func TestProcess_ExplicitWidth(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newPNG(t, 300, 200), "image/png", "a.png")
	out, err := proc.Process(context.Background(), src, core.ProcessOptions{Width: 150, Quality: 80})
	if err != nil {
		t.Fatal(err)
	}
	if out.Dimensions != (core.Dimensions{Width: 150, Height: 100}) {
		t.Errorf("got %s, want 150x100", out.Dimensions)
	}
}

func TestProcess_SVGToPNG(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, []byte(rectSVG), "image/svg+xml", "logo.svg")
	out, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 2, Format: imagetools.To(imagetools.PNG)})
	if err != nil {
		t.Fatal(err)
	}
	if w, h := decodedSize(t, out); w != 200 || h != 100 {
		t.Errorf("rasterized %dx%d, want 200x100", w, h)
	}
}

// ── Process: vector ───────────────────────────────────────────────────────────

func TestProcess_SVGRescale(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, []byte(rectSVG), "image/svg+xml", "logo.svg")

	out, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 2, Quality: 3})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Format != core.FormatSVG || out.Name != "logo.svg" {
		t.Errorf("got %s %q", out.Format, out.Name)
	}
	if out.Dimensions != (core.Dimensions{Width: 200, Height: 100}) {
		t.Errorf("dimensions: got %s, want 200x100", out.Dimensions)
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromBytes(out.Content); err != nil {
		t.Fatalf("result is not XML: %v", err)
	}
	root := doc.Root()
	if w, h := root.SelectAttrValue("width", ""), root.SelectAttrValue("height", ""); w != "200" || h != "100" {
		t.Errorf("root declares %sx%s, want 200x100", w, h)
	}
}

func TestProcess_InvalidSVG(t *testing.T) {
	proc := newProc(t)
	src := &core.Descriptor{Name: "bad.svg", Format: core.FormatSVG, Content: []byte(`<html><body/></html>`)}
	out, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 2})
	if out != nil {
		t.Error("a failed run must not return a descriptor")
	}
	if !apperrors.IsCategory(err, apperrors.CategoryInvalidSVG) {
		t.Errorf("got %v, want invalid_svg", err)
	}
}

func TestProcess_RasterToSVGRejected(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newPNG(t, 8, 8), "image/png", "a.png")
	_, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 1, Format: imagetools.To(imagetools.SVG)})
	if !apperrors.IsCategory(err, apperrors.CategoryInvalidSVG) {
		t.Errorf("got %v, want invalid_svg", err)
	}
}

// ── Process: failures ─────────────────────────────────────────────────────────

func TestProcess_Failures(t *testing.T) {
	proc := newProc(t)
	small := load(t, proc, newPNG(t, 4, 4), "image/png", "small.png")

	tests := []struct {
		name string
		src  *core.Descriptor
		opts core.ProcessOptions
		cat  apperrors.Category
	}{
		{"rounds to zero", small, core.ProcessOptions{Scale: 0.1}, apperrors.CategoryInput},
		{"zero scale", small, core.ProcessOptions{}, apperrors.CategoryInput},
		{"negative scale", small, core.ProcessOptions{Scale: -1}, apperrors.CategoryInput},
		{"quality out of range", small, core.ProcessOptions{Scale: 1, Quality: 101}, apperrors.CategoryInput},
		{"corrupt raster", &core.Descriptor{Name: "x.png", Format: core.FormatPNG, Content: []byte("nope")}, core.ProcessOptions{Scale: 1}, apperrors.CategoryDecode},
		{"unknown format", &core.Descriptor{Name: "x", Format: core.FormatUnknown, Content: []byte("nope")}, core.ProcessOptions{Scale: 1}, apperrors.CategoryDecode},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := proc.Process(context.Background(), tc.src, tc.opts)
			if out != nil {
				t.Error("unexpected descriptor")
			}
			if !apperrors.IsCategory(err, tc.cat) {
				t.Errorf("got %v, want %s", err, tc.cat)
			}
		})
	}
}

func TestProcess_SurfaceLimit(t *testing.T) {
	cfg := imagetools.DefaultConfig()
	cfg.MaxSurfacePixels = 100 * 100
	proc, err := imagetools.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	src := load(t, proc, newPNG(t, 80, 80), "image/png", "a.png")
	_, err = proc.Process(context.Background(), src, core.ProcessOptions{Scale: 2})
	if !apperrors.IsCategory(err, apperrors.CategorySurface) {
		t.Errorf("got %v, want surface error", err)
	}
}

type emptyEncoder struct{}

func (emptyEncoder) CanEncode(core.Format) bool { return true }
func (emptyEncoder) Encode(context.Context, *core.ImageData, core.EncodeOptions) ([]byte, error) {
	return nil, nil
}

func TestProcess_EncodeUnsupported(t *testing.T) {
	proc := newProc(t)
	proc.RegisterEncoder(core.FormatWebP, emptyEncoder{})
	src := load(t, proc, newPNG(t, 10, 10), "image/png", "a.png")

	_, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 1, Quality: 80, Format: imagetools.To(imagetools.WebP)})
	if !apperrors.IsEncodeUnsupported(err) {
		t.Errorf("got %v, want encode unsupported", err)
	}
	if got := apperrors.Describe(err); got != "this output format is not supported here" {
		t.Errorf("Describe: %q", got)
	}
}

func TestProcess_ReleasedHandle(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newPNG(t, 10, 10), "image/png", "a.png")
	if !proc.Release(src) {
		t.Fatal("Release reported the handle as already revoked")
	}
	_, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 1})
	if !apperrors.IsCategory(err, apperrors.CategoryDecode) {
		t.Errorf("got %v, want decode error", err)
	}
}

func TestProcess_ContextCancel(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newJPEG(t, 20, 20), "image/jpeg", "a.jpg")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := proc.Process(ctx, src, core.ProcessOptions{Scale: 1}); err == nil {
		t.Error("expected context cancellation error, got nil")
	}
}

// ── Handles ───────────────────────────────────────────────────────────────────

func TestHandles_CallerReleases(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newPNG(t, 10, 10), "image/png", "a.png")
	out, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 1})
	if err != nil {
		t.Fatal(err)
	}
	if n := proc.Handles().Len(); n != 2 {
		t.Fatalf("live handles: got %d, want 2", n)
	}
	data, err := proc.Open(out)
	if err != nil || !bytes.Equal(data, out.Content) {
		t.Fatalf("Open: %v", err)
	}
	proc.Release(out)
	proc.Release(src)
	if n := proc.Handles().Len(); n != 0 {
		t.Errorf("live handles after release: %d", n)
	}
}

// ── Batch ─────────────────────────────────────────────────────────────────────

func TestBatch_ProgressAndPartialFailure(t *testing.T) {
	proc := newProc(t)
	sources := []*core.Descriptor{
		load(t, proc, newPNG(t, 20, 10), "image/png", "one.png"),
		{Name: "broken.png", Format: core.FormatPNG, Content: []byte("garbage")},
		load(t, proc, newJPEG(t, 40, 40), "image/jpeg", "three.jpg"),
	}

	var percents []int
	results, err := proc.Batch(context.Background(), sources, core.ProcessOptions{Scale: 0.5, Quality: 70},
		func(p imagetools.Progress) { percents = append(percents, p.Percent) })

	if want := []int{33, 67, 100}; len(percents) != 3 || percents[0] != want[0] || percents[1] != want[1] || percents[2] != want[2] {
		t.Errorf("progress: got %v, want %v", percents, want)
	}
	if len(results) != 3 {
		t.Fatalf("results: got %d, want 3", len(results))
	}
	if results[0].Err != nil || results[2].Err != nil {
		t.Errorf("unexpected failures: %v, %v", results[0].Err, results[2].Err)
	}
	if results[1].Err == nil || results[1].Result != nil {
		t.Error("broken item should fail without a result")
	}
	if errs := multierr.Errors(err); len(errs) != 1 || !strings.Contains(errs[0].Error(), "broken.png") {
		t.Errorf("combined error: %v", err)
	}
	if results[2].Result.Dimensions != (core.Dimensions{Width: 20, Height: 20}) {
		t.Errorf("third item: %s", results[2].Result.Dimensions)
	}
}

func TestBatch_StopsBetweenItemsOnCancel(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newPNG(t, 10, 10), "image/png", "a.png")

	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	results, err := proc.Batch(ctx, []*core.Descriptor{src, src, src}, core.ProcessOptions{Scale: 1},
		func(imagetools.Progress) {
			calls++
			cancel()
		})
	if len(results) != 1 || results[0].Err != nil {
		t.Fatalf("in-flight item should complete: %+v", results)
	}
	if calls != 1 || err == nil {
		t.Errorf("calls=%d err=%v", calls, err)
	}
}

// ── Concurrency ───────────────────────────────────────────────────────────────

func TestProcess_ConcurrentSafety(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newJPEG(t, 200, 200), "image/jpeg", "a.jpg")

	const goroutines = 20
	var wg sync.WaitGroup
	errs := make([]error, goroutines)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			_, errs[idx] = proc.Process(context.Background(), src, core.ProcessOptions{Scale: 0.5, Quality: 80})
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Errorf("goroutine %d: %v", i, err)
		}
	}
	if processed, _ := proc.Stats(); processed != goroutines {
		t.Errorf("processed: got %d, want %d", processed, goroutines)
	}
}

// ── Hooks / Metrics ───────────────────────────────────────────────────────────

func TestMetricsHook(t *testing.T) {
	m := hooks.NewInMemoryMetrics()
	proc := newProc(t)
	proc.AddHook(hooks.NewMetricsHook(m))
	proc.SetMetrics(m)

	src := load(t, proc, newJPEG(t, 100, 100), "image/jpeg", "a.jpg")
	if _, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 0.5, Quality: 80}); err != nil {
		t.Fatalf("Process: %v", err)
	}

	snap := m.Snapshot()
	for _, step := range []string{"decode", "scale", "format", "encode", "run"} {
		if snap.StepCalls[step] == 0 {
			t.Errorf("%s step was not recorded in metrics", step)
		}
	}
}

// ── Custom step ───────────────────────────────────────────────────────────────

// invertStep is a custom pipeline step for testing extensibility.
type invertStep struct{}

func (invertStep) Name() string { return "invert" }
func (invertStep) Execute(_ context.Context, img *core.ImageData) (*core.ImageData, error) {
	src := img.Image.(image.Image)
	b := src.Bounds()
	dst := image.NewNRGBA(b)
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			c := color.NRGBAModel.Convert(src.At(x, y)).(color.NRGBA)
			dst.SetNRGBA(x, y, color.NRGBA{R: 255 - c.R, G: 255 - c.G, B: 255 - c.B, A: c.A})
		}
	}
	out := *img
	out.Image = dst
	return &out, nil
}

func TestCustomPipeline(t *testing.T) {
	proc := newProc(t)
	reg := proc.Inner().Registry()
	raw := newPNG(t, 16, 16)

	pl := proc.NewPipeline(
		imagetools.DecodeWith(reg),
		imagetools.Scale(1, proc.Scaler()),
		invertStep{},
		imagetools.ConvertFormat(imagetools.PNG),
		imagetools.EncodeWith(reg, core.EncodeOptions{}),
	)
	out, _, err := pl.Run(context.Background(), &core.ImageData{Data: raw, Format: core.FormatPNG})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	decoded, err := png.Decode(bytes.NewReader(out.Data))
	if err != nil {
		t.Fatal(err)
	}
	r, _, _, _ := decoded.At(0, 0).RGBA()
	if r>>8 != 255 {
		t.Errorf("pixel not inverted: r=%d", r>>8)
	}
}

// ── Config ────────────────────────────────────────────────────────────────────

func TestNew_RejectsBadConfig(t *testing.T) {
	cfg := config.Default()
	cfg.DefaultQuality = 101
	if _, err := imagetools.New(cfg); !apperrors.IsCategory(err, apperrors.CategoryConfig) {
		t.Errorf("quality: got %v, want config error", err)
	}

	cfg = config.Default()
	cfg.DefaultFormat = "gif"
	if _, err := imagetools.New(cfg); !apperrors.IsCategory(err, apperrors.CategoryConfig) {
		t.Errorf("format: got %v, want config error", err)
	}
}

func TestDefaultOptions(t *testing.T) {
	cfg := config.Default()
	cfg.DefaultFormat = "webp"
	cfg.DefaultQuality = 65
	proc, err := imagetools.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	opts := proc.DefaultOptions()
	if opts.Quality != 65 || opts.Scale != 1 || opts.Format != imagetools.To(imagetools.WebP) {
		t.Errorf("DefaultOptions: %+v", opts)
	}
}

// ── Benchmarks ────────────────────────────────────────────────────────────────

func BenchmarkProcess_JPEG_Half(b *testing.B) {
	proc := newProc(b)
	src := load(b, proc, newJPEG(b, 1920, 1080), "image/jpeg", "bench.jpg")
	opts := core.ProcessOptions{Scale: 0.5, Quality: 80}

	b.ReportAllocs()
	b.SetBytes(src.Size)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		out, err := proc.Process(context.Background(), src, opts)
		if err != nil {
			b.Fatal(err)
		}
		proc.Release(out)
	}
}
