package pipeline_test

import (
	"context"
	"errors"
	"image"
	"image/color"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/image-tools/adapters/encoder"
	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
	"github.com/Skryldev/image-tools/pipeline"
	"github.com/Skryldev/image-tools/vector"
)

func decoded(w, h int) *core.ImageData {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{R: uint8(x), G: uint8(y), B: 200, A: 255})
		}
	}
	return &core.ImageData{
		Image:  img,
		Format: core.FormatPNG,
		Meta:   core.Metadata{Width: w, Height: h, Format: core.FormatPNG},
	}
}

func TestScaleStep_Dimensions(t *testing.T) {
	ctx := context.Background()
	tests := []struct {
		name         string
		step         pipeline.ScaleStep
		w, h         int
		wantW, wantH int
	}{
		{"half", pipeline.ScaleStep{Factor: 0.5}, 800, 600, 400, 300},
		{"identity", pipeline.ScaleStep{Factor: 1}, 120, 80, 120, 80},
		{"round half up", pipeline.ScaleStep{Factor: 0.5}, 41, 21, 21, 11},
		{"quadruple", pipeline.ScaleStep{Factor: 4}, 10, 7, 40, 28},
		{"explicit width", pipeline.ScaleStep{Factor: 3, Width: 50}, 100, 60, 50, 30},
		{"explicit both", pipeline.ScaleStep{Width: 16, Height: 9}, 100, 60, 16, 9},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			out, err := tc.step.Execute(ctx, decoded(tc.w, tc.h))
			require.NoError(t, err)
			b := out.Image.(image.Image).Bounds()
			assert.Equal(t, tc.wantW, b.Dx())
			assert.Equal(t, tc.wantH, b.Dy())
			assert.Equal(t, tc.wantW, out.Meta.Width)
			assert.Equal(t, tc.wantH, out.Meta.Height)
		})
	}
}

func TestScaleStep_RoundsToZero(t *testing.T) {
	_, err := (&pipeline.ScaleStep{Factor: 0.1}).Execute(context.Background(), decoded(4, 4))
	assert.ErrorIs(t, err, apperrors.ErrInvalidDimensions)
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInput))
}

func TestScaleStep_SurfaceLimit(t *testing.T) {
	step := &pipeline.ScaleStep{Factor: 2, Scaler: &pipeline.SurfaceScaler{MaxPixels: 100 * 100}}
	_, err := step.Execute(context.Background(), decoded(60, 60))
	assert.True(t, apperrors.IsCategory(err, apperrors.CategorySurface))
	assert.ErrorIs(t, err, apperrors.ErrSurfaceUnavailable)
}

func TestResamplers(t *testing.T) {
	for _, name := range []string{"nearest", "bilinear", "catmullrom", "lanczos", "mitchell"} {
		t.Run(name, func(t *testing.T) {
			r, ok := pipeline.ResamplerByName(name)
			require.True(t, ok)
			out, err := (&pipeline.SurfaceScaler{Resampler: r}).Scale(context.Background(), decoded(30, 20), core.Dimensions{Width: 15, Height: 10})
			require.NoError(t, err)
			dst := out.Image.(*image.NRGBA)
			assert.Equal(t, image.Rect(0, 0, 15, 10), dst.Bounds())
			assert.Equal(t, uint8(255), dst.NRGBAAt(7, 5).A)
		})
	}
	_, ok := pipeline.ResamplerByName("box")
	assert.False(t, ok)
}

type emptyEncoder struct{}

func (emptyEncoder) CanEncode(core.Format) bool { return true }
func (emptyEncoder) Encode(context.Context, *core.ImageData, core.EncodeOptions) ([]byte, error) {
	return nil, nil
}

func TestEncodeStep_Unsupported(t *testing.T) {
	ctx := context.Background()

	reg := core.NewRegistry()
	_, err := (&pipeline.EncodeStep{Registry: reg}).Execute(ctx, decoded(4, 4))
	assert.True(t, apperrors.IsEncodeUnsupported(err))

	reg.RegisterEncoder(core.FormatPNG, emptyEncoder{})
	_, err = (&pipeline.EncodeStep{Registry: reg}).Execute(ctx, decoded(4, 4))
	assert.True(t, apperrors.IsEncodeUnsupported(err))

	reg.RegisterEncoder(core.FormatPNG, encoder.NewPNG())
	out, err := (&pipeline.EncodeStep{Registry: reg}).Execute(ctx, decoded(4, 4))
	require.NoError(t, err)
	assert.NotEmpty(t, out.Data)
	assert.Equal(t, int64(len(out.Data)), out.Meta.SizeBytes)
}

func TestFormatStep_RejectsUnknown(t *testing.T) {
	_, err := (&pipeline.FormatStep{Format: core.FormatUnknown}).Execute(context.Background(), decoded(1, 1))
	assert.ErrorIs(t, err, apperrors.ErrUnsupportedFormat)
}

func TestVectorRescaleStep(t *testing.T) {
	svg := &core.ImageData{
		Data:   []byte(`<svg xmlns="http://www.w3.org/2000/svg" width="100" height="50"/>`),
		Format: core.FormatSVG,
	}
	out, err := (&pipeline.VectorRescaleStep{Factor: 2, Options: vector.DefaultOptions()}).Execute(context.Background(), svg)
	require.NoError(t, err)
	assert.Equal(t, core.FormatSVG, out.Format)
	assert.Equal(t, 200, out.Meta.Width)
	assert.Equal(t, 100, out.Meta.Height)

	out, err = (&pipeline.VectorRescaleStep{Height: 25}).Execute(context.Background(), svg)
	require.NoError(t, err)
	assert.Equal(t, 50, out.Meta.Width)
	assert.Equal(t, 25, out.Meta.Height)

	_, err = (&pipeline.VectorRescaleStep{Factor: 2}).Execute(context.Background(), &core.ImageData{Data: []byte("<div/>")})
	assert.True(t, apperrors.IsCategory(err, apperrors.CategoryInvalidSVG))
}

type recordingHook struct {
	before, after []string
}

func (h *recordingHook) BeforeStep(_ context.Context, name string, _ *core.ImageData) {
	h.before = append(h.before, name)
}

func (h *recordingHook) AfterStep(_ context.Context, name string, _ *core.ImageData, _ time.Duration, _ error) {
	h.after = append(h.after, name)
}

type failingStep struct{ calls int }

func (s *failingStep) Name() string { return "fail" }
func (s *failingStep) Execute(context.Context, *core.ImageData) (*core.ImageData, error) {
	s.calls++
	return nil, errors.New("boom")
}

func TestPipeline_StopsAtFirstFailure(t *testing.T) {
	hook := &recordingHook{}
	fail := &failingStep{}
	p := pipeline.New().
		Use(&pipeline.ScaleStep{Factor: 0.5}, fail, &pipeline.FormatStep{Format: core.FormatJPEG}).
		AddHook(hook)

	_, timings, err := p.Run(context.Background(), decoded(8, 8))
	require.Error(t, err)
	assert.Equal(t, 1, fail.calls, "steps are never retried")
	assert.Equal(t, []string{"scale", "fail"}, hook.before)
	assert.Equal(t, []string{"scale", "fail"}, hook.after)
	assert.Len(t, timings, 2)
	assert.Len(t, p.Clone().Steps(), 3)
}

func TestPipeline_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, _, err := pipeline.New().Use(&pipeline.FormatStep{Format: core.FormatPNG}).Run(ctx, decoded(2, 2))
	assert.ErrorIs(t, err, context.Canceled)
}
