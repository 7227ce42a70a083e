//go:build cgo

package imagetools_test

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"golang.org/x/image/webp"

	imagetools "github.com/Skryldev/image-tools"
	"github.com/Skryldev/image-tools/core"
)

func TestProcess_JPEGToWebP(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newJPEG(t, 800, 600), "image/jpeg", "holiday.jpg")

	out, err := proc.Process(context.Background(), src, core.ProcessOptions{
		Scale:   0.5,
		Quality: 80,
		Format:  imagetools.To(imagetools.WebP),
	})
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if out.Format != core.FormatWebP || !strings.HasSuffix(out.Name, ".webp") {
		t.Errorf("got %s %q, want webp *.webp", out.Format, out.Name)
	}
	cfg, err := webp.DecodeConfig(bytes.NewReader(out.Content))
	if err != nil {
		t.Fatalf("result is not WebP: %v", err)
	}
	if cfg.Width != 400 || cfg.Height != 300 {
		t.Errorf("encoded %dx%d, want 400x300", cfg.Width, cfg.Height)
	}
	if out.Dimensions != (core.Dimensions{Width: 400, Height: 300}) {
		t.Errorf("descriptor dimensions: %s", out.Dimensions)
	}
}

func TestProcess_WebPRoundTrip(t *testing.T) {
	proc := newProc(t)
	src := load(t, proc, newPNG(t, 64, 64), "image/png", "a.png")
	webpOut, err := proc.Process(context.Background(), src, core.ProcessOptions{Scale: 1, Quality: 90, Format: imagetools.To(imagetools.WebP)})
	if err != nil {
		t.Fatal(err)
	}

	back, err := proc.Process(context.Background(), webpOut, core.ProcessOptions{Scale: 0.5, Format: imagetools.To(imagetools.PNG)})
	if err != nil {
		t.Fatalf("decode webp output: %v", err)
	}
	if back.Dimensions != (core.Dimensions{Width: 32, Height: 32}) || back.Name != "a.png" {
		t.Errorf("got %s %q", back.Dimensions, back.Name)
	}
}
