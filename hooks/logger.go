package hooks

import (
	"io"
	"log/slog"

	"github.com/Skryldev/image-tools/config"
	"github.com/Skryldev/image-tools/core"
)

// NewLogger builds the logger selected by cfg.LogFormat: slog text or JSON
// written to w, or a zap production logger.  The returned func flushes it.
func NewLogger(cfg config.Config, w io.Writer) (core.Logger, func() error, error) {
	if cfg.LogFormat == "zap" {
		z, err := NewZapProduction(cfg.LogLevel)
		if err != nil {
			return nil, nil, err
		}
		return z, z.Sync, nil
	}

	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.LogLevel)); err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(w, opts)
	}
	return NewSlogLogger(slog.New(h)), func() error { return nil }, nil
}
