package config

import (
	"errors"
	"fmt"
	"strings"
)

// Backend selects the raster codec implementation.
type Backend string

const (
	BackendStdlib Backend = "stdlib"
	BackendVips   Backend = "vips"
)

// Resampler names accepted by Config.Resampler.
var Resamplers = []string{"nearest", "bilinear", "catmullrom", "lanczos", "mitchell"}

// Config is the top-level configuration struct.  All fields have safe defaults
// so callers can start with Default() and override only what they need.
type Config struct {
	// Defaults used by callers that do not pass explicit options.
	DefaultQuality int     `yaml:"default_quality"` // 0-100; default 80
	DefaultScale   float64 `yaml:"default_scale"`
	DefaultFormat  string  `yaml:"default_format"` // "same", "png", ...

	// Raster surface.
	Resampler        string `yaml:"resampler"`
	MaxSurfacePixels int64  `yaml:"max_surface_pixels"` // 0 = no limit

	// Streaming / memory limits.
	MaxImageBytes int64 `yaml:"max_image_bytes"` // 0 = no limit
	ChunkSize     int   `yaml:"chunk_size"`      // default 32 KiB

	// Vector path.
	MinifySVG    bool `yaml:"minify_svg"`
	SVGPrecision int  `yaml:"svg_precision"` // significant digits; 0 keeps all

	// Raster backend.
	Backend Backend    `yaml:"backend"`
	Vips    VipsConfig `yaml:"vips"`

	// Output storage.
	Local LocalConfig `yaml:"local"`

	// Logging.
	LogLevel  string `yaml:"log_level"`  // "debug", "info", "warn", "error"
	LogFormat string `yaml:"log_format"` // "json", "text", "zap"
}

// VipsConfig configures the libvips backend.
type VipsConfig struct {
	MaxCacheSize int  `yaml:"max_cache_size"`
	MaxWorkers   int  `yaml:"max_workers"`
	ReportLeaks  bool `yaml:"report_leaks"`
}

// LocalConfig configures the local filesystem storage adapter.
type LocalConfig struct {
	RootDir     string `yaml:"root_dir"`
	Permissions uint32 `yaml:"permissions"` // default 0644
}

// Default returns a Config populated with sensible defaults.
func Default() Config {
	return Config{
		DefaultQuality:   80,
		DefaultScale:     1,
		DefaultFormat:    "same",
		Resampler:        "bilinear",
		MaxSurfacePixels: 16384 * 16384,
		ChunkSize:        32 * 1024,
		MinifySVG:        true,
		Backend:          BackendStdlib,
		Local: LocalConfig{
			RootDir:     "./out",
			Permissions: 0o644,
		},
		LogLevel:  "info",
		LogFormat: "text",
	}
}

// Validate returns an error if the configuration is inconsistent.
func Validate(c Config) error {
	if c.DefaultQuality < 0 || c.DefaultQuality > 100 {
		return errors.New("config: DefaultQuality must be between 0 and 100")
	}
	if c.DefaultScale <= 0 {
		return errors.New("config: DefaultScale must be positive")
	}
	if c.ChunkSize <= 0 {
		return errors.New("config: ChunkSize must be positive")
	}
	if c.MaxSurfacePixels < 0 || c.MaxImageBytes < 0 {
		return errors.New("config: limits must not be negative")
	}
	if c.SVGPrecision < 0 {
		return errors.New("config: SVGPrecision must not be negative")
	}
	if !contains(Resamplers, c.Resampler) {
		return fmt.Errorf("config: unknown Resampler %q (want one of %s)", c.Resampler, strings.Join(Resamplers, ", "))
	}
	switch c.Backend {
	case BackendStdlib, BackendVips:
	default:
		return fmt.Errorf("config: unknown Backend %q", c.Backend)
	}
	switch c.LogFormat {
	case "json", "text", "zap":
	default:
		return fmt.Errorf("config: unknown LogFormat %q", c.LogFormat)
	}
	return nil
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
