package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override key.
const EnvPrefix = "IMAGETOOLS_"

// Load builds a Config from defaults, an optional YAML file, an optional
// .env file and finally the process environment.  Later sources win.
func Load(path, envFile string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("config: read %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("config: parse %s: %w", path, err)
		}
	}

	env := map[string]string{}
	if envFile != "" {
		fileEnv, err := godotenv.Read(envFile)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return cfg, fmt.Errorf("config: read %s: %w", envFile, err)
		}
		for k, v := range fileEnv {
			env[k] = v
		}
	}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok && strings.HasPrefix(k, EnvPrefix) {
			env[k] = v
		}
	}
	if err := ApplyEnv(&cfg, env); err != nil {
		return cfg, err
	}

	return cfg, Validate(cfg)
}

// ApplyEnv overrides cfg fields from IMAGETOOLS_* keys in env.
func ApplyEnv(cfg *Config, env map[string]string) error {
	var firstErr error
	setInt := func(key string, dst *int) {
		if v, ok := env[EnvPrefix+key]; ok {
			n, err := strconv.Atoi(v)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
				return
			}
			*dst = n
		}
	}
	setInt64 := func(key string, dst *int64) {
		if v, ok := env[EnvPrefix+key]; ok {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("config: %s%s: %w", EnvPrefix, key, err)
				return
			}
			*dst = n
		}
	}
	setString := func(key string, dst *string) {
		if v, ok := env[EnvPrefix+key]; ok {
			*dst = v
		}
	}

	setInt("DEFAULT_QUALITY", &cfg.DefaultQuality)
	setString("DEFAULT_FORMAT", &cfg.DefaultFormat)
	if v, ok := env[EnvPrefix+"DEFAULT_SCALE"]; ok {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("config: %sDEFAULT_SCALE: %w", EnvPrefix, err)
		}
		cfg.DefaultScale = f
	}
	setString("RESAMPLER", &cfg.Resampler)
	setInt64("MAX_SURFACE_PIXELS", &cfg.MaxSurfacePixels)
	setInt64("MAX_IMAGE_BYTES", &cfg.MaxImageBytes)
	setInt("CHUNK_SIZE", &cfg.ChunkSize)
	if v, ok := env[EnvPrefix+"MINIFY_SVG"]; ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("config: %sMINIFY_SVG: %w", EnvPrefix, err)
		}
		cfg.MinifySVG = b
	}
	setInt("SVG_PRECISION", &cfg.SVGPrecision)
	if v, ok := env[EnvPrefix+"BACKEND"]; ok {
		cfg.Backend = Backend(v)
	}
	setString("OUTPUT_DIR", &cfg.Local.RootDir)
	setString("LOG_LEVEL", &cfg.LogLevel)
	setString("LOG_FORMAT", &cfg.LogFormat)
	return firstErr
}
