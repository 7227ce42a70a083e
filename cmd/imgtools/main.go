// Command imgtools rescales and converts image files with the imagetools
// processor and writes the results to a local directory.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	imagetools "github.com/Skryldev/image-tools"
	"github.com/Skryldev/image-tools/adapters/storage"
	"github.com/Skryldev/image-tools/config"
	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
	"github.com/Skryldev/image-tools/hooks"
	"github.com/Skryldev/image-tools/utils"
)

type flags struct {
	config  string
	env     string
	out     string
	scale   float64
	quality int
	format  string
	width   int
	height  int
	watch   string
}

func main() {
	var f flags
	flag.StringVar(&f.config, "config", "", "YAML config file")
	flag.StringVar(&f.env, "env", "", "dotenv file with IMAGETOOLS_* overrides")
	flag.StringVar(&f.out, "out", "", "output directory (default: local.root_dir)")
	flag.Float64Var(&f.scale, "scale", 0, "scale factor (default: default_scale)")
	flag.IntVar(&f.quality, "quality", -1, "lossy quality 0-100 (default: default_quality)")
	flag.StringVar(&f.format, "format", "", "output format: same, jpeg, png, webp, svg")
	flag.IntVar(&f.width, "width", 0, "explicit output width in pixels")
	flag.IntVar(&f.height, "height", 0, "explicit output height in pixels")
	flag.StringVar(&f.watch, "watch", "", "watch a directory and process new files")
	flag.Parse()

	if err := run(f, flag.Args()); err != nil {
		fmt.Fprintln(os.Stderr, "imgtools:", err)
		os.Exit(1)
	}
}

func run(f flags, files []string) error {
	cfg, err := config.Load(f.config, f.env)
	if err != nil {
		return err
	}
	if f.out != "" {
		cfg.Local.RootDir = f.out
	}

	logger, flush, err := hooks.NewLogger(cfg, os.Stderr)
	if err != nil {
		return err
	}
	defer flush()

	proc, err := imagetools.New(cfg)
	if err != nil {
		return err
	}
	proc.SetLogger(logger)
	metrics := hooks.NewInMemoryMetrics()
	proc.SetMetrics(metrics)
	proc.AddHook(hooks.NewLoggingHook(logger))
	proc.AddHook(hooks.NewMetricsHook(metrics))

	if cfg.Backend == config.BackendVips {
		shutdown, err := useVips(proc, cfg)
		if err != nil {
			return err
		}
		defer shutdown()
	}

	opts, err := options(proc.DefaultOptions(), f)
	if err != nil {
		return err
	}
	store, err := storage.NewLocal(cfg.Local.RootDir, os.FileMode(cfg.Local.Permissions))
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if f.watch != "" {
		return watch(ctx, proc, store, opts, f.watch)
	}
	if len(files) == 0 {
		return fmt.Errorf("no input files")
	}
	return processFiles(ctx, proc, store, opts, files)
}

func options(opts core.ProcessOptions, f flags) (core.ProcessOptions, error) {
	if f.scale != 0 {
		opts.Scale = f.scale
	}
	if f.quality >= 0 {
		opts.Quality = f.quality
	}
	if f.format != "" {
		t, err := core.ParseTarget(f.format)
		if err != nil {
			return opts, err
		}
		opts.Format = t
	}
	opts.Width, opts.Height = f.width, f.height
	return opts, nil
}

func processFiles(ctx context.Context, proc *imagetools.Processor, store *storage.Local, opts core.ProcessOptions, files []string) error {
	sources := make([]*core.Descriptor, 0, len(files))
	for _, path := range files {
		d, err := loadFile(ctx, proc, path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", path, apperrors.Describe(err))
			continue
		}
		sources = append(sources, d)
	}

	results, err := proc.Batch(ctx, sources, opts, func(p imagetools.Progress) {
		fmt.Fprintf(os.Stderr, "\r[%3d%%] %d/%d", p.Percent, p.Done, p.Total)
	})
	fmt.Fprintln(os.Stderr)

	for _, r := range results {
		proc.Release(r.Source)
		if r.Err != nil {
			fmt.Fprintf(os.Stderr, "%s: %s\n", r.Source.Name, apperrors.Describe(r.Err))
			continue
		}
		if serr := save(ctx, store, r.Result); serr != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", r.Result.Name, serr)
		}
		proc.Release(r.Result)
	}
	return err
}

func loadFile(ctx context.Context, proc *imagetools.Processor, path string) (*core.Descriptor, error) {
	fh, err := os.Open(path)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryInput, "open", err)
	}
	defer fh.Close()

	var size int64
	if st, err := fh.Stat(); err == nil {
		size = st.Size()
	}
	return proc.Load(ctx, core.Source{
		Reader:      fh,
		ContentType: core.FormatFromExtension(filepath.Ext(path)).MIME(),
		Name:        filepath.Base(path),
		Size:        size,
	})
}

func save(ctx context.Context, store *storage.Local, d *core.Descriptor) error {
	path, err := store.Save(ctx, d)
	if err != nil {
		return err
	}
	fmt.Printf("%s (%s) %s -> %s\n", d.Name, utils.FormatFileSize(d.Size), d.Dimensions, path)
	return nil
}
