package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	imagetools "github.com/Skryldev/image-tools"
	"github.com/Skryldev/image-tools/adapters/storage"
	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
)

// settle is how long a new file must stay quiet before it is read.
const settle = 250 * time.Millisecond

// watch processes every image file created in dir until ctx is done.  Files
// whose extension maps to no supported format are ignored.
func watch(ctx context.Context, proc *imagetools.Processor, store *storage.Local, opts core.ProcessOptions, dir string) error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()
	if err := w.Add(dir); err != nil {
		return fmt.Errorf("watch %s: %w", dir, err)
	}

	// Never pick up our own output when it lands in the watched directory.
	outDir, _ := filepath.Abs(store.Root())
	pending := make(map[string]*time.Timer)
	ready := make(chan string)

	for {
		select {
		case <-ctx.Done():
			for _, t := range pending {
				t.Stop()
			}
			return nil

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				continue
			}
			if core.FormatFromExtension(filepath.Ext(ev.Name)) == core.FormatUnknown {
				continue
			}
			if abs, _ := filepath.Abs(filepath.Dir(ev.Name)); abs == outDir {
				continue
			}
			name := ev.Name
			if t, ok := pending[name]; ok {
				t.Reset(settle)
				continue
			}
			pending[name] = time.AfterFunc(settle, func() {
				select {
				case ready <- name:
				case <-ctx.Done():
				}
			})

		case name := <-ready:
			delete(pending, name)
			processOne(ctx, proc, store, opts, name)

		case err, ok := <-w.Errors:
			if !ok {
				return nil
			}
			fmt.Fprintln(os.Stderr, "watch:", err)
		}
	}
}

func processOne(ctx context.Context, proc *imagetools.Processor, store *storage.Local, opts core.ProcessOptions, path string) {
	src, err := loadFile(ctx, proc, path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", path, apperrors.Describe(err))
		return
	}
	defer proc.Release(src)

	out, err := proc.Process(ctx, src, opts)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %s\n", src.Name, apperrors.Describe(err))
		return
	}
	defer proc.Release(out)
	if err := save(ctx, store, out); err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", out.Name, err)
	}
}
