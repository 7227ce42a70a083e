//go:build cgo

package main

import (
	imagetools "github.com/Skryldev/image-tools"
	"github.com/Skryldev/image-tools/adapters/vips"
	"github.com/Skryldev/image-tools/config"
)

// useVips routes raster decode, encode and scaling through libvips.
func useVips(proc *imagetools.Processor, cfg config.Config) (func(), error) {
	backend := vips.NewBackend(cfg.Vips, cfg.MaxSurfacePixels)
	backend.SetFallbackScaler(proc.Scaler())
	vips.RegisterVipsBackend(proc.Inner().Registry(), backend)
	proc.SetScaler(backend)
	return backend.Shutdown, nil
}
