//go:build !cgo

package main

import (
	"fmt"

	imagetools "github.com/Skryldev/image-tools"
	"github.com/Skryldev/image-tools/config"
	apperrors "github.com/Skryldev/image-tools/errors"
)

func useVips(*imagetools.Processor, config.Config) (func(), error) {
	return nil, apperrors.New(apperrors.CategoryConfig, "backend",
		fmt.Errorf("backend %q needs a cgo build", config.BackendVips))
}
