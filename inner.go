package imagetools

import (
	"github.com/Skryldev/image-tools/core"
	"github.com/Skryldev/image-tools/handles"
)

// Inner exposes the underlying core.Processor for advanced use (e.g., direct
// registry access in tests or backend registration).  Prefer the high-level
// API for normal usage.
func (p *Processor) Inner() *core.Processor { return p.inner }

// Handles exposes the handle store backing every descriptor this processor
// has produced.
func (p *Processor) Handles() *handles.Store { return p.handles }
