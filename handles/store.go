// Package handles allocates revocable references to in-memory image bytes.
package handles

import (
	"sync"

	"github.com/google/uuid"

	"github.com/Skryldev/image-tools/core"
	apperrors "github.com/Skryldev/image-tools/errors"
)

// Prefix starts every handle allocated by a Store.
const Prefix = "blob:image-tools/"

type entry struct {
	data   []byte
	format core.Format
}

// Store maps handles to content.  The zero value is not usable; call NewStore.
type Store struct {
	mu      sync.RWMutex
	entries map[core.Handle]entry
}

// NewStore returns an empty Store.
func NewStore() *Store {
	return &Store{entries: make(map[core.Handle]entry)}
}

// Allocate registers data under a fresh handle.  data is not copied and must
// not be mutated afterwards.
func (s *Store) Allocate(data []byte, format core.Format) core.Handle {
	h := core.Handle(Prefix + uuid.NewString())
	s.mu.Lock()
	s.entries[h] = entry{data: data, format: format}
	s.mu.Unlock()
	return h
}

// Open returns the content behind h.
func (s *Store) Open(h core.Handle) ([]byte, error) {
	s.mu.RLock()
	e, ok := s.entries[h]
	s.mu.RUnlock()
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, "handle.open", apperrors.ErrHandleNotFound)
	}
	return e.data, nil
}

// Format returns the format recorded for h.
func (s *Store) Format(h core.Handle) (core.Format, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[h]
	return e.format, ok
}

// Release revokes h.  It reports whether h was live; releasing twice is a no-op.
func (s *Store) Release(h core.Handle) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[h]; !ok {
		return false
	}
	delete(s.entries, h)
	return true
}

// Len returns the number of live handles.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
