// Package history keeps a bounded, most-recently-used record of selected items.
package history

import (
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
	"sync"

	"github.com/bastiangx/pickserve/internal/utils"
	"github.com/charmbracelet/log"
	"github.com/vmihailenco/msgpack/v5"
)

// DefaultCapacity is the number of selections remembered when no capacity is given.
const DefaultCapacity = 60

// History is an access-ordered set of at most Cap items. The least recently
// accessed item is evicted first. It is safe for concurrent use.
type History[T comparable] struct {
	mu       sync.RWMutex
	items    []T // oldest first
	capacity int
}

// New creates a history holding at most capacity items. A capacity below one
// selects DefaultCapacity.
func New[T comparable](capacity int) *History[T] {
	if capacity < 1 {
		capacity = DefaultCapacity
	}
	return &History[T]{
		items:    make([]T, 0, capacity),
		capacity: capacity,
	}
}

// Accessed records item as the most recent selection.
func (h *History[T]) Accessed(item T) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.accessed(item)
}

func (h *History[T]) accessed(item T) {
	if i := slices.Index(h.items, item); i >= 0 {
		h.items = slices.Delete(h.items, i, i+1)
	}
	h.items = append(h.items, item)
	if over := len(h.items) - h.capacity; over > 0 {
		h.items = slices.Delete(h.items, 0, over)
	}
}

// Contains reports whether item is in the history.
func (h *History[T]) Contains(item T) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Contains(h.items, item)
}

// Remove deletes item and reports whether it was present.
func (h *History[T]) Remove(item T) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	i := slices.Index(h.items, item)
	if i < 0 {
		return false
	}
	h.items = slices.Delete(h.items, i, i+1)
	return true
}

// Items returns a copy of the history, oldest first.
func (h *History[T]) Items() []T {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return slices.Clone(h.items)
}

// Len returns the number of remembered items.
func (h *History[T]) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.items)
}

// Cap returns the maximum number of remembered items.
func (h *History[T]) Cap() int {
	return h.capacity
}

// Clear forgets everything.
func (h *History[T]) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = h.items[:0]
}

// Save writes the history to w as a msgpack array, oldest first.
func (h *History[T]) Save(w io.Writer) error {
	items := h.Items()
	if err := msgpack.NewEncoder(w).Encode(items); err != nil {
		return fmt.Errorf("failed to encode history: %w", err)
	}
	return nil
}

// Load replaces the history with the items read from r. When r holds more
// items than the capacity, the oldest are dropped.
func (h *History[T]) Load(r io.Reader) error {
	var items []T
	if err := msgpack.NewDecoder(r).Decode(&items); err != nil {
		return fmt.Errorf("failed to decode history: %w", err)
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.items = h.items[:0]
	for _, item := range items {
		h.accessed(item)
	}
	return nil
}

// SaveFile writes the history to path, creating parent directories. The
// previous file is replaced only once the new one is complete.
func (h *History[T]) SaveFile(path string) error {
	if err := utils.WriteFileAtomic(path, h.Save); err != nil {
		return err
	}
	log.Debugf("Saved %d history items to %s", h.Len(), path)
	return nil
}

// LoadFile reads the history from path. A missing file leaves the history
// empty and is not an error.
func (h *History[T]) LoadFile(path string) error {
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		log.Debugf("No history file at %s", path)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to open history file: %w", err)
	}
	defer f.Close()

	if err := h.Load(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	log.Debugf("Loaded %d history items from %s", h.Len(), path)
	return nil
}
