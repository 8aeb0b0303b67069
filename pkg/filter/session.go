// Package filter narrows a candidate set down to the items matching a typed query.
//
// A Session remembers the last completed query and its sorted matches. When
// the next query can only match a subset of those (the user kept typing), the
// previous matches are re-filtered instead of enumerating the source again.
// Results are ordered with an exact name match first, then items from the
// selection history, then by the caller's comparator.
package filter

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync/atomic"
	"time"

	"github.com/bastiangx/pickserve/internal/logger"
	"github.com/bastiangx/pickserve/pkg/history"
	"github.com/bastiangx/pickserve/pkg/pattern"
	"github.com/charmbracelet/log"
)

// ErrCancelled is returned when a search is abandoned because its context
// was cancelled. It is never a failure.
var ErrCancelled = errors.New("search cancelled")

// snapshot is the last completed (query, sorted items) pair. It is replaced
// as a whole, never modified.
type snapshot[T comparable] struct {
	query *pattern.Query
	items []T
}

// Session holds the incremental filtering state of one selection dialog.
// Submit is meant to be called by one goroutine at a time; history updates
// and Last may be called concurrently with it.
type Session[T comparable] struct {
	name       func(T) string
	history    *history.History[T]
	consistent func(T) bool
	progress   Progress
	log        *log.Logger

	last atomic.Pointer[snapshot[T]]
}

// Option configures a Session.
type Option[T comparable] func(*Session[T])

// WithHistory sets the selection history used for ordering.
func WithHistory[T comparable](h *history.History[T]) Option[T] {
	return func(s *Session[T]) { s.history = h }
}

// WithConsistency sets a check that history items must pass to be shown.
// Items failing it are removed from the history during the next full scan.
func WithConsistency[T comparable](fn func(T) bool) Option[T] {
	return func(s *Session[T]) { s.consistent = fn }
}

// WithProgress sets the progress sink handed to the source.
func WithProgress[T comparable](p Progress) Option[T] {
	return func(s *Session[T]) { s.progress = p }
}

// WithLogger sets the session logger.
func WithLogger[T comparable](l *log.Logger) Option[T] {
	return func(s *Session[T]) { s.log = l }
}

// NewSession creates a session. name returns the display name matched
// against queries and must not be nil.
func NewSession[T comparable](name func(T) string, opts ...Option[T]) *Session[T] {
	if name == nil {
		panic("filter: NewSession called with nil name func")
	}
	s := &Session[T]{name: name}
	for _, opt := range opts {
		opt(s)
	}
	if s.history == nil {
		s.history = history.New[T](history.DefaultCapacity)
	}
	if s.progress == nil {
		s.progress = NopProgress{}
	}
	if s.log == nil {
		s.log = logger.New("session")
	}
	return s
}

// History returns the session's selection history.
func (s *Session[T]) History() *history.History[T] {
	return s.history
}

// Submit runs q and returns the sorted matches.
//
// When the last completed query is more general than q, only its results are
// re-tested and src is not called. Otherwise the history and then src are
// scanned. The new (q, items) pair replaces the previous one only when the
// search completes; on cancellation ErrCancelled is returned and on a source
// failure a wrapped error, both leaving the previous pair in place.
func (s *Session[T]) Submit(ctx context.Context, q *pattern.Query, src Enumerator[T], cmp Comparator[T]) (*ResultSet[T], error) {
	if ctx.Err() != nil {
		return nil, ErrCancelled
	}
	start := time.Now()

	var (
		items []T
		err   error
		fast  bool
	)
	if last := s.last.Load(); last != nil && last.query.IsMoreGeneralThan(q) {
		fast = true
		items, err = s.refilter(ctx, q, last.items)
	} else {
		items, err = s.scan(ctx, q, src)
	}
	if err != nil {
		return nil, err
	}

	members := s.historySet()
	slices.SortStableFunc(items, s.comparator(q, members, cmp))
	s.last.Store(&snapshot[T]{query: q, items: items})

	s.log.Debugf("query %s: %d matches in %v (fast=%v)", q, len(items), time.Since(start), fast)
	return &ResultSet[T]{
		query:   q,
		items:   items,
		history: members,
		name:    s.name,
	}, nil
}

// refilter re-tests the previous sorted items against q.
func (s *Session[T]) refilter(ctx context.Context, q *pattern.Query, prev []T) ([]T, error) {
	items := make([]T, 0, len(prev))
	for _, item := range prev {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		if q.Matches(s.name(item)) {
			items = append(items, item)
		}
	}
	return items, nil
}

// scan collects matching history items followed by matching source items.
func (s *Session[T]) scan(ctx context.Context, q *pattern.Query, src Enumerator[T]) ([]T, error) {
	seen := make(map[T]struct{})
	var items []T

	for _, item := range s.history.Items() {
		if s.consistent != nil && !s.consistent(item) {
			s.history.Remove(item)
			s.log.Debugf("dropped stale history item %q", s.name(item))
			continue
		}
		if q.Matches(s.name(item)) {
			seen[item] = struct{}{}
			items = append(items, item)
		}
	}

	if src == nil {
		return items, nil
	}

	cancelled := false
	err := src.Enumerate(ctx, func(item T) bool {
		if ctx.Err() != nil {
			cancelled = true
			return false
		}
		if _, dup := seen[item]; dup {
			return true
		}
		if q.Matches(s.name(item)) {
			seen[item] = struct{}{}
			items = append(items, item)
		}
		return true
	}, s.progress)

	if cancelled || ctx.Err() != nil {
		return nil, ErrCancelled
	}
	if err != nil {
		return nil, fmt.Errorf("failed to enumerate candidates: %w", err)
	}
	return items, nil
}

func (s *Session[T]) historySet() map[T]struct{} {
	items := s.history.Items()
	members := make(map[T]struct{}, len(items))
	for _, item := range items {
		members[item] = struct{}{}
	}
	return members
}

// comparator orders an exact name match first, then history members, then
// by cmp.
func (s *Session[T]) comparator(q *pattern.Query, members map[T]struct{}, cmp Comparator[T]) func(a, b T) int {
	text := q.Text()
	return func(a, b T) int {
		if text != "" {
			ae, be := s.name(a) == text, s.name(b) == text
			if ae != be {
				if ae {
					return -1
				}
				return 1
			}
		}
		_, ah := members[a]
		_, bh := members[b]
		if ah != bh {
			if ah {
				return -1
			}
			return 1
		}
		if cmp != nil {
			return cmp(a, b)
		}
		return 0
	}
}

// MarkDuplicates returns a copy of rs in which every item sharing its
// display name with another item is flagged.
func (s *Session[T]) MarkDuplicates(ctx context.Context, rs *ResultSet[T]) (*ResultSet[T], error) {
	byName := make(map[string]T, len(rs.items))
	dups := make(map[T]struct{})
	for _, item := range rs.items {
		if ctx.Err() != nil {
			return nil, ErrCancelled
		}
		name := s.name(item)
		if prev, ok := byName[name]; ok && prev != item {
			dups[prev] = struct{}{}
			dups[item] = struct{}{}
		}
		byName[name] = item
	}

	marked := *rs
	marked.dups = dups
	return &marked, nil
}

// Last returns the last completed query and a copy of its sorted items.
func (s *Session[T]) Last() (*pattern.Query, []T) {
	last := s.last.Load()
	if last == nil {
		return nil, nil
	}
	return last.query, slices.Clone(last.items)
}

// Reset forgets the last completed query so the next Submit scans the source.
func (s *Session[T]) Reset() {
	s.last.Store(nil)
}

// Accessed records item as selected.
func (s *Session[T]) Accessed(item T) {
	s.history.Accessed(item)
}

// Forget removes item from the history and from the cached results, and
// reports whether it was in the history.
func (s *Session[T]) Forget(item T) bool {
	removed := s.history.Remove(item)
	for {
		last := s.last.Load()
		if last == nil {
			break
		}
		i := slices.Index(last.items, item)
		if i < 0 {
			break
		}
		next := &snapshot[T]{
			query: last.query,
			items: slices.Delete(slices.Clone(last.items), i, i+1),
		}
		if s.last.CompareAndSwap(last, next) {
			break
		}
	}
	return removed
}
