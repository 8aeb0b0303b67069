package filter

import (
	"slices"

	"github.com/bastiangx/pickserve/pkg/pattern"
)

// Entry is one row of the display sequence. A separator row carries no item.
type Entry[T any] struct {
	Item      T
	History   bool
	Duplicate bool
	Separator bool
}

// ResultSet is the sorted outcome of one query. It is immutable.
type ResultSet[T comparable] struct {
	query   *pattern.Query
	items   []T
	history map[T]struct{}
	dups    map[T]struct{}
	name    func(T) string
}

// Query returns the query that produced the set.
func (rs *ResultSet[T]) Query() *pattern.Query { return rs.query }

// Items returns a copy of the sorted items.
func (rs *ResultSet[T]) Items() []T { return slices.Clone(rs.items) }

// Len returns the number of items.
func (rs *ResultSet[T]) Len() int { return len(rs.items) }

// Name returns the display name of item.
func (rs *ResultSet[T]) Name(item T) string { return rs.name(item) }

// Contains reports whether item is part of the set.
func (rs *ResultSet[T]) Contains(item T) bool {
	return slices.Contains(rs.items, item)
}

// IsHistory reports whether item was in the selection history when the set
// was sorted.
func (rs *ResultSet[T]) IsHistory(item T) bool {
	_, ok := rs.history[item]
	return ok
}

// IsDuplicate reports whether another item in the set shares item's name.
// Always false before the duplicate pass has run.
func (rs *ResultSet[T]) IsDuplicate(item T) bool {
	_, ok := rs.dups[item]
	return ok
}

// DuplicatesMarked reports whether the duplicate pass has run on this set.
func (rs *ResultSet[T]) DuplicatesMarked() bool {
	return rs.dups != nil
}

// Entries returns the display sequence: items in sort order with a single
// separator placed before the first non-history item that follows a history
// item.
func (rs *ResultSet[T]) Entries() []Entry[T] {
	entries := make([]Entry[T], 0, len(rs.items)+1)
	sawHistory, separated := false, false
	for _, item := range rs.items {
		inHistory := rs.IsHistory(item)
		if inHistory {
			sawHistory = true
		} else if sawHistory && !separated {
			entries = append(entries, Entry[T]{Separator: true})
			separated = true
		}
		entries = append(entries, Entry[T]{
			Item:      item,
			History:   inHistory,
			Duplicate: rs.IsDuplicate(item),
		})
	}
	return entries
}
