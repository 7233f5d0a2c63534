// Package latestindex implements the id -> latest-location map described in
// spec.md §4.D: the structure every read path consults first to find where
// the current version of a memory or relationship actually lives.
package latestindex

import (
	"sort"

	"github.com/calvinalkan/memstore/pkg/record"
	"github.com/calvinalkan/memstore/pkg/segment"
)

// Entry is what LatestIndex tracks per id.
type Entry struct {
	Location    segment.Location
	Version     int
	Timestamp   int64
	Deleted     bool
	ContentHash string
}

// Index maps ids to their latest Entry, split by record kind so memory and
// relationship ids never collide even if equal.
type Index struct {
	memories      map[string]Entry
	relationships map[string]Entry
	dirty         bool
}

// New returns an empty Index.
func New() *Index {
	return &Index{
		memories:      make(map[string]Entry),
		relationships: make(map[string]Entry),
	}
}

func (idx *Index) table(kind record.Kind) map[string]Entry {
	if kind == record.KindRelationship {
		return idx.relationships
	}

	return idx.memories
}

// Update records entry for id under kind, but only if entry.Version is
// greater than or equal to any existing entry's version — equal-version
// updates are accepted deliberately, so that re-pointing a record's
// location from the WAL to a segment after rotation (same version, new
// location) always takes effect.
func (idx *Index) Update(kind record.Kind, id string, entry Entry) {
	table := idx.table(kind)

	if existing, ok := table[id]; ok && entry.Version < existing.Version {
		return
	}

	table[id] = entry
	idx.dirty = true
}

// Get returns the latest entry for id, if any.
func (idx *Index) Get(kind record.Kind, id string) (Entry, bool) {
	entry, ok := idx.table(kind)[id]

	return entry, ok
}

// Has reports whether id has any entry under kind.
func (idx *Index) Has(kind record.Kind, id string) bool {
	_, ok := idx.table(kind)[id]

	return ok
}

// Count returns the number of ids tracked under kind, optionally including
// soft-deleted ones.
func (idx *Index) Count(kind record.Kind, includeDeleted bool) int {
	if includeDeleted {
		return len(idx.table(kind))
	}

	n := 0

	for _, e := range idx.table(kind) {
		if !e.Deleted {
			n++
		}
	}

	return n
}

// Iterate calls yield for every id under kind in ascending id order,
// optionally including soft-deleted entries. Stops early if yield returns
// false.
func (idx *Index) Iterate(kind record.Kind, includeDeleted bool, yield func(id string, entry Entry) bool) {
	table := idx.table(kind)

	ids := make([]string, 0, len(table))
	for id := range table {
		ids = append(ids, id)
	}

	sort.Strings(ids)

	for _, id := range ids {
		entry := table[id]
		if !includeDeleted && entry.Deleted {
			continue
		}

		if !yield(id, entry) {
			return
		}
	}
}

// Dirty reports whether the index has unpersisted mutations.
func (idx *Index) Dirty() bool { return idx.dirty }

// ClearDirty resets the dirty flag, typically after a successful Save.
func (idx *Index) ClearDirty() { idx.dirty = false }
