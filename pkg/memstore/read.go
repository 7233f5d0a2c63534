package memstore

import (
	"fmt"
	"strconv"
	"time"

	"github.com/calvinalkan/memstore/pkg/latestindex"
	"github.com/calvinalkan/memstore/pkg/record"
)

// resolveLocked resolves id's latest location to its record: a WAL scan for
// the entry matching kind, id and the indexed version if the location is
// still in the WAL (WAL offsets are not compared, so a fork's copied index
// stays valid under its own WAL header), or a direct segment read_at otherwise.
func (inst *instance) resolveLocked(kind record.Kind, id string) (*record.Record, error) {
	entry, ok := inst.latest.Get(kind, id)
	if !ok {
		return nil, fmt.Errorf("%w: %s %q", ErrIDNotFound, kind, id)
	}

	if entry.Location.InWAL() {
		for _, e := range inst.wal.Entries() {
			if e.Record.Kind == kind && e.Record.ID() == id && e.Record.StoreVersion() == entry.Version {
				return e.Record, nil
			}
		}

		return nil, fmt.Errorf("%w: %s %q (version %d not found in wal)", ErrIDNotFound, kind, id, entry.Version)
	}

	rec, err := inst.segments.ReadAt(entry.Location.SegmentNumber, entry.Location.Offset)
	if err != nil {
		return nil, fmt.Errorf("memstore: read %s %q: %w", kind, id, err)
	}

	return rec, nil
}

// GetMemory resolves memoryID to its current version via the latest-location
// index.
func (s *Store) GetMemory(storeID, memoryID string) (*record.Memory, error) {
	inst, err := s.getInstance(storeID)
	if err != nil {
		return nil, err
	}

	inst.mu.RLock()
	defer inst.mu.RUnlock()

	rec, err := inst.resolveLocked(record.KindMemory, memoryID)
	if err != nil {
		return nil, err
	}

	return rec.Memory, nil
}

// GetRelationship resolves relationshipID to its current version.
func (s *Store) GetRelationship(storeID, relationshipID string) (*record.Relationship, error) {
	inst, err := s.getInstance(storeID)
	if err != nil {
		return nil, err
	}

	inst.mu.RLock()
	defer inst.mu.RUnlock()

	rec, err := inst.resolveLocked(record.KindRelationship, relationshipID)
	if err != nil {
		return nil, err
	}

	return rec.Relationship, nil
}

// ListMemoriesOptions filters and paginates ListMemories.
type ListMemoriesOptions struct {
	Category       string
	Type           string
	IncludeDeleted bool
	Limit          int
	Offset         int
}

// ListMemories iterates the latest-location index in ascending id order,
// skipping Offset matches, applying Category/Type filters, and stopping at
// Limit. Limit <= 0 means unlimited.
func (s *Store) ListMemories(storeID string, opts ListMemoriesOptions) ([]*record.Memory, error) {
	inst, err := s.getInstance(storeID)
	if err != nil {
		return nil, err
	}

	inst.mu.RLock()
	defer inst.mu.RUnlock()

	var (
		out     []*record.Memory
		skipped int
		iterErr error
	)

	inst.latest.Iterate(record.KindMemory, opts.IncludeDeleted, func(id string, _ latestindex.Entry) bool {
		if opts.Limit > 0 && len(out) >= opts.Limit {
			return false
		}

		rec, err := inst.resolveLocked(record.KindMemory, id)
		if err != nil {
			iterErr = err

			return false
		}

		m := rec.Memory
		if opts.Category != "" && m.Category != opts.Category {
			return true
		}

		if opts.Type != "" && m.Type != opts.Type {
			return true
		}

		if skipped < opts.Offset {
			skipped++

			return true
		}

		out = append(out, m)

		return true
	})

	if iterErr != nil {
		return nil, iterErr
	}

	return out, nil
}

// GetDueMemories returns every non-deleted memory whose cadence makes it due
// as of asOf, per spec.md §4.H's cadence dueness table. Callers choose what
// "as of" means (UTC vs local) by the time.Time they pass.
func (s *Store) GetDueMemories(storeID string, asOf time.Time) ([]*record.Memory, error) {
	inst, err := s.getInstance(storeID)
	if err != nil {
		return nil, err
	}

	inst.mu.RLock()
	defer inst.mu.RUnlock()

	var (
		out     []*record.Memory
		iterErr error
	)

	inst.latest.Iterate(record.KindMemory, false, func(id string, _ latestindex.Entry) bool {
		rec, err := inst.resolveLocked(record.KindMemory, id)
		if err != nil {
			iterErr = err

			return false
		}

		if isDue(rec.Memory, asOf) {
			out = append(out, rec.Memory)
		}

		return true
	})

	if iterErr != nil {
		return nil, iterErr
	}

	return out, nil
}

func isDue(m *record.Memory, asOf time.Time) bool {
	switch m.CadenceType {
	case record.CadenceDaily:
		return true
	case record.CadenceWeekly:
		return asOf.Weekday() == time.Sunday
	case record.CadenceMonthly:
		return asOf.Day() == 1
	case record.CadenceDayOfWeek:
		return strconv.Itoa(int(asOf.Weekday())) == m.CadenceValue
	case record.CadenceDayOfMonth:
		return strconv.Itoa(asOf.Day()) == m.CadenceValue
	default:
		return false
	}
}
