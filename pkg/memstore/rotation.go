package memstore

import (
	"fmt"

	"github.com/calvinalkan/memstore/pkg/record"
	"github.com/calvinalkan/memstore/pkg/segment"
)

// rotateLocked performs spec.md §4.H's atomic rotation sequence: the WAL
// file becomes an immutable segment, a fresh WAL is opened in its place,
// and every LatestIndex entry still pointing at the old WAL offsets is
// re-pointed at the new segment.
func (inst *instance) rotateLocked() error {
	segPath := inst.segments.NextSegmentPath()

	if _, err := inst.wal.Rotate(segPath); err != nil {
		return fmt.Errorf("memstore: rotate wal: %w", err)
	}

	segNumber, err := segment.NumberFromPath(segPath)
	if err != nil {
		return fmt.Errorf("memstore: parse segment number %q: %w", segPath, err)
	}

	seg, err := segment.Open(inst.fsys, segPath, segNumber)
	if err != nil {
		return fmt.Errorf("memstore: open rotated segment %q: %w", segPath, err)
	}

	inst.segments.Register(seg)

	err = seg.Iterate(func(rec *record.Record, offset int64) error {
		loc := segment.Location{SegmentNumber: segNumber, Offset: offset}

		if entry, ok := inst.latest.Get(rec.Kind, rec.ID()); ok && entry.Version == rec.StoreVersion() {
			entry.Location = loc
			inst.latest.Update(rec.Kind, rec.ID(), entry)
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("memstore: iterate rotated segment %q: %w", segPath, err)
	}

	return inst.persistAllLocked()
}
