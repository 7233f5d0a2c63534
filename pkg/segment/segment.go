// Package segment implements immutable, append-only record segments
// (spec.md §4.C): the files a WAL rotates into once it fills up.
package segment

import (
	"errors"
	"fmt"

	"github.com/calvinalkan/memstore/pkg/fs"
	"github.com/calvinalkan/memstore/pkg/record"
	"github.com/calvinalkan/memstore/pkg/wal"
)

// ErrOffsetOutOfRange indicates a read_at call past the end of the segment.
var ErrOffsetOutOfRange = errors.New("offset out of range")

// Segment is a single opened, read-only segment file. It shares its header
// format with the WAL (either MWAL, carried over from rotation, or MSEG)
// and is loaded fully into memory once, like wal.Open does for the active
// WAL file — segments are bounded by segment_size_bytes so this is cheap.
type Segment struct {
	Number uint32
	path   string
	raw    []byte
	header wal.Header

	// offsets are the byte offsets of each frame, computed once at Open so
	// iterate_all doesn't need to re-scan.
	offsets []int64
}

// Open reads and validates the segment file at path. number is the segment
// number parsed from its filename by the caller (SegmentManager).
func Open(fsys fs.FS, path string, number uint32) (*Segment, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("segment: read %q: %w", path, err)
	}

	header, headerLen, err := wal.DecodeHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("segment: decode header %q: %w", path, err)
	}

	var offsets []int64

	offset := headerLen
	for offset < len(raw) {
		_, n, err := record.Deserialize(raw, offset)
		if err != nil {
			return nil, fmt.Errorf("segment: corrupt frame at offset %d in %q: %w", offset, path, err)
		}

		offsets = append(offsets, int64(offset))
		offset += n
	}

	return &Segment{Number: number, path: path, raw: raw, header: header, offsets: offsets}, nil
}

// Path returns the segment's file path.
func (s *Segment) Path() string { return s.path }

// RecordCount returns the header's record_count (equal to len(offsets) for
// a segment written by this package; a foreign writer could disagree, and
// Open does not compare the two).
func (s *Segment) RecordCount() uint32 { return s.header.RecordCount }

// ReadAt decodes the frame starting at the given byte offset.
func (s *Segment) ReadAt(offset int64) (*record.Record, error) {
	if offset < 0 || int(offset) >= len(s.raw) {
		return nil, fmt.Errorf("%w: offset %d in %q", ErrOffsetOutOfRange, offset, s.path)
	}

	rec, _, err := record.Deserialize(s.raw, int(offset))
	if err != nil {
		return nil, fmt.Errorf("segment: decode at offset %d in %q: %w", offset, s.path, err)
	}

	return rec, nil
}

// Iterate yields every record in the segment in on-disk (append) order.
func (s *Segment) Iterate(yield func(rec *record.Record, offset int64) error) error {
	for _, off := range s.offsets {
		rec, _, err := record.Deserialize(s.raw, int(off))
		if err != nil {
			return fmt.Errorf("segment: decode at offset %d in %q: %w", off, s.path, err)
		}

		if err := yield(rec, off); err != nil {
			return err
		}
	}

	return nil
}
