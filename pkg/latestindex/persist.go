package latestindex

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/memstore/pkg/fs"
	"github.com/calvinalkan/memstore/pkg/segment"
)

// Snapshot header constants, mirroring the teacher's binary-cache framing
// (magic + version prefix, atomic rename on write) but with a JSON body
// since the entry count here is small enough that fixed-width binary
// records buy nothing.
const (
	snapshotMagic   = "MLID"
	snapshotVersion = uint32(1)
	snapshotHeader  = 8 // magic(4) + version(4)
)

// ErrBadMagic indicates a snapshot file that doesn't start with MLID.
var ErrBadMagic = errors.New("latestindex: bad magic")

// ErrUnsupportedVersion indicates a snapshot written by a newer format.
var ErrUnsupportedVersion = errors.New("latestindex: unsupported version")

type snapshotEntry struct {
	ID            string `json:"id"`
	SegmentNumber uint32 `json:"segment_number"`
	Offset        int64  `json:"offset"`
	Version       int    `json:"version"`
	Timestamp     int64  `json:"timestamp"`
	Deleted       bool   `json:"deleted"`
	ContentHash   string `json:"content_hash"`
}

type snapshotBody struct {
	Memories      []snapshotEntry `json:"memories"`
	Relationships []snapshotEntry `json:"relationships"`
}

// Save writes idx to path atomically (temp file + rename, via
// github.com/natefinch/atomic, the same mechanism the teacher uses for its
// ticket cache and lock files).
func Save(idx *Index, path string) error {
	body := snapshotBody{
		Memories:      toEntries(idx.memories),
		Relationships: toEntries(idx.relationships),
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("latestindex: marshal snapshot: %w", err)
	}

	header := make([]byte, snapshotHeader)
	copy(header[0:4], snapshotMagic)
	binary.LittleEndian.PutUint32(header[4:8], snapshotVersion)

	buf := append(header, payload...)

	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("latestindex: write %q: %w", path, err)
	}

	idx.ClearDirty()

	return nil
}

// Load reads a snapshot previously written by Save. A missing file is not
// an error; it returns a fresh empty Index so callers can fall back to a
// full rebuild from segments+WAL.
func Load(fsys fs.FS, path string) (*Index, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(), nil
		}

		return nil, fmt.Errorf("latestindex: read %q: %w", path, err)
	}

	if len(raw) < snapshotHeader {
		return nil, fmt.Errorf("latestindex: %q too short for header", path)
	}

	magic := string(raw[0:4])
	if magic != snapshotMagic {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, magic)
	}

	version := binary.LittleEndian.Uint32(raw[4:8])
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	var body snapshotBody
	if err := json.Unmarshal(raw[snapshotHeader:], &body); err != nil {
		return nil, fmt.Errorf("latestindex: unmarshal %q: %w", path, err)
	}

	idx := New()
	fromEntries(idx.memories, body.Memories)
	fromEntries(idx.relationships, body.Relationships)

	return idx, nil
}

func toEntries(table map[string]Entry) []snapshotEntry {
	out := make([]snapshotEntry, 0, len(table))
	for id, e := range table {
		out = append(out, snapshotEntry{
			ID: id, SegmentNumber: e.Location.SegmentNumber, Offset: e.Location.Offset,
			Version: e.Version, Timestamp: e.Timestamp, Deleted: e.Deleted, ContentHash: e.ContentHash,
		})
	}

	return out
}

func fromEntries(table map[string]Entry, entries []snapshotEntry) {
	for _, se := range entries {
		table[se.ID] = Entry{
			Location:    segment.Location{SegmentNumber: se.SegmentNumber, Offset: se.Offset},
			Version:     se.Version,
			Timestamp:   se.Timestamp,
			Deleted:     se.Deleted,
			ContentHash: se.ContentHash,
		}
	}
}
