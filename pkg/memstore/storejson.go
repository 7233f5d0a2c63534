package memstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/memstore/pkg/fs"
)

const storeMetaVersion = 1

// forkMeta is one entry in store.json's forks list.
type forkMeta struct {
	ForkID    string `json:"fork_id"`
	SourceID  string `json:"source_id"`
	CreatedAt int64  `json:"created_at"`
	CutoffTS  *int64 `json:"cutoff_ts,omitempty"`
}

// snapshotMeta is one entry in store.json's snapshots list (spec.md §4.H's
// point-in-time restore bookkeeping).
type snapshotMeta struct {
	SnapshotID  string `json:"snapshot_id"`
	StoreID     string `json:"store_id"`
	CreatedAt   int64  `json:"created_at"`
	MerkleRoot  string `json:"merkle_root"`
	RecordCount int    `json:"record_count"`
}

// storeMeta is store.json's body: the process-wide registry of every fork
// and snapshot that has ever been created, independent of which instances
// happen to be loaded right now.
type storeMeta struct {
	Version   int            `json:"version"`
	Forks     []forkMeta     `json:"forks"`
	Snapshots []snapshotMeta `json:"snapshots"`
}

func (m *storeMeta) hasFork(forkID string) bool {
	for _, f := range m.Forks {
		if f.ForkID == forkID {
			return true
		}
	}

	return false
}

func (m *storeMeta) fork(forkID string) (forkMeta, bool) {
	for _, f := range m.Forks {
		if f.ForkID == forkID {
			return f, true
		}
	}

	return forkMeta{}, false
}

func (m *storeMeta) snapshot(snapshotID string) (snapshotMeta, bool) {
	for _, snap := range m.Snapshots {
		if snap.SnapshotID == snapshotID {
			return snap, true
		}
	}

	return snapshotMeta{}, false
}

func (m *storeMeta) removeFork(forkID string) {
	out := m.Forks[:0]

	for _, f := range m.Forks {
		if f.ForkID != forkID {
			out = append(out, f)
		}
	}

	m.Forks = out
}

func loadStoreMeta(fsys fs.FS, path string) (storeMeta, error) {
	data, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return storeMeta{Version: storeMetaVersion}, nil
		}

		return storeMeta{}, fmt.Errorf("read %q: %w", path, err)
	}

	var meta storeMeta

	if err := json.Unmarshal(data, &meta); err != nil {
		return storeMeta{}, fmt.Errorf("decode %q: %w", path, err)
	}

	return meta, nil
}

func saveStoreMeta(meta storeMeta, path string) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("encode store.json: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("write %q: %w", path, err)
	}

	return nil
}
