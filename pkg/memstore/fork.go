package memstore

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/memstore/pkg/record"
	"github.com/calvinalkan/memstore/pkg/segment"
	"github.com/calvinalkan/memstore/pkg/wal"
)

// forkJSON is fork.json's body (spec.md §4.H's createFork step 5).
type forkJSON struct {
	ForkID            string `json:"fork_id"`
	Name              string `json:"name,omitempty"`
	Note              string `json:"note,omitempty"`
	SourceStoreID     string `json:"source_store_id"`
	CreatedAt         int64  `json:"created_at"`
	SourceMerkleRoot  string `json:"source_merkle_root"`
	SourceRecordCount int    `json:"source_record_count"`
	PITRTimestamp     *int64 `json:"pitr_timestamp,omitempty"`
}

// CreateForkOptions names and annotates a new fork.
type CreateForkOptions struct {
	ForkID string
	Name   string
	Note   string
}

// CreateFork copies sourceID's segments and index snapshots verbatim, then
// rewrites its live WAL records under a fresh WAL header for the fork.
func (s *Store) CreateFork(sourceID string, opts CreateForkOptions) (string, error) {
	forkID := opts.ForkID
	if forkID == "" {
		id, err := record.NewID()
		if err != nil {
			return "", fmt.Errorf("memstore: generate fork id: %w", err)
		}

		forkID = id
	}

	src, err := s.getInstance(sourceID)
	if err != nil {
		return "", err
	}

	src.mu.Lock()
	defer src.mu.Unlock()

	if err := src.persistAllLocked(); err != nil {
		return "", err
	}

	s.mu.Lock()
	if s.meta.hasFork(forkID) {
		s.mu.Unlock()

		return "", fmt.Errorf("%w: %q", ErrForkExists, forkID)
	}
	s.mu.Unlock()

	forkDir := instanceDir(s.dataDir, forkID)

	exists, err := s.fsys.Exists(forkDir)
	if err != nil {
		return "", fmt.Errorf("memstore: stat fork dir %q: %w", forkDir, err)
	}

	if exists {
		return "", fmt.Errorf("%w: %q", ErrForkExists, forkID)
	}

	if err := s.copyDir(segmentsDir(src.dir), segmentsDir(forkDir)); err != nil {
		return "", err
	}

	if err := s.copyDir(indexesDir(src.dir), indexesDir(forkDir)); err != nil {
		return "", err
	}

	srcRecords := src.wal.GetRecords()

	forkWAL, err := wal.Open(s.fsys, walPath(forkDir), forkID, s.walOptions())
	if err != nil {
		return "", fmt.Errorf("memstore: open fork wal %q: %w", forkDir, err)
	}

	for _, rec := range srcRecords {
		if _, _, err := forkWAL.Append(rec); err != nil {
			_ = forkWAL.Close()

			return "", fmt.Errorf("memstore: append to fork wal: %w", err)
		}
	}

	if err := forkWAL.Close(); err != nil {
		return "", fmt.Errorf("memstore: close fork wal: %w", err)
	}

	meta := forkJSON{
		ForkID:            forkID,
		Name:              opts.Name,
		Note:              opts.Note,
		SourceStoreID:     sourceID,
		CreatedAt:         time.Now().UnixMilli(),
		SourceMerkleRoot:  src.merkle.Root(),
		SourceRecordCount: src.merkle.LeafCount(),
	}

	if err := writeForkJSON(meta, forkJSONPath(forkDir)); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.meta.Forks = append(s.meta.Forks, forkMeta{
		ForkID: forkID, SourceID: sourceID, CreatedAt: meta.CreatedAt,
	})
	saveErr := saveStoreMeta(s.meta, storeJSONPath(s.dataDir))
	s.mu.Unlock()

	if saveErr != nil {
		return "", saveErr
	}

	if _, err := s.getInstance(forkID); err != nil {
		return "", err
	}

	s.log("fork_created", map[string]any{"fork_id": forkID, "source_id": sourceID})

	return forkID, nil
}

// CreateForkAtTime builds a fork containing only sourceID's records with
// timestamp <= cutoffMS (spec.md §4.H's PITR path), replaying canonical
// order (segments then WAL) through the standard fan-out so the fork's
// Merkle root matches the source's prefix root at the cutoff.
func (s *Store) CreateForkAtTime(sourceID string, cutoffMS int64, opts CreateForkOptions) (string, error) {
	forkID := opts.ForkID
	if forkID == "" {
		id, err := record.NewID()
		if err != nil {
			return "", fmt.Errorf("memstore: generate fork id: %w", err)
		}

		forkID = id
	}

	src, err := s.getInstance(sourceID)
	if err != nil {
		return "", err
	}

	src.mu.RLock()
	defer src.mu.RUnlock()

	s.mu.Lock()
	if s.meta.hasFork(forkID) {
		s.mu.Unlock()

		return "", fmt.Errorf("%w: %q", ErrForkExists, forkID)
	}
	s.mu.Unlock()

	forkDir := instanceDir(s.dataDir, forkID)

	fork, err := s.openInstance(forkID, forkDir)
	if err != nil {
		return "", err
	}

	recordCount := 0

	err = src.replayLocked(func(rec *record.Record, _ segment.Location) error {
		if rec.Timestamp() > cutoffMS {
			return nil
		}

		// Clone before handing off: rec here is the exact *Record the
		// source instance's own WAL/segment iteration holds (replayLocked
		// hands back its live pointers, not copies). Without cloning, the
		// fork's WAL would alias the source's records.
		forkRec := rec.Clone()

		offset, _, err := fork.wal.Append(forkRec)
		if err != nil {
			return fmt.Errorf("memstore: append to fork wal: %w", err)
		}

		recordCount++

		return fork.fanOut(forkRec, segment.WALLocation(offset))
	})
	if err != nil {
		_ = fork.close()

		return "", err
	}

	if err := fork.persistAllLocked(); err != nil {
		return "", err
	}

	cutoff := cutoffMS

	meta := forkJSON{
		ForkID:            forkID,
		Name:              opts.Name,
		Note:              opts.Note,
		SourceStoreID:     sourceID,
		CreatedAt:         time.Now().UnixMilli(),
		SourceMerkleRoot:  fork.merkle.Root(),
		SourceRecordCount: recordCount,
		PITRTimestamp:     &cutoff,
	}

	if err := writeForkJSON(meta, forkJSONPath(forkDir)); err != nil {
		return "", err
	}

	s.mu.Lock()
	s.meta.Forks = append(s.meta.Forks, forkMeta{
		ForkID: forkID, SourceID: sourceID, CreatedAt: meta.CreatedAt, CutoffTS: &cutoff,
	})
	s.instances[forkID] = fork
	saveErr := saveStoreMeta(s.meta, storeJSONPath(s.dataDir))
	s.mu.Unlock()

	if saveErr != nil {
		return "", saveErr
	}

	s.log("fork_created_at_time", map[string]any{"fork_id": forkID, "source_id": sourceID, "cutoff_ms": cutoffMS})

	return forkID, nil
}

// CreateSnapshot records a lightweight pointer to storeID's current state
// (merkle_root, timestamp, leaf count) for later RestoreSnapshot.
func (s *Store) CreateSnapshot(storeID string) (string, error) {
	inst, err := s.getInstance(storeID)
	if err != nil {
		return "", err
	}

	inst.mu.RLock()
	snap := snapshotMeta{
		StoreID:     storeID,
		CreatedAt:   time.Now().UnixMilli(),
		MerkleRoot:  inst.merkle.Root(),
		RecordCount: inst.merkle.LeafCount(),
	}
	inst.mu.RUnlock()

	id, err := record.NewID()
	if err != nil {
		return "", fmt.Errorf("memstore: generate snapshot id: %w", err)
	}

	snap.SnapshotID = id

	s.mu.Lock()
	s.meta.Snapshots = append(s.meta.Snapshots, snap)
	saveErr := saveStoreMeta(s.meta, storeJSONPath(s.dataDir))
	s.mu.Unlock()

	if saveErr != nil {
		return "", saveErr
	}

	return id, nil
}

// DeleteFork closes forkID's instance (if loaded), deletes its directory,
// and removes it from store.json. Refuses to delete main.
func (s *Store) DeleteFork(forkID string) error {
	if forkID == MainStoreID {
		return ErrCannotDeleteMain
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.meta.hasFork(forkID) {
		return fmt.Errorf("%w: %q", ErrIDNotFound, forkID)
	}

	if inst, ok := s.instances[forkID]; ok {
		if err := inst.close(); err != nil {
			return err
		}

		delete(s.instances, forkID)
	}

	if err := s.fsys.RemoveAll(instanceDir(s.dataDir, forkID)); err != nil {
		return fmt.Errorf("memstore: remove fork dir: %w", err)
	}

	s.meta.removeFork(forkID)

	return saveStoreMeta(s.meta, storeJSONPath(s.dataDir))
}

// RestoreSnapshot is sugar for CreateForkAtTime(snap.source_store_id,
// snap.timestamp, ...).
func (s *Store) RestoreSnapshot(snapshotID string, opts CreateForkOptions) (string, error) {
	s.mu.Lock()
	snap, ok := s.meta.snapshot(snapshotID)
	s.mu.Unlock()

	if !ok {
		return "", fmt.Errorf("%w: snapshot %q", ErrSnapshotNotFound, snapshotID)
	}

	return s.CreateForkAtTime(snap.StoreID, snap.CreatedAt, opts)
}

func writeForkJSON(meta forkJSON, path string) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("memstore: marshal fork.json: %w", err)
	}

	if err := atomic.WriteFile(path, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("memstore: write %q: %w", path, err)
	}

	return nil
}

// copyDir copies every regular file in src to dst (both assumed flat,
// matching segments/ and indexes/ layout), creating dst if needed.
func (s *Store) copyDir(src, dst string) error {
	if err := s.fsys.MkdirAll(dst, 0o755); err != nil {
		return fmt.Errorf("memstore: mkdir %q: %w", dst, err)
	}

	entries, err := s.fsys.ReadDir(src)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}

		return fmt.Errorf("memstore: readdir %q: %w", src, err)
	}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		data, err := s.fsys.ReadFile(filepath.Join(src, e.Name()))
		if err != nil {
			return fmt.Errorf("memstore: read %q: %w", e.Name(), err)
		}

		if err := s.fsys.WriteFile(filepath.Join(dst, e.Name()), data, 0o644); err != nil {
			return fmt.Errorf("memstore: write %q: %w", e.Name(), err)
		}
	}

	return nil
}
