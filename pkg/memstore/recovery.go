package memstore

import (
	"fmt"

	"github.com/calvinalkan/memstore/pkg/latestindex"
	"github.com/calvinalkan/memstore/pkg/merkle"
	"github.com/calvinalkan/memstore/pkg/record"
	"github.com/calvinalkan/memstore/pkg/segment"
	"github.com/calvinalkan/memstore/pkg/textindex"
	"github.com/calvinalkan/memstore/pkg/vectorindex"
)

// IntegrityReport is VerifyIntegrity's result: spec.md §4.H's
// merkle_root_mismatch / record_count_mismatch comparison, reported so
// callers can decide whether to call Recover.
type IntegrityReport struct {
	OK                  bool
	MerkleRootMismatch  bool
	RecordCountMismatch bool
	LiveRoot            string
	RebuiltRoot         string
	LiveLeafCount       int
	RebuiltLeafCount    int
}

// onDiskRecordCount returns the total number of records currently on disk
// for this instance: every record in every segment, plus every live WAL
// record.
func (inst *instance) onDiskRecordCount() (int, error) {
	count := 0

	err := inst.segments.IterateAll(func(_ *record.Record, _ uint32, _ int64) error {
		count++

		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("memstore: iterate segments: %w", err)
	}

	count += len(inst.wal.Entries())

	return count, nil
}

// checkRecoveryNeeded implements spec.md §4.H's
// `needs = (merkle_leaf_count != segment_records + wal_records)`.
func (inst *instance) checkRecoveryNeeded() bool {
	onDisk, err := inst.onDiskRecordCount()
	if err != nil {
		// Treat a scan failure as "needs recovery" — rebuild will surface
		// the real error if the underlying problem persists.
		return true
	}

	return inst.merkle.LeafCount() != onDisk
}

// replayLocked streams every record currently on disk, in canonical order
// (segments by segment-number then offset, then the live WAL in append
// order), calling visit for each. Shared by rebuild and verify.
func (inst *instance) replayLocked(visit func(rec *record.Record, loc segment.Location) error) error {
	err := inst.segments.IterateAll(func(rec *record.Record, number uint32, offset int64) error {
		return visit(rec, segment.Location{SegmentNumber: number, Offset: offset})
	})
	if err != nil {
		return fmt.Errorf("memstore: replay segments: %w", err)
	}

	for _, e := range inst.wal.Entries() {
		if err := visit(e.Record, segment.WALLocation(e.Offset)); err != nil {
			return fmt.Errorf("memstore: replay wal: %w", err)
		}
	}

	return nil
}

// verifyIntegrityLocked rebuilds a throwaway Merkle tree from the on-disk
// record stream and compares it to the live tree, without mutating any
// instance state.
func (inst *instance) verifyIntegrityLocked() (IntegrityReport, error) {
	throwaway := merkle.New(inst.config.MerkleHashAlgorithm)

	onDisk := 0

	err := inst.replayLocked(func(rec *record.Record, _ segment.Location) error {
		onDisk++

		_, err := throwaway.AddLeaf(rec.ContentHashHex())

		return err
	})
	if err != nil {
		return IntegrityReport{}, err
	}

	report := IntegrityReport{
		LiveRoot:         inst.merkle.Root(),
		RebuiltRoot:      throwaway.Root(),
		LiveLeafCount:    inst.merkle.LeafCount(),
		RebuiltLeafCount: throwaway.LeafCount(),
	}

	report.MerkleRootMismatch = report.LiveRoot != report.RebuiltRoot
	report.RecordCountMismatch = inst.merkle.LeafCount() != onDisk
	report.OK = !report.MerkleRootMismatch && !report.RecordCountMismatch

	return report, nil
}

// rebuildIndexesLocked clears D/E/F/G and replays segments then WAL through
// the standard fan-out, then persists. REBUILDABLE (spec.md §9): indexes
// are derived views, never a source of truth.
func (inst *instance) rebuildIndexesLocked() error {
	inst.latest = latestindex.New()
	inst.merkle = merkle.New(inst.config.MerkleHashAlgorithm)
	inst.vectors = vectorindex.New(inst.vectorConfigLocked())
	inst.text = textindex.New(inst.textConfigLocked())

	err := inst.replayLocked(func(rec *record.Record, loc segment.Location) error {
		return inst.fanOut(rec, loc)
	})
	if err != nil {
		return err
	}

	return inst.persistAllLocked()
}

func (inst *instance) vectorConfigLocked() vectorindex.Config {
	cfg := vectorindex.DefaultConfig(inst.config.EmbeddingDimensions)
	cfg.M = inst.config.HNSWM
	cfg.EfConstruction = inst.config.HNSWEfConstruction
	cfg.EfSearch = inst.config.HNSWEfSearch
	cfg.Seed = 1

	return cfg
}

func (inst *instance) textConfigLocked() textindex.Config {
	return textindex.Config{
		K1: 1.2, B: 0.75,
		StopWords:      inst.config.TextIndexStopWords,
		MinTokenLength: inst.config.TextIndexMinTokenLength,
	}
}

// CheckRecoveryNeeded reports whether storeID's live Merkle leaf count
// disagrees with its on-disk record count.
func (s *Store) CheckRecoveryNeeded(storeID string) (bool, error) {
	inst, err := s.getInstance(storeID)
	if err != nil {
		return false, err
	}

	inst.mu.RLock()
	defer inst.mu.RUnlock()

	return inst.checkRecoveryNeeded(), nil
}

// Recover rebuilds storeID's indexes if CheckRecoveryNeeded reports true.
func (s *Store) Recover(storeID string) (rebuilt bool, err error) {
	inst, err := s.getInstance(storeID)
	if err != nil {
		return false, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if !inst.checkRecoveryNeeded() {
		return false, nil
	}

	s.log("recovering", map[string]any{"store_id": storeID})

	if err := inst.rebuildIndexesLocked(); err != nil {
		return false, err
	}

	return true, nil
}

// RebuildIndexes unconditionally rebuilds storeID's indexes from segments
// and WAL.
func (s *Store) RebuildIndexes(storeID string) error {
	inst, err := s.getInstance(storeID)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	return inst.rebuildIndexesLocked()
}

// VerifyIntegrity rebuilds a throwaway Merkle tree from storeID's on-disk
// records and compares it against the live tree.
func (s *Store) VerifyIntegrity(storeID string) (IntegrityReport, error) {
	inst, err := s.getInstance(storeID)
	if err != nil {
		return IntegrityReport{}, err
	}

	inst.mu.RLock()
	defer inst.mu.RUnlock()

	return inst.verifyIntegrityLocked()
}

// CompactWAL forces rotation of storeID's WAL (even below the size
// threshold) if it currently holds any records, and reports whether it
// rotated plus the store's total on-disk record count afterward (every
// record version in segments and WAL, deleted ones included).
func (s *Store) CompactWAL(storeID string) (rotated bool, totalRecords int, err error) {
	inst, err := s.getInstance(storeID)
	if err != nil {
		return false, 0, err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	if len(inst.wal.Entries()) == 0 {
		count, err := inst.onDiskRecordCount()
		if err != nil {
			return false, 0, err
		}

		return false, count, nil
	}

	if err := inst.rotateLocked(); err != nil {
		return false, 0, err
	}

	count, err := inst.onDiskRecordCount()
	if err != nil {
		return true, 0, err
	}

	return true, count, nil
}
