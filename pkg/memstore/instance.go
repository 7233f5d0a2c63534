package memstore

import (
	"fmt"
	"sync"

	"github.com/calvinalkan/memstore/pkg/fs"
	"github.com/calvinalkan/memstore/pkg/latestindex"
	"github.com/calvinalkan/memstore/pkg/merkle"
	"github.com/calvinalkan/memstore/pkg/record"
	"github.com/calvinalkan/memstore/pkg/segment"
	"github.com/calvinalkan/memstore/pkg/textindex"
	"github.com/calvinalkan/memstore/pkg/vectorindex"
	"github.com/calvinalkan/memstore/pkg/wal"
)

// EmbedFunc computes an embedding vector for text. Supplied by the host;
// memstore never embeds on its own. See spec.md §1's "opaque function
// embed(text) -> vector".
type EmbedFunc func(text string) ([]float32, error)

// instance is one store/fork's live engine: its own WAL, segment manager,
// and the four derived indexes (D, E, F, G from spec.md §4). Every
// externally observable operation on an instance runs under mu, per
// spec.md §5's single-writer-atomicity requirement.
type instance struct {
	mu sync.RWMutex

	storeID string
	dir     string
	fsys    fs.FS
	config  Config
	embed   EmbedFunc

	wal      *wal.WAL
	segments *segment.Manager
	latest   *latestindex.Index
	merkle   *merkle.Tree
	vectors  *vectorindex.Index
	text     *textindex.Index

	writesSinceLastPersist int
}

func (s *Store) vectorConfig() vectorindex.Config {
	cfg := vectorindex.DefaultConfig(s.config.EmbeddingDimensions)
	cfg.M = s.config.HNSWM
	cfg.EfConstruction = s.config.HNSWEfConstruction
	cfg.EfSearch = s.config.HNSWEfSearch
	cfg.Seed = 1

	return cfg
}

func (s *Store) textConfig() textindex.Config {
	return textindex.Config{
		K1:             1.2,
		B:              0.75,
		StopWords:      s.config.TextIndexStopWords,
		MinTokenLength: s.config.TextIndexMinTokenLength,
	}
}

func (s *Store) walOptions() wal.Options {
	return wal.Options{
		SyncOnWrite:      s.config.WALSyncOnWrite,
		SegmentSizeBytes: s.config.SegmentSizeBytes,
		MaxAgeMS:         s.config.WALMaxAgeMS,
	}
}

// openInstance opens (or creates) every on-disk component rooted at dir
// under storeID and wires them into one instance.
func (s *Store) openInstance(storeID, dir string) (*instance, error) {
	if err := s.fsys.MkdirAll(segmentsDir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("memstore: mkdir segments %q: %w", dir, err)
	}

	if err := s.fsys.MkdirAll(indexesDir(dir), 0o755); err != nil {
		return nil, fmt.Errorf("memstore: mkdir indexes %q: %w", dir, err)
	}

	w, err := wal.Open(s.fsys, walPath(dir), storeID, s.walOptions())
	if err != nil {
		return nil, fmt.Errorf("memstore: open wal %q: %w", dir, err)
	}

	if w.TruncatedOnOpen() {
		s.log("wal_truncated", map[string]any{"store_id": storeID, "dir": dir})
	}

	segMgr, err := segment.OpenManager(s.fsys, segmentsDir(dir))
	if err != nil {
		return nil, fmt.Errorf("memstore: open segments %q: %w", dir, err)
	}

	latestIdx, err := latestindex.Load(s.fsys, latestIdxPath(dir))
	if err != nil {
		return nil, fmt.Errorf("memstore: load latest index %q: %w", dir, err)
	}

	vecIdx, err := vectorindex.Load(s.fsys, vectorIdxPath(dir), s.vectorConfig())
	if err != nil {
		return nil, fmt.Errorf("memstore: load vector index %q: %w", dir, err)
	}

	textIdx, err := textindex.Load(s.fsys, textIdxPath(dir), s.textConfig())
	if err != nil {
		return nil, fmt.Errorf("memstore: load text index %q: %w", dir, err)
	}

	merkleTree, err := merkle.Load(s.fsys, merkleIdxPath(dir), s.config.MerkleHashAlgorithm)
	if err != nil {
		return nil, fmt.Errorf("memstore: load merkle index %q: %w", dir, err)
	}

	inst := &instance{
		storeID: storeID, dir: dir, fsys: s.fsys, config: s.config, embed: s.embed,
		wal: w, segments: segMgr, latest: latestIdx, merkle: merkleTree,
		vectors: vecIdx, text: textIdx,
	}

	needsRecovery := inst.checkRecoveryNeeded()
	if needsRecovery {
		s.log("recovery_needed", map[string]any{"store_id": storeID})

		if err := inst.rebuildIndexesLocked(); err != nil {
			return nil, fmt.Errorf("memstore: recover %q: %w", dir, err)
		}
	}

	return inst, nil
}

// close flushes every index (ignoring persist_every_n_writes) and closes
// the WAL file handle.
func (inst *instance) close() error {
	inst.mu.Lock()
	defer inst.mu.Unlock()

	if err := inst.persistAllLocked(); err != nil {
		return err
	}

	return inst.wal.Close()
}

func (inst *instance) persistAllLocked() error {
	if err := latestindex.Save(inst.latest, latestIdxPath(inst.dir)); err != nil {
		return fmt.Errorf("memstore: persist latest index: %w", err)
	}

	if err := vectorindex.Save(inst.vectors, vectorIdxPath(inst.dir)); err != nil {
		return fmt.Errorf("memstore: persist vector index: %w", err)
	}

	if err := textindex.Save(inst.text, textIdxPath(inst.dir)); err != nil {
		return fmt.Errorf("memstore: persist text index: %w", err)
	}

	if err := merkle.Save(inst.merkle, merkleIdxPath(inst.dir)); err != nil {
		return fmt.Errorf("memstore: persist merkle index: %w", err)
	}

	inst.latest.ClearDirty()

	return nil
}

// maybePersistLocked persists indexes if persist_every_n_writes fired.
func (inst *instance) maybePersistLocked() error {
	inst.writesSinceLastPersist++

	n := inst.config.PersistEveryNWrites
	if n <= 0 || inst.writesSinceLastPersist < n {
		return nil
	}

	inst.writesSinceLastPersist = 0

	return inst.persistAllLocked()
}

// fanOut is the per-record fan-out helper used by the write path,
// rebuild, and PITR replay. Kept here because it leans on every one of
// instance's index fields, same as the rest of this file.
func (inst *instance) fanOut(rec *record.Record, loc segment.Location) error {
	entry := latestindex.Entry{
		Location:    loc,
		Version:     rec.StoreVersion(),
		Timestamp:   rec.Timestamp(),
		Deleted:     rec.IsDeleted(),
		ContentHash: rec.ContentHashHex(),
	}

	inst.latest.Update(rec.Kind, rec.ID(), entry)

	if _, err := inst.merkle.AddLeaf(rec.ContentHashHex()); err != nil {
		return fmt.Errorf("memstore: add merkle leaf: %w", err)
	}

	if rec.Kind != record.KindMemory {
		return nil
	}

	m := rec.Memory

	if rec.IsDeleted() {
		if err := inst.vectors.Delete(m.MemoryID); err != nil && err != vectorindex.ErrNotFound {
			return fmt.Errorf("memstore: vector delete: %w", err)
		}

		inst.text.Remove(m.MemoryID)

		return nil
	}

	if len(m.Embedding) > 0 {
		if err := inst.vectors.Add(m.MemoryID, m.Embedding); err != nil {
			return fmt.Errorf("memstore: vector add: %w", err)
		}
	}

	inst.text.Add(m.MemoryID, m.Content, textindex.Metadata{
		Category: m.Category, Type: m.Type, Tags: m.Tags, Context: m.Context,
	})

	return nil
}
