package memstore

import (
	"fmt"
	"sync"

	"github.com/calvinalkan/memstore/pkg/fs"
)

// Store is the process-local entry point: a registry of lazily-opened
// instances (the main store plus any forks), keyed by store_id, as
// described by spec.md §9's "Global state" note — no implicit background
// tasks, every instance is opened on first use and flushed on Close.
type Store struct {
	dataDir string
	fsys    fs.FS
	config  Config
	embed   EmbedFunc
	logger  Logger

	mu        sync.Mutex
	instances map[string]*instance
	meta      storeMeta
}

// Open opens (creating if necessary) the store rooted at config.DataDir.
// embed may be nil if the caller never intends to add memories with
// semantic content; Search then falls back to text-only results.
func Open(config Config, embed EmbedFunc, logger Logger) (*Store, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if logger == nil {
		logger = noopLogger
	}

	fsys := fs.NewReal()

	if err := fsys.MkdirAll(config.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("memstore: mkdir data dir %q: %w", config.DataDir, err)
	}

	meta, err := loadStoreMeta(fsys, storeJSONPath(config.DataDir))
	if err != nil {
		return nil, fmt.Errorf("memstore: load store.json: %w", err)
	}

	s := &Store{
		dataDir:   config.DataDir,
		fsys:      fsys,
		config:    config,
		embed:     embed,
		logger:    logger,
		instances: make(map[string]*instance),
		meta:      meta,
	}

	if _, err := s.getInstance(MainStoreID); err != nil {
		return nil, err
	}

	return s, nil
}

// getInstance returns storeID's instance, opening it on first use.
func (s *Store) getInstance(storeID string) (*instance, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if inst, ok := s.instances[storeID]; ok {
		return inst, nil
	}

	if storeID != MainStoreID && !s.meta.hasFork(storeID) {
		return nil, fmt.Errorf("%w: store %q", ErrIDNotFound, storeID)
	}

	inst, err := s.openInstance(storeID, instanceDir(s.dataDir, storeID))
	if err != nil {
		return nil, err
	}

	s.instances[storeID] = inst

	return inst, nil
}

// Close flushes and closes every instance opened so far.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error

	for id, inst := range s.instances {
		if err := inst.close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("memstore: close store %q: %w", id, err)
		}
	}

	return firstErr
}

// StoreIDs returns the main store id plus every fork id, in store.json's
// recorded order.
func (s *Store) StoreIDs() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	ids := make([]string, 0, len(s.meta.Forks)+1)
	ids = append(ids, MainStoreID)

	for _, f := range s.meta.Forks {
		ids = append(ids, f.ForkID)
	}

	return ids
}
