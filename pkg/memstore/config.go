package memstore

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/tailscale/hujson"

	"github.com/calvinalkan/memstore/pkg/record"
)

// Config holds every recognized option from spec.md §6. Zero-value Config
// is not valid; build one with DefaultConfig and override from there.
type Config struct {
	// DataDir is the root directory holding store.json, main/, and forks/.
	DataDir string `json:"data_dir"`

	// SegmentSizeBytes is the WAL rotation threshold.
	SegmentSizeBytes int64 `json:"segment_size_bytes"`

	// PersistEveryNWrites controls index persistence cadence; 0 means
	// manual (the caller must call PersistIndexes itself).
	PersistEveryNWrites int `json:"persist_every_n_writes"`

	// MemoryBudgetBytes is a soft ceiling on index memory, clamped to
	// [128 MiB, 4 GiB]. Not enforced internally today; recorded for host
	// applications that want to budget cache sizes against it.
	MemoryBudgetBytes int64 `json:"memory_budget_bytes"`

	// EnableConcurrentAccess is a reader-concurrency hint. It is loaded and
	// merged but Store does not read it: each instance is guarded by an
	// RWMutex (instance.mu) whatever its value, so readers share the lock
	// with each other and writers hold it exclusively.
	EnableConcurrentAccess bool `json:"enable_concurrent_access"`

	HNSWM              int `json:"hnsw_m"`
	HNSWEfConstruction int `json:"hnsw_ef_construction"`
	HNSWEfSearch       int `json:"hnsw_ef_search"`

	// EmbeddingDimensions is the fixed vector width the HNSW index is built
	// for (spec.md §4.F's "dimensions", default 384). Not in §6's recognized
	// table — that table only lists the graph-shape parameters — but every
	// store needs this fixed at open time, so it lives alongside them.
	EmbeddingDimensions int `json:"embedding_dimensions"`

	TextIndexMinTokenLength int  `json:"text_index_min_token_length"`
	TextIndexStopWords      bool `json:"text_index_stop_words"`

	MerkleHashAlgorithm record.HashAlgorithm `json:"merkle_hash_algorithm"`

	WALSyncOnWrite bool  `json:"wal_sync_on_write"`
	WALMaxAgeMS    int64 `json:"wal_max_age_ms"`
}

const (
	minMemoryBudgetBytes = 128 * 1024 * 1024
	maxMemoryBudgetBytes = 4 * 1024 * 1024 * 1024
	minSegmentSizeBytes  = 1024 * 1024
)

// DefaultConfig returns spec.md §6's defaults.
func DefaultConfig() Config {
	return Config{
		DataDir:                 "./data",
		SegmentSizeBytes:        16 * 1024 * 1024,
		PersistEveryNWrites:     1,
		MemoryBudgetBytes:       512 * 1024 * 1024,
		EnableConcurrentAccess:  true,
		HNSWM:                   16,
		HNSWEfConstruction:      200,
		HNSWEfSearch:            50,
		EmbeddingDimensions:     384,
		TextIndexMinTokenLength: 2,
		TextIndexStopWords:      true,
		MerkleHashAlgorithm:     record.SHA256,
		WALSyncOnWrite:          true,
		WALMaxAgeMS:             0,
	}
}

// Validate enforces every constraint in spec.md §6's table, clamping
// MemoryBudgetBytes rather than rejecting it (the table marks that one
// "clamped", every other constraint is a hard rejection).
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("%w: data_dir must be non-empty", ErrConfigInvalid)
	}

	if c.SegmentSizeBytes < minSegmentSizeBytes {
		return fmt.Errorf("%w: segment_size_bytes must be >= 1 MiB, got %d", ErrConfigInvalid, c.SegmentSizeBytes)
	}

	if c.PersistEveryNWrites < 0 {
		return fmt.Errorf("%w: persist_every_n_writes must be >= 0, got %d", ErrConfigInvalid, c.PersistEveryNWrites)
	}

	if c.MemoryBudgetBytes < minMemoryBudgetBytes {
		c.MemoryBudgetBytes = minMemoryBudgetBytes
	} else if c.MemoryBudgetBytes > maxMemoryBudgetBytes {
		c.MemoryBudgetBytes = maxMemoryBudgetBytes
	}

	if c.HNSWM < 2 || c.HNSWM > 100 {
		return fmt.Errorf("%w: hnsw_m must be in 2..100, got %d", ErrConfigInvalid, c.HNSWM)
	}

	if c.HNSWEfConstruction < 10 {
		return fmt.Errorf("%w: hnsw_ef_construction must be >= 10, got %d", ErrConfigInvalid, c.HNSWEfConstruction)
	}

	if c.HNSWEfSearch < 10 {
		return fmt.Errorf("%w: hnsw_ef_search must be >= 10, got %d", ErrConfigInvalid, c.HNSWEfSearch)
	}

	if c.EmbeddingDimensions < 1 {
		return fmt.Errorf("%w: embedding_dimensions must be >= 1, got %d", ErrConfigInvalid, c.EmbeddingDimensions)
	}

	if c.TextIndexMinTokenLength < 1 {
		return fmt.Errorf("%w: text_index_min_token_length must be >= 1, got %d", ErrConfigInvalid, c.TextIndexMinTokenLength)
	}

	if !c.MerkleHashAlgorithm.Valid() {
		return fmt.Errorf("%w: merkle_hash_algorithm %q is not one of sha256/sha384/sha512", ErrConfigInvalid, c.MerkleHashAlgorithm)
	}

	if c.WALMaxAgeMS < 0 {
		return fmt.Errorf("%w: wal_max_age_ms must be >= 0, got %d", ErrConfigInvalid, c.WALMaxAgeMS)
	}

	return nil
}

// mergeConfig overlays every non-zero-valued field of overlay onto base and
// returns the result, following the teacher's config.go merge shape.
func mergeConfig(base, overlay Config) Config {
	if overlay.DataDir != "" {
		base.DataDir = overlay.DataDir
	}

	if overlay.SegmentSizeBytes != 0 {
		base.SegmentSizeBytes = overlay.SegmentSizeBytes
	}

	if overlay.PersistEveryNWrites != 0 {
		base.PersistEveryNWrites = overlay.PersistEveryNWrites
	}

	if overlay.MemoryBudgetBytes != 0 {
		base.MemoryBudgetBytes = overlay.MemoryBudgetBytes
	}

	base.EnableConcurrentAccess = overlay.EnableConcurrentAccess || base.EnableConcurrentAccess

	if overlay.HNSWM != 0 {
		base.HNSWM = overlay.HNSWM
	}

	if overlay.HNSWEfConstruction != 0 {
		base.HNSWEfConstruction = overlay.HNSWEfConstruction
	}

	if overlay.HNSWEfSearch != 0 {
		base.HNSWEfSearch = overlay.HNSWEfSearch
	}

	if overlay.EmbeddingDimensions != 0 {
		base.EmbeddingDimensions = overlay.EmbeddingDimensions
	}

	if overlay.TextIndexMinTokenLength != 0 {
		base.TextIndexMinTokenLength = overlay.TextIndexMinTokenLength
	}

	base.TextIndexStopWords = overlay.TextIndexStopWords || base.TextIndexStopWords

	if overlay.MerkleHashAlgorithm != "" {
		base.MerkleHashAlgorithm = overlay.MerkleHashAlgorithm
	}

	base.WALSyncOnWrite = overlay.WALSyncOnWrite || base.WALSyncOnWrite

	if overlay.WALMaxAgeMS != 0 {
		base.WALMaxAgeMS = overlay.WALMaxAgeMS
	}

	return base
}

// LoadConfig layers defaults -> file (if path is non-empty and exists) ->
// overrides, the same precedence shape as the teacher's own LoadConfig. The
// config file is JSON-with-comments (JSONC), standardized via hujson before
// unmarshaling, so operators can hand-edit memstore.json with comments.
func LoadConfig(path string, overrides Config) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return Config{}, fmt.Errorf("memstore: read config %q: %w", path, err)
			}
		} else {
			fileCfg, err := parseConfigFile(data)
			if err != nil {
				return Config{}, fmt.Errorf("%w %s: %w", ErrConfigInvalid, path, err)
			}

			cfg = mergeConfig(cfg, fileCfg)
		}
	}

	cfg = mergeConfig(cfg, overrides)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func parseConfigFile(data []byte) (Config, error) {
	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("invalid JSONC: %w", err)
	}

	var cfg Config

	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("invalid JSON: %w", err)
	}

	return cfg, nil
}
