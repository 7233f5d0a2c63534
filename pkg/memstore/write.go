package memstore

import (
	"fmt"
	"sort"
	"time"

	"github.com/calvinalkan/memstore/pkg/record"
	"github.com/calvinalkan/memstore/pkg/segment"
)

// AddMemoryInput is everything a caller supplies for a brand-new memory.
// Version, timestamp, content_hash, and prev_hash are computed internally.
type AddMemoryInput struct {
	Category     string
	Type         string
	Content      string
	Tags         []string
	Importance   int
	CadenceType  string
	CadenceValue string
	Context      string
}

// UpdateMemoryInput replaces every mutable field of a memory, producing a
// new version chained onto the prior one via prev_hash.
type UpdateMemoryInput struct {
	Category     string
	Type         string
	Content      string
	Tags         []string
	Importance   int
	CadenceType  string
	CadenceValue string
	Context      string
}

func clampImportance(v int) int {
	if v < 1 {
		return 1
	}

	if v > 10 {
		return 10
	}

	return v
}

func sortedTags(tags []string) []string {
	out := make([]string, len(tags))
	copy(out, tags)
	sort.Strings(out)

	return out
}

// AddMemory builds version 1 of a new memory, embedding its content if an
// embedder is configured, and appends it through the standard write path.
func (s *Store) AddMemory(storeID, memoryID string, in AddMemoryInput) (*record.Memory, error) {
	if memoryID == "" {
		id, err := record.NewID()
		if err != nil {
			return nil, fmt.Errorf("memstore: generate memory id: %w", err)
		}

		memoryID = id
	}

	m := &record.Memory{
		MemoryID:     memoryID,
		Version:      1,
		StoreID:      storeID,
		Timestamp:    time.Now().UnixMilli(),
		Category:     in.Category,
		Type:         in.Type,
		Content:      in.Content,
		Tags:         sortedTags(in.Tags),
		Importance:   clampImportance(in.Importance),
		CadenceType:  in.CadenceType,
		CadenceValue: in.CadenceValue,
		Context:      in.Context,
	}

	embedding, err := s.embedIfConfigured(in.Content)
	if err != nil {
		return nil, err
	}

	m.Embedding = embedding

	if err := s.appendMemory(storeID, m); err != nil {
		return nil, err
	}

	return m, nil
}

// UpdateMemory creates the next version of memoryID, chaining prev_hash onto
// the current version and preserving, re-embedding, or clearing the
// embedding depending on whether content changed.
func (s *Store) UpdateMemory(storeID, memoryID string, in UpdateMemoryInput) (*record.Memory, error) {
	prev, err := s.GetMemory(storeID, memoryID)
	if err != nil {
		return nil, err
	}

	next := &record.Memory{
		MemoryID:     memoryID,
		Version:      prev.Version + 1,
		StoreID:      storeID,
		Timestamp:    time.Now().UnixMilli(),
		Category:     in.Category,
		Type:         in.Type,
		Content:      in.Content,
		Tags:         sortedTags(in.Tags),
		Importance:   clampImportance(in.Importance),
		CadenceType:  in.CadenceType,
		CadenceValue: in.CadenceValue,
		Context:      in.Context,
		PrevHash:     prev.ContentHash,
	}

	if next.Content == prev.Content {
		next.Embedding = prev.Embedding
	} else if embedding, err := s.embedIfConfigured(next.Content); err != nil {
		return nil, err
	} else {
		next.Embedding = embedding
	}

	if err := s.appendMemory(storeID, next); err != nil {
		return nil, err
	}

	return next, nil
}

// DeleteMemory soft-deletes memoryID: a new version with deleted = true,
// content unchanged, embedding cleared.
func (s *Store) DeleteMemory(storeID, memoryID string) (*record.Memory, error) {
	prev, err := s.GetMemory(storeID, memoryID)
	if err != nil {
		return nil, err
	}

	next := &record.Memory{
		MemoryID:     memoryID,
		Version:      prev.Version + 1,
		StoreID:      storeID,
		Timestamp:    time.Now().UnixMilli(),
		Category:     prev.Category,
		Type:         prev.Type,
		Content:      prev.Content,
		Tags:         prev.Tags,
		Importance:   prev.Importance,
		CadenceType:  prev.CadenceType,
		CadenceValue: prev.CadenceValue,
		Context:      prev.Context,
		Deleted:      true,
		PrevHash:     prev.ContentHash,
	}

	if err := s.appendMemory(storeID, next); err != nil {
		return nil, err
	}

	return next, nil
}

// AddRelationshipInput is everything a caller supplies for a brand-new
// relationship edge.
type AddRelationshipInput struct {
	MemoryID         string
	RelatedMemoryID  string
	RelationshipType string
}

// AddRelationship builds version 1 of a new relationship and appends it.
func (s *Store) AddRelationship(storeID, relationshipID string, in AddRelationshipInput) (*record.Relationship, error) {
	if relationshipID == "" {
		id, err := record.NewID()
		if err != nil {
			return nil, fmt.Errorf("memstore: generate relationship id: %w", err)
		}

		relationshipID = id
	}

	r := &record.Relationship{
		RelationshipID:   relationshipID,
		Version:          1,
		StoreID:          storeID,
		Timestamp:        time.Now().UnixMilli(),
		MemoryID:         in.MemoryID,
		RelatedMemoryID:  in.RelatedMemoryID,
		RelationshipType: in.RelationshipType,
	}

	if err := s.appendRelationship(storeID, r); err != nil {
		return nil, err
	}

	return r, nil
}

// RemoveRelationship soft-deletes relationshipID: a new version with
// deleted = true.
func (s *Store) RemoveRelationship(storeID, relationshipID string) (*record.Relationship, error) {
	prev, err := s.GetRelationship(storeID, relationshipID)
	if err != nil {
		return nil, err
	}

	next := &record.Relationship{
		RelationshipID:   relationshipID,
		Version:          prev.Version + 1,
		StoreID:          storeID,
		Timestamp:        time.Now().UnixMilli(),
		MemoryID:         prev.MemoryID,
		RelatedMemoryID:  prev.RelatedMemoryID,
		RelationshipType: prev.RelationshipType,
		Deleted:          true,
		PrevHash:         prev.ContentHash,
	}

	if err := s.appendRelationship(storeID, next); err != nil {
		return nil, err
	}

	return next, nil
}

func (s *Store) embedIfConfigured(content string) ([]float32, error) {
	if s.embed == nil {
		return nil, nil
	}

	embedding, err := s.embed(content)
	if err != nil {
		return nil, fmt.Errorf("memstore: embed: %w", err)
	}

	return embedding, nil
}

func (s *Store) appendMemory(storeID string, m *record.Memory) error {
	hash, err := record.ComputeContentHash(s.config.MerkleHashAlgorithm, record.NewMemoryRecord(m))
	if err != nil {
		return fmt.Errorf("memstore: hash memory: %w", err)
	}

	m.ContentHash = hash

	return s.appendRecord(storeID, record.NewMemoryRecord(m))
}

func (s *Store) appendRelationship(storeID string, r *record.Relationship) error {
	hash, err := record.ComputeContentHash(s.config.MerkleHashAlgorithm, record.NewRelationshipRecord(r))
	if err != nil {
		return fmt.Errorf("memstore: hash relationship: %w", err)
	}

	r.ContentHash = hash

	return s.appendRecord(storeID, record.NewRelationshipRecord(r))
}

// appendRecord is the shared write-path tail (spec.md §4.H steps 2-5): WAL
// append, index fan-out, conditional persist, conditional rotation.
func (s *Store) appendRecord(storeID string, rec *record.Record) error {
	inst, err := s.getInstance(storeID)
	if err != nil {
		return err
	}

	inst.mu.Lock()
	defer inst.mu.Unlock()

	offset, _, err := inst.wal.Append(rec)
	if err != nil {
		return fmt.Errorf("memstore: wal append: %w", err)
	}

	if err := inst.fanOut(rec, segment.WALLocation(offset)); err != nil {
		return err
	}

	if err := inst.maybePersistLocked(); err != nil {
		return err
	}

	if inst.wal.ShouldRotate() {
		if err := inst.rotateLocked(); err != nil {
			return err
		}
	}

	return nil
}
