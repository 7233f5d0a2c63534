package record_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/memstore/pkg/record"
)

func Test_Clone_Memory_IsIndependentOfOriginal(t *testing.T) {
	t.Parallel()

	m := &record.Memory{
		MemoryID: "mem-1", Version: 1, StoreID: "main", Timestamp: 1000,
		Category: "people", Type: "person", Content: "Alice",
		Tags:       []string{"friend", "work"},
		Importance: 5,
		Embedding:  []float32{0.1, 0.2, 0.3},
	}
	rec := record.NewMemoryRecord(m)

	clone := rec.Clone()

	require.Equal(t, rec.Memory.MemoryID, clone.Memory.MemoryID)
	require.Equal(t, rec.Memory.Content, clone.Memory.Content)

	// Mutating the original's backing slices must not affect the clone,
	// and vice versa: this is the guarantee CreateForkAtTime's replay loop
	// depends on when it clones a source record before handing it to a
	// fork's own WAL and fan-out.
	m.Tags[0] = "mutated"
	m.Embedding[0] = 99

	require.Equal(t, "friend", clone.Memory.Tags[0])
	require.Equal(t, float32(0.1), clone.Memory.Embedding[0])

	clone.Memory.Tags[0] = "also-mutated"
	require.Equal(t, "mutated", rec.Memory.Tags[0])
}

func Test_Clone_Relationship_IsIndependentOfOriginal(t *testing.T) {
	t.Parallel()

	rel := &record.Relationship{
		RelationshipID: "rel-1", Version: 1, StoreID: "main", Timestamp: 2000,
		MemoryID: "mem-1", RelatedMemoryID: "mem-2", RelationshipType: record.RelatedTo,
	}
	rec := record.NewRelationshipRecord(rel)

	clone := rec.Clone()

	require.Equal(t, rec.Relationship.RelationshipID, clone.Relationship.RelationshipID)
	require.NotSame(t, rec.Relationship, clone.Relationship)

	rel.RelationshipType = "mutated"
	require.Equal(t, record.RelatedTo, clone.Relationship.RelationshipType)
}
