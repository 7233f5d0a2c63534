package memstore_test

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/memstore/pkg/memstore"
)

func newStore(t *testing.T, embed memstore.EmbedFunc) *memstore.Store {
	t.Helper()

	cfg := memstore.DefaultConfig()
	cfg.DataDir = filepath.Join(t.TempDir(), "data")
	cfg.PersistEveryNWrites = 1

	s, err := memstore.Open(cfg, embed, nil)
	require.NoError(t, err)

	t.Cleanup(func() { _ = s.Close() })

	return s
}

func Test_AddMemory_ThenGetMemory_RoundTrips(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	m, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{
		Category: "journal", Type: "note", Content: "hello world", Importance: 5,
	})
	require.NoError(t, err)
	require.Equal(t, 1, m.Version)
	require.NotEmpty(t, m.ContentHash)

	got, err := s.GetMemory(memstore.MainStoreID, m.MemoryID)
	require.NoError(t, err)
	require.Equal(t, "hello world", got.Content)
	require.Equal(t, m.ContentHash, got.ContentHash)
}

func Test_AddMemory_ClampsImportance(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	tooLow, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Importance: -5, Content: "x"})
	require.NoError(t, err)
	require.Equal(t, 1, tooLow.Importance)

	tooHigh, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Importance: 99, Content: "y"})
	require.NoError(t, err)
	require.Equal(t, 10, tooHigh.Importance)
}

func Test_AddMemory_SortsTags(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	m, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{
		Content: "x", Tags: []string{"zeta", "alpha", "mu"},
	})
	require.NoError(t, err)
	require.Equal(t, []string{"alpha", "mu", "zeta"}, m.Tags)
}

func Test_UpdateMemory_ChainsVersionAndPrevHash(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	v1, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "first"})
	require.NoError(t, err)

	v2, err := s.UpdateMemory(memstore.MainStoreID, v1.MemoryID, memstore.UpdateMemoryInput{Content: "second"})
	require.NoError(t, err)

	require.Equal(t, 2, v2.Version)
	require.Equal(t, v1.ContentHash, v2.PrevHash)

	got, err := s.GetMemory(memstore.MainStoreID, v1.MemoryID)
	require.NoError(t, err)
	require.Equal(t, "second", got.Content)
	require.Equal(t, 2, got.Version)
}

func Test_UpdateMemory_PreservesEmbeddingWhenContentUnchanged(t *testing.T) {
	t.Parallel()

	embed := func(text string) ([]float32, error) {
		return make([]float32, 384), nil
	}

	s := newStore(t, embed)

	v1, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "same"})
	require.NoError(t, err)
	require.Len(t, v1.Embedding, 384)

	v2, err := s.UpdateMemory(memstore.MainStoreID, v1.MemoryID, memstore.UpdateMemoryInput{Content: "same"})
	require.NoError(t, err)
	require.Equal(t, v1.Embedding, v2.Embedding)
}

func Test_UpdateMemory_ClearsEmbeddingWhenContentChangesAndNoEmbedder(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	v1, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "a"})
	require.NoError(t, err)

	v2, err := s.UpdateMemory(memstore.MainStoreID, v1.MemoryID, memstore.UpdateMemoryInput{Content: "b"})
	require.NoError(t, err)
	require.Nil(t, v2.Embedding)
}

func Test_DeleteMemory_SoftDeletesAndPreservesContent(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	v1, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "keep me"})
	require.NoError(t, err)

	deleted, err := s.DeleteMemory(memstore.MainStoreID, v1.MemoryID)
	require.NoError(t, err)
	require.True(t, deleted.Deleted)
	require.Equal(t, "keep me", deleted.Content)
	require.Equal(t, 2, deleted.Version)
}

func Test_GetMemory_UnknownID_ReturnsErrIDNotFound(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	_, err := s.GetMemory(memstore.MainStoreID, "does-not-exist")
	require.ErrorIs(t, err, memstore.ErrIDNotFound)
}

func Test_AddRelationship_ThenRemove(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	a, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "a"})
	require.NoError(t, err)

	b, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "b"})
	require.NoError(t, err)

	rel, err := s.AddRelationship(memstore.MainStoreID, "", memstore.AddRelationshipInput{
		MemoryID: a.MemoryID, RelatedMemoryID: b.MemoryID, RelationshipType: "related_to",
	})
	require.NoError(t, err)

	removed, err := s.RemoveRelationship(memstore.MainStoreID, rel.RelationshipID)
	require.NoError(t, err)
	require.True(t, removed.Deleted)
	require.Equal(t, 2, removed.Version)
}

func Test_ListMemories_FiltersByCategoryAndType(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	_, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Category: "work", Type: "task", Content: "a"})
	require.NoError(t, err)
	_, err = s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Category: "work", Type: "note", Content: "b"})
	require.NoError(t, err)
	_, err = s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Category: "home", Type: "task", Content: "c"})
	require.NoError(t, err)

	work, err := s.ListMemories(memstore.MainStoreID, memstore.ListMemoriesOptions{Category: "work"})
	require.NoError(t, err)
	require.Len(t, work, 2)

	workTasks, err := s.ListMemories(memstore.MainStoreID, memstore.ListMemoriesOptions{Category: "work", Type: "task"})
	require.NoError(t, err)
	require.Len(t, workTasks, 1)
	require.Equal(t, "a", workTasks[0].Content)
}

func Test_ListMemories_ExcludesDeletedByDefault(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	m, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "x"})
	require.NoError(t, err)

	_, err = s.DeleteMemory(memstore.MainStoreID, m.MemoryID)
	require.NoError(t, err)

	visible, err := s.ListMemories(memstore.MainStoreID, memstore.ListMemoriesOptions{})
	require.NoError(t, err)
	require.Empty(t, visible)

	all, err := s.ListMemories(memstore.MainStoreID, memstore.ListMemoriesOptions{IncludeDeleted: true})
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func Test_ListMemories_RespectsLimitAndOffset(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	for i := 0; i < 5; i++ {
		_, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "x"})
		require.NoError(t, err)
	}

	page, err := s.ListMemories(memstore.MainStoreID, memstore.ListMemoriesOptions{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, page, 2)
}

func Test_GetDueMemories_DailyAlwaysDue(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	_, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{
		Content: "daily reminder", CadenceType: "daily",
	})
	require.NoError(t, err)

	due, err := s.GetDueMemories(memstore.MainStoreID, time.Now())
	require.NoError(t, err)
	require.Len(t, due, 1)
}

func Test_GetDueMemories_WeeklyOnlyOnSunday(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	_, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{
		Content: "weekly reminder", CadenceType: "weekly",
	})
	require.NoError(t, err)

	sunday := time.Date(2026, time.August, 2, 0, 0, 0, 0, time.UTC)
	monday := time.Date(2026, time.August, 3, 0, 0, 0, 0, time.UTC)

	due, err := s.GetDueMemories(memstore.MainStoreID, sunday)
	require.NoError(t, err)
	require.Len(t, due, 1)

	due, err = s.GetDueMemories(memstore.MainStoreID, monday)
	require.NoError(t, err)
	require.Empty(t, due)
}

func Test_Search_TextMode_FindsMatchingContent(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	_, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "the quick brown fox"})
	require.NoError(t, err)
	_, err = s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "totally unrelated text"})
	require.NoError(t, err)

	results, err := s.Search(memstore.MainStoreID, memstore.SearchOptions{Mode: memstore.SearchText, Query: "quick fox"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	require.Equal(t, "the quick brown fox", results[0].Memory.Content)
}

func Test_Search_HybridMode_WithoutEmbedder_FallsBackToText(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	_, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "apples and oranges"})
	require.NoError(t, err)

	results, err := s.Search(memstore.MainStoreID, memstore.SearchOptions{Query: "apples"})
	require.NoError(t, err)
	require.NotEmpty(t, results)
}

func Test_CreateFork_CopiesRecordsAndIsIndependent(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	m, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "original"})
	require.NoError(t, err)

	forkID, err := s.CreateFork(memstore.MainStoreID, memstore.CreateForkOptions{ForkID: "fork-a"})
	require.NoError(t, err)
	require.Equal(t, "fork-a", forkID)

	forked, err := s.GetMemory(forkID, m.MemoryID)
	require.NoError(t, err)
	require.Equal(t, "original", forked.Content)

	_, err = s.UpdateMemory(forkID, m.MemoryID, memstore.UpdateMemoryInput{Content: "changed in fork"})
	require.NoError(t, err)

	mainCopy, err := s.GetMemory(memstore.MainStoreID, m.MemoryID)
	require.NoError(t, err)
	require.Equal(t, "original", mainCopy.Content)
}

func Test_CreateFork_DuplicateID_ReturnsErrForkExists(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	_, err := s.CreateFork(memstore.MainStoreID, memstore.CreateForkOptions{ForkID: "dup"})
	require.NoError(t, err)

	_, err = s.CreateFork(memstore.MainStoreID, memstore.CreateForkOptions{ForkID: "dup"})
	require.ErrorIs(t, err, memstore.ErrForkExists)
}

func Test_DeleteFork_RefusesMain(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	err := s.DeleteFork(memstore.MainStoreID)
	require.ErrorIs(t, err, memstore.ErrCannotDeleteMain)
}

func Test_DeleteFork_RemovesItFromStoreIDs(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	_, err := s.CreateFork(memstore.MainStoreID, memstore.CreateForkOptions{ForkID: "temp"})
	require.NoError(t, err)
	require.Contains(t, s.StoreIDs(), "temp")

	require.NoError(t, s.DeleteFork("temp"))
	require.NotContains(t, s.StoreIDs(), "temp")
}

func Test_CreateForkAtTime_ExcludesRecordsAfterCutoff(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	m, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "before cutoff"})
	require.NoError(t, err)

	cutoff := time.Now().UnixMilli()

	time.Sleep(5 * time.Millisecond)

	_, err = s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "after cutoff"})
	require.NoError(t, err)

	forkID, err := s.CreateForkAtTime(memstore.MainStoreID, cutoff, memstore.CreateForkOptions{ForkID: "pitr"})
	require.NoError(t, err)

	memories, err := s.ListMemories(forkID, memstore.ListMemoriesOptions{})
	require.NoError(t, err)
	require.Len(t, memories, 1)
	require.Equal(t, m.MemoryID, memories[0].MemoryID)
}

func Test_CreateSnapshot_ThenRestoreSnapshot(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	_, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "snapshot me"})
	require.NoError(t, err)

	snapID, err := s.CreateSnapshot(memstore.MainStoreID)
	require.NoError(t, err)
	require.NotEmpty(t, snapID)

	forkID, err := s.RestoreSnapshot(snapID, memstore.CreateForkOptions{ForkID: "restored"})
	require.NoError(t, err)

	memories, err := s.ListMemories(forkID, memstore.ListMemoriesOptions{})
	require.NoError(t, err)
	require.Len(t, memories, 1)
}

func Test_VerifyIntegrity_FreshStoreReportsOK(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	_, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "x"})
	require.NoError(t, err)

	report, err := s.VerifyIntegrity(memstore.MainStoreID)
	require.NoError(t, err)
	require.True(t, report.OK)
	require.False(t, report.MerkleRootMismatch)
	require.False(t, report.RecordCountMismatch)
}

func Test_RebuildIndexes_PreservesReadableState(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	m, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "rebuild me"})
	require.NoError(t, err)

	require.NoError(t, s.RebuildIndexes(memstore.MainStoreID))

	got, err := s.GetMemory(memstore.MainStoreID, m.MemoryID)
	require.NoError(t, err)
	require.Equal(t, "rebuild me", got.Content)
}

func Test_CompactWAL_RotatesAndReportsCount(t *testing.T) {
	t.Parallel()

	s := newStore(t, nil)

	_, err := s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "x"})
	require.NoError(t, err)
	_, err = s.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "y"})
	require.NoError(t, err)

	rotated, total, err := s.CompactWAL(memstore.MainStoreID)
	require.NoError(t, err)
	require.True(t, rotated)
	require.Equal(t, 2, total)

	rotatedAgain, _, err := s.CompactWAL(memstore.MainStoreID)
	require.NoError(t, err)
	require.False(t, rotatedAgain)
}

func Test_Open_ReopensExistingStore_DataSurvives(t *testing.T) {
	t.Parallel()

	dataDir := filepath.Join(t.TempDir(), "data")
	cfg := memstore.DefaultConfig()
	cfg.DataDir = dataDir
	cfg.PersistEveryNWrites = 1

	s1, err := memstore.Open(cfg, nil, nil)
	require.NoError(t, err)

	m, err := s1.AddMemory(memstore.MainStoreID, "", memstore.AddMemoryInput{Content: "durable"})
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := memstore.Open(cfg, nil, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s2.Close() })

	got, err := s2.GetMemory(memstore.MainStoreID, m.MemoryID)
	require.NoError(t, err)
	require.Equal(t, "durable", got.Content)
}
