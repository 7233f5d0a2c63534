package vectorindex_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/memstore/pkg/fs"
	"github.com/calvinalkan/memstore/pkg/vectorindex"
)

func unitVec(dims int, hot int) []float32 {
	v := make([]float32, dims)
	v[hot] = 1

	return v
}

func Test_Add_WrongDimensions_ReturnsDimensionMismatchError(t *testing.T) {
	t.Parallel()

	idx := vectorindex.New(vectorindex.DefaultConfig(4))

	err := idx.Add("a", []float32{1, 2, 3})

	var mismatch vectorindex.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
	require.Equal(t, 4, mismatch.Expected)
	require.Equal(t, 3, mismatch.Got)
}

func Test_Search_EmptyIndex_ReturnsNoResults(t *testing.T) {
	t.Parallel()

	idx := vectorindex.New(vectorindex.DefaultConfig(4))

	results, err := idx.Search(unitVec(4, 0), 5, 0)
	require.NoError(t, err)
	require.Empty(t, results)
}

func Test_Search_FindsExactMatchFirst(t *testing.T) {
	t.Parallel()

	idx := vectorindex.New(vectorindex.DefaultConfig(4))

	require.NoError(t, idx.Add("a", unitVec(4, 0)))
	require.NoError(t, idx.Add("b", unitVec(4, 1)))
	require.NoError(t, idx.Add("c", unitVec(4, 2)))

	results, err := idx.Search(unitVec(4, 0), 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.Equal(t, "a", results[0].ID)
	require.InDelta(t, 0, results[0].Distance, 1e-6)
}

func Test_Add_ReplacesExistingID(t *testing.T) {
	t.Parallel()

	idx := vectorindex.New(vectorindex.DefaultConfig(4))

	require.NoError(t, idx.Add("a", unitVec(4, 0)))
	require.NoError(t, idx.Add("a", unitVec(4, 1)))

	require.Equal(t, 1, idx.Count())

	results, err := idx.Search(unitVec(4, 1), 1, 0)
	require.NoError(t, err)
	require.Equal(t, "a", results[0].ID)
	require.InDelta(t, 0, results[0].Distance, 1e-6)
}

func Test_Delete_RemovesFromSearchResults(t *testing.T) {
	t.Parallel()

	idx := vectorindex.New(vectorindex.DefaultConfig(4))

	require.NoError(t, idx.Add("a", unitVec(4, 0)))
	require.NoError(t, idx.Add("b", unitVec(4, 1)))

	require.NoError(t, idx.Delete("a"))
	require.False(t, idx.Contains("a"))

	results, err := idx.Search(unitVec(4, 0), 5, 0)
	require.NoError(t, err)

	for _, r := range results {
		require.NotEqual(t, "a", r.ID)
	}
}

func Test_Delete_Unknown_ReturnsErrNotFound(t *testing.T) {
	t.Parallel()

	idx := vectorindex.New(vectorindex.DefaultConfig(4))

	err := idx.Delete("ghost")
	require.ErrorIs(t, err, vectorindex.ErrNotFound)
}

func Test_RandomLevelAssignment_IsDeterministicPerSeed(t *testing.T) {
	t.Parallel()

	cfg := vectorindex.DefaultConfig(4)
	cfg.Seed = 42

	idxA := vectorindex.New(cfg)
	idxB := vectorindex.New(cfg)

	for i := 0; i < 20; i++ {
		id := string(rune('a' + i))
		vec := unitVec(4, i%4)
		require.NoError(t, idxA.Add(id, vec))
		require.NoError(t, idxB.Add(id, vec))
	}

	// Same seed and same insertion order build the same graph, so the same
	// query returns the same ranked results from both indexes.
	resA, err := idxA.Search(unitVec(4, 0), 5, 0)
	require.NoError(t, err)
	resB, err := idxB.Search(unitVec(4, 0), 5, 0)
	require.NoError(t, err)
	require.Equal(t, resA, resB)
	require.ElementsMatch(t, idxA.AllIDs(), idxB.AllIDs())
}

func Test_SaveLoad_RoundTrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "vector.idx")

	cfg := vectorindex.DefaultConfig(4)
	idx := vectorindex.New(cfg)

	require.NoError(t, idx.Add("a", unitVec(4, 0)))
	require.NoError(t, idx.Add("b", unitVec(4, 1)))
	require.NoError(t, idx.Add("c", unitVec(4, 2)))

	require.NoError(t, vectorindex.Save(idx, path))

	loaded, err := vectorindex.Load(fs.NewReal(), path, cfg)
	require.NoError(t, err)

	require.Equal(t, idx.Count(), loaded.Count())
	require.True(t, loaded.Contains("a"))
	require.True(t, loaded.Contains("b"))
	require.True(t, loaded.Contains("c"))

	results, err := loaded.Search(unitVec(4, 0), 1, 0)
	require.NoError(t, err)
	require.Equal(t, "a", results[0].ID)
}

func Test_Load_DimensionMismatch_IsFatal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "vector.idx")

	idx := vectorindex.New(vectorindex.DefaultConfig(4))
	require.NoError(t, idx.Add("a", unitVec(4, 0)))
	require.NoError(t, vectorindex.Save(idx, path))

	_, err := vectorindex.Load(fs.NewReal(), path, vectorindex.DefaultConfig(8))

	var mismatch vectorindex.DimensionMismatchError
	require.ErrorAs(t, err, &mismatch)
}

func Test_Load_MissingFile_ReturnsEmptyIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	idx, err := vectorindex.Load(fs.NewReal(), filepath.Join(dir, "missing.idx"), vectorindex.DefaultConfig(4))
	require.NoError(t, err)
	require.Equal(t, 0, idx.Count())
}
