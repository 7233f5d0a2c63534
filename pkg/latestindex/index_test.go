package latestindex_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/memstore/pkg/fs"
	"github.com/calvinalkan/memstore/pkg/latestindex"
	"github.com/calvinalkan/memstore/pkg/record"
	"github.com/calvinalkan/memstore/pkg/segment"
)

func Test_Update_MonotoneVersion_IgnoresOlder(t *testing.T) {
	t.Parallel()

	idx := latestindex.New()

	idx.Update(record.KindMemory, "m1", latestindex.Entry{Version: 2, ContentHash: "v2"})
	idx.Update(record.KindMemory, "m1", latestindex.Entry{Version: 1, ContentHash: "v1"})

	entry, ok := idx.Get(record.KindMemory, "m1")
	require.True(t, ok)
	require.Equal(t, 2, entry.Version)
	require.Equal(t, "v2", entry.ContentHash)
}

func Test_Update_EqualVersion_Overwrites(t *testing.T) {
	t.Parallel()

	idx := latestindex.New()

	idx.Update(record.KindMemory, "m1", latestindex.Entry{
		Version:  1,
		Location: segment.WALLocation(40),
	})
	idx.Update(record.KindMemory, "m1", latestindex.Entry{
		Version:  1,
		Location: segment.Location{SegmentNumber: 1, Offset: 16},
	})

	entry, ok := idx.Get(record.KindMemory, "m1")
	require.True(t, ok)
	require.False(t, entry.Location.InWAL())
	require.Equal(t, uint32(1), entry.Location.SegmentNumber)
}

func Test_Count_ExcludesDeletedByDefault(t *testing.T) {
	t.Parallel()

	idx := latestindex.New()
	idx.Update(record.KindMemory, "a", latestindex.Entry{Version: 1})
	idx.Update(record.KindMemory, "b", latestindex.Entry{Version: 1, Deleted: true})

	require.Equal(t, 1, idx.Count(record.KindMemory, false))
	require.Equal(t, 2, idx.Count(record.KindMemory, true))
}

func Test_Iterate_OrdersByID_AndRespectsIncludeDeleted(t *testing.T) {
	t.Parallel()

	idx := latestindex.New()
	idx.Update(record.KindMemory, "b", latestindex.Entry{Version: 1})
	idx.Update(record.KindMemory, "a", latestindex.Entry{Version: 1})
	idx.Update(record.KindMemory, "c", latestindex.Entry{Version: 1, Deleted: true})

	var seen []string

	idx.Iterate(record.KindMemory, false, func(id string, entry latestindex.Entry) bool {
		seen = append(seen, id)

		return true
	})

	require.Equal(t, []string{"a", "b"}, seen)
}

func Test_MemoriesAndRelationships_DoNotCollide(t *testing.T) {
	t.Parallel()

	idx := latestindex.New()
	idx.Update(record.KindMemory, "x", latestindex.Entry{Version: 1, ContentHash: "mem"})
	idx.Update(record.KindRelationship, "x", latestindex.Entry{Version: 1, ContentHash: "rel"})

	m, _ := idx.Get(record.KindMemory, "x")
	r, _ := idx.Get(record.KindRelationship, "x")

	require.Equal(t, "mem", m.ContentHash)
	require.Equal(t, "rel", r.ContentHash)
}

func Test_SaveLoad_RoundTrips(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "latest.idx")

	idx := latestindex.New()
	idx.Update(record.KindMemory, "m1", latestindex.Entry{
		Version: 2, Timestamp: 123, ContentHash: "abc",
		Location: segment.Location{SegmentNumber: 3, Offset: 64},
	})
	idx.Update(record.KindRelationship, "r1", latestindex.Entry{
		Version: 1, Timestamp: 99, Deleted: true, Location: segment.WALLocation(10),
	})

	require.NoError(t, latestindex.Save(idx, path))
	require.False(t, idx.Dirty())

	loaded, err := latestindex.Load(fs.NewReal(), path)
	require.NoError(t, err)

	m, ok := loaded.Get(record.KindMemory, "m1")
	require.True(t, ok)
	require.Equal(t, 2, m.Version)
	require.Equal(t, int64(123), m.Timestamp)
	require.Equal(t, "abc", m.ContentHash)
	require.Equal(t, uint32(3), m.Location.SegmentNumber)
	require.Equal(t, int64(64), m.Location.Offset)

	r, ok := loaded.Get(record.KindRelationship, "r1")
	require.True(t, ok)
	require.True(t, r.Deleted)
	require.True(t, r.Location.InWAL())
}

func Test_Load_MissingFile_ReturnsEmptyIndex(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	idx, err := latestindex.Load(fs.NewReal(), filepath.Join(dir, "missing.idx"))
	require.NoError(t, err)
	require.Equal(t, 0, idx.Count(record.KindMemory, true))
}

func Test_Load_BadMagic_Errors(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "bad.idx")

	fsys := fs.NewReal()
	require.NoError(t, fsys.WriteFile(path, []byte("XXXXXXXXgarbage"), 0o644))

	_, err := latestindex.Load(fsys, path)
	require.ErrorIs(t, err, latestindex.ErrBadMagic)
}
