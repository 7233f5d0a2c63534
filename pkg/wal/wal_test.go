package wal_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/calvinalkan/memstore/pkg/fs"
	"github.com/calvinalkan/memstore/pkg/record"
	"github.com/calvinalkan/memstore/pkg/wal"
)

func newMemoryRecord(t *testing.T, id, content string) *record.Record {
	t.Helper()

	m := &record.Memory{MemoryID: id, Version: 1, StoreID: "main", Category: "c", Type: "t", Content: content}
	rec := record.NewMemoryRecord(m)

	hash, err := record.ComputeContentHash(record.SHA256, rec)
	require.NoError(t, err)

	m.ContentHash = hash

	return rec
}

func Test_Open_CreatesEmptyWALWithHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	w, err := wal.Open(fs.NewReal(), path, "main", wal.DefaultOptions())
	require.NoError(t, err)
	defer w.Close()

	require.Empty(t, w.GetRecords())
	require.False(t, w.TruncatedOnOpen())
}

func Test_Append_ThenReopen_RecordsSurvive(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	fsys := fs.NewReal()

	w, err := wal.Open(fsys, path, "main", wal.DefaultOptions())
	require.NoError(t, err)

	_, _, err = w.Append(newMemoryRecord(t, "m1", "Alice"))
	require.NoError(t, err)
	_, _, err = w.Append(newMemoryRecord(t, "m2", "Bob"))
	require.NoError(t, err)

	require.NoError(t, w.Close())

	reopened, err := wal.Open(fsys, path, "main", wal.DefaultOptions())
	require.NoError(t, err)
	defer reopened.Close()

	require.False(t, reopened.TruncatedOnOpen())

	got := reopened.GetRecords()
	require.Len(t, got, 2)
	require.Equal(t, "m1", got[0].ID())
	require.Equal(t, "m2", got[1].ID())
}

func Test_Open_WrongStoreID_ReturnsErrStoreIDMismatch(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	fsys := fs.NewReal()

	w, err := wal.Open(fsys, path, "main", wal.DefaultOptions())
	require.NoError(t, err)
	require.NoError(t, w.Close())

	_, err = wal.Open(fsys, path, "fork-1", wal.DefaultOptions())
	require.ErrorIs(t, err, wal.ErrStoreIDMismatch)
}

func Test_Open_TruncatedTrailingFrame_RecoversAndFixesHeader(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	fsys := fs.NewReal()

	w, err := wal.Open(fsys, path, "main", wal.DefaultOptions())
	require.NoError(t, err)

	_, _, err = w.Append(newMemoryRecord(t, "m1", "Alice"))
	require.NoError(t, err)

	goodSize := w.Size()

	_, _, err = w.Append(newMemoryRecord(t, "m2", "Bob"))
	require.NoError(t, err)

	require.NoError(t, w.Close())

	// Simulate a dirty shutdown: truncate mid-write of the second frame.
	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	partial := raw[:goodSize+5]
	require.NoError(t, os.WriteFile(path, partial, 0o644))

	recovered, err := wal.Open(fsys, path, "main", wal.DefaultOptions())
	require.NoError(t, err)
	defer recovered.Close()

	require.True(t, recovered.TruncatedOnOpen())

	got := recovered.GetRecords()
	require.Len(t, got, 1)
	require.Equal(t, "m1", got[0].ID())
	require.Equal(t, goodSize, recovered.Size())
}

func Test_ShouldRotate_SizeThreshold(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")

	opts := wal.DefaultOptions()
	opts.SegmentSizeBytes = 21 // one byte past the 20-byte header for "main": rotation due after the first append

	w, err := wal.Open(fs.NewReal(), path, "main", opts)
	require.NoError(t, err)
	defer w.Close()

	require.False(t, w.ShouldRotate())

	_, _, err = w.Append(newMemoryRecord(t, "m1", "Alice"))
	require.NoError(t, err)

	require.True(t, w.ShouldRotate())
}

func Test_Rotate_MovesRecordsAndResetsWAL(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "wal.log")
	segPath := filepath.Join(dir, "00000001.seg")
	fsys := fs.NewReal()

	w, err := wal.Open(fsys, path, "main", wal.DefaultOptions())
	require.NoError(t, err)
	defer w.Close()

	_, _, err = w.Append(newMemoryRecord(t, "m1", "Alice"))
	require.NoError(t, err)
	_, _, err = w.Append(newMemoryRecord(t, "m2", "Bob"))
	require.NoError(t, err)

	moved, err := w.Rotate(segPath)
	require.NoError(t, err)
	require.Len(t, moved, 2)

	require.Empty(t, w.GetRecords())

	exists, err := fsys.Exists(segPath)
	require.NoError(t, err)
	require.True(t, exists)

	seg, err := fsys.ReadFile(segPath)
	require.NoError(t, err)

	header, _, err := wal.DecodeHeader(seg)
	require.NoError(t, err)
	require.Equal(t, uint32(2), header.RecordCount)
}
