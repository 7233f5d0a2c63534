// Package fs's atomic-write primitive exists for exactly one production
// caller: wal.openExisting's dirty-shutdown truncation recovery. A WAL that
// was killed mid-frame has its good prefix rewritten in place with a
// corrected record_count, discarding the partial trailing frame, and that
// rewrite must itself be crash-safe (a second crash during the rewrite must
// never leave neither the old nor the new content on disk). The API below
// is shaped for that one call site rather than generic file writing.
package fs

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
)

// ErrAtomicWriteDirSync indicates the parent directory could not be synced after rename.
//
// When returned, the rewritten WAL file is in place but durability of the
// rename itself is not guaranteed. Callers can detect this with
// errors.Is(err, ErrAtomicWriteDirSync).
var ErrAtomicWriteDirSync = errors.New("dir sync")

// atomicWriteFilePerm is the permission used for a rewritten WAL file, same
// as the permission the WAL opens its segments and active file with.
const atomicWriteFilePerm = 0o644

// AtomicWriter rewrites a WAL file's on-disk bytes atomically: write a temp
// file in the same directory, sync it, rename it over the original, then
// sync the parent directory.
type AtomicWriter struct {
	fs FS
}

// NewAtomicWriter creates an AtomicWriter that uses the given filesystem.
// Panics if fs is nil.
func NewAtomicWriter(fs FS) *AtomicWriter {
	if fs == nil {
		panic("fs is nil")
	}

	return &AtomicWriter{fs: fs}
}

// RewriteDurableLog atomically replaces path's contents with good: the
// truncated-to-last-good-frame bytes produced by a WAL's dirty-shutdown
// recovery scan. If the directory sync step fails, the returned error
// satisfies errors.Is(err, ErrAtomicWriteDirSync); the rewritten content is
// on disk regardless, since rename itself already landed.
func (w *AtomicWriter) RewriteDurableLog(path string, good []byte) error {
	if path == "" {
		return errors.New("path is empty")
	}

	dir, base := filepath.Split(path)
	if base == "" || base == string(os.PathSeparator) || base == "." {
		return fmt.Errorf("path is invalid: %q", path)
	}

	if dir == "" {
		dir = "."
	}

	dir = filepath.Clean(dir)

	tmpFile, tmpPath, err := createAtomicTempFile(w.fs, dir, base, atomicWriteFilePerm)
	if err != nil {
		return err
	}

	cleanup := func() error {
		closeErr := closeTmpFile(tmpPath, tmpFile)
		removeErr := removeTempFile(w.fs, tmpPath)

		return errors.Join(closeErr, removeErr)
	}

	chmodErr := tmpFile.Chmod(atomicWriteFilePerm)
	if chmodErr != nil {
		return errors.Join(
			fmt.Errorf("chmod temp wal file %q: %w", tmpPath, chmodErr),
			cleanup(),
		)
	}

	writeErr := writeAndSyncTempFile(tmpFile, tmpPath, good)
	if writeErr != nil {
		return errors.Join(
			writeErr,
			cleanup(),
		)
	}

	renameErr := w.fs.Rename(tmpPath, path)
	if renameErr != nil {
		return errors.Join(
			fmt.Errorf("rename recovered wal %q: %w", path, renameErr),
			cleanup(),
		)
	}

	cleanupErr := cleanup()

	if err := fsyncDir(w.fs, dir); err != nil {
		return errors.Join(err, cleanupErr)
	}

	// Don't surface cleanup errors if all main operations worked.
	return nil
}

func writeAndSyncTempFile(file File, path string, good []byte) error {
	if _, err := file.Write(good); err != nil {
		return fmt.Errorf("write temp wal file %q: %w", path, err)
	}

	if err := file.Sync(); err != nil {
		return fmt.Errorf("sync temp wal file %q: %w", path, err)
	}

	return nil
}

const atomicWriteMaxAttempts = 10000

var atomicWriteCounter atomic.Uint64

func createAtomicTempFile(fs FS, dir, base string, perm os.FileMode) (File, string, error) {
	for range atomicWriteMaxAttempts {
		seq := atomicWriteCounter.Add(1)
		path := filepath.Join(dir, fmt.Sprintf(".%s.tmp-%d", base, seq))

		file, err := fs.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
		if err == nil {
			return file, path, nil
		}

		if os.IsExist(err) {
			continue
		}

		return nil, "", fmt.Errorf("create temp file: %w", err)
	}

	return nil, "", fmt.Errorf("exhausted temp file attempts in %q", dir)
}

func fsyncDir(fs FS, dirPath string) error {
	dirFd, err := fs.Open(dirPath)
	if err != nil {
		return errors.Join(ErrAtomicWriteDirSync, fmt.Errorf("open dir %q: %w", dirPath, err))
	}

	syncErr := dirFd.Sync()
	if syncErr == nil {
		return closeDir(dirPath, dirFd)
	}

	return errors.Join(
		ErrAtomicWriteDirSync,
		fmt.Errorf("%q: %w", dirPath, syncErr),
		closeDir(dirPath, dirFd),
	)
}

func closeDir(dir string, file File) error {
	err := file.Close()
	if err == nil {
		return nil
	}

	return fmt.Errorf("close dir %q: %w", dir, err)
}

func closeTmpFile(path string, file File) error {
	err := file.Close()
	if err == nil {
		return nil
	}

	return fmt.Errorf("close temp file %q: %w", path, err)
}

func removeTempFile(fs FS, path string) error {
	err := fs.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove temp file %q: %w", path, err)
	}

	return nil
}
