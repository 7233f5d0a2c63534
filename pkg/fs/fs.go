// Package fs provides a filesystem abstraction so durability-sensitive code
// (the WAL, segment rotation, index persistence, fork copies) can be
// exercised against fakes in tests without touching the real disk.
//
// The main types are:
//   - [FS]: interface for filesystem operations
//   - [File]: interface for open files (satisfied by [os.File])
//   - [Real]: production implementation using [os] package
//
// [FS] only carries the operations the store coordinator and its
// subsystems actually issue against a store's data directory: open/read/
// write a WAL or segment file, list a store's segments and indexes, copy a
// fork's files, rename a rotated segment into place. It is not a general
// os.FS replacement, and doesn't grow a method just because [os] has one.
//
// Example usage:
//
//	fsys := fs.NewReal()
//	raw, err := fsys.ReadFile(walPath)
//	if err != nil {
//	    return err
//	}
package fs

import (
	"io"
	"os"
)

// File represents an OS-backed open file descriptor.
//
// This interface is satisfied by [os.File] and is sized for what the WAL and
// [AtomicWriter] do with an open file: append bytes, fsync, seek back to
// rewrite the header's record_count, and chmod a temp file before the
// rename that publishes it.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type File interface {
	// Embedded interfaces from [io] package.
	// These provide Read, Write, Close, and Seek methods.
	io.ReadWriteCloser
	io.Seeker

	// Sync commits the file's contents to disk. See [os.File.Sync]. The WAL
	// calls this after every Append (when SyncOnWrite is set) and after
	// writing its header; [AtomicWriter] calls it before renaming a
	// recovered WAL file into place.
	Sync() error

	// Chmod changes the mode of the file. See [os.File.Chmod]. Used by
	// [AtomicWriter] to fix up its temp file's permissions before rename,
	// since O_EXCL creation is subject to umask regardless of the
	// requested mode.
	Chmod(mode os.FileMode) error
}

// FS defines the filesystem operations the store coordinator, WAL, segment
// manager, and index persistence layers issue against a store's data
// directory.
//
// The only production implementation in this package is [Real], which wraps
// the [os] package. Tests substitute their own [FS] (an in-memory fake, or a
// wrapper that injects errors at chosen call sites) to exercise recovery
// paths without depending on real disk behavior.
//
// All methods mirror their [os] package equivalents.
//
// Paths use OS semantics (like the os package and path/filepath), not the
// slash-separated paths used by the standard library io/fs package.
//
// Implementations must be safe for concurrent use by multiple goroutines.
type FS interface {
	// Open opens a file for reading. See [os.Open]. Used by [AtomicWriter]
	// to fsync a store's data directory after a WAL recovery rewrite lands.
	Open(path string) (File, error)

	// OpenFile opens a file with specified flags and permissions. See
	// [os.OpenFile]. The WAL uses this to create its active file and to
	// reopen it after dirty-shutdown truncation recovery; [AtomicWriter]
	// uses it (with O_EXCL) to create the temp file it renames over a
	// recovered WAL.
	OpenFile(path string, flag int, perm os.FileMode) (File, error)

	// ReadFile reads an entire file into memory. See [os.ReadFile]. Used to
	// load a WAL, a closed segment, or a persisted index (latest-index,
	// text index, vector index, merkle tree) in one shot on store open.
	ReadFile(path string) ([]byte, error)

	// WriteFile writes data to a file, creating it if necessary. See
	// [os.WriteFile]. Used to copy a store's files into a fork's own data
	// directory.
	//
	// Note: WriteFile is not atomic or durable. Errors or crashes can leave
	// a partially written or empty file. For the WAL's own durability needs
	// use [FS.OpenFile] with explicit [File.Sync], or [AtomicWriter].
	WriteFile(path string, data []byte, perm os.FileMode) error

	// ReadDir reads a directory and returns its entries. See [os.ReadDir].
	// Entries are sorted by name. Used to enumerate a store's segment files
	// on open and to list a directory when copying it into a fork.
	ReadDir(path string) ([]os.DirEntry, error)

	// MkdirAll creates a directory and all parents. See [os.MkdirAll]. No
	// error if the directory already exists. Used to lay out a store's (or
	// fork's) segments/ and indexes/ subdirectories.
	MkdirAll(path string, perm os.FileMode) error

	// Exists reports whether a file or directory exists.
	// Returns (false, nil) if not found, (false, err) on other errors.
	Exists(path string) (bool, error)

	// Remove deletes a file or empty directory. See [os.Remove]. Used by
	// [AtomicWriter] to clean up its temp file after a failed or completed
	// rewrite.
	Remove(path string) error

	// RemoveAll deletes a path and any children. See [os.RemoveAll]. No
	// error if path doesn't exist. Used to delete a fork's data directory.
	RemoveAll(path string) error

	// Rename moves/renames a file or directory. See [os.Rename]. Atomic on
	// the same filesystem. Used to publish a rotated WAL as an immutable
	// segment, and by [AtomicWriter] to publish a recovered WAL file.
	Rename(oldpath, newpath string) error
}

// Compile-time interface checks.
var _ File = (*os.File)(nil)
