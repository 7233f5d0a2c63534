package memstore

import "errors"

// MainStoreID is the always-present root store instance; it can never be
// deleted or created via CreateFork.
const MainStoreID = "main"

// Error kinds surfaced at the API boundary (spec.md §7) that aren't already
// owned by a lower package (wal.ErrStoreIDMismatch, record.ErrRecordCorrupt,
// merkle.ErrCorrupt, merkle.ErrBadMagic/ErrUnsupportedVersion,
// vectorindex.DimensionMismatchError).
var (
	// ErrIDNotFound is spec.md §7's ID_NOT_FOUND: getMemory/getRelationship
	// for an id with no LatestIndex entry.
	ErrIDNotFound = errors.New("memstore: id not found")

	// ErrForkExists is spec.md §7's FORK_EXISTS: createFork against an
	// already-occupied fork directory.
	ErrForkExists = errors.New("memstore: fork already exists")

	// ErrCannotDeleteMain is spec.md §7's CANNOT_DELETE_MAIN.
	ErrCannotDeleteMain = errors.New("memstore: cannot delete main store")

	// ErrConfigInvalid is spec.md §7's CONFIG_INVALID.
	ErrConfigInvalid = errors.New("memstore: invalid config")

	// ErrStoreClosed names the closed-store condition. No Store operation
	// returns it: Store does not record that Close has been called.
	ErrStoreClosed = errors.New("memstore: store is closed")

	// ErrSnapshotNotFound is returned by RestoreSnapshot for an unknown snap_id.
	ErrSnapshotNotFound = errors.New("memstore: snapshot not found")
)
