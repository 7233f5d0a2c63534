package merkle

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/memstore/pkg/fs"
	"github.com/calvinalkan/memstore/pkg/record"
)

const (
	snapshotMagic   = "MMKL"
	snapshotVersion = uint32(1)
	snapshotHeader  = 8
)

// ErrBadMagic indicates a snapshot that doesn't start with MMKL.
var ErrBadMagic = errors.New("merkle: bad magic")

// ErrUnsupportedVersion indicates a snapshot written by a newer format.
var ErrUnsupportedVersion = errors.New("merkle: unsupported version")

// ErrCorrupt is spec.md §7's MERKLE_CORRUPT: the stored root doesn't match
// the root recomputed by replaying the stored leaves.
var ErrCorrupt = errors.New("merkle: stored root does not match replayed leaves")

type snapshotBody struct {
	Leaves []string `json:"leaves"`
	Root   string   `json:"root"`
}

// Save persists just the leaves and the root (spec.md §4.E), atomically.
func Save(t *Tree, path string) error {
	body := snapshotBody{Leaves: t.Leaves(), Root: t.Root()}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("merkle: marshal snapshot: %w", err)
	}

	header := make([]byte, snapshotHeader)
	copy(header[0:4], snapshotMagic)
	binary.LittleEndian.PutUint32(header[4:8], snapshotVersion)

	buf := append(header, payload...)

	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("merkle: write %q: %w", path, err)
	}

	return nil
}

// Load reads a snapshot, replays its leaves, and verifies the replayed
// root matches the stored one (ErrCorrupt on mismatch). A missing file is
// not an error; it returns a fresh empty tree so callers can fall back to
// rebuilding from segments+WAL.
func Load(fsys fs.FS, path string, algo record.HashAlgorithm) (*Tree, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(algo), nil
		}

		return nil, fmt.Errorf("merkle: read %q: %w", path, err)
	}

	if len(raw) < snapshotHeader {
		return nil, fmt.Errorf("merkle: %q too short for header", path)
	}

	magic := string(raw[0:4])
	if magic != snapshotMagic {
		return nil, fmt.Errorf("%w: %q", ErrBadMagic, magic)
	}

	version := binary.LittleEndian.Uint32(raw[4:8])
	if version != snapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	var body snapshotBody
	if err := json.Unmarshal(raw[snapshotHeader:], &body); err != nil {
		return nil, fmt.Errorf("merkle: unmarshal %q: %w", path, err)
	}

	t, err := Rebuild(algo, body.Leaves)
	if err != nil {
		return nil, fmt.Errorf("merkle: replay %q: %w", path, err)
	}

	if t.Root() != body.Root {
		return nil, fmt.Errorf("%w: %q", ErrCorrupt, path)
	}

	return t, nil
}
