package vectorindex

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/natefinch/atomic"

	"github.com/calvinalkan/memstore/pkg/fs"
)

const (
	snapshotMagic   = "MVEC"
	snapshotVersion = uint32(1)
	snapshotHeader  = 8
)

// ErrBadMagic indicates a snapshot that doesn't start with MVEC.
var ErrBadMagic = errors.New("vectorindex: bad magic")

// ErrUnsupportedVersion indicates a snapshot written by a format this
// version of the package cannot read. Per spec.md §4.F this is fatal.
var ErrUnsupportedVersion = errors.New("vectorindex: unsupported version")

type snapshotNode struct {
	ID        string     `json:"id"`
	Vector    []float32  `json:"vector"`
	Level     int        `json:"level"`
	Neighbors [][]string `json:"neighbors"`
}

type snapshotBody struct {
	Dimensions int            `json:"dimensions"`
	EntryPoint string         `json:"entry_point"`
	MaxLevel   int            `json:"max_level"`
	Nodes      []snapshotNode `json:"nodes"`
}

// Save persists every node with its vector, level, and per-layer neighbor
// lists, plus entry_point and max_level, atomically.
func Save(idx *Index, path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	body := snapshotBody{
		Dimensions: idx.config.Dimensions,
		EntryPoint: idx.entryPoint,
		MaxLevel:   idx.maxLevel,
	}

	for id, n := range idx.nodes {
		body.Nodes = append(body.Nodes, snapshotNode{
			ID: id, Vector: n.vector, Level: n.level, Neighbors: n.neighbors,
		})
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("vectorindex: marshal snapshot: %w", err)
	}

	header := make([]byte, snapshotHeader)
	copy(header[0:4], snapshotMagic)
	binary.LittleEndian.PutUint32(header[4:8], snapshotVersion)

	buf := append(header, payload...)

	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("vectorindex: write %q: %w", path, err)
	}

	return nil
}

// Load reads a snapshot written by Save. A missing file is not an error;
// it returns a fresh empty index so callers can fall back to rebuilding
// from segments+WAL. A dimension mismatch against config or an unknown
// format version is fatal, per spec.md §4.F.
func Load(fsys fs.FS, path string, config Config) (*Index, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(config), nil
		}

		return nil, fmt.Errorf("vectorindex: read %q: %w", path, err)
	}

	if len(raw) < snapshotHeader {
		return nil, fmt.Errorf("vectorindex: %q too short for header", path)
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
		return nil, fmt.Errorf("vectorindex: unmarshal %q: %w", path, err)
	}

	if body.Dimensions != config.Dimensions {
		return nil, fmt.Errorf("vectorindex: loading %q: %w", path, DimensionMismatchError{Expected: config.Dimensions, Got: body.Dimensions})
	}

	idx := New(config)
	idx.entryPoint = body.EntryPoint
	idx.maxLevel = body.MaxLevel

	for _, sn := range body.Nodes {
		idx.nodes[sn.ID] = &node{id: sn.ID, vector: sn.Vector, level: sn.Level, neighbors: sn.Neighbors}
	}

	return idx, nil
}
