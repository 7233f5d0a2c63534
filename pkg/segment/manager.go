package segment

import (
	"fmt"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"

	"github.com/calvinalkan/memstore/pkg/fs"
	"github.com/calvinalkan/memstore/pkg/record"
)

var segmentFileName = regexp.MustCompile(`^(\d{8})\.seg$`)

// NameFor returns the zero-padded 8-digit filename for a segment number.
func NameFor(number uint32) string {
	return fmt.Sprintf("%08d.seg", number)
}

// Manager scans a store's segment directory and serves random reads by
// (segment_number, offset), and ordered iteration across all segments.
type Manager struct {
	fsys    fs.FS
	dir     string
	byNum   map[uint32]*Segment
	numbers []uint32 // sorted ascending
}

// OpenManager scans dir for `NNNNNNNN.seg` files, opening and validating
// each. Files that don't match the naming convention are ignored.
func OpenManager(fsys fs.FS, dir string) (*Manager, error) {
	if err := fsys.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("segment: mkdir %q: %w", dir, err)
	}

	entries, err := fsys.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("segment: readdir %q: %w", dir, err)
	}

	m := &Manager{fsys: fsys, dir: dir, byNum: make(map[uint32]*Segment)}

	for _, e := range entries {
		if e.IsDir() {
			continue
		}

		match := segmentFileName.FindStringSubmatch(e.Name())
		if match == nil {
			continue
		}

		number, err := strconv.ParseUint(match[1], 10, 32)
		if err != nil {
			return nil, fmt.Errorf("segment: parse number from %q: %w", e.Name(), err)
		}

		seg, err := Open(fsys, filepath.Join(dir, e.Name()), uint32(number))
		if err != nil {
			return nil, err
		}

		m.register(seg)
	}

	return m, nil
}

func (m *Manager) register(seg *Segment) {
	if _, exists := m.byNum[seg.Number]; !exists {
		m.numbers = append(m.numbers, seg.Number)
		sort.Slice(m.numbers, func(i, j int) bool { return m.numbers[i] < m.numbers[j] })
	}

	m.byNum[seg.Number] = seg
}

// Register adds an already-opened segment (typically one just produced by
// WAL rotation) to the manager without rescanning the directory.
func (m *Manager) Register(seg *Segment) {
	m.register(seg)
}

// NextSegmentPath returns the path the next rotation should create.
func (m *Manager) NextSegmentPath() string {
	return filepath.Join(m.dir, NameFor(m.nextNumber()))
}

// NumberFromPath parses the segment number out of a `NNNNNNNN.seg` path, as
// produced by NameFor/NextSegmentPath.
func NumberFromPath(path string) (uint32, error) {
	match := segmentFileName.FindStringSubmatch(filepath.Base(path))
	if match == nil {
		return 0, fmt.Errorf("segment: %q is not a NNNNNNNN.seg path", path)
	}

	number, err := strconv.ParseUint(match[1], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("segment: parse number from %q: %w", path, err)
	}

	return uint32(number), nil
}

func (m *Manager) nextNumber() uint32 {
	if len(m.numbers) == 0 {
		return 1
	}

	return m.numbers[len(m.numbers)-1] + 1
}

// ReadAt decodes the record at (segmentNumber, offset).
func (m *Manager) ReadAt(segmentNumber uint32, offset int64) (*record.Record, error) {
	seg, ok := m.byNum[segmentNumber]
	if !ok {
		return nil, fmt.Errorf("segment: unknown segment number %d", segmentNumber)
	}

	return seg.ReadAt(offset)
}

// IterateAll yields every record across all segments in segment-number
// order, then by in-file offset within each segment.
func (m *Manager) IterateAll(yield func(rec *record.Record, number uint32, offset int64) error) error {
	for _, num := range m.numbers {
		seg := m.byNum[num]

		err := seg.Iterate(func(rec *record.Record, offset int64) error {
			return yield(rec, num, offset)
		})
		if err != nil {
			return err
		}
	}

	return nil
}

// Segments returns the segment numbers currently registered, ascending.
func (m *Manager) Segments() []uint32 {
	out := make([]uint32, len(m.numbers))
	copy(out, m.numbers)

	return out
}

// Get returns the opened Segment for number, if registered.
func (m *Manager) Get(number uint32) (*Segment, bool) {
	seg, ok := m.byNum[number]

	return seg, ok
}
