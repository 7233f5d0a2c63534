package wal

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/calvinalkan/memstore/pkg/fs"
	"github.com/calvinalkan/memstore/pkg/record"
)

// ErrStoreIDMismatch indicates a WAL file's header store_id does not match
// the store_id the caller opened it with.
var ErrStoreIDMismatch = errors.New("store id mismatch")

const (
	// DefaultSegmentSizeBytes is the default rotation threshold (spec.md §6).
	DefaultSegmentSizeBytes = 16 * 1024 * 1024
	filePerm                = 0o644
)

// entry pairs a decoded record with its byte offset and on-disk length,
// so Append and rotation can report locations without re-scanning the file.
type entry struct {
	rec    *record.Record
	offset int64
	length int
}

// Options configures a WAL instance. Zero-value Options is invalid; use
// DefaultOptions to get sane values and override from there.
type Options struct {
	// SyncOnWrite fsyncs the file after every Append. Default true.
	SyncOnWrite bool

	// SegmentSizeBytes is the ShouldRotate size threshold.
	SegmentSizeBytes int64

	// MaxAgeMS forces rotation once the oldest live record exceeds this age
	// in milliseconds. Zero disables the age check.
	MaxAgeMS int64
}

// DefaultOptions returns spec.md §6's WAL defaults.
func DefaultOptions() Options {
	return Options{
		SyncOnWrite:      true,
		SegmentSizeBytes: DefaultSegmentSizeBytes,
		MaxAgeMS:         0,
	}
}

// WAL is a single growable append-only file holding records not yet
// rotated into a segment. It is not safe for concurrent use; the store
// coordinator serializes writers per spec.md §5.
type WAL struct {
	fsys    fs.FS
	path    string
	file    fs.File
	storeID string
	opts    Options

	records []entry
	size    int64

	// truncatedOnOpen records whether Open had to discard a partial trailing
	// frame. Not fatal (spec.md §7 WAL_TRUNCATED); the caller logs it.
	truncatedOnOpen bool
}

// TruncatedOnOpen reports whether Open recovered from a partial trailing
// frame left by a dirty shutdown.
func (w *WAL) TruncatedOnOpen() bool { return w.truncatedOnOpen }

// Open creates or opens the WAL file at path for storeID.
//
// On open of an existing file: the header's store_id must match storeID
// (else ErrStoreIDMismatch); frames are scanned forward from the end of the
// header, and on the first truncated or corrupt trailing frame, the file is
// truncated at the last good boundary and the header's record_count is
// rewritten — this is spec.md's dirty-shutdown recovery.
func Open(fsys fs.FS, path, storeID string, opts Options) (*WAL, error) {
	exists, err := fsys.Exists(path)
	if err != nil {
		return nil, fmt.Errorf("wal: stat %q: %w", path, err)
	}

	if !exists {
		return create(fsys, path, storeID, opts)
	}

	return openExisting(fsys, path, storeID, opts)
}

func create(fsys fs.FS, path, storeID string, opts Options) (*WAL, error) {
	file, err := fsys.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return nil, fmt.Errorf("wal: create %q: %w", path, err)
	}

	header := Header{Magic: MagicWAL, Version: FormatVersion, StoreID: storeID, RecordCount: 0}

	buf := EncodeHeader(header)
	if _, err := file.Write(buf); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("wal: write header %q: %w", path, err)
	}

	if err := file.Sync(); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("wal: sync header %q: %w", path, err)
	}

	return &WAL{fsys: fsys, path: path, file: file, storeID: storeID, opts: opts, size: int64(len(buf))}, nil
}

func openExisting(fsys fs.FS, path, storeID string, opts Options) (*WAL, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("wal: read %q: %w", path, err)
	}

	header, headerLen, err := DecodeHeader(raw)
	if err != nil {
		return nil, fmt.Errorf("wal: decode header %q: %w", path, err)
	}

	if header.StoreID != storeID {
		return nil, fmt.Errorf("%w: header has %q, caller requested %q", ErrStoreIDMismatch, header.StoreID, storeID)
	}

	entries, goodLen := scanFrames(raw, headerLen)
	truncated := goodLen != len(raw)

	if truncated {
		// Dirty-shutdown recovery: the last frame was partially written.
		// Rewrite the file atomically with the good prefix and a corrected
		// record_count, discarding the partial trailing frame.
		fixed := append([]byte(nil), raw[:goodLen]...)
		copy(fixed[recordCountFieldOffset:recordCountFieldOffset+4], encodeRecordCount(uint32(len(entries)))) //nolint:gosec

		writer := fs.NewAtomicWriter(fsys)
		if err := writer.RewriteDurableLog(path, fixed); err != nil {
			return nil, fmt.Errorf("wal: truncate recovery %q: %w", path, err)
		}
	}

	file, err := fsys.OpenFile(path, os.O_RDWR, filePerm)
	if err != nil {
		return nil, fmt.Errorf("wal: reopen %q: %w", path, err)
	}

	if _, err := file.Seek(0, io.SeekEnd); err != nil {
		_ = file.Close()

		return nil, fmt.Errorf("wal: seek end %q: %w", path, err)
	}

	return &WAL{
		fsys: fsys, path: path, file: file, storeID: storeID, opts: opts,
		records: entries, size: int64(goodLen), truncatedOnOpen: truncated,
	}, nil
}

// scanFrames decodes frames starting at offset headerLen until it runs out
// of well-formed frames, returning the decoded entries and the byte offset
// of the last good frame boundary.
func scanFrames(raw []byte, headerLen int) ([]entry, int) {
	var entries []entry

	offset := headerLen

	for offset < len(raw) {
		rec, n, err := record.Deserialize(raw, offset)
		if err != nil {
			break
		}

		entries = append(entries, entry{rec: rec, offset: int64(offset), length: n})
		offset += n
	}

	return entries, offset
}

func (w *WAL) rewriteRecordCount(count uint32) error {
	if _, err := w.file.Seek(recordCountFieldOffset, io.SeekStart); err != nil {
		return fmt.Errorf("wal: seek header %q: %w", w.path, err)
	}

	if _, err := w.file.Write(encodeRecordCount(count)); err != nil {
		return fmt.Errorf("wal: rewrite record_count %q: %w", w.path, err)
	}

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("wal: seek end %q: %w", w.path, err)
	}

	if w.opts.SyncOnWrite {
		if err := w.file.Sync(); err != nil {
			return fmt.Errorf("wal: sync header %q: %w", w.path, err)
		}
	}

	return nil
}

// Append serializes rec, writes it at the end of the file, updates the
// header's record_count, and (if SyncOnWrite) fsyncs. Returns the byte
// offset and frame length written.
func (w *WAL) Append(rec *record.Record) (int64, int, error) {
	buf, err := record.Serialize(rec)
	if err != nil {
		return 0, 0, fmt.Errorf("wal: serialize: %w", err)
	}

	if _, err := w.file.Seek(0, io.SeekEnd); err != nil {
		return 0, 0, fmt.Errorf("wal: seek end %q: %w", w.path, err)
	}

	offset := w.size

	if _, err := w.file.Write(buf); err != nil {
		return 0, 0, fmt.Errorf("wal: write %q: %w", w.path, err)
	}

	w.size += int64(len(buf))
	w.records = append(w.records, entry{rec: rec, offset: offset, length: len(buf)})

	if err := w.rewriteRecordCount(uint32(len(w.records))); err != nil { //nolint:gosec
		return 0, 0, err
	}

	return offset, len(buf), nil
}

// ShouldRotate reports whether the WAL has grown past SegmentSizeBytes, or
// (if MaxAgeMS > 0) the oldest record has aged past MaxAgeMS.
func (w *WAL) ShouldRotate() bool {
	if w.size >= w.opts.SegmentSizeBytes {
		return true
	}

	if w.opts.MaxAgeMS > 0 && len(w.records) > 0 {
		oldest := w.records[0].rec.Timestamp()
		age := time.Now().UnixMilli() - oldest

		return age > w.opts.MaxAgeMS
	}

	return false
}

// GetRecords returns the currently-live records in append order.
func (w *WAL) GetRecords() []*record.Record {
	out := make([]*record.Record, len(w.records))
	for i, e := range w.records {
		out[i] = e.rec
	}

	return out
}

// Entry pairs a live WAL record with its byte offset, for callers (the
// store coordinator's read and rebuild paths) that need to resolve a
// LatestIndex location back to a specific record.
type Entry struct {
	Record *record.Record
	Offset int64
}

// Entries returns the currently-live records in append order together with
// their byte offsets.
func (w *WAL) Entries() []Entry {
	out := make([]Entry, len(w.records))
	for i, e := range w.records {
		out[i] = Entry{Record: e.rec, Offset: e.offset}
	}

	return out
}

// StoreID returns the store id this WAL was opened with.
func (w *WAL) StoreID() string { return w.storeID }

// Size returns the current file size in bytes.
func (w *WAL) Size() int64 { return w.size }

// Rotate fsyncs and closes the current WAL file, atomically renames it to
// segmentPath (making it an immutable segment), and recreates a fresh empty
// WAL file at the original path. It returns the records that were moved so
// the caller (the store coordinator) can re-point LatestIndex.
func (w *WAL) Rotate(segmentPath string) ([]*record.Record, error) {
	moved := w.GetRecords()

	if err := w.file.Sync(); err != nil {
		return nil, fmt.Errorf("wal: sync before rotate %q: %w", w.path, err)
	}

	if err := w.file.Close(); err != nil {
		return nil, fmt.Errorf("wal: close before rotate %q: %w", w.path, err)
	}

	if err := w.fsys.Rename(w.path, segmentPath); err != nil {
		return nil, fmt.Errorf("wal: rename %q -> %q: %w", w.path, segmentPath, err)
	}

	fresh, err := create(w.fsys, w.path, w.storeID, w.opts)
	if err != nil {
		return nil, fmt.Errorf("wal: recreate after rotate %q: %w", w.path, err)
	}

	*w = *fresh

	return moved, nil
}

// Close fsyncs and closes the underlying file.
func (w *WAL) Close() error {
	if err := w.file.Sync(); err != nil {
		_ = w.file.Close()

		return fmt.Errorf("wal: sync on close %q: %w", w.path, err)
	}

	if err := w.file.Close(); err != nil {
		return fmt.Errorf("wal: close %q: %w", w.path, err)
	}

	return nil
}

// Path returns the WAL's current file path.
func (w *WAL) Path() string { return w.path }
