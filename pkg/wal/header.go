// Package wal implements the write-ahead log described in spec.md §4.B: a
// single growable file per store/fork holding not-yet-segmented records.
package wal

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// Magic values recognized in the shared WAL/segment header. A renamed WAL
// file keeps carrying MagicWAL even after rotation makes it a segment; the
// segment reader accepts either (spec.md §4.C).
const (
	MagicWAL     = "MWAL"
	MagicSegment = "MSEG"

	// FormatVersion is the only header version this package understands.
	FormatVersion uint32 = 1

	// headerFixedSize is magic(4) + version(4) + store_id_len(4) + record_count(4).
	headerFixedSize = 16

	recordCountFieldOffset = 12
)

// ErrBadMagic indicates a file's magic bytes are neither MWAL nor MSEG.
var ErrBadMagic = errors.New("bad magic")

// ErrUnsupportedVersion indicates a header version this package cannot read.
var ErrUnsupportedVersion = errors.New("unsupported version")

// ErrHeaderTruncated indicates the file is too short to hold a full header.
var ErrHeaderTruncated = errors.New("header truncated")

// Header is the 16-byte-plus-store-id header shared by WAL files and
// segment files (spec.md §4.B/§4.C).
type Header struct {
	Magic       string
	Version     uint32
	StoreID     string
	RecordCount uint32
}

// Size returns the total on-disk header size for h (fixed part + store id).
func (h Header) Size() int {
	return headerFixedSize + len(h.StoreID)
}

// EncodeHeader serializes h.
func EncodeHeader(h Header) []byte {
	buf := make([]byte, h.Size())
	copy(buf[0:4], h.Magic)
	binary.LittleEndian.PutUint32(buf[4:8], h.Version)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(len(h.StoreID))) //nolint:gosec
	binary.LittleEndian.PutUint32(buf[12:16], h.RecordCount)
	copy(buf[16:], h.StoreID)

	return buf
}

// DecodeHeader parses a header from the start of buf, returning the header
// and the number of bytes it occupies.
func DecodeHeader(buf []byte) (Header, int, error) {
	if len(buf) < headerFixedSize {
		return Header{}, 0, ErrHeaderTruncated
	}

	magic := string(buf[0:4])
	if magic != MagicWAL && magic != MagicSegment {
		return Header{}, 0, fmt.Errorf("%w: %q", ErrBadMagic, magic)
	}

	version := binary.LittleEndian.Uint32(buf[4:8])
	if version != FormatVersion {
		return Header{}, 0, fmt.Errorf("%w: %d", ErrUnsupportedVersion, version)
	}

	storeIDLen := int(binary.LittleEndian.Uint32(buf[8:12]))
	recordCount := binary.LittleEndian.Uint32(buf[12:16])

	total := headerFixedSize + storeIDLen
	if len(buf) < total {
		return Header{}, 0, ErrHeaderTruncated
	}

	return Header{
		Magic:       magic,
		Version:     version,
		StoreID:     string(buf[headerFixedSize:total]),
		RecordCount: recordCount,
	}, total, nil
}

// encodeRecordCount serializes just the record_count field, for the
// in-place rewrite that Append and truncation-recovery perform.
func encodeRecordCount(count uint32) []byte {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, count)

	return buf
}
