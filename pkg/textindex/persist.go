package textindex

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
	snapshotMagic   = "MTXT"
	snapshotVersion = uint32(1)
	snapshotHeader  = 8
)

// ErrBadMagic indicates a snapshot that doesn't start with MTXT.
var ErrBadMagic = errors.New("textindex: bad magic")

// ErrUnsupportedVersion indicates a snapshot written by a format this
// version of the package cannot read.
var ErrUnsupportedVersion = errors.New("textindex: unsupported version")

type snapshotDoc struct {
	ID     string         `json:"id"`
	Length int            `json:"length"`
	Terms  map[string]int `json:"terms"`
}

type snapshotPosting struct {
	Term      string `json:"term"`
	DocID     string `json:"doc_id"`
	Frequency int    `json:"frequency"`
	Positions []int  `json:"positions"`
}

type snapshotBody struct {
	DocCount    int               `json:"doc_count"`
	TotalTokens int               `json:"total_tokens"`
	Docs        []snapshotDoc     `json:"docs"`
	Postings    []snapshotPosting `json:"postings"`
}

// Save persists every document's length and term frequencies, plus every
// posting's frequency and positions, and the global doc_count/total_tokens
// counters, atomically.
func Save(idx *Index, path string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	body := snapshotBody{
		DocCount:    idx.docCount,
		TotalTokens: idx.totalTokens,
	}

	for id, doc := range idx.docs {
		body.Docs = append(body.Docs, snapshotDoc{ID: id, Length: doc.length, Terms: doc.terms})
	}

	for term, byDoc := range idx.postings {
		for docID, p := range byDoc {
			body.Postings = append(body.Postings, snapshotPosting{
				Term: term, DocID: docID, Frequency: p.frequency, Positions: p.positions,
			})
		}
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("textindex: marshal snapshot: %w", err)
	}

	header := make([]byte, snapshotHeader)
	copy(header[0:4], snapshotMagic)
	binary.LittleEndian.PutUint32(header[4:8], snapshotVersion)

	buf := append(header, payload...)

	if err := atomic.WriteFile(path, bytes.NewReader(buf)); err != nil {
		return fmt.Errorf("textindex: write %q: %w", path, err)
	}

	return nil
}

// Load reads a snapshot written by Save. A missing file is not an error;
// it returns a fresh empty index so callers can fall back to rebuilding
// from segments+WAL.
func Load(fsys fs.FS, path string, config Config) (*Index, error) {
	raw, err := fsys.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return New(config), nil
		}

		return nil, fmt.Errorf("textindex: read %q: %w", path, err)
	}

	if len(raw) < snapshotHeader {
		return nil, fmt.Errorf("textindex: %q too short for header", path)
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
		return nil, fmt.Errorf("textindex: unmarshal %q: %w", path, err)
	}

	idx := New(config)
	idx.docCount = body.DocCount
	idx.totalTokens = body.TotalTokens

	for _, sd := range body.Docs {
		idx.docs[sd.ID] = &document{length: sd.Length, terms: sd.Terms}
	}

	for _, sp := range body.Postings {
		byDoc, ok := idx.postings[sp.Term]
		if !ok {
			byDoc = make(map[string]*posting)
			idx.postings[sp.Term] = byDoc
		}

		byDoc[sp.DocID] = &posting{frequency: sp.Frequency, positions: sp.Positions}
	}

	return idx, nil
}
