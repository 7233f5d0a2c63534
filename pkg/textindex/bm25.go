// Package textindex implements the BM25 inverted-index text search from
// spec.md §4.G. The tokenizer and stop-word list are fixed, not
// configurable, because BM25 rankings depend on them bit-for-bit and
// spec.md §9 treats both as part of the on-disk format's test surface.
package textindex

import (
	"errors"
	"math"
	"sort"
	"strings"
	"sync"
)

// ErrEmptyQuery is returned by nothing today — an empty query is a valid
// input that simply returns no results (spec.md §4.G); kept as a sentinel
// in case future callers want to distinguish "no query" from "no matches".
var ErrEmptyQuery = errors.New("textindex: empty query")

// Config tunes the BM25 scoring formula. Field names follow the
// BM25Config shape used elsewhere in the retrieved examples; K1/B
// defaults are spec.md §4.G's.
type Config struct {
	// K1 is the term-frequency saturation parameter. Default 1.2.
	K1 float64

	// B is the length-normalization parameter. Default 0.75.
	B float64

	// StopWords enables stop-word filtering during tokenization. Default true.
	StopWords bool

	// MinTokenLength drops tokens shorter than this after splitting
	// (spec.md §6 text_index_min_token_length). Default 2.
	MinTokenLength int
}

// DefaultConfig returns spec.md §4.G/§6's defaults.
func DefaultConfig() Config {
	return Config{K1: 1.2, B: 0.75, StopWords: true, MinTokenLength: 2}
}

func (idx *Index) filterTokens(tokens []string) []string {
	if idx.config.MinTokenLength > 1 {
		kept := tokens[:0]

		for _, tok := range tokens {
			if len(tok) >= idx.config.MinTokenLength {
				kept = append(kept, tok)
			}
		}

		tokens = kept
	}

	if idx.config.StopWords {
		tokens = filterStopWords(tokens)
	}

	return tokens
}

// Metadata is the optional side-fields folded into a document's indexable
// text alongside its content, per spec.md §4.G's add() definition.
type Metadata struct {
	Category string
	Type     string
	Tags     []string
	Context  string
}

type posting struct {
	frequency int
	positions []int
}

type document struct {
	length int            // tokens after filtering
	terms  map[string]int // unique terms -> frequency, for fast remove()
}

// Index is a BM25 inverted-index text search over documents keyed by id.
// Safe for concurrent use.
type Index struct {
	mu     sync.RWMutex
	config Config

	docs        map[string]*document
	postings    map[string]map[string]*posting // term -> doc id -> posting
	docCount    int
	totalTokens int
}

// New returns an empty index.
func New(config Config) *Index {
	return &Index{
		config:   config,
		docs:     make(map[string]*document),
		postings: make(map[string]map[string]*posting),
	}
}

func (idx *Index) avgDocLength() float64 {
	if idx.docCount == 0 {
		return 0
	}

	return float64(idx.totalTokens) / float64(idx.docCount)
}

// Count returns the number of indexed documents.
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	return idx.docCount
}

// Contains reports whether id is currently indexed.
func (idx *Index) Contains(id string) bool {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	_, ok := idx.docs[id]

	return ok
}

// AllIDs returns every indexed id, order unspecified.
func (idx *Index) AllIDs() []string {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	out := make([]string, 0, len(idx.docs))
	for id := range idx.docs {
		out = append(out, id)
	}

	return out
}

// indexableText builds the text actually tokenized for a document: content
// followed by metadata.category, metadata.type, metadata.tags (joined by
// space), and metadata.context, each only if non-empty. Order matches
// spec.md §4.G.
func indexableText(content string, meta Metadata) string {
	var b strings.Builder

	b.WriteString(content)

	if meta.Category != "" {
		b.WriteByte(' ')
		b.WriteString(meta.Category)
	}

	if meta.Type != "" {
		b.WriteByte(' ')
		b.WriteString(meta.Type)
	}

	if len(meta.Tags) > 0 {
		b.WriteByte(' ')
		b.WriteString(strings.Join(meta.Tags, " "))
	}

	if meta.Context != "" {
		b.WriteByte(' ')
		b.WriteString(meta.Context)
	}

	return b.String()
}

// Add indexes content (plus metadata) under id, replacing any existing
// document with that id first.
func (idx *Index) Add(id string, content string, meta Metadata) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if _, exists := idx.docs[id]; exists {
		idx.remove(id)
	}

	tokens := idx.filterTokens(tokenize(indexableText(content, meta)))

	termFreq := make(map[string]int)
	termPositions := make(map[string][]int)

	for pos, tok := range tokens {
		termFreq[tok]++
		termPositions[tok] = append(termPositions[tok], pos)
	}

	idx.docs[id] = &document{length: len(tokens), terms: termFreq}

	for term, freq := range termFreq {
		byDoc, ok := idx.postings[term]
		if !ok {
			byDoc = make(map[string]*posting)
			idx.postings[term] = byDoc
		}

		byDoc[id] = &posting{frequency: freq, positions: termPositions[term]}
	}

	idx.docCount++
	idx.totalTokens += len(tokens)
}

// Remove drops id from the index, dropping postings entirely for any term
// that loses its last document.
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	idx.remove(id)
}

func (idx *Index) remove(id string) {
	doc, ok := idx.docs[id]
	if !ok {
		return
	}

	for term := range doc.terms {
		byDoc := idx.postings[term]
		delete(byDoc, id)

		if len(byDoc) == 0 {
			delete(idx.postings, term)
		}
	}

	idx.totalTokens -= doc.length
	idx.docCount--
	delete(idx.docs, id)
}

// Result is one hit from Search.
type Result struct {
	ID           string
	Score        float64
	MatchedTerms []string
}

// Search tokenizes query, scores every document containing at least one
// query term with BM25, and returns the top limit results sorted by score
// descending, ties broken by id ascending. matchAll drops documents that
// didn't match every query term. An empty (post-filter) query returns nil.
func (idx *Index) Search(query string, limit int, matchAll bool) []Result {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	tokens := idx.filterTokens(tokenize(query))

	if len(tokens) == 0 {
		return nil
	}

	unique := make(map[string]bool, len(tokens))
	for _, tok := range tokens {
		unique[tok] = true
	}

	scores := make(map[string]float64)
	matched := make(map[string]map[string]bool)

	for term := range unique {
		byDoc, ok := idx.postings[term]
		if !ok {
			continue
		}

		idf := idx.idf(len(byDoc))

		for docID, p := range byDoc {
			doc := idx.docs[docID]

			scores[docID] += bm25Term(idf, float64(p.frequency), idx.config.K1, idx.config.B, float64(doc.length), idx.avgDocLength())

			if matched[docID] == nil {
				matched[docID] = make(map[string]bool)
			}

			matched[docID][term] = true
		}
	}

	results := make([]Result, 0, len(scores))

	for docID, score := range scores {
		if matchAll && len(matched[docID]) != len(unique) {
			continue
		}

		terms := make([]string, 0, len(matched[docID]))
		for term := range matched[docID] {
			terms = append(terms, term)
		}

		sort.Strings(terms)

		results = append(results, Result{ID: docID, Score: score, MatchedTerms: terms})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}

		return results[i].ID < results[j].ID
	})

	if limit > 0 && len(results) > limit {
		results = results[:limit]
	}

	return results
}

// idf implements spec.md §4.G's idf(t) = ln((N - df + 0.5)/(df + 0.5) + 1).
func (idx *Index) idf(df int) float64 {
	n := float64(idx.docCount)
	dfF := float64(df)

	return math.Log((n-dfF+0.5)/(dfF+0.5) + 1)
}

// bm25Term implements spec.md §4.G's per-term score contribution.
func bm25Term(idf, tf, k1, b, docLen, avgLen float64) float64 {
	if avgLen == 0 {
		avgLen = docLen
	}

	numerator := tf * (k1 + 1)
	denominator := tf + k1*(1-b+b*docLen/avgLen)

	return idf * (numerator / denominator)
}
