package memstore

import (
	"fmt"
	"sort"

	"github.com/calvinalkan/memstore/pkg/record"
)

// SearchMode selects which index (or both) a Search call consults.
type SearchMode string

const (
	SearchSemantic SearchMode = "semantic"
	SearchText     SearchMode = "text"
	SearchHybrid   SearchMode = "hybrid"
)

// SearchOptions configures Search. Zero-value Limit/SemanticWeight fall back
// to spec.md §4.H's defaults (10 and 0.7).
type SearchOptions struct {
	Query          string
	Mode           SearchMode
	Limit          int
	SemanticWeight float64
}

// SearchResult is one hit: the memory plus the scores that produced its
// rank, mirroring spec.md's `_searchScore`/`_semanticScore`/`_textScore`.
type SearchResult struct {
	Memory        *record.Memory
	SearchScore   float64
	SemanticScore float64
	TextScore     float64
}

type candidate struct {
	id       string
	semantic float64
	text     float64
}

// Search runs semantic, text, or hybrid search over storeID's memories.
func (s *Store) Search(storeID string, opts SearchOptions) ([]SearchResult, error) {
	if opts.Mode == "" {
		opts.Mode = SearchHybrid
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = 10
	}

	weight := opts.SemanticWeight
	if weight == 0 {
		weight = 0.7
	}

	inst, err := s.getInstance(storeID)
	if err != nil {
		return nil, err
	}

	inst.mu.RLock()
	defer inst.mu.RUnlock()

	candidates := make(map[string]*candidate)

	if (opts.Mode == SearchSemantic || opts.Mode == SearchHybrid) && inst.embed != nil {
		qVec, err := inst.embed(opts.Query)
		if err != nil {
			return nil, fmt.Errorf("memstore: embed query: %w", err)
		}

		hits, err := inst.vectors.Search(qVec, 2*limit, inst.config.HNSWEfSearch)
		if err != nil {
			return nil, fmt.Errorf("memstore: semantic search: %w", err)
		}

		for _, h := range hits {
			candidates[h.ID] = &candidate{id: h.ID, semantic: float64(h.Score)}
		}
	}

	if opts.Mode == SearchText || opts.Mode == SearchHybrid {
		hits := inst.text.Search(opts.Query, 2*limit, false)

		for _, h := range hits {
			c, ok := candidates[h.ID]
			if !ok {
				c = &candidate{id: h.ID}
				candidates[h.ID] = c
			}

			c.text = h.Score
		}
	}

	maxSem, maxTxt := 0.0, 0.0

	for _, c := range candidates {
		if c.semantic > maxSem {
			maxSem = c.semantic
		}

		if c.text > maxTxt {
			maxTxt = c.text
		}
	}

	results := make([]SearchResult, 0, len(candidates))

	for _, c := range candidates {
		normSem := 0.0
		if maxSem > 0 {
			normSem = c.semantic / maxSem
		}

		normTxt := 0.0
		if maxTxt > 0 {
			normTxt = c.text / maxTxt
		}

		var score float64

		switch opts.Mode {
		case SearchSemantic:
			score = normSem
		case SearchText:
			score = normTxt
		default:
			score = weight*normSem + (1-weight)*normTxt
		}

		results = append(results, SearchResult{
			SearchScore:   score,
			SemanticScore: normSem,
			TextScore:     normTxt,
			Memory:        &record.Memory{MemoryID: c.id},
		})
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].SearchScore != results[j].SearchScore {
			return results[i].SearchScore > results[j].SearchScore
		}

		return results[i].Memory.MemoryID < results[j].Memory.MemoryID
	})

	if len(results) > limit {
		results = results[:limit]
	}

	for i := range results {
		rec, err := inst.resolveLocked(record.KindMemory, results[i].Memory.MemoryID)
		if err != nil {
			return nil, err
		}

		results[i].Memory = rec.Memory
	}

	return results, nil
}
