package record

import (
	"crypto/sha256"
	"crypto/sha512"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"sort"
	"strconv"
	"strings"
)

// HashAlgorithm selects the digest used for content hashes. See spec.md §3
// and the merkle_hash_algorithm config key in §6.
type HashAlgorithm string

const (
	SHA256 HashAlgorithm = "sha256"
	SHA384 HashAlgorithm = "sha384"
	SHA512 HashAlgorithm = "sha512"
)

// ErrUnknownHashAlgorithm is returned for any value outside {sha256,sha384,sha512,""}.
var ErrUnknownHashAlgorithm = errors.New("unknown hash algorithm")

// Valid reports whether a is a recognized algorithm (including the zero
// value, which callers should treat as SHA256).
func (a HashAlgorithm) Valid() bool {
	switch a {
	case SHA256, SHA384, SHA512, "":
		return true
	default:
		return false
	}
}

// Or256 returns a, defaulting the zero value to SHA256.
func (a HashAlgorithm) Or256() HashAlgorithm {
	if a == "" {
		return SHA256
	}

	return a
}

func (a HashAlgorithm) newHash() (hash.Hash, error) {
	switch a.Or256() {
	case SHA256:
		return sha256.New(), nil
	case SHA384:
		return sha512.New384(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownHashAlgorithm, a)
	}
}

// New returns a fresh hash.Hash for a, for callers outside this package
// that need to hash under the same algorithm as content hashes (the
// Merkle tree's hash_pair, for one). Panics on an unknown algorithm; call
// Valid first if a came from untrusted config.
func (a HashAlgorithm) New() hash.Hash {
	h, err := a.newHash()
	if err != nil {
		panic(err)
	}

	return h
}

// Size returns the digest size in bytes for a.
func (a HashAlgorithm) Size() (int, error) {
	switch a.Or256() {
	case SHA256:
		return sha256.Size, nil
	case SHA384:
		return sha512.Size384, nil
	case SHA512:
		return sha512.Size, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownHashAlgorithm, a)
	}
}

// optional models a content field that may be absent ("null" in the
// canonical form) as distinct from an empty string value.
type optional struct {
	present bool
	value   string
}

func opt(s string) optional {
	return optional{present: s != "", value: s}
}

type field struct {
	name  string
	value any
}

// canonicalValue renders v per spec.md §3's canonicalization rules.
func canonicalValue(v any) string {
	switch val := v.(type) {
	case optional:
		if !val.present {
			return "null"
		}

		return val.value
	case string:
		return val
	case bool:
		if val {
			return "true"
		}

		return "false"
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case []string:
		sorted := append([]string(nil), val...)
		sort.Strings(sorted)

		b, err := json.Marshal(sorted)
		if err != nil {
			// json.Marshal on []string never fails.
			panic(err)
		}

		return string(b)
	default:
		panic(fmt.Sprintf("record: unsupported canonical value type %T", v))
	}
}

// canonicalize concatenates "name:value|" for each field, in the order
// given. Callers must pass fields already sorted lexicographically by name.
func canonicalize(fields []field) []byte {
	var b strings.Builder

	for _, f := range fields {
		b.WriteString(f.name)
		b.WriteByte(':')
		b.WriteString(canonicalValue(f.value))
		b.WriteByte('|')
	}

	return []byte(b.String())
}

// memoryContentFields lists Memory's content fields in lexicographic order
// by name, per spec.md §3.
func memoryContentFields(m *Memory) []field {
	return []field{
		{"cadence_type", opt(m.CadenceType)},
		{"cadence_value", opt(m.CadenceValue)},
		{"category", m.Category},
		{"content", m.Content},
		{"context", opt(m.Context)},
		{"deleted", m.Deleted},
		{"importance", m.Importance},
		{"memory_id", m.MemoryID},
		{"store_id", m.StoreID},
		{"tags", append([]string(nil), m.Tags...)},
		{"type", m.Type},
		{"version", m.Version},
	}
}

// relationshipContentFields lists Relationship's content fields in
// lexicographic order by name, per spec.md §3.
func relationshipContentFields(r *Relationship) []field {
	return []field{
		{"deleted", r.Deleted},
		{"memory_id", r.MemoryID},
		{"related_memory_id", r.RelatedMemoryID},
		{"relationship_id", r.RelationshipID},
		{"relationship_type", r.RelationshipType},
		{"store_id", r.StoreID},
		{"version", r.Version},
	}
}

// ComputeContentHash hashes rec's content fields (excluding timestamp,
// prev_hash, embedding, content_hash) under algo and returns the lowercase
// hex digest. This is invariant HASH from spec.md §8.
func ComputeContentHash(algo HashAlgorithm, rec *Record) (string, error) {
	h, err := algo.newHash()
	if err != nil {
		return "", err
	}

	var fields []field

	switch rec.Kind {
	case KindMemory:
		fields = memoryContentFields(rec.Memory)
	case KindRelationship:
		fields = relationshipContentFields(rec.Relationship)
	default:
		return "", fmt.Errorf("record: unknown kind %v", rec.Kind)
	}

	h.Write(canonicalize(fields))

	return hex.EncodeToString(h.Sum(nil)), nil
}

// VerifyContentHash recomputes rec's content hash under algo and compares it
// against the stored ContentHash field. A mismatch means the record is
// corrupt (spec.md invariant HASH).
func VerifyContentHash(algo HashAlgorithm, rec *Record) (bool, error) {
	got, err := ComputeContentHash(algo, rec)
	if err != nil {
		return false, err
	}

	return got == rec.ContentHashHex(), nil
}
