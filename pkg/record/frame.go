package record

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
)

// ErrFrameTruncated indicates a frame's declared total_length runs past the
// end of the buffer — a partial trailing frame, as produced by a crash
// mid-append.
var ErrFrameTruncated = errors.New("record frame truncated")

// ErrRecordCorrupt indicates a frame's recomputed content hash disagrees
// with its trailing hash field (spec.md invariant HASH). Only checked on
// rebuild/verify paths, not the hot append path.
var ErrRecordCorrupt = errors.New("record corrupt")

const (
	frameLengthPrefixSize = 4 // u32 total_length
	frameTypeSize         = 1 // u8 record_type
	frameJSONLenSize      = 4 // u32 json_length
	frameEmbedDimSize     = 4 // u32 embedding_dim
	frameFloatSize        = 4 // f32 per embedding component
)

// memoryFrameJSON is the JSON body for a memory frame: every non-binary
// field except embedding and content_hash, per spec.md §4.A.
type memoryFrameJSON struct {
	MemoryID     string   `json:"memory_id"`
	Version      int      `json:"version"`
	StoreID      string   `json:"store_id"`
	Timestamp    int64    `json:"timestamp"`
	Category     string   `json:"category"`
	Type         string   `json:"type"`
	Content      string   `json:"content"`
	Tags         []string `json:"tags"`
	Importance   int      `json:"importance"`
	CadenceType  string   `json:"cadence_type,omitempty"`
	CadenceValue string   `json:"cadence_value,omitempty"`
	Context      string   `json:"context,omitempty"`
	Deleted      bool     `json:"deleted"`
	PrevHash     string   `json:"prev_hash,omitempty"`
}

// relationshipFrameJSON is the JSON body for a relationship frame.
type relationshipFrameJSON struct {
	RelationshipID   string `json:"relationship_id"`
	Version          int    `json:"version"`
	StoreID          string `json:"store_id"`
	Timestamp        int64  `json:"timestamp"`
	MemoryID         string `json:"memory_id"`
	RelatedMemoryID  string `json:"related_memory_id"`
	RelationshipType string `json:"relationship_type"`
	Deleted          bool   `json:"deleted"`
	PrevHash         string `json:"prev_hash,omitempty"`
}

// Serialize encodes r into the frame described in spec.md §4.A:
//
//	u32 total_length
//	u8  record_type
//	u32 json_length
//	u8[json_length] json
//	u32 embedding_dim
//	f32[embedding_dim] embedding (little-endian)
//	u8[hash_size] content_hash (raw bytes, hash_size tracks the configured algorithm)
func Serialize(r *Record) ([]byte, error) {
	var (
		recType uint8
		body    []byte
		err     error
		embed   []float32
	)

	switch r.Kind {
	case KindMemory:
		recType = uint8(KindMemory)
		m := r.Memory
		body, err = json.Marshal(memoryFrameJSON{
			MemoryID: m.MemoryID, Version: m.Version, StoreID: m.StoreID,
			Timestamp: m.Timestamp, Category: m.Category, Type: m.Type,
			Content: m.Content, Tags: m.Tags, Importance: m.Importance,
			CadenceType: m.CadenceType, CadenceValue: m.CadenceValue,
			Context: m.Context, Deleted: m.Deleted, PrevHash: m.PrevHash,
		})
		embed = m.Embedding
	case KindRelationship:
		recType = uint8(KindRelationship)
		rel := r.Relationship
		body, err = json.Marshal(relationshipFrameJSON{
			RelationshipID: rel.RelationshipID, Version: rel.Version, StoreID: rel.StoreID,
			Timestamp: rel.Timestamp, MemoryID: rel.MemoryID, RelatedMemoryID: rel.RelatedMemoryID,
			RelationshipType: rel.RelationshipType, Deleted: rel.Deleted, PrevHash: rel.PrevHash,
		})
	default:
		return nil, fmt.Errorf("record: unknown kind %v", r.Kind)
	}

	if err != nil {
		return nil, fmt.Errorf("marshal record body: %w", err)
	}

	hashBytes, err := hex.DecodeString(r.ContentHashHex())
	if err != nil {
		return nil, fmt.Errorf("decode content_hash: %w", err)
	}

	total := frameLengthPrefixSize + frameTypeSize + frameJSONLenSize + len(body) +
		frameEmbedDimSize + len(embed)*frameFloatSize + len(hashBytes)

	buf := make([]byte, total)
	binary.LittleEndian.PutUint32(buf[0:], uint32(total)) //nolint:gosec // bounded by real record sizes
	buf[frameLengthPrefixSize] = recType

	off := frameLengthPrefixSize + frameTypeSize
	binary.LittleEndian.PutUint32(buf[off:], uint32(len(body))) //nolint:gosec
	off += frameJSONLenSize
	copy(buf[off:], body)
	off += len(body)

	binary.LittleEndian.PutUint32(buf[off:], uint32(len(embed))) //nolint:gosec
	off += frameEmbedDimSize

	for _, f := range embed {
		binary.LittleEndian.PutUint32(buf[off:], math.Float32bits(f))
		off += frameFloatSize
	}

	copy(buf[off:], hashBytes)

	return buf, nil
}

// Deserialize parses one frame starting at offset in buf and returns the
// record together with the number of bytes consumed (total_length). The
// trailing hash's byte length is derived arithmetically from total_length,
// so no external knowledge of the configured hash algorithm is needed to
// scan a stream of frames — only to verify them (see VerifyContentHash).
func Deserialize(buf []byte, offset int) (*Record, int, error) {
	if offset < 0 || offset+frameLengthPrefixSize > len(buf) {
		return nil, 0, ErrFrameTruncated
	}

	total := int(binary.LittleEndian.Uint32(buf[offset:]))
	if total < frameLengthPrefixSize+frameTypeSize+frameJSONLenSize+frameEmbedDimSize {
		return nil, 0, ErrFrameTruncated
	}

	if offset+total > len(buf) {
		return nil, 0, ErrFrameTruncated
	}

	frame := buf[offset : offset+total]

	recType := frame[frameLengthPrefixSize]

	jsonOff := frameLengthPrefixSize + frameTypeSize
	jsonLen := int(binary.LittleEndian.Uint32(frame[jsonOff:]))
	bodyOff := jsonOff + frameJSONLenSize

	if bodyOff+jsonLen > len(frame) {
		return nil, 0, ErrFrameTruncated
	}

	body := frame[bodyOff : bodyOff+jsonLen]

	dimOff := bodyOff + jsonLen
	if dimOff+frameEmbedDimSize > len(frame) {
		return nil, 0, ErrFrameTruncated
	}

	dim := int(binary.LittleEndian.Uint32(frame[dimOff:]))
	embedOff := dimOff + frameEmbedDimSize

	hashOff := embedOff + dim*frameFloatSize
	if hashOff > len(frame) {
		return nil, 0, ErrFrameTruncated
	}

	embed := make([]float32, dim)
	for i := range dim {
		bits := binary.LittleEndian.Uint32(frame[embedOff+i*frameFloatSize:])
		embed[i] = math.Float32frombits(bits)
	}

	hashHex := hex.EncodeToString(frame[hashOff:])

	rec, err := decodeBody(recType, body, embed, hashHex)
	if err != nil {
		return nil, 0, err
	}

	return rec, total, nil
}

func decodeBody(recType uint8, body []byte, embed []float32, hashHex string) (*Record, error) {
	switch recType {
	case uint8(KindMemory):
		var j memoryFrameJSON

		if err := json.Unmarshal(body, &j); err != nil {
			return nil, fmt.Errorf("%w: unmarshal memory body: %w", ErrRecordCorrupt, err)
		}

		return NewMemoryRecord(&Memory{
			MemoryID: j.MemoryID, Version: j.Version, StoreID: j.StoreID,
			Timestamp: j.Timestamp, Category: j.Category, Type: j.Type,
			Content: j.Content, Tags: j.Tags, Importance: j.Importance,
			CadenceType: j.CadenceType, CadenceValue: j.CadenceValue,
			Context: j.Context, Embedding: embed, Deleted: j.Deleted,
			PrevHash: j.PrevHash, ContentHash: hashHex,
		}), nil
	case uint8(KindRelationship):
		var j relationshipFrameJSON

		if err := json.Unmarshal(body, &j); err != nil {
			return nil, fmt.Errorf("%w: unmarshal relationship body: %w", ErrRecordCorrupt, err)
		}

		return NewRelationshipRecord(&Relationship{
			RelationshipID: j.RelationshipID, Version: j.Version, StoreID: j.StoreID,
			Timestamp: j.Timestamp, MemoryID: j.MemoryID, RelatedMemoryID: j.RelatedMemoryID,
			RelationshipType: j.RelationshipType, Deleted: j.Deleted,
			PrevHash: j.PrevHash, ContentHash: hashHex,
		}), nil
	default:
		return nil, fmt.Errorf("%w: unknown record_type %d", ErrRecordCorrupt, recType)
	}
}
