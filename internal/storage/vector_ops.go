package storage

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"

	"github.com/dshills/experience-mcp/pkg/types"
)

// serializeVector converts a vector to a byte blob (little-endian float64)
func serializeVector(vector types.Vector) []byte {
	if len(vector) == 0 {
		return nil
	}
	blob := make([]byte, len(vector)*8)
	for i, v := range vector {
		binary.LittleEndian.PutUint64(blob[i*8:], math.Float64bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a vector
func deserializeVector(blob []byte) (types.Vector, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob)%8 != 0 {
		return nil, fmt.Errorf("%w: blob length %d", ErrCorruptVector, len(blob))
	}
	vector := make(types.Vector, len(blob)/8)
	for i := range vector {
		vector[i] = math.Float64frombits(binary.LittleEndian.Uint64(blob[i*8:]))
	}
	return vector, nil
}

func encodeKeywords(keywords []string) (string, error) {
	if keywords == nil {
		keywords = []string{}
	}
	b, err := json.Marshal(keywords)
	if err != nil {
		return "", fmt.Errorf("encode keywords: %w", err)
	}
	return string(b), nil
}

func decodeKeywords(s string) ([]string, error) {
	if s == "" {
		return []string{}, nil
	}
	var keywords []string
	if err := json.Unmarshal([]byte(s), &keywords); err != nil {
		return nil, fmt.Errorf("decode keywords: %w", err)
	}
	return keywords, nil
}

// SerializeVector is an exported helper for testing
func SerializeVector(vector types.Vector) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) (types.Vector, error) {
	return deserializeVector(blob)
}
