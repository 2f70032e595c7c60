// Package vecmath holds the float32 vector codec and cosine similarity used
// by the summary index.
package vecmath

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
)

const (
	blobHeaderSize = 4
	valueByteSize  = 4
)

var (
	ErrEmpty             = errors.New("empty vector")
	ErrDimensionMismatch = errors.New("vector dimension mismatch")
	ErrZeroNorm          = errors.New("zero vector norm")
)

// Encode packs a vector as [4-byte LE dimension][N x 4-byte LE float32].
// An empty vector encodes to nil so a failed embedding can be stored as NULL.
func Encode(vector []float32) ([]byte, error) {
	if len(vector) == 0 {
		return nil, nil
	}

	maxDim := (math.MaxInt - blobHeaderSize) / valueByteSize
	if len(vector) > maxDim {
		return nil, fmt.Errorf("encode vector: dimension too large: %d", len(vector))
	}

	blob := make([]byte, blobHeaderSize+len(vector)*valueByteSize)
	binary.LittleEndian.PutUint32(blob[:blobHeaderSize], uint32(len(vector)))

	offset := blobHeaderSize
	for i, value := range vector {
		if !isFinite(float64(value)) {
			return nil, fmt.Errorf("encode vector: invalid value at index %d", i)
		}
		binary.LittleEndian.PutUint32(blob[offset:offset+valueByteSize], math.Float32bits(value))
		offset += valueByteSize
	}
	return blob, nil
}

// Decode reverses Encode. A nil or empty blob decodes to an empty vector.
func Decode(blob []byte) ([]float32, error) {
	if len(blob) == 0 {
		return nil, nil
	}
	if len(blob) < blobHeaderSize {
		return nil, fmt.Errorf("decode vector: invalid blob length: %d", len(blob))
	}

	dim := int(binary.LittleEndian.Uint32(blob[:blobHeaderSize]))
	if dim <= 0 {
		return nil, fmt.Errorf("decode vector: invalid dimension: %d", dim)
	}
	expected := blobHeaderSize + dim*valueByteSize
	if len(blob) != expected {
		return nil, fmt.Errorf("decode vector: dimension mismatch: dim=%d payload=%d", dim, len(blob)-blobHeaderSize)
	}

	vector := make([]float32, dim)
	offset := blobHeaderSize
	for i := range vector {
		value := math.Float32frombits(binary.LittleEndian.Uint32(blob[offset : offset+valueByteSize]))
		if !isFinite(float64(value)) {
			return nil, fmt.Errorf("decode vector: invalid value at index %d", i)
		}
		vector[i] = value
		offset += valueByteSize
	}
	return vector, nil
}

// Cosine returns dot(a,b) / (|a||b|) clamped to [-1, 1]. Empty, mismatched
// and zero-norm inputs are errors, never NaN.
func Cosine(a, b []float32) (float64, error) {
	if len(a) == 0 || len(b) == 0 {
		return 0, ErrEmpty
	}
	if len(a) != len(b) {
		return 0, fmt.Errorf("%w: %d vs %d", ErrDimensionMismatch, len(a), len(b))
	}

	var dot, normA, normB float64
	for i := range a {
		ai, bi := float64(a[i]), float64(b[i])
		if !isFinite(ai) || !isFinite(bi) {
			return 0, fmt.Errorf("cosine similarity: invalid value at index %d", i)
		}
		dot += ai * bi
		normA += ai * ai
		normB += bi * bi
	}
	if normA == 0 || normB == 0 {
		return 0, ErrZeroNorm
	}

	score := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	if score > 1 {
		score = 1
	} else if score < -1 {
		score = -1
	}
	return score, nil
}

// Normalize scales v to unit length in place. Zero vectors are left as is.
func Normalize(v []float32) {
	var sum float64
	for _, x := range v {
		sum += float64(x) * float64(x)
	}
	if sum == 0 {
		return
	}
	norm := math.Sqrt(sum)
	for i := range v {
		v[i] = float32(float64(v[i]) / norm)
	}
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
