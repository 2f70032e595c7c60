package gateway

import (
	"context"
	"hash/fnv"
	"strings"
	"unicode"

	"github.com/V4T54L/worksync/internal/pkg/vecmath"
)

// DefaultHashDimension matches the dimension of common hosted embedding models.
const DefaultHashDimension = 1536

const minTokenLen = 3

// HashEmbedder is a deterministic, offline embedder. Each distinct word of
// at least three characters is hashed into one bucket and the vector is
// L2-normalized, so texts sharing words have positive cosine similarity.
type HashEmbedder struct {
	dim int
}

func NewHashEmbedder(dim int) *HashEmbedder {
	if dim <= 0 {
		dim = DefaultHashDimension
	}
	return &HashEmbedder{dim: dim}
}

func (h *HashEmbedder) Dimension() int { return h.dim }

// Embed never fails. Text without any usable word yields a zero vector,
// which similarity search skips.
func (h *HashEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, h.dim)
	for token, count := range tokenize(text) {
		f := fnv.New32a()
		_, _ = f.Write([]byte(token))
		vec[int(f.Sum32()%uint32(h.dim))] += float32(count)
	}
	vecmath.Normalize(vec)
	return vec, nil
}

func tokenize(text string) map[string]int {
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	counts := make(map[string]int, len(words))
	for _, w := range words {
		if len([]rune(w)) < minTokenLen {
			continue
		}
		counts[w]++
	}
	return counts
}
