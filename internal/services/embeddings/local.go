package embeddings

import (
	"crypto/md5"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
)

// localEmbedder is the deterministic fallback embedding algorithm. It mixes
// token hashes with a Lehmer generator seeded from the text hash, so the
// same text always produces the same unit-length vector without any model.
type localEmbedder struct {
	dimension int
}

func newLocalEmbedder(dimension int) *localEmbedder {
	return &localEmbedder{dimension: dimension}
}

// hashValue returns the leading 32 bits of the MD5 of s.
func hashValue(s string) uint32 {
	sum := md5.Sum([]byte(s))
	return binary.BigEndian.Uint32(sum[:4])
}

// Embed computes a deterministic unit-length vector for text. Never fails.
func (l *localEmbedder) Embed(text string) []float32 {
	d := l.dimension
	tokens := strings.Fields(strings.ToLower(text))

	seed := uint64(hashValue(text))
	vec := make([]float64, d)

	for i, token := range tokens {
		position := i % d
		tokenValue := float64(hashValue(token)) / float64(0xffffffff)
		vec[position] = math.Mod(vec[position]+tokenValue, 1)

		// Lehmer step keeps the mixing deterministic per text.
		seed = (seed * 48271) % 0x7fffffff
		mixValue := float64(seed) / float64(0x7fffffff)
		mixPosition := (position + 7) % d
		vec[mixPosition] = math.Mod(vec[mixPosition]+mixValue*0.5, 1)
	}

	var magnitude float64
	for _, v := range vec {
		magnitude += v * v
	}
	magnitude = math.Sqrt(magnitude)

	out := make([]float32, d)
	if magnitude > 0 {
		for i, v := range vec {
			out[i] = float32(v / magnitude)
		}
		return out
	}

	// No tokens contributed anything. Derive a vector positionally so the
	// result still depends only on the text.
	fallback := make([]float64, d)
	var fallbackMag float64
	for i := range fallback {
		fallback[i] = float64(hashValue(fmt.Sprintf("%s_%d", text, i))) / float64(0xffffffff)
		fallbackMag += fallback[i] * fallback[i]
	}
	fallbackMag = math.Sqrt(fallbackMag)
	for i, v := range fallback {
		out[i] = float32(v / fallbackMag)
	}
	return out
}

// uniformEmbedding is the default vector for empty input: every component
// equal, unit length.
func uniformEmbedding(dimension int) []float32 {
	v := float32(1 / math.Sqrt(float64(dimension)))
	out := make([]float32, dimension)
	for i := range out {
		out[i] = v
	}
	return out
}
