package embedding

import (
	"fmt"
	"hash/fnv"

	"recall/internal/adapter/textutil"
)

// HashProvider is a deterministic, offline embedder: bag-of-words feature
// hashing into a fixed dimension, L2-normalized. Texts sharing vocabulary get
// proportionally similar vectors, which is enough for tests and for running
// without a model endpoint. It holds no state and is safe for concurrent use.
type HashProvider struct {
	dimension int
}

func NewHashProvider(dimension int) *HashProvider {
	if dimension <= 0 {
		dimension = 256
	}
	return &HashProvider{dimension: dimension}
}

func (p *HashProvider) Embed(texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		vectors[i] = p.embedOne(text)
	}
	return vectors, nil
}

func (p *HashProvider) embedOne(text string) []float32 {
	v := make([]float32, p.dimension)
	tokens := textutil.Tokens(text)
	if len(tokens) == 0 {
		// Unit norm must hold even for empty text.
		v[0] = 1
		return v
	}
	for _, tok := range tokens {
		h := fnv.New32a()
		h.Write([]byte(tok))
		sum := h.Sum32()
		idx := int(sum % uint32(p.dimension))
		if sum&0x80000000 != 0 {
			v[idx]--
		} else {
			v[idx]++
		}
	}
	var nonzero bool
	for _, x := range v {
		if x != 0 {
			nonzero = true
			break
		}
	}
	if !nonzero {
		// Signed counts can cancel out entirely; keep the unit-norm invariant.
		v[0] = 1
		return v
	}
	Normalize(v)
	return v
}

func (p *HashProvider) Dimension() int { return p.dimension }

func (p *HashProvider) ModelName() string {
	return fmt.Sprintf("feature-hash-v1-d%d", p.dimension)
}
