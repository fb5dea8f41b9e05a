package embedding

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"math/rand"
	"strings"
)

// Mock produces deterministic pseudo-random unit vectors seeded from the
// input text. The same text always maps to the same vector, so similarity
// is exact-match only. Useful for tests and for exercising the full index
// and recall pipeline without a model.
type Mock struct {
	dims int
}

func NewMock(dims int) *Mock {
	if dims <= 0 {
		dims = 8
	}
	return &Mock{dims: dims}
}

func (m *Mock) Dimensions() int   { return m.dims }
func (m *Mock) ModelName() string { return "mock" }

func (m *Mock) Embed(_ context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidInput)
	}
	h := fnv.New64a()
	h.Write([]byte(text))
	rng := rand.New(rand.NewSource(int64(h.Sum64())))

	vec := make([]float32, m.dims)
	var norm float64
	for i := range vec {
		v := rng.Float64()*2 - 1
		vec[i] = float32(v)
		norm += v * v
	}
	norm = math.Sqrt(norm)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return vec, nil
}

func (m *Mock) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	vecs := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := m.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		vecs[i] = v
	}
	return vecs, nil
}
