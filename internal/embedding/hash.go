package embedding

import (
	"context"
	"hash/fnv"
	"math"
)

// HashClient produces deterministic unit vectors from an FNV hash of the
// input. It needs no network and is used for offline runs and tests; equal
// texts embed identically but similarity carries no meaning.
type HashClient struct {
	Dimensions int
}

func (h HashClient) Embed(_ context.Context, inputs []string) ([][]float32, error) {
	out := make([][]float32, len(inputs))
	for i, text := range inputs {
		out[i] = h.vector(text)
	}
	return out, nil
}

func (h HashClient) vector(text string) []float32 {
	f := fnv.New64a()
	_, _ = f.Write([]byte(text))
	seed := f.Sum64()

	vec := make([]float32, h.Dimensions)
	var norm float64
	for i := range vec {
		seed = seed*6364136223846793005 + 1442695040888963407
		vec[i] = float32(int64(seed)) / float32(math.MaxInt64)
		norm += float64(vec[i]) * float64(vec[i])
	}
	if norm == 0 {
		return vec
	}
	scale := float32(1 / math.Sqrt(norm))
	for i := range vec {
		vec[i] *= scale
	}
	return vec
}
