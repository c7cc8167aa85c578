package tools

import (
	"context"
	"hash/fnv"
	"math"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/viterin/vek/vek32"
)

const (
	// DefaultVectorDimension is the embedding width of the hashed vectorizer.
	DefaultVectorDimension = 100

	// DefaultVectorCacheSize bounds the number of cached token vectors.
	DefaultVectorCacheSize = 20000

	minSubword = 3
	maxSubword = 5
)

// HashVectorizer builds subword embeddings by hashing character n-grams of a
// token into deterministic pseudo-random directions and averaging them.
// Tokens sharing n-grams end up close together, so misspellings and
// inflections stay near their base form.
type HashVectorizer struct {
	dim   int
	cache *lru.Cache[string, []float32]
}

// NewHashVectorizer creates a vectorizer producing dim-wide vectors.
func NewHashVectorizer(dim, cacheSize int) *HashVectorizer {
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	if cacheSize <= 0 {
		cacheSize = DefaultVectorCacheSize
	}
	cache, _ := lru.New[string, []float32](cacheSize)
	return &HashVectorizer{dim: dim, cache: cache}
}

// Dimension returns the width of produced vectors.
func (v *HashVectorizer) Dimension() int {
	return v.dim
}

// Vector returns the embedding of a single token. The returned slice is
// shared with the cache and must not be modified.
func (v *HashVectorizer) Vector(token string) []float32 {
	key := strings.ToLower(token)
	if vec, ok := v.cache.Get(key); ok {
		return vec
	}

	vec := make([]float32, v.dim)
	grams := subwords(key)
	row := make([]float32, v.dim)
	for _, g := range grams {
		fillDirection(row, g)
		vek32.Add_Inplace(vec, row)
	}
	if len(grams) > 0 {
		vek32.MulNumber_Inplace(vec, 1/float32(len(grams)))
	}

	v.cache.Add(key, vec)
	return vec
}

// subwords returns the whole token plus its bounded character n-grams.
func subwords(token string) []string {
	if token == "" {
		return nil
	}
	grams := []string{token}
	runes := []rune("<" + token + ">")
	for n := minSubword; n <= maxSubword; n++ {
		for i := 0; i+n <= len(runes); i++ {
			grams = append(grams, string(runes[i:i+n]))
		}
	}
	return grams
}

// fillDirection writes a deterministic pseudo-random direction for gram.
func fillDirection(dst []float32, gram string) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(gram))
	state := h.Sum64()
	for d := range dst {
		state = splitmix64(state)
		// map to [-1, 1)
		dst[d] = float32(float64(state>>11)/float64(1<<53)*2 - 1)
	}
}

func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	z := x
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

// Vectorize implements Vectorizer for Local.
func (l *Local) Vectorize(ctx context.Context, tokens []string, lang string) ([][]float32, error) {
	out := make([][]float32, len(tokens))
	for i, tok := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		src := l.vectors.Vector(tok)
		vec := make([]float32, len(src))
		copy(vec, src)
		out[i] = vec
	}
	return out, nil
}

// Dimension implements Vectorizer for Local.
func (l *Local) Dimension() int {
	return l.vectors.Dimension()
}

// Norm returns the L2 norm of v.
func Norm(v []float32) float64 {
	return math.Sqrt(float64(vek32.Dot(v, v)))
}
