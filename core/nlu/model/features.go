package model

import (
	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
	"github.com/adalundhe/sylk-nlu/core/nlu/utterance"
)

// ContextFeatures is the context classifier input for u.
func ContextFeatures(u *utterance.Utterance) []float64 {
	emb := u.SentenceEmbedding()
	out := make([]float64, len(emb))
	for i, v := range emb {
		out[i] = float64(v)
	}
	return out
}

// IntentFeatures is the intent classifier input for u: the sentence embedding
// followed by the token count.
func IntentFeatures(u *utterance.Utterance) []float64 {
	return append(ContextFeatures(u), float64(u.Len()))
}

// Member reports whether an intent with the given contexts belongs to ctx.
// Intents without contexts belong to DefaultContext only.
func Member(contexts []string, ctx string) bool {
	if len(contexts) == 0 {
		return ctx == DefaultContext
	}
	for _, c := range contexts {
		if c == ctx {
			return true
		}
	}
	return false
}

// ClusterFunc returns the nearest-centroid lookup for centroids.
func ClusterFunc(centroids [][]float32) func([]float32) int {
	return func(v []float32) int {
		if i := tools.NearestCentroid(centroids, v); i >= 0 {
			return i
		}
		return 0
	}
}
