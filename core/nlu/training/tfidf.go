package training

import (
	"math"
	"sort"

	"github.com/adalundhe/sylk-nlu/core/nlu/utterance"
)

const minIDF = 0.25

// ComputeTFIDF returns the global weight of every lower-cased word token.
// Each document is the concatenation of one intent's utterances; a term's
// global weight is the mean of its per-intent augmented TF times IDF over the
// intents that contain it.
func ComputeTFIDF(docs map[string][]*utterance.Utterance) map[string]float64 {
	names := make([]string, 0, len(docs))
	for name := range docs {
		names = append(names, name)
	}
	sort.Strings(names)

	counts := make([]map[string]int, len(names))
	df := map[string]int{}
	for i, name := range names {
		c := map[string]int{}
		for _, u := range docs[name] {
			for _, t := range u.Tokens() {
				if t.IsWord {
					c[t.Lower()]++
				}
			}
		}
		for term := range c {
			df[term]++
		}
		counts[i] = c
	}

	n := float64(len(names))
	sums := map[string]float64{}
	for _, c := range counts {
		maxCount := 0
		for _, k := range c {
			if k > maxCount {
				maxCount = k
			}
		}
		for term, k := range c {
			tf := 0.5 + 0.5*float64(k)/float64(maxCount)
			idf := math.Max(minIDF, -math.Log(float64(df[term])/n))
			sums[term] += tf * idf
		}
	}

	out := make(map[string]float64, len(sums))
	for term, s := range sums {
		out[term] = s / float64(df[term])
	}
	return out
}
