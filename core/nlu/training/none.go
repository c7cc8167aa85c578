package training

import (
	"math"
	"math/rand"
	"sort"
	"strings"
)

const (
	minNoneUtterances = 5
	// spaceSeparatorRatio is the share of space tokens above which synthetic
	// words are joined with a space.
	spaceSeparatorRatio = 0.3
)

// noneCorpus summarizes the training corpus for none-intent synthesis.
type noneCorpus struct {
	intents     int
	utterances  int
	wordTokens  int
	spaceTokens int
	totalTokens int
	lowWeight   []string
}

func (c noneCorpus) count() int {
	if c.intents == 0 {
		return 0
	}
	mean := int(math.Round(float64(c.utterances) / float64(c.intents)))
	if mean < minNoneUtterances {
		return minNoneUtterances
	}
	return mean
}

func (c noneCorpus) maxLength() int {
	if c.utterances == 0 {
		return 1
	}
	n := int(math.Round(2 * float64(c.wordTokens) / float64(c.utterances)))
	if n < 1 {
		return 1
	}
	return n
}

func (c noneCorpus) separator() string {
	if c.totalTokens > 0 && float64(c.spaceTokens)/float64(c.totalTokens) >= spaceSeparatorRatio {
		return " "
	}
	return ""
}

// lowWeightWords returns the lower half of vocab ranked by weight, at least one
// word when vocab is not empty.
func lowWeightWords(vocab []string, weights map[string]float64) []string {
	ranked := append([]string(nil), vocab...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return weights[ranked[i]] < weights[ranked[j]]
	})
	n := (len(ranked) + 1) / 2
	return ranked[:n]
}

// synthesizeNone builds the texts of the none intent. Lengths are drawn from
// [1, maxLength]; utterances cycle between junk only, real words only and a
// mix of both.
func synthesizeNone(c noneCorpus, junk []string, seed int64) []string {
	count := c.count()
	if count == 0 || (len(junk) == 0 && len(c.lowWeight) == 0) {
		return nil
	}

	rng := rand.New(rand.NewSource(seed))
	sep := c.separator()
	maxLen := c.maxLength()

	pick := func(pool, fallback []string) string {
		if len(pool) == 0 {
			pool = fallback
		}
		return pool[rng.Intn(len(pool))]
	}

	out := make([]string, 0, count)
	for i := 0; i < count; i++ {
		length := 1 + rng.Intn(maxLen)
		words := make([]string, length)
		for w := range words {
			switch i % 3 {
			case 0:
				words[w] = pick(junk, c.lowWeight)
			case 1:
				words[w] = pick(c.lowWeight, junk)
			default:
				if rng.Intn(2) == 0 {
					words[w] = pick(junk, c.lowWeight)
				} else {
					words[w] = pick(c.lowWeight, junk)
				}
			}
		}
		out = append(out, strings.Join(words, sep))
	}
	return out
}
