package tools

import (
	"math/rand"
	"sort"
	"strings"
)

const (
	junkGram     = 2
	minJunkWords = 10
	maxJunkWords = 200
)

// NgramJunkGenerator produces non-words by chaining character bigrams taken
// from the real vocabulary, so generated words look like the corpus language
// without being part of it.
type NgramJunkGenerator struct{}

// GenerateJunkWords returns deterministic junk words for the given seed.
func (NgramJunkGenerator) GenerateJunkWords(vocab []string, lang string, seed int64) []string {
	words := make([]string, 0, len(vocab))
	known := make(map[string]bool, len(vocab))
	for _, w := range vocab {
		w = strings.ToLower(w)
		if !IsWordToken(w) || known[w] {
			continue
		}
		known[w] = true
		words = append(words, w)
	}
	if len(words) == 0 {
		return nil
	}
	sort.Strings(words)

	// transitions from a bigram to the runes that follow it
	next := make(map[string][]rune)
	var starts []string
	lengths := make([]int, 0, len(words))
	for _, w := range words {
		runes := []rune(w)
		lengths = append(lengths, len(runes))
		if len(runes) < junkGram {
			continue
		}
		starts = append(starts, string(runes[:junkGram]))
		for i := 0; i+junkGram < len(runes); i++ {
			key := string(runes[i : i+junkGram])
			next[key] = append(next[key], runes[i+junkGram])
		}
	}
	if len(starts) == 0 {
		return nil
	}

	count := len(words)
	if count < minJunkWords {
		count = minJunkWords
	}
	if count > maxJunkWords {
		count = maxJunkWords
	}

	rng := rand.New(rand.NewSource(seed))
	out := make([]string, 0, count)
	seen := make(map[string]bool, count)
	for attempts := 0; len(out) < count && attempts < count*10; attempts++ {
		target := lengths[rng.Intn(len(lengths))]
		if target < junkGram+1 {
			target = junkGram + 1
		}
		runes := []rune(starts[rng.Intn(len(starts))])
		for len(runes) < target {
			key := string(runes[len(runes)-junkGram:])
			choices := next[key]
			if len(choices) == 0 {
				// restart the chain from a random bigram
				runes = append(runes, []rune(starts[rng.Intn(len(starts))])...)
				continue
			}
			runes = append(runes, choices[rng.Intn(len(choices))])
		}
		w := string(runes)
		if known[w] || seen[w] {
			continue
		}
		seen[w] = true
		out = append(out, w)
	}
	return out
}

// GenerateJunkWords implements JunkGenerator for Local.
func (l *Local) GenerateJunkWords(vocab []string, lang string, seed int64) []string {
	return l.junk.GenerateJunkWords(vocab, lang, seed)
}
