package entities

import (
	"math"
	"strings"
)

// levenshteinDistance calculates the edit distance between two rune slices
// with the single-row algorithm.
func levenshteinDistance(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}
	if len(a) > len(b) {
		a, b = b, a
	}

	prev := make([]int, len(a)+1)
	curr := make([]int, len(a)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(b); i++ {
		curr[0] = i
		for j := 1; j <= len(a); j++ {
			cost := 1
			if b[i-1] == a[j-1] {
				cost = 0
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}
	return prev[len(a)]
}

// LevenshteinSimilarity returns 1 - distance / max length.
func LevenshteinSimilarity(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshteinDistance(ra, rb))/float64(longest)
}

// JaroWinkler returns the Jaro-Winkler similarity of a and b with the
// standard 0.1 prefix scale over at most 4 leading runes.
func JaroWinkler(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 && len(rb) == 0 {
		return 1
	}
	if len(ra) == 0 || len(rb) == 0 {
		return 0
	}

	window := max(len(ra), len(rb))/2 - 1
	if window < 0 {
		window = 0
	}

	matchedA := make([]bool, len(ra))
	matchedB := make([]bool, len(rb))
	matches := 0
	for i := range ra {
		lo := max(0, i-window)
		hi := min(len(rb), i+window+1)
		for j := lo; j < hi; j++ {
			if matchedB[j] || ra[i] != rb[j] {
				continue
			}
			matchedA[i] = true
			matchedB[j] = true
			matches++
			break
		}
	}
	if matches == 0 {
		return 0
	}

	transpositions := 0
	k := 0
	for i := range ra {
		if !matchedA[i] {
			continue
		}
		for !matchedB[k] {
			k++
		}
		if ra[i] != rb[k] {
			transpositions++
		}
		k++
	}

	m := float64(matches)
	jaro := (m/float64(len(ra)) + m/float64(len(rb)) + (m-float64(transpositions)/2)/m) / 3

	prefix := 0
	for i := 0; i < min(4, len(ra), len(rb)); i++ {
		if ra[i] != rb[i] {
			break
		}
		prefix++
	}
	return jaro + float64(prefix)*0.1*(1-jaro)
}

// exactScore is the ratio of equal characters at equal positions.
func exactScore(a, b string) float64 {
	ra, rb := []rune(a), []rune(b)
	longest := max(len(ra), len(rb))
	if longest == 0 {
		return 1
	}
	same := 0
	for i := 0; i < min(len(ra), len(rb)); i++ {
		if ra[i] == rb[i] {
			same++
		}
	}
	return float64(same) / float64(longest)
}

// fuzzyScore averages Levenshtein and Jaro-Winkler similarity,
// case-insensitively.
func fuzzyScore(a, b string) float64 {
	a, b = strings.ToLower(a), strings.ToLower(b)
	return (LevenshteinSimilarity(a, b) + JaroWinkler(a, b)) / 2
}

func charset(tokens []string, lower bool) map[rune]bool {
	set := make(map[rune]bool)
	for _, t := range tokens {
		if lower {
			t = strings.ToLower(t)
		}
		for _, r := range t {
			set[r] = true
		}
	}
	return set
}

func jaccard(a, b map[rune]bool) float64 {
	union := len(a)
	inter := 0
	for r := range b {
		if a[r] {
			inter++
		} else {
			union++
		}
	}
	if union == 0 {
		return 1
	}
	return float64(inter) / float64(union)
}

func ratio(a, b float64) float64 {
	hi := math.Max(a, b)
	if hi == 0 {
		return 1
	}
	return math.Min(a, b) / hi
}

func countLong(tokens []string) float64 {
	n := 0
	for _, t := range tokens {
		if len([]rune(t)) > 1 {
			n++
		}
	}
	return float64(max(1, n))
}

func totalChars(tokens []string) float64 {
	n := 0
	for _, t := range tokens {
		n += len([]rune(t))
	}
	return float64(n)
}

// structuralScore is the geometric mean of charset overlap, case-insensitive
// charset overlap, token count ratio and total character ratio.
func structuralScore(a, b []string) float64 {
	charsetScore := jaccard(charset(a, false), charset(b, false))
	lowerScore := jaccard(charset(a, true), charset(b, true))
	qtyScore := ratio(countLong(a), countLong(b))
	sizeScore := ratio(totalChars(a), totalChars(b))
	return math.Pow(charsetScore*lowerScore*qtyScore*sizeScore, 0.25)
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
