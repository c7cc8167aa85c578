package entities

import (
	"math"
	"sort"
	"strings"

	"github.com/adalundhe/sylk-nlu/core/nlu/utterance"
)

// Fuzzy tolerance levels. A tolerance of 1 disables fuzzy matching.
const (
	FuzzyStrict = 1.0
	FuzzyMedium = 0.8
	FuzzyLoose  = 0.65
)

const (
	// MinListScore is the lowest score a list candidate may have to be kept.
	MinListScore = 0.65

	// minFuzzyChars is the shortest window eligible for fuzzy scoring.
	minFuzzyChars = 4

	lengthBoostExponent = 1.0 / 5
)

// FuzzyTolerance maps a named level to its tolerance. Unknown names and the
// empty string map to strict.
func FuzzyTolerance(level string) float64 {
	switch strings.ToLower(level) {
	case "medium":
		return FuzzyMedium
	case "loose":
		return FuzzyLoose
	default:
		return FuzzyStrict
	}
}

// ListEntity maps canonical values to their tokenized synonyms.
type ListEntity struct {
	Name           string                `json:"name"`
	FuzzyTolerance float64               `json:"fuzzy_tolerance"`
	CaseSensitive  bool                  `json:"case_sensitive"`
	Mappings       map[string][][]string `json:"mappings"`
}

// Extraction is an entity found in an utterance. Start and End are byte
// offsets into the utterance text.
type Extraction struct {
	utterance.Entity
	Start int `json:"start"`
	End   int `json:"end"`
}

type listCandidate struct {
	entity     string
	canonical  string
	score      float64
	start, end int // token indexes, inclusive
	source     string
	eliminated bool
}

// takeUntil selects the token window starting at start whose character
// length is closest to desired. A trailing space token is dropped.
func takeUntil(tokens []utterance.Token, start, desired int) []utterance.Token {
	total := 0
	end := start
	for end < len(tokens) {
		add := len([]rune(tokens[end].Value))
		if total > 0 && abs(desired-total) < abs(desired-total-add) {
			break
		}
		total += add
		end++
	}
	window := tokens[start:end]
	if n := len(window); n > 0 && window[n-1].IsSpace {
		window = window[:n-1]
	}
	return window
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func values(tokens []utterance.Token) []string {
	out := make([]string, len(tokens))
	for i, t := range tokens {
		out[i] = t.Value
	}
	return out
}

// ExtractList finds the values of one list entity in u.
func ExtractList(u *utterance.Utterance, list *ListEntity) []Extraction {
	return ExtractLists(u, []*ListEntity{list})
}

// ExtractLists finds the values of several list entities in u. Candidates of
// every list compete for the tokens they cover, so the returned extractions
// never overlap.
func ExtractLists(u *utterance.Utterance, lists []*ListEntity) []Extraction {
	tokens := u.Tokens()

	var candidates []*listCandidate
	longest := 0
	for _, list := range lists {
		found, n := listCandidates(u, list)
		candidates = append(candidates, found...)
		longest = max(longest, n)
	}
	eliminateOverlaps(len(tokens), candidates, longest)

	var out []Extraction
	for _, c := range candidates {
		if c.eliminated || c.score < MinListScore {
			continue
		}
		out = append(out, Extraction{
			Entity: utterance.Entity{
				Type:       c.entity,
				Kind:       utterance.KindList,
				Value:      c.canonical,
				Source:     c.source,
				Confidence: c.score,
			},
			Start: tokens[c.start].Offset,
			End:   tokens[c.end].End(),
		})
	}
	return out
}

// listCandidates scores every token window of u against every synonym of
// list. It also returns the character length of the longest synonym.
func listCandidates(u *utterance.Utterance, list *ListEntity) ([]*listCandidate, int) {
	tokens := u.Tokens()
	fuzzyEnabled := list.FuzzyTolerance < 1

	canonicals := make([]string, 0, len(list.Mappings))
	for c := range list.Mappings {
		canonicals = append(canonicals, c)
	}
	sort.Strings(canonicals)

	var candidates []*listCandidate
	longest := 0
	for _, canonical := range canonicals {
		for _, synonym := range list.Mappings[canonical] {
			synText := strings.Join(synonym, "")
			synLen := len([]rune(synText))
			if synLen > longest {
				longest = synLen
			}

			for i := range tokens {
				if tokens[i].IsSpace {
					continue
				}
				window := takeUntil(tokens, i, synLen)
				if len(window) == 0 {
					continue
				}
				windowVals := values(window)
				windowText := strings.Join(windowVals, "")

				var score float64
				if fuzzyEnabled && len([]rune(windowText)) >= minFuzzyChars {
					fz := fuzzyScore(windowText, synText)
					if fz < list.FuzzyTolerance {
						fz = 0
					}
					score = fz
				} else {
					a, b := windowText, synText
					if !list.CaseSensitive {
						a, b = strings.ToLower(a), strings.ToLower(b)
					}
					if exactScore(a, b) == 1 {
						score = 1
					}
				}
				score = round3(score * structuralScore(windowVals, synonym))

				last := window[len(window)-1]
				candidates = append(candidates, &listCandidate{
					entity:    list.Name,
					canonical: canonical,
					score:     score,
					start:     window[0].Index,
					end:       last.Index,
					source:    u.Text()[window[0].Offset:last.End()],
				})
			}
		}
	}
	return candidates, longest
}

// eliminateOverlaps keeps, at every token, only the best ranked candidate
// covering it. Rank is the score boosted by the matched length, capped at
// longest characters.
func eliminateOverlaps(numTokens int, candidates []*listCandidate, longest int) {
	rank := func(c *listCandidate) float64 {
		length := min(len([]rune(c.source)), longest)
		return c.score * math.Pow(float64(length), lengthBoostExponent)
	}

	for i := 0; i < numTokens; i++ {
		var covering []*listCandidate
		for _, c := range candidates {
			if !c.eliminated && c.start <= i && i <= c.end {
				covering = append(covering, c)
			}
		}
		if len(covering) < 2 {
			continue
		}
		sort.SliceStable(covering, func(a, b int) bool {
			return rank(covering[a]) > rank(covering[b])
		})
		for _, loser := range covering[1:] {
			loser.eliminated = true
		}
	}
}
