package slots

import (
	"sort"
	"strconv"
	"unicode"

	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
	"github.com/adalundhe/sylk-nlu/core/nlu/utterance"
)

// TF-IDF weight buckets.
const (
	lowWeight    = 1.0
	mediumWeight = 1.5

	// extractionWordBoost scales the word feature at prediction time.
	extractionWordBoost = 3
)

// SlotDefinition declares a slot and the entity types that may fill it.
type SlotDefinition struct {
	Name     string   `json:"name" yaml:"name"`
	Entities []string `json:"entities" yaml:"entities"`
}

// Intent is the per-intent information the slot tagger needs.
type Intent struct {
	Name       string
	Slots      []SlotDefinition
	Vocab      map[string]bool
	Utterances []*utterance.Utterance
}

// Slot returns the definition of the named slot.
func (in Intent) Slot(name string) (SlotDefinition, bool) {
	for _, s := range in.Slots {
		if s.Name == name {
			return s, true
		}
	}
	return SlotDefinition{}, false
}

// AllowedEntities returns the sorted, distinct entity types of all slots.
func (in Intent) AllowedEntities() []string {
	seen := map[string]bool{}
	var out []string
	for _, s := range in.Slots {
		for _, e := range s.Entities {
			if !seen[e] {
				seen[e] = true
				out = append(out, e)
			}
		}
	}
	sort.Strings(out)
	return out
}

// WeightBucket maps a TF-IDF weight to low, medium or high.
func WeightBucket(w float64) string {
	switch {
	case w <= lowWeight:
		return "low"
	case w <= mediumWeight:
		return "medium"
	default:
		return "high"
	}
}

type tokenFeatures struct {
	word    string
	inVocab string
	weight  string
}

func boolString(b bool) string {
	return strconv.FormatBool(b)
}

func feature(name, value string, weight float64) tools.Feature {
	return tools.Feature{Name: name + "=" + value, Value: weight}
}

// SequenceFeatures builds one feature row per non-space token of u.
// extraction raises the weight of the word feature.
func SequenceFeatures(u *utterance.Utterance, intent Intent, extraction bool) [][]tools.Feature {
	var idx []int
	for i, t := range u.Tokens() {
		if !t.IsSpace {
			idx = append(idx, i)
		}
	}

	wordWeight := 1.0
	if extraction {
		wordWeight = extractionWordBoost
	}
	allowed := intent.AllowedEntities()

	base := make([]tokenFeatures, len(idx))
	for k, i := range idx {
		t := u.Token(i)
		base[k] = tokenFeatures{
			word:    t.Lower(),
			inVocab: boolString(intent.Vocab[t.Lower()]),
			weight:  WeightBucket(u.TFIDF(i)),
		}
	}

	rows := make([][]tools.Feature, len(idx))
	for k, i := range idx {
		t := u.Token(i)
		cur := base[k]

		quartile := i*4/u.Len() + 1
		spaceAdjacent := (i > 0 && u.Token(i-1).IsSpace) || (i+1 < u.Len() && u.Token(i+1).IsSpace)

		row := []tools.Feature{
			feature("quartile", strconv.Itoa(quartile), 1),
			feature("cluster", strconv.Itoa(u.Cluster(i)), 1),
			feature("weight", cur.weight, 1),
			feature("in_vocab", cur.inVocab, 1),
			feature("space_adjacent", boolString(spaceAdjacent), 1),
			feature("is_alpha", boolString(isAlpha(t.Value)), 1),
			feature("is_num", boolString(isNum(t.Value)), 1),
			feature("has_special", boolString(hasSpecial(t.Value)), 1),
			feature("word", cur.word, wordWeight),
		}

		ents := u.EntitiesAt(i)
		for _, typ := range allowed {
			match := "none"
			for _, e := range ents {
				if e.Type == typ {
					match = typ
					break
				}
			}
			row = append(row, feature("entity:"+typ, match, 1))
		}

		if k > 0 {
			row = append(row, pairFeatures("w[-1]", base[k-1], cur)...)
		}
		if k+1 < len(idx) {
			row = append(row, pairFeatures("w[+1]", base[k+1], cur)...)
		}

		row = append(row, feature("intent", intent.Name, 1))
		if k == 0 {
			row = append(row, tools.Feature{Name: "__BOS__", Value: 1})
		}
		if k == len(idx)-1 {
			row = append(row, tools.Feature{Name: "__EOS__", Value: 1})
		}
		rows[k] = row
	}
	return rows
}

// pairFeatures combines a neighbor's word, vocabulary and weight features
// with the current token's.
func pairFeatures(prefix string, neighbor, cur tokenFeatures) []tools.Feature {
	return []tools.Feature{
		feature(prefix+":word", neighbor.word, 1),
		feature(prefix+"|w[0]:word", neighbor.word+"|"+cur.word, 1),
		feature(prefix+"|w[0]:in_vocab", neighbor.inVocab+"|"+cur.inVocab, 1),
		feature(prefix+"|w[0]:weight", neighbor.weight+"|"+cur.weight, 1),
	}
}

func isAlpha(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsLetter(r) {
			return false
		}
	}
	return true
}

func isNum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

func hasSpecial(s string) bool {
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && !unicode.IsSpace(r) {
			return true
		}
	}
	return false
}
