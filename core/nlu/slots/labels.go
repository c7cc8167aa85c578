// Package slots builds sequence-labeling features from utterances and trains
// and runs the slot tagger.
package slots

import (
	"strings"

	"github.com/adalundhe/sylk-nlu/core/nlu/utterance"
)

// BIO labels.
const (
	Outside      = "O"
	BeginPrefix  = "B-"
	InsidePrefix = "I-"
	// AnySuffix marks a slot token that carries no entity tag.
	AnySuffix = "/any"
)

// LabelAt returns the BIO label of token i. Space tokens inside a slot after
// its first word are labeled I; leading spaces are labeled O.
func LabelAt(u *utterance.Utterance, i int) string {
	tags := u.SlotsAt(i)
	if len(tags) == 0 {
		return Outside
	}
	tag := tags[0]

	first := tag.StartToken
	for first < tag.EndToken && u.Token(first).IsSpace {
		first++
	}

	var label string
	switch {
	case i < first:
		return Outside
	case i == first:
		label = BeginPrefix + tag.Name
	default:
		label = InsidePrefix + tag.Name
	}
	if len(u.EntitiesAt(i)) == 0 {
		label += AnySuffix
	}
	return label
}

// Labelize returns the labels of every non-space token, in order.
func Labelize(u *utterance.Utterance) []string {
	labels := make([]string, 0, u.Len())
	for i, t := range u.Tokens() {
		if t.IsSpace {
			continue
		}
		labels = append(labels, LabelAt(u, i))
	}
	return labels
}

// ParseLabel splits a label into its prefix ("B-", "I-" or ""), slot name and
// whether it carries the any suffix.
func ParseLabel(label string) (prefix, slot string, anyEntity bool) {
	if label == Outside || label == "" {
		return "", "", false
	}
	anyEntity = strings.HasSuffix(label, AnySuffix)
	label = strings.TrimSuffix(label, AnySuffix)
	switch {
	case strings.HasPrefix(label, BeginPrefix):
		return BeginPrefix, label[len(BeginPrefix):], anyEntity
	case strings.HasPrefix(label, InsidePrefix):
		return InsidePrefix, label[len(InsidePrefix):], anyEntity
	}
	return "", label, anyEntity
}
