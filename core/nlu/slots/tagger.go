package slots

import (
	"context"
	"fmt"
	"sort"

	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
	"github.com/adalundhe/sylk-nlu/core/nlu/utterance"
)

// MinSlotConfidence is the merged label probability below which a token is
// treated as outside any slot.
const MinSlotConfidence = 0.15

// Tagger labels the tokens of an utterance with slot names.
type Tagger struct {
	seq tools.SequenceTagger
}

// Train fits a sequence tagger on the utterances of every intent. It returns
// a nil Tagger when no intent has a non-empty utterance.
func Train(ctx context.Context, tk tools.Toolkit, intents []Intent) (*Tagger, error) {
	var sequences []tools.Sequence
	for _, in := range intents {
		for _, u := range in.Utterances {
			labels := Labelize(u)
			if len(labels) == 0 {
				continue
			}
			sequences = append(sequences, tools.Sequence{
				Features: SequenceFeatures(u, in, false),
				Labels:   labels,
			})
		}
	}
	if len(sequences) == 0 {
		return nil, nil
	}

	seq := tk.NewSequenceTagger()
	if err := seq.Train(ctx, sequences); err != nil {
		return nil, fmt.Errorf("train slot tagger: %w", err)
	}
	return &Tagger{seq: seq}, nil
}

// Load restores a Tagger from MarshalBinary output.
func Load(tk tools.Toolkit, data []byte) (*Tagger, error) {
	seq, err := tk.LoadSequenceTagger(data)
	if err != nil {
		return nil, fmt.Errorf("load slot tagger: %w", err)
	}
	return &Tagger{seq: seq}, nil
}

// MarshalBinary encodes the underlying sequence tagger.
func (t *Tagger) MarshalBinary() ([]byte, error) {
	return t.seq.MarshalBinary()
}

// Extracted is a slot found in an utterance.
type Extracted struct {
	utterance.Slot
	Start int `json:"start"`
	End   int `json:"end"`
}

type span struct {
	name  string
	first int
	last  int
	probs []float64
}

// Extract predicts the slots of u for the given intent. Only slots the intent
// declares are returned. A slot covered by an entity of an allowed type takes
// the entity's value.
func (t *Tagger) Extract(u *utterance.Utterance, intent Intent) ([]Extracted, error) {
	if t == nil || len(intent.Slots) == 0 {
		return nil, nil
	}

	var idx []int
	for i, tok := range u.Tokens() {
		if !tok.IsSpace {
			idx = append(idx, i)
		}
	}
	if len(idx) == 0 {
		return nil, nil
	}

	marginals, err := t.seq.Marginals(SequenceFeatures(u, intent, true))
	if err != nil {
		return nil, fmt.Errorf("slot marginals: %w", err)
	}

	var spans []*span
	var cur *span
	for k, m := range marginals {
		label, p := bestLabel(m)
		prefix, name, _ := ParseLabel(label)
		if _, declared := intent.Slot(name); name == "" || !declared || p < MinSlotConfidence {
			cur = nil
			continue
		}
		if prefix == InsidePrefix && cur != nil && cur.name == name {
			cur.last = k
			cur.probs = append(cur.probs, p)
			continue
		}
		cur = &span{name: name, first: k, last: k, probs: []float64{p}}
		spans = append(spans, cur)
	}

	text := u.Text()
	out := make([]Extracted, 0, len(spans))
	for _, s := range spans {
		start := u.Token(idx[s.first]).Offset
		end := u.Token(idx[s.last]).End()
		source := text[start:end]

		var sum float64
		for _, p := range s.probs {
			sum += p
		}
		slot := Extracted{
			Slot: utterance.Slot{
				Name:       s.name,
				Value:      source,
				Source:     source,
				Confidence: sum / float64(len(s.probs)),
			},
			Start: start,
			End:   end,
		}

		def, _ := intent.Slot(s.name)
		if e, ok := coveringEntity(u, def, start, end); ok {
			slot.Value = e.Value
			slot.EntityType = e.Type
		}
		out = append(out, slot)
	}
	return out, nil
}

// bestLabel merges every label with its any-entity variant and returns the
// most probable one. Ties resolve by name.
func bestLabel(m map[string]float64) (string, float64) {
	merged := make(map[string]float64, len(m))
	for label, p := range m {
		prefix, name, _ := ParseLabel(label)
		key := Outside
		if name != "" {
			key = prefix + name
		}
		merged[key] += p
	}

	keys := make([]string, 0, len(merged))
	for k := range merged {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	best, bestP := Outside, -1.0
	for _, k := range keys {
		if merged[k] > bestP {
			best, bestP = k, merged[k]
		}
	}
	return best, bestP
}

// coveringEntity returns the most confident entity of an allowed type whose
// range contains [start, end).
func coveringEntity(u *utterance.Utterance, def SlotDefinition, start, end int) (utterance.EntityTag, bool) {
	allowed := make(map[string]bool, len(def.Entities))
	for _, e := range def.Entities {
		allowed[e] = true
	}

	var best utterance.EntityTag
	found := false
	for _, e := range u.Entities() {
		if !allowed[e.Type] || e.Start > start || e.End < end {
			continue
		}
		if !found || e.Confidence > best.Confidence {
			best, found = e, true
		}
	}
	return best, found
}
