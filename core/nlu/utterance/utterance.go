// Package utterance holds the tokenized representation of one sentence that
// both training and prediction operate on.
//
// An Utterance is an arena of tokens plus append-only lists of slot and entity
// tags. Each tag records a byte range of the text and the token range it
// covers; token-level views are computed by filtering those lists.
package utterance

import (
	"math"
	"strings"

	"github.com/viterin/vek/vek32"

	nluerrors "github.com/adalundhe/sylk-nlu/core/errors"
	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
)

// Token is a read-only view of one token of an Utterance.
type Token struct {
	Index   int
	Value   string
	Offset  int
	IsWord  bool
	IsSpace bool
	IsBOS   bool
	IsEOS   bool
	POS     string
	Vector  []float32
}

// End returns the byte offset just past the token.
func (t Token) End() int {
	return t.Offset + len(t.Value)
}

// Lower returns the lower-cased token value.
func (t Token) Lower() string {
	return strings.ToLower(t.Value)
}

// Slot is a slot value attached to a range of an utterance.
type Slot struct {
	Name       string  `json:"name"`
	Value      string  `json:"value"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
	// EntityType is set when the value was resolved from an extracted entity.
	EntityType string `json:"entity_type,omitempty"`
}

// Entity kinds.
const (
	KindList    = "list"
	KindPattern = "pattern"
	KindSystem  = "system"
)

// Entity is an extracted entity attached to a range of an utterance.
type Entity struct {
	// Type is the entity name slots refer to, e.g. "fruit" or "system.number".
	Type       string  `json:"type"`
	Kind       string  `json:"kind"`
	Value      string  `json:"value"`
	Unit       string  `json:"unit,omitempty"`
	Source     string  `json:"source"`
	Confidence float64 `json:"confidence"`
}

// SlotTag is a slot bound to a byte range and the token range it covers.
type SlotTag struct {
	Slot
	Start      int `json:"start"`
	End        int `json:"end"`
	StartToken int `json:"start_token"`
	EndToken   int `json:"end_token"`
}

// EntityTag is an entity bound to a byte range and the token range it covers.
type EntityTag struct {
	Entity
	Start      int `json:"start"`
	End        int `json:"end"`
	StartToken int `json:"start_token"`
	EndToken   int `json:"end_token"`
}

// Covers reports whether the tag spans token i.
func (t SlotTag) Covers(i int) bool { return t.StartToken <= i && i <= t.EndToken }

// Covers reports whether the tag spans token i.
func (t EntityTag) Covers(i int) bool { return t.StartToken <= i && i <= t.EndToken }

// Utterance is one tokenized sentence with its tags and derived features.
// It is not safe for concurrent mutation.
type Utterance struct {
	tokens   []Token
	text     string
	slots    []SlotTag
	entities []EntityTag

	tfidf     map[string]float64
	clusterFn func([]float32) int
	embedding []float32
}

// New builds an Utterance from parallel token, vector and POS tag arrays.
func New(tokens []string, vectors [][]float32, posTags []string) (*Utterance, error) {
	if len(tokens) != len(vectors) || len(tokens) != len(posTags) {
		return nil, nluerrors.Validationf(nluerrors.ErrLengthMismatch.Code,
			"tokens (%d), vectors (%d) and pos tags (%d) differ in length",
			len(tokens), len(vectors), len(posTags))
	}

	u := &Utterance{tokens: make([]Token, len(tokens))}
	var b strings.Builder
	offset := 0
	for i, value := range tokens {
		u.tokens[i] = Token{
			Index:   i,
			Value:   value,
			Offset:  offset,
			IsWord:  tools.IsWordToken(value),
			IsSpace: tools.IsSpaceToken(value),
			IsBOS:   i == 0,
			IsEOS:   i == len(tokens)-1,
			POS:     posTags[i],
			Vector:  vectors[i],
		}
		b.WriteString(value)
		offset += len(value)
	}
	u.text = b.String()
	return u, nil
}

// Len returns the number of tokens.
func (u *Utterance) Len() int { return len(u.tokens) }

// Text returns the concatenation of all tokens.
func (u *Utterance) Text() string { return u.text }

// Token returns the i-th token.
func (u *Utterance) Token(i int) Token { return u.tokens[i] }

// Tokens returns all tokens. The slice must not be modified.
func (u *Utterance) Tokens() []Token { return u.tokens }

// Slots returns every slot tag in insertion order.
func (u *Utterance) Slots() []SlotTag { return u.slots }

// Entities returns every entity tag in insertion order.
func (u *Utterance) Entities() []EntityTag { return u.entities }

// SlotsAt returns the slot tags covering token i.
func (u *Utterance) SlotsAt(i int) []SlotTag {
	var out []SlotTag
	for _, s := range u.slots {
		if s.Covers(i) {
			out = append(out, s)
		}
	}
	return out
}

// EntitiesAt returns the entity tags covering token i.
func (u *Utterance) EntitiesAt(i int) []EntityTag {
	var out []EntityTag
	for _, e := range u.entities {
		if e.Covers(i) {
			out = append(out, e)
		}
	}
	return out
}

// cover validates [start,end) and returns the first and last covering token.
// ok is false when no token overlaps the range.
func (u *Utterance) cover(start, end int) (first, last int, ok bool, err error) {
	if start < 0 || end > len(u.text) || start > end {
		return 0, 0, false, nluerrors.Validationf(nluerrors.ErrInvalidRange.Code,
			"range [%d,%d) outside utterance of length %d", start, end, len(u.text))
	}
	first, last = -1, -1
	for _, t := range u.tokens {
		if t.Offset < end && t.End() > start {
			if first < 0 {
				first = t.Index
			}
			last = t.Index
		}
	}
	return first, last, first >= 0, nil
}

// TagSlot attaches a slot to the byte range [start,end). A range covering no
// token is a no-op; an out-of-bounds range fails without mutating anything.
func (u *Utterance) TagSlot(slot Slot, start, end int) error {
	first, last, ok, err := u.cover(start, end)
	if err != nil || !ok {
		return err
	}
	if slot.Source == "" {
		slot.Source = u.text[start:end]
	}
	u.slots = append(u.slots, SlotTag{Slot: slot, Start: start, End: end, StartToken: first, EndToken: last})
	return nil
}

// TagEntity attaches an entity to the byte range [start,end). A range covering
// no token is a no-op; an out-of-bounds range fails without mutating anything.
func (u *Utterance) TagEntity(entity Entity, start, end int) error {
	first, last, ok, err := u.cover(start, end)
	if err != nil || !ok {
		return err
	}
	if entity.Source == "" {
		entity.Source = u.text[start:end]
	}
	u.entities = append(u.entities, EntityTag{Entity: entity, Start: start, End: end, StartToken: first, EndToken: last})
	return nil
}

// SetGlobalTFIDF attaches a lower-cased token to weight table.
func (u *Utterance) SetGlobalTFIDF(table map[string]float64) {
	u.tfidf = table
	u.embedding = nil
}

// SetClusterFunc attaches the nearest-centroid lookup.
func (u *Utterance) SetClusterFunc(fn func([]float32) int) {
	u.clusterFn = fn
}

// TFIDF returns the weight of token i, 1.0 when unknown.
func (u *Utterance) TFIDF(i int) float64 {
	if u.tfidf == nil {
		return 1
	}
	if w, ok := u.tfidf[u.tokens[i].Lower()]; ok {
		return w
	}
	return 1
}

// Cluster returns the nearest cluster of token i, 0 when no lookup is set.
func (u *Utterance) Cluster(i int) int {
	if u.clusterFn == nil {
		return 0
	}
	return u.clusterFn(u.tokens[i].Vector)
}

// SentenceEmbedding returns the L2-normalized sum of unit word vectors
// weighted by min(1, tfidf). The result is computed once and cached.
func (u *Utterance) SentenceEmbedding() []float32 {
	if u.embedding != nil {
		return u.embedding
	}

	dim := 0
	for _, t := range u.tokens {
		if len(t.Vector) > dim {
			dim = len(t.Vector)
		}
	}
	sum := make([]float32, dim)
	scaled := make([]float32, dim)
	for i, t := range u.tokens {
		if !t.IsWord || len(t.Vector) != dim {
			continue
		}
		norm := tools.Norm(t.Vector)
		if norm == 0 {
			continue
		}
		weight := math.Min(1, u.TFIDF(i))
		copy(scaled, t.Vector)
		vek32.MulNumber_Inplace(scaled, float32(weight/norm))
		vek32.Add_Inplace(sum, scaled)
	}

	if norm := tools.Norm(sum); norm > 0 {
		vek32.MulNumber_Inplace(sum, float32(1/norm))
	}
	u.embedding = sum
	return sum
}

// Clone copies the utterance, optionally carrying over its entity and slot
// tags. Token vectors are shared.
func (u *Utterance) Clone(keepEntities, keepSlots bool) *Utterance {
	c := &Utterance{
		tokens:    append([]Token(nil), u.tokens...),
		text:      u.text,
		tfidf:     u.tfidf,
		clusterFn: u.clusterFn,
	}
	if keepEntities {
		c.entities = append([]EntityTag(nil), u.entities...)
	}
	if keepSlots {
		c.slots = append([]SlotTag(nil), u.slots...)
	}
	return c
}

// WordCount returns the number of word tokens.
func (u *Utterance) WordCount() int {
	n := 0
	for _, t := range u.tokens {
		if t.IsWord {
			n++
		}
	}
	return n
}
