package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
)

// CRFConfig configures linear-chain CRF training.
type CRFConfig struct {
	Epochs       int     `yaml:"epochs" json:"epochs"`
	LearningRate float64 `yaml:"learning_rate" json:"learning_rate"`
	L2           float64 `yaml:"l2" json:"l2"`
	Seed         int64   `yaml:"seed" json:"seed"`
}

// DefaultCRFConfig returns the defaults used for the slot tagger.
func DefaultCRFConfig() CRFConfig {
	return CRFConfig{
		Epochs:       50,
		LearningRate: 0.1,
		L2:           1e-4,
		Seed:         42,
	}
}

// alphabet maps between strings and dense integer ids.
type alphabet struct {
	toID  map[string]int
	toStr []string
}

func newAlphabet() *alphabet {
	return &alphabet{toID: make(map[string]int)}
}

func alphabetOf(items []string) *alphabet {
	a := newAlphabet()
	for _, s := range items {
		a.add(s)
	}
	return a
}

func (a *alphabet) add(s string) int {
	if id, ok := a.toID[s]; ok {
		return id
	}
	id := len(a.toStr)
	a.toID[s] = id
	a.toStr = append(a.toStr, s)
	return id
}

func (a *alphabet) get(s string) int {
	if id, ok := a.toID[s]; ok {
		return id
	}
	return -1
}

func (a *alphabet) size() int {
	return len(a.toStr)
}

// CRF is a first-order linear-chain conditional random field.
//
// Weight layout: [state features... | transition features...]
// State feature index: attrID * numLabels + labelID
// Transition feature index: transOffset + fromLabelID * numLabels + toLabelID
type CRF struct {
	cfg CRFConfig

	labels  *alphabet
	attrs   *alphabet
	weights []float64
}

type crfState struct {
	Labels     []string  `json:"labels"`
	Attributes []string  `json:"attributes"`
	Weights    []float64 `json:"weights"`
}

// NewCRF creates an untrained CRF.
func NewCRF(cfg CRFConfig) *CRF {
	def := DefaultCRFConfig()
	if cfg.Epochs <= 0 {
		cfg.Epochs = def.Epochs
	}
	if cfg.LearningRate <= 0 {
		cfg.LearningRate = def.LearningRate
	}
	if cfg.L2 < 0 {
		cfg.L2 = def.L2
	}
	return &CRF{cfg: cfg, labels: newAlphabet(), attrs: newAlphabet()}
}

// LoadCRF restores a CRF from MarshalBinary output.
func LoadCRF(data []byte) (*CRF, error) {
	var st crfState
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("decode crf: %w", err)
	}
	c := &CRF{
		cfg:     DefaultCRFConfig(),
		labels:  alphabetOf(st.Labels),
		attrs:   alphabetOf(st.Attributes),
		weights: st.Weights,
	}
	if len(c.weights) != c.numWeights() {
		return nil, fmt.Errorf("decode crf: %d weights, want %d", len(c.weights), c.numWeights())
	}
	return c, nil
}

func (c *CRF) numLabels() int { return c.labels.size() }

func (c *CRF) transOffset() int { return c.attrs.size() * c.numLabels() }

func (c *CRF) numWeights() int { return c.transOffset() + c.numLabels()*c.numLabels() }

func (c *CRF) stateIndex(attrID, labelID int) int { return attrID*c.numLabels() + labelID }

func (c *CRF) transIndex(from, to int) int { return c.transOffset() + from*c.numLabels() + to }

// encoded is a sequence with attributes resolved to ids.
type encoded struct {
	attrs  [][]int
	values [][]float64
	gold   []int
}

func (c *CRF) encode(features [][]Feature, grow bool) encoded {
	e := encoded{
		attrs:  make([][]int, len(features)),
		values: make([][]float64, len(features)),
	}
	for t, fs := range features {
		for _, f := range fs {
			var id int
			if grow {
				id = c.attrs.add(f.Name)
			} else {
				id = c.attrs.get(f.Name)
			}
			if id < 0 {
				continue
			}
			e.attrs[t] = append(e.attrs[t], id)
			e.values[t] = append(e.values[t], f.Value)
		}
	}
	return e
}

// Train fits the CRF with stochastic gradient ascent on the log-likelihood.
func (c *CRF) Train(ctx context.Context, sequences []Sequence) error {
	if len(sequences) == 0 {
		return fmt.Errorf("train crf: no sequences")
	}

	c.labels = newAlphabet()
	c.attrs = newAlphabet()
	data := make([]encoded, 0, len(sequences))
	for i, seq := range sequences {
		if len(seq.Features) != len(seq.Labels) {
			return fmt.Errorf("train crf: sequence %d has %d feature rows and %d labels", i, len(seq.Features), len(seq.Labels))
		}
		if len(seq.Labels) == 0 {
			continue
		}
		e := c.encode(seq.Features, true)
		e.gold = make([]int, len(seq.Labels))
		for t, l := range seq.Labels {
			e.gold[t] = c.labels.add(l)
		}
		data = append(data, e)
	}
	if len(data) == 0 {
		return fmt.Errorf("train crf: all sequences are empty")
	}
	c.weights = make([]float64, c.numWeights())

	rng := rand.New(rand.NewSource(c.cfg.Seed))
	order := make([]int, len(data))
	for i := range order {
		order[i] = i
	}

	for epoch := 0; epoch < c.cfg.Epochs; epoch++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		lr := c.cfg.LearningRate / (1 + 0.05*float64(epoch))
		rng.Shuffle(len(order), func(i, j int) { order[i], order[j] = order[j], order[i] })
		for _, i := range order {
			c.step(data[i], lr)
		}
		if c.cfg.L2 > 0 {
			decay := 1 - lr*c.cfg.L2*float64(len(data))
			if decay < 0.5 {
				decay = 0.5
			}
			floats.Scale(decay, c.weights)
		}
	}
	return nil
}

// step applies one gradient update for a single gold sequence.
func (c *CRF) step(e encoded, lr float64) {
	L := c.numLabels()
	T := len(e.gold)
	state := c.stateScores(e)
	trans := c.transScores()
	alpha, beta, logZ := forwardBackward(state, trans)

	for t := 0; t < T; t++ {
		for y := 0; y < L; y++ {
			p := math.Exp(alpha[t][y] + beta[t][y] - logZ)
			g := -p
			if y == e.gold[t] {
				g += 1
			}
			if g == 0 {
				continue
			}
			for k, a := range e.attrs[t] {
				c.weights[c.stateIndex(a, y)] += lr * g * e.values[t][k]
			}
		}
	}

	for t := 1; t < T; t++ {
		for i := 0; i < L; i++ {
			for j := 0; j < L; j++ {
				p := math.Exp(alpha[t-1][i] + trans[i][j] + state[t][j] + beta[t][j] - logZ)
				g := -p
				if i == e.gold[t-1] && j == e.gold[t] {
					g += 1
				}
				c.weights[c.transIndex(i, j)] += lr * g
			}
		}
	}
}

func (c *CRF) stateScores(e encoded) [][]float64 {
	L := c.numLabels()
	scores := make([][]float64, len(e.attrs))
	for t := range e.attrs {
		scores[t] = make([]float64, L)
		for k, a := range e.attrs[t] {
			base := c.stateIndex(a, 0)
			floats.AddScaled(scores[t], e.values[t][k], c.weights[base:base+L])
		}
	}
	return scores
}

func (c *CRF) transScores() [][]float64 {
	L := c.numLabels()
	trans := make([][]float64, L)
	for i := range trans {
		base := c.transIndex(i, 0)
		trans[i] = append([]float64(nil), c.weights[base:base+L]...)
	}
	return trans
}

// forwardBackward runs the log-space forward and backward recursions.
func forwardBackward(state, trans [][]float64) (alpha, beta [][]float64, logZ float64) {
	T := len(state)
	L := len(trans)
	alpha = make([][]float64, T)
	beta = make([][]float64, T)
	buf := make([]float64, L)

	alpha[0] = append([]float64(nil), state[0]...)
	for t := 1; t < T; t++ {
		alpha[t] = make([]float64, L)
		for j := 0; j < L; j++ {
			for i := 0; i < L; i++ {
				buf[i] = alpha[t-1][i] + trans[i][j]
			}
			alpha[t][j] = floats.LogSumExp(buf) + state[t][j]
		}
	}

	beta[T-1] = make([]float64, L)
	for t := T - 2; t >= 0; t-- {
		beta[t] = make([]float64, L)
		for i := 0; i < L; i++ {
			for j := 0; j < L; j++ {
				buf[j] = trans[i][j] + state[t+1][j] + beta[t+1][j]
			}
			beta[t][i] = floats.LogSumExp(buf)
		}
	}

	logZ = floats.LogSumExp(alpha[T-1])
	return alpha, beta, logZ
}

// Marginals returns the posterior probability of every label at every
// position. Unknown attributes are ignored.
func (c *CRF) Marginals(features [][]Feature) ([]map[string]float64, error) {
	if c.numLabels() == 0 {
		return nil, fmt.Errorf("crf marginals: model not trained")
	}
	if len(features) == 0 {
		return nil, nil
	}

	e := c.encode(features, false)
	state := c.stateScores(e)
	alpha, beta, logZ := forwardBackward(state, c.transScores())

	out := make([]map[string]float64, len(features))
	for t := range features {
		m := make(map[string]float64, c.numLabels())
		for y, label := range c.labels.toStr {
			m[label] = math.Exp(alpha[t][y] + beta[t][y] - logZ)
		}
		out[t] = m
	}
	return out, nil
}

// Labels returns the label set in id order.
func (c *CRF) Labels() []string {
	return c.labels.toStr
}

// MarshalBinary encodes labels, attributes and weights.
func (c *CRF) MarshalBinary() ([]byte, error) {
	return json.Marshal(crfState{
		Labels:     c.labels.toStr,
		Attributes: c.attrs.toStr,
		Weights:    c.weights,
	})
}

// NewSequenceTagger implements Toolkit for Local.
func (l *Local) NewSequenceTagger() SequenceTagger {
	return NewCRF(l.cfg.CRF)
}

// LoadSequenceTagger implements Toolkit for Local.
func (l *Local) LoadSequenceTagger(data []byte) (SequenceTagger, error) {
	return LoadCRF(data)
}
