// Package crossval measures how well a definition set generalizes by
// training on part of every intent's utterances and replaying the rest.
package crossval

import (
	"context"
	"math/rand"
	"sort"

	nluerrors "github.com/adalundhe/sylk-nlu/core/errors"
	"github.com/adalundhe/sylk-nlu/core/nlu/engine"
	"github.com/adalundhe/sylk-nlu/core/nlu/model"
	"github.com/adalundhe/sylk-nlu/core/nlu/predict"
	"github.com/adalundhe/sylk-nlu/core/nlu/utterance"
)

const (
	// DefaultRatio is the share of each intent's utterances used for training.
	DefaultRatio = 0.8
	// MinTrainUtterances is the smallest train split of a kept intent.
	MinTrainUtterances = 3
	// AllContexts aggregates every test case when more than one context exists.
	AllContexts = "all"
)

// TestCase is one held-out utterance.
type TestCase struct {
	Text     string   `json:"text"`
	Intent   string   `json:"intent"`
	Contexts []string `json:"contexts"`
}

// Engine is the subset of engine.Engine a run needs.
type Engine interface {
	Train(ctx context.Context, input model.Input, opts engine.TrainOptions) (*model.Model, error)
	Predict(ctx context.Context, text string, contexts []string, defaultLang string) *predict.Result
}

// Scores are macro-averaged over the intents seen in a context.
type Scores struct {
	Precision float64 `json:"precision"`
	Recall    float64 `json:"recall"`
	F1        float64 `json:"f1"`
	Support   int     `json:"support"`
}

// Report maps a context to its scores.
type Report map[string]Scores

// SplitSet splits the utterances of input's language per intent. Intents with
// fewer than MinTrainUtterances utterances are dropped. A kept intent with n
// utterances trains on min(n, max(3, floor(ratio*n))) of them, chosen by a
// shuffle seeded with seed; the rest become test cases.
func SplitSet(input model.Input, ratio float64, seed int64) (model.Input, []TestCase) {
	if ratio <= 0 || ratio > 1 {
		ratio = DefaultRatio
	}
	rng := rand.New(rand.NewSource(seed))

	train := input
	train.Intents = nil
	var tests []TestCase

	for _, intent := range input.Intents {
		utts := append([]string(nil), intent.Utterances[input.Language]...)
		n := len(utts)
		if n < MinTrainUtterances {
			continue
		}
		rng.Shuffle(n, func(i, j int) { utts[i], utts[j] = utts[j], utts[i] })

		nTrain := max(MinTrainUtterances, int(ratio*float64(n)))
		nTrain = min(n, nTrain)

		kept := intent
		kept.Utterances = map[string][]string{input.Language: utts[:nTrain]}
		train.Intents = append(train.Intents, kept)

		for _, u := range utts[nTrain:] {
			text, _ := utterance.ParseMarkup(u)
			tests = append(tests, TestCase{Text: text, Intent: intent.Name, Contexts: intent.Contexts})
		}
	}
	return train, tests
}

// Run trains e on the train split of input and scores the held-out cases.
// The split model replaces whatever model e had loaded for input's language,
// so callers pass an engine dedicated to the run.
func Run(ctx context.Context, e Engine, input model.Input, ratio float64) (Report, error) {
	train, tests := SplitSet(input, ratio, input.Seed)
	m, err := e.Train(ctx, train, engine.TrainOptions{})
	if err != nil {
		return nil, err
	}
	if !m.Success {
		return nil, nluerrors.New(nluerrors.KindTraining, "cross-validation training failed", nil).
			WithContext("error", m.Error)
	}

	pairs := map[string][]outcome{}
	contexts := map[string]bool{}
	for _, tc := range tests {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res := e.Predict(ctx, tc.Text, tc.Contexts, input.Language)
		if res.Errored {
			return nil, nluerrors.New(nluerrors.KindDegraded, "cross-validation prediction failed", nil).
				WithContext("text", tc.Text).
				WithContext("error", res.Error)
		}

		o := outcome{expected: tc.Intent, predicted: res.Intent.Name}
		cs := tc.Contexts
		if len(cs) == 0 {
			cs = []string{model.DefaultContext}
		}
		for _, c := range cs {
			contexts[c] = true
			pairs[c] = append(pairs[c], o)
		}
		pairs[AllContexts] = append(pairs[AllContexts], o)
	}

	report := Report{}
	for c := range contexts {
		report[c] = score(pairs[c])
	}
	if len(contexts) > 1 {
		report[AllContexts] = score(pairs[AllContexts])
	}
	return report, nil
}

type outcome struct {
	expected, predicted string
}

// score macro-averages precision, recall and F1 over every label that was
// expected or predicted.
func score(outcomes []outcome) Scores {
	tp := map[string]int{}
	fp := map[string]int{}
	fn := map[string]int{}
	labels := map[string]bool{}
	for _, o := range outcomes {
		labels[o.expected] = true
		labels[o.predicted] = true
		if o.expected == o.predicted {
			tp[o.expected]++
			continue
		}
		fp[o.predicted]++
		fn[o.expected]++
	}

	names := make([]string, 0, len(labels))
	for l := range labels {
		names = append(names, l)
	}
	sort.Strings(names)

	var s Scores
	for _, l := range names {
		p := ratioOf(tp[l], tp[l]+fp[l])
		r := ratioOf(tp[l], tp[l]+fn[l])
		s.Precision += p
		s.Recall += r
		if p+r > 0 {
			s.F1 += 2 * p * r / (p + r)
		}
	}
	if n := float64(len(names)); n > 0 {
		s.Precision /= n
		s.Recall /= n
		s.F1 /= n
	}
	s.Support = len(outcomes)
	return s
}

func ratioOf(a, b int) float64 {
	if b == 0 {
		return 0
	}
	return float64(a) / float64(b)
}
