package crossval

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/sylk-nlu/core/nlu/engine"
	"github.com/adalundhe/sylk-nlu/core/nlu/model"
	"github.com/adalundhe/sylk-nlu/core/nlu/predict"
	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
)

func intentWith(name string, n int, contexts ...string) model.IntentDefinition {
	utts := make([]string, n)
	for i := range utts {
		utts[i] = fmt.Sprintf("%s sample %d", name, i)
	}
	return model.IntentDefinition{
		Name:       name,
		Contexts:   contexts,
		Utterances: map[string][]string{"en": utts, "fr": {"ignored"}},
	}
}

func TestSplitSet_Sizes(t *testing.T) {
	tests := []struct {
		n         int
		wantTrain int
		wantTest  int
		dropped   bool
	}{
		{n: 2, dropped: true},
		{n: 3, wantTrain: 3, wantTest: 0},
		{n: 4, wantTrain: 3, wantTest: 1},
		{n: 5, wantTrain: 4, wantTest: 1},
		{n: 10, wantTrain: 8, wantTest: 2},
		{n: 11, wantTrain: 8, wantTest: 3},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("n=%d", tt.n), func(t *testing.T) {
			in := model.Input{Language: "en", Intents: []model.IntentDefinition{intentWith("a", tt.n)}}
			train, cases := SplitSet(in, DefaultRatio, 1)
			if tt.dropped {
				assert.Empty(t, train.Intents)
				assert.Empty(t, cases)
				return
			}
			require.Len(t, train.Intents, 1)
			assert.Len(t, train.Intents[0].Utterances["en"], tt.wantTrain)
			assert.NotContains(t, train.Intents[0].Utterances, "fr")
			assert.Len(t, cases, tt.wantTest)
			assert.Equal(t, tt.n, tt.wantTrain+len(cases))
		})
	}
}

func TestSplitSet_DeterministicAndDisjoint(t *testing.T) {
	in := model.Input{Language: "en", Intents: []model.IntentDefinition{intentWith("a", 10)}}

	train1, cases1 := SplitSet(in, DefaultRatio, 42)
	train2, cases2 := SplitSet(in, DefaultRatio, 42)
	assert.Equal(t, train1, train2)
	assert.Equal(t, cases1, cases2)

	seen := map[string]bool{}
	for _, u := range train1.Intents[0].Utterances["en"] {
		seen[u] = true
	}
	for _, c := range cases1 {
		assert.False(t, seen[c.Text], "%q is in both splits", c.Text)
		assert.Equal(t, "a", c.Intent)
	}
	assert.Len(t, in.Intents[0].Utterances["en"], 10, "input is not modified")
}

func TestSplitSet_StripsMarkup(t *testing.T) {
	in := model.Input{Language: "en", Intents: []model.IntentDefinition{{
		Name: "fly",
		Utterances: map[string][]string{"en": {
			"fly to [paris](city)",
			"fly to [rome](city)",
			"fly to [oslo](city)",
			"fly to [lima](city)",
		}},
	}}}
	_, cases := SplitSet(in, DefaultRatio, 3)
	require.Len(t, cases, 1)
	assert.NotContains(t, cases[0].Text, "[")
	assert.Contains(t, cases[0].Text, "fly to ")
}

func TestScore(t *testing.T) {
	s := score([]outcome{
		{expected: "a", predicted: "a"},
		{expected: "a", predicted: "b"},
		{expected: "b", predicted: "b"},
	})
	assert.InDelta(t, 0.75, s.Precision, 1e-9)
	assert.InDelta(t, 0.75, s.Recall, 1e-9)
	assert.InDelta(t, 2.0/3, s.F1, 1e-9)
	assert.Equal(t, 3, s.Support)

	assert.Equal(t, Scores{}, score(nil))
}

type scriptedEngine struct {
	trained model.Input
	answers map[string]string
}

func (s *scriptedEngine) Train(_ context.Context, input model.Input, _ engine.TrainOptions) (*model.Model, error) {
	s.trained = input
	return &model.Model{Success: true}, nil
}

func (s *scriptedEngine) Predict(_ context.Context, text string, _ []string, lang string) *predict.Result {
	return &predict.Result{Language: lang, Intent: predict.IntentPrediction{Name: s.answers[text]}}
}

func TestRun_Scripted(t *testing.T) {
	in := model.Input{Language: "en", Seed: 5, Intents: []model.IntentDefinition{
		intentWith("a", 5, "shop"),
		intentWith("b", 5, "talk"),
	}}
	_, cases := SplitSet(in, DefaultRatio, in.Seed)
	require.Len(t, cases, 2)

	e := &scriptedEngine{answers: map[string]string{}}
	for _, c := range cases {
		e.answers[c.Text] = c.Intent
	}

	report, err := Run(context.Background(), e, in, DefaultRatio)
	require.NoError(t, err)
	assert.Len(t, e.trained.Intents, 2)
	assert.ElementsMatch(t, []string{"shop", "talk", AllContexts}, keys(report))
	assert.Equal(t, 1.0, report[AllContexts].F1)
	assert.Equal(t, 2, report[AllContexts].Support)
}

func TestRun_SingleContextHasNoAggregate(t *testing.T) {
	in := model.Input{Language: "en", Intents: []model.IntentDefinition{intentWith("a", 5)}}
	report, err := Run(context.Background(), &scriptedEngine{answers: map[string]string{}}, in, DefaultRatio)
	require.NoError(t, err)
	assert.Equal(t, []string{model.DefaultContext}, keys(report))
	assert.Equal(t, 0.0, report[model.DefaultContext].F1)
}

func TestRun_Engine(t *testing.T) {
	e, err := engine.New(engine.Options{Toolkit: tools.NewLocal(tools.DefaultLocalConfig())})
	require.NoError(t, err)

	in := model.Input{Language: "en", Seed: 1, Intents: []model.IntentDefinition{
		{Name: "greet", Utterances: map[string][]string{"en": {
			"hello", "hello there", "hi there", "hey there", "good morning",
		}}},
		{Name: "bye", Utterances: map[string][]string{"en": {
			"goodbye", "bye now", "see you later", "see you soon", "farewell friend",
		}}},
	}}
	report, err := Run(context.Background(), e, in, DefaultRatio)
	require.NoError(t, err)
	s, ok := report[model.DefaultContext]
	require.True(t, ok)
	assert.Equal(t, 2, s.Support)
	assert.GreaterOrEqual(t, s.F1, 0.0)
	assert.LessOrEqual(t, s.F1, 1.0)

	// the engine is left serving the split model
	train, _ := SplitSet(in, DefaultRatio, in.Seed)
	splitHash, err := model.Hash(train)
	require.NoError(t, err)
	fullHash, err := model.Hash(in)
	require.NoError(t, err)
	loaded, ok := e.Loaded("en")
	require.True(t, ok)
	assert.Equal(t, splitHash, loaded.Hash)
	assert.NotEqual(t, fullHash, loaded.Hash)
}

func keys(r Report) []string {
	var out []string
	for k := range r {
		out = append(out, k)
	}
	return out
}
