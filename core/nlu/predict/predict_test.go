package predict

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/sylk-nlu/core/nlu/model"
	"github.com/adalundhe/sylk-nlu/core/nlu/slots"
	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
	"github.com/adalundhe/sylk-nlu/core/nlu/training"
)

func TestGetZPercent(t *testing.T) {
	tests := []struct {
		z    float64
		want float64
	}{
		{0, 0.5},
		{1, 0.8413},
		{-1, 0.1587},
		{2, 0.9772},
		{-2.5, 0.0062},
		{6.4, 1.0},
		{7, 1},
		{-7, 0},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, GetZPercent(tt.z), 1e-3, "z=%v", tt.z)
	}
}

func ctxPreds(pairs ...any) []tools.Prediction {
	var out []tools.Prediction
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, tools.Prediction{Label: pairs[i].(string), Confidence: pairs[i+1].(float64)})
	}
	return out
}

func intentPreds(ctx string, pairs ...any) []IntentPrediction {
	var out []IntentPrediction
	for i := 0; i < len(pairs); i += 2 {
		out = append(out, IntentPrediction{
			Name:       pairs[i].(string),
			Confidence: pairs[i+1].(float64),
			Context:    ctx,
			Extractor:  ExtractorClassifier,
		})
	}
	return out
}

func names(preds []IntentPrediction) []string {
	out := make([]string, len(preds))
	for i, p := range preds {
		out[i] = p.Name
	}
	return out
}

func TestElect_SplitsTopTwo(t *testing.T) {
	ranked := Elect(
		ctxPreds("global", 1.0),
		map[string][]IntentPrediction{"global": intentPreds("global", "a", 0.9, "b", 0.1)},
		nil,
	)
	require.Len(t, ranked, 2)
	// z = (ln 0.9 - ln 0.1) / popstd(ln 0.9, ln 0.1) = 2
	assert.Equal(t, "a", ranked[0].Name)
	assert.Equal(t, 0.977, ranked[0].Confidence)
	assert.Equal(t, "b", ranked[1].Name)
	assert.Equal(t, 0.023, ranked[1].Confidence)
	assert.False(t, IsAmbiguous(ranked))
}

func TestElect_ReallyConfused(t *testing.T) {
	ranked := Elect(
		ctxPreds("global", 1.0),
		map[string][]IntentPrediction{"global": intentPreds("global", "a", 0.34, "b", 0.33, "c", 0.33)},
		nil,
	)
	assert.Equal(t, []string{model.NoneIntent, "a", "b", "c"}, names(ranked))
	assert.Equal(t, 1.0, ranked[0].Confidence)
	assert.Equal(t, ExtractorElection, ranked[0].Extractor)
	assert.InDelta(t, 0.34, ranked[1].Confidence, 1e-9)
}

func TestElect_ConfusedKeepsTopFour(t *testing.T) {
	ranked := Elect(
		ctxPreds("global", 1.0),
		map[string][]IntentPrediction{"global": intentPreds("global",
			"a", 0.17, "b", 0.17, "c", 0.166, "d", 0.165, "e", 0.165, "f", 0.164)},
		nil,
	)
	assert.Equal(t, []string{model.NoneIntent, "a", "b", "c", "d"}, names(ranked))
}

func TestElect_ExactAndMultipleContexts(t *testing.T) {
	exact := IntentPrediction{Name: "x", Confidence: 1, Context: "A", Extractor: ExtractorExactMatch}
	intents := map[string][]IntentPrediction{
		"A": append([]IntentPrediction{exact}, intentPreds("A", "y", 0.7)...),
		"B": intentPreds("B", "y", 0.6, "z", 0.4),
	}
	contexts := ctxPreds("A", 0.8, "B", 0.2)

	ranked := Elect(contexts, intents, nil)
	assert.Equal(t, []string{"x", "y", "z"}, names(ranked))
	assert.InDelta(t, 0.8, ranked[0].Confidence, 1e-9)
	assert.Equal(t, ExtractorExactMatch, ranked[0].Extractor)
	assert.Equal(t, 0.195, ranked[1].Confidence)
	assert.Equal(t, "B", ranked[1].Context)
	assert.Equal(t, 0.005, ranked[2].Confidence)

	t.Run("restricted to requested contexts", func(t *testing.T) {
		ranked := Elect(contexts, intents, []string{"B"})
		assert.Equal(t, []string{model.NoneIntent, "y", "z"}, names(ranked))
		assert.Equal(t, 1.0, ranked[0].Confidence)
		assert.Equal(t, "B", ranked[0].Context)
	})
}

func TestElect_NormalizesContextMass(t *testing.T) {
	ranked := Elect(
		ctxPreds("A", 1.0, "B", 1.0),
		map[string][]IntentPrediction{
			"A": intentPreds("A", "a", 0.9),
			"B": intentPreds("B", "a", 0.95),
		},
		nil,
	)
	require.Len(t, ranked, 1, "duplicates collapse to the best entry")
	assert.Equal(t, "a", ranked[0].Name)
	assert.InDelta(t, 0.5, ranked[0].Confidence, 1e-9)
}

func TestElect_Empty(t *testing.T) {
	ranked := Elect(nil, nil, nil)
	require.Len(t, ranked, 1)
	assert.Equal(t, IntentPrediction{Name: model.NoneIntent, Confidence: 1, Context: model.DefaultContext, Extractor: ExtractorElection}, ranked[0])
}

func TestIsAmbiguous(t *testing.T) {
	pair := func(a, b float64) []IntentPrediction {
		return []IntentPrediction{{Name: "a", Confidence: a}, {Name: "b", Confidence: b}}
	}
	assert.True(t, IsAmbiguous(pair(0.52, 0.48)))
	assert.False(t, IsAmbiguous(pair(0.9, 0.1)))
	assert.True(t, IsAmbiguous(pair(0.6, 0.4)), "the tolerance is inclusive")
	assert.False(t, IsAmbiguous(pair(0.61, 0.39)))
	assert.False(t, IsAmbiguous(pair(0.5, 0.5)[:1]))
	assert.True(t, IsAmbiguous([]IntentPrediction{{Confidence: 0.34}, {Confidence: 0.33}, {Confidence: 0.33}}))
}

type fixedIdentifier []tools.LanguageScore

func (f fixedIdentifier) IdentifyLanguage(string) []tools.LanguageScore { return f }

func TestDetectLanguage(t *testing.T) {
	long := "this sentence is clearly longer than twenty characters"
	tests := []struct {
		name     string
		text     string
		scores   fixedIdentifier
		loaded   []string
		detected string
		used     string
	}{
		{"long text passes", long, fixedIdentifier{{Language: "fr", Confidence: 0.6}}, []string{"en", "fr"}, "fr", "fr"},
		{"long text below threshold", long, fixedIdentifier{{Language: "fr", Confidence: 0.45}}, []string{"en", "fr"}, NoLanguage, "en"},
		{"short text lower threshold", "bonjour", fixedIdentifier{{Language: "fr", Confidence: 0.45}}, []string{"en", "fr"}, "fr", "fr"},
		{"short text below threshold", "bonjour", fixedIdentifier{{Language: "fr", Confidence: 0.2}}, []string{"en", "fr"}, NoLanguage, "en"},
		{"unloaded language ignored", long, fixedIdentifier{{Language: "de", Confidence: 0.9}}, []string{"en"}, NoLanguage, "en"},
		{"loaded language behind unloaded one", "bonjour", fixedIdentifier{{Language: "nl", Confidence: 0.6}, {Language: "fr", Confidence: 0.4}}, []string{"en", "fr"}, "fr", "fr"},
		{"long text at threshold", long, fixedIdentifier{{Language: "fr", Confidence: 0.5}}, []string{"en", "fr"}, NoLanguage, "en"},
		{"short text at threshold", "bonjour", fixedIdentifier{{Language: "fr", Confidence: 0.3}}, []string{"en", "fr"}, NoLanguage, "en"},
		{"nothing identified", long, nil, []string{"en"}, NoLanguage, "en"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			detected, used := DetectLanguage(tt.scores, tt.text, tt.loaded, "en")
			assert.Equal(t, tt.detected, detected)
			assert.Equal(t, tt.used, used)
		})
	}
}

var toolkit = tools.NewLocal(tools.DefaultLocalConfig())

func assistantInput() model.Input {
	return model.Input{
		Language: "en",
		Seed:     42,
		Intents: []model.IntentDefinition{
			{
				Name: "book_flight",
				Utterances: map[string][]string{"en": {
					"fly to [paris](destination)",
					"book a flight to [london](destination)",
					"I want to fly to [paris](destination)",
					"get me a plane ticket to [london](destination)",
				}},
				Slots: []slots.SlotDefinition{{Name: "destination", Entities: []string{"city"}}},
			},
			{
				Name: "check_weather",
				Utterances: map[string][]string{"en": {
					"what is the weather like",
					"will it rain tomorrow",
					"is it sunny outside",
					"weather forecast please",
				}},
			},
			{
				Name: "greet",
				Utterances: map[string][]string{"en": {
					"hello there",
					"hi",
					"good morning",
				}},
			},
		},
		Entities: []model.EntityDefinition{
			{
				Name:  "city",
				Type:  model.EntityList,
				Fuzzy: "medium",
				Values: []model.ListValue{
					{Canonical: "Paris"},
					{Canonical: "London"},
				},
			},
		},
	}
}

func trainPredictor(t *testing.T, in model.Input, tk tools.Toolkit) *Predictor {
	t.Helper()
	m, err := training.Train(context.Background(), in, training.Options{Toolkit: toolkit})
	require.NoError(t, err)
	require.True(t, m.Success, m.Error)
	p, err := NewPredictor(tk, m, nil)
	require.NoError(t, err)
	return p
}

func TestPredictor_ExactMatch(t *testing.T) {
	p := trainPredictor(t, assistantInput(), toolkit)

	res := p.Predict(context.Background(), "Hello there", nil)
	require.False(t, res.Errored, res.Error)
	assert.Equal(t, "greet", res.Intent.Name)
	assert.Equal(t, 1.0, res.Intent.Confidence)
	assert.Equal(t, ExtractorExactMatch, res.Intent.Extractor)
	assert.Equal(t, model.DefaultContext, res.Intent.Context)
	assert.False(t, res.Ambiguous)
	assert.Empty(t, res.Slots)
	assert.Equal(t, "en", res.Language)
	assert.Positive(t, res.Duration)
}

func TestPredictor_SlotsAndEntities(t *testing.T) {
	p := trainPredictor(t, assistantInput(), toolkit)

	res := p.Predict(context.Background(), "fly to paris", []string{model.DefaultContext})
	require.False(t, res.Errored, res.Error)
	assert.Equal(t, "book_flight", res.Intent.Name)

	require.Len(t, res.Entities, 1)
	assert.Equal(t, "city", res.Entities[0].Type)
	assert.Equal(t, "Paris", res.Entities[0].Value)

	require.Len(t, res.Slots, 1)
	assert.Equal(t, "destination", res.Slots[0].Name)
	assert.Equal(t, "paris", res.Slots[0].Source)
	assert.Equal(t, "Paris", res.Slots[0].Value)
	assert.Equal(t, "city", res.Slots[0].EntityType)
}

func TestPredictor_ClassifiesUnseenText(t *testing.T) {
	p := trainPredictor(t, assistantInput(), toolkit)

	res := p.Predict(context.Background(), "qwzx vlorp", nil)
	require.False(t, res.Errored, res.Error)
	require.NotEmpty(t, res.Intents)
	assert.Equal(t, res.Intents[0], res.Intent)
	for i := 1; i < len(res.Intents); i++ {
		assert.LessOrEqual(t, res.Intents[i].Confidence, res.Intents[i-1].Confidence)
	}
}

func TestPredictor_NoIntents(t *testing.T) {
	p := trainPredictor(t, model.Input{
		Language: "en",
		Entities: []model.EntityDefinition{{Name: "order", Type: model.EntityPattern, Pattern: `ord-[0-9]+`}},
	}, toolkit)

	res := p.Predict(context.Background(), "where is ord-42", nil)
	require.False(t, res.Errored)
	assert.Equal(t, model.NoneIntent, res.Intent.Name)
	assert.Equal(t, 1.0, res.Intent.Confidence)
	assert.Empty(t, res.Slots)
	assert.Empty(t, res.Entities)
}

type brokenTokenizer struct{ *tools.Local }

func (brokenTokenizer) Tokenize(context.Context, []string, string) ([][]string, error) {
	return nil, errors.New("tokenizer offline")
}

type panickingTokenizer struct{ *tools.Local }

func (panickingTokenizer) Tokenize(context.Context, []string, string) ([][]string, error) {
	panic("boom")
}

func TestPredictor_Degrades(t *testing.T) {
	tests := []struct {
		name string
		tk   tools.Toolkit
		msg  string
	}{
		{"error", brokenTokenizer{toolkit}, "tokenizer offline"},
		{"panic", panickingTokenizer{toolkit}, "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := trainPredictor(t, assistantInput(), tt.tk)
			res := p.Predict(context.Background(), "fly to paris", nil)
			require.NotNil(t, res)
			assert.True(t, res.Errored)
			assert.Contains(t, res.Error, tt.msg)
			assert.NotNil(t, res.Slots)
			assert.NotNil(t, res.Entities)
		})
	}
}

func TestNewPredictor_RejectsFailedModel(t *testing.T) {
	_, err := NewPredictor(toolkit, &model.Model{Hash: "x"}, nil)
	assert.Error(t, err)
}
