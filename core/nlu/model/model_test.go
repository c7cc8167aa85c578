package model

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	nluerrors "github.com/adalundhe/sylk-nlu/core/errors"
	"github.com/adalundhe/sylk-nlu/core/nlu/entities"
	"github.com/adalundhe/sylk-nlu/core/nlu/slots"
)

func sampleInput() Input {
	return Input{
		Language: "en",
		Intents: []IntentDefinition{
			{
				Name:     "book_flight",
				Contexts: []string{"travel"},
				Utterances: map[string][]string{
					"en": {"fly to [Paris](destination)", "book a flight"},
				},
				Slots: []slots.SlotDefinition{{Name: "destination", Entities: []string{"city"}}},
			},
			{Name: "greet", Utterances: map[string][]string{"en": {"hello", "hi there"}}},
		},
		Entities: []EntityDefinition{
			{Name: "city", Type: EntityList, Fuzzy: "medium", Values: []ListValue{{Canonical: "Paris", Synonyms: []string{"paname"}}}},
			{Name: "order", Type: EntityPattern, Pattern: `ord-[0-9]+`},
		},
		Seed: 7,
	}
}

func TestHash(t *testing.T) {
	in := sampleInput()
	h1, err := Hash(in)
	require.NoError(t, err)
	assert.Len(t, h1, 64)

	other := sampleInput()
	other.Language = "fr"
	other.Seed = 99
	h2, err := Hash(other)
	require.NoError(t, err)
	assert.Equal(t, h1, h2, "language and seed do not contribute")

	other.Intents[1].Utterances["en"] = append(other.Intents[1].Utterances["en"], "hey")
	h3, err := Hash(other)
	require.NoError(t, err)
	assert.NotEqual(t, h1, h3)
}

func TestInput_Validate(t *testing.T) {
	require.NoError(t, sampleInput().Validate())

	tests := []struct {
		name   string
		mutate func(*Input)
	}{
		{"missing language", func(in *Input) { in.Language = "" }},
		{"reserved name", func(in *Input) { in.Intents[0].Name = NoneIntent }},
		{"duplicate", func(in *Input) { in.Intents[1].Name = in.Intents[0].Name }},
		{"unnamed", func(in *Input) { in.Intents[0].Name = "" }},
		{"bad entity type", func(in *Input) { in.Entities[0].Type = "regex" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := sampleInput()
			tt.mutate(&in)
			assert.Error(t, in.Validate())
		})
	}
}

func TestInput_ContextsAndPatterns(t *testing.T) {
	in := sampleInput()
	assert.Equal(t, []string{"travel", DefaultContext}, in.Contexts())

	patterns, err := in.Patterns()
	require.NoError(t, err)
	require.Len(t, patterns, 1)
	assert.Equal(t, "order", patterns[0].Name)

	in.Entities[1].Pattern = "("
	_, err = in.Patterns()
	assert.Error(t, err)
}

func trainedModel(t *testing.T) *Model {
	t.Helper()
	m, err := New(sampleInput())
	require.NoError(t, err)
	m.FinishedAt = m.StartedAt.Add(time.Second)
	m.Success = true
	m.Output = &Output{Intents: []Intent{{Contexts: []string{"travel"}}}}
	m.Artifacts = &Artifacts{
		ListEntities: []*entities.ListEntity{{
			Name:           "city",
			FuzzyTolerance: entities.FuzzyMedium,
			Mappings:       map[string][][]string{"Paris": {{"Paris"}, {"paname"}}},
		}},
		TFIDF:        map[string]float64{"fly": 1.25, "hello": 0.5},
		VocabVectors: map[string][]float32{"fly": {0.1, -0.2}, "hello": {0.3, 0.4}},
		Centroids:    [][]float32{{0.1, 0.2}, {0.3, 0.4}},
		Contexts:     []string{"travel", DefaultContext},
		ContextModel: []byte(`{"labels":["global","travel"]}`),
		IntentModels: map[string][]byte{"travel": []byte("intent-bytes"), DefaultContext: {0, 1, 2, 255}},
		SlotModel:    []byte{0x00, 0x7f, 0x80, 0xff, 0x10},
		ExactMatch:   map[string]ExactMatch{"hello": {Intent: "greet", Contexts: []string{DefaultContext}}},
		IntentSlots:  map[string][]slots.SlotDefinition{"book_flight": {{Name: "destination", Entities: []string{"city"}}}},
		IntentVocab:  map[string]map[string]bool{"greet": {"hello": true}},
	}
	return m
}

func TestStore_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(StoreConfig{Dir: dir})
	require.NoError(t, err)
	defer store.Close()

	m := trainedModel(t)
	require.NoError(t, store.Save(m))
	assert.True(t, store.Exists(m.Hash, "en"))
	assert.FileExists(t, filepath.Join(dir, m.Hash+".en.model"))

	fresh, err := NewStore(StoreConfig{Dir: dir})
	require.NoError(t, err)
	defer fresh.Close()

	loaded, err := fresh.Load(m.Hash, "en")
	require.NoError(t, err)

	assert.Nil(t, loaded.Output, "training output is not persisted")
	assert.Equal(t, m.Artifacts.SlotModel, loaded.Artifacts.SlotModel)
	assert.Equal(t, m.Artifacts, loaded.Artifacts)
	assert.Equal(t, m.Input, loaded.Input)
	assert.Equal(t, m.ID, loaded.ID)
	assert.True(t, m.StartedAt.Equal(loaded.StartedAt))
	assert.True(t, loaded.Success)
}

func TestStore_SaveRejectsFailedModel(t *testing.T) {
	store, err := NewStore(StoreConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()

	m := trainedModel(t)
	m.Success = false
	err = store.Save(m)
	require.Error(t, err)
	assert.Equal(t, nluerrors.KindStorage, nluerrors.GetKind(err))
	assert.False(t, store.Exists(m.Hash, "en"))
}

func TestStore_LoadMissing(t *testing.T) {
	store, err := NewStore(StoreConfig{Dir: t.TempDir()})
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Load("deadbeef", "en")
	require.Error(t, err)
	assert.ErrorIs(t, err, nluerrors.ErrModelNotFound)
	assert.NotErrorIs(t, err, nluerrors.ErrNoModel)
}

func TestStore_LoadCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(StoreConfig{Dir: dir})
	require.NoError(t, err)
	defer store.Close()

	require.NoError(t, os.WriteFile(filepath.Join(dir, FileName("bad", "en")), []byte("{not json"), 0o644))
	_, err = store.Load("bad", "en")
	require.Error(t, err)
	assert.Equal(t, nluerrors.KindStorage, nluerrors.GetKind(err))
}

func TestStore_ListAndPrune(t *testing.T) {
	dir := t.TempDir()
	store, err := NewStore(StoreConfig{Dir: dir})
	require.NoError(t, err)
	defer store.Close()

	for _, name := range []string{
		FileName("aaa", "en"),
		FileName("bbb", "en"),
		FileName("ccc", "fr"),
		"notes.txt",
	} {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("{}"), 0o644))
	}

	all, err := store.List("")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	en, err := store.List("en")
	require.NoError(t, err)
	require.Len(t, en, 2)
	for _, e := range en {
		assert.Equal(t, "en", e.Language)
	}

	removed, err := store.Prune("en", "bbb")
	require.NoError(t, err)
	require.Len(t, removed, 1)
	assert.Equal(t, "aaa", removed[0].Hash)

	assert.False(t, store.Exists("aaa", "en"))
	assert.True(t, store.Exists("bbb", "en"))
	assert.True(t, store.Exists("ccc", "fr"))
	assert.FileExists(t, filepath.Join(dir, "notes.txt"))
}

func TestParseFileName(t *testing.T) {
	hash, lang, ok := parseFileName("abc.en.model")
	require.True(t, ok)
	assert.Equal(t, "abc", hash)
	assert.Equal(t, "en", lang)

	_, _, ok = parseFileName("en.model")
	assert.False(t, ok)
}
