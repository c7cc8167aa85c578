package cmd

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/adalundhe/sylk-nlu/core/nlu/model"
)

// definitions is the YAML file the train, predict and crossval commands read.
//
//	languages: [en]
//	seed: 42
//	intents:
//	  - name: book_flight
//	    contexts: [travel]
//	    utterances:
//	      en: ["fly to [paris](destination)"]
//	    slots:
//	      - name: destination
//	        entities: [city]
//	entities:
//	  - name: city
//	    type: list
//	    values:
//	      - canonical: Paris
type definitions struct {
	Languages []string                 `yaml:"languages"`
	Seed      int64                    `yaml:"seed"`
	Intents   []model.IntentDefinition `yaml:"intents"`
	Entities  []model.EntityDefinition `yaml:"entities"`
}

func loadDefinitions(path string) (*definitions, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read definitions: %w", err)
	}
	var defs definitions
	if err := yaml.Unmarshal(data, &defs); err != nil {
		return nil, fmt.Errorf("parse definitions %s: %w", path, err)
	}
	return &defs, nil
}

// inputs returns one training input per language. only restricts the
// languages when set; languages falls back to the utterance languages, then to
// fallbackLang. A zero seed takes fallbackSeed.
func (d *definitions) inputs(only []string, fallbackLang string, fallbackSeed int64) ([]model.Input, error) {
	langs := d.Languages
	if len(langs) == 0 {
		langs = d.utteranceLanguages()
	}
	if len(langs) == 0 {
		langs = []string{fallbackLang}
	}
	if len(only) > 0 {
		langs = intersect(langs, only)
		if len(langs) == 0 {
			return nil, fmt.Errorf("definitions have no language among %v", only)
		}
	}

	seed := d.Seed
	if seed == 0 {
		seed = fallbackSeed
	}

	inputs := make([]model.Input, 0, len(langs))
	for _, lang := range langs {
		in := model.Input{
			Language: lang,
			Intents:  d.Intents,
			Entities: d.Entities,
			Seed:     seed,
		}
		if err := in.Validate(); err != nil {
			return nil, err
		}
		inputs = append(inputs, in)
	}
	return inputs, nil
}

func (d *definitions) utteranceLanguages() []string {
	seen := map[string]bool{}
	var langs []string
	for _, intent := range d.Intents {
		for lang := range intent.Utterances {
			if !seen[lang] {
				seen[lang] = true
				langs = append(langs, lang)
			}
		}
	}
	sort.Strings(langs)
	return langs
}

func intersect(a, b []string) []string {
	want := map[string]bool{}
	for _, s := range b {
		want[s] = true
	}
	var out []string
	for _, s := range a {
		if want[s] {
			out = append(out, s)
		}
	}
	return out
}
