package tools

import (
	"sort"

	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/lang/de"
	"github.com/blevesearch/bleve/v2/analysis/lang/en"
	"github.com/blevesearch/bleve/v2/analysis/lang/es"
	"github.com/blevesearch/bleve/v2/analysis/lang/fr"
	"github.com/blevesearch/bleve/v2/analysis/lang/it"
	"github.com/blevesearch/bleve/v2/analysis/lang/nl"
	"github.com/blevesearch/bleve/v2/analysis/lang/pt"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/registry"
)

// stopWordMaps names the Bleve stop word maps used as language profiles.
var stopWordMaps = map[string]string{
	"de": de.StopName,
	"en": en.StopName,
	"es": es.StopName,
	"fr": fr.StopName,
	"it": it.StopName,
	"nl": nl.StopName,
	"pt": pt.StopName,
}

// StopwordIdentifier scores languages by the share of a text's words found in
// each language's stop word list.
type StopwordIdentifier struct {
	tokenizer analysis.Tokenizer
	lower     *lowercase.LowerCaseFilter
	profiles  map[string]analysis.TokenMap
}

// NewStopwordIdentifier loads stop word profiles for the given languages.
// Languages without a profile are ignored.
func NewStopwordIdentifier(languages []string) *StopwordIdentifier {
	cache := registry.NewCache()
	if len(languages) == 0 {
		for lang := range stopWordMaps {
			languages = append(languages, lang)
		}
	}

	profiles := make(map[string]analysis.TokenMap, len(languages))
	for _, lang := range languages {
		name, ok := stopWordMaps[lang]
		if !ok {
			continue
		}
		tm, err := cache.TokenMapNamed(name)
		if err != nil {
			continue
		}
		profiles[lang] = tm
	}

	return &StopwordIdentifier{
		tokenizer: NewUtteranceTokenizer(),
		lower:     lowercase.NewLowerCaseFilter(),
		profiles:  profiles,
	}
}

// Languages returns the languages with a loaded profile.
func (s *StopwordIdentifier) Languages() []string {
	out := make([]string, 0, len(s.profiles))
	for lang := range s.profiles {
		out = append(out, lang)
	}
	sort.Strings(out)
	return out
}

// IdentifyLanguage returns every language with at least one hit, best first.
func (s *StopwordIdentifier) IdentifyLanguage(text string) []LanguageScore {
	stream := s.lower.Filter(s.tokenizer.Tokenize([]byte(text)))

	words := make([]string, 0, len(stream))
	for _, tok := range stream {
		term := string(tok.Term)
		if IsWordToken(term) {
			words = append(words, term)
		}
	}
	if len(words) == 0 {
		return nil
	}

	var scores []LanguageScore
	for lang, profile := range s.profiles {
		hits := 0
		for _, w := range words {
			if profile[w] {
				hits++
			}
		}
		if hits > 0 {
			scores = append(scores, LanguageScore{
				Language:   lang,
				Confidence: float64(hits) / float64(len(words)),
			})
		}
	}

	sort.Slice(scores, func(i, j int) bool {
		if scores[i].Confidence != scores[j].Confidence {
			return scores[i].Confidence > scores[j].Confidence
		}
		return scores[i].Language < scores[j].Language
	})
	return scores
}

// IdentifyLanguage implements LanguageIdentifier for Local.
func (l *Local) IdentifyLanguage(text string) []LanguageScore {
	return l.languages.IdentifyLanguage(text)
}
