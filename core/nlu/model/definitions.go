package model

import (
	"fmt"

	"github.com/adalundhe/sylk-nlu/core/nlu/entities"
	"github.com/adalundhe/sylk-nlu/core/nlu/slots"
)

// Entity definition types.
const (
	EntityList    = "list"
	EntityPattern = "pattern"
)

// IntentDefinition is a user-authored intent. Utterances are keyed by
// language and may carry slot markup such as "fly to [Paris](destination)".
type IntentDefinition struct {
	Name       string                 `json:"name" yaml:"name"`
	Contexts   []string               `json:"contexts" yaml:"contexts"`
	Utterances map[string][]string    `json:"utterances" yaml:"utterances"`
	Slots      []slots.SlotDefinition `json:"slots,omitempty" yaml:"slots,omitempty"`
}

// ListValue is one canonical value of a list entity and its synonyms.
type ListValue struct {
	Canonical string   `json:"canonical" yaml:"canonical"`
	Synonyms  []string `json:"synonyms,omitempty" yaml:"synonyms,omitempty"`
}

// EntityDefinition is a user-authored list or pattern entity.
type EntityDefinition struct {
	Name          string      `json:"name" yaml:"name"`
	Type          string      `json:"type" yaml:"type"`
	Fuzzy         string      `json:"fuzzy,omitempty" yaml:"fuzzy,omitempty"`
	CaseSensitive bool        `json:"case_sensitive,omitempty" yaml:"case_sensitive,omitempty"`
	Values        []ListValue `json:"values,omitempty" yaml:"values,omitempty"`
	Pattern       string      `json:"pattern,omitempty" yaml:"pattern,omitempty"`
}

// Input is the verbatim training input of a model.
type Input struct {
	Language string             `json:"language" yaml:"language"`
	Intents  []IntentDefinition `json:"intents" yaml:"intents"`
	Entities []EntityDefinition `json:"entities" yaml:"entities"`
	Seed     int64              `json:"seed" yaml:"seed"`
}

// Validate checks definitions for problems training cannot recover from.
func (in Input) Validate() error {
	if in.Language == "" {
		return fmt.Errorf("input: language is required")
	}
	seen := map[string]bool{}
	for _, intent := range in.Intents {
		if intent.Name == "" {
			return fmt.Errorf("input: intent without a name")
		}
		if intent.Name == NoneIntent {
			return fmt.Errorf("input: intent name %q is reserved", NoneIntent)
		}
		if seen[intent.Name] {
			return fmt.Errorf("input: duplicate intent %q", intent.Name)
		}
		seen[intent.Name] = true
	}
	for _, e := range in.Entities {
		switch e.Type {
		case EntityList, EntityPattern:
		default:
			return fmt.Errorf("input: entity %q has unknown type %q", e.Name, e.Type)
		}
	}
	return nil
}

// Contexts returns the distinct contexts of all intents in declaration order.
// Intents without contexts belong to DefaultContext.
func (in Input) Contexts() []string {
	seen := map[string]bool{}
	var out []string
	for _, intent := range in.Intents {
		ctxs := intent.Contexts
		if len(ctxs) == 0 {
			ctxs = []string{DefaultContext}
		}
		for _, c := range ctxs {
			if !seen[c] {
				seen[c] = true
				out = append(out, c)
			}
		}
	}
	return out
}

// Patterns compiles the pattern entity definitions.
func (in Input) Patterns() ([]*entities.PatternEntity, error) {
	var out []*entities.PatternEntity
	for _, e := range in.Entities {
		if e.Type != EntityPattern {
			continue
		}
		p, err := entities.CompilePattern(e.Name, e.Pattern, e.CaseSensitive)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}
