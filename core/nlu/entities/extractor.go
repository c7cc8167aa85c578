// Package entities extracts list, pattern and system entities from
// utterances.
package entities

import (
	"context"
	"fmt"
	"sort"

	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
	"github.com/adalundhe/sylk-nlu/core/nlu/utterance"
)

// Extractor runs every configured entity extractor over an utterance.
// It holds no mutable state once built.
type Extractor struct {
	Lists    []*ListEntity
	Patterns []*PatternEntity
	System   tools.SystemEntityExtractor
}

// Extract returns the merged list, pattern and system extractions, ordered by
// start offset then type.
func (x *Extractor) Extract(ctx context.Context, u *utterance.Utterance, lang string) ([]Extraction, error) {
	out := ExtractLists(u, x.Lists)

	for _, p := range x.Patterns {
		found, err := ExtractPattern(u, p)
		if err != nil {
			return nil, err
		}
		out = append(out, found...)
	}

	if x.System != nil {
		sys, err := x.System.ExtractSystemEntities(ctx, u.Text(), lang)
		if err != nil {
			return nil, fmt.Errorf("system entities: %w", err)
		}
		for _, e := range sys {
			out = append(out, Extraction{
				Entity: utterance.Entity{
					Type:       e.Type,
					Kind:       utterance.KindSystem,
					Value:      e.Value,
					Unit:       e.Unit,
					Source:     e.Source,
					Confidence: e.Confidence,
				},
				Start: e.Start,
				End:   e.End,
			})
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		return out[i].Type < out[j].Type
	})
	return out, nil
}

// Apply extracts entities and tags each one on u.
func (x *Extractor) Apply(ctx context.Context, u *utterance.Utterance, lang string) ([]Extraction, error) {
	found, err := x.Extract(ctx, u, lang)
	if err != nil {
		return nil, err
	}
	for _, e := range found {
		if err := u.TagEntity(e.Entity, e.Start, e.End); err != nil {
			return nil, err
		}
	}
	return found, nil
}
