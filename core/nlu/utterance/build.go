package utterance

import (
	"context"
	"fmt"

	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
)

// Builder is the subset of the toolkit needed to build utterances.
type Builder interface {
	tools.Tokenizer
	tools.Vectorizer
	tools.POSTagger
}

// Build tokenizes, vectorizes and POS-tags texts into utterances.
func Build(ctx context.Context, b Builder, texts []string, lang string) ([]*Utterance, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	tokens, err := b.Tokenize(ctx, texts, lang)
	if err != nil {
		return nil, fmt.Errorf("tokenize: %w", err)
	}
	if len(tokens) != len(texts) {
		return nil, fmt.Errorf("tokenize: got %d results for %d texts", len(tokens), len(texts))
	}

	tags, err := b.TagPOS(ctx, tokens, lang)
	if err != nil {
		return nil, fmt.Errorf("pos tag: %w", err)
	}
	if len(tags) != len(tokens) {
		return nil, fmt.Errorf("pos tag: got %d results for %d texts", len(tags), len(tokens))
	}

	out := make([]*Utterance, len(texts))
	for i, toks := range tokens {
		vectors, err := b.Vectorize(ctx, toks, lang)
		if err != nil {
			return nil, fmt.Errorf("vectorize: %w", err)
		}
		u, err := New(toks, vectors, tags[i])
		if err != nil {
			return nil, err
		}
		out[i] = u
	}
	return out, nil
}
