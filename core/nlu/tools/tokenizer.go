package tools

import (
	"context"
	"unicode"
	"unicode/utf8"

	"github.com/blevesearch/bleve/v2/analysis"
	bleveunicode "github.com/blevesearch/bleve/v2/analysis/tokenizer/unicode"
	"github.com/blevesearch/bleve/v2/registry"
)

// UtteranceTokenizerName is the registry name for the utterance tokenizer.
const UtteranceTokenizerName = "utterance_tokenizer"

// UtteranceTokenizer implements Bleve's analysis.Tokenizer interface for NLU
// utterances. Words come from Bleve's unicode segmenter; the gaps between
// them are re-emitted as whitespace runs and single punctuation runes so the
// token stream covers the input byte for byte.
type UtteranceTokenizer struct {
	words analysis.Tokenizer
}

// NewUtteranceTokenizer creates a new UtteranceTokenizer instance.
func NewUtteranceTokenizer() *UtteranceTokenizer {
	return &UtteranceTokenizer{words: bleveunicode.NewUnicodeTokenizer()}
}

// NewUtteranceTokenizerConstructor is the Bleve registry constructor function.
func NewUtteranceTokenizerConstructor(config map[string]interface{}, cache *registry.Cache) (analysis.Tokenizer, error) {
	return NewUtteranceTokenizer(), nil
}

func init() {
	registry.RegisterTokenizer(UtteranceTokenizerName, NewUtteranceTokenizerConstructor)
}

// Tokenize splits input into word, whitespace and punctuation tokens.
func (t *UtteranceTokenizer) Tokenize(input []byte) analysis.TokenStream {
	words := t.words.Tokenize(input)
	out := make(analysis.TokenStream, 0, len(words)*2+1)

	pos := 0
	for _, w := range words {
		if w.Start < pos {
			continue
		}
		out = appendGap(out, input, pos, w.Start)
		out = append(out, &analysis.Token{
			Term:     input[w.Start:w.End],
			Start:    w.Start,
			End:      w.End,
			Position: len(out) + 1,
			Type:     w.Type,
		})
		pos = w.End
	}
	out = appendGap(out, input, pos, len(input))
	return out
}

// appendGap emits the bytes in [start,end) that the word segmenter skipped.
func appendGap(out analysis.TokenStream, input []byte, start, end int) analysis.TokenStream {
	i := start
	for i < end {
		r, size := utf8.DecodeRune(input[i:end])
		j := i + size
		if unicode.IsSpace(r) {
			for j < end {
				next, n := utf8.DecodeRune(input[j:end])
				if !unicode.IsSpace(next) {
					break
				}
				j += n
			}
		}
		out = append(out, &analysis.Token{
			Term:     input[i:j],
			Start:    i,
			End:      j,
			Position: len(out) + 1,
			Type:     analysis.AlphaNumeric,
		})
		i = j
	}
	return out
}

// Tokenize implements Tokenizer for Local.
func (l *Local) Tokenize(ctx context.Context, texts []string, lang string) ([][]string, error) {
	out := make([][]string, len(texts))
	for i, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stream := l.tokenizer.Tokenize([]byte(text))
		toks := make([]string, len(stream))
		for j, tok := range stream {
			toks[j] = string(tok.Term)
		}
		out[i] = toks
	}
	return out, nil
}

// IsSpaceToken reports whether a token consists only of whitespace.
func IsSpaceToken(tok string) bool {
	if tok == "" {
		return false
	}
	for _, r := range tok {
		if !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}

// IsWordToken reports whether a token contains a letter or a digit.
func IsWordToken(tok string) bool {
	for _, r := range tok {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
