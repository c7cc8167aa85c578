package tools

import (
	"context"
	"strings"
	"unicode"
)

// Part-of-speech tags emitted by the rule-based tagger.
const (
	POSSpace = "SPACE"
	POSPunct = "PUNCT"
	POSNum   = "NUM"
	POSAdv   = "ADV"
	POSVerb  = "VERB"
	POSAdj   = "ADJ"
	POSNoun  = "NOUN"
)

var suffixTags = []struct {
	suffix string
	tag    string
}{
	{"ly", POSAdv},
	{"ing", POSVerb},
	{"ed", POSVerb},
	{"ize", POSVerb},
	{"ise", POSVerb},
	{"ful", POSAdj},
	{"ous", POSAdj},
	{"ive", POSAdj},
	{"able", POSAdj},
	{"ible", POSAdj},
}

// tagToken assigns a coarse tag from the token's shape and suffix.
func tagToken(tok string) string {
	switch {
	case IsSpaceToken(tok):
		return POSSpace
	case !IsWordToken(tok):
		return POSPunct
	}

	digits := true
	for _, r := range tok {
		if !unicode.IsDigit(r) && r != '.' && r != ',' {
			digits = false
			break
		}
	}
	if digits {
		return POSNum
	}

	lower := strings.ToLower(tok)
	for _, st := range suffixTags {
		if len(lower) > len(st.suffix)+2 && strings.HasSuffix(lower, st.suffix) {
			return st.tag
		}
	}
	return POSNoun
}

// TagPOS implements POSTagger for Local.
func (l *Local) TagPOS(ctx context.Context, tokens [][]string, lang string) ([][]string, error) {
	out := make([][]string, len(tokens))
	for i, toks := range tokens {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		tags := make([]string, len(toks))
		for j, tok := range toks {
			tags[j] = tagToken(tok)
		}
		out[i] = tags
	}
	return out, nil
}
