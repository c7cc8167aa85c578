package tools

import (
	"context"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type systemRule struct {
	kind    string
	re      *regexp.Regexp
	resolve func(match string) (value, unit string)
}

func identity(match string) (string, string) { return match, "" }

func numeric(match string) (string, string) {
	clean := strings.ReplaceAll(match, ",", "")
	if f, err := strconv.ParseFloat(clean, 64); err == nil {
		return strconv.FormatFloat(f, 'f', -1, 64), ""
	}
	return match, ""
}

func percent(match string) (string, string) {
	v, _ := numeric(strings.TrimSpace(strings.TrimSuffix(match, "%")))
	return v, "%"
}

// Rules are ordered by priority: an earlier rule's match shadows overlapping
// matches of later rules.
var systemRules = []systemRule{
	{kind: "email", re: regexp.MustCompile(`(?i)\b[a-z0-9._%+\-]+@[a-z0-9.\-]+\.[a-z]{2,}\b`), resolve: identity},
	{kind: "url", re: regexp.MustCompile(`(?i)\bhttps?://[^\s]+|\bwww\.[^\s]+`), resolve: identity},
	{kind: "percent", re: regexp.MustCompile(`-?\b\d+(?:[.,]\d+)?\s?%`), resolve: percent},
	{kind: "number", re: regexp.MustCompile(`-?\b\d{1,3}(?:,\d{3})+(?:\.\d+)?\b|-?\b\d+(?:\.\d+)?\b`), resolve: numeric},
}

// RegexSystemExtractor resolves numbers, percentages, emails and urls.
type RegexSystemExtractor struct{}

// ExtractSystemEntities returns non-overlapping system entities ordered by
// position. Types are prefixed with "system.".
func (RegexSystemExtractor) ExtractSystemEntities(ctx context.Context, text, lang string) ([]SystemEntity, error) {
	var out []SystemEntity
	taken := make([]bool, len(text))

	for _, rule := range systemRules {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for _, loc := range rule.re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if overlaps(taken, start, end) {
				continue
			}
			for i := start; i < end; i++ {
				taken[i] = true
			}
			match := text[start:end]
			value, unit := rule.resolve(match)
			out = append(out, SystemEntity{
				Type:       "system." + rule.kind,
				Value:      value,
				Unit:       unit,
				Source:     match,
				Start:      start,
				End:        end,
				Confidence: 1,
			})
		}
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Start < out[j].Start })
	return out, nil
}

func overlaps(taken []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if taken[i] {
			return true
		}
	}
	return false
}

// ExtractSystemEntities implements SystemEntityExtractor for Local.
func (l *Local) ExtractSystemEntities(ctx context.Context, text, lang string) ([]SystemEntity, error) {
	return l.system.ExtractSystemEntities(ctx, text, lang)
}
