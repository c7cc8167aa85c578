package entities

import (
	"fmt"
	"regexp"

	"github.com/adalundhe/sylk-nlu/core/nlu/utterance"
)

// PatternEntity matches entity values with a regular expression.
type PatternEntity struct {
	Name          string `json:"name"`
	Pattern       string `json:"pattern"`
	CaseSensitive bool   `json:"case_sensitive"`

	re *regexp.Regexp
}

// CompilePattern compiles a pattern entity. Matching is case-insensitive
// unless caseSensitive is set.
func CompilePattern(name, pattern string, caseSensitive bool) (*PatternEntity, error) {
	p := &PatternEntity{Name: name, Pattern: pattern, CaseSensitive: caseSensitive}
	if err := p.compile(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PatternEntity) compile() error {
	expr := p.Pattern
	if !p.CaseSensitive {
		expr = "(?i)" + expr
	}
	re, err := regexp.Compile(expr)
	if err != nil {
		return fmt.Errorf("compile pattern entity %q: %w", p.Name, err)
	}
	p.re = re
	return nil
}

// ExtractPattern returns every non-empty match of p in u with confidence 1.
func ExtractPattern(u *utterance.Utterance, p *PatternEntity) ([]Extraction, error) {
	if p.re == nil {
		return nil, fmt.Errorf("pattern entity %q is not compiled", p.Name)
	}

	text := u.Text()
	var out []Extraction
	for _, loc := range p.re.FindAllStringIndex(text, -1) {
		if loc[0] == loc[1] {
			continue
		}
		match := text[loc[0]:loc[1]]
		out = append(out, Extraction{
			Entity: utterance.Entity{
				Type:       p.Name,
				Kind:       utterance.KindPattern,
				Value:      match,
				Source:     match,
				Confidence: 1,
			},
			Start: loc[0],
			End:   loc[1],
		})
	}
	return out, nil
}
