package utterance

import (
	"regexp"
	"strings"
)

var slotMarkup = regexp.MustCompile(`\[([^\[\]]+)\]\(([^()\s]+)\)`)

// MarkedSlot is a slot annotation found in training markup.
type MarkedSlot struct {
	Name   string
	Source string
	Start  int
	End    int
}

// ParseMarkup strips "[text](slot)" annotations from a training utterance and
// returns the plain text with the byte range of every annotated slot.
func ParseMarkup(text string) (string, []MarkedSlot) {
	matches := slotMarkup.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text, nil
	}

	var b strings.Builder
	slots := make([]MarkedSlot, 0, len(matches))
	prev := 0
	for _, m := range matches {
		b.WriteString(text[prev:m[0]])
		source := text[m[2]:m[3]]
		start := b.Len()
		b.WriteString(source)
		slots = append(slots, MarkedSlot{
			Name:   text[m[4]:m[5]],
			Source: source,
			Start:  start,
			End:    b.Len(),
		})
		prev = m[1]
	}
	b.WriteString(text[prev:])
	return b.String(), slots
}
