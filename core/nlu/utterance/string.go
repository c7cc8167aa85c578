package utterance

import "strings"

// SlotPolicy controls how slot-tagged tokens render in String.
type SlotPolicy int

const (
	// KeepSlotText renders the original tokens.
	KeepSlotText SlotPolicy = iota
	// SlotName replaces the tagged range with the slot name.
	SlotName
	// DropSlot removes the tagged range.
	DropSlot
)

// EntityPolicy controls how entity-tagged tokens render in String.
type EntityPolicy int

const (
	// KeepEntityText renders the original tokens.
	KeepEntityText EntityPolicy = iota
	// EntityValue replaces the tagged range with the canonical value.
	EntityValue
	// EntityType replaces the tagged range with the entity type.
	EntityType
	// DropEntity removes the tagged range.
	DropEntity
)

// StringOptions configures String. Slot substitution takes precedence over
// entity substitution when both cover a token.
type StringOptions struct {
	LowerCase bool
	// OnlyWords drops non-word tokens and joins the rest with single spaces.
	OnlyWords bool
	Slots     SlotPolicy
	Entities  EntityPolicy
}

// String renders the utterance according to opts.
func (u *Utterance) String(opts StringOptions) string {
	var parts []string
	for i, t := range u.tokens {
		if opts.Slots != KeepSlotText {
			if slots := u.SlotsAt(i); len(slots) > 0 {
				s := slots[0]
				if opts.Slots == SlotName && s.StartToken == i {
					parts = append(parts, s.Name)
				}
				continue
			}
		}
		if opts.Entities != KeepEntityText {
			if ents := u.EntitiesAt(i); len(ents) > 0 {
				e := ents[0]
				if e.StartToken == i {
					switch opts.Entities {
					case EntityValue:
						parts = append(parts, e.Value)
					case EntityType:
						parts = append(parts, e.Type)
					}
				}
				continue
			}
		}
		if opts.OnlyWords && !t.IsWord {
			continue
		}
		parts = append(parts, t.Value)
	}

	sep := ""
	if opts.OnlyWords {
		sep = " "
	}
	out := strings.Join(parts, sep)
	if opts.LowerCase {
		out = strings.ToLower(out)
	}
	return out
}

// ExactMatchKey is the normalized text used by the exact-match index.
func (u *Utterance) ExactMatchKey() string {
	return u.String(StringOptions{LowerCase: true, OnlyWords: true})
}
