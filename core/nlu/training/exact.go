package training

import (
	"github.com/adalundhe/sylk-nlu/core/nlu/model"
)

// buildExactMatchIndex maps the normalized text of every training utterance
// to its intent. The first intent declaring a text keeps it.
func buildExactMatchIndex(intents []model.Intent) map[string]model.ExactMatch {
	index := map[string]model.ExactMatch{}
	for _, in := range intents {
		if in.Name == model.NoneIntent {
			continue
		}
		for _, u := range in.Utterances {
			key := u.ExactMatchKey()
			if key == "" {
				continue
			}
			if _, taken := index[key]; taken {
				continue
			}
			index[key] = model.ExactMatch{
				Intent:   in.Name,
				Contexts: append([]string(nil), in.Contexts...),
			}
		}
	}
	return index
}
