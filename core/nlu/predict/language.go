package predict

import (
	"slices"

	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
)

const (
	// NoLanguage is reported when no loaded language passes the threshold.
	NoLanguage = "n/a"

	longTextThreshold  = 0.5
	shortTextThreshold = 0.3
	longTextLength     = 20
)

// DetectLanguage identifies the language of text among the loaded ones.
// detected is the best scoring loaded language when its confidence exceeds the
// length-dependent threshold, else NoLanguage. used is detected, or defaultLang
// when nothing was detected.
func DetectLanguage(id tools.LanguageIdentifier, text string, loaded []string, defaultLang string) (detected, used string) {
	threshold := shortTextThreshold
	if len(text) > longTextLength {
		threshold = longTextThreshold
	}

	best, found := tools.LanguageScore{}, false
	for _, s := range id.IdentifyLanguage(text) {
		if !slices.Contains(loaded, s.Language) {
			continue
		}
		if !found || s.Confidence > best.Confidence {
			best, found = s, true
		}
	}

	if !found || best.Confidence <= threshold {
		return NoLanguage, defaultLang
	}
	return best.Language, best.Language
}
