package predict

import (
	"math"
	"sort"

	"gonum.org/v1/gonum/stat"

	"github.com/adalundhe/sylk-nlu/core/nlu/model"
	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
)

// Election thresholds. They are empirically tuned and pinned by tests.
const (
	// confusedTop3StdDev is the spread of the top three intent confidences at
	// or below which a context is considered confused.
	confusedTop3StdDev = 0.03
	// confusedGapZ is the top-two gap, in standard deviations of all
	// confidences, below which a context is considered confused.
	confusedGapZ = 2.5
	// confusedCandidates is the number of candidates kept when confused.
	confusedCandidates = 4
	// minElectedConfidence is the best confidence below which none is forced.
	minElectedConfidence = 0.3
	// ambiguityTolerance is the distance from an even split within which
	// predictions are ambiguous.
	ambiguityTolerance = 0.1

	zPercentBound = 6.5
	zPercentCoeff = 0.3989422804
)

// Intent extractors.
const (
	ExtractorClassifier = "classifier"
	ExtractorExactMatch = "exact-matcher"
	ExtractorElection   = "election"
)

// IntentPrediction is one ranked intent.
type IntentPrediction struct {
	Name       string  `json:"name"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context"`
	Extractor  string  `json:"extractor"`
}

// GetZPercent returns the standard normal cumulative probability of z using
// its Taylor series.
func GetZPercent(z float64) float64 {
	if z < -zPercentBound {
		return 0
	}
	if z > zPercentBound {
		return 1
	}

	factK := 1.0
	sum := 0.0
	term := 1.0
	stop := math.Exp(-23)
	for k := 0; math.Abs(term) > stop; k++ {
		kf := float64(k)
		term = zPercentCoeff * math.Pow(-1, kf) * math.Pow(z, kf) / (2*kf + 1) /
			math.Pow(2, kf) * math.Pow(z, kf+1) / factK
		sum += term
		factK *= kf + 1
	}
	return sum + 0.5
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}

// reallyConfused reports whether the top candidates of sorted confidences are
// too close to tell apart.
func reallyConfused(confs []float64) bool {
	top := confs
	if len(top) > 3 {
		top = top[:3]
	}
	_, topStd := stat.PopMeanStdDev(top, nil)
	_, allStd := stat.PopMeanStdDev(confs, nil)

	gap := 0.0
	if allStd > 0 {
		gap = (confs[0] - confs[1]) / allStd
	}
	return topStd <= confusedTop3StdDev && gap < confusedGapZ
}

// splitTopTwo returns the share of the top candidate when the mass is split
// between the top two, from the z-score of their log confidence ratio.
func splitTopTwo(confs []float64) float64 {
	var logs []float64
	for _, c := range confs {
		if c > 0 {
			logs = append(logs, math.Log(c))
		}
	}
	_, std := stat.PopMeanStdDev(logs, nil)
	z := (math.Log(confs[0]) - math.Log(confs[1])) / std
	p := GetZPercent(z)
	if math.IsNaN(p) {
		return 0.5
	}
	return p
}

// Elect merges per-context intent predictions into one ranked list restricted
// to the requested contexts. intents maps a context to its predictions, best
// first. An empty requested list accepts every context.
func Elect(contexts []tools.Prediction, intents map[string][]IntentPrediction, requested []string) []IntentPrediction {
	total := 0.0
	for _, c := range contexts {
		total += c.Confidence
	}
	div := math.Max(1, total)

	var out []IntentPrediction
	for _, c := range contexts {
		ctxConf := c.Confidence / div
		preds := intents[c.Label]
		if len(preds) == 0 {
			continue
		}

		if len(preds) == 1 || preds[0].Confidence == 1 {
			top := preds[0]
			top.Confidence = ctxConf
			top.Context = c.Label
			out = append(out, top)
			continue
		}

		confs := make([]float64, len(preds))
		for i, p := range preds {
			confs[i] = p.Confidence
		}

		if reallyConfused(confs) {
			out = append(out, IntentPrediction{
				Name:       model.NoneIntent,
				Confidence: ctxConf,
				Context:    c.Label,
				Extractor:  ExtractorElection,
			})
			n := len(preds)
			if n > confusedCandidates {
				n = confusedCandidates
			}
			for _, p := range preds[:n] {
				p.Confidence *= ctxConf
				p.Context = c.Label
				out = append(out, p)
			}
			continue
		}

		p1 := splitTopTwo(confs)
		first, second := preds[0], preds[1]
		first.Confidence = round3(ctxConf * p1)
		second.Confidence = round3(ctxConf * (1 - p1))
		first.Context, second.Context = c.Label, c.Label
		out = append(out, first, second)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	allowed := make(map[string]bool, len(requested))
	for _, r := range requested {
		allowed[r] = true
	}
	seen := map[string]bool{}
	ranked := make([]IntentPrediction, 0, len(out))
	for _, p := range out {
		if len(allowed) > 0 && !allowed[p.Context] {
			continue
		}
		if seen[p.Name] {
			continue
		}
		seen[p.Name] = true
		ranked = append(ranked, p)
	}

	if len(ranked) == 0 || ranked[0].Confidence < minElectedConfidence {
		ctx := model.DefaultContext
		switch {
		case len(ranked) > 0:
			ctx = ranked[0].Context
		case len(requested) > 0:
			ctx = requested[0]
		}
		forced := []IntentPrediction{{
			Name:       model.NoneIntent,
			Confidence: 1,
			Context:    ctx,
			Extractor:  ExtractorElection,
		}}
		for _, p := range ranked {
			if p.Name != model.NoneIntent {
				forced = append(forced, p)
			}
		}
		ranked = forced
	}
	return ranked
}

// IsAmbiguous reports whether more than one prediction exists and every
// confidence is within the tolerance of an even split.
func IsAmbiguous(preds []IntentPrediction) bool {
	n := len(preds)
	if n < 2 {
		return false
	}
	even := 1 / float64(n)
	for _, p := range preds {
		if math.Abs(p.Confidence-even) > ambiguityTolerance+1e-9 {
			return false
		}
	}
	return true
}
