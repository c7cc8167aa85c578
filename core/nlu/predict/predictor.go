// Package predict turns a raw sentence into a structured prediction using
// the artifacts of one trained model.
//
// A Predictor is immutable once built and safe for concurrent use; each call
// only mutates the utterance it builds for the request.
package predict

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"runtime/debug"
	"sort"
	"time"

	"github.com/viterin/vek/vek32"

	nluerrors "github.com/adalundhe/sylk-nlu/core/errors"
	"github.com/adalundhe/sylk-nlu/core/nlu/entities"
	"github.com/adalundhe/sylk-nlu/core/nlu/model"
	"github.com/adalundhe/sylk-nlu/core/nlu/slots"
	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
	"github.com/adalundhe/sylk-nlu/core/nlu/utterance"
)

// Result is the structured prediction for one sentence.
type Result struct {
	DetectedLanguage string                `json:"detected_language"`
	Language         string                `json:"language"`
	Contexts         []tools.Prediction    `json:"contexts"`
	Intent           IntentPrediction      `json:"intent"`
	Intents          []IntentPrediction    `json:"intents"`
	Ambiguous        bool                  `json:"ambiguous"`
	Entities         []entities.Extraction `json:"entities"`
	Slots            []slots.Extracted     `json:"slots"`
	Duration         time.Duration         `json:"duration"`
	Errored          bool                  `json:"errored"`
	Error            string                `json:"error,omitempty"`
}

// Errored returns a degraded result carrying err.
func Errored(lang string, err error) *Result {
	return &Result{
		DetectedLanguage: NoLanguage,
		Language:         lang,
		Entities:         []entities.Extraction{},
		Slots:            []slots.Extracted{},
		Errored:          true,
		Error:            err.Error(),
	}
}

// Predictor predicts intents, slots and entities for one language.
type Predictor struct {
	model  *model.Model
	tk     tools.Toolkit
	logger *slog.Logger

	extractor  *entities.Extractor
	tfidf      map[string]float64
	vocab      []string
	vocabVecs  [][]float32
	clusterFn  func([]float32) int
	contexts   []string
	contextClf tools.Classifier
	intentClfs map[string]tools.Classifier
	tagger     *slots.Tagger
	exact      map[string]model.ExactMatch
	intents    map[string]slots.Intent
}

// NewPredictor builds a Predictor from a successful model.
func NewPredictor(tk tools.Toolkit, m *model.Model, logger *slog.Logger) (*Predictor, error) {
	if !m.Success || m.Artifacts == nil {
		return nil, nluerrors.New(nluerrors.KindValidation, "model was not trained successfully", nil).
			WithContext("hash", m.Hash)
	}
	if logger == nil {
		logger = slog.Default()
	}
	a := m.Artifacts

	patterns, err := m.Input.Patterns()
	if err != nil {
		return nil, err
	}

	p := &Predictor{
		model:      m,
		tk:         tk,
		logger:     logger.With("language", m.Language, "hash", m.Hash),
		extractor:  &entities.Extractor{Lists: a.ListEntities, Patterns: patterns, System: tk},
		tfidf:      a.TFIDF,
		contexts:   a.Contexts,
		intentClfs: make(map[string]tools.Classifier, len(a.IntentModels)),
		exact:      a.ExactMatch,
		intents:    make(map[string]slots.Intent, len(m.Input.Intents)),
	}

	for w := range a.VocabVectors {
		p.vocab = append(p.vocab, w)
	}
	sort.Strings(p.vocab)
	p.vocabVecs = make([][]float32, len(p.vocab))
	for i, w := range p.vocab {
		p.vocabVecs[i] = a.VocabVectors[w]
	}

	if len(a.Centroids) > 0 {
		p.clusterFn = model.ClusterFunc(a.Centroids)
	}

	if len(a.ContextModel) > 0 {
		if p.contextClf, err = tk.LoadClassifier(a.ContextModel); err != nil {
			return nil, fmt.Errorf("load context classifier: %w", err)
		}
	}
	for ctx, data := range a.IntentModels {
		clf, err := tk.LoadClassifier(data)
		if err != nil {
			return nil, fmt.Errorf("load intent classifier %q: %w", ctx, err)
		}
		p.intentClfs[ctx] = clf
	}
	if len(a.SlotModel) > 0 {
		if p.tagger, err = slots.Load(tk, a.SlotModel); err != nil {
			return nil, err
		}
	}

	for _, def := range m.Input.Intents {
		p.intents[def.Name] = slots.Intent{
			Name:  def.Name,
			Slots: a.IntentSlots[def.Name],
			Vocab: a.IntentVocab[def.Name],
		}
	}
	return p, nil
}

// Model returns the model the predictor was built from.
func (p *Predictor) Model() *model.Model {
	return p.model
}

// Language returns the model language.
func (p *Predictor) Language() string {
	return p.model.Language
}

// Hash returns the model hash.
func (p *Predictor) Hash() string {
	return p.model.Hash
}

// Predict runs the prediction pipeline. It never fails: errors and panics
// degrade to an errored result.
func (p *Predictor) Predict(ctx context.Context, text string, contexts []string) (res *Result) {
	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("prediction panicked", "panic", r, "stack", string(debug.Stack()))
			res = Errored(p.Language(), nluerrors.New(nluerrors.KindDegraded, "prediction panicked", fmt.Errorf("%v", r)))
		}
		res.Duration = time.Since(start)
	}()

	res, err := p.predict(ctx, text, contexts)
	if err != nil {
		p.logger.Warn("prediction failed", "error", err)
		return Errored(p.Language(), nluerrors.Wrap(nluerrors.KindDegraded, "prediction failed", err))
	}
	return res
}

func (p *Predictor) predict(ctx context.Context, text string, requested []string) (*Result, error) {
	lang := p.Language()
	res := &Result{
		DetectedLanguage: lang,
		Language:         lang,
		Entities:         []entities.Extraction{},
		Slots:            []slots.Extracted{},
	}

	if len(p.intents) == 0 {
		res.Contexts = []tools.Prediction{{Label: model.DefaultContext, Confidence: 1}}
		res.Intent = IntentPrediction{
			Name:       model.NoneIntent,
			Confidence: 1,
			Context:    model.DefaultContext,
			Extractor:  ExtractorElection,
		}
		res.Intents = []IntentPrediction{res.Intent}
		return res, nil
	}

	us, err := utterance.Build(ctx, p.tk, []string{text}, lang)
	if err != nil {
		return nil, err
	}
	u := us[0]
	u.SetGlobalTFIDF(p.resolveTFIDF(u))
	if p.clusterFn != nil {
		u.SetClusterFunc(p.clusterFn)
	}

	found, err := p.extractor.Apply(ctx, u, lang)
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}
	if found != nil {
		res.Entities = found
	}

	ctxPreds, err := p.predictContexts(u)
	if err != nil {
		return nil, err
	}
	res.Contexts = ctxPreds

	intentPreds := make(map[string][]IntentPrediction, len(ctxPreds))
	for _, c := range ctxPreds {
		preds, err := p.predictIntents(u, c.Label)
		if err != nil {
			return nil, err
		}
		intentPreds[c.Label] = preds
	}

	if len(requested) == 0 {
		requested = p.contexts
	}
	res.Intents = Elect(ctxPreds, intentPreds, requested)
	res.Intent = res.Intents[0]
	res.Ambiguous = IsAmbiguous(res.Intents)

	intent, ok := p.intents[res.Intent.Name]
	if res.Ambiguous || !ok || len(intent.Slots) == 0 || p.tagger == nil {
		return res, nil
	}

	extracted, err := p.tagger.Extract(u, intent)
	if err != nil {
		return nil, err
	}
	for _, s := range extracted {
		if err := u.TagSlot(s.Slot, s.Start, s.End); err != nil {
			return nil, err
		}
	}
	if extracted != nil {
		res.Slots = extracted
	}
	return res, nil
}

// resolveTFIDF returns the weights of the tokens of u. Unseen word tokens take
// the weight of the nearest vocabulary vector.
func (p *Predictor) resolveTFIDF(u *utterance.Utterance) map[string]float64 {
	out := make(map[string]float64, u.Len())
	for _, t := range u.Tokens() {
		if !t.IsWord {
			continue
		}
		key := t.Lower()
		if _, done := out[key]; done {
			continue
		}
		if w, ok := p.tfidf[key]; ok {
			out[key] = w
			continue
		}
		if i := p.nearestVocab(t.Vector); i >= 0 {
			if w, ok := p.tfidf[p.vocab[i]]; ok {
				out[key] = w
			}
		}
	}
	return out
}

func (p *Predictor) nearestVocab(v []float32) int {
	best, bestDist := -1, math.Inf(1)
	for i, c := range p.vocabVecs {
		if len(c) != len(v) {
			continue
		}
		if d := float64(vek32.Distance(c, v)); d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}

func (p *Predictor) predictContexts(u *utterance.Utterance) ([]tools.Prediction, error) {
	if p.contextClf != nil {
		preds, err := p.contextClf.Predict(model.ContextFeatures(u))
		if err != nil {
			return nil, fmt.Errorf("predict context: %w", err)
		}
		return preds, nil
	}

	contexts := p.contexts
	if len(contexts) == 0 {
		contexts = []string{model.DefaultContext}
	}
	even := 1 / float64(len(contexts))
	preds := make([]tools.Prediction, len(contexts))
	for i, c := range contexts {
		preds[i] = tools.Prediction{Label: c, Confidence: even}
	}
	return preds, nil
}

// predictIntents scores the intents of one context, best first. An exact
// match is placed first at confidence 1.
func (p *Predictor) predictIntents(u *utterance.Utterance, ctx string) ([]IntentPrediction, error) {
	var out []IntentPrediction

	hit, exact := p.exact[u.ExactMatchKey()]
	exact = exact && model.Member(hit.Contexts, ctx)
	if exact {
		out = append(out, IntentPrediction{
			Name:       hit.Intent,
			Confidence: 1,
			Context:    ctx,
			Extractor:  ExtractorExactMatch,
		})
	}

	clf, ok := p.intentClfs[ctx]
	if !ok {
		return out, nil
	}
	preds, err := clf.Predict(model.IntentFeatures(u))
	if err != nil {
		return nil, fmt.Errorf("predict intent in %q: %w", ctx, err)
	}
	for _, pr := range preds {
		if exact && pr.Label == hit.Intent {
			continue
		}
		out = append(out, IntentPrediction{
			Name:       pr.Label,
			Confidence: pr.Confidence,
			Context:    ctx,
			Extractor:  ExtractorClassifier,
		})
	}
	return out, nil
}
