// Package training turns intent and entity definitions into a trained model.
//
// Training runs ten stages in order. Cancellation is observed between stages
// through the context and an optional flag; a canceled run returns an error
// distinguishable with errors.Is(err, ErrTrainingCanceled). Every other
// failure yields an unsuccessful model record and a nil error.
package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	nluerrors "github.com/adalundhe/sylk-nlu/core/errors"
	"github.com/adalundhe/sylk-nlu/core/nlu/entities"
	"github.com/adalundhe/sylk-nlu/core/nlu/model"
	"github.com/adalundhe/sylk-nlu/core/nlu/slots"
	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
	"github.com/adalundhe/sylk-nlu/core/nlu/utterance"
)

const (
	// MinClassifierUtterances is the number of utterances an intent needs to
	// take part in classifier training.
	MinClassifierUtterances = 3

	maxClusters = 8
	// minSlotIntents is the number of intents below which the slot tagger is
	// not trained.
	minSlotIntents = 2
)

// Options configures a training run.
type Options struct {
	Toolkit tools.Toolkit
	Logger  *slog.Logger
	// Progress receives a fraction in (0, 1] after each macro step.
	Progress func(float64)
	// Canceled is polled between stages.
	Canceled func() bool
}

type stage struct {
	name  string
	run   func(context.Context) error
	macro int
}

type pipeline struct {
	input    model.Input
	lang     string
	tk       tools.Toolkit
	logger   *slog.Logger
	progress *progress
	canceled func() bool

	contexts  []string
	lists     []*entities.ListEntity
	patterns  []*entities.PatternEntity
	intents   []model.Intent
	none      *model.Intent
	tfidf     map[string]float64
	clusterFn func([]float32) int
	artifacts *model.Artifacts
}

// Train runs the training pipeline for input.Language.
func Train(ctx context.Context, input model.Input, opts Options) (*model.Model, error) {
	if opts.Toolkit == nil {
		return nil, nluerrors.Validationf(nluerrors.ErrInvalidInput.Code, "training requires a toolkit")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	m, err := model.New(input)
	if err != nil {
		return nil, err
	}
	logger = logger.With("hash", m.Hash, "language", m.Language)

	p := &pipeline{
		input:    input,
		lang:     input.Language,
		tk:       opts.Toolkit,
		logger:   logger,
		progress: newProgress(opts.Progress),
		canceled: opts.Canceled,
		artifacts: &model.Artifacts{
			IntentModels: map[string][]byte{},
			IntentSlots:  map[string][]slots.SlotDefinition{},
			IntentVocab:  map[string]map[string]bool{},
		},
	}

	logger.Info("training started", "intents", len(input.Intents), "entities", len(input.Entities))
	err = p.run(ctx)
	m.FinishedAt = time.Now().UTC()
	m.Output = &model.Output{Intents: p.allIntents()}

	if err != nil {
		if nluerrors.IsCanceled(err) {
			logger.Info("training canceled", "error", err)
			return m, err
		}
		m.Error = err.Error()
		logger.Error("training failed", "error", err, "duration", m.FinishedAt.Sub(m.StartedAt))
		return m, nil
	}

	m.Success = true
	m.Artifacts = p.artifacts
	logger.Info("training finished", "duration", m.FinishedAt.Sub(m.StartedAt))
	return m, nil
}

func (p *pipeline) run(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = nluerrors.New(nluerrors.KindTraining, "training panicked", fmt.Errorf("%v", r))
		}
	}()

	if err := p.input.Validate(); err != nil {
		return nluerrors.Wrap(nluerrors.KindValidation, "invalid training input", err)
	}
	p.contexts = p.input.Contexts()
	p.artifacts.Contexts = p.contexts

	stages := []stage{
		{name: "list_entities", run: p.buildListEntities},
		{name: "utterances", run: p.buildUtterances, macro: 1},
		{name: "tfidf", run: p.computeTFIDF},
		{name: "kmeans", run: p.clusterVocabulary, macro: 2},
		{name: "entities", run: p.extractEntities},
		{name: "none_intent", run: p.buildNoneIntent},
		{name: "exact_match", run: p.buildExactMatch, macro: 3},
		{name: "context_classifier", run: p.trainContextClassifier},
		{name: "intent_classifiers", run: p.trainIntentClassifiers, macro: 4},
		{name: "slot_tagger", run: p.trainSlotTagger, macro: 5},
	}

	for _, s := range stages {
		if err := p.checkCanceled(ctx, s.name); err != nil {
			return err
		}
		start := time.Now()
		if err := s.run(ctx); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nluerrors.Canceled(s.name, err)
			}
			return nluerrors.Wrap(nluerrors.KindTraining, "stage "+s.name, err)
		}
		p.logger.Debug("training stage done", "stage", s.name, "duration", time.Since(start))
		if s.macro > 0 {
			p.progress.step(s.macro)
		}
	}
	return nil
}

func (p *pipeline) checkCanceled(ctx context.Context, stage string) error {
	if err := ctx.Err(); err != nil {
		return nluerrors.Canceled(stage, err)
	}
	if p.canceled != nil && p.canceled() {
		return nluerrors.Canceled(stage, nil)
	}
	return nil
}

func (p *pipeline) allIntents() []model.Intent {
	out := append([]model.Intent(nil), p.intents...)
	if p.none != nil {
		out = append(out, *p.none)
	}
	return out
}

func (p *pipeline) allUtterances() []*utterance.Utterance {
	var out []*utterance.Utterance
	for _, in := range p.allIntents() {
		out = append(out, in.Utterances...)
	}
	return out
}

// buildListEntities tokenizes every canonical value and synonym.
func (p *pipeline) buildListEntities(ctx context.Context) error {
	type ref struct {
		list      *entities.ListEntity
		canonical string
	}
	var texts []string
	var refs []ref

	for _, def := range p.input.Entities {
		if def.Type != model.EntityList {
			continue
		}
		list := &entities.ListEntity{
			Name:           def.Name,
			FuzzyTolerance: entities.FuzzyTolerance(def.Fuzzy),
			CaseSensitive:  def.CaseSensitive,
			Mappings:       map[string][][]string{},
		}
		for _, v := range def.Values {
			for _, s := range append([]string{v.Canonical}, v.Synonyms...) {
				texts = append(texts, s)
				refs = append(refs, ref{list: list, canonical: v.Canonical})
			}
		}
		p.lists = append(p.lists, list)
	}

	if len(texts) > 0 {
		tokens, err := p.tk.Tokenize(ctx, texts, p.lang)
		if err != nil {
			return fmt.Errorf("tokenize synonyms: %w", err)
		}
		for i, r := range refs {
			r.list.Mappings[r.canonical] = append(r.list.Mappings[r.canonical], tokens[i])
		}
	}

	patterns, err := p.input.Patterns()
	if err != nil {
		return err
	}
	p.patterns = patterns
	p.artifacts.ListEntities = p.lists
	return nil
}

// buildUtterances parses slot markup, builds every utterance and computes the
// per-intent vocabularies.
func (p *pipeline) buildUtterances(ctx context.Context) error {
	synonyms := map[string][]string{}
	for _, list := range p.lists {
		for _, forms := range list.Mappings {
			for _, toks := range forms {
				for _, tok := range toks {
					if tools.IsWordToken(tok) {
						synonyms[list.Name] = append(synonyms[list.Name], tok)
					}
				}
			}
		}
	}

	for _, def := range p.input.Intents {
		raw := def.Utterances[p.lang]
		texts := make([]string, len(raw))
		marks := make([][]utterance.MarkedSlot, len(raw))
		for i, r := range raw {
			texts[i], marks[i] = utterance.ParseMarkup(r)
		}

		us, err := utterance.Build(ctx, p.tk, texts, p.lang)
		if err != nil {
			return fmt.Errorf("intent %q: %w", def.Name, err)
		}
		for i, u := range us {
			for _, ms := range marks[i] {
				if err := u.TagSlot(utterance.Slot{Name: ms.Name, Source: ms.Source, Confidence: 1}, ms.Start, ms.End); err != nil {
					return fmt.Errorf("intent %q: %w", def.Name, err)
				}
			}
		}

		contexts := def.Contexts
		if len(contexts) == 0 {
			contexts = []string{model.DefaultContext}
		}
		intent := model.Intent{
			Intent: slots.Intent{
				Name:       def.Name,
				Slots:      def.Slots,
				Utterances: us,
				Vocab:      map[string]bool{},
			},
			Contexts: contexts,
		}

		for _, u := range us {
			for i, t := range u.Tokens() {
				if t.IsSpace || len(u.SlotsAt(i)) > 0 {
					continue
				}
				intent.Vocab[t.Lower()] = true
			}
		}
		for _, name := range intent.AllowedEntities() {
			for _, tok := range synonyms[name] {
				intent.Vocab[strings.ToLower(tok)] = true
			}
		}

		if len(def.Slots) > 0 {
			p.artifacts.IntentSlots[def.Name] = def.Slots
		}
		p.artifacts.IntentVocab[def.Name] = intent.Vocab
		p.intents = append(p.intents, intent)
	}
	return nil
}

func (p *pipeline) computeTFIDF(context.Context) error {
	docs := make(map[string][]*utterance.Utterance, len(p.intents))
	for _, in := range p.intents {
		docs[in.Name] = in.Utterances
	}
	p.tfidf = ComputeTFIDF(docs)
	for _, u := range p.allUtterances() {
		u.SetGlobalTFIDF(p.tfidf)
	}
	p.artifacts.TFIDF = p.tfidf
	return nil
}

// clusterVocabulary runs k-means over the distinct word token vectors.
func (p *pipeline) clusterVocabulary(ctx context.Context) error {
	vocab := map[string][]float32{}
	for _, in := range p.intents {
		for _, u := range in.Utterances {
			for _, t := range u.Tokens() {
				if !t.IsWord {
					continue
				}
				if _, ok := vocab[t.Lower()]; !ok {
					vocab[t.Lower()] = t.Vector
				}
			}
		}
	}
	p.artifacts.VocabVectors = vocab
	if len(vocab) == 0 {
		return nil
	}

	words := make([]string, 0, len(vocab))
	for w := range vocab {
		words = append(words, w)
	}
	sort.Strings(words)
	vectors := make([][]float32, len(words))
	for i, w := range words {
		vectors[i] = vocab[w]
	}

	k := maxClusters
	if len(words) < k {
		k = len(words)
	}
	centroids, err := p.tk.KMeans(ctx, vectors, k, p.input.Seed)
	if err != nil {
		return fmt.Errorf("kmeans: %w", err)
	}
	p.artifacts.Centroids = centroids
	p.clusterFn = model.ClusterFunc(centroids)
	for _, u := range p.allUtterances() {
		u.SetClusterFunc(p.clusterFn)
	}
	return nil
}

// extractEntities tags entities on the utterances of intents declaring slots.
func (p *pipeline) extractEntities(ctx context.Context) error {
	x := &entities.Extractor{Lists: p.lists, Patterns: p.patterns, System: p.tk}
	for _, in := range p.intents {
		if len(in.Slots) == 0 {
			continue
		}
		for _, u := range in.Utterances {
			if _, err := x.Apply(ctx, u, p.lang); err != nil {
				return fmt.Errorf("intent %q: %w", in.Name, err)
			}
		}
	}
	return nil
}

func (p *pipeline) buildNoneIntent(ctx context.Context) error {
	if len(p.intents) == 0 {
		return nil
	}

	c := noneCorpus{intents: len(p.intents)}
	for _, in := range p.intents {
		for _, u := range in.Utterances {
			c.utterances++
			for _, t := range u.Tokens() {
				c.totalTokens++
				if t.IsSpace {
					c.spaceTokens++
				}
				if t.IsWord {
					c.wordTokens++
				}
			}
		}
	}

	vocab := make([]string, 0, len(p.artifacts.VocabVectors))
	for w := range p.artifacts.VocabVectors {
		vocab = append(vocab, w)
	}
	sort.Strings(vocab)
	c.lowWeight = lowWeightWords(vocab, p.tfidf)

	junk := p.tk.GenerateJunkWords(vocab, p.lang, p.input.Seed)
	texts := synthesizeNone(c, junk, p.input.Seed+1)

	us, err := utterance.Build(ctx, p.tk, texts, p.lang)
	if err != nil {
		return fmt.Errorf("none intent: %w", err)
	}
	for _, u := range us {
		u.SetGlobalTFIDF(p.tfidf)
		if p.clusterFn != nil {
			u.SetClusterFunc(p.clusterFn)
		}
	}

	p.none = &model.Intent{
		Intent: slots.Intent{
			Name:       model.NoneIntent,
			Utterances: us,
			Vocab:      map[string]bool{},
		},
		Contexts: append([]string(nil), p.contexts...),
	}
	p.logger.Debug("none intent synthesized", "utterances", len(us), "junk_words", len(junk))
	return nil
}

func (p *pipeline) buildExactMatch(context.Context) error {
	p.artifacts.ExactMatch = buildExactMatchIndex(p.intents)
	return nil
}

func trainable(in model.Intent) bool {
	return len(in.Utterances) >= MinClassifierUtterances
}

// trainContextClassifier is skipped when fewer than two contexts exist.
func (p *pipeline) trainContextClassifier(ctx context.Context) error {
	if len(p.contexts) < 2 {
		return nil
	}

	var samples []tools.Sample
	for _, in := range p.intents {
		if !trainable(in) {
			continue
		}
		for _, c := range in.Contexts {
			for _, u := range in.Utterances {
				samples = append(samples, tools.Sample{Features: model.ContextFeatures(u), Label: c})
			}
		}
	}
	if len(samples) == 0 {
		return nil
	}

	clf := p.tk.NewClassifier()
	if err := clf.Train(ctx, samples); err != nil {
		return fmt.Errorf("context classifier: %w", err)
	}
	data, err := clf.MarshalBinary()
	if err != nil {
		return err
	}
	p.artifacts.ContextModel = data
	return nil
}

// trainIntentClassifiers trains one classifier per context over its trainable
// intents and the none intent.
func (p *pipeline) trainIntentClassifiers(ctx context.Context) error {
	for _, c := range p.contexts {
		var samples []tools.Sample
		for _, in := range p.allIntents() {
			if !model.Member(in.Contexts, c) {
				continue
			}
			if in.Name != model.NoneIntent && !trainable(in) {
				continue
			}
			for _, u := range in.Utterances {
				samples = append(samples, tools.Sample{Features: model.IntentFeatures(u), Label: in.Name})
			}
		}
		if len(samples) == 0 {
			continue
		}

		clf := p.tk.NewClassifier()
		if err := clf.Train(ctx, samples); err != nil {
			return fmt.Errorf("intent classifier %q: %w", c, err)
		}
		data, err := clf.MarshalBinary()
		if err != nil {
			return err
		}
		p.artifacts.IntentModels[c] = data
	}
	return nil
}

func (p *pipeline) trainSlotTagger(ctx context.Context) error {
	if len(p.intents) < minSlotIntents {
		p.logger.Debug("slot tagger skipped", "intents", len(p.intents))
		return nil
	}

	in := make([]slots.Intent, len(p.intents))
	for i, intent := range p.intents {
		in[i] = intent.Intent
	}
	tagger, err := slots.Train(ctx, p.tk, in)
	if err != nil || tagger == nil {
		return err
	}
	data, err := tagger.MarshalBinary()
	if err != nil {
		return err
	}
	p.artifacts.SlotModel = data
	return nil
}
