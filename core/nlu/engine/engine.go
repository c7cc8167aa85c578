// Package engine owns the per-language predictors and exposes the train,
// load and predict entry points.
//
// Predictors are published through an atomic pointer to an immutable map.
// Writers build a copy of the map and swap it in under a mutex, so readers
// never block and never observe a half-installed model.
package engine

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	nluerrors "github.com/adalundhe/sylk-nlu/core/errors"
	"github.com/adalundhe/sylk-nlu/core/nlu/model"
	"github.com/adalundhe/sylk-nlu/core/nlu/predict"
	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
	"github.com/adalundhe/sylk-nlu/core/nlu/training"
)

// Options configures an Engine.
type Options struct {
	Toolkit tools.Toolkit
	// Store persists trained models. Without a store models live in memory
	// only and LoadModel is unavailable.
	Store           *model.Store
	Logger          *slog.Logger
	DefaultLanguage string
}

// TrainOptions are forwarded to the training pipeline.
type TrainOptions struct {
	Progress func(float64)
	Canceled func() bool
}

// ModelRef identifies a stored model.
type ModelRef struct {
	Hash     string `json:"hash"`
	Language string `json:"language"`
}

type predictors map[string]*predict.Predictor

// Engine trains, loads and serves models for several languages.
type Engine struct {
	tk          tools.Toolkit
	store       *model.Store
	logger      *slog.Logger
	defaultLang string

	current atomic.Pointer[predictors]
	swapMu  sync.Mutex
}

// New returns an Engine with no models loaded.
func New(opts Options) (*Engine, error) {
	if opts.Toolkit == nil {
		return nil, nluerrors.Validationf(nluerrors.ErrInvalidInput.Code, "engine requires a toolkit")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	lang := opts.DefaultLanguage
	if lang == "" {
		lang = "en"
	}

	e := &Engine{
		tk:          opts.Toolkit,
		store:       opts.Store,
		logger:      logger,
		defaultLang: lang,
	}
	e.current.Store(&predictors{})
	return e, nil
}

// DefaultLanguage returns the language used when detection is inconclusive.
func (e *Engine) DefaultLanguage() string {
	return e.defaultLang
}

// Languages returns the loaded languages in sorted order.
func (e *Engine) Languages() []string {
	return (*e.current.Load()).languages()
}

func (ps predictors) languages() []string {
	langs := make([]string, 0, len(ps))
	for l := range ps {
		langs = append(langs, l)
	}
	sort.Strings(langs)
	return langs
}

// Loaded returns the model serving lang.
func (e *Engine) Loaded(lang string) (*model.Model, bool) {
	p, ok := (*e.current.Load())[lang]
	if !ok {
		return nil, false
	}
	return p.Model(), true
}

// Train makes input's model the one serving its language. When that model is
// already loaded Train returns it unchanged, and when the store already holds
// it the stored model is loaded instead of retraining.
//
// A canceled run returns the partial record and a cancellation error. A failed
// run returns the unsuccessful record and a training error. In both cases the
// previously loaded model keeps serving.
func (e *Engine) Train(ctx context.Context, input model.Input, opts TrainOptions) (*model.Model, error) {
	hash, err := model.Hash(input)
	if err != nil {
		return nil, err
	}
	logger := e.logger.With("hash", hash, "language", input.Language)

	if m, ok := e.Loaded(input.Language); ok && m.Hash == hash {
		logger.Debug("model already loaded")
		return m, nil
	}
	if e.store != nil && e.store.Exists(hash, input.Language) {
		m, err := e.LoadModel(ctx, hash, input.Language)
		if err == nil {
			return m, nil
		}
		logger.Warn("stored model unusable, retraining", "error", err)
	}

	m, err := training.Train(ctx, input, training.Options{
		Toolkit:  e.tk,
		Logger:   e.logger,
		Progress: opts.Progress,
		Canceled: opts.Canceled,
	})
	if err != nil {
		return m, err
	}
	if !m.Success {
		return m, nluerrors.New(nluerrors.KindTraining, "training failed", nil).
			WithContext("hash", m.Hash).
			WithContext("error", m.Error)
	}

	serving := m
	if e.store != nil {
		if err := e.store.Save(m); err != nil {
			return m, err
		}
		if serving, err = e.store.Load(m.Hash, m.Language); err != nil {
			return m, err
		}
	}

	p, err := predict.NewPredictor(e.tk, serving, e.logger)
	if err != nil {
		return m, err
	}
	e.install(p)
	logger.Info("model installed", "duration", time.Since(m.StartedAt))
	return m, nil
}

// LoadModel loads a stored model and makes it the one serving its language.
func (e *Engine) LoadModel(ctx context.Context, hash, lang string) (*model.Model, error) {
	if e.store == nil {
		return nil, nluerrors.New(nluerrors.KindStorage, "engine has no model store", nil)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	m, err := e.store.Load(hash, lang)
	if err != nil {
		return nil, err
	}
	p, err := predict.NewPredictor(e.tk, m, e.logger)
	if err != nil {
		return nil, err
	}
	e.install(p)
	e.logger.Info("model loaded", "hash", hash, "language", lang)
	return m, nil
}

// LoadModels loads several stored models concurrently. It stops at the first
// failure; models loaded before it stay installed.
func (e *Engine) LoadModels(ctx context.Context, refs []ModelRef) error {
	g, ctx := errgroup.WithContext(ctx)
	for _, ref := range refs {
		g.Go(func() error {
			_, err := e.LoadModel(ctx, ref.Hash, ref.Language)
			return err
		})
	}
	return g.Wait()
}

// LoadLatest loads the newest stored model of every language in langs.
// Languages without a stored model are skipped.
func (e *Engine) LoadLatest(ctx context.Context, langs ...string) error {
	if e.store == nil {
		return nluerrors.New(nluerrors.KindStorage, "engine has no model store", nil)
	}
	var refs []ModelRef
	for _, lang := range langs {
		entries, err := e.store.List(lang)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			refs = append(refs, ModelRef{Hash: entries[0].Hash, Language: lang})
		}
	}
	return e.LoadModels(ctx, refs)
}

// Unload removes the model serving lang.
func (e *Engine) Unload(lang string) {
	e.swapMu.Lock()
	defer e.swapMu.Unlock()

	cur := *e.current.Load()
	if _, ok := cur[lang]; !ok {
		return
	}
	next := make(predictors, len(cur))
	for l, p := range cur {
		if l != lang {
			next[l] = p
		}
	}
	e.current.Store(&next)
}

func (e *Engine) install(p *predict.Predictor) {
	e.swapMu.Lock()
	defer e.swapMu.Unlock()

	cur := *e.current.Load()
	next := make(predictors, len(cur)+1)
	for l, old := range cur {
		next[l] = old
	}
	next[p.Language()] = p
	e.current.Store(&next)
}

// Predict detects the language of text and runs the matching predictor.
// defaultLang overrides the engine default for this call when set. Predict
// never fails: problems are reported through an errored result.
func (e *Engine) Predict(ctx context.Context, text string, contexts []string, defaultLang string) *predict.Result {
	start := time.Now()
	if defaultLang == "" {
		defaultLang = e.defaultLang
	}

	cur := *e.current.Load()
	if len(cur) == 0 {
		res := predict.Errored(defaultLang, nluerrors.ErrNoModel)
		res.Duration = time.Since(start)
		return res
	}

	detected, used := predict.DetectLanguage(e.tk, text, cur.languages(), defaultLang)
	p, ok := cur[used]
	if !ok {
		res := predict.Errored(used, nluerrors.New(nluerrors.KindNotFound, "no model loaded for language", nil).
			WithCode(nluerrors.ErrNoModel.Code).
			WithContext("language", used))
		res.DetectedLanguage = detected
		res.Duration = time.Since(start)
		return res
	}

	res := p.Predict(ctx, text, contexts)
	res.DetectedLanguage = detected
	return res
}
