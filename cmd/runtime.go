package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/adalundhe/sylk-nlu/core/config"
	"github.com/adalundhe/sylk-nlu/core/nlu/engine"
	"github.com/adalundhe/sylk-nlu/core/nlu/model"
	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
	"github.com/adalundhe/sylk-nlu/core/storage"
)

// runtime is everything a command needs, built from flags and configuration.
type runtime struct {
	opts    *globalOptions
	dirs    *storage.Dirs
	mgr     *config.Manager
	cfg     *config.Config
	level   *slog.LevelVar
	logger  *slog.Logger
	toolkit *tools.Local
	store   *model.Store
	engine  *engine.Engine
}

func newRuntime(cmd *cobra.Command, opts *globalOptions) (*runtime, error) {
	dirs, err := resolveDirs(opts.home)
	if err != nil {
		return nil, err
	}

	mgr := config.NewManager(dirs, opts.project)
	if err := mgr.Load(); err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	snapshot := *mgr.Get()
	cfg := &snapshot
	if opts.logLevel != "" {
		cfg.Logging.Level = opts.logLevel
	}

	level := new(slog.LevelVar)
	level.Set(cfg.SlogLevel())
	logger := newLogger(cmd.ErrOrStderr(), cfg, level)
	mgr.SetLogger(logger)

	store, err := model.NewStore(model.StoreConfig{
		Dir:     cfg.ModelsDir(dirs),
		MaxCost: cfg.Tools.ModelCacheCost,
		Logger:  logger,
	})
	if err != nil {
		return nil, err
	}

	toolkit := tools.NewLocal(cfg.LocalToolkit())
	eng, err := engine.New(engine.Options{
		Toolkit:         toolkit,
		Store:           store,
		Logger:          logger,
		DefaultLanguage: cfg.Engine.DefaultLanguage,
	})
	if err != nil {
		store.Close()
		return nil, err
	}

	return &runtime{
		opts:    opts,
		dirs:    dirs,
		mgr:     mgr,
		cfg:     cfg,
		level:   level,
		logger:  logger,
		toolkit: toolkit,
		store:   store,
		engine:  eng,
	}, nil
}

func (r *runtime) Close() {
	r.mgr.Close()
	r.store.Close()
}

// watchConfig follows configuration changes for long-running commands. The
// log level is applied unless --log-level pinned it, then fn is called with
// the new config.
func (r *runtime) watchConfig(fn func(*config.Config)) error {
	r.mgr.OnChange(func(cfg *config.Config) {
		if r.opts.logLevel == "" {
			r.level.Set(cfg.SlogLevel())
		}
		r.logger.Debug("config reloaded", "default_language", cfg.Engine.DefaultLanguage)
		if fn != nil {
			fn(cfg)
		}
	})
	return r.mgr.Watch()
}

func resolveDirs(home string) (*storage.Dirs, error) {
	if home != "" {
		return storage.DirsAt(home), nil
	}
	return storage.ResolveDirs()
}

func newLogger(w io.Writer, cfg *config.Config, level slog.Leveler) *slog.Logger {
	hopts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Logging.Format, "json") {
		return slog.New(slog.NewJSONHandler(w, hopts))
	}
	return slog.New(slog.NewTextHandler(w, hopts))
}
