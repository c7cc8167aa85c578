package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
	"github.com/adalundhe/sylk-nlu/core/storage"
)

func newTestManager(t *testing.T) (*Manager, *storage.Dirs, string) {
	t.Helper()
	dirs := storage.DirsAt(t.TempDir())
	require.NoError(t, dirs.EnsureAll())
	project := t.TempDir()
	m := NewManager(dirs, project)
	t.Cleanup(func() { m.Close() })
	return m, dirs, project
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	assert.Equal(t, "en", cfg.Engine.DefaultLanguage)
	assert.Equal(t, []string{"en"}, cfg.Engine.Languages)
	assert.Equal(t, 3, cfg.Engine.KeepModels)
	assert.Equal(t, tools.DefaultClassifierConfig(), cfg.Training.Classifier)
	assert.Equal(t, tools.DefaultCRFConfig(), cfg.Training.CRF)
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestConfigDerived(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Engine.Languages = []string{"en", "fr"}
	cfg.Tools.VectorDimension = 64
	cfg.Training.CRF.Epochs = 5

	lc := cfg.LocalToolkit()
	assert.Equal(t, 64, lc.VectorDimension)
	assert.Equal(t, []string{"en", "fr"}, lc.Languages)
	assert.Equal(t, 5, lc.CRF.Epochs)

	dirs := storage.DirsAt("/nlu")
	assert.Equal(t, "/nlu/data/models", cfg.ModelsDir(dirs))
	cfg.Engine.ModelsDir = "/elsewhere"
	assert.Equal(t, "/elsewhere", cfg.ModelsDir(dirs))

	cfg.Logging.Level = "debug"
	assert.Equal(t, slog.LevelDebug, cfg.SlogLevel())
	cfg.Logging.Level = "loud"
	assert.Equal(t, slog.LevelInfo, cfg.SlogLevel())
}

func TestManagerGet(t *testing.T) {
	m, _, _ := newTestManager(t)

	cfg := m.Get()
	require.NotNil(t, cfg)
	assert.Equal(t, "en", cfg.Engine.DefaultLanguage)
}

func TestManagerLoadLayers(t *testing.T) {
	m, dirs, project := newTestManager(t)

	projectDirs := storage.ResolveProjectDirs(project)
	writeFile(t, projectDirs.Config, `
engine:
  default_language: fr
  languages: [fr, en]
training:
  crf:
    epochs: 10
`)
	writeFile(t, dirs.ConfigDir("config.yaml"), `
training:
  crf:
    epochs: 20
logging:
  level: debug
`)
	writeFile(t, filepath.Join(projectDirs.Local, "config.yaml"), `
tools:
  vector_dimension: 32
`)

	require.NoError(t, m.Load())
	cfg := m.Get()

	assert.Equal(t, "fr", cfg.Engine.DefaultLanguage)
	assert.Equal(t, []string{"fr", "en"}, cfg.Engine.Languages)
	assert.Equal(t, 20, cfg.Training.CRF.Epochs, "user file overrides project file")
	assert.Equal(t, tools.DefaultCRFConfig().LearningRate, cfg.Training.CRF.LearningRate)
	assert.Equal(t, 32, cfg.Tools.VectorDimension)
	assert.Equal(t, "debug", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestManagerLoadInvalidYAML(t *testing.T) {
	m, dirs, _ := newTestManager(t)
	writeFile(t, dirs.ConfigDir("config.yaml"), "engine: [unclosed")

	err := m.Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "user config")
	assert.Equal(t, "en", m.Get().Engine.DefaultLanguage, "previous config is kept")
}

func TestManagerEnvironmentOverride(t *testing.T) {
	m, _, _ := newTestManager(t)

	t.Setenv("SYLK_NLU_DEFAULT_LANGUAGE", "de")
	t.Setenv("SYLK_NLU_LANGUAGES", "de, en ,")
	t.Setenv("SYLK_NLU_SEED", "7")
	t.Setenv("SYLK_NLU_CLASSIFIER_EPOCHS", "12")
	t.Setenv("SYLK_NLU_CLASSIFIER_LEARNING_RATE", "0.5")
	t.Setenv("SYLK_NLU_CRF_EPOCHS", "not-a-number")
	t.Setenv("SYLK_NLU_LOG_FORMAT", "JSON")

	require.NoError(t, m.Load())
	cfg := m.Get()

	assert.Equal(t, "de", cfg.Engine.DefaultLanguage)
	assert.Equal(t, []string{"de", "en"}, cfg.Engine.Languages)
	assert.Equal(t, int64(7), cfg.Engine.Seed)
	assert.Equal(t, 12, cfg.Training.Classifier.Epochs)
	assert.Equal(t, 0.5, cfg.Training.Classifier.LearningRate)
	assert.Equal(t, tools.DefaultCRFConfig().Epochs, cfg.Training.CRF.Epochs)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestManagerOnChange(t *testing.T) {
	m, _, _ := newTestManager(t)

	var got *Config
	m.OnChange(func(cfg *Config) { got = cfg })

	require.NoError(t, m.Load())
	assert.Same(t, m.Get(), got)
}

func TestManagerReload(t *testing.T) {
	m, dirs, _ := newTestManager(t)
	path := dirs.ConfigDir("config.yaml")

	writeFile(t, path, "engine:\n  keep_models: 5\n")
	require.NoError(t, m.Load())
	assert.Equal(t, 5, m.Get().Engine.KeepModels)

	writeFile(t, path, "engine:\n  keep_models: 9\n")
	require.NoError(t, m.Reload())
	assert.Equal(t, 9, m.Get().Engine.KeepModels)
}

func TestManagerWatch(t *testing.T) {
	m, dirs, _ := newTestManager(t)
	path := dirs.ConfigDir("config.yaml")
	writeFile(t, path, "engine:\n  keep_models: 1\n")
	require.NoError(t, m.Load())

	var reloads atomic.Int32
	m.OnChange(func(*Config) { reloads.Add(1) })
	require.NoError(t, m.Watch())

	writeFile(t, path, "engine:\n  keep_models: 4\n")

	assert.Eventually(t, func() bool {
		return m.Get().Engine.KeepModels == 4
	}, 5*time.Second, 20*time.Millisecond)
	assert.GreaterOrEqual(t, reloads.Load(), int32(1))
}

func TestManagerClose(t *testing.T) {
	m, _, _ := newTestManager(t)
	require.NoError(t, m.Watch())

	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close(), "double close should not fail")
}
