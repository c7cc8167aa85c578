package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"gopkg.in/yaml.v3"

	"github.com/adalundhe/sylk-nlu/core/nlu/tools"
	"github.com/adalundhe/sylk-nlu/core/storage"
)

const (
	configFile    = "config.yaml"
	envPrefix     = "SYLK_NLU_"
	watchDebounce = 100 * time.Millisecond
)

type Manager struct {
	config      atomic.Pointer[Config]
	dirs        *storage.Dirs
	projectRoot string
	logger      *slog.Logger

	watchers  []func(*Config)
	watcherMu sync.RWMutex
	stopWatch chan struct{}
	watchOnce sync.Once
	fsw       *fsnotify.Watcher
}

type Config struct {
	Engine   EngineConfig   `yaml:"engine"`
	Training TrainingConfig `yaml:"training"`
	Tools    ToolsConfig    `yaml:"tools"`
	Logging  LoggingConfig  `yaml:"logging"`
}

type EngineConfig struct {
	DefaultLanguage string   `yaml:"default_language"`
	Languages       []string `yaml:"languages"`
	// ModelsDir overrides the data directory models are stored in.
	ModelsDir string `yaml:"models_dir"`
	Seed      int64  `yaml:"seed"`
	// KeepModels is how many models per language survive a prune.
	KeepModels int `yaml:"keep_models"`
}

type TrainingConfig struct {
	Classifier tools.ClassifierConfig `yaml:"classifier"`
	CRF        tools.CRFConfig        `yaml:"crf"`
}

type ToolsConfig struct {
	VectorDimension int   `yaml:"vector_dimension"`
	VectorCacheSize int   `yaml:"vector_cache_size"`
	ModelCacheCost  int64 `yaml:"model_cache_cost"`
}

type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// NewManager returns a Manager holding the defaults. projectRoot is where the
// project-local .sylk-nlu directory is looked up.
func NewManager(dirs *storage.Dirs, projectRoot string) *Manager {
	if projectRoot == "" {
		projectRoot = "."
	}
	m := &Manager{
		dirs:        dirs,
		projectRoot: projectRoot,
		logger:      slog.Default(),
		stopWatch:   make(chan struct{}),
	}
	m.config.Store(DefaultConfig())
	return m
}

func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			DefaultLanguage: "en",
			Languages:       []string{"en"},
			Seed:            42,
			KeepModels:      3,
		},
		Training: TrainingConfig{
			Classifier: tools.DefaultClassifierConfig(),
			CRF:        tools.DefaultCRFConfig(),
		},
		Tools: ToolsConfig{
			VectorDimension: tools.DefaultVectorDimension,
			VectorCacheSize: tools.DefaultVectorCacheSize,
			ModelCacheCost:  256 << 20,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LocalToolkit returns the toolkit configuration described by c.
func (c *Config) LocalToolkit() tools.LocalConfig {
	lc := tools.DefaultLocalConfig()
	lc.VectorDimension = c.Tools.VectorDimension
	lc.VectorCacheSize = c.Tools.VectorCacheSize
	lc.Languages = c.Engine.Languages
	lc.Classifier = c.Training.Classifier
	lc.CRF = c.Training.CRF
	return lc
}

// ModelsDir resolves the models directory against dirs.
func (c *Config) ModelsDir(dirs *storage.Dirs) string {
	if c.Engine.ModelsDir != "" {
		return c.Engine.ModelsDir
	}
	return dirs.ModelsDir()
}

// SlogLevel parses Logging.Level, defaulting to info.
func (c *Config) SlogLevel() slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(c.Logging.Level)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

func (m *Manager) Get() *Config {
	return m.config.Load()
}

// SetLogger sets the logger used to report reload failures.
func (m *Manager) SetLogger(logger *slog.Logger) {
	if logger != nil {
		m.logger = logger
	}
}

// Load rebuilds the configuration from defaults, the project file, the user
// file, the project-local file and the environment, in that order.
func (m *Manager) Load() error {
	cfg := DefaultConfig()

	for _, layer := range []struct {
		name string
		path string
	}{
		{"project", m.projectPath()},
		{"user", m.userPath()},
		{"local", m.localPath()},
	} {
		if err := m.mergeYAMLFile(layer.path, cfg); err != nil {
			return fmt.Errorf("%s config: %w", layer.name, err)
		}
	}

	m.applyEnvironment(cfg)

	m.config.Store(cfg)
	m.notifyWatchers(cfg)

	return nil
}

func (m *Manager) projectPath() string {
	return storage.ResolveProjectDirs(m.projectRoot).Config
}

func (m *Manager) userPath() string {
	return m.dirs.ConfigDir(configFile)
}

func (m *Manager) localPath() string {
	return filepath.Join(storage.ResolveProjectDirs(m.projectRoot).Local, configFile)
}

func (m *Manager) mergeYAMLFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}

	var layer Config
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return err
	}
	DeepMerge(cfg, &layer)
	return nil
}

func (m *Manager) applyEnvironment(cfg *Config) {
	if v := os.Getenv(envPrefix + "DEFAULT_LANGUAGE"); v != "" {
		cfg.Engine.DefaultLanguage = v
	}
	if v := os.Getenv(envPrefix + "LANGUAGES"); v != "" {
		cfg.Engine.Languages = splitList(v)
	}
	if v := os.Getenv(envPrefix + "MODELS_DIR"); v != "" {
		cfg.Engine.ModelsDir = v
	}
	if v := os.Getenv(envPrefix + "SEED"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Engine.Seed = int64(n)
		}
	}
	if v := os.Getenv(envPrefix + "CLASSIFIER_EPOCHS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Training.Classifier.Epochs = n
		}
	}
	if v := os.Getenv(envPrefix + "CRF_EPOCHS"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Training.CRF.Epochs = n
		}
	}
	if v := os.Getenv(envPrefix + "CLASSIFIER_LEARNING_RATE"); v != "" {
		if f, err := parseFloat(v); err == nil {
			cfg.Training.Classifier.LearningRate = f
		}
	}
	if v := os.Getenv(envPrefix + "VECTOR_DIMENSION"); v != "" {
		if n, err := parseInt(v); err == nil {
			cfg.Tools.VectorDimension = n
		}
	}
	if v := os.Getenv(envPrefix + "LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv(envPrefix + "LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
}

func (m *Manager) OnChange(fn func(*Config)) {
	m.watcherMu.Lock()
	m.watchers = append(m.watchers, fn)
	m.watcherMu.Unlock()
}

func (m *Manager) notifyWatchers(cfg *Config) {
	m.watcherMu.RLock()
	watchers := m.watchers
	m.watcherMu.RUnlock()

	for _, fn := range watchers {
		fn(cfg)
	}
}

func (m *Manager) Reload() error {
	return m.Load()
}

// Watch reloads the configuration whenever one of its files changes. Events
// are debounced; failed reloads are logged and keep the previous config.
// Watching stops on Close.
func (m *Manager) Watch() error {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}

	files := map[string]bool{}
	watched := 0
	for _, path := range []string{m.projectPath(), m.userPath(), m.localPath()} {
		abs, err := filepath.Abs(path)
		if err != nil {
			continue
		}
		files[abs] = true
		if err := fsw.Add(filepath.Dir(abs)); err == nil {
			watched++
		}
	}
	if watched == 0 {
		fsw.Close()
		return fmt.Errorf("no config directory exists to watch")
	}

	m.fsw = fsw
	go m.watchLoop(fsw, files)
	return nil
}

func (m *Manager) watchLoop(fsw *fsnotify.Watcher, files map[string]bool) {
	var timer *time.Timer
	reload := make(chan struct{}, 1)
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for {
		select {
		case <-m.stopWatch:
			return
		case ev, ok := <-fsw.Events:
			if !ok {
				return
			}
			if !files[ev.Name] || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Remove) == 0 {
				continue
			}
			if timer != nil {
				timer.Stop()
			}
			timer = time.AfterFunc(watchDebounce, func() {
				select {
				case reload <- struct{}{}:
				default:
				}
			})
		case <-reload:
			if err := m.Load(); err != nil {
				m.logger.Warn("config reload failed", "error", err)
			}
		case err, ok := <-fsw.Errors:
			if !ok {
				return
			}
			m.logger.Warn("config watcher error", "error", err)
		}
	}
}

func (m *Manager) Close() error {
	var err error
	m.watchOnce.Do(func() {
		close(m.stopWatch)
		if m.fsw != nil {
			err = m.fsw.Close()
		}
	})
	return err
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseInt(s string) (int, error) {
	var n int
	_, err := fmt.Sscanf(s, "%d", &n)
	return n, err
}

func parseFloat(s string) (float64, error) {
	var f float64
	_, err := fmt.Sscanf(s, "%f", &f)
	return f, err
}
