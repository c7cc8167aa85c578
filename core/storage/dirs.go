// Package storage resolves the directories sylk-nlu reads configuration from
// and writes models to, following XDG conventions where the platform has them.
package storage

import (
	"os"
	"path/filepath"
	"sync"
)

// AppName names every directory the tool owns.
const AppName = "sylk-nlu"

// Dirs holds the per-user directories.
type Dirs struct {
	Config string // config.yaml
	Data   string // trained models
	Cache  string // regenerable artifacts
	State  string // logs
}

// ProjectDirs holds the project-local directories.
type ProjectDirs struct {
	Root   string // .sylk-nlu/
	Config string // .sylk-nlu/config.yaml (committed)
	Local  string // .sylk-nlu/local/ (gitignored)
}

var (
	globalDirs     *Dirs
	globalDirsOnce sync.Once
	globalDirsErr  error
)

// ResolveDirs returns platform-appropriate directories.
// Results are cached after first call.
func ResolveDirs() (*Dirs, error) {
	globalDirsOnce.Do(func() {
		globalDirs, globalDirsErr = resolveDirsImpl()
	})
	return globalDirs, globalDirsErr
}

func resolveDirsImpl() (*Dirs, error) {
	return &Dirs{
		Config: resolveDir("XDG_CONFIG_HOME", platformConfigDefault()),
		Data:   resolveDir("XDG_DATA_HOME", platformDataDefault()),
		Cache:  resolveDir("XDG_CACHE_HOME", platformCacheDefault()),
		State:  resolveDir("XDG_STATE_HOME", platformStateDefault()),
	}, nil
}

func resolveDir(envVar, fallback string) string {
	if dir := os.Getenv(envVar); dir != "" {
		return filepath.Join(dir, AppName)
	}
	return fallback
}

// DirsAt roots every directory under root. Used for --home and tests.
func DirsAt(root string) *Dirs {
	return &Dirs{
		Config: filepath.Join(root, "config"),
		Data:   filepath.Join(root, "data"),
		Cache:  filepath.Join(root, "cache"),
		State:  filepath.Join(root, "state"),
	}
}

// ResolveProjectDirs returns project-local directories for the given project root.
func ResolveProjectDirs(projectRoot string) *ProjectDirs {
	root := filepath.Join(projectRoot, "."+AppName)
	return &ProjectDirs{
		Root:   root,
		Config: filepath.Join(root, "config.yaml"),
		Local:  filepath.Join(root, "local"),
	}
}

// EnsureDir creates a directory with the specified permissions if it doesn't exist.
func EnsureDir(path string, perm os.FileMode) error {
	if perm == 0 {
		perm = 0o700
	}
	return os.MkdirAll(path, perm)
}

// ConfigDir returns the config subdirectory path.
func (d *Dirs) ConfigDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Config}, subpath...)...)
}

// DataDir returns the data subdirectory path.
func (d *Dirs) DataDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Data}, subpath...)...)
}

// CacheDir returns the cache subdirectory path.
func (d *Dirs) CacheDir(subpath ...string) string {
	return filepath.Join(append([]string{d.Cache}, subpath...)...)
}

// StateDir returns the state subdirectory path.
func (d *Dirs) StateDir(subpath ...string) string {
	return filepath.Join(append([]string{d.State}, subpath...)...)
}

// ModelsDir is where trained models are stored.
func (d *Dirs) ModelsDir() string {
	return d.DataDir("models")
}

// LogDir returns the log directory.
func (d *Dirs) LogDir() string {
	return d.StateDir("logs")
}

// EnsureAll creates all standard directories.
func (d *Dirs) EnsureAll() error {
	for _, dir := range []string{d.Config, d.Data, d.ModelsDir(), d.Cache, d.State, d.LogDir()} {
		if err := EnsureDir(dir, 0o755); err != nil {
			return err
		}
	}
	return nil
}
