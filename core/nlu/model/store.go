package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto"
	"github.com/gobwas/glob"

	nluerrors "github.com/adalundhe/sylk-nlu/core/errors"
)

const (
	fileSuffix = ".model"

	defaultNumCounters = 1e4
	defaultMaxCost     = 1 << 28 // 256MB of encoded models
	defaultBufferItems = 64
)

// FileName returns the store file name of a model.
func FileName(hash, lang string) string {
	return hash + "." + lang + fileSuffix
}

// StoreConfig configures a Store.
type StoreConfig struct {
	Dir string

	// Ristretto configuration
	NumCounters int64
	MaxCost     int64
	BufferItems int64

	Logger *slog.Logger
}

// Store persists models as JSON files in a directory and keeps decoded models
// in memory.
type Store struct {
	dir    string
	cache  *ristretto.Cache
	logger *slog.Logger
}

// Entry describes one stored model file.
type Entry struct {
	Hash     string    `json:"hash"`
	Language string    `json:"language"`
	Path     string    `json:"path"`
	Size     int64     `json:"size"`
	ModTime  time.Time `json:"mod_time"`
}

// NewStore creates the directory if needed and returns a Store over it.
func NewStore(cfg StoreConfig) (*Store, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("model store: directory is required")
	}
	if cfg.NumCounters == 0 {
		cfg.NumCounters = defaultNumCounters
	}
	if cfg.MaxCost == 0 {
		cfg.MaxCost = defaultMaxCost
	}
	if cfg.BufferItems == 0 {
		cfg.BufferItems = defaultBufferItems
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, nluerrors.New(nluerrors.KindStorage, "create model directory", err)
	}

	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: cfg.NumCounters,
		MaxCost:     cfg.MaxCost,
		BufferItems: cfg.BufferItems,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize model cache: %w", err)
	}

	return &Store{dir: cfg.Dir, cache: cache, logger: cfg.Logger}, nil
}

// Dir returns the store directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes a successful model. The file is replaced atomically.
func (s *Store) Save(m *Model) error {
	if !m.Success || m.Artifacts == nil {
		return nluerrors.New(nluerrors.KindStorage, "refusing to save unsuccessful model", nil).
			WithContext("hash", m.Hash)
	}

	data, err := json.Marshal(m)
	if err != nil {
		return nluerrors.New(nluerrors.KindStorage, "encode model", err)
	}

	path := filepath.Join(s.dir, m.Key())
	tmp, err := os.CreateTemp(s.dir, ".tmp-*")
	if err != nil {
		return nluerrors.New(nluerrors.KindStorage, "create temp model file", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nluerrors.New(nluerrors.KindStorage, "write model", err)
	}
	if err := tmp.Close(); err != nil {
		return nluerrors.New(nluerrors.KindStorage, "close model file", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return nluerrors.New(nluerrors.KindStorage, "rename model file", err)
	}

	s.cache.Del(m.Key())
	s.logger.Debug("model saved", "hash", m.Hash, "language", m.Language, "bytes", len(data))
	return nil
}

// Exists reports whether a model file is present.
func (s *Store) Exists(hash, lang string) bool {
	_, err := os.Stat(filepath.Join(s.dir, FileName(hash, lang)))
	return err == nil
}

// Load returns the model for hash and lang, decoding it from disk on a cache
// miss. Callers must treat the returned model as read-only.
func (s *Store) Load(hash, lang string) (*Model, error) {
	key := FileName(hash, lang)
	if v, ok := s.cache.Get(key); ok {
		if m, ok := v.(*Model); ok {
			return m, nil
		}
	}

	data, err := os.ReadFile(filepath.Join(s.dir, key))
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nluerrors.New(nluerrors.KindNotFound, "model not found", err).
			WithCode(nluerrors.ErrModelNotFound.Code).
			WithContext("hash", hash).
			WithContext("language", lang)
	}
	if err != nil {
		return nil, nluerrors.New(nluerrors.KindStorage, "read model", err)
	}

	var m Model
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, nluerrors.New(nluerrors.KindStorage, "decode model", err).WithContext("file", key)
	}

	s.cache.Set(key, &m, int64(len(data)))
	return &m, nil
}

// List returns the stored models, newest first. An empty lang lists every
// language.
func (s *Store) List(lang string) ([]Entry, error) {
	matcher, err := s.matcher(lang)
	if err != nil {
		return nil, err
	}

	dirEntries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, nluerrors.New(nluerrors.KindStorage, "list models", err)
	}

	var out []Entry
	for _, de := range dirEntries {
		if de.IsDir() || !matcher.Match(de.Name()) {
			continue
		}
		hash, language, ok := parseFileName(de.Name())
		if !ok {
			continue
		}
		info, err := de.Info()
		if err != nil {
			continue
		}
		out = append(out, Entry{
			Hash:     hash,
			Language: language,
			Path:     filepath.Join(s.dir, de.Name()),
			Size:     info.Size(),
			ModTime:  info.ModTime(),
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if !out[i].ModTime.Equal(out[j].ModTime) {
			return out[i].ModTime.After(out[j].ModTime)
		}
		return out[i].Path < out[j].Path
	})
	return out, nil
}

// Prune deletes every stored model of lang whose hash is not in keep and
// returns the removed entries.
func (s *Store) Prune(lang string, keep ...string) ([]Entry, error) {
	entries, err := s.List(lang)
	if err != nil {
		return nil, err
	}

	kept := make(map[string]bool, len(keep))
	for _, h := range keep {
		kept[h] = true
	}

	var removed []Entry
	for _, e := range entries {
		if kept[e.Hash] {
			continue
		}
		if err := os.Remove(e.Path); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, nluerrors.New(nluerrors.KindStorage, "prune model", err)
		}
		s.cache.Del(FileName(e.Hash, e.Language))
		removed = append(removed, e)
	}
	if len(removed) > 0 {
		s.logger.Info("pruned models", "language", lang, "removed", len(removed))
	}
	return removed, nil
}

// Close releases the cache.
func (s *Store) Close() {
	s.cache.Close()
}

func (s *Store) matcher(lang string) (glob.Glob, error) {
	pattern := "*" + fileSuffix
	if lang != "" {
		pattern = "*." + lang + fileSuffix
	}
	g, err := glob.Compile(pattern)
	if err != nil {
		return nil, nluerrors.New(nluerrors.KindStorage, "compile model pattern", err)
	}
	return g, nil
}

func parseFileName(name string) (hash, lang string, ok bool) {
	base := strings.TrimSuffix(name, fileSuffix)
	i := strings.LastIndex(base, ".")
	if i <= 0 || i == len(base)-1 {
		return "", "", false
	}
	return base[:i], base[i+1:], true
}
