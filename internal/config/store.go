package config

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Store publishes configuration snapshots. Readers call Current once per use and
// work on that pointer; Reload swaps in a freshly parsed object.
type Store struct {
	path   string
	cur    atomic.Pointer[Config]
	logger *zap.Logger
}

// NewStore performs the initial load. Its error is fatal for the caller.
func NewStore(path string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	cfg, err := Load(path)
	if err != nil {
		return nil, err
	}
	s := &Store{path: path, logger: logger}
	s.cur.Store(cfg)
	return s, nil
}

// NewStaticStore wraps a fixed snapshot; Reload is a no-op.
func NewStaticStore(cfg *Config) *Store {
	s := &Store{logger: zap.NewNop()}
	s.cur.Store(cfg)
	return s
}

func (s *Store) Path() string { return s.path }

func (s *Store) Current() *Config { return s.cur.Load() }

// Reload re-reads the file. On failure the previous snapshot stays published.
func (s *Store) Reload() (*Config, error) {
	if s.path == "" {
		return s.Current(), nil
	}
	cfg, err := Load(s.path)
	if err != nil {
		s.logger.Error("config_reload_failed", zap.String("path", s.path), zap.Error(err))
		return s.Current(), err
	}
	s.cur.Store(cfg)
	return cfg, nil
}
