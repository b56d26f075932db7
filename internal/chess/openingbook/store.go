package openingbook

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Store publishes Book snapshots. Reload always replaces the whole book.
type Store struct {
	cur    atomic.Pointer[Book]
	logger *zap.Logger
}

func NewStore(logger *zap.Logger) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{logger: logger}
	s.cur.Store(Empty())
	return s
}

// Current never returns nil.
func (s *Store) Current() *Book { return s.cur.Load() }

// Set publishes b (nil publishes an empty book).
func (s *Store) Set(b *Book) {
	if b == nil {
		b = Empty()
	}
	s.cur.Store(b)
}

// Reload loads path and publishes the result. A missing or illegal file
// publishes an empty book.
func (s *Store) Reload(path string, opts LoadOptions) *Book {
	if path == "" {
		s.Set(nil)
		return s.Current()
	}
	b, err := Load(path, opts)
	if err != nil {
		s.logger.Warn("book_load_failed", zap.String("path", path), zap.Error(err))
		b = Empty()
	} else {
		s.logger.Debug("book_loaded", zap.String("path", path), zap.Int("lines", b.Len()))
	}
	s.Set(b)
	return b
}
