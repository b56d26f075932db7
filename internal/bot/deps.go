// Package bot drives the lobby and game feeds: challenge admission, session
// start, and the per-game runner that asks the engine for moves.
package bot

import (
	"context"
	"errors"

	"github.com/park285/Cheese-Lichess-bridge/internal/chess"
	"github.com/park285/Cheese-Lichess-bridge/internal/chess/openingbook"
	"github.com/park285/Cheese-Lichess-bridge/internal/config"
	"github.com/park285/Cheese-Lichess-bridge/internal/lichess"
	"github.com/park285/Cheese-Lichess-bridge/internal/msgcat"
	"github.com/park285/Cheese-Lichess-bridge/internal/registry"
	"go.uber.org/zap"
)

// ErrProtocolViolation marks a game feed that cannot be followed: a state
// update before the full snapshot, an unresolved colour, or undecodable JSON.
var ErrProtocolViolation = errors.New("session protocol violation")

// Actions are the host's one-shot endpoints.
type Actions interface {
	Accept(ctx context.Context, challengeID string) error
	Decline(ctx context.Context, challengeID string) error
	Move(ctx context.Context, gameID, move string) error
	Abort(ctx context.Context, gameID string) error
	Chat(ctx context.Context, gameID, room, text string) error
}

type Feeds interface {
	OpenEvents(ctx context.Context) (lichess.Stream, error)
	OpenGame(ctx context.Context, gameID string) (lichess.Stream, error)
}

type MoveGenerator interface {
	Generate(ctx context.Context, req chess.GenerateRequest) (chess.Result, error)
}

// EngineControl is the session-level access to the engine. Only the active
// runner writes to it.
type EngineControl interface {
	Send(line string) error
	Drain() int
}

type ConfigSource interface {
	Current() *config.Config
	Reload() (*config.Config, error)
}

type BookReloader interface {
	Reload(path string, opts openingbook.LoadOptions) *openingbook.Book
}

type Deps struct {
	Actions   Actions
	Feeds     Feeds
	Configs   ConfigSource
	Books     BookReloader
	Registry  registry.Registry
	Generator MoveGenerator
	Engine    EngineControl
	Messages  *msgcat.Catalog
	Logger    *zap.Logger

	// BookPath overrides the configured book file when set.
	BookPath string
	// Polyglot limits for .bin books.
	Polyglot openingbook.PolyglotOptions
}

func (d *Deps) logger() *zap.Logger {
	if d.Logger == nil {
		return zap.NewNop()
	}
	return d.Logger
}

// reload re-reads configuration and book; a bad config file keeps the last
// good snapshot.
func (d *Deps) reload(withBook bool) *config.Config {
	cfg, _ := d.Configs.Reload()
	if withBook && d.Books != nil {
		path := cfg.Book
		if d.BookPath != "" {
			path = d.BookPath
		}
		d.Books.Reload(path, openingbook.LoadOptions{Notation: cfg.BookNotation, Polyglot: d.Polyglot})
	}
	return cfg
}
