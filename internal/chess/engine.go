package chess

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/park285/Cheese-Lichess-bridge/internal/chess/openingbook"
	"github.com/park285/Cheese-Lichess-bridge/internal/chess/uci"
	"go.uber.org/zap"
)

// StartPos is the host's token for the standard initial position.
const StartPos = "startpos"

// Engine is the part of uci.Process the generator drives.
type Engine interface {
	Send(line string) error
	NextOutput(ctx context.Context) (string, error)
}

// BookSource yields the current opening book snapshot.
type BookSource interface {
	Current() *openingbook.Book
}

type GenerateRequest struct {
	InitialFEN string
	Moves      []string
	WTime      int64
	BTime      int64
	WInc       int64
	BInc       int64
	// NodeCount > 0 selects a fixed node search instead of the clock.
	NodeCount int
}

type Source string

const (
	SourceBook   Source = "book"
	SourceEngine Source = "engine"
)

type Result struct {
	Move         string
	Source       Source
	Score        int
	HasScore     bool
	Alternatives []string
	Duration     time.Duration
}

// Generator picks a move from the opening book when possible and otherwise
// runs an engine search. It assumes a single caller at a time.
type Generator struct {
	engine Engine
	books  BookSource
	logger *zap.Logger

	randMu sync.Mutex
	rand   *rand.Rand
	picker openingbook.Picker
}

func NewGenerator(engine Engine, books BookSource, logger *zap.Logger) *Generator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Generator{
		engine: engine,
		books:  books,
		logger: logger,
		rand:   rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Generator) SetRandomSeed(seed int64) {
	g.randMu.Lock()
	g.rand = rand.New(rand.NewSource(seed))
	g.randMu.Unlock()
}

// SetPicker overrides the random choice among book candidates.
func (g *Generator) SetPicker(p openingbook.Picker) {
	g.randMu.Lock()
	g.picker = p
	g.randMu.Unlock()
}

func (g *Generator) Generate(ctx context.Context, req GenerateRequest) (Result, error) {
	start := time.Now()

	if req.InitialFEN == StartPos {
		if res, ok := g.bookMove(req.Moves); ok {
			res.Duration = time.Since(start)
			return res, nil
		}
	}

	res, err := g.search(ctx, req)
	if err != nil {
		return Result{}, err
	}
	res.Duration = time.Since(start)
	fields := []zap.Field{zap.String("move", res.Move), zap.Duration("took", res.Duration)}
	if res.HasScore {
		fields = append(fields, zap.Int("score", res.Score))
	}
	g.logger.Info("engine_move", fields...)
	return res, nil
}

func (g *Generator) bookMove(moves []string) (Result, bool) {
	if g.books == nil {
		return Result{}, false
	}
	book := g.books.Current()
	hit, ok := book.Lookup(strings.Join(moves, " "), g.chooser())
	if !ok {
		return Result{}, false
	}
	g.logger.Info("book_move", zap.String("move", hit.Move), zap.Strings("alternatives", hit.Alternatives))
	return Result{Move: hit.Move, Source: SourceBook, Alternatives: hit.Alternatives}, true
}

func (g *Generator) chooser() openingbook.Picker {
	g.randMu.Lock()
	defer g.randMu.Unlock()
	if g.picker != nil {
		return g.picker
	}
	return rand.New(rand.NewSource(g.rand.Int63()))
}

func (g *Generator) search(ctx context.Context, req GenerateRequest) (Result, error) {
	if err := g.engine.Send(uci.PositionCommand(req.InitialFEN, req.Moves)); err != nil {
		return Result{}, fmt.Errorf("send position: %w", err)
	}
	if err := g.engine.Send(uci.GoCommand(req.NodeCount, req.WTime, req.BTime, req.WInc, req.BInc)); err != nil {
		return Result{}, fmt.Errorf("send go: %w", err)
	}

	var (
		res       = Result{Source: SourceEngine}
		violation error
	)
	for {
		line, err := g.engine.NextOutput(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return Result{}, fmt.Errorf("%w: engine output ended before bestmove", uci.ErrProtocolViolation)
			}
			return Result{}, fmt.Errorf("read engine output: %w", err)
		}

		ev, perr := uci.ParseOutput(line)
		if perr != nil {
			g.logger.Warn("engine_output_invalid", zap.String("line", line), zap.Error(perr))
			if strings.HasPrefix(line, "bestmove") {
				return Result{}, perr
			}
			// keep reading so the pipe is positioned after this search's bestmove
			if violation == nil {
				violation = perr
			}
			continue
		}

		switch ev.Kind {
		case uci.EventScoreCP, uci.EventScoreMate:
			res.Score = ev.Score
			res.HasScore = true
		case uci.EventBestMove:
			if violation != nil {
				return Result{}, violation
			}
			res.Move = ev.Move
			return res, nil
		}
	}
}
