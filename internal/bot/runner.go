package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/park285/Cheese-Lichess-bridge/internal/chess"
	"github.com/park285/Cheese-Lichess-bridge/internal/lichess"
	"go.uber.org/zap"
)

type Colour int

const (
	ColourUnknown Colour = iota
	ColourWhite
	ColourBlack
)

func (c Colour) String() string {
	switch c {
	case ColourWhite:
		return "white"
	case ColourBlack:
		return "black"
	default:
		return "unknown"
	}
}

// ToMove derives the side to move from the number of moves played.
func ToMove(plies int) Colour {
	if plies%2 == 0 {
		return ColourWhite
	}
	return ColourBlack
}

type sessionState int

const (
	stateAwaitingFull sessionState = iota
	stateActive
	stateTerminated
)

func (s sessionState) String() string {
	switch s {
	case stateAwaitingFull:
		return "awaiting_full"
	case stateActive:
		return "active"
	default:
		return "terminated"
	}
}

// Runner follows one game feed and plays our side of it.
type Runner struct {
	deps   Deps
	gameID string
	logger *zap.Logger

	state      sessionState
	colour     Colour
	initialFEN string

	onExit func()
}

func newRunner(deps Deps, gameID, runID string, logger *zap.Logger) *Runner {
	return &Runner{
		deps:   deps,
		gameID: gameID,
		logger: logger.With(zap.String("run_id", runID)),
	}
}

// Run owns the registry slot for gameID and releases it on every exit path.
func (r *Runner) Run(ctx context.Context) error {
	defer func() {
		r.state = stateTerminated
		r.deps.Registry.Release(context.WithoutCancel(ctx), r.gameID)
		if r.onExit != nil {
			r.onExit()
		}
		r.logger.Info("session_released")
	}()

	if n := r.deps.Engine.Drain(); n > 0 {
		r.logger.Debug("engine_output_drained", zap.Int("lines", n))
	}
	if err := r.deps.Engine.Send("ucinewgame"); err != nil {
		return fmt.Errorf("ucinewgame: %w", err)
	}

	stream, err := r.deps.Feeds.OpenGame(ctx, r.gameID)
	if err != nil {
		r.logger.Warn("game_feed_open_failed", zap.Error(err))
		return err
	}
	defer stream.Close()

	for {
		line, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			r.logger.Info("game_feed_closed", zap.Error(err))
			return nil
		}
		if err := r.handleLine(ctx, line); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return err
			}
			r.abort(err)
			return err
		}
		if r.state == stateTerminated {
			return nil
		}
	}
}

func (r *Runner) abort(cause error) {
	r.logger.Error("session_abort", zap.Error(cause))
	ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
	defer cancel()
	if err := r.deps.Actions.Abort(ctx, r.gameID); err != nil {
		r.logger.Warn("abort_failed", zap.Error(err))
	}
}

func (r *Runner) handleLine(ctx context.Context, line []byte) error {
	var ev lichess.GameEvent
	if err := json.Unmarshal(line, &ev); err != nil {
		return fmt.Errorf("%w: undecodable game event: %v", ErrProtocolViolation, err)
	}
	switch ev.Type {
	case lichess.GameEventFull:
		return r.handleFull(ctx, &ev)
	case lichess.GameEventState:
		return r.handleState(ctx, &ev.GameState)
	default:
		// chatLine, opponentGone ...
		return nil
	}
}

func (r *Runner) handleFull(ctx context.Context, ev *lichess.GameEvent) error {
	if r.state != stateAwaitingFull {
		r.logger.Debug("duplicate_game_full")
	}
	variant := ""
	if ev.Variant != nil {
		variant = ev.Variant.Key
	}
	chess960 := "false"
	if variant == "chess960" {
		chess960 = "true"
	}
	if err := r.deps.Engine.Send("setoption name UCI_Chess960 value " + chess960); err != nil {
		return fmt.Errorf("set variant option: %w", err)
	}

	account := r.deps.Configs.Current().Account
	r.colour = ColourUnknown
	if ev.White != nil && strings.EqualFold(ev.White.Name, account) {
		r.colour = ColourWhite
	}
	if ev.Black != nil && strings.EqualFold(ev.Black.Name, account) {
		r.colour = ColourBlack
	}
	r.initialFEN = ev.InitialFen
	if r.initialFEN == "" {
		r.initialFEN = chess.StartPos
	}
	r.state = stateActive
	r.logger.Info("game_full",
		zap.String("variant", variant),
		zap.String("colour", r.colour.String()),
		zap.String("initial_fen", r.initialFEN),
	)

	if ev.State == nil {
		return fmt.Errorf("%w: gameFull without state", ErrProtocolViolation)
	}
	return r.handleState(ctx, ev.State)
}

func (r *Runner) handleState(ctx context.Context, st *lichess.GameState) error {
	if st.Status != "" && st.Status != lichess.StatusStarted {
		r.logger.Info("game_over", zap.String("status", st.Status))
		r.state = stateTerminated
		return nil
	}
	if r.state == stateAwaitingFull {
		return fmt.Errorf("%w: state update before gameFull", ErrProtocolViolation)
	}
	if r.colour == ColourUnknown {
		return fmt.Errorf("%w: account is neither white nor black", ErrProtocolViolation)
	}

	moves := strings.Fields(st.Moves)
	if ToMove(len(moves)) != r.colour {
		return nil
	}
	if len(moves) > 0 {
		r.logger.Info("opponent_move", zap.String("move", moves[len(moves)-1]))
	}

	cfg := r.deps.Configs.Current()
	res, err := r.deps.Generator.Generate(ctx, chess.GenerateRequest{
		InitialFEN: r.initialFEN,
		Moves:      moves,
		WTime:      st.WTime,
		BTime:      st.BTime,
		WInc:       st.WInc,
		BInc:       st.BInc,
		NodeCount:  cfg.NodeCount,
	})
	if err != nil {
		return fmt.Errorf("generate move: %w", err)
	}

	if err := r.deps.Actions.Move(ctx, r.gameID, res.Move); err != nil {
		r.logger.Warn("move_post_failed", zap.String("move", res.Move), zap.Error(err))
		return nil
	}
	r.logger.Info("move_posted", zap.String("move", res.Move), zap.String("source", string(res.Source)))
	return nil
}
