package bot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/park285/Cheese-Lichess-bridge/internal/admission"
	"github.com/park285/Cheese-Lichess-bridge/internal/lichess"
	"github.com/park285/Cheese-Lichess-bridge/internal/msgcat"
	"go.uber.org/zap"
)

// Dispatcher consumes the lobby feed. The feed is not reopened once it ends.
type Dispatcher struct {
	deps     Deps
	logger   *zap.Logger
	messages *msgcat.Catalog

	runners sync.WaitGroup
	newID   func() string
}

func NewDispatcher(deps Deps) *Dispatcher {
	messages := deps.Messages
	if messages == nil {
		messages = msgcat.Default()
	}
	return &Dispatcher{
		deps:     deps,
		logger:   deps.logger(),
		messages: messages,
		newID:    func() string { return uuid.NewString() },
	}
}

// Run reads the lobby feed until it closes or ctx is done.
func (d *Dispatcher) Run(ctx context.Context) error {
	stream, err := d.deps.Feeds.OpenEvents(ctx)
	if err != nil {
		return fmt.Errorf("open lobby feed: %w", err)
	}
	defer stream.Close()

	for {
		line, err := stream.Next()
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			d.logger.Warn("lobby_feed_closed", zap.Error(err))
			if errors.Is(err, lichess.ErrFeedClosed) {
				return err
			}
			return fmt.Errorf("%w: %v", lichess.ErrFeedClosed, err)
		}
		d.Handle(ctx, line)
	}
}

// Wait blocks until every spawned runner has exited.
func (d *Dispatcher) Wait() { d.runners.Wait() }

// Handle dispatches one lobby line by its type.
func (d *Dispatcher) Handle(ctx context.Context, line []byte) {
	var ev lichess.Event
	if err := json.Unmarshal(line, &ev); err != nil {
		d.logger.Warn("lobby_line_undecodable", zap.ByteString("line", line), zap.Error(err))
		return
	}
	switch ev.Type {
	case lichess.EventChallenge:
		d.handleChallenge(ctx, ev.Challenge)
	case lichess.EventGameStart:
		if ev.Game == nil || ev.Game.ID == "" {
			d.logger.Warn("game_start_without_id", zap.ByteString("line", line))
			return
		}
		d.handleGameStart(ctx, ev.Game.ID)
	default:
		d.logger.Debug("lobby_event_ignored", zap.String("type", ev.Type))
	}
}

func (d *Dispatcher) handleChallenge(ctx context.Context, ch *lichess.Challenge) {
	cfg := d.deps.reload(true)
	occupied := d.deps.Registry.IsOccupied(ctx)

	dec := admission.Decide(ch, cfg, occupied, d.logger)
	if ch == nil || ch.ID == "" {
		// nothing to decline
		return
	}
	log := d.logger.With(zap.String("challenge_id", ch.ID))
	if dec.Accept {
		log.Info("challenge_accepting")
		if err := d.deps.Actions.Accept(ctx, ch.ID); err != nil {
			log.Warn("challenge_accept_failed", zap.Error(err))
		}
		return
	}
	reasons := make([]string, 0, len(dec.Reasons))
	for _, r := range dec.Reasons {
		reasons = append(reasons, string(r))
	}
	log.Info("challenge_declining", zap.Strings("reasons", reasons))
	if err := d.deps.Actions.Decline(ctx, ch.ID); err != nil {
		log.Warn("challenge_decline_failed", zap.Error(err))
	}
}

func (d *Dispatcher) handleGameStart(ctx context.Context, gameID string) {
	log := d.logger.With(zap.String("game_id", gameID))
	if !d.deps.Registry.TryAcquire(ctx, gameID) {
		log.Warn("game_start_while_busy", zap.String("active", d.deps.Registry.Current(ctx)))
		if err := d.deps.Actions.Abort(ctx, gameID); err != nil {
			log.Warn("abort_failed", zap.Error(err))
		}
		return
	}

	cfg := d.deps.reload(true)
	pending := announce(d.deps.Actions, d.messages, gameID, cfg, log)

	r := newRunner(d.deps, gameID, d.newID(), log)
	r.onExit = func() { pending.Cancel() }
	d.runners.Add(1)
	go func() {
		defer d.runners.Done()
		if err := r.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
			log.Warn("session_ended_with_error", zap.Error(err))
		}
	}()
}
