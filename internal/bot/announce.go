package bot

import (
	"context"
	"fmt"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/park285/Cheese-Lichess-bridge/internal/config"
	"github.com/park285/Cheese-Lichess-bridge/internal/lichess"
	"github.com/park285/Cheese-Lichess-bridge/internal/msgcat"
	"go.uber.org/zap"
)

const unknownNet = "(unknown net)"

type announceData struct {
	Engine  string
	Network string
	Nodes   int
}

// Announcement describes the engine setup for the game chat.
func Announcement(cat *msgcat.Catalog, cfg *config.Config) (string, error) {
	data := announceData{Engine: "(unknown engine)", Network: unknownNet}
	if len(cfg.Command) > 0 {
		data.Engine = filepath.Base(cfg.Command[0])
	}
	for _, key := range []string{"WeightsFile", "EvalFile"} {
		if v, ok := cfg.Options[key]; ok && v != nil {
			if s := fmt.Sprint(v); s != "" {
				data.Network = filepath.Base(s)
				break
			}
		}
	}
	if cfg.HasNodeCount() {
		data.Nodes = cfg.NodeCount
		return cat.Render(msgcat.KeyAnnounceNodes, data)
	}
	return cat.Render(msgcat.KeyAnnounceTimeManager, data)
}

// Deferred is a scheduled task that may be cancelled before it fires.
type Deferred struct {
	timer     *time.Timer
	cancelled atomic.Bool
}

// After runs fn once after delay unless cancelled first.
func After(delay time.Duration, fn func()) *Deferred {
	d := &Deferred{}
	d.timer = time.AfterFunc(delay, func() {
		if d.cancelled.Load() {
			return
		}
		fn()
	})
	return d
}

// Cancel reports whether the task was stopped before it ran.
func (d *Deferred) Cancel() bool {
	if d == nil {
		return false
	}
	d.cancelled.Store(true)
	return d.timer.Stop()
}

const chatTimeout = 10 * time.Second

// announce logs the setup line and posts it to both chat rooms after the
// configured delay.
func announce(actions Actions, cat *msgcat.Catalog, gameID string, cfg *config.Config, logger *zap.Logger) *Deferred {
	msg, err := Announcement(cat, cfg)
	if err != nil {
		logger.Warn("announce_render_failed", zap.String("game_id", gameID), zap.Error(err))
		return nil
	}
	logger.Info("game_announce", zap.String("game_id", gameID), zap.String("text", msg))
	return After(cfg.ChatDelay(), func() {
		ctx, cancel := context.WithTimeout(context.Background(), chatTimeout)
		defer cancel()
		for _, room := range []string{lichess.RoomPlayer, lichess.RoomSpectator} {
			if err := actions.Chat(ctx, gameID, room, msg); err != nil {
				logger.Warn("chat_failed", zap.String("game_id", gameID), zap.String("room", room), zap.Error(err))
			}
		}
	})
}
