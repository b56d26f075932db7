package bot

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// EngineSetup is what the bridge needs to prepare the engine once at start.
type EngineSetup interface {
	Handshake(ctx context.Context) error
	ApplyOptions(options map[string]any) error
	Send(line string) error
}

// Bridge prepares the engine and then runs the lobby dispatcher.
type Bridge struct {
	engine     EngineSetup
	dispatcher *Dispatcher
	configs    ConfigSource
	logger     *zap.Logger
}

func NewBridge(engine EngineSetup, deps Deps) *Bridge {
	return &Bridge{
		engine:     engine,
		dispatcher: NewDispatcher(deps),
		configs:    deps.Configs,
		logger:     deps.logger(),
	}
}

func (b *Bridge) Dispatcher() *Dispatcher { return b.dispatcher }

// Run returns when the lobby feed closes or ctx is done. Running sessions
// are waited for before returning.
func (b *Bridge) Run(ctx context.Context) error {
	if err := b.engine.Handshake(ctx); err != nil {
		return fmt.Errorf("engine handshake: %w", err)
	}
	cfg := b.configs.Current()
	if err := b.engine.ApplyOptions(cfg.Options); err != nil {
		return fmt.Errorf("engine options: %w", err)
	}
	// 네트워크 로딩을 미리 유도
	if err := b.engine.Send("ucinewgame"); err != nil {
		return fmt.Errorf("ucinewgame: %w", err)
	}
	b.logger.Info("bridge_ready", zap.String("account", cfg.Account), zap.Int("options", len(cfg.Options)))

	err := b.dispatcher.Run(ctx)
	b.dispatcher.Wait()
	return err
}
