package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/park285/Cheese-Lichess-bridge/internal/bot"
	"github.com/park285/Cheese-Lichess-bridge/internal/chess"
	"github.com/park285/Cheese-Lichess-bridge/internal/chess/openingbook"
	"github.com/park285/Cheese-Lichess-bridge/internal/chess/uci"
	"github.com/park285/Cheese-Lichess-bridge/internal/config"
	"github.com/park285/Cheese-Lichess-bridge/internal/lichess"
	"github.com/park285/Cheese-Lichess-bridge/internal/msgcat"
	"github.com/park285/Cheese-Lichess-bridge/internal/obslog"
	"github.com/park285/Cheese-Lichess-bridge/internal/registry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

type rootOptions struct {
	configPath string
	bookPath   string
	watch      bool
	dryRun     bool
	bookMaxPly int
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:           "lichess-bridge",
		Short:         "Play on lichess with a local UCI engine",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBridge(cmd.Context(), opts)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.configPath, "config", "config.json", "configuration file (json or yaml)")
	cmd.PersistentFlags().StringVar(&opts.bookPath, "book", "", "opening book file (overrides config)")
	cmd.Flags().BoolVar(&opts.watch, "watch", false, "reload config and book when the files change")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "log host actions instead of posting them")
	cmd.Flags().IntVar(&opts.bookMaxPly, "book-max-ply", 0, "depth limit when expanding a polyglot book")

	cmd.AddCommand(newCheckConfigCommand(opts))
	return cmd
}

func newCheckConfigCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check-config",
		Short: "Validate the configuration and print it with secrets redacted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(opts.configPath)
			if err != nil {
				return err
			}
			out := cfg.Redacted()
			if opts.bookPath != "" {
				out.Book = opts.bookPath
			}
			enc := yaml.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent(2)
			if err := enc.Encode(&out); err != nil {
				return fmt.Errorf("encode config: %w", err)
			}
			return enc.Close()
		},
	}
}

func runBridge(parent context.Context, opts *rootOptions) error {
	if err := obslog.InitFromEnv(); err != nil {
		return fmt.Errorf("logger init: %w", err)
	}
	logger := obslog.L()
	defer func() { _ = logger.Sync() }()

	configs, err := config.NewStore(opts.configPath, logger)
	if err != nil {
		return err
	}
	cfg := configs.Current()

	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	polyglot := openingbook.PolyglotOptions{MaxPly: opts.bookMaxPly}
	books := openingbook.NewStore(logger)
	bookPath := func() string {
		if opts.bookPath != "" {
			return opts.bookPath
		}
		return configs.Current().Book
	}
	reloadBook := func() {
		b := books.Reload(bookPath(), openingbook.LoadOptions{Notation: configs.Current().BookNotation, Polyglot: polyglot})
		logger.Info("book_ready", zap.String("path", bookPath()), zap.Int("lines", b.Len()))
	}
	reloadBook()

	messages, err := msgcat.New(cfg.MessagesDir)
	if err != nil {
		return fmt.Errorf("messages: %w", err)
	}

	reg, closeReg, err := buildRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeReg()

	clientOpts := []lichess.Option{
		lichess.WithLogger(logger.Named("lichess")),
		lichess.WithDryRun(cfg.DryRun || opts.dryRun),
	}
	if cfg.FeedTransport == config.TransportWS {
		clientOpts = append(clientOpts, lichess.WithWebSocketFeeds(cfg.WSURL))
	}
	client := lichess.NewClient(cfg.Host, cfg.Token, clientOpts...)

	engine, err := uci.Start(ctx, cfg.Command, cfg.EngineName, logger.Named("engine"))
	if err != nil {
		return fmt.Errorf("start engine: %w", err)
	}
	defer func() { _ = engine.Close() }()

	deps := bot.Deps{
		Actions:   client,
		Feeds:     client,
		Configs:   configs,
		Books:     books,
		Registry:  reg,
		Generator: chess.NewGenerator(engine, books, logger.Named("generator")),
		Engine:    engine,
		Messages:  messages,
		Logger:    logger,
		BookPath:  opts.bookPath,
		Polyglot:  polyglot,
	}

	if opts.watch {
		go func() {
			err := config.Watch(ctx, []string{opts.configPath, bookPath()}, func(path string) {
				if path == opts.configPath {
					_, _ = configs.Reload()
					return
				}
				reloadBook()
			}, logger)
			if err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("watch_stopped", zap.Error(err))
			}
		}()
	}

	logger.Info("bridge_starting",
		zap.String("host", cfg.Host),
		zap.String("account", cfg.Account),
		zap.String("transport", cfg.FeedTransport),
		zap.Strings("command", cfg.Command),
	)
	err = bot.NewBridge(engine, deps).Run(ctx)
	if errors.Is(err, context.Canceled) {
		logger.Info("bridge_stopped")
		return nil
	}
	return err
}

// buildRegistry returns the Redis slot when redis_url is set, otherwise the
// in-process one.
func buildRegistry(ctx context.Context, cfg *config.Config, logger *zap.Logger) (registry.Registry, func(), error) {
	if cfg.RedisURL == "" {
		return registry.NewMemory(), func() {}, nil
	}
	rdb, err := registry.DialRedis(ctx, cfg.RedisURL)
	if err != nil {
		return nil, nil, err
	}
	reg := registry.NewRedis(rdb, cfg.Account, cfg.RegistryTTL(), logger.Named("registry"))
	return reg, func() { _ = rdb.Close() }, nil
}
