package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"command-changelog/config"
	"command-changelog/httpapi"
	"command-changelog/id"
	"command-changelog/metrics"
	"command-changelog/modmail"
	"command-changelog/nightbot"
	"command-changelog/notify"
	"command-changelog/service"
	"command-changelog/storage"
	"command-changelog/twitch"
)

func runCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Watch the command list and announce changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load failed: %w", err)
			}

			logger, err := newLogger(cfg.Log)
			if err != nil {
				return err
			}
			defer logger.Sync() //nolint:errcheck

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			return run(ctx, cfg, logger)
		},
	}
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	logger.Info("Starting command changelog",
		zap.String("channel", cfg.Twitch.Channel),
		zap.Duration("update_interval", cfg.Changelog.UpdateInterval),
		zap.Bool("dry_run", cfg.Changelog.DryRun),
		zap.Bool("modmail", cfg.ModMail.Enabled))

	if err := id.Init(cfg.IDNode); err != nil {
		return fmt.Errorf("init id generator: %w", err)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(cfg.HTTP.MetricsNamespace, reg)

	sink, err := buildSink(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var (
		recorder service.Recorder
		history  httpapi.HistoryReader
	)

	if cfg.Postgres.Enabled() {
		pool, err := pgxpool.New(ctx, cfg.Postgres.DSN())
		if err != nil {
			return fmt.Errorf("pgxpool.New: %w", err)
		}
		defer pool.Close()

		if err := storage.EnsureSchema(ctx, pool, cfg.Batch.FlushTimeout); err != nil {
			return err
		}

		// Батчер живёт дольше ctx: записи последнего цикла должны успеть попасть в базу.
		storeCtx, stopStore := context.WithCancel(context.Background())
		batcher := storage.NewBatcher(storeCtx, pool, storage.BatchConfig{
			MaxBatch:     cfg.Batch.MaxBatch,
			FlushEvery:   cfg.Batch.FlushEvery,
			ChanBuffer:   cfg.Batch.ChanBuffer,
			FlushTimeout: cfg.Batch.FlushTimeout,
		}, logger, m.DroppedRecords.Inc)
		defer func() {
			stopStore()
			<-batcher.Done()
		}()

		recorder = batcher
		history = storage.NewHistory(pool, cfg.Twitch.Channel, cfg.Batch.FlushTimeout)
		logger.Info("Change history enabled", zap.String("host", cfg.Postgres.Host), zap.String("db", cfg.Postgres.DB))
	}

	svc := service.New(service.Config{
		Channel:         cfg.Twitch.Channel,
		UpdateInterval:  cfg.Changelog.UpdateInterval,
		EditDebounce:    cfg.Changelog.EditDebounce,
		MaxChanges:      cfg.Changelog.MaxChanges,
		IgnoredCommands: cfg.Changelog.IgnoredCommands,
		FetchTimeout:    cfg.Nightbot.Timeout,
		PostTimeout:     cfg.Sink.Timeout,
	}, service.Deps{
		Store:    nightbot.NewClient(cfg.Nightbot.BaseURL, cfg.Nightbot.Timeout),
		Sink:     sink,
		Recorder: recorder,
		Metrics:  m,
		Logger:   logger,
	})

	var gateway *modmail.Gateway
	if cfg.ModMail.Enabled {
		gateway, err = modmail.NewGateway(cfg.Discord.Token, cfg.ModMail.ChannelID, cfg.Sink.Timeout, m, logger)
		if err != nil {
			return err
		}
	}

	if err := svc.Start(ctx); err != nil {
		return err
	}

	group, groupCtx := errgroup.WithContext(ctx)

	chat := twitch.NewClient(cfg.Twitch, svc, logger)
	group.Go(func() error {
		return chat.Run(groupCtx)
	})

	if gateway != nil {
		group.Go(func() error {
			return gateway.Run(groupCtx)
		})
	}

	if cfg.HTTP.Addr != "" {
		server := httpapi.New(cfg.HTTP.Addr, svc, history, reg, logger)
		group.Go(func() error {
			return server.Run(groupCtx)
		})
	}

	err = group.Wait()
	svc.Stop()

	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("service run failed: %w", err)
	}

	logger.Info("Shutting down")
	return nil
}

// buildSink собирает каналы публикации. В режиме dry-run анонсы только пишутся в лог.
func buildSink(ctx context.Context, cfg config.Config, logger *zap.Logger) (notify.Sink, error) {
	if cfg.Changelog.DryRun {
		logger.Info("Dry run: announcements go to the log only")
		return notify.NewLog(logger), nil
	}

	var sinks notify.Multi

	if cfg.Discord.Enabled() {
		discord, err := notify.NewDiscord(cfg.Discord.Token, cfg.Discord.ChannelID, cfg.Sink.Timeout)
		if err != nil {
			return nil, err
		}

		verifyCtx, cancel := context.WithTimeout(ctx, cfg.Sink.Timeout)
		name, err := discord.Verify(verifyCtx)
		cancel()
		if err != nil {
			return nil, err
		}
		logger.Info("Announcing to Discord", zap.String("channel", name))
		sinks = append(sinks, notify.NewLimited(discord, cfg.Sink.RatePerSec))
	}

	if cfg.Telegram.Enabled() {
		telegram, err := notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, cfg.Sink.Timeout)
		if err != nil {
			return nil, err
		}
		logger.Info("Announcing to Telegram", zap.Int64("chat_id", cfg.Telegram.ChatID))
		sinks = append(sinks, notify.NewLimited(telegram, cfg.Sink.RatePerSec))
	}

	if len(sinks) == 1 {
		return sinks[0], nil
	}
	return sinks, nil
}
