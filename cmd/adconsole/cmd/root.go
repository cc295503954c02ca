// Package cmd holds the adconsole command tree.
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"adconsole/internal/api"
	"adconsole/internal/cache"
	"adconsole/internal/config"
	"adconsole/internal/executor"
	"adconsole/internal/history"
	"adconsole/internal/importer"
	"adconsole/internal/library"
	"adconsole/internal/notify"
	"adconsole/internal/progress"
	"adconsole/internal/ratelimit"
	"adconsole/internal/state"
)

var rootCmd = &cobra.Command{
	Use:   "adconsole",
	Short: "adconsole - marketing insights console",
	Long:  color.CyanString("adconsole") + "\nRun prompts, browse the action history, and import ad media from the terminal.",
	Run: func(cmd *cobra.Command, args []string) {
		_ = cmd.Help()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.AddCommand(execCmd)
	rootCmd.AddCommand(promptsCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(importCmd)
}

// app bundles everything a subcommand needs. Optional pieces (redis limiter,
// cache, notifier) stay nil when unconfigured.
type app struct {
	cfg      *config.Config
	api      *api.Client
	state    *state.Hub
	grid     *library.Grid
	strip    progress.Strip
	executor *executor.Executor
	viewer   *history.Viewer
	importer *importer.Orchestrator
	store    *cache.Store
	rdb      *redis.Client

	view *terminalView
	host *terminalHost

	// finished receives one snapshot per terminal stream.
	finished chan executor.Streaming
}

func buildApp(ctx context.Context) (*app, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	setupLogger(cfg.Log.Level)

	a := &app{cfg: cfg, state: state.New(log.Logger)}
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	a.api = api.New(api.Config{
		BaseURL:        cfg.Server.BaseURL,
		AuthToken:      cfg.Server.AuthToken,
		UnaryTimeout:   cfg.HTTP.UnaryTimeout,
		RateLimitHints: cfg.Poll.RateLimitHints,
		Logger:         log.Logger,
	})

	a.grid = library.New(library.Config{
		Layout: &terminalLayout{},
		Logger: log.Logger,
	})
	a.strip = progress.NewTerminal(progress.Config{
		Out:         os.Stdout,
		AutoDismiss: cfg.Poll.ProgressDismiss,
		Logger:      log.Logger,
	})

	var gate executor.Gate
	if cfg.Redis.Addr != "" {
		a.rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := a.rdb.Ping(ctx).Err(); err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect redis: %w", err)
		}
		closers = append(closers, func() { _ = a.rdb.Close() })
		gate = ratelimit.New(a.rdb, cfg.Redis.ExecPerHour)
	}

	var actionCache history.ActionCache
	if cfg.Cache.Enabled {
		store, err := cache.Open(ctx, cfg.Cache.Driver, cfg.Cache.DSN, cfg.Cache.AutoMigrate, "migrations")
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("open cache: %w", err)
		}
		closers = append(closers, func() { _ = store.Close() })
		a.store = store
		actionCache = store
	}

	var notifier importer.Notifier
	if cfg.Notify.BotToken != "" {
		tg, err := notify.NewTelegram(cfg.Notify.BotToken, cfg.Notify.ChatID)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("create notifier: %w", err)
		}
		notifier = tg
	}

	a.view = newTerminalView(os.Stdout)
	a.host = newTerminalHost(os.Stdout)
	a.finished = make(chan executor.Streaming, 16)
	a.executor = executor.New(executor.Config{
		API:      a.api,
		State:    a.state,
		Host:     a.host,
		Gate:     gate,
		Operator: cfg.Server.Operator,
		OnFinished: func(s executor.Streaming) {
			if a.viewer != nil {
				a.viewer.ScheduleRefreshAfterStream()
			}
			select {
			case a.finished <- s:
			default:
			}
		},
		Logger: log.Logger,
	})
	a.viewer = history.New(history.Config{
		API:          a.api,
		State:        a.state,
		View:         a.view,
		Streams:      a.executor,
		Cache:        actionCache,
		RefreshDelay: cfg.Poll.PostStreamRefresh,
		Logger:       log.Logger,
	})
	a.importer = importer.New(importer.Config{
		API:          a.api,
		Grid:         a.grid,
		Strip:        a.strip,
		Notifier:     notifier,
		PollInterval: cfg.Poll.Interval,
		Logger:       log.Logger,
	})

	if cfg.MetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{
			Addr:              cfg.MetricsAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Error().Err(err).Msg("metrics server failed")
			}
		}()
		closers = append(closers, func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		})
		log.Info().Str("addr", cfg.MetricsAddr).Msg("metrics server started")
	}

	return a, cleanup, nil
}

// signalContext is the lifetime of one subcommand run.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func setupLogger(level string) {
	zerolog.TimeFieldFormat = time.RFC3339
	zerolog.SetGlobalLevel(parseLogLevel(level))
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func parseLogLevel(level string) zerolog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return zerolog.DebugLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}
