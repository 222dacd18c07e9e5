// SPDX-License-Identifier: MIT

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jonboulle/clockwork"
	"golang.org/x/sync/errgroup"

	"github.com/racecarr/racecarr/internal/api"
	"github.com/racecarr/racecarr/internal/config"
	"github.com/racecarr/racecarr/internal/downloader"
	"github.com/racecarr/racecarr/internal/f1api"
	"github.com/racecarr/racecarr/internal/log"
	"github.com/racecarr/racecarr/internal/newznab"
	"github.com/racecarr/racecarr/internal/notify"
	"github.com/racecarr/racecarr/internal/schedule"
	"github.com/racecarr/racecarr/internal/scheduler"
	"github.com/racecarr/racecarr/internal/search"
	"github.com/racecarr/racecarr/internal/service"
	"github.com/racecarr/racecarr/internal/store"
	"github.com/racecarr/racecarr/internal/version"
)

func main() {
	showVersion := flag.Bool("version", false, "print version and exit")
	configPath := flag.String("config", "", "path to config file (YAML)")
	flag.Parse()

	if *showVersion {
		fmt.Printf("racecarrd %s (commit: %s, built: %s)\n", version.Version, version.Commit, version.Date)
		os.Exit(0)
	}

	// Safe defaults until the config is loaded.
	log.Configure(log.Config{Service: "racecarr", Version: version.Version})
	logger := log.WithComponent("daemon")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "config.load_failed").
			Str("config_path", *configPath).
			Msg("failed to load configuration")
	}

	log.Configure(log.Config{
		Level:   cfg.LogLevel,
		File:    cfg.LogFile,
		Service: "racecarr",
		Version: version.Version,
	})
	logger = log.WithComponent("daemon")
	logger.Info().
		Str("event", "daemon.starting").
		Str("listen", cfg.Listen).
		Str("database", cfg.DatabaseFile).
		Msg("starting racecarrd")

	if err := run(ctx, cfg); err != nil {
		logger.Fatal().
			Err(err).
			Str("event", "daemon.failed").
			Msg("daemon exited with error")
	}
	logger.Info().Str("event", "daemon.stopped").Msg("shutdown complete")
}

func run(ctx context.Context, cfg config.AppConfig) error {
	logger := log.WithComponent("daemon")
	clock := clockwork.NewRealClock()

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(cfg.DatabaseFile, clock)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer func() {
		if cerr := st.Close(); cerr != nil {
			logger.Warn().Err(cerr).Str("event", "store.close_failed").Msg("store close failed")
		}
	}()

	// The stored log level wins over the boot config once the store is open.
	if settings, serr := st.Settings(ctx); serr == nil && settings.LogLevel != "" {
		log.SetLevel(settings.LogLevel)
	}

	ixClient := newznab.NewClient()
	searcher := search.NewSearcher(ixClient, st)
	downloads := downloader.NewDispatcher(clock)
	notifier := notify.NewDispatcher(st)
	sched := scheduler.New(st, searcher, downloads, notifier, clock)
	importer := schedule.NewImporter(f1api.New(cfg.F1APIBase), st)
	svc := service.New(st, importer, searcher, sched, ixClient, downloads, notifier, clock)

	srv := &http.Server{
		Addr:              cfg.Listen,
		Handler:           api.NewServer(svc, st, cfg.LogFile).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gctx)
	})

	g.Go(func() error {
		logger.Info().
			Str("event", "http.listening").
			Str("addr", cfg.Listen).
			Msg("operator surface up")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		grace := time.Duration(cfg.ShutdownGraceS) * time.Second
		shutCtx, cancel := context.WithTimeout(context.Background(), grace)
		defer cancel()
		logger.Info().
			Str("event", "daemon.shutdown").
			Dur("grace", grace).
			Msg("shutting down")
		return srv.Shutdown(shutCtx)
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}
