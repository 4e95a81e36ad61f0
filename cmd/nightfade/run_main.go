package main

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/tradeworks/nightfade/internal/alert"
	"github.com/tradeworks/nightfade/internal/broker"
	"github.com/tradeworks/nightfade/internal/broker/alpaca"
	"github.com/tradeworks/nightfade/internal/config"
	"github.com/tradeworks/nightfade/internal/market"
	"github.com/tradeworks/nightfade/internal/metrics"
	"github.com/tradeworks/nightfade/internal/monitor"
	"github.com/tradeworks/nightfade/internal/session"
	"github.com/tradeworks/nightfade/internal/store"
	"github.com/tradeworks/nightfade/internal/store/postgres"
)

// runSession drives a complete overnight session and prints the updated
// performance ledger once it archives cleanly.
func runSession(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Logging); err != nil {
		return err
	}

	s, err := buildStack(cfg, dryRun)
	if err != nil {
		return err
	}
	defer s.close()

	ctx := cmd.Context()
	stopMonitor := s.startMonitor(cfg.Monitor.Addr)
	defer stopMonitor()

	log.Info().
		Str("version", version).
		Bool("dry_run", dryRun).
		Bool("paper", cfg.Alpaca.Paper).
		Int("watchlist", len(s.watchlist)).
		Msg("nightfade starting")

	if err := s.orch.Run(ctx); err != nil {
		return err
	}

	perf, err := s.store.LoadPerformance()
	if err != nil {
		log.Warn().Err(err).Msg("performance ledger unreadable after session")
		return nil
	}
	fmt.Println(perf.Summary())
	return nil
}

// runOnce boots against the current checkpoint, runs a single manage
// cycle and prints the resulting status.
func runOnce(cmd *cobra.Command, args []string) error {
	dryRun, _ := cmd.Flags().GetBool("dry-run")

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := setupLogging(cfg.Logging); err != nil {
		return err
	}

	s, err := buildStack(cfg, dryRun)
	if err != nil {
		return err
	}
	defer s.close()

	if err := s.orch.RunOnce(cmd.Context()); err != nil {
		return err
	}
	fmt.Println(s.orch.Status().Format())
	return nil
}

// stack is the wired set of collaborators behind one session process.
type stack struct {
	orch      *session.Orchestrator
	store     *store.FileStore
	data      *market.Chain
	metrics   *metrics.Registry
	watchlist []string
	closers   []func() error
}

// buildStack assembles the session from config: file store, brokerage
// client, quote chain with cache, notifier and the optional Postgres
// archive. Anything that can fail does so here, at boot, not overnight.
func buildStack(cfg *config.Config, dryRun bool) (*stack, error) {
	if err := cfg.RequireCredentials(); err != nil {
		return nil, err
	}

	wl, err := config.LoadWatchlist(cfg.WatchlistPath)
	if err != nil {
		return nil, err
	}

	st, err := store.NewFileStore(cfg.StateDir)
	if err != nil {
		return nil, err
	}

	s := &stack{store: st, metrics: metrics.NewRegistry(), watchlist: wl.Symbols}

	var brk broker.Client = alpaca.NewClient(alpaca.Config{
		APIKey:    cfg.Alpaca.APIKey,
		APISecret: cfg.Alpaca.SecretKey,
		Paper:     cfg.Alpaca.Paper,
		BaseURL:   cfg.Alpaca.TradeHost,
		Timeout:   cfg.RequestTimeout(),
	})
	if dryRun {
		brk = broker.NewDryRun(brk)
	}

	var cache market.QuoteCache
	if cfg.Cache.RedisEnabled {
		rc := market.NewRedisQuoteCache(cfg.Cache.RedisAddr, cfg.Cache.RedisPassword, cfg.Cache.RedisDB)
		s.closers = append(s.closers, rc.Close)
		cache = rc
	} else {
		cache = market.NewMemoryQuoteCache()
	}

	providers := []market.Provider{
		market.NewAlpacaData(market.AlpacaConfig{
			APIKey:    cfg.Alpaca.APIKey,
			APISecret: cfg.Alpaca.SecretKey,
			BaseURL:   cfg.Alpaca.DataHost,
			Timeout:   cfg.RequestTimeout(),
		}),
	}
	if cfg.Data.FallbackEnabled {
		providers = append(providers, market.NewStooq(market.StooqConfig{Timeout: cfg.RequestTimeout()}))
	}
	data := market.NewChain(market.ChainConfig{
		RPS:      cfg.Data.ProviderRPS,
		Burst:    cfg.Data.ProviderBurst,
		QuoteTTL: cfg.QuoteTTL(),
	}, cache, providers...)
	s.data = data

	var notifier alert.Notifier
	if cfg.Alert.FCMCredentialsFile != "" {
		fcm, err := alert.NewFCMNotifier(cfg.Alert.FCMCredentialsFile, cfg.Alert.FCMTopic)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("fcm notifier: %w", err)
		}
		notifier = fcm
	} else {
		notifier = alert.NewLogNotifier()
	}
	s.closers = append(s.closers, notifier.Close)

	var archive store.TradeArchive
	if cfg.Postgres.Enabled {
		pgCfg := postgres.DefaultConfig()
		pgCfg.Enabled = true
		pgCfg.DSN = cfg.Postgres.DSN
		if cfg.Postgres.MaxOpenConns > 0 {
			pgCfg.MaxOpenConns = cfg.Postgres.MaxOpenConns
		}
		if cfg.Postgres.MaxIdleConns > 0 {
			pgCfg.MaxIdleConns = cfg.Postgres.MaxIdleConns
		}
		if cfg.Postgres.ConnTimeoutSec > 0 {
			pgCfg.QueryTimeout = time.Duration(cfg.Postgres.ConnTimeoutSec) * time.Second
		}
		mgr, err := postgres.NewManager(pgCfg)
		if err != nil {
			s.close()
			return nil, fmt.Errorf("trade archive: %w", err)
		}
		s.closers = append(s.closers, mgr.Close)
		archive = mgr.Archive()
		log.Info().Msg("postgres trade archive enabled")
	}

	orch, err := session.New(session.Deps{
		Config:    cfg,
		Watchlist: wl.Symbols,
		Store:     st,
		Broker:    brk,
		Data:      data,
		Notifier:  notifier,
		Metrics:   s.metrics,
		Archive:   archive,
		DryRun:    dryRun,
	})
	if err != nil {
		s.close()
		return nil, err
	}
	s.orch = orch
	return s, nil
}

// startMonitor serves /health, /status and /metrics when an address is
// configured. The returned func shuts the server down.
func (s *stack) startMonitor(addr string) func() {
	if addr == "" {
		return func() {}
	}
	srv := monitor.NewServer(monitor.Config{Addr: addr}, func() any { return s.orch.Status() }, s.data.ProviderStates, s.metrics.Handler())
	go func() {
		if err := srv.Start(); err != nil {
			log.Error().Err(err).Msg("monitor server failed")
		}
	}()
	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("monitor server shutdown")
		}
	}
}

func (s *stack) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil {
			log.Warn().Err(err).Msg("close failed")
		}
	}
}
