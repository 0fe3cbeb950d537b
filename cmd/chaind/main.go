// Package main provides chaind, the barter chain engine daemon: discovery,
// lifecycle coordination, and the JSON-RPC/WebSocket API, in one process.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/barterchain/chainengine/internal/chainstore"
	"github.com/barterchain/chainengine/internal/config"
	"github.com/barterchain/chainengine/internal/discovery"
	"github.com/barterchain/chainengine/internal/escrow"
	"github.com/barterchain/chainengine/internal/lifecycle"
	"github.com/barterchain/chainengine/internal/metrics"
	"github.com/barterchain/chainengine/internal/mockprovider"
	"github.com/barterchain/chainengine/internal/rpc"
	"github.com/barterchain/chainengine/internal/sweeper"
	"github.com/barterchain/chainengine/pkg/logging"
)

var (
	version = "0.1.0-dev"
	commit  = "unknown"
)

func main() {
	var (
		dataDir     = flag.String("data-dir", "~/.chainengine", "Data directory")
		configFile  = flag.String("config", "", "Config file path (default: <data-dir>/config.yaml)")
		apiAddr     = flag.String("api", "", "JSON-RPC/WebSocket listen address, overrides config")
		metricsAddr = flag.String("metrics", "", "Prometheus metrics listen address, overrides config")
		logLevel    = flag.String("log-level", "", "Log level (debug, info, warn, error), overrides config")
		showVersion = flag.Bool("version", false, "Show version and exit")
	)
	flag.Parse()

	log := logging.New(&logging.Config{Level: "info", TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	if *showVersion {
		log.Infof("chaind %s (commit: %s)", version, commit)
		os.Exit(0)
	}

	var cfg *config.Config
	var err error
	if *configFile != "" {
		cfg, err = config.LoadConfig(filepath.Dir(*configFile))
	} else {
		cfg, err = config.LoadConfig(*dataDir)
	}
	if err != nil {
		log.Fatal("failed to load config", "error", err)
	}

	if *apiAddr != "" {
		cfg.RPC.ListenAddr = *apiAddr
	}
	if *metricsAddr != "" {
		cfg.RPC.MetricsAddr = *metricsAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	cfg.Storage.DataDir = *dataDir

	log = logging.New(&logging.Config{Level: cfg.Logging.Level, TimeFormat: time.TimeOnly})
	logging.SetDefault(log)

	log.Info("config loaded", "path", config.ConfigPath(*dataDir))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := chainstore.New(chainstore.Config{DataDir: cfg.Storage.DataDir})
	if err != nil {
		log.Fatal("failed to initialize storage", "error", err)
	}
	defer store.Close()
	log.Info("storage initialized", "path", cfg.Storage.DataDir)

	// No real payment rail, carrier integration, or notification backend is
	// configured yet; the in-memory mocks stand in for the external
	// interfaces until a concrete provider is wired here.
	payments := mockprovider.NewPayments()
	shipping := mockprovider.NewShipping()
	notifier := mockprovider.NewNotifications()
	fees := mockprovider.NewFeePolicy(nil)
	distance := mockprovider.NewDistance()

	escrowOrch := escrow.New(store, payments)

	coord := lifecycle.NewCoordinator(lifecycle.Deps{
		Store:    store,
		Config:   cfg.Engine,
		Escrow:   escrowOrch,
		Shipping: shipping,
		Notifier: notifier,
		Fees:     fees,
	})
	defer coord.Close()
	log.Info("lifecycle coordinator initialized")

	disc := discovery.New(store, coord, cfg.Engine, distance)

	rpcServer := rpc.NewServer(store, coord, disc)
	if err := rpcServer.Start(cfg.RPC.ListenAddr); err != nil {
		log.Fatal("failed to start RPC server", "error", err)
	}

	metrics.ObserveCoordinator(coord)
	metrics.Serve(cfg.RPC.MetricsAddr)

	// Recovery on startup: reload every non-terminal proposal's current
	// count into the active-chains gauge so a restart doesn't show a false
	// zero until the next discovery pass.
	if pending, err := store.GetNonTerminalProposals(); err != nil {
		log.Warn("failed to load non-terminal proposals on startup", "error", err)
	} else {
		metrics.SetActiveChains(len(pending))
		log.Info("recovered in-flight proposals", "count", len(pending))
	}

	coord.OnEvent(func(e lifecycle.Event) {
		hub := rpcServer.WSHub()
		if hub == nil {
			return
		}
		p, err := store.GetProposal(e.ChainID)
		if err != nil {
			log.Warn("failed to load proposal for websocket broadcast", "chain", e.ChainID, "err", err)
			return
		}
		hub.Broadcast(p, e.ChainID, eventTypeForKind(e.Kind), map[string]interface{}{
			"chainId": e.ChainID,
			"kind":    e.Kind,
		})
	})

	sw := sweeper.New(store, coord, cfg.Engine.SweepInterval)
	go sw.Run(ctx)
	log.Info("sweeper started", "interval", cfg.Engine.SweepInterval)

	go func() {
		ticker := time.NewTicker(60 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if pending, err := store.GetNonTerminalProposals(); err == nil {
					metrics.SetActiveChains(len(pending))
					log.Info("status", "active_chains", len(pending))
				}
			}
		}
	}()

	printBanner(log, cfg)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down...")

	cancel()
	if err := rpcServer.Stop(); err != nil {
		log.Error("error stopping RPC server", "error", err)
	}
	log.Info("goodbye!")
}

func eventTypeForKind(kind string) rpc.EventType {
	switch kind {
	case "proposed":
		return rpc.EventChainProposed
	case "locked":
		return rpc.EventChainLocked
	case "race_lost":
		return rpc.EventChainRaceLost
	case "rejected":
		return rpc.EventChainRejected
	case "funded":
		return rpc.EventChainFunded
	case "green_light":
		return rpc.EventChainGreenLight
	case "completed":
		return rpc.EventChainCompleted
	case "expired":
		return rpc.EventChainExpired
	default:
		return rpc.EventType(kind)
	}
}

func printBanner(log *logging.Logger, cfg *config.Config) {
	log.Info("")
	log.Info("=================================================")
	log.Infof("  Barter Chain Engine")
	log.Infof("  Version: %s", version)
	log.Info("=================================================")
	log.Info("")
	log.Infof("  API:     http://%s", cfg.RPC.ListenAddr)
	log.Infof("  WS:      ws://%s/ws", cfg.RPC.ListenAddr)
	log.Infof("  Metrics: http://%s/metrics", cfg.RPC.MetricsAddr)
	log.Info("")
	log.Infof("  Data dir: %s", cfg.Storage.DataDir)
	log.Infof("  Max chain depth: %d | Value tolerance: %.1f%%", cfg.Engine.MaxChainDepth, cfg.Engine.ValueTolerancePercent)
	log.Info("")
	log.Info("=================================================")
	log.Info("")
}
