// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/holomush/gatekeeper/internal/admission"
	"github.com/holomush/gatekeeper/internal/bridge"
	"github.com/holomush/gatekeeper/internal/control"
	"github.com/holomush/gatekeeper/internal/locale"
	"github.com/holomush/gatekeeper/internal/logging"
	"github.com/holomush/gatekeeper/internal/observability"
	"github.com/holomush/gatekeeper/pkg/errutil"
)

// NewServeCmd creates the serve subcommand.
func NewServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the admission service",
		Long: `Run the admission pipeline with its host bridge, control socket and
metrics endpoint. SIGINT, SIGTERM or "gatekeeper ctl shutdown" engage lockdown,
save every active player and then stop the process.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(configFile, cmd.Flags())
			if err != nil {
				return err
			}
			return runServeWithDeps(cmd.Context(), cfg, cmd, nil)
		},
	}

	registerServeFlags(cmd.Flags())
	return cmd
}

// runServeWithDeps runs the service until a signal, a control shutdown
// request, a server failure or ctx cancellation. If deps is nil, default
// implementations are used.
func runServeWithDeps(ctx context.Context, cfg *Config, cmd *cobra.Command, deps *ServeDeps) error {
	if deps == nil {
		deps = &ServeDeps{}
	}
	if deps.StoreFactory == nil {
		deps.StoreFactory = openStore
	}
	if deps.OracleFactory == nil {
		deps.OracleFactory = newOracle
	}

	if err := cfg.Validate(); err != nil {
		return err
	}

	level, err := logging.ParseLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := logging.SetDefault("gatekeeper", version, cfg.LogFormat, level)

	logger.Info("starting gatekeeper",
		"instance", cfg.Instance,
		"listen_addr", cfg.ListenAddr,
		"liveness", cfg.Liveness.Kind,
		"lan_mode", cfg.LANMode,
		"relaxed_duplicates", cfg.RelaxedDuplicates,
	)

	catalog, err := locale.Load(cfg.DefaultLanguage)
	if err != nil {
		return oops.With("operation", "load message catalog").Wrap(err)
	}

	store, err := deps.StoreFactory(ctx, cfg.Secrets.DatabaseURL)
	if err != nil {
		return oops.Code("DB_CONNECT_FAILED").With("operation", "connect to database").Wrap(err)
	}
	defer store.Close()
	logger.Info("connected to database")

	live := bridge.NewLiveSet()
	oracle, err := deps.OracleFactory(ctx, cfg, live)
	if err != nil {
		return oops.With("operation", "create liveness oracle").Wrap(err)
	}
	defer func() {
		if closeErr := oracle.Close(); closeErr != nil {
			errutil.LogError(logger, "failed to close liveness oracle", closeErr)
		}
	}()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	state := admission.NewState()

	var (
		obsServer *observability.Server
		observer  admission.Observer
		requests  bridge.RequestObserver
	)
	if cfg.MetricsAddr != "" {
		obsServer = observability.NewServer(cfg.MetricsAddr, readiness(state, store), logger.With("component", "observability"))
		observer = obsServer.Metrics()
		requests = obsServer.Metrics()
	}

	identities := bridge.NewIdentityCache()
	disconnects := bridge.NewDisconnectQueue()

	promoter, err := admission.NewPromoter(admission.Config{
		State:             state,
		Database:          store,
		Players:           store,
		Identities:        identities,
		Disconnector:      disconnects,
		Messages:          catalog,
		Observer:          observer,
		Logger:            logger,
		RelaxedDuplicates: cfg.RelaxedDuplicates,
		LANLicense:        cfg.lanLicense(),
		SaveTimeout:       cfg.SaveTimeout,
	})
	if err != nil {
		return err
	}

	dispatcher := admission.NewDispatcher(ctx)

	bridgeServer, err := bridge.NewServer(bridge.Config{
		Addr:        cfg.ListenAddr,
		Promoter:    promoter,
		Dispatcher:  dispatcher,
		Messages:    catalog,
		Identities:  identities,
		Disconnects: disconnects,
		Live:        live,
		Observer:    requests,
		Logger:      logger.With("component", "bridge"),
	})
	if err != nil {
		return err
	}
	bridgeErrCh, err := bridgeServer.Start(ctx)
	if err != nil {
		return err
	}

	shutdownRequests := make(chan string, 1)
	controlServer := control.NewServer(cfg.Instance, promoter, func(reason string) {
		select {
		case shutdownRequests <- reason:
		default:
		}
	})
	if err := controlServer.Start(); err != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer stopCancel()
		_ = bridgeServer.Stop(stopCtx)
		return oops.With("operation", "start control socket").Wrap(err)
	}

	var obsErrCh <-chan error
	if obsServer != nil {
		obsErrCh, err = obsServer.Start()
		if err != nil {
			stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer stopCancel()
			_ = bridgeServer.Stop(stopCtx)
			_ = controlServer.Stop(stopCtx)
			return oops.With("operation", "start observability server").Wrap(err)
		}
	}

	var background sync.WaitGroup
	background.Add(1)
	go func() {
		defer background.Done()
		state.Connecting.RunSweeper(ctx, oracle, cfg.SweepInterval, observer)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	cmd.Println("gatekeeper started")
	logger.Info("gatekeeper ready", "bridge_addr", bridgeServer.Addr())

	var (
		reason   string
		serveErr error
	)
	select {
	case sig := <-sigChan:
		logger.Info("received shutdown signal", "signal", sig.String())
	case reason = <-shutdownRequests:
		logger.Info("shutdown requested over control socket", "reason", reason)
	case err, ok := <-bridgeErrCh:
		if ok && err != nil {
			serveErr = oops.With("server", "bridge").Wrap(err)
		}
	case err, ok := <-obsErrCh:
		if ok && err != nil {
			serveErr = oops.With("server", "observability").Wrap(err)
		}
	case <-ctx.Done():
		logger.Info("context cancelled, shutting down")
	}

	if reason == "" {
		reason = cfg.LockdownMessage
	}
	if reason == "" {
		reason = catalog.Message(cfg.DefaultLanguage, locale.KeyServerRestarting)
	}

	shutdownTimeout := cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = defaultShutdownTimeout
	}
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	select {
	case summary := <-promoter.Shutdown(shutdownCtx, reason):
		logger.Info("saved players on shutdown", "saved", summary.Saved, "failed", summary.Failed)
	case <-shutdownCtx.Done():
		logger.Warn("shutdown save did not finish in time", "timeout", shutdownTimeout)
	}

	if err := dispatcher.Close(shutdownCtx); err != nil {
		errutil.LogError(logger, "dispatcher did not drain", err)
	}
	waitForDrain(shutdownCtx, disconnects, cfg.DrainGrace)

	cancel()
	background.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer stopCancel()
	if err := bridgeServer.Stop(stopCtx); err != nil {
		errutil.LogError(logger, "error stopping bridge server", err)
	}
	if err := controlServer.Stop(stopCtx); err != nil {
		errutil.LogError(logger, "error stopping control socket", err)
	}
	if obsServer != nil {
		if err := obsServer.Stop(stopCtx); err != nil {
			errutil.LogError(logger, "error stopping observability server", err)
		}
	}

	logger.Info("shutdown complete")
	return serveErr
}

// readiness reports ready while admission is open and the database answers.
func readiness(state *admission.State, store Store) observability.ReadinessCheck {
	return func(ctx context.Context) error {
		if rej := state.Lockdown.Check(); rej != nil {
			return rej
		}
		if err := store.Ping(ctx); err != nil {
			return oops.Code("DB_UNAVAILABLE").With("operation", "readiness ping").Wrap(err)
		}
		return nil
	}
}

// waitForDrain gives the host up to grace to poll the final disconnects.
func waitForDrain(ctx context.Context, q *bridge.DisconnectQueue, grace time.Duration) {
	if grace <= 0 || q.Len() == 0 {
		return
	}
	deadline := time.NewTimer(grace)
	defer deadline.Stop()
	tick := time.NewTicker(50 * time.Millisecond)
	defer tick.Stop()
	for q.Len() > 0 {
		select {
		case <-ctx.Done():
			return
		case <-deadline.C:
			slog.Warn("host did not collect all disconnects", "pending", q.Len())
			return
		case <-tick.C:
		}
	}
}
