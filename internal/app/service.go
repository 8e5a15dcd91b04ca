package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"alertbridge/internal/clock"
	"alertbridge/internal/config"
	"alertbridge/internal/grafana"
	"alertbridge/internal/ingest"
	"alertbridge/internal/logging"
	"alertbridge/internal/matrix"
	"alertbridge/internal/metrics"
	"alertbridge/internal/state"
)

const shutdownTimeout = 10 * time.Second

// Service runs the bridge: HTTP endpoint, Matrix sync, tick and reload loops.
// Params: config snapshot and its source, manager, transport, store, logger.
// Returns: long-running process lifecycle.
type Service struct {
	cfg       config.Config
	source    config.ConfigSource
	manager   *Manager
	transport *matrix.Transport
	store     state.Store
	logger    *slog.Logger
	closeLogs func()
	ready     atomic.Bool
}

// snapshotPolicyLoader reads the mention policy file named by the live config.
// Params: manager whose snapshot tracks reloaded file paths.
// Returns: policy loader honoring runtime config changes.
type snapshotPolicyLoader struct {
	manager *Manager
}

// Load reads the policy file fresh for one decision pass.
// Params: none.
// Returns: policy map or load error.
func (l *snapshotPolicyLoader) Load() (config.MentionPolicyMap, error) {
	return config.LoadMentionPolicies(l.manager.configSnapshot().Mentions.File)
}

// NewServiceFromSource loads config and wires every collaborator.
// Params: config source and clock.
// Returns: ready-to-run service or wiring error.
func NewServiceFromSource(source config.ConfigSource, clk clock.Clock) (*Service, error) {
	cfg, err := config.LoadSnapshot(source)
	if err != nil {
		return nil, err
	}

	logger, closeLogs, err := logging.New(cfg.Log)
	if err != nil {
		return nil, fmt.Errorf("logger init: %w", err)
	}

	metrics.Register()

	var store state.Store
	if cfg.Service.Mode == config.ServiceModeNATS {
		store, err = state.NewNATSStore(config.DeriveStateNATSConfig(cfg))
		if err != nil {
			closeLogs()
			return nil, fmt.Errorf("nats state init: %w", err)
		}
	} else {
		store = state.NewMemoryStore()
	}

	transport, err := matrix.New(cfg.Matrix, logger)
	if err != nil {
		_ = store.Close()
		closeLogs()
		return nil, fmt.Errorf("matrix init: %w", err)
	}

	// Typed nil must not leak into the interface: reaction handling checks
	// for a missing silencer explicitly.
	var silencer SilenceClient
	if client := grafana.NewClient(cfg.Grafana); client != nil {
		silencer = client
	}

	loader := &snapshotPolicyLoader{}
	manager := NewManager(store, transport, silencer, loader, clk, logger, cfg)
	loader.manager = manager

	service := NewService(cfg, source, manager, transport, store, logger)
	service.closeLogs = closeLogs
	return service, nil
}

// NewService wires the process lifecycle around one manager.
// Params: config snapshot, config source for reloads, and collaborators.
// Returns: initialized service.
func NewService(
	cfg config.Config,
	source config.ConfigSource,
	manager *Manager,
	transport *matrix.Transport,
	store state.Store,
	logger *slog.Logger,
) *Service {
	return &Service{
		cfg:       cfg,
		source:    source,
		manager:   manager,
		transport: transport,
		store:     store,
		logger:    logger,
	}
}

// Run starts every loop and blocks until the context is canceled or a
// termination signal arrives.
// Params: lifecycle context.
// Returns: startup error, or nil after graceful shutdown.
func (s *Service) Run(ctx context.Context) error {
	if s.closeLogs != nil {
		defer s.closeLogs()
	}
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s.transport.OnReaction(s.manager.HandleReaction)
	s.transport.OnUserMessage(s.manager.HandleUserMessage)

	server := &http.Server{
		Addr:    s.cfg.HTTP.Listen,
		Handler: s.buildMux(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.cfg.HTTP.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	var wg sync.WaitGroup
	loopCtx, cancelLoops := context.WithCancel(ctx)
	defer cancelLoops()

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.transport.RunSync(loopCtx)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		s.runTickLoop(loopCtx)
	}()

	if s.cfg.Service.ReloadEnabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.runReloadLoop(loopCtx)
		}()
	}

	s.ready.Store(true)
	s.logger.Info("service started", "name", s.cfg.Service.Name, "mode", s.cfg.Service.Mode)

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		cancelLoops()
	}

	s.ready.Store(false)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("http shutdown failed", "error", err.Error())
	}
	wg.Wait()

	if err := s.store.Close(); err != nil {
		s.logger.Error("store close failed", "error", err.Error())
	}
	s.logger.Info("service stopped")
	return runErr
}

// buildMux assembles the HTTP routes.
// Params: none.
// Returns: mux with webhook, probe, and metrics endpoints.
func (s *Service) buildMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle(s.cfg.HTTP.WebhookPath, ingest.NewHTTPHandler(s.manager, s.cfg.HTTP.MaxBodyBytes))
	mux.Handle(s.cfg.HTTP.MetricsPath, metrics.Handler())
	mux.HandleFunc(s.cfg.HTTP.HealthPath, func(writer http.ResponseWriter, _ *http.Request) {
		writer.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc(s.cfg.HTTP.ReadyPath, func(writer http.ResponseWriter, _ *http.Request) {
		if !s.ready.Load() {
			writer.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		writer.WriteHeader(http.StatusOK)
	})
	return mux
}

// runTickLoop fires the periodic evaluation at a fixed interval.
// Params: loop context.
// Returns: after context cancellation.
func (s *Service) runTickLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Service.TickInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.manager.Tick(ctx); err != nil {
				s.logger.Error("tick pass failed", "error", err.Error())
			}
		}
	}
}

// runReloadLoop re-reads the config source and applies changed snapshots.
// Params: loop context.
// Returns: after context cancellation; bad snapshots keep the previous one.
func (s *Service) runReloadLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.Service.ReloadInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			snapshot, err := config.LoadSnapshot(s.source)
			if err != nil {
				s.logger.Error("config reload failed", "error", err.Error())
				continue
			}
			s.manager.ApplyConfig(snapshot)
			s.logger.Debug("config snapshot refreshed")
		}
	}
}
