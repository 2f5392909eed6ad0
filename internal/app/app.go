// Package app wires configuration to adapters, watchers and lifecycle
// orchestration.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"reconagent/internal/api"
	"reconagent/internal/config"
	"reconagent/internal/dedupe"
	"reconagent/internal/infrastructure/llm"
	"reconagent/internal/infrastructure/shipment"
	"reconagent/internal/infrastructure/storage"
	"reconagent/internal/infrastructure/telegram"
	"reconagent/internal/logging"
	"reconagent/internal/ports"
	"reconagent/internal/usecase"
	"reconagent/internal/watch"
)

// Application owns the long-lived pieces: the database handle, the
// per-stage watchers, the failed-shipment sweep and the management API.
type Application struct {
	cfg         config.Config
	logger      *slog.Logger
	db          *sql.DB
	registry    *watch.Registry
	ledger      ports.Ledger
	channel     ports.Channel
	coordinator *usecase.RescheduleCoordinator
	server      *http.Server
}

// New builds a runnable application instance. The schema is created on
// startup so a fresh database works out of the box.
func New(cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	db, err := storage.Open(cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := storage.InitSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	batches := storage.NewBatchStore(db)
	deliveries := storage.NewDeliveryStore(db)
	requests := storage.NewRequestStore(db)
	directory := storage.NewDirectoryStore(db)
	ledger := storage.NewLedgerStore(db)

	channel := telegram.NewChannel(cfg.Channel.BotToken, cfg.Channel.ChatID, telegram.Options{
		APIBase:      cfg.Channel.APIBase,
		ReplyTimeout: cfg.Watcher.ReplyTimeout,
	})

	tracker := newTracker(cfg.Shipment)

	var assistant ports.Assistant
	if cfg.Gemini.APIKey != "" {
		assistant = llm.NewGeminiClient(cfg.Gemini.Endpoint, cfg.Gemini.Model, cfg.Gemini.APIKey)
	}

	registry := watch.NewRegistry()
	registry.Register(watch.NewDonorToPartnerStage(deliveries, directory))
	registry.Register(watch.NewPartnerToBeneficiaryStage(requests, directory))

	coordinator := usecase.NewRescheduleCoordinator(
		requests, deliveries, tracker, ledger, channel,
		baseLogger.With("component", "reschedule"),
	)

	detector := dedupe.NewDetector(batches)
	router := api.NewRouter(detector, coordinator, dedupePolicy(cfg.Dedupe), assistant, baseLogger.With("component", "api"))

	return &Application{
		cfg:         cfg,
		logger:      baseLogger,
		db:          db,
		registry:    registry,
		ledger:      ledger,
		channel:     channel,
		coordinator: coordinator,
		server: &http.Server{
			Addr:              ":" + cfg.HTTP.Port,
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}, nil
}

func newTracker(cfg config.ShipmentConfig) ports.ShipmentTracker {
	if cfg.Mode == "page" {
		return shipment.NewPageTracker(cfg.PageURLTemplate, cfg.PageSelector, nil)
	}
	return shipment.NewClient(cfg.BaseURL, cfg.Email, cfg.Password)
}

func dedupePolicy(cfg config.DedupeConfig) dedupe.KeyPolicy {
	switch cfg.Policy {
	case "by-field":
		return dedupe.ByField(cfg.KeyField)
	case "by-full-row":
		return dedupe.ByFullRow()
	default:
		return dedupe.Auto(cfg.KeyField)
	}
}

// Run starts the stage watchers, the failed-shipment sweep and the HTTP
// listener, then blocks until the context is cancelled and everything
// has wound down.
func (a *Application) Run(ctx context.Context) error {
	defer a.db.Close()

	var wg sync.WaitGroup

	opts := watch.Options{
		Interval:    a.cfg.Watcher.Interval,
		MaxAttempts: a.cfg.Watcher.MaxPromptAttempts,
	}
	for _, adapter := range a.registry.All() {
		watcher := watch.New(adapter, a.ledger, a.channel, opts, a.logger.With("component", "watcher"))
		wg.Add(1)
		go func() {
			defer wg.Done()
			watcher.Run(ctx)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		a.runSweep(ctx)
	}()

	errCh := make(chan error, 1)
	go func() {
		a.logger.Info("http listener started", "addr", a.server.Addr)
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
		a.logger.Error("http listener failed", "error", runErr)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := a.server.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http shutdown", "error", err)
	}

	wg.Wait()
	a.logger.Info("application stopped")
	return runErr
}

// runSweep re-checks in-progress shipments on its own, slower interval.
func (a *Application) runSweep(ctx context.Context) {
	interval := a.cfg.Watcher.SweepInterval
	if interval <= 0 {
		interval = 10 * time.Minute
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := a.coordinator.SweepFailedShipments(ctx); err != nil {
				a.logger.Error("failed-shipment sweep", "error", err)
			}
		}
	}
}
