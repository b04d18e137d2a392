package commands

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"txwizard/api"
	"txwizard/application/notification"
	"txwizard/application/session"
	"txwizard/application/submission"
	"txwizard/domain/fee"
	"txwizard/domain/wizard"
	"txwizard/infrastructure/config"
	"txwizard/infrastructure/idempotency"
	"txwizard/infrastructure/messaging"
	"txwizard/infrastructure/retry"
)

const (
	connectAttempts = 10
	shutdownTimeout = 30 * time.Second
)

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP host for wizard sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("addr") {
				cfg.HTTPAddr = addr
			}
			return serve(cmd.Context())
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8080", "HTTP listen address (overrides HTTP_ADDR)")
	return cmd
}

func serve(parent context.Context) error {
	log := logger.Named("serve")
	log.Info("starting transaction wizard service")

	ctx, cancel := context.WithCancel(parent)
	defer cancel()

	// Fees and rates are swapped atomically on SIGHUP.
	live := fee.NewLive(engine.Schedule)
	rates := config.NewRates(engine.Rates)
	catalog, err := catalogFor(engine, live)
	if err != nil {
		return err
	}
	log.Info("flow catalog initialized",
		zap.Strings("flows", catalog.Names()),
		zap.Strings("instruments", engine.Schedule.Instruments()))

	ledger, closeLedger, err := openLedger(ctx, log)
	if err != nil {
		return err
	}
	defer closeLedger()

	gateway := submission.NewIdempotentGateway(
		submission.NewSimulatedGateway(cfg.SubmitDelay, nil, logger),
		ledger,
		logger,
	)

	sessions := session.NewService(catalog, gateway, live, rates.Lookup, logger)
	sessions.SetSubmitTimeout(cfg.SubmitTimeout)
	if err := sessions.AddSink(logSink(logger.Named("events"))); err != nil {
		return err
	}

	notifier := notification.NewService(notification.LogNotifier{Logger: logger.Named("notifier")}, logger)
	if cfg.RabbitMQURL != "" {
		bus := messaging.NewRabbitMQ(cfg.RabbitMQURL, "txwizard", logger)
		if err := retry.Connect(ctx, "rabbitmq", connectAttempts, nil, log, bus.Connect); err != nil {
			return err
		}
		defer bus.Close()

		relay := messaging.NewRelay(bus, "txwizard", 0, logger)
		defer func() {
			if n := relay.Dropped(); n > 0 {
				log.Warn("events dropped by relay", zap.Int64("dropped", n))
			}
		}()
		if err := sessions.AddSink(relay.Enqueue); err != nil {
			return err
		}
		if err := notifier.Start(bus); err != nil {
			return err
		}
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay error", zap.Error(err))
			}
		}()
	} else {
		log.Warn("RABBITMQ_URL not set, notifying in process")
		err := sessions.AddSink(func(ev wizard.Event) {
			if err := notifier.HandleEvent(ctx, ev); err != nil {
				log.Error("notification failed", zap.String("event_id", ev.EventID), zap.Error(err))
			}
		})
		if err != nil {
			return err
		}
	}

	handler := api.NewWizardHandler(sessions, live, logger)
	handler.SetHistory(ledger)
	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           api.NewRouter(handler, cfg.LogDevelopment),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		log.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(signals)

	for {
		select {
		case err := <-serverErr:
			return fmt.Errorf("http server error: %w", err)
		case <-ctx.Done():
			return shutdown(server, sessions, log)
		case sig := <-signals:
			if sig == syscall.SIGHUP {
				reload(live, rates, log)
				continue
			}
			log.Info("shutting down gracefully", zap.String("signal", sig.String()))
			cancel()
			return shutdown(server, sessions, log)
		}
	}
}

// shutdown stops accepting requests, then lets started submissions reach a
// terminal phase within the same deadline.
func shutdown(server *http.Server, sessions *session.Service, log *zap.Logger) error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shut down http server: %w", err)
	}
	if err := sessions.Drain(ctx); err != nil {
		return fmt.Errorf("failed to drain submissions: %w", err)
	}
	log.Info("goodbye")
	return nil
}

// reload re-reads the engine config and swaps fees and rates in place.
// Flow definitions stay as built; asset lists need a restart.
func reload(live *fee.Live, rates *config.Rates, log *zap.Logger) {
	e, err := config.LoadEngine(cfg.EngineConfig)
	if err != nil {
		log.Error("engine reload failed, keeping current tables", zap.Error(err))
		return
	}
	live.Store(e.Schedule)
	rates.Store(e.Rates)
	log.Info("engine tables reloaded",
		zap.Strings("instruments", e.Schedule.Instruments()),
		zap.Int("rates", len(e.Rates)))
}

// openLedger connects the Postgres ledger when DATABASE_URL is set and
// falls back to memory otherwise.
func openLedger(ctx context.Context, log *zap.Logger) (idempotency.Ledger, func(), error) {
	if cfg.DatabaseURL == "" {
		log.Warn("DATABASE_URL not set, submission ledger is in memory")
		return idempotency.NewMemoryLedger(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open database: %w", err)
	}
	ping := func() error { return db.PingContext(ctx) }
	if err := retry.Connect(ctx, "postgres", connectAttempts, nil, log, ping); err != nil {
		db.Close()
		return nil, nil, err
	}

	ledger := idempotency.NewPostgresLedger(db)
	if err := ledger.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, nil, err
	}
	log.Info("connected to PostgreSQL")
	return ledger, func() { db.Close() }, nil
}

func logSink(log *zap.Logger) session.Sink {
	return func(ev wizard.Event) {
		log.Debug("wizard event",
			zap.String("wizard_id", ev.WizardID),
			zap.String("flow", ev.Flow),
			zap.String("event_type", string(ev.Type)),
			zap.Int("version", ev.Version),
			zap.String("phase", string(ev.State.Phase)),
			zap.Int("step", ev.State.StepIndex))
	}
}
