package main

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"

	"github.com/example/roadside-dispatch/internal/booking"
	"github.com/example/roadside-dispatch/internal/config"
	"github.com/example/roadside-dispatch/internal/dispatch"
	"github.com/example/roadside-dispatch/internal/distance"
	"github.com/example/roadside-dispatch/internal/finance"
	"github.com/example/roadside-dispatch/internal/geo"
	httpapi "github.com/example/roadside-dispatch/internal/http"
	"github.com/example/roadside-dispatch/internal/ingest"
	"github.com/example/roadside-dispatch/internal/logging"
	"github.com/example/roadside-dispatch/internal/payments"
	"github.com/example/roadside-dispatch/internal/pricing"
	"github.com/example/roadside-dispatch/internal/rank"
	"github.com/example/roadside-dispatch/internal/settlement"
	"github.com/example/roadside-dispatch/internal/storage"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel)
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	var geoIndex geo.Index
	if cfg.RedisAddr != "" {
		geoIndex = geo.NewRedisIndex(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisGeoKey, cfg.GeoRadiusKm)
	} else {
		geoIndex = geo.NewMemoryIndex()
	}

	var store storage.RequestStore
	if cfg.PGDSN != "" {
		ps, err := storage.NewPostgresStore(cfg.PGDSN)
		if err != nil {
			logger.Error("postgres unavailable", "error", err)
			os.Exit(1)
		}
		if cfg.RunMigrations {
			runMigrations(ps.DB(), logger)
		}
		store = ps
	} else {
		store = storage.NewMemoryStore()
		logger.Warn("no PG_DSN configured, using in-memory store")
	}

	est := &distance.Estimator{Cache: distance.NewCache(5 * time.Minute)}
	if cfg.DistanceMatrixURL != "" {
		est.Client = distance.NewMatrixClient(cfg.DistanceMatrixURL, cfg.DistanceMatrixKey)
	}

	subs := pricing.NewMemorySubscriptions()
	pricer := pricing.NewEngine(pricing.DefaultConfig(), subs, est)

	ranker := &rank.Engine{Providers: geoIndex, TopK: cfg.RankTopK, ScanLimit: cfg.RankScanLimit}

	coordinator := &dispatch.Coordinator{
		Ranker:     ranker,
		Quoter:     pricer,
		Store:      store,
		StuckAfter: cfg.StuckAfter,
	}

	wsreg := dispatch.NewWSRegistry()

	var producer *ingest.KafkaProducer
	var events *dispatch.KafkaEvents
	if len(cfg.KafkaBrokers) > 0 {
		producer = ingest.NewKafkaProducer(ingest.Config{
			Brokers:      cfg.KafkaBrokers,
			Topic:        cfg.LocationTopic,
			WriteTimeout: cfg.KafkaWriteTimeout,
		})
		events = dispatch.NewKafkaEvents(cfg.KafkaBrokers, cfg.EventTopic)
		defer producer.Close()
		defer events.Close()
	}
	var publisher dispatch.EventPublisher
	if events != nil {
		publisher = events
	}
	notifier := dispatch.NewNotifier(wsreg, publisher, cfg.PushEndpoint, logger)

	devices := booking.NewDeviceRegistry()
	bookingSvc := booking.NewService(store, devices, logger)

	var gateway payments.Gateway
	if os.Getenv("STRIPE_API_KEY") != "" {
		gateway = payments.NewStripeGateway(os.Getenv("PAYMENT_CURRENCY"))
	}
	paymentsSvc := payments.NewService(store, gateway, pricer, logger)

	aggregator := settlement.NewAggregator(store, finance.DefaultConfig(), logger)

	srv := httpapi.NewServer(bookingSvc, coordinator, paymentsSvc, notifier, geoIndex, producer, wsreg, store, logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go escalationSweep(ctx, cfg, coordinator, notifier, store, logger)
	go settlementLoop(ctx, aggregator, logger)

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}
	go func() {
		logger.Info("server listening", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("server stopped", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", "error", err)
	}
	logger.Info("server stopped")
}

// escalationSweep periodically re-dispatches requests stuck in DISPATCHED
// past the timeout. Per-request failures are logged and skipped so one bad
// row never stalls the sweep.
func escalationSweep(ctx context.Context, cfg config.ServerConfig, co *dispatch.Coordinator,
	nt *dispatch.Notifier, store storage.RequestStore, logger *slog.Logger) {
	ticker := time.NewTicker(cfg.EscalationInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		stuck, err := store.StuckDispatched(ctx, time.Now().Add(-cfg.StuckAfter))
		if err != nil {
			logger.Warn("escalation scan failed", "error", err)
			continue
		}
		for _, req := range stuck {
			result, err := co.Escalate(ctx, req.ID)
			if err != nil {
				logger.Warn("escalation failed", "request_id", req.ID, "error", err)
				continue
			}
			nt.Emit(ctx, result.Events)
			logger.Info("request escalated", "request_id", req.ID, "status", result.Status, "provider_id", result.ProviderID)
		}
	}
}

func settlementLoop(ctx context.Context, agg *settlement.Aggregator, logger *slog.Logger) {
	ticker := time.NewTicker(24 * time.Hour)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		if _, err := agg.Run(ctx); err != nil {
			logger.Warn("settlement run failed", "error", err)
		}
	}
}

func runMigrations(db *sql.DB, logger *slog.Logger) {
	b, err := os.ReadFile(filepath.Join("migrations", "001_init.sql"))
	if err != nil {
		logger.Error("migration read error", "error", err)
		return
	}
	if _, err := db.Exec(string(b)); err != nil {
		logger.Error("migration exec error", "error", err)
		return
	}
	logger.Info("migration applied", "file", "001_init.sql")
}
