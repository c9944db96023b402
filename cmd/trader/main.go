package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/DMHCAIT/turteltrader/internal/app"
	"github.com/DMHCAIT/turteltrader/internal/domain"
	"github.com/DMHCAIT/turteltrader/internal/engine"
	"github.com/DMHCAIT/turteltrader/internal/event"
	"github.com/DMHCAIT/turteltrader/internal/gateway"
	"github.com/DMHCAIT/turteltrader/internal/infra"
	"github.com/DMHCAIT/turteltrader/internal/telemetry"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// snapshotEveryTicks writes a dashboard JSON snapshot every N ticks.
const snapshotEveryTicks = 10

func main() {
	// Secrets live in .env during development; missing file is fine.
	_ = godotenv.Load()

	// 1. System bootstrapping.
	bootstrap := app.NewBootstrap()
	if err := bootstrap.Initialize(); err != nil {
		slog.Error("bootstrapping failed", slog.Any("error", err))
		os.Exit(1)
	}
	defer bootstrap.Shutdown()

	cfg := bootstrap.Config
	infra.PrintBanner(cfg)

	// 2. Graceful shutdown context.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Event hub and sinks: audit trail, metrics, webhook alerts.
	// Sequence numbering continues where the audit log left off.
	hub := event.NewHub(1024)
	lastSeq, err := bootstrap.AuditStore.GetLastSeq(ctx)
	if err != nil {
		slog.Error("failed to read last audit sequence", slog.Any("error", err))
		os.Exit(1)
	}
	hub.SeedSeq(lastSeq)
	hub.Subscribe(bootstrap.AuditStore)
	hub.Subscribe(telemetry.MetricsSink{})
	hub.Subscribe(telemetry.NewWebhookNotifier(cfg.Notifier.WebhookURL))
	go hub.Run(ctx)

	// 4. Broker gateway (paper or live, with the real-money latch).
	broker, err := gateway.NewBroker(cfg)
	if err != nil {
		slog.Error("gateway initialization failed", slog.Any("error", err))
		os.Exit(1)
	}
	if broker.Stream != nil {
		broker.Stream.Start(ctx)
		defer broker.Stream.Stop()
	}

	// 5. Capital pool and lifecycle manager.
	pool, err := domain.NewCapitalPool(
		cfg.Trading.TotalCapital,
		cfg.Trading.DeployableFraction,
		cfg.Trading.PerTradeFraction,
	)
	if err != nil {
		slog.Error("capital pool initialization failed", slog.Any("error", err))
		os.Exit(1)
	}

	mgr := engine.NewManager(pool, broker.Orders, hub, cfg.GatewayTimeout()).
		WithBrokerage(cfg.Trading.BrokeragePct)
	mgr.Track(cfg.Trading.Symbols...)

	detector := engine.NewDetector(
		cfg.Trading.DipThreshold,
		cfg.Trading.ProfitThreshold,
		cfg.Trading.LossThreshold,
	)

	monitor := engine.NewMonitor(engine.MonitorConfig{
		Symbols:        cfg.Trading.Symbols,
		Interval:       cfg.TickInterval(),
		GatewayTimeout: cfg.GatewayTimeout(),
		SnapshotEvery:  snapshotEveryTicks,
	}, broker.Market, detector, mgr, pool, hub).
		WithSnapshots(bootstrap.Snapshots).
		WithMetadata(bootstrap.AuditStore)

	// 6. Metrics and status endpoint (localhost only by default).
	go serveHTTP(cfg.Metrics.ListenAddr, pool, mgr)

	// 7. The monitoring loop. Everything flows from here.
	go monitor.Run(ctx)

	slog.Info("turtle trader operational, press Ctrl+C to exit",
		slog.String("mode", cfg.Trading.Mode),
		slog.Any("symbols", cfg.Trading.Symbols))

	<-ctx.Done()
	slog.Info("shutting down gracefully")

	// The hub drains queued events on cancel; wait for it so late
	// lifecycle events reach the audit log before the store closes.
	hub.Wait()
}

// serveHTTP exposes Prometheus metrics and a read-only status view.
func serveHTTP(addr string, pool *domain.CapitalPool, mgr *engine.Manager) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"capital":   pool.Snapshot(),
			"positions": mgr.Positions(),
		})
	})

	slog.Info("metrics server started", slog.String("addr", addr))
	if err := http.ListenAndServe(addr, mux); err != nil {
		slog.Error("metrics server failed", slog.Any("error", err))
	}
}
