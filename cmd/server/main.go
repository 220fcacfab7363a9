package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/mmynk/referralnet/internal/cache"
	"github.com/mmynk/referralnet/internal/config"
	"github.com/mmynk/referralnet/internal/events"
	"github.com/mmynk/referralnet/internal/metrics"
	"github.com/mmynk/referralnet/internal/middleware"
	"github.com/mmynk/referralnet/internal/rewards"
	"github.com/mmynk/referralnet/internal/service"
	"github.com/mmynk/referralnet/internal/storage"
	"github.com/mmynk/referralnet/internal/storage/sqlite"
	"github.com/mmynk/referralnet/pkg/api"
	"github.com/mmynk/referralnet/pkg/logging"
)

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func main() {
	cfg, err := config.Load(getEnv("CONFIG_PATH", "config.yaml"))
	if err != nil {
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		slog.Error("Failed to initialize storage", "error", err)
		os.Exit(1)
	}
	defer store.Close()
	slog.Info("Storage initialized", "database", cfg.DBPath)

	if err := seedPlan(ctx, store, cfg.Plan); err != nil {
		slog.Error("Failed to seed plan", "error", err)
		os.Exit(1)
	}

	m := metrics.New()

	var publisher events.Publisher = events.NewLoggingPublisher(slog.Default())
	if len(cfg.KafkaBrokers) > 0 {
		kp, err := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopics)
		if err != nil {
			slog.Error("Failed to initialize kafka publisher", "error", err)
			os.Exit(1)
		}
		publisher = kp
		slog.Info("Publishing events to kafka", "brokers", cfg.KafkaBrokers)
	}
	defer publisher.Close()

	opts := []rewards.Option{rewards.WithPublisher(publisher), rewards.WithMetrics(m)}
	if cfg.RedisURL != "" {
		client, err := cache.Connect(ctx, cfg.RedisURL)
		if err != nil {
			slog.Error("Failed to connect to redis", "error", err)
			os.Exit(1)
		}
		defer client.Close()
		opts = append(opts, rewards.WithLocker(cache.NewRedisClaimLocker(client, cache.DefaultLockTTL)))
		slog.Info("Claim locking enabled")
	}

	engine := rewards.NewEngine(store, rewards.Config{
		MaxDepth: cfg.MaxDepth,
		Ratio:    cfg.Plan.Ratio,
		FanOut:   cfg.AssignFanOut,
	}, opts...)

	mux := http.NewServeMux()
	interceptors := connect.WithInterceptors(middleware.LoggingInterceptor(m))

	networkPath, networkHandler := api.NewNetworkServiceHandler(service.NewNetworkService(store, service.NetworkConfig{
		MaxDepth:    cfg.MaxDepth,
		TreeTimeout: cfg.TreeTimeout,
		Ratio:       cfg.Plan.Ratio,
	}, m), interceptors)
	mux.Handle(networkPath, networkHandler)

	rewardPath, rewardHandler := api.NewRewardServiceHandler(service.NewRewardService(engine), interceptors)
	mux.Handle(rewardPath, rewardHandler)

	commissionPath, commissionHandler := api.NewCommissionServiceHandler(service.NewCommissionService(store, cfg.MaxLevels, publisher, m), interceptors)
	mux.Handle(commissionPath, commissionHandler)

	mux.Handle("/metrics", m.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := store.Ping(); err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	go runEvery(ctx, "cleanup_expired", cfg.CleanupInterval, func(ctx context.Context) error {
		_, err := engine.CleanupExpired(ctx)
		return err
	})
	go runEvery(ctx, "refresh_all", cfg.RefreshInterval, func(ctx context.Context) error {
		failures, err := engine.RefreshAll(ctx)
		if len(failures) > 0 {
			slog.Warn("Refresh finished with failures", "failures", len(failures))
		}
		return err
	})

	// Wrap with h2c for HTTP/2 without TLS (required for Connect)
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           h2c.NewHandler(loggingMiddleware(corsMiddleware(mux)), &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Shutdown failed", "error", err)
		}
	}()

	slog.Info("Connect server starting", "address", cfg.HTTPAddr)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Server stopped")
}

// seedPlan writes the configured commission levels and reward programs.
func seedPlan(ctx context.Context, store storage.Store, plan config.Plan) error {
	for _, level := range plan.Levels {
		if err := store.UpsertCommissionLevel(ctx, level); err != nil {
			return err
		}
	}
	for i := range plan.Programs {
		if err := store.UpsertRewardProgram(ctx, &plan.Programs[i]); err != nil {
			return err
		}
	}
	slog.Info("Plan seeded", "levels", len(plan.Levels), "programs", len(plan.Programs))
	return nil
}

// runEvery calls job every interval until ctx is done. A zero interval disables it.
func runEvery(ctx context.Context, name string, interval time.Duration, job func(context.Context) error) {
	if interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := job(ctx); err != nil {
				slog.Error("Background job failed", "job", name, "error", err)
			}
		}
	}
}

// loggingMiddleware logs all incoming requests
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		slog.Debug("Request received",
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		next.ServeHTTP(w, r)

		slog.Debug("Request completed",
			"method", r.Method,
			"path", r.URL.Path,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	})
}

// corsMiddleware adds CORS headers for browser access
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Connect-Protocol-Version, Connect-Timeout-Ms")
		w.Header().Set("Access-Control-Expose-Headers", "Connect-Protocol-Version, Connect-Timeout-Ms")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
