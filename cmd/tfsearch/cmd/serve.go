package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/analytics"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/indexer"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/cache"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/searcher/handler"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/internal/watcher"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/middleware"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/ratelimit"
	pkgredis "github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/redis"
	"github.com/Adithya-Monish-Kumar-K/tfsearch/pkg/tracing"
)

const slowRequest = time.Second

func newServeCmd(root *rootOptions) *cobra.Command {
	var port int
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the search API over HTTP",
		Long: `Builds the index and serves it over HTTP until interrupted. Optional
components (Redis cache, analytics, PostgreSQL snapshots, file watcher) are
enabled from the config.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.load(cmd)
			if err != nil {
				return err
			}
			if port > 0 {
				cfg.Server.Port = port
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runServe(ctx, cfg)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "override server.port")
	return cmd
}

// service is the assembled HTTP application.
type service struct {
	engine  *engine
	metrics *metrics.Metrics
	checker *health.Checker
	handler http.Handler
	closers []func()
}

// close releases resources in reverse order of acquisition.
func (s *service) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		s.closers[i]()
	}
}

// newService wires every enabled component. Background goroutines stop
// when ctx is cancelled. Optional dependencies that cannot be reached are
// logged and left out.
func newService(ctx context.Context, cfg *config.Config, reg *prometheus.Registry) (*service, error) {
	m := metrics.New(reg)
	eng, err := newEngine(cfg, m)
	if err != nil {
		return nil, err
	}
	checker := health.NewChecker(0)
	svc := &service{engine: eng, metrics: m, checker: checker}
	checker.Register("index", handler.IndexCheck(eng.index))

	cacheOpts := []cache.Option{cache.WithMetrics(m)}
	if cfg.Redis.Enabled {
		rc, err := pkgredis.NewClient(cfg.Redis)
		if err != nil {
			slog.Warn("redis unavailable, using in-process cache only", "error", err)
		} else {
			svc.closers = append(svc.closers, func() { _ = rc.Close() })
			cacheOpts = append(cacheOpts, cache.WithRemote(rc, cfg.Redis.CacheTTL))
			checker.Register("redis", health.PingCheck(rc.Ping, true))
			slog.Info("redis cache tier enabled", "addr", cfg.Redis.Addr, "ttl", cfg.Redis.CacheTTL)
		}
	}
	queryCache := cache.New(cfg.Search.CacheSize, cacheOpts...)

	var pg *postgres.Client
	if cfg.Archive.Enabled || (cfg.Analytics.Enabled && cfg.Analytics.SnapshotInterval > 0) {
		pg, err = postgres.New(cfg.Postgres)
		if err != nil {
			slog.Warn("postgres unavailable, snapshots disabled", "error", err)
			pg = nil
		} else {
			svc.closers = append(svc.closers, func() { _ = pg.Close() })
			checker.Register("postgres", health.PingCheck(pg.Ping, true))
		}
	}

	var (
		collector   *analytics.Collector
		analyticsHd *analytics.Handler
	)
	if cfg.Analytics.Enabled {
		agg := analytics.NewAggregator(nil)
		var publisher analytics.Publisher = analytics.LocalPublisher{Aggregator: agg}
		if cfg.Analytics.Kafka {
			topic := cfg.Kafka.Topics.AnalyticsEvents
			producer := kafka.NewProducer(cfg.Kafka, topic)
			publisher = producer
			agg.SetConsumer(kafka.NewConsumer(cfg.Kafka, topic, analytics.HandleEvent(agg)))
			go func() {
				if err := agg.Start(ctx); err != nil {
					slog.Error("analytics aggregator stopped", "error", err)
				}
			}()
			svc.closers = append(svc.closers, func() { _ = producer.Close() })
		}
		collector = analytics.NewCollector(publisher, cfg.Analytics.BufferSize)
		collector.Start(ctx)
		svc.closers = append(svc.closers, collector.Close)
		eng.builder.OnRebuild(func(stats indexer.BuildStats) {
			collector.Track(analytics.NewRebuildEvent(stats))
		})

		var snapshots analytics.SnapshotSource
		if pg != nil && cfg.Analytics.SnapshotInterval > 0 {
			store := analytics.NewStore(pg)
			if err := store.EnsureSchema(ctx); err != nil {
				slog.Warn("analytics snapshots disabled", "error", err)
			} else {
				done := store.StartPeriodicSave(ctx, agg, cfg.Analytics.SnapshotInterval)
				svc.closers = append(svc.closers, func() { <-done })
				snapshots = store
			}
		}
		analyticsHd = analytics.NewHandler(agg, snapshots)
	}

	api := handler.New(eng.builder, eng.executor, handler.Options{
		Documents:    eng.documents,
		Cache:        queryCache,
		Collector:    collector,
		Analytics:    analyticsHd,
		DefaultLimit: cfg.Engine.MaxResponses,
		MaxResults:   cfg.Search.MaxResults,
	})

	mux := http.NewServeMux()
	api.Register(mux)
	mux.HandleFunc("GET /health/live", checker.LiveHandler())
	mux.HandleFunc("GET /health/ready", checker.ReadyHandler())
	if cfg.Metrics.Enabled && cfg.Metrics.Port == cfg.Server.Port {
		mux.Handle("GET /metrics", m.Handler())
	}

	limiter := ratelimit.New(ctx, cfg.Server.RateWindow)
	known := append([]string{"/health/live", "/health/ready", "/metrics"}, handler.Routes...)
	svc.handler = middleware.Chain(mux,
		middleware.RequestID,
		tracing.Middleware(func(r *http.Request) string { return middleware.GetRequestID(r.Context()) }, slowRequest),
		middleware.CORS(middleware.DefaultCORSConfig()),
		middleware.RateLimit(limiter, cfg.Server.RateLimit),
		middleware.Metrics(m, known...),
		middleware.Timeout(cfg.Server.WriteTimeout, "POST /api/v1/index/rebuild"),
	)
	return svc, nil
}

func runServe(ctx context.Context, cfg *config.Config) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	ctx, cancel := context.WithCancel(ctx)
	svc, err := newService(ctx, cfg, reg)
	if err != nil {
		cancel()
		return err
	}
	defer svc.close()
	defer cancel()

	svc.engine.builder.Rebuild(ctx, svc.engine.documents())

	if cfg.Watch.Enabled {
		w, err := watcher.New(cfg.Files, cfg.Watch.Debounce, func(ctx context.Context, _ []string) error {
			_, err := svc.engine.builder.TryRebuild(ctx, svc.engine.documents())
			return err
		})
		if err != nil {
			return err
		}
		go func() {
			if err := w.Run(ctx); err != nil {
				slog.Error("corpus watcher stopped", "error", err)
			}
		}()
	}

	if cfg.Metrics.Enabled && cfg.Metrics.Port != cfg.Server.Port {
		ms := metrics.NewServer(cfg.Metrics.Port, svc.metrics.Handler(), map[string]http.Handler{
			"GET /health/live": svc.checker.LiveHandler(),
		})
		ms.Start()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = ms.Shutdown(shutdownCtx)
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      svc.handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("search service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
	case <-ctx.Done():
		slog.Info("shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		slog.Error("server shutdown error", "error", err)
	}
	slog.Info("search service stopped")
	return nil
}
