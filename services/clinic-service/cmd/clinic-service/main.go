package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/md-rashed-zaman/clinicnear/libs/auth"
	"github.com/md-rashed-zaman/clinicnear/libs/config"
	"github.com/md-rashed-zaman/clinicnear/libs/grpcx"
	"github.com/md-rashed-zaman/clinicnear/libs/httpx"
	otelx "github.com/md-rashed-zaman/clinicnear/libs/otel"
	"github.com/md-rashed-zaman/clinicnear/libs/redisx"
	"github.com/md-rashed-zaman/clinicnear/libs/runtime"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/metrics"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/realtime"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/search"
	"github.com/md-rashed-zaman/clinicnear/services/clinic-service/internal/seed"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
)

func main() {
	if err := config.LoadDotEnv(); err != nil {
		panic(err)
	}
	service := config.String("SERVICE_NAME", "clinic-service")
	logger := runtime.NewLogger(service)
	if err := run(logger, service); err != nil {
		logger.Error("clinic-service stopped", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger, service string) error {
	port, err := config.Port("PORT", "3001")
	if err != nil {
		return err
	}
	grpcPort, err := config.Port("GRPC_PORT", "9093")
	if err != nil {
		return err
	}

	ctx, stop := runtime.SignalContext()
	defer stop()

	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(service))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(reg)

	st, err := openStore(ctx, logger)
	if err != nil {
		return err
	}
	defer st.close()
	checks := st.checks

	var rdb *redis.Client
	if url := config.String("REDIS_URL", ""); url != "" {
		rdb, err = redisx.Open(ctx, url)
		if err != nil {
			return err
		}
		defer rdb.Close()
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(rdb)})
	}

	dir, err := openDirectory(logger, rdb)
	if err != nil {
		return err
	}

	seedOnStart, err := config.Bool("SEED_ON_START", st.memory)
	if err != nil {
		return err
	}
	if seedOnStart {
		if _, err := seed.Run(ctx, st, logger, seed.Options{Geocoder: dir}); err != nil {
			return err
		}
	}

	// Origin tags this instance's events on the relay and names its Kafka
	// consumer group, so it must differ between replicas.
	origin := config.String("INSTANCE_ID", "")
	if origin == "" {
		origin = uuid.NewString()
	}
	relay, relayChecks, err := openRelay(logger, rdb, origin)
	if err != nil {
		return err
	}
	checks = append(checks, relayChecks...)
	bus := realtime.NewBus(logger, realtime.Options{Origin: origin, Relay: relay, Metrics: m})
	if relay != nil {
		defer relay.Close()
	}
	go func() {
		if err := bus.Run(ctx); err != nil {
			logger.Error("realtime relay stopped", "err", err)
		}
	}()

	var signer *auth.Signer
	if secret := config.String("JWT_SECRET", ""); secret != "" {
		ttl, err := config.Duration("JWT_TTL", time.Hour)
		if err != nil {
			return err
		}
		if signer, err = auth.NewSigner(secret, service, ttl); err != nil {
			return err
		}
	} else {
		logger.Warn("JWT_SECRET not set; clinic owner endpoints will reject all requests")
	}

	directoryTimeout, err := config.Duration("DIRECTORY_TIMEOUT", 3*time.Second)
	if err != nil {
		return err
	}
	strict, err := config.Bool("SEARCH_STRICT_RADIUS", true)
	if err != nil {
		return err
	}
	engine := booking.NewEngine(st, bus, logger, m, booking.Config{})
	agg := search.NewAggregator(st, dir, logger, m, search.Config{
		ExternalTimeout: directoryTimeout,
		StrictRadius:    strict,
	})

	origins := config.List("CORS_ORIGIN", []string{"http://localhost:3000"})
	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.NewClinicHandler(st, engine, agg, logger).Register(mux)
	mux.Handle("GET /ws", realtime.NewHandler(bus, logger, origins))
	mux.Handle("GET /metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg}))

	perMinute, err := config.Int("RATE_LIMIT_PER_MINUTE", 120)
	if err != nil {
		return err
	}
	limiter := httpx.NewRateLimiter(perMinute, time.Minute).Middleware()
	if rdb != nil {
		limiter = httpx.NewRedisRateLimiter(rdb, perMinute, time.Minute, "clinicnear:rl").Middleware(logger, true)
	}
	requestTimeout, err := config.Duration("REQUEST_TIMEOUT", 15*time.Second)
	if err != nil {
		return err
	}

	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithRecover(logger),
		httpx.WithAccessLog(logger),
		httpx.WithCORS(httpx.DefaultCORSPolicy(origins...)),
		limiter,
		httpx.WithBodyLimit(1<<20),
		httpx.WithTimeout(requestTimeout, "/ws"),
		auth.Optional(signer),
	)
	httpHandler = otelhttp.NewHandler(httpHandler, service)
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	grpcSrv, health := grpcx.NewServer(logger)
	health.SetServingStatus(service, healthpb.HealthCheckResponse_SERVING)
	lis, err := net.Listen("tcp", ":"+grpcPort)
	if err != nil {
		return fmt.Errorf("grpc listen: %w", err)
	}

	errCh := make(chan error, 2)
	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	go func() {
		logger.Info("grpc server starting", "addr", lis.Addr().String())
		if err := grpcSrv.Serve(lis); err != nil {
			errCh <- fmt.Errorf("grpc server: %w", err)
		}
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case runErr = <-errCh:
	}
	stop()

	health.Shutdown()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	grpcSrv.GracefulStop()
	logger.Info("servers stopped")
	return runErr
}
