package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/md-rashed-zaman/clinicbook/libs/auth"
	envcfg "github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/libs/db"
	"github.com/md-rashed-zaman/clinicbook/libs/grpcx"
	"github.com/md-rashed-zaman/clinicbook/libs/httpx"
	"github.com/md-rashed-zaman/clinicbook/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicbook/libs/otel"
	"github.com/md-rashed-zaman/clinicbook/libs/runtime"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/availability"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/booking"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/config"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/patients"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/schedule"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage/memory"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/storage/postgres"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/telemetry"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/migrations"
)

func main() {
	_ = envcfg.LoadDotEnv(".env")

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "err", err)
		os.Exit(2)
	}
	logger := runtime.NewLogger(cfg.Service.Name)

	ctx, stop := runtime.SignalContext()
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("clinic-service stopped", "err", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger) error {
	otelShutdown, err := otelx.Setup(ctx, otelx.ConfigFromEnv(cfg.Service.Name, cfg.Service.Version))
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}
	metrics, err := telemetry.New()
	if err != nil {
		return err
	}

	var (
		store  storage.Store
		checks []runtime.ReadyCheck
	)
	if cfg.DB.URL != "" {
		pool, err := db.Open(ctx, cfg.DB.URL, db.PoolOptions{MaxConns: cfg.DB.MaxConns})
		if err != nil {
			return err
		}
		defer pool.Close()
		if cfg.DB.MigrateOnStart {
			if err := db.Migrate(ctx, pool, migrations.FS, ".", logger); err != nil {
				return err
			}
		}
		repo := outbox.NewRepository()
		store = postgres.NewStore(pool, repo)
		checks = append(checks, runtime.ReadyCheck{Name: "db", Check: db.ReadyCheck(pool)})

		if len(cfg.Kafka.Brokers) > 0 {
			checks = append(checks, runtime.ReadyCheck{Name: "kafka", Check: kafkax.ReadyCheck(cfg.Kafka.Brokers)})
		}
		publisher := outbox.NewPublisher(pool, repo, logger, outbox.PublisherConfig{
			Brokers:     cfg.Kafka.Brokers,
			PollEvery:   cfg.Kafka.OutboxEvery,
			BatchSize:   cfg.Kafka.OutboxBatch,
			MaxAttempts: cfg.Kafka.OutboxRetries,
		})
		go publisher.Run(ctx)
	} else {
		logger.Warn("DATABASE_URL not set; using the in-memory store, data is lost on restart")
		store = memory.New()
	}

	general, strict, limiterCheck := rateLimiters(cfg, logger)
	if limiterCheck.Check != nil {
		checks = append(checks, limiterCheck)
	}

	clinic := cfg.Clinic
	calc := availability.NewCalculator(store.Schedules(), store.Exceptions(), store.Appointments(), availability.Policy{
		Granularity: clinic.SlotGranularity,
		DayStart:    clinic.DayStart,
		DayEnd:      clinic.DayEnd,
		Location:    clinic.Location,
		HidePast:    clinic.HidePastSlots,
	})
	tokens := cancellation.NewService(store, cancellation.Config{
		MinimumNotice: clinic.MinimumNotice,
		Location:      clinic.Location,
	}, logger, metrics)
	bookings := booking.NewService(store, calc, tokens, booking.Config{DefaultProviderID: clinic.DefaultProviderID}, logger, metrics)
	patientSvc := patients.NewService(store.Patients(), logger)
	scheduleSvc := schedule.NewService(store.Schedules(), store.Exceptions(), clinic.DefaultProviderID, logger)

	verifier := auth.Verifier{Secret: cfg.Auth.JWTSecret, Issuer: cfg.Auth.JWTIssuer, Leeway: 30 * time.Second}
	if cfg.Auth.JWKSURL != "" {
		verifier.Keys = auth.NewJWKSClient(cfg.Auth.JWKSURL, cfg.Auth.JWKSCacheTTL)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.Routes{
		Appointments: handlers.NewAppointmentHandler(calc, bookings, patientSvc, store.Appointments(), clinic.DefaultProviderID, logger, metrics),
		Patients:     handlers.NewPatientHandler(patientSvc, logger),
		Cancellation: handlers.NewCancellationHandler(tokens, logger),
		Reference:    handlers.NewReferenceHandler(store.Reference(), logger),
		Schedule:     handlers.NewScheduleHandler(scheduleSvc, logger),
		Auth: handlers.NewAuthHandler(handlers.LoginConfig{
			Email:        cfg.Auth.AdminEmail,
			PasswordHash: []byte(cfg.Auth.AdminPasswordHash),
			Secret:       cfg.Auth.JWTSecret,
			Issuer:       cfg.Auth.JWTIssuer,
			TTL:          cfg.Auth.TokenTTL,
		}, logger),
		Verifier: verifier,
		Strict:   strict,
	}.Register(mux)

	httpHandler := httpx.Chain(mux,
		httpx.WithRecover(logger),
		httpx.WithCORS(httpx.CORSPolicy{
			AllowedOrigins:   cfg.CORS.AllowedOrigins,
			AllowedMethods:   cfg.CORS.AllowedMethods,
			AllowedHeaders:   cfg.CORS.AllowedHeaders,
			ExposedHeaders:   []string{"X-Request-Id", "Retry-After"},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		}),
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithBodyLimit(cfg.HTTP.BodyLimit),
		httpx.WithTimeout(cfg.HTTP.RequestTimeout),
		general,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "clinic")

	if cfg.GRPC.Port != "" {
		grpcSrv, hs := grpcx.NewServer(logger)
		go grpcx.WatchReadiness(ctx, hs, cfg.Service.Name, 5*time.Second, func(ctx context.Context) error {
			return runtime.Ready(ctx, checks...)
		}, logger)
		go func() {
			if err := grpcx.Serve(ctx, grpcSrv, ":"+cfg.GRPC.Port, logger); err != nil {
				logger.Error("grpc server error", "err", err)
			}
		}()
	}

	srv := &http.Server{
		Addr:              ":" + cfg.HTTP.Port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return runtime.ServeHTTP(ctx, srv, cfg.HTTP.ShutdownGrace, logger)
}

// rateLimiters builds the general and the cancellation limiters. With
// REDIS_ADDR set the budget is shared across replicas; otherwise each
// instance counts on its own.
func rateLimiters(cfg config.Config, logger *slog.Logger) (general, strict httpx.Middleware, check runtime.ReadyCheck) {
	rl := cfg.RateLimit
	var generalLimiter, strictLimiter httpx.Limiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
		generalLimiter = httpx.NewRedisRateLimiter(rdb, rl.PerMinute, time.Minute, rl.Prefix)
		strictLimiter = httpx.NewRedisRateLimiter(rdb, rl.CancelPerMinute, time.Minute, rl.Prefix)
		check = runtime.ReadyCheck{Name: "redis", Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() }}
		logger.Info("rate limiting backed by redis", "addr", cfg.Redis.Addr)
	} else {
		generalLimiter = httpx.NewRateLimiter(rl.PerMinute, time.Minute)
		strictLimiter = httpx.NewRateLimiter(rl.CancelPerMinute, time.Minute)
	}
	general = httpx.RateLimit(generalLimiter, "all", logger, rl.FailOpen)
	strict = httpx.RateLimit(strictLimiter, "cancel", logger, rl.FailOpen)
	return general, strict, check
}
