// Package config reads clinic-service settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"
	_ "time/tzdata"

	env "github.com/md-rashed-zaman/clinicbook/libs/config"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/cancellation"
	"github.com/md-rashed-zaman/clinicbook/services/clinic-service/internal/model"
)

type Config struct {
	Service   Service
	HTTP      HTTP
	GRPC      GRPC
	DB        DB
	Auth      Auth
	Clinic    Clinic
	RateLimit RateLimit
	Kafka     Kafka
	Redis     Redis
	CORS      CORS
}

type Service struct {
	Name    string
	Version string
}

type HTTP struct {
	Port           string
	BodyLimit      int64
	RequestTimeout time.Duration
	ShutdownGrace  time.Duration
}

type GRPC struct {
	// Port is empty when the gRPC health server is disabled.
	Port string
}

type DB struct {
	// URL is empty when running on the in-memory store.
	URL            string
	MaxConns       int32
	MigrateOnStart bool
}

type Auth struct {
	JWTSecret         []byte
	JWTIssuer         string
	TokenTTL          time.Duration
	JWKSURL           string
	JWKSCacheTTL      time.Duration
	AdminEmail        string
	AdminPasswordHash string
}

type Clinic struct {
	SlotGranularity   time.Duration
	Location          *time.Location
	MinimumNotice     time.Duration
	DefaultProviderID string
	DayStart          model.TimeOfDay
	DayEnd            model.TimeOfDay
	HidePastSlots     bool
}

type RateLimit struct {
	PerMinute       int
	CancelPerMinute int
	FailOpen        bool
	Prefix          string
}

type Kafka struct {
	Brokers       []string
	OutboxEvery   time.Duration
	OutboxBatch   int
	OutboxRetries int
}

type Redis struct {
	Addr     string
	Password string
	DB       int
}

type CORS struct {
	AllowedOrigins   []string
	AllowedMethods   []string
	AllowedHeaders   []string
	AllowCredentials bool
	MaxAge           time.Duration
}

// Load reads every setting, reporting all malformed values at once.
func Load() (Config, error) {
	var (
		cfg  Config
		errs []error
		err  error
	)
	collect := func(e error) {
		if e != nil {
			errs = append(errs, e)
		}
	}

	cfg.Service = Service{
		Name:    env.String("SERVICE_NAME", "clinic-service"),
		Version: env.String("SERVICE_VERSION", "dev"),
	}

	cfg.HTTP.Port, err = env.Port("PORT", "8080")
	collect(err)
	bodyLimit, err := env.Int("REQUEST_BODY_LIMIT_BYTES", 1<<20)
	collect(err)
	cfg.HTTP.BodyLimit = int64(bodyLimit)
	cfg.HTTP.RequestTimeout, err = env.Duration("REQUEST_TIMEOUT", 10*time.Second)
	collect(err)
	cfg.HTTP.ShutdownGrace, err = env.Duration("SHUTDOWN_GRACE", 10*time.Second)
	collect(err)

	cfg.GRPC.Port, err = env.OptionalPort("GRPC_PORT")
	collect(err)

	cfg.DB.URL = env.String("DATABASE_URL", "")
	maxConns, err := env.Int("DB_MAX_CONNS", 10)
	collect(err)
	cfg.DB.MaxConns = int32(maxConns)
	cfg.DB.MigrateOnStart = env.Bool("MIGRATE_ON_START", true)

	cfg.Auth = Auth{
		JWTSecret:         []byte(env.String("JWT_SECRET", "")),
		JWTIssuer:         env.String("JWT_ISSUER", "clinic-service"),
		JWKSURL:           env.String("JWKS_URL", ""),
		AdminEmail:        env.String("ADMIN_EMAIL", ""),
		AdminPasswordHash: env.String("ADMIN_PASSWORD_HASH", ""),
	}
	cfg.Auth.TokenTTL, err = env.Duration("JWT_TTL", 8*time.Hour)
	collect(err)
	cfg.Auth.JWKSCacheTTL, err = env.Duration("JWKS_CACHE_SECONDS", 5*time.Minute)
	collect(err)

	collect(loadClinic(&cfg.Clinic))

	cfg.RateLimit.PerMinute, err = env.Int("RATE_LIMIT_PER_MINUTE", 120)
	collect(err)
	cfg.RateLimit.CancelPerMinute, err = env.Int("CANCEL_RATE_LIMIT_PER_MINUTE", 10)
	collect(err)
	cfg.RateLimit.FailOpen = env.Bool("RATE_LIMIT_FAIL_OPEN", true)
	cfg.RateLimit.Prefix = env.String("RATE_LIMIT_PREFIX", "clinic:rl")

	cfg.Kafka.Brokers = env.List("KAFKA_BROKERS", "")
	cfg.Kafka.OutboxEvery, err = env.Duration("OUTBOX_POLL_INTERVAL", 2*time.Second)
	collect(err)
	cfg.Kafka.OutboxBatch, err = env.Int("OUTBOX_BATCH_SIZE", 50)
	collect(err)
	cfg.Kafka.OutboxRetries, err = env.Int("OUTBOX_MAX_ATTEMPTS", 20)
	collect(err)

	cfg.Redis.Addr = env.String("REDIS_ADDR", "")
	cfg.Redis.Password = env.String("REDIS_PASSWORD", "")
	cfg.Redis.DB, err = env.Int("REDIS_DB", 0)
	collect(err)

	cfg.CORS = CORS{
		AllowedOrigins:   env.List("CORS_ALLOWED_ORIGINS", ""),
		AllowedMethods:   env.List("CORS_ALLOWED_METHODS", "GET,POST,PUT,DELETE,OPTIONS"),
		AllowedHeaders:   env.List("CORS_ALLOWED_HEADERS", "Authorization,Content-Type,X-Request-Id"),
		AllowCredentials: env.Bool("CORS_ALLOW_CREDENTIALS", false),
	}
	cfg.CORS.MaxAge, err = env.Duration("CORS_MAX_AGE_SECONDS", 10*time.Minute)
	collect(err)

	if len(cfg.Auth.JWTSecret) == 0 && cfg.Auth.JWKSURL == "" {
		errs = append(errs, errors.New("JWT_SECRET or JWKS_URL is required"))
	}
	if cfg.RateLimit.PerMinute <= 0 || cfg.RateLimit.CancelPerMinute <= 0 {
		errs = append(errs, errors.New("rate limits must be positive"))
	}

	if len(errs) > 0 {
		return Config{}, errors.Join(errs...)
	}
	return cfg, nil
}

func loadClinic(c *Clinic) error {
	var errs []error

	minutes, err := env.Int("SLOT_GRANULARITY_MINUTES", 20)
	if err != nil {
		errs = append(errs, err)
	} else if minutes < 5 || minutes > 120 || 60%minutes != 0 && minutes%60 != 0 {
		errs = append(errs, fmt.Errorf("SLOT_GRANULARITY_MINUTES must divide an hour or be whole hours (got %d)", minutes))
	}
	c.SlotGranularity = time.Duration(minutes) * time.Minute

	tz := env.String("CLINIC_TIMEZONE", "UTC")
	if c.Location, err = time.LoadLocation(tz); err != nil {
		errs = append(errs, fmt.Errorf("CLINIC_TIMEZONE: unknown zone %q", tz))
	}

	if c.MinimumNotice, err = env.Duration("CANCELLATION_MIN_NOTICE", cancellation.DefaultMinimumNotice); err != nil {
		errs = append(errs, err)
	} else if c.MinimumNotice < 0 {
		errs = append(errs, errors.New("CANCELLATION_MIN_NOTICE must not be negative"))
	}

	c.DefaultProviderID = env.String("DEFAULT_PROVIDER_ID", "default")
	c.HidePastSlots = env.Bool("HIDE_PAST_SLOTS", true)

	start, startErr := model.ParseTimeOfDay(env.String("CLINIC_DAY_START", "00:00"))
	if startErr != nil {
		errs = append(errs, fmt.Errorf("CLINIC_DAY_START: %w", startErr))
	}
	end, endErr := model.ParseTimeOfDay(env.String("CLINIC_DAY_END", "24:00"))
	if endErr != nil {
		errs = append(errs, fmt.Errorf("CLINIC_DAY_END: %w", endErr))
	}
	c.DayStart, c.DayEnd = start, end
	if startErr == nil && endErr == nil && start >= end {
		errs = append(errs, errors.New("CLINIC_DAY_START must be before CLINIC_DAY_END"))
	}
	return errors.Join(errs...)
}
