package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/emr/fhir2/internal/config"
	"github.com/emr/fhir2/internal/domain/condition"
	"github.com/emr/fhir2/internal/domain/encounter"
	"github.com/emr/fhir2/internal/domain/location"
	"github.com/emr/fhir2/internal/domain/medication"
	"github.com/emr/fhir2/internal/domain/observation"
	"github.com/emr/fhir2/internal/domain/patient"
	"github.com/emr/fhir2/internal/domain/practitioner"
	"github.com/emr/fhir2/internal/domain/task"
	"github.com/emr/fhir2/internal/platform/auth"
	"github.com/emr/fhir2/internal/platform/db"
	"github.com/emr/fhir2/internal/platform/fhir"
	"github.com/emr/fhir2/internal/platform/middleware"
	"github.com/emr/fhir2/migrations"
	"github.com/emr/fhir2/pkg/pagination"
)

const fhirPrefix = "/fhir"

func newLogger(cfg *config.Config) zerolog.Logger {
	if cfg != nil && cfg.IsDev() {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		l := newLogger(nil)
		l.Fatal().Err(err).Msg("failed to load config")
	}
	logger := newLogger(cfg)
	if err := cfg.Validate(); err != nil {
		logger.Fatal().Err(err).Msg("invalid config")
	}

	ctx := context.Background()
	pool, err := db.NewPool(ctx, db.PoolConfig{URL: cfg.DatabaseURL, MaxConns: cfg.DBMaxConns, MinConns: cfg.DBMinConns})
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()
	logger.Info().Msg("connected to database")

	if cfg.AutoMigrate {
		count, err := db.NewMigrator(pool, migrations.FS).Up(ctx)
		if err != nil {
			logger.Fatal().Err(err).Msg("auto migration failed")
		}
		logger.Info().Int("applied", count).Msg("migrations applied")
	}

	paging, closePaging, err := newPagingStore(ctx, cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to redis")
	}
	defer closePaging()

	e := newServer(cfg, logger, pool, paging)
	e.GET("/health", db.HealthHandler(pool, version))

	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Str("base_url", cfg.BaseURL).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server shutdown failed")
	}
	logger.Info().Msg("server stopped")
	return nil
}

// newPagingStore uses Redis when REDIS_URL is set so paging links survive
// across instances, and an in-process store otherwise.
func newPagingStore(ctx context.Context, cfg *config.Config) (fhir.PagingStore, func(), error) {
	if cfg.RedisURL == "" {
		return fhir.NewMemoryPagingStore(cfg.PagingTTL), func() {}, nil
	}
	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, nil, fmt.Errorf("ping redis: %w", err)
	}
	return fhir.NewRedisPagingStore(client, cfg.PagingTTL, "fhir2:paging:"), func() { _ = client.Close() }, nil
}

// newServer builds the echo instance with every resource provider mounted
// under /fhir.
func newServer(cfg *config.Config, logger zerolog.Logger, pool *pgxpool.Pool, paging fhir.PagingStore) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = fhir.OutcomeErrorHandler(fhirPrefix, e.DefaultHTTPErrorHandler)

	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.Recovery(logger))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins:  cfg.CORSOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodHead, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
		AllowHeaders:  []string{"Authorization", "Content-Type", "Accept", "If-Match", "If-None-Match", "If-Modified-Since", "Prefer", "X-Request-ID"},
		ExposeHeaders: []string{"ETag", "Last-Modified", "Location", "Content-Location"},
	}))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))

	authn := auth.DevAuthMiddleware()
	if !cfg.IsDev() {
		authn = auth.JWTMiddleware(auth.JWTConfig{
			Issuer:     cfg.AuthIssuer,
			Audience:   cfg.AuthAudience,
			SigningKey: []byte(cfg.AuthSigningKey),
		})
	}
	read := []echo.MiddlewareFunc{authn, auth.RequireRole(auth.ReadRoles...), auth.RequireResourceScope(fhirPrefix, "read")}
	write := []echo.MiddlewareFunc{authn, auth.RequireRole(auth.WriteRoles...), auth.RequireResourceScope(fhirPrefix, "write")}

	g := e.Group(fhirPrefix, fhir.ContentNegotiation())

	versions := fhir.NewVersionTracker(fhir.NewHistoryRepository(pool))
	tx := db.NewTransactor(pool)
	reg := fhir.NewRegistry(fhir.ProviderOptions{
		BaseURL:   cfg.BaseURL,
		Versions:  versions,
		Paging:    paging,
		Limits:    pagination.Limits{Default: cfg.DefaultPageSize, Max: cfg.MaxPageSize},
		Logger:    logger,
		Authorize: auth.CheckResourceScope,
	}, version)

	patient.NewHandler(patient.NewService(patient.NewRepo(pool), versions, tx)).RegisterRoutes(reg)
	practitioner.NewHandler(practitioner.NewService(practitioner.NewRepo(pool), versions, tx)).RegisterRoutes(reg)
	location.NewHandler(location.NewService(location.NewRepo(pool), versions, tx)).RegisterRoutes(reg)
	encounter.NewHandler(encounter.NewService(encounter.NewRepo(pool), versions, tx)).RegisterRoutes(reg)
	observation.NewHandler(observation.NewService(observation.NewRepo(pool), versions, tx)).RegisterRoutes(reg, g, read...)
	condition.NewHandler(condition.NewService(condition.NewRepo(pool), versions, tx)).RegisterRoutes(reg)
	medication.NewHandler(medication.NewService(medication.NewRepo(pool), versions, tx)).RegisterRoutes(reg)
	task.NewHandler(task.NewService(task.NewRepo(pool), versions, tx)).RegisterRoutes(reg)

	reg.RegisterRoutes(g, read, write)
	return e
}
