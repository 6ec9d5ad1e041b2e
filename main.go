// Package main provides the entry point of the warehouse tariff sync service
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/amirphl/wb-tariffs-sync/app/handlers"
	"github.com/amirphl/wb-tariffs-sync/app/logging"
	"github.com/amirphl/wb-tariffs-sync/app/middleware"
	"github.com/amirphl/wb-tariffs-sync/app/router"
	"github.com/amirphl/wb-tariffs-sync/app/scheduler"
	"github.com/amirphl/wb-tariffs-sync/app/services"
	businessflow "github.com/amirphl/wb-tariffs-sync/business_flow"
	"github.com/amirphl/wb-tariffs-sync/config"
	"github.com/amirphl/wb-tariffs-sync/migrations"
	"github.com/amirphl/wb-tariffs-sync/models"
	"github.com/amirphl/wb-tariffs-sync/repository"
	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// Application represents the main application structure
type Application struct {
	config    *config.Config
	logger    zerolog.Logger
	db        *gorm.DB
	scheduler *scheduler.TariffScheduler
	router    router.Router
	closers   []io.Closer
}

func main() {
	issueToken := flag.String("issue-admin-token", "", "print an admin JWT for this subject and exit")
	tokenTTL := flag.Duration("admin-token-ttl", time.Hour, "lifetime of the token printed by -issue-admin-token")
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	if *issueToken != "" {
		if err := issueAdminToken(os.Stdout, cfg.Admin, *issueToken, *tokenTTL); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to issue admin token: %v\n", err)
			os.Exit(1)
		}
		return
	}

	logger, logCloser, err := logging.New(cfg.Logging)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	logger = logger.With().Str("version", cfg.Deployment.Version).Str("env", cfg.Deployment.Environment).Logger()
	logger.Info().Msg("Starting WB tariffs sync...")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app, err := initializeApplication(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to initialize application")
		_ = logCloser.Close()
		os.Exit(1)
	}
	app.closers = append(app.closers, logCloser)

	stopScheduler, err := app.scheduler.Start(ctx)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to start scheduler")
		app.close()
		os.Exit(1)
	}

	if app.router != nil {
		app.router.SetupRoutes()
		go func() {
			address := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
			if err := app.router.Start(address); err != nil {
				logger.Error().Err(err).Msg("HTTP server stopped with error")
			}
		}()
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigChan
	logger.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// HTTP goes first so no manual refresh can start a tick while the scheduler drains
	if app.router != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		if err := app.router.Shutdown(shutdownCtx); err != nil {
			logger.Error().Err(err).Msg("Error during HTTP shutdown")
		}
		shutdownCancel()
	}

	// Waits for an in-flight tick before the context is cancelled
	stopScheduler()
	cancel()

	logger.Info().Msg("Service stopped")
	app.close()
}

func initializeApplication(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Application, error) {
	app := &Application{config: cfg, logger: logger}

	db, err := initializeDatabase(cfg.Database, logger)
	if err != nil {
		return nil, err
	}
	app.db = db

	if err := runMigrations(ctx, db, logger); err != nil {
		app.close()
		return nil, err
	}

	loc, err := cfg.Scheduler.Location()
	if err != nil {
		app.close()
		return nil, fmt.Errorf("invalid scheduler timezone: %w", err)
	}

	fetcher := services.NewTariffAPIClient(cfg.TariffAPI.URL, cfg.TariffAPI.Token, cfg.TariffAPI.UserAgent, cfg.TariffAPI.Timeout)

	publisher, err := initializePublishers(ctx, cfg.Sheets)
	if err != nil {
		app.close()
		return nil, err
	}

	tariffRepo := repository.NewTariffRepository(db)
	snapshotFlow := businessflow.NewTariffSnapshotFlow(tariffRepo, db, logger)

	app.scheduler = scheduler.NewTariffScheduler(fetcher, snapshotFlow, publisher, scheduler.Options{
		Cron:           cfg.Scheduler.Cron,
		Location:       loc,
		RunOnStart:     cfg.Scheduler.RunOnStart,
		TickTimeout:    cfg.Scheduler.TickTimeout,
		Targets:        cfg.Sheets.SheetIDs,
		SortBy:         models.SortBy(cfg.Sheets.SortBy),
		MaxConcurrency: cfg.Sheets.MaxConcurrency,
	}, logger)

	if len(cfg.Sheets.SheetIDs) == 0 {
		logger.Warn().Msg("No sheet targets configured; snapshots will be stored but not published")
	}

	if cfg.Server.Enabled {
		app.router, err = initializeRouter(cfg, app.scheduler, logger)
		if err != nil {
			app.close()
			return nil, err
		}
	}

	return app, nil
}

// initializeDatabase initializes the database connection with connection pooling
func initializeDatabase(cfg config.DatabaseConfig, logger zerolog.Logger) (*gorm.DB, error) {
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logging.NewGormLogger(logger, cfg.SlowQueryTime),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	sqlDB.SetMaxOpenConns(cfg.MaxOpenConns)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	sqlDB.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := sqlDB.PingContext(pingCtx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Info().
		Str("host", cfg.Host).
		Str("database", cfg.Name).
		Int("max_open_conns", cfg.MaxOpenConns).
		Int("max_idle_conns", cfg.MaxIdleConns).
		Msg("Database connection established")

	return db, nil
}

func runMigrations(ctx context.Context, db *gorm.DB, logger zerolog.Logger) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("failed to get underlying sql.DB: %w", err)
	}

	applied, err := migrations.Apply(ctx, sqlDB)
	if err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	logger.Info().Strs("applied", applied).Msg("Database migrations up to date")
	return nil
}

// initializePublishers builds the target router. The Google client is only created when a Google target exists.
func initializePublishers(ctx context.Context, cfg config.SheetsConfig) (services.SheetPublisher, error) {
	var google services.SheetPublisher
	if cfg.HasGoogleTargets() {
		gp, err := services.NewGoogleSheetsPublisher(ctx, services.GoogleSheetsOptions{
			WorksheetName:  cfg.WorksheetName,
			DefaultRows:    cfg.DefaultRows,
			DefaultColumns: cfg.DefaultColumns,
			RequestTimeout: cfg.RequestTimeout,
		}, services.ServiceAccountClient(ctx, cfg.ServiceAccountEmail, cfg.PrivateKey))
		if err != nil {
			return nil, fmt.Errorf("failed to create Google Sheets publisher: %w", err)
		}
		google = gp
	}

	return services.NewTargetRouter(google, services.NewXLSXPublisher(cfg.WorksheetName)), nil
}

func initializeRouter(cfg *config.Config, sync handlers.SyncController, logger zerolog.Logger) (router.Router, error) {
	var authMiddleware *middleware.AuthMiddleware
	if cfg.Admin.JWTSecret != "" {
		tokenService, err := services.NewAdminTokenService(cfg.Admin.JWTSecret, cfg.Admin.JWTIssuer)
		if err != nil {
			return nil, fmt.Errorf("failed to create admin token service: %w", err)
		}
		authMiddleware = middleware.NewAuthMiddleware(tokenService)
		logger.Info().Str("issuer", cfg.Admin.JWTIssuer).Msg("Manual refresh endpoint enabled")
	}

	metricsPath := ""
	if cfg.Metrics.Enabled {
		metricsPath = cfg.Metrics.Path
	}

	return router.NewFiberRouter(
		handlers.NewTariffSyncHandler(sync, cfg.Deployment.Version, logger),
		authMiddleware,
		router.Options{
			ReadTimeout:  cfg.Server.ReadTimeout,
			WriteTimeout: cfg.Server.WriteTimeout,
			MetricsPath:  metricsPath,
		},
		logger,
	), nil
}

// issueAdminToken prints a bearer token accepted by POST /api/v1/tariffs/refresh
func issueAdminToken(out io.Writer, cfg config.AdminConfig, subject string, ttl time.Duration) error {
	if cfg.JWTSecret == "" {
		return errors.New("ADMIN_JWT_SECRET is not set; the refresh endpoint is disabled")
	}
	if ttl <= 0 {
		return fmt.Errorf("token ttl must be positive, got %s", ttl)
	}

	tokenService, err := services.NewAdminTokenService(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		return err
	}
	token, err := tokenService.GenerateAdminToken(subject, ttl)
	if err != nil {
		return err
	}

	_, err = fmt.Fprintln(out, token)
	return err
}

func (a *Application) close() {
	if a.db != nil {
		if sqlDB, err := a.db.DB(); err == nil {
			if err := sqlDB.Close(); err != nil {
				a.logger.Error().Err(err).Msg("Failed to close database")
			}
		}
	}
	for _, c := range a.closers {
		_ = c.Close()
	}
}
