package bootstrap

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	appMigrations "github.com/yigit/unisphere-enrollment/internal/app/migrations"
	appRepos "github.com/yigit/unisphere-enrollment/internal/app/repositories"
	appServices "github.com/yigit/unisphere-enrollment/internal/app/services"
	"github.com/yigit/unisphere-enrollment/internal/config"
	"github.com/yigit/unisphere-enrollment/internal/db"
	"github.com/yigit/unisphere-enrollment/internal/pkg/eligibility"
	"github.com/yigit/unisphere-enrollment/internal/pkg/helpers"
	"github.com/yigit/unisphere-enrollment/internal/pkg/logger"
	"github.com/yigit/unisphere-enrollment/internal/pkg/notify"
)

// Dependencies holds all the application dependencies
type Dependencies struct {
	Config   *config.Config
	Database *db.PostgresDB
	Repos    *appRepos.Repositories
	Services *appServices.Services
	Notifier notify.Notifier
	Logger   zerolog.Logger
}

// LoadConfigAndSetupLogger loads .env and configuration, then initializes the logger.
func LoadConfigAndSetupLogger(configPath, envPath string) (*config.Config, zerolog.Logger, error) {
	if err := config.LoadDotEnv(envPath); err != nil {
		logger.Error().Err(err).Msg("Failed to load env file")
		return nil, zerolog.Logger{}, err
	}

	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to load configuration")
		return nil, zerolog.Logger{}, err
	}

	logLevel := logger.ParseLevel(cfg.Logging.Level)
	prettyLog := strings.ToLower(cfg.Logging.Format) == "text"

	lgr := logger.Configure(logger.Config{
		Level:  logLevel,
		Pretty: prettyLog,
	})
	lgr.Info().Str("logLevel", string(logLevel)).Str("logFormat", cfg.Logging.Format).Msg("Logger configured")
	return cfg, lgr, nil
}

// SetupDatabase establishes the database connection and applies pending migrations.
func SetupDatabase(ctx context.Context, cfg *config.Config, lgr zerolog.Logger) (*db.PostgresDB, error) {
	lgr.Info().Msg("Establishing database connection...")
	database, err := db.NewPostgresDB(cfg)
	if err != nil {
		lgr.Error().Err(err).Msg("Failed to connect to database")
		return nil, err
	}
	lgr.Info().Msg("Database connection successfully established.")

	lgr.Info().Msg("Running database migrations...")
	migrator := appMigrations.NewMigrator(database.Pool, lgr)
	if err := migrator.Migrate(ctx, appMigrations.Files()); err != nil {
		lgr.Error().Err(err).Msg("Database migration error")
		database.Close()
		return nil, fmt.Errorf("database migrations failed: %w", err)
	}
	lgr.Info().Msg("Database migrations successfully applied.")

	return database, nil
}

// BuildDependencies initializes the repositories and services on database.
func BuildDependencies(cfg *config.Config, database *db.PostgresDB, lgr zerolog.Logger) *Dependencies {
	repos := appRepos.NewRepositories(database)
	serviceDeps := newServiceDeps(cfg, repos, lgr)
	return &Dependencies{
		Config:   cfg,
		Database: database,
		Repos:    repos,
		Services: appServices.New(serviceDeps),
		Notifier: serviceDeps.Notifier,
		Logger:   lgr,
	}
}

// newServiceDeps translates configuration into service collaborators. The eligibility
// checker stays nil without a URL, which admits every student.
func newServiceDeps(cfg *config.Config, store appRepos.Store, lgr zerolog.Logger) appServices.Deps {
	eligibilityTimeout := helpers.ParseDuration(cfg.Enrollment.EligibilityTimeout, 2*time.Second)

	deps := appServices.Deps{
		Store: store,
		EligibilityPolicy: appServices.EligibilityPolicy{
			Timeout:  eligibilityTimeout,
			FailOpen: cfg.Enrollment.EligibilityFailOpen,
		},
		Notifier: notify.New(
			cfg.Notifications.AMQPURL,
			cfg.Notifications.Queue,
			helpers.ParseDuration(cfg.Notifications.PublishTimeout, 2*time.Second),
			lgr,
		),
		AuditTimeout: helpers.ParseDuration(cfg.Audit.Timeout, 3*time.Second),
		Policy: appServices.Policy{
			SessionDefaultCapacity:         cfg.Enrollment.SessionDefaultCapacity,
			EvaluationMinCompletedSessions: cfg.Enrollment.EvaluationMinCompletedSessions,
			FeedbackMinCompletedSessions:   cfg.Enrollment.FeedbackMinCompletedSessions,
		},
		Logger: lgr,
	}
	if cfg.Enrollment.EligibilityURL != "" {
		deps.Eligibility = eligibility.NewClient(cfg.Enrollment.EligibilityURL, eligibilityTimeout)
	} else {
		lgr.Warn().Msg("No eligibility service configured, prerequisites are not checked")
	}
	return deps
}

// Close releases the broker connection and the database pool.
func (d *Dependencies) Close() {
	if closer, ok := d.Notifier.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			d.Logger.Warn().Err(err).Msg("Failed to close notifier")
		}
	}
	if d.Database != nil {
		d.Database.Close()
	}
}
