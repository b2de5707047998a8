package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"

	"vidtube-serverless/internal/auth"
	"vidtube-serverless/internal/config"
	"vidtube-serverless/internal/db"
	"vidtube-serverless/internal/media"
	"vidtube-serverless/internal/observability"
	"vidtube-serverless/internal/readmodel"
	"vidtube-serverless/internal/user"
)

const (
	serviceName          = "vidtube-api"
	mediaBreakerFailures = 5
	mediaBreakerTimeout  = 30 * time.Second
)

type Options struct {
	LoadDotEnv bool
}

type Runtime struct {
	Config  *config.Config
	Logger  *observability.Logger
	Handler http.Handler
	Close   func() error
}

func Build(options Options) (*Runtime, error) {
	if options.LoadDotEnv {
		_ = godotenv.Load()
	}

	logger := observability.NewLogger(serviceName)

	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}

	if err := observability.InitSentry(cfg.SentryDSN, cfg.AppEnv, cfg.SentryRelease); err != nil {
		logger.Error("init_sentry_failed", map[string]any{"error": err.Error()})
	}

	database, err := sql.Open("pgx", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	database.SetMaxOpenConns(cfg.DBMaxOpenConns)
	database.SetMaxIdleConns(cfg.DBMaxIdleConns)
	database.SetConnMaxLifetime(cfg.DBConnMaxLifetime)
	database.SetConnMaxIdleTime(cfg.DBConnMaxIdleTime)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := database.PingContext(ctx); err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if cfg.RunMigrationsOnStartup {
		if err := db.RunMigrations(ctx, database); err != nil {
			_ = database.Close()
			return nil, fmt.Errorf("run migrations: %w", err)
		}
	}

	host, err := newMediaHost(ctx, cfg)
	if err != nil {
		_ = database.Close()
		return nil, err
	}

	intake, err := media.NewIntake(cfg.UploadDir, cfg.MaxUploadBytes)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init upload intake: %w", err)
	}

	clock := clockwork.NewRealClock()
	tokens, err := auth.NewTokenService(
		cfg.AccessTokenSecret,
		cfg.RefreshTokenSecret,
		cfg.AccessTokenExpiry,
		cfg.RefreshTokenExpiry,
		clock,
	)
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("init token service: %w", err)
	}

	handler := NewRouter(Dependencies{
		Config: cfg,
		Logger: logger,
		Users:  user.NewRepository(database),
		Reader: readmodel.NewRepository(database),
		Media:  host,
		Intake: intake,
		Tokens: tokens,
		Clock:  clock,
		Ping:   database.PingContext,
	})

	logger.Info("bootstrap_completed", map[string]any{
		"env":            cfg.AppEnv,
		"media_provider": cfg.MediaProvider,
		"upload_dir":     intake.Dir(),
	})

	return &Runtime{
		Config:  cfg,
		Logger:  logger,
		Handler: handler,
		Close: func() error {
			observability.FlushSentry()
			return database.Close()
		},
	}, nil
}

// newMediaHost selects the configured backend and guards it with a circuit breaker.
func newMediaHost(ctx context.Context, cfg *config.Config) (media.Host, error) {
	var backend media.Host

	switch cfg.MediaProvider {
	case config.MediaProviderS3:
		s3Host, err := media.NewS3(ctx, media.S3Options{
			Bucket:        cfg.S3Bucket,
			Region:        cfg.S3Region,
			Endpoint:      cfg.S3Endpoint,
			AccessKey:     cfg.S3AccessKey,
			SecretKey:     cfg.S3SecretKey,
			PublicBaseURL: cfg.S3PublicBaseURL,
			KeyPrefix:     cfg.S3KeyPrefix,
		})
		if err != nil {
			return nil, fmt.Errorf("init s3: %w", err)
		}
		backend = s3Host
	default:
		cloudinary, err := media.NewCloudinary(cfg.CloudinaryURL)
		if err != nil {
			return nil, fmt.Errorf("init cloudinary: %w", err)
		}
		backend = cloudinary
	}

	return media.NewBreakerHost(backend, cfg.MediaProvider, mediaBreakerFailures, mediaBreakerTimeout), nil
}
