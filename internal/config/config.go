package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
)

const (
	MediaProviderCloudinary = "cloudinary"
	MediaProviderS3         = "s3"
)

// Config holds everything the service reads from the environment.
type Config struct {
	AppEnv string `env:"APP_ENV" envDefault:"development"`
	Port   string `env:"PORT" envDefault:"8080"`

	DatabaseURL            string        `env:"DATABASE_URL,required,notEmpty"`
	DBMaxOpenConns         int           `env:"DB_MAX_OPEN_CONNS" envDefault:"10"`
	DBMaxIdleConns         int           `env:"DB_MAX_IDLE_CONNS" envDefault:"5"`
	DBConnMaxLifetime      time.Duration `env:"DB_CONN_MAX_LIFETIME" envDefault:"30m"`
	DBConnMaxIdleTime      time.Duration `env:"DB_CONN_MAX_IDLE_TIME" envDefault:"10m"`
	RunMigrationsOnStartup bool          `env:"RUN_MIGRATIONS_ON_STARTUP" envDefault:"true"`

	AccessTokenSecret  string        `env:"ACCESS_TOKEN_SECRET,required,notEmpty"`
	AccessTokenExpiry  time.Duration `env:"ACCESS_TOKEN_EXPIRY" envDefault:"15m"`
	RefreshTokenSecret string        `env:"REFRESH_TOKEN_SECRET,required,notEmpty"`
	RefreshTokenExpiry time.Duration `env:"REFRESH_TOKEN_EXPIRY" envDefault:"240h"`

	LoginRateLimitMax    int           `env:"LOGIN_RATE_LIMIT_MAX" envDefault:"10"`
	LoginRateLimitWindow time.Duration `env:"LOGIN_RATE_LIMIT_WINDOW" envDefault:"1m"`
	TrustedProxyHops     int           `env:"TRUSTED_PROXY_HOPS" envDefault:"1"`

	MediaProvider string `env:"MEDIA_PROVIDER" envDefault:"cloudinary"`
	CloudinaryURL string `env:"CLOUDINARY_URL"`

	S3Bucket        string `env:"S3_BUCKET"`
	S3Region        string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Endpoint      string `env:"S3_ENDPOINT"`
	S3AccessKey     string `env:"S3_ACCESS_KEY"`
	S3SecretKey     string `env:"S3_SECRET_KEY"`
	S3PublicBaseURL string `env:"S3_PUBLIC_BASE_URL"`
	S3KeyPrefix     string `env:"S3_KEY_PREFIX" envDefault:"media/"`

	UploadDir           string        `env:"UPLOAD_DIR"`
	MaxUploadBytes      int64         `env:"MAX_UPLOAD_BYTES" envDefault:"10485760"`
	StagedFileRetention time.Duration `env:"STAGED_FILE_RETENTION" envDefault:"1h"`

	SentryDSN        string `env:"SENTRY_DSN"`
	SentryRelease    string `env:"SENTRY_RELEASE"`
	CronSecret       string `env:"CRON_SECRET"`
	CleanupBatchSize int    `env:"CLEANUP_BATCH_SIZE" envDefault:"500"`
}

// Load parses the environment into a Config and validates it.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field rules env tags cannot express.
func (c *Config) Validate() error {
	c.MediaProvider = strings.ToLower(strings.TrimSpace(c.MediaProvider))

	if c.AccessTokenSecret == c.RefreshTokenSecret {
		return fmt.Errorf("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ")
	}
	if c.AccessTokenExpiry <= 0 || c.RefreshTokenExpiry <= 0 {
		return fmt.Errorf("token expiries must be positive")
	}
	if c.AccessTokenExpiry >= c.RefreshTokenExpiry {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRY must be shorter than REFRESH_TOKEN_EXPIRY")
	}
	if c.AppEnv != "development" && len(c.AccessTokenSecret) < 32 {
		return fmt.Errorf("ACCESS_TOKEN_SECRET must be at least 32 characters in %q mode", c.AppEnv)
	}

	switch c.MediaProvider {
	case MediaProviderCloudinary:
		if strings.TrimSpace(c.CloudinaryURL) == "" {
			return fmt.Errorf("missing required env: CLOUDINARY_URL")
		}
	case MediaProviderS3:
		if c.S3Bucket == "" || c.S3PublicBaseURL == "" {
			return fmt.Errorf("S3_BUCKET and S3_PUBLIC_BASE_URL are required for the s3 media provider")
		}
	default:
		return fmt.Errorf("unknown MEDIA_PROVIDER %q", c.MediaProvider)
	}

	if c.MaxUploadBytes <= 0 {
		return fmt.Errorf("MAX_UPLOAD_BYTES must be positive")
	}

	return nil
}
