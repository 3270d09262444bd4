// Package config loads the server configuration from the environment.
//
// A .env file in the working directory is loaded first when present; real
// environment variables win over it. The resulting Config is built once at
// startup and handed to server.New; nothing reads the environment afterwards.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v6"
	"github.com/joho/godotenv"
)

// S3 configures the optional S3/MinIO avatar backend. Avatars go to local
// disk unless Bucket is set.
type S3 struct {
	Bucket          string `env:"BUCKET"`
	Endpoint        string `env:"ENDPOINT"`
	Region          string `env:"REGION" envDefault:"us-east-1"`
	AccessKeyID     string `env:"ACCESS_KEY_ID"`
	SecretAccessKey string `env:"SECRET_ACCESS_KEY"`
	PublicURL       string `env:"PUBLIC_URL"`
	UsePathStyle    bool   `env:"USE_PATH_STYLE" envDefault:"true"`
}

// Enabled reports whether avatars should be stored in S3.
func (s S3) Enabled() bool {
	return s.Bucket != ""
}

// Config holds every setting the server needs.
type Config struct {
	Port        int    `env:"PORT" envDefault:"4000"`
	Environment string `env:"ENVIRONMENT" envDefault:"development"`

	DBPath    string `env:"DB_PATH" envDefault:"data/starblog.db"`
	UploadDir string `env:"UPLOAD_DIR" envDefault:"uploads"`

	JWTSecret string `env:"JWT_SECRET,required"`

	GoogleClientID     string `env:"GOOGLE_CLIENT_ID,required"`
	GoogleClientSecret string `env:"GOOGLE_CLIENT_SECRET,required"`
	GoogleCallbackURL  string `env:"GOOGLE_CALLBACK_URL"`

	// ClientURL is the frontend origin: OAuth redirects land there and it is
	// the only origin allowed by CORS and the socket handshake.
	ClientURL string `env:"CLIENT_URL,required"`

	RedisURL  string `env:"REDIS_URL"`
	SentryDSN string `env:"SENTRY_DSN"`

	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

	S3 S3 `envPrefix:"S3_"`
}

// Load reads .env (if any) and the process environment.
func Load() (*Config, error) {
	if _, err := os.Stat(".env"); err == nil {
		if err := godotenv.Load(); err != nil {
			return nil, fmt.Errorf("config: loading .env: %w", err)
		}
	}
	return parse(env.Options{})
}

// LoadFrom parses environ instead of the process environment.
func LoadFrom(environ map[string]string) (*Config, error) {
	return parse(env.Options{Environment: environ})
}

func parse(opts env.Options) (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg, opts); err != nil {
		return nil, fmt.Errorf("config: parsing environment: %w", err)
	}

	cfg.ClientURL = strings.TrimRight(cfg.ClientURL, "/")
	if cfg.GoogleCallbackURL == "" {
		cfg.GoogleCallbackURL = fmt.Sprintf("http://localhost:%d/api/auth/google/callback", cfg.Port)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross-field constraints the struct tags cannot express.
func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("PORT %d is out of range", c.Port))
	}
	if len(c.JWTSecret) < 16 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 16 characters"))
	}
	if !strings.HasPrefix(c.ClientURL, "http://") && !strings.HasPrefix(c.ClientURL, "https://") {
		errs = append(errs, fmt.Errorf("CLIENT_URL %q must be an http(s) URL", c.ClientURL))
	}
	if c.S3.Enabled() && (c.S3.AccessKeyID == "") != (c.S3.SecretAccessKey == "") {
		errs = append(errs, errors.New("S3_ACCESS_KEY_ID and S3_SECRET_ACCESS_KEY must be set together"))
	}
	if c.IsProduction() && strings.HasPrefix(c.ClientURL, "http://") {
		errs = append(errs, errors.New("CLIENT_URL must use https in production"))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

// IsProduction reports whether the server runs in production mode.
func (c *Config) IsProduction() bool {
	e := strings.ToLower(c.Environment)
	return e == "production" || e == "prod"
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}
