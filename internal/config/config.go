// Package config loads server settings from the environment. A .env file in
// the working directory is read first when present; real environment
// variables win over it.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Port       int    `env:"PULSECHECK_PORT" envDefault:"8080"`
	DBPath     string `env:"PULSECHECK_DB_PATH" envDefault:"data/pulsecheck.db"`
	PublicURL  string `env:"PULSECHECK_PUBLIC_URL" envDefault:"http://localhost:8080"`
	LogLevel   string `env:"PULSECHECK_LOG_LEVEL" envDefault:"info"`
	LogFormat  string `env:"PULSECHECK_LOG_FORMAT" envDefault:"text"`
	OTelTarget string `env:"PULSECHECK_OTEL_ENDPOINT"`

	JWTSecret    string        `env:"PULSECHECK_JWT_SECRET"`
	TokenTTL     time.Duration `env:"PULSECHECK_TOKEN_TTL" envDefault:"24h"`
	CookieSecure bool          `env:"PULSECHECK_COOKIE_SECURE" envDefault:"false"`
	BcryptCost   int           `env:"PULSECHECK_BCRYPT_COST" envDefault:"12"`

	GitHubClientID     string `env:"PULSECHECK_GITHUB_CLIENT_ID"`
	GitHubClientSecret string `env:"PULSECHECK_GITHUB_CLIENT_SECRET"`
	GitHubCallbackURL  string `env:"PULSECHECK_GITHUB_CALLBACK_URL"`

	// AllowExplicitEnrollUser keeps the signup-time path where POST
	// /api/enrollments names a userId without a session.
	AllowExplicitEnrollUser bool `env:"PULSECHECK_ALLOW_EXPLICIT_ENROLL_USER" envDefault:"true"`

	SeedAdminEmail    string `env:"PULSECHECK_SEED_ADMIN_EMAIL"`
	SeedAdminPassword string `env:"PULSECHECK_SEED_ADMIN_PASSWORD"`
}

// Load reads .env (if any) and parses the environment into a Config.
func Load() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	return Parse()
}

// LoadStore is Load for commands that only open the database, such as
// the seeder. It does not require a session secret.
func LoadStore() (Config, error) {
	if err := loadDotEnv(); err != nil {
		return Config{}, err
	}
	return ParseStore()
}

// Parse reads the process environment only.
func Parse() (Config, error) {
	return parse(Config.Validate)
}

// ParseStore reads the process environment and applies ValidateStore.
func ParseStore() (Config, error) {
	return parse(Config.ValidateStore)
}

func loadDotEnv() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("config: reading .env: %w", err)
	}
	return nil
}

func parse(validate func(Config) error) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse env: %w", err)
	}
	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks everything the HTTP server needs.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("config: PULSECHECK_PORT %d out of range", c.Port)
	}
	if c.JWTSecret == "" {
		return errors.New("config: PULSECHECK_JWT_SECRET is required")
	}
	if len(c.JWTSecret) < 16 {
		return errors.New("config: PULSECHECK_JWT_SECRET must be at least 16 characters")
	}
	return c.ValidateStore()
}

// ValidateStore checks the settings shared by every command: storage,
// password hashing and logging.
func (c Config) ValidateStore() error {
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("config: PULSECHECK_BCRYPT_COST must be between 4 and 31, got %d", c.BcryptCost)
	}
	if strings.TrimSpace(c.DBPath) == "" {
		return errors.New("config: PULSECHECK_DB_PATH is required")
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("config: PULSECHECK_LOG_FORMAT must be text or json, got %q", c.LogFormat)
	}
	if _, err := parseLevel(c.LogLevel); err != nil {
		return err
	}
	return nil
}

// GitHubEnabled reports whether the OAuth routes should be mounted.
func (c Config) GitHubEnabled() bool {
	return c.GitHubClientID != "" && c.GitHubClientSecret != ""
}

// CallbackURL defaults to PublicURL + /auth/github/callback.
func (c Config) CallbackURL() string {
	if c.GitHubCallbackURL != "" {
		return c.GitHubCallbackURL
	}
	return strings.TrimRight(c.PublicURL, "/") + "/auth/github/callback"
}

// SlogLevel converts LogLevel; Validate has already rejected bad values.
func (c Config) SlogLevel() slog.Level {
	lvl, _ := parseLevel(c.LogLevel)
	return lvl
}

// NewLogger builds the process logger: text by default, JSON when
// PULSECHECK_LOG_FORMAT=json.
func (c Config) NewLogger(w io.Writer) *slog.Logger {
	opts := &slog.HandlerOptions{Level: c.SlogLevel()}
	if c.LogFormat == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

func parseLevel(s string) (slog.Level, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return slog.LevelInfo, fmt.Errorf("config: PULSECHECK_LOG_LEVEL: %w", err)
	}
	return lvl, nil
}
