package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/emilythestrangee/lireddit/backend/internal/database"
)

const (
	envPrefix             = "APP"
	defaultPort           = "8080"
	defaultDatabaseDriver = "pgx"
	defaultLogLevel       = "info"
	defaultCookieName     = "qid"
	defaultTokenTTL       = 72 * time.Hour
	defaultLoaderWait     = 2 * time.Millisecond
	defaultLoaderMaxBatch = 100
	defaultVoteAttempts   = 3
	defaultResetURLPrefix = "http://localhost:3000/change-password/"
	defaultResetTokenTTL  = 72 * time.Hour
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress string
	LogLevel    string

	DatabaseDriver       string
	DatabaseDSN          string
	DatabaseMaxOpenConns int

	SigningSecret string
	TokenTTL      time.Duration
	CookieName    string
	CookieSecure  bool
	CORSOrigins   []string

	LoaderWait      time.Duration
	LoaderMaxBatch  int
	VoteMaxAttempts int

	ResetURLPrefix string
	ResetTokenTTL  time.Duration

	TwilioAccountSID string
	TwilioAuthToken  string
	TwilioFrom       string
}

// TwilioEnabled reports whether SMS delivery credentials are present.
func (c AppConfig) TwilioEnabled() bool {
	return c.TwilioAccountSID != "" && c.TwilioAuthToken != "" && c.TwilioFrom != ""
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	// Plain variable names kept for existing .env files.
	bindEnv(configViper, "http.port", "PORT")
	bindEnv(configViper, "auth.signing_secret", "APP_AUTH_SIGNING_SECRET", "JWT_SECRET")
	bindEnv(configViper, "database.url", "APP_DATABASE_URL", "DATABASE_URL")
	bindEnv(configViper, "db.host", "DB_HOST")
	bindEnv(configViper, "db.port", "DB_PORT")
	bindEnv(configViper, "db.user", "DB_USER")
	bindEnv(configViper, "db.password", "DB_PASSWORD")
	bindEnv(configViper, "db.name", "DB_NAME")
	bindEnv(configViper, "db.sslmode", "DB_SSLMODE")
	bindEnv(configViper, "twilio.account_sid", "APP_TWILIO_ACCOUNT_SID", "TWILIO_ACCOUNT_SID")
	bindEnv(configViper, "twilio.auth_token", "APP_TWILIO_AUTH_TOKEN", "TWILIO_AUTH_TOKEN")
	bindEnv(configViper, "twilio.from", "APP_TWILIO_FROM", "TWILIO_FROM")

	configViper.SetDefault("http.port", defaultPort)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("database.driver", defaultDatabaseDriver)
	configViper.SetDefault("database.max_open_conns", 100)
	configViper.SetDefault("db.host", "localhost")
	configViper.SetDefault("db.port", "5432")
	configViper.SetDefault("db.sslmode", "disable")
	configViper.SetDefault("auth.token_ttl", defaultTokenTTL)
	configViper.SetDefault("cookie.name", defaultCookieName)
	configViper.SetDefault("cookie.secure", false)
	configViper.SetDefault("cors.origins", []string{"http://localhost:3000"})
	configViper.SetDefault("loader.wait", defaultLoaderWait)
	configViper.SetDefault("loader.max_batch", defaultLoaderMaxBatch)
	configViper.SetDefault("vote.max_attempts", defaultVoteAttempts)
	configViper.SetDefault("reset.url_prefix", defaultResetURLPrefix)
	configViper.SetDefault("reset.token_ttl", defaultResetTokenTTL)
}

func bindEnv(configViper *viper.Viper, key string, envNames ...string) {
	args := append([]string{key}, envNames...)
	if err := configViper.BindEnv(args...); err != nil {
		panic(err)
	}
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:          configViper.GetString("http.address"),
		LogLevel:             configViper.GetString("log.level"),
		DatabaseDriver:       strings.ToLower(configViper.GetString("database.driver")),
		DatabaseDSN:          configViper.GetString("database.dsn"),
		DatabaseMaxOpenConns: configViper.GetInt("database.max_open_conns"),
		SigningSecret:        configViper.GetString("auth.signing_secret"),
		TokenTTL:             configViper.GetDuration("auth.token_ttl"),
		CookieName:           configViper.GetString("cookie.name"),
		CookieSecure:         configViper.GetBool("cookie.secure"),
		CORSOrigins:          configViper.GetStringSlice("cors.origins"),
		LoaderWait:           configViper.GetDuration("loader.wait"),
		LoaderMaxBatch:       configViper.GetInt("loader.max_batch"),
		VoteMaxAttempts:      configViper.GetInt("vote.max_attempts"),
		ResetURLPrefix:       configViper.GetString("reset.url_prefix"),
		ResetTokenTTL:        configViper.GetDuration("reset.token_ttl"),
		TwilioAccountSID:     configViper.GetString("twilio.account_sid"),
		TwilioAuthToken:      configViper.GetString("twilio.auth_token"),
		TwilioFrom:           configViper.GetString("twilio.from"),
	}

	if strings.TrimSpace(cfg.HTTPAddress) == "" {
		cfg.HTTPAddress = "0.0.0.0:" + configViper.GetString("http.port")
	}

	if cfg.DatabaseDSN == "" {
		cfg.DatabaseDSN = configViper.GetString("database.url")
	}
	if cfg.DatabaseDSN == "" && cfg.DatabaseDriver != "sqlite" {
		cfg.DatabaseDSN = database.PostgresDSN(
			configViper.GetString("db.host"),
			configViper.GetString("db.port"),
			configViper.GetString("db.user"),
			configViper.GetString("db.password"),
			configViper.GetString("db.name"),
			configViper.GetString("db.sslmode"),
		)
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	switch c.DatabaseDriver {
	case "pgx", "postgres", "sqlite":
	default:
		return fmt.Errorf("database.driver must be one of pgx, postgres, sqlite")
	}
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("database.dsn is required")
	}
	if strings.TrimSpace(c.CookieName) == "" {
		return fmt.Errorf("cookie.name is required")
	}
	if c.TokenTTL <= 0 {
		return fmt.Errorf("auth.token_ttl must be positive")
	}
	if c.VoteMaxAttempts < 1 {
		return fmt.Errorf("vote.max_attempts must be at least 1")
	}
	return nil
}
