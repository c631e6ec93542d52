package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMemory   = "memory"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
)

type Config struct {
	DatabaseURL     string
	TokenStore      string
	RedisURL        string
	RedisRetention  time.Duration
	MigrateOnStart  bool
	ServerPort      string
	ServerHost      string
	Environment     string
	BackendURL      string
	ShutdownTimeout time.Duration

	JWTAlgorithm  string
	JWTPrivateKey string
	JWTPublicKey  string

	AccessTokenTTL       time.Duration
	RefreshTokenTTL      time.Duration
	EmailConfirmTokenTTL time.Duration
	RefreshCookiePath    string
	RefreshCookieSecure  bool

	BcryptCost int

	RateLimitEnabled       bool
	RateLimitIPAttempts    int
	RateLimitIPWindow      time.Duration
	RateLimitUserAttempts  int
	RateLimitUserWindow    time.Duration
	RateLimitBlockDuration time.Duration

	LogLevel               string
	LogFormat              string
	LogCorrelationIDHeader string
	LogEnableRequestLog    bool

	CORSEnabled          bool
	CORSAllowedOrigins   []string
	CORSAllowCredentials bool

	// TrustedProxies are the IPs or CIDRs whose X-Forwarded-For and X-Real-IP
	// headers are believed. Empty means the TCP peer is the client.
	TrustedProxies []string

	// SMTPHost empty selects the logging mailer.
	SMTPHost      string
	SMTPPort      int
	SMTPUsername  string
	SMTPPassword  string
	SMTPFromEmail string
	SMTPFromName  string
}

var (
	ErrMissingDatabaseURL  = errors.New("DATABASE_URL is required")
	ErrMissingSigningKey   = errors.New("JWT_PRIVATE_KEY or JWT_PRIVATE_KEY_FILE is required in production")
	ErrInvalidTokenTTL     = errors.New("invalid token TTL format")
	ErrInvalidJWTAlgorithm = errors.New("invalid JWT algorithm")
	ErrInvalidTokenStore   = errors.New("invalid TOKEN_STORE")
)

// Load reads the environment, after merging a .env file when one exists.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		DatabaseURL:            os.Getenv("DATABASE_URL"),
		TokenStore:             strings.ToLower(getEnvOrDefault("TOKEN_STORE", StorePostgres)),
		RedisURL:               getEnvOrDefault("REDIS_URL", "redis://localhost:6379/0"),
		MigrateOnStart:         getEnvOrDefaultBool("MIGRATE_ON_START", true),
		ServerPort:             getEnvOrDefault("SERVER_PORT", "8080"),
		ServerHost:             getEnvOrDefault("SERVER_HOST", "localhost"),
		Environment:            getEnvOrDefault("ENV", "development"),
		JWTAlgorithm:           strings.ToUpper(getEnvOrDefault("JWT_ALG", "RS256")),
		RefreshCookiePath:      getEnvOrDefault("REFRESH_COOKIE_PATH", "/token/new-access-token"),
		RefreshCookieSecure:    getEnvOrDefaultBool("REFRESH_COOKIE_SECURE", true),
		BcryptCost:             getEnvOrDefaultInt("BCRYPT_COST", 12),
		RateLimitEnabled:       getEnvOrDefaultBool("RATE_LIMIT_ENABLED", true),
		RateLimitIPAttempts:    getEnvOrDefaultInt("RATE_LIMIT_IP_ATTEMPTS", 5),
		RateLimitUserAttempts:  getEnvOrDefaultInt("RATE_LIMIT_USER_ATTEMPTS", 10),
		LogLevel:               getEnvOrDefault("LOG_LEVEL", "info"),
		LogFormat:              getEnvOrDefault("LOG_FORMAT", "json"),
		LogCorrelationIDHeader: getEnvOrDefault("LOG_CORRELATION_ID_HEADER", "X-Correlation-ID"),
		LogEnableRequestLog:    getEnvOrDefaultBool("LOG_ENABLE_REQUEST_LOG", true),
		CORSEnabled:            getEnvOrDefaultBool("CORS_ENABLED", true),
		CORSAllowCredentials:   getEnvOrDefaultBool("CORS_ALLOW_CREDENTIALS", true),
		CORSAllowedOrigins:     parseList(getEnvOrDefault("CORS_ALLOWED_ORIGINS", "")),
		TrustedProxies:         parseList(os.Getenv("TRUSTED_PROXIES")),
		SMTPHost:               os.Getenv("SMTP_HOST"),
		SMTPPort:               getEnvOrDefaultInt("SMTP_PORT", 587),
		SMTPUsername:           os.Getenv("SMTP_USERNAME"),
		SMTPPassword:           os.Getenv("SMTP_PASSWORD"),
		SMTPFromEmail:          getEnvOrDefault("SMTP_FROM_EMAIL", "no-reply@localhost"),
		SMTPFromName:           getEnvOrDefault("SMTP_FROM_NAME", "Mentor Club"),
	}

	cfg.BackendURL = strings.TrimRight(
		getEnvOrDefault("BACKEND_DEPLOYMENT_URL", "http://"+cfg.ServerHost+":"+cfg.ServerPort), "/")

	switch cfg.TokenStore {
	case StoreMemory:
	case StorePostgres, StoreRedis:
		if cfg.DatabaseURL == "" {
			return nil, ErrMissingDatabaseURL
		}
	default:
		return nil, fmt.Errorf("%w: %q", ErrInvalidTokenStore, cfg.TokenStore)
	}

	switch cfg.JWTAlgorithm {
	case "RS256", "EDDSA", "ED25519":
	default:
		return nil, ErrInvalidJWTAlgorithm
	}

	var err error
	if cfg.JWTPrivateKey, err = loadPEM("JWT_PRIVATE_KEY"); err != nil {
		return nil, err
	}
	if cfg.JWTPublicKey, err = loadPEM("JWT_PUBLIC_KEY"); err != nil {
		return nil, err
	}
	if cfg.JWTPrivateKey == "" && cfg.IsProduction() {
		return nil, ErrMissingSigningKey
	}

	durations := []struct {
		key    string
		def    string
		target *time.Duration
	}{
		{"ACCESS_TOKEN_TTL", "900", &cfg.AccessTokenTTL},
		{"REFRESH_TOKEN_TTL", "2592000", &cfg.RefreshTokenTTL},
		{"EMAIL_CONFIRM_TOKEN_TTL", "86400", &cfg.EmailConfirmTokenTTL},
		{"RATE_LIMIT_IP_WINDOW", "900", &cfg.RateLimitIPWindow},
		{"RATE_LIMIT_USER_WINDOW", "3600", &cfg.RateLimitUserWindow},
		{"RATE_LIMIT_BLOCK_DURATION", "1800", &cfg.RateLimitBlockDuration},
		{"REDIS_TOKEN_RETENTION", "3600", &cfg.RedisRetention},
		{"SHUTDOWN_TIMEOUT", "15", &cfg.ShutdownTimeout},
	}
	for _, d := range durations {
		ttl, err := parseTokenTTL(getEnvOrDefault(d.key, d.def))
		if err != nil || ttl <= 0 {
			return nil, fmt.Errorf("%w: %s", ErrInvalidTokenTTL, d.key)
		}
		*d.target = ttl
	}

	return cfg, nil
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, "production")
}

func (c *Config) Address() string {
	return c.ServerHost + ":" + c.ServerPort
}

// loadPEM reads KEY inline, with escaped newlines allowed, or from the file
// named by KEY_FILE.
func loadPEM(key string) (string, error) {
	if inline := os.Getenv(key); inline != "" {
		return strings.ReplaceAll(inline, `\n`, "\n"), nil
	}
	path := os.Getenv(key + "_FILE")
	if path == "" {
		return "", nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read %s_FILE: %w", key, err)
	}
	return string(data), nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvOrDefaultBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

func getEnvOrDefaultInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return defaultValue
		}
		return parsed
	}
	return defaultValue
}

// parseTokenTTL accepts plain seconds or a Go duration such as "30m".
func parseTokenTTL(value string) (time.Duration, error) {
	if seconds, err := strconv.Atoi(value); err == nil {
		return time.Duration(seconds) * time.Second, nil
	}
	return time.ParseDuration(value)
}

func parseList(value string) []string {
	if value == "" {
		return []string{}
	}
	parts := strings.Split(value, ",")
	res := make([]string, 0, len(parts))
	for _, p := range parts {
		trimmed := strings.TrimSpace(p)
		if trimmed != "" {
			res = append(res, trimmed)
		}
	}
	return res
}
