package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Auth     AuthConfig
	Security SecurityConfig
}

type DatabaseConfig struct {
	Host              string
	Port              int
	User              string
	Password          string
	Name              string
	SSLMode           string
	MaxConns          int32
	MinConns          int32
	MaxConnLifetime   time.Duration
	MaxConnIdleTime   time.Duration
	HealthCheckPeriod time.Duration
}

type ServerConfig struct {
	Port           string
	Env            string
	LogLevel       string
	AllowedOrigins []string
}

type AuthConfig struct {
	// SessionSecret signs admin session JWTs
	SessionSecret string
	// CustomerTokenSecret keys the compact customer bearer tokens
	CustomerTokenSecret string
	CustomerTokenTTL    time.Duration
	AccessTokenExpiry   time.Duration
	RefreshTokenExpiry  time.Duration
	// TOTPEncryptionKey is the 32-byte AES-256 key (hex in the environment)
	// protecting TOTP secrets at rest
	TOTPEncryptionKey []byte
	TOTPIssuer        string
	TimingDelayBase   time.Duration
	TimingDelayRandom time.Duration
}

type SecurityConfig struct {
	SweepInterval      time.Duration
	AuditRetentionDays int
	AlertsEnabled      bool
	AlertsFromAddress  string
	AlertsToAddress    string
	AWSRegion          string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	sessionSecret := getEnv("SESSION_SECRET", "")
	if sessionSecret == "" {
		return nil, fmt.Errorf("SESSION_SECRET is required")
	}

	customerSecret := getEnv("CUSTOMER_TOKEN_SECRET", "")
	if customerSecret == "" {
		return nil, fmt.Errorf("CUSTOMER_TOKEN_SECRET is required")
	}

	totpKey, err := parseTOTPKey(getEnv("TOTP_ENCRYPTION_KEY", ""))
	if err != nil {
		return nil, err
	}

	env := getEnv("ENV", "development")

	cfg := &Config{
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			User:              getEnv("DB_USER", "postgres"),
			Password:          getEnv("DB_PASSWORD", ""),
			Name:              getEnv("DB_NAME", "bastion"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxConns:          int32(getEnvAsInt("DB_MAX_CONNS", 25)),
			MinConns:          int32(getEnvAsInt("DB_MIN_CONNS", 5)),
			MaxConnLifetime:   getEnvAsDuration("DB_MAX_CONN_LIFETIME", 5*time.Minute),
			MaxConnIdleTime:   getEnvAsDuration("DB_MAX_CONN_IDLE_TIME", 1*time.Minute),
			HealthCheckPeriod: getEnvAsDuration("DB_HEALTH_CHECK_PERIOD", 1*time.Minute),
		},
		Server: ServerConfig{
			Port:           getEnv("PORT", "8080"),
			Env:            env,
			LogLevel:       getEnv("LOG_LEVEL", "info"),
			AllowedOrigins: parseAllowedOrigins(env),
		},
		Auth: AuthConfig{
			SessionSecret:       sessionSecret,
			CustomerTokenSecret: customerSecret,
			CustomerTokenTTL:    getEnvAsDuration("CUSTOMER_TOKEN_TTL", 24*time.Hour),
			AccessTokenExpiry:   getEnvAsDuration("ACCESS_TOKEN_EXPIRY", 15*time.Minute),
			RefreshTokenExpiry:  getEnvAsDuration("REFRESH_TOKEN_EXPIRY", 7*24*time.Hour),
			TOTPEncryptionKey:   totpKey,
			TOTPIssuer:          getEnv("TOTP_ISSUER", "Bastion Admin"),
			TimingDelayBase:     getEnvAsDuration("TIMING_DELAY_BASE", 100*time.Millisecond),
			TimingDelayRandom:   getEnvAsDuration("TIMING_DELAY_RANDOM", 100*time.Millisecond),
		},
		Security: SecurityConfig{
			SweepInterval:      getEnvAsDuration("SWEEP_INTERVAL", 5*time.Minute),
			AuditRetentionDays: getEnvAsInt("AUDIT_RETENTION_DAYS", 365),
			AlertsEnabled:      getEnvAsBool("SECURITY_ALERTS_ENABLED", false),
			AlertsFromAddress:  getEnv("SECURITY_ALERTS_FROM", ""),
			AlertsToAddress:    getEnv("SECURITY_ALERTS_TO", ""),
			AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("DB_PASSWORD is required")
	}

	if err := validateSecret("SESSION_SECRET", sessionSecret, env); err != nil {
		return nil, err
	}
	if err := validateSecret("CUSTOMER_TOKEN_SECRET", customerSecret, env); err != nil {
		return nil, err
	}

	if cfg.Security.AlertsEnabled && (cfg.Security.AlertsFromAddress == "" || cfg.Security.AlertsToAddress == "") {
		return nil, fmt.Errorf("SECURITY_ALERTS_FROM and SECURITY_ALERTS_TO are required when alerts are enabled")
	}

	return cfg, nil
}

// parseTOTPKey decodes and validates the AES-256 key protecting TOTP secrets
func parseTOTPKey(hexKey string) ([]byte, error) {
	if hexKey == "" {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY is required")
	}

	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must be hex-encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("TOTP_ENCRYPTION_KEY must decode to 32 bytes, got %d", len(key))
	}
	return key, nil
}

// validateSecret enforces minimum signing secret strength
func validateSecret(name, secret, env string) error {
	minLength := 16
	if env == "production" {
		minLength = 32
	}

	if len(secret) < minLength {
		return fmt.Errorf("%s must be at least %d characters in %s environment (got %d)",
			name, minLength, env, len(secret))
	}

	weakSecrets := []string{
		"secret", "test", "password", "12345", "changeme",
		"admin", "root", "default", "example",
	}
	secretLower := strings.ToLower(secret)
	for _, weak := range weakSecrets {
		if secretLower == weak {
			return fmt.Errorf("%s cannot be a common weak value", name)
		}
	}

	return nil
}

func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Name, c.SSLMode,
	)
}

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultVal
}

func parseAllowedOrigins(env string) []string {
	if env == "production" {
		originsStr := getEnv("ALLOWED_ORIGINS", "")
		if originsStr == "" {
			return []string{}
		}
		origins := strings.Split(originsStr, ",")
		for i, origin := range origins {
			origins[i] = strings.TrimSpace(origin)
		}
		return origins
	}

	return []string{
		"http://localhost:3000",
		"http://localhost:8080",
		"http://127.0.0.1:3000",
		"http://127.0.0.1:8080",
	}
}
