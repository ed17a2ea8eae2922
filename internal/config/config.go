package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreFile     = "file"
	StoreSQLite   = "sqlite"
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration
	CORSOrigins             []string
	RateLimitRPM            int
	AuthRateLimitRPM        int

	LogFormat string
	LogLevel  string

	AccessTokenSecret string
	AccessTokenTTL    time.Duration

	IdentityStore     string
	IdentityRecordKey string
	IdentityFile      string
	SQLitePath        string
	DatabaseURL       string
	DBMaxConns        int32
	DBMinConns        int32

	LoginLatency time.Duration
	DemoEmail    string
	DemoPassword string

	SessionWarningAfter  time.Duration
	SessionExpireAfter   time.Duration
	SessionCheckInterval time.Duration
	SessionCountdownSecs int
	SessionMaxAge        time.Duration
	BankAPILatency       time.Duration
	AuditLogFile         string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8080"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 30*time.Second),
		CORSOrigins:             splitCSV(getEnv("CORS_ORIGINS", "*")),
		RateLimitRPM:            getInt("RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM:        getInt("AUTH_RATE_LIMIT_RPM", 10),

		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "pretty")),
		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),

		AccessTokenSecret: strings.TrimSpace(os.Getenv("ACCESS_TOKEN_SECRET")),
		AccessTokenTTL:    getDuration("ACCESS_TOKEN_TTL", 12*time.Hour),

		IdentityStore:     strings.ToLower(getEnv("IDENTITY_STORE", StoreFile)),
		IdentityRecordKey: getEnv("IDENTITY_RECORD_KEY", "banking_auth_token"),
		IdentityFile:      getEnv("IDENTITY_FILE", "./state/client-storage.json"),
		SQLitePath:        getEnv("SQLITE_PATH", "./state/client-storage.db"),
		DatabaseURL:       strings.TrimSpace(os.Getenv("DATABASE_URL")),
		DBMaxConns:        int32(getInt("DB_MAX_CONNS", 4)),
		DBMinConns:        int32(getInt("DB_MIN_CONNS", 1)),

		LoginLatency: getDuration("LOGIN_LATENCY", time.Second),
		DemoEmail:    getEnv("DEMO_EMAIL", "demo@bank.com"),
		DemoPassword: getEnv("DEMO_PASSWORD", "demo1235"),

		SessionWarningAfter:  getDuration("SESSION_WARNING_AFTER", 4*time.Minute),
		SessionExpireAfter:   getDuration("SESSION_EXPIRE_AFTER", 5*time.Minute),
		SessionCheckInterval: getDuration("SESSION_CHECK_INTERVAL", time.Second),
		SessionCountdownSecs: getInt("SESSION_COUNTDOWN_SECONDS", 60),
		SessionMaxAge:        getDuration("SESSION_MAX_AGE", 12*time.Hour),
		BankAPILatency:       getDuration("BANK_API_LATENCY", 0),
		AuditLogFile:         getEnv("AUDIT_LOG_FILE", "./state/audit.log"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.AccessTokenSecret) == "" {
		return fmt.Errorf("ACCESS_TOKEN_SECRET is required")
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.AccessTokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_TTL must be positive")
	}

	switch c.LogFormat {
	case "pretty", "json":
	default:
		return fmt.Errorf("LOG_FORMAT must be one of pretty, json")
	}

	if strings.TrimSpace(c.IdentityRecordKey) == "" {
		return fmt.Errorf("IDENTITY_RECORD_KEY cannot be empty")
	}

	switch c.IdentityStore {
	case StoreFile:
		if strings.TrimSpace(c.IdentityFile) == "" {
			return fmt.Errorf("IDENTITY_FILE cannot be empty")
		}
	case StoreSQLite:
		if strings.TrimSpace(c.SQLitePath) == "" {
			return fmt.Errorf("SQLITE_PATH cannot be empty")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when IDENTITY_STORE=postgres")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("DB_MIN_CONNS/DB_MAX_CONNS are out of range")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("IDENTITY_STORE must be one of file, sqlite, postgres, memory")
	}

	if c.LoginLatency < 0 {
		return fmt.Errorf("LOGIN_LATENCY cannot be negative")
	}

	if c.SessionWarningAfter <= 0 || c.SessionExpireAfter <= 0 {
		return fmt.Errorf("SESSION_WARNING_AFTER and SESSION_EXPIRE_AFTER must be positive")
	}

	if c.SessionWarningAfter >= c.SessionExpireAfter {
		return fmt.Errorf("SESSION_WARNING_AFTER must be less than SESSION_EXPIRE_AFTER")
	}

	if c.SessionCheckInterval <= 0 {
		return fmt.Errorf("SESSION_CHECK_INTERVAL must be positive")
	}

	if c.SessionCountdownSecs <= 0 {
		return fmt.Errorf("SESSION_COUNTDOWN_SECONDS must be positive")
	}

	if c.SessionMaxAge < 0 {
		return fmt.Errorf("SESSION_MAX_AGE cannot be negative")
	}

	if c.SessionMaxAge > c.AccessTokenTTL {
		return fmt.Errorf("SESSION_MAX_AGE cannot exceed ACCESS_TOKEN_TTL")
	}

	if strings.TrimSpace(c.AuditLogFile) == "" {
		return fmt.Errorf("AUDIT_LOG_FILE cannot be empty")
	}

	return nil
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
