package config

import (
	"os"
	"time"
)

type Config struct {
	// Database
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string
	DBSSLMode  string

	// JWT (shared across all tenants)
	JWTSecret string

	// Anonymization secret for keyed fingerprints. Must be at least 32
	// bytes; startup fails otherwise. Rotating it invalidates all prior
	// fingerprints (rate windows and duplicate detection reset).
	AnonSecret string

	// Messaging gateway (external chat platform bridge)
	GatewayURL     string
	GatewayToken   string
	GatewayTimeout time.Duration

	// Audit log directory (per tenant+month append-only segments)
	AuditDir string

	// Background sweeps
	SessionSweepInterval    time.Duration
	RelaySweepInterval      time.Duration
	ReputationRetryInterval time.Duration

	// Admin
	AdminToken string

	// Server
	Port        string
	CORSOrigins string

	// Tenant policy registry
	PoliciesPath string
}

func Load() *Config {
	return &Config{
		DBHost:     getEnv("DB_HOST", "localhost"),
		DBPort:     getEnv("DB_PORT", "5432"),
		DBUser:     getEnv("DB_USER", "postgres"),
		DBPassword: getEnv("DB_PASSWORD", ""),
		DBName:     getEnv("DB_NAME", "crossguard_db"),
		DBSSLMode:  getEnv("DB_SSLMODE", "disable"),

		JWTSecret:  getEnv("JWT_SECRET", ""),
		AnonSecret: getEnv("ANON_SECRET", ""),

		GatewayURL:     getEnv("GATEWAY_URL", ""),
		GatewayToken:   getEnv("GATEWAY_TOKEN", ""),
		GatewayTimeout: parseDuration(getEnv("GATEWAY_TIMEOUT", "10s"), 10*time.Second),

		AuditDir: getEnv("AUDIT_DIR", "./audit"),

		SessionSweepInterval:    parseDuration(getEnv("SESSION_SWEEP_INTERVAL", "5m"), 5*time.Minute),
		RelaySweepInterval:      parseDuration(getEnv("RELAY_SWEEP_INTERVAL", "5m"), 5*time.Minute),
		ReputationRetryInterval: parseDuration(getEnv("REPUTATION_RETRY_INTERVAL", "1m"), time.Minute),

		AdminToken: getEnv("ADMIN_TOKEN", ""),

		Port:        getEnv("PORT", "8080"),
		CORSOrigins: getEnv("CORS_ORIGINS", "*"),

		PoliciesPath: getEnv("POLICIES_CONFIG_PATH", "tenants.json"),
	}
}

func (c *Config) DSN() string {
	return "host=" + c.DBHost +
		" user=" + c.DBUser +
		" password=" + c.DBPassword +
		" dbname=" + c.DBName +
		" port=" + c.DBPort +
		" sslmode=" + c.DBSSLMode +
		" TimeZone=UTC"
}

func getEnv(key, fallback string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return fallback
}

func parseDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
