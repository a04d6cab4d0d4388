package config

import (
	"log/slog"
	"os"
	"strconv"
	"time"
)

const defaultJWTSecret = "dev-secret-change-in-production"

type Config struct {
	Port        string
	Env         string
	LogLevel    string
	DatabaseDSN string

	RedisAddr     string
	RedisPassword string

	JWTSecret     string
	JWTExpiry     time.Duration
	ResetTokenTTL time.Duration

	OTP   OTPConfig
	Mail  MailConfig
	Sweep SweepConfig
}

// OTPConfig controls one-time code lifetimes. Grace applies uniformly to every
// flow that checks expiry.
type OTPConfig struct {
	TTL            time.Duration
	ResetTTL       time.Duration
	Grace          time.Duration
	ResendCooldown time.Duration
}

type MailConfig struct {
	SMTPHost    string
	SMTPPort    int
	SMTPUser    string
	SMTPPass    string
	From        string
	SendTimeout time.Duration
	MaxAttempts int
	Workers     int
	QueueSize   int
}

// Enabled reports whether enough SMTP settings are present to deliver mail.
func (m MailConfig) Enabled() bool {
	return m.SMTPHost != "" && m.SMTPUser != "" && m.From != ""
}

type SweepConfig struct {
	Interval    time.Duration
	Concurrency int
}

func Load() Config {
	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseDSN:   getEnv("DATABASE_DSN", "root:password@tcp(127.0.0.1:3306)/taskflow?parseTime=true&loc=UTC"),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		JWTSecret:     getEnv("JWT_SECRET", defaultJWTSecret),
		JWTExpiry:     getDuration("JWT_EXPIRY", 7*24*time.Hour),
		ResetTokenTTL: getDuration("RESET_TOKEN_TTL", 10*time.Minute),
		OTP: OTPConfig{
			TTL:            getDuration("OTP_TTL", 5*time.Minute),
			ResetTTL:       getDuration("OTP_RESET_TTL", 2*time.Minute),
			Grace:          getDuration("OTP_GRACE", 30*time.Second),
			ResendCooldown: getDuration("OTP_RESEND_COOLDOWN", time.Minute),
		},
		Mail: MailConfig{
			SMTPHost:    getEnv("SMTP_HOST", ""),
			SMTPPort:    getInt("SMTP_PORT", 587),
			SMTPUser:    getEnv("SMTP_USER", ""),
			SMTPPass:    getEnv("SMTP_PASS", ""),
			From:        getEnv("MAIL_FROM", ""),
			SendTimeout: getDuration("MAIL_SEND_TIMEOUT", 15*time.Second),
			MaxAttempts: getInt("MAIL_MAX_ATTEMPTS", 3),
			Workers:     getInt("MAIL_WORKERS", 2),
			QueueSize:   getInt("MAIL_QUEUE_SIZE", 256),
		},
		Sweep: SweepConfig{
			Interval:    getDuration("SWEEP_INTERVAL", time.Minute),
			Concurrency: getInt("SWEEP_CONCURRENCY", 4),
		},
	}

	if cfg.Env == "production" && cfg.JWTSecret == defaultJWTSecret {
		slog.Error("JWT_SECRET must be set in production environment")
		os.Exit(1)
	}

	return cfg
}

// IsProduction reports whether the service runs with ENV=production.
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("invalid integer in environment, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("invalid duration in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}
