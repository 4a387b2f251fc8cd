package config

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	AppEnv   string
	HTTPAddr string
	LogLevel string

	DBDriver    string
	DatabaseURL string

	SessionTTL         time.Duration
	SessionRememberTTL time.Duration
	VerifyTokenTTL     time.Duration
	InviteTokenTTL     time.Duration
	ResetTokenTTL      time.Duration

	SMTPHost     string
	SMTPPort     int
	SMTPUser     string
	SMTPPassword string
	SMTPInsecure bool
	MailFrom     string
	AppBaseURL   string

	KafkaBrokers    []string
	KafkaAuditTopic string

	BootstrapAdminEmail    string
	BootstrapAdminPassword string
}

func (c Config) Production() bool {
	return strings.EqualFold(c.AppEnv, "production")
}

func Load() Config {
	if err := godotenv.Load(".env"); err != nil {
		log.Printf("Notice: .env file not found: %v. Using system environment variables", err)
	}

	return Config{
		AppEnv:   EnvDefault("APP_ENV", "development"),
		HTTPAddr: EnvDefault("HTTP_ADDR", ":8080"),
		LogLevel: EnvDefault("LOG_LEVEL", "info"),

		DBDriver:    EnvDefault("DB_DRIVER", "postgres"),
		DatabaseURL: os.Getenv("DATABASE_URL"),

		SessionTTL:         EnvDurationDefault("SESSION_TTL", 24*time.Hour),
		SessionRememberTTL: EnvDurationDefault("SESSION_REMEMBER_TTL", 14*24*time.Hour),
		VerifyTokenTTL:     EnvDurationDefault("VERIFY_TOKEN_TTL", 24*time.Hour),
		InviteTokenTTL:     EnvDurationDefault("INVITE_TOKEN_TTL", 7*24*time.Hour),
		ResetTokenTTL:      EnvDurationDefault("RESET_TOKEN_TTL", time.Hour),

		SMTPHost:     os.Getenv("SMTP_HOST"),
		SMTPPort:     EnvIntDefault("SMTP_PORT", 587),
		SMTPUser:     os.Getenv("SMTP_USER"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		SMTPInsecure: EnvBoolDefault("SMTP_INSECURE", false),
		MailFrom:     EnvDefault("MAIL_FROM", "no-reply@localhost"),
		AppBaseURL:   strings.TrimRight(EnvDefault("APP_BASE_URL", "http://localhost:3000"), "/"),

		KafkaBrokers:    CSV(os.Getenv("KAFKA_BROKERS")),
		KafkaAuditTopic: EnvDefault("KAFKA_AUDIT_TOPIC", "ums_audit"),

		BootstrapAdminEmail:    os.Getenv("BOOTSTRAP_ADMIN_EMAIL"),
		BootstrapAdminPassword: os.Getenv("BOOTSTRAP_ADMIN_PASSWORD"),
	}
}

// Validate reports settings that only make sense together.
func (c Config) Validate() error {
	if c.BootstrapAdminEmail != "" {
		if err := mustNonEmpty(c.BootstrapAdminPassword, "BOOTSTRAP_ADMIN_PASSWORD"); err != nil {
			return err
		}
	}
	if c.SMTPHost != "" {
		if err := mustNonEmpty(c.MailFrom, "MAIL_FROM"); err != nil {
			return err
		}
	}
	return nil
}

func mustNonEmpty(value, envName string) error {
	if value == "" {
		return fmt.Errorf("missing required env %s", envName)
	}
	return nil
}

func CSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func EnvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func EnvIntDefault(key string, def int) int {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func EnvBoolDefault(key string, def bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

// EnvDurationDefault accepts time.ParseDuration syntax ("24h", "90m").
func EnvDurationDefault(key string, def time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
