package config

import (
	"errors"
	"os"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPAddr string

	DB       DBConfig
	Stripe   StripeConfig
	SMTP     SMTPConfig
	Mailtrap MailtrapConfig
	Kafka    KafkaConfig
	Log      LogConfig
	Session  SessionConfig
	Storage  StorageConfig

	// NotifyDrivers: log|smtp|mailtrap|kafka (NOTIFY_DRIVER, comma separated)
	NotifyDrivers []string
}

type DBConfig struct {
	Driver      string // postgres|mysql|sqlite
	DSN         string
	AutoMigrate bool
}

type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
}

type SMTPConfig struct {
	Host          string
	Port          string
	User          string
	Pass          string
	TLSMode       string // none|tls|starttls
	SkipVerifyTLS bool
	From          string
	FromName      string
}

type MailtrapConfig struct {
	APIURL   string
	APIToken string
}

type KafkaConfig struct {
	Brokers []string
	Topic   string
}

type LogConfig struct {
	Level string
	File  string // empty => stdout only
}

type SessionConfig struct {
	CookieName string
}

type StorageConfig struct {
	Driver string // local|s3

	LocalDir       string
	LocalURLPrefix string

	S3Region        string
	S3Bucket        string
	S3Prefix        string
	S3PublicBaseURL string
}

// Load reads .env (if present) and then the process environment.
// Production deployments use real env vars; a missing .env is not an error.
func Load() (Config, error) {
	_ = godotenv.Load()
	return FromEnv(os.Getenv)
}

// FromEnv builds a Config from a lookup function.
func FromEnv(getenv func(string) string) (Config, error) {
	get := func(k, def string) string {
		if v := strings.TrimSpace(getenv(k)); v != "" {
			return v
		}
		return def
	}

	cfg := Config{
		HTTPAddr: get("HTTP_ADDR", ":8080"),
		DB: DBConfig{
			Driver:      strings.ToLower(get("DB_DRIVER", "postgres")),
			DSN:         get("DB_DSN", ""),
			AutoMigrate: parseBool(get("DB_AUTO_MIGRATE", "false")),
		},
		Stripe: StripeConfig{
			SecretKey:     get("STRIPE_SECRET_KEY", ""),
			WebhookSecret: get("STRIPE_WEBHOOK_SECRET", ""),
		},
		SMTP: SMTPConfig{
			Host:          get("SMTP_HOST", "localhost"),
			Port:          get("SMTP_PORT", "1025"),
			User:          get("SMTP_USER", ""),
			Pass:          get("SMTP_PASS", ""),
			TLSMode:       strings.ToLower(get("SMTP_TLS_MODE", "none")),
			SkipVerifyTLS: parseBool(get("SMTP_SKIP_VERIFY_TLS", "false")),
			From:          get("EMAIL_FROM", "no-reply@localhost"),
			FromName:      get("EMAIL_FROM_NAME", "Lead Marketplace"),
		},
		Mailtrap: MailtrapConfig{
			APIURL:   get("MAILTRAP_API_URL", ""),
			APIToken: get("MAILTRAP_API_TOKEN", ""),
		},
		Kafka: KafkaConfig{
			Brokers: splitList(get("KAFKA_BROKERS", "")),
			Topic:   get("KAFKA_TOPIC", "marketplace.notifications"),
		},
		Log: LogConfig{
			Level: strings.ToLower(get("LOG_LEVEL", "info")),
			File:  get("LOG_FILE", ""),
		},
		Session: SessionConfig{
			CookieName: get("SESSION_COOKIE_NAME", "sid"),
		},
		Storage: StorageConfig{
			Driver:          strings.ToLower(get("STORAGE_DRIVER", "local")),
			LocalDir:        get("LOCAL_UPLOAD_DIR", "./storage/evidence"),
			LocalURLPrefix:  get("LOCAL_UPLOAD_URL_PREFIX", "/evidence"),
			S3Region:        get("S3_REGION", ""),
			S3Bucket:        get("S3_BUCKET", ""),
			S3Prefix:        get("S3_PREFIX", "refund-evidence"),
			S3PublicBaseURL: get("S3_PUBLIC_BASE_URL", ""),
		},
		NotifyDrivers: splitList(get("NOTIFY_DRIVER", "log")),
	}

	if cfg.DB.DSN == "" {
		return Config{}, errors.New("DB_DSN environment variable is required")
	}
	if cfg.Stripe.WebhookSecret == "" {
		return Config{}, errors.New("STRIPE_WEBHOOK_SECRET environment variable is required")
	}
	return cfg, nil
}

func splitList(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseBool(s string) bool {
	b, err := strconv.ParseBool(s)
	return err == nil && b
}
