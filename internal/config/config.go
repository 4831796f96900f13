package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	// Server
	Port     string
	Env      string
	LogLevel string

	// Auth
	APIKey    string
	JWTSecret string

	// Ledger
	StorageType  string
	DatabaseURL  string
	SleepLogPath string

	// Documents (notification history, push subscriptions)
	DocumentStore string
	RedisURL      string
	DataDir       string

	MaxSubscriptions int

	// Reminder watchdog
	ReminderAwakeThreshold  time.Duration
	ReminderAsleepThreshold time.Duration
	ReminderCheckInterval   time.Duration

	// Insight loop
	AINotificationsEnabled bool
	AICheckInterval        time.Duration
	GeminiAPIKey           string
	GeminiModel            string

	// Notification gate
	QuietHoursStart     int
	QuietHoursEnd       int
	NotificationSpacing time.Duration
	NotificationCap     int
	DefaultTimezone     string

	// Web push
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	VAPIDSubject    string

	// Pushbullet
	PushbulletAPIKey string

	// SMTP
	SMTPHost    string
	SMTPPort    string
	SMTPUser    string
	SMTPPass    string
	SMTPFrom    string
	NotifyEmail string

	// Frontend
	FrontendURL string
}

func Load() *Config {
	// Load .env file if it exists
	godotenv.Load()

	cfg := &Config{
		Port:     getEnvOrDefault("PORT", "8080"),
		Env:      getEnvOrDefault("ENV", "development"),
		LogLevel: getEnvOrDefault("LOG_LEVEL", "info"),

		APIKey:    mustGetEnv("API_KEY"),
		JWTSecret: mustGetEnv("JWT_SECRET"),

		StorageType:  getEnvOrDefault("STORAGE_TYPE", "file"),
		DatabaseURL:  getEnvOrDefault("DATABASE_URL", ""),
		SleepLogPath: getEnvOrDefault("SLEEP_LOG_PATH", "./data/sleep-entries.json"),

		DocumentStore: getEnvOrDefault("DOCUMENT_STORE", "file"),
		RedisURL:      getEnvOrDefault("REDIS_URL", ""),
		DataDir:       getEnvOrDefault("DATA_DIR", "./data"),

		MaxSubscriptions: getEnvAsIntOrDefault("MAX_SUBSCRIPTIONS", 10),

		ReminderAwakeThreshold:  getEnvAsDurationOrDefault("REMINDER_AWAKE_THRESHOLD", 15*time.Hour+30*time.Minute),
		ReminderAsleepThreshold: getEnvAsDurationOrDefault("REMINDER_ASLEEP_THRESHOLD", 8*time.Hour+30*time.Minute),
		ReminderCheckInterval:   getEnvAsDurationOrDefault("REMINDER_CHECK_INTERVAL", 5*time.Minute),

		AINotificationsEnabled: getEnvAsBoolOrDefault("AI_NOTIFICATIONS_ENABLED", false),
		AICheckInterval:        getEnvAsDurationOrDefault("AI_CHECK_INTERVAL", 30*time.Minute),
		GeminiAPIKey:           getEnvOrDefault("GEMINI_API_KEY", ""),
		GeminiModel:            getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),

		QuietHoursStart:     getEnvAsIntOrDefault("QUIET_HOURS_START", 2),
		QuietHoursEnd:       getEnvAsIntOrDefault("QUIET_HOURS_END", 8),
		NotificationSpacing: getEnvAsDurationOrDefault("NOTIFICATION_MIN_SPACING", 2*time.Hour),
		NotificationCap:     getEnvAsIntOrDefault("NOTIFICATION_DAILY_CAP", 3),
		DefaultTimezone:     getEnvOrDefault("DEFAULT_TIMEZONE", "UTC"),

		VAPIDPublicKey:  getEnvOrDefault("VAPID_PUBLIC_KEY", ""),
		VAPIDPrivateKey: getEnvOrDefault("VAPID_PRIVATE_KEY", ""),
		VAPIDSubject:    getEnvOrDefault("VAPID_SUBJECT", "mailto:admin@localhost"),

		PushbulletAPIKey: getEnvOrDefault("PUSHBULLET_API_KEY", ""),

		SMTPHost:    getEnvOrDefault("SMTP_HOST", ""),
		SMTPPort:    getEnvOrDefault("SMTP_PORT", "587"),
		SMTPUser:    getEnvOrDefault("SMTP_USER", ""),
		SMTPPass:    getEnvOrDefault("SMTP_PASS", ""),
		SMTPFrom:    getEnvOrDefault("SMTP_FROM", "noreply@sleeplog.local"),
		NotifyEmail: getEnvOrDefault("NOTIFY_EMAIL_TO", ""),

		FrontendURL: getEnvOrDefault("FRONTEND_URL", "http://localhost:5173"),
	}

	return cfg
}

// Validate checks settings that are only required in combination.
func (c *Config) Validate() error {
	switch c.StorageType {
	case "file":
	case "postgres":
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_TYPE=postgres")
		}
	default:
		return fmt.Errorf("unknown STORAGE_TYPE %q", c.StorageType)
	}

	switch c.DocumentStore {
	case "file":
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when DOCUMENT_STORE=redis")
		}
	default:
		return fmt.Errorf("unknown DOCUMENT_STORE %q", c.DocumentStore)
	}

	if c.QuietHoursStart < 0 || c.QuietHoursStart > 23 || c.QuietHoursEnd < 0 || c.QuietHoursEnd > 23 {
		return fmt.Errorf("quiet hours must be within 0-23, got %d-%d", c.QuietHoursStart, c.QuietHoursEnd)
	}
	if c.AINotificationsEnabled && c.GeminiAPIKey == "" {
		return fmt.Errorf("GEMINI_API_KEY is required when AI_NOTIFICATIONS_ENABLED=true")
	}
	if _, err := time.LoadLocation(c.DefaultTimezone); err != nil {
		return fmt.Errorf("invalid DEFAULT_TIMEZONE: %w", err)
	}
	return nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func mustGetEnv(key string) string {
	val := os.Getenv(key)
	if val == "" {
		panic(fmt.Sprintf("required environment variable %s is not set", key))
	}
	return val
}

func getEnvOrDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

func getEnvAsIntOrDefault(key string, defaultVal int) int {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return defaultVal
	}
	return n
}

func getEnvAsDurationOrDefault(key string, defaultVal time.Duration) time.Duration {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(val)
	if err != nil || d <= 0 {
		return defaultVal
	}
	return d
}

func getEnvAsBoolOrDefault(key string, defaultVal bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(val)
	if err != nil {
		return defaultVal
	}
	return b
}
