package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	Admin     AdminConfig
	Stripe    StripeConfig
	Email     EmailConfig
	Analytics AnalyticsConfig
	Cleanup   CleanupConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type AdminConfig struct {
	Password   string
	SessionTTL int // hours
}

type StripeConfig struct {
	SecretKey string
}

type EmailConfig struct {
	APIKey  string
	From    string
	BaseURL string
}

type AnalyticsConfig struct {
	BaseURL   string
	WebsiteID string
	APIToken  string
}

type CleanupConfig struct {
	BatchPageSize  int
	ResetMaxPages  int
	ResetMaxMillis int
}

func Load() *Config {
	_ = godotenv.Load()

	redisDB, _ := strconv.Atoi(getEnv("REDIS_DB", "0"))
	sessionTTL, _ := strconv.Atoi(getEnv("ADMIN_SESSION_TTL_HOURS", "24"))
	batchPage, _ := strconv.Atoi(getEnv("CLEANUP_BATCH_PAGE_SIZE", "50"))
	resetPages, _ := strconv.Atoi(getEnv("CLEANUP_RESET_MAX_PAGES", "100"))
	resetMillis, _ := strconv.Atoi(getEnv("CLEANUP_RESET_MAX_MILLIS", "25000"))

	cfg := &Config{
		Server: ServerConfig{
			Port: getEnv("PORT", "8080"),
			Env:  getEnv("ENV", "development"),
		},
		Redis: RedisConfig{
			Addr:     getEnv("REDIS_ADDR", "localhost:6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       redisDB,
		},
		Admin: AdminConfig{
			Password:   getEnv("ADMIN_PASSWORD", ""),
			SessionTTL: sessionTTL,
		},
		Stripe: StripeConfig{
			SecretKey: getEnv("STRIPE_SECRET_KEY", ""),
		},
		Email: EmailConfig{
			APIKey:  getEnv("RESEND_API_KEY", ""),
			From:    getEnv("EMAIL_FROM", "store@cadlink.example"),
			BaseURL: getEnv("RESEND_BASE_URL", "https://api.resend.com"),
		},
		Analytics: AnalyticsConfig{
			BaseURL:   getEnv("UMAMI_BASE_URL", ""),
			WebsiteID: getEnv("UMAMI_WEBSITE_ID", ""),
			APIToken:  getEnv("UMAMI_API_TOKEN", ""),
		},
		Cleanup: CleanupConfig{
			BatchPageSize:  batchPage,
			ResetMaxPages:  resetPages,
			ResetMaxMillis: resetMillis,
		},
	}

	log.Printf("Config loaded: env=%s, port=%s", cfg.Server.Env, cfg.Server.Port)
	return cfg
}

// JaegerEndpoint is read separately so tracing can stay optional in local runs.
func JaegerEndpoint() string {
	return getEnv("JAEGER_ENDPOINT", "http://localhost:14268/api/traces")
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}
