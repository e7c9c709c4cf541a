package config

import (
	"log"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL        string
	Port               string
	Env                string
	AdminAPIKey        string
	WebhookVerifyToken string
	WhatsAppStoreURL   string
	HistoryLimit       int
	ReplyTimeoutSecs   int
	RetentionDays      int
}

func LoadConfig() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("⚠️ .env file not found, using system environment variables")
	}

	cfg := &Config{
		DatabaseURL:        os.Getenv("DATABASE_URL"),
		Port:               os.Getenv("PORT"),
		Env:                os.Getenv("ENV"),
		AdminAPIKey:        os.Getenv("ADMIN_API_KEY"),
		WebhookVerifyToken: os.Getenv("WEBHOOK_VERIFY_TOKEN"),
		WhatsAppStoreURL:   os.Getenv("WHATSAPP_STORE_URL"),
		HistoryLimit:       envInt("HISTORY_LIMIT", 10),
		ReplyTimeoutSecs:   envInt("REPLY_TIMEOUT_SECONDS", 30),
		RetentionDays:      envInt("RETENTION_DAYS", 30),
	}

	// Default values
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Env == "" {
		cfg.Env = "development"
	}

	return cfg
}

func envInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		log.Printf("⚠️ Invalid %s=%q, using default %d", key, raw, fallback)
		return fallback
	}
	return n
}
