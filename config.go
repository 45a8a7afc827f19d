package main

import (
	"os"
	"strconv"
	"strings"
	"time"

	"pharmacy-backend/services"
	"pharmacy-backend/storage"
)

type Config struct {
	Port        string
	Environment string

	MongoURL string
	DBName   string

	RedisURL string

	JWTSecret string
	TokenTTL  time.Duration

	SMTP services.SMTPConfig

	KafkaBrokers []string
	OrderTopic   string

	Storage storage.Config
}

func LoadConfig() Config {
	return Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),

		MongoURL: getEnv("MONGO_URL", "mongodb://localhost:27017"),
		DBName:   getEnv("DB_NAME", "pharmacy"),

		RedisURL: getEnv("REDIS_URL", "redis://localhost:6379"),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me"),
		TokenTTL:  getEnvDuration("TOKEN_TTL", 24*time.Hour),

		SMTP: services.SMTPConfig{
			Host:     getEnv("SMTP_HOST", ""),
			Port:     getEnv("SMTP_PORT", "587"),
			Username: getEnv("SMTP_USERNAME", ""),
			Password: getEnv("SMTP_PASSWORD", ""),
			From:     getEnv("SMTP_FROM", "no-reply@pharmacy.local"),
		},

		KafkaBrokers: splitList(getEnv("KAFKA_BROKERS", "")),
		OrderTopic:   getEnv("KAFKA_ORDER_TOPIC", "order-events"),

		Storage: storage.Config{
			Region:     getEnv("AWS_REGION", "us-east-1"),
			Endpoint:   getEnv("S3_ENDPOINT", ""),
			AccessKey:  getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
			Bucket:     getEnv("S3_BUCKET", ""),
			PresignTTL: getEnvDuration("S3_PRESIGN_TTL", 15*time.Minute),
		},
	}
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok && value != "" {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	raw := getEnv(key, "")
	if raw == "" {
		return fallback
	}
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	if secs, err := strconv.Atoi(raw); err == nil {
		return time.Duration(secs) * time.Second
	}
	return fallback
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
