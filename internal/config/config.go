package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"
)

type Config struct {
	Env  string
	Port int

	DBURL string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// FCMCredentialsFile points at the service-account JSON. Empty means
	// the log gateway is used instead of FCM.
	FCMCredentialsFile string

	JWTSecret string
	AccessTTL time.Duration

	AdminEmail    string
	AdminPassword string
	AdminName     string

	OTLPEndpoint string

	// Worker knobs
	PollInterval  time.Duration
	Concurrency   int
	LockTTL       time.Duration
	ShutdownGrace time.Duration
	HealthAddr    string

	// TestInterval overrides the daily re-plan interval when set (> 0);
	// production leaves it unset and gets next-local-wall-clock semantics.
	TestInterval time.Duration
}

func Load() Config {
	return Config{
		Env:   getEnv("APP_ENV", "dev"),
		Port:  getEnvInt("PORT", 8080),
		DBURL: buildDBURL(),

		RedisAddr:     getEnv("REDIS_ADDR", "127.0.0.1:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		FCMCredentialsFile: getEnv("FCM_CREDENTIALS_FILE", ""),

		JWTSecret: getEnv("JWT_SECRET", "dev-secret-change-me-before-deploying-anywhere"),
		AccessTTL: getEnvDuration("JWT_ACCESS_TTL", 15*time.Minute),

		AdminEmail:    getEnv("ADMIN_EMAIL", ""),
		AdminPassword: getEnv("ADMIN_PASSWORD", ""),
		AdminName:     getEnv("ADMIN_NAME", "admin"),

		OTLPEndpoint: getEnv("OTLP_ENDPOINT", ""),

		PollInterval:  getEnvDuration("WORKER_POLL_INTERVAL", 500*time.Millisecond),
		Concurrency:   getEnvInt("WORKER_CONCURRENCY", 4),
		LockTTL:       getEnvDuration("WORKER_LOCK_TTL", 60*time.Second),
		ShutdownGrace: getEnvDuration("WORKER_SHUTDOWN_GRACE", 10*time.Second),
		HealthAddr:    getEnv("WORKER_HEALTH_ADDR", ":8081"),

		TestInterval: getEnvDuration("SCHEDULE_TEST_INTERVAL", 0),
	}
}

func buildDBURL() string {
	if url := os.Getenv("DATABASE_URL"); url != "" {
		return url
	}

	host := getEnv("DB_HOST", "127.0.0.1")
	port := getEnv("DB_PORT", "5432")
	user := getEnv("DB_USER", "hustle")
	pass := getEnv("DB_PASSWORD", "hustle")
	name := getEnv("DB_NAME", "hustle")
	ssl := getEnv("DB_SSLMODE", "disable")

	return "postgres://" + user + ":" + pass + "@" + host + ":" + port + "/" + name + "?sslmode=" + ssl
}

func WithTimeout(duration time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), duration)
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}

	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		num, err := strconv.Atoi(v)
		if err != nil {
			fmt.Println(err)
			return fallback
		}
		return num
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			fmt.Println(err)
			return fallback
		}
		return d
	}
	return fallback
}
