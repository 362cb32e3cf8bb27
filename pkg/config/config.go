package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Port                string
	DatabaseURL         string
	JWTSecret           string
	JWTAccessExpiry     time.Duration
	FirebaseCredentials string
	GoogleProjectID     string
	GoogleCredentials   string
	TaskEventsTopic     string
	RedisAddr           string
	TaskLockTTL         time.Duration
	ScanInterval        time.Duration
	NotificationTTL     time.Duration
	PushBatchSize       int
	PushSound           string
	PushChannel         string
	ShutdownTimeout     time.Duration
}

func Load() *Config {
	// Load .env file if it exists
	_ = godotenv.Load()

	batch := getEnvAsInt("PUSH_BATCH_SIZE", 100)
	if batch <= 0 || batch > 100 {
		batch = 100
	}

	return &Config{
		Port:                getEnv("PORT", "8080"),
		DatabaseURL:         getEnv("DATABASE_URL", "host=localhost user=postgres password=postgres dbname=foratask port=5432 sslmode=disable"),
		JWTSecret:           getEnv("JWT_SECRET", "your-secret-key-change-in-production"),
		JWTAccessExpiry:     getEnvAsDuration("JWT_ACCESS_EXPIRY", 15*time.Minute),
		FirebaseCredentials: getEnv("FIREBASE_CREDENTIALS", ""),
		GoogleProjectID:     getEnv("GOOGLE_PROJECT_ID", ""),
		GoogleCredentials:   getEnv("GOOGLE_APPLICATION_CREDENTIALS", ""),
		TaskEventsTopic:     getEnv("TASK_EVENTS_TOPIC", "task-events"),
		RedisAddr:           getEnv("REDIS_ADDR", ""),
		TaskLockTTL:         getEnvAsDuration("TASK_LOCK_TTL", 10*time.Second),
		ScanInterval:        getEnvAsDuration("SCAN_INTERVAL", time.Minute),
		NotificationTTL:     getEnvAsDuration("NOTIFICATION_TTL", 48*time.Hour),
		PushBatchSize:       batch,
		PushSound:           getEnv("PUSH_SOUND", "foranotif.wav"),
		PushChannel:         getEnv("PUSH_CHANNEL", "default"),
		ShutdownTimeout:     getEnvAsDuration("SHUTDOWN_TIMEOUT", 20*time.Second),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if parsed, err := time.ParseDuration(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
