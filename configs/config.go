package config

import (
	"os"
	"strconv"
)

type R2 struct {
	AccountID  string
	AccessKey  string
	SecretKey  string
	BucketName string
	PublicURL  string
}

type HTTPRetry struct {
	MaxAttempts int
	BaseDelayMs int
	MaxDelayMs  int
}

type Config struct {
	MetaAppID         string
	MetaAppSecret     string
	LinkedinClientID  string
	LinkedinSecret    string
	LateAPIKey        string
	CropServiceURL    string
	PostgresURI       string
	RedisURI          string
	FrontendURL       string
	R2                R2
	Retry             HTTPRetry
	SchedulerInterval int
	SecretKey         string
	CookieName        string
}

func LoadConfig() *Config {
	return &Config{
		MetaAppID:         getEnv("META_APP_ID", ""),
		MetaAppSecret:     getEnv("META_APP_SECRET", ""),
		LinkedinClientID:  getEnv("LINKEDIN_CLIENT_ID", ""),
		LinkedinSecret:    getEnv("LINKEDIN_CLIENT_SECRET", ""),
		LateAPIKey:        getEnv("LATE_API_KEY", ""),
		CropServiceURL:    getEnv("CROP_SERVICE_URL", ""),
		PostgresURI:       getEnv("POSTGRES_URI", ""),
		RedisURI:          getEnv("REDIS_URI", ""),
		FrontendURL:       getEnv("FRONTEND_URL", "http://localhost:5173"),
		R2: R2{
			AccountID:  getEnv("R2_ACCOUNT_ID", ""),
			AccessKey:  getEnv("R2_ACCESS_KEY", ""),
			SecretKey:  getEnv("R2_SECRET_KEY", ""),
			BucketName: getEnv("R2_BUCKET_NAME", ""),
			PublicURL:  getEnv("R2_PUBLIC_URL", ""),
		},
		Retry: HTTPRetry{
			MaxAttempts: getEnvInt("HTTP_RETRY_MAX_ATTEMPTS", 3),
			BaseDelayMs: getEnvInt("HTTP_RETRY_BASE_DELAY_MS", 1000),
			MaxDelayMs:  getEnvInt("HTTP_RETRY_MAX_DELAY_MS", 30000),
		},
		SchedulerInterval: getEnvInt("SCHEDULER_INTERVAL_SECONDS", 60),
		SecretKey:         getEnv("SECRET_KEY", ""),
		CookieName:        getEnv("COOKIE_NAME", "crosspost_session"),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}
