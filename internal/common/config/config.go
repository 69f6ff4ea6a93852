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
	API struct {
		BaseURL string
		Timeout time.Duration
	}
	Location    *time.Location
	NoticeDelay time.Duration
	// Concurrency はバッチ処理で同時に送信するステータス変更の上限です
	Concurrency int
	SFN         struct {
		TaskToken string
	}
	EnableTracing bool
}

// LoadConfig は設定を読み込みます
// カレントディレクトリに.envがあれば先に読み込みます(既に設定済みの環境変数は上書きしません)
func LoadConfig(taskToken string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.Printf("Failed to load .env: %v", err)
	}

	cfg := &Config{
		NoticeDelay:   getEnvAsDurationOrDefault("DASHBOARD_NOTICE_DELAY", 3*time.Second),
		Concurrency:   getEnvAsIntOrDefault("BATCH_CONCURRENCY", 4),
		EnableTracing: false,
	}
	cfg.API.BaseURL = strings.TrimRight(getEnvOrDefault("RESERVATION_API_BASE_URL", "http://localhost:8080"), "/")
	cfg.API.Timeout = getEnvAsDurationOrDefault("RESERVATION_API_TIMEOUT", 10*time.Second)
	cfg.SFN.TaskToken = taskToken

	tz := os.Getenv("DASHBOARD_TIMEZONE")
	if tz == "" {
		cfg.Location = time.Local
	} else {
		loc, err := time.LoadLocation(tz)
		if err != nil {
			return nil, fmt.Errorf("invalid DASHBOARD_TIMEZONE %q: %w", tz, err)
		}
		cfg.Location = loc
	}

	if cfg.Concurrency < 1 {
		return nil, fmt.Errorf("BATCH_CONCURRENCY must be positive: %d", cfg.Concurrency)
	}

	// 環境変数[SBCNTR_ENABLE_TRACING]を見てトレースを有効にする。対応しているTracingはAWS_XRAYのみ。
	// 環境変数[AWS_XRAY_SDK_DISABLED]がtrueの場合は必ずトレースを無効にする。
	enableKey := os.Getenv("SBCNTR_ENABLE_TRACING")
	if !sdkDisabled() && (strings.ToLower(enableKey) == "true" || enableKey == "1") {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "FALSE")
		cfg.EnableTracing = true
	} else {
		os.Setenv("AWS_XRAY_SDK_DISABLED", "TRUE")
		cfg.EnableTracing = false
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	log.Printf("Environment variable %s is not set, using default value", key)
	return defaultValue
}

func getEnvAsIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvAsDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil && d > 0 {
			return d
		}
		log.Printf("Environment variable %s has invalid duration %q, using default value", key, value)
	}
	return defaultValue
}

// Check if SDK is disabled
func sdkDisabled() bool {
	disableKey := os.Getenv("AWS_XRAY_SDK_DISABLED")
	return strings.ToLower(disableKey) == "true"
}
