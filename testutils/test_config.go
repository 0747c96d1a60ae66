package testutils

import (
	"time"

	"backend_fleetwatch/config"
)

// TestJWTSecret секрет подписи токенов в тестах
const TestJWTSecret = "test-secret-key-for-testing-only-32b"

// SetupTestConfig возвращает конфигурацию для тестов без чтения окружения
func SetupTestConfig() *config.Config {
	return &config.Config{
		App: config.AppConfigStruct{
			Env:     "test",
			Port:    "8080",
			BaseURL: "http://fleetwatch.test",
			Version: "v1",
		},
		Database: config.DatabaseConfig{
			Driver: "sqlite",
			Path:   ":memory:",
		},
		JWT: config.JWTConfig{
			Secret: TestJWTSecret,
			Issuer: "fleetwatch",
		},
		Wialon: config.WialonConfig{
			BaseURL:    "http://wialon.test",
			Token:      "test-token",
			DataFlags:  4294967295,
			Timeout:    time.Second,
			MaxRetries: 3,
			RetryDelay: time.Millisecond,
		},
		Alerts: config.AlertsConfig{
			ThrottleTTL:      10 * time.Second,
			WebhookRateLimit: 600,
			WebhookWindow:    time.Minute,
		},
		Sync: config.SyncConfig{
			Schedule: "0 */5 * * * *",
			Timeout:  time.Minute,
		},
		Notifications: config.NotificationsConfig{
			AdminChannel: "private-admin-alerts",
			UserChannel:  "private-user-%d-alerts",
		},
		CORS: config.CORSConfig{
			AllowedOrigins: []string{"*"},
		},
	}
}
