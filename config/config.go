package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// Config содержит всю конфигурацию приложения
type Config struct {
	// Основные настройки приложения
	App AppConfigStruct `json:"app"`

	// База данных
	Database DatabaseConfig `json:"database"`

	// Redis
	Redis RedisConfig `json:"redis"`

	// JWT (токены выпускает внешний сервис авторизации, здесь только проверка)
	JWT JWTConfig `json:"jwt"`

	// Wialon
	Wialon WialonConfig `json:"wialon"`

	// Приём алертов
	Alerts AlertsConfig `json:"alerts"`

	// Синхронизация юнитов
	Sync SyncConfig `json:"sync"`

	// Уведомления
	Notifications NotificationsConfig `json:"notifications"`

	// CORS
	CORS CORSConfig `json:"cors"`

	// Безопасность
	Security SecurityConfig `json:"security"`

	// Логирование
	Logging LoggingConfig `json:"logging"`

	// Предупреждения, накопленные при разборе переменных окружения.
	// Логгер ещё не инициализирован во время LoadConfig, поэтому они выводятся в LogConfig.
	Warnings []string `json:"-"`
}

type AppConfigStruct struct {
	Env     string `json:"env"`
	Port    string `json:"port"`
	Host    string `json:"host"`
	BaseURL string `json:"base_url"`
	Version string `json:"version"`
	Debug   bool   `json:"debug"`
}

type DatabaseConfig struct {
	Driver          string        `json:"driver"` // postgres, sqlite
	Host            string        `json:"host"`
	Port            string        `json:"port"`
	User            string        `json:"user"`
	Password        string        `json:"password"`
	Name            string        `json:"name"`
	SSLMode         string        `json:"ssl_mode"`
	Path            string        `json:"path"` // для sqlite
	MaxOpenConns    int           `json:"max_open_conns"`
	MaxIdleConns    int           `json:"max_idle_conns"`
	ConnMaxLifetime time.Duration `json:"conn_max_lifetime"`
}

type RedisConfig struct {
	Enabled  bool          `json:"enabled"`
	Host     string        `json:"host"`
	Port     string        `json:"port"`
	Password string        `json:"password"`
	DB       int           `json:"db"`
	URL      string        `json:"url"`
	Timeout  time.Duration `json:"timeout"`
	MaxConns int           `json:"max_connections"`
}

type JWTConfig struct {
	Secret string `json:"secret"`
	Issuer string `json:"issuer"`
}

// WialonConfig настройки подключения к Wialon Remote API
type WialonConfig struct {
	BaseURL    string        `json:"base_url"`
	Token      string        `json:"-"`
	DataFlags  int64         `json:"data_flags"`
	Timeout    time.Duration `json:"timeout"`
	MaxRetries int           `json:"max_retries"`
	RetryDelay time.Duration `json:"retry_delay"`
}

type AlertsConfig struct {
	ThrottleTTL      time.Duration `json:"throttle_ttl"`
	WebhookRateLimit int           `json:"webhook_rate_limit"`
	WebhookWindow    time.Duration `json:"webhook_window"`
}

type SyncConfig struct {
	Enabled  bool          `json:"enabled"`
	Schedule string        `json:"schedule"` // cron выражение с секундами
	Timeout  time.Duration `json:"timeout"`
}

type NotificationsConfig struct {
	AdminChannel     string `json:"admin_channel"`
	UserChannel      string `json:"user_channel"` // fmt шаблон с %d
	TelegramBotToken string `json:"-"`
	TelegramEnabled  bool   `json:"telegram_enabled"`
}

type CORSConfig struct {
	AllowedOrigins   []string `json:"allowed_origins"`
	AllowedMethods   []string `json:"allowed_methods"`
	AllowedHeaders   []string `json:"allowed_headers"`
	AllowCredentials bool     `json:"allow_credentials"`
	MaxAge           int      `json:"max_age"`
}

type SecurityConfig struct {
	RequestTimeout time.Duration `json:"request_timeout"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

// LoadConfig загружает конфигурацию из переменных окружения
func LoadConfig() (*Config, error) {
	config := &Config{}

	// Загружаем .env файл если он существует
	if err := godotenv.Load(); err != nil {
		config.warnf(".env file not found or could not be loaded: %v", err)
	}

	config.App = AppConfigStruct{
		Env:     config.getEnv("APP_ENV", "development"),
		Port:    config.getEnv("APP_PORT", "8080"),
		Host:    config.getEnv("APP_HOST", "0.0.0.0"),
		BaseURL: strings.TrimRight(config.getEnv("APP_URL", "http://localhost:8080"), "/"),
		Version: config.getEnv("API_VERSION", "v1"),
		Debug:   config.getEnvBool("DEBUG_MODE", false),
	}
	config.Database = DatabaseConfig{
		Driver:          config.getEnv("DB_DRIVER", "postgres"),
		Host:            config.getEnv("DB_HOST", "localhost"),
		Port:            config.getEnv("DB_PORT", "5432"),
		User:            config.getEnv("DB_USER", "postgres"),
		Password:        config.getEnv("DB_PASSWORD", ""),
		Name:            config.getEnv("DB_NAME", "fleetwatch"),
		SSLMode:         config.getEnv("DB_SSLMODE", "disable"),
		Path:            config.getEnv("DB_PATH", "fleetwatch.db"),
		MaxOpenConns:    config.getEnvInt("DB_MAX_OPEN_CONNS", 25),
		MaxIdleConns:    config.getEnvInt("DB_MAX_IDLE_CONNS", 5),
		ConnMaxLifetime: config.getEnvDuration("DB_CONN_MAX_LIFETIME", 300*time.Second),
	}
	config.Redis = RedisConfig{
		Enabled:  config.getEnvBool("REDIS_ENABLED", true),
		Host:     config.getEnv("REDIS_HOST", "localhost"),
		Port:     config.getEnv("REDIS_PORT", "6379"),
		Password: config.getEnv("REDIS_PASSWORD", ""),
		DB:       config.getEnvInt("REDIS_DB", 0),
		URL:      config.getEnv("REDIS_URL", ""),
		Timeout:  config.getEnvDuration("REDIS_TIMEOUT", 5*time.Second),
		MaxConns: config.getEnvInt("REDIS_MAX_CONNECTIONS", 10),
	}
	config.JWT = JWTConfig{
		Secret: config.getEnv("JWT_SECRET", ""),
		Issuer: config.getEnv("JWT_ISSUER", "fleetwatch"),
	}
	config.Wialon = WialonConfig{
		BaseURL:    strings.TrimRight(config.getEnv("WIALON_BASE_URL", "https://hst-api.wialon.com"), "/"),
		Token:      config.getEnv("WIALON_TOKEN", ""),
		DataFlags:  config.getEnvInt64("WIALON_DATA_FLAGS", 4294967295),
		Timeout:    config.getEnvDuration("WIALON_TIMEOUT", 10*time.Second),
		MaxRetries: config.getEnvInt("WIALON_MAX_RETRIES", 3),
		RetryDelay: config.getEnvDuration("WIALON_RETRY_DELAY", 2*time.Second),
	}
	config.Alerts = AlertsConfig{
		ThrottleTTL:      config.getEnvDuration("ALERT_THROTTLE_TTL", 10*time.Second),
		WebhookRateLimit: config.getEnvInt("ALERT_WEBHOOK_RATE_LIMIT", 600),
		WebhookWindow:    config.getEnvDuration("ALERT_WEBHOOK_WINDOW", time.Minute),
	}
	config.Sync = SyncConfig{
		Enabled:  config.getEnvBool("SYNC_ENABLED", true),
		Schedule: config.getEnv("SYNC_SCHEDULE", "0 */5 * * * *"),
		Timeout:  config.getEnvDuration("SYNC_TIMEOUT", 4*time.Minute),
	}
	config.Notifications = NotificationsConfig{
		AdminChannel:     config.getEnv("NOTIFY_ADMIN_CHANNEL", "private-admin-alerts"),
		UserChannel:      config.getEnv("NOTIFY_USER_CHANNEL", "private-user-%d-alerts"),
		TelegramBotToken: config.getEnv("TELEGRAM_BOT_TOKEN", ""),
		TelegramEnabled:  config.getEnvBool("TELEGRAM_ENABLED", false),
	}
	config.CORS = CORSConfig{
		AllowedOrigins:   config.getEnvSlice("CORS_ALLOWED_ORIGINS", []string{"*"}),
		AllowedMethods:   config.getEnvSlice("CORS_ALLOWED_METHODS", []string{"GET", "POST", "OPTIONS"}),
		AllowedHeaders:   config.getEnvSlice("CORS_ALLOWED_HEADERS", []string{"Content-Type", "Authorization", "X-Requested-With", "Accept", "Origin"}),
		AllowCredentials: config.getEnvBool("CORS_ALLOW_CREDENTIALS", false),
		MaxAge:           config.getEnvInt("CORS_MAX_AGE", 86400),
	}
	config.Security = SecurityConfig{
		RequestTimeout: config.getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
	}
	config.Logging = LoggingConfig{
		Level:  config.getEnv("LOG_LEVEL", "info"),
		Format: config.getEnv("LOG_FORMAT", "json"),
	}

	// Валидация критически важных настроек
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return config, nil
}

// Validate проверяет корректность конфигурации
func (c *Config) Validate() error {
	// Проверяем обязательные поля для продакшена
	if c.App.Env == "production" {
		if c.JWT.Secret == "" {
			return fmt.Errorf("JWT_SECRET is required in production")
		}
		if len(c.JWT.Secret) < 32 {
			return fmt.Errorf("JWT_SECRET must be at least 32 characters long")
		}
		if c.Database.Driver == "postgres" && c.Database.Password == "" {
			return fmt.Errorf("DB_PASSWORD is required in production")
		}
	}

	// Проверяем в любом окружении
	switch c.Database.Driver {
	case "postgres":
		if c.Database.Name == "" {
			return fmt.Errorf("DB_NAME cannot be empty")
		}
		if c.Database.User == "" {
			return fmt.Errorf("DB_USER cannot be empty")
		}
	case "sqlite":
		if c.Database.Path == "" {
			return fmt.Errorf("DB_PATH cannot be empty")
		}
	default:
		return fmt.Errorf("unsupported DB_DRIVER: %s", c.Database.Driver)
	}

	if c.Wialon.MaxRetries < 1 {
		return fmt.Errorf("WIALON_MAX_RETRIES must be at least 1")
	}
	if c.Alerts.ThrottleTTL <= 0 {
		return fmt.Errorf("ALERT_THROTTLE_TTL must be positive")
	}
	if !strings.Contains(c.Notifications.UserChannel, "%d") {
		return fmt.Errorf("NOTIFY_USER_CHANNEL must contain %%d placeholder")
	}

	// WIALON_TOKEN здесь не проверяем: его отсутствие - ошибка конфигурации
	// конкретного запуска синхронизации, а не всего сервиса.
	return nil
}

// Вспомогательные функции для получения переменных окружения

func (c *Config) warnf(format string, args ...interface{}) {
	c.Warnings = append(c.Warnings, fmt.Sprintf(format, args...))
}

func (c *Config) getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func (c *Config) getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
		c.warnf("Invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

func (c *Config) getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intValue
		}
		c.warnf("Invalid integer value for %s: %s, using default: %d", key, value, defaultValue)
	}
	return defaultValue
}

func (c *Config) getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
		c.warnf("Invalid boolean value for %s: %s, using default: %t", key, value, defaultValue)
	}
	return defaultValue
}

func (c *Config) getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
		c.warnf("Invalid duration value for %s: %s, using default: %v", key, value, defaultValue)
	}
	return defaultValue
}

func (c *Config) getEnvSlice(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		return strings.Split(value, ",")
	}
	return defaultValue
}

// IsDevelopment проверяет, запущено ли приложение в режиме разработки
func (c *Config) IsDevelopment() bool {
	return c.App.Env == "development"
}

// IsProduction проверяет, запущено ли приложение в продакшене
func (c *Config) IsProduction() bool {
	return c.App.Env == "production"
}

// GetDatabaseDSN возвращает строку подключения к БД
func (c *Config) GetDatabaseDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.Name, c.Database.SSLMode)
}

// GetAdminDSN возвращает строку подключения к служебной БД postgres
func (c *Config) GetAdminDSN() string {
	return fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=postgres sslmode=%s",
		c.Database.Host, c.Database.Port, c.Database.User,
		c.Database.Password, c.Database.SSLMode)
}

// GetRedisAddr возвращает адрес Redis
func (c *Config) GetRedisAddr() string {
	if c.Redis.URL != "" {
		return c.Redis.URL
	}
	return fmt.Sprintf("%s:%s", c.Redis.Host, c.Redis.Port)
}

// LogConfig выводит конфигурацию в лог (без секретных данных)
func (c *Config) LogConfig(logger *zap.Logger) {
	for _, w := range c.Warnings {
		logger.Warn(w)
	}

	logger.Info("application configuration",
		zap.String("env", c.App.Env),
		zap.String("port", c.App.Port),
		zap.String("db_driver", c.Database.Driver),
		zap.String("db_host", c.Database.Host+":"+c.Database.Port),
		zap.String("db_name", c.Database.Name),
		zap.Bool("redis_enabled", c.Redis.Enabled),
		zap.String("redis_addr", c.GetRedisAddr()),
		zap.String("wialon_base_url", c.Wialon.BaseURL),
		zap.Bool("wialon_token_set", c.Wialon.Token != ""),
		zap.Duration("alert_throttle_ttl", c.Alerts.ThrottleTTL),
		zap.String("sync_schedule", c.Sync.Schedule),
		zap.Bool("telegram_enabled", c.Notifications.TelegramEnabled),
		zap.String("log_level", c.Logging.Level),
		zap.Bool("debug", c.App.Debug),
	)
}
