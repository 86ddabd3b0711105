// Пакет config — загрузка и валидация конфигурации Artifact Store
// из переменных окружения.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// Версия приложения, задаётся при сборке через -ldflags.
var Version = "dev"

// Config содержит все параметры конфигурации Artifact Store.
type Config struct {
	// Порт HTTP-сервера (служебные endpoints + выдача по presigned-ссылкам)
	Port int
	// Путь к корневой директории объектного хранилища
	DataDir string
	// Bucket по умолчанию для загрузки артефактов
	DefaultBucket string
	// Секрет подписи presigned-ссылок (HS256)
	PresignSecret string
	// Внешний базовый URL сервиса для presigned-ссылок
	ExternalURL string
	// Срок действия presigned-ссылок по умолчанию
	PresignTTL time.Duration

	// Хост PostgreSQL
	DBHost string
	// Порт PostgreSQL
	DBPort int
	// Имя базы данных
	DBName string
	// Пользователь базы данных
	DBUser string
	// Пароль пользователя базы данных
	DBPassword string
	// Режим SSL подключения (disable, require, verify-full и т.д.)
	DBSSLMode string

	// Максимальное количество записей в LRU-кэше метаданных
	CacheSize int
	// TTL записи в кэше метаданных
	CacheTTL time.Duration

	// Cron-расписание запуска reconciler'а (формат robfig/cron)
	ReconcileSchedule string
	// Возраст объекта, после которого orphan подлежит удалению
	ReconcileGrace time.Duration

	// Интервал проверки зависимостей topologymetrics
	DephealthCheckInterval time.Duration
	// Имя группы в метриках topologymetrics
	DephealthGroup string
	// Имя зависимости в метриках topologymetrics
	DephealthDepName string
	// Имя владельца пода для метки name в topologymetrics
	DephealthName string

	// Уровень логирования (debug, info, warn, error)
	LogLevel slog.Level
	// Формат логов (json, text)
	LogFormat string
	// Таймаут graceful shutdown HTTP-сервера
	ShutdownTimeout time.Duration
}

// Load загружает конфигурацию из переменных окружения, валидирует
// обязательные поля и возвращает Config или ошибку.
func Load() (*Config, error) {
	cfg := &Config{}
	var err error

	// AS_PORT — порт HTTP-сервера (по умолчанию 8020)
	cfg.Port, err = getEnvInt("AS_PORT", 8020)
	if err != nil {
		return nil, fmt.Errorf("AS_PORT: %w", err)
	}
	if cfg.Port < 1 || cfg.Port > 65535 {
		return nil, fmt.Errorf("AS_PORT: значение %d вне допустимого диапазона 1-65535", cfg.Port)
	}

	// AS_DATA_DIR — обязательный, корень объектного хранилища
	cfg.DataDir, err = getEnvRequired("AS_DATA_DIR")
	if err != nil {
		return nil, err
	}

	// AS_DEFAULT_BUCKET — bucket по умолчанию (по умолчанию "artifacts")
	cfg.DefaultBucket = getEnvDefault("AS_DEFAULT_BUCKET", "artifacts")

	// AS_PRESIGN_SECRET — обязательный, секрет подписи presigned-ссылок
	cfg.PresignSecret, err = getEnvRequired("AS_PRESIGN_SECRET")
	if err != nil {
		return nil, err
	}

	// AS_EXTERNAL_URL — внешний адрес сервиса (по умолчанию localhost + порт)
	cfg.ExternalURL = getEnvDefault("AS_EXTERNAL_URL", fmt.Sprintf("http://localhost:%d", cfg.Port))

	// AS_PRESIGN_TTL — срок действия presigned-ссылок (по умолчанию 3600s)
	cfg.PresignTTL, err = getEnvDuration("AS_PRESIGN_TTL", 3600*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AS_PRESIGN_TTL: %w", err)
	}

	// --- PostgreSQL ---

	// AS_DB_HOST — обязательный
	cfg.DBHost, err = getEnvRequired("AS_DB_HOST")
	if err != nil {
		return nil, err
	}

	// AS_DB_PORT — порт PostgreSQL (по умолчанию 5432)
	cfg.DBPort, err = getEnvInt("AS_DB_PORT", 5432)
	if err != nil {
		return nil, fmt.Errorf("AS_DB_PORT: %w", err)
	}

	// AS_DB_NAME — обязательный
	cfg.DBName, err = getEnvRequired("AS_DB_NAME")
	if err != nil {
		return nil, err
	}

	// AS_DB_USER — обязательный
	cfg.DBUser, err = getEnvRequired("AS_DB_USER")
	if err != nil {
		return nil, err
	}

	// AS_DB_PASSWORD — обязательный
	cfg.DBPassword, err = getEnvRequired("AS_DB_PASSWORD")
	if err != nil {
		return nil, err
	}

	// AS_DB_SSL_MODE — режим SSL (по умолчанию disable)
	cfg.DBSSLMode = getEnvDefault("AS_DB_SSL_MODE", "disable")

	// --- Кэш метаданных ---

	// AS_CACHE_SIZE — размер LRU-кэша (по умолчанию 1000)
	cfg.CacheSize, err = getEnvInt("AS_CACHE_SIZE", 1000)
	if err != nil {
		return nil, fmt.Errorf("AS_CACHE_SIZE: %w", err)
	}
	if cfg.CacheSize <= 0 {
		return nil, fmt.Errorf("AS_CACHE_SIZE: значение должно быть положительным")
	}

	// AS_CACHE_TTL — TTL кэша (по умолчанию 5m)
	cfg.CacheTTL, err = getEnvDuration("AS_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return nil, fmt.Errorf("AS_CACHE_TTL: %w", err)
	}

	// --- Reconciler ---

	// AS_RECONCILE_SCHEDULE — cron-расписание (по умолчанию каждые 6 часов)
	cfg.ReconcileSchedule = getEnvDefault("AS_RECONCILE_SCHEDULE", "@every 6h")

	// AS_RECONCILE_GRACE — grace-период для orphan'ов (по умолчанию 24h)
	cfg.ReconcileGrace, err = getEnvDuration("AS_RECONCILE_GRACE", 24*time.Hour)
	if err != nil {
		return nil, fmt.Errorf("AS_RECONCILE_GRACE: %w", err)
	}

	// --- topologymetrics ---

	// AS_DEPHEALTH_CHECK_INTERVAL — интервал проверки зависимостей (по умолчанию 15s)
	cfg.DephealthCheckInterval, err = getEnvDuration("AS_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AS_DEPHEALTH_CHECK_INTERVAL: %w", err)
	}

	// AS_DEPHEALTH_GROUP — имя группы в метриках (по умолчанию "artifact-store")
	cfg.DephealthGroup = getEnvDefault("AS_DEPHEALTH_GROUP", "artifact-store")

	// AS_DEPHEALTH_DEP_NAME — имя зависимости в метриках (по умолчанию "postgres")
	cfg.DephealthDepName = getEnvDefault("AS_DEPHEALTH_DEP_NAME", "postgresql")

	// DEPHEALTH_NAME — имя владельца пода для метки name в topologymetrics
	cfg.DephealthName = getEnvDefault("DEPHEALTH_NAME", "")

	// --- Логирование и shutdown ---

	// AS_LOG_LEVEL — уровень логирования (по умолчанию info)
	cfg.LogLevel, err = parseLogLevel(getEnvDefault("AS_LOG_LEVEL", "info"))
	if err != nil {
		return nil, fmt.Errorf("AS_LOG_LEVEL: %w", err)
	}

	// AS_LOG_FORMAT — формат логов (по умолчанию json)
	cfg.LogFormat = getEnvDefault("AS_LOG_FORMAT", "json")
	if cfg.LogFormat != "json" && cfg.LogFormat != "text" {
		return nil, fmt.Errorf("AS_LOG_FORMAT: недопустимое значение %q, допустимые: json, text", cfg.LogFormat)
	}

	// AS_SHUTDOWN_TIMEOUT — таймаут graceful shutdown (по умолчанию 5s)
	cfg.ShutdownTimeout, err = getEnvDuration("AS_SHUTDOWN_TIMEOUT", 5*time.Second)
	if err != nil {
		return nil, fmt.Errorf("AS_SHUTDOWN_TIMEOUT: %w", err)
	}

	return cfg, nil
}

// DatabaseDSN возвращает строку подключения к PostgreSQL.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// SetupLogger настраивает глобальный slog-логгер на основе конфигурации.
func SetupLogger(cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}

	var handler slog.Handler
	if cfg.LogFormat == "json" {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}

	logger := slog.New(handler)
	slog.SetDefault(logger)
	return logger
}

// --- Вспомогательные функции ---

// getEnvRequired возвращает значение переменной окружения или ошибку, если она не задана.
func getEnvRequired(key string) (string, error) {
	val := os.Getenv(key)
	if val == "" {
		return "", fmt.Errorf("%s: обязательная переменная окружения не задана", key)
	}
	return val, nil
}

// getEnvDefault возвращает значение переменной окружения или значение по умолчанию.
func getEnvDefault(key, defaultVal string) string {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal
	}
	return val
}

// getEnvInt возвращает целочисленное значение переменной окружения или значение по умолчанию.
func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("некорректное целое число: %q", val)
	}
	return n, nil
}

// getEnvDuration возвращает time.Duration из переменной окружения или значение по умолчанию.
func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("некорректная длительность: %q (используйте формат Go: 30s, 1h, 6h)", val)
	}
	return d, nil
}

// parseLogLevel преобразует строку уровня логирования в slog.Level.
func parseLogLevel(level string) (slog.Level, error) {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("недопустимый уровень %q, допустимые: debug, info, warn, error", level)
	}
}
