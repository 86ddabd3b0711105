package config

import (
	"log/slog"
	"os"
	"testing"
	"time"
)

// clearASEnvVars очищает все переменные окружения AS_* для чистого теста
// и возвращает функцию восстановления.
func clearASEnvVars(t *testing.T) func() {
	t.Helper()
	keys := []string{
		"AS_PORT", "AS_DATA_DIR", "AS_DEFAULT_BUCKET",
		"AS_PRESIGN_SECRET", "AS_EXTERNAL_URL", "AS_PRESIGN_TTL",
		"AS_DB_HOST", "AS_DB_PORT", "AS_DB_NAME", "AS_DB_USER",
		"AS_DB_PASSWORD", "AS_DB_SSL_MODE",
		"AS_CACHE_SIZE", "AS_CACHE_TTL",
		"AS_RECONCILE_SCHEDULE", "AS_RECONCILE_GRACE",
		"AS_DEPHEALTH_CHECK_INTERVAL", "AS_DEPHEALTH_GROUP",
		"AS_DEPHEALTH_DEP_NAME", "DEPHEALTH_NAME",
		"AS_LOG_LEVEL", "AS_LOG_FORMAT", "AS_SHUTDOWN_TIMEOUT",
	}
	originals := make(map[string]string)
	origSet := make(map[string]bool)
	for _, k := range keys {
		if v, ok := os.LookupEnv(k); ok {
			originals[k] = v
			origSet[k] = true
		}
		os.Unsetenv(k)
	}
	return func() {
		for _, k := range keys {
			if origSet[k] {
				os.Setenv(k, originals[k])
			} else {
				os.Unsetenv(k)
			}
		}
	}
}

// setRequiredEnvVars устанавливает минимальный набор обязательных переменных.
func setRequiredEnvVars(t *testing.T) {
	t.Helper()
	os.Setenv("AS_DATA_DIR", "/tmp/blobs")
	os.Setenv("AS_PRESIGN_SECRET", "test-secret")
	os.Setenv("AS_DB_HOST", "localhost")
	os.Setenv("AS_DB_NAME", "artifacts")
	os.Setenv("AS_DB_USER", "artifacts")
	os.Setenv("AS_DB_PASSWORD", "secret")
}

// TestLoad_DefaultValues проверяет значения по умолчанию.
func TestLoad_DefaultValues(t *testing.T) {
	defer clearASEnvVars(t)()
	setRequiredEnvVars(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load ошибка: %v", err)
	}

	if cfg.Port != 8020 {
		t.Errorf("Port = %d, ожидался 8020", cfg.Port)
	}
	if cfg.DefaultBucket != "artifacts" {
		t.Errorf("DefaultBucket = %q, ожидался artifacts", cfg.DefaultBucket)
	}
	if cfg.PresignTTL != 3600*time.Second {
		t.Errorf("PresignTTL = %v, ожидался 3600s", cfg.PresignTTL)
	}
	if cfg.DBPort != 5432 {
		t.Errorf("DBPort = %d, ожидался 5432", cfg.DBPort)
	}
	if cfg.CacheSize != 1000 {
		t.Errorf("CacheSize = %d, ожидался 1000", cfg.CacheSize)
	}
	if cfg.ReconcileSchedule != "@every 6h" {
		t.Errorf("ReconcileSchedule = %q, ожидался @every 6h", cfg.ReconcileSchedule)
	}
	if cfg.ReconcileGrace != 24*time.Hour {
		t.Errorf("ReconcileGrace = %v, ожидался 24h", cfg.ReconcileGrace)
	}
	if cfg.LogLevel != slog.LevelInfo {
		t.Errorf("LogLevel = %v, ожидался info", cfg.LogLevel)
	}
	if cfg.LogFormat != "json" {
		t.Errorf("LogFormat = %q, ожидался json", cfg.LogFormat)
	}
	if cfg.ExternalURL != "http://localhost:8020" {
		t.Errorf("ExternalURL = %q", cfg.ExternalURL)
	}
}

// TestLoad_MissingRequired проверяет ошибку при отсутствии обязательной переменной.
func TestLoad_MissingRequired(t *testing.T) {
	defer clearASEnvVars(t)()
	setRequiredEnvVars(t)
	os.Unsetenv("AS_PRESIGN_SECRET")

	if _, err := Load(); err == nil {
		t.Fatal("ожидалась ошибка при отсутствии AS_PRESIGN_SECRET")
	}
}

// TestLoad_InvalidValues проверяет отклонение некорректных значений.
func TestLoad_InvalidValues(t *testing.T) {
	cases := []struct {
		name  string
		key   string
		value string
	}{
		{"некорректный порт", "AS_PORT", "not-a-number"},
		{"порт вне диапазона", "AS_PORT", "70000"},
		{"некорректный формат логов", "AS_LOG_FORMAT", "xml"},
		{"некорректный уровень логов", "AS_LOG_LEVEL", "trace"},
		{"некорректная длительность", "AS_CACHE_TTL", "5 minutes"},
		{"нулевой размер кэша", "AS_CACHE_SIZE", "0"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			defer clearASEnvVars(t)()
			setRequiredEnvVars(t)
			os.Setenv(tc.key, tc.value)

			if _, err := Load(); err == nil {
				t.Errorf("ожидалась ошибка для %s=%q", tc.key, tc.value)
			}
		})
	}
}

// TestDatabaseDSN проверяет формирование строки подключения.
func TestDatabaseDSN(t *testing.T) {
	cfg := &Config{
		DBHost: "db.local", DBPort: 5433, DBName: "arts",
		DBUser: "u", DBPassword: "p", DBSSLMode: "require",
	}
	want := "host=db.local port=5433 dbname=arts user=u password=p sslmode=require"
	if dsn := cfg.DatabaseDSN(); dsn != want {
		t.Errorf("DatabaseDSN = %q, ожидалось %q", dsn, want)
	}
}
