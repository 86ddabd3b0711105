package keynamer

import (
	"regexp"
	"strings"
	"testing"
	"time"
)

// TestKey_Format проверяет структуру ключа: YYYY/MM/DD/name_<8hex>.ext.
func TestKey_Format(t *testing.T) {
	now := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	key := Key("report.pdf", now)

	re := regexp.MustCompile(`^2026/08/30/report_[0-9a-f]{8}\.pdf$`)
	if !re.MatchString(key) {
		t.Errorf("ключ %q не соответствует формату YYYY/MM/DD/name_<8hex>.ext", key)
	}
}

// TestKey_Uniqueness проверяет отсутствие коллизий для одинаковых имён.
func TestKey_Uniqueness(t *testing.T) {
	now := time.Now()
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		key := Key("same.txt", now)
		if seen[key] {
			t.Fatalf("коллизия ключа: %s", key)
		}
		seen[key] = true
	}
}

// TestKey_Sanitize проверяет очистку небезопасных символов.
func TestKey_Sanitize(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)

	key := Key("../etc/passwd !.TXT", now)
	if !strings.HasPrefix(key, "2026/01/02/") {
		t.Errorf("ключ %q без датированного префикса", key)
	}
	if strings.Contains(key[11:], "/") || strings.Contains(key, "..") {
		t.Errorf("ключ %q содержит небезопасные элементы пути", key)
	}
	if !strings.HasSuffix(key, ".txt") {
		t.Errorf("расширение должно приводиться к нижнему регистру: %q", key)
	}
}

// TestKey_EmptyBase проверяет fallback для имени из одних спецсимволов.
func TestKey_EmptyBase(t *testing.T) {
	now := time.Date(2026, 1, 2, 0, 0, 0, 0, time.UTC)
	key := Key("###.bin", now)
	if !strings.Contains(key, "file_") {
		t.Errorf("для пустого базового имени ожидается fallback 'file': %q", key)
	}
}

// TestKey_UTC проверяет приведение времени к UTC в префиксе.
func TestKey_UTC(t *testing.T) {
	// 23:30 UTC-5 — уже следующий день в UTC
	loc := time.FixedZone("UTC-5", -5*3600)
	local := time.Date(2026, 3, 1, 23, 30, 0, 0, loc)

	key := Key("a.txt", local)
	if !strings.HasPrefix(key, "2026/03/02/") {
		t.Errorf("префикс должен считаться в UTC: %q", key)
	}
}

// TestDatePrefix проверяет формат датированного префикса.
func TestDatePrefix(t *testing.T) {
	p := DatePrefix(time.Date(2026, 12, 5, 10, 0, 0, 0, time.UTC))
	if p != "2026/12/05" {
		t.Errorf("DatePrefix = %q, ожидался 2026/12/05", p)
	}
}
