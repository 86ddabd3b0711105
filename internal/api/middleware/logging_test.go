package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestRequestLoggerLevels(t *testing.T) {
	tests := []struct {
		name      string
		status    int
		wantLevel string
	}{
		{"успех", http.StatusOK, "INFO"},
		{"ошибка клиента", http.StatusNotFound, "WARN"},
		{"ошибка сервера", http.StatusBadGateway, "ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := slog.New(slog.NewTextHandler(&buf, nil))

			handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			}))

			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/artifacts", nil))

			if rec.Code != tt.status {
				t.Errorf("Статус: хотели %d, получили %d", tt.status, rec.Code)
			}
			if !strings.Contains(buf.String(), "level="+tt.wantLevel) {
				t.Errorf("Уровень лога: хотели %s, лог: %s", tt.wantLevel, buf.String())
			}
		})
	}
}

func TestRequestLoggerOmitsQueryString(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	handler := RequestLogger(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet,
		"/objects/artifacts/2026/08/30/report_0a1b2c3d.pdf?token=eyJhbGciOiJIUzI1NiJ9.secret", nil))

	if strings.Contains(buf.String(), "token=") {
		t.Errorf("Токен presigned-ссылки попал в лог: %s", buf.String())
	}
	if !strings.Contains(buf.String(), "/objects/artifacts/2026/08/30/report_0a1b2c3d.pdf") {
		t.Errorf("Путь запроса отсутствует в логе: %s", buf.String())
	}
}

func TestResponseWriterKeepsFirstStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := newResponseWriter(rec)

	rw.WriteHeader(http.StatusNotFound)
	rw.WriteHeader(http.StatusInternalServerError) // поздний повторный вызов

	if rw.statusCode != http.StatusNotFound {
		t.Errorf("Статус: хотели %d (первый записанный), получили %d",
			http.StatusNotFound, rw.statusCode)
	}
}
