// Пакет keynamer — генерация ключей объектов в хранилище.
// Формат: {YYYY}/{MM}/{DD}/{name}_{8hex}{.ext}
// Пример: 2026/08/30/report_a1b2c3d4.pdf
//
// Датированный префикс детерминирован — lifecycle/retention-инструменты
// могут рассуждать о ключах по дате. Случайный суффикс исключает коллизии
// даже для одинаковых имён, загруженных в один момент времени.
package keynamer

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Максимальная длина базового имени в ключе —
// защита от проблем с длиной путей в backend'ах.
const maxBaseLen = 50

// Key генерирует ключ объекта из логического имени файла и момента времени.
// Время приводится к UTC для стабильности датированного префикса.
func Key(filename string, now time.Time) string {
	ext := filepath.Ext(filename)
	base := sanitize(strings.TrimSuffix(filename, ext))
	if len(base) > maxBaseLen {
		base = base[:maxBaseLen]
	}

	suffix := uuid.New().String()[:8] // короткий суффикс для уникальности
	datePrefix := now.UTC().Format("2006/01/02")

	return path.Join(datePrefix, fmt.Sprintf("%s_%s%s", base, suffix, strings.ToLower(ext)))
}

// DatePrefix возвращает датированный префикс ключа для указанного момента.
// Используется retention-инструментами для выборки объектов по дате.
func DatePrefix(t time.Time) string {
	return t.UTC().Format("2006/01/02")
}

// sanitize убирает небезопасные символы из имени файла.
// Оставляет буквы, цифры, дефис, подчёркивание и кириллицу.
func sanitize(s string) string {
	var result strings.Builder
	for _, r := range s {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') ||
			(r >= '0' && r <= '9') || r == '-' || r == '_' ||
			(r >= 0x0400 && r <= 0x04FF) {
			result.WriteRune(r)
		}
	}
	if result.Len() == 0 {
		return "file"
	}
	return result.String()
}
