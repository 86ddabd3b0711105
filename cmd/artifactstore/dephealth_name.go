// dephealth_name.go — определение имени вершины графа topologymetrics.
// Приоритет: DEPHEALTH_NAME → имя владельца пода из hostname → имя сервиса.
package main

import (
	"os"
	"strings"
)

// resolveDephealthName возвращает имя текущего приложения для topologymetrics.
func resolveDephealthName(configured string) string {
	if configured != "" {
		return configured
	}
	if hostname, err := os.Hostname(); err == nil && hostname != "" {
		if owner := parseOwnerName(hostname); owner != "" {
			return owner
		}
	}
	return "artifact-store"
}

// parseOwnerName извлекает имя владельца пода из hostname.
// Deployment: <owner>-<pod-template-hash>-<random5> → owner.
// StatefulSet: <owner>-<ordinal> → owner.
// Если hostname не похож на имя пода — возвращается как есть.
func parseOwnerName(hostname string) string {
	parts := strings.Split(hostname, "-")
	if len(parts) < 2 {
		return hostname
	}

	last := parts[len(parts)-1]

	// StatefulSet: последний сегмент — порядковый номер
	if isDigits(last) {
		return strings.Join(parts[:len(parts)-1], "-")
	}

	// Deployment: два последних сегмента — hash шаблона и случайный суффикс
	if len(parts) >= 3 && len(last) == 5 && isAlnum(last) {
		prev := parts[len(parts)-2]
		if len(prev) >= 8 && len(prev) <= 10 && isAlnum(prev) {
			return strings.Join(parts[:len(parts)-2], "-")
		}
	}

	return hostname
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isAlnum(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'z') {
			return false
		}
	}
	return true
}
