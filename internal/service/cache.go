// cache.go — LRU-кэш метаданных артефактов с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/Hug0lvt/DriveOps-sub003/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "as_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша метаданных.",
	})
)

// MetadataCache — LRU-кэш live-метаданных артефактов с автоматическим TTL.
// Кэш per-instance: каждый экземпляр сервиса держит собственный in-memory кэш.
type MetadataCache struct {
	cache *expirable.LRU[string, *model.FileArtifact]
}

// NewMetadataCache создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewMetadataCache(maxSize int, ttl time.Duration) *MetadataCache {
	cache := expirable.NewLRU[string, *model.FileArtifact](maxSize, nil, ttl)
	return &MetadataCache{cache: cache}
}

// Get возвращает запись из кэша по id.
// Возвращает (запись, true) при hit или (nil, false) при miss.
func (c *MetadataCache) Get(id string) (*model.FileArtifact, bool) {
	val, ok := c.cache.Get(id)
	if ok {
		cacheHitsTotal.Inc()
		return val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше.
func (c *MetadataCache) Set(id string, a *model.FileArtifact) {
	c.cache.Add(id, a)
}

// Delete удаляет запись из кэша (инвалидация при удалении артефакта).
func (c *MetadataCache) Delete(id string) {
	c.cache.Remove(id)
}
