// cache.go — LRU-кэш записей каталога с TTL.
// Обёртка над hashicorp/golang-lru/v2/expirable.
package service

import (
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
)

// Prometheus-метрики кэша.
var (
	cacheHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_cache_hits_total",
		Help: "Общее количество попаданий в LRU-кэш метаданных.",
	})
	cacheMissesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_cache_misses_total",
		Help: "Общее количество промахов LRU-кэша метаданных.",
	})
)

// CacheService — LRU-кэш записей по id с автоматическим TTL.
// Кэш локален для экземпляра; изменения через этот экземпляр его инвалидируют,
// изменения через другие экземпляры становятся видны не позже TTL.
type CacheService struct {
	cache *expirable.LRU[int64, model.FileRecord]
}

// NewCacheService создаёт LRU-кэш с указанным максимальным размером и TTL.
func NewCacheService(maxSize int, ttl time.Duration) *CacheService {
	return &CacheService{cache: expirable.NewLRU[int64, model.FileRecord](maxSize, nil, ttl)}
}

// Get возвращает копию записи из кэша.
// Возвращает (запись, true) при hit или (nil, false) при miss.
func (c *CacheService) Get(id int64) (*model.FileRecord, bool) {
	val, ok := c.cache.Get(id)
	if ok {
		cacheHitsTotal.Inc()
		return &val, true
	}
	cacheMissesTotal.Inc()
	return nil, false
}

// Set добавляет или обновляет запись в кэше. Сохраняется копия.
func (c *CacheService) Set(record *model.FileRecord) {
	c.cache.Add(record.ID, *record)
}

// Delete удаляет запись из кэша (инвалидация при обновлении и удалении).
func (c *CacheService) Delete(id int64) {
	c.cache.Remove(id)
}

// Len возвращает количество записей в кэше.
func (c *CacheService) Len() int {
	return c.cache.Len()
}
