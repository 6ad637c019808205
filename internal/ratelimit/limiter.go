// Пакет ratelimit — ограничение частоты запросов по классам маршрутов.
// MemoryLimiter хранит счётчики в процессе, RedisLimiter — в Redis
// (общие для всех экземпляров сервиса).
package ratelimit

import (
	"context"
	"time"
)

// Классы маршрутов.
const (
	ClassUpload = "upload"
	ClassRead   = "read"
	ClassUpdate = "update"
	ClassDelete = "delete"
	ClassLogin  = "login"
)

// Rule — лимит для класса маршрутов: не более Limit запросов за Window.
type Rule struct {
	Class  string
	Limit  int
	Window time.Duration
}

// Decision — результат проверки лимита.
type Decision struct {
	Allowed bool
	// Remaining — сколько запросов ещё доступно в текущем окне
	Remaining int
	// RetryAfter — через сколько повторить запрос (только при Allowed=false)
	RetryAfter time.Duration
}

// Limiter — хранилище счётчиков запросов.
// Реализации безопасны для конкурентного использования.
type Limiter interface {
	// Allow учитывает запрос вызывающего key по правилу rule.
	Allow(ctx context.Context, key string, rule Rule) (Decision, error)
	// Reset сбрасывает все счётчики.
	Reset(ctx context.Context) error
	// Ping проверяет доступность хранилища счётчиков.
	Ping(ctx context.Context) error
}

// Rules — набор правил по классам.
type Rules map[string]Rule

// NewRules собирает правила из лимитов на окно.
func NewRules(window time.Duration, upload, read, update, del, login int) Rules {
	return Rules{
		ClassUpload: {Class: ClassUpload, Limit: upload, Window: window},
		ClassRead:   {Class: ClassRead, Limit: read, Window: window},
		ClassUpdate: {Class: ClassUpdate, Limit: update, Window: window},
		ClassDelete: {Class: ClassDelete, Limit: del, Window: window},
		ClassLogin:  {Class: ClassLogin, Limit: login, Window: window},
	}
}
