package ratelimit

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// sweepInterval — как часто удаляются счётчики истёкших окон.
const sweepInterval = time.Minute

// counter — счётчик запросов в одном окне.
type counter struct {
	start int64 // начало окна, мс
	end   int64 // конец окна, мс
	n     int
}

// MemoryLimiter — фиксированное окно на вызывающего и класс в памяти процесса.
// Границы окон совпадают с RedisLimiter: start = now / window * window.
type MemoryLimiter struct {
	mu       sync.Mutex
	counters map[string]*counter
	sweeper  rate.Sometimes
	now      func() time.Time
}

var _ Limiter = (*MemoryLimiter)(nil)

// NewMemoryLimiter создаёт лимитер в памяти процесса.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		counters: make(map[string]*counter),
		sweeper:  rate.Sometimes{Interval: sweepInterval},
		now:      time.Now,
	}
}

// Allow увеличивает счётчик текущего окна.
func (m *MemoryLimiter) Allow(_ context.Context, key string, rule Rule) (Decision, error) {
	nowMs := m.now().UnixMilli()
	windowMs := rule.Window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}
	start := nowMs / windowMs * windowMs

	m.mu.Lock()
	defer m.mu.Unlock()

	m.sweeper.Do(func() { m.sweep(nowMs) })

	id := rule.Class + "\x00" + key
	c, ok := m.counters[id]
	if !ok || c.start != start {
		c = &counter{start: start, end: start + windowMs}
		m.counters[id] = c
	}
	c.n++

	if c.n > rule.Limit {
		retry := time.Duration(c.end-nowMs) * time.Millisecond
		if retry <= 0 {
			retry = time.Millisecond
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}
	return Decision{Allowed: true, Remaining: rule.Limit - c.n}, nil
}

// sweep удаляет счётчики окон, закончившихся к nowMs. Вызывается под m.mu.
func (m *MemoryLimiter) sweep(nowMs int64) {
	for id, c := range m.counters {
		if c.end <= nowMs {
			delete(m.counters, id)
		}
	}
}

// Reset удаляет все счётчики.
func (m *MemoryLimiter) Reset(_ context.Context) error {
	m.mu.Lock()
	m.counters = make(map[string]*counter)
	m.mu.Unlock()
	return nil
}

// Ping всегда успешен.
func (m *MemoryLimiter) Ping(_ context.Context) error {
	return nil
}
