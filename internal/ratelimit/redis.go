package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix — префикс ключей счётчиков в Redis.
const keyPrefix = "fv:rl:"

// RedisConfig — параметры подключения к Redis.
type RedisConfig struct {
	Addr     string
	DB       int
	Password string
}

// RedisLimiter — фиксированное окно в Redis, общее для всех экземпляров.
// Ключ: fv:rl:{class}:{key}:{начало окна в мс}.
type RedisLimiter struct {
	rdb redis.Cmdable
	now func() time.Time
}

var _ Limiter = (*RedisLimiter)(nil)

// NewRedisClient создаёт клиента Redis.
func NewRedisClient(cfg RedisConfig) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		DB:       cfg.DB,
		Password: cfg.Password,
	})
}

// NewRedisLimiter создаёт лимитер поверх клиента Redis.
func NewRedisLimiter(rdb redis.Cmdable) *RedisLimiter {
	return &RedisLimiter{rdb: rdb, now: time.Now}
}

// Allow увеличивает счётчик текущего окна. Срок жизни ключа выставляется
// при первом обращении, поэтому счётчик исчезает вместе с окном.
func (l *RedisLimiter) Allow(ctx context.Context, key string, rule Rule) (Decision, error) {
	now := l.now()
	windowMs := rule.Window.Milliseconds()
	if windowMs <= 0 {
		windowMs = 1
	}
	start := now.UnixMilli() / windowMs * windowMs
	redisKey := keyPrefix + rule.Class + ":" + key + ":" + strconv.FormatInt(start, 10)

	n, err := l.rdb.Incr(ctx, redisKey).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("ошибка INCR %s: %w", redisKey, err)
	}
	if n == 1 {
		if err := l.rdb.PExpire(ctx, redisKey, time.Duration(windowMs)*time.Millisecond).Err(); err != nil {
			return Decision{}, fmt.Errorf("ошибка PEXPIRE %s: %w", redisKey, err)
		}
	}

	if n > int64(rule.Limit) {
		retry := time.Duration(start+windowMs-now.UnixMilli()) * time.Millisecond
		if retry <= 0 {
			retry = time.Millisecond
		}
		return Decision{Allowed: false, RetryAfter: retry}, nil
	}
	return Decision{Allowed: true, Remaining: rule.Limit - int(n)}, nil
}

// Reset удаляет все счётчики с префиксом fv:rl:.
func (l *RedisLimiter) Reset(ctx context.Context) error {
	iter := l.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()

	var batch []string
	for iter.Next(ctx) {
		batch = append(batch, iter.Val())
		if len(batch) == 100 {
			if err := l.rdb.Del(ctx, batch...).Err(); err != nil {
				return fmt.Errorf("ошибка удаления счётчиков: %w", err)
			}
			batch = batch[:0]
		}
	}
	if err := iter.Err(); err != nil {
		return fmt.Errorf("ошибка SCAN счётчиков: %w", err)
	}
	if len(batch) > 0 {
		if err := l.rdb.Del(ctx, batch...).Err(); err != nil {
			return fmt.Errorf("ошибка удаления счётчиков: %w", err)
		}
	}
	return nil
}

// Ping проверяет доступность Redis.
func (l *RedisLimiter) Ping(ctx context.Context) error {
	return l.rdb.Ping(ctx).Err()
}
