// ratelimit.go — middleware ограничения частоты запросов по классу маршрута.
// Ставится после аутентификации: ключ — sub из JWT, для публичных маршрутов — IP клиента.
package middleware

import (
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	apierrors "github.com/bigkaa/goartstore/filevault/internal/api/errors"
	"github.com/bigkaa/goartstore/filevault/internal/ratelimit"
)

// RateLimiter — фабрика middleware для классов маршрутов.
type RateLimiter struct {
	limiter ratelimit.Limiter
	rules   ratelimit.Rules
	logger  *slog.Logger
}

// NewRateLimiter создаёт фабрику rate limit middleware.
func NewRateLimiter(limiter ratelimit.Limiter, rules ratelimit.Rules, logger *slog.Logger) *RateLimiter {
	return &RateLimiter{
		limiter: limiter,
		rules:   rules,
		logger:  logger.With(slog.String("component", "rate_limit")),
	}
}

// Limit возвращает middleware для класса маршрутов.
// Превышение — 429 с Retry-After, обработчик не вызывается.
// Ошибка хранилища счётчиков пропускает запрос (fail open) с ERROR в логе.
func (rl *RateLimiter) Limit(class string) func(http.Handler) http.Handler {
	rule, ok := rl.rules[class]
	return func(next http.Handler) http.Handler {
		if !ok || rule.Limit <= 0 {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := CallerKey(r)

			decision, err := rl.limiter.Allow(r.Context(), key, rule)
			if err != nil {
				rl.logger.Error("Ошибка лимитера, запрос пропущен",
					slog.String("class", class),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(rule.Limit))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))

			noteRate(r.Context(), class, !decision.Allowed)
			if !decision.Allowed {
				RateLimitedTotal.WithLabelValues(class).Inc()
				rl.logger.Warn("Превышен лимит запросов",
					slog.String("class", class),
					slog.String("key", key),
				)
				apierrors.RateLimited(w, decision.RetryAfter)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// CallerKey возвращает идентификатор вызывающего: sub из JWT либо IP.
func CallerKey(r *http.Request) string {
	if sub := SubjectFromContext(r.Context()); sub != "" {
		return "sub:" + sub
	}
	return "ip:" + ClientIP(r)
}

// ClientIP возвращает IP клиента: первый адрес X-Forwarded-For, иначе хост RemoteAddr.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
