// logging.go — журнал доступа к хранилищу файлов.
// Одна запись на запрос: кто обращался (sub из JWT или IP), к какому файлу,
// под каким классом лимита и чем закончилось.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
)

// accessEntry накапливает сведения, которые известны только последующим
// middleware: аутентификация и лимиты ставятся позже журнала.
type accessEntry struct {
	subject     string
	authFailed  bool
	rateClass   string
	rateLimited bool
}

type accessEntryKey struct{}

func accessEntryFrom(ctx context.Context) *accessEntry {
	e, _ := ctx.Value(accessEntryKey{}).(*accessEntry)
	return e
}

// noteSubject записывает владельца токена в журнал доступа.
func noteSubject(ctx context.Context, subject string) {
	if e := accessEntryFrom(ctx); e != nil {
		e.subject = subject
	}
}

// noteAuthFailed отмечает отклонённый токен.
func noteAuthFailed(ctx context.Context) {
	if e := accessEntryFrom(ctx); e != nil {
		e.authFailed = true
	}
}

// noteRate записывает класс лимита и результат проверки.
func noteRate(ctx context.Context, class string, limited bool) {
	if e := accessEntryFrom(ctx); e != nil {
		e.rateClass = class
		e.rateLimited = limited
	}
}

// statusRecorder запоминает код ответа и число отданных байт содержимого.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int64
}

func (sr *statusRecorder) WriteHeader(code int) {
	sr.status = code
	sr.ResponseWriter.WriteHeader(code)
}

func (sr *statusRecorder) Write(b []byte) (int, error) {
	if sr.status == 0 {
		sr.status = http.StatusOK
	}
	n, err := sr.ResponseWriter.Write(b)
	sr.bytes += int64(n)
	return n, err
}

// Unwrap нужен http.ResponseController (потоковая отдача содержимого).
func (sr *statusRecorder) Unwrap() http.ResponseWriter {
	return sr.ResponseWriter
}

// RequestLogger пишет запись журнала доступа после обработки запроса.
// Уровень: INFO до 3xx, WARN на 4xx, ERROR на 5xx.
func RequestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			began := time.Now()
			entry := &accessEntry{}
			rec := &statusRecorder{ResponseWriter: w}

			r = r.WithContext(context.WithValue(r.Context(), accessEntryKey{}, entry))
			next.ServeHTTP(rec, r)

			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}

			attrs := []slog.Attr{
				slog.String("method", r.Method),
				slog.String("route", routePattern(r)),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(began)),
				slog.Int64("bytes", rec.bytes),
				slog.String("request_id", chimw.GetReqID(r.Context())),
			}
			if id := chi.URLParam(r, "id"); id != "" {
				attrs = append(attrs, slog.String("file_id", id))
			}
			switch {
			case entry.subject != "":
				attrs = append(attrs, slog.String("subject", entry.subject))
			case entry.authFailed:
				attrs = append(attrs, slog.Bool("auth_failed", true), slog.String("client_ip", ClientIP(r)))
			default:
				attrs = append(attrs, slog.String("client_ip", ClientIP(r)))
			}
			if entry.rateClass != "" {
				attrs = append(attrs, slog.String("rate_class", entry.rateClass))
				if entry.rateLimited {
					attrs = append(attrs, slog.Bool("rate_limited", true))
				}
			}

			level := slog.LevelInfo
			switch {
			case status >= 500:
				level = slog.LevelError
			case status >= 400:
				level = slog.LevelWarn
			}
			logger.LogAttrs(r.Context(), level, "Доступ к хранилищу", attrs...)
		})
	}
}
