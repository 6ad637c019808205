// auth.go — JWT middleware для аутентификации.
// Принимает HS256-токены, выпущенные POST /token (FV_JWT_SECRET),
// и, если задан FV_JWKS_URL, RS256-токены внешнего IdP через JWKS.
// Публичные endpoints (/, /token, health, metrics, openapi) — без аутентификации.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/MicahParks/jwkset"
	"github.com/MicahParks/keyfunc/v3"
	"github.com/golang-jwt/jwt/v5"

	apierrors "github.com/bigkaa/goartstore/filevault/internal/api/errors"
)

// contextKey — тип для ключей контекста (избегаем коллизий).
type contextKey string

// ContextKeySubject — ключ для sub из JWT в контексте запроса.
const ContextKeySubject contextKey = "jwt_subject"

// JWTAuth — middleware для JWT-аутентификации.
type JWTAuth struct {
	secret    []byte
	jwks      keyfunc.Keyfunc // nil — RS256 не принимается
	jwtLeeway time.Duration
	logger    *slog.Logger
}

// JWTAuthConfig — параметры для создания JWT middleware.
type JWTAuthConfig struct {
	// Секрет HS256
	Secret string
	// URL JWKS endpoint (опционально)
	JWKSURL string
	// Таймаут HTTP-клиента JWKS
	ClientTimeout time.Duration
	// Интервал обновления JWKS-ключей
	RefreshInterval time.Duration
	// Допустимое отклонение времени при проверке JWT
	JWTLeeway time.Duration
}

// NewJWTAuth создаёт JWT middleware. JWKS подключается только при заданном URL.
func NewJWTAuth(authCfg JWTAuthConfig, logger *slog.Logger) (*JWTAuth, error) {
	var kf keyfunc.Keyfunc

	if authCfg.JWKSURL != "" {
		// NoErrorReturnFirstHTTPReq позволяет стартовать даже если JWKS endpoint
		// ещё недоступен (например, при одновременном запуске pod-ов).
		storage, err := jwkset.NewStorageFromHTTP(authCfg.JWKSURL, jwkset.HTTPClientStorageOptions{
			Client:                    &http.Client{Timeout: authCfg.ClientTimeout},
			NoErrorReturnFirstHTTPReq: true,
			RefreshInterval:           authCfg.RefreshInterval,
			RefreshErrorHandler: func(_ context.Context, err error) {
				logger.Error("Ошибка обновления JWKS",
					slog.String("error", err.Error()),
					slog.String("url", authCfg.JWKSURL),
				)
			},
		})
		if err != nil {
			return nil, fmt.Errorf("создание JWKS storage: %w", err)
		}

		kf, err = keyfunc.New(keyfunc.Options{Storage: storage})
		if err != nil {
			return nil, fmt.Errorf("создание keyfunc: %w", err)
		}
		logger.Info("JWKS подключён", slog.String("url", authCfg.JWKSURL))
	}

	return NewJWTAuthWithKeyfunc(authCfg.Secret, kf, authCfg.JWTLeeway, logger), nil
}

// NewJWTAuthWithKeyfunc создаёт JWT middleware с предоставленной keyfunc.
// Используется в тестах для подстановки mock JWKS; kf может быть nil.
func NewJWTAuthWithKeyfunc(secret string, kf keyfunc.Keyfunc, jwtLeeway time.Duration, logger *slog.Logger) *JWTAuth {
	return &JWTAuth{
		secret:    []byte(secret),
		jwks:      kf,
		jwtLeeway: jwtLeeway,
		logger:    logger.With(slog.String("component", "jwt_auth")),
	}
}

// validMethods — допустимые алгоритмы подписи.
func (j *JWTAuth) validMethods() []string {
	if j.jwks != nil {
		return []string{"HS256", "RS256"}
	}
	return []string{"HS256"}
}

// keyFunc выбирает ключ проверки по алгоритму токена.
func (j *JWTAuth) keyFunc(ctx context.Context) jwt.Keyfunc {
	return func(token *jwt.Token) (any, error) {
		switch token.Method.(type) {
		case *jwt.SigningMethodHMAC:
			return j.secret, nil
		case *jwt.SigningMethodRSA:
			if j.jwks != nil {
				return j.jwks.KeyfuncCtx(ctx)(token)
			}
		}
		return nil, fmt.Errorf("неподдерживаемый алгоритм %v", token.Header["alg"])
	}
}

// Authenticate проверяет токен и возвращает subject.
func (j *JWTAuth) Authenticate(ctx context.Context, tokenString string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, j.keyFunc(ctx),
		jwt.WithValidMethods(j.validMethods()),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(j.jwtLeeway),
	)
	if err != nil {
		return "", err
	}
	if !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}
	if claims.Subject == "" {
		return "", fmt.Errorf("отсутствует sub: %w", jwt.ErrTokenInvalidClaims)
	}
	return claims.Subject, nil
}

// Middleware возвращает HTTP middleware для JWT-аутентификации.
// Извлекает Bearer token из заголовка Authorization, проверяет подпись и exp,
// помещает sub в контекст запроса. Любой отказ — один и тот же 401.
func (j *JWTAuth) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok {
				j.logger.Debug("Отсутствует или некорректен заголовок Authorization",
					slog.String("remote_addr", r.RemoteAddr),
				)
				noteAuthFailed(r.Context())
				apierrors.Unauthorized(w)
				return
			}

			subject, err := j.Authenticate(r.Context(), tokenString)
			if err != nil {
				j.logger.Debug("JWT валидация не пройдена",
					slog.String("error", err.Error()),
					slog.String("remote_addr", r.RemoteAddr),
				)
				noteAuthFailed(r.Context())
				apierrors.Unauthorized(w)
				return
			}

			noteSubject(r.Context(), subject)
			ctx := context.WithValue(r.Context(), ContextKeySubject, subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// bearerToken извлекает токен из заголовка "Bearer <token>".
func bearerToken(header string) (string, bool) {
	scheme, token, found := strings.Cut(header, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}

// SubjectFromContext извлекает sub из контекста запроса.
// Возвращает пустую строку, если sub не найден.
func SubjectFromContext(ctx context.Context) string {
	subject, _ := ctx.Value(ContextKeySubject).(string)
	return subject
}

// WithSubject помещает sub в контекст (для тестов обработчиков).
func WithSubject(ctx context.Context, subject string) context.Context {
	return context.WithValue(ctx, ContextKeySubject, subject)
}
