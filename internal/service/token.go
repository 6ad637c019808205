// token.go — выпуск JWT для login-заглушки (POST /token).
// Пароль проверяется по argon2id-хэшу, токен подписывается HS256.
package service

import (
	"context"
	"crypto/subtle"
	"fmt"
	"log/slog"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/bigkaa/goartstore/filevault/internal/api/middleware"
)

// MsgInvalidCredentials — единое сообщение для любой ошибки входа.
const MsgInvalidCredentials = "Invalid credentials"

// TokenConfig — параметры выпуска токенов.
type TokenConfig struct {
	Secret string
	Issuer string
	TTL    time.Duration
	// User — единственный допустимый логин
	User string
	// PasswordHash — argon2id-хэш пароля ($argon2id$v=19$...)
	PasswordHash string
}

// Token — выпущенный токен доступа.
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
}

// TokenService — проверка учётных данных и выпуск токенов.
type TokenService struct {
	cfg    TokenConfig
	logger *slog.Logger
	now    func() time.Time
}

// NewTokenService создаёт сервис выпуска токенов.
func NewTokenService(cfg TokenConfig, logger *slog.Logger) *TokenService {
	return &TokenService{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "token_service")),
		now:    time.Now,
	}
}

// HashPassword возвращает argon2id-хэш пароля с параметрами по умолчанию.
func HashPassword(password string) (string, error) {
	hash, err := argon2id.CreateHash(password, argon2id.DefaultParams)
	if err != nil {
		return "", fmt.Errorf("ошибка хэширования пароля: %w", err)
	}
	return hash, nil
}

// Login проверяет логин и пароль и выпускает токен.
func (s *TokenService) Login(_ context.Context, username, password string) (*Token, error) {
	userOK := subtle.ConstantTimeCompare([]byte(username), []byte(s.cfg.User)) == 1

	// Хэш проверяется всегда, чтобы время ответа не выдавало существование логина
	match, err := argon2id.ComparePasswordAndHash(password, s.cfg.PasswordHash)
	if err != nil {
		return nil, newError(ErrUnauthorized, MsgInvalidCredentials,
			fmt.Errorf("ошибка проверки хэша пароля: %w", err))
	}
	if !userOK || !match {
		middleware.OperationsTotal.WithLabelValues("login", "rejected").Inc()
		s.logger.Info("Неудачная попытка входа", slog.String("username", username))
		return nil, newError(ErrUnauthorized, MsgInvalidCredentials, nil)
	}

	signed, err := s.Issue(username)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("login", "error").Inc()
		return nil, err
	}

	middleware.OperationsTotal.WithLabelValues("login", "success").Inc()
	s.logger.Info("Токен выпущен", slog.String("subject", username))
	return &Token{AccessToken: signed, TokenType: "bearer"}, nil
}

// Issue подписывает HS256-токен для subject.
func (s *TokenService) Issue(subject string) (string, error) {
	now := s.now().UTC()
	claims := jwt.RegisteredClaims{
		Issuer:    s.cfg.Issuer,
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(now.Add(s.cfg.TTL)),
		IssuedAt:  jwt.NewNumericDate(now),
		ID:        uuid.NewString(),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.cfg.Secret))
	if err != nil {
		return "", fmt.Errorf("ошибка подписи токена: %w", err)
	}
	return signed, nil
}
