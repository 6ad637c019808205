package service

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/alexedwards/argon2id"
	"github.com/golang-jwt/jwt/v5"
)

const testSecret = "0123456789abcdef0123456789abcdef"

// testHashParams — облегчённые параметры argon2id для быстрых тестов.
var testHashParams = &argon2id.Params{Memory: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newTestTokenService(t *testing.T) *TokenService {
	t.Helper()
	hash, err := argon2id.CreateHash("s3cret", testHashParams)
	if err != nil {
		t.Fatalf("CreateHash: %v", err)
	}
	return NewTokenService(TokenConfig{
		Secret:       testSecret,
		Issuer:       "filevault",
		TTL:          time.Hour,
		User:         "alice",
		PasswordHash: hash,
	}, slog.Default())
}

// TestTokenService_Login проверяет выпуск токена при верных учётных данных.
func TestTokenService_Login(t *testing.T) {
	svc := newTestTokenService(t)

	tok, err := svc.Login(context.Background(), "alice", "s3cret")
	if err != nil {
		t.Fatalf("Login ошибка: %v", err)
	}
	if tok.TokenType != "bearer" {
		t.Errorf("TokenType = %q", tok.TokenType)
	}

	claims := &jwt.RegisteredClaims{}
	_, err = jwt.ParseWithClaims(tok.AccessToken, claims, func(*jwt.Token) (any, error) {
		return []byte(testSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}), jwt.WithExpirationRequired())
	if err != nil {
		t.Fatalf("токен не проходит проверку: %v", err)
	}
	if claims.Subject != "alice" || claims.Issuer != "filevault" {
		t.Errorf("sub/iss = %q/%q", claims.Subject, claims.Issuer)
	}
}

// TestTokenService_Login_Invalid проверяет единое сообщение для неверных данных.
func TestTokenService_Login_Invalid(t *testing.T) {
	svc := newTestTokenService(t)

	tests := []struct{ name, user, pass string }{
		{"неверный пароль", "alice", "wrong"},
		{"неверный логин", "bob", "s3cret"},
		{"пустые", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Login(context.Background(), tt.user, tt.pass)
			if !errors.Is(err, ErrUnauthorized) {
				t.Fatalf("ожидалась ErrUnauthorized, получена %v", err)
			}
			if msg, _ := Message(err); msg != MsgInvalidCredentials {
				t.Errorf("сообщение = %q", msg)
			}
		})
	}
}

// TestTokenService_Login_BadHash проверяет некорректный хэш в конфигурации.
func TestTokenService_Login_BadHash(t *testing.T) {
	svc := NewTokenService(TokenConfig{Secret: testSecret, User: "alice", PasswordHash: "plain"}, slog.Default())

	_, err := svc.Login(context.Background(), "alice", "plain")
	if !errors.Is(err, ErrUnauthorized) {
		t.Errorf("ожидалась ErrUnauthorized, получена %v", err)
	}
}

// TestHashPassword проверяет формат хэша.
func TestHashPassword(t *testing.T) {
	hash, err := HashPassword("pw")
	if err != nil {
		t.Fatalf("HashPassword ошибка: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Errorf("hash = %q", hash)
	}
	ok, err := argon2id.ComparePasswordAndHash("pw", hash)
	if err != nil || !ok {
		t.Errorf("ComparePasswordAndHash = %v, %v", ok, err)
	}
}
