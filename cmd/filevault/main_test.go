package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/alexedwards/argon2id"
	"github.com/alicebob/miniredis/v2"

	"github.com/bigkaa/goartstore/filevault/internal/codec"
	"github.com/bigkaa/goartstore/filevault/internal/config"
)

func runApp(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	app := newApp()
	app.Writer = &out
	err := app.Run(context.Background(), append([]string{"filevault"}, args...))
	return strings.TrimSpace(out.String()), err
}

// TestKeygen проверяет, что сгенерированный ключ принимается шифрованием.
func TestKeygen(t *testing.T) {
	out, err := runApp(t, "keygen")
	if err != nil {
		t.Fatalf("keygen: %v", err)
	}
	key, err := codec.ParseKey(out)
	if err != nil {
		t.Fatalf("ParseKey(%q): %v", out, err)
	}
	if _, err := codec.NewCipher(key); err != nil {
		t.Errorf("NewCipher: %v", err)
	}
}

// TestHashPassword проверяет вывод argon2id-хэша.
func TestHashPassword(t *testing.T) {
	out, err := runApp(t, "hash-password", "s3cret")
	if err != nil {
		t.Fatalf("hash-password: %v", err)
	}
	match, err := argon2id.ComparePasswordAndHash("s3cret", out)
	if err != nil || !match {
		t.Errorf("хэш %q не совпал с паролем: %v", out, err)
	}

	if _, err := runApp(t, "hash-password"); err == nil {
		t.Error("без пароля ожидалась ошибка")
	}
}

// TestNewLimiter_RedisClosed проверяет, что close освобождает клиента Redis.
func TestNewLimiter_RedisClosed(t *testing.T) {
	mr := miniredis.RunT(t)
	cfg := &config.Config{RateBackend: config.RateBackendRedis, RedisAddr: mr.Addr()}

	limiter, closeLimiter, checkers := newLimiter(cfg)
	if len(checkers) != 1 {
		t.Errorf("проверок готовности %d, ожидалась 1", len(checkers))
	}
	ctx := context.Background()
	if err := limiter.Ping(ctx); err != nil {
		t.Fatalf("Ping до закрытия: %v", err)
	}

	if err := closeLimiter(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := limiter.Ping(ctx); err == nil {
		t.Error("после close клиент Redis должен быть закрыт")
	}
}

// TestNewLimiter_Memory проверяет лимитер в памяти: close без действий.
func TestNewLimiter_Memory(t *testing.T) {
	limiter, closeLimiter, checkers := newLimiter(&config.Config{RateBackend: config.RateBackendMemory})
	if limiter == nil || checkers != nil {
		t.Errorf("limiter = %v, checkers = %v", limiter, checkers)
	}
	if err := closeLimiter(); err != nil {
		t.Errorf("close: %v", err)
	}
}
