package s3store

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/minio/minio-go/v7"

	"github.com/bigkaa/goartstore/filevault/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{
		Endpoint:  "127.0.0.1:1",
		Region:    "us-east-1",
		Bucket:    "vault",
		AccessKey: "access",
		SecretKey: "secret",
	})
	if err != nil {
		t.Fatalf("ошибка создания Store: %v", err)
	}
	return s
}

func TestNew(t *testing.T) {
	s := newTestStore(t)
	if s.Bucket() != "vault" {
		t.Errorf("Bucket = %q", s.Bucket())
	}
}

// TestInvalidPath проверяет, что недопустимые пути отклоняются без обращения к S3.
func TestInvalidPath(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if _, err := s.Put(ctx, "2026-01-01", "../x", []byte("x")); !errors.Is(err, storage.ErrWrite) {
		t.Errorf("Put: ожидалась ErrWrite, получено %v", err)
	}
	if _, err := s.Get(ctx, "../../etc/passwd"); !errors.Is(err, storage.ErrInvalidPath) {
		t.Errorf("Get: ожидалась ErrInvalidPath, получено %v", err)
	}
	if err := s.Delete(ctx, "x"); !errors.Is(err, storage.ErrDelete) {
		t.Errorf("Delete: ожидалась ErrDelete, получено %v", err)
	}
}

func TestIsNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"NoSuchKey", minio.ErrorResponse{Code: "NoSuchKey", StatusCode: http.StatusNotFound}, true},
		{"обёрнутый NoSuchKey", fmt.Errorf("get: %w", minio.ErrorResponse{Code: "NoSuchKey"}), true},
		{"404 без кода", minio.ErrorResponse{StatusCode: http.StatusNotFound}, true},
		{"NoSuchBucket", minio.ErrorResponse{Code: "NoSuchBucket", StatusCode: http.StatusNotFound}, false},
		{"AccessDenied", minio.ErrorResponse{Code: "AccessDenied", StatusCode: http.StatusForbidden}, false},
		{"сетевая ошибка", errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isNotFound(tt.err); got != tt.want {
				t.Errorf("isNotFound = %v, ожидалось %v", got, tt.want)
			}
		})
	}
}

func TestMapGetError(t *testing.T) {
	err := mapGetError("2026-01-01/a", minio.ErrorResponse{Code: "NoSuchKey"})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("ожидалась ErrNotFound, получено %v", err)
	}

	err = mapGetError("2026-01-01/a", errors.New("timeout"))
	if errors.Is(err, storage.ErrNotFound) {
		t.Error("сетевая ошибка не должна превращаться в ErrNotFound")
	}
}
