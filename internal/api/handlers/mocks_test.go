package handlers

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"testing"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/service"
)

// mockUploader — мок Uploader.
type mockUploader struct {
	uploadFn func(ctx context.Context, p service.UploadParams) (*service.UploadResult, error)
	called   bool
}

func (m *mockUploader) Upload(ctx context.Context, p service.UploadParams) (*service.UploadResult, error) {
	m.called = true
	return m.uploadFn(ctx, p)
}

// mockDownloader — мок Downloader.
type mockDownloader struct {
	fetchFn func(ctx context.Context, date, name string) (*service.Download, error)
	served  bool
}

func (m *mockDownloader) Fetch(ctx context.Context, date, name string) (*service.Download, error) {
	return m.fetchFn(ctx, date, name)
}

func (m *mockDownloader) Serve(w http.ResponseWriter, _ *http.Request, d *service.Download) {
	m.served = true
	w.Header().Set("Content-Type", d.ContentType)
	_, _ = w.Write(d.Data)
}

// mockQuerier — мок FileQuerier.
type mockQuerier struct {
	listFn   func(ctx context.Context, params service.ListParams) (*service.Page, error)
	getFn    func(ctx context.Context, id int64) (*model.FileRecord, error)
	updateFn func(ctx context.Context, id int64, upd model.FileUpdate) (*model.FileRecord, error)
	deleteFn func(ctx context.Context, id int64) (*service.DeleteResult, error)
}

func (m *mockQuerier) List(ctx context.Context, params service.ListParams) (*service.Page, error) {
	return m.listFn(ctx, params)
}

func (m *mockQuerier) Get(ctx context.Context, id int64) (*model.FileRecord, error) {
	return m.getFn(ctx, id)
}

func (m *mockQuerier) Update(ctx context.Context, id int64, upd model.FileUpdate) (*model.FileRecord, error) {
	return m.updateFn(ctx, id, upd)
}

func (m *mockQuerier) Delete(ctx context.Context, id int64) (*service.DeleteResult, error) {
	return m.deleteFn(ctx, id)
}

// mockTokens — мок TokenIssuer.
type mockTokens struct {
	loginFn func(ctx context.Context, username, password string) (*service.Token, error)
}

func (m *mockTokens) Login(ctx context.Context, username, password string) (*service.Token, error) {
	return m.loginFn(ctx, username, password)
}

// mockChecker — мок ReadinessChecker.
type mockChecker struct {
	name, status, message string
}

func (m mockChecker) Name() string                     { return m.name }
func (m mockChecker) CheckReady() (status, msg string) { return m.status, m.message }

// mockDeps — мок DependencyHealth.
type mockDeps map[string]bool

func (m mockDeps) Health() map[string]bool { return m }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// errorResponse — разобранное тело ответа ошибки.
type errorResponse struct {
	Error struct {
		Code    string `json:"code"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	} `json:"error"`
}

func decodeError(t *testing.T, body io.Reader) errorResponse {
	t.Helper()
	var resp errorResponse
	if err := json.NewDecoder(body).Decode(&resp); err != nil {
		t.Fatalf("некорректное тело ошибки: %v", err)
	}
	return resp
}
