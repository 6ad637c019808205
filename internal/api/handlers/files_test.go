package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bigkaa/goartstore/filevault/internal/api/middleware"
	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/service"
)

type filesFixture struct {
	uploads   *mockUploader
	downloads *mockDownloader
	queries   *mockQuerier
	router    http.Handler
}

// newFilesFixture собирает маршруты файловых endpoints поверх моков.
func newFilesFixture(maxFileSize int64) *filesFixture {
	f := &filesFixture{
		uploads:   &mockUploader{},
		downloads: &mockDownloader{},
		queries:   &mockQuerier{},
	}
	h := NewFilesHandler(f.uploads, f.downloads, f.queries, maxFileSize,
		NewErrorWriter(false, testLogger()), testLogger())

	r := chi.NewRouter()
	r.Post("/upload", h.UploadFile)
	r.Get("/files", h.ListFiles)
	r.Get("/files/{id}", h.GetFile)
	r.Put("/files/{id}", h.UpdateFile)
	r.Delete("/files/{id}", h.DeleteFile)
	r.Get("/{date}/{name}", h.DownloadFile)
	f.router = r
	return f
}

func (f *filesFixture) do(req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

// multipartBody формирует multipart тело с одной частью.
func multipartBody(t *testing.T, field, filename, contentType string, data []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)

	hdr := textproto.MIMEHeader{}
	hdr.Set("Content-Disposition", `form-data; name="`+field+`"; filename="`+filename+`"`)
	hdr.Set("Content-Type", contentType)
	part, err := mw.CreatePart(hdr)
	if err != nil {
		t.Fatalf("CreatePart: %v", err)
	}
	if _, err := part.Write(data); err != nil {
		t.Fatalf("запись части: %v", err)
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("закрытие multipart: %v", err)
	}
	return &buf, mw.FormDataContentType()
}

func uploadRequest(t *testing.T, field string, data []byte) *http.Request {
	t.Helper()
	body, ct := multipartBody(t, field, "test.txt", "text/plain", data)
	req := httptest.NewRequest(http.MethodPost, "/upload", body)
	req.Header.Set("Content-Type", ct)
	return req.WithContext(middleware.WithSubject(req.Context(), "alice"))
}

// TestUploadFile_Success проверяет передачу части в сервис и ответ.
func TestUploadFile_Success(t *testing.T) {
	f := newFilesFixture(1024)
	var got service.UploadParams
	f.uploads.uploadFn = func(_ context.Context, p service.UploadParams) (*service.UploadResult, error) {
		got = p
		return &service.UploadResult{Message: service.MsgUploaded, URL: "/2026-01-01/obj", ID: 42}, nil
	}

	w := f.do(uploadRequest(t, "file", []byte("hello")))
	if w.Code != http.StatusOK {
		t.Fatalf("статус %d: %s", w.Code, w.Body.String())
	}

	if string(got.Data) != "hello" || got.Filename != "test.txt" ||
		got.ContentType != "text/plain" || got.Subject != "alice" {
		t.Errorf("параметры загрузки: %+v", got)
	}

	var resp uploadResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("декодирование ответа: %v", err)
	}
	if resp.Message != service.MsgUploaded || resp.URL != "/2026-01-01/obj" || resp.ID != 42 {
		t.Errorf("ответ: %+v", resp)
	}
}

// TestUploadFile_ReadLimit проверяет, что читается не более maxFileSize+1 байт.
func TestUploadFile_ReadLimit(t *testing.T) {
	f := newFilesFixture(4)
	var size int
	f.uploads.uploadFn = func(_ context.Context, p service.UploadParams) (*service.UploadResult, error) {
		size = len(p.Data)
		return nil, service.ErrFileTooLarge
	}

	w := f.do(uploadRequest(t, "file", bytes.Repeat([]byte("x"), 100)))
	if size != 5 {
		t.Errorf("в сервис передано %d байт, ожидалось 5", size)
	}
	if w.Code != http.StatusBadRequest {
		t.Fatalf("статус %d", w.Code)
	}
	resp := decodeError(t, w.Body)
	if resp.Error.Code != "FILE_TOO_LARGE" || resp.Error.Message != "File size too large" {
		t.Errorf("ошибка: %+v", resp.Error)
	}
}

// TestUploadFile_BadRequests проверяет отказы до вызова сервиса.
func TestUploadFile_BadRequests(t *testing.T) {
	tests := []struct {
		name    string
		request func(t *testing.T) *http.Request
		message string
	}{
		{
			name: "не multipart",
			request: func(t *testing.T) *http.Request {
				req := httptest.NewRequest(http.MethodPost, "/upload", strings.NewReader(`{}`))
				req.Header.Set("Content-Type", "application/json")
				return req
			},
			message: "Expected multipart/form-data body",
		},
		{
			name: "нет поля file",
			request: func(t *testing.T) *http.Request {
				return uploadRequest(t, "document", []byte("x"))
			},
			message: "Field 'file' is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFilesFixture(1024)
			w := f.do(tt.request(t))

			if w.Code != http.StatusBadRequest {
				t.Fatalf("статус %d", w.Code)
			}
			if resp := decodeError(t, w.Body); resp.Error.Message != tt.message {
				t.Errorf("сообщение %q, ожидалось %q", resp.Error.Message, tt.message)
			}
			if f.uploads.called {
				t.Error("сервис не должен вызываться")
			}
		})
	}
}

// TestUploadFile_ServiceErrors проверяет отображение ошибок сервиса.
func TestUploadFile_ServiceErrors(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"тип", service.ErrUnsupportedType, http.StatusBadRequest, "UNSUPPORTED_TYPE"},
		{"запись", &service.Error{Kind: service.ErrStoreWrite, Message: "Failed to store file"},
			http.StatusInternalServerError, "STORE_WRITE_ERROR"},
		{"каталог", &service.Error{Kind: service.ErrCatalog, Message: "Failed to save file record"},
			http.StatusInternalServerError, "CATALOG_ERROR"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFilesFixture(1024)
			f.uploads.uploadFn = func(context.Context, service.UploadParams) (*service.UploadResult, error) {
				return nil, tt.err
			}

			w := f.do(uploadRequest(t, "file", []byte("x")))
			if w.Code != tt.status {
				t.Fatalf("статус %d, ожидался %d", w.Code, tt.status)
			}
			if resp := decodeError(t, w.Body); resp.Error.Code != tt.code {
				t.Errorf("код %q, ожидался %q", resp.Error.Code, tt.code)
			}
		})
	}
}

// TestDownloadFile проверяет передачу сегментов пути и отдачу.
func TestDownloadFile(t *testing.T) {
	f := newFilesFixture(1024)
	f.downloads.fetchFn = func(_ context.Context, date, name string) (*service.Download, error) {
		if date != "2026-01-01" || name != "obj.txt" {
			t.Errorf("Fetch(%q, %q)", date, name)
		}
		return &service.Download{Data: []byte("plain"), ContentType: "text/plain"}, nil
	}

	w := f.do(httptest.NewRequest(http.MethodGet, "/2026-01-01/obj.txt", nil))
	if w.Code != http.StatusOK || w.Body.String() != "plain" || !f.downloads.served {
		t.Errorf("статус %d, тело %q", w.Code, w.Body.String())
	}
}

// TestDownloadFile_Errors проверяет 404 и ошибку расшифровки.
func TestDownloadFile_Errors(t *testing.T) {
	tests := []struct {
		name    string
		err     error
		status  int
		code    string
		message string
	}{
		{"не найден", &service.Error{Kind: service.ErrNotFound, Message: service.MsgFileNotFound},
			http.StatusNotFound, "NOT_FOUND", "File not found"},
		{"расшифровка", &service.Error{Kind: service.ErrDecryption, Message: "Failed to decrypt file"},
			http.StatusInternalServerError, "DECRYPTION_ERROR", "Failed to decrypt file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFilesFixture(1024)
			f.downloads.fetchFn = func(context.Context, string, string) (*service.Download, error) {
				return nil, tt.err
			}

			w := f.do(httptest.NewRequest(http.MethodGet, "/2099-01-01/missing.txt", nil))
			if w.Code != tt.status {
				t.Fatalf("статус %d", w.Code)
			}
			resp := decodeError(t, w.Body)
			if resp.Error.Code != tt.code || resp.Error.Message != tt.message {
				t.Errorf("ошибка: %+v", resp.Error)
			}
			if f.downloads.served {
				t.Error("тело не должно отдаваться при ошибке")
			}
		})
	}
}

// TestListFiles_Params проверяет разбор query-параметров.
func TestListFiles_Params(t *testing.T) {
	f := newFilesFixture(1024)
	var got service.ListParams
	f.queries.listFn = func(_ context.Context, p service.ListParams) (*service.Page, error) {
		got = p
		return &service.Page{Items: []service.View{}, Total: 0, Page: 2, PageSize: 5}, nil
	}

	w := f.do(httptest.NewRequest(http.MethodGet,
		"/files?q=rep&content_type=text/plain&shareable=true&public=false&sort=size_bytes&order=asc&page=2&page_size=5",
		nil))
	if w.Code != http.StatusOK {
		t.Fatalf("статус %d: %s", w.Code, w.Body.String())
	}

	if got.Search != "rep" || got.ContentType != "text/plain" || got.SortBy != "size_bytes" ||
		got.SortOrder != "asc" || got.Page != 2 || got.PageSize != 5 {
		t.Errorf("параметры: %+v", got)
	}
	if got.Shareable == nil || !*got.Shareable || got.Public == nil || *got.Public {
		t.Errorf("булевы фильтры: shareable=%v public=%v", got.Shareable, got.Public)
	}

	var page map[string]any
	if err := json.NewDecoder(w.Body).Decode(&page); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	for _, key := range []string{"items", "total", "page", "page_size", "total_pages"} {
		if _, ok := page[key]; !ok {
			t.Errorf("в ответе нет поля %q", key)
		}
	}
}

// TestListFiles_InvalidParams проверяет 400 на некорректные значения.
func TestListFiles_InvalidParams(t *testing.T) {
	for _, query := range []string{"shareable=yes-no", "public=2", "page=abc", "page_size=1.5"} {
		t.Run(query, func(t *testing.T) {
			f := newFilesFixture(1024)
			f.queries.listFn = func(context.Context, service.ListParams) (*service.Page, error) {
				t.Error("сервис не должен вызываться")
				return nil, nil
			}

			w := f.do(httptest.NewRequest(http.MethodGet, "/files?"+query, nil))
			if w.Code != http.StatusBadRequest {
				t.Errorf("статус %d", w.Code)
			}
		})
	}
}

// TestGetFile проверяет выдачу представления записи.
func TestGetFile(t *testing.T) {
	f := newFilesFixture(1024)
	f.queries.getFn = func(_ context.Context, id int64) (*model.FileRecord, error) {
		return &model.FileRecord{
			ID: id, OriginalName: "a.txt", StorageName: "obj", StoragePath: "2026-01-01/obj",
			ContentType: "text/plain", CreatedAt: time.Now(),
		}, nil
	}

	w := f.do(httptest.NewRequest(http.MethodGet, "/files/9", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("статус %d", w.Code)
	}
	var view service.View
	if err := json.NewDecoder(w.Body).Decode(&view); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if view.ID != 9 || view.URL != "/2026-01-01/obj" || view.OriginalName != "a.txt" {
		t.Errorf("представление: %+v", view)
	}
}

// TestFileID_Invalid проверяет 400 на некорректный id во всех операциях.
func TestFileID_Invalid(t *testing.T) {
	for _, method := range []string{http.MethodGet, http.MethodPut, http.MethodDelete} {
		for _, id := range []string{"abc", "0", "-1"} {
			t.Run(method+" "+id, func(t *testing.T) {
				f := newFilesFixture(1024)
				w := f.do(httptest.NewRequest(method, "/files/"+id, strings.NewReader(`{}`)))
				if w.Code != http.StatusBadRequest {
					t.Errorf("статус %d", w.Code)
				}
			})
		}
	}
}

// TestUpdateFile проверяет частичное обновление.
func TestUpdateFile(t *testing.T) {
	f := newFilesFixture(1024)
	var got model.FileUpdate
	f.queries.updateFn = func(_ context.Context, id int64, upd model.FileUpdate) (*model.FileRecord, error) {
		got = upd
		return &model.FileRecord{ID: id, OriginalName: *upd.OriginalName, StoragePath: "2026-01-01/obj"}, nil
	}

	w := f.do(httptest.NewRequest(http.MethodPut, "/files/3", strings.NewReader(`{"original_name":"b.txt"}`)))
	if w.Code != http.StatusOK {
		t.Fatalf("статус %d: %s", w.Code, w.Body.String())
	}
	if got.OriginalName == nil || *got.OriginalName != "b.txt" || got.Shareable != nil || got.Public != nil {
		t.Errorf("обновление: %+v", got)
	}
}

// TestUpdateFile_BadBody проверяет отказ на неизвестные поля и битый JSON.
func TestUpdateFile_BadBody(t *testing.T) {
	for _, body := range []string{`{"size_bytes":1}`, `{"public":"yes"}`, `{`} {
		t.Run(body, func(t *testing.T) {
			f := newFilesFixture(1024)
			w := f.do(httptest.NewRequest(http.MethodPut, "/files/3", strings.NewReader(body)))
			if w.Code != http.StatusBadRequest {
				t.Errorf("статус %d", w.Code)
			}
			if resp := decodeError(t, w.Body); resp.Error.Code != "VALIDATION_ERROR" {
				t.Errorf("код %q", resp.Error.Code)
			}
		})
	}
}

// TestUpdateFile_NotFound проверяет 404 от сервиса.
func TestUpdateFile_NotFound(t *testing.T) {
	f := newFilesFixture(1024)
	f.queries.updateFn = func(context.Context, int64, model.FileUpdate) (*model.FileRecord, error) {
		return nil, &service.Error{Kind: service.ErrNotFound, Message: service.MsgFileNotFound}
	}

	w := f.do(httptest.NewRequest(http.MethodPut, "/files/404", strings.NewReader(`{"public":true}`)))
	if w.Code != http.StatusNotFound {
		t.Errorf("статус %d", w.Code)
	}
}

// TestDeleteFile проверяет ответ удаления и ошибку удаления байтов.
func TestDeleteFile(t *testing.T) {
	f := newFilesFixture(1024)
	f.queries.deleteFn = func(_ context.Context, id int64) (*service.DeleteResult, error) {
		return &service.DeleteResult{Message: service.MsgDeleted, ID: id}, nil
	}

	w := f.do(httptest.NewRequest(http.MethodDelete, "/files/5", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("статус %d", w.Code)
	}
	var resp service.DeleteResult
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("декодирование: %v", err)
	}
	if resp.Message != "File deleted successfully" || resp.ID != 5 {
		t.Errorf("ответ: %+v", resp)
	}

	f.queries.deleteFn = func(context.Context, int64) (*service.DeleteResult, error) {
		return nil, &service.Error{
			Kind: service.ErrStoreDelete, Message: "Failed to delete stored object", Err: errors.New("EIO"),
		}
	}
	w = f.do(httptest.NewRequest(http.MethodDelete, "/files/5", nil))
	if w.Code != http.StatusInternalServerError {
		t.Fatalf("статус %d", w.Code)
	}
	if resp := decodeError(t, w.Body); resp.Error.Code != "STORE_DELETE_ERROR" || resp.Error.Detail != "" {
		t.Errorf("ошибка: %+v", resp.Error)
	}
}
