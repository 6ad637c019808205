// files.go — HTTP handlers файловых операций File Vault.
// Upload, Download, List, Get, Update, Delete.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	apierrors "github.com/bigkaa/goartstore/filevault/internal/api/errors"
	"github.com/bigkaa/goartstore/filevault/internal/api/middleware"
	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/service"
)

// maxUpdateBody — предельный размер тела PUT /files/{id}.
const maxUpdateBody = 64 << 10

// Uploader — загрузка файлов (service.UploadService).
type Uploader interface {
	Upload(ctx context.Context, p service.UploadParams) (*service.UploadResult, error)
}

// Downloader — скачивание файлов (service.DownloadService).
type Downloader interface {
	Fetch(ctx context.Context, date, name string) (*service.Download, error)
	Serve(w http.ResponseWriter, r *http.Request, d *service.Download)
}

// FileQuerier — выборка и управление записями (service.QueryService).
type FileQuerier interface {
	List(ctx context.Context, params service.ListParams) (*service.Page, error)
	Get(ctx context.Context, id int64) (*model.FileRecord, error)
	Update(ctx context.Context, id int64, upd model.FileUpdate) (*model.FileRecord, error)
	Delete(ctx context.Context, id int64) (*service.DeleteResult, error)
}

// FilesHandler — обработчик файловых endpoints.
type FilesHandler struct {
	uploads     Uploader
	downloads   Downloader
	queries     FileQuerier
	maxFileSize int64
	errs        *ErrorWriter
	logger      *slog.Logger
}

// NewFilesHandler создаёт обработчик файловых endpoints.
func NewFilesHandler(
	uploads Uploader,
	downloads Downloader,
	queries FileQuerier,
	maxFileSize int64,
	errs *ErrorWriter,
	logger *slog.Logger,
) *FilesHandler {
	return &FilesHandler{
		uploads:     uploads,
		downloads:   downloads,
		queries:     queries,
		maxFileSize: maxFileSize,
		errs:        errs,
		logger:      logger.With(slog.String("component", "files_handler")),
	}
}

// uploadResponse — ответ POST /upload.
type uploadResponse struct {
	Message string `json:"message"`
	URL     string `json:"url"`
	ID      int64  `json:"id"`
}

// UploadFile обрабатывает POST /upload.
// Multipart form: file (обязательно). Часть читается потоком не более
// maxFileSize+1 байт, чтобы память была ограничена, а превышение распознаваемо.
func (h *FilesHandler) UploadFile(w http.ResponseWriter, r *http.Request) {
	mr, err := r.MultipartReader()
	if err != nil {
		apierrors.ValidationError(w, "Expected multipart/form-data body")
		return
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			apierrors.ValidationError(w, "Malformed multipart body")
			return
		}
		if part.FormName() != "file" {
			h.logger.Debug("Пропущена часть multipart", slog.String("name", part.FormName()))
			_ = part.Close()
			continue
		}

		data, err := io.ReadAll(io.LimitReader(part, h.maxFileSize+1))
		_ = part.Close()
		if err != nil {
			h.errs.Write(w, r, fmt.Errorf("ошибка чтения файла из запроса: %w", err))
			return
		}

		result, err := h.uploads.Upload(r.Context(), service.UploadParams{
			Data:        data,
			Filename:    part.FileName(),
			ContentType: part.Header.Get("Content-Type"),
			Subject:     middleware.SubjectFromContext(r.Context()),
		})
		if err != nil {
			h.errs.Write(w, r, err)
			return
		}

		writeJSON(w, http.StatusOK, uploadResponse{
			Message: result.Message,
			URL:     result.URL,
			ID:      result.ID,
		})
		return
	}

	apierrors.ValidationError(w, "Field 'file' is required")
}

// DownloadFile обрабатывает GET /{date}/{name}.
// Поддерживает Range requests через http.ServeContent.
func (h *FilesHandler) DownloadFile(w http.ResponseWriter, r *http.Request) {
	d, err := h.downloads.Fetch(r.Context(), chi.URLParam(r, "date"), chi.URLParam(r, "name"))
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	h.downloads.Serve(w, r, d)
}

// ListFiles обрабатывает GET /files.
// Параметры: q, content_type, shareable, public, sort, order, page, page_size.
func (h *FilesHandler) ListFiles(w http.ResponseWriter, r *http.Request) {
	params, bad := parseListParams(r)
	if bad != "" {
		apierrors.ValidationError(w, "Invalid value for '"+bad+"'")
		return
	}

	page, err := h.queries.List(r.Context(), params)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// parseListParams разбирает query-параметры списка.
// Возвращает имя первого некорректного числового или булева параметра.
func parseListParams(r *http.Request) (params service.ListParams, badParam string) {
	q := r.URL.Query()
	params = service.ListParams{
		Search:      q.Get("q"),
		ContentType: q.Get("content_type"),
		SortBy:      q.Get("sort"),
		SortOrder:   q.Get("order"),
	}

	var err error
	if params.Shareable, err = parseOptionalBool(q.Get("shareable")); err != nil {
		return params, "shareable"
	}
	if params.Public, err = parseOptionalBool(q.Get("public")); err != nil {
		return params, "public"
	}
	if params.Page, err = parseOptionalInt(q.Get("page")); err != nil {
		return params, "page"
	}
	if params.PageSize, err = parseOptionalInt(q.Get("page_size")); err != nil {
		return params, "page_size"
	}
	return params, ""
}

func parseOptionalBool(s string) (*bool, error) {
	if s == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func parseOptionalInt(s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.Atoi(s)
}

// parseFileID извлекает положительный id из пути.
func parseFileID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		return 0, false
	}
	return id, true
}

// GetFile обрабатывает GET /files/{id}.
func (h *FilesHandler) GetFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(r)
	if !ok {
		apierrors.ValidationError(w, "Invalid file id")
		return
	}

	rec, err := h.queries.Get(r.Context(), id)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewView(rec))
}

// updateRequest — тело PUT /files/{id}. Отсутствующее поле не меняется.
type updateRequest struct {
	OriginalName *string `json:"original_name"`
	Shareable    *bool   `json:"shareable"`
	Public       *bool   `json:"public"`
}

// UpdateFile обрабатывает PUT /files/{id}.
// Неизвестные поля тела отклоняются.
func (h *FilesHandler) UpdateFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(r)
	if !ok {
		apierrors.ValidationError(w, "Invalid file id")
		return
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxUpdateBody))
	dec.DisallowUnknownFields()

	var req updateRequest
	if err := dec.Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid request body: "+err.Error())
		return
	}

	rec, err := h.queries.Update(r.Context(), id, model.FileUpdate{
		OriginalName: req.OriginalName,
		Shareable:    req.Shareable,
		Public:       req.Public,
	})
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, service.NewView(rec))
}

// DeleteFile обрабатывает DELETE /files/{id}.
func (h *FilesHandler) DeleteFile(w http.ResponseWriter, r *http.Request) {
	id, ok := parseFileID(r)
	if !ok {
		apierrors.ValidationError(w, "Invalid file id")
		return
	}

	res, err := h.queries.Delete(r.Context(), id)
	if err != nil {
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
