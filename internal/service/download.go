// download.go — сервис скачивания файлов по пути объекта.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/filevault/internal/api/middleware"
	"github.com/bigkaa/goartstore/filevault/internal/codec"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
	"github.com/bigkaa/goartstore/filevault/internal/storage"
)

// MsgFileNotFound — ответ на запрос отсутствующего объекта.
const MsgFileNotFound = "File not found"

// Download — расшифрованный объект, готовый к отдаче.
type Download struct {
	Data        []byte
	Filename    string
	ContentType string
	ContentHash string
	ModTime     time.Time
}

// DownloadService — сервис скачивания файлов.
type DownloadService struct {
	store  storage.Store
	cipher *codec.Cipher
	files  repository.FileRepository
	logger *slog.Logger
}

// NewDownloadService создаёт сервис скачивания файлов.
func NewDownloadService(
	store storage.Store,
	cipher *codec.Cipher,
	files repository.FileRepository,
	logger *slog.Logger,
) *DownloadService {
	return &DownloadService{
		store:  store,
		cipher: cipher,
		files:  files,
		logger: logger.With(slog.String("component", "download_service")),
	}
}

// Fetch читает и расшифровывает объект {date}/{name}.
// Имя и тип берутся из записи каталога, если она есть, иначе из имени объекта.
func (s *DownloadService) Fetch(ctx context.Context, date, name string) (*Download, error) {
	path, err := storage.JoinPath(date, name)
	if err != nil {
		return nil, newError(ErrNotFound, MsgFileNotFound, err)
	}

	sealed, err := s.store.Get(ctx, path)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) || errors.Is(err, storage.ErrInvalidPath) {
			return nil, newError(ErrNotFound, MsgFileNotFound, err)
		}
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		return nil, fmt.Errorf("ошибка чтения объекта %s: %w", path, err)
	}

	plain, err := s.cipher.Decrypt(sealed)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("download", "error").Inc()
		s.logger.Error("Ошибка расшифровки объекта",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
		return nil, newError(ErrDecryption, "Failed to decrypt file", err)
	}

	d := &Download{
		Data:        plain,
		Filename:    name,
		ContentType: typeByExtension(name),
		ContentHash: codec.Hash(plain),
	}

	rec, err := s.files.FindByStoragePath(ctx, path)
	switch {
	case err == nil:
		d.Filename = rec.OriginalName
		d.ContentType = rec.ContentType
		d.ModTime = rec.CreatedAt
	case !errors.Is(err, repository.ErrNotFound):
		// Метаданные необязательны для отдачи — логируем и продолжаем
		s.logger.Warn("Ошибка чтения записи каталога",
			slog.String("path", path),
			slog.String("error", err.Error()),
		)
	}

	middleware.OperationsTotal.WithLabelValues("download", "success").Inc()
	return d, nil
}

// Serve отдаёт файл клиенту через http.ServeContent.
// Поддерживает Range requests и If-Modified-Since.
func (s *DownloadService) Serve(w http.ResponseWriter, r *http.Request, d *Download) {
	w.Header().Set("Content-Type", d.ContentType)
	w.Header().Set("Content-Disposition", contentDisposition(d.Filename))
	w.Header().Set("X-Content-Hash", d.ContentHash)
	w.Header().Set("ETag", fmt.Sprintf("%q", d.ContentHash))

	http.ServeContent(w, r, d.Filename, d.ModTime, bytes.NewReader(d.Data))

	s.logger.Debug("Файл скачан",
		slog.String("filename", d.Filename),
		slog.Int("size", len(d.Data)),
	)
}

var quoteEscaper = strings.NewReplacer(`\`, `\\`, `"`, `\"`)

// contentDisposition формирует заголовок attachment с именем файла.
// Имена вне печатного ASCII кодируются по RFC 2231.
func contentDisposition(name string) string {
	for _, r := range name {
		if r < 0x20 || r > 0x7e {
			return mime.FormatMediaType("attachment", map[string]string{"filename": name})
		}
	}
	return `attachment; filename="` + quoteEscaper.Replace(name) + `"`
}
