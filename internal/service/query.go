// query.go — выборка, просмотр, изменение и удаление записей каталога.
// Координирует repository, LRU-кэш, хранилище объектов и Prometheus-метрики.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/goartstore/filevault/internal/api/middleware"
	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
	"github.com/bigkaa/goartstore/filevault/internal/storage"
)

// MsgDeleted — ответ на успешное удаление.
const MsgDeleted = "File deleted successfully"

// Prometheus-метрики выборки.
var (
	queryTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fv_query_total",
		Help: "Общее количество запросов списка файлов.",
	})
	queryDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "fv_query_duration_seconds",
		Help:    "Длительность запросов списка файлов.",
		Buckets: prometheus.DefBuckets,
	})
)

// ListParams — параметры списка файлов до нормализации.
type ListParams struct {
	Search      string
	ContentType string
	Shareable   *bool
	Public      *bool
	SortBy      string
	SortOrder   string
	Page        int
	PageSize    int
}

// View — представление записи каталога в ответах API.
type View struct {
	ID           int64     `json:"id"`
	OriginalName string    `json:"original_name"`
	StorageName  string    `json:"storage_name"`
	URL          string    `json:"url"`
	ContentHash  string    `json:"content_hash"`
	OriginServer string    `json:"origin_server"`
	Shareable    bool      `json:"shareable"`
	Public       bool      `json:"public"`
	SizeBytes    int64     `json:"size_bytes"`
	ContentType  string    `json:"content_type"`
	CreatedAt    time.Time `json:"created_at"`
}

// NewView строит представление записи.
func NewView(rec *model.FileRecord) View {
	return View{
		ID:           rec.ID,
		OriginalName: rec.OriginalName,
		StorageName:  rec.StorageName,
		URL:          rec.URL(),
		ContentHash:  rec.ContentHash,
		OriginServer: rec.OriginServer,
		Shareable:    rec.Shareable,
		Public:       rec.Public,
		SizeBytes:    rec.SizeBytes,
		ContentType:  rec.ContentType,
		CreatedAt:    rec.CreatedAt,
	}
}

// Page — страница списка файлов.
type Page struct {
	Items      []View `json:"items"`
	Total      int    `json:"total"`
	Page       int    `json:"page"`
	PageSize   int    `json:"page_size"`
	TotalPages int    `json:"total_pages"`
}

// DeleteResult — ответ на удаление.
type DeleteResult struct {
	Message string `json:"message"`
	ID      int64  `json:"id"`
}

// QueryService — сервис выборки и управления записями каталога.
type QueryService struct {
	files  repository.FileRepository
	tx     repository.Transactor
	store  storage.Store
	cache  *CacheService
	logger *slog.Logger
}

// NewQueryService создаёт сервис выборки.
func NewQueryService(
	files repository.FileRepository,
	tx repository.Transactor,
	store storage.Store,
	cache *CacheService,
	logger *slog.Logger,
) *QueryService {
	return &QueryService{
		files:  files,
		tx:     tx,
		store:  store,
		cache:  cache,
		logger: logger.With(slog.String("component", "query_service")),
	}
}

// normalize приводит параметры списка к допустимым значениям.
func (p ListParams) normalize() repository.QueryParams {
	qp := repository.QueryParams{
		Search:      p.Search,
		ContentType: p.ContentType,
		Shareable:   p.Shareable,
		Public:      p.Public,
		SortBy:      p.SortBy,
		SortOrder:   strings.ToLower(p.SortOrder),
		Page:        p.Page,
		PageSize:    p.PageSize,
	}

	switch qp.SortBy {
	case repository.SortCreatedAt, repository.SortOriginalName,
		repository.SortSizeBytes, repository.SortContentType:
	default:
		qp.SortBy = repository.SortCreatedAt
	}
	if qp.SortOrder != "asc" {
		qp.SortOrder = "desc"
	}
	if qp.Page < 1 {
		qp.Page = 1
	}
	switch {
	case qp.PageSize < 1:
		qp.PageSize = repository.DefaultPageSize
	case qp.PageSize > repository.MaxPageSize:
		qp.PageSize = repository.MaxPageSize
	}
	return qp
}

// totalPages — количество страниц; 0 для пустой выборки.
func totalPages(total, pageSize int) int {
	if total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}

// List возвращает страницу файлов.
// Обновляет Prometheus-метрики (query_total, query_duration_seconds).
func (s *QueryService) List(ctx context.Context, params ListParams) (*Page, error) {
	start := time.Now()
	queryTotal.Inc()

	qp := params.normalize()
	items, total, err := s.files.Query(ctx, qp)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("list", "error").Inc()
		return nil, newError(ErrCatalog, "Failed to list files", err)
	}

	duration := time.Since(start)
	queryDuration.Observe(duration.Seconds())
	middleware.OperationsTotal.WithLabelValues("list", "success").Inc()

	s.logger.Debug("Список файлов получен",
		slog.Int("total", total),
		slog.Int("returned", len(items)),
		slog.Duration("duration", duration),
	)

	views := make([]View, 0, len(items))
	for _, rec := range items {
		views = append(views, NewView(rec))
	}

	return &Page{
		Items:      views,
		Total:      total,
		Page:       qp.Page,
		PageSize:   qp.PageSize,
		TotalPages: totalPages(total, qp.PageSize),
	}, nil
}

// Get возвращает запись по id.
// Сначала проверяет LRU-кэш, при промахе — запрос к PostgreSQL, результат кэшируется.
func (s *QueryService) Get(ctx context.Context, id int64) (*model.FileRecord, error) {
	if rec, ok := s.cache.Get(id); ok {
		s.logger.Debug("Кэш hit для файла", slog.Int64("id", id))
		return rec, nil
	}

	rec, err := s.files.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, MsgFileNotFound, err)
		}
		return nil, newError(ErrCatalog, "Failed to load file", err)
	}

	s.cache.Set(rec)
	return rec, nil
}

// Update изменяет имя и флаги записи. Пустой набор полей возвращает запись как есть.
func (s *QueryService) Update(ctx context.Context, id int64, upd model.FileUpdate) (*model.FileRecord, error) {
	if upd.OriginalName != nil {
		name := strings.TrimSpace(*upd.OriginalName)
		if name == "" {
			return nil, newError(ErrValidation, "original_name must not be empty", nil)
		}
		upd.OriginalName = &name
	}

	rec, err := s.files.Update(ctx, id, upd)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("update", "error").Inc()
		if errors.Is(err, repository.ErrNotFound) {
			return nil, newError(ErrNotFound, MsgFileNotFound, err)
		}
		return nil, newError(ErrCatalog, "Failed to update file", err)
	}

	s.cache.Delete(id)
	middleware.OperationsTotal.WithLabelValues("update", "success").Inc()

	s.logger.Info("Запись обновлена", slog.Int64("id", id))
	return rec, nil
}

// Delete удаляет запись и, если это была последняя ссылка, байты объекта.
//
// Всё выполняется в одной транзакции: удаление строки (блокирует её от
// параллельного удаления), уменьшение ref_count, при нуле — удаление байтов
// и строки objects. Ошибка удаления байтов откатывает транзакцию,
// запись остаётся в каталоге.
func (s *QueryService) Delete(ctx context.Context, id int64) (*DeleteResult, error) {
	var (
		rec      *model.FileRecord
		storeErr error
		purged   bool
	)

	err := s.tx.InTx(ctx, func(r repository.Repos) error {
		var err error
		rec, err = r.Files.Delete(ctx, id)
		if err != nil {
			return err
		}

		remaining, err := r.Objects.Release(ctx, rec.StoragePath)
		if errors.Is(err, repository.ErrNotFound) {
			// Запись без учёта ссылок — байты не трогаем
			s.logger.Warn("Объект записи не зарегистрирован",
				slog.Int64("id", id),
				slog.String("path", rec.StoragePath),
			)
			return nil
		}
		if err != nil {
			return err
		}
		if remaining > 0 {
			return nil
		}

		if err := s.store.Delete(ctx, rec.StoragePath); err != nil {
			storeErr = err
			return err
		}
		purged = true
		return r.Objects.Remove(ctx, rec.StoragePath)
	})

	switch {
	case err == nil:
	case storeErr != nil:
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		s.logger.Error("Ошибка удаления объекта, запись сохранена",
			slog.Int64("id", id),
			slog.String("error", storeErr.Error()),
		)
		return nil, newError(ErrStoreDelete, "Failed to delete file from storage", storeErr)
	case errors.Is(err, repository.ErrNotFound) && rec == nil:
		return nil, newError(ErrNotFound, MsgFileNotFound, err)
	default:
		middleware.OperationsTotal.WithLabelValues("delete", "error").Inc()
		if purged {
			s.logger.Error("Байты удалены, но транзакция каталога не зафиксирована",
				slog.Int64("id", id),
				slog.String("path", rec.StoragePath),
				slog.String("error", err.Error()),
			)
		}
		return nil, newError(ErrCatalog, "Failed to delete file record", fmt.Errorf("удаление записи %d: %w", id, err))
	}

	s.cache.Delete(id)
	middleware.OperationsTotal.WithLabelValues("delete", "success").Inc()

	s.logger.Info("Файл удалён",
		slog.Int64("id", id),
		slog.String("path", rec.StoragePath),
		slog.Bool("purged", purged),
	)

	return &DeleteResult{Message: MsgDeleted, ID: id}, nil
}
