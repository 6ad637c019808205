package repository

import (
	"context"
	"fmt"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
)

// EventRepository — журнал загрузок (только запись).
type EventRepository interface {
	Append(ctx context.Context, e *model.UploadEvent) error
}

type eventRepo struct {
	db DBTX
}

// NewEventRepository создаёт репозиторий журнала загрузок.
func NewEventRepository(db DBTX) EventRepository {
	return &eventRepo{db: db}
}

// Append добавляет событие загрузки.
func (r *eventRepo) Append(ctx context.Context, e *model.UploadEvent) error {
	query, args, err := psql.Insert("upload_events").
		Columns("file_id", "subject", "original_name", "content_hash",
			"storage_path", "size_bytes", "content_type", "duplicate").
		Values(e.FileID, e.Subject, e.OriginalName, e.ContentHash,
			e.StoragePath, e.SizeBytes, e.ContentType, e.Duplicate).
		Suffix("RETURNING created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка построения запроса: %w", err)
	}

	if err := r.db.QueryRow(ctx, query, args...).Scan(&e.CreatedAt); err != nil {
		return fmt.Errorf("ошибка записи события загрузки: %w", err)
	}
	return nil
}
