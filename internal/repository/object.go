package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
)

// ObjectRepository — счётчики ссылок на физические объекты (таблица objects).
// Методы рассчитаны на вызов внутри транзакции вместе с изменением files.
type ObjectRepository interface {
	// Claim регистрирует новый объект с ref_count = 1.
	// Если объект с таким хэшем уже есть — ErrConflict.
	Claim(ctx context.Context, obj *model.StoredObject) error
	// Acquire увеличивает ref_count живого объекта и возвращает его.
	// Объект с нулевым счётчиком (удаляется) или отсутствующий — ErrNotFound.
	Acquire(ctx context.Context, hash string) (*model.StoredObject, error)
	// Release уменьшает ref_count и возвращает оставшееся количество ссылок.
	Release(ctx context.Context, path string) (int, error)
	// Remove удаляет объект с нулевым счётчиком.
	Remove(ctx context.Context, path string) error
	// Audit возвращает все объекты с фактическим числом ссылающихся записей.
	Audit(ctx context.Context) ([]*model.ObjectAudit, error)
}

type objectRepo struct {
	db DBTX
}

// NewObjectRepository создаёт репозиторий объектов.
func NewObjectRepository(db DBTX) ObjectRepository {
	return &objectRepo{db: db}
}

// Claim вставляет объект. Первичный ключ по content_hash разрешает гонку
// двух экземпляров, загружающих одинаковое содержимое.
func (r *objectRepo) Claim(ctx context.Context, obj *model.StoredObject) error {
	query := `
		INSERT INTO objects (content_hash, storage_name, storage_path, ref_count, size_bytes)
		VALUES ($1, $2, $3, 1, $4)
		RETURNING ref_count, created_at`

	err := r.db.QueryRow(ctx, query,
		obj.ContentHash, obj.StorageName, obj.StoragePath, obj.SizeBytes,
	).Scan(&obj.RefCount, &obj.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrConflict
		}
		return fmt.Errorf("ошибка регистрации объекта: %w", err)
	}
	return nil
}

// Acquire захватывает ссылку на объект. UPDATE блокирует строку,
// поэтому параллельное удаление последней ссылки сериализуется.
func (r *objectRepo) Acquire(ctx context.Context, hash string) (*model.StoredObject, error) {
	query := `
		UPDATE objects SET ref_count = ref_count + 1
		WHERE content_hash = $1 AND ref_count > 0
		RETURNING content_hash, storage_name, storage_path, ref_count, size_bytes, created_at`

	obj := &model.StoredObject{}
	err := r.db.QueryRow(ctx, query, hash).Scan(
		&obj.ContentHash, &obj.StorageName, &obj.StoragePath, &obj.RefCount, &obj.SizeBytes, &obj.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка захвата объекта: %w", err)
	}
	return obj, nil
}

// Release освобождает ссылку на объект.
func (r *objectRepo) Release(ctx context.Context, path string) (int, error) {
	query := `
		UPDATE objects SET ref_count = ref_count - 1
		WHERE storage_path = $1 AND ref_count > 0
		RETURNING ref_count`

	var remaining int
	if err := r.db.QueryRow(ctx, query, path).Scan(&remaining); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("ошибка освобождения объекта: %w", err)
	}
	return remaining, nil
}

// Remove удаляет запись объекта, если на него не осталось ссылок.
func (r *objectRepo) Remove(ctx context.Context, path string) error {
	tag, err := r.db.Exec(ctx,
		`DELETE FROM objects WHERE storage_path = $1 AND ref_count = 0`, path)
	if err != nil {
		return fmt.Errorf("ошибка удаления объекта: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Audit читает все объекты вместе с количеством записей files на тот же путь.
func (r *objectRepo) Audit(ctx context.Context) ([]*model.ObjectAudit, error) {
	query := `
		SELECT o.content_hash, o.storage_name, o.storage_path, o.ref_count, o.size_bytes, o.created_at,
		       (SELECT COUNT(*) FROM files f WHERE f.storage_path = o.storage_path)
		FROM objects o
		ORDER BY o.created_at, o.content_hash`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка чтения объектов: %w", err)
	}
	defer rows.Close()

	var result []*model.ObjectAudit
	for rows.Next() {
		a := &model.ObjectAudit{}
		if err := rows.Scan(
			&a.ContentHash, &a.StorageName, &a.StoragePath, &a.RefCount, &a.SizeBytes, &a.CreatedAt, &a.FileRefs,
		); err != nil {
			return nil, fmt.Errorf("ошибка чтения объекта: %w", err)
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации объектов: %w", err)
	}
	return result, nil
}
