package repository

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"

	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
)

// fileColumns — список столбцов таблицы files для SELECT-запросов.
// DRY: одно место для всех SELECT'ов и RETURNING.
var fileColumns = []string{
	"id", "original_name", "storage_name", "storage_path", "content_hash",
	"origin_server", "shareable", "public", "size_bytes", "content_type",
	"created_at", "is_duplicate",
}

// Поля сортировки (whitelist для предотвращения SQL-инъекций).
const (
	SortCreatedAt    = "created_at"
	SortOriginalName = "original_name"
	SortSizeBytes    = "size_bytes"
	SortContentType  = "content_type"
)

// Ограничения пагинации.
const (
	DefaultPageSize = 20
	MaxPageSize     = 100
)

// QueryParams — параметры выборки файлов.
// Фильтры-указатели: nil = фильтр не применяется.
type QueryParams struct {
	// Search — подстрока имени файла (без учёта регистра)
	Search string
	// ContentType — точное совпадение MIME-типа
	ContentType string
	Shareable   *bool
	Public      *bool
	// SortBy — поле сортировки (см. Sort*); неизвестное → created_at
	SortBy string
	// SortOrder — asc или desc; иное → desc
	SortOrder string
	// Page — номер страницы, начиная с 1
	Page int
	// PageSize — размер страницы, 1..MaxPageSize
	PageSize int
}

// FileRepository — доступ к записям каталога в таблице files.
type FileRepository interface {
	// Insert сохраняет запись; заполняет ID и CreatedAt.
	Insert(ctx context.Context, f *model.FileRecord) error
	// FindByID возвращает запись по идентификатору или ErrNotFound.
	FindByID(ctx context.Context, id int64) (*model.FileRecord, error)
	// FindByHash возвращает самую раннюю запись с данным хэшем или ErrNotFound.
	FindByHash(ctx context.Context, hash string) (*model.FileRecord, error)
	// FindByStoragePath возвращает самую раннюю запись, указывающую на объект.
	FindByStoragePath(ctx context.Context, path string) (*model.FileRecord, error)
	// Query выполняет выборку с фильтрами, сортировкой и пагинацией.
	// Возвращает: страницу записей, общее количество, ошибка.
	Query(ctx context.Context, params QueryParams) ([]*model.FileRecord, int, error)
	// Update применяет непустые поля обновления.
	Update(ctx context.Context, id int64, upd model.FileUpdate) (*model.FileRecord, error)
	// Delete удаляет запись и возвращает её последнее состояние.
	Delete(ctx context.Context, id int64) (*model.FileRecord, error)
}

// fileRepo — реализация FileRepository через pgx.
type fileRepo struct {
	db DBTX
}

// NewFileRepository создаёт репозиторий файлов.
func NewFileRepository(db DBTX) FileRepository {
	return &fileRepo{db: db}
}

// scanFile читает строку в порядке fileColumns.
func scanFile(row pgx.Row) (*model.FileRecord, error) {
	f := &model.FileRecord{}
	err := row.Scan(
		&f.ID, &f.OriginalName, &f.StorageName, &f.StoragePath, &f.ContentHash,
		&f.OriginServer, &f.Shareable, &f.Public, &f.SizeBytes, &f.ContentType,
		&f.CreatedAt, &f.IsDuplicate,
	)
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Insert сохраняет запись; ID и CreatedAt назначаются базой.
func (r *fileRepo) Insert(ctx context.Context, f *model.FileRecord) error {
	query, args, err := psql.Insert("files").
		Columns("original_name", "storage_name", "storage_path", "content_hash",
			"origin_server", "shareable", "public", "size_bytes", "content_type", "is_duplicate").
		Values(f.OriginalName, f.StorageName, f.StoragePath, f.ContentHash,
			f.OriginServer, f.Shareable, f.Public, f.SizeBytes, f.ContentType, f.IsDuplicate).
		Suffix("RETURNING id, created_at").
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка построения запроса: %w", err)
	}

	if err := r.db.QueryRow(ctx, query, args...).Scan(&f.ID, &f.CreatedAt); err != nil {
		return fmt.Errorf("ошибка создания записи файла: %w", err)
	}
	return nil
}

// FindByID возвращает файл по идентификатору или ErrNotFound.
func (r *fileRepo) FindByID(ctx context.Context, id int64) (*model.FileRecord, error) {
	return r.findOne(ctx, sq.Eq{"id": id})
}

// FindByHash возвращает самую раннюю запись с данным хэшем.
func (r *fileRepo) FindByHash(ctx context.Context, hash string) (*model.FileRecord, error) {
	return r.findOne(ctx, sq.Eq{"content_hash": hash})
}

// FindByStoragePath возвращает самую раннюю запись для пути объекта.
func (r *fileRepo) FindByStoragePath(ctx context.Context, path string) (*model.FileRecord, error) {
	return r.findOne(ctx, sq.Eq{"storage_path": path})
}

func (r *fileRepo) findOne(ctx context.Context, where sq.Sqlizer) (*model.FileRecord, error) {
	query, args, err := psql.Select(fileColumns...).
		From("files").
		Where(where).
		OrderBy("id ASC").
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка построения запроса: %w", err)
	}

	f, err := scanFile(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка получения файла: %w", err)
	}
	return f, nil
}

// Query выполняет выборку с динамическими фильтрами, сортировкой и пагинацией.
// Страница за пределами результата возвращает пустой срез без ошибки.
func (r *fileRepo) Query(ctx context.Context, params QueryParams) ([]*model.FileRecord, int, error) {
	page, pageSize := params.Page, params.PageSize
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > MaxPageSize {
		pageSize = DefaultPageSize
	}

	where := buildQueryWhere(params)

	result := make([]*model.FileRecord, 0, pageSize)
	// Смещение, не помещающееся в int64, заведомо за пределами результата
	if page-1 <= math.MaxInt64/pageSize {
		if err := r.queryPage(ctx, where, params, pageSize, (page-1)*pageSize, &result); err != nil {
			return nil, 0, err
		}
	}

	// Общее количество — с теми же фильтрами, без LIMIT/OFFSET
	countQuery, countArgs, err := withWhere(psql.Select("COUNT(*)").From("files"), where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("ошибка построения запроса: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("ошибка подсчёта файлов: %w", err)
	}

	return result, total, nil
}

// queryPage читает одну страницу выборки в result.
func (r *fileRepo) queryPage(
	ctx context.Context, where sq.And, params QueryParams, limit, offset int, result *[]*model.FileRecord,
) error {
	dataQuery, args, err := withWhere(psql.Select(fileColumns...).From("files"), where).
		OrderBy(buildOrderBy(params.SortBy, params.SortOrder)...).
		Limit(uint64(limit)).
		Offset(uint64(offset)).
		ToSql()
	if err != nil {
		return fmt.Errorf("ошибка построения запроса: %w", err)
	}

	rows, err := r.db.Query(ctx, dataQuery, args...)
	if err != nil {
		return fmt.Errorf("ошибка выборки файлов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return fmt.Errorf("ошибка сканирования файла: %w", err)
		}
		*result = append(*result, f)
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("ошибка итерации результатов: %w", err)
	}
	return nil
}

// Update применяет непустые поля. Пустое обновление возвращает текущую запись.
func (r *fileRepo) Update(ctx context.Context, id int64, upd model.FileUpdate) (*model.FileRecord, error) {
	if upd.Empty() {
		return r.FindByID(ctx, id)
	}

	b := psql.Update("files").Where(sq.Eq{"id": id})
	if upd.OriginalName != nil {
		b = b.Set("original_name", *upd.OriginalName)
	}
	if upd.Shareable != nil {
		b = b.Set("shareable", *upd.Shareable)
	}
	if upd.Public != nil {
		b = b.Set("public", *upd.Public)
	}

	query, args, err := b.Suffix("RETURNING " + strings.Join(fileColumns, ", ")).ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка построения запроса: %w", err)
	}

	f, err := scanFile(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка обновления файла: %w", err)
	}
	return f, nil
}

// Delete удаляет запись. Строка блокируется до конца транзакции, поэтому
// параллельное удаление того же id получит ErrNotFound.
func (r *fileRepo) Delete(ctx context.Context, id int64) (*model.FileRecord, error) {
	query, args, err := psql.Delete("files").
		Where(sq.Eq{"id": id}).
		Suffix("RETURNING " + strings.Join(fileColumns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("ошибка построения запроса: %w", err)
	}

	f, err := scanFile(r.db.QueryRow(ctx, query, args...))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("ошибка удаления файла: %w", err)
	}
	return f, nil
}

// likeEscaper экранирует спецсимволы LIKE в пользовательской подстроке.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// buildQueryWhere строит условие выборки из фильтров.
func buildQueryWhere(params QueryParams) sq.And {
	where := sq.And{}

	if s := strings.TrimSpace(params.Search); s != "" {
		where = append(where, sq.ILike{"original_name": "%" + likeEscaper.Replace(s) + "%"})
	}
	if params.ContentType != "" {
		where = append(where, sq.Eq{"content_type": params.ContentType})
	}
	if params.Shareable != nil {
		where = append(where, sq.Eq{"shareable": *params.Shareable})
	}
	if params.Public != nil {
		where = append(where, sq.Eq{"public": *params.Public})
	}
	return where
}

// withWhere добавляет условие, только если фильтры заданы.
func withWhere(b sq.SelectBuilder, where sq.And) sq.SelectBuilder {
	if len(where) == 0 {
		return b
	}
	return b.Where(where)
}

// buildOrderBy строит ORDER BY с безопасным whitelist полей.
// id добавляется вторым ключом для стабильного порядка страниц.
func buildOrderBy(sortBy, sortOrder string) []string {
	column := SortCreatedAt
	switch sortBy {
	case SortOriginalName, SortSizeBytes, SortContentType:
		column = sortBy
	}

	direction := "DESC"
	if strings.EqualFold(sortOrder, "asc") {
		direction = "ASC"
	}

	return []string{column + " " + direction, "id " + direction}
}
