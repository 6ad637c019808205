// Пакет storage — общий контракт хранилища зашифрованных объектов.
// Реализации: filestore (локальный диск) и s3store (S3-совместимое хранилище).
package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound — объект по указанному пути отсутствует.
	ErrNotFound = errors.New("объект не найден")
	// ErrWrite — ошибка записи объекта.
	ErrWrite = errors.New("ошибка записи объекта")
	// ErrDelete — ошибка удаления объекта.
	ErrDelete = errors.New("ошибка удаления объекта")
	// ErrInvalidPath — недопустимый путь объекта.
	ErrInvalidPath = errors.New("недопустимый путь объекта")
)

// Store — хранилище объектов. Путь объекта имеет вид bucket/name.
type Store interface {
	// Put атомарно записывает данные и возвращает путь объекта.
	Put(ctx context.Context, bucket, name string, data []byte) (string, error)
	// Get читает объект целиком. Отсутствующий объект → ErrNotFound.
	Get(ctx context.Context, path string) ([]byte, error)
	// Delete удаляет объект. Отсутствующий объект не является ошибкой.
	Delete(ctx context.Context, path string) error
	// Ping проверяет доступность хранилища.
	Ping(ctx context.Context) error
}

// ObjectInfo — сведения об объекте при обходе хранилища.
type ObjectInfo struct {
	Path    string
	Size    int64
	ModTime time.Time
}

// Lister — хранилище, умеющее перечислять свои объекты.
// fn вызывается для каждого объекта с корректным путём; ошибка fn прерывает обход.
type Lister interface {
	List(ctx context.Context, fn func(ObjectInfo) error) error
}

// WriteError — ошибка Put с путём объекта.
type WriteError struct {
	Path string
	Err  error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("ошибка записи объекта %s: %v", e.Path, e.Err)
}

// Unwrap возвращает ErrWrite и исходную причину.
func (e *WriteError) Unwrap() []error { return []error{ErrWrite, e.Err} }

// DeleteError — ошибка Delete с путём объекта.
type DeleteError struct {
	Path string
	Err  error
}

func (e *DeleteError) Error() string {
	return fmt.Sprintf("ошибка удаления объекта %s: %v", e.Path, e.Err)
}

// Unwrap возвращает ErrDelete и исходную причину.
func (e *DeleteError) Unwrap() []error { return []error{ErrDelete, e.Err} }

const bucketLayout = "2006-01-02"

var (
	bucketRe = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	nameRe   = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,254}$`)
)

// GenerateName возвращает имя объекта для хранения:
// {YYYYMMDDHHMMSSffffff}_{uuid hex}. Имя клиента в нём не участвует.
// Пример: 20260221150405123456_0f8fad5bd9cb469fa16570867728950e
func GenerateName(now time.Time) string {
	now = now.UTC()
	return fmt.Sprintf("%s%06d_%s",
		now.Format("20060102150405"), now.Nanosecond()/1000,
		strings.ReplaceAll(uuid.NewString(), "-", ""))
}

// Bucket возвращает дату-раздел объекта в формате YYYY-MM-DD.
func Bucket(now time.Time) string {
	return now.UTC().Format(bucketLayout)
}

// JoinPath собирает путь объекта из раздела и имени с проверкой компонентов.
func JoinPath(bucket, name string) (string, error) {
	if err := ValidateBucket(bucket); err != nil {
		return "", err
	}
	if err := ValidateName(name); err != nil {
		return "", err
	}
	return bucket + "/" + name, nil
}

// SplitPath разбирает путь объекта на раздел и имя с проверкой компонентов.
func SplitPath(path string) (bucket, name string, err error) {
	bucket, name, ok := strings.Cut(path, "/")
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	if _, err := JoinPath(bucket, name); err != nil {
		return "", "", err
	}
	return bucket, name, nil
}

// ValidateBucket проверяет, что раздел — корректная дата YYYY-MM-DD.
func ValidateBucket(bucket string) error {
	if !bucketRe.MatchString(bucket) {
		return fmt.Errorf("%w: раздел %q", ErrInvalidPath, bucket)
	}
	if _, err := time.Parse(bucketLayout, bucket); err != nil {
		return fmt.Errorf("%w: раздел %q", ErrInvalidPath, bucket)
	}
	return nil
}

// ValidateName проверяет имя объекта: без разделителей и обхода каталогов.
func ValidateName(name string) error {
	if !nameRe.MatchString(name) || strings.Contains(name, "..") {
		return fmt.Errorf("%w: имя %q", ErrInvalidPath, name)
	}
	return nil
}
