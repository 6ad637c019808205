// Пакет filestore — хранилище зашифрованных объектов на локальном диске.
// Объекты лежат в {dataDir}/{YYYY-MM-DD}/{name}.
package filestore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/bigkaa/goartstore/filevault/internal/storage"
)

// FileStore — управление объектами на диске.
type FileStore struct {
	// dataDir — корневая директория хранения (FV_DATA_DIR)
	dataDir string
}

var (
	_ storage.Store  = (*FileStore)(nil)
	_ storage.Lister = (*FileStore)(nil)
)

// New создаёт новый FileStore. Проверяет и создаёт директорию
// если она не существует.
func New(dataDir string) (*FileStore, error) {
	if err := os.MkdirAll(dataDir, 0o750); err != nil {
		return nil, fmt.Errorf("не удалось создать директорию данных %s: %w", dataDir, err)
	}

	return &FileStore{dataDir: dataDir}, nil
}

// Put записывает объект в раздел bucket под именем name.
//
// Паттерн: temp файл → запись → fsync → atomic rename.
// Читатели никогда не видят частично записанный объект.
// При ошибке temp файл удаляется.
func (s *FileStore) Put(ctx context.Context, bucket, name string, data []byte) (string, error) {
	path, err := storage.JoinPath(bucket, name)
	if err != nil {
		return "", &storage.WriteError{Path: bucket + "/" + name, Err: err}
	}
	if err := ctx.Err(); err != nil {
		return "", &storage.WriteError{Path: path, Err: err}
	}

	dir := filepath.Join(s.dataDir, bucket)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", &storage.WriteError{Path: path, Err: fmt.Errorf("создание раздела: %w", err)}
	}

	fullPath := filepath.Join(dir, name)
	f, err := os.CreateTemp(dir, "."+name+".*.tmp")
	if err != nil {
		return "", &storage.WriteError{Path: path, Err: fmt.Errorf("создание временного файла: %w", err)}
	}
	tmpPath := f.Name()

	fail := func(stage string, err error) (string, error) {
		f.Close()
		os.Remove(tmpPath)
		return "", &storage.WriteError{Path: path, Err: fmt.Errorf("%s: %w", stage, err)}
	}

	if _, err := f.Write(data); err != nil {
		return fail("запись данных", err)
	}
	// fsync для гарантии записи на диск
	if err := f.Sync(); err != nil {
		return fail("fsync", err)
	}
	if err := f.Close(); err != nil {
		os.Remove(tmpPath)
		return "", &storage.WriteError{Path: path, Err: fmt.Errorf("закрытие файла: %w", err)}
	}

	if err := os.Rename(tmpPath, fullPath); err != nil {
		os.Remove(tmpPath)
		return "", &storage.WriteError{Path: path, Err: fmt.Errorf("атомарное переименование: %w", err)}
	}

	return path, nil
}

// Get читает объект целиком.
func (s *FileStore) Get(_ context.Context, path string) ([]byte, error) {
	bucket, name, err := storage.SplitPath(path)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(s.dataDir, bucket, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", storage.ErrNotFound, path)
		}
		return nil, fmt.Errorf("ошибка чтения объекта %s: %w", path, err)
	}
	return data, nil
}

// Delete удаляет объект с диска.
// Возвращает nil если объект уже не существует.
func (s *FileStore) Delete(_ context.Context, path string) error {
	bucket, name, err := storage.SplitPath(path)
	if err != nil {
		return &storage.DeleteError{Path: path, Err: err}
	}

	err = os.Remove(filepath.Join(s.dataDir, bucket, name))
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return &storage.DeleteError{Path: path, Err: err}
	}
	return nil
}

// List обходит разделы {dataDir}/{YYYY-MM-DD}. Временные файлы (".name.*.tmp")
// и всё, что не похоже на объект, пропускаются.
func (s *FileStore) List(ctx context.Context, fn func(storage.ObjectInfo) error) error {
	buckets, err := os.ReadDir(s.dataDir)
	if err != nil {
		return fmt.Errorf("ошибка чтения директории данных %s: %w", s.dataDir, err)
	}

	for _, b := range buckets {
		if !b.IsDir() || storage.ValidateBucket(b.Name()) != nil {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(s.dataDir, b.Name()))
		if err != nil {
			return fmt.Errorf("ошибка чтения раздела %s: %w", b.Name(), err)
		}
		for _, e := range entries {
			if err := ctx.Err(); err != nil {
				return err
			}
			if e.IsDir() || strings.HasPrefix(e.Name(), ".") || storage.ValidateName(e.Name()) != nil {
				continue
			}
			info, err := e.Info()
			if err != nil {
				// файл удалён между ReadDir и Info
				continue
			}
			if err := fn(storage.ObjectInfo{
				Path:    b.Name() + "/" + e.Name(),
				Size:    info.Size(),
				ModTime: info.ModTime(),
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// Ping проверяет, что директория данных доступна на запись.
func (s *FileStore) Ping(_ context.Context) error {
	f, err := os.CreateTemp(s.dataDir, ".ping.*")
	if err != nil {
		return fmt.Errorf("директория данных %s недоступна на запись: %w", s.dataDir, err)
	}
	name := f.Name()
	f.Close()
	return os.Remove(name)
}

// DataDir возвращает путь к директории данных.
func (s *FileStore) DataDir() string {
	return s.dataDir
}
