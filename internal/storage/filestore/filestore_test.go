package filestore

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bigkaa/goartstore/filevault/internal/storage"
)

func newStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := New(t.TempDir())
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	return s
}

// TestNew_CreatesDirectory проверяет создание директории данных.
func TestNew_CreatesDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "data")

	s, err := New(dir)
	if err != nil {
		t.Fatalf("ошибка создания FileStore: %v", err)
	}
	if s.DataDir() != dir {
		t.Errorf("ожидался путь %s, получен %s", dir, s.DataDir())
	}

	info, err := os.Stat(dir)
	if err != nil {
		t.Fatalf("директория не создана: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("путь не является директорией")
	}
}

// TestPutGet проверяет запись и чтение объекта.
func TestPutGet(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	now := time.Date(2026, 2, 21, 15, 4, 5, 0, time.UTC)
	name := storage.GenerateName(now)
	content := []byte("зашифрованные байты")

	path, err := s.Put(ctx, storage.Bucket(now), name, content)
	if err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}
	if path != "2026-02-21/"+name {
		t.Errorf("путь = %q", path)
	}

	got, err := s.Get(ctx, path)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if !bytes.Equal(got, content) {
		t.Errorf("содержимое не совпадает: %q", got)
	}

	// Временных файлов не остаётся
	entries, err := os.ReadDir(filepath.Join(s.DataDir(), "2026-02-21"))
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Errorf("ожидался 1 файл в разделе, найдено %d", len(entries))
	}
}

// TestPut_EmptyData проверяет запись пустого объекта.
func TestPut_EmptyData(t *testing.T) {
	s := newStore(t)
	path, err := s.Put(context.Background(), "2026-01-01", "empty", nil)
	if err != nil {
		t.Fatalf("ошибка записи: %v", err)
	}
	got, err := s.Get(context.Background(), path)
	if err != nil {
		t.Fatalf("ошибка чтения: %v", err)
	}
	if len(got) != 0 {
		t.Errorf("ожидался пустой объект, получено %d байт", len(got))
	}
}

// TestPut_InvalidPath проверяет, что недопустимые компоненты отклоняются до записи.
func TestPut_InvalidPath(t *testing.T) {
	s := newStore(t)

	tests := []struct {
		name   string
		bucket string
		obj    string
	}{
		{"обход каталогов в имени", "2026-01-01", "../escape"},
		{"разделитель в имени", "2026-01-01", "a/b"},
		{"двойная точка", "2026-01-01", "a..b"},
		{"раздел не дата", "uploads", "file"},
		{"несуществующая дата", "2026-13-40", "file"},
		{"пустое имя", "2026-01-01", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.Put(context.Background(), tt.bucket, tt.obj, []byte("x"))
			if !errors.Is(err, storage.ErrWrite) {
				t.Fatalf("ожидалась ErrWrite, получено %v", err)
			}
			if !errors.Is(err, storage.ErrInvalidPath) {
				t.Errorf("ожидалась ErrInvalidPath в цепочке, получено %v", err)
			}
		})
	}
}

// TestPut_CancelledContext проверяет, что отменённый запрос не пишет данные.
func TestPut_CancelledContext(t *testing.T) {
	s := newStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.Put(ctx, "2026-01-01", "cancelled", []byte("x"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("ожидалась context.Canceled, получено %v", err)
	}
	if _, err := os.Stat(filepath.Join(s.DataDir(), "2026-01-01", "cancelled")); !os.IsNotExist(err) {
		t.Error("объект не должен быть записан")
	}
}

// TestGet_NotFound проверяет ErrNotFound для отсутствующего объекта.
func TestGet_NotFound(t *testing.T) {
	s := newStore(t)
	_, err := s.Get(context.Background(), "2099-01-01/missing.txt")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("ожидалась ErrNotFound, получено %v", err)
	}
}

// TestGet_InvalidPath проверяет, что чтение за пределами dataDir невозможно.
func TestGet_InvalidPath(t *testing.T) {
	s := newStore(t)
	for _, p := range []string{"../etc/passwd", "2026-01-01/../../x", "noslash", "/abs"} {
		if _, err := s.Get(context.Background(), p); !errors.Is(err, storage.ErrInvalidPath) {
			t.Errorf("Get(%q): ожидалась ErrInvalidPath, получено %v", p, err)
		}
	}
}

// TestDelete проверяет удаление и идемпотентность.
func TestDelete(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	path, err := s.Put(ctx, "2026-01-01", "todelete", []byte("x"))
	if err != nil {
		t.Fatal(err)
	}

	if err := s.Delete(ctx, path); err != nil {
		t.Fatalf("ошибка удаления: %v", err)
	}
	if _, err := s.Get(ctx, path); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("объект должен быть удалён, получено %v", err)
	}

	// Повторное удаление — не ошибка
	if err := s.Delete(ctx, path); err != nil {
		t.Errorf("повторное удаление вернуло ошибку: %v", err)
	}
}

// TestDelete_InvalidPath проверяет тип ошибки при недопустимом пути.
func TestDelete_InvalidPath(t *testing.T) {
	s := newStore(t)
	err := s.Delete(context.Background(), "../x")
	var delErr *storage.DeleteError
	if !errors.As(err, &delErr) {
		t.Fatalf("ожидалась *storage.DeleteError, получено %v", err)
	}
	if !errors.Is(err, storage.ErrDelete) {
		t.Error("ошибка должна соответствовать ErrDelete")
	}
}

func TestPing(t *testing.T) {
	s := newStore(t)
	if err := s.Ping(context.Background()); err != nil {
		t.Fatalf("Ping: %v", err)
	}

	entries, _ := os.ReadDir(s.DataDir())
	for _, e := range entries {
		if strings.HasPrefix(e.Name(), ".ping") {
			t.Errorf("Ping оставил временный файл %s", e.Name())
		}
	}
}

// TestList проверяет обход объектов с пропуском временных и посторонних файлов.
func TestList(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()

	p1, err := s.Put(ctx, "2026-01-01", "a1", []byte("one"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	p2, err := s.Put(ctx, "2026-01-02", "b2", []byte("two2"))
	if err != nil {
		t.Fatalf("Put: %v", err)
	}

	// Мусор, который List должен пропустить
	if err := os.WriteFile(filepath.Join(s.DataDir(), "2026-01-01", ".a1.123.tmp"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(s.DataDir(), "lost+found"), 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(s.DataDir(), "README"), []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	got := map[string]int64{}
	err = s.List(ctx, func(info storage.ObjectInfo) error {
		got[info.Path] = info.Size
		if info.ModTime.IsZero() {
			t.Errorf("%s: пустое время изменения", info.Path)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("List: %v", err)
	}

	if len(got) != 2 || got[p1] != 3 || got[p2] != 4 {
		t.Errorf("List вернул %v", got)
	}
}

// TestList_StopsOnCallbackError проверяет прерывание обхода ошибкой fn.
func TestList_StopsOnCallbackError(t *testing.T) {
	s := newStore(t)
	ctx := context.Background()
	for _, name := range []string{"a", "b", "c"} {
		if _, err := s.Put(ctx, "2026-01-01", name, []byte(name)); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}

	stop := errors.New("stop")
	calls := 0
	err := s.List(ctx, func(storage.ObjectInfo) error {
		calls++
		return stop
	})
	if !errors.Is(err, stop) || calls != 1 {
		t.Errorf("err = %v, calls = %d", err, calls)
	}
}
