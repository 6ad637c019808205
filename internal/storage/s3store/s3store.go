// Пакет s3store — хранилище зашифрованных объектов в S3-совместимом бакете.
// Ключ объекта совпадает с путём {YYYY-MM-DD}/{name}.
package s3store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/bigkaa/goartstore/filevault/internal/storage"
)

// Config — параметры подключения к S3.
type Config struct {
	Endpoint  string
	Region    string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// Store — хранилище объектов поверх minio-go.
type Store struct {
	cl     *minio.Client
	bucket string
}

var (
	_ storage.Store  = (*Store)(nil)
	_ storage.Lister = (*Store)(nil)
)

// New создаёт клиента S3. Соединение не устанавливается до первого запроса.
func New(cfg Config) (*Store, error) {
	cl, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:        credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure:       cfg.UseSSL,
		Region:       cfg.Region,
		BucketLookup: minio.BucketLookupPath,
	})
	if err != nil {
		return nil, fmt.Errorf("ошибка создания клиента S3: %w", err)
	}
	return &Store{cl: cl, bucket: cfg.Bucket}, nil
}

// Put загружает объект. PutObject атомарен: объект виден целиком или не виден вовсе.
func (s *Store) Put(ctx context.Context, bucket, name string, data []byte) (string, error) {
	key, err := storage.JoinPath(bucket, name)
	if err != nil {
		return "", &storage.WriteError{Path: bucket + "/" + name, Err: err}
	}

	_, err = s.cl.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: "application/octet-stream"})
	if err != nil {
		return "", &storage.WriteError{Path: key, Err: err}
	}
	return key, nil
}

// Get скачивает объект целиком.
func (s *Store) Get(ctx context.Context, path string) ([]byte, error) {
	if _, _, err := storage.SplitPath(path); err != nil {
		return nil, err
	}

	obj, err := s.cl.GetObject(ctx, s.bucket, path, minio.GetObjectOptions{})
	if err != nil {
		return nil, mapGetError(path, err)
	}
	defer obj.Close()

	// GetObject ленивый: ошибка отсутствия объекта приходит при чтении
	data, err := io.ReadAll(obj)
	if err != nil {
		return nil, mapGetError(path, err)
	}
	return data, nil
}

// Delete удаляет объект. Удаление отсутствующего ключа в S3 не является ошибкой.
func (s *Store) Delete(ctx context.Context, path string) error {
	if _, _, err := storage.SplitPath(path); err != nil {
		return &storage.DeleteError{Path: path, Err: err}
	}

	err := s.cl.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{})
	if err != nil && !isNotFound(err) {
		return &storage.DeleteError{Path: path, Err: err}
	}
	return nil
}

// List перечисляет объекты бакета. Ключи, не являющиеся путями объектов, пропускаются.
func (s *Store) List(ctx context.Context, fn func(storage.ObjectInfo) error) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	for obj := range s.cl.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Recursive: true}) {
		if obj.Err != nil {
			return fmt.Errorf("ошибка перечисления бакета %s: %w", s.bucket, obj.Err)
		}
		if _, _, err := storage.SplitPath(obj.Key); err != nil {
			continue
		}
		if err := fn(storage.ObjectInfo{Path: obj.Key, Size: obj.Size, ModTime: obj.LastModified}); err != nil {
			return err
		}
	}
	return ctx.Err()
}

// Ping проверяет существование бакета.
func (s *Store) Ping(ctx context.Context) error {
	ok, err := s.cl.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("ошибка проверки бакета %s: %w", s.bucket, err)
	}
	if !ok {
		return fmt.Errorf("бакет %s не существует", s.bucket)
	}
	return nil
}

// Bucket возвращает имя бакета S3.
func (s *Store) Bucket() string {
	return s.bucket
}

func mapGetError(path string, err error) error {
	if isNotFound(err) {
		return fmt.Errorf("%w: %s", storage.ErrNotFound, path)
	}
	return fmt.Errorf("ошибка чтения объекта %s: %w", path, err)
}

// isNotFound распознаёт ответ S3 об отсутствии ключа.
func isNotFound(err error) bool {
	var resp minio.ErrorResponse
	if errors.As(err, &resp) {
		return resp.Code == "NoSuchKey" || resp.StatusCode == http.StatusNotFound && resp.Code != "NoSuchBucket"
	}
	resp = minio.ToErrorResponse(err)
	return resp.Code == "NoSuchKey"
}
