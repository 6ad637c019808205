// Пакет service — бизнес-логика File Vault.
// upload.go — загрузка файлов с дедупликацией по хэшу содержимого.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/bigkaa/goartstore/filevault/internal/api/middleware"
	"github.com/bigkaa/goartstore/filevault/internal/codec"
	"github.com/bigkaa/goartstore/filevault/internal/domain/model"
	"github.com/bigkaa/goartstore/filevault/internal/repository"
	"github.com/bigkaa/goartstore/filevault/internal/storage"
)

// Сообщения ответа на загрузку.
const (
	MsgUploaded      = "File uploaded successfully"
	MsgAlreadyExists = "File already exists"
)

// eventTimeout — время на запись события аудита после ответа клиенту.
const eventTimeout = 5 * time.Second

// UploadParams — параметры загрузки файла.
type UploadParams struct {
	// Data — содержимое файла (прочитано не более MaxFileSize+1 байт)
	Data []byte
	// Filename — имя файла, переданное клиентом
	Filename string
	// ContentType — заявленный MIME-тип
	ContentType string
	// Subject — идентификатор пользователя (sub из JWT)
	Subject string
}

// UploadResult — результат загрузки.
type UploadResult struct {
	Message string
	URL     string
	ID      int64
	// Duplicate — содержимое уже было в хранилище, новые байты не записаны
	Duplicate bool
	Record    *model.FileRecord
}

// UploadConfig — политика загрузки.
type UploadConfig struct {
	MaxFileSize int64
	ServerID    string
}

// UploadService — сервис загрузки файлов.
type UploadService struct {
	cfg    UploadConfig
	store  storage.Store
	cipher *codec.Cipher
	files  repository.FileRepository
	tx     repository.Transactor
	events repository.EventRepository
	locks  *KeyedMutex
	logger *slog.Logger
	now    func() time.Time
}

// NewUploadService создаёт сервис загрузки файлов.
// events может быть nil — тогда журнал загрузок не ведётся.
func NewUploadService(
	cfg UploadConfig,
	store storage.Store,
	cipher *codec.Cipher,
	files repository.FileRepository,
	tx repository.Transactor,
	events repository.EventRepository,
	locks *KeyedMutex,
	logger *slog.Logger,
) *UploadService {
	return &UploadService{
		cfg:    cfg,
		store:  store,
		cipher: cipher,
		files:  files,
		tx:     tx,
		events: events,
		locks:  locks,
		logger: logger.With(slog.String("component", "upload_service")),
		now:    time.Now,
	}
}

// Upload сохраняет файл.
//
// Поток:
//  1. Валидация имени, типа и размера
//  2. SHA-256 открытого содержимого
//  3. Блокировка по хэшу (в пределах экземпляра) на время шагов 4-5
//  4. Есть запись с таким хэшем → новая запись на существующий объект
//  5. Нет → шифрование, запись объекта, регистрация объекта + запись в одной транзакции
//
// Между экземплярами гонку разрешает первичный ключ objects.content_hash:
// проигравший удаляет свои байты и переходит в ветку дубликата.
func (s *UploadService) Upload(ctx context.Context, p UploadParams) (*UploadResult, error) {
	contentType, err := s.validate(p)
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "rejected").Inc()
		return nil, err
	}
	p.ContentType = contentType

	hash := codec.Hash(p.Data)

	unlock := s.locks.Lock(hash)
	res, err := s.upload(ctx, p, hash)
	unlock()
	if err != nil {
		middleware.OperationsTotal.WithLabelValues("upload", "error").Inc()
		return nil, err
	}

	middleware.OperationsTotal.WithLabelValues("upload", "success").Inc()
	if res.Duplicate {
		middleware.UploadsTotal.WithLabelValues("duplicate").Inc()
	} else {
		middleware.UploadsTotal.WithLabelValues("stored").Inc()
	}

	s.logger.Info("Файл загружен",
		slog.Int64("id", res.ID),
		slog.String("filename", p.Filename),
		slog.Int64("size", int64(len(p.Data))),
		slog.String("hash", hash),
		slog.Bool("duplicate", res.Duplicate),
		slog.String("subject", p.Subject),
	)

	s.appendEvent(ctx, p.Subject, res)
	return res, nil
}

func (s *UploadService) upload(ctx context.Context, p UploadParams, hash string) (*UploadResult, error) {
	_, err := s.files.FindByHash(ctx, hash)
	switch {
	case err == nil:
		res, found, err := s.recordDuplicate(ctx, p, hash)
		if err != nil || found {
			return res, err
		}
		// Последняя ссылка удалена между поиском и захватом — сохраняем заново
		s.logger.Debug("Объект удалён параллельно, сохраняем заново", slog.String("hash", hash))
	case !errors.Is(err, repository.ErrNotFound):
		return nil, newError(ErrCatalog, "Failed to look up file", err)
	}

	return s.storeNew(ctx, p, hash)
}

// validate проверяет загрузку и возвращает нормализованный MIME-тип.
func (s *UploadService) validate(p UploadParams) (string, error) {
	if strings.TrimSpace(p.Filename) == "" {
		return "", newError(ErrValidation, "Filename is required", nil)
	}
	contentType := normalizeContentType(p.ContentType)
	if _, ok := allowedTypes[contentType]; !ok {
		return "", ErrUnsupportedType
	}
	if int64(len(p.Data)) > s.cfg.MaxFileSize {
		return "", ErrFileTooLarge
	}
	return contentType, nil
}

// recordDuplicate создаёт запись, указывающую на существующий объект.
// found=false — живого объекта с таким хэшем нет.
func (s *UploadService) recordDuplicate(
	ctx context.Context, p UploadParams, hash string,
) (res *UploadResult, found bool, err error) {
	rec := s.newRecord(p, hash)
	rec.IsDuplicate = true

	err = s.tx.InTx(ctx, func(r repository.Repos) error {
		obj, err := r.Objects.Acquire(ctx, hash)
		if err != nil {
			return err
		}
		rec.StorageName = obj.StorageName
		rec.StoragePath = obj.StoragePath
		return r.Files.Insert(ctx, rec)
	})
	if errors.Is(err, repository.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, true, newError(ErrCatalog, "Failed to record file", err)
	}

	return &UploadResult{
		Message:   MsgAlreadyExists,
		URL:       rec.URL(),
		ID:        rec.ID,
		Duplicate: true,
		Record:    rec,
	}, true, nil
}

// storeNew шифрует и сохраняет новый объект, затем регистрирует его в каталоге.
func (s *UploadService) storeNew(ctx context.Context, p UploadParams, hash string) (*UploadResult, error) {
	now := s.now()
	name := storage.GenerateName(now) + allowedTypes[p.ContentType]

	sealed, err := s.cipher.Encrypt(p.Data)
	if err != nil {
		return nil, newError(ErrStoreWrite, "Failed to store file", err)
	}

	path, err := s.store.Put(ctx, storage.Bucket(now), name, sealed)
	if err != nil {
		s.logger.Error("Ошибка записи объекта",
			slog.String("hash", hash),
			slog.String("error", err.Error()),
		)
		return nil, newError(ErrStoreWrite, "Failed to store file", err)
	}

	// Cleanup при ошибке: записанные байты не должны остаться без записи каталога
	rollback := func() {
		if delErr := s.store.Delete(context.WithoutCancel(ctx), path); delErr != nil {
			s.logger.Error("Ошибка удаления объекта при откате (осиротевший объект)",
				slog.String("path", path),
				slog.String("error", delErr.Error()),
			)
		}
	}

	// Клиент отключился — запись в каталог не делаем
	if err := ctx.Err(); err != nil {
		rollback()
		return nil, fmt.Errorf("загрузка отменена: %w", err)
	}

	rec := s.newRecord(p, hash)
	rec.StorageName = name
	rec.StoragePath = path

	err = s.tx.InTx(ctx, func(r repository.Repos) error {
		if err := r.Objects.Claim(ctx, &model.StoredObject{
			ContentHash: hash,
			StorageName: name,
			StoragePath: path,
			SizeBytes:   rec.SizeBytes,
		}); err != nil {
			return err
		}
		return r.Files.Insert(ctx, rec)
	})

	if errors.Is(err, repository.ErrConflict) {
		// Другой экземпляр успел сохранить то же содержимое
		rollback()
		s.logger.Info("Гонка дедупликации проиграна, используем существующий объект",
			slog.String("hash", hash))

		res, found, err := s.recordDuplicate(ctx, p, hash)
		if err != nil {
			return nil, err
		}
		if !found {
			return nil, newError(ErrCatalog, "Failed to record file",
				fmt.Errorf("объект %s исчез после конфликта", hash))
		}
		return res, nil
	}
	if err != nil {
		rollback()
		s.logger.Error("Ошибка записи в каталог",
			slog.String("hash", hash),
			slog.String("error", err.Error()),
		)
		return nil, newError(ErrCatalog, "Failed to record file", err)
	}

	return &UploadResult{
		Message: MsgUploaded,
		URL:     rec.URL(),
		ID:      rec.ID,
		Record:  rec,
	}, nil
}

func (s *UploadService) newRecord(p UploadParams, hash string) *model.FileRecord {
	return &model.FileRecord{
		OriginalName: p.Filename,
		ContentHash:  hash,
		OriginServer: s.cfg.ServerID,
		Shareable:    true,
		Public:       true,
		SizeBytes:    int64(len(p.Data)),
		ContentType:  p.ContentType,
	}
}

// appendEvent пишет событие в журнал загрузок. Ошибки только логируются.
func (s *UploadService) appendEvent(ctx context.Context, subject string, res *UploadResult) {
	if s.events == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
	defer cancel()

	rec := res.Record
	err := s.events.Append(ctx, &model.UploadEvent{
		FileID:       rec.ID,
		Subject:      subject,
		OriginalName: rec.OriginalName,
		ContentHash:  rec.ContentHash,
		StoragePath:  rec.StoragePath,
		SizeBytes:    rec.SizeBytes,
		ContentType:  rec.ContentType,
		Duplicate:    res.Duplicate,
	})
	if err != nil {
		s.logger.Warn("Ошибка записи события загрузки",
			slog.Int64("id", rec.ID),
			slog.String("error", err.Error()),
		)
	}
}
