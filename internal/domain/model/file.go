// Пакет model — доменные модели File Vault.
// FileRecord — маппинг таблицы files, StoredObject — таблицы objects.
package model

import (
	"strings"
	"time"
)

// FileRecord — запись каталога о загруженном файле.
// Несколько записей с одинаковым ContentHash ссылаются на один объект хранилища.
type FileRecord struct {
	// ID — идентификатор записи (BIGSERIAL), назначается при вставке
	ID int64
	// OriginalName — имя файла, переданное клиентом
	OriginalName string
	// StorageName — сгенерированное имя объекта в хранилище
	StorageName string
	// StoragePath — путь объекта: {YYYY-MM-DD}/{StorageName}
	StoragePath string
	// ContentHash — SHA-256 открытого содержимого (hex)
	ContentHash string
	// OriginServer — идентификатор экземпляра, принявшего загрузку
	OriginServer string
	// Shareable — файл можно передавать другим пользователям
	Shareable bool
	// Public — файл публичный
	Public bool
	// SizeBytes — размер открытого содержимого
	SizeBytes int64
	// ContentType — MIME-тип, заявленный при загрузке
	ContentType string
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// IsDuplicate — запись создана веткой дедупликации и указывает на чужой объект
	IsDuplicate bool
}

// URL возвращает адрес скачивания: /{дата раздела}/{StorageName}.
func (f *FileRecord) URL() string {
	return ObjectURL(f.StoragePath)
}

// ObjectURL строит адрес скачивания по пути объекта.
func ObjectURL(storagePath string) string {
	return "/" + strings.TrimPrefix(storagePath, "/")
}

// StoredObject — физический объект хранилища со счётчиком ссылок.
// Байты удаляются только когда RefCount доходит до нуля.
type StoredObject struct {
	ContentHash string
	StorageName string
	StoragePath string
	RefCount    int
	SizeBytes   int64
	CreatedAt   time.Time
}

// ObjectAudit — объект каталога вместе с фактическим числом записей files,
// ссылающихся на его путь.
type ObjectAudit struct {
	StoredObject
	FileRefs int
}

// FileUpdate — частичное обновление записи. nil = поле не меняется.
type FileUpdate struct {
	OriginalName *string
	Shareable    *bool
	Public       *bool
}

// Empty возвращает true, если обновление не затрагивает ни одного поля.
func (u FileUpdate) Empty() bool {
	return u.OriginalName == nil && u.Shareable == nil && u.Public == nil
}

// UploadEvent — запись журнала загрузок (аудит).
type UploadEvent struct {
	FileID       int64
	Subject      string
	OriginalName string
	ContentHash  string
	StoragePath  string
	SizeBytes    int64
	ContentType  string
	Duplicate    bool
	CreatedAt    time.Time
}
