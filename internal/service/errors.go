// errors.go — таксономия ошибок сервисного слоя.
// HTTP-статусы назначаются централизованно в internal/api/handlers (ErrorWriter).
package service

import (
	"errors"
	"fmt"
)

// Виды ошибок. Сопоставляются через errors.Is.
var (
	ErrValidation   = errors.New("ошибка валидации")
	ErrUnauthorized = errors.New("не авторизован")
	ErrRateLimited  = errors.New("превышен лимит запросов")
	ErrNotFound     = errors.New("не найдено")
	ErrStoreWrite   = errors.New("ошибка записи в хранилище")
	ErrStoreDelete  = errors.New("ошибка удаления из хранилища")
	ErrDecryption   = errors.New("ошибка расшифровки")
	ErrCatalog      = errors.New("ошибка каталога")
)

// Уточнения валидации (тоже сопоставляются с ErrValidation).
var (
	ErrFileTooLarge    = &Error{Kind: ErrValidation, Message: "File size too large"}
	ErrUnsupportedType = &Error{Kind: ErrValidation, Message: "File type not allowed"}
)

// Error — ошибка сервиса: вид, сообщение для клиента и исходная причина.
type Error struct {
	Kind    error
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap возвращает вид и причину, чтобы errors.Is находил оба.
func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Is позволяет сравнивать с предопределёнными уточнениями
// (ErrFileTooLarge, ErrUnsupportedType) по виду и сообщению.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind && e.Message == t.Message
}

// newError создаёт ошибку сервиса.
func newError(kind error, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Err: cause}
}

// Message возвращает сообщение для клиента, если err — ошибка сервиса.
func Message(err error) (string, bool) {
	var se *Error
	if errors.As(err, &se) {
		return se.Message, true
	}
	return "", false
}
