// handler.go — общие помощники обработчиков: JSON-ответы и
// централизованное отображение ошибок сервисного слоя на HTTP-статусы.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/filevault/internal/api/errors"
	"github.com/bigkaa/goartstore/filevault/internal/service"
)

// msgInternal — сообщение для непредвиденных ошибок.
const msgInternal = "Internal server error"

// writeJSON записывает JSON-ответ с указанным статусом.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// ErrorWriter отображает ошибки сервиса на ответы API.
// В debug-режиме к ответу добавляется текст исходной ошибки.
type ErrorWriter struct {
	debug  bool
	logger *slog.Logger
}

// NewErrorWriter создаёт отображатель ошибок.
func NewErrorWriter(debug bool, logger *slog.Logger) *ErrorWriter {
	return &ErrorWriter{
		debug:  debug,
		logger: logger.With(slog.String("component", "api_errors")),
	}
}

// errorMapping — HTTP-статус и код ответа для вида ошибки.
type errorMapping struct {
	target error
	status int
	code   string
}

// errorMappings — порядок важен: уточнения валидации проверяются раньше общего вида.
var errorMappings = []errorMapping{
	{service.ErrFileTooLarge, http.StatusBadRequest, apierrors.CodeFileTooLarge},
	{service.ErrUnsupportedType, http.StatusBadRequest, apierrors.CodeUnsupportedType},
	{service.ErrValidation, http.StatusBadRequest, apierrors.CodeValidationError},
	{service.ErrUnauthorized, http.StatusUnauthorized, apierrors.CodeUnauthorized},
	{service.ErrNotFound, http.StatusNotFound, apierrors.CodeNotFound},
	{service.ErrStoreWrite, http.StatusInternalServerError, apierrors.CodeStoreWriteError},
	{service.ErrStoreDelete, http.StatusInternalServerError, apierrors.CodeStoreDeleteError},
	{service.ErrDecryption, http.StatusInternalServerError, apierrors.CodeDecryptionError},
	{service.ErrCatalog, http.StatusInternalServerError, apierrors.CodeCatalogError},
}

// Write записывает ответ для ошибки err.
func (e *ErrorWriter) Write(w http.ResponseWriter, r *http.Request, err error) {
	status, code := http.StatusInternalServerError, apierrors.CodeInternalError
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			status, code = m.status, m.code
			break
		}
	}

	message, ok := service.Message(err)
	if !ok || code == apierrors.CodeInternalError {
		message = msgInternal
	}

	switch {
	case errors.Is(err, context.Canceled):
		e.logger.Info("Запрос отменён клиентом",
			slog.String("path", r.URL.Path),
		)
	case status >= http.StatusInternalServerError:
		e.logger.Error("Ошибка обработки запроса",
			slog.String("path", r.URL.Path),
			slog.String("code", code),
			slog.String("error", err.Error()),
		)
	}

	if status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", "Bearer")
	}

	detail := ""
	if e.debug {
		detail = err.Error()
	}
	apierrors.WriteErrorDetail(w, status, code, message, detail)
}
