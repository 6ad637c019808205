// Пакет errors — конструкторы стандартных ошибок API File Vault.
// Единый формат: {"error": {"code": "...", "message": "..."}}.
// Все HTTP-ответы с ошибками должны использовать WriteError.
package errors //nolint:revive // конфликт имени со stdlib, импортируется как apierrors

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

// Коды ошибок, определённые в OpenAPI контракте.
const (
	CodeValidationError  = "VALIDATION_ERROR"
	CodeFileTooLarge     = "FILE_TOO_LARGE"
	CodeUnsupportedType  = "UNSUPPORTED_TYPE"
	CodeUnauthorized     = "UNAUTHORIZED"
	CodeNotFound         = "NOT_FOUND"
	CodeRateLimited      = "RATE_LIMITED"
	CodeStoreWriteError  = "STORE_WRITE_ERROR"
	CodeStoreDeleteError = "STORE_DELETE_ERROR"
	CodeDecryptionError  = "DECRYPTION_ERROR"
	CodeCatalogError     = "CATALOG_ERROR"
	CodeInternalError    = "INTERNAL_ERROR"

	CodeMethodNotAllowed    = "METHOD_NOT_ALLOWED"
	CodeReconcileInProgress = "RECONCILE_IN_PROGRESS"
)

// MsgUnauthorized — единое сообщение для любой ошибки аутентификации.
const MsgUnauthorized = "Not authenticated"

// errorBody — структура тела ответа ошибки.
type errorBody struct {
	Error errorDetail `json:"error"`
}

// errorDetail — детали ошибки.
type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	// Detail — текст исходной ошибки, только в debug-режиме
	Detail string `json:"detail,omitempty"`
}

// WriteError записывает ответ ошибки в стандартном формате.
// statusCode — HTTP статус-код, code — машиночитаемый код, message — описание.
func WriteError(w http.ResponseWriter, statusCode int, code, message string) {
	WriteErrorDetail(w, statusCode, code, message, "")
}

// WriteErrorDetail — WriteError с диагностическим полем detail.
func WriteErrorDetail(w http.ResponseWriter, statusCode int, code, message, detail string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(errorBody{
		Error: errorDetail{
			Code:    code,
			Message: message,
			Detail:  detail,
		},
	})
}

// --- Конструкторы для типичных ошибок ---

// ValidationError — 400 некорректные входные данные.
func ValidationError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, CodeValidationError, message)
}

// NotFound — 404 ресурс не найден.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusNotFound, CodeNotFound, message)
}

// Unauthorized — 401 требуется аутентификация.
// Причина отказа клиенту не раскрывается.
func Unauthorized(w http.ResponseWriter) {
	UnauthorizedMessage(w, MsgUnauthorized)
}

// UnauthorizedMessage — 401 с указанным сообщением (неверные учётные данные).
func UnauthorizedMessage(w http.ResponseWriter, message string) {
	w.Header().Set("WWW-Authenticate", "Bearer")
	WriteError(w, http.StatusUnauthorized, CodeUnauthorized, message)
}

// RateLimited — 429 превышен лимит запросов.
// Retry-After округляется вверх до целых секунд, минимум 1.
func RateLimited(w http.ResponseWriter, retryAfter time.Duration) {
	secs := int((retryAfter + time.Second - 1) / time.Second)
	if secs < 1 {
		secs = 1
	}
	w.Header().Set("Retry-After", strconv.Itoa(secs))
	WriteError(w, http.StatusTooManyRequests, CodeRateLimited, "Too many requests")
}

// MethodNotAllowed — 405 метод не поддерживается маршрутом.
func MethodNotAllowed(w http.ResponseWriter) {
	WriteError(w, http.StatusMethodNotAllowed, CodeMethodNotAllowed, "Method not allowed")
}

// ReconcileInProgress — 409 сверка уже выполняется.
func ReconcileInProgress(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusConflict, CodeReconcileInProgress, message)
}

// InternalError — 500 внутренняя ошибка.
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, CodeInternalError, message)
}
