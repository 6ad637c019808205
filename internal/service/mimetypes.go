// mimetypes.go — допустимые типы содержимого и их расширения.
package service

import (
	"path"
	"strings"
)

// defaultContentType — тип для объектов с неизвестным расширением.
const defaultContentType = "application/octet-stream"

// allowedTypes — закрытый набор допустимых MIME-типов и каноническое расширение.
var allowedTypes = map[string]string{
	"text/plain":         ".txt",
	"application/pdf":    ".pdf",
	"image/png":          ".png",
	"image/jpeg":         ".jpg",
	"application/msword": ".doc",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document": ".docx",
}

// extensionTypes — обратная таблица: расширение → MIME-тип.
var extensionTypes = map[string]string{
	".txt":  "text/plain",
	".pdf":  "application/pdf",
	".png":  "image/png",
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".doc":  "application/msword",
	".docx": "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
}

// normalizeContentType убирает параметры (charset и т.д.) и приводит к нижнему регистру.
func normalizeContentType(contentType string) string {
	if idx := strings.Index(contentType, ";"); idx != -1 {
		contentType = contentType[:idx]
	}
	return strings.ToLower(strings.TrimSpace(contentType))
}

// IsAllowedType сообщает, входит ли тип в допустимый набор.
func IsAllowedType(contentType string) bool {
	_, ok := allowedTypes[normalizeContentType(contentType)]
	return ok
}

// typeByExtension определяет MIME-тип по расширению имени.
func typeByExtension(name string) string {
	if t, ok := extensionTypes[strings.ToLower(path.Ext(name))]; ok {
		return t
	}
	return defaultContentType
}
