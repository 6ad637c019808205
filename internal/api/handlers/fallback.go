// fallback.go — JSON-ответы для несуществующих маршрутов и методов.
package handlers

import (
	"net/http"

	apierrors "github.com/bigkaa/goartstore/filevault/internal/api/errors"
)

// NotFound отвечает 404 в стандартном формате ошибок.
func NotFound(w http.ResponseWriter, _ *http.Request) {
	apierrors.NotFound(w, "Not found")
}

// MethodNotAllowed отвечает 405 в стандартном формате ошибок.
func MethodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	apierrors.MethodNotAllowed(w)
}
