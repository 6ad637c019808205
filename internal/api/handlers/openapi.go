// openapi.go — отдача OpenAPI-контракта в JSON (GET /openapi.json).
package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
)

// OpenAPIHandler отдаёт заранее сериализованный контракт.
type OpenAPIHandler struct {
	body []byte
}

// NewOpenAPIHandler сериализует контракт один раз при старте.
func NewOpenAPIHandler(doc *openapi3.T) (*OpenAPIHandler, error) {
	body, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("ошибка сериализации OpenAPI: %w", err)
	}
	return &OpenAPIHandler{body: body}, nil
}

// ServeHTTP обрабатывает GET /openapi.json.
func (h *OpenAPIHandler) ServeHTTP(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(h.body)
}
