// auth.go — обработчики публичных endpoints: корень и выпуск токена.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	apierrors "github.com/bigkaa/goartstore/filevault/internal/api/errors"
	"github.com/bigkaa/goartstore/filevault/internal/service"
)

// maxLoginBody — предельный размер тела POST /token.
const maxLoginBody = 4 << 10

// TokenIssuer — проверка учётных данных и выпуск токена (service.TokenService).
type TokenIssuer interface {
	Login(ctx context.Context, username, password string) (*service.Token, error)
}

// AuthHandler — обработчик POST /token.
type AuthHandler struct {
	tokens TokenIssuer
	errs   *ErrorWriter
}

// NewAuthHandler создаёт обработчик выпуска токенов.
func NewAuthHandler(tokens TokenIssuer, errs *ErrorWriter) *AuthHandler {
	return &AuthHandler{tokens: tokens, errs: errs}
}

// loginRequest — тело POST /token.
type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// Login обрабатывает POST /token.
// Неверные учётные данные — 401 "Invalid credentials", некорректное тело — 400.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLoginBody)).Decode(&req); err != nil {
		apierrors.ValidationError(w, "Invalid request body")
		return
	}
	if req.Username == "" || req.Password == "" {
		apierrors.ValidationError(w, "username and password are required")
		return
	}

	tok, err := h.tokens.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if errors.Is(err, service.ErrUnauthorized) {
			apierrors.UnauthorizedMessage(w, service.MsgInvalidCredentials)
			return
		}
		h.errs.Write(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// Root обрабатывает GET / — признак работоспособности сервиса.
func Root(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"message": "Project is working!"})
}
