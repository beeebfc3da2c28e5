package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/sahana-project/ewaste-api/internal/services"
	"github.com/sahana-project/ewaste-api/types"
)

type contextKey string

const contextAccountKey contextKey = "account"

func withAccount(ctx context.Context, account types.Account) context.Context {
	return context.WithValue(ctx, contextAccountKey, account)
}

func accountFromContext(ctx context.Context) (types.Account, bool) {
	account, ok := ctx.Value(contextAccountKey).(types.Account)
	return account, ok
}

// ErrorResponse is the error payload. Fields is set for validation failures.
type ErrorResponse struct {
	Error  string            `json:"error"`
	Fields map[string]string `json:"fields,omitempty"`
}

// ListResponse wraps every collection response.
type ListResponse[T any] struct {
	Count int `json:"count"`
	Data  []T `json:"data"`
}

func newList[T any](data []T) ListResponse[T] {
	if data == nil {
		data = []T{}
	}
	return ListResponse[T]{Count: len(data), Data: data}
}

// MessageResponse is returned by operations without a resource body.
type MessageResponse struct {
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, value any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(value)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, ErrorResponse{Error: message})
}

var kindStatus = map[services.Kind]int{
	services.KindValidation:     http.StatusBadRequest,
	services.KindAuthentication: http.StatusUnauthorized,
	services.KindAuthorization:  http.StatusForbidden,
	services.KindNotFound:       http.StatusNotFound,
	services.KindConflict:       http.StatusConflict,
}

// writeServiceError maps a service error onto a response. Internal errors are
// logged and reported without detail.
func writeServiceError(w http.ResponseWriter, r *http.Request, log *slog.Logger, err error) {
	status, ok := kindStatus[services.KindOf(err)]
	if !ok {
		log.ErrorContext(r.Context(), "request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"request_id", middleware.GetReqID(r.Context()),
			"error", err,
		)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	var verr *services.ValidationError
	if errors.As(err, &verr) {
		writeJSON(w, status, ErrorResponse{Error: services.ErrValidation.Error(), Fields: verr.Fields})
		return
	}
	writeError(w, status, err.Error())
}

func parseID(r *http.Request, param string) (uuid.UUID, error) {
	id, err := uuid.Parse(strings.TrimSpace(chi.URLParam(r, param)))
	if err != nil {
		return uuid.Nil, services.NewValidationError("id", "is not a valid id")
	}
	return id, nil
}

// Healthz reports liveness.
func Healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
