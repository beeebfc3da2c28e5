package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/sahana-project/ewaste-api/internal/services"
	"github.com/sahana-project/ewaste-api/internal/storage"
)

// AuthHandler provides signup, login and profile endpoints.
type AuthHandler struct {
	accounts *services.AccountService
	log      *slog.Logger
}

func NewAuthHandler(accounts *services.AccountService, log *slog.Logger) *AuthHandler {
	return &AuthHandler{accounts: accounts, log: log}
}

// AuthRouter registers auth routes on the given router. Signup and login go
// through limiter.
func AuthRouter(
	r chi.Router,
	accounts *services.AccountService,
	authMiddleware func(http.Handler) http.Handler,
	limiter *RateLimiter,
	log *slog.Logger,
) {
	handler := NewAuthHandler(accounts, log)

	r.With(limiter.Middleware).Post("/signup", handler.Signup)
	r.With(limiter.Middleware).Post("/login", handler.Login)
	r.With(authMiddleware).Get("/me", handler.Me)
	r.With(authMiddleware).Put("/profile", handler.UpdateProfile)
}

// AuthResponse is returned by signup and login.
type AuthResponse struct {
	Message string `json:"message"`
	services.AuthResult
}

// Signup registers an account and returns a token for it.
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterInput
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	result, err := h.accounts.Register(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{Message: "User registered successfully", AuthResult: result})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginInput
	if err := decodeJSON(r, &req); err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}

	result, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Message: "Login successful", AuthResult: result})
}

// Me returns the caller's public profile.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthenticated.Error())
		return
	}

	profile, err := h.accounts.GetProfile(r.Context(), account.ID)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}

// UpdateProfile applies the sent profile fields and an optional new picture.
func (h *AuthHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	account, ok := accountFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, services.ErrUnauthenticated.Error())
		return
	}

	form, err := readForm(r)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	pictures, err := form.uploads(formFieldProfilePicture)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	if len(pictures) > 1 {
		writeServiceError(w, r, h.log, services.NewValidationError(formFieldProfilePicture, "must be a single file"))
		return
	}
	var picture *storage.Upload
	if len(pictures) == 1 {
		picture = &pictures[0]
	}

	patch := services.ProfilePatch{
		Name:             form.str("name"),
		Phone:            form.str("phone"),
		Address:          form.str("address"),
		OrganizationName: form.str("organizationName"),
	}
	profile, err := h.accounts.UpdateProfile(r.Context(), account.ID, patch, picture)
	if err != nil {
		writeServiceError(w, r, h.log, err)
		return
	}
	writeJSON(w, http.StatusOK, profile)
}
