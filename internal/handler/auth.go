package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/cabinet/cabinet/internal/handler/dto"
	"github.com/cabinet/cabinet/internal/model"
	"github.com/cabinet/cabinet/internal/service"
)

// AuthService is what AuthHandler needs from the auth service.
type AuthService interface {
	Register(ctx context.Context, input service.RegisterInput) (*service.Session, error)
	Login(ctx context.Context, email, password string) (*service.Session, error)
	Me(ctx context.Context, userID string) (*model.User, error)
}

// AuthHandler handles sign-up, sign-in and the current user.
type AuthHandler struct {
	svc    AuthService
	logger *slog.Logger
}

// NewAuthHandler creates a new AuthHandler.
func NewAuthHandler(svc AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{svc: svc, logger: logger}
}

// Register handles POST /api/auth/register.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req dto.RegisterRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	session, err := h.svc.Register(r.Context(), service.RegisterInput{
		Email:    req.Email,
		Name:     req.Name,
		Password: req.Password,
	})
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}

	h.logger.Info("user_registered", "user_id", session.User.ID)
	writeJSON(w, http.StatusCreated, toSessionResponse(session))
}

// Login handles POST /api/auth/login.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req dto.LoginRequest
	if err := decodeJSON(r, &req, false); err != nil {
		writeInvalidJSON(w)
		return
	}

	session, err := h.svc.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, toSessionResponse(session))
}

// Me handles GET /api/auth/me.
func (h *AuthHandler) Me(w http.ResponseWriter, r *http.Request) {
	user, err := h.svc.Me(r.Context(), callerID(r))
	if err != nil {
		handleServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, dto.ToUserResponse(user))
}

func toSessionResponse(s *service.Session) dto.SessionResponse {
	return dto.SessionResponse{
		Token:     s.Token,
		ExpiresAt: s.ExpiresAt,
		User:      dto.ToUserResponse(s.User),
	}
}
