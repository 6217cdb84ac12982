package handlers

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"time"

	"github.com/baharkarakas/ledger-backend/internal/api/httpx"
	"github.com/baharkarakas/ledger-backend/internal/api/validate"
	"github.com/baharkarakas/ledger-backend/internal/auth"
	"github.com/baharkarakas/ledger-backend/internal/logger"
	"github.com/baharkarakas/ledger-backend/internal/models"
	"github.com/baharkarakas/ledger-backend/internal/services"
)

type UserService interface {
	Register(ctx context.Context, in services.SignupInput) (models.User, error)
	Authenticate(ctx context.Context, username, password string, client services.ClientInfo) (models.User, error)
}

type AuthHandler struct {
	TM    *auth.TokenManager
	Users UserService
}

func NewAuthHandler(tm *auth.TokenManager, users UserService) *AuthHandler {
	return &AuthHandler{TM: tm, Users: users}
}

type signinReq struct {
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type refreshReq struct {
	RefreshToken string `json:"refreshToken" validate:"required"`
}

type tokenResp struct {
	Message      string `json:"message,omitempty"`
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	ExpiresIn    int64  `json:"expiresIn"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var in services.SignupInput
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	u, err := h.Users.Register(r.Context(), in)
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	h.issue(w, r, u.ID, http.StatusCreated, "user created successfully")
}

func (h *AuthHandler) Signin(w http.ResponseWriter, r *http.Request) {
	var req signinReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	u, err := h.Users.Authenticate(r.Context(), req.Username, req.Password, clientInfo(r))
	if err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	h.issue(w, r, u.ID, http.StatusOK, "")
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	var req refreshReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpx.WriteError(w, http.StatusBadRequest, "validation_error", "invalid request body", nil)
		return
	}
	if err := validate.Struct(req); err != nil {
		httpx.WriteServiceError(w, err)
		return
	}
	claims, err := h.TM.ParseRefresh(req.RefreshToken)
	if err != nil {
		httpx.WriteError(w, http.StatusUnauthorized, "unauthorized", "invalid refresh token", nil)
		return
	}
	h.issue(w, r, claims.UserID, http.StatusOK, "")
}

func (h *AuthHandler) issue(w http.ResponseWriter, r *http.Request, userID string, status int, msg string) {
	access, refresh, exp, err := h.TM.GeneratePair(userID)
	if err != nil {
		logger.From(r.Context()).Error("token generation failed", "err", err)
		httpx.WriteError(w, http.StatusInternalServerError, "internal_error", "token generation failed", nil)
		return
	}
	httpx.WriteJSON(w, status, tokenResp{
		Message:      msg,
		Token:        access,
		RefreshToken: refresh,
		ExpiresIn:    int64(time.Until(exp).Seconds()),
	})
}

func clientInfo(r *http.Request) services.ClientInfo {
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		ip = r.RemoteAddr
	}
	return services.ClientInfo{IP: ip, UserAgent: r.UserAgent()}
}
