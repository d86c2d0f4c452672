package handler

import (
	"crypto/subtle"
	"encoding/json"
	"net/http"

	"voucherhub-api/internal/model"
	"voucherhub-api/internal/service"
	"voucherhub-api/pkg/apierror"
	"voucherhub-api/pkg/response"
)

// AuthHandler handles authentication-related HTTP requests.
type AuthHandler struct {
	tokenService *service.TokenService
	loginKey     string
}

// NewAuthHandler creates a new auth handler.
func NewAuthHandler(tokenService *service.TokenService, loginKey string) *AuthHandler {
	return &AuthHandler{
		tokenService: tokenService,
		loginKey:     loginKey,
	}
}

// TokenRequest represents the request body for token generation.
type TokenRequest struct {
	LoginKey string `json:"login_key"`
	Subject  string `json:"subject"`
}

// TokenResponse represents the response for token generation.
type TokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expires_in"`
}

// GenerateToken handles POST /auth/token
func (h *AuthHandler) GenerateToken(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, apierror.BadRequest("invalid request body"))
		return
	}
	defer r.Body.Close()

	if req.LoginKey == "" {
		response.Error(w, apierror.BadRequest("login_key is required"))
		return
	}
	if h.loginKey == "" || subtle.ConstantTimeCompare([]byte(req.LoginKey), []byte(h.loginKey)) != 1 {
		response.Error(w, apierror.Unauthorized("invalid login key"))
		return
	}

	subject := req.Subject
	if subject == "" {
		subject = "admin"
	}

	token, err := h.tokenService.GenerateToken(r.Context(), model.TokenData{Subject: subject})
	if err != nil {
		response.Error(w, apierror.InternalError("failed to generate token"))
		return
	}

	response.OK(w, TokenResponse{
		Token:     token,
		ExpiresIn: int(service.TokenTTL.Seconds()),
	})
}

// RevokeToken handles POST /auth/revoke
func (h *AuthHandler) RevokeToken(w http.ResponseWriter, r *http.Request) {
	token := r.Header.Get("X-Token")
	if token == "" {
		response.Error(w, apierror.BadRequest("X-Token header required"))
		return
	}

	if err := h.tokenService.RevokeToken(r.Context(), token); err != nil {
		response.Error(w, apierror.InternalError("failed to revoke token"))
		return
	}

	response.OK(w, map[string]string{"status": "revoked"})
}
