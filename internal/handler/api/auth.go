package api

import (
	"log/slog"
	"net/http"

	"github.com/dukerupert/botica/internal/cookie"
	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/handler"
	"github.com/dukerupert/botica/internal/identity"
	"github.com/dukerupert/botica/internal/middleware"
)

// AuthHandler signs buyers in and out.
type AuthHandler struct {
	identity identity.Service
	sessions Sessions
	cookies  *cookie.Config
}

// NewAuthHandler creates an auth handler.
func NewAuthHandler(identity identity.Service, sessions Sessions, cookies *cookie.Config) *AuthHandler {
	return &AuthHandler{identity: identity, sessions: sessions, cookies: cookies}
}

type loginResponse struct {
	Token           string             `json:"token"`
	Profile         domain.UserProfile `json:"profile"`
	ProfileComplete bool               `json:"profile_complete"`
}

// Login handles POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	const op = "api.login"
	ctx := r.Context()

	var req domain.LoginRequest
	if err := handler.DecodeJSON(r, op, &req); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}

	token, err := h.identity.Login(ctx, req)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	profile, err := h.identity.Me(ctx, token)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	creds := domain.Credentials{Token: token, Profile: profile}
	if err := c.SetCredentials(ctx, creds); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	middleware.GetLogger(ctx).Info("buyer logged in", slog.Bool("profile_complete", creds.BuyerID() != ""))
	handler.JSON(w, http.StatusOK, loginResponse{
		Token:           token,
		Profile:         profile,
		ProfileComplete: creds.BuyerID() != "",
	})
}

// Logout handles POST /api/auth/logout
// Cart, drafts, documents and credentials of the session are discarded.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}

	if err := c.Logout(r.Context()); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	h.sessions.Forget(c.SessionID())
	h.cookies.ClearSession(w)

	w.WriteHeader(http.StatusNoContent)
}
