package api

import (
	"net/http"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/handler"
	"github.com/dukerupert/botica/internal/identity"
)

// ProfileHandler passes profile reads and updates through to the identity
// service and refreshes the session's copy of the buyer's identity.
type ProfileHandler struct {
	identity identity.Service
	sessions Sessions
}

// NewProfileHandler creates a profile handler.
func NewProfileHandler(identity identity.Service, sessions Sessions) *ProfileHandler {
	return &ProfileHandler{identity: identity, sessions: sessions}
}

// Get handles GET /api/profile
func (h *ProfileHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}
	token := bearer(r, c)
	if token == "" {
		handler.ErrorResponse(w, r, domain.WithOp(domain.ErrNotAuthenticated, "api.profile"))
		return
	}

	profile, err := h.identity.Me(ctx, token)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if err := c.SetCredentials(ctx, domain.Credentials{Token: token, Profile: profile}); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusOK, profile)
}

// Update handles PUT /api/profile
func (h *ProfileHandler) Update(w http.ResponseWriter, r *http.Request) {
	const op = "api.update_profile"
	ctx := r.Context()

	var update domain.ProfileUpdate
	if err := handler.DecodeJSON(r, op, &update); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}
	token := bearer(r, c)
	if token == "" {
		handler.ErrorResponse(w, r, domain.WithOp(domain.ErrNotAuthenticated, op))
		return
	}

	profile, err := h.identity.UpdateMe(ctx, token, update)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	if err := c.SetCredentials(ctx, domain.Credentials{Token: token, Profile: profile}); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusOK, profile)
}
