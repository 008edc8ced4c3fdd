package domain

import (
	"strings"
)

// UserProfile mirrors the identity service's /user/me document.
type UserProfile struct {
	ID       string `json:"id,omitempty"`
	Name     string `json:"nombre"`
	LastName string `json:"apellido"`
	Email    string `json:"email"`
	DNI      string `json:"dni"`
	District string `json:"distrito,omitempty"`
}

// FullName joins first and last name.
func (p UserProfile) FullName() string {
	return strings.TrimSpace(p.Name + " " + p.LastName)
}

// Credentials are the buyer's bearer token and the identity fields the
// checkout needs. They persist with the session until logout.
type Credentials struct {
	Token   string      `json:"token"`
	Profile UserProfile `json:"profile"`
}

// Authenticated reports whether a bearer token is present.
func (c Credentials) Authenticated() bool {
	return c.Token != ""
}

// BuyerID returns the DNI used as buyer and patient identifier.
func (c Credentials) BuyerID() string {
	return strings.TrimSpace(c.Profile.DNI)
}

// LoginRequest identifies the buyer by DNI or email.
type LoginRequest struct {
	DNI      string `json:"dni,omitempty" validate:"required_without=Email"`
	Email    string `json:"email,omitempty" validate:"omitempty,email"`
	Password string `json:"password" validate:"required"`
}

// ProfileUpdate is the body accepted by PUT /user/me.
type ProfileUpdate struct {
	Name     string `json:"nombre,omitempty"`
	LastName string `json:"apellido,omitempty"`
	DNI      string `json:"dni,omitempty" validate:"omitempty,numeric,len=8"`
	District string `json:"distrito,omitempty"`
}
