// Package identity is the client for the users-and-purchases identity service.
package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/httpclient"
	"github.com/dukerupert/botica/internal/validate"
)

// Service authenticates buyers and reads their profile.
type Service interface {
	// Login exchanges a DNI or email plus password for a bearer token.
	Login(ctx context.Context, req domain.LoginRequest) (string, error)

	// Me returns the profile of the token's owner.
	Me(ctx context.Context, token string) (domain.UserProfile, error)

	// UpdateMe updates the profile of the token's owner.
	UpdateMe(ctx context.Context, token string, update domain.ProfileUpdate) (domain.UserProfile, error)
}

// ErrInvalidCredentials is returned when the identity service refuses a login.
var ErrInvalidCredentials = &domain.Error{Code: domain.EUNAUTHORIZED, Message: "Invalid DNI, email or password"}

// Client implements Service over HTTP.
type Client struct {
	http *httpclient.Client
}

// NewClient creates an identity client.
func NewClient(c *httpclient.Client) *Client {
	return &Client{http: c}
}

type loginResponse struct {
	Token       string `json:"token"`
	AccessToken string `json:"access_token"`
}

func (c *Client) Login(ctx context.Context, req domain.LoginRequest) (string, error) {
	const op = "identity.login"

	req.DNI = strings.TrimSpace(req.DNI)
	req.Email = strings.TrimSpace(req.Email)
	if err := validate.Struct(op, req); err != nil {
		return "", err
	}

	var resp loginResponse
	err := c.http.Do(ctx, httpclient.Request{
		Op:     op,
		Method: http.MethodPost,
		Path:   "/auth/login",
		JSON:   req,
	}, &resp)
	if err != nil {
		if domain.IsCode(err, domain.EUNAUTHORIZED) || domain.IsCode(err, domain.ENOTFOUND) {
			return "", domain.WrapError(err, domain.EUNAUTHORIZED, op, ErrInvalidCredentials.Message)
		}
		return "", err
	}

	token := resp.Token
	if token == "" {
		token = resp.AccessToken
	}
	if token == "" {
		return "", domain.Internal(nil, op, "identity service returned no token")
	}
	return token, nil
}

func (c *Client) Me(ctx context.Context, token string) (domain.UserProfile, error) {
	var p remoteProfile
	err := c.http.Do(ctx, httpclient.Request{
		Op:     "identity.me",
		Method: http.MethodGet,
		Path:   "/user/me",
		Token:  token,
		Auth:   true,
	}, &p)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return p.profile(), nil
}

func (c *Client) UpdateMe(ctx context.Context, token string, update domain.ProfileUpdate) (domain.UserProfile, error) {
	const op = "identity.update_me"

	update.DNI = strings.TrimSpace(update.DNI)
	if err := validate.Struct(op, update); err != nil {
		return domain.UserProfile{}, err
	}

	var p remoteProfile
	err := c.http.Do(ctx, httpclient.Request{
		Op:     op,
		Method: http.MethodPut,
		Path:   "/user/me",
		Token:  token,
		Auth:   true,
		JSON:   update,
	}, &p)
	if err != nil {
		return domain.UserProfile{}, err
	}
	return p.profile(), nil
}

// remoteProfile tolerates numeric ids and DNIs and an optional "user" envelope.
type remoteProfile struct {
	ID       domain.FlexString `json:"id"`
	Name     string            `json:"nombre"`
	LastName string            `json:"apellido"`
	Email    string            `json:"email"`
	DNI      domain.FlexString `json:"dni"`
	District string            `json:"distrito"`
}

func (p *remoteProfile) UnmarshalJSON(data []byte) error {
	type plain remoteProfile
	var env struct {
		User *plain `json:"user"`
	}
	if err := json.Unmarshal(data, &env); err == nil && env.User != nil {
		*p = remoteProfile(*env.User)
		return nil
	}
	return json.Unmarshal(data, (*plain)(p))
}

func (p remoteProfile) profile() domain.UserProfile {
	return domain.UserProfile{
		ID:       string(p.ID),
		Name:     p.Name,
		LastName: p.LastName,
		Email:    p.Email,
		DNI:      strings.TrimSpace(string(p.DNI)),
		District: p.District,
	}
}
