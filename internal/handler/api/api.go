// Package api holds the JSON handlers of the storefront BFF.
//
// Every handler resolves the buyer's checkout coordinator from the session id
// the Session middleware put on the request context.
package api

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/dukerupert/botica/internal/checkout"
	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/handler"
)

// Sessions resolves the coordinator that owns a buyer session.
type Sessions interface {
	Get(ctx context.Context, sessionID string) (*checkout.Coordinator, error)
	Forget(sessionID string)
}

// coordinator returns the request's coordinator, writing the error response
// when it cannot be loaded.
func coordinator(w http.ResponseWriter, r *http.Request, sessions Sessions) (*checkout.Coordinator, bool) {
	id := domain.SessionFromContext(r.Context())
	if id == "" {
		handler.InternalErrorResponse(w, r, errors.New("request has no session"))
		return nil, false
	}

	c, err := sessions.Get(r.Context(), id)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return nil, false
	}
	return c, true
}

// bearer returns the token for passthrough calls: an Authorization header
// wins over the token stored with the session.
func bearer(r *http.Request, c *checkout.Coordinator) string {
	if t := domain.TokenFromContext(r.Context()); t != "" {
		return t
	}
	return c.Credentials().Token
}

// decodeOptional decodes a JSON body that may be absent.
func decodeOptional(r *http.Request, op string, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := handler.DecodeJSON(r, op, v)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func pathID(r *http.Request, op string) (int64, error) {
	raw := r.PathValue("id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, domain.NewValidationError(op, "id", "must be a positive number")
	}
	return id, nil
}
