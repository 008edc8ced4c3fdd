package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/httpclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(httpclient.New("identity", srv.URL, httpclient.Options{Transport: http.DefaultTransport}))
}

func TestClient_Login(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/auth/login", r.URL.Path)

		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "12345678", body["dni"])
		assert.Equal(t, "secret", body["password"])
		_, hasEmail := body["email"]
		assert.False(t, hasEmail)

		w.Write([]byte(`{"token":"jwt-1"}`))
	})

	token, err := c.Login(context.Background(), domain.LoginRequest{DNI: " 12345678 ", Password: "secret"})
	require.NoError(t, err)
	assert.Equal(t, "jwt-1", token)
}

func TestClient_LoginValidatesBeforeCalling(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("identity service must not be called")
	})

	_, err := c.Login(context.Background(), domain.LoginRequest{Password: "x"})
	require.Error(t, err)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
	assert.Contains(t, domain.GetValidationFields(err), "dni")

	_, err = c.Login(context.Background(), domain.LoginRequest{Email: "ana@example.com"})
	assert.Contains(t, domain.GetValidationFields(err), "password")
}

func TestClient_LoginRefused(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := c.Login(context.Background(), domain.LoginRequest{Email: "ana@example.com", Password: "bad"})
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
	assert.Equal(t, ErrInvalidCredentials.Message, domain.ErrorMessage(err))
}

func TestClient_MeToleratesNumericDNI(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer jwt-1", r.Header.Get("Authorization"))
		w.Write([]byte(`{"id":7,"nombre":"Ana","apellido":"Quispe","email":"ana@example.com","dni":12345678,"distrito":"Miraflores"}`))
	})

	p, err := c.Me(context.Background(), "jwt-1")
	require.NoError(t, err)
	assert.Equal(t, "7", p.ID)
	assert.Equal(t, "12345678", p.DNI)
	assert.Equal(t, "Ana Quispe", p.FullName())
}

func TestClient_MeUserEnvelope(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"user":{"id":"u1","nombre":"Luis","dni":null}}`))
	})

	p, err := c.Me(context.Background(), "jwt-1")
	require.NoError(t, err)
	assert.Equal(t, "u1", p.ID)
	assert.Empty(t, p.DNI)
}

func TestClient_MeExpiredToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := c.Me(context.Background(), "old")
	assert.Equal(t, domain.RedirectLogin, domain.Redirect(err))

	_, err = c.Me(context.Background(), "")
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}

func TestClient_UpdateMe(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "87654321", body["dni"])
		w.Write([]byte(`{"nombre":"Ana","dni":"87654321"}`))
	})

	p, err := c.UpdateMe(context.Background(), "jwt-1", domain.ProfileUpdate{DNI: "87654321"})
	require.NoError(t, err)
	assert.Equal(t, "87654321", p.DNI)

	_, err = c.UpdateMe(context.Background(), "jwt-1", domain.ProfileUpdate{DNI: "12ab"})
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
}
