package httpclient

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc, retries uint64) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c := New("test", srv.URL, Options{ReadRetries: retries, Transport: http.DefaultTransport})
	c.retryBase = time.Millisecond
	return c
}

func TestClient_DecodesJSONAndSendsBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var in map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&in))
		assert.Equal(t, "x", in["a"])

		w.Write([]byte(`{"ok":true}`))
	}, 0)

	var out struct {
		OK bool `json:"ok"`
	}
	err := c.Do(context.Background(), Request{Op: "t.post", Method: http.MethodPost, Path: "/p", Token: "tok", Auth: true, JSON: map[string]string{"a": "x"}}, &out)
	require.NoError(t, err)
	assert.True(t, out.OK)
}

func TestClient_MissingTokenNeverCallsNetwork(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
	}, 0)

	err := c.Do(context.Background(), Request{Op: "t.get", Method: http.MethodGet, Path: "/me", Auth: true}, nil)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
	assert.Equal(t, domain.RedirectLogin, domain.Redirect(err))
	assert.Zero(t, atomic.LoadInt32(&calls))
}

func TestClient_Classification(t *testing.T) {
	tests := []struct {
		status  int
		body    string
		code    string
		message string
	}{
		{http.StatusUnauthorized, `{"message":"jwt expired"}`, domain.EUNAUTHORIZED, domain.ErrNotAuthenticated.Message},
		{http.StatusForbidden, ``, domain.EUNAUTHORIZED, domain.ErrNotAuthenticated.Message},
		{http.StatusNotFound, `{"mensaje":"Receta no encontrada"}`, domain.ENOTFOUND, "Receta no encontrada"},
		{http.StatusBadRequest, `{"mensaje":"Archivo inválido"}`, domain.EREJECTED, "Archivo inválido"},
		{http.StatusUnprocessableEntity, `{"error":"DNI requerido"}`, domain.EREJECTED, "DNI requerido"},
		{http.StatusBadGateway, `oops`, domain.EUNAVAILABLE, "The test service is unavailable. Please try again."},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}, 0)

			err := c.Do(context.Background(), Request{Op: "t.post", Method: http.MethodPost, Path: "/x"}, nil)
			require.Error(t, err)
			assert.Equal(t, tt.code, domain.ErrorCode(err))
			assert.Equal(t, tt.message, domain.ErrorMessage(err))
			assert.Equal(t, tt.status, StatusCode(err))
		})
	}
}

func TestClient_RetriesReads(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.Write([]byte(`{"n":1}`))
	}, 2)

	var out struct {
		N int `json:"n"`
	}
	require.NoError(t, c.Do(context.Background(), Request{Op: "t.get", Method: http.MethodGet, Path: "/x"}, &out))
	assert.Equal(t, 1, out.N)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_RetryBudgetIsBounded(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 2)

	err := c.Do(context.Background(), Request{Op: "t.get", Method: http.MethodGet, Path: "/x"}, nil)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestClient_NoRetrySkipsReadRetries(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}, 2)

	err := c.Do(context.Background(), Request{Op: "t.get", Method: http.MethodGet, Path: "/x", NoRetry: true}, nil)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_NeverRetriesWrites(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}, 3)

	err := c.Do(context.Background(), Request{Op: "t.post", Method: http.MethodPost, Path: "/x"}, nil)
	assert.True(t, domain.Retryable(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_DoesNotRetryRejections(t *testing.T) {
	var calls int32
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}, 3)

	err := c.Do(context.Background(), Request{Op: "t.get", Method: http.MethodGet, Path: "/x"}, nil)
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
}

func TestClient_TransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New("test", url, Options{Transport: http.DefaultTransport})
	err := c.Do(context.Background(), Request{Op: "t.post", Method: http.MethodPost, Path: "/x"}, nil)
	assert.Equal(t, domain.EUNAVAILABLE, domain.ErrorCode(err))
	assert.Zero(t, StatusCode(err))
}

func TestClient_UndecodableBodyIsInternal(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>`))
	}, 0)

	var out map[string]string
	err := c.Do(context.Background(), Request{Op: "t.get", Method: http.MethodGet, Path: "/x"}, &out)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}
