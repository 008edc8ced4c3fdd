package routes

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/dukerupert/botica/internal/catalog"
	"github.com/dukerupert/botica/internal/checkout"
	"github.com/dukerupert/botica/internal/cookie"
	"github.com/dukerupert/botica/internal/handler/api"
	"github.com/dukerupert/botica/internal/identity"
	"github.com/dukerupert/botica/internal/orchestrator"
	"github.com/dukerupert/botica/internal/router"
	"github.com/dukerupert/botica/internal/session"
	"github.com/dukerupert/botica/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// tag records which route-level middleware ran.
func tag(name string) router.Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Add("X-Test-Middleware", name)
			next.ServeHTTP(w, r)
		})
	}
}

func newTestRouter(t *testing.T) *router.Router {
	t.Helper()

	registry := checkout.NewRegistry(checkout.Deps{}, session.NewRepository(storage.NewMemoryStorage(), nil))
	cookies := cookie.NewConfig("", false, 3600)
	ids := &identity.MockService{}

	r := router.New()
	RegisterOpsRoutes(r, OpsDeps{
		Health: func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		},
		Metrics: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Write([]byte("metrics"))
		}),
	})
	RegisterAPIRoutes(r, APIDeps{
		AuthHandler:         api.NewAuthHandler(ids, registry, cookies),
		ProfileHandler:      api.NewProfileHandler(ids, registry),
		CartHandler:         api.NewCartHandler(catalog.NewMockService(), registry),
		PrescriptionHandler: api.NewPrescriptionHandler(registry),
		CheckoutHandler:     api.NewCheckoutHandler(registry),
		OrdersHandler:       api.NewOrdersHandler(&orchestrator.MockService{}, registry),
		LoginLimiter:        tag("login"),
		BodyLimit:           tag("body"),
		DocumentLimit:       tag("document"),
	})
	return r
}

func TestRegisterAPIRoutes(t *testing.T) {
	r := newTestRouter(t)

	tests := []struct {
		method string
		path   string
		want   []string
	}{
		{http.MethodPost, "/api/auth/login", []string{"body", "login"}},
		{http.MethodPost, "/api/auth/logout", []string{"body"}},
		{http.MethodGet, "/api/profile", []string{"body"}},
		{http.MethodPut, "/api/profile", []string{"body"}},
		{http.MethodGet, "/api/cart", []string{"body"}},
		{http.MethodPost, "/api/cart/items", []string{"body"}},
		{http.MethodDelete, "/api/cart/items/7", []string{"body"}},
		{http.MethodGet, "/api/prescriptions", []string{"body"}},
		{http.MethodPost, "/api/prescriptions", []string{"document"}},
		{http.MethodPut, "/api/prescriptions/d1/document", []string{"document"}},
		{http.MethodPost, "/api/prescriptions/d1/retry", []string{"body"}},
		{http.MethodDelete, "/api/prescriptions/d1", []string{"body"}},
		{http.MethodPost, "/api/checkout/submit", []string{"body"}},
		{http.MethodGet, "/api/checkout/decision", []string{"body"}},
		{http.MethodPost, "/api/checkout/purchase", []string{"body"}},
		{http.MethodPost, "/api/checkout/abandon", []string{"body"}},
		{http.MethodGet, "/api/orders/summary", []string{"body"}},
		{http.MethodGet, "/api/orders", []string{"body"}},
	}

	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, strings.NewReader(""))
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, req)

			assert.NotEqual(t, http.StatusNotFound, rec.Code)
			assert.NotEqual(t, http.StatusMethodNotAllowed, rec.Code)
			assert.Equal(t, tt.want, rec.Header().Values("X-Test-Middleware"))
		})
	}
}

func TestRegisterAPIRoutes_Table(t *testing.T) {
	r := newTestRouter(t)

	routes := r.Routes()
	assert.Len(t, routes, 20)
	assert.Contains(t, routes, router.Route{Method: http.MethodPost, Pattern: "/api/prescriptions"})
	assert.Contains(t, routes, router.Route{Method: http.MethodGet, Pattern: "/api/orders"})
	assert.Contains(t, routes, router.Route{Method: http.MethodGet, Pattern: "/metrics"})
}

func TestRegisterAPIRoutes_Unmatched(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/unknown", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodPatch, "/api/cart", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRegisterOpsRoutes(t *testing.T) {
	r := newTestRouter(t)

	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Header().Values("X-Test-Middleware"))

	rec = httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "metrics", rec.Body.String())
}
