package orchestrator

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/httpclient"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return NewClient(httpclient.New("orchestrator", srv.URL, httpclient.Options{Transport: http.DefaultTransport}))
}

func TestClient_RequestValidation(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/orchestrator/recetas/validar/abc123", r.URL.Path)
		assert.Equal(t, "Bearer jwt", r.Header.Get("Authorization"))

		var body validateRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "validada", body.Estado)
		assert.Equal(t, "12345678", body.DatosAdicionales["dni"])

		w.Write([]byte(`{"ok":true,"estado":"validada"}`))
	})

	st, err := c.RequestValidation(context.Background(), "jwt", "abc123", "12345678")
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationPending, st, "the echoed request body is not a verdict")
}

func TestClient_RequestValidationReportsVerdict(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"receta":{"_id":"abc123","estadoValidacion":"validada"}}`))
	})

	st, err := c.RequestValidation(context.Background(), "jwt", "abc123", "")
	require.NoError(t, err)
	assert.Equal(t, domain.ValidationValidated, st)
}

func TestClient_RequestValidationRequiresToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("orchestrator must not be called")
	})

	_, err := c.RequestValidation(context.Background(), "", "abc123", "12345678")
	assert.Equal(t, domain.EUNAUTHORIZED, domain.ErrorCode(err))
}

func TestClient_RegisterPurchase(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/orchestrator/compras", r.URL.Path)
		assert.Equal(t, "intent-1", r.Header.Get(IdempotencyHeader))

		var body map[string]json.RawMessage
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.JSONEq(t, `[1,2]`, string(body["productos"]))
		assert.JSONEq(t, `[2,1]`, string(body["cantidades"]))
		assert.JSONEq(t, `{"dni":"12345678","metodo_pago":"tarjeta","estado_recetas":"pendiente","recetas":["abc123"],"intent_id":"intent-1"}`, string(body["datos_adicionales"]))

		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"mensaje":"Compra registrada","compra":{"id":42}}`))
	})

	reg, err := c.RegisterPurchase(context.Background(), PurchaseRequest{
		IntentID: "intent-1",
		Token:    "jwt",
		BuyerID:  "12345678",
		Items: []domain.CartItem{
			{ID: 1, Quantity: 2, UnitPrice: decimal.NewFromInt(10)},
			{ID: 2, Quantity: 1, UnitPrice: decimal.NewFromInt(25), RequiresPrescription: true},
		},
		PaymentMethod:     "tarjeta",
		PrescriptionState: "pendiente",
		RemoteIDs:         []string{"abc123"},
	})
	require.NoError(t, err)
	assert.Equal(t, "42", reg.OrderID)
	assert.Equal(t, "Compra registrada", reg.Message)
	assert.NotEmpty(t, reg.Raw)
}

func TestClient_RegisterPurchaseErrors(t *testing.T) {
	tests := []struct {
		status int
		code   string
	}{
		{http.StatusUnauthorized, domain.EUNAUTHORIZED},
		{http.StatusBadRequest, domain.EREJECTED},
		{http.StatusServiceUnavailable, domain.EUNAVAILABLE},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})

			_, err := c.RegisterPurchase(context.Background(), PurchaseRequest{IntentID: "i", Token: "jwt"})
			assert.Equal(t, tt.code, domain.ErrorCode(err))
		})
	}
}

func TestClient_HistoryShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want int
	}{
		{"array", `[{"id":1,"fecha":"2026-03-01","total":20,"productos":[{"nombre":"Paracetamol","cantidad":2,"precio_unitario":10}]}]`, 1},
		{"compras", `{"compras":[{"id":"a","productos":[]},{"id":"b","productos":[]}]}`, 2},
		{"results", `{"results":[{"id":3,"productos":[]}]}`, 1},
		{"unknown", `{"data":[]}`, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				assert.Equal(t, "/orchestrator/compras/me", r.URL.Path)
				w.Write([]byte(tt.body))
			})

			got, err := c.History(context.Background(), "jwt")
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
			assert.NotNil(t, got)
		})
	}
}

func TestClient_HistoryArrayFields(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"id":1,"total":20.5,"productos":[{"id":"7","nombre":"Paracetamol","cantidad":2,"precio_unitario":10.25}]}]`))
	})

	got, err := c.History(context.Background(), "jwt")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "1", got[0].ID.String())
	assert.Equal(t, "20.50", got[0].Total.StringFixed(2))
	assert.Equal(t, "7", got[0].Products[0].ID.String())
}
