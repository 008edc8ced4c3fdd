// Package orchestrator is the client for the purchase-orchestration service:
// prescription validation requests, purchase registration and history.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/httpclient"
)

// IdempotencyHeader carries the checkout intent id on purchase registration.
const IdempotencyHeader = "Idempotency-Key"

// Service is the orchestrator surface the checkout uses.
type Service interface {
	RequestValidation(ctx context.Context, token, remoteID, patientID string) (domain.ValidationStatus, error)
	RegisterPurchase(ctx context.Context, req PurchaseRequest) (Registration, error)
	History(ctx context.Context, token string) ([]domain.Purchase, error)
}

// PurchaseRequest is everything needed to register one checkout intent.
type PurchaseRequest struct {
	IntentID          string
	Token             string
	BuyerID           string
	Items             []domain.CartItem
	PaymentMethod     string
	PrescriptionState string
	RemoteIDs         []string
}

// Registration is the orchestrator's acknowledgement of a purchase.
type Registration struct {
	OrderID string
	Message string
	Raw     json.RawMessage
}

// Client implements Service over HTTP.
type Client struct {
	http *httpclient.Client
}

// NewClient creates an orchestrator client.
func NewClient(c *httpclient.Client) *Client {
	return &Client{http: c}
}

type validateRequest struct {
	Estado           string            `json:"estado"`
	DatosAdicionales map[string]string `json:"datos_adicionales"`
}

type validateResponse struct {
	Receta *struct {
		EstadoValidacion string `json:"estadoValidacion"`
	} `json:"receta"`
}

// RequestValidation asks the orchestrator to validate remoteID; the verdict is
// only trusted when the response carries the document's estadoValidacion.
func (c *Client) RequestValidation(ctx context.Context, token, remoteID, patientID string) (domain.ValidationStatus, error) {
	body := validateRequest{Estado: "validada", DatosAdicionales: map[string]string{}}
	if patientID != "" {
		body.DatosAdicionales["dni"] = patientID
	}

	var resp validateResponse
	err := c.http.Do(ctx, httpclient.Request{
		Op:     "orchestrator.request_validation",
		Method: http.MethodPut,
		Path:   "/orchestrator/recetas/validar/" + url.PathEscape(remoteID),
		Token:  token,
		Auth:   true,
		JSON:   body,
	}, &resp)
	if err != nil {
		return "", err
	}
	if resp.Receta != nil {
		return domain.ParseRemoteStatus(resp.Receta.EstadoValidacion), nil
	}
	return domain.ValidationPending, nil
}

type purchaseMeta struct {
	DNI           string   `json:"dni"`
	PaymentMethod string   `json:"metodo_pago"`
	Prescriptions string   `json:"estado_recetas"`
	RemoteIDs     []string `json:"recetas"`
	IntentID      string   `json:"intent_id"`
}

type purchaseBody struct {
	Products   []int64      `json:"productos"`
	Quantities []int        `json:"cantidades"`
	Meta       purchaseMeta `json:"datos_adicionales"`
}

// RegisterPurchase posts the purchase. The intent id is sent as the
// idempotency key so a replayed request is recognised downstream.
func (c *Client) RegisterPurchase(ctx context.Context, req PurchaseRequest) (Registration, error) {
	body := purchaseBody{
		Products:   make([]int64, len(req.Items)),
		Quantities: make([]int, len(req.Items)),
		Meta: purchaseMeta{
			DNI:           req.BuyerID,
			PaymentMethod: req.PaymentMethod,
			Prescriptions: req.PrescriptionState,
			RemoteIDs:     req.RemoteIDs,
			IntentID:      req.IntentID,
		},
	}
	if body.Meta.RemoteIDs == nil {
		body.Meta.RemoteIDs = []string{}
	}
	for i, it := range req.Items {
		body.Products[i] = it.ID
		body.Quantities[i] = it.Quantity
	}

	var raw json.RawMessage
	err := c.http.Do(ctx, httpclient.Request{
		Op:     "orchestrator.register_purchase",
		Method: http.MethodPost,
		Path:   "/orchestrator/compras",
		Token:  req.Token,
		Auth:   true,
		JSON:   body,
		Header: http.Header{IdempotencyHeader: []string{req.IntentID}},
	}, &raw)
	if err != nil {
		return Registration{}, err
	}

	reg := Registration{Raw: raw}
	var ack struct {
		ID       domain.FlexString `json:"id"`
		CompraID domain.FlexString `json:"compra_id"`
		Mensaje  string            `json:"mensaje"`
		Message  string            `json:"message"`
		Compra   *struct {
			ID domain.FlexString `json:"id"`
		} `json:"compra"`
	}
	if len(raw) > 0 && json.Unmarshal(raw, &ack) == nil {
		switch {
		case ack.Compra != nil && ack.Compra.ID != "":
			reg.OrderID = ack.Compra.ID.String()
		case ack.CompraID != "":
			reg.OrderID = ack.CompraID.String()
		default:
			reg.OrderID = ack.ID.String()
		}
		reg.Message = ack.Mensaje
		if reg.Message == "" {
			reg.Message = ack.Message
		}
	}
	return reg, nil
}

// History returns the buyer's purchases. The orchestrator has answered with a
// bare array, {"compras": [...]} and {"results": [...]}; anything else is empty.
func (c *Client) History(ctx context.Context, token string) ([]domain.Purchase, error) {
	const op = "orchestrator.history"

	var raw json.RawMessage
	err := c.http.Do(ctx, httpclient.Request{
		Op:     op,
		Method: http.MethodGet,
		Path:   "/orchestrator/compras/me",
		Token:  token,
		Auth:   true,
	}, &raw)
	if err != nil {
		return nil, err
	}

	purchases, err := decodeHistory(raw)
	if err != nil {
		return nil, domain.Internal(err, op, "unexpected purchase history format")
	}
	return purchases, nil
}

func decodeHistory(raw json.RawMessage) ([]domain.Purchase, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return []domain.Purchase{}, nil
	}

	if raw[0] == '[' {
		var list []domain.Purchase
		if err := json.Unmarshal(raw, &list); err != nil {
			return nil, err
		}
		return list, nil
	}

	var wrapped struct {
		Compras []domain.Purchase `json:"compras"`
		Results []domain.Purchase `json:"results"`
	}
	if err := json.Unmarshal(raw, &wrapped); err != nil {
		return nil, err
	}
	switch {
	case wrapped.Compras != nil:
		return wrapped.Compras, nil
	case wrapped.Results != nil:
		return wrapped.Results, nil
	default:
		return []domain.Purchase{}, nil
	}
}
