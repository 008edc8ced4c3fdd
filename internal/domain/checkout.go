package domain

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// CHECKOUT DOMAIN ERRORS
// =============================================================================

var (
	ErrNoActiveIntent    = &Error{Code: ECONFLICT, Message: "No checkout in progress"}
	ErrIntentSuperseded  = &Error{Code: ECONFLICT, Message: "Checkout was restarted; review your order again"}
	ErrMustWaitOrCorrect = &Error{Code: ECONFLICT, Message: "Some prescriptions are still being validated or need correction"}
	ErrBlockedRejected   = &Error{Code: EFORBIDDEN, Message: "All prescriptions were rejected; replace them to continue"}
	ErrMissingBuyerID    = &Error{Code: EPRECONDITION, Message: "Your profile has no DNI. Complete your profile before purchasing."}
	ErrNotAuthenticated  = &Error{Code: EUNAUTHORIZED, Message: "Your session has expired. Please log in again."}
	ErrCheckoutRunning   = &Error{Code: ECONFLICT, Message: "Your prescriptions are being checked; wait or abandon the checkout"}
	ErrPurchaseInFlight  = &Error{Code: ECONFLICT, Message: "Your purchase is being registered; wait a moment"}
)

// Decision is the Checkout Guard's verdict for a checkout intent.
type Decision string

const (
	CanProceed         Decision = "can_proceed"
	MustWaitOrCorrect  Decision = "must_wait_or_correct"
	BlockedAllRejected Decision = "blocked_all_rejected"
)

// Caveat qualifies a CanProceed decision. It travels with the registered
// purchase so the backend can reconcile it.
type Caveat string

const (
	CaveatNone              Caveat = "none"
	CaveatPendingValidation Caveat = "pending_validation"
	CaveatRejectedFollowUp  Caveat = "rejected_follow_up"
)

// PrescriptionState is the value recorded on the purchase for downstream reconciliation.
func (c Caveat) PrescriptionState() string {
	switch c {
	case CaveatPendingValidation:
		return "pendiente"
	case CaveatRejectedFollowUp:
		return "rechazada"
	default:
		return "validada"
	}
}

// RejectionPolicy decides how rejected prescriptions affect checkout.
type RejectionPolicy string

const (
	// RejectionWarn surfaces rejected drafts but lets the purchase proceed
	// flagged for manual follow-up.
	RejectionWarn RejectionPolicy = "warn"

	// RejectionBlock refuses to proceed while any draft is rejected.
	RejectionBlock RejectionPolicy = "block"
)

// ParseRejectionPolicy returns the policy named by s, defaulting to warn.
func ParseRejectionPolicy(s string) RejectionPolicy {
	if RejectionPolicy(s) == RejectionBlock {
		return RejectionBlock
	}
	return RejectionWarn
}

// AggregateDecision is the full guard output.
type AggregateDecision struct {
	Decision        Decision `json:"decision"`
	Caveat          Caveat   `json:"caveat"`
	Unresolved      []string `json:"unresolved,omitempty"`
	Rejected        []string `json:"rejected,omitempty"`
	InFlight        []string `json:"in_flight,omitempty"`
	UnassignedItems []int64  `json:"unassigned_items,omitempty"`
}

// Proceeds reports whether purchase registration may go ahead.
func (d AggregateDecision) Proceeds() bool {
	return d.Decision == CanProceed
}

// CheckoutIntent is the snapshot of cart and drafts evaluated as one purchase attempt.
type CheckoutIntent struct {
	ID        string              `json:"id"`
	BuyerID   string              `json:"buyer_id"`
	Items     []CartItem          `json:"items"`
	Drafts    []PrescriptionDraft `json:"drafts"`
	Decision  AggregateDecision   `json:"decision"`
	CreatedAt time.Time           `json:"created_at"`
}

// Total returns the intent's cart total.
func (i CheckoutIntent) Total() decimal.Decimal {
	return CartTotal(i.Items)
}

// RemoteIDs lists the submission identifiers of the intent's drafts.
func (i CheckoutIntent) RemoteIDs() []string {
	var ids []string
	for _, d := range i.Drafts {
		if d.RemoteID != "" {
			ids = append(ids, d.RemoteID)
		}
	}
	return ids
}

// PaymentMeta carries the opaque payment method recorded with the purchase.
type PaymentMeta struct {
	Method string            `json:"metodo_pago"`
	Extra  map[string]string `json:"extra,omitempty"`
}

// PurchaseReceipt is returned once the orchestrator accepts the purchase.
type PurchaseReceipt struct {
	IntentID          string          `json:"intent_id"`
	OrderID           string          `json:"order_id,omitempty"`
	Total             decimal.Decimal `json:"total"`
	Caveat            Caveat          `json:"caveat"`
	PrescriptionState string          `json:"estado_recetas"`
	Message           string          `json:"message,omitempty"`
	RegisteredAt      time.Time       `json:"registered_at"`
	Raw               json.RawMessage `json:"raw,omitempty"`
}

// OrderSummary is the minimal record kept for the confirmation view.
type OrderSummary struct {
	Total    decimal.Decimal `json:"total"`
	Time     time.Time       `json:"time"`
	IntentID string          `json:"intent_id"`
	OrderID  string          `json:"order_id,omitempty"`
	Caveat   Caveat          `json:"caveat"`
}
