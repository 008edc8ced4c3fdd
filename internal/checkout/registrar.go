package checkout

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/events"
	"github.com/dukerupert/botica/internal/orchestrator"
	"github.com/dukerupert/botica/internal/telemetry"
	"golang.org/x/sync/singleflight"
)

const maxStoredReceipts = 1024

// PurchaseService registers purchases with the orchestrator.
type PurchaseService interface {
	RegisterPurchase(ctx context.Context, req orchestrator.PurchaseRequest) (orchestrator.Registration, error)
}

// Ledger is the local buyer state a registration settles.
type Ledger interface {
	SessionID() string
	SaveOrderSummary(ctx context.Context, summary domain.OrderSummary) error
	// Settle empties the cart and drafts of the registered intent.
	Settle(ctx context.Context, intentID string) error
}

// RegistrationError reports a failed purchase registration. Its domain code
// (unauthorized, precondition_failed, unavailable, invalid, rejected) tells
// the caller where to send the buyer.
type RegistrationError struct {
	IntentID string
	Err      error
}

func (e *RegistrationError) Error() string {
	return fmt.Sprintf("register intent %s: %v", e.IntentID, e.Err)
}

func (e *RegistrationError) Unwrap() error {
	return e.Err
}

// Registrar submits checkout intents to the orchestrator, at most once per intent.
type Registrar struct {
	purchases     PurchaseService
	paymentMethod string
	notify        notifier
	metrics       *telemetry.CheckoutMetrics
	logger        *slog.Logger
	now           func() time.Time

	group singleflight.Group

	mu       sync.Mutex
	receipts map[string]domain.PurchaseReceipt
	order    []string
}

// NewRegistrar creates a registrar.
func NewRegistrar(purchases PurchaseService, paymentMethod string, publisher events.Publisher, metrics *telemetry.CheckoutMetrics, logger *slog.Logger) *Registrar {
	if logger == nil {
		logger = slog.Default()
	}
	if paymentMethod == "" {
		paymentMethod = "tarjeta"
	}
	logger = logger.With(slog.String("component", "registrar"))
	return &Registrar{
		purchases:     purchases,
		paymentMethod: paymentMethod,
		notify:        notifier{publisher: publisher, metrics: metrics, logger: logger},
		metrics:       metrics,
		logger:        logger,
		now:           time.Now,
		receipts:      make(map[string]domain.PurchaseReceipt),
	}
}

// Receipt returns the stored receipt of a registered intent.
func (r *Registrar) Receipt(intentID string) (domain.PurchaseReceipt, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rc, ok := r.receipts[intentID]
	return rc, ok
}

// Register submits intent. Concurrent calls for the same intent share one
// orchestrator call; later calls return the stored receipt.
func (r *Registrar) Register(ctx context.Context, intent domain.CheckoutIntent, creds domain.Credentials, payment domain.PaymentMeta, ledger Ledger) (domain.PurchaseReceipt, error) {
	if rc, ok := r.Receipt(intent.ID); ok {
		return rc, nil
	}

	// The shared call outlives any single caller's request.
	shared := context.WithoutCancel(ctx)
	v, err, joined := r.group.Do(intent.ID, func() (interface{}, error) {
		if rc, ok := r.Receipt(intent.ID); ok {
			return rc, nil
		}
		return r.register(shared, intent, creds, payment, ledger)
	})
	if joined {
		r.logger.Debug("registration shared", slog.String("intent_id", intent.ID))
	}
	if err != nil {
		return domain.PurchaseReceipt{}, err
	}
	return v.(domain.PurchaseReceipt), nil
}

func (r *Registrar) register(ctx context.Context, intent domain.CheckoutIntent, creds domain.Credentials, payment domain.PaymentMeta, ledger Ledger) (domain.PurchaseReceipt, error) {
	const op = "checkout.register"
	logger := r.logger.With(slog.String("intent_id", intent.ID))
	caveat := intent.Decision.Caveat

	fail := func(err error) (domain.PurchaseReceipt, error) {
		r.metrics.Purchase(err, string(caveat), 0)
		return domain.PurchaseReceipt{}, &RegistrationError{IntentID: intent.ID, Err: err}
	}

	if len(intent.Items) == 0 {
		return fail(domain.WithOp(domain.ErrEmptyCart, op))
	}
	if !creds.Authenticated() {
		return fail(domain.WithOp(domain.ErrNotAuthenticated, op))
	}
	buyer := creds.BuyerID()
	if buyer == "" {
		return fail(domain.WithOp(domain.ErrMissingBuyerID, op))
	}
	if err := decisionError(intent.Decision, op); err != nil {
		return fail(err)
	}

	method := payment.Method
	if method == "" {
		method = r.paymentMethod
	}

	reg, err := r.purchases.RegisterPurchase(ctx, orchestrator.PurchaseRequest{
		IntentID:          intent.ID,
		Token:             creds.Token,
		BuyerID:           buyer,
		Items:             intent.Items,
		PaymentMethod:     method,
		PrescriptionState: caveat.PrescriptionState(),
		RemoteIDs:         intent.RemoteIDs(),
	})
	if err != nil {
		logger.Warn("purchase registration failed",
			slog.String("code", domain.ErrorCode(err)),
			slog.String("error", err.Error()),
		)
		return fail(err)
	}

	receipt := domain.PurchaseReceipt{
		IntentID:          intent.ID,
		OrderID:           reg.OrderID,
		Total:             intent.Total(),
		Caveat:            caveat,
		PrescriptionState: caveat.PrescriptionState(),
		Message:           reg.Message,
		RegisteredAt:      r.now().UTC(),
		Raw:               reg.Raw,
	}
	r.store(receipt)

	// The purchase exists remotely from here on; local failures are logged, not returned.
	if ledger != nil {
		summary := domain.OrderSummary{
			Total:    receipt.Total,
			Time:     receipt.RegisteredAt,
			IntentID: receipt.IntentID,
			OrderID:  receipt.OrderID,
			Caveat:   receipt.Caveat,
		}
		if err := ledger.SaveOrderSummary(ctx, summary); err != nil {
			logger.Error("failed to save order summary", slog.String("error", err.Error()))
			telemetry.CaptureCheckoutError(err, ledger.SessionID(), "checkout.save_summary", map[string]interface{}{"order_id": receipt.OrderID})
		}
		if err := ledger.Settle(ctx, intent.ID); err != nil {
			logger.Error("failed to clear checkout state", slog.String("error", err.Error()))
			telemetry.CaptureCheckoutError(err, ledger.SessionID(), "checkout.settle", map[string]interface{}{"intent_id": intent.ID})
		}
	}

	r.metrics.Purchase(nil, string(caveat), receipt.Total.InexactFloat64())
	sessionID := ""
	if ledger != nil {
		sessionID = ledger.SessionID()
	}
	r.notify.emit(ctx, events.PurchaseRegistered, sessionID, intent.ID, receipt)

	logger.Info("purchase registered",
		slog.String("order_id", receipt.OrderID),
		slog.String("caveat", string(caveat)),
		slog.String("total", receipt.Total.StringFixed(2)),
	)
	return receipt, nil
}

func (r *Registrar) store(rc domain.PurchaseReceipt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.receipts[rc.IntentID]; ok {
		return
	}
	r.receipts[rc.IntentID] = rc
	r.order = append(r.order, rc.IntentID)
	for len(r.order) > maxStoredReceipts {
		delete(r.receipts, r.order[0])
		r.order = r.order[1:]
	}
}
