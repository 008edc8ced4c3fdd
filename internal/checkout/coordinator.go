package checkout

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/dukerupert/botica/internal/cart"
	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/events"
	"github.com/dukerupert/botica/internal/prescription"
	"github.com/dukerupert/botica/internal/recetas"
	"github.com/dukerupert/botica/internal/session"
	"github.com/dukerupert/botica/internal/telemetry"
	"github.com/dukerupert/botica/internal/validation"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// maxConcurrentPolls bounds the validation polls of one attempt.
const maxConcurrentPolls = 4

// Poller polls one submission to a terminal outcome.
type Poller interface {
	Poll(ctx context.Context, t validation.Target) domain.ValidationOutcome
}

// Deps are the services shared by every session's coordinator.
type Deps struct {
	Recetas        recetas.Service
	Poller         Poller
	Registrar      *Registrar
	Publisher      events.Publisher
	Policy         domain.RejectionPolicy
	RequireConsent bool
	Metrics        *telemetry.CheckoutMetrics
	Logger         *slog.Logger
	Now            func() time.Time
}

// BatchUploadError reports the draft whose upload stopped a submission.
// Drafts uploaded before it keep their remote id.
type BatchUploadError struct {
	DraftID string
	Err     error
}

func (e *BatchUploadError) Error() string {
	return fmt.Sprintf("upload prescription %s: %v", e.DraftID, e.Err)
}

func (e *BatchUploadError) Unwrap() error {
	return e.Err
}

// DocumentUpload is a prescription file received from the buyer.
type DocumentUpload struct {
	Filename    string
	ContentType string
	Content     io.Reader
}

// DraftRequest is the buyer's input for a new prescription draft.
type DraftRequest struct {
	File        DocumentUpload
	PhysicianID string
	IssueDate   time.Time
	ItemIDs     []int64
}

// View is the checkout state shown to the buyer.
type View struct {
	IntentID string                   `json:"intent_id,omitempty"`
	Running  bool                     `json:"running"`
	Decision domain.AggregateDecision `json:"decision"`
}

// Coordinator owns one session's cart, drafts and checkout attempts.
//
// Mutations are serialised by mu. Network calls run outside it, and results
// of an attempt apply only while its generation is current.
type Coordinator struct {
	deps    Deps
	session *session.Session
	cart    *cart.Store
	book    *prescription.Book
	notify  notifier
	logger  *slog.Logger

	mu         sync.Mutex
	creds      domain.Credentials
	generation uint64
	cancel     context.CancelFunc
	running    bool
	// registering counts Purchase calls in flight for owner.
	registering int
	owner       string
	intent      *domain.CheckoutIntent
	lastActive  time.Time
}

// Load restores a coordinator from the session's persisted state.
func Load(ctx context.Context, deps Deps, sess *session.Session) (*Coordinator, error) {
	if deps.Logger == nil {
		deps.Logger = slog.Default()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	items, err := sess.LoadCart(ctx)
	if err != nil {
		return nil, err
	}
	drafts, err := sess.LoadDrafts(ctx)
	if err != nil {
		return nil, err
	}
	creds, err := sess.LoadCredentials(ctx)
	if err != nil {
		return nil, err
	}

	logger := deps.Logger.With(slog.String("session_id", sess.ID()))
	book := prescription.NewBook(drafts, sess, deps.Metrics)
	book.SetClock(deps.Now)

	return &Coordinator{
		deps:       deps,
		session:    sess,
		cart:       cart.NewStore(items, sess, deps.Metrics),
		book:       book,
		notify:     notifier{publisher: deps.Publisher, metrics: deps.Metrics, logger: logger},
		logger:     logger,
		creds:      creds,
		lastActive: deps.Now(),
	}, nil
}

// SessionID returns the owning session.
func (c *Coordinator) SessionID() string {
	return c.session.ID()
}

// LastActive returns the time of the last buyer operation.
func (c *Coordinator) LastActive() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastActive
}

// Busy reports whether a submission is running.
func (c *Coordinator) Busy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.running
}

// touchLocked records buyer activity. Callers hold c.mu.
func (c *Coordinator) touchLocked() {
	c.lastActive = c.deps.Now()
}

// releaseLocked drops the current intent and frees the cart. Callers hold c.mu.
func (c *Coordinator) releaseLocked() {
	if c.owner != "" {
		c.cart.Unlock(c.owner)
	}
	c.owner = ""
	c.intent = nil
}

// editableLocked refuses buyer edits while a purchase is being registered.
// The intent keeps the cart until Settle. Callers hold c.mu.
func (c *Coordinator) editableLocked(op string) error {
	if c.registering > 0 {
		return domain.WithOp(domain.ErrPurchaseInFlight, op)
	}
	return nil
}

// --- credentials ---

// SetCredentials stores the token and profile obtained at login.
func (c *Coordinator) SetCredentials(ctx context.Context, creds domain.Credentials) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if err := c.session.SaveCredentials(ctx, creds); err != nil {
		return err
	}
	c.creds = creds
	return nil
}

// Credentials returns the stored credentials.
func (c *Coordinator) Credentials() domain.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.creds
}

// Logout cancels any attempt and clears every piece of session state.
func (c *Coordinator) Logout(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
	c.releaseLocked()
	c.creds = domain.Credentials{}

	if err := c.cart.Clear(ctx, ""); err != nil {
		return err
	}
	if err := c.book.Reset(ctx); err != nil {
		return err
	}
	return c.session.Clear(ctx)
}

// stopLocked cancels the running attempt and invalidates its results.
func (c *Coordinator) stopLocked() {
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.generation++
	c.running = false
}

// --- cart ---

// Cart returns the cart with totals.
func (c *Coordinator) Cart() domain.CartSummary {
	return c.cart.Summary()
}

// AddItem adds qty units of product. Stock is enforced when the catalog reports it.
func (c *Coordinator) AddItem(ctx context.Context, product domain.Product, qty int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if product.Stock > 0 {
		have := 0
		for _, it := range c.cart.Snapshot() {
			if it.ID == product.ID {
				have = it.Quantity
			}
		}
		if have+qty > product.Stock {
			return domain.WithOp(domain.ErrOutOfStock, "checkout.add_item")
		}
	}

	if err := c.editableLocked("checkout.add_item"); err != nil {
		return err
	}
	if !c.running {
		c.releaseLocked()
	}
	return c.cart.Add(ctx, product.CartItem(qty), qty)
}

// RemoveOne decrements an item and releases drafts left without items.
func (c *Coordinator) RemoveOne(ctx context.Context, itemID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if err := c.editableLocked("checkout.remove_item"); err != nil {
		return err
	}
	if !c.running {
		c.releaseLocked()
	}
	if err := c.cart.RemoveOne(ctx, itemID); err != nil {
		return err
	}

	dropped, err := c.book.Prune(ctx, c.cart.Snapshot())
	if err != nil {
		return err
	}
	for _, d := range dropped {
		c.deleteDocument(ctx, d.Document)
	}
	return nil
}

// --- drafts ---

// Drafts returns the prescription drafts.
func (c *Coordinator) Drafts() []domain.PrescriptionDraft {
	return c.book.Drafts()
}

// Unassigned lists prescription items that no draft covers yet.
func (c *Coordinator) Unassigned() []domain.CartItem {
	return c.book.Unassigned(c.cart.Snapshot())
}

// BuildDraft stores the document and groups the given items under it.
func (c *Coordinator) BuildDraft(ctx context.Context, req DraftRequest) (domain.PrescriptionDraft, error) {
	var doc domain.Document
	if req.File.Content != nil {
		var err error
		doc, err = c.session.PutDocument(ctx, req.File.Filename, req.File.ContentType, req.File.Content)
		if err != nil {
			return domain.PrescriptionDraft{}, err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if err := c.editableLocked("checkout.build_draft"); err != nil {
		c.deleteDocument(ctx, doc)
		return domain.PrescriptionDraft{}, err
	}
	if c.running {
		c.deleteDocument(ctx, doc)
		return domain.PrescriptionDraft{}, domain.WithOp(domain.ErrCheckoutRunning, "checkout.build_draft")
	}
	c.releaseLocked()

	d, err := c.book.Build(ctx, c.cart.Snapshot(), prescription.BuildInput{
		Document:    doc,
		PhysicianID: req.PhysicianID,
		IssueDate:   req.IssueDate,
		ItemIDs:     req.ItemIDs,
	})
	if err != nil {
		c.deleteDocument(ctx, doc)
		return domain.PrescriptionDraft{}, err
	}
	return d, nil
}

// RemoveDraft deletes a draft and its document.
func (c *Coordinator) RemoveDraft(ctx context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if err := c.editableLocked("checkout.remove_draft"); err != nil {
		return err
	}
	if c.running {
		return domain.WithOp(domain.ErrCheckoutRunning, "checkout.remove_draft")
	}
	c.releaseLocked()

	removed, err := c.book.Remove(ctx, id)
	if err != nil {
		return err
	}
	c.deleteDocument(ctx, removed.Document)
	return nil
}

// RetryDraft resets a settled draft so a new document can be attached.
func (c *Coordinator) RetryDraft(ctx context.Context, id string) (domain.PrescriptionDraft, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if err := c.editableLocked("checkout.retry_draft"); err != nil {
		return domain.PrescriptionDraft{}, err
	}
	if c.running {
		return domain.PrescriptionDraft{}, domain.WithOp(domain.ErrCheckoutRunning, "checkout.retry_draft")
	}
	c.releaseLocked()

	prev, err := c.book.Retry(ctx, id)
	if err != nil {
		return domain.PrescriptionDraft{}, err
	}
	c.deleteDocument(ctx, prev.Document)
	return c.book.Get(id)
}

// ReplaceDocument attaches a new file to a draft not yet submitted.
func (c *Coordinator) ReplaceDocument(ctx context.Context, id string, file DocumentUpload) (domain.PrescriptionDraft, error) {
	const op = "checkout.replace_document"

	if file.Content == nil {
		return domain.PrescriptionDraft{}, domain.NewValidationError(op, "archivoPDF", "is required")
	}
	doc, err := c.session.PutDocument(ctx, file.Filename, file.ContentType, file.Content)
	if err != nil {
		return domain.PrescriptionDraft{}, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.touchLocked()

	if err := c.editableLocked(op); err != nil {
		c.deleteDocument(ctx, doc)
		return domain.PrescriptionDraft{}, err
	}
	if c.running {
		c.deleteDocument(ctx, doc)
		return domain.PrescriptionDraft{}, domain.WithOp(domain.ErrCheckoutRunning, op)
	}
	c.releaseLocked()

	old, err := c.book.ReplaceDocument(ctx, id, doc)
	if err != nil {
		c.deleteDocument(ctx, doc)
		return domain.PrescriptionDraft{}, err
	}
	c.deleteDocument(ctx, old)
	return c.book.Get(id)
}

func (c *Coordinator) deleteDocument(ctx context.Context, doc domain.Document) {
	if doc.IsZero() {
		return
	}
	if err := c.session.DeleteDocument(context.WithoutCancel(ctx), doc); err != nil {
		c.logger.Warn("failed to delete prescription document",
			slog.String("key", doc.Key),
			slog.String("error", err.Error()),
		)
	}
}

// --- checkout ---

// Submit starts a checkout attempt. Unsubmitted drafts are uploaded one at a
// time, pending ones are polled concurrently, and the guard decides once every
// poll has settled. Any previous attempt is cancelled first.
func (c *Coordinator) Submit(ctx context.Context, consent bool) (View, error) {
	const op = "checkout.submit"

	c.mu.Lock()
	c.touchLocked()

	if err := c.editableLocked(op); err != nil {
		c.mu.Unlock()
		return View{}, err
	}
	items := c.cart.Snapshot()
	if len(items) == 0 {
		c.mu.Unlock()
		return View{}, domain.WithOp(domain.ErrEmptyCart, op)
	}

	if _, err := c.book.Prune(ctx, items); err != nil {
		c.mu.Unlock()
		return View{}, err
	}
	drafts := c.book.Drafts()
	toUpload, toPoll := 0, 0
	for _, d := range drafts {
		switch {
		case needsUpload(d):
			if d.Document.IsZero() {
				c.mu.Unlock()
				return View{}, domain.NewValidationError(op, "drafts."+d.ID+".document", "is required")
			}
			toUpload++
		case needsPoll(d):
			toPoll++
		}
	}

	if toUpload > 0 && c.deps.RequireConsent && !consent {
		c.mu.Unlock()
		return View{}, domain.WithOp(domain.ErrConsentRequired, op)
	}
	creds := c.creds
	if toUpload+toPoll > 0 {
		if !creds.Authenticated() {
			c.mu.Unlock()
			return View{}, domain.WithOp(domain.ErrNotAuthenticated, op)
		}
		if creds.BuyerID() == "" {
			c.mu.Unlock()
			return View{}, domain.WithOp(domain.ErrMissingBuyerID, op)
		}
	}

	c.stopLocked()
	c.releaseLocked()
	gen := c.generation
	intentID := uuid.NewString()
	if err := c.cart.Lock(intentID); err != nil {
		c.mu.Unlock()
		return View{}, err
	}
	attemptCtx, cancel := context.WithCancel(ctx)
	c.owner = intentID
	c.cancel = cancel
	c.running = true
	c.mu.Unlock()
	defer cancel()

	logger := c.logger.With(slog.String("intent_id", intentID))
	logger.Info("checkout submitted",
		slog.Int("uploads", toUpload),
		slog.Int("polls", toPoll),
	)

	store := context.WithoutCancel(ctx)
	if err := c.uploadAll(attemptCtx, store, gen, creds, logger); err != nil {
		c.mu.Lock()
		if c.generation == gen {
			c.stopLocked()
			c.releaseLocked()
		}
		c.mu.Unlock()
		return View{}, err
	}

	c.pollAll(attemptCtx, store, gen, creds)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return View{}, domain.WithOp(domain.ErrIntentSuperseded, op)
	}
	c.running = false
	c.cancel = nil

	items = c.cart.Snapshot()
	drafts = c.book.Drafts()
	decision := Decide(items, drafts, c.deps.Policy)
	c.deps.Metrics.Decision(string(decision.Decision), string(decision.Caveat))

	c.intent = &domain.CheckoutIntent{
		ID:        intentID,
		BuyerID:   creds.BuyerID(),
		Items:     items,
		Drafts:    drafts,
		Decision:  decision,
		CreatedAt: c.deps.Now().UTC(),
	}
	if !decision.Proceeds() {
		c.cart.Unlock(intentID)
		c.owner = ""
	}

	logger.Info("checkout decided",
		slog.String("decision", string(decision.Decision)),
		slog.String("caveat", string(decision.Caveat)),
	)
	return View{IntentID: intentID, Decision: decision}, nil
}

func needsUpload(d domain.PrescriptionDraft) bool {
	return d.RemoteID == "" && d.Status == domain.DraftUnsubmitted
}

func needsPoll(d domain.PrescriptionDraft) bool {
	return d.RemoteID != "" && (d.Status == domain.DraftPendingValidation || d.Status == domain.DraftTimedOut)
}

// uploadAll uploads unsubmitted drafts in order and stops at the first
// failure. An acknowledged upload is recorded even if the attempt was
// superseded meanwhile, since the document service already holds it.
func (c *Coordinator) uploadAll(ctx, store context.Context, gen uint64, creds domain.Credentials, logger *slog.Logger) error {
	const op = "checkout.upload"

	for _, d := range c.book.Drafts() {
		if !needsUpload(d) {
			continue
		}
		if err := c.superseded(gen, op); err != nil {
			return err
		}

		if _, err := c.book.Update(store, d.ID, func(x *domain.PrescriptionDraft) bool {
			x.Status = domain.DraftUploading
			x.Message = ""
			return true
		}); err != nil {
			return &BatchUploadError{DraftID: d.ID, Err: err}
		}

		sub, err := c.upload(ctx, d, creds)
		if err != nil {
			msg := domain.ErrorMessage(err)
			if _, uerr := c.book.Update(store, d.ID, func(x *domain.PrescriptionDraft) bool {
				x.Status = domain.DraftUnsubmitted
				x.Message = msg
				return true
			}); uerr != nil {
				logger.Error("failed to reset draft after upload failure",
					slog.String("draft_id", d.ID),
					slog.String("error", uerr.Error()),
				)
				telemetry.CaptureCheckoutError(uerr, c.session.ID(), "checkout.reset_draft", map[string]interface{}{"draft_id": d.ID})
			}
			logger.Warn("prescription upload failed",
				slog.String("draft_id", d.ID),
				slog.String("code", domain.ErrorCode(err)),
				slog.String("error", err.Error()),
			)
			if ctx.Err() != nil {
				if serr := c.superseded(gen, op); serr != nil {
					return serr
				}
			}
			return &BatchUploadError{DraftID: d.ID, Err: err}
		}

		status := domain.DraftPendingValidation
		switch sub.Status {
		case domain.ValidationValidated:
			status = domain.DraftValidated
		case domain.ValidationRejected:
			status = domain.DraftRejected
		}
		updated, err := c.book.Update(store, d.ID, func(x *domain.PrescriptionDraft) bool {
			x.RemoteID = sub.ID
			x.Status = status
			x.Message = sub.Message
			return true
		})
		if err != nil {
			return &BatchUploadError{DraftID: d.ID, Err: err}
		}
		logger.Info("prescription uploaded",
			slog.String("draft_id", d.ID),
			slog.String("remote_id", sub.ID),
		)
		c.notify.emit(store, events.PrescriptionUploaded, c.session.ID(), c.ownerOf(gen), draftEvent(updated, 0))
	}
	return nil
}

func (c *Coordinator) upload(ctx context.Context, d domain.PrescriptionDraft, creds domain.Credentials) (recetas.Submission, error) {
	rc, err := c.session.OpenDocument(ctx, d.Document)
	if err != nil {
		c.deps.Metrics.Upload("failed", 0)
		return recetas.Submission{}, err
	}
	defer rc.Close()

	started := time.Now()
	sub, err := c.deps.Recetas.Upload(ctx, recetas.UploadRequest{
		Draft:     d,
		PatientID: creds.BuyerID(),
		Token:     creds.Token,
		Document:  rc,
	})
	outcome := "ok"
	if err != nil {
		outcome = "failed"
		if ue, ok := recetas.AsUploadError(err); ok && !ue.Retryable {
			outcome = "rejected"
		}
	}
	c.deps.Metrics.Upload(outcome, time.Since(started).Seconds())
	return sub, err
}

// pollAll polls every pending draft concurrently and waits for all of them.
func (c *Coordinator) pollAll(ctx, store context.Context, gen uint64, creds domain.Credentials) {
	var g errgroup.Group
	g.SetLimit(maxConcurrentPolls)

	for _, d := range c.book.Drafts() {
		if !needsPoll(d) {
			continue
		}
		d := d
		g.Go(func() error {
			out := c.deps.Poller.Poll(ctx, validation.Target{
				RemoteID:  d.RemoteID,
				PatientID: creds.BuyerID(),
				Token:     creds.Token,
				Initial:   domain.ValidationPending,
			})
			c.applyOutcome(store, gen, d.ID, out)
			return nil
		})
	}
	_ = g.Wait()
}

// applyOutcome records a poll result if its attempt is still current and the
// draft still refers to the polled submission.
func (c *Coordinator) applyOutcome(ctx context.Context, gen uint64, draftID string, out domain.ValidationOutcome) {
	if out.Status == domain.ValidationCancelled {
		return
	}

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		c.logger.Debug("dropping late validation result",
			slog.String("draft_id", draftID),
			slog.String("remote_id", out.RemoteID),
		)
		return
	}
	applied := false
	updated, err := c.book.Update(ctx, draftID, func(d *domain.PrescriptionDraft) bool {
		if d.RemoteID != out.RemoteID {
			return false
		}
		d.Status = out.DraftStatus()
		d.Message = out.Message
		applied = true
		return true
	})
	intentID := c.owner
	c.mu.Unlock()

	if err != nil {
		c.logger.Error("failed to record validation result",
			slog.String("draft_id", draftID),
			slog.String("error", err.Error()),
		)
		telemetry.CaptureCheckoutError(err, c.session.ID(), "checkout.record_validation", map[string]interface{}{"draft_id": draftID})
		return
	}
	if applied {
		c.notify.emit(ctx, events.PrescriptionSettled, c.session.ID(), intentID, draftEvent(updated, out.Attempts))
	}
}

func (c *Coordinator) superseded(gen uint64, op string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return domain.WithOp(domain.ErrIntentSuperseded, op)
	}
	return nil
}

func (c *Coordinator) ownerOf(gen uint64) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		return ""
	}
	return c.owner
}

type draftEventData struct {
	DraftID  string             `json:"draft_id"`
	RemoteID string             `json:"remote_id"`
	Status   domain.DraftStatus `json:"status"`
	Message  string             `json:"message,omitempty"`
	Attempts int                `json:"attempts,omitempty"`
}

func draftEvent(d domain.PrescriptionDraft, attempts int) draftEventData {
	return draftEventData{
		DraftID:  d.ID,
		RemoteID: d.RemoteID,
		Status:   d.Status,
		Message:  d.Message,
		Attempts: attempts,
	}
}

// Decision returns the current intent's decision, or a preview over the
// cart and drafts when no attempt has been decided.
func (c *Coordinator) Decision() View {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.intent != nil {
		return View{IntentID: c.intent.ID, Running: c.running, Decision: c.intent.Decision}
	}
	return View{
		Running:  c.running,
		Decision: Decide(c.cart.Snapshot(), c.book.Drafts(), c.deps.Policy),
	}
}

// Purchase registers the decided intent. intentID may be empty to mean the
// current intent; a stale id returns its stored receipt or ErrIntentSuperseded.
func (c *Coordinator) Purchase(ctx context.Context, intentID string, payment domain.PaymentMeta) (domain.PurchaseReceipt, error) {
	const op = "checkout.purchase"

	c.mu.Lock()
	c.touchLocked()
	running := c.running
	intent := c.intent
	creds := c.creds
	c.mu.Unlock()

	if intentID != "" && (intent == nil || intent.ID != intentID) {
		if rc, ok := c.deps.Registrar.Receipt(intentID); ok {
			return rc, nil
		}
		if intent == nil {
			return domain.PurchaseReceipt{}, domain.WithOp(domain.ErrNoActiveIntent, op)
		}
		return domain.PurchaseReceipt{}, domain.WithOp(domain.ErrIntentSuperseded, op)
	}
	if running {
		return domain.PurchaseReceipt{}, domain.WithOp(domain.ErrMustWaitOrCorrect, op)
	}
	if intent == nil {
		return domain.PurchaseReceipt{}, domain.WithOp(domain.ErrNoActiveIntent, op)
	}

	c.mu.Lock()
	if c.intent != intent || c.running {
		c.mu.Unlock()
		return domain.PurchaseReceipt{}, domain.WithOp(domain.ErrIntentSuperseded, op)
	}
	c.registering++
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.registering--
		c.mu.Unlock()
	}()

	return c.deps.Registrar.Register(ctx, *intent, creds, payment, c)
}

// SaveOrderSummary implements Ledger.
func (c *Coordinator) SaveOrderSummary(ctx context.Context, summary domain.OrderSummary) error {
	return c.session.SaveOrderSummary(ctx, summary)
}

// Settle implements Ledger: the registered intent's cart and drafts are emptied.
// Nothing is cleared unless intentID still holds the cart.
func (c *Coordinator) Settle(ctx context.Context, intentID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.owner != intentID {
		return domain.WithOp(domain.ErrIntentSuperseded, "checkout.settle")
	}
	docs := c.book.Documents()
	if err := c.cart.Clear(ctx, intentID); err != nil {
		return err
	}
	if err := c.book.Reset(ctx); err != nil {
		return err
	}
	c.cart.Unlock(intentID)
	if c.intent != nil && c.intent.ID == intentID {
		c.intent = nil
		c.owner = ""
	}
	for _, doc := range docs {
		c.deleteDocument(ctx, doc)
	}
	return nil
}

// OrderSummary returns the last confirmed order.
func (c *Coordinator) OrderSummary(ctx context.Context) (domain.OrderSummary, bool, error) {
	return c.session.LoadOrderSummary(ctx)
}

// Abandon cancels the running attempt, drops the intent and unlocks the cart.
// Poll results that arrive afterwards are discarded.
func (c *Coordinator) Abandon(ctx context.Context) {
	c.mu.Lock()
	c.touchLocked()
	intentID := c.owner
	if c.intent != nil {
		intentID = c.intent.ID
	}
	if c.registering > 0 {
		c.mu.Unlock()
		c.logger.Info("abandon ignored, purchase in flight", slog.String("intent_id", intentID))
		return
	}
	active := c.running || c.intent != nil
	c.stopLocked()
	c.releaseLocked()
	c.mu.Unlock()

	if active {
		c.logger.Info("checkout abandoned", slog.String("intent_id", intentID))
		c.notify.emit(ctx, events.CheckoutAbandoned, c.session.ID(), intentID, map[string]string{"intent_id": intentID})
	}
}
