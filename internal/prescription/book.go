// Package prescription groups prescription-requiring cart items into drafts,
// each carrying one document, the issuing physician's CMP code and the issue date.
//
// Book enforces that an item belongs to at most one draft and that a draft
// already known to the document service keeps its document until retried.
package prescription

import (
	"context"
	"sync"
	"time"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/telemetry"
	"github.com/dukerupert/botica/internal/validate"
	"github.com/google/uuid"
)

// Persister saves the full draft set after every mutation.
type Persister interface {
	SaveDrafts(ctx context.Context, drafts []domain.PrescriptionDraft) error
}

// BuildInput is what the buyer supplies for one prescription.
type BuildInput struct {
	Document    domain.Document `json:"document"`
	PhysicianID string          `json:"medico_cmp" validate:"required"`
	IssueDate   time.Time       `json:"fecha_emision" validate:"required"`
	ItemIDs     []int64         `json:"items" validate:"required,min=1,unique"`
}

// Book owns the session's drafts.
type Book struct {
	mu      sync.Mutex
	drafts  []domain.PrescriptionDraft
	persist Persister
	now     func() time.Time
	metrics *telemetry.CheckoutMetrics
}

// NewBook restores drafts. Drafts persisted mid-upload (no remote id yet)
// fall back to unsubmitted, since the upload cannot have been acknowledged.
func NewBook(drafts []domain.PrescriptionDraft, persist Persister, metrics *telemetry.CheckoutMetrics) *Book {
	b := &Book{persist: persist, now: time.Now, metrics: metrics}
	for _, d := range drafts {
		d = d.Clone()
		if d.Status == domain.DraftUploading || (d.Status == domain.DraftPendingValidation && d.RemoteID == "") {
			d.Status = domain.DraftUnsubmitted
		}
		b.drafts = append(b.drafts, d)
	}
	return b
}

// SetClock overrides the time source.
func (b *Book) SetClock(now func() time.Time) {
	b.mu.Lock()
	b.now = now
	b.mu.Unlock()
}

// Build creates an unsubmitted draft for the given prescription items of cart.
func (b *Book) Build(ctx context.Context, cartItems []domain.CartItem, in BuildInput) (domain.PrescriptionDraft, error) {
	const op = "prescription.build"

	b.mu.Lock()
	defer b.mu.Unlock()

	if err := b.checkInput(op, in); err != nil {
		b.metrics.DraftBuilt(domain.ErrorCode(err))
		return domain.PrescriptionDraft{}, err
	}

	byID := make(map[int64]domain.CartItem, len(cartItems))
	for _, it := range cartItems {
		byID[it.ID] = it
	}

	assigned := b.assignedLocked()
	items := make([]domain.DraftItem, 0, len(in.ItemIDs))
	for _, id := range in.ItemIDs {
		it, ok := byID[id]
		if !ok || !it.RequiresPrescription {
			b.metrics.DraftBuilt(domain.EINVALID)
			return domain.PrescriptionDraft{}, domain.WithOp(domain.ErrItemNotPrescription, op)
		}
		if _, taken := assigned[id]; taken {
			b.metrics.DraftBuilt(domain.ECONFLICT)
			return domain.PrescriptionDraft{}, domain.WithOp(domain.ErrItemAlreadyAssigned, op)
		}
		items = append(items, domain.DraftItem{ItemID: it.ID, Name: it.Name, Quantity: it.Quantity})
	}

	draft := domain.PrescriptionDraft{
		ID:          uuid.NewString(),
		Document:    in.Document,
		PhysicianID: in.PhysicianID,
		IssueDate:   in.IssueDate,
		Items:       items,
		Status:      domain.DraftUnsubmitted,
		UpdatedAt:   b.now(),
	}

	next := b.cloneLocked()
	next = append(next, draft)
	if err := b.commitLocked(ctx, next); err != nil {
		return domain.PrescriptionDraft{}, err
	}
	b.metrics.DraftBuilt("")
	return draft.Clone(), nil
}

func (b *Book) checkInput(op string, in BuildInput) error {
	err := validate.Struct(op, in)
	if err != nil && !domain.IsValidationError(err) {
		return err
	}
	if in.Document.IsZero() {
		err = domain.AddFieldError(err, "document", "is required")
	}
	if !in.IssueDate.IsZero() && in.IssueDate.After(b.now()) {
		err = domain.AddFieldError(err, "fecha_emision", "must not be in the future")
	}
	if err == nil {
		return nil
	}
	if ve, ok := err.(*domain.ValidationError); ok {
		ve.Op = op
	}
	return domain.WrapError(err, domain.EINVALID, op, "Prescription is incomplete")
}

// Drafts returns copies of all drafts in creation order.
func (b *Book) Drafts() []domain.PrescriptionDraft {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.cloneLocked()
}

// Get returns a copy of one draft.
func (b *Book) Get(id string) (domain.PrescriptionDraft, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.indexLocked(id)
	if idx < 0 {
		return domain.PrescriptionDraft{}, domain.WithOp(domain.ErrDraftNotFound, "prescription.get")
	}
	return b.drafts[idx].Clone(), nil
}

// AllItemsAssigned reports whether every prescription line of cart has a draft.
func (b *Book) AllItemsAssigned(cartItems []domain.CartItem) bool {
	return len(b.Unassigned(cartItems)) == 0
}

// Unassigned lists prescription lines of cart that no draft covers.
func (b *Book) Unassigned(cartItems []domain.CartItem) []domain.CartItem {
	b.mu.Lock()
	assigned := b.assignedLocked()
	b.mu.Unlock()

	var out []domain.CartItem
	for _, it := range domain.PrescriptionItems(cartItems) {
		if _, ok := assigned[it.ID]; !ok {
			out = append(out, it)
		}
	}
	return out
}

// Remove deletes a draft and releases its items. In-flight drafts cannot be removed.
// The removed draft is returned so its document can be deleted.
func (b *Book) Remove(ctx context.Context, id string) (domain.PrescriptionDraft, error) {
	const op = "prescription.remove"

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.indexLocked(id)
	if idx < 0 {
		return domain.PrescriptionDraft{}, domain.WithOp(domain.ErrDraftNotFound, op)
	}
	removed := b.drafts[idx].Clone()
	if removed.Status.InFlight() {
		return domain.PrescriptionDraft{}, domain.WithOp(domain.ErrDraftInFlight, op)
	}

	next := b.cloneLocked()
	next = append(next[:idx], next[idx+1:]...)
	if err := b.commitLocked(ctx, next); err != nil {
		return domain.PrescriptionDraft{}, err
	}
	return removed, nil
}

// Retry resets a rejected, failed or timed-out draft to unsubmitted, clearing
// its remote id and document. The previous draft is returned so the old
// document can be deleted.
func (b *Book) Retry(ctx context.Context, id string) (domain.PrescriptionDraft, error) {
	const op = "prescription.retry"

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.indexLocked(id)
	if idx < 0 {
		return domain.PrescriptionDraft{}, domain.WithOp(domain.ErrDraftNotFound, op)
	}
	prev := b.drafts[idx].Clone()
	if !prev.Status.Retryable() {
		return domain.PrescriptionDraft{}, domain.WithOp(domain.ErrDraftNotRetryable, op)
	}

	next := b.cloneLocked()
	next[idx].RemoteID = ""
	next[idx].Document = domain.Document{}
	next[idx].Status = domain.DraftUnsubmitted
	next[idx].Message = ""
	next[idx].UpdatedAt = b.now()
	if err := b.commitLocked(ctx, next); err != nil {
		return domain.PrescriptionDraft{}, err
	}
	return prev, nil
}

// ReplaceDocument attaches doc to a draft the document service has not seen yet.
// The previous document is returned for cleanup.
func (b *Book) ReplaceDocument(ctx context.Context, id string, doc domain.Document) (domain.Document, error) {
	const op = "prescription.replace_document"

	if doc.IsZero() {
		return domain.Document{}, domain.NewValidationError(op, "document", "is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.indexLocked(id)
	if idx < 0 {
		return domain.Document{}, domain.WithOp(domain.ErrDraftNotFound, op)
	}
	d := b.drafts[idx]
	if d.RemoteID != "" {
		return domain.Document{}, domain.WithOp(domain.ErrDraftAlreadySubmitted, op)
	}
	if d.Status.InFlight() {
		return domain.Document{}, domain.WithOp(domain.ErrDraftInFlight, op)
	}

	old := d.Document
	next := b.cloneLocked()
	next[idx].Document = doc
	next[idx].Message = ""
	next[idx].UpdatedAt = b.now()
	if err := b.commitLocked(ctx, next); err != nil {
		return domain.Document{}, err
	}
	return old, nil
}

// Prune aligns drafts with cart: items no longer in the cart (or no longer
// requiring a prescription) are released, quantities are refreshed, and
// drafts left with no items are dropped and returned.
func (b *Book) Prune(ctx context.Context, cartItems []domain.CartItem) ([]domain.PrescriptionDraft, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	byID := make(map[int64]domain.CartItem, len(cartItems))
	for _, it := range cartItems {
		if it.RequiresPrescription {
			byID[it.ID] = it
		}
	}

	changed := false
	var dropped []domain.PrescriptionDraft
	next := make([]domain.PrescriptionDraft, 0, len(b.drafts))
	for _, d := range b.cloneLocked() {
		kept := d.Items[:0]
		for _, item := range d.Items {
			it, ok := byID[item.ItemID]
			if !ok {
				changed = true
				continue
			}
			if it.Quantity != item.Quantity {
				item.Quantity = it.Quantity
				changed = true
			}
			kept = append(kept, item)
		}
		d.Items = kept
		if len(d.Items) == 0 && !d.Status.InFlight() {
			dropped = append(dropped, d)
			continue
		}
		next = append(next, d)
	}

	if !changed {
		return nil, nil
	}
	if err := b.commitLocked(ctx, next); err != nil {
		return nil, err
	}
	return dropped, nil
}

// Update applies fn to one draft and persists the result. It is the only way
// draft status changes; the checkout coordinator is its sole caller.
func (b *Book) Update(ctx context.Context, id string, fn func(d *domain.PrescriptionDraft) bool) (domain.PrescriptionDraft, error) {
	const op = "prescription.update"

	b.mu.Lock()
	defer b.mu.Unlock()

	idx := b.indexLocked(id)
	if idx < 0 {
		return domain.PrescriptionDraft{}, domain.WithOp(domain.ErrDraftNotFound, op)
	}

	next := b.cloneLocked()
	if !fn(&next[idx]) {
		return b.drafts[idx].Clone(), nil
	}
	next[idx].UpdatedAt = b.now()
	if err := b.commitLocked(ctx, next); err != nil {
		return domain.PrescriptionDraft{}, err
	}
	return next[idx].Clone(), nil
}

// Reset drops every draft, as after a successful purchase.
func (b *Book) Reset(ctx context.Context) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.commitLocked(ctx, []domain.PrescriptionDraft{})
}

// Documents lists the attached documents, for cleanup.
func (b *Book) Documents() []domain.Document {
	b.mu.Lock()
	defer b.mu.Unlock()

	var docs []domain.Document
	for _, d := range b.drafts {
		if !d.Document.IsZero() {
			docs = append(docs, d.Document)
		}
	}
	return docs
}

func (b *Book) assignedLocked() map[int64]string {
	assigned := make(map[int64]string)
	for _, d := range b.drafts {
		for _, it := range d.Items {
			assigned[it.ItemID] = d.ID
		}
	}
	return assigned
}

func (b *Book) indexLocked(id string) int {
	for i := range b.drafts {
		if b.drafts[i].ID == id {
			return i
		}
	}
	return -1
}

func (b *Book) cloneLocked() []domain.PrescriptionDraft {
	out := make([]domain.PrescriptionDraft, len(b.drafts))
	for i, d := range b.drafts {
		out[i] = d.Clone()
	}
	return out
}

func (b *Book) commitLocked(ctx context.Context, next []domain.PrescriptionDraft) error {
	if b.persist != nil {
		if err := b.persist.SaveDrafts(ctx, next); err != nil {
			return err
		}
	}
	b.drafts = next
	return nil
}
