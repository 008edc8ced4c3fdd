package prescription

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePersister struct {
	saves int
	err   error
}

func (f *fakePersister) SaveDrafts(ctx context.Context, drafts []domain.PrescriptionDraft) error {
	if f.err != nil {
		return f.err
	}
	f.saves++
	return nil
}

var now = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func testCart() []domain.CartItem {
	return []domain.CartItem{
		{ID: 1, Name: "Paracetamol", UnitPrice: decimal.NewFromInt(10), Quantity: 1},
		{ID: 2, Name: "Amoxicilina", UnitPrice: decimal.NewFromInt(25), Quantity: 2, RequiresPrescription: true},
		{ID: 3, Name: "Clonazepam", UnitPrice: decimal.NewFromInt(40), Quantity: 1, RequiresPrescription: true},
	}
}

func testDoc() domain.Document {
	return domain.Document{Key: "sessions/s/documents/x/receta.pdf", Filename: "receta.pdf", ContentType: "application/pdf", Size: 10}
}

func newTestBook(p Persister) *Book {
	b := NewBook(nil, p, nil)
	b.SetClock(func() time.Time { return now })
	return b
}

func validInput(ids ...int64) BuildInput {
	return BuildInput{
		Document:    testDoc(),
		PhysicianID: "CMP-12345",
		IssueDate:   now.AddDate(0, 0, -1),
		ItemIDs:     ids,
	}
}

func TestBook_Build(t *testing.T) {
	p := &fakePersister{}
	b := newTestBook(p)

	draft, err := b.Build(context.Background(), testCart(), validInput(2))
	require.NoError(t, err)

	assert.NotEmpty(t, draft.ID)
	assert.Equal(t, domain.DraftUnsubmitted, draft.Status)
	require.Len(t, draft.Items, 1)
	assert.Equal(t, "Amoxicilina", draft.Items[0].Name)
	assert.Equal(t, 2, draft.Items[0].Quantity)
	assert.Equal(t, 1, p.saves)

	unassigned := b.Unassigned(testCart())
	require.Len(t, unassigned, 1)
	assert.Equal(t, int64(3), unassigned[0].ID)
	assert.False(t, b.AllItemsAssigned(testCart()))
}

func TestBook_BuildIncomplete(t *testing.T) {
	tests := []struct {
		name  string
		in    BuildInput
		field string
	}{
		{"missing document", BuildInput{PhysicianID: "CMP-1", IssueDate: now, ItemIDs: []int64{2}}, "document"},
		{"missing physician", BuildInput{Document: testDoc(), IssueDate: now, ItemIDs: []int64{2}}, "medico_cmp"},
		{"missing issue date", BuildInput{Document: testDoc(), PhysicianID: "CMP-1", ItemIDs: []int64{2}}, "fecha_emision"},
		{"no items", BuildInput{Document: testDoc(), PhysicianID: "CMP-1", IssueDate: now}, "items"},
		{"future issue date", BuildInput{Document: testDoc(), PhysicianID: "CMP-1", IssueDate: now.Add(48 * time.Hour), ItemIDs: []int64{2}}, "fecha_emision"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &fakePersister{}
			b := newTestBook(p)

			_, err := b.Build(context.Background(), testCart(), tt.in)
			require.Error(t, err)
			assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))
			assert.Contains(t, domain.GetValidationFields(err), tt.field)

			assert.Empty(t, b.Drafts(), "failure never mutates assignment")
			assert.Len(t, b.Unassigned(testCart()), 2)
			assert.Zero(t, p.saves)
		})
	}
}

func TestBook_BuildRejectsDoubleAssignment(t *testing.T) {
	b := newTestBook(nil)
	ctx := context.Background()

	_, err := b.Build(ctx, testCart(), validInput(2))
	require.NoError(t, err)

	_, err = b.Build(ctx, testCart(), validInput(3, 2))
	assert.ErrorIs(t, err, domain.ErrItemAlreadyAssigned)
	assert.Equal(t, domain.ECONFLICT, domain.ErrorCode(err))

	assert.Len(t, b.Drafts(), 1)
	assert.Len(t, b.Unassigned(testCart()), 1, "item 3 stays unassigned")
}

func TestBook_BuildRejectsNonPrescriptionItem(t *testing.T) {
	b := newTestBook(nil)

	_, err := b.Build(context.Background(), testCart(), validInput(1))
	assert.ErrorIs(t, err, domain.ErrItemNotPrescription)

	_, err = b.Build(context.Background(), testCart(), validInput(99))
	assert.ErrorIs(t, err, domain.ErrItemNotPrescription)
}

func TestBook_BuildPersistFailure(t *testing.T) {
	b := newTestBook(&fakePersister{err: errors.New("down")})

	_, err := b.Build(context.Background(), testCart(), validInput(2))
	require.Error(t, err)
	assert.Empty(t, b.Drafts())
}

func TestBook_Remove(t *testing.T) {
	b := newTestBook(nil)
	ctx := context.Background()
	draft, err := b.Build(ctx, testCart(), validInput(2, 3))
	require.NoError(t, err)

	_, err = b.Update(ctx, draft.ID, func(d *domain.PrescriptionDraft) bool {
		d.Status = domain.DraftPendingValidation
		d.RemoteID = "r1"
		return true
	})
	require.NoError(t, err)

	_, err = b.Remove(ctx, draft.ID)
	assert.ErrorIs(t, err, domain.ErrDraftInFlight)

	_, err = b.Update(ctx, draft.ID, func(d *domain.PrescriptionDraft) bool {
		d.Status = domain.DraftRejected
		return true
	})
	require.NoError(t, err)

	removed, err := b.Remove(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, testDoc(), removed.Document)
	assert.Len(t, b.Unassigned(testCart()), 2)

	_, err = b.Remove(ctx, draft.ID)
	assert.ErrorIs(t, err, domain.ErrDraftNotFound)
}

func TestBook_RetryAndReplaceDocument(t *testing.T) {
	b := newTestBook(nil)
	ctx := context.Background()
	draft, err := b.Build(ctx, testCart(), validInput(2))
	require.NoError(t, err)

	_, err = b.Retry(ctx, draft.ID)
	assert.ErrorIs(t, err, domain.ErrDraftNotRetryable, "unsubmitted drafts are not retried")

	_, err = b.Update(ctx, draft.ID, func(d *domain.PrescriptionDraft) bool {
		d.RemoteID = "r1"
		d.Status = domain.DraftRejected
		d.Message = "Firma ilegible"
		return true
	})
	require.NoError(t, err)

	newDoc := domain.Document{Key: "sessions/s/documents/y/nueva.pdf", Filename: "nueva.pdf"}
	_, err = b.ReplaceDocument(ctx, draft.ID, newDoc)
	assert.ErrorIs(t, err, domain.ErrDraftAlreadySubmitted, "submitted drafts keep their document")

	prev, err := b.Retry(ctx, draft.ID)
	require.NoError(t, err)
	assert.Equal(t, "r1", prev.RemoteID)

	got, err := b.Get(draft.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.DraftUnsubmitted, got.Status)
	assert.Empty(t, got.RemoteID)
	assert.True(t, got.Document.IsZero())
	assert.Empty(t, got.Message)

	old, err := b.ReplaceDocument(ctx, draft.ID, newDoc)
	require.NoError(t, err)
	assert.True(t, old.IsZero())

	got, _ = b.Get(draft.ID)
	assert.Equal(t, newDoc, got.Document)
}

func TestBook_Prune(t *testing.T) {
	b := newTestBook(nil)
	ctx := context.Background()
	d1, err := b.Build(ctx, testCart(), validInput(2))
	require.NoError(t, err)
	_, err = b.Build(ctx, testCart(), validInput(3))
	require.NoError(t, err)

	// Item 2 removed, item 3 quantity changed.
	cart := []domain.CartItem{
		{ID: 3, Name: "Clonazepam", Quantity: 4, RequiresPrescription: true},
	}

	dropped, err := b.Prune(ctx, cart)
	require.NoError(t, err)
	require.Len(t, dropped, 1)
	assert.Equal(t, d1.ID, dropped[0].ID)

	drafts := b.Drafts()
	require.Len(t, drafts, 1)
	assert.Equal(t, 4, drafts[0].Items[0].Quantity)
	assert.True(t, b.AllItemsAssigned(cart))
}

func TestNewBook_RestoresInterruptedUploads(t *testing.T) {
	b := NewBook([]domain.PrescriptionDraft{
		{ID: "a", Status: domain.DraftUploading},
		{ID: "b", Status: domain.DraftPendingValidation, RemoteID: "r-b"},
		{ID: "c", Status: domain.DraftValidated, RemoteID: "r-c"},
	}, nil, nil)

	a, _ := b.Get("a")
	bb, _ := b.Get("b")
	c, _ := b.Get("c")
	assert.Equal(t, domain.DraftUnsubmitted, a.Status)
	assert.Equal(t, domain.DraftPendingValidation, bb.Status)
	assert.Equal(t, domain.DraftValidated, c.Status)
}
