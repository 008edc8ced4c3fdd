package session

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/botica/internal/crypto"
	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSession(t *testing.T) (*Session, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	return NewRepository(store, nil).For(NewID()), store
}

func TestSession_CartRoundTrip(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	items, err := s.LoadCart(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	want := []domain.CartItem{{ID: 1, Name: "Paracetamol", UnitPrice: decimal.RequireFromString("10.00"), Quantity: 2}}
	require.NoError(t, s.SaveCart(ctx, want))

	got, err := s.LoadCart(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, int64(1), got[0].ID)
	assert.Equal(t, 2, got[0].Quantity)
	assert.True(t, want[0].UnitPrice.Equal(got[0].UnitPrice))
}

func TestSession_SaveFailureIsInternal(t *testing.T) {
	s, store := newTestSession(t)
	store.SetPutErr(errors.New("disk full"))

	err := s.SaveCart(context.Background(), nil)
	require.Error(t, err)
	assert.Equal(t, domain.EINTERNAL, domain.ErrorCode(err))
}

func TestSession_CorruptStateIsDropped(t *testing.T) {
	s, store := newTestSession(t)
	ctx := context.Background()

	_, err := store.Put(ctx, s.key(draftsFile), strings.NewReader("{not json"), "application/json")
	require.NoError(t, err)

	drafts, err := s.LoadDrafts(ctx)
	require.NoError(t, err)
	assert.Empty(t, drafts)
}

func TestSession_OrderSummary(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	_, ok, err := s.LoadOrderSummary(ctx)
	require.NoError(t, err)
	assert.False(t, ok)

	summary := domain.OrderSummary{Total: decimal.NewFromInt(20), Time: time.Now().UTC(), IntentID: "i1", Caveat: domain.CaveatNone}
	require.NoError(t, s.SaveOrderSummary(ctx, summary))

	got, ok, err := s.LoadOrderSummary(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "i1", got.IntentID)
	assert.True(t, got.Total.Equal(decimal.NewFromInt(20)))
}

func TestSession_Documents(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	doc, err := s.PutDocument(ctx, `C:\scans\receta.pdf`, "application/pdf", strings.NewReader("%PDF-1.4"))
	require.NoError(t, err)
	assert.Equal(t, int64(8), doc.Size)
	assert.True(t, strings.HasSuffix(doc.Key, "/receta.pdf"))

	rc, err := s.OpenDocument(ctx, doc)
	require.NoError(t, err)
	data, _ := io.ReadAll(rc)
	rc.Close()
	assert.Equal(t, "%PDF-1.4", string(data))

	other := NewRepository(storage.NewMemoryStorage(), nil).For(NewID())
	_, err = other.OpenDocument(ctx, doc)
	assert.Equal(t, domain.EINVALID, domain.ErrorCode(err))

	require.NoError(t, s.DeleteDocument(ctx, doc))
	_, err = s.OpenDocument(ctx, doc)
	assert.Equal(t, domain.ENOTFOUND, domain.ErrorCode(err))
}

func TestSession_ClearRemovesEverything(t *testing.T) {
	s, store := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCart(ctx, []domain.CartItem{{ID: 1, Quantity: 1}}))
	require.NoError(t, s.SaveCredentials(ctx, domain.Credentials{Token: "t"}))
	_, err := s.PutDocument(ctx, "r.pdf", "application/pdf", strings.NewReader("x"))
	require.NoError(t, err)

	require.NoError(t, s.Clear(ctx))

	keys, err := store.List(ctx, s.prefix)
	require.NoError(t, err)
	assert.Empty(t, keys)

	creds, err := s.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.False(t, creds.Authenticated())
}

func TestSession_ClearCheckoutKeepsCredentials(t *testing.T) {
	s, _ := newTestSession(t)
	ctx := context.Background()

	require.NoError(t, s.SaveCart(ctx, []domain.CartItem{{ID: 1, Quantity: 1}}))
	require.NoError(t, s.SaveDrafts(ctx, []domain.PrescriptionDraft{{ID: "d1"}}))
	require.NoError(t, s.SaveCredentials(ctx, domain.Credentials{Token: "t"}))

	require.NoError(t, s.ClearCheckout(ctx))

	items, _ := s.LoadCart(ctx)
	drafts, _ := s.LoadDrafts(ctx)
	creds, _ := s.LoadCredentials(ctx)
	assert.Empty(t, items)
	assert.Empty(t, drafts)
	assert.Equal(t, "t", creds.Token)
}

func TestValidID(t *testing.T) {
	assert.True(t, ValidID(NewID()))
	assert.False(t, ValidID("../../etc"))
	assert.False(t, ValidID(""))
}

func TestSession_SealedCredentials(t *testing.T) {
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	enc, err := crypto.NewAESEncryptor(key)
	require.NoError(t, err)

	store := storage.NewMemoryStorage()
	s := NewRepository(store, nil).WithEncryptor(enc).For(NewID())
	ctx := context.Background()

	creds := domain.Credentials{Token: "jwt-secret", Profile: domain.UserProfile{DNI: "12345678"}}
	require.NoError(t, s.SaveCredentials(ctx, creds))

	rc, err := store.Get(ctx, s.key(credentialsFile))
	require.NoError(t, err)
	raw, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "jwt-secret")

	got, err := s.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.Equal(t, creds, got)

	// Carts stay plain JSON.
	require.NoError(t, s.SaveCart(ctx, []domain.CartItem{{ID: 1, Quantity: 1}}))
	rc, err = store.Get(ctx, s.key(cartFile))
	require.NoError(t, err)
	raw, _ = io.ReadAll(rc)
	rc.Close()
	assert.Contains(t, string(raw), `"quantity"`)
}

func TestSession_UnsealableCredentialsAreDropped(t *testing.T) {
	key, _ := crypto.GenerateKey()
	enc, _ := crypto.NewAESEncryptor(key)

	store := storage.NewMemoryStorage()
	id := NewID()
	plain := NewRepository(store, nil).For(id)
	ctx := context.Background()
	require.NoError(t, plain.SaveCredentials(ctx, domain.Credentials{Token: "jwt"}))

	sealed := NewRepository(store, nil).WithEncryptor(enc).For(id)
	got, err := sealed.LoadCredentials(ctx)
	require.NoError(t, err)
	assert.False(t, got.Authenticated())
}
