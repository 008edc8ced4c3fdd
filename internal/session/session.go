// Package session persists a buyer's local checkout state (cart, prescription
// drafts, credentials, order summary and uploaded documents) in a
// storage.Storage, keyed by session identifier.
package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path"
	"strings"

	"github.com/dukerupert/botica/internal/crypto"
	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/storage"
	"github.com/google/uuid"
)

const (
	cartFile        = "cart.json"
	draftsFile      = "drafts.json"
	credentialsFile = "credentials.json"
	summaryFile     = "order_summary.json"
	documentsDir    = "documents"
)

// Repository hands out per-session views over one storage backend.
type Repository struct {
	store  storage.Storage
	sealer crypto.Encryptor
	logger *slog.Logger
}

// NewRepository creates a session repository over store.
func NewRepository(store storage.Storage, logger *slog.Logger) *Repository {
	if logger == nil {
		logger = slog.Default()
	}
	return &Repository{store: store, logger: logger}
}

// WithEncryptor seals stored credentials with enc. Credentials written
// without it can no longer be read and are dropped on load.
func (r *Repository) WithEncryptor(enc crypto.Encryptor) *Repository {
	r.sealer = enc
	return r
}

// NewID returns a fresh session identifier.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id looks like a session identifier we issued.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// For returns the persistence view of one session.
func (r *Repository) For(sessionID string) *Session {
	return &Session{
		id:     sessionID,
		prefix: path.Join("sessions", sessionID) + "/",
		store:  r.store,
		sealer: r.sealer,
		logger: r.logger.With(slog.String("session_id", sessionID)),
	}
}

// Session reads and writes the state of a single buyer session.
// It satisfies the persistence ports of the cart and prescription packages.
type Session struct {
	id     string
	prefix string
	store  storage.Storage
	sealer crypto.Encryptor
	logger *slog.Logger
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

func (s *Session) key(name string) string {
	return s.prefix + name
}

func (s *Session) save(ctx context.Context, op, name string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return domain.Internal(err, op, "failed to encode session state")
	}
	contentType := "application/json"
	if s.sealed(name) {
		if data, err = s.sealer.Encrypt(data); err != nil {
			return domain.Internal(err, op, "failed to seal session state")
		}
		contentType = "application/octet-stream"
	}
	if _, err := s.store.Put(ctx, s.key(name), bytes.NewReader(data), contentType); err != nil {
		return domain.Internal(err, op, "failed to persist session state")
	}
	return nil
}

// load decodes name into v. A missing key leaves v untouched and reports false.
func (s *Session) load(ctx context.Context, op, name string, v interface{}) (bool, error) {
	rc, err := s.store.Get(ctx, s.key(name))
	if err != nil {
		if storage.IsNotFound(err) {
			return false, nil
		}
		return false, domain.Internal(err, op, "failed to load session state")
	}
	defer rc.Close()

	data, err := io.ReadAll(rc)
	if err != nil {
		return false, domain.Internal(err, op, "failed to read session state")
	}
	if s.sealed(name) {
		if data, err = s.sealer.Decrypt(data); err != nil {
			s.logger.Warn("discarding unsealable session state",
				slog.String("file", name), slog.String("error", err.Error()))
			return false, nil
		}
	}

	if err := json.Unmarshal(data, v); err != nil {
		// Corrupt state is dropped rather than blocking the buyer.
		s.logger.Warn("discarding unreadable session state",
			slog.String("file", name), slog.String("error", err.Error()))
		return false, nil
	}
	return true, nil
}

// sealed reports whether name is encrypted at rest.
func (s *Session) sealed(name string) bool {
	return s.sealer != nil && name == credentialsFile
}

// SaveCart persists the cart lines.
func (s *Session) SaveCart(ctx context.Context, items []domain.CartItem) error {
	if items == nil {
		items = []domain.CartItem{}
	}
	return s.save(ctx, "session.save_cart", cartFile, items)
}

// LoadCart returns the persisted cart lines, or none.
func (s *Session) LoadCart(ctx context.Context) ([]domain.CartItem, error) {
	var items []domain.CartItem
	if _, err := s.load(ctx, "session.load_cart", cartFile, &items); err != nil {
		return nil, err
	}
	return items, nil
}

// SaveDrafts persists the prescription drafts.
func (s *Session) SaveDrafts(ctx context.Context, drafts []domain.PrescriptionDraft) error {
	if drafts == nil {
		drafts = []domain.PrescriptionDraft{}
	}
	return s.save(ctx, "session.save_drafts", draftsFile, drafts)
}

// LoadDrafts returns the persisted drafts, or none.
func (s *Session) LoadDrafts(ctx context.Context) ([]domain.PrescriptionDraft, error) {
	var drafts []domain.PrescriptionDraft
	if _, err := s.load(ctx, "session.load_drafts", draftsFile, &drafts); err != nil {
		return nil, err
	}
	return drafts, nil
}

// SaveCredentials persists the bearer token and profile.
func (s *Session) SaveCredentials(ctx context.Context, creds domain.Credentials) error {
	return s.save(ctx, "session.save_credentials", credentialsFile, creds)
}

// LoadCredentials returns the stored credentials. The zero value means logged out.
func (s *Session) LoadCredentials(ctx context.Context) (domain.Credentials, error) {
	var creds domain.Credentials
	_, err := s.load(ctx, "session.load_credentials", credentialsFile, &creds)
	return creds, err
}

// SaveOrderSummary persists the confirmation view record.
func (s *Session) SaveOrderSummary(ctx context.Context, summary domain.OrderSummary) error {
	return s.save(ctx, "session.save_order_summary", summaryFile, summary)
}

// LoadOrderSummary returns the last order summary, reporting false when there is none.
func (s *Session) LoadOrderSummary(ctx context.Context) (domain.OrderSummary, bool, error) {
	var summary domain.OrderSummary
	ok, err := s.load(ctx, "session.load_order_summary", summaryFile, &summary)
	return summary, ok, err
}

// PutDocument stores an uploaded prescription file and returns its handle.
func (s *Session) PutDocument(ctx context.Context, filename, contentType string, content io.Reader) (domain.Document, error) {
	const op = "session.put_document"

	counter := &countingReader{r: content}
	key := s.key(path.Join(documentsDir, uuid.NewString(), safeName(filename)))
	if _, err := s.store.Put(ctx, key, counter, contentType); err != nil {
		return domain.Document{}, domain.Internal(err, op, "failed to store prescription document")
	}

	return domain.Document{
		Key:         key,
		Filename:    filename,
		ContentType: contentType,
		Size:        counter.n,
	}, nil
}

// OpenDocument opens a stored prescription file. The caller closes it.
func (s *Session) OpenDocument(ctx context.Context, doc domain.Document) (io.ReadCloser, error) {
	const op = "session.open_document"

	if !strings.HasPrefix(doc.Key, s.prefix) {
		return nil, domain.Invalid(op, "document does not belong to this session")
	}
	rc, err := s.store.Get(ctx, doc.Key)
	if err != nil {
		if storage.IsNotFound(err) {
			return nil, domain.NotFound(op, "document", doc.Filename)
		}
		return nil, domain.Internal(err, op, "failed to open prescription document")
	}
	return rc, nil
}

// DeleteDocument removes a stored prescription file. Missing files are ignored.
func (s *Session) DeleteDocument(ctx context.Context, doc domain.Document) error {
	if doc.IsZero() || !strings.HasPrefix(doc.Key, s.prefix) {
		return nil
	}
	if err := s.store.Delete(ctx, doc.Key); err != nil {
		return domain.Internal(err, "session.delete_document", "failed to delete prescription document")
	}
	return nil
}

// ClearCheckout removes the cart and drafts after a successful purchase.
func (s *Session) ClearCheckout(ctx context.Context) error {
	for _, name := range []string{cartFile, draftsFile} {
		if err := s.store.Delete(ctx, s.key(name)); err != nil {
			return domain.Internal(err, "session.clear_checkout", "failed to clear checkout state")
		}
	}
	return nil
}

// Clear removes every key of the session, documents included.
func (s *Session) Clear(ctx context.Context) error {
	const op = "session.clear"

	keys := []string{s.key(cartFile), s.key(draftsFile), s.key(credentialsFile), s.key(summaryFile)}
	if lister, ok := s.store.(storage.Lister); ok {
		listed, err := lister.List(ctx, s.prefix)
		if err != nil {
			return domain.Internal(err, op, "failed to list session state")
		}
		keys = append(keys, listed...)
	}

	var failed int
	for _, k := range keys {
		if err := s.store.Delete(ctx, k); err != nil {
			failed++
			s.logger.Error("failed to delete session key", slog.String("key", k), slog.String("error", err.Error()))
		}
	}
	if failed > 0 {
		return domain.Internal(fmt.Errorf("%d keys not deleted", failed), op, "failed to clear session")
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}

// safeName keeps the base name of an uploaded file with path separators removed.
func safeName(filename string) string {
	name := path.Base(strings.ReplaceAll(filename, "\\", "/"))
	if name == "." || name == "/" || name == ".." || name == "" {
		return "document"
	}
	return name
}
