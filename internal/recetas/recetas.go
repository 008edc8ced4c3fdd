// Package recetas is the client for the prescription document service.
package recetas

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/httpclient"
)

// IssueDateLayout is the date format the document service expects for fechaEmision.
const IssueDateLayout = "2006-01-02"

// UploadRequest is one draft ready to be transmitted.
type UploadRequest struct {
	Draft     domain.PrescriptionDraft
	PatientID string
	Token     string
	Document  io.Reader
}

// Submission is the document service's record of an uploaded prescription.
type Submission struct {
	ID      string
	Status  domain.ValidationStatus
	Message string
}

// Service uploads prescriptions and reads their validation status.
type Service interface {
	Upload(ctx context.Context, req UploadRequest) (Submission, error)
	Status(ctx context.Context, token, remoteID string) (domain.ValidationStatus, string, error)
}

// UploadError reports a failed upload. Retryable uploads failed in transport
// or with a 5xx; anything else is the service refusing the document.
type UploadError struct {
	Retryable  bool
	StatusCode int
	Err        error
}

func (e *UploadError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upload failed (status %d): %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upload failed: %v", e.Err)
}

func (e *UploadError) Unwrap() error {
	return e.Err
}

// AsUploadError returns the UploadError wrapped in err, if any.
func AsUploadError(err error) (*UploadError, bool) {
	var ue *UploadError
	ok := errors.As(err, &ue)
	return ue, ok
}

// Client implements Service over HTTP.
type Client struct {
	http *httpclient.Client
}

// NewClient creates a document service client.
func NewClient(c *httpclient.Client) *Client {
	return &Client{http: c}
}

type product struct {
	ID       int64  `json:"id"`
	Name     string `json:"nombre"`
	Quantity int    `json:"cantidad"`
}

type receta struct {
	ID               string `json:"_id"`
	EstadoValidacion string `json:"estadoValidacion"`
	Mensaje          string `json:"mensaje"`
}

type uploadResponse struct {
	Mensaje string `json:"mensaje"`
	Receta  receta `json:"receta"`
}

// Upload posts the draft as multipart form data.
func (c *Client) Upload(ctx context.Context, req UploadRequest) (Submission, error) {
	const op = "recetas.upload"

	if req.Document == nil || req.Draft.Document.IsZero() {
		return Submission{}, domain.Invalid(op, "Prescription has no document attached")
	}

	body, contentType, err := encodeUpload(req)
	if err != nil {
		return Submission{}, domain.Internal(err, op, "failed to encode prescription")
	}

	var resp uploadResponse
	err = c.http.Do(ctx, httpclient.Request{
		Op:          op,
		Method:      http.MethodPost,
		Path:        "/recetas/upload",
		Token:       req.Token,
		Body:        body,
		ContentType: contentType,
	}, &resp)
	if err != nil {
		return Submission{}, &UploadError{
			Retryable:  domain.Retryable(err),
			StatusCode: httpclient.StatusCode(err),
			Err:        err,
		}
	}

	if resp.Receta.ID == "" {
		return Submission{}, &UploadError{
			Retryable: false,
			Err:       domain.Internal(nil, op, "document service returned no prescription id"),
		}
	}

	return Submission{
		ID:      resp.Receta.ID,
		Status:  domain.ParseRemoteStatus(resp.Receta.EstadoValidacion),
		Message: resp.Mensaje,
	}, nil
}

func encodeUpload(req UploadRequest) (*bytes.Buffer, string, error) {
	buf := &bytes.Buffer{}
	w := multipart.NewWriter(buf)

	ct := req.Draft.Document.ContentType
	if ct == "" {
		ct = "application/pdf"
	}
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="archivoPDF"; filename="%s"`, escapeQuotes(req.Draft.Document.Filename)))
	h.Set("Content-Type", ct)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, req.Document); err != nil {
		return nil, "", err
	}

	products := make([]product, len(req.Draft.Items))
	for i, it := range req.Draft.Items {
		products[i] = product{ID: it.ItemID, Name: it.Name, Quantity: it.Quantity}
	}
	productsJSON, err := json.Marshal(products)
	if err != nil {
		return nil, "", err
	}

	fields := []struct{ name, value string }{
		{"fechaEmision", req.Draft.IssueDate.Format(IssueDateLayout)},
		{"medicoCMP", req.Draft.PhysicianID},
		{"pacienteDNI", req.PatientID},
		{"productos", string(productsJSON)},
	}
	for _, f := range fields {
		if err := w.WriteField(f.name, f.value); err != nil {
			return nil, "", err
		}
	}

	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf, w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}

// Status returns the current verdict of a submission. It is never retried:
// each call is one attempt of the poll budget.
func (c *Client) Status(ctx context.Context, token, remoteID string) (domain.ValidationStatus, string, error) {
	var resp statusResponse
	err := c.http.Do(ctx, httpclient.Request{
		Op:      "recetas.status",
		Method:  http.MethodGet,
		Path:    "/recetas/" + url.PathEscape(remoteID),
		Token:   token,
		NoRetry: true,
	}, &resp)
	if err != nil {
		return "", "", err
	}
	return domain.ParseRemoteStatus(resp.EstadoValidacion), resp.Mensaje, nil
}

// statusResponse accepts the bare receta document or {"receta": {...}}.
type statusResponse receta

func (s *statusResponse) UnmarshalJSON(data []byte) error {
	var wrapped struct {
		Mensaje string  `json:"mensaje"`
		Receta  *receta `json:"receta"`
	}
	if err := json.Unmarshal(data, &wrapped); err == nil && wrapped.Receta != nil {
		*s = statusResponse(*wrapped.Receta)
		if s.Mensaje == "" {
			s.Mensaje = wrapped.Mensaje
		}
		return nil
	}
	var r receta
	if err := json.Unmarshal(data, &r); err != nil {
		return err
	}
	*s = statusResponse(r)
	return nil
}
