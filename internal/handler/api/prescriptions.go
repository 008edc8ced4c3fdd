package api

import (
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/dukerupert/botica/internal/checkout"
	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/handler"
	"github.com/dukerupert/botica/internal/recetas"
)

// Multipart field names, shared with the document service's upload form.
const (
	fieldDocument    = "archivoPDF"
	fieldPhysicianID = "medicoCMP"
	fieldIssueDate   = "fechaEmision"
	fieldItems       = "productos"
)

// maxMemory is how much of a multipart body is held in memory; the rest
// spills to temporary files.
const maxMemory = 2 << 20

// PrescriptionHandler manages the session's prescription drafts.
type PrescriptionHandler struct {
	sessions Sessions
}

// NewPrescriptionHandler creates a prescription handler.
func NewPrescriptionHandler(sessions Sessions) *PrescriptionHandler {
	return &PrescriptionHandler{sessions: sessions}
}

type draftsResponse struct {
	Drafts     []domain.PrescriptionDraft `json:"drafts"`
	Unassigned []domain.CartItem          `json:"unassigned"`
}

// List handles GET /api/prescriptions
func (h *PrescriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}

	resp := draftsResponse{Drafts: c.Drafts(), Unassigned: c.Unassigned()}
	if resp.Drafts == nil {
		resp.Drafts = []domain.PrescriptionDraft{}
	}
	if resp.Unassigned == nil {
		resp.Unassigned = []domain.CartItem{}
	}
	handler.JSON(w, http.StatusOK, resp)
}

// Create handles POST /api/prescriptions
// Multipart form: archivoPDF (file), medicoCMP, fechaEmision (YYYY-MM-DD) and
// productos (comma-separated cart item ids).
func (h *PrescriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	const op = "api.create_prescription"

	if err := parseMultipart(r, op); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	var fieldErrs error
	req := checkout.DraftRequest{PhysicianID: strings.TrimSpace(r.FormValue(fieldPhysicianID))}

	if raw := strings.TrimSpace(r.FormValue(fieldIssueDate)); raw != "" {
		date, err := time.Parse(recetas.IssueDateLayout, raw)
		if err != nil {
			fieldErrs = domain.AddFieldError(fieldErrs, fieldIssueDate, "must be a date (YYYY-MM-DD)")
		}
		req.IssueDate = date
	}

	ids, err := parseItemIDs(r.MultipartForm.Value[fieldItems])
	if err != nil {
		fieldErrs = domain.AddFieldError(fieldErrs, fieldItems, err.Error())
	}
	req.ItemIDs = ids

	file, closeFile, err := formDocument(r)
	if err != nil {
		fieldErrs = domain.AddFieldError(fieldErrs, fieldDocument, err.Error())
	}
	defer closeFile()
	req.File = file

	if fieldErrs != nil {
		handler.ValidationErrorResponse(w, r, fieldErrs)
		return
	}

	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}
	draft, err := c.BuildDraft(r.Context(), req)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusCreated, draft)
}

// ReplaceDocument handles PUT /api/prescriptions/{id}/document
func (h *PrescriptionHandler) ReplaceDocument(w http.ResponseWriter, r *http.Request) {
	const op = "api.replace_prescription_document"

	if err := parseMultipart(r, op); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, closeFile, err := formDocument(r)
	defer closeFile()
	if err != nil {
		handler.ValidationErrorResponse(w, r, domain.NewValidationError(op, fieldDocument, err.Error()))
		return
	}

	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}
	draft, err := c.ReplaceDocument(r.Context(), r.PathValue("id"), file)
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusOK, draft)
}

// Retry handles POST /api/prescriptions/{id}/retry
func (h *PrescriptionHandler) Retry(w http.ResponseWriter, r *http.Request) {
	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}

	draft, err := c.RetryDraft(r.Context(), r.PathValue("id"))
	if err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	handler.JSON(w, http.StatusOK, draft)
}

// Delete handles DELETE /api/prescriptions/{id}
func (h *PrescriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
	c, ok := coordinator(w, r, h.sessions)
	if !ok {
		return
	}

	if err := c.RemoveDraft(r.Context(), r.PathValue("id")); err != nil {
		handler.ErrorResponse(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func parseMultipart(r *http.Request, op string) error {
	err := r.ParseMultipartForm(maxMemory)
	if err == nil {
		return nil
	}

	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return domain.WrapError(err, domain.ETOOLARGE, op, "Prescription file is too large")
	}
	return domain.WrapError(err, domain.EINVALID, op, "Expected a multipart form")
}

// formDocument returns the uploaded PDF. A missing file yields an empty
// upload so the draft builder reports the missing document. The returned
// close func is always safe to call.
func formDocument(r *http.Request) (checkout.DocumentUpload, func(), error) {
	noop := func() {}

	f, fh, err := r.FormFile(fieldDocument)
	if errors.Is(err, http.ErrMissingFile) {
		return checkout.DocumentUpload{}, noop, nil
	}
	if err != nil {
		return checkout.DocumentUpload{}, noop, errors.New("could not be read")
	}
	closeFile := func() { f.Close() }

	if !isPDF(f) {
		return checkout.DocumentUpload{}, closeFile, errors.New("must be a PDF document")
	}

	return checkout.DocumentUpload{
		Filename:    fh.Filename,
		ContentType: "application/pdf",
		Content:     f,
	}, closeFile, nil
}

// isPDF sniffs the file header and rewinds it.
func isPDF(f multipart.File) bool {
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return false
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return false
	}
	return http.DetectContentType(head[:n]) == "application/pdf"
}

// parseItemIDs accepts comma-separated ids, possibly spread over repeated fields.
func parseItemIDs(values []string) ([]int64, error) {
	var ids []int64
	for _, v := range values {
		for _, part := range strings.Split(v, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			id, err := strconv.ParseInt(part, 10, 64)
			if err != nil || id <= 0 {
				return nil, errors.New("must be a comma-separated list of item ids")
			}
			ids = append(ids, id)
		}
	}
	return ids, nil
}
