package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func draftFields() map[string]string {
	return map[string]string{
		"medicoCMP":    "CMP-12345",
		"fechaEmision": "2026-03-01",
		"productos":    "2",
	}
}

func (s *testServer) createDraft(t *testing.T) domain.PrescriptionDraft {
	t.Helper()
	h := NewPrescriptionHandler(s.registry)

	rec := httptest.NewRecorder()
	h.Create(rec, s.multipartRequest(t, http.MethodPost, "/api/prescriptions", draftFields(), &formFile{"receta.pdf", pdfBody}))
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var d domain.PrescriptionDraft
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&d))
	return d
}

func TestPrescriptionHandler_Create(t *testing.T) {
	s := newTestServer(t)
	s.addItem(t, 2, 1)

	d := s.createDraft(t)
	assert.NotEmpty(t, d.ID)
	assert.Equal(t, "CMP-12345", d.PhysicianID)
	assert.Equal(t, "2026-03-01", d.IssueDate.Format("2006-01-02"))
	assert.Equal(t, domain.DraftUnsubmitted, d.Status)
	require.Len(t, d.Items, 1)
	assert.Equal(t, int64(2), d.Items[0].ItemID)
	assert.Equal(t, "receta.pdf", d.Document.Filename)
	assert.Equal(t, int64(len(pdfBody)), d.Document.Size)

	h := NewPrescriptionHandler(s.registry)
	rec := httptest.NewRecorder()
	h.List(rec, s.request(http.MethodGet, "/api/prescriptions", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	var list draftsResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&list))
	assert.Len(t, list.Drafts, 1)
	assert.Empty(t, list.Unassigned)
}

func TestPrescriptionHandler_CreateInvalid(t *testing.T) {
	tests := []struct {
		name   string
		fields map[string]string
		file   *formFile
		field  string
	}{
		{
			name:   "not a pdf",
			fields: draftFields(),
			file:   &formFile{"receta.png", "\x89PNG\r\n\x1a\n"},
			field:  "archivoPDF",
		},
		{
			name:   "bad date",
			fields: map[string]string{"medicoCMP": "CMP-1", "fechaEmision": "01/03/2026", "productos": "2"},
			file:   &formFile{"receta.pdf", pdfBody},
			field:  "fechaEmision",
		},
		{
			name:   "bad item list",
			fields: map[string]string{"medicoCMP": "CMP-1", "fechaEmision": "2026-03-01", "productos": "2,x"},
			file:   &formFile{"receta.pdf", pdfBody},
			field:  "productos",
		},
		{
			name:   "missing document",
			fields: draftFields(),
			field:  "document",
		},
		{
			name:   "missing physician",
			fields: map[string]string{"fechaEmision": "2026-03-01", "productos": "2"},
			file:   &formFile{"receta.pdf", pdfBody},
			field:  "medico_cmp",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)
			s.addItem(t, 2, 1)
			h := NewPrescriptionHandler(s.registry)

			rec := httptest.NewRecorder()
			h.Create(rec, s.multipartRequest(t, http.MethodPost, "/api/prescriptions", tt.fields, tt.file))

			assert.Equal(t, http.StatusBadRequest, rec.Code)
			assert.Contains(t, decodeError(t, rec).Error.Fields, tt.field)
			assert.Empty(t, s.coordinator(t).Drafts())
		})
	}
}

func TestPrescriptionHandler_CreateNotMultipart(t *testing.T) {
	s := newTestServer(t)
	h := NewPrescriptionHandler(s.registry)

	rec := httptest.NewRecorder()
	h.Create(rec, s.jsonRequest(http.MethodPost, "/api/prescriptions", map[string]string{"medicoCMP": "x"}))

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestPrescriptionHandler_ItemOnAnotherDraft(t *testing.T) {
	s := newTestServer(t)
	s.addItem(t, 2, 1)
	s.createDraft(t)
	h := NewPrescriptionHandler(s.registry)

	rec := httptest.NewRecorder()
	h.Create(rec, s.multipartRequest(t, http.MethodPost, "/api/prescriptions", draftFields(), &formFile{"otra.pdf", pdfBody}))

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestPrescriptionHandler_ReplaceAndDelete(t *testing.T) {
	s := newTestServer(t)
	s.addItem(t, 2, 1)
	d := s.createDraft(t)
	h := NewPrescriptionHandler(s.registry)

	req := s.multipartRequest(t, http.MethodPut, "/api/prescriptions/"+d.ID+"/document", nil, &formFile{"nueva.pdf", pdfBody + "%%EOF"})
	req.SetPathValue("id", d.ID)
	rec := httptest.NewRecorder()
	h.ReplaceDocument(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var replaced domain.PrescriptionDraft
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&replaced))
	assert.Equal(t, "nueva.pdf", replaced.Document.Filename)
	assert.NotEqual(t, d.Document.Key, replaced.Document.Key)

	req = s.request(http.MethodDelete, "/api/prescriptions/"+d.ID, nil)
	req.SetPathValue("id", d.ID)
	rec = httptest.NewRecorder()
	h.Delete(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, s.coordinator(t).Drafts())

	rec = httptest.NewRecorder()
	h.Delete(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestPrescriptionHandler_ReplaceRequiresFile(t *testing.T) {
	s := newTestServer(t)
	s.addItem(t, 2, 1)
	d := s.createDraft(t)
	h := NewPrescriptionHandler(s.registry)

	req := s.multipartRequest(t, http.MethodPut, "/api/prescriptions/"+d.ID+"/document", nil, nil)
	req.SetPathValue("id", d.ID)
	rec := httptest.NewRecorder()
	h.ReplaceDocument(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, decodeError(t, rec).Error.Fields, "archivoPDF")
}
