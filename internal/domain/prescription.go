package domain

import (
	"time"
)

// =============================================================================
// PRESCRIPTION DOMAIN ERRORS
// =============================================================================

var (
	ErrDraftNotFound         = &Error{Code: ENOTFOUND, Message: "Prescription not found"}
	ErrItemAlreadyAssigned   = &Error{Code: ECONFLICT, Message: "Item is already assigned to another prescription"}
	ErrItemNotPrescription   = &Error{Code: EINVALID, Message: "Item does not require a prescription"}
	ErrDraftInFlight         = &Error{Code: ECONFLICT, Message: "Prescription is being uploaded or validated"}
	ErrDraftAlreadySubmitted = &Error{Code: ECONFLICT, Message: "Prescription was already submitted; retry it to attach a new document"}
	ErrDraftNotRetryable     = &Error{Code: ECONFLICT, Message: "Only rejected or unresolved prescriptions can be retried"}
	ErrConsentRequired       = &Error{Code: EINVALID, Message: "You must accept the sworn statement before uploading prescriptions"}
)

// DraftStatus is the lifecycle state of a prescription draft.
type DraftStatus string

const (
	DraftUnsubmitted       DraftStatus = "unsubmitted"
	DraftUploading         DraftStatus = "uploading"
	DraftPendingValidation DraftStatus = "pending_validation"
	DraftValidated         DraftStatus = "validated"
	DraftRejected          DraftStatus = "rejected"
	DraftTimedOut          DraftStatus = "timed_out"
	DraftValidationError   DraftStatus = "validation_error"
)

// InFlight reports whether the draft is waiting on a network round-trip.
func (s DraftStatus) InFlight() bool {
	return s == DraftUploading || s == DraftPendingValidation
}

// Terminal reports whether the status will not change without external action.
func (s DraftStatus) Terminal() bool {
	switch s {
	case DraftValidated, DraftRejected, DraftTimedOut, DraftValidationError:
		return true
	}
	return false
}

// Retryable reports whether the buyer may reset the draft and attach a new document.
func (s DraftStatus) Retryable() bool {
	return s == DraftRejected || s == DraftValidationError || s == DraftTimedOut
}

// Document is an opaque handle to a prescription file held in storage.
type Document struct {
	Key         string `json:"key"`
	Filename    string `json:"filename"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// IsZero reports whether no document is attached.
func (d Document) IsZero() bool {
	return d.Key == ""
}

// DraftItem is a cart line assigned to a prescription.
type DraftItem struct {
	ItemID   int64  `json:"id"`
	Name     string `json:"nombre"`
	Quantity int    `json:"cantidad"`
}

// PrescriptionDraft groups prescription-requiring cart items under one document.
type PrescriptionDraft struct {
	ID          string      `json:"id"`
	Document    Document    `json:"document"`
	PhysicianID string      `json:"medico_cmp"`
	IssueDate   time.Time   `json:"fecha_emision"`
	Items       []DraftItem `json:"items"`
	RemoteID    string      `json:"remote_id,omitempty"`
	Status      DraftStatus `json:"status"`
	Message     string      `json:"message,omitempty"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// Clone returns a deep copy safe to hand to other goroutines.
func (d PrescriptionDraft) Clone() PrescriptionDraft {
	cp := d
	cp.Items = append([]DraftItem(nil), d.Items...)
	return cp
}

// ItemNames returns the names of the assigned items, for buyer-facing messages.
func (d PrescriptionDraft) ItemNames() []string {
	names := make([]string, len(d.Items))
	for i, it := range d.Items {
		names[i] = it.Name
	}
	return names
}

// ValidationStatus is the authority's verdict for one submission.
type ValidationStatus string

const (
	ValidationPending   ValidationStatus = "pending"
	ValidationValidated ValidationStatus = "validated"
	ValidationRejected  ValidationStatus = "rejected"
	ValidationTimedOut  ValidationStatus = "timed_out"
	ValidationFailed    ValidationStatus = "validation_error"
	ValidationCancelled ValidationStatus = "cancelled"
)

// ParseRemoteStatus maps the document service's estadoValidacion value.
// Anything unrecognised is treated as still pending.
func ParseRemoteStatus(s string) ValidationStatus {
	switch s {
	case "validada", "validado", "validated", "aprobada", "approved":
		return ValidationValidated
	case "rechazada", "rechazado", "rejected":
		return ValidationRejected
	default:
		return ValidationPending
	}
}

// ValidationOutcome is the latest poll result for a submission.
type ValidationOutcome struct {
	RemoteID   string           `json:"remote_id"`
	Status     ValidationStatus `json:"status"`
	Message    string           `json:"message,omitempty"`
	Attempts   int              `json:"attempts"`
	ObservedAt time.Time        `json:"observed_at"`
	Err        error            `json:"-"`
}

// DraftStatus converts a poll outcome into the draft lifecycle state.
// Cancelled outcomes keep the draft pending so a later attempt polls again.
func (o ValidationOutcome) DraftStatus() DraftStatus {
	switch o.Status {
	case ValidationValidated:
		return DraftValidated
	case ValidationRejected:
		return DraftRejected
	case ValidationTimedOut:
		return DraftTimedOut
	case ValidationFailed:
		return DraftValidationError
	default:
		return DraftPendingValidation
	}
}
