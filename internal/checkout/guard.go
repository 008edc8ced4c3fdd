// Package checkout coordinates the prescription-gated purchase of one buyer
// session: uploads, validation polls, the guard decision and registration.
package checkout

import (
	"github.com/dukerupert/botica/internal/domain"
)

// Decide aggregates the cart and its drafts into a checkout decision.
//
// Rules apply in order:
//  1. nothing needs a prescription: proceed
//  2. any draft still uploading or pending validation: wait
//  3. rejected drafts: proceed flagged for follow-up under RejectionWarn;
//     under RejectionBlock, blocked when every draft is rejected, wait otherwise
//  4. proceed, flagged pending unless every prescription item sits on a
//     validated draft
func Decide(items []domain.CartItem, drafts []domain.PrescriptionDraft, policy domain.RejectionPolicy) domain.AggregateDecision {
	rx := domain.PrescriptionItems(items)
	if len(rx) == 0 {
		return domain.AggregateDecision{Decision: domain.CanProceed, Caveat: domain.CaveatNone}
	}

	var out domain.AggregateDecision
	assigned := make(map[int64]bool)
	allValidated := true
	for _, d := range drafts {
		for _, it := range d.Items {
			assigned[it.ItemID] = true
		}
		switch {
		case d.Status.InFlight():
			out.InFlight = append(out.InFlight, d.ID)
			allValidated = false
		case d.Status == domain.DraftRejected:
			out.Rejected = append(out.Rejected, d.ID)
			allValidated = false
		case d.Status != domain.DraftValidated:
			out.Unresolved = append(out.Unresolved, d.ID)
			allValidated = false
		}
	}
	for _, it := range rx {
		if !assigned[it.ID] {
			out.UnassignedItems = append(out.UnassignedItems, it.ID)
		}
	}

	if len(out.InFlight) > 0 {
		out.Decision = domain.MustWaitOrCorrect
		out.Caveat = domain.CaveatNone
		return out
	}

	if len(out.Rejected) > 0 {
		if policy == domain.RejectionBlock {
			out.Caveat = domain.CaveatNone
			if len(out.Rejected) == len(drafts) {
				out.Decision = domain.BlockedAllRejected
			} else {
				out.Decision = domain.MustWaitOrCorrect
			}
			return out
		}
		out.Decision = domain.CanProceed
		out.Caveat = domain.CaveatRejectedFollowUp
		return out
	}

	out.Decision = domain.CanProceed
	if allValidated && len(out.UnassignedItems) == 0 {
		out.Caveat = domain.CaveatNone
	} else {
		out.Caveat = domain.CaveatPendingValidation
	}
	return out
}

// decisionError is the error Purchase returns for a decision that does not proceed.
func decisionError(d domain.AggregateDecision, op string) error {
	switch d.Decision {
	case domain.CanProceed:
		return nil
	case domain.BlockedAllRejected:
		return domain.WithOp(domain.ErrBlockedRejected, op)
	default:
		return domain.WithOp(domain.ErrMustWaitOrCorrect, op)
	}
}
