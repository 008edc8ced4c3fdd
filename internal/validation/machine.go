// Package validation drives one prescription submission to a terminal
// validation state by polling the document service.
//
// The state machine in this file is pure: Next never performs I/O. The
// Poller executes the effect each state asks for (request validation,
// query status, wait for a tick) and feeds the result back as an event.
package validation

import (
	"github.com/dukerupert/botica/internal/domain"
)

// Step is the effect the driver must perform next.
type Step int

const (
	StepRequest Step = iota // ask the orchestrator to validate
	StepQuery               // query the submission status
	StepWait                // wait one interval
	StepDone                // terminal, stop
)

func (s Step) String() string {
	switch s {
	case StepRequest:
		return "request"
	case StepQuery:
		return "query"
	case StepWait:
		return "wait"
	default:
		return "done"
	}
}

// EventKind enumerates the inputs of the state machine.
type EventKind int

const (
	RequestAccepted EventKind = iota
	RequestFailed
	StatusObserved
	QueryFailed
	Tick
	Cancel
)

// Event is one input to Next. Status and Message are set for StatusObserved
// and, when the orchestrator reports one, RequestAccepted.
type Event struct {
	Kind    EventKind
	Status  domain.ValidationStatus
	Message string
	Err     error
}

// State is the poll state of one submission.
type State struct {
	RemoteID    string
	Status      domain.ValidationStatus
	Step        Step
	Attempts    int // status queries made, failed ones included
	MaxAttempts int
	Message     string
	LastErr     error
}

// Start returns the initial state for remoteID.
// An initial verdict that is already terminal needs no calls at all.
func Start(remoteID string, initial domain.ValidationStatus, maxAttempts int, requestValidation bool) State {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	s := State{
		RemoteID:    remoteID,
		Status:      domain.ValidationPending,
		MaxAttempts: maxAttempts,
		Step:        StepQuery,
	}
	if requestValidation {
		s.Step = StepRequest
	}
	if terminalVerdict(initial) {
		s.Status = initial
		s.Step = StepDone
	}
	return s
}

// Done reports whether the state is terminal.
func (s State) Done() bool {
	return s.Step == StepDone
}

// Next applies e to s. Terminal states absorb every event, which makes
// re-requesting validation of a settled submission a no-op.
func Next(s State, e Event) State {
	if s.Done() {
		return s
	}

	if e.Kind == Cancel {
		s.Status = domain.ValidationCancelled
		s.Step = StepDone
		s.LastErr = e.Err
		return s
	}

	switch s.Step {
	case StepRequest:
		switch e.Kind {
		case RequestAccepted:
			if terminalVerdict(e.Status) {
				s.Status = e.Status
				s.Message = e.Message
				s.Step = StepDone
				return s
			}
			s.Step = StepQuery
		case RequestFailed:
			s.Status = domain.ValidationFailed
			s.LastErr = e.Err
			if e.Err != nil {
				s.Message = domain.ErrorMessage(e.Err)
			}
			s.Step = StepDone
		}

	case StepQuery:
		switch e.Kind {
		case StatusObserved:
			s.Attempts++
			if e.Message != "" {
				s.Message = e.Message
			}
			if terminalVerdict(e.Status) {
				s.Status = e.Status
				s.Step = StepDone
				return s
			}
			s = afterAttempt(s)
		case QueryFailed:
			// Transport errors are swallowed but spend budget.
			s.Attempts++
			s.LastErr = e.Err
			s = afterAttempt(s)
		}

	case StepWait:
		if e.Kind == Tick {
			s.Step = StepQuery
		}
	}

	return s
}

func afterAttempt(s State) State {
	if s.Attempts >= s.MaxAttempts {
		s.Status = domain.ValidationTimedOut
		s.Step = StepDone
		return s
	}
	s.Step = StepWait
	return s
}

func terminalVerdict(st domain.ValidationStatus) bool {
	return st == domain.ValidationValidated || st == domain.ValidationRejected
}
