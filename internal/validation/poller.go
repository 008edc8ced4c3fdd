package validation

import (
	"context"
	"log/slog"
	"time"

	"github.com/dukerupert/botica/internal/domain"
	"github.com/dukerupert/botica/internal/telemetry"
)

// Defaults match the storefront's historical behaviour: ten queries one second apart.
const (
	DefaultInterval    = time.Second
	DefaultMaxAttempts = 10
)

// Requester asks the orchestrator to validate a submission. It may report
// a verdict straight away; otherwise it returns ValidationPending.
type Requester interface {
	RequestValidation(ctx context.Context, token, remoteID, patientID string) (domain.ValidationStatus, error)
}

// StatusQuerier reads the current verdict of a submission.
type StatusQuerier interface {
	Status(ctx context.Context, token, remoteID string) (domain.ValidationStatus, string, error)
}

// Config tunes the poll budget.
type Config struct {
	Interval          time.Duration
	MaxAttempts       int
	RequestValidation bool
}

// Target identifies one submission to poll.
type Target struct {
	RemoteID  string
	PatientID string
	Token     string
	Initial   domain.ValidationStatus
}

// Poller executes the state machine against the remote services.
type Poller struct {
	requester Requester
	querier   StatusQuerier
	clock     Clock
	cfg       Config
	logger    *slog.Logger
	metrics   *telemetry.CheckoutMetrics
}

// NewPoller creates a poller. A nil requester disables the request step.
func NewPoller(requester Requester, querier StatusQuerier, clock Clock, cfg Config, logger *slog.Logger, metrics *telemetry.CheckoutMetrics) *Poller {
	if clock == nil {
		clock = SystemClock{}
	}
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = DefaultMaxAttempts
	}
	if requester == nil {
		cfg.RequestValidation = false
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		requester: requester,
		querier:   querier,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
		metrics:   metrics,
	}
}

// Poll runs until the submission is validated, rejected, timed out, failed
// or ctx is cancelled. It never returns an error; failures are part of the outcome.
func (p *Poller) Poll(ctx context.Context, t Target) domain.ValidationOutcome {
	logger := p.logger.With(slog.String("remote_id", t.RemoteID))
	started := p.clock.Now()

	s := Start(t.RemoteID, t.Initial, p.cfg.MaxAttempts, p.cfg.RequestValidation)
	for !s.Done() {
		if err := ctx.Err(); err != nil {
			s = Next(s, Event{Kind: Cancel, Err: err})
			break
		}
		s = Next(s, p.perform(ctx, logger, s, t))
	}

	outcome := domain.ValidationOutcome{
		RemoteID:   s.RemoteID,
		Status:     s.Status,
		Message:    s.Message,
		Attempts:   s.Attempts,
		ObservedAt: p.clock.Now(),
		Err:        s.LastErr,
	}

	if s.Status != domain.ValidationCancelled {
		p.metrics.PollOutcome(string(s.Status), outcome.ObservedAt.Sub(started).Seconds())
	}
	logger.Info("validation poll finished",
		slog.String("status", string(s.Status)),
		slog.Int("attempts", s.Attempts),
	)
	return outcome
}

func (p *Poller) perform(ctx context.Context, logger *slog.Logger, s State, t Target) Event {
	switch s.Step {
	case StepRequest:
		status, err := p.requester.RequestValidation(ctx, t.Token, t.RemoteID, t.PatientID)
		if err != nil {
			if ctx.Err() != nil {
				return Event{Kind: Cancel, Err: ctx.Err()}
			}
			logger.Warn("validation request failed", slog.String("error", err.Error()))
			return Event{Kind: RequestFailed, Err: err}
		}
		return Event{Kind: RequestAccepted, Status: status}

	case StepQuery:
		status, msg, err := p.querier.Status(ctx, t.Token, t.RemoteID)
		if err != nil {
			if ctx.Err() != nil {
				return Event{Kind: Cancel, Err: ctx.Err()}
			}
			p.metrics.PollAttempt(false)
			logger.Debug("status query failed",
				slog.Int("attempt", s.Attempts+1),
				slog.String("error", err.Error()),
			)
			return Event{Kind: QueryFailed, Err: err}
		}
		p.metrics.PollAttempt(true)
		return Event{Kind: StatusObserved, Status: status, Message: msg}

	default:
		select {
		case <-ctx.Done():
			return Event{Kind: Cancel, Err: ctx.Err()}
		case <-p.clock.After(p.cfg.Interval):
			return Event{Kind: Tick}
		}
	}
}
