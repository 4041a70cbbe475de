// Package refine runs the draft, evaluate and decide loop of one fact-check session.
package refine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ppiankov/factloop/internal/factcheck"
	"github.com/ppiankov/factloop/internal/metrics"
	"github.com/ppiankov/factloop/internal/model"
)

var (
	// ErrInvalidState is returned when an operation does not fit the session's state
	ErrInvalidState = errors.New("invalid session state")
	// ErrEmptyQuestion is returned for a custom decision without a question
	ErrEmptyQuestion = errors.New("custom question is empty")
	// ErrRoundLimit is returned when another round would exceed the maximum
	ErrRoundLimit = errors.New("round limit reached")
)

// maxRejectedDecisions bounds consecutive refused decisions in Run
const maxRejectedDecisions = 3

// Drafter produces verdict drafts
type Drafter interface {
	Draft(ctx context.Context, req factcheck.DraftRequest) (*model.Draft, error)
}

// Evaluator scores drafts
type Evaluator interface {
	Evaluate(ctx context.Context, req factcheck.EvaluateRequest) (*model.Evaluation, error)
}

// Synthesizer compiles the final report
type Synthesizer interface {
	Synthesize(ctx context.Context, req factcheck.SynthesizeRequest) (*model.FinalReport, error)
}

// Controller drives sessions through the state machine.
// It holds no per-session state and may be shared.
type Controller struct {
	drafter     Drafter
	evaluator   Evaluator
	synthesizer Synthesizer
	policy      Policy
	logger      *zap.Logger
	metrics     *metrics.Metrics
	now         func() time.Time
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// WithMetrics sets the metrics sink
func WithMetrics(m *metrics.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(c *Controller) { c.now = now }
}

// NewController creates a controller
func NewController(d Drafter, e Evaluator, s Synthesizer, p Policy, opts ...Option) *Controller {
	c := &Controller{
		drafter:     d,
		evaluator:   e,
		synthesizer: s,
		policy:      p,
		logger:      zap.NewNop(),
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the controller's finalize policy
func (c *Controller) Policy() Policy { return c.policy }

// Start produces and evaluates the initial draft. The session then awaits a
// decision, or is already done when the policy finalizes it.
func (c *Controller) Start(ctx context.Context, s *Session) error {
	if s.state != StateDrafting || s.current != nil {
		return fmt.Errorf("%w: start from %s", ErrInvalidState, s.state)
	}

	s.startedAt = c.now()
	c.metrics.SessionStarted()
	c.logger.Info("session started",
		zap.String("session", s.ID),
		zap.String("checkpoints", string(s.CheckPointStatus)),
		zap.String("evidence", string(s.EvidenceStatus)),
		zap.Int("records", len(s.Evidence)))

	draft, err := c.drafter.Draft(ctx, factcheck.DraftRequest{
		Claim:       s.Claim,
		CheckPoints: s.CheckPoints,
		Evidence:    s.Evidence,
		OnDelta:     s.deltaFunc(factcheck.StageDraft),
	})
	if err != nil {
		return c.fail(s, err)
	}
	s.initial = draft
	s.current = copyDraft(draft)

	return c.evaluate(ctx, s)
}

// Apply executes one decision on a session awaiting a decision. Rejected
// decisions leave the session unchanged.
func (c *Controller) Apply(ctx context.Context, s *Session, d Decision) error {
	if s.state != StateAwaitingDecision {
		return fmt.Errorf("%w: decision in %s", ErrInvalidState, s.state)
	}

	var (
		question string
		source   model.QuestionSource
	)
	switch d.Action {
	case ActionStop:
		return c.finalize(ctx, s, TerminatedStopped)
	case ActionAccept:
		if s.pending.DuplicateQuestion {
			return factcheck.ErrDuplicateQuestion
		}
		question, source = s.pending.Question, model.QuestionAISuggested
	case ActionCustom:
		question = strings.TrimSpace(d.Question)
		if question == "" {
			return ErrEmptyQuestion
		}
		source = model.QuestionUserSupplied
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidState, d.Action)
	}

	if s.CompletedRounds() >= c.policy.MaxRounds {
		return ErrRoundLimit
	}

	previous := *s.current
	s.rounds = append(s.rounds, model.RoundRecord{
		Round:      len(s.rounds) + 1,
		Draft:      previous,
		Evaluation: *s.pending,
		Question:   question,
		Source:     source,
		At:         c.now(),
	})
	s.pending = nil
	c.logger.Debug("round closed",
		zap.String("session", s.ID),
		zap.Int("round", len(s.rounds)),
		zap.String("source", string(source)))

	s.setState(StateDrafting)
	draft, err := c.drafter.Draft(ctx, factcheck.DraftRequest{
		Claim:       s.Claim,
		CheckPoints: s.CheckPoints,
		Evidence:    s.Evidence,
		Question:    question,
		Previous:    &previous,
		OnDelta:     s.deltaFunc(factcheck.StageDraft),
	})
	if err != nil {
		return c.fail(s, err)
	}
	s.current = draft

	return c.evaluate(ctx, s)
}

// Run starts the session if needed and applies decisions from decider until
// the session is done or fails. A refused decision is asked for again, up to
// maxRejectedDecisions times in a row; then the refusal is returned and the
// session stays awaiting a decision.
func (c *Controller) Run(ctx context.Context, s *Session, decider Decider) (*model.Result, error) {
	if s.state == StateDrafting && s.current == nil {
		if err := c.Start(ctx, s); err != nil {
			return s.Result(), err
		}
	}

	rejected := 0
	for s.state == StateAwaitingDecision {
		d, err := decider.Decide(ctx, s)
		if err != nil {
			return s.Result(), c.fail(s, fmt.Errorf("decide: %w", err))
		}
		if err := c.Apply(ctx, s, d); err != nil {
			if s.state == StateFailed {
				return s.Result(), err
			}
			rejected++
			c.logger.Warn("decision rejected",
				zap.String("session", s.ID),
				zap.Int("attempt", rejected),
				zap.Error(err))
			retryable := errors.Is(err, factcheck.ErrDuplicateQuestion) || errors.Is(err, ErrEmptyQuestion)
			if !retryable || rejected >= maxRejectedDecisions {
				return s.Result(), err
			}
			if s.observer.OnRejected != nil {
				s.observer.OnRejected(s, err)
			}
			continue
		}
		rejected = 0
	}

	if s.state == StateFailed {
		return s.Result(), s.err
	}
	return s.Result(), nil
}

func (c *Controller) evaluate(ctx context.Context, s *Session) error {
	s.setState(StateEvaluating)
	eval, err := c.evaluator.Evaluate(ctx, factcheck.EvaluateRequest{
		Draft:          *s.current,
		CheckPoints:    s.CheckPoints,
		AskedQuestions: factcheck.AskedQuestions(s.rounds),
	})
	if err != nil {
		return c.fail(s, err)
	}
	s.pending = eval

	c.logger.Info("draft evaluated",
		zap.String("session", s.ID),
		zap.Int("round", len(s.rounds)),
		zap.String("tag", string(s.current.Tag)),
		zap.Float64("average", eval.Average),
		zap.String("weakest", string(eval.Weakest)),
		zap.Bool("duplicate_question", eval.DuplicateQuestion))

	s.setState(StateAwaitingDecision)
	if reason := c.policy.finalizeReason(s); reason != "" {
		return c.finalize(ctx, s, reason)
	}
	if c.policy.Strict && c.policy.MeetsThreshold(eval) {
		c.logger.Info("quality threshold reached, stopping is recommended",
			zap.String("session", s.ID), zap.Float64("average", eval.Average))
	}
	return nil
}

func (c *Controller) finalize(ctx context.Context, s *Session, reason Termination) error {
	s.terminatedBy = reason
	s.setState(StateFinalizing)

	report, err := c.synthesizer.Synthesize(ctx, factcheck.SynthesizeRequest{
		Claim:       s.Claim,
		CheckPoints: s.CheckPoints,
		Evidence:    s.Evidence,
		History:     factcheck.RenderHistory(s.initial, s.rounds, s.current),
		OnDelta:     s.deltaFunc(factcheck.StageSynthesize),
	})
	if err != nil {
		return c.fail(s, err)
	}
	s.report = report
	s.finishedAt = c.now()
	s.setState(StateDone)

	c.metrics.ObserveSession(string(reason), len(s.rounds))
	c.metrics.SessionEnded()
	c.logger.Info("session finished",
		zap.String("session", s.ID),
		zap.String("terminated_by", string(reason)),
		zap.Int("rounds", len(s.rounds)),
		zap.String("verdict", string(report.Tag)))
	return nil
}

func (c *Controller) fail(s *Session, err error) error {
	s.err = err
	s.finishedAt = c.now()
	s.setState(StateFailed)

	c.metrics.ObserveSession("failed", len(s.rounds))
	c.metrics.SessionEnded()
	c.logger.Error("session failed", zap.String("session", s.ID), zap.Error(err))
	return err
}
