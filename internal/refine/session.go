package refine

import (
	"time"

	"github.com/google/uuid"

	"github.com/ppiankov/factloop/internal/factcheck"
	"github.com/ppiankov/factloop/internal/model"
)

// State is a session's position in the refinement loop
type State string

const (
	StateDrafting         State = "drafting"
	StateEvaluating       State = "evaluating"
	StateAwaitingDecision State = "awaiting_decision"
	StateFinalizing       State = "finalizing"
	StateDone             State = "done"
	StateFailed           State = "failed"
)

// Termination explains why the loop stopped
type Termination string

const (
	TerminatedMaxRounds Termination = "max_rounds"
	TerminatedStopped   Termination = "stopped"
	TerminatedThreshold Termination = "threshold"
)

// Observer receives progress notifications. All callbacks are optional.
type Observer struct {
	OnState func(s *Session, state State)
	OnDelta func(stage factcheck.Stage, delta string)
	// OnRejected is called by Run when a decision is refused and the
	// session keeps waiting for another one
	OnRejected func(s *Session, err error)
}

// Session is the aggregate for one fact-check request.
// It is not safe for concurrent use; callers serialize access per session.
type Session struct {
	ID               string
	Claim            model.Claim
	CheckPoints      model.CheckPoints
	CheckPointStatus model.CheckPointStatus
	Evidence         []model.EvidenceRecord
	EvidenceStatus   model.EvidenceStatus

	state        State
	initial      *model.Draft
	current      *model.Draft
	rounds       []model.RoundRecord
	pending      *model.Evaluation
	report       *model.FinalReport
	terminatedBy Termination
	err          error
	observer     Observer
	startedAt    time.Time
	finishedAt   time.Time
}

// Inputs are the upstream results a session starts from
type Inputs struct {
	Claim            model.Claim
	CheckPoints      model.CheckPoints
	CheckPointStatus model.CheckPointStatus
	Evidence         []model.EvidenceRecord
	EvidenceStatus   model.EvidenceStatus
}

// NewSession creates a session in the drafting state
func NewSession(in Inputs) *Session {
	evidence := make([]model.EvidenceRecord, len(in.Evidence))
	copy(evidence, in.Evidence)

	return &Session{
		ID:               uuid.NewString(),
		Claim:            in.Claim,
		CheckPoints:      in.CheckPoints.Clone(),
		CheckPointStatus: in.CheckPointStatus,
		Evidence:         evidence,
		EvidenceStatus:   in.EvidenceStatus,
		state:            StateDrafting,
	}
}

// Observe registers progress callbacks
func (s *Session) Observe(o Observer) {
	s.observer = o
}

// State returns the current state
func (s *Session) State() State { return s.state }

// Err returns the failure that moved the session to StateFailed
func (s *Session) Err() error { return s.err }

// TerminatedBy returns why the loop stopped, empty while it runs
func (s *Session) TerminatedBy() Termination { return s.terminatedBy }

// CompletedRounds counts closed rounds
func (s *Session) CompletedRounds() int { return len(s.rounds) }

// Rounds returns a copy of the round log
func (s *Session) Rounds() []model.RoundRecord {
	out := make([]model.RoundRecord, len(s.rounds))
	copy(out, s.rounds)
	return out
}

// CurrentDraft returns a copy of the latest draft, or nil before the first one
func (s *Session) CurrentDraft() *model.Draft {
	return copyDraft(s.current)
}

// InitialDraft returns a copy of the first draft
func (s *Session) InitialDraft() *model.Draft {
	return copyDraft(s.initial)
}

// Pending returns a copy of the latest evaluation, if any
func (s *Session) Pending() *model.Evaluation {
	if s.pending == nil {
		return nil
	}
	e := *s.pending
	return &e
}

// Report returns the final report once the session is done
func (s *Session) Report() *model.FinalReport {
	return s.report
}

// Result snapshots the session for rendering and archiving
func (s *Session) Result() *model.Result {
	var errText string
	if s.err != nil {
		errText = s.err.Error()
	}
	return &model.Result{
		SessionID:        s.ID,
		Claim:            s.Claim,
		CheckPoints:      s.CheckPoints.Clone(),
		CheckPointStatus: s.CheckPointStatus,
		Evidence:         append([]model.EvidenceRecord(nil), s.Evidence...),
		EvidenceStatus:   s.EvidenceStatus,
		InitialDraft:     s.InitialDraft(),
		FinalDraft:       s.CurrentDraft(),
		Rounds:           s.Rounds(),
		LastEvaluation:   s.Pending(),
		TerminatedBy:     string(s.terminatedBy),
		Report:           s.report,
		Error:            errText,
		StartedAt:        s.startedAt,
		FinishedAt:       s.finishedAt,
	}
}

func (s *Session) setState(st State) {
	s.state = st
	if s.observer.OnState != nil {
		s.observer.OnState(s, st)
	}
}

func (s *Session) deltaFunc(stage factcheck.Stage) func(string) {
	if s.observer.OnDelta == nil {
		return nil
	}
	return func(d string) { s.observer.OnDelta(stage, d) }
}

func copyDraft(d *model.Draft) *model.Draft {
	if d == nil {
		return nil
	}
	c := *d
	return &c
}
