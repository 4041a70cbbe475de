package server

import (
	"github.com/ppiankov/factloop/internal/model"
	"github.com/ppiankov/factloop/internal/refine"
)

// sessionView is the JSON shape of a session for API clients
type sessionView struct {
	ID               string                 `json:"id"`
	State            refine.State           `json:"state"`
	Claim            model.Claim            `json:"claim"`
	CheckPoints      model.CheckPoints      `json:"check_points"`
	CheckPointStatus model.CheckPointStatus `json:"check_point_status"`
	EvidenceCount    int                    `json:"evidence_count"`
	EvidenceStatus   model.EvidenceStatus   `json:"evidence_status"`
	CompletedRounds  int                    `json:"completed_rounds"`
	MaxRounds        int                    `json:"max_rounds"`
	Draft            *model.Draft           `json:"draft,omitempty"`
	Evaluation       *model.Evaluation      `json:"evaluation,omitempty"`
	MeetsThreshold   bool                   `json:"meets_threshold,omitempty"` // strict mode hint: stopping is recommended
	TerminatedBy     string                 `json:"terminated_by,omitempty"`
	Result           *model.Result          `json:"result,omitempty"`
	Error            string                 `json:"error,omitempty"`
}

func newView(s *refine.Session, policy refine.Policy) sessionView {
	v := sessionView{
		ID:               s.ID,
		State:            s.State(),
		Claim:            s.Claim,
		CheckPoints:      s.CheckPoints.Clone(),
		CheckPointStatus: s.CheckPointStatus,
		EvidenceCount:    len(s.Evidence),
		EvidenceStatus:   s.EvidenceStatus,
		CompletedRounds:  s.CompletedRounds(),
		MaxRounds:        policy.MaxRounds,
		Draft:            s.CurrentDraft(),
		Evaluation:       s.Pending(),
		TerminatedBy:     string(s.TerminatedBy()),
	}
	if s.State() == refine.StateAwaitingDecision {
		v.MeetsThreshold = policy.MeetsThreshold(v.Evaluation)
	}
	switch s.State() {
	case refine.StateDone:
		v.Result = s.Result()
	case refine.StateFailed:
		v.Result = s.Result()
		v.Error = v.Result.Error
	}
	return v
}

func viewFromResult(r *model.Result) sessionView {
	state := refine.StateDone
	if r.Error != "" {
		state = refine.StateFailed
	}
	return sessionView{
		ID:               r.SessionID,
		State:            state,
		Claim:            r.Claim,
		CheckPoints:      r.CheckPoints,
		CheckPointStatus: r.CheckPointStatus,
		EvidenceCount:    len(r.Evidence),
		EvidenceStatus:   r.EvidenceStatus,
		CompletedRounds:  len(r.Rounds),
		Draft:            r.FinalDraft,
		Evaluation:       r.LastEvaluation,
		TerminatedBy:     r.TerminatedBy,
		Result:           r,
		Error:            r.Error,
	}
}
