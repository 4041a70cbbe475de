package refine

import (
	"fmt"

	"github.com/ppiankov/factloop/internal/model"
)

// Policy decides when the loop may finalize without an explicit stop
type Policy struct {
	MaxRounds int
	// Threshold finalizes once the average reaches Threshold. In strict mode
	// a high average only produces a hint.
	Strict    bool
	Threshold float64
}

// DefaultPolicy matches model.DefaultConfig
func DefaultPolicy() Policy {
	return Policy{MaxRounds: 3, Threshold: 4.5}
}

// PolicyFromConfig builds a policy from the refine section
func PolicyFromConfig(cfg model.RefineConfig) (Policy, error) {
	p := Policy{MaxRounds: cfg.MaxRounds, Threshold: cfg.Threshold}
	switch cfg.Policy {
	case "", model.PolicyThreshold:
	case model.PolicyStrict:
		p.Strict = true
	default:
		return Policy{}, fmt.Errorf("unknown refine policy %q (use %s or %s)", cfg.Policy, model.PolicyThreshold, model.PolicyStrict)
	}
	if p.MaxRounds < 1 {
		return Policy{}, fmt.Errorf("refine.max_rounds must be at least 1, got %d", p.MaxRounds)
	}
	return p, nil
}

// MeetsThreshold reports whether eval reaches the quality threshold
func (p Policy) MeetsThreshold(eval *model.Evaluation) bool {
	return eval != nil && p.Threshold > 0 && eval.Average >= p.Threshold
}

// finalizeReason returns the termination reason for a session awaiting a
// decision, or "" when the caller still chooses
func (p Policy) finalizeReason(s *Session) Termination {
	if s.CompletedRounds() >= p.MaxRounds {
		return TerminatedMaxRounds
	}
	if !p.Strict && p.MeetsThreshold(s.pending) {
		return TerminatedThreshold
	}
	return ""
}
