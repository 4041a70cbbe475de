package refine

import (
	"context"
	"fmt"
)

// Action is the caller's choice while a session awaits a decision
type Action string

const (
	ActionAccept Action = "accept" // Use the evaluator's suggested question
	ActionCustom Action = "custom" // Use Decision.Question
	ActionStop   Action = "stop"   // Finalize now
)

// ParseAction maps the menu numbering and names onto an Action
func ParseAction(s string) (Action, error) {
	switch s {
	case "1", string(ActionAccept):
		return ActionAccept, nil
	case "2", string(ActionCustom):
		return ActionCustom, nil
	case "3", string(ActionStop):
		return ActionStop, nil
	}
	return "", fmt.Errorf("unknown action %q (use accept, custom or stop)", s)
}

// Decision is one caller choice
type Decision struct {
	Action   Action `json:"action"`
	Question string `json:"question,omitempty"`
}

// Decider chooses the next step for a session awaiting a decision
type Decider interface {
	Decide(ctx context.Context, s *Session) (Decision, error)
}

// DeciderFunc adapts a function to Decider
type DeciderFunc func(ctx context.Context, s *Session) (Decision, error)

// Decide calls f
func (f DeciderFunc) Decide(ctx context.Context, s *Session) (Decision, error) {
	return f(ctx, s)
}

// AutoDecider accepts every suggested question and stops when the evaluator repeats itself
type AutoDecider struct{}

// Decide implements Decider
func (AutoDecider) Decide(_ context.Context, s *Session) (Decision, error) {
	eval := s.Pending()
	if eval == nil || eval.DuplicateQuestion {
		return Decision{Action: ActionStop}, nil
	}
	return Decision{Action: ActionAccept}, nil
}

// ChannelDecider waits for decisions delivered on a channel
type ChannelDecider struct {
	decisions <-chan Decision
}

// NewChannelDecider creates a decider reading from ch
func NewChannelDecider(ch <-chan Decision) *ChannelDecider {
	return &ChannelDecider{decisions: ch}
}

// Decide blocks until a decision arrives or ctx ends. A closed channel stops the session.
func (c *ChannelDecider) Decide(ctx context.Context, _ *Session) (Decision, error) {
	select {
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	case d, ok := <-c.decisions:
		if !ok {
			return Decision{Action: ActionStop}, nil
		}
		return d, nil
	}
}
