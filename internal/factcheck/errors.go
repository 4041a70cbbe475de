package factcheck

import (
	"errors"
	"fmt"
)

var (
	// ErrUpstreamUnavailable marks a retriever or check-point identifier that could not be reached.
	// Sessions degrade instead of aborting on it.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")

	// ErrOracleCallFailed marks a generation, evaluation or synthesis call that failed or timed out
	ErrOracleCallFailed = errors.New("oracle call failed")

	// ErrInvalidOutput marks oracle output that violates its schema or tag set
	ErrInvalidOutput = errors.New("invalid oracle output")

	// ErrCitationOutOfRange marks a final report that cites outside the supplied evidence
	ErrCitationOutOfRange = errors.New("citation out of range")

	// ErrDuplicateQuestion rejects accepting a follow-up question that repeats an earlier one
	ErrDuplicateQuestion = errors.New("duplicate follow-up question")
)

// Stage names an oracle call site
type Stage string

const (
	StageDraft      Stage = "draft"
	StageEvaluate   Stage = "evaluate"
	StageSynthesize Stage = "synthesize"
)

// OracleCallError wraps a failed oracle call
type OracleCallError struct {
	Stage Stage
	Err   error
}

func (e *OracleCallError) Error() string {
	return fmt.Sprintf("%s: oracle call failed: %v", e.Stage, e.Err)
}

func (e *OracleCallError) Unwrap() error { return e.Err }

func (e *OracleCallError) Is(target error) bool { return target == ErrOracleCallFailed }

// InvalidOutputError reports oracle output that could not be accepted
type InvalidOutputError struct {
	Stage  Stage
	Reason string
	Raw    string // Offending output, kept for logs
}

func (e *InvalidOutputError) Error() string {
	return fmt.Sprintf("%s: invalid output: %s", e.Stage, e.Reason)
}

func (e *InvalidOutputError) Is(target error) bool { return target == ErrInvalidOutput }

// CitationOutOfRangeError reports a reference index or URL outside the evidence set
type CitationOutOfRangeError struct {
	Index  int    // Zero when the problem is a URL
	URL    string // Empty when the problem is an index
	Reason string
}

func (e *CitationOutOfRangeError) Error() string {
	switch {
	case e.URL != "" && e.Index > 0:
		return fmt.Sprintf("citation [%d] %s: %s", e.Index, e.URL, e.Reason)
	case e.URL != "":
		return fmt.Sprintf("citation %s: %s", e.URL, e.Reason)
	default:
		return fmt.Sprintf("citation [%d]: %s", e.Index, e.Reason)
	}
}

func (e *CitationOutOfRangeError) Is(target error) bool { return target == ErrCitationOutOfRange }

func invalid(stage Stage, raw, format string, args ...any) error {
	return &InvalidOutputError{Stage: stage, Reason: fmt.Sprintf(format, args...), Raw: raw}
}
