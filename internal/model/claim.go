package model

import (
	"strconv"
	"strings"
)

// Claim represents the statement submitted for fact-checking
type Claim struct {
	Text   string `json:"text"`             // The claim text itself
	Source string `json:"source,omitempty"` // Optional source label passed to the check-point identifier
}

// CheckPointStatus reports how the check-point identifier answered
type CheckPointStatus string

const (
	CheckPointsOK     CheckPointStatus = "ok"     // Identifier returned at least one check point
	CheckPointsEmpty  CheckPointStatus = "empty"  // Identifier answered but found nothing
	CheckPointsFailed CheckPointStatus = "failed" // Identifier unreachable or returned an error
)

// CheckPoints is the ordered list of sub-claims worth verifying.
// A nil value means the identifier produced nothing usable.
type CheckPoints []string

// Clone returns an independent copy
func (c CheckPoints) Clone() CheckPoints {
	if c == nil {
		return nil
	}
	out := make(CheckPoints, len(c))
	copy(out, c)
	return out
}

// NoCheckPointsMarker is substituted into prompts when there are no check points
const NoCheckPointsMarker = "(no check points available; verify the claim as a whole)"

// String renders the check points as a numbered list, keeping existing numbering
func (c CheckPoints) String() string {
	if len(c) == 0 {
		return NoCheckPointsMarker
	}
	var b strings.Builder
	for i, cp := range c {
		cp = strings.TrimSpace(cp)
		if i > 0 {
			b.WriteString("\n")
		}
		if hasNumbering(cp) {
			b.WriteString(cp)
			continue
		}
		b.WriteString(strconv.Itoa(i + 1))
		b.WriteString(". ")
		b.WriteString(cp)
	}
	return b.String()
}

func hasNumbering(s string) bool {
	if s == "" || s[0] < '0' || s[0] > '9' {
		return false
	}
	head := s
	if len(head) > 5 {
		head = head[:5]
	}
	return strings.Contains(head, ". ")
}
