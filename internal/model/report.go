package model

import "time"

// QuestionSource records who supplied a round's follow-up question
type QuestionSource string

const (
	QuestionAISuggested  QuestionSource = "ai-suggested"
	QuestionUserSupplied QuestionSource = "user-supplied"
)

// RoundRecord is the immutable audit entry for one completed round
type RoundRecord struct {
	Round      int            `json:"round"`      // 1-based
	Draft      Draft          `json:"draft"`      // Draft that was evaluated in this round
	Evaluation Evaluation     `json:"evaluation"` // Evaluation of that draft
	Question   string         `json:"question"`   // Question used to produce the next draft
	Source     QuestionSource `json:"source"`
	At         time.Time      `json:"at"`
}

// Paragraph is one explanation paragraph of a final report
type Paragraph struct {
	Text       string `json:"text"`
	References []int  `json:"references"` // Reference indices cited by this paragraph
}

// Reference maps a citation index to an evidence URL
type Reference struct {
	Index int    `json:"index"`
	URL   string `json:"url"`
}

// FinalReport is the synthesized, citation-annotated verdict
type FinalReport struct {
	Tag        Tag         `json:"tag"`
	Paragraphs []Paragraph `json:"paragraphs"`
	References []Reference `json:"references"`
	Markdown   string      `json:"markdown"` // Raw synthesizer output
	Warnings   []string    `json:"warnings,omitempty"`
}

// Result is the complete outcome of one fact-check session, suitable for rendering and archiving
type Result struct {
	SessionID        string           `json:"session_id"`
	Claim            Claim            `json:"claim"`
	CheckPoints      CheckPoints      `json:"check_points"`
	CheckPointStatus CheckPointStatus `json:"check_point_status"`
	Evidence         []EvidenceRecord `json:"evidence"`
	EvidenceStatus   EvidenceStatus   `json:"evidence_status"`
	InitialDraft     *Draft           `json:"initial_draft,omitempty"`
	FinalDraft       *Draft           `json:"final_draft,omitempty"`
	Rounds           []RoundRecord    `json:"rounds"`
	LastEvaluation   *Evaluation      `json:"last_evaluation,omitempty"`
	TerminatedBy     string           `json:"terminated_by,omitempty"`
	Report           *FinalReport     `json:"report,omitempty"`
	Error            string           `json:"error,omitempty"` // Set when the session failed
	StartedAt        time.Time        `json:"started_at"`
	FinishedAt       time.Time        `json:"finished_at"`
}

// TotalRounds counts the initial draft plus every recorded round
func (r *Result) TotalRounds() int {
	return len(r.Rounds) + 1
}
