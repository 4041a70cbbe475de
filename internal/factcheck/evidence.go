package factcheck

import (
	"encoding/json"
	"fmt"
	"unicode/utf8"

	"github.com/ppiankov/factloop/internal/model"
)

// promptRecord is the evidence shape the oracles see
type promptRecord struct {
	Source  model.SourceType `json:"source"`
	Title   string           `json:"title"`
	Date    string           `json:"date,omitempty"`
	Label   string           `json:"label,omitempty"`
	Summary string           `json:"summary,omitempty"`
	Body    string           `json:"body,omitempty"`
	URL     string           `json:"url"`
}

// SerializeEvidence renders evidence records as a JSON array for prompts.
// Bodies longer than maxBodyChars runes are cut; zero keeps them whole.
func SerializeEvidence(records []model.EvidenceRecord, maxBodyChars int) (string, error) {
	if len(records) == 0 {
		return model.NoEvidenceMarker, nil
	}

	out := make([]promptRecord, 0, len(records))
	for _, r := range records {
		out = append(out, promptRecord{
			Source:  r.SourceType,
			Title:   r.Title,
			Date:    r.Date,
			Label:   r.Label,
			Summary: r.Summary,
			Body:    truncateRunes(r.Body, maxBodyChars),
			URL:     r.URL,
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return "", fmt.Errorf("serialize evidence: %w", err)
	}
	return string(data), nil
}

func truncateRunes(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + "…"
}
