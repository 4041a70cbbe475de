package model

// EvidenceRecord is a retrieved wire article or prior fact-check report
type EvidenceRecord struct {
	SourceType SourceType `json:"source_type"`    // wire or fact-check-report
	Title      string     `json:"title"`          // Headline
	Date       string     `json:"date,omitempty"` // Publication date (YYYY-MM-DD when known)
	Body       string     `json:"body,omitempty"` // Full article text
	Summary    string     `json:"summary,omitempty"`
	Label      string     `json:"label,omitempty"` // Expert verdict label on fact-check reports
	URL        string     `json:"url"`
}

// SourceType classifies where an evidence record came from
type SourceType string

const (
	SourceWire            SourceType = "wire"              // News wire article
	SourceFactCheckReport SourceType = "fact-check-report" // Prior fact-check center report
)

// EvidenceStatus reports how retrieval went for a session
type EvidenceStatus string

const (
	EvidenceOK     EvidenceStatus = "ok"
	EvidenceEmpty  EvidenceStatus = "empty"
	EvidenceFailed EvidenceStatus = "failed"
)

// NoEvidenceMarker is substituted into prompts when retrieval produced nothing
const NoEvidenceMarker = "(no evidence available; say the evidence is insufficient where it matters)"

// EvidenceURLs returns the allowlist of citable URLs, in retrieval order, without duplicates
func EvidenceURLs(records []EvidenceRecord) []string {
	seen := make(map[string]bool, len(records))
	urls := make([]string, 0, len(records))
	for _, r := range records {
		if r.URL == "" || seen[r.URL] {
			continue
		}
		seen[r.URL] = true
		urls = append(urls, r.URL)
	}
	return urls
}
