package factcheck

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ppiankov/factloop/internal/model"
)

const maxReportParagraphs = 3

var (
	referencesHeading = regexp.MustCompile(`(?mi)^[\s*#]*(?:references|參考資料|資料來源)\s*[:：]?[\s*]*$`)
	referenceEntry    = regexp.MustCompile(`^\[(\d+)\]\s*[:：]\s*(\S+)\s*$`)
	referenceMarker   = regexp.MustCompile(`\[(\d+)\]`)
	paragraphBreak    = regexp.MustCompile(`\n[ \t]*\n`)
	urlPattern        = regexp.MustCompile(`https?://[^\s\)\]」）>，。、]+`)
)

// ParseReport parses synthesizer markdown and checks every citation against allowed.
// Citation problems return *CitationOutOfRangeError; structural problems *InvalidOutputError.
func ParseReport(text string, allowed []string) (*model.FinalReport, error) {
	loc := verdictLine.FindStringSubmatchIndex(text)
	if loc == nil {
		return nil, invalid(StageSynthesize, text, "missing verdict line")
	}
	label := text[loc[2]:loc[3]]
	tag, ok := model.ParseTag(label)
	if !ok {
		return nil, invalid(StageSynthesize, text, "tag %q outside the allowed set", label)
	}

	body := text[loc[1]:]
	var refBlock string
	if h := referencesHeading.FindStringIndex(body); h != nil {
		refBlock = body[h[1]:]
		body = body[:h[0]]
	}

	refs, err := parseReferences(refBlock, text)
	if err != nil {
		return nil, err
	}

	var paragraphs []model.Paragraph
	for _, chunk := range paragraphBreak.Split(body, -1) {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		paragraphs = append(paragraphs, model.Paragraph{Text: chunk, References: citedIndices(chunk, len(allowed))})
	}
	if len(paragraphs) == 0 {
		return nil, invalid(StageSynthesize, text, "no explanation paragraphs")
	}
	if len(paragraphs) > maxReportParagraphs {
		return nil, invalid(StageSynthesize, text, "%d paragraphs, at most %d allowed", len(paragraphs), maxReportParagraphs)
	}

	warnings, err := checkCitations(paragraphs, refs, allowed, text)
	if err != nil {
		return nil, err
	}

	return &model.FinalReport{
		Tag:        tag,
		Paragraphs: paragraphs,
		References: refs,
		Markdown:   strings.TrimSpace(text),
		Warnings:   warnings,
	}, nil
}

func parseReferences(block, raw string) ([]model.Reference, error) {
	var refs []model.Reference
	for _, line := range strings.Split(block, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		m := referenceEntry.FindStringSubmatch(line)
		if m == nil {
			return nil, invalid(StageSynthesize, raw, "malformed reference line %q", line)
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, invalid(StageSynthesize, raw, "reference index %q: %v", m[1], err)
		}
		url := strings.TrimSuffix(strings.TrimPrefix(m[2], "<"), ">")
		refs = append(refs, model.Reference{Index: idx, URL: url})
	}
	return refs, nil
}

// citedIndices returns the [n] markers in paragraph. Numbers above the
// evidence count (years, figures) are plain text, not citations.
func citedIndices(paragraph string, evidenceCount int) []int {
	var out []int
	seen := make(map[int]bool)
	for _, m := range referenceMarker.FindAllStringSubmatch(paragraph, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx > evidenceCount || seen[idx] {
			continue
		}
		seen[idx] = true
		out = append(out, idx)
	}
	return out
}

func checkCitations(paragraphs []model.Paragraph, refs []model.Reference, allowed []string, raw string) ([]string, error) {
	allow := make(map[string]bool, len(allowed))
	for _, u := range allowed {
		allow[u] = true
	}

	listed := make(map[int]bool, len(refs))
	urls := make(map[string]bool, len(refs))
	for _, r := range refs {
		if r.Index < 1 {
			return nil, &CitationOutOfRangeError{Index: r.Index, URL: r.URL, Reason: "index must start at 1"}
		}
		if listed[r.Index] {
			return nil, &CitationOutOfRangeError{Index: r.Index, Reason: "duplicated index"}
		}
		if urls[r.URL] {
			return nil, &CitationOutOfRangeError{Index: r.Index, URL: r.URL, Reason: "duplicated URL"}
		}
		if !allow[r.URL] {
			return nil, &CitationOutOfRangeError{Index: r.Index, URL: r.URL, Reason: "not in the evidence set"}
		}
		listed[r.Index] = true
		urls[r.URL] = true
	}

	cited := make(map[int]bool)
	for i, p := range paragraphs {
		for _, idx := range p.References {
			if !listed[idx] {
				return nil, &CitationOutOfRangeError{Index: idx, Reason: "not in the reference list"}
			}
			cited[idx] = true
		}
		for _, u := range extractURLs(p.Text) {
			if !allow[u] {
				return nil, &CitationOutOfRangeError{URL: u, Reason: "not in the evidence set"}
			}
		}
		if len(refs) > 0 && len(p.References) == 0 {
			return nil, invalid(StageSynthesize, raw, "paragraph %d cites no reference", i+1)
		}
	}

	var warnings []string
	for _, r := range refs {
		if !cited[r.Index] {
			warnings = append(warnings, fmt.Sprintf("reference [%d] is listed but never cited", r.Index))
		}
	}
	return warnings, nil
}

// extractURLs returns the distinct URLs in text, trailing punctuation removed
func extractURLs(text string) []string {
	seen := make(map[string]bool)
	var unique []string
	for _, u := range urlPattern.FindAllString(text, -1) {
		u = strings.TrimRight(u, ".,;:!?")
		if !seen[u] {
			seen[u] = true
			unique = append(unique, u)
		}
	}
	return unique
}
