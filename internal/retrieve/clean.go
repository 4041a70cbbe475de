package retrieve

import (
	"strings"

	"golang.org/x/net/html"

	"github.com/ppiankov/factloop/internal/model"
)

// Normalize cleans the text fields of a record and unifies its date format
func Normalize(r model.EvidenceRecord) model.EvidenceRecord {
	r.Title = CleanText(r.Title)
	r.Summary = CleanText(r.Summary)
	r.Body = CleanText(r.Body)
	r.Label = strings.TrimSpace(r.Label)
	r.Date = NormalizeDate(r.Date)
	r.URL = strings.TrimSpace(r.URL)
	return r
}

// NormalizeDate turns "2025/09/11" into "2025-09-11"
func NormalizeDate(s string) string {
	return strings.ReplaceAll(strings.TrimSpace(s), "/", "-")
}

// CleanText strips markup from stored article text and collapses whitespace
func CleanText(s string) string {
	if strings.ContainsRune(s, '<') {
		if doc, err := html.Parse(strings.NewReader(s)); err == nil {
			s = visibleText(doc)
		}
	}
	return strings.Join(strings.Fields(s), " ")
}

// visibleText extracts text nodes, skipping scripts and styles
func visibleText(n *html.Node) string {
	var buf strings.Builder

	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "script", "style", "noscript", "iframe":
				return
			}
		}

		if n.Type == html.TextNode {
			if text := strings.TrimSpace(n.Data); text != "" {
				buf.WriteString(text)
				buf.WriteString(" ")
			}
		}

		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}

	walk(n)
	return buf.String()
}
