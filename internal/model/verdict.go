package model

import "strings"

// Tag is one of the four verdict categories
type Tag string

const (
	TagFalse          Tag = "false"
	TagPartiallyFalse Tag = "partially-false"
	TagTrue           Tag = "true"
	TagUnverifiable   Tag = "unverifiable"
)

// Tags lists the allowed verdicts in display order
var Tags = []Tag{TagFalse, TagPartiallyFalse, TagTrue, TagUnverifiable}

// Valid reports whether t is one of the four allowed tags
func (t Tag) Valid() bool {
	switch t {
	case TagFalse, TagPartiallyFalse, TagTrue, TagUnverifiable:
		return true
	}
	return false
}

// Label returns the Traditional Chinese label used by fact-check centers
func (t Tag) Label() string {
	switch t {
	case TagFalse:
		return "錯誤"
	case TagPartiallyFalse:
		return "部分錯誤"
	case TagTrue:
		return "正確"
	case TagUnverifiable:
		return "證據不足"
	default:
		return string(t)
	}
}

// tagAliases maps every accepted spelling onto a canonical tag
var tagAliases = map[string]Tag{
	"false":                 TagFalse,
	"錯誤":                    TagFalse,
	"partially-false":       TagPartiallyFalse,
	"partially false":       TagPartiallyFalse,
	"partly false":          TagPartiallyFalse,
	"部分錯誤":                  TagPartiallyFalse,
	"true":                  TagTrue,
	"正確":                    TagTrue,
	"unverifiable":          TagUnverifiable,
	"insufficient evidence": TagUnverifiable,
	"證據不足":                  TagUnverifiable,
}

// ParseTag maps a verdict label (English or Chinese) to a Tag.
// The second return value is false when the label is outside the allowed set.
func ParseTag(label string) (Tag, bool) {
	key := strings.ToLower(strings.TrimSpace(label))
	key = strings.Trim(key, "[]*「」【】 .。")
	tag, ok := tagAliases[key]
	return tag, ok
}

// Draft is the current tagged verdict before final synthesis
type Draft struct {
	Tag         Tag    `json:"tag"`
	Explanation string `json:"explanation"`
	Text        string `json:"text"` // Raw oracle output the draft was parsed from
}
