package scanning

import (
	"encoding/json"
	"strings"
	"time"
)

// dateLayouts are the receipt date formats models return besides ISO
var dateLayouts = []string{
	DateLayout,
	"2006/01/02",
	"01/02/2006",
	"02-01-2006",
	"2 Jan 2006",
	"Jan 2, 2006",
	time.RFC3339,
}

// ParseCandidate recovers a Candidate from free-form model output.
// It returns false when the text holds no decodable JSON object.
func ParseCandidate(text string) (*Candidate, bool) {
	object, ok := firstObject(text)
	if !ok {
		return nil, false
	}

	var candidate Candidate
	if err := json.Unmarshal([]byte(object), &candidate); err != nil {
		return nil, false
	}
	return &candidate, true
}

// firstObject returns the text from the first '{' to its matching '}'.
// Braces inside JSON strings don't count towards nesting.
func firstObject(text string) (string, bool) {
	start := strings.IndexByte(text, '{')
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]

		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}

		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}

	// truncated output
	return "", false
}

// ParseDate reads a candidate date, falling back to today's date at midnight UTC
func ParseDate(value string, now time.Time) time.Time {
	value = strings.TrimSpace(value)
	for _, layout := range dateLayouts {
		if d, err := time.Parse(layout, value); err == nil {
			return time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, time.UTC)
		}
	}
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
