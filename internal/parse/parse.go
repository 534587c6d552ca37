// Package parse extracts typed fields from semi-structured completion output.
//
// Model replies arrive as free text with labelled lines ("Estimated Age: 14")
// or embedded JSON blocks. Every extractor is tolerant: a missing label or a
// failed coercion yields the caller's documented default, and a malformed line
// never aborts extraction of unrelated fields.
package parse

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode"
)

// ParseError reports that a structured block could not be decoded. Callers
// must fall back to a default result rather than surface this to the user.
type ParseError struct {
	Reason string
	Err    error
}

func (e *ParseError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("parse error: %s", e.Reason)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LabelValue scans text line by line for a "Label:" prefix (case-insensitive)
// and returns the trimmed remainder of the first matching line. Numbered list
// markers such as "1. Estimated Age: 14" are tolerated.
func LabelValue(text, label string) (string, bool) {
	want := strings.ToLower(label)
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "0123456789.)* ")
		idx := strings.Index(strings.ToLower(line), want+":")
		if idx < 0 {
			continue
		}
		value := strings.TrimSpace(line[idx+len(want)+1:])
		value = strings.Trim(value, "[]*")
		if value == "" {
			continue
		}
		return strings.TrimSpace(value), true
	}
	return "", false
}

// Number extracts the first integer following the label, clamped to
// [min, max]. The default is returned (unclamped checks aside) when the label
// is absent or no digits can be extracted.
func Number(text, label string, def, min, max int) int {
	raw, ok := LabelValue(text, label)
	if !ok {
		return Clamp(def, min, max)
	}
	// Digit extraction from the first token, e.g. "14 years", "~14", "8/10".
	// Collection stops at the first non-digit after a digit so "8/10" reads 8.
	token := strings.Fields(raw)[0]
	var digits strings.Builder
	for _, r := range token {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		} else if digits.Len() > 0 {
			break
		}
	}
	if digits.Len() == 0 {
		return Clamp(def, min, max)
	}
	var n int
	if _, err := fmt.Sscanf(digits.String(), "%d", &n); err != nil {
		return Clamp(def, min, max)
	}
	return Clamp(n, min, max)
}

// Enum extracts the labelled value and matches it against the allowed set by
// containment (case-insensitive). Allowed values are checked in order, so
// callers should list longer variants first (e.g. "young_adult" before
// "adult"). The default is returned when nothing matches.
func Enum(text, label string, allowed []string, def string) string {
	raw, ok := LabelValue(text, label)
	if !ok {
		return def
	}
	lowered := strings.ToLower(raw)
	for _, candidate := range allowed {
		if strings.Contains(lowered, strings.ToLower(candidate)) {
			return candidate
		}
	}
	return def
}

// Text extracts the labelled value as trimmed free text, defaulting when the
// label is absent or empty.
func Text(text, label, def string) string {
	raw, ok := LabelValue(text, label)
	if !ok {
		return def
	}
	return raw
}

// Bullets collects lines that start with a list marker ("-", "*", or "•").
func Bullets(text string) []string {
	var items []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		for _, marker := range []string{"-", "*", "•"} {
			if strings.HasPrefix(line, marker) {
				item := strings.TrimSpace(strings.TrimPrefix(line, marker))
				if item != "" {
					items = append(items, item)
				}
				break
			}
		}
	}
	return items
}

// JSONBlock locates the outermost JSON object in text (tolerating Markdown
// code fences and surrounding prose) and strictly decodes it into v. On any
// failure it returns a *ParseError; it never panics or partially populates v
// beyond what json.Unmarshal does.
func JSONBlock(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return &ParseError{Reason: "no JSON object found in text"}
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return &ParseError{Reason: "JSON decode failed", Err: err}
	}
	return nil
}

// Clamp bounds n to [min, max].
func Clamp(n, min, max int) int {
	if n < min {
		return min
	}
	if n > max {
		return max
	}
	return n
}
