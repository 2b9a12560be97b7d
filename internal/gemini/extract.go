package gemini

import (
	"regexp"
	"strings"

	"github.com/tidwall/gjson"
)

var fencePattern = regexp.MustCompile("(?s)```(?:json)?\\s*(.*?)\\s*```")

// extractJSON pulls a JSON document out of model output that may be wrapped
// in markdown fences or surrounded by prose. Returns "" when nothing
// parseable is found.
func extractJSON(text string) string {
	text = strings.TrimSpace(text)
	if gjson.Valid(text) {
		return text
	}

	// Fenced code block first; models frequently wrap JSON in ```json.
	if m := fencePattern.FindStringSubmatch(text); len(m) > 1 {
		if candidate := strings.TrimSpace(m[1]); gjson.Valid(candidate) {
			return candidate
		}
	}

	// Fall back to the first balanced array or object in the text.
	for _, open := range []byte{'[', '{'} {
		if candidate := balancedJSON(text, open); candidate != "" && gjson.Valid(candidate) {
			return candidate
		}
	}

	return ""
}

// balancedJSON returns the first balanced JSON value in text starting with
// the given opening byte, tracking string literals and escapes so braces
// inside values do not confuse the depth count.
func balancedJSON(text string, open byte) string {
	var close byte = '}'
	if open == '[' {
		close = ']'
	}

	start := strings.IndexByte(text, open)
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch {
		case ch == '\\':
			escaped = true
		case ch == '"':
			inString = !inString
		case inString:
		case ch == open:
			depth++
		case ch == close:
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
