// Package normalize recovers structured JSON from free-form model output.
// It is provider-agnostic: it only ever sees text.
package normalize

import (
	"encoding/json"
	"regexp"
	"strings"
)

// ExcerptLength bounds the raw text carried by a ParseError.
const ExcerptLength = 200

// Parse extracts and decodes the JSON object embedded in raw model text.
// Each stage is attempted only if the previous decode failed:
// fence stripping and object extraction, direct decode, control-character
// repair inside string literals, then trailing-comma removal.
func Parse(raw string) (json.RawMessage, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, newParseError("model output is empty", raw, nil)
	}

	candidate := ExtractObject(StripCodeFences(raw))
	if candidate == "" {
		return nil, newParseError("no JSON object found in model output", raw, nil)
	}

	var lastErr error
	for _, attempt := range []func(string) string{
		identity,
		RepairControlChars,
		func(s string) string { return StripTrailingCommas(RepairControlChars(s)) },
	} {
		text := attempt(candidate)
		var probe map[string]json.RawMessage
		if err := json.Unmarshal([]byte(text), &probe); err != nil {
			lastErr = err
			continue
		}
		if len(probe) == 0 {
			return nil, newParseError("model output decoded to an empty object", raw, nil)
		}
		return json.RawMessage(text), nil
	}

	return nil, newParseError("model output is not recoverable JSON", raw, lastErr)
}

func identity(s string) string { return s }

var fenceLine = regexp.MustCompile("^```[A-Za-z0-9_-]*[ \t]*$")

// StripCodeFences removes a leading ``` (optionally with a language tag) line and
// a trailing ``` line. Text without fences is returned trimmed.
func StripCodeFences(text string) string {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "```") {
		return text
	}

	if idx := strings.Index(text, "\n"); idx >= 0 && fenceLine.MatchString(strings.TrimSpace(text[:idx])) {
		text = text[idx+1:]
	} else {
		text = strings.TrimPrefix(text, "```")
	}
	if idx := strings.LastIndex(text, "```"); idx >= 0 {
		text = text[:idx]
	}
	return strings.TrimSpace(text)
}

// ExtractObject returns the substring from the first '{' to its matching '}'.
// Braces inside string literals are ignored. When the object never balances
// (truncated output, stray quotes) it falls back to the last '}' in the text.
// Returns "" when there is no '{' followed by a '}'.
func ExtractObject(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		if inString {
			switch c {
			case '\\':
				escaped = true
			case '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	end := strings.LastIndex(text, "}")
	if end < start {
		return ""
	}
	return text[start : end+1]
}
