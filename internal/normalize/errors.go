package normalize

import (
	"fmt"
	"unicode/utf8"
)

// ParseError reports model output that could not be recovered as JSON.
// Excerpt holds at most ExcerptLength bytes of the raw text, plus an ellipsis when cut.
type ParseError struct {
	Message string
	Excerpt string
	Cause   error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("parse error: %s: %v", e.Message, e.Cause)
	}
	return fmt.Sprintf("parse error: %s", e.Message)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

func newParseError(message, raw string, cause error) *ParseError {
	return &ParseError{
		Message: message,
		Excerpt: Excerpt(raw, ExcerptLength),
		Cause:   cause,
	}
}

// Excerpt returns a prefix of s no longer than limit bytes, cut on a rune boundary.
func Excerpt(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "…"
}
