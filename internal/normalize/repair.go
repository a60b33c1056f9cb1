package normalize

import (
	"fmt"
	"regexp"
	"strings"
)

// RepairControlChars re-encodes raw control characters (< 0x20) that appear inside
// JSON string literals. Characters outside string literals pass through unchanged.
func RepairControlChars(text string) string {
	var sb strings.Builder
	sb.Grow(len(text) + 16)

	inString := false
	escaped := false
	for i := 0; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false
			sb.WriteByte(c)
			continue
		}

		if c == '\\' && inString {
			// An escape consumes the next byte, so \" never toggles the string state.
			escaped = true
			sb.WriteByte(c)
			continue
		}

		if c == '"' {
			inString = !inString
			sb.WriteByte(c)
			continue
		}

		if inString && c < 0x20 {
			switch c {
			case '\n':
				sb.WriteString(`\n`)
			case '\r':
				sb.WriteString(`\r`)
			case '\t':
				sb.WriteString(`\t`)
			default:
				sb.WriteString(fmt.Sprintf(`\u%04x`, c))
			}
			continue
		}

		sb.WriteByte(c)
	}
	return sb.String()
}

var trailingComma = regexp.MustCompile(`,(\s*[}\]])`)

// StripTrailingCommas removes commas that directly precede a closing } or ].
// String literals are left alone.
func StripTrailingCommas(text string) string {
	var sb strings.Builder
	sb.Grow(len(text))

	inString := false
	escaped := false
	segmentStart := 0
	flush := func(end int) {
		sb.WriteString(trailingComma.ReplaceAllString(text[segmentStart:end], "$1"))
	}

	for i := 0; i < len(text); i++ {
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
				sb.WriteString(text[segmentStart : i+1])
				segmentStart = i + 1
			}
			continue
		}
		if c == '"' {
			flush(i)
			segmentStart = i
			inString = true
		}
	}

	if inString {
		sb.WriteString(text[segmentStart:])
	} else {
		flush(len(text))
	}
	return sb.String()
}
