// Package jsonfix turns the loosely structured output of a language model
// into parseable JSON.
package jsonfix

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// ErrUnparseable is returned when text cannot be coerced into JSON even
// after repair.
var ErrUnparseable = errors.New("unparseable structured output")

var (
	unquotedKey     = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)\s*:`)
	danglingQuoteLn = regexp.MustCompile(`(?m)^\s*"\s*,\s*(\r?\n|$)`)
)

// Parse sanitizes text and decodes it into a generic JSON value: an object
// becomes map[string]any, an array []any.
func Parse(text string) (any, error) {
	fixed, err := Sanitize(text)
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal([]byte(fixed), &v); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return v, nil
}

// Sanitize applies the repair chain: isolate the outermost object or array,
// strip comments, quote bare keys, run a general repair, and drop lines
// holding a lone quote and comma.
func Sanitize(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", fmt.Errorf("%w: empty input", ErrUnparseable)
	}
	if !strings.ContainsAny(text, "{[") {
		return "", fmt.Errorf("%w: no object or array found", ErrUnparseable)
	}
	s := ExtractOutermost(text)
	s = StripComments(s)
	s = QuoteKeys(s)

	repaired, err := jsonrepair.JSONRepair(s)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrUnparseable, err)
	}
	return danglingQuoteLn.ReplaceAllString(repaired, ""), nil
}

// ExtractOutermost returns the first balanced {...} or [...] in s, ignoring
// braces inside string literals. Text without any opener is returned
// unchanged; an unbalanced opener yields everything from the opener on.
func ExtractOutermost(s string) string {
	start := strings.IndexAny(s, "{[")
	if start < 0 {
		return s
	}
	open := s[start]
	closeCh := byte('}')
	if open == '[' {
		closeCh = ']'
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case open:
			depth++
		case closeCh:
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return s[start:]
}

// StripComments removes // line comments and /* */ block comments that
// appear outside string literals.
func StripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == '"' {
			inString = true
			b.WriteByte(c)
			continue
		}
		if c == '/' && i+1 < len(s) {
			switch s[i+1] {
			case '/':
				for i < len(s) && s[i] != '\n' && s[i] != '\r' {
					i++
				}
				if i < len(s) {
					b.WriteByte(s[i])
				}
				continue
			case '*':
				end := strings.Index(s[i+2:], "*/")
				if end < 0 {
					return b.String()
				}
				i += end + 3
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

// QuoteKeys wraps bare object keys in double quotes. String literals are
// left untouched.
func QuoteKeys(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 16)
	segStart := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
				b.WriteString(s[segStart : i+1])
				segStart = i + 1
			}
			continue
		}
		if c == '"' {
			b.WriteString(unquotedKey.ReplaceAllString(s[segStart:i], `$1"$2":`))
			segStart = i
			inString = true
		}
	}
	if inString {
		b.WriteString(s[segStart:])
	} else {
		b.WriteString(unquotedKey.ReplaceAllString(s[segStart:], `$1"$2":`))
	}
	return b.String()
}
