package jsonfix

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// Kind is the declared type of an extracted field.
type Kind string

const (
	KindString Kind = "string"
	KindNumber Kind = "number"
	KindBool   Kind = "boolean"
)

// Field describes one property to pull out of a flat JSON object.
type Field struct {
	Name string
	Kind Kind
}

var propertyName = regexp.MustCompile(`"([^"]+)"\s*:`)

// ExtractFields reads the named fields from the last {...} block in text
// without requiring the block to be valid JSON. Each value runs up to the
// next "name": marker, so unescaped quotes inside string values survive.
// Every field must be present.
func ExtractFields(text string, fields []Field) (map[string]any, error) {
	if len(fields) == 0 {
		return nil, fmt.Errorf("no fields requested")
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty input", ErrUnparseable)
	}

	end := strings.LastIndex(text, "}")
	if end < 0 {
		return nil, fmt.Errorf("%w: no closing brace", ErrUnparseable)
	}
	start := strings.LastIndex(text[:end], "{")
	if start < 0 {
		return nil, fmt.Errorf("%w: no opening brace before the closing brace", ErrUnparseable)
	}
	body := text[start+1 : end]

	wanted := make(map[string]Kind, len(fields))
	for _, f := range fields {
		wanted[f.Name] = f.Kind
	}

	out := make(map[string]any, len(fields))
	marks := propertyName.FindAllStringSubmatchIndex(body, -1)
	for i, m := range marks {
		name := body[m[2]:m[3]]
		kind, ok := wanted[name]
		if !ok {
			continue
		}
		valEnd := len(body)
		if i+1 < len(marks) {
			valEnd = marks[i+1][0]
		}
		raw := strings.TrimSpace(body[m[1]:valEnd])
		raw = strings.TrimSpace(strings.TrimSuffix(raw, ","))

		v, err := convert(raw, kind)
		if err != nil {
			return nil, fmt.Errorf("%w: field %q: %v", ErrUnparseable, name, err)
		}
		out[name] = v
	}

	for _, f := range fields {
		if _, ok := out[f.Name]; !ok {
			return nil, fmt.Errorf("%w: field %q not found", ErrUnparseable, f.Name)
		}
	}
	return out, nil
}

func convert(raw string, kind Kind) (any, error) {
	switch kind {
	case KindString:
		if len(raw) >= 2 && strings.HasPrefix(raw, `"`) && strings.HasSuffix(raw, `"`) {
			raw = raw[1 : len(raw)-1]
		}
		return strings.ReplaceAll(raw, `\"`, `"`), nil
	case KindBool:
		switch raw {
		case "true":
			return true, nil
		case "false":
			return false, nil
		}
		return nil, fmt.Errorf("invalid boolean %q", raw)
	case KindNumber:
		n, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", raw)
		}
		return n, nil
	default:
		return nil, fmt.Errorf("unsupported kind %q", kind)
	}
}
