package intent

import (
	"errors"
	"fmt"
	"strconv"
)

// ErrWrongType is returned when a property exists but does not hold the
// type its caller declared for it.
var ErrWrongType = errors.New("intent property has the wrong type")

// Set is the merged output of every detector that ran for a turn. The same
// intent id may appear more than once.
type Set []Result

// Add appends a result, e.g. a follow-up detection for an existing intent.
func (s *Set) Add(r Result) {
	*s = append(*s, r)
}

// Has reports whether any result was produced for id.
func (s Set) Has(id ID) bool {
	for _, r := range s {
		if r.IntentID == id {
			return true
		}
	}
	return false
}

// children visits every child record of every result for id, stopping early
// when fn returns false.
func (s Set) children(id ID, fn func(Child) (bool, error)) error {
	for _, r := range s {
		if r.IntentID != id {
			continue
		}
		for _, c := range r.Children {
			more, err := fn(c)
			if err != nil {
				return err
			}
			if !more {
				return nil
			}
		}
	}
	return nil
}

// Bool returns the first value of prop under id. found is false when the
// intent or property was never produced for this turn. Every record is
// type checked, not only the first one carrying prop.
func (s Set) Bool(id ID, prop string) (value, found bool, err error) {
	err = s.children(id, func(c Child) (bool, error) {
		raw, ok := c[prop]
		if !ok {
			return true, nil
		}
		b, ok := raw.(bool)
		if !ok {
			return false, fmt.Errorf("%s.%s is %T, want bool: %w", id, prop, raw, ErrWrongType)
		}
		if !found {
			value, found = b, true
		}
		return true, nil
	})
	if err != nil {
		return false, false, err
	}
	return value, found, nil
}

// String returns the first string value of prop under id. When linked is
// non-empty the value of linked on the same record is returned instead,
// coerced to text if it is a boolean or number.
func (s Set) String(id ID, prop, linked string) (value string, found bool, err error) {
	err = s.children(id, func(c Child) (bool, error) {
		raw, ok := c[prop]
		if !ok {
			return true, nil
		}
		str, ok := raw.(string)
		if !ok {
			return false, fmt.Errorf("%s.%s is %T, want string: %w", id, prop, raw, ErrWrongType)
		}
		if linked == "" {
			value, found = str, true
			return false, nil
		}
		text, ok, cerr := coerceText(c[linked])
		if cerr != nil {
			return false, fmt.Errorf("%s.%s: %w", id, linked, cerr)
		}
		value, found = text, ok
		return false, nil
	})
	if err != nil {
		return "", false, err
	}
	return value, found, nil
}

// Contains reports whether any record under id has prop equal to want.
func (s Set) Contains(id ID, prop, want string) (bool, error) {
	_, found, err := s.Find(id, prop, want)
	return found, err
}

// Find returns the first record under id whose prop equals want. Records
// whose prop is not a string are a type error even if another record
// matches later.
func (s Set) Find(id ID, prop, want string) (Child, bool, error) {
	var match Child
	err := s.children(id, func(c Child) (bool, error) {
		raw, ok := c[prop]
		if !ok {
			return true, nil
		}
		str, ok := raw.(string)
		if !ok {
			return false, fmt.Errorf("%s.%s is %T, want string: %w", id, prop, raw, ErrWrongType)
		}
		if str == want {
			match = c
			return false, nil
		}
		return true, nil
	})
	if err != nil {
		return nil, false, err
	}
	return match, match != nil, nil
}

// Text returns c[prop] as text, coercing booleans and numbers.
func (c Child) Text(prop string) (string, bool, error) {
	return coerceText(c[prop])
}

func coerceText(raw any) (string, bool, error) {
	switch v := raw.(type) {
	case nil:
		return "", false, nil
	case string:
		return v, true, nil
	case bool:
		return strconv.FormatBool(v), true, nil
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true, nil
	case int:
		return strconv.Itoa(v), true, nil
	default:
		return "", false, fmt.Errorf("value is %T, not coercible to text: %w", raw, ErrWrongType)
	}
}
