// Package prompt assembles the prompts sent to the completion service:
// ${name} template substitution, the adorned user prompt for continuing
// sessions and dual-encoder composition.
package prompt

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
)

var varRef = regexp.MustCompile(`\$\{(.*?)\}`)

// ErrUndefinedVar is returned when a template references a name missing
// from the substitution map.
var ErrUndefinedVar = errors.New("undefined template variable")

// FindVarNames returns the unique variable names referenced as ${name} in
// tmpl, in order of first appearance.
func FindVarNames(tmpl string) []string {
	seen := make(map[string]bool)
	var names []string
	for _, m := range varRef.FindAllStringSubmatch(tmpl, -1) {
		name := strings.TrimSpace(m[1])
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		names = append(names, name)
	}
	return names
}

// Substitute replaces every ${name} in tmpl with vars[name]. Every
// referenced name must be present in vars; substituted values are not
// themselves expanded.
func Substitute(tmpl string, vars map[string]string) (string, error) {
	if strings.TrimSpace(tmpl) == "" {
		return "", errors.New("template is empty")
	}
	for _, name := range FindVarNames(tmpl) {
		if _, ok := vars[name]; !ok {
			return "", fmt.Errorf("%w: %s", ErrUndefinedVar, name)
		}
	}
	return varRef.ReplaceAllStringFunc(tmpl, func(ref string) string {
		name := strings.TrimSpace(ref[2 : len(ref)-1])
		return vars[name]
	}), nil
}

// AppendEOS ensures s ends with '.', '!' or '?', ignoring trailing space.
func AppendEOS(s string) (string, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return "", errors.New("cannot terminate an empty sentence")
	}
	switch trimmed[len(trimmed)-1] {
	case '.', '!', '?':
		return s, nil
	}
	return s + ".", nil
}
