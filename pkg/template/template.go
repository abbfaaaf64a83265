// Package template implements the {{var}} substitution engine used in
// message content. It is deliberately small: dot-path lookup over script
// variables plus a fixed set of named filters. Anything resembling a real
// expression language lives behind the engine's condition evaluator, not
// here.
package template

import (
	"regexp"
	"strings"

	"github.com/mattsolo1/grove-script/pkg/value"
)

// spanRegex matches a {{...}} substitution span. The body may not contain
// braces, so nested or unbalanced spans are left untouched.
var spanRegex = regexp.MustCompile(`\{\{([^{}]*)\}\}`)

// Filter transforms a rendered value. Filters are applied left to right
// in the order they appear after the dot-path expression.
type Filter func(string) string

var filters = map[string]Filter{
	"upper": strings.ToUpper,
	"lower": strings.ToLower,
	"trim":  strings.TrimSpace,
}

// Render substitutes every {{path|filter...}} span in text using the
// given variables. Missing or unresolvable paths render as the empty
// string; unknown filters are no-ops. Text without spans is returned
// unchanged.
func Render(text string, vars value.Map) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	return spanRegex.ReplaceAllStringFunc(text, func(span string) string {
		body := span[2 : len(span)-2]
		return renderSpan(body, vars)
	})
}

func renderSpan(body string, vars value.Map) string {
	parts := strings.Split(body, "|")
	path := strings.TrimSpace(parts[0])
	if path == "" {
		return ""
	}

	resolved, ok := value.Lookup(vars, path)
	if !ok {
		return ""
	}
	out := resolved.String()

	for _, name := range parts[1:] {
		if f, known := filters[strings.TrimSpace(name)]; known {
			out = f(out)
		}
	}
	return out
}

// HasSpans reports whether text contains at least one substitution span.
func HasSpans(text string) bool {
	return spanRegex.MatchString(text)
}
