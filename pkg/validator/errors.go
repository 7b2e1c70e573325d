package validator

import (
	"fmt"
	"net/url"
	"sort"
	"strings"
)

// Errors maps a JSON field name to its failure messages.
type Errors url.Values

func (e Errors) Error() string {
	if len(e) == 0 {
		return "validation failed"
	}

	fields := make([]string, 0, len(e))
	for f := range e {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		if msgs := e[f]; len(msgs) > 0 {
			parts = append(parts, fmt.Sprintf("%s: %s", f, msgs[0]))
		}
	}
	return "validation failed: " + strings.Join(parts, ", ")
}

// Add appends message for field.
func (e Errors) Add(field, message string) {
	url.Values(e).Add(field, message)
}

// Get returns the first message for field.
func (e Errors) Get(field string) string {
	return url.Values(e).Get(field)
}

// Has reports whether field failed.
func (e Errors) Has(field string) bool {
	return len(e[field]) > 0
}
