package notify

import (
	"fmt"
	"strings"

	"github.com/roach88/changewatch/internal/record"
)

// Display limits shared by the channels.
const (
	consoleItemLimit  = 10
	emailItemLimit    = 10
	telegramItemLimit = 5

	summaryFieldLimit = 3
)

// summarize renders up to summaryFieldLimit fields of r as
// "field: value | field: value". Fields are taken in sorted order.
func summarize(r record.Record) string {
	fields := r.Fields()
	if len(fields) > summaryFieldLimit {
		fields = fields[:summaryFieldLimit]
	}
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = fmt.Sprintf("%s: %s", f, r.Get(f))
	}
	return strings.Join(parts, " | ")
}

// firstValue returns the value of the first sorted field, or "Unknown" for
// an empty record.
func firstValue(r record.Record) string {
	fields := r.Fields()
	if len(fields) == 0 {
		return "Unknown"
	}
	return r.Get(fields[0]).String()
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

// head returns the first n elements of s and how many were left out.
func head[T any](s []T, n int) ([]T, int) {
	if len(s) <= n {
		return s, 0
	}
	return s[:n], len(s) - n
}
