// Package clean tidies a fetched record list before it reaches the differ.
//
// Steps run in a fixed order:
//
//  1. normalize: collapse whitespace runs in the named string fields
//  2. require: drop records whose required fields are null or blank
//  3. dedupe: keep the first record of each identifier
//
// Normalizing first means "Blue  Lamp" and "Blue Lamp" share an identifier
// by the time duplicates are removed. Input records are never mutated.
package clean

import (
	"strings"

	"github.com/roach88/changewatch/internal/record"
)

// Cleaner holds the per-source cleaning rules. The zero value passes
// records through unchanged.
type Cleaner struct {
	// NormalizeFields are string fields whose whitespace is collapsed to
	// single spaces and trimmed.
	NormalizeFields []string

	// RequiredFields must be present and non-blank for a record to be kept.
	RequiredFields []string

	// DedupeKeys enables duplicate removal by identifier when non-empty.
	DedupeKeys []string
}

// Stats counts what Apply removed.
type Stats struct {
	Missing    int // dropped for a missing required field
	Duplicates int // dropped as a repeated identifier
}

// Dropped is the total number of removed records.
func (s Stats) Dropped() int {
	return s.Missing + s.Duplicates
}

// Enabled reports whether c changes anything.
func (c *Cleaner) Enabled() bool {
	return c != nil && (len(c.NormalizeFields) > 0 || len(c.RequiredFields) > 0 || len(c.DedupeKeys) > 0)
}

// Apply returns the cleaned list. A nil or empty Cleaner returns records
// as is.
func (c *Cleaner) Apply(records []record.Record) ([]record.Record, Stats) {
	var stats Stats
	if !c.Enabled() {
		return records, stats
	}

	out := make([]record.Record, 0, len(records))
	seen := make(map[string]struct{}, len(records))
	for _, r := range records {
		r = c.normalize(r)

		if !c.hasRequired(r) {
			stats.Missing++
			continue
		}

		if len(c.DedupeKeys) > 0 {
			id := record.Identifier(r, c.DedupeKeys)
			if _, dup := seen[id]; dup {
				stats.Duplicates++
				continue
			}
			seen[id] = struct{}{}
		}

		out = append(out, r)
	}
	return out, stats
}

func (c *Cleaner) normalize(r record.Record) record.Record {
	var copied record.Record
	for _, f := range c.NormalizeFields {
		s, ok := r.Get(f).(record.String)
		if !ok {
			continue
		}
		collapsed := CollapseSpace(string(s))
		if collapsed == string(s) {
			continue
		}
		if copied == nil {
			copied = r.Clone()
		}
		copied[f] = record.String(collapsed)
	}
	if copied == nil {
		return r
	}
	return copied
}

func (c *Cleaner) hasRequired(r record.Record) bool {
	for _, f := range c.RequiredFields {
		switch v := r.Get(f).(type) {
		case record.Null:
			return false
		case record.String:
			if strings.TrimSpace(string(v)) == "" {
				return false
			}
		}
	}
	return true
}

// CollapseSpace replaces every whitespace run with one space and trims
// both ends.
func CollapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
