package diff

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/changewatch/internal/record"
)

// FieldChange is the before/after pair of one compared field.
type FieldChange struct {
	Old record.Value
	New record.Value
}

// MarshalJSON renders {"old":...,"new":...}.
func (c FieldChange) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString(`{"old":`)
	buf.Write(record.MarshalValue(c.Old))
	buf.WriteString(`,"new":`)
	buf.Write(record.MarshalValue(c.New))
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// ItemChange describes a record present on both sides whose compared
// fields differ.
type ItemChange struct {
	ID            string                 `json:"id"`
	Old           record.Record          `json:"old"`
	New           record.Record          `json:"new"`
	ChangedFields map[string]FieldChange `json:"changed_fields"`

	// Price is set only when the detector has a price field and that
	// field is among ChangedFields.
	Price *PriceChange `json:"price,omitempty"`
}

// Fields returns the changed field names in sorted order.
func (c ItemChange) Fields() []string {
	names := make([]string, 0, len(c.ChangedFields))
	for f := range c.ChangedFields {
		names = append(names, f)
	}
	slices.Sort(names)
	return names
}

// Report is the result of one detection call. It is immutable: accessors
// return copies of the underlying slices.
//
// The three buckets are disjoint by identifier.
type Report struct {
	newItems     []record.Record
	removedItems []record.Record
	modified     []ItemChange
}

// NewReport builds a report from the three buckets. The slices are copied.
func NewReport(newItems, removedItems []record.Record, modified []ItemChange) *Report {
	return &Report{
		newItems:     slices.Clone(newItems),
		removedItems: slices.Clone(removedItems),
		modified:     slices.Clone(modified),
	}
}

// NewItems returns records whose identifier exists only in the new list.
func (r *Report) NewItems() []record.Record { return slices.Clone(r.newItems) }

// RemovedItems returns records whose identifier exists only in the old list.
func (r *Report) RemovedItems() []record.Record { return slices.Clone(r.removedItems) }

// ModifiedItems returns the changes for identifiers present on both sides.
func (r *Report) ModifiedItems() []ItemChange { return slices.Clone(r.modified) }

// HasChanges reports whether any bucket is non-empty.
func (r *Report) HasChanges() bool {
	return r.TotalChanges() > 0
}

// TotalChanges is the sum of the bucket sizes.
func (r *Report) TotalChanges() int {
	return len(r.newItems) + len(r.removedItems) + len(r.modified)
}

// Summary renders the counts, e.g. "2 new, 1 removed, 3 modified".
// Zero-count clauses are omitted; an empty report renders "No changes".
func (r *Report) Summary() string {
	var parts []string
	if n := len(r.newItems); n > 0 {
		parts = append(parts, fmt.Sprintf("%d new", n))
	}
	if n := len(r.removedItems); n > 0 {
		parts = append(parts, fmt.Sprintf("%d removed", n))
	}
	if n := len(r.modified); n > 0 {
		parts = append(parts, fmt.Sprintf("%d modified", n))
	}
	if len(parts) == 0 {
		return "No changes"
	}
	return strings.Join(parts, ", ")
}

type reportJSON struct {
	HasChanges    bool            `json:"has_changes"`
	Summary       string          `json:"summary"`
	NewItems      []record.Record `json:"new_items"`
	RemovedItems  []record.Record `json:"removed_items"`
	ModifiedItems []ItemChange    `json:"modified_items"`
}

// MarshalJSON renders the report with empty buckets as [] rather than null.
func (r *Report) MarshalJSON() ([]byte, error) {
	out := reportJSON{
		HasChanges:    r.HasChanges(),
		Summary:       r.Summary(),
		NewItems:      nonNil(r.newItems),
		RemovedItems:  nonNil(r.removedItems),
		ModifiedItems: nonNil(r.modified),
	}
	return json.Marshal(out)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
