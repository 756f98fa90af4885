// Package diff compares two record lists and reports what changed.
//
// Detection is purely in-memory and never fails on record content: absent
// fields compare as null and duplicate identifiers collapse to the
// last-seen record of each list. Input that cannot be diffed meaningfully
// (an empty key-field list) is rejected when the detector is built.
package diff

import (
	"slices"

	"github.com/roach88/changewatch/internal/apperr"
	"github.com/roach88/changewatch/internal/record"
)

// Detector computes a change report between an old and a new record list.
type Detector interface {
	Detect(old, cur []record.Record) *Report
}

// SetDetector is the set-plus-field detector: identity comes from key
// fields, modification sensitivity from compare fields.
type SetDetector struct {
	keyFields     []string
	compareFields []string
	priceField    string
}

// Option configures a SetDetector.
type Option func(*SetDetector)

// WithPriceField attaches parsed price deltas to changes of field.
func WithPriceField(field string) Option {
	return func(d *SetDetector) {
		d.priceField = field
	}
}

// NewSetDetector validates the field lists and returns a detector.
//
// keyFields must be non-empty and contain no empty names. compareFields may
// be empty, in which case each detection compares the fields of the old
// list's first record.
func NewSetDetector(keyFields, compareFields []string, opts ...Option) (*SetDetector, error) {
	if len(keyFields) == 0 {
		return nil, apperr.Validation("diff.new_detector", "", "key fields must not be empty")
	}
	for i, f := range keyFields {
		if f == "" {
			return nil, apperr.Validation("diff.new_detector", "", "key field %d is empty", i)
		}
	}
	for i, f := range compareFields {
		if f == "" {
			return nil, apperr.Validation("diff.new_detector", "", "compare field %d is empty", i)
		}
	}

	d := &SetDetector{
		keyFields:     slices.Clone(keyFields),
		compareFields: slices.Clone(compareFields),
	}
	for _, opt := range opts {
		opt(d)
	}
	return d, nil
}

// KeyFields returns the identity fields.
func (d *SetDetector) KeyFields() []string { return slices.Clone(d.keyFields) }

// Detect compares old against cur.
//
// Wholesale additions and removals short-circuit: with an empty old list
// every new record is reported verbatim as new (duplicates included), and
// vice versa. Otherwise both lists are indexed by identifier, partitioned
// by set membership and common identifiers are compared field by field.
func (d *SetDetector) Detect(old, cur []record.Record) *Report {
	switch {
	case len(old) == 0 && len(cur) == 0:
		return NewReport(nil, nil, nil)
	case len(old) == 0:
		return NewReport(cur, nil, nil)
	case len(cur) == 0:
		return NewReport(nil, old, nil)
	}

	oldIdx := buildIndex(old, d.keyFields)
	newIdx := buildIndex(cur, d.keyFields)
	added, removed, common := CompareSets(oldIdx.ids, newIdx.ids)

	newItems := make([]record.Record, 0, len(added))
	for _, id := range added {
		newItems = append(newItems, newIdx.byID[id])
	}
	removedItems := make([]record.Record, 0, len(removed))
	for _, id := range removed {
		removedItems = append(removedItems, oldIdx.byID[id])
	}

	fields := d.fieldsToCompare(old)
	var modified []ItemChange
	for _, id := range common {
		o, n := oldIdx.byID[id], newIdx.byID[id]
		changes := CompareFields(o, n, fields)
		if len(changes) == 0 {
			continue
		}
		change := ItemChange{ID: id, Old: o, New: n, ChangedFields: changes}
		if fc, ok := changes[d.priceField]; ok && d.priceField != "" {
			change.Price = newPriceChange(fc)
		}
		modified = append(modified, change)
	}

	return &Report{newItems: newItems, removedItems: removedItems, modified: modified}
}

// HasChanges is a convenience wrapper around Detect.
func (d *SetDetector) HasChanges(old, cur []record.Record) bool {
	return d.Detect(old, cur).HasChanges()
}

func (d *SetDetector) fieldsToCompare(old []record.Record) []string {
	if len(d.compareFields) > 0 {
		return d.compareFields
	}
	return old[0].Fields()
}
