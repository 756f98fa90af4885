package diff

import (
	"github.com/roach88/changewatch/internal/record"
)

// index maps identifiers to records. ids keeps first-seen order so output
// is deterministic; byID keeps the last-seen record for a duplicated id.
type index struct {
	ids  []string
	byID map[string]record.Record
}

func buildIndex(records []record.Record, keyFields []string) index {
	idx := index{
		ids:  make([]string, 0, len(records)),
		byID: make(map[string]record.Record, len(records)),
	}
	for _, r := range records {
		id := record.Identifier(r, keyFields)
		if _, seen := idx.byID[id]; !seen {
			idx.ids = append(idx.ids, id)
		}
		idx.byID[id] = r
	}
	return idx
}

// CompareSets partitions two identifier lists with hash-set membership.
// added follows newIDs order, removed follows oldIDs order, common follows
// newIDs order. Inputs are expected to be free of duplicates.
func CompareSets(oldIDs, newIDs []string) (added, removed, common []string) {
	oldSet := make(map[string]struct{}, len(oldIDs))
	for _, id := range oldIDs {
		oldSet[id] = struct{}{}
	}
	newSet := make(map[string]struct{}, len(newIDs))
	for _, id := range newIDs {
		newSet[id] = struct{}{}
	}

	for _, id := range newIDs {
		if _, ok := oldSet[id]; ok {
			common = append(common, id)
		} else {
			added = append(added, id)
		}
	}
	for _, id := range oldIDs {
		if _, ok := newSet[id]; !ok {
			removed = append(removed, id)
		}
	}
	return added, removed, common
}

// CompareFields returns the fields whose values differ by exact equality.
// Absent fields compare as Null. Returns nil when nothing differs.
func CompareFields(old, cur record.Record, fields []string) map[string]FieldChange {
	var changes map[string]FieldChange
	for _, f := range fields {
		o, n := old.Get(f), cur.Get(f)
		if record.ValuesEqual(o, n) {
			continue
		}
		if changes == nil {
			changes = make(map[string]FieldChange)
		}
		changes[f] = FieldChange{Old: o, New: n}
	}
	return changes
}
