package diff

import (
	"strconv"
	"strings"
)

// PriceChange carries parsed numeric prices for a changed price field.
// A nil side means the value could not be parsed.
type PriceChange struct {
	Old *float64 `json:"old"`
	New *float64 `json:"new"`
}

// Difference is New - Old, or 0 when either side is unknown.
func (p PriceChange) Difference() float64 {
	if p.Old == nil || p.New == nil {
		return 0
	}
	return *p.New - *p.Old
}

// PercentChange is the change relative to Old in percent. Returns 0 when
// Old is unknown or zero; an unknown New counts as 0.
func (p PriceChange) PercentChange() float64 {
	if p.Old == nil || *p.Old == 0 {
		return 0
	}
	var n float64
	if p.New != nil {
		n = *p.New
	}
	return (n - *p.Old) / *p.Old * 100
}

// ParsePrice extracts a number from a display price by dropping every
// character other than digits and '.', e.g. "$1,299.50" -> 1299.5.
func ParsePrice(s string) (float64, bool) {
	cleaned := strings.Map(func(r rune) rune {
		if (r >= '0' && r <= '9') || r == '.' {
			return r
		}
		return -1
	}, s)
	if cleaned == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func newPriceChange(c FieldChange) *PriceChange {
	p := &PriceChange{}
	if f, ok := ParsePrice(c.Old.String()); ok {
		p.Old = &f
	}
	if f, ok := ParsePrice(c.New.String()); ok {
		p.New = &f
	}
	return p
}
