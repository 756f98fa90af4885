package record

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/roach88/changewatch/internal/apperr"
)

// Value is a sealed interface over the scalar types a record field may hold.
// Only Null, String, Int, Float and Bool implement it.
type Value interface {
	recordValue()

	// String returns the stable textual form used for identifiers and
	// display. Null renders as the empty string.
	String() string
}

// Null is an explicit JSON null. An absent field reads as Null.
type Null struct{}

func (Null) recordValue()    {}
func (Null) String() string { return "" }

// String is a text value.
type String string

func (String) recordValue()      {}
func (s String) String() string { return string(s) }

// Int is an integer value. Always int64.
type Int int64

func (Int) recordValue()      {}
func (i Int) String() string { return strconv.FormatInt(int64(i), 10) }

// Float is a finite number that is not an int64 integer. Integral numbers
// are always held as Int, so 12.0 and 12 are the same value.
type Float float64

func (Float) recordValue()      {}
func (f Float) String() string { return formatFloat(float64(f)) }

// formatFloat renders f the way ECMAScript Number.prototype.toString
// does (RFC 8785 section 3.2.2.3): shortest round-trip digits, plain
// notation for 1e-6 <= |f| < 1e21, exponent notation otherwise.
func formatFloat(f float64) string {
	if f == 0 {
		return "0"
	}
	abs := math.Abs(f)
	if abs >= 1e-6 && abs < 1e21 {
		return strconv.FormatFloat(f, 'f', -1, 64)
	}
	s := strconv.FormatFloat(f, 'e', -1, 64)
	mantissa, exp, _ := strings.Cut(s, "e")
	sign := exp[0]
	exp = strings.TrimLeft(exp[1:], "0")
	return mantissa + "e" + string(sign) + exp
}

// floatValue normalizes a parsed number: integral values that fit int64
// become Int, everything else Float. NaN and infinities are rejected.
func floatValue(f float64) (Value, error) {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, fmt.Errorf("non-finite number: %v", f)
	}
	if f == math.Trunc(f) && f >= -(1<<63) && f < 1<<63 {
		return Int(int64(f)), nil
	}
	return Float(f), nil
}

// Bool is a boolean value.
type Bool bool

func (Bool) recordValue()      {}
func (b Bool) String() string { return strconv.FormatBool(bool(b)) }

// Record is one flat entity: field name to scalar value.
//
// The core never mutates a Record it was handed. Field order is not
// significant; every serialization sorts keys.
type Record map[string]Value

// Get returns the value of field, or Null when the field is absent.
func (r Record) Get(field string) Value {
	v, ok := r[field]
	if !ok || v == nil {
		return Null{}
	}
	return v
}

// Fields returns the record's field names in canonical (UTF-16) order.
func (r Record) Fields() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, compareKeysUTF16)
	return keys
}

// Clone returns a shallow copy. Values are immutable so this is a full copy.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Equal reports whether r and other hold equal values for every field.
// A field absent on one side and null on the other compares equal.
func (r Record) Equal(other Record) bool {
	for k := range r {
		if !ValuesEqual(r.Get(k), other.Get(k)) {
			return false
		}
	}
	for k := range other {
		if !ValuesEqual(r.Get(k), other.Get(k)) {
			return false
		}
	}
	return true
}

// ValuesEqual compares two values by type and content. nil is treated as Null.
func ValuesEqual(a, b Value) bool {
	if a == nil {
		a = Null{}
	}
	if b == nil {
		b = Null{}
	}
	return a == b
}

// compareKeysUTF16 orders strings by UTF-16 code units (RFC 8785).
// Go's native string comparison uses UTF-8 bytes, which differs for
// characters outside the BMP.
func compareKeysUTF16(a, b string) int {
	a16 := utf16.Encode([]rune(a))
	b16 := utf16.Encode([]rune(b))

	n := min(len(a16), len(b16))
	for i := 0; i < n; i++ {
		if a16[i] != b16[i] {
			if a16[i] < b16[i] {
				return -1
			}
			return 1
		}
	}
	switch {
	case len(a16) < len(b16):
		return -1
	case len(a16) > len(b16):
		return 1
	}
	return 0
}

// FromMap converts a loosely typed map into a Record.
// Accepted values: nil, string, bool, Go integers and floats, json.Number,
// and Value. Non-finite floats, nested arrays and objects are rejected with
// a validation error.
func FromMap(m map[string]any) (Record, error) {
	r := make(Record, len(m))
	for k, raw := range m {
		v, err := toValue(raw)
		if err != nil {
			return nil, apperr.Validation("record.from_map", "", "field %q: %v", k, err)
		}
		r[k] = v
	}
	return r, nil
}

// FromMaps converts a list of maps, failing on the first malformed entry.
func FromMaps(ms []map[string]any) ([]Record, error) {
	out := make([]Record, len(ms))
	for i, m := range ms {
		r, err := FromMap(m)
		if err != nil {
			return nil, fmt.Errorf("record[%d]: %w", i, err)
		}
		out[i] = r
	}
	return out, nil
}

func toValue(raw any) (Value, error) {
	switch v := raw.(type) {
	case nil:
		return Null{}, nil
	case Float:
		return floatValue(float64(v))
	case Value:
		return v, nil
	case string:
		return String(v), nil
	case bool:
		return Bool(v), nil
	case int:
		return Int(v), nil
	case int8:
		return Int(v), nil
	case int16:
		return Int(v), nil
	case int32:
		return Int(v), nil
	case int64:
		return Int(v), nil
	case uint8:
		return Int(v), nil
	case uint16:
		return Int(v), nil
	case uint32:
		return Int(v), nil
	case json.Number:
		return numberValue(v)
	case float32:
		return floatValue(float64(v))
	case float64:
		return floatValue(v)
	case []any, map[string]any:
		return nil, fmt.Errorf("nested values are not supported: %T", v)
	default:
		return nil, fmt.Errorf("unsupported type: %T", v)
	}
}

func numberValue(n json.Number) (Value, error) {
	if !strings.ContainsAny(string(n), ".eE") {
		if i, err := n.Int64(); err == nil {
			return Int(i), nil
		}
	}
	f, err := n.Float64()
	if err != nil {
		return nil, fmt.Errorf("invalid number: %s", n)
	}
	return floatValue(f)
}

// MarshalJSON writes the record with sorted keys and exact string content.
func (r Record) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	writeRecord(&buf, r, false)
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes a flat JSON object.
func (r *Record) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()

	var raw map[string]any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	if raw == nil {
		return fmt.Errorf("record must be a JSON object")
	}
	rec, err := FromMap(raw)
	if err != nil {
		return err
	}
	*r = rec
	return nil
}
