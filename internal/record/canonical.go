package record

import (
	"bytes"
	"encoding/json"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// CanonicalForm produces RFC 8785 style canonical JSON for one record.
// This is the ONLY serialization used for content hashing.
//
// Differences from json.Marshal:
//  1. Object keys sorted by UTF-16 code units
//  2. No HTML escaping (< > & are kept literally)
//  3. Strings are NFC normalized
//  4. U+2028 and U+2029 are emitted literally
func CanonicalForm(r Record) []byte {
	var buf bytes.Buffer
	writeRecord(&buf, r, true)
	return buf.Bytes()
}

// CanonicalList produces the canonical JSON array for a record list.
// The list order is preserved; only keys within each record are sorted.
func CanonicalList(records []Record) []byte {
	var buf bytes.Buffer
	writeList(&buf, records, true)
	return buf.Bytes()
}

// MarshalRecords serializes a record list for storage: sorted keys, no
// HTML escaping, strings kept byte-for-byte so a stored list decodes to
// exactly what was saved.
func MarshalRecords(records []Record) []byte {
	var buf bytes.Buffer
	writeList(&buf, records, false)
	return buf.Bytes()
}

// UnmarshalRecords decodes a JSON array of flat objects.
// Returns an empty, non-nil slice for "[]".
func UnmarshalRecords(data []byte) ([]Record, error) {
	var out []Record
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("unmarshal records: %w", err)
	}
	if out == nil {
		out = []Record{}
	}
	return out, nil
}

func writeList(buf *bytes.Buffer, records []Record, normalize bool) {
	buf.WriteByte('[')
	for i, r := range records {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeRecord(buf, r, normalize)
	}
	buf.WriteByte(']')
}

func writeRecord(buf *bytes.Buffer, r Record, normalize bool) {
	buf.WriteByte('{')
	for i, k := range r.Fields() {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeString(buf, k, normalize)
		buf.WriteByte(':')
		writeValue(buf, r.Get(k), normalize)
	}
	buf.WriteByte('}')
}

func writeValue(buf *bytes.Buffer, v Value, normalize bool) {
	switch val := v.(type) {
	case String:
		writeString(buf, string(val), normalize)
	case Int, Float, Bool:
		buf.WriteString(val.String())
	default:
		buf.WriteString("null")
	}
}

// writeString encodes s as a JSON string. Only control characters,
// backslash and quote are escaped.
func writeString(buf *bytes.Buffer, s string, normalize bool) {
	if normalize {
		s = norm.NFC.String(s)
	}

	var tmp bytes.Buffer
	enc := json.NewEncoder(&tmp)
	enc.SetEscapeHTML(false)
	// Encoding a string cannot fail.
	_ = enc.Encode(s)

	out := bytes.TrimSuffix(tmp.Bytes(), []byte("\n"))
	buf.Write(unescapeLineSeparators(out))
}

// unescapeLineSeparators turns the \u2028 and \u2029 escapes emitted by
// encoding/json back into literal characters. An escape preceded by an odd
// number of backslashes is literal text and is left alone.
func unescapeLineSeparators(data []byte) []byte {
	if !bytes.Contains(data, []byte(`\u202`)) {
		return data
	}

	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		if data[i] == '\\' && i+5 < len(data) &&
			data[i+1] == 'u' && data[i+2] == '2' && data[i+3] == '0' && data[i+4] == '2' &&
			(data[i+5] == '8' || data[i+5] == '9') && trailingBackslashes(out)%2 == 0 {
			if data[i+5] == '8' {
				out = append(out, "\u2028"...)
			} else {
				out = append(out, "\u2029"...)
			}
			i += 5
			continue
		}
		out = append(out, data[i])
	}
	return out
}

func trailingBackslashes(b []byte) int {
	n := 0
	for j := len(b) - 1; j >= 0 && b[j] == '\\'; j-- {
		n++
	}
	return n
}

// MarshalValue encodes a single value as JSON with exact string content.
func MarshalValue(v Value) []byte {
	var buf bytes.Buffer
	if v == nil {
		v = Null{}
	}
	writeValue(&buf, v, false)
	return buf.Bytes()
}
