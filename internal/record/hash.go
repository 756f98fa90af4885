package record

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Domain prefixes for content hashing. The version suffix allows a future
// algorithm migration without colliding with stored hashes.
const (
	DomainRecord  = "changewatch/record/v1"
	DomainDataset = "changewatch/dataset/v1"
)

// KeySeparator joins key-field values into an identifier. Values that
// themselves contain the separator can collide; such records merge.
const KeySeparator = "||"

// hashWithDomain computes SHA256(domain + 0x00 + data) as lowercase hex.
// The null byte prevents domain/data boundary ambiguity.
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Identifier joins the stringified values of keyFields, in order, with
// KeySeparator. Absent fields contribute the empty string.
//
// Records with equal key-field values share an identifier regardless of
// their other fields. An empty keyFields list maps every record to ""; callers
// must reject it before detection.
func Identifier(r Record, keyFields []string) string {
	parts := make([]string, len(keyFields))
	for i, f := range keyFields {
		parts[i] = r.Get(f).String()
	}
	return strings.Join(parts, KeySeparator)
}

// Project returns a record holding exactly fields, absent ones as Null.
func Project(r Record, fields []string) Record {
	out := make(Record, len(fields))
	for _, f := range fields {
		out[f] = r.Get(f)
	}
	return out
}

// ContentHash hashes the canonical form of r restricted to fields.
// With no fields the whole record is hashed.
func ContentHash(r Record, fields []string) string {
	if len(fields) > 0 {
		r = Project(r, fields)
	}
	return hashWithDomain(DomainRecord, CanonicalForm(r))
}

// DatasetHash fingerprints a whole record list.
//
// Keys are sorted within each record but the list itself is NOT reordered:
// the same records in a different order produce a different hash.
func DatasetHash(records []Record) string {
	return hashWithDomain(DomainDataset, CanonicalList(records))
}
