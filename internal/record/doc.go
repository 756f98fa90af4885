// Package record is the fingerprint layer: the flat Record model, its
// canonical JSON form and the hashes derived from it.
//
// This package imports nothing internal except apperr. The diff engine, the
// snapshot store and the monitor all build on it.
//
// Key constraints:
//   - Values are scalar only: Null, String, Int, Float, Bool. Integral
//     numbers are always Int; Float renders in ECMAScript number form.
//   - An absent field reads as Null everywhere (identifiers, comparison, hashing).
//   - Canonical form sorts keys by UTF-16 code units and NFC-normalizes
//     strings; it never reorders a list.
//   - Hashes are SHA-256 with domain separation, rendered as hex.
package record
