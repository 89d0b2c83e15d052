package features

import (
	"sort"
	"strings"
)

// Record maps feature names to values
type Record map[string]Value

// Clone returns a shallow copy of the record
func (r Record) Clone() Record {
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Keys returns the record keys sorted alphabetically
func (r Record) Keys() []string {
	keys := make([]string, 0, len(r))
	for k := range r {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Missing returns schema features that have no non-empty value in record, in schema
// order. It never mutates its inputs and is always recomputed from scratch.
func Missing(record Record, schema *Schema) []string {
	var missing []string
	for _, name := range schema.names {
		v, ok := record[name]
		if !ok || v.IsEmpty() {
			missing = append(missing, name)
		}
	}
	return missing
}

// MissingFor is Missing restricted to one disease subset
func MissingFor(record Record, schema *Schema, disease string) []string {
	d, ok := schema.Disease(disease)
	if !ok {
		return nil
	}
	var missing []string
	for _, name := range d.Features {
		v, ok := record[name]
		if !ok || v.IsEmpty() {
			missing = append(missing, name)
		}
	}
	return missing
}

// Complete reports whether record covers every schema feature
func Complete(record Record, schema *Schema) bool {
	return len(Missing(record, schema)) == 0
}

// Merge builds the final record from extracted values and manual entries.
// Merge policy: a non-blank manual entry always replaces an extracted value for the
// same key. Manual entries are typed with ParseValue; blank entries are ignored.
func Merge(extracted Record, manual map[string]string) Record {
	out := extracted.Clone()
	for k, raw := range manual {
		if strings.TrimSpace(raw) == "" {
			continue
		}
		out[k] = ParseValue(raw)
	}
	return out
}
