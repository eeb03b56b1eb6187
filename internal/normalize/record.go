package normalize

import (
	"crypto/sha256"
	"encoding/hex"
)

// RawRow maps a source column name to its raw string value
type RawRow map[string]string

// Record is a fully typed row. Every target field of the rule set is present
// in Values, holding a typed value (string, int64, decimal.Decimal, time.Time,
// bool) or nil.
type Record struct {
	Ordinal int
	Key     string
	Values  map[string]any
}

// Value returns the typed value of a target field
func (r Record) Value(field string) any {
	return r.Values[field]
}

// Normalize applies every rule to the row. It never fails: fields that cannot
// be coerced are reported as defects and stored as nil, except overflow
// defects, whose best-effort value is kept so the store can decide.
func Normalize(row RawRow, ordinal int, rules RuleSet) (Record, []Defect) {
	rec := Record{
		Ordinal: ordinal,
		Key:     RowKey(row, rules),
		Values:  make(map[string]any, len(rules)),
	}

	var defects []Defect
	for _, rule := range rules {
		value, defect := Coerce(row[rule.Source], rule)
		if defect != nil {
			defect.Ordinal = ordinal
			defects = append(defects, *defect)
			if defect.Reason != ReasonOverflow {
				value = nil
			}
		}
		rec.Values[rule.Target] = value
	}
	return rec, defects
}

// RowKey derives the idempotency key of a raw row from its rule-ordered source values
func RowKey(row RawRow, rules RuleSet) string {
	h := sha256.New()
	for _, rule := range rules {
		h.Write([]byte(row[rule.Source]))
		h.Write([]byte{0x1f})
	}
	return hex.EncodeToString(h.Sum(nil))
}
