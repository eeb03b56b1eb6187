package normalize

import "fmt"

// FieldType is the declared target type of a column
type FieldType int

const (
	TypeText FieldType = iota
	TypeInteger
	TypeDecimal
	TypeTimestamp
	TypeBoolean
)

func (t FieldType) String() string {
	switch t {
	case TypeText:
		return "text"
	case TypeInteger:
		return "integer"
	case TypeDecimal:
		return "decimal"
	case TypeTimestamp:
		return "timestamp"
	case TypeBoolean:
		return "boolean"
	default:
		return fmt.Sprintf("FieldType(%d)", int(t))
	}
}

// FieldRule describes how one source column becomes one typed target field.
// Precision and Scale only apply to TypeDecimal.
type FieldRule struct {
	Source    string
	Target    string
	Type      FieldType
	Precision int
	Scale     int
	Required  bool
}

// Text declares a text column whose source and target names match
func Text(name string) FieldRule { return FieldRule{Source: name, Target: name, Type: TypeText} }

// Integer declares a bigint column
func Integer(name string) FieldRule { return FieldRule{Source: name, Target: name, Type: TypeInteger} }

// Decimal declares a NUMERIC(precision, scale) column
func Decimal(name string, precision, scale int) FieldRule {
	return FieldRule{Source: name, Target: name, Type: TypeDecimal, Precision: precision, Scale: scale}
}

// Timestamp declares a timestamp column
func Timestamp(name string) FieldRule { return FieldRule{Source: name, Target: name, Type: TypeTimestamp} }

// Boolean declares a boolean column
func Boolean(name string) FieldRule { return FieldRule{Source: name, Target: name, Type: TypeBoolean} }

// From returns a copy of the rule reading from a differently named source column
func (r FieldRule) From(source string) FieldRule {
	r.Source = source
	return r
}

// NotNull returns a copy of the rule that rejects empty values
func (r FieldRule) NotNull() FieldRule {
	r.Required = true
	return r
}

// RuleSet is the ordered, static set of rules for one dataset schema
type RuleSet []FieldRule

// Targets returns the target field names in rule order
func (rs RuleSet) Targets() []string {
	out := make([]string, len(rs))
	for i, r := range rs {
		out[i] = r.Target
	}
	return out
}

// Lookup finds the rule for a target field
func (rs RuleSet) Lookup(target string) (FieldRule, bool) {
	for _, r := range rs {
		if r.Target == target {
			return r, true
		}
	}
	return FieldRule{}, false
}

// Validate checks the rule set for duplicate targets and impossible decimal shapes
func (rs RuleSet) Validate() error {
	seen := make(map[string]bool, len(rs))
	for _, r := range rs {
		if r.Target == "" || r.Source == "" {
			return fmt.Errorf("rule with empty source or target: %+v", r)
		}
		if seen[r.Target] {
			return fmt.Errorf("duplicate target field %q", r.Target)
		}
		seen[r.Target] = true
		if r.Type == TypeDecimal && (r.Precision < 1 || r.Scale < 0 || r.Scale > r.Precision) {
			return fmt.Errorf("field %q: invalid decimal(%d,%d)", r.Target, r.Precision, r.Scale)
		}
	}
	return nil
}
