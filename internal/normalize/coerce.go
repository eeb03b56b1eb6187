package normalize

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Reason classifies why a field could not be coerced
type Reason string

const (
	ReasonParseFailure     Reason = "parse-failure"
	ReasonOverflow         Reason = "overflow"
	ReasonUnexpectedFormat Reason = "unexpected-format"
)

// Defect is a field-level coercion failure. It never aborts the row.
type Defect struct {
	Ordinal int    `json:"ordinal"`
	Field   string `json:"field"`
	Raw     string `json:"raw"`
	Reason  Reason `json:"reason"`
	Detail  string `json:"detail,omitempty"`
}

func (d Defect) Error() string {
	msg := fmt.Sprintf("row %d field %s: %s (%q)", d.Ordinal, d.Field, d.Reason, d.Raw)
	if d.Detail != "" {
		msg += ": " + d.Detail
	}
	return msg
}

// Boolean literals accepted from source extracts. Anything else is a defect.
var (
	trueLiterals  = map[string]bool{"True": true, "true": true, "TRUE": true, "1": true}
	falseLiterals = map[string]bool{"False": true, "false": true, "FALSE": true, "0": true}
)

// Timestamp layouts tried in order. Naive values are read as UTC wall-clock;
// no timezone conversion is applied. Fractional seconds after the seconds
// field are accepted by time.Parse even when the layout omits them.
var timestampLayouts = []string{
	"2006-01-02T15:04:05",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02",
	"1/2/2006 3:04:05 PM",
	"1/2/2006 3:04 PM",
	"1/2/2006 15:04:05",
	"1/2/2006 15:04",
	"1/2/2006",
	"2006/1/2",
}

// Coerce converts one raw field under its rule. A nil value with a nil defect
// means the field was legitimately empty.
func Coerce(raw string, rule FieldRule) (any, *Defect) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		if rule.Required {
			return nil, &Defect{Field: rule.Target, Raw: raw, Reason: ReasonUnexpectedFormat, Detail: "required field is empty"}
		}
		return nil, nil
	}

	switch rule.Type {
	case TypeText:
		return raw, nil
	case TypeInteger:
		return coerceInteger(raw, trimmed, rule)
	case TypeDecimal:
		return coerceDecimal(raw, trimmed, rule)
	case TypeTimestamp:
		return coerceTimestamp(raw, trimmed, rule)
	case TypeBoolean:
		return coerceBoolean(raw, trimmed, rule)
	default:
		return nil, &Defect{Field: rule.Target, Raw: raw, Reason: ReasonUnexpectedFormat, Detail: "unknown field type " + rule.Type.String()}
	}
}

func coerceInteger(raw, trimmed string, rule FieldRule) (any, *Defect) {
	n, err := strconv.ParseInt(trimmed, 10, 64)
	if err != nil {
		if errors.Is(err, strconv.ErrRange) {
			return nil, &Defect{Field: rule.Target, Raw: raw, Reason: ReasonOverflow, Detail: "outside bigint range"}
		}
		return nil, &Defect{Field: rule.Target, Raw: raw, Reason: ReasonParseFailure}
	}
	return n, nil
}

func coerceDecimal(raw, trimmed string, rule FieldRule) (any, *Defect) {
	d, err := decimal.NewFromString(trimmed)
	if err != nil {
		return nil, &Defect{Field: rule.Target, Raw: raw, Reason: ReasonParseFailure}
	}
	if !Fits(d, rule.Precision, rule.Scale) {
		// Best effort: hand the value back so the caller may still try the write.
		return d, &Defect{
			Field:  rule.Target,
			Raw:    raw,
			Reason: ReasonOverflow,
			Detail: fmt.Sprintf("needs decimal(%d,%d), declared decimal(%d,%d)", RequiredPrecision(d, rule.Scale), rule.Scale, rule.Precision, rule.Scale),
		}
	}
	return d, nil
}

func coerceTimestamp(raw, trimmed string, rule FieldRule) (any, *Defect) {
	for _, layout := range timestampLayouts {
		if t, err := time.Parse(layout, trimmed); err == nil {
			return t, nil
		}
	}
	return nil, &Defect{Field: rule.Target, Raw: raw, Reason: ReasonParseFailure}
}

func coerceBoolean(raw, trimmed string, rule FieldRule) (any, *Defect) {
	switch {
	case trueLiterals[trimmed]:
		return true, nil
	case falseLiterals[trimmed]:
		return false, nil
	}
	return nil, &Defect{Field: rule.Target, Raw: raw, Reason: ReasonParseFailure, Detail: "unrecognized boolean literal"}
}

// Fits reports whether d, rounded to scale, fits NUMERIC(precision, scale)
func Fits(d decimal.Decimal, precision, scale int) bool {
	if precision <= 0 {
		return true
	}
	limit := decimal.New(1, int32(precision-scale))
	return d.Round(int32(scale)).Abs().LessThan(limit)
}

// RequiredPrecision is the smallest precision that holds d at the given scale
func RequiredPrecision(d decimal.Decimal, scale int) int {
	intPart := d.Round(int32(scale)).Abs().Truncate(0)
	digits := 0
	if !intPart.IsZero() {
		digits = len(intPart.String())
	}
	if p := digits + scale; p > 0 {
		return p
	}
	return 1
}
