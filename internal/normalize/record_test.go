package normalize

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testRules = RuleSet{
	Text("permitnum").NotNull(),
	Text("originaladdress1"),
	Timestamp("applieddate"),
	Decimal("fee", 10, 2),
	Boolean("isclosed"),
	Integer("units").From("unit_count"),
}

func TestNormalizeTypesEveryField(t *testing.T) {
	row := RawRow{
		"permitnum":        "21-001",
		"originaladdress1": "123 Main St",
		"applieddate":      "2021-01-05",
		"fee":              "150.25",
		"isclosed":         "True",
		"unit_count":       "3",
	}

	rec, defects := Normalize(row, 7, testRules)

	assert.Empty(t, defects)
	assert.Equal(t, 7, rec.Ordinal)
	assert.Len(t, rec.Values, len(testRules))
	assert.Equal(t, "21-001", rec.Value("permitnum"))
	assert.Equal(t, time.Date(2021, 1, 5, 0, 0, 0, 0, time.UTC), rec.Value("applieddate"))
	assert.True(t, decimal.RequireFromString("150.25").Equal(rec.Value("fee").(decimal.Decimal)))
	assert.Equal(t, true, rec.Value("isclosed"))
	assert.Equal(t, int64(3), rec.Value("units"))
}

func TestNormalizeNeverLeaksRawStrings(t *testing.T) {
	row := RawRow{
		"permitnum":   "",
		"applieddate": "someday",
		"fee":         "n/a",
		"isclosed":    "Maybe",
		"unit_count":  "three",
	}

	rec, defects := Normalize(row, 0, testRules)

	require.Len(t, defects, 5)
	for _, d := range defects {
		assert.Equal(t, 0, d.Ordinal)
	}
	for _, rule := range testRules {
		value, ok := rec.Values[rule.Target]
		require.True(t, ok, "field %s missing", rule.Target)
		if rule.Type != TypeText {
			_, isString := value.(string)
			assert.False(t, isString, "field %s holds a raw string", rule.Target)
		}
	}
	assert.Nil(t, rec.Value("originaladdress1"), "missing source column is null")
}

func TestNormalizeKeepsOverflowValue(t *testing.T) {
	rec, defects := Normalize(RawRow{"permitnum": "x", "fee": "123456789.00"}, 3, testRules)

	require.Len(t, defects, 1)
	assert.Equal(t, ReasonOverflow, defects[0].Reason)
	assert.Equal(t, 3, defects[0].Ordinal)
	assert.NotNil(t, rec.Value("fee"))
}

func TestRowKeyIsStable(t *testing.T) {
	a := RawRow{"permitnum": "1", "fee": "2", "ignored": "x"}
	b := RawRow{"permitnum": "1", "fee": "2", "ignored": "y"}
	c := RawRow{"permitnum": "1", "fee": "3"}

	assert.Equal(t, RowKey(a, testRules), RowKey(b, testRules), "columns outside the rules do not affect the key")
	assert.NotEqual(t, RowKey(a, testRules), RowKey(c, testRules))
	assert.Len(t, RowKey(a, testRules), 64)
}

func TestRuleSetValidate(t *testing.T) {
	assert.NoError(t, testRules.Validate())
	assert.Error(t, RuleSet{Text("a"), Text("a")}.Validate())
	assert.Error(t, RuleSet{Decimal("a", 2, 3)}.Validate())
	assert.Equal(t, []string{"permitnum", "originaladdress1", "applieddate", "fee", "isclosed", "units"}, testRules.Targets())
}

func TestFold(t *testing.T) {
	tests := []struct {
		a, b string
		want bool
	}{
		{"123 Main St", "123 MAIN ST", true},
		{"New Orleans", "new orleans", true},
		{"Straße", "STRASSE", true},
		{"123 Main St", "123 Main  St", false},
	}

	for _, tt := range tests {
		t.Run(tt.a+"|"+tt.b, func(t *testing.T) {
			assert.Equal(t, tt.want, EqualFold(tt.a, tt.b))
		})
	}
	assert.True(t, ContainsFold("Permit VOID - Expired", "void"))
}
