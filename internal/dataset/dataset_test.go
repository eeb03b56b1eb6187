package dataset

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atlasgrowth23/lapermits/internal/db"
)

func TestLookup(t *testing.T) {
	s, err := Lookup("blds")
	require.NoError(t, err)
	assert.Equal(t, "nola_permits_72f9_bi28", s.Table)
	require.NotNil(t, s.Feed)
	assert.Equal(t, "applieddate", s.Feed.SortKey)

	_, err = Lookup("nope")
	assert.True(t, errors.Is(err, ErrUnknown))
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"blds", "br", "nola1", "nola2"}, Names())
}

func TestColumnCounts(t *testing.T) {
	tests := map[string]int{"nola1": 42, "nola2": 42, "blds": 33, "br": 25}
	for name, want := range tests {
		t.Run(name, func(t *testing.T) {
			s, err := Lookup(name)
			require.NoError(t, err)
			assert.Len(t, s.Rules, want)
			assert.NoError(t, s.Rules.Validate())
		})
	}
}

func TestTableSpec(t *testing.T) {
	s, err := Lookup("br")
	require.NoError(t, err)

	spec := s.TableSpec()
	assert.Equal(t, KeyColumn, spec.KeyColumn)

	lat, ok := spec.Column("lat")
	require.True(t, ok)
	assert.Equal(t, db.ColumnNumeric, lat.Type)
	assert.Equal(t, "NUMERIC(15,10)", lat.SQLType())

	ddl := spec.CreateSQL()
	assert.Contains(t, ddl, `CREATE TABLE IF NOT EXISTS "br_permits"`)
	assert.Contains(t, ddl, "id BIGSERIAL PRIMARY KEY")
	assert.Contains(t, ddl, `"row_key" TEXT UNIQUE`)
	assert.Contains(t, ddl, `"projectvalue" NUMERIC(12,2)`)
	assert.Contains(t, ddl, `"creationdate" TIMESTAMP`)
}

func TestLegacyBooleanColumn(t *testing.T) {
	s, err := Lookup("nola1")
	require.NoError(t, err)

	c, ok := s.TableSpec().Column("isclosed")
	require.True(t, ok)
	assert.Equal(t, db.ColumnBoolean, c.Type)
}

// Every mapped permit column must exist in the dataset's table.
func TestPermitColumnsExist(t *testing.T) {
	for _, s := range All() {
		t.Run(s.Name, func(t *testing.T) {
			spec := s.TableSpec()
			v := reflect.ValueOf(s.Permits)
			for i := 0; i < v.NumField(); i++ {
				col := v.Field(i).String()
				if col == "" {
					continue
				}
				_, ok := spec.Column(col)
				assert.True(t, ok, "%s maps %s to missing column %q", s.Name, v.Type().Field(i).Name, col)
			}
		})
	}
}

func TestCurateExcludeCodes(t *testing.T) {
	s, err := Lookup("blds")
	require.NoError(t, err)
	assert.Equal(t, "DEMO,HVAC,SOLR,LOOP", strings.Join(s.CurateExclude, ","))
}
