// Package dataset holds the static schema of every permit dataset the
// pipeline knows how to ingest.
package dataset

import (
	"errors"
	"fmt"
	"sort"

	"github.com/atlasgrowth23/lapermits/internal/db"
	"github.com/atlasgrowth23/lapermits/internal/normalize"
)

// ErrUnknown is returned by Lookup for a name with no schema
var ErrUnknown = errors.New("unknown dataset")

// KeyColumn is the idempotency key column present on every dataset table
const KeyColumn = "row_key"

// FeedInfo describes a paginated JSON feed a dataset can be fetched from
type FeedInfo struct {
	URL     string
	SortKey string
	// DateField and WindowYears bound the fetch window, e.g. applieddate >= now-5y
	DateField   string
	WindowYears int
}

// Schema is one dataset: where it is stored and how source rows map to columns
type Schema struct {
	Name        string
	Description string
	Table       string
	Rules       normalize.RuleSet
	Permits     db.PermitColumns
	Feed        *FeedInfo
	// CurateExclude lists permit type codes dropped from the curated subset
	CurateExclude []string
}

// TableSpec builds the DDL description of the dataset's table
func (s Schema) TableSpec() db.TableSpec {
	cols := make([]db.ColumnSpec, 0, len(s.Rules))
	for _, r := range s.Rules {
		cols = append(cols, ColumnFor(r))
	}
	return db.TableSpec{Name: s.Table, Columns: cols, KeyColumn: KeyColumn}
}

// Source returns the read-side view of the dataset
func (s Schema) Source() db.PermitSource {
	return db.PermitSource{Dataset: s.Name, Table: s.Table, Columns: s.Permits}
}

// ColumnFor maps a field rule to its store column
func ColumnFor(r normalize.FieldRule) db.ColumnSpec {
	c := db.ColumnSpec{Name: r.Target, NotNull: r.Required}
	switch r.Type {
	case normalize.TypeInteger:
		c.Type = db.ColumnBigint
	case normalize.TypeDecimal:
		c.Type = db.ColumnNumeric
		c.Precision = r.Precision
		c.Scale = r.Scale
	case normalize.TypeTimestamp:
		c.Type = db.ColumnTimestamp
	case normalize.TypeBoolean:
		c.Type = db.ColumnBoolean
	default:
		c.Type = db.ColumnText
	}
	return c
}

var registry = map[string]Schema{}

func register(s Schema) {
	if err := s.Rules.Validate(); err != nil {
		panic(fmt.Sprintf("dataset %s: %v", s.Name, err))
	}
	registry[s.Name] = s
}

// Lookup returns the schema registered under name
func Lookup(name string) (Schema, error) {
	s, ok := registry[name]
	if !ok {
		return Schema{}, fmt.Errorf("%w: %q", ErrUnknown, name)
	}
	return s, nil
}

// Names lists the registered datasets in sorted order
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns every registered schema sorted by name
func All() []Schema {
	out := make([]Schema, 0, len(registry))
	for _, name := range Names() {
		out = append(out, registry[name])
	}
	return out
}
