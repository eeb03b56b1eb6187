package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// ErrNotFound is returned when a table, column or permit does not exist
var ErrNotFound = errors.New("not found")

// MaxBindParameters is PostgreSQL's limit on placeholders in one statement
const MaxBindParameters = 65535

// ColumnType is a store column type
type ColumnType string

const (
	ColumnText      ColumnType = "TEXT"
	ColumnBigint    ColumnType = "BIGINT"
	ColumnNumeric   ColumnType = "NUMERIC"
	ColumnTimestamp ColumnType = "TIMESTAMP"
	ColumnBoolean   ColumnType = "BOOLEAN"
)

// ColumnSpec declares one column of a dataset table
type ColumnSpec struct {
	Name      string
	Type      ColumnType
	Precision int
	Scale     int
	NotNull   bool
}

// SQLType renders the column type for DDL
func (c ColumnSpec) SQLType() string {
	if c.Type == ColumnNumeric && c.Precision > 0 {
		return fmt.Sprintf("NUMERIC(%d,%d)", c.Precision, c.Scale)
	}
	return string(c.Type)
}

// TableSpec declares a dataset table. Every table also gets a BIGSERIAL id,
// the unique KeyColumn used for duplicate skipping, and created_at.
type TableSpec struct {
	Name      string
	Columns   []ColumnSpec
	KeyColumn string
}

// Column finds a declared column by name
func (t TableSpec) Column(name string) (ColumnSpec, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return ColumnSpec{}, false
}

// CreateSQL renders the CREATE TABLE IF NOT EXISTS statement
func (t TableSpec) CreateSQL() string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", pq.QuoteIdentifier(t.Name))
	b.WriteString("\tid BIGSERIAL PRIMARY KEY,\n")
	for _, c := range t.Columns {
		fmt.Fprintf(&b, "\t%s %s", pq.QuoteIdentifier(c.Name), c.SQLType())
		if c.NotNull {
			b.WriteString(" NOT NULL")
		}
		b.WriteString(",\n")
	}
	if t.KeyColumn != "" {
		fmt.Fprintf(&b, "\t%s TEXT UNIQUE,\n", pq.QuoteIdentifier(t.KeyColumn))
	}
	b.WriteString("\tcreated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP\n)")
	return b.String()
}

// InsertRequest is one batch destined for one multi-row INSERT
type InsertRequest struct {
	Table          string
	Columns        []string
	Rows           [][]any
	KeyColumn      string
	SkipDuplicates bool
}

// Validate checks row shape and the bind parameter ceiling
func (r InsertRequest) Validate() error {
	if r.Table == "" || len(r.Columns) == 0 {
		return fmt.Errorf("insert request needs a table and columns")
	}
	for i, row := range r.Rows {
		if len(row) != len(r.Columns) {
			return fmt.Errorf("row %d has %d values for %d columns", i, len(row), len(r.Columns))
		}
	}
	if n := len(r.Columns) * len(r.Rows); n > MaxBindParameters {
		return fmt.Errorf("batch needs %d bind parameters, limit is %d", n, MaxBindParameters)
	}
	if r.SkipDuplicates && r.KeyColumn == "" {
		return fmt.Errorf("duplicate skipping needs a key column")
	}
	return nil
}

// buildInsertSQL renders the multi-row INSERT with positional placeholders
func buildInsertSQL(r InsertRequest) (string, []any) {
	cols := make([]string, len(r.Columns))
	for i, c := range r.Columns {
		cols[i] = pq.QuoteIdentifier(c)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "INSERT INTO %s (%s) VALUES ", pq.QuoteIdentifier(r.Table), strings.Join(cols, ", "))

	args := make([]any, 0, len(r.Columns)*len(r.Rows))
	for i, row := range r.Rows {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteByte('(')
		for j, v := range row {
			if j > 0 {
				b.WriteString(", ")
			}
			args = append(args, v)
			fmt.Fprintf(&b, "$%d", len(args))
		}
		b.WriteByte(')')
	}

	if r.SkipDuplicates {
		fmt.Fprintf(&b, " ON CONFLICT (%s) DO NOTHING", pq.QuoteIdentifier(r.KeyColumn))
	}
	return b.String(), args
}
