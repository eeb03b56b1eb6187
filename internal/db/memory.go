package db

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/atlasgrowth23/lapermits/internal/normalize"
	"github.com/atlasgrowth23/lapermits/internal/permit"
)

// MemoryStore is an in-process Store with the write semantics the pipeline
// relies on: atomic batches, a unique key column, NUMERIC precision limits
// and monotonic widening. Used by --dry-run and tests.
type MemoryStore struct {
	mu      sync.Mutex
	tables  map[string]*memTable
	pingErr error
	failFn  func(InsertRequest) error
	inserts int
}

type memTable struct {
	spec   TableSpec
	rows   []memRow
	keys   map[string]bool
	nextID int64
}

type memRow struct {
	id     int64
	values map[string]any
}

// NewMemoryStore returns an empty store with the given tables created
func NewMemoryStore(specs ...TableSpec) *MemoryStore {
	s := &MemoryStore{tables: make(map[string]*memTable)}
	for _, spec := range specs {
		s.createTable(spec)
	}
	return s
}

func (s *MemoryStore) createTable(spec TableSpec) *memTable {
	spec.Columns = slices.Clone(spec.Columns)
	t := &memTable{spec: spec, keys: make(map[string]bool), nextID: 1}
	s.tables[spec.Name] = t
	return t
}

// SetPingError makes Ping fail with err, or succeed again when err is nil
func (s *MemoryStore) SetPingError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pingErr = err
}

// FailInserts installs a hook consulted before every InsertBatch. A non-nil
// return rejects the whole batch with that error.
func (s *MemoryStore) FailInserts(fn func(InsertRequest) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failFn = fn
}

// InsertCalls reports how many InsertBatch calls reached the store
func (s *MemoryStore) InsertCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inserts
}

// Ping reports the configured ping error
func (s *MemoryStore) Ping(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pingErr
}

// EnsureTable creates the table if it does not exist
func (s *MemoryStore) EnsureTable(ctx context.Context, spec TableSpec) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[spec.Name]; !ok {
		s.createTable(spec)
	}
	return nil
}

// InsertBatch validates every row before committing any of them
func (s *MemoryStore) InsertBatch(ctx context.Context, req InsertRequest) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if len(req.Rows) == 0 {
		return 0, nil
	}
	if err := req.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.inserts++

	if s.failFn != nil {
		if err := s.failFn(req); err != nil {
			return 0, err
		}
	}

	t, ok := s.tables[req.Table]
	if !ok {
		return 0, &StoreError{Code: "42P01", Message: fmt.Sprintf("relation %q does not exist", req.Table)}
	}

	specs := make([]ColumnSpec, len(req.Columns))
	keyIdx := -1
	for i, name := range req.Columns {
		if name == t.spec.KeyColumn && name != "" {
			keyIdx = i
			specs[i] = ColumnSpec{Name: name, Type: ColumnText}
			continue
		}
		c, ok := t.spec.Column(name)
		if !ok {
			return 0, &StoreError{Code: "42703", Message: fmt.Sprintf("column %q does not exist", name)}
		}
		specs[i] = c
	}

	staged := make([]map[string]any, 0, len(req.Rows))
	batchKeys := make(map[string]bool)
	for _, row := range req.Rows {
		values := make(map[string]any, len(row))
		for i, v := range row {
			stored, err := checkValue(specs[i], v)
			if err != nil {
				return 0, err
			}
			values[specs[i].Name] = stored
		}

		if keyIdx >= 0 {
			key, _ := row[keyIdx].(string)
			if key != "" && (t.keys[key] || batchKeys[key]) {
				if req.SkipDuplicates {
					continue
				}
				return 0, &StoreError{Code: CodeUniqueViolation, Message: fmt.Sprintf("duplicate key value violates unique constraint on %s", t.spec.KeyColumn)}
			}
			if key != "" {
				batchKeys[key] = true
			}
		}
		staged = append(staged, values)
	}

	for _, values := range staged {
		t.rows = append(t.rows, memRow{id: t.nextID, values: values})
		t.nextID++
	}
	for key := range batchKeys {
		t.keys[key] = true
	}
	return int64(len(staged)), nil
}

func checkValue(c ColumnSpec, v any) (any, error) {
	if v == nil {
		if c.NotNull {
			return nil, &StoreError{Code: CodeNotNull, Message: fmt.Sprintf("null value in column %q violates not-null constraint", c.Name)}
		}
		return nil, nil
	}
	if c.Type != ColumnNumeric || c.Precision == 0 {
		return v, nil
	}

	d, ok := v.(decimal.Decimal)
	if !ok {
		return nil, &StoreError{Code: "22P02", Message: fmt.Sprintf("invalid input for numeric column %q", c.Name)}
	}
	if !normalize.Fits(d, c.Precision, c.Scale) {
		return nil, &StoreError{Code: CodeNumericOverflow, Message: fmt.Sprintf("numeric field overflow: a field with precision %d, scale %d must round to an absolute value less than 10^%d", c.Precision, c.Scale, c.Precision-c.Scale)}
	}
	return d.Round(int32(c.Scale)), nil
}

// ColumnPrecision reports a numeric column's declared precision and scale
func (s *MemoryStore) ColumnPrecision(ctx context.Context, table, column string) (int, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.column(table, column)
	if err != nil {
		return 0, 0, err
	}
	return c.Precision, c.Scale, nil
}

func (s *MemoryStore) column(table, column string) (*ColumnSpec, error) {
	t, ok := s.tables[table]
	if !ok {
		return nil, fmt.Errorf("table %s: %w", table, ErrNotFound)
	}
	for i := range t.spec.Columns {
		if t.spec.Columns[i].Name == column {
			return &t.spec.Columns[i], nil
		}
	}
	return nil, fmt.Errorf("column %s.%s: %w", table, column, ErrNotFound)
}

// WidenColumn raises a column's precision; it never narrows
func (s *MemoryStore) WidenColumn(ctx context.Context, table, column string, precision, scale int) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, err := s.column(table, column)
	if err != nil {
		return false, err
	}
	if c.Precision == 0 || precision <= c.Precision {
		return false, nil
	}
	c.Precision = precision
	if scale > c.Scale {
		c.Scale = scale
	}
	return true, nil
}

// Count returns the number of rows in a table
func (s *MemoryStore) Count(ctx context.Context, table string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return 0, fmt.Errorf("table %s: %w", table, ErrNotFound)
	}
	return int64(len(t.rows)), nil
}

// Rows returns a copy of a table's rows in insertion order
func (s *MemoryStore) Rows(table string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[table]
	if !ok {
		return nil
	}
	out := make([]map[string]any, len(t.rows))
	for i, r := range t.rows {
		m := make(map[string]any, len(r.values)+1)
		for k, v := range r.values {
			m[k] = v
		}
		m["id"] = r.id
		out[i] = m
	}
	return out
}

// Curate copies the full table into <table>_curated minus the excluded types
func (s *MemoryStore) Curate(ctx context.Context, src PermitSource, exclude []string) (int64, error) {
	if src.Columns.PermitType == "" {
		return 0, fmt.Errorf("dataset %s has no permit type column to curate on", src.Dataset)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	full, ok := s.tables[src.Table]
	if !ok {
		return 0, fmt.Errorf("table %s: %w", src.Table, ErrNotFound)
	}

	spec := full.spec
	spec.Name = src.CuratedTable()
	curated := s.createTable(spec)
	for _, r := range full.rows {
		code, _ := r.values[src.Columns.PermitType].(string)
		if code != "" && slices.Contains(exclude, code) {
			continue
		}
		curated.rows = append(curated.rows, r)
	}
	return int64(len(curated.rows)), nil
}

func (s *MemoryStore) records(table string, src PermitSource) ([]permit.Record, bool) {
	t, ok := s.tables[table]
	if !ok {
		return nil, false
	}
	out := make([]permit.Record, len(t.rows))
	for i, r := range t.rows {
		out[i] = toPermit(r, src)
	}
	return out, true
}

func toPermit(r memRow, src PermitSource) permit.Record {
	c := src.Columns
	v := r.values
	return permit.Record{
		ID:            r.id,
		Dataset:       src.Dataset,
		PermitNumber:  textOf(v, c.PermitNumber),
		Description:   textOf(v, c.Description),
		Street:        textOf(v, c.Street),
		City:          textOf(v, c.City),
		State:         textOf(v, c.State),
		Zip:           textOf(v, c.Zip),
		Applied:       timeOf(v, c.Applied),
		Issued:        timeOf(v, c.Issued),
		Completed:     timeOf(v, c.Completed),
		StatusAsOf:    timeOf(v, c.StatusDate),
		Status:        textOf(v, c.Status),
		PermitClass:   textOf(v, c.PermitClass),
		PermitType:    textOf(v, c.PermitType),
		WorkClass:     textOf(v, c.WorkClass),
		Contractor:    textOf(v, c.Contractor),
		EstimatedCost: decimalOf(v, c.EstimatedCost),
		Fee:           decimalOf(v, c.Fee),
	}
}

func textOf(values map[string]any, col string) string {
	if col == "" || values[col] == nil {
		return ""
	}
	if s, ok := values[col].(string); ok {
		return s
	}
	return fmt.Sprint(values[col])
}

func timeOf(values map[string]any, col string) *time.Time {
	if col == "" {
		return nil
	}
	if t, ok := values[col].(time.Time); ok {
		return &t
	}
	return nil
}

func decimalOf(values map[string]any, col string) *decimal.Decimal {
	if col == "" {
		return nil
	}
	if d, ok := values[col].(decimal.Decimal); ok {
		return &d
	}
	return nil
}

// ListPermits filters, sorts and pages like the SQL version
func (s *MemoryStore) ListPermits(ctx context.Context, src PermitSource, q ListQuery) (PermitPage, error) {
	q = q.Normalized()

	s.mu.Lock()
	table := src.Table
	if _, ok := s.tables[src.CuratedTable()]; q.Curated && ok {
		table = src.CuratedTable()
	}
	all, ok := s.records(table, src)
	s.mu.Unlock()
	if !ok {
		return PermitPage{}, fmt.Errorf("table %s: %w", table, ErrNotFound)
	}

	var matched []permit.Record
	for _, r := range all {
		if q.Search != "" && !matchesSearch(r, src.Columns, q.Search) {
			continue
		}
		if q.PermitType != "" && src.Columns.PermitType != "" && r.PermitType != q.PermitType {
			continue
		}
		if q.Status != "" && src.Columns.Status != "" && r.Status != q.Status {
			continue
		}
		matched = append(matched, r)
	}

	sortRecords(matched, q.SortBy, q.SortDesc)

	total := len(matched)
	start := min(q.Offset(), total)
	end := min(start+q.Limit, total)
	return newPage(matched[start:end], q, total), nil
}

func matchesSearch(r permit.Record, cols PermitColumns, term string) bool {
	fields := []struct{ col, value string }{
		{cols.Description, r.Description},
		{cols.Street, r.Street},
		{cols.Contractor, r.Contractor},
		{cols.PermitType, r.PermitType},
	}
	for _, f := range fields {
		if f.col != "" && normalize.ContainsFold(f.value, term) {
			return true
		}
	}
	return false
}

// sortRecords orders by key with nulls last in either direction, ties by id
func sortRecords(records []permit.Record, key string, desc bool) {
	compare := func(a, b permit.Record) (int, bool) {
		switch key {
		case SortPermitNumber:
			return compareStrings(a.PermitNumber, b.PermitNumber)
		case SortStatus:
			return compareStrings(a.Status, b.Status)
		case SortPermitType:
			return compareStrings(a.PermitType, b.PermitType)
		case SortApplied:
			return compareTimes(a.Applied, b.Applied)
		case SortIssued:
			return compareTimes(a.Issued, b.Issued)
		case SortCompleted:
			return compareTimes(a.Completed, b.Completed)
		case SortEstimatedCost:
			return compareDecimals(a.EstimatedCost, b.EstimatedCost)
		default:
			return cmp.Compare(a.ID, b.ID), false
		}
	}

	slices.SortStableFunc(records, func(a, b permit.Record) int {
		c, hasNull := compare(a, b)
		if hasNull {
			// nulls sort last regardless of direction
			if c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		}
		if desc {
			c = -c
		}
		if c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func compareStrings(a, b string) (int, bool) {
	switch {
	case a == "" && b == "":
		return 0, true
	case a == "":
		return 1, true
	case b == "":
		return -1, true
	default:
		return cmp.Compare(a, b), false
	}
}

// compareTimes orders present values and reports whether a null was involved.
// With a null, the result already places the null last.
func compareTimes(a, b *time.Time) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return 1, true
	case b == nil:
		return -1, true
	default:
		return a.Compare(*b), false
	}
}

func compareDecimals(a, b *decimal.Decimal) (int, bool) {
	switch {
	case a == nil && b == nil:
		return 0, true
	case a == nil:
		return 1, true
	case b == nil:
		return -1, true
	default:
		return a.Cmp(*b), false
	}
}

// GetPermit loads one permit by id from the full table
func (s *MemoryStore) GetPermit(ctx context.Context, src PermitSource, id int64) (permit.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[src.Table]
	if !ok {
		return permit.Record{}, fmt.Errorf("table %s: %w", src.Table, ErrNotFound)
	}
	for _, r := range t.rows {
		if r.id == id {
			return toPermit(r, src), nil
		}
	}
	return permit.Record{}, fmt.Errorf("permit %d: %w", id, ErrNotFound)
}

// AddressHistory returns every permit at the address from the full table
func (s *MemoryStore) AddressHistory(ctx context.Context, src PermitSource, addr permit.Address) ([]permit.Record, error) {
	s.mu.Lock()
	all, ok := s.records(src.Table, src)
	s.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("table %s: %w", src.Table, ErrNotFound)
	}
	return permit.History(all, addr), nil
}
