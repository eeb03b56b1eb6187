package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/atlasgrowth23/lapermits/internal/permit"
)

// PostgresStore writes batches to and reads permits from PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore wraps an open connection
func NewPostgresStore(conn *Connection) *PostgresStore {
	return &PostgresStore{db: conn.DB}
}

// Ping checks the server is reachable
func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// EnsureTable creates the dataset table if it does not exist
func (s *PostgresStore) EnsureTable(ctx context.Context, spec TableSpec) error {
	if _, err := s.db.ExecContext(ctx, spec.CreateSQL()); err != nil {
		return fmt.Errorf("failed to create table %s: %w", spec.Name, err)
	}
	return nil
}

// InsertBatch writes every row of the request in one transaction and returns
// the number of rows inserted. Rows skipped by ON CONFLICT are not counted.
// On error nothing from the batch is visible.
func (s *PostgresStore) InsertBatch(ctx context.Context, req InsertRequest) (int64, error) {
	if len(req.Rows) == 0 {
		return 0, nil
	}
	if err := req.Validate(); err != nil {
		return 0, err
	}

	query, args := buildInsertSQL(req)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin batch: %w", err)
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit batch: %w", err)
	}
	return n, nil
}

// ColumnPrecision reports a numeric column's declared precision and scale.
// An unconstrained NUMERIC reports 0, 0.
func (s *PostgresStore) ColumnPrecision(ctx context.Context, table, column string) (int, int, error) {
	var precision, scale sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT numeric_precision, numeric_scale
		FROM information_schema.columns
		WHERE table_schema = current_schema()
		  AND table_name = $1
		  AND column_name = $2`, table, column).Scan(&precision, &scale)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, 0, fmt.Errorf("column %s.%s: %w", table, column, ErrNotFound)
	}
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read column %s.%s: %w", table, column, err)
	}
	return int(precision.Int64), int(scale.Int64), nil
}

// WidenColumn raises a numeric column to NUMERIC(precision, scale). It never
// narrows: a precision at or below the current one is a no-op, and the scale
// is never reduced. Reports whether the column changed.
func (s *PostgresStore) WidenColumn(ctx context.Context, table, column string, precision, scale int) (bool, error) {
	current, currentScale, err := s.ColumnPrecision(ctx, table, column)
	if err != nil {
		return false, err
	}
	if current == 0 || precision <= current {
		return false, nil
	}
	if scale < currentScale {
		scale = currentScale
	}

	stmt := fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE NUMERIC(%d,%d)",
		pq.QuoteIdentifier(table), pq.QuoteIdentifier(column), precision, scale)
	if _, err := s.db.ExecContext(ctx, stmt); err != nil {
		return false, fmt.Errorf("failed to widen %s.%s: %w", table, column, err)
	}
	return true, nil
}

// Count returns the number of rows in a table
func (s *PostgresStore) Count(ctx context.Context, table string) (int64, error) {
	exists, err := s.tableExists(ctx, table)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	if !exists {
		return 0, fmt.Errorf("table %s: %w", table, ErrNotFound)
	}

	var n int64
	err = s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM "+pq.QuoteIdentifier(table)).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}
	return n, nil
}

func (s *PostgresStore) tableExists(ctx context.Context, table string) (bool, error) {
	var name sql.NullString
	if err := s.db.QueryRowContext(ctx, "SELECT to_regclass($1)::text", table).Scan(&name); err != nil {
		return false, err
	}
	return name.Valid, nil
}

// Curate rebuilds <table>_curated as the full table minus the excluded permit
// type codes. Permits without a type are kept. Returns the curated row count.
func (s *PostgresStore) Curate(ctx context.Context, src PermitSource, exclude []string) (int64, error) {
	typeCol := src.Columns.PermitType
	if typeCol == "" {
		return 0, fmt.Errorf("dataset %s has no permit type column to curate on", src.Dataset)
	}

	full := pq.QuoteIdentifier(src.Table)
	curated := pq.QuoteIdentifier(src.CuratedTable())

	where := ""
	args := make([]any, 0, len(exclude))
	if len(exclude) > 0 {
		marks := make([]string, len(exclude))
		for i, code := range exclude {
			args = append(args, code)
			marks[i] = fmt.Sprintf("$%d", i+1)
		}
		col := pq.QuoteIdentifier(typeCol)
		where = fmt.Sprintf(" WHERE %s IS NULL OR %s NOT IN (%s)", col, col, strings.Join(marks, ", "))
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback()

	stmts := []string{
		"DROP TABLE IF EXISTS " + curated,
		fmt.Sprintf("CREATE TABLE %s (LIKE %s INCLUDING DEFAULTS INCLUDING INDEXES)", curated, full),
	}
	for _, stmt := range stmts {
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return 0, fmt.Errorf("failed to prepare %s: %w", src.CuratedTable(), err)
		}
	}

	res, err := tx.ExecContext(ctx, fmt.Sprintf("INSERT INTO %s SELECT * FROM %s%s", curated, full, where), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to fill %s: %w", src.CuratedTable(), err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return n, tx.Commit()
}

// selectList renders the canonical permit projection for a dataset
func selectList(cols PermitColumns) string {
	text := func(c string) string {
		if c == "" {
			return "NULL::text"
		}
		return pq.QuoteIdentifier(c) + "::text"
	}
	ts := func(c string) string {
		if c == "" {
			return "NULL::timestamp"
		}
		return pq.QuoteIdentifier(c)
	}
	num := func(c string) string {
		if c == "" {
			return "NULL::numeric"
		}
		return pq.QuoteIdentifier(c)
	}
	return strings.Join([]string{
		"id",
		text(cols.PermitNumber),
		text(cols.Description),
		text(cols.Street),
		text(cols.City),
		text(cols.State),
		text(cols.Zip),
		ts(cols.Applied),
		ts(cols.Issued),
		ts(cols.Completed),
		ts(cols.StatusDate),
		text(cols.Status),
		text(cols.PermitClass),
		text(cols.PermitType),
		text(cols.WorkClass),
		text(cols.Contractor),
		num(cols.EstimatedCost),
		num(cols.Fee),
	}, ", ")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermit(row rowScanner, dataset string) (permit.Record, error) {
	var (
		r                                      permit.Record
		number, desc, street, city, state, zip sql.NullString
		status, class, ptype, work, contractor sql.NullString
		applied, issued, completed, statusAt   sql.NullTime
		cost, fee                              decimal.NullDecimal
	)
	err := row.Scan(&r.ID, &number, &desc, &street, &city, &state, &zip,
		&applied, &issued, &completed, &statusAt,
		&status, &class, &ptype, &work, &contractor, &cost, &fee)
	if err != nil {
		return permit.Record{}, err
	}

	r.Dataset = dataset
	r.PermitNumber = number.String
	r.Description = desc.String
	r.Street = street.String
	r.City = city.String
	r.State = state.String
	r.Zip = zip.String
	r.Applied = timePtr(applied)
	r.Issued = timePtr(issued)
	r.Completed = timePtr(completed)
	r.StatusAsOf = timePtr(statusAt)
	r.Status = status.String
	r.PermitClass = class.String
	r.PermitType = ptype.String
	r.WorkClass = work.String
	r.Contractor = contractor.String
	r.EstimatedCost = decimalPtr(cost)
	r.Fee = decimalPtr(fee)
	return r, nil
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func decimalPtr(d decimal.NullDecimal) *decimal.Decimal {
	if !d.Valid {
		return nil
	}
	v := d.Decimal
	return &v
}

// ListPermits returns one page of permits matching the query
func (s *PostgresStore) ListPermits(ctx context.Context, src PermitSource, q ListQuery) (PermitPage, error) {
	q = q.Normalized()
	cols := src.Columns

	table := src.Table
	if q.Curated {
		ok, err := s.tableExists(ctx, src.CuratedTable())
		if err != nil {
			return PermitPage{}, fmt.Errorf("failed to check curated table: %w", err)
		}
		if ok {
			table = src.CuratedTable()
		}
	}

	var (
		conds []string
		args  []any
	)
	if q.Search != "" {
		args = append(args, "%"+q.Search+"%")
		var ors []string
		for _, c := range []string{cols.Description, cols.Street, cols.Contractor, cols.PermitType} {
			if c != "" {
				ors = append(ors, fmt.Sprintf("LOWER(%s) LIKE LOWER($%d)", pq.QuoteIdentifier(c), len(args)))
			}
		}
		if len(ors) > 0 {
			conds = append(conds, "("+strings.Join(ors, " OR ")+")")
		}
	}
	if q.PermitType != "" && cols.PermitType != "" {
		args = append(args, q.PermitType)
		conds = append(conds, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(cols.PermitType), len(args)))
	}
	if q.Status != "" && cols.Status != "" {
		args = append(args, q.Status)
		conds = append(conds, fmt.Sprintf("%s = $%d", pq.QuoteIdentifier(cols.Status), len(args)))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", pq.QuoteIdentifier(table), where)
	if err := s.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return PermitPage{}, fmt.Errorf("failed to count permits: %w", err)
	}

	order := "id"
	if c, _ := sortColumn(cols, q.SortBy); c != "" {
		order = pq.QuoteIdentifier(c)
	}
	dir := "ASC"
	if q.SortDesc {
		dir = "DESC"
	}

	pageArgs := append(append([]any{}, args...), q.Limit, q.Offset())
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s %s NULLS LAST, id LIMIT $%d OFFSET $%d",
		selectList(cols), pq.QuoteIdentifier(table), where, order, dir, len(args)+1, len(args)+2)

	rows, err := s.db.QueryContext(ctx, query, pageArgs...)
	if err != nil {
		return PermitPage{}, fmt.Errorf("failed to list permits: %w", err)
	}
	defer rows.Close()

	var records []permit.Record
	for rows.Next() {
		r, err := scanPermit(rows, src.Dataset)
		if err != nil {
			return PermitPage{}, fmt.Errorf("failed to scan permit: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return PermitPage{}, err
	}
	return newPage(records, q, total), nil
}

// GetPermit loads one permit by id from the full table
func (s *PostgresStore) GetPermit(ctx context.Context, src PermitSource, id int64) (permit.Record, error) {
	query := fmt.Sprintf("SELECT %s FROM %s WHERE id = $1", selectList(src.Columns), pq.QuoteIdentifier(src.Table))
	r, err := scanPermit(s.db.QueryRowContext(ctx, query, id), src.Dataset)
	if errors.Is(err, sql.ErrNoRows) {
		return permit.Record{}, fmt.Errorf("permit %d: %w", id, ErrNotFound)
	}
	if err != nil {
		return permit.Record{}, fmt.Errorf("failed to load permit %d: %w", id, err)
	}
	return r, nil
}

// historyQuery selects the permits at addr, newest application first
func historyQuery(src PermitSource, addr permit.Address) (string, []any) {
	cols := src.Columns
	var (
		conds []string
		args  []any
	)
	fold := func(col, value string) {
		if col == "" {
			return
		}
		args = append(args, value)
		conds = append(conds, fmt.Sprintf("LOWER(COALESCE(%s, '')) = LOWER($%d)", pq.QuoteIdentifier(col), len(args)))
	}
	fold(cols.Street, addr.Street)
	fold(cols.City, addr.City)
	fold(cols.State, addr.State)
	if cols.Zip != "" {
		args = append(args, addr.Zip)
		conds = append(conds, fmt.Sprintf("COALESCE(%s, '') = $%d", pq.QuoteIdentifier(cols.Zip), len(args)))
	}

	order := "id"
	if cols.Applied != "" {
		order = pq.QuoteIdentifier(cols.Applied) + " DESC NULLS LAST, id"
	}
	query := fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s",
		selectList(cols), pq.QuoteIdentifier(src.Table), strings.Join(conds, " AND "), order)
	return query, args
}

// AddressHistory returns every permit at the address from the full table,
// newest application first. Street, city and state compare case-insensitively;
// zip compares exactly. A NULL column matches an empty address part, the
// same way scanPermit reads it.
func (s *PostgresStore) AddressHistory(ctx context.Context, src PermitSource, addr permit.Address) ([]permit.Record, error) {
	cols := src.Columns
	if cols.Street == "" {
		return nil, fmt.Errorf("dataset %s has no street column", src.Dataset)
	}

	query, args := historyQuery(src, addr)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load address history: %w", err)
	}
	defer rows.Close()

	var records []permit.Record
	for rows.Next() {
		r, err := scanPermit(rows, src.Dataset)
		if err != nil {
			return nil, fmt.Errorf("failed to scan permit: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// LOWER is not full Unicode case folding; refilter with the shared key
	return permit.History(records, addr), nil
}
