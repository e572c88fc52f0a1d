package store

import (
	"context"
	"database/sql"
	stderrors "errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jackc/pgx/v5/stdlib"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/victornm/quizlens/internal/errors"
)

type Driver string

const (
	DriverPostgres Driver = "postgres"
	DriverSQLite   Driver = "sqlite"
)

type Options struct {
	Driver Driver

	// Postgres connection. DSN, when set, wins over the individual fields.
	Addr string
	User string
	Pass string
	Name string

	// DSN is a postgres URL or a sqlite file DSN.
	DSN string
}

// DB implements Client on top of database/sql.
type DB struct {
	db     *sql.DB
	pool   *pgxpool.Pool
	driver Driver
}

var _ Client = (*DB)(nil)

// Open connects to the database and makes sure the schema exists.
func Open(ctx context.Context, o Options) (*DB, error) {
	var (
		s   = &DB{driver: o.Driver}
		err error
	)

	switch o.Driver {
	case DriverPostgres:
		s.pool, err = connectPostgres(ctx, o)
		if err != nil {
			return nil, fmt.Errorf("store: postgres: %w", err)
		}
		s.db = stdlib.OpenDBFromPool(s.pool)

	case DriverSQLite:
		dsn := o.DSN
		if dsn == "" {
			dsn = SQLiteDSN("quizlens.db")
		}
		s.db, err = sql.Open("sqlite", dsn)
		if err != nil {
			return nil, fmt.Errorf("store: sqlite: %w", err)
		}
		// sqlite allows a single writer; one connection avoids SQLITE_BUSY between our own statements.
		s.db.SetMaxOpenConns(1)
		if err := s.db.PingContext(ctx); err != nil {
			return nil, fmt.Errorf("store: sqlite: %w", err)
		}

	default:
		return nil, fmt.Errorf("store: unsupported driver %q", o.Driver)
	}

	if err := s.ensureSchema(ctx); err != nil {
		return nil, stderrors.Join(fmt.Errorf("store: ensure schema: %w", err), s.Close())
	}

	return s, nil
}

// SQLiteDSN returns a modernc sqlite DSN for path with foreign keys on and times written in a
// sortable text form.
func SQLiteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_time_format=sqlite", path)
}

func connectPostgres(ctx context.Context, o Options) (*pgxpool.Pool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	dsn := o.DSN
	if dsn == "" {
		dsn = fmt.Sprintf("postgres://%s:%s@%s/%s", o.User, o.Pass, o.Addr, o.Name)
	}

	cc, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}

	pool, err := pgxpool.NewWithConfig(ctx, cc)
	if err != nil {
		return nil, err
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	return pool, nil
}

func (s *DB) Close() error {
	err := s.db.Close()
	if s.pool != nil {
		s.pool.Close()
	}
	return err
}

func (s *DB) ensureSchema(ctx context.Context) error {
	var stmts []string
	switch s.driver {
	case DriverPostgres:
		stmts = []string{schemaPostgres, viewsPostgres}
	case DriverSQLite:
		stmts = []string{schemaSQLite, viewsSQLite}
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *DB) Select(ctx context.Context, table string, columns []string, filters []Filter, opts ...SelectOption) ([]Row, error) {
	var o selectOptions
	for _, opt := range opts {
		opt(&o)
	}

	if len(columns) == 0 {
		return nil, fmt.Errorf("store: select %s: no columns", table)
	}

	tbl, err := quote(table)
	if err != nil {
		return nil, err
	}

	cols, err := quoteAll(columns)
	if err != nil {
		return nil, err
	}

	w, args, err := where(filters, 1)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "SELECT %s FROM %s%s", strings.Join(cols, ", "), tbl, w)

	if len(o.orderBy) > 0 {
		terms := make([]string, 0, len(o.orderBy))
		for _, ob := range o.orderBy {
			col, err := quote(ob.column)
			if err != nil {
				return nil, err
			}
			if ob.desc {
				col += " DESC"
			}
			terms = append(terms, col)
		}
		b.WriteString(" ORDER BY " + strings.Join(terms, ", "))
	}

	if o.limit > 0 {
		fmt.Fprintf(&b, " LIMIT %d", o.limit)
	}

	rows, err := s.db.QueryContext(ctx, b.String(), args...)
	if err != nil {
		return nil, s.convert(fmt.Errorf("select %s: %w", table, err))
	}
	defer rows.Close()

	names, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var out []Row
	for rows.Next() {
		vals := make([]any, len(names))
		ptrs := make([]any, len(names))
		for i := range vals {
			ptrs[i] = &vals[i]
		}

		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("select %s: scan: %w", table, err)
		}

		r := make(Row, len(names))
		for i, n := range names {
			r[n] = scanned(vals[i])
		}
		out = append(out, r)
	}

	if err := rows.Err(); err != nil {
		return nil, s.convert(fmt.Errorf("select %s: %w", table, err))
	}

	return out, nil
}

func (s *DB) Insert(ctx context.Context, table string, rows []Row) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	stmt, args, err := insertStmt(table, rows)
	if err != nil {
		return 0, err
	}

	return s.exec(ctx, "insert "+table, stmt, args)
}

func (s *DB) Upsert(ctx context.Context, table string, rows []Row, conflictKey string) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	key, err := quote(conflictKey)
	if err != nil {
		return 0, err
	}

	withIDs := make([]Row, 0, len(rows))
	for _, r := range rows {
		if v, ok := r[conflictKey]; ok && v != nil && v != "" {
			withIDs = append(withIDs, r)
			continue
		}

		id, err := uuid.NewV7()
		if err != nil {
			return 0, fmt.Errorf("generate %s: %w", conflictKey, err)
		}

		cp := make(Row, len(r)+1)
		for k, v := range r {
			cp[k] = v
		}
		cp[conflictKey] = id.String()
		withIDs = append(withIDs, cp)
	}

	stmt, args, err := insertStmt(table, withIDs)
	if err != nil {
		return 0, err
	}

	var sets []string
	for _, c := range columnsOf(withIDs[0]) {
		if c == conflictKey {
			continue
		}
		qc, _ := quote(c)
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", qc, qc))
	}

	if len(sets) == 0 {
		stmt += fmt.Sprintf(" ON CONFLICT (%s) DO NOTHING", key)
	} else {
		stmt += fmt.Sprintf(" ON CONFLICT (%s) DO UPDATE SET %s", key, strings.Join(sets, ", "))
	}

	return s.exec(ctx, "upsert "+table, stmt, args)
}

func (s *DB) Delete(ctx context.Context, table string, filters []Filter) error {
	if len(filters) == 0 {
		return fmt.Errorf("store: delete %s: refusing to delete without filters", table)
	}

	tbl, err := quote(table)
	if err != nil {
		return err
	}

	w, args, err := where(filters, 1)
	if err != nil {
		return err
	}

	_, err = s.exec(ctx, "delete "+table, "DELETE FROM "+tbl+w, args)
	return err
}

func (s *DB) exec(ctx context.Context, op, stmt string, args []any) (int64, error) {
	res, err := s.db.ExecContext(ctx, stmt, args...)
	if err != nil {
		return 0, s.convert(fmt.Errorf("%s: %w", op, err))
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%s: rows affected: %w", op, err)
	}

	return n, nil
}

// convert maps constraint violations onto API error codes and leaves everything else as is.
func (s *DB) convert(err error) error {
	const (
		codeUniqueViolation     = "23505"
		codeForeignKeyViolation = "23503"
	)

	var pgErr *pgconn.PgError
	if stderrors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeUniqueViolation:
			return errors.New(errors.CodeAlreadyExists, errors.WithMessagef("%s", pgErr.Detail), errors.WithCause(err))
		case codeForeignKeyViolation:
			return errors.New(errors.CodeFailedPrecondition, errors.WithMessagef("%s", pgErr.Detail), errors.WithCause(err))
		}
		return err
	}

	var liteErr *sqlite.Error
	if stderrors.As(err, &liteErr) {
		switch liteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return errors.New(errors.CodeAlreadyExists, errors.WithCause(err))
		case sqlite3.SQLITE_CONSTRAINT_FOREIGNKEY, sqlite3.SQLITE_CONSTRAINT:
			return errors.New(errors.CodeFailedPrecondition, errors.WithCause(err))
		}
	}

	return err
}

func insertStmt(table string, rows []Row) (string, []any, error) {
	tbl, err := quote(table)
	if err != nil {
		return "", nil, err
	}

	columns := columnsOf(rows[0])
	cols, err := quoteAll(columns)
	if err != nil {
		return "", nil, err
	}

	var (
		values = make([]string, 0, len(rows))
		args   = make([]any, 0, len(rows)*len(columns))
		next   = 1
	)

	for i, r := range rows {
		if len(r) != len(columns) {
			return "", nil, fmt.Errorf("store: %s row %d: columns differ from first row", table, i)
		}

		ph := make([]string, 0, len(columns))
		for _, c := range columns {
			v, ok := r[c]
			if !ok {
				return "", nil, fmt.Errorf("store: %s row %d: missing column %q", table, i, c)
			}
			ph = append(ph, fmt.Sprintf("$%d", next))
			args = append(args, bindable(v))
			next++
		}
		values = append(values, "("+strings.Join(ph, ", ")+")")
	}

	stmt := fmt.Sprintf("INSERT INTO %s (%s) VALUES %s", tbl, strings.Join(cols, ", "), strings.Join(values, ", "))
	return stmt, args, nil
}

func columnsOf(r Row) []string {
	cols := make([]string, 0, len(r))
	for c := range r {
		cols = append(cols, c)
	}
	slices.Sort(cols)
	return cols
}

func quoteAll(idents []string) ([]string, error) {
	out := make([]string, 0, len(idents))
	for _, id := range idents {
		q, err := quote(id)
		if err != nil {
			return nil, err
		}
		out = append(out, q)
	}
	return out, nil
}

func scanned(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
