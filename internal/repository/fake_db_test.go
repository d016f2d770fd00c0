package repository

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"strings"
	"sync"

	"guild-ranker/internal/database"
)

type execCall struct {
	query string
	args  []any
}

type fakeRow struct {
	vals []any
	err  error
}

// Scan assigns vals positionally; nil leaves the destination untouched.
func (r fakeRow) Scan(dest ...any) error {
	if r.err != nil {
		return r.err
	}
	if len(dest) != len(r.vals) {
		return fmt.Errorf("scan dest mismatch: %d != %d", len(dest), len(r.vals))
	}
	for i := range dest {
		if r.vals[i] == nil {
			continue
		}
		dv := reflect.ValueOf(dest[i])
		if dv.Kind() != reflect.Pointer {
			return fmt.Errorf("dest %d is not a pointer", i)
		}
		sv := reflect.ValueOf(r.vals[i])
		if sv.Type().AssignableTo(dv.Elem().Type()) {
			dv.Elem().Set(sv)
			continue
		}
		s, ok := dest[i].(sql.Scanner)
		if !ok {
			return fmt.Errorf("scan type mismatch at %d: %s into %s", i, sv.Type(), dv.Elem().Type())
		}
		if err := s.Scan(r.vals[i]); err != nil {
			return err
		}
	}
	return nil
}

type fakeRows struct {
	rows [][]any
	i    int
}

func (r *fakeRows) Close()     {}
func (r *fakeRows) Err() error { return nil }
func (r *fakeRows) Next() bool {
	if r.i >= len(r.rows) {
		return false
	}
	r.i++
	return true
}
func (r *fakeRows) Scan(dest ...any) error {
	return fakeRow{vals: r.rows[r.i-1]}.Scan(dest...)
}

// fakeDB dispatches on the lowercased query prefix.
type fakeDB struct {
	mu sync.Mutex

	execs     []execCall
	execErr   error
	queryRows map[string][][]any
	rowVals   map[string][]any
	rowErr    map[string]error

	committed  int
	rolledBack int
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		queryRows: map[string][][]any{},
		rowVals:   map[string][]any{},
		rowErr:    map[string]error{},
	}
}

func normalize(q string) string {
	return strings.Join(strings.Fields(strings.ToLower(q)), " ")
}

func (db *fakeDB) Ping(context.Context) error { return nil }
func (db *fakeDB) Close() error               { return nil }
func (db *fakeDB) SQLDB() *sql.DB             { return nil }

func (db *fakeDB) Begin(context.Context) (database.Tx, error) {
	return fakeTx{db: db}, nil
}

func (db *fakeDB) Exec(_ context.Context, query string, args ...any) (int64, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.execs = append(db.execs, execCall{query: normalize(query), args: args})
	if db.execErr != nil {
		return 0, db.execErr
	}
	return 1, nil
}

func (db *fakeDB) Query(_ context.Context, query string, args ...any) (database.Rows, error) {
	db.mu.Lock()
	defer db.mu.Unlock()
	q := normalize(query)
	db.execs = append(db.execs, execCall{query: q, args: args})
	for prefix, rows := range db.queryRows {
		if strings.HasPrefix(q, prefix) {
			return &fakeRows{rows: rows}, nil
		}
	}
	return &fakeRows{}, nil
}

func (db *fakeDB) QueryRow(_ context.Context, query string, args ...any) database.Row {
	db.mu.Lock()
	defer db.mu.Unlock()
	q := normalize(query)
	db.execs = append(db.execs, execCall{query: q, args: args})
	for prefix, err := range db.rowErr {
		if strings.HasPrefix(q, prefix) {
			return fakeRow{err: err}
		}
	}
	for prefix, vals := range db.rowVals {
		if strings.HasPrefix(q, prefix) {
			return fakeRow{vals: vals}
		}
	}
	return fakeRow{err: sql.ErrNoRows}
}

func (db *fakeDB) lastExec() execCall {
	db.mu.Lock()
	defer db.mu.Unlock()
	if len(db.execs) == 0 {
		return execCall{}
	}
	return db.execs[len(db.execs)-1]
}

type fakeTx struct {
	db *fakeDB
}

func (t fakeTx) Exec(ctx context.Context, query string, args ...any) (int64, error) {
	return t.db.Exec(ctx, query, args...)
}
func (t fakeTx) Query(ctx context.Context, query string, args ...any) (database.Rows, error) {
	return t.db.Query(ctx, query, args...)
}
func (t fakeTx) QueryRow(ctx context.Context, query string, args ...any) database.Row {
	return t.db.QueryRow(ctx, query, args...)
}
func (t fakeTx) Commit(context.Context) error {
	t.db.mu.Lock()
	t.db.committed++
	t.db.mu.Unlock()
	return nil
}
func (t fakeTx) Rollback(context.Context) error {
	t.db.mu.Lock()
	t.db.rolledBack++
	t.db.mu.Unlock()
	return nil
}
