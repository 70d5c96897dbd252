// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package litemap

import (
	"context"
	"database/sql"
	"fmt"
	"reflect"
	"sync/atomic"
)

var ErrNoRows = sql.ErrNoRows
var ErrTXDone = sql.ErrTxDone

// stmtCache stores the driver prepared statements associated to Statement
// objects.
var stmtCache = newStatementCache()

type DB struct {
	// cacheID is used to look up the cached driver prepared statements
	// prepared on this database.
	cacheID uint64
	// sqldb is the underlying database/sql DB object.
	sqldb *sql.DB
}

// NewDB wraps a [sql.DB] for running built statements on it.
func NewDB(sqldb *sql.DB) *DB {
	if sqldb == nil {
		return nil
	}
	return stmtCache.newDB(sqldb)
}

// PlainDB returns the underlying database object.
func (db *DB) PlainDB() *sql.DB {
	return db.sqldb
}

// Query represents a query on a database. It is designed to be run once.
type Query struct {
	// run executes the Query against the DB or the TX.
	run  func(context.Context) (*sql.Rows, sql.Result, error)
	ctx  context.Context
	err  error
	stmt *Statement
}

// Iterator is used to iterate over the results of the query.
type Iterator struct {
	stmt    *Statement
	rows    *sql.Rows
	err     error
	result  sql.Result
	started bool
}

// Query builds a new query from a context and a built [Statement]. The
// query is run on the database when one of [Query.Iter], [Query.Run],
// [Query.Get] or [Query.GetAll] is executed.
func (db *DB) Query(ctx context.Context, s *Statement) *Query {
	if ctx == nil {
		ctx = context.Background()
	}

	run := func(innerCtx context.Context) (rows *sql.Rows, result sql.Result, err error) {
		sqlstmt, ok := stmtCache.lookupStmt(db, s)
		if !ok {
			sqlstmt, err = stmtCache.driverPrepareStmt(innerCtx, db, s)
			if err != nil {
				return nil, nil, err
			}
		}

		if s.hasOutputs() {
			rows, err = sqlstmt.QueryContext(innerCtx, s.params...)
		} else {
			result, err = sqlstmt.ExecContext(innerCtx, s.params...)
		}
		return rows, result, err
	}

	return &Query{stmt: s, run: run, ctx: ctx}
}

func (s *Statement) hasOutputs() bool {
	return len(s.outputs) > 0 || s.scalar
}

// Run is used to run a query on a database and disregard any results.
// Run is an alias for [Query.Get] that takes no arguments.
func (q *Query) Run() error {
	return q.Get()
}

// Get runs the query and decodes the first row returned into dest: a
// pointer to the mapped struct, or a pointer to a plain value for scalar
// queries such as counts. It returns [ErrNoRows] if an output was requested
// but no row was found.
//
// A pointer to an empty [Outcome] struct may be provided as the first
// argument to fill it with information about query execution.
func (q *Query) Get(dest ...any) error {
	if q.err != nil {
		return q.err
	}
	var outcome *Outcome
	if len(dest) > 0 {
		if oc, ok := dest[0].(*Outcome); ok {
			outcome = oc
			dest = dest[1:]
		}
	}
	if !q.stmt.hasOutputs() && len(dest) > 0 {
		return fmt.Errorf("cannot get results: destination provided but the statement returns no rows")
	}

	var err error
	iter := q.Iter()
	if outcome != nil {
		err = iter.Get(outcome)
	}
	if err == nil && !iter.Next() {
		err = iter.Close()
		if err == nil && q.stmt.hasOutputs() {
			err = ErrNoRows
		}
		return err
	}
	if err == nil {
		err = iter.Get(dest...)
	}
	if cerr := iter.Close(); err == nil {
		err = cerr
	}
	return err
}

// Iter returns an [Iterator] to iterate through the results row by row.
// [Iterator.Close] must be run once iteration is finished.
func (q *Query) Iter() *Iterator {
	if q.err != nil {
		return &Iterator{err: q.err}
	}
	rows, result, err := q.run(q.ctx)
	if err != nil {
		return &Iterator{stmt: q.stmt, err: err}
	}
	return &Iterator{stmt: q.stmt, rows: rows, result: result}
}

// Next prepares the next row for [Iterator.Get]. If an error occurs during
// iteration it will be returned with [Iterator.Close].
func (iter *Iterator) Next() bool {
	iter.started = true
	if iter.err != nil || iter.rows == nil {
		return false
	}
	return iter.rows.Next()
}

// Get decodes the result from the previous [Iterator.Next] call into dest.
//
// Before the first call of [Iterator.Next] a pointer to an empty [Outcome]
// struct may be passed to Get as the only argument to fill it with
// information about query execution.
func (iter *Iterator) Get(dest ...any) (err error) {
	if iter.err != nil {
		return iter.err
	}
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot get result: %s", err)
		}
	}()

	if !iter.started {
		if len(dest) == 1 {
			if oc, ok := dest[0].(*Outcome); ok {
				oc.result = iter.result
				return nil
			}
		}
		return fmt.Errorf("cannot call Get before Next unless getting outcome")
	}
	if iter.rows == nil {
		return fmt.Errorf("iteration ended")
	}
	if len(dest) != 1 {
		return fmt.Errorf("need exactly one destination, got %d", len(dest))
	}

	if iter.stmt.scalar {
		return iter.rows.Scan(dest[0])
	}
	ptrs, onSuccess, err := iter.stmt.table.info.ScanTargets(iter.stmt.outputs, dest[0])
	if err != nil {
		return err
	}
	if err := iter.rows.Scan(ptrs...); err != nil {
		return err
	}
	onSuccess()
	return nil
}

// Close finishes the iteration and returns any errors encountered. Close can
// be called multiple times on the [Iterator] and the same error will be
// returned.
func (iter *Iterator) Close() error {
	iter.started = true
	if iter.rows == nil {
		return iter.err
	}
	err := iter.rows.Close()
	iter.rows = nil
	if iter.err != nil {
		return iter.err
	}
	return err
}

// Outcome holds metadata about executed queries, and can be provided as the
// first output argument to any of the Get methods to populate it with
// information about the query execution.
type Outcome struct {
	result sql.Result
}

// Result returns a [sql.Result] containing information about the query
// execution. If no result is set then Result returns nil.
func (o *Outcome) Result() sql.Result {
	return o.result
}

// GetAll runs the query and scans every row into the slice slicePtr points
// to. The slice element type must be the mapped struct or a pointer to it.
// A pointer to an empty [Outcome] struct may be provided before the slice.
//
// [ErrNoRows] will be returned if no rows are found.
func (q *Query) GetAll(dest ...any) (err error) {
	if q.err != nil {
		return q.err
	}
	if len(dest) > 0 {
		if outcome, ok := dest[0].(*Outcome); ok {
			outcome.result = nil
			dest = dest[1:]
		}
	}
	if len(dest) != 1 {
		return fmt.Errorf("need exactly one pointer to slice, got %d arguments", len(dest))
	}
	if !q.stmt.hasOutputs() {
		return fmt.Errorf("destination provided but the statement returns no rows")
	}
	ptrVal := reflect.ValueOf(dest[0])
	if ptrVal.Kind() != reflect.Pointer || ptrVal.IsNil() {
		return fmt.Errorf("need pointer to slice, got %T", dest[0])
	}
	sliceVal := ptrVal.Elem()
	if sliceVal.Kind() != reflect.Slice {
		return fmt.Errorf("need pointer to slice, got pointer to %s", sliceVal.Kind())
	}
	elemType := sliceVal.Type().Elem()
	elemPointer := elemType.Kind() == reflect.Pointer
	if elemPointer {
		elemType = elemType.Elem()
	}

	rowsReturned := false
	iter := q.Iter()
	for iter.Next() {
		rowsReturned = true
		elem := reflect.New(elemType)
		if err := iter.Get(elem.Interface()); err != nil {
			iter.Close()
			return err
		}
		if elemPointer {
			sliceVal = reflect.Append(sliceVal, elem)
		} else {
			sliceVal = reflect.Append(sliceVal, elem.Elem())
		}
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if !rowsReturned {
		return ErrNoRows
	}
	ptrVal.Elem().Set(sliceVal)
	return nil
}

// TX represents a transaction on the database.
type TX struct {
	sqltx *sql.Tx
	db    *DB
	done  int32
}

func (tx *TX) isDone() bool {
	return atomic.LoadInt32(&tx.done) == 1
}

func (tx *TX) setDone() error {
	if !atomic.CompareAndSwapInt32(&tx.done, 0, 1) {
		return ErrTXDone
	}
	return nil
}

// Begin starts a transaction. A transaction must be ended with a
// [TX.Commit] or [TX.Rollback].
func (db *DB) Begin(ctx context.Context, opts *TXOptions) (*TX, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	sqltx, err := db.sqldb.BeginTx(ctx, opts.plainTXOptions())
	if err != nil {
		return nil, err
	}
	return &TX{sqltx: sqltx, db: db}, nil
}

// Commit commits the transaction.
func (tx *TX) Commit() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Commit()
	}
	return err
}

// Rollback aborts the transaction.
func (tx *TX) Rollback() error {
	err := tx.setDone()
	if err == nil {
		err = tx.sqltx.Rollback()
	}
	return err
}

// TXOptions holds the transaction options to be used in [DB.Begin].
type TXOptions struct {
	// Isolation is the transaction isolation level.
	// If zero, the driver or database's default level is used.
	Isolation sql.IsolationLevel
	ReadOnly  bool
}

func (txopts *TXOptions) plainTXOptions() *sql.TxOptions {
	if txopts == nil {
		return nil
	}
	return &sql.TxOptions{Isolation: txopts.Isolation, ReadOnly: txopts.ReadOnly}
}

// Query builds a new query on the transaction from a context and a built
// [Statement]. The query is run when one of [Query.Iter], [Query.Run],
// [Query.Get] or [Query.GetAll] is executed.
func (tx *TX) Query(ctx context.Context, s *Statement) *Query {
	if ctx == nil {
		ctx = context.Background()
	}
	if tx.isDone() {
		return &Query{ctx: ctx, err: ErrTXDone}
	}

	run := func(innerCtx context.Context) (rows *sql.Rows, result sql.Result, err error) {
		if sqlstmt, ok := stmtCache.lookupStmt(tx.db, s); ok {
			// Register the prepared statement on the transaction. Note that
			// this does not re-prepare the statement on the driver. The
			// txstmt is closed by database/sql when the transaction is
			// committed or rolled back.
			txstmt := tx.sqltx.Stmt(sqlstmt)
			if s.hasOutputs() {
				rows, err = txstmt.QueryContext(innerCtx, s.params...)
			} else {
				result, err = txstmt.ExecContext(innerCtx, s.params...)
			}
			return rows, result, err
		}

		if s.hasOutputs() {
			rows, err = tx.sqltx.QueryContext(innerCtx, s.sql, s.params...)
		} else {
			result, err = tx.sqltx.ExecContext(innerCtx, s.sql, s.params...)
		}
		return rows, result, err
	}

	return &Query{stmt: s, ctx: ctx, run: run}
}
