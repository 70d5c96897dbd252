// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package litemap

import (
	"context"
	"database/sql"
	"runtime"
	"sync"
	"sync/atomic"
)

// stmtIDCount and dbIDCount are global variables used to generate unique IDs.
var stmtIDCount uint64
var dbIDCount uint64

type dbID = uint64
type stmtID = uint64

// statementCache caches the sql.Stmt objects associated with each Statement.
// A Statement can correspond to multiple sql.Stmt values on different
// databases. The cache is indexed by the Statement ID and the DB ID.
//
// The cache closes sql.Stmt objects with a finalizer on the Statement.
// Similarly a finalizer is set on DB objects to close all statements
// prepared on the DB and remove references to the DB from the cache.
//
// The mutex must be locked when accessing either the stmtDBCache or the
// dbStmtCache.
type statementCache struct {
	stmtDBCache map[stmtID]map[dbID]*sql.Stmt
	dbStmtCache map[dbID]map[stmtID]bool
	mutex       sync.RWMutex
}

var once sync.Once
var singleStmtCache *statementCache

// newStatementCache returns the single instance of the statement cache.
func newStatementCache() *statementCache {
	once.Do(func() {
		singleStmtCache = &statementCache{
			stmtDBCache: map[stmtID]map[dbID]*sql.Stmt{},
			dbStmtCache: map[dbID]map[stmtID]bool{},
		}
	})
	return singleStmtCache
}

// newStatement allocates a built Statement in the cache. A finalizer is set
// on the Statement to remove all sql.Stmt values associated with it from the
// cache and close them once the Statement is garbage collected.
func newStatement(sqlText string, params []any, outputs []string, table *Table, scalar bool) *Statement {
	sc := stmtCache
	cacheID := atomic.AddUint64(&stmtIDCount, 1)
	s := &Statement{
		cacheID: cacheID,
		sql:     sqlText,
		params:  params,
		outputs: outputs,
		table:   table,
		scalar:  scalar,
	}
	sc.mutex.Lock()
	sc.stmtDBCache[cacheID] = map[dbID]*sql.Stmt{}
	sc.mutex.Unlock()
	runtime.SetFinalizer(s, sc.getStmtFinalizer(s))
	return s
}

// newDB allocates a DB in the cache. A finalizer is set on the DB which
// removes it from the cache and closes all sql.Stmt values prepared upon it
// once the DB is garbage collected. The sql.DB itself stays open; closing it
// remains the caller's responsibility.
func (sc *statementCache) newDB(sqldb *sql.DB) *DB {
	cacheID := atomic.AddUint64(&dbIDCount, 1)
	sc.mutex.Lock()
	sc.dbStmtCache[cacheID] = map[stmtID]bool{}
	sc.mutex.Unlock()
	db := &DB{sqldb: sqldb, cacheID: cacheID}
	runtime.SetFinalizer(db, sc.getDBFinalizer(db))
	return db
}

// lookupStmt returns the driver prepared statement of s on db, if present.
func (sc *statementCache) lookupStmt(db *DB, s *Statement) (*sql.Stmt, bool) {
	sc.mutex.RLock()
	defer sc.mutex.RUnlock()
	// The statement ID is only removed from the cache when the finalizer is
	// run, so it is always in stmtDBCache.
	sqlstmt, ok := sc.stmtDBCache[s.cacheID][db.cacheID]
	return sqlstmt, ok
}

// driverPrepareStmt prepares s on db's driver and caches the result. If two
// goroutines race here, the loser closes its duplicate and adopts the
// winner's statement.
func (sc *statementCache) driverPrepareStmt(ctx context.Context, db *DB, s *Statement) (*sql.Stmt, error) {
	sqlstmt, err := db.sqldb.PrepareContext(ctx, s.sql)
	if err != nil {
		return nil, err
	}
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	if sqlstmtAlt, ok := sc.stmtDBCache[s.cacheID][db.cacheID]; ok {
		sqlstmt.Close()
		return sqlstmtAlt, nil
	}
	sc.stmtDBCache[s.cacheID][db.cacheID] = sqlstmt
	sc.dbStmtCache[db.cacheID][s.cacheID] = true
	return sqlstmt, nil
}

// getStmtFinalizer returns a finalizer that removes a Statement from the
// caches and closes its prepared forms.
func (sc *statementCache) getStmtFinalizer(s *Statement) func(*Statement) {
	return func(s *Statement) {
		sc.mutex.Lock()
		defer sc.mutex.Unlock()
		dbCache := sc.stmtDBCache[s.cacheID]
		for dbCacheID, sqlstmt := range dbCache {
			sqlstmt.Close()
			delete(sc.dbStmtCache[dbCacheID], s.cacheID)
		}
		delete(sc.stmtDBCache, s.cacheID)
	}
}

// getDBFinalizer returns a finalizer that closes and removes from the cache
// all sql.Stmt values prepared on the database, then removes the database
// from the cache.
func (sc *statementCache) getDBFinalizer(db *DB) func(*DB) {
	return func(db *DB) {
		sc.mutex.Lock()
		defer sc.mutex.Unlock()
		stmts := sc.dbStmtCache[db.cacheID]
		for sID := range stmts {
			dbCache := sc.stmtDBCache[sID]
			dbCache[db.cacheID].Close()
			delete(dbCache, db.cacheID)
		}
		delete(sc.dbStmtCache, db.cacheID)
	}
}
