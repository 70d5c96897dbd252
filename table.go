// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package litemap

import (
	"fmt"
	"reflect"
	"strings"
	"time"

	"github.com/canonical/litemap/expr"
	"github.com/canonical/litemap/internal/typeinfo"
)

// Table maps a struct type to a database table. The zero value is not
// usable; construct with NewTable or NewTableNamed. A Table is immutable
// apart from its Registry, which must not be extended once commands are
// being built concurrently.
type Table struct {
	name     string
	info     *typeinfo.Info
	registry *expr.Registry
}

// NewTable maps the sample's struct type to a table named after the type.
// Columns are declared with "db" struct tags:
//
//	type Player struct {
//	        ID    int64  `db:"id, primarykey, autoincrement"`
//	        Name  string `db:"name, unique"`
//	        Score int    `db:"score, indexed"`
//	}
func NewTable(sample any) (*Table, error) {
	info, err := typeinfo.GetTypeInfo(sample)
	if err != nil {
		return nil, fmt.Errorf("cannot map table: %s", err)
	}
	return &Table{name: info.TypeName(), info: info, registry: expr.NewRegistry()}, nil
}

// NewTableNamed is NewTable with an explicit table name.
func NewTableNamed(name string, sample any) (*Table, error) {
	if name == "" {
		return nil, fmt.Errorf("cannot map table: empty table name")
	}
	t, err := NewTable(sample)
	if err != nil {
		return nil, err
	}
	t.name = name
	return t, nil
}

// MustNewTable is NewTable, panicking on error. Intended for mappings
// declared at package level.
func MustNewTable(sample any) *Table {
	t, err := NewTable(sample)
	if err != nil {
		panic(err)
	}
	return t
}

// Name returns the table name.
func (t *Table) Name() string {
	return t.name
}

// Registry returns the converter registry used when compiling this table's
// expressions. Register additional method or member conversions before
// building commands; the registry must not be extended concurrently with
// command builds.
func (t *Table) Registry() *expr.Registry {
	return t.registry
}

func (t *Table) compiler() *expr.Compiler {
	return expr.NewCompiler(t.name, t.info, t.registry)
}

// Statement is a built command: final SQL text plus the ordered parameters
// to run it with. A Statement is immutable and can be run any number of
// times, on any DB; the prepared forms are cached per database.
type Statement struct {
	cacheID uint64
	sql     string
	params  []any
	// outputs are the members the result columns scan into, in order.
	// Empty for commands that return no rows.
	outputs []string
	table   *Table
	// scalar marks single-column outputs such as counts, scanned into a
	// plain value rather than a struct.
	scalar bool
}

// SQL returns the generated SQL text.
func (s *Statement) SQL() string {
	return s.sql
}

// Params returns the named parameters in the order they were bound.
func (s *Statement) Params() []any {
	return s.params
}

func (t *Table) notMapped(member string) error {
	return fmt.Errorf("%q is not a mapped member of %s", member, t.info.TypeName())
}

// Select builds a SELECT over the mapped columns. With no arguments every
// column is selected; otherwise only the named members are.
func (t *Table) Select(members ...string) *Select {
	s := &Select{t: t, c: t.compiler()}
	if len(members) == 0 {
		for _, col := range t.info.Columns() {
			s.members = append(s.members, col.Member)
		}
		return s
	}
	for _, m := range members {
		if _, ok := t.info.ColumnByMember(m); !ok {
			s.err = t.notMapped(m)
			return s
		}
	}
	s.members = members
	return s
}

// Count builds a SELECT count(*), restrictable with Where.
func (t *Table) Count() *Select {
	return &Select{t: t, c: t.compiler(), count: true}
}

// Select accumulates the clauses of a SELECT. Methods record the first
// error and Build returns it; intermediate calls need no error checks.
type Select struct {
	t        *Table
	c        *expr.Compiler
	err      error
	members  []string
	count    bool
	distinct bool
	where    []string
	groupBy  []string
	having   []string
	orderBy  []string
	limit    string
	offset   string
}

// Distinct adds the DISTINCT qualifier.
func (s *Select) Distinct() *Select {
	s.distinct = true
	return s
}

// Where restricts the selected rows. Multiple calls conjoin.
func (s *Select) Where(pred func(*Row) Expr) *Select {
	if s.err != nil {
		return s
	}
	row := newRow()
	frag, err := s.c.CompilePredicate(pred(row).node, row.mark)
	if err != nil {
		s.err = err
		return s
	}
	s.where = append(s.where, frag)
	return s
}

// OrderBy sorts ascending on a column. Repeated calls append sort keys.
func (s *Select) OrderBy(col func(*Row) Expr) *Select {
	return s.order(col, "asc")
}

// OrderByDesc sorts descending on a column.
func (s *Select) OrderByDesc(col func(*Row) Expr) *Select {
	return s.order(col, "desc")
}

func (s *Select) order(col func(*Row) Expr, dir string) *Select {
	if s.err != nil {
		return s
	}
	row := newRow()
	frag, err := s.c.CompileColumnRef(col(row).node, row.mark)
	if err != nil {
		s.err = err
		return s
	}
	s.orderBy = append(s.orderBy, frag+" "+dir)
	return s
}

// GroupBy groups the selected rows on a column.
func (s *Select) GroupBy(col func(*Row) Expr) *Select {
	if s.err != nil {
		return s
	}
	row := newRow()
	frag, err := s.c.CompileColumnRef(col(row).node, row.mark)
	if err != nil {
		s.err = err
		return s
	}
	s.groupBy = append(s.groupBy, frag)
	return s
}

// Having restricts the grouped rows. Multiple calls conjoin.
func (s *Select) Having(pred func(*Row) Expr) *Select {
	if s.err != nil {
		return s
	}
	row := newRow()
	frag, err := s.c.CompilePredicate(pred(row).node, row.mark)
	if err != nil {
		s.err = err
		return s
	}
	s.having = append(s.having, frag)
	return s
}

// Limit caps the number of returned rows. The count binds as a parameter.
func (s *Select) Limit(n int) *Select {
	if s.err != nil {
		return s
	}
	s.limit = s.c.Sink().Add(int64(n))
	return s
}

// Offset skips the first n rows.
func (s *Select) Offset(n int) *Select {
	if s.err != nil {
		return s
	}
	s.offset = s.c.Sink().Add(int64(n))
	return s
}

// Build assembles the statement, or returns the first error recorded while
// compiling its clauses.
func (s *Select) Build() (*Statement, error) {
	if s.err != nil {
		return nil, s.err
	}
	var b strings.Builder
	b.WriteString("SELECT ")
	if s.distinct {
		b.WriteString("distinct ")
	}
	if s.count {
		b.WriteString("count(*)")
	} else {
		for i, m := range s.members {
			if i > 0 {
				b.WriteString(", ")
			}
			col, _ := s.t.info.ColumnByMember(m)
			b.WriteString(expr.QuoteIdentifier(col.Name))
		}
	}
	b.WriteString(" FROM ")
	b.WriteString(expr.QuoteIdentifier(s.t.name))
	if len(s.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(s.where, " and "))
	}
	if len(s.groupBy) > 0 {
		b.WriteString(" GROUP BY ")
		b.WriteString(strings.Join(s.groupBy, ", "))
	}
	if len(s.having) > 0 {
		b.WriteString(" HAVING ")
		b.WriteString(strings.Join(s.having, " and "))
	}
	if len(s.orderBy) > 0 {
		b.WriteString(" ORDER BY ")
		b.WriteString(strings.Join(s.orderBy, ", "))
	}
	if s.limit != "" {
		b.WriteString(" LIMIT ")
		b.WriteString(s.limit)
	} else if s.offset != "" {
		// SQLite requires a LIMIT before OFFSET; -1 means no limit.
		b.WriteString(" LIMIT -1")
	}
	if s.offset != "" {
		b.WriteString(" OFFSET ")
		b.WriteString(s.offset)
	}
	return newStatement(b.String(), s.c.Params(), s.members, s.t, s.count), nil
}

// Insert builds an INSERT for one or more rows of the mapped type.
// Autoincrement columns are always omitted. For a single row, omitempty
// columns holding their zero value are omitted too; bulk inserts write
// every remaining column so that all rows share one column list.
func (t *Table) Insert(rows ...any) (*Statement, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("cannot build insert: no rows")
	}
	var cols []*typeinfo.Column
	for _, col := range t.info.Columns() {
		if col.AutoIncrement {
			continue
		}
		if col.OmitEmpty && len(rows) == 1 {
			zero, err := t.info.IsZero(rows[0], col)
			if err != nil {
				return nil, fmt.Errorf("cannot build insert: %s", err)
			}
			if zero {
				continue
			}
		}
		cols = append(cols, col)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("cannot build insert: no columns to insert")
	}

	c := t.compiler()
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(expr.QuoteIdentifier(t.name))
	b.WriteString(" (")
	for i, col := range cols {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(expr.QuoteIdentifier(col.Name))
	}
	b.WriteString(") VALUES ")
	for n, row := range rows {
		values, err := t.info.RowValues(row, cols)
		if err != nil {
			return nil, fmt.Errorf("cannot build insert: %s", err)
		}
		if n > 0 {
			b.WriteString(", ")
		}
		b.WriteString("(")
		for i, v := range values {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(c.Sink().Add(v))
		}
		b.WriteString(")")
	}
	return newStatement(b.String(), c.Params(), nil, t, false), nil
}

// Update accumulates the clauses of an UPDATE.
type Update struct {
	t     *Table
	c     *expr.Compiler
	err   error
	sets  []string
	where []string
}

// Update builds an UPDATE. At least one Set or SetValue is required.
func (t *Table) Update() *Update {
	return &Update{t: t, c: t.compiler()}
}

// Set assigns a member a computed value, which may read the current row:
//
//	tab.Update().Set("Score", func(r *litemap.Row) litemap.Expr {
//	        return r.Col("Score").Add(litemap.Lit(10))
//	})
func (u *Update) Set(member string, value func(*Row) Expr) *Update {
	if u.err != nil {
		return u
	}
	col, ok := u.t.info.ColumnByMember(member)
	if !ok {
		u.err = u.t.notMapped(member)
		return u
	}
	row := newRow()
	frag, err := u.c.CompileValue(value(row).node, row.mark)
	if err != nil {
		u.err = err
		return u
	}
	// SET targets take the bare column name, unqualified.
	u.sets = append(u.sets, expr.QuoteIdentifier(col.Name)+" = "+frag)
	return u
}

// SetValue assigns a member a captured value.
func (u *Update) SetValue(member string, value any) *Update {
	return u.Set(member, func(*Row) Expr { return Lit(value) })
}

// Where restricts the updated rows. Multiple calls conjoin; with no Where
// every row is updated.
func (u *Update) Where(pred func(*Row) Expr) *Update {
	if u.err != nil {
		return u
	}
	row := newRow()
	frag, err := u.c.CompilePredicate(pred(row).node, row.mark)
	if err != nil {
		u.err = err
		return u
	}
	u.where = append(u.where, frag)
	return u
}

// Build assembles the statement, or returns the first error recorded while
// compiling its clauses.
func (u *Update) Build() (*Statement, error) {
	if u.err != nil {
		return nil, u.err
	}
	if len(u.sets) == 0 {
		return nil, fmt.Errorf("cannot build update: no columns to set")
	}
	var b strings.Builder
	b.WriteString("UPDATE ")
	b.WriteString(expr.QuoteIdentifier(u.t.name))
	b.WriteString(" SET ")
	b.WriteString(strings.Join(u.sets, ", "))
	if len(u.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(u.where, " and "))
	}
	return newStatement(b.String(), u.c.Params(), nil, u.t, false), nil
}

// Delete accumulates the clauses of a DELETE.
type Delete struct {
	t     *Table
	c     *expr.Compiler
	err   error
	where []string
}

// Delete builds a DELETE. With no Where every row is deleted.
func (t *Table) Delete() *Delete {
	return &Delete{t: t, c: t.compiler()}
}

// Where restricts the deleted rows. Multiple calls conjoin.
func (d *Delete) Where(pred func(*Row) Expr) *Delete {
	if d.err != nil {
		return d
	}
	row := newRow()
	frag, err := d.c.CompilePredicate(pred(row).node, row.mark)
	if err != nil {
		d.err = err
		return d
	}
	d.where = append(d.where, frag)
	return d
}

// Build assembles the statement, or returns the first error recorded while
// compiling its clauses.
func (d *Delete) Build() (*Statement, error) {
	if d.err != nil {
		return nil, d.err
	}
	var b strings.Builder
	b.WriteString("DELETE FROM ")
	b.WriteString(expr.QuoteIdentifier(d.t.name))
	if len(d.where) > 0 {
		b.WriteString(" WHERE ")
		b.WriteString(strings.Join(d.where, " and "))
	}
	return newStatement(b.String(), d.c.Params(), nil, d.t, false), nil
}

func (t *Table) primaryKey() (*typeinfo.Column, error) {
	pk, ok := t.info.PrimaryKey()
	if !ok {
		return nil, fmt.Errorf("%s declares no primary key", t.info.TypeName())
	}
	return pk, nil
}

// Get builds a SELECT of the single row with the given primary key value.
func (t *Table) Get(key any) (*Statement, error) {
	pk, err := t.primaryKey()
	if err != nil {
		return nil, fmt.Errorf("cannot build get: %s", err)
	}
	return t.Select().Where(func(r *Row) Expr {
		return r.Col(pk.Member).Eq(Lit(key))
	}).Build()
}

// UpdateRow builds an UPDATE writing every non-key column of row, keyed on
// its primary key value.
func (t *Table) UpdateRow(row any) (*Statement, error) {
	pk, err := t.primaryKey()
	if err != nil {
		return nil, fmt.Errorf("cannot build update: %s", err)
	}
	u := t.Update()
	for _, col := range t.info.Columns() {
		if col.PrimaryKey {
			continue
		}
		values, err := t.info.RowValues(row, []*typeinfo.Column{col})
		if err != nil {
			return nil, fmt.Errorf("cannot build update: %s", err)
		}
		u.SetValue(col.Member, values[0])
	}
	key, err := t.info.RowValues(row, []*typeinfo.Column{pk})
	if err != nil {
		return nil, fmt.Errorf("cannot build update: %s", err)
	}
	return u.Where(func(r *Row) Expr {
		return r.Col(pk.Member).Eq(Lit(key[0]))
	}).Build()
}

// DeleteRow builds a DELETE of row, keyed on its primary key value.
func (t *Table) DeleteRow(row any) (*Statement, error) {
	pk, err := t.primaryKey()
	if err != nil {
		return nil, fmt.Errorf("cannot build delete: %s", err)
	}
	key, err := t.info.RowValues(row, []*typeinfo.Column{pk})
	if err != nil {
		return nil, fmt.Errorf("cannot build delete: %s", err)
	}
	return t.Delete().Where(func(r *Row) Expr {
		return r.Col(pk.Member).Eq(Lit(key[0]))
	}).Build()
}

// Create builds the CREATE TABLE IF NOT EXISTS statement for the mapping.
// Column types follow SQLite affinity: Go integers and bools map to
// integer, floats to real, strings to text, byte slices to blob and
// time.Time to datetime. Pointer fields map like their element type and
// default to nullable.
func (t *Table) Create() (*Statement, error) {
	var b strings.Builder
	b.WriteString("CREATE TABLE IF NOT EXISTS ")
	b.WriteString(expr.QuoteIdentifier(t.name))
	b.WriteString(" (")
	for i, col := range t.info.Columns() {
		if i > 0 {
			b.WriteString(", ")
		}
		affinity, err := columnAffinity(col.Type)
		if err != nil {
			return nil, fmt.Errorf("cannot build create table for %s: column %q: %s", t.info.TypeName(), col.Name, err)
		}
		b.WriteString(expr.QuoteIdentifier(col.Name))
		b.WriteString(" ")
		b.WriteString(affinity)
		if col.PrimaryKey {
			b.WriteString(" primary key")
			if col.AutoIncrement {
				b.WriteString(" autoincrement")
			}
		}
		if col.NotNull {
			b.WriteString(" not null")
		}
		if col.Unique {
			b.WriteString(" unique")
		}
		if col.Default != "" {
			b.WriteString(" default ")
			b.WriteString(col.Default)
		}
	}
	b.WriteString(")")
	return newStatement(b.String(), nil, nil, t, false), nil
}

// Drop builds the DROP TABLE IF EXISTS statement for the mapping.
func (t *Table) Drop() (*Statement, error) {
	return newStatement("DROP TABLE IF EXISTS "+expr.QuoteIdentifier(t.name), nil, nil, t, false), nil
}

// CreateIndexes builds a CREATE INDEX IF NOT EXISTS statement for every
// indexed column of the mapping.
func (t *Table) CreateIndexes() ([]*Statement, error) {
	var stmts []*Statement
	for _, col := range t.info.Columns() {
		if !col.Indexed {
			continue
		}
		name := fmt.Sprintf("idx_%s_%s", t.name, col.Name)
		sql := "CREATE INDEX IF NOT EXISTS " + expr.QuoteIdentifier(name) +
			" ON " + expr.QuoteIdentifier(t.name) + " (" + expr.QuoteIdentifier(col.Name) + ")"
		stmts = append(stmts, newStatement(sql, nil, nil, t, false))
	}
	return stmts, nil
}

var timeType = reflect.TypeOf(time.Time{})

func columnAffinity(t reflect.Type) (string, error) {
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t == timeType {
		return "datetime", nil
	}
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "integer", nil
	case reflect.Float32, reflect.Float64:
		return "real", nil
	case reflect.String:
		return "text", nil
	case reflect.Slice:
		if t.Elem().Kind() == reflect.Uint8 {
			return "blob", nil
		}
	}
	return "", fmt.Errorf("cannot map Go type %s to a column type", t)
}
