/*
Package litemap maps Go structs to SQLite tables and compiles typed Go
expressions into parameterized SQL.

Tables are declared by tagging struct fields with `db` tags:

	type Player struct {
		ID    int64  `db:"id, primarykey, autoincrement"`
		Name  string `db:"name, unique"`
		Score int    `db:"score, indexed"`
	}

	players := litemap.MustNewTable(Player{})

Commands are built with fluent builders. Predicates and value expressions
are ordinary Go expressions written against the Row passed to the callback:

	stmt, err := players.Select().
		Where(func(r *litemap.Row) litemap.Expr {
			return r.Col("Score").Ge(litemap.Lit(90)).
				And(r.Col("Name").StartsWith(litemap.Lit("A")))
		}).
		OrderByDesc(func(r *litemap.Row) litemap.Expr { return r.Col("Score") }).
		Build()

Building compiles the expressions into SQL once. Every value captured with
Lit, and every subexpression that does not touch the row, binds as a named
parameter; no caller value is ever spliced into the SQL text. The statement
above compiles to:

	SELECT "id", "name", "score" FROM "Player"
	WHERE (("Player"."score" >= @p1) and ("Player"."name" like @p2 || '%' escape '\'))
	ORDER BY "Player"."score" desc

Comparing a column against Lit(nil) compiles to an IS NULL test, matching
SQL's null semantics rather than three-valued equality.

Statements run on a DB wrapping a database/sql handle; the driver prepared
forms are cached per database and reused across runs:

	db := litemap.NewDB(sqldb)
	var ps []Player
	err = db.Query(ctx, stmt).GetAll(&ps)

The expr subpackage holds the compiler itself. Its converter registry,
reachable through [Table.Registry], extends the expression language with
custom method and member conversions.
*/
package litemap
