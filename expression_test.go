// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package litemap_test

import (
	"database/sql"

	. "gopkg.in/check.v1"

	"github.com/canonical/litemap"
)

type BuilderSuite struct{}

var _ = Suite(&BuilderSuite{})

func (s *BuilderSuite) table(c *C) *litemap.Table {
	tab, err := litemap.NewTable(Player{})
	c.Assert(err, IsNil)
	return tab
}

func args(pairs ...any) []any {
	var params []any
	for i := 0; i < len(pairs); i += 2 {
		params = append(params, sql.Named(pairs[i].(string), pairs[i+1]))
	}
	return params
}

func (s *BuilderSuite) TestSelectSQL(c *C) {
	tab := s.table(c)

	stmt, err := tab.Select().Build()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals, `SELECT "id", "name", "team", "score" FROM "Player"`)
	c.Assert(stmt.Params(), IsNil)

	stmt, err = tab.Select("Name", "Score").
		Where(func(r *litemap.Row) litemap.Expr {
			return r.Col("Score").Ge(litemap.Lit(90))
		}).
		OrderByDesc(func(r *litemap.Row) litemap.Expr { return r.Col("Score") }).
		OrderBy(func(r *litemap.Row) litemap.Expr { return r.Col("Name") }).
		Limit(10).
		Offset(5).
		Build()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals,
		`SELECT "name", "score" FROM "Player"`+
			` WHERE ("Player"."score" >= @p1)`+
			` ORDER BY "Player"."score" desc, "Player"."name" asc`+
			` LIMIT @p2 OFFSET @p3`)
	c.Assert(stmt.Params(), DeepEquals, args("p1", 90, "p2", int64(10), "p3", int64(5)))
}

func (s *BuilderSuite) TestSelectOffsetWithoutLimit(c *C) {
	stmt, err := s.table(c).Select().Offset(3).Build()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals,
		`SELECT "id", "name", "team", "score" FROM "Player" LIMIT -1 OFFSET @p1`)
}

func (s *BuilderSuite) TestMultipleWheresConjoin(c *C) {
	stmt, err := s.table(c).Select("Name").
		Where(func(r *litemap.Row) litemap.Expr { return r.Col("Score").Gt(litemap.Lit(1)) }).
		Where(func(r *litemap.Row) litemap.Expr { return r.Col("Team").IsNotNull() }).
		Build()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals,
		`SELECT "name" FROM "Player" WHERE ("Player"."score" > @p1) and ("Player"."team" is not null)`)
}

func (s *BuilderSuite) TestCountSQL(c *C) {
	stmt, err := s.table(c).Count().
		Where(func(r *litemap.Row) litemap.Expr {
			return r.Col("Team").Eq(litemap.Lit("red"))
		}).
		Build()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals, `SELECT count(*) FROM "Player" WHERE ("Player"."team" = @p1)`)
}

func (s *BuilderSuite) TestGroupByHavingSQL(c *C) {
	stmt, err := s.table(c).Select("Team").
		GroupBy(func(r *litemap.Row) litemap.Expr { return r.Col("Team") }).
		Having(func(r *litemap.Row) litemap.Expr { return r.Col("Score").Gt(litemap.Lit(10)) }).
		Build()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals,
		`SELECT "team" FROM "Player" GROUP BY "Player"."team" HAVING ("Player"."score" > @p1)`)
}

func (s *BuilderSuite) TestInsertSQL(c *C) {
	tab := s.table(c)
	red := team("red")

	// The autoincrement key is left out.
	stmt, err := tab.Insert(Player{Name: "Alice", Team: red, Score: 120})
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals,
		`INSERT INTO "Player" ("name", "team", "score") VALUES (@p1, @p2, @p3)`)
	c.Assert(stmt.Params(), DeepEquals, args("p1", "Alice", "p2", red, "p3", 120))

	// Bulk rows share one column list with fresh placeholders per row.
	stmt, err = tab.Insert(
		Player{Name: "Alice", Team: red, Score: 120},
		Player{Name: "Bob", Score: 80},
	)
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals,
		`INSERT INTO "Player" ("name", "team", "score") VALUES (@p1, @p2, @p3), (@p4, @p5, @p6)`)
	c.Assert(stmt.Params(), HasLen, 6)
}

func (s *BuilderSuite) TestUpdateSQL(c *C) {
	stmt, err := s.table(c).Update().
		Set("Score", func(r *litemap.Row) litemap.Expr {
			return r.Col("Score").Add(litemap.Lit(10))
		}).
		SetValue("Team", "blue").
		Where(func(r *litemap.Row) litemap.Expr {
			return r.Col("Name").Eq(litemap.Lit("Alice"))
		}).
		Build()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals,
		`UPDATE "Player" SET "score" = ("Player"."score" + @p1), "team" = @p2 WHERE ("Player"."name" = @p3)`)
	c.Assert(stmt.Params(), DeepEquals, args("p1", 10, "p2", "blue", "p3", "Alice"))
}

func (s *BuilderSuite) TestDeleteSQL(c *C) {
	tab := s.table(c)

	stmt, err := tab.Delete().Build()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals, `DELETE FROM "Player"`)

	stmt, err = tab.Delete().
		Where(func(r *litemap.Row) litemap.Expr {
			return r.Col("Score").Lt(litemap.Lit(0))
		}).
		Build()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals, `DELETE FROM "Player" WHERE ("Player"."score" < @p1)`)
}

func (s *BuilderSuite) TestPrimaryKeySQL(c *C) {
	tab := s.table(c)

	stmt, err := tab.Get(int64(1))
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals,
		`SELECT "id", "name", "team", "score" FROM "Player" WHERE ("Player"."id" = @p1)`)

	stmt, err = tab.DeleteRow(Player{ID: 4})
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals, `DELETE FROM "Player" WHERE ("Player"."id" = @p1)`)
	c.Assert(stmt.Params(), DeepEquals, args("p1", int64(4)))

	stmt, err = tab.UpdateRow(Player{ID: 4, Name: "Dan", Score: 40})
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals,
		`UPDATE "Player" SET "name" = @p1, "team" = @p2, "score" = @p3 WHERE ("Player"."id" = @p4)`)
}

func (s *BuilderSuite) TestSchemaSQL(c *C) {
	tab := s.table(c)

	stmt, err := tab.Create()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals,
		`CREATE TABLE IF NOT EXISTS "Player" (`+
			`"id" integer primary key autoincrement, `+
			`"name" text unique, `+
			`"team" text, `+
			`"score" integer)`)

	stmt, err = tab.Drop()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals, `DROP TABLE IF EXISTS "Player"`)

	indexes, err := tab.CreateIndexes()
	c.Assert(err, IsNil)
	c.Assert(indexes, HasLen, 1)
	c.Assert(indexes[0].SQL(), Equals,
		`CREATE INDEX IF NOT EXISTS "idx_Player_score" ON "Player" ("score")`)
}

func (s *BuilderSuite) TestTableNames(c *C) {
	tab, err := litemap.NewTableNamed("players", Player{})
	c.Assert(err, IsNil)
	c.Assert(tab.Name(), Equals, "players")

	stmt, err := tab.Select("Name").
		Where(func(r *litemap.Row) litemap.Expr {
			return r.Col("Name").IsNull()
		}).
		Build()
	c.Assert(err, IsNil)
	c.Assert(stmt.SQL(), Equals, `SELECT "name" FROM "players" WHERE ("players"."name" is null)`)

	_, err = litemap.NewTableNamed("", Player{})
	c.Assert(err, ErrorMatches, `cannot map table: empty table name`)
}
