// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

//go:build dqlite
// +build dqlite

package litemap_test

import (
	"context"

	"github.com/canonical/go-dqlite/app"
	. "gopkg.in/check.v1"

	"github.com/canonical/litemap"
)

// DqliteSuite runs the built statements against a single node dqlite
// cluster instead of a plain SQLite file. dqlite speaks the SQLite wire
// semantics, so everything the compiler emits must behave identically.
//
// The suite needs the dqlite C libraries and is kept behind the dqlite
// build tag:
//
//	go test -tags dqlite ./...
type DqliteSuite struct {
	app *app.App
	db  *litemap.DB
}

var _ = Suite(&DqliteSuite{})

func (s *DqliteSuite) SetUpTest(c *C) {
	dqapp, err := app.New(c.MkDir(), app.WithAddress("127.0.0.1:9187"))
	c.Assert(err, IsNil)
	c.Assert(dqapp.Ready(context.Background()), IsNil)
	s.app = dqapp

	sqldb, err := dqapp.Open(context.Background(), "test")
	c.Assert(err, IsNil)
	s.db = litemap.NewDB(sqldb)
}

func (s *DqliteSuite) TearDownTest(c *C) {
	if s.db != nil {
		c.Assert(s.db.PlainDB().Close(), IsNil)
	}
	if s.app != nil {
		c.Assert(s.app.Close(), IsNil)
	}
}

func (s *DqliteSuite) TestRoundTrip(c *C) {
	ctx := context.Background()

	tab, err := litemap.NewTable(Player{})
	c.Assert(err, IsNil)

	create, err := tab.Create()
	c.Assert(err, IsNil)
	c.Assert(s.db.Query(ctx, create).Run(), IsNil)

	insert, err := tab.Insert(
		Player{Name: "Alice", Team: team("red"), Score: 120},
		Player{Name: "Bob", Team: nil, Score: 80},
	)
	c.Assert(err, IsNil)
	c.Assert(s.db.Query(ctx, insert).Run(), IsNil)

	stmt, err := tab.Select().Where(func(r *litemap.Row) litemap.Expr {
		return r.Col("Team").IsNull().Or(r.Col("Score").Gt(litemap.Lit(100)))
	}).Build()
	c.Assert(err, IsNil)

	var ps []Player
	c.Assert(s.db.Query(ctx, stmt).GetAll(&ps), IsNil)
	c.Assert(ps, HasLen, 2)

	drop, err := tab.Drop()
	c.Assert(err, IsNil)
	c.Assert(s.db.Query(ctx, drop).Run(), IsNil)
}
