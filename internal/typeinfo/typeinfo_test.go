// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo_test

import (
	"reflect"
	"testing"

	. "gopkg.in/check.v1"

	"github.com/canonical/litemap/internal/typeinfo"
)

// Hook up gocheck into the "go test" runner.
func TestPackage(t *testing.T) { TestingT(t) }

type typeInfoSuite struct{}

var _ = Suite(&typeInfoSuite{})

type Account struct {
	ID      int64  `db:"id, primarykey, autoincrement"`
	Owner   string `db:"owner, unique, notnull"`
	Balance int    `db:"balance, indexed"`
	Note    string `db:"note, omitempty, default='-'"`
	// Untagged fields stay outside the mapping.
	scratch string
}

func (s *typeInfoSuite) TestGetTypeInfo(c *C) {
	info, err := typeinfo.GetTypeInfo(Account{})
	c.Assert(err, IsNil)
	c.Assert(info.TypeName(), Equals, "Account")

	cols := info.Columns()
	c.Assert(cols, HasLen, 4)
	c.Assert(cols[0].Name, Equals, "id")
	c.Assert(cols[0].PrimaryKey, Equals, true)
	c.Assert(cols[0].AutoIncrement, Equals, true)
	c.Assert(cols[1].Name, Equals, "owner")
	c.Assert(cols[1].Unique, Equals, true)
	c.Assert(cols[1].NotNull, Equals, true)
	c.Assert(cols[2].Indexed, Equals, true)
	c.Assert(cols[3].OmitEmpty, Equals, true)
	c.Assert(cols[3].Default, Equals, "'-'")

	pk, ok := info.PrimaryKey()
	c.Assert(ok, Equals, true)
	c.Assert(pk.Member, Equals, "ID")

	// A pointer sample maps to the same cached info.
	ptrInfo, err := typeinfo.GetTypeInfo(&Account{})
	c.Assert(err, IsNil)
	c.Assert(ptrInfo, Equals, info)
}

func (s *typeInfoSuite) TestColumnMapper(c *C) {
	info, err := typeinfo.GetTypeInfo(Account{})
	c.Assert(err, IsNil)

	name, ok := info.Column("Owner")
	c.Assert(ok, Equals, true)
	c.Assert(name, Equals, "owner")

	typ, ok := info.MemberType("Balance")
	c.Assert(ok, Equals, true)
	c.Assert(typ, Equals, reflect.TypeOf(0))

	_, ok = info.Column("Nope")
	c.Assert(ok, Equals, false)
	_, ok = info.MemberType("scratch")
	c.Assert(ok, Equals, false)
}

func (s *typeInfoSuite) TestGetTypeInfoErrors(c *C) {
	var tests = []struct {
		summary string
		sample  any
		err     string
	}{{
		summary: "nil sample",
		sample:  nil,
		err:     `cannot map nil value`,
	}, {
		summary: "non struct",
		sample:  42,
		err:     `cannot map int, need struct or pointer to struct`,
	}, {
		summary: "anonymous struct",
		sample:  struct{}{},
		err:     `cannot map anonymous struct`,
	}}

	for _, t := range tests {
		c.Logf("test: %s", t.summary)
		_, err := typeinfo.GetTypeInfo(t.sample)
		c.Assert(err, ErrorMatches, t.err)
	}

	type unexported struct {
		id int `db:"id"`
	}
	_, err := typeinfo.GetTypeInfo(unexported{})
	c.Assert(err, ErrorMatches, `field "id" of struct unexported is not exported`)

	type duplicated struct {
		A int `db:"x"`
		B int `db:"x"`
	}
	_, err = typeinfo.GetTypeInfo(duplicated{})
	c.Assert(err, ErrorMatches, `struct duplicated maps column "x" twice, fields "A" and "B"`)

	type twoKeys struct {
		A int `db:"a, primarykey"`
		B int `db:"b, primarykey"`
	}
	_, err = typeinfo.GetTypeInfo(twoKeys{})
	c.Assert(err, ErrorMatches, `struct twoKeys has more than one primary key`)

	type autoNoKey struct {
		A int `db:"a, autoincrement"`
	}
	_, err = typeinfo.GetTypeInfo(autoNoKey{})
	c.Assert(err, ErrorMatches, `column "a" of struct autoNoKey: autoincrement needs primarykey`)

	type autoString struct {
		A string `db:"a, primarykey, autoincrement"`
	}
	_, err = typeinfo.GetTypeInfo(autoString{})
	c.Assert(err, ErrorMatches, `column "a" of struct autoString: autoincrement needs an integer field`)

	type badName struct {
		A int `db:"a b"`
	}
	_, err = typeinfo.GetTypeInfo(badName{})
	c.Assert(err, ErrorMatches, `cannot parse tag of field "A" of struct badName: invalid column name "a b"`)

	type badOption struct {
		A int `db:"a, sparkly"`
	}
	_, err = typeinfo.GetTypeInfo(badOption{})
	c.Assert(err, ErrorMatches, `cannot parse tag of field "A" of struct badOption: unexpected tag value "sparkly"`)

	type untagged struct {
		A int
	}
	_, err = typeinfo.GetTypeInfo(untagged{})
	c.Assert(err, ErrorMatches, `no "db" tags found in struct untagged`)
}

func (s *typeInfoSuite) TestRowValues(c *C) {
	info, err := typeinfo.GetTypeInfo(Account{})
	c.Assert(err, IsNil)

	acc := Account{ID: 7, Owner: "ada", Balance: 100, Note: "vip"}
	values, err := info.RowValues(acc, info.Columns())
	c.Assert(err, IsNil)
	c.Assert(values, DeepEquals, []any{int64(7), "ada", 100, "vip"})

	// A pointer row works too.
	values, err = info.RowValues(&acc, info.Columns()[:2])
	c.Assert(err, IsNil)
	c.Assert(values, DeepEquals, []any{int64(7), "ada"})

	_, err = info.RowValues("not an account", info.Columns())
	c.Assert(err, ErrorMatches, `need Account, got string`)
}

func (s *typeInfoSuite) TestIsZero(c *C) {
	info, err := typeinfo.GetTypeInfo(Account{})
	c.Assert(err, IsNil)
	note, ok := info.ColumnByMember("Note")
	c.Assert(ok, Equals, true)

	zero, err := info.IsZero(Account{}, note)
	c.Assert(err, IsNil)
	c.Assert(zero, Equals, true)

	zero, err = info.IsZero(Account{Note: "x"}, note)
	c.Assert(err, IsNil)
	c.Assert(zero, Equals, false)
}

type scanRow struct {
	ID   int64   `db:"id"`
	Name string  `db:"name"`
	Tag  *string `db:"tag"`
}

func (s *typeInfoSuite) TestScanTargets(c *C) {
	info, err := typeinfo.GetTypeInfo(scanRow{})
	c.Assert(err, IsNil)

	var row scanRow
	ptrs, onSuccess, err := info.ScanTargets([]string{"ID", "Name", "Tag"}, &row)
	c.Assert(err, IsNil)
	c.Assert(ptrs, HasLen, 3)

	// Non-pointer fields scan through a proxy, so a NULL does not break
	// rows.Scan; pointer fields are scanned into directly.
	idPtr, ok := ptrs[0].(**int64)
	c.Assert(ok, Equals, true)
	namePtr, ok := ptrs[1].(**string)
	c.Assert(ok, Equals, true)
	tagPtr, ok := ptrs[2].(**string)
	c.Assert(ok, Equals, true)

	id := int64(3)
	name := "ada"
	*idPtr = &id
	*namePtr = &name
	*tagPtr = nil
	onSuccess()

	c.Assert(row.ID, Equals, int64(3))
	c.Assert(row.Name, Equals, "ada")
	c.Assert(row.Tag, IsNil)
}

func (s *typeInfoSuite) TestScanTargetsNullIntoValueField(c *C) {
	info, err := typeinfo.GetTypeInfo(scanRow{})
	c.Assert(err, IsNil)

	row := scanRow{Name: "stale"}
	ptrs, onSuccess, err := info.ScanTargets([]string{"Name"}, &row)
	c.Assert(err, IsNil)
	namePtr := ptrs[0].(**string)

	// A NULL zeroes the field rather than leaving the old value behind.
	*namePtr = nil
	onSuccess()
	c.Assert(row.Name, Equals, "")
}

func (s *typeInfoSuite) TestScanTargetsErrors(c *C) {
	info, err := typeinfo.GetTypeInfo(scanRow{})
	c.Assert(err, IsNil)

	var row scanRow
	_, _, err = info.ScanTargets([]string{"Nope"}, &row)
	c.Assert(err, ErrorMatches, `"Nope" is not a mapped member of scanRow`)

	_, _, err = info.ScanTargets([]string{"ID"}, row)
	c.Assert(err, ErrorMatches, `need non-nil pointer to scanRow, got typeinfo_test.scanRow`)

	var other Account
	_, _, err = info.ScanTargets([]string{"ID"}, &other)
	c.Assert(err, ErrorMatches, `need pointer to scanRow, got \*typeinfo_test.Account`)
}
