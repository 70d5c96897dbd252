// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// ColumnMapper resolves row member names for one mapped table. It is
// supplied by the schema layer; the compiler owns no table metadata itself.
type ColumnMapper interface {
	// Column returns the column name a row member maps to.
	Column(member string) (string, bool)
	// MemberType returns the Go type of a row member.
	MemberType(member string) (reflect.Type, bool)
}

// isRowReference reports whether node is the row marker itself, or the
// marker wrapped in casts. A Member whose target satisfies this is always a
// column reference, regardless of any registered member converter.
func isRowReference(node Node, row *Row) bool {
	for {
		switch n := node.(type) {
		case *Row:
			return n == row
		case *Unary:
			if n.Op != Convert {
				return false
			}
			node = n.Operand
		default:
			return false
		}
	}
}

// unwrapConvert strips any casts wrapping a node.
func unwrapConvert(node Node) Node {
	for {
		u, ok := node.(*Unary)
		if !ok || u.Op != Convert {
			return node
		}
		node = u.Operand
	}
}

// QuoteIdentifier quotes an SQL identifier, doubling embedded quote
// characters. It is shared with the command assemblers in the root package.
func QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// columnRef resolves a row member to its fully qualified, quoted column
// reference.
func (c *Compiler) columnRef(member string) (string, error) {
	column, ok := c.columns.Column(member)
	if !ok {
		return "", fmt.Errorf("%q is not a mapped column of table %q", member, c.table)
	}
	return QuoteIdentifier(c.table) + "." + QuoteIdentifier(column), nil
}
