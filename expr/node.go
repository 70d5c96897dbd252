// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
)

// Node is a node of a query expression tree. Trees are built against a Row
// placeholder by the DSL in the root package and compiled into SQL fragments
// by a Compiler.
type Node interface {
	// String returns a short description of the node for error messages.
	String() string
}

// Row is the placeholder node for the table row being queried. A Member whose
// target is a particular Row instance is a column reference of that row. The
// test is by instance identity, not structure; each command build must use a
// fresh Row. A Row is never resolved to a value.
type Row struct {
	// name labels the row in error messages.
	name string
}

// NewRow returns a fresh row marker.
func NewRow(name string) *Row {
	return &Row{name: name}
}

func (r *Row) String() string {
	return "row marker " + r.name
}

// Constant is a literal value known when the expression is built. Values
// captured from the calling scope are stored here at construction time; the
// compiler never re-executes host code.
type Constant struct {
	Value any
}

func (c *Constant) String() string {
	return fmt.Sprintf("constant %#v", c.Value)
}

// Default is the zero value of a Go type. It is resolved eagerly during
// compilation and bound like a Constant.
type Default struct {
	Type reflect.Type
}

func (d *Default) String() string {
	if d.Type == nil {
		return "zero value"
	}
	return "zero value of " + d.Type.String()
}

// zero returns the value a Default resolves to.
func (d *Default) zero() any {
	if d.Type == nil {
		return nil
	}
	return reflect.Zero(d.Type).Interface()
}

// UnaryOp is an operator of a Unary node.
type UnaryOp int

const (
	// Negate is arithmetic negation.
	Negate UnaryOp = iota
	// Not is logical negation.
	Not
	// Complement is bitwise complement.
	Complement
	// Convert is a type cast. Casts are transparent in the generated SQL;
	// the target type only matters when a value is evaluated eagerly.
	Convert
)

var unaryNames = map[UnaryOp]string{
	Negate:     "-",
	Not:        "not",
	Complement: "~",
	Convert:    "convert",
}

func (op UnaryOp) String() string {
	if name, ok := unaryNames[op]; ok {
		return name
	}
	return fmt.Sprintf("unary operator %d", int(op))
}

// Unary applies an operator to a single operand.
type Unary struct {
	Op      UnaryOp
	Operand Node
	// Type is the target type of a Convert and nil for other operators.
	Type reflect.Type
}

func (u *Unary) String() string {
	return fmt.Sprintf("unary operator %q", u.Op.String())
}

// BinaryOp is an operator of a Binary node.
type BinaryOp int

const (
	Eq BinaryOp = iota
	Ne
	Gt
	Ge
	Lt
	Le
	And
	Or
	Add
	Sub
	Mul
	Div
	Mod
	BitAnd
	BitOr
	Lshift
	Rshift
	// Coalesce resolves to its left operand unless it is null, in which
	// case it resolves to the right operand.
	Coalesce
)

// binarySymbols is the SQL operator symbol table. Coalesce is absent as it
// compiles to a function call rather than an infix operator.
var binarySymbols = map[BinaryOp]string{
	Eq:     "=",
	Ne:     "!=",
	Gt:     ">",
	Ge:     ">=",
	Lt:     "<",
	Le:     "<=",
	And:    "and",
	Or:     "or",
	Add:    "+",
	Sub:    "-",
	Mul:    "*",
	Div:    "/",
	Mod:    "%",
	BitAnd: "&",
	BitOr:  "|",
	Lshift: "<<",
	Rshift: ">>",
}

func (op BinaryOp) String() string {
	if op == Coalesce {
		return "coalesce"
	}
	if sym, ok := binarySymbols[op]; ok {
		return sym
	}
	return fmt.Sprintf("binary operator %d", int(op))
}

// Binary applies an operator to two operands.
type Binary struct {
	Op    BinaryOp
	Left  Node
	Right Node
}

func (b *Binary) String() string {
	return fmt.Sprintf("binary operator %q", b.Op.String())
}

// Conditional is a ternary expression resolving to True or False depending
// on Test.
type Conditional struct {
	Test  Node
	True  Node
	False Node
}

func (c *Conditional) String() string {
	return "conditional"
}

// Call is a method call. Method is the stable identity used to look up a
// converter in the Registry. Recv is nil for calls without a receiver, such
// as IsNullOrEmpty.
type Call struct {
	Recv   Node
	Method string
	Args   []Node
}

func (c *Call) String() string {
	return fmt.Sprintf("method call %q", c.Method)
}

// Member is an access of a named member on a target. When the target is the
// row marker the member names a mapped column; otherwise a member converter
// applies, or the access is evaluated eagerly.
type Member struct {
	Target Node
	Name   string
}

func (m *Member) String() string {
	return fmt.Sprintf("member access %q", m.Name)
}

// ReferencesRow reports whether any node of the tree is the given row marker.
// A tree that does not reference the marker can always be resolved to a
// concrete value without emitting SQL.
func ReferencesRow(node Node, row *Row) bool {
	switch n := node.(type) {
	case *Row:
		return n == row
	case *Unary:
		return ReferencesRow(n.Operand, row)
	case *Binary:
		return ReferencesRow(n.Left, row) || ReferencesRow(n.Right, row)
	case *Conditional:
		return ReferencesRow(n.Test, row) || ReferencesRow(n.True, row) || ReferencesRow(n.False, row)
	case *Call:
		if n.Recv != nil && ReferencesRow(n.Recv, row) {
			return true
		}
		for _, arg := range n.Args {
			if ReferencesRow(arg, row) {
				return true
			}
		}
		return false
	case *Member:
		return n.Target != nil && ReferencesRow(n.Target, row)
	default:
		return false
	}
}
