// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package litemap

import (
	"reflect"

	"github.com/canonical/litemap/expr"
)

// Expr is one node of a query expression. Expressions are built against the
// Row passed to a builder callback and compiled to SQL when the command is
// built. Values captured from the caller with Lit are bound as parameters;
// subexpressions that do not touch the row are evaluated on the host and
// bound as a single parameter each.
type Expr struct {
	node expr.Node
}

// Row stands for the database row a predicate or value expression is
// evaluated against. Each builder callback receives a fresh Row; an
// expression may only reference the Row it was handed.
type Row struct {
	mark *expr.Row
}

func newRow() *Row {
	return &Row{mark: expr.NewRow("row")}
}

// Col references a mapped column by its Go field name.
func (r *Row) Col(member string) Expr {
	return Expr{&expr.Member{Target: r.mark, Name: member}}
}

// Lit captures a caller value. It compiles to a parameter placeholder, never
// to inline SQL text. Lit(nil) is the null literal; comparing a column
// against it with Eq or Ne compiles to an IS NULL test.
func Lit(value any) Expr {
	return Expr{&expr.Constant{Value: value}}
}

// Null is the null literal, equivalent to Lit(nil).
func Null() Expr {
	return Lit(nil)
}

// Zero is the zero value of the sample's type: 0, "", false or nil as the
// type dictates. A nil zero value behaves like Null.
func Zero(sample any) Expr {
	return Expr{&expr.Default{Type: reflect.TypeOf(sample)}}
}

// If compiles to SQLite's iif: ifTrue when test holds, ifFalse otherwise.
func If(test, ifTrue, ifFalse Expr) Expr {
	return Expr{&expr.Conditional{Test: test.node, True: ifTrue.node, False: ifFalse.node}}
}

func binary(op expr.BinaryOp, left, right Expr) Expr {
	return Expr{&expr.Binary{Op: op, Left: left.node, Right: right.node}}
}

func unary(op expr.UnaryOp, operand Expr) Expr {
	return Expr{&expr.Unary{Op: op, Operand: operand.node}}
}

func call(recv Expr, method string, args ...Expr) Expr {
	nodes := make([]expr.Node, len(args))
	for i, a := range args {
		nodes[i] = a.node
	}
	return Expr{&expr.Call{Recv: recv.node, Method: method, Args: nodes}}
}

func staticCall(method string, args ...Expr) Expr {
	nodes := make([]expr.Node, len(args))
	for i, a := range args {
		nodes[i] = a.node
	}
	return Expr{&expr.Call{Method: method, Args: nodes}}
}

// Comparisons.

func (e Expr) Eq(other Expr) Expr { return binary(expr.Eq, e, other) }
func (e Expr) Ne(other Expr) Expr { return binary(expr.Ne, e, other) }
func (e Expr) Gt(other Expr) Expr { return binary(expr.Gt, e, other) }
func (e Expr) Ge(other Expr) Expr { return binary(expr.Ge, e, other) }
func (e Expr) Lt(other Expr) Expr { return binary(expr.Lt, e, other) }
func (e Expr) Le(other Expr) Expr { return binary(expr.Le, e, other) }

// IsNull tests the expression against the null literal.
func (e Expr) IsNull() Expr { return e.Eq(Null()) }

// IsNotNull is the negation of IsNull.
func (e Expr) IsNotNull() Expr { return e.Ne(Null()) }

// Logic.

func (e Expr) And(other Expr) Expr { return binary(expr.And, e, other) }
func (e Expr) Or(other Expr) Expr  { return binary(expr.Or, e, other) }
func (e Expr) Not() Expr           { return unary(expr.Not, e) }

// Arithmetic and bitwise operators.

func (e Expr) Add(other Expr) Expr    { return binary(expr.Add, e, other) }
func (e Expr) Sub(other Expr) Expr    { return binary(expr.Sub, e, other) }
func (e Expr) Mul(other Expr) Expr    { return binary(expr.Mul, e, other) }
func (e Expr) Div(other Expr) Expr    { return binary(expr.Div, e, other) }
func (e Expr) Mod(other Expr) Expr    { return binary(expr.Mod, e, other) }
func (e Expr) Neg() Expr              { return unary(expr.Negate, e) }
func (e Expr) BitAnd(other Expr) Expr { return binary(expr.BitAnd, e, other) }
func (e Expr) BitOr(other Expr) Expr  { return binary(expr.BitOr, e, other) }
func (e Expr) BitNot() Expr           { return unary(expr.Complement, e) }
func (e Expr) Lshift(other Expr) Expr { return binary(expr.Lshift, e, other) }
func (e Expr) Rshift(other Expr) Expr { return binary(expr.Rshift, e, other) }

// Coalesce yields the expression unless it is null, in which case it yields
// other.
func (e Expr) Coalesce(other Expr) Expr { return binary(expr.Coalesce, e, other) }

// Convert marks a type conversion to the sample's type. Conversions are
// transparent in the generated SQL; they only affect values evaluated on the
// host, and a converted column reference is still a column reference.
func (e Expr) Convert(sample any) Expr {
	return Expr{&expr.Unary{Op: expr.Convert, Operand: e.node, Type: reflect.TypeOf(sample)}}
}

// Collation names the text collation EqualsUsing compares under.
type Collation string

const (
	Binary Collation = "binary"
	NoCase Collation = "nocase"
	RTrim  Collation = "rtrim"
)

// String operations. These compile to SQLite's string functions; Contains,
// StartsWith and EndsWith compile to LIKE with wildcards in the pattern
// escaped, so the argument always matches literally.

func (e Expr) Equals(other Expr) Expr {
	return call(e, expr.MethodEquals, other)
}

// EqualsUsing compares two strings under the named collation.
func (e Expr) EqualsUsing(other Expr, collation Collation) Expr {
	return call(e, expr.MethodEqualsCollate, other, Lit(string(collation)))
}

// Contains tests for a substring when the receiver is a string, and for
// membership when it is a captured slice or array.
func (e Expr) Contains(item Expr) Expr {
	return call(e, expr.MethodContains, item)
}

// In tests the expression for membership in the captured values.
func (e Expr) In(values any) Expr {
	return Lit(values).Contains(e)
}

func (e Expr) StartsWith(prefix Expr) Expr {
	return call(e, expr.MethodStartsWith, prefix)
}

func (e Expr) EndsWith(suffix Expr) Expr {
	return call(e, expr.MethodEndsWith, suffix)
}

func (e Expr) Replace(old, new Expr) Expr {
	return call(e, expr.MethodReplace, old, new)
}

// Substr extracts a substring. Following the SQL convention start is
// 1-based; the optional second argument is the length.
func (e Expr) Substr(start Expr, length ...Expr) Expr {
	args := append([]Expr{start}, length...)
	return call(e, expr.MethodSubstr, args...)
}

func (e Expr) Lower() Expr     { return call(e, expr.MethodToLower) }
func (e Expr) Upper() Expr     { return call(e, expr.MethodToUpper) }
func (e Expr) Trim() Expr      { return call(e, expr.MethodTrim) }
func (e Expr) TrimStart() Expr { return call(e, expr.MethodTrimStart) }
func (e Expr) TrimEnd() Expr   { return call(e, expr.MethodTrimEnd) }

// Length is the character count of a string expression.
func (e Expr) Length() Expr {
	return Expr{&expr.Member{Target: e.node, Name: expr.MemberLength}}
}

// IsNullOrEmpty tests a string for null or the empty string in one step.
func IsNullOrEmpty(s Expr) Expr {
	return staticCall(expr.MethodIsNullOrEmpty, s)
}

// Math functions.

// Round rounds to the nearest integer, or to the given number of digits.
func Round(x Expr, digits ...Expr) Expr {
	args := append([]Expr{x}, digits...)
	return staticCall(expr.MethodRound, args...)
}

func Ceil(x Expr) Expr   { return staticCall(expr.MethodCeiling, x) }
func Floor(x Expr) Expr  { return staticCall(expr.MethodFloor, x) }
func Abs(x Expr) Expr    { return staticCall(expr.MethodAbs, x) }
func Exp(x Expr) Expr    { return staticCall(expr.MethodExp, x) }
func Log(x Expr) Expr    { return staticCall(expr.MethodLog, x) }
func Pow(x, y Expr) Expr { return staticCall(expr.MethodPow, x, y) }
func Sqrt(x Expr) Expr   { return staticCall(expr.MethodSqrt, x) }
func Sin(x Expr) Expr    { return staticCall(expr.MethodSin, x) }
func Cos(x Expr) Expr    { return staticCall(expr.MethodCos, x) }
func Tan(x Expr) Expr    { return staticCall(expr.MethodTan, x) }
func Asin(x Expr) Expr   { return staticCall(expr.MethodAsin, x) }
func Acos(x Expr) Expr   { return staticCall(expr.MethodAcos, x) }
func Atan(x Expr) Expr   { return staticCall(expr.MethodAtan, x) }

// AsText formats a value as its text representation.
func AsText(x Expr) Expr { return staticCall(expr.MethodToText, x) }

// AsInteger parses a text value as an integer.
func AsInteger(x Expr) Expr { return staticCall(expr.MethodToInteger, x) }

// Call builds a method call under a caller-chosen identity, for use with
// converters registered on a table's Registry. Pass a zero Expr as recv for
// a static call.
func Call(recv Expr, identity string, args ...Expr) Expr {
	if recv.node == nil {
		return staticCall(identity, args...)
	}
	return call(recv, identity, args...)
}

// Access builds a member access under a caller-chosen identity, for use
// with converters registered on a table's Registry.
func Access(target Expr, identity string) Expr {
	return Expr{&expr.Member{Target: target.node, Name: identity}}
}
