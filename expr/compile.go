// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"errors"
	"fmt"
)

// Compiler turns expression trees into SQL fragments for one command. All
// clauses of the command share the compiler and its sink so that placeholder
// names stay unique within the command; the compiler is discarded once the
// command text and parameters have been extracted.
//
// Compilation is a pure, synchronous tree walk. Separate command builds may
// compile concurrently provided the shared Registry is no longer being
// mutated.
type Compiler struct {
	table    string
	columns  ColumnMapper
	registry *Registry
	sink     *Sink
	// row is the marker of the expression currently being walked. The entry
	// points set it for the duration of one walk.
	row *Row
}

// NewCompiler returns a compiler for commands against the named table, with
// a fresh parameter sink.
func NewCompiler(table string, columns ColumnMapper, registry *Registry) *Compiler {
	return &Compiler{table: table, columns: columns, registry: registry, sink: &Sink{}}
}

// Params returns the ordered named parameters bound so far, ready to be
// passed to database/sql.
func (c *Compiler) Params() []any {
	return c.sink.Params()
}

// Sink returns the compiler's parameter sink.
func (c *Compiler) Sink() *Sink {
	return c.sink
}

// CompilePredicate compiles a boolean expression for a WHERE or HAVING
// clause. The expression must have been built against the given row marker.
func (c *Compiler) CompilePredicate(node Node, row *Row) (sql string, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot compile predicate: %s", err)
		}
	}()
	return c.compileRoot(node, row)
}

// CompileValue compiles a scalar expression, for example the new value of an
// UPDATE or a selected projection.
func (c *Compiler) CompileValue(node Node, row *Row) (sql string, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot compile value expression: %s", err)
		}
	}()
	return c.compileRoot(node, row)
}

// CompileColumnRef resolves a bare member access on the row, optionally cast
// wrapped, to its quoted column reference. It is the narrow entry point for
// ORDER BY and GROUP BY, where only a plain column is legal.
func (c *Compiler) CompileColumnRef(node Node, row *Row) (sql string, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("cannot compile column reference: %s", err)
		}
	}()
	if node == nil {
		return "", fmt.Errorf("missing expression")
	}
	m, ok := unwrapConvert(node).(*Member)
	if !ok || !isRowReference(m.Target, row) {
		return "", fmt.Errorf("expected a column selection, got %s", node.String())
	}
	return c.columnRef(m.Name)
}

func (c *Compiler) compileRoot(node Node, row *Row) (string, error) {
	if row == nil {
		return "", fmt.Errorf("missing row marker")
	}
	c.row = row
	defer func() { c.row = nil }()
	return c.Compile(node)
}

// Compile compiles a sub-expression into a SQL fragment, binding any
// concrete values to the sink. It is the recursion point used by converters.
//
// Unary, binary and conditional fragments parenthesise themselves;
// placeholders, column references and function calls are atoms.
func (c *Compiler) Compile(node Node) (string, error) {
	if node == nil {
		return "", fmt.Errorf("missing expression")
	}

	// A subtree that does not reach the row marker resolves to a concrete
	// value and binds as a single parameter. Method and member identities
	// the evaluator does not know fall through to their converter; when the
	// unknown identity sits deeper in the subtree, compilation continues
	// structurally below so the nested converter is still reached.
	if !ReferencesRow(node, c.row) {
		v, err := evaluate(node)
		if err == nil {
			return c.sink.Add(v), nil
		}
		if !errors.Is(err, errNoHostEvaluation) {
			return "", err
		}
		if conv, ok := c.converterFor(node); ok {
			return conv(c, node)
		}
		switch n := node.(type) {
		case *Call:
			return "", unsupportedMethodError(n.Method)
		case *Member:
			return "", unsupportedMemberError(n.Name)
		}
	}

	switch n := node.(type) {
	case *Row:
		return "", fmt.Errorf("cannot compile a bare row marker")
	case *Unary:
		return c.compileUnary(n)
	case *Binary:
		return c.compileBinary(n)
	case *Conditional:
		test, err := c.Compile(n.Test)
		if err != nil {
			return "", err
		}
		ifTrue, err := c.Compile(n.True)
		if err != nil {
			return "", err
		}
		ifFalse, err := c.Compile(n.False)
		if err != nil {
			return "", err
		}
		return "iif(" + test + ", " + ifTrue + ", " + ifFalse + ")", nil
	case *Call:
		if conv, ok := c.registry.method(n.Method); ok {
			return conv(c, n)
		}
		return "", unsupportedMethodError(n.Method)
	case *Member:
		// A member of the row is always a column, even if a member
		// converter with the same identity exists.
		if isRowReference(n.Target, c.row) {
			return c.columnRef(n.Name)
		}
		if conv, ok := c.registry.member(n.Name); ok {
			return conv(c, n)
		}
		return "", unsupportedMemberError(n.Name)
	default:
		return "", fmt.Errorf("unsupported expression: %s", node.String())
	}
}

func (c *Compiler) compileUnary(n *Unary) (string, error) {
	// Casts are transparent in the SQL text.
	if n.Op == Convert {
		return c.Compile(n.Operand)
	}
	sym, ok := unaryNames[n.Op]
	if !ok {
		return "", fmt.Errorf("unsupported unary operator %q", n.Op.String())
	}
	s, err := c.Compile(n.Operand)
	if err != nil {
		return "", err
	}
	return "(" + sym + " " + s + ")", nil
}

func (c *Compiler) compileBinary(n *Binary) (string, error) {
	// Comparing against a null literal becomes an IS NULL test; the null
	// literal binds no parameter.
	if n.Op == Eq || n.Op == Ne {
		leftNull := c.isNullOperand(n.Left)
		rightNull := c.isNullOperand(n.Right)
		if leftNull != rightNull {
			other := n.Left
			if leftNull {
				other = n.Right
			}
			s, err := c.Compile(other)
			if err != nil {
				return "", err
			}
			if n.Op == Eq {
				return "(" + s + " is null)", nil
			}
			return "(" + s + " is not null)", nil
		}
	}
	if n.Op == Coalesce {
		l, err := c.Compile(n.Left)
		if err != nil {
			return "", err
		}
		r, err := c.Compile(n.Right)
		if err != nil {
			return "", err
		}
		return "coalesce(" + l + ", " + r + ")", nil
	}
	sym, ok := binarySymbols[n.Op]
	if !ok {
		return "", fmt.Errorf("unsupported binary operator %q", n.Op.String())
	}
	l, err := c.Compile(n.Left)
	if err != nil {
		return "", err
	}
	r, err := c.Compile(n.Right)
	if err != nil {
		return "", err
	}
	return "(" + l + " " + sym + " " + r + ")", nil
}

// isNullOperand reports whether a comparison operand is a null literal.
func (c *Compiler) isNullOperand(node Node) bool {
	if ReferencesRow(node, c.row) {
		return false
	}
	v, err := evaluate(node)
	return err == nil && isNilValue(v)
}

// converterFor looks up the converter of a method call or member access.
func (c *Compiler) converterFor(node Node) (Converter, bool) {
	switch n := node.(type) {
	case *Call:
		return c.registry.method(n.Method)
	case *Member:
		return c.registry.member(n.Name)
	}
	return nil, false
}

func unsupportedMethodError(method string) error {
	return fmt.Errorf("unsupported method call %q: no converter registered", method)
}

func unsupportedMemberError(member string) error {
	return fmt.Errorf("unsupported member access %q: no converter registered", member)
}
