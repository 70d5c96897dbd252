// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package expr compiles query expression trees into parameterized SQL
// fragments.
//
// An expression tree is built against a Row marker that stands for the table
// row being queried. The compiler walks the tree and emits a SQL fragment
// along with an ordered list of named parameters: member accesses on the row
// marker become quoted column references, method calls and member accesses
// on anything else are translated by the converter registry, and every other
// subtree that does not reach the marker is resolved to a concrete value and
// bound as a parameter. Comparisons against null literals are rewritten to
// IS NULL tests to preserve SQL's three-valued logic.
//
// One Compiler, with one parameter sink, serves one command build. The
// converter registry is owned by the table object that creates the compiler
// and may be extended by callers before it is first used.
package expr
