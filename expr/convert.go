// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"fmt"
	"reflect"
	"strings"
)

// registerBuiltins installs the converters for the supported string, math
// and conversion operations.
func registerBuiltins(r *Registry) {
	r.RegisterMethod(MethodEquals, convertEquals)
	r.RegisterMethod(MethodEqualsCollate, convertEqualsCollate)
	r.RegisterMethod(MethodContains, convertContains)
	r.RegisterMethod(MethodStartsWith, convertStartsWith)
	r.RegisterMethod(MethodEndsWith, convertEndsWith)
	r.RegisterMethod(MethodIsNullOrEmpty, convertIsNullOrEmpty)
	r.RegisterMethod(MethodReplace, sqlFunction("replace", true, 2, 2))
	r.RegisterMethod(MethodSubstr, sqlFunction("substr", true, 1, 2))
	r.RegisterMethod(MethodToLower, sqlFunction("lower", true, 0, 0))
	r.RegisterMethod(MethodToUpper, sqlFunction("upper", true, 0, 0))
	r.RegisterMethod(MethodTrim, sqlFunction("trim", true, 0, 0))
	r.RegisterMethod(MethodTrimStart, sqlFunction("ltrim", true, 0, 0))
	r.RegisterMethod(MethodTrimEnd, sqlFunction("rtrim", true, 0, 0))

	r.RegisterMethod(MethodRound, sqlFunction("round", false, 1, 2))
	r.RegisterMethod(MethodCeiling, sqlFunction("ceil", false, 1, 1))
	r.RegisterMethod(MethodFloor, sqlFunction("floor", false, 1, 1))
	r.RegisterMethod(MethodAbs, sqlFunction("abs", false, 1, 1))
	r.RegisterMethod(MethodExp, sqlFunction("exp", false, 1, 1))
	r.RegisterMethod(MethodLog, sqlFunction("log", false, 1, 1))
	r.RegisterMethod(MethodPow, sqlFunction("power", false, 2, 2))
	r.RegisterMethod(MethodSqrt, sqlFunction("sqrt", false, 1, 1))
	r.RegisterMethod(MethodSin, sqlFunction("sin", false, 1, 1))
	r.RegisterMethod(MethodCos, sqlFunction("cos", false, 1, 1))
	r.RegisterMethod(MethodTan, sqlFunction("tan", false, 1, 1))
	r.RegisterMethod(MethodAsin, sqlFunction("asin", false, 1, 1))
	r.RegisterMethod(MethodAcos, sqlFunction("acos", false, 1, 1))
	r.RegisterMethod(MethodAtan, sqlFunction("atan", false, 1, 1))

	r.RegisterMethod(MethodToText, convertCast("text"))
	r.RegisterMethod(MethodToInteger, convertCast("integer"))

	r.RegisterMember(MemberLength, convertLength)
}

// methodCall asserts that a converter was applied to a method call node.
func methodCall(node Node) (*Call, error) {
	call, ok := node.(*Call)
	if !ok {
		return nil, fmt.Errorf("internal error: method converter applied to %s", node.String())
	}
	return call, nil
}

// checkArity validates the argument count of a method call.
func checkArity(call *Call, min, max int) error {
	if len(call.Args) >= min && len(call.Args) <= max {
		return nil
	}
	if min == max {
		return fmt.Errorf("method call %q takes %d argument(s), got %d", call.Method, min, len(call.Args))
	}
	return fmt.Errorf("method call %q takes %d to %d arguments, got %d", call.Method, min, max, len(call.Args))
}

// sqlFunction returns a converter emitting name(receiver, args...) with
// every operand compiled recursively, so column references inside arguments
// resolve correctly.
func sqlFunction(name string, withRecv bool, minArgs, maxArgs int) Converter {
	return func(c *Compiler, node Node) (string, error) {
		call, err := methodCall(node)
		if err != nil {
			return "", err
		}
		if err := checkArity(call, minArgs, maxArgs); err != nil {
			return "", err
		}
		var operands []string
		if withRecv {
			if call.Recv == nil {
				return "", fmt.Errorf("method call %q needs a receiver", call.Method)
			}
			s, err := c.Compile(call.Recv)
			if err != nil {
				return "", err
			}
			operands = append(operands, s)
		}
		for _, arg := range call.Args {
			s, err := c.Compile(arg)
			if err != nil {
				return "", err
			}
			operands = append(operands, s)
		}
		return name + "(" + strings.Join(operands, ", ") + ")", nil
	}
}

// convertCast returns a converter emitting cast(x as typeName).
func convertCast(typeName string) Converter {
	return func(c *Compiler, node Node) (string, error) {
		call, err := methodCall(node)
		if err != nil {
			return "", err
		}
		if err := checkArity(call, 1, 1); err != nil {
			return "", err
		}
		s, err := c.Compile(call.Args[0])
		if err != nil {
			return "", err
		}
		return "cast(" + s + " as " + typeName + ")", nil
	}
}

func convertEquals(c *Compiler, node Node) (string, error) {
	call, err := methodCall(node)
	if err != nil {
		return "", err
	}
	if err := checkArity(call, 1, 1); err != nil {
		return "", err
	}
	l, err := c.Compile(call.Recv)
	if err != nil {
		return "", err
	}
	r, err := c.Compile(call.Args[0])
	if err != nil {
		return "", err
	}
	return "(" + l + " = " + r + ")", nil
}

// knownCollations are the SQLite collation names a collated comparison may
// select.
var knownCollations = map[string]bool{
	"binary": true,
	"nocase": true,
	"rtrim":  true,
}

func convertEqualsCollate(c *Compiler, node Node) (string, error) {
	call, err := methodCall(node)
	if err != nil {
		return "", err
	}
	if err := checkArity(call, 2, 2); err != nil {
		return "", err
	}
	// The collation is part of the SQL text so it must be known when the
	// expression is built, never a column.
	if ReferencesRow(call.Args[1], c.row) {
		return "", fmt.Errorf("collation of method call %q cannot refer to the row", call.Method)
	}
	v, err := evaluate(call.Args[1])
	if err != nil {
		return "", err
	}
	collation, ok := v.(string)
	if !ok || !knownCollations[collation] {
		return "", fmt.Errorf("unknown collation %v in method call %q", v, call.Method)
	}
	l, err := c.Compile(call.Recv)
	if err != nil {
		return "", err
	}
	r, err := c.Compile(call.Args[0])
	if err != nil {
		return "", err
	}
	return "(" + l + " = " + r + " collate " + collation + ")", nil
}

func convertContains(c *Compiler, node Node) (string, error) {
	call, err := methodCall(node)
	if err != nil {
		return "", err
	}
	if err := checkArity(call, 1, 1); err != nil {
		return "", err
	}
	if call.Recv == nil {
		return "", fmt.Errorf("method call %q needs a receiver", call.Method)
	}

	// The receiver type selects the form: a collection receiver compiles to
	// an IN list, a string receiver to a LIKE pattern.
	if !ReferencesRow(call.Recv, c.row) {
		v, err := evaluate(call.Recv)
		if err != nil {
			return "", err
		}
		rv := reflect.ValueOf(v)
		if v != nil && (rv.Kind() == reflect.Slice || rv.Kind() == reflect.Array) {
			return c.inList(call.Args[0], rv)
		}
	} else if m, ok := call.Recv.(*Member); ok && isRowReference(m.Target, c.row) {
		if t, ok := c.columns.MemberType(m.Name); ok && isCollectionType(t) {
			return "", fmt.Errorf("cannot compile method call %q: column %q holds a collection", call.Method, m.Name)
		}
	}
	return c.likePattern(call.Recv, call.Args[0], true, true)
}

func convertStartsWith(c *Compiler, node Node) (string, error) {
	call, err := methodCall(node)
	if err != nil {
		return "", err
	}
	if err := checkArity(call, 1, 1); err != nil {
		return "", err
	}
	return c.likePattern(call.Recv, call.Args[0], false, true)
}

func convertEndsWith(c *Compiler, node Node) (string, error) {
	call, err := methodCall(node)
	if err != nil {
		return "", err
	}
	if err := checkArity(call, 1, 1); err != nil {
		return "", err
	}
	return c.likePattern(call.Recv, call.Args[0], true, false)
}

func convertIsNullOrEmpty(c *Compiler, node Node) (string, error) {
	call, err := methodCall(node)
	if err != nil {
		return "", err
	}
	if err := checkArity(call, 1, 1); err != nil {
		return "", err
	}
	// Compiled once and spliced twice so the fragment shares its
	// placeholders.
	s, err := c.Compile(call.Args[0])
	if err != nil {
		return "", err
	}
	return "(" + s + " is null or " + s + " = '')", nil
}

func convertLength(c *Compiler, node Node) (string, error) {
	m, ok := node.(*Member)
	if !ok {
		return "", fmt.Errorf("internal error: member converter applied to %s", node.String())
	}
	l, err := c.Compile(m.Target)
	if err != nil {
		return "", err
	}
	return "length(" + l + ")", nil
}

// inList emits item in (values...). SQLite accepts an empty value list,
// which never matches.
func (c *Compiler) inList(item Node, values reflect.Value) (string, error) {
	l, err := c.Compile(item)
	if err != nil {
		return "", err
	}
	elems := make([]string, 0, values.Len())
	for i := 0; i < values.Len(); i++ {
		elems = append(elems, c.sink.Add(values.Index(i).Interface()))
	}
	return "(" + l + " in (" + strings.Join(elems, ", ") + "))", nil
}

// likePattern emits a LIKE predicate matching sub as a prefix, suffix or
// infix of the compiled receiver. A concrete pattern operand has its
// wildcard characters escaped and is bound as a parameter; a pattern that
// itself refers to the row is spliced in by SQL concatenation and keeps its
// wildcards live.
func (c *Compiler) likePattern(recv, sub Node, anyPrefix, anySuffix bool) (string, error) {
	if recv == nil {
		return "", fmt.Errorf("string pattern match needs a receiver")
	}
	l, err := c.Compile(recv)
	if err != nil {
		return "", err
	}
	var pattern string
	if ReferencesRow(sub, c.row) {
		pattern, err = c.Compile(sub)
		if err != nil {
			return "", err
		}
	} else {
		v, err := evaluate(sub)
		if err != nil {
			return "", err
		}
		s, ok := v.(string)
		if !ok {
			return "", fmt.Errorf("pattern operand is %T, not string", v)
		}
		pattern = c.sink.Add(escapeLike(s))
	}
	if anyPrefix {
		pattern = "'%' || " + pattern
	}
	if anySuffix {
		pattern = pattern + " || '%'"
	}
	return "(" + l + " like " + pattern + ` escape '\')`, nil
}

// escapeLike escapes the LIKE wildcard characters of a literal pattern.
func escapeLike(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// isCollectionType reports whether a column's Go type is a collection.
// Byte slices are blobs, not collections.
func isCollectionType(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Array:
		return true
	case reflect.Slice:
		return t.Elem().Kind() != reflect.Uint8
	}
	return false
}
