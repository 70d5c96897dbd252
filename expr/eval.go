// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"errors"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// errNoHostEvaluation marks a method or member identity the evaluator has no
// host implementation for. The compiler falls back to a registered converter
// when it sees this error.
var errNoHostEvaluation = errors.New("no host evaluation")

// evaluate resolves a tree containing no row references to a concrete value
// using ordinary host evaluation. Failures are caller bugs in the supplied
// expression, for example division by zero, and are propagated unwrapped.
func evaluate(node Node) (any, error) {
	switch n := node.(type) {
	case *Constant:
		return n.Value, nil
	case *Default:
		return n.zero(), nil
	case *Unary:
		return evaluateUnary(n)
	case *Binary:
		return evaluateBinary(n)
	case *Conditional:
		test, err := evaluate(n.Test)
		if err != nil {
			return nil, err
		}
		b, ok := test.(bool)
		if !ok {
			return nil, fmt.Errorf("conditional test is %T, not bool", test)
		}
		if b {
			return evaluate(n.True)
		}
		return evaluate(n.False)
	case *Call:
		return evaluateCall(n)
	case *Member:
		return evaluateMember(n)
	case nil:
		return nil, fmt.Errorf("cannot evaluate missing expression")
	default:
		return nil, fmt.Errorf("cannot evaluate %s", node.String())
	}
}

func evaluateUnary(n *Unary) (any, error) {
	v, err := evaluate(n.Operand)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case Negate:
		if i, ok := asInt(v); ok {
			return -i, nil
		}
		if f, ok := asFloat(v); ok {
			return -f, nil
		}
		return nil, fmt.Errorf("cannot negate %T value", v)
	case Not:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("cannot apply logical not to %T value", v)
		}
		return !b, nil
	case Complement:
		i, ok := asInt(v)
		if !ok {
			return nil, fmt.Errorf("cannot complement %T value", v)
		}
		return ^i, nil
	case Convert:
		if n.Type == nil || v == nil {
			return v, nil
		}
		rv := reflect.ValueOf(v)
		if !rv.Type().ConvertibleTo(n.Type) {
			return nil, fmt.Errorf("cannot convert %T value to %s", v, n.Type)
		}
		return rv.Convert(n.Type).Interface(), nil
	}
	return nil, fmt.Errorf("unsupported %s", n.String())
}

func evaluateBinary(n *Binary) (any, error) {
	left, err := evaluate(n.Left)
	if err != nil {
		return nil, err
	}
	right, err := evaluate(n.Right)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case Coalesce:
		if isNilValue(left) {
			return right, nil
		}
		return left, nil
	case And, Or:
		lb, lok := left.(bool)
		rb, rok := right.(bool)
		if !lok || !rok {
			return nil, fmt.Errorf("logical operator needs bool operands, got %T and %T", left, right)
		}
		if n.Op == And {
			return lb && rb, nil
		}
		return lb || rb, nil
	case Eq:
		return equalValues(left, right), nil
	case Ne:
		return !equalValues(left, right), nil
	case Gt, Ge, Lt, Le:
		cmp, err := compareValues(left, right)
		if err != nil {
			return nil, err
		}
		switch n.Op {
		case Gt:
			return cmp > 0, nil
		case Ge:
			return cmp >= 0, nil
		case Lt:
			return cmp < 0, nil
		default:
			return cmp <= 0, nil
		}
	case Add:
		if ls, ok := left.(string); ok {
			if rs, ok := right.(string); ok {
				return ls + rs, nil
			}
		}
		fallthrough
	case Sub, Mul, Div, Mod:
		return evaluateArithmetic(n.Op, left, right)
	case BitAnd, BitOr, Lshift, Rshift:
		li, lok := asInt(left)
		ri, rok := asInt(right)
		if !lok || !rok {
			return nil, fmt.Errorf("bitwise operator needs integer operands, got %T and %T", left, right)
		}
		switch n.Op {
		case BitAnd:
			return li & ri, nil
		case BitOr:
			return li | ri, nil
		case Lshift:
			return li << uint64(ri), nil
		default:
			return li >> uint64(ri), nil
		}
	}
	return nil, fmt.Errorf("unsupported %s", n.String())
}

func evaluateArithmetic(op BinaryOp, left, right any) (any, error) {
	li, lok := asInt(left)
	ri, rok := asInt(right)
	if lok && rok {
		switch op {
		case Add:
			return li + ri, nil
		case Sub:
			return li - ri, nil
		case Mul:
			return li * ri, nil
		case Div:
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li / ri, nil
		case Mod:
			if ri == 0 {
				return nil, fmt.Errorf("division by zero")
			}
			return li % ri, nil
		}
	}
	lf, lok := asFloat(left)
	rf, rok := asFloat(right)
	if !lok || !rok {
		return nil, fmt.Errorf("arithmetic operator needs numeric operands, got %T and %T", left, right)
	}
	switch op {
	case Add:
		return lf + rf, nil
	case Sub:
		return lf - rf, nil
	case Mul:
		return lf * rf, nil
	case Div:
		return lf / rf, nil
	case Mod:
		return math.Mod(lf, rf), nil
	}
	return nil, fmt.Errorf("unsupported binary operator %q", op.String())
}

func evaluateCall(n *Call) (any, error) {
	var recv any
	var err error
	if n.Recv != nil {
		recv, err = evaluate(n.Recv)
		if err != nil {
			return nil, err
		}
	}
	args := make([]any, len(n.Args))
	for i, arg := range n.Args {
		args[i], err = evaluate(arg)
		if err != nil {
			return nil, err
		}
	}

	wantArgs := func(want int) error {
		if len(args) != want {
			return fmt.Errorf("%s needs %d argument(s), got %d", n.String(), want, len(args))
		}
		return nil
	}
	recvString := func() (string, error) {
		s, ok := recv.(string)
		if !ok {
			return "", fmt.Errorf("%s needs a string receiver, got %T", n.String(), recv)
		}
		return s, nil
	}
	argString := func(i int) (string, error) {
		s, ok := args[i].(string)
		if !ok {
			return "", fmt.Errorf("argument %d of %s is %T, not string", i+1, n.String(), args[i])
		}
		return s, nil
	}

	switch n.Method {
	case MethodEquals:
		if err := wantArgs(1); err != nil {
			return nil, err
		}
		return equalValues(recv, args[0]), nil
	case MethodEqualsCollate:
		if err := wantArgs(2); err != nil {
			return nil, err
		}
		s, err := recvString()
		if err != nil {
			return nil, err
		}
		other, err := argString(0)
		if err != nil {
			return nil, err
		}
		collation, err := argString(1)
		if err != nil {
			return nil, err
		}
		switch collation {
		case "nocase":
			return strings.EqualFold(s, other), nil
		case "rtrim":
			return strings.TrimRight(s, " ") == strings.TrimRight(other, " "), nil
		default:
			return s == other, nil
		}
	case MethodContains:
		if err := wantArgs(1); err != nil {
			return nil, err
		}
		if s, ok := recv.(string); ok {
			sub, err := argString(0)
			if err != nil {
				return nil, err
			}
			return strings.Contains(s, sub), nil
		}
		rv := reflect.ValueOf(recv)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, fmt.Errorf("%s needs a string or collection receiver, got %T", n.String(), recv)
		}
		for i := 0; i < rv.Len(); i++ {
			if equalValues(rv.Index(i).Interface(), args[0]) {
				return true, nil
			}
		}
		return false, nil
	case MethodStartsWith, MethodEndsWith:
		if err := wantArgs(1); err != nil {
			return nil, err
		}
		s, err := recvString()
		if err != nil {
			return nil, err
		}
		sub, err := argString(0)
		if err != nil {
			return nil, err
		}
		if n.Method == MethodStartsWith {
			return strings.HasPrefix(s, sub), nil
		}
		return strings.HasSuffix(s, sub), nil
	case MethodReplace:
		if err := wantArgs(2); err != nil {
			return nil, err
		}
		s, err := recvString()
		if err != nil {
			return nil, err
		}
		old, err := argString(0)
		if err != nil {
			return nil, err
		}
		new, err := argString(1)
		if err != nil {
			return nil, err
		}
		return strings.ReplaceAll(s, old, new), nil
	case MethodSubstr:
		s, err := recvString()
		if err != nil {
			return nil, err
		}
		if len(args) != 1 && len(args) != 2 {
			return nil, fmt.Errorf("%s needs 1 or 2 arguments, got %d", n.String(), len(args))
		}
		start, ok := asInt(args[0])
		if !ok {
			return nil, fmt.Errorf("substring start is %T, not an integer", args[0])
		}
		runes := []rune(s)
		// Substr follows the SQL substr convention: start is 1-based.
		from := int(start) - 1
		if from < 0 {
			from = 0
		}
		if from > len(runes) {
			from = len(runes)
		}
		to := len(runes)
		if len(args) == 2 {
			length, ok := asInt(args[1])
			if !ok {
				return nil, fmt.Errorf("substring length is %T, not an integer", args[1])
			}
			to = from + int(length)
			if to < from {
				to = from
			}
			if to > len(runes) {
				to = len(runes)
			}
		}
		return string(runes[from:to]), nil
	case MethodToLower, MethodToUpper:
		s, err := recvString()
		if err != nil {
			return nil, err
		}
		if n.Method == MethodToLower {
			return strings.ToLower(s), nil
		}
		return strings.ToUpper(s), nil
	case MethodIsNullOrEmpty:
		if err := wantArgs(1); err != nil {
			return nil, err
		}
		if isNilValue(args[0]) {
			return true, nil
		}
		s, ok := args[0].(string)
		return ok && s == "", nil
	case MethodTrim, MethodTrimStart, MethodTrimEnd:
		s, err := recvString()
		if err != nil {
			return nil, err
		}
		// The SQL trim functions strip spaces only.
		switch n.Method {
		case MethodTrim:
			return strings.Trim(s, " "), nil
		case MethodTrimStart:
			return strings.TrimLeft(s, " "), nil
		default:
			return strings.TrimRight(s, " "), nil
		}
	case MethodToText:
		if err := wantArgs(1); err != nil {
			return nil, err
		}
		return formatText(args[0])
	case MethodToInteger:
		if err := wantArgs(1); err != nil {
			return nil, err
		}
		return parseInteger(args[0])
	case MethodPow:
		if err := wantArgs(2); err != nil {
			return nil, err
		}
		x, xok := asFloat(args[0])
		y, yok := asFloat(args[1])
		if !xok || !yok {
			return nil, fmt.Errorf("%s needs numeric arguments", n.String())
		}
		return math.Pow(x, y), nil
	case MethodRound:
		if len(args) != 1 && len(args) != 2 {
			return nil, fmt.Errorf("%s needs 1 or 2 arguments, got %d", n.String(), len(args))
		}
		x, ok := asFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("%s needs a numeric argument", n.String())
		}
		if len(args) == 1 {
			return math.Round(x), nil
		}
		digits, ok := asInt(args[1])
		if !ok {
			return nil, fmt.Errorf("round digit count is %T, not an integer", args[1])
		}
		shift := math.Pow(10, float64(digits))
		return math.Round(x*shift) / shift, nil
	}

	if fn, ok := hostMathFuncs[n.Method]; ok {
		if err := wantArgs(1); err != nil {
			return nil, err
		}
		x, ok := asFloat(args[0])
		if !ok {
			return nil, fmt.Errorf("%s needs a numeric argument", n.String())
		}
		return fn(x), nil
	}
	return nil, fmt.Errorf("%w for %s", errNoHostEvaluation, n.String())
}

var hostMathFuncs = map[string]func(float64) float64{
	MethodCeiling: math.Ceil,
	MethodFloor:   math.Floor,
	MethodAbs:     math.Abs,
	MethodExp:     math.Exp,
	MethodLog:     math.Log,
	MethodSqrt:    math.Sqrt,
	MethodSin:     math.Sin,
	MethodCos:     math.Cos,
	MethodTan:     math.Tan,
	MethodAsin:    math.Asin,
	MethodAcos:    math.Acos,
	MethodAtan:    math.Atan,
}

func evaluateMember(n *Member) (any, error) {
	if n.Name == MemberLength {
		v, err := evaluate(n.Target)
		if err != nil {
			return nil, err
		}
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("%s needs a string target, got %T", n.String(), v)
		}
		return int64(utf8.RuneCountInString(s)), nil
	}
	return nil, fmt.Errorf("%w for %s", errNoHostEvaluation, n.String())
}

// formatText renders a value the way SQL cast(x as text) does.
func formatText(v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case []byte:
		return string(x), nil
	case bool:
		if x {
			return "1", nil
		}
		return "0", nil
	case float32:
		return strconv.FormatFloat(float64(x), 'g', -1, 32), nil
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64), nil
	}
	if i, ok := asInt(v); ok {
		return strconv.FormatInt(i, 10), nil
	}
	return fmt.Sprint(v), nil
}

// parseInteger renders a value the way SQL cast(x as integer) does.
func parseInteger(v any) (int64, error) {
	if i, ok := asInt(v); ok {
		return i, nil
	}
	switch x := v.(type) {
	case float32:
		return int64(x), nil
	case float64:
		return int64(x), nil
	case string:
		i, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("cannot parse %q as integer", x)
		}
		return i, nil
	}
	return 0, fmt.Errorf("cannot convert %T value to integer", v)
}

// asInt normalises any integer value to int64.
func asInt(v any) (int64, bool) {
	switch n := v.(type) {
	case int:
		return int64(n), true
	case int8:
		return int64(n), true
	case int16:
		return int64(n), true
	case int32:
		return int64(n), true
	case int64:
		return n, true
	case uint:
		return int64(n), true
	case uint8:
		return int64(n), true
	case uint16:
		return int64(n), true
	case uint32:
		return int64(n), true
	case uint64:
		return int64(n), true
	}
	return 0, false
}

// asFloat normalises any numeric value to float64.
func asFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	if i, ok := asInt(v); ok {
		return float64(i), true
	}
	return 0, false
}

// isNilValue reports whether v is nil, including typed nil pointers boxed in
// an interface.
func isNilValue(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return rv.IsNil()
	}
	return false
}

// equalValues compares two evaluated values, comparing numbers numerically
// across types.
func equalValues(a, b any) bool {
	if isNilValue(a) || isNilValue(b) {
		return isNilValue(a) && isNilValue(b)
	}
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			return af == bf
		}
		return false
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			return at.Equal(bt)
		}
		return false
	}
	return reflect.DeepEqual(a, b)
}

// compareValues orders two evaluated values. Numbers order numerically,
// strings lexically and times chronologically.
func compareValues(a, b any) (int, error) {
	if af, aok := asFloat(a); aok {
		if bf, bok := asFloat(b); bok {
			switch {
			case af < bf:
				return -1, nil
			case af > bf:
				return 1, nil
			}
			return 0, nil
		}
	}
	if as, aok := a.(string); aok {
		if bs, bok := b.(string); bok {
			return strings.Compare(as, bs), nil
		}
	}
	if at, aok := a.(time.Time); aok {
		if bt, bok := b.(time.Time); bok {
			switch {
			case at.Before(bt):
				return -1, nil
			case at.After(bt):
				return 1, nil
			}
			return 0, nil
		}
	}
	return 0, fmt.Errorf("cannot order %T and %T values", a, b)
}
