// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

// Method and member identities of the built-in converters. The identities
// are plain strings rather than reflected method handles so that dispatch
// does not depend on runtime metadata identity.
const (
	MethodEquals        = "Equals"
	MethodEqualsCollate = "EqualsCollate"
	MethodContains      = "Contains"
	MethodStartsWith    = "StartsWith"
	MethodEndsWith      = "EndsWith"
	MethodReplace       = "Replace"
	MethodSubstr        = "Substr"
	MethodToLower       = "ToLower"
	MethodToUpper       = "ToUpper"
	MethodIsNullOrEmpty = "IsNullOrEmpty"
	MethodTrim          = "Trim"
	MethodTrimStart     = "TrimStart"
	MethodTrimEnd       = "TrimEnd"
	MethodRound         = "Round"
	MethodCeiling       = "Ceiling"
	MethodFloor         = "Floor"
	MethodAbs           = "Abs"
	MethodExp           = "Exp"
	MethodLog           = "Log"
	MethodPow           = "Pow"
	MethodSqrt          = "Sqrt"
	MethodSin           = "Sin"
	MethodCos           = "Cos"
	MethodTan           = "Tan"
	MethodAsin          = "Asin"
	MethodAcos          = "Acos"
	MethodAtan          = "Atan"
	MethodToText        = "ToText"
	MethodToInteger     = "ToInteger"

	MemberLength = "Length"
)

// Converter translates one method or member operation into a SQL fragment.
// A converter may call Compiler.Compile on sub-nodes and may bind parameters
// to the compiler's sink.
type Converter func(c *Compiler, node Node) (string, error)

// Registry holds the converters known to a compiler, keyed by method and
// member identity. A registry is owned by the table object that creates it;
// it is never process global. Converters must be registered before the
// registry is first used to build a command, and the registry must not be
// mutated while commands are being built concurrently.
type Registry struct {
	methods map[string]Converter
	members map[string]Converter
}

// NewRegistry returns a registry populated with the built-in converters.
func NewRegistry() *Registry {
	r := &Registry{
		methods: make(map[string]Converter),
		members: make(map[string]Converter),
	}
	registerBuiltins(r)
	return r
}

// RegisterMethod registers a converter for a method identity. The last
// registration for an identity wins, so built-ins can be overridden.
//
// An override of a built-in identity only affects expressions that
// reference the row: a subtree with no row reference is evaluated on the
// host, which keeps the built-in semantics for the identities it knows.
func (r *Registry) RegisterMethod(identity string, conv Converter) {
	r.methods[identity] = conv
}

// RegisterMember registers a converter for a member identity. The last
// registration for an identity wins.
func (r *Registry) RegisterMember(identity string, conv Converter) {
	r.members[identity] = conv
}

func (r *Registry) method(identity string) (Converter, bool) {
	conv, ok := r.methods[identity]
	return conv, ok
}

func (r *Registry) member(identity string) (Converter, bool) {
	conv, ok := r.members[identity]
	return conv, ok
}
