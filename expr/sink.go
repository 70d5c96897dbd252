// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package expr

import (
	"database/sql"
	"strconv"
)

// Sink collects the parameter values bound while compiling the expressions
// of a single command. Every concrete value embedded in the generated SQL
// becomes one entry here and one placeholder token in the SQL text. Entries
// are append only; names are unique and strictly increasing within one
// command build.
type Sink struct {
	params []any
	count  int
}

// NewSink returns an empty sink.
func NewSink() *Sink {
	return &Sink{}
}

// Add binds value under a freshly generated parameter name and returns the
// placeholder token to splice into the SQL text.
func (s *Sink) Add(value any) string {
	name := s.NextName()
	s.params = append(s.params, sql.Named(name, value))
	return "@" + name
}

// NextName generates a fresh parameter name without binding a value. It is
// exposed for converters that need a name before the value is known; such a
// converter must bind the value itself with AddNamed.
func (s *Sink) NextName() string {
	s.count++
	return "p" + strconv.Itoa(s.count)
}

// AddNamed binds value under a name previously obtained from NextName.
func (s *Sink) AddNamed(name string, value any) {
	s.params = append(s.params, sql.Named(name, value))
}

// Params returns the ordered named parameters collected so far, ready to be
// passed to database/sql.
func (s *Sink) Params() []any {
	return s.params
}

// Len returns the number of parameters bound so far.
func (s *Sink) Len() int {
	return len(s.params)
}
