// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
)

// Column describes one mapped column of a struct type.
type Column struct {
	// Member is the Go field name.
	Member string
	// Name is the column name from the "db" tag.
	Name string
	// Index is the field index for reflect.Value.Field.
	Index int
	// Type is the Go type of the field.
	Type reflect.Type

	OmitEmpty     bool
	PrimaryKey    bool
	AutoIncrement bool
	NotNull       bool
	Unique        bool
	Indexed       bool
	// Default is the SQL default literal from the tag, empty if unset.
	Default string
}

// Info contains the mapping information of one struct type. It is generated
// once per type and shared; it is immutable after generation.
type Info struct {
	typ        reflect.Type
	columns    []*Column
	byMember   map[string]*Column
	byName     map[string]*Column
	primaryKey *Column
}

// Typ returns the mapped struct type.
func (i *Info) Typ() reflect.Type {
	return i.typ
}

// TypeName returns the name of the mapped struct type.
func (i *Info) TypeName() string {
	return i.typ.Name()
}

// Columns returns the mapped columns in field declaration order.
func (i *Info) Columns() []*Column {
	return i.columns
}

// ColumnByMember returns the column a Go field name maps to.
func (i *Info) ColumnByMember(member string) (*Column, bool) {
	c, ok := i.byMember[member]
	return c, ok
}

// PrimaryKey returns the primary key column, if the type declares one.
func (i *Info) PrimaryKey() (*Column, bool) {
	return i.primaryKey, i.primaryKey != nil
}

// Column returns the column name a row member maps to. Together with
// MemberType it satisfies the compiler's column mapper interface.
func (i *Info) Column(member string) (string, bool) {
	c, ok := i.byMember[member]
	if !ok {
		return "", false
	}
	return c.Name, true
}

// MemberType returns the Go type of a row member.
func (i *Info) MemberType(member string) (reflect.Type, bool) {
	c, ok := i.byMember[member]
	if !ok {
		return nil, false
	}
	return c.Type, true
}

// RowValues extracts the values of the given columns from row, which must be
// of the mapped type or a pointer to it. The values are returned in column
// order for binding as query parameters.
func (i *Info) RowValues(row any, columns []*Column) ([]any, error) {
	v, err := i.structValue(row)
	if err != nil {
		return nil, err
	}
	values := make([]any, len(columns))
	for n, column := range columns {
		values[n] = v.Field(column.Index).Interface()
	}
	return values, nil
}

// IsZero reports whether the column holds its zero value in row.
func (i *Info) IsZero(row any, column *Column) (bool, error) {
	v, err := i.structValue(row)
	if err != nil {
		return false, err
	}
	return v.Field(column.Index).IsZero(), nil
}

func (i *Info) structValue(row any) (reflect.Value, error) {
	v := reflect.ValueOf(row)
	v = reflect.Indirect(v)
	if !v.IsValid() || v.Type() != i.typ {
		return reflect.Value{}, fmt.Errorf("need %s, got %T", i.typ.Name(), row)
	}
	return v, nil
}
