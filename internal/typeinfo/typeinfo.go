// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"
	"sync"
)

var cacheMutex sync.RWMutex
var cache = make(map[reflect.Type]*Info)

// GetTypeInfo returns the mapping information of the sample's type,
// generating and caching it as required. The sample must be a named struct
// or a pointer to one, with at least one "db"-tagged field.
func GetTypeInfo(sample any) (*Info, error) {
	if sample == nil {
		return nil, fmt.Errorf("cannot map nil value")
	}
	t := reflect.TypeOf(sample)
	if t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil, fmt.Errorf("cannot map %s, need struct or pointer to struct", t.Kind())
	}
	if t.Name() == "" {
		return nil, fmt.Errorf("cannot map anonymous struct")
	}

	cacheMutex.RLock()
	info, found := cache[t]
	cacheMutex.RUnlock()
	if found {
		return info, nil
	}

	info, err := generate(t)
	if err != nil {
		return nil, err
	}

	cacheMutex.Lock()
	cache[t] = info
	cacheMutex.Unlock()

	return info, nil
}

// generate produces the mapping information for a struct type. Fields
// without a "db" tag are outside the mapping's remit.
func generate(t reflect.Type) (*Info, error) {
	info := &Info{
		typ:      t,
		byMember: make(map[string]*Column),
		byName:   make(map[string]*Column),
	}

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		tag := field.Tag.Get("db")
		if tag == "" {
			continue
		}
		if field.PkgPath != "" {
			return nil, fmt.Errorf("field %q of struct %s is not exported", field.Name, t.Name())
		}
		column, err := parseTag(tag)
		if err != nil {
			return nil, fmt.Errorf("cannot parse tag of field %q of struct %s: %s", field.Name, t.Name(), err)
		}
		column.Member = field.Name
		column.Index = i
		column.Type = field.Type
		if column.AutoIncrement {
			if !column.PrimaryKey {
				return nil, fmt.Errorf("column %q of struct %s: autoincrement needs primarykey", column.Name, t.Name())
			}
			if _, ok := asIntegerKind(field.Type); !ok {
				return nil, fmt.Errorf("column %q of struct %s: autoincrement needs an integer field", column.Name, t.Name())
			}
		}
		if dupe, ok := info.byName[column.Name]; ok {
			return nil, fmt.Errorf("struct %s maps column %q twice, fields %q and %q", t.Name(), column.Name, dupe.Member, column.Member)
		}
		if column.PrimaryKey {
			if info.primaryKey != nil {
				return nil, fmt.Errorf("struct %s has more than one primary key", t.Name())
			}
			info.primaryKey = column
		}
		info.columns = append(info.columns, column)
		info.byMember[column.Member] = column
		info.byName[column.Name] = column
	}

	if len(info.columns) == 0 {
		return nil, fmt.Errorf("no \"db\" tags found in struct %s", t.Name())
	}
	return info, nil
}

// This expression should be aligned with the identifiers the DSL accepts as
// member names.
var validColNameRx = regexp.MustCompile(`^([a-zA-Z_])+([a-zA-Z_0-9])*$`)

// parseTag parses a "db" struct tag. The first item is the column name, the
// remaining items are options: omitempty, primarykey, autoincrement,
// notnull, unique, indexed and default=<literal>.
func parseTag(tag string) (*Column, error) {
	options := strings.Split(tag, ",")

	name := options[0]
	if len(name) == 0 {
		return nil, fmt.Errorf("empty column name")
	}
	if !validColNameRx.MatchString(name) {
		return nil, fmt.Errorf("invalid column name %q", name)
	}

	column := &Column{Name: name}
	for _, option := range options[1:] {
		option = strings.TrimSpace(option)
		switch strings.ToLower(option) {
		case "omitempty":
			column.OmitEmpty = true
		case "primarykey":
			column.PrimaryKey = true
		case "autoincrement":
			column.AutoIncrement = true
		case "notnull":
			column.NotNull = true
		case "unique":
			column.Unique = true
		case "indexed":
			column.Indexed = true
		default:
			if lit, ok := cutPrefix(option, "default="); ok {
				column.Default = lit
				continue
			}
			return nil, fmt.Errorf("unexpected tag value %q", option)
		}
	}
	return column, nil
}

func cutPrefix(s, prefix string) (string, bool) {
	if strings.HasPrefix(s, prefix) {
		return s[len(prefix):], true
	}
	return s, false
}

// asIntegerKind reports whether a Go type has SQLite integer affinity.
func asIntegerKind(t reflect.Type) (reflect.Kind, bool) {
	switch k := t.Kind(); k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return k, true
	}
	return reflect.Invalid, false
}
