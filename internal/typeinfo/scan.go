// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

package typeinfo

import (
	"database/sql"
	"fmt"
	"reflect"
)

var scannerInterface = reflect.TypeOf((*sql.Scanner)(nil)).Elem()

// scanProxy is an intermediate scan target for fields that cannot be
// scanned into directly. rows.Scan errors if it scans NULL into a value
// that cannot be nil, so such fields are scanned through a pointer and
// copied, or zeroed on NULL, once the scan has succeeded.
type scanProxy struct {
	original reflect.Value
	scan     reflect.Value
}

func (sp scanProxy) onSuccess() {
	if sp.scan.IsNil() {
		sp.original.Set(reflect.Zero(sp.original.Type()))
		return
	}
	sp.original.Set(sp.scan.Elem())
}

// ScanTargets returns the rows.Scan pointers for the given members of dest,
// which must be a non-nil pointer to the mapped struct, along with a
// function to run after a successful scan to finish any proxied fields.
func (i *Info) ScanTargets(members []string, dest any) ([]any, func(), error) {
	v := reflect.ValueOf(dest)
	if v.Kind() != reflect.Pointer || v.IsNil() {
		return nil, nil, fmt.Errorf("need non-nil pointer to %s, got %T", i.typ.Name(), dest)
	}
	v = v.Elem()
	if v.Type() != i.typ {
		return nil, nil, fmt.Errorf("need pointer to %s, got %T", i.typ.Name(), dest)
	}

	ptrs := make([]any, 0, len(members))
	var proxies []scanProxy
	for _, member := range members {
		column, ok := i.byMember[member]
		if !ok {
			return nil, nil, fmt.Errorf("%q is not a mapped member of %s", member, i.typ.Name())
		}
		field := v.Field(column.Index)
		if !field.CanSet() {
			return nil, nil, fmt.Errorf("internal error: cannot set field %s of struct %s", column.Member, i.typ.Name())
		}
		pt := reflect.PointerTo(field.Type())
		if field.Type().Kind() != reflect.Pointer && !pt.Implements(scannerInterface) {
			scanVal := reflect.New(pt).Elem()
			ptrs = append(ptrs, scanVal.Addr().Interface())
			proxies = append(proxies, scanProxy{original: field, scan: scanVal})
		} else {
			ptrs = append(ptrs, field.Addr().Interface())
		}
	}
	onSuccess := func() {
		for _, p := range proxies {
			p.onSuccess()
		}
	}
	return ptrs, onSuccess, nil
}
