// Copyright 2025 Canonical Ltd.
// Licensed under Apache 2.0, see LICENCE file for details.

// Package typeinfo reflects over mapped struct types. It parses "db" struct
// tags into column mappings, resolves member names to column names for the
// expression compiler, extracts field values for INSERT and UPDATE
// parameters and builds scan targets for reading query results back into
// structs.
package typeinfo
