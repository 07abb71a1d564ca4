// Threadline - Real-time Threaded Discussions
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/threadline

// Package query builds parameterized WHERE clauses with $N placeholders,
// the form accepted by both DuckDB and Postgres.
package query

import (
	"strconv"
	"strings"
)

// WhereBuilder constructs SQL WHERE clauses with positional arguments.
//
//	wb := query.NewWhereBuilder()
//	wb.Eq("page_id", 7).IsNull("parent_id")
//	where, args := wb.Build()
//	// page_id = $1 AND parent_id IS NULL
type WhereBuilder struct {
	clauses []string
	args    []interface{}
}

// NewWhereBuilder creates a new WhereBuilder instance.
func NewWhereBuilder() *WhereBuilder {
	return &WhereBuilder{}
}

// Arg appends an argument and returns its placeholder, for values used
// outside the WHERE clause.
func (wb *WhereBuilder) Arg(arg interface{}) string {
	wb.args = append(wb.args, arg)
	return "$" + strconv.Itoa(len(wb.args))
}

// Eq adds "column = $N".
func (wb *WhereBuilder) Eq(column string, value interface{}) *WhereBuilder {
	wb.clauses = append(wb.clauses, column+" = "+wb.Arg(value))
	return wb
}

// IsNull adds "column IS NULL".
func (wb *WhereBuilder) IsNull(column string) *WhereBuilder {
	wb.clauses = append(wb.clauses, column+" IS NULL")
	return wb
}

// EqOrNull adds Eq when value is non-nil and IsNull otherwise.
func (wb *WhereBuilder) EqOrNull(column string, value *int64) *WhereBuilder {
	if value == nil {
		return wb.IsNull(column)
	}
	return wb.Eq(column, *value)
}

// In adds "column IN ($N, ...)". An empty list matches nothing.
func (wb *WhereBuilder) In(column string, values []int64) *WhereBuilder {
	if len(values) == 0 {
		wb.clauses = append(wb.clauses, "1=0")
		return wb
	}
	placeholders := make([]string, len(values))
	for i, v := range values {
		placeholders[i] = wb.Arg(v)
	}
	wb.clauses = append(wb.clauses, column+" IN ("+strings.Join(placeholders, ", ")+")")
	return wb
}

// Raw adds a clause with no arguments, e.g. "is_deleted = FALSE".
func (wb *WhereBuilder) Raw(clause string) *WhereBuilder {
	wb.clauses = append(wb.clauses, clause)
	return wb
}

// Build joins the clauses with AND. Returns ("1=1", nil) when empty.
func (wb *WhereBuilder) Build() (string, []interface{}) {
	if len(wb.clauses) == 0 {
		return "1=1", nil
	}
	return strings.Join(wb.clauses, " AND "), wb.args
}

// BuildWithPrefix returns the WHERE clause with "WHERE " prefix.
func (wb *WhereBuilder) BuildWithPrefix() (string, []interface{}) {
	whereClause, args := wb.Build()
	return "WHERE " + whereClause, args
}

// Count returns the number of clauses added to the builder.
func (wb *WhereBuilder) Count() int {
	return len(wb.clauses)
}

// IsEmpty returns true if no clauses have been added.
func (wb *WhereBuilder) IsEmpty() bool {
	return len(wb.clauses) == 0
}
