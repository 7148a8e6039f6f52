// Package database builds parameterised list queries with sanitised identifiers.
package database

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/jackc/pgx/v5"
)

// ConditionType is the comparison operator of a Condition.
type ConditionType string

const (
	Equal              ConditionType = "="
	NotEqual           ConditionType = "!="
	GreaterThan        ConditionType = ">"
	LessThan           ConditionType = "<"
	LessThanOrEqual    ConditionType = "<="
	GreaterThanOrEqual ConditionType = ">="
	In                 ConditionType = "IN"

	unset = -1
)

// Condition is one ANDed predicate of a WHERE clause.
type Condition struct {
	Field string
	Type  ConditionType
	Value any
}

// WhereCond builds a Condition.
func WhereCond(field string, condType ConditionType, value any) Condition {
	return Condition{Field: field, Type: condType, Value: value}
}

type orderTerm struct {
	column    string
	direction string
}

// ListQueryOptions describes a SELECT over a single table.
type ListQueryOptions struct {
	Table      string
	Columns    []string
	CountOnly  bool
	Conditions []Condition
	Limit      int
	Offset     int

	order []orderTerm
}

// ListQueryOption mutates ListQueryOptions.
type ListQueryOption func(*ListQueryOptions)

// NewListQueryOptions returns options for table with no limit, offset, or ordering.
func NewListQueryOptions(table string, opts ...ListQueryOption) *ListQueryOptions {
	options := &ListQueryOptions{
		Table:  table,
		Limit:  unset,
		Offset: unset,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}

// WithColumns sets the columns to select.
func WithColumns(cols ...string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Columns = cols
	}
}

// WithCondition adds a single condition.
func WithCondition(cond Condition) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.Conditions = append(o.Conditions, cond)
	}
}

// WithOrderBy appends an ordering term. Repeated calls break ties in call order.
func WithOrderBy(column, direction string) ListQueryOption {
	return func(o *ListQueryOptions) {
		o.order = append(o.order, orderTerm{column: column, direction: direction})
	}
}

// WithLimit sets the limit. Accepts 0.
func WithLimit(limit int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if limit >= 0 {
			o.Limit = limit
		}
	}
}

// WithOffset sets the offset. Accepts 0.
func WithOffset(offset int) ListQueryOption {
	return func(o *ListQueryOptions) {
		if offset >= 0 {
			o.Offset = offset
		}
	}
}

// WithCountOnly turns the query into SELECT COUNT(*).
func WithCountOnly() ListQueryOption {
	return func(o *ListQueryOptions) {
		o.CountOnly = true
	}
}

func sanitizeIdentifier(ident string) string {
	return pgx.Identifier(strings.Split(ident, ".")).Sanitize()
}

func buildSelectClause(options *ListQueryOptions) string {
	if options.CountOnly {
		return "SELECT COUNT(*) "
	}
	if len(options.Columns) == 0 {
		return "SELECT * "
	}
	cols := make([]string, len(options.Columns))
	for i, col := range options.Columns {
		cols[i] = sanitizeIdentifier(col)
	}
	return "SELECT " + strings.Join(cols, ", ") + " "
}

func processCondition(cond Condition, param int) (string, []any, int) {
	if cond.Field == "" {
		return "", nil, param
	}
	field := sanitizeIdentifier(cond.Field)

	switch cond.Type {
	case In:
		rv := reflect.ValueOf(cond.Value)
		if rv.Kind() != reflect.Slice || rv.Len() == 0 {
			return "", nil, param
		}
		placeholders := make([]string, rv.Len())
		args := make([]any, rv.Len())
		for i := range rv.Len() {
			placeholders[i] = fmt.Sprintf("$%d", param)
			args[i] = rv.Index(i).Interface()
			param++
		}
		return fmt.Sprintf("%s IN (%s)", field, strings.Join(placeholders, ", ")), args, param
	case Equal, NotEqual, GreaterThan, LessThan, LessThanOrEqual, GreaterThanOrEqual:
		return fmt.Sprintf("%s %s $%d", field, cond.Type, param), []any{cond.Value}, param + 1
	}
	return "", nil, param
}

func buildWhereClause(conds []Condition, start int) (string, []any, int) {
	parts := make([]string, 0, len(conds))
	args := []any{}
	param := start
	for _, cond := range conds {
		s, a, next := processCondition(cond, param)
		if s == "" {
			continue
		}
		parts = append(parts, s)
		args = append(args, a...)
		param = next
	}
	if len(parts) == 0 {
		return "", args, param
	}
	return "WHERE " + strings.Join(parts, " AND "), args, param
}

func buildOrderAndPage(options *ListQueryOptions, param int, args []any) (string, []any) {
	var clause strings.Builder

	terms := make([]string, 0, len(options.order))
	for _, t := range options.order {
		term := sanitizeIdentifier(t.column)
		if dir := strings.ToUpper(t.direction); dir == "ASC" || dir == "DESC" {
			term += " " + dir
		}
		terms = append(terms, term)
	}
	if len(terms) > 0 {
		clause.WriteString(" ORDER BY ")
		clause.WriteString(strings.Join(terms, ", "))
	}

	if options.Limit != unset {
		fmt.Fprintf(&clause, " LIMIT $%d", param)
		args = append(args, options.Limit)
		param++
	}
	if options.Offset != unset {
		fmt.Fprintf(&clause, " OFFSET $%d", param)
		args = append(args, options.Offset)
	}
	return clause.String(), args
}

// BuildListQuery renders options into SQL and its positional arguments.
//
//	q, args := BuildListQuery(NewListQueryOptions("jobs",
//		WithColumns("id", "status"),
//		WithCondition(WhereCond("status", Equal, "dead")),
//		WithOrderBy("created_at", "DESC"),
//		WithLimit(10),
//	))
func BuildListQuery(options *ListQueryOptions) (string, []any) {
	if options == nil {
		return "", nil
	}

	var query strings.Builder
	query.WriteString(buildSelectClause(options))
	query.WriteString("FROM ")
	query.WriteString(sanitizeIdentifier(options.Table))

	where, args, next := buildWhereClause(options.Conditions, 1)
	if where != "" {
		query.WriteString(" ")
		query.WriteString(where)
	}
	if options.CountOnly {
		return query.String(), args
	}

	tail, args := buildOrderAndPage(options, next, args)
	query.WriteString(tail)
	return query.String(), args
}
