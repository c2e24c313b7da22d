package db

import (
	"fmt"
	"sort"
)

// FilterType defines how a list filter parameter maps to SQL.
type FilterType int

const (
	FilterExact FilterType = iota // exact column match
	FilterILike                   // case-insensitive substring match
)

// FilterConfig maps a query parameter to its database column.
type FilterConfig struct {
	Type   FilterType
	Column string
}

// ListQuery builds the paired count/data SQL for a filtered, paginated list
// endpoint. It encapsulates the WHERE-building pattern shared by the domain
// repositories.
type ListQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewListQuery creates a ListQuery for the given table and column list.
func NewListQuery(table, cols string) *ListQuery {
	return &ListQuery{table: table, cols: cols, idx: 1}
}

// Add appends a raw WHERE clause fragment (without leading "AND").
func (q *ListQuery) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// Idx returns the next available placeholder index for use in Add clauses.
func (q *ListQuery) Idx() int { return q.idx }

// ApplyParams applies every recognized parameter from params using configs.
// Parameter names are applied in sorted order so generated SQL is stable.
func (q *ListQuery) ApplyParams(params map[string]string, configs map[string]FilterConfig) {
	names := make([]string, 0, len(params))
	for name := range params {
		if _, ok := configs[name]; ok {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		cfg := configs[name]
		switch cfg.Type {
		case FilterILike:
			q.Add(fmt.Sprintf("%s ILIKE $%d", cfg.Column, q.idx), "%"+params[name]+"%")
		default:
			q.Add(fmt.Sprintf("%s = $%d", cfg.Column, q.idx), params[name])
		}
	}
}

// OrderBy sets the ORDER BY clause (without the "ORDER BY" keyword).
func (q *ListQuery) OrderBy(orderBy string) { q.orderBy = orderBy }

// CountSQL returns the count query SQL.
func (q *ListQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE 1=1%s", q.table, q.where)
}

// CountArgs returns the arguments for the count query.
func (q *ListQuery) CountArgs() []interface{} { return q.args }

// DataSQL returns the data query SQL with ORDER BY and LIMIT/OFFSET.
func (q *ListQuery) DataSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s WHERE 1=1%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the arguments for the data query.
func (q *ListQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}
