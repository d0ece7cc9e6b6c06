package db

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/cliniccloud/cliniccloud/internal/platform/tenancy"
)

// ScopedQuery builds list queries over a tenant-owned table. The tenant
// predicate is fixed at construction so every clause added later narrows an
// already-scoped result.
type ScopedQuery struct {
	table   string
	cols    string
	where   string
	args    []interface{}
	idx     int
	orderBy string
}

// NewScopedQuery opens a query on table with f applied to tenantColumn.
func NewScopedQuery(table, cols, tenantColumn string, f tenancy.Filter) *ScopedQuery {
	clause, args, next := f.Where(tenantColumn, 1)
	return &ScopedQuery{
		table: table,
		cols:  cols,
		where: clause,
		args:  args,
		idx:   next,
	}
}

// Idx returns the next available parameter index.
func (q *ScopedQuery) Idx() int { return q.idx }

// Add appends a raw clause fragment whose placeholders start at Idx().
func (q *ScopedQuery) Add(clause string, args ...interface{}) {
	q.where += " AND " + clause
	q.args = append(q.args, args...)
	q.idx += len(args)
}

// Eq adds column = value.
func (q *ScopedQuery) Eq(column string, value interface{}) {
	q.Add(fmt.Sprintf("%s = $%d", column, q.idx), value)
}

// Contains adds a case-insensitive substring match on any of columns.
func (q *ScopedQuery) Contains(value string, columns ...string) {
	if value == "" || len(columns) == 0 {
		return
	}
	parts := make([]string, len(columns))
	for i, c := range columns {
		parts[i] = fmt.Sprintf("%s ILIKE $%d", c, q.idx)
	}
	q.Add("("+strings.Join(parts, " OR ")+")", "%"+value+"%")
}

// Since adds column >= t.
func (q *ScopedQuery) Since(column string, t time.Time) {
	q.Add(fmt.Sprintf("%s >= $%d", column, q.idx), t)
}

// Before adds column < t.
func (q *ScopedQuery) Before(column string, t time.Time) {
	q.Add(fmt.Sprintf("%s < $%d", column, q.idx), t)
}

// OrderBy sets the ORDER BY clause (without the keyword).
func (q *ScopedQuery) OrderBy(orderBy string) {
	q.orderBy = orderBy
}

func (q *ScopedQuery) CountSQL() string {
	return fmt.Sprintf("SELECT COUNT(*) FROM %s%s", q.table, q.where)
}

func (q *ScopedQuery) CountArgs() []interface{} {
	return q.args
}

// DataSQL returns the page query with ORDER BY and LIMIT/OFFSET.
func (q *ScopedQuery) DataSQL(limit, offset int) string {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	sql += fmt.Sprintf(" LIMIT $%d OFFSET $%d", q.idx, q.idx+1)
	return sql
}

// DataArgs returns the clause args followed by limit and offset.
func (q *ScopedQuery) DataArgs(limit, offset int) []interface{} {
	result := make([]interface{}, len(q.args)+2)
	copy(result, q.args)
	result[len(q.args)] = limit
	result[len(q.args)+1] = offset
	return result
}

// AllSQL returns the unpaged query, for exports.
func (q *ScopedQuery) AllSQL() string {
	sql := fmt.Sprintf("SELECT %s FROM %s%s", q.cols, q.table, q.where)
	if q.orderBy != "" {
		sql += " ORDER BY " + q.orderBy
	}
	return sql
}

// ListScoped runs the count and page queries of sq and scans each row.
func ListScoped[T any](ctx context.Context, conn Queryable, sq *ScopedQuery, limit, offset int, scan func(pgx.Row) (T, error)) ([]T, int, error) {
	var total int
	if err := conn.QueryRow(ctx, sq.CountSQL(), sq.CountArgs()...).Scan(&total); err != nil {
		return nil, 0, err
	}
	rows, err := conn.Query(ctx, sq.DataSQL(limit, offset), sq.DataArgs(limit, offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, v)
	}
	return out, total, rows.Err()
}
