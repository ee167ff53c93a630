package store

import (
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
)

// sqlBuilder accumulates positional arguments while a query is compiled.
// One builder is threaded through the whole query, including nested EXISTS
// subqueries, so placeholder numbering stays consistent.
type sqlBuilder struct {
	args    []any
	aliasID int
}

func (b *sqlBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

// alias returns a fresh table alias for a correlated subquery.
func (b *sqlBuilder) alias(prefix string) string {
	b.aliasID++
	return fmt.Sprintf("%s%d", prefix, b.aliasID)
}

func andAll(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, " AND ") + ")"
}

func orAll(parts []string) string {
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	}
	return "(" + strings.Join(parts, " OR ") + ")"
}

func appendSQL(parts []string, clause string) []string {
	if clause != "" {
		parts = append(parts, clause)
	}
	return parts
}

// whereClause turns a compiled predicate into a WHERE fragment.
func whereClause(pred string) string {
	if pred == "" {
		return ""
	}
	return " WHERE " + pred
}

// composeBool compiles the recursive AND/OR/NOT lists shared by every
// entity filter.
func composeBool[F any](b *sqlBuilder, t string, and, or, not []F, compile func(*sqlBuilder, string, F) string) []string {
	var parts []string
	for _, f := range and {
		parts = appendSQL(parts, compile(b, t, f))
	}
	if len(or) > 0 {
		var ors []string
		for _, f := range or {
			ors = appendSQL(ors, compile(b, t, f))
		}
		parts = appendSQL(parts, orAll(ors))
	}
	for _, f := range not {
		if c := compile(b, t, f); c != "" {
			parts = append(parts, "NOT ("+c+")")
		}
	}
	return parts
}

// existsSQL builds an EXISTS probe into a related table. join correlates
// the subquery with the outer row; inner is the compiled relation filter.
func existsSQL(table, alias, join, inner string) string {
	q := fmt.Sprintf("EXISTS (SELECT 1 FROM %s %s WHERE %s", table, alias, join)
	if inner != "" {
		q += " AND " + inner
	}
	return q + ")"
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// StringFilter matches a text column. Insensitive switches equality and the
// pattern operators to their case-insensitive forms. IsNull only applies to
// nullable columns.
type StringFilter struct {
	Equals      *string
	In          []string
	NotIn       []string
	Lt          *string
	Lte         *string
	Gt          *string
	Gte         *string
	Contains    *string
	StartsWith  *string
	EndsWith    *string
	Insensitive bool
	IsNull      *bool
}

func (f *StringFilter) sql(b *sqlBuilder, col string) string {
	if f == nil {
		return ""
	}
	like := "LIKE"
	if f.Insensitive {
		like = "ILIKE"
	}
	var parts []string
	cmp := func(op, v string) {
		parts = append(parts, fmt.Sprintf("%s %s %s", col, op, b.arg(v)))
	}
	if f.Equals != nil {
		if f.Insensitive {
			parts = append(parts, fmt.Sprintf("LOWER(%s) = LOWER(%s)", col, b.arg(*f.Equals)))
		} else {
			cmp("=", *f.Equals)
		}
	}
	if len(f.In) > 0 {
		parts = append(parts, fmt.Sprintf("%s = ANY(%s)", col, b.arg(pq.Array(f.In))))
	}
	if len(f.NotIn) > 0 {
		parts = append(parts, fmt.Sprintf("NOT (%s = ANY(%s))", col, b.arg(pq.Array(f.NotIn))))
	}
	if f.Lt != nil {
		cmp("<", *f.Lt)
	}
	if f.Lte != nil {
		cmp("<=", *f.Lte)
	}
	if f.Gt != nil {
		cmp(">", *f.Gt)
	}
	if f.Gte != nil {
		cmp(">=", *f.Gte)
	}
	if f.Contains != nil {
		parts = append(parts, fmt.Sprintf("%s %s %s", col, like, b.arg("%"+escapeLike(*f.Contains)+"%")))
	}
	if f.StartsWith != nil {
		parts = append(parts, fmt.Sprintf("%s %s %s", col, like, b.arg(escapeLike(*f.StartsWith)+"%")))
	}
	if f.EndsWith != nil {
		parts = append(parts, fmt.Sprintf("%s %s %s", col, like, b.arg("%"+escapeLike(*f.EndsWith))))
	}
	parts = appendSQL(parts, nullCheck(col, f.IsNull))
	return andAll(parts)
}

// IntFilter matches an integer column.
type IntFilter struct {
	Equals *int64
	In     []int64
	NotIn  []int64
	Lt     *int64
	Lte    *int64
	Gt     *int64
	Gte    *int64
	IsNull *bool
}

func (f *IntFilter) sql(b *sqlBuilder, col string) string {
	if f == nil {
		return ""
	}
	var parts []string
	cmp := func(op string, v int64) {
		parts = append(parts, fmt.Sprintf("%s %s %s", col, op, b.arg(v)))
	}
	if f.Equals != nil {
		cmp("=", *f.Equals)
	}
	if len(f.In) > 0 {
		parts = append(parts, fmt.Sprintf("%s = ANY(%s)", col, b.arg(pq.Array(f.In))))
	}
	if len(f.NotIn) > 0 {
		parts = append(parts, fmt.Sprintf("NOT (%s = ANY(%s))", col, b.arg(pq.Array(f.NotIn))))
	}
	if f.Lt != nil {
		cmp("<", *f.Lt)
	}
	if f.Lte != nil {
		cmp("<=", *f.Lte)
	}
	if f.Gt != nil {
		cmp(">", *f.Gt)
	}
	if f.Gte != nil {
		cmp(">=", *f.Gte)
	}
	parts = appendSQL(parts, nullCheck(col, f.IsNull))
	return andAll(parts)
}

// FloatFilter matches a numeric column.
type FloatFilter struct {
	Equals *float64
	In     []float64
	NotIn  []float64
	Lt     *float64
	Lte    *float64
	Gt     *float64
	Gte    *float64
	IsNull *bool
}

func (f *FloatFilter) sql(b *sqlBuilder, col string) string {
	if f == nil {
		return ""
	}
	var parts []string
	cmp := func(op string, v float64) {
		parts = append(parts, fmt.Sprintf("%s %s %s", col, op, b.arg(v)))
	}
	if f.Equals != nil {
		cmp("=", *f.Equals)
	}
	if len(f.In) > 0 {
		parts = append(parts, fmt.Sprintf("%s = ANY(%s)", col, b.arg(pq.Array(f.In))))
	}
	if len(f.NotIn) > 0 {
		parts = append(parts, fmt.Sprintf("NOT (%s = ANY(%s))", col, b.arg(pq.Array(f.NotIn))))
	}
	if f.Lt != nil {
		cmp("<", *f.Lt)
	}
	if f.Lte != nil {
		cmp("<=", *f.Lte)
	}
	if f.Gt != nil {
		cmp(">", *f.Gt)
	}
	if f.Gte != nil {
		cmp(">=", *f.Gte)
	}
	parts = appendSQL(parts, nullCheck(col, f.IsNull))
	return andAll(parts)
}

// BoolFilter matches a boolean column.
type BoolFilter struct {
	Equals *bool
}

func (f *BoolFilter) sql(b *sqlBuilder, col string) string {
	if f == nil || f.Equals == nil {
		return ""
	}
	return fmt.Sprintf("%s = %s", col, b.arg(*f.Equals))
}

// TimeFilter matches a timestamp column; IsNull only applies to nullable
// columns such as User.birth.
type TimeFilter struct {
	Equals *time.Time
	In     []time.Time
	NotIn  []time.Time
	Lt     *time.Time
	Lte    *time.Time
	Gt     *time.Time
	Gte    *time.Time
	IsNull *bool
}

func (f *TimeFilter) sql(b *sqlBuilder, col string) string {
	if f == nil {
		return ""
	}
	var parts []string
	cmp := func(op string, v time.Time) {
		parts = append(parts, fmt.Sprintf("%s %s %s", col, op, b.arg(v)))
	}
	if f.Equals != nil {
		cmp("=", *f.Equals)
	}
	if len(f.In) > 0 {
		parts = append(parts, fmt.Sprintf("%s = ANY(%s)", col, b.arg(pq.Array(f.In))))
	}
	if len(f.NotIn) > 0 {
		parts = append(parts, fmt.Sprintf("NOT (%s = ANY(%s))", col, b.arg(pq.Array(f.NotIn))))
	}
	if f.Lt != nil {
		cmp("<", *f.Lt)
	}
	if f.Lte != nil {
		cmp("<=", *f.Lte)
	}
	if f.Gt != nil {
		cmp(">", *f.Gt)
	}
	if f.Gte != nil {
		cmp(">=", *f.Gte)
	}
	parts = appendSQL(parts, nullCheck(col, f.IsNull))
	return andAll(parts)
}

func nullCheck(col string, isNull *bool) string {
	switch {
	case isNull == nil:
		return ""
	case *isNull:
		return col + " IS NULL"
	default:
		return col + " IS NOT NULL"
	}
}

// Order is one (field, direction) pair of an ordering. Field names are the
// entity's JSON field names, validated against a per-entity whitelist; a
// few entities expose virtual relation-count fields (e.g. merchants order
// by "productCount").
type Order struct {
	Field      string
	Desc       bool
	NullsFirst *bool
}

// orderExpr resolves an order field to a SQL expression. Plain columns are
// qualified with the table; whitelisted virtual expressions (starting with
// a parenthesis) are used as-is.
func orderExpr(t string, cols, extra map[string]string, field string) (string, bool) {
	if col, ok := cols[field]; ok {
		return t + "." + col, true
	}
	if expr, ok := extra[field]; ok {
		return expr, true
	}
	return "", false
}

// listQuery holds everything needed to assemble a SELECT over one table:
// the compiled filter, the requested ordering and one of the two
// pagination modes (offset/limit or cursor/take).
type listQuery struct {
	table   string
	selects string
	cols    map[string]string // orderable columns
	extra   map[string]string // virtual order expressions
	where   string
	orderBy []Order
	limit   int
	offset  int
	cursor  *string
	take    int
}

// build assembles the final SQL. The returned flag reports whether the
// rows come back in reverse order (cursor pagination with negative take)
// and must be flipped after scanning.
func (q listQuery) build(op string, b *sqlBuilder) (string, bool, error) {
	type key struct {
		expr string
		desc bool
		// raw marks virtual expressions, which cannot back a cursor.
		raw bool
	}
	keys := make([]key, 0, len(q.orderBy)+1)
	for _, o := range q.orderBy {
		expr, ok := orderExpr(q.table, q.cols, q.extra, o.Field)
		if !ok {
			return "", false, fmt.Errorf("store: %s: cannot order by %q", op, o.Field)
		}
		keys = append(keys, key{expr: expr, desc: o.Desc, raw: strings.HasPrefix(expr, "(")})
	}
	// Unique tiebreak keeps the sequence stable and restartable.
	tieDesc := false
	if len(keys) > 0 {
		tieDesc = keys[0].desc
	}
	keys = append(keys, key{expr: q.table + ".id", desc: tieDesc})

	reversed := false
	pred := q.where
	if q.cursor != nil {
		for i, k := range keys {
			if k.raw {
				return "", false, fmt.Errorf("store: %s: cannot use a cursor with relation ordering", op)
			}
			if k.desc != keys[0].desc && i < len(keys)-1 {
				return "", false, fmt.Errorf("store: %s: cursor pagination requires a uniform sort direction", op)
			}
		}
		if q.take < 0 {
			reversed = true
			for i := range keys {
				keys[i].desc = !keys[i].desc
			}
		}
		exprs := make([]string, len(keys))
		for i, k := range keys {
			exprs[i] = k.expr
		}
		tuple := "(" + strings.Join(exprs, ", ") + ")"
		cmp := ">="
		if keys[0].desc {
			cmp = "<="
		}
		anchor := fmt.Sprintf("(SELECT %s FROM %s WHERE %s.id = %s)",
			strings.Join(exprs, ", "), q.table, q.table, b.arg(*q.cursor))
		cursorPred := fmt.Sprintf("%s %s %s", tuple, cmp, anchor)
		if pred == "" {
			pred = cursorPred
		} else {
			pred = pred + " AND " + cursorPred
		}
	}

	orderParts := make([]string, len(keys))
	for i, k := range keys {
		dir := " ASC"
		if k.desc {
			dir = " DESC"
		}
		orderParts[i] = k.expr + dir
	}
	// NULLS FIRST/LAST rides on the matching requested key only.
	for i, o := range q.orderBy {
		if o.NullsFirst == nil {
			continue
		}
		if *o.NullsFirst {
			orderParts[i] += " NULLS FIRST"
		} else {
			orderParts[i] += " NULLS LAST"
		}
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		q.selects, q.table, whereClause(pred), strings.Join(orderParts, ", "))

	limit := q.limit
	if q.cursor != nil {
		limit = q.take
		if limit < 0 {
			limit = -limit
		}
	}
	if limit > 0 {
		query += " LIMIT " + b.arg(limit)
	}
	if q.cursor == nil && q.offset > 0 {
		query += " OFFSET " + b.arg(q.offset)
	}
	return query, reversed, nil
}

func reverseSlice[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// setBuilder collects "col = $n" fragments for partial updates.
type setBuilder struct {
	b    *sqlBuilder
	cols []string
}

func (sb *setBuilder) set(col string, v any) {
	sb.cols = append(sb.cols, fmt.Sprintf("%s = %s", col, sb.b.arg(v)))
}

// clause returns the SET body with updated_at refreshed, as every
// mutation must do.
func (sb *setBuilder) clause() string {
	return strings.Join(append(sb.cols, "updated_at = now()"), ", ")
}
