package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// AggregateSpec selects which summary statistics to compute. Field names
// are the entity's JSON field names; Min and Max additionally accept the
// entity's timestamp fields (createdAt, updatedAt).
type AggregateSpec struct {
	Count bool
	Min   []string
	Max   []string
	Sum   []string
	Avg   []string
}

// Aggregate carries only the requested statistics: a field is present in a
// map only if it was requested, and its value is nil when the database
// returned NULL. Sum and avg over zero matching rows are nil, never 0.
type Aggregate struct {
	Count   int64
	Min     map[string]*float64
	Max     map[string]*float64
	Sum     map[string]*float64
	Avg     map[string]*float64
	MinTime map[string]*time.Time
	MaxTime map[string]*time.Time
}

type aggSelect struct {
	fn     string // MIN, MAX, SUM, AVG
	field  string
	expr   string
	isTime bool
}

func buildAggSelects(op string, numCols, timeCols map[string]string, spec AggregateSpec) ([]aggSelect, error) {
	var out []aggSelect
	add := func(fn string, fields []string, allowTime bool) error {
		for _, f := range fields {
			if col, ok := numCols[f]; ok {
				out = append(out, aggSelect{fn: fn, field: f, expr: fmt.Sprintf("%s(%s)", fn, col)})
				continue
			}
			if col, ok := timeCols[f]; ok && allowTime {
				out = append(out, aggSelect{fn: fn, field: f, expr: fmt.Sprintf("%s(%s)", fn, col), isTime: true})
				continue
			}
			return fmt.Errorf("store: %s: field %q is not aggregatable with %s", op, f, fn)
		}
		return nil
	}
	if err := add("MIN", spec.Min, true); err != nil {
		return nil, err
	}
	if err := add("MAX", spec.Max, true); err != nil {
		return nil, err
	}
	if err := add("SUM", spec.Sum, false); err != nil {
		return nil, err
	}
	if err := add("AVG", spec.Avg, false); err != nil {
		return nil, err
	}
	return out, nil
}

func newAggregate() *Aggregate {
	return &Aggregate{
		Min: map[string]*float64{}, Max: map[string]*float64{},
		Sum: map[string]*float64{}, Avg: map[string]*float64{},
		MinTime: map[string]*time.Time{}, MaxTime: map[string]*time.Time{},
	}
}

func (a *Aggregate) assign(sel aggSelect, num sql.NullFloat64, ts sql.NullTime) {
	if sel.isTime {
		var v *time.Time
		if ts.Valid {
			t := ts.Time
			v = &t
		}
		if sel.fn == "MIN" {
			a.MinTime[sel.field] = v
		} else {
			a.MaxTime[sel.field] = v
		}
		return
	}
	var v *float64
	if num.Valid {
		n := num.Float64
		v = &n
	}
	switch sel.fn {
	case "MIN":
		a.Min[sel.field] = v
	case "MAX":
		a.Max[sel.field] = v
	case "SUM":
		a.Sum[sel.field] = v
	case "AVG":
		a.Avg[sel.field] = v
	}
}

// aggregateRows computes the requested statistics over one table without
// materializing the row set. where is a pre-compiled predicate whose
// arguments already live in b.
func (s *Store) aggregateRows(ctx context.Context, op, table string, numCols, timeCols map[string]string, b *sqlBuilder, where string, spec AggregateSpec) (*Aggregate, error) {
	sels, err := buildAggSelects(op, numCols, timeCols, spec)
	if err != nil {
		return nil, err
	}
	selects := make([]string, 0, len(sels)+1)
	if spec.Count {
		selects = append(selects, "COUNT(*)")
	}
	for _, sel := range sels {
		selects = append(selects, sel.expr)
	}
	if len(selects) == 0 {
		return nil, fmt.Errorf("store: %s: nothing to aggregate", op)
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s", strings.Join(selects, ", "), table, whereClause(where))

	agg := newAggregate()
	nums := make([]sql.NullFloat64, len(sels))
	times := make([]sql.NullTime, len(sels))
	dests := make([]any, 0, len(selects))
	if spec.Count {
		dests = append(dests, &agg.Count)
	}
	for i, sel := range sels {
		if sel.isTime {
			dests = append(dests, &times[i])
		} else {
			dests = append(dests, &nums[i])
		}
	}
	if err := s.q.QueryRowContext(ctx, query, b.args...).Scan(dests...); err != nil {
		return nil, mapError(op, err)
	}
	for i, sel := range sels {
		agg.assign(sel, nums[i], times[i])
	}
	return agg, nil
}

// AggFunc names an aggregate function inside a having condition.
type AggFunc string

const (
	AggCount AggFunc = "count"
	AggMin   AggFunc = "min"
	AggMax   AggFunc = "max"
	AggSum   AggFunc = "sum"
	AggAvg   AggFunc = "avg"
)

// HavingCond is one condition of a groupBy having clause; conditions are
// combined with AND. A condition without an aggregate function applies to
// the grouping column itself, and that column must be part of By.
type HavingCond struct {
	Field string
	Agg   AggFunc // zero value: condition on the raw grouping column
	Num   *FloatFilter
	Str   *StringFilter
}

// GroupByParams describes one groupBy call. By lists the grouping fields
// (JSON field names) and must not be empty; every ordering field and every
// raw having field must also appear in By.
type GroupByParams struct {
	By      []string
	Having  []HavingCond
	OrderBy []Order
	Take    int
	Skip    int
	Agg     AggregateSpec
}

// Group is one distinct combination of grouping-field values with the
// requested aggregates attached. Keys maps each By field to its value.
type Group struct {
	Keys map[string]any
	*Aggregate
}

// groupRows executes a grouped aggregation over one table. allCols is the
// entity's full field-to-column map, where/b carry the pre-compiled row
// filter.
func (s *Store) groupRows(ctx context.Context, op, table string, allCols, numCols, timeCols map[string]string, b *sqlBuilder, where string, p GroupByParams) ([]Group, error) {
	if len(p.By) == 0 {
		return nil, invalidGroupBy(op, "by must not be empty")
	}
	byCol := make(map[string]string, len(p.By))
	byExprs := make([]string, len(p.By))
	for i, f := range p.By {
		col, ok := allCols[f]
		if !ok {
			return nil, invalidGroupBy(op, fmt.Sprintf("unknown field %q in by", f))
		}
		byCol[f] = col
		byExprs[i] = col
	}
	for _, o := range p.OrderBy {
		if _, ok := byCol[o.Field]; !ok {
			return nil, invalidGroupBy(op, fmt.Sprintf("order field %q must appear in by", o.Field))
		}
	}

	sels, err := buildAggSelects(op, numCols, timeCols, p.Agg)
	if err != nil {
		return nil, err
	}

	var having []string
	for _, h := range p.Having {
		switch h.Agg {
		case "":
			col, ok := byCol[h.Field]
			if !ok {
				return nil, invalidGroupBy(op, fmt.Sprintf("having field %q must appear in by", h.Field))
			}
			having = appendSQL(having, h.Num.sql(b, col))
			having = appendSQL(having, h.Str.sql(b, col))
		case AggCount:
			col, ok := allCols[h.Field]
			if !ok {
				return nil, invalidGroupBy(op, fmt.Sprintf("unknown having field %q", h.Field))
			}
			having = appendSQL(having, h.Num.sql(b, fmt.Sprintf("COUNT(%s)", col)))
		case AggMin, AggMax, AggSum, AggAvg:
			col, ok := numCols[h.Field]
			if !ok {
				return nil, invalidGroupBy(op, fmt.Sprintf("having field %q is not numeric", h.Field))
			}
			having = appendSQL(having, h.Num.sql(b, fmt.Sprintf("%s(%s)", strings.ToUpper(string(h.Agg)), col)))
		default:
			return nil, invalidGroupBy(op, fmt.Sprintf("unknown aggregate %q", h.Agg))
		}
	}

	selects := make([]string, 0, len(byExprs)+len(sels)+1)
	selects = append(selects, byExprs...)
	if p.Agg.Count {
		selects = append(selects, "COUNT(*)")
	}
	for _, sel := range sels {
		selects = append(selects, sel.expr)
	}

	query := fmt.Sprintf("SELECT %s FROM %s%s GROUP BY %s",
		strings.Join(selects, ", "), table, whereClause(where), strings.Join(byExprs, ", "))
	if len(having) > 0 {
		query += " HAVING " + strings.Join(having, " AND ")
	}
	if len(p.OrderBy) > 0 {
		parts := make([]string, len(p.OrderBy))
		for i, o := range p.OrderBy {
			dir := " ASC"
			if o.Desc {
				dir = " DESC"
			}
			parts[i] = byCol[o.Field] + dir
		}
		query += " ORDER BY " + strings.Join(parts, ", ")
	}
	if p.Take > 0 {
		query += " LIMIT " + b.arg(p.Take)
	}
	if p.Skip > 0 {
		query += " OFFSET " + b.arg(p.Skip)
	}

	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()

	var groups []Group
	for rows.Next() {
		g := Group{Keys: make(map[string]any, len(p.By)), Aggregate: newAggregate()}
		keys := make([]any, len(p.By))
		dests := make([]any, 0, len(selects))
		for i := range keys {
			dests = append(dests, &keys[i])
		}
		if p.Agg.Count {
			dests = append(dests, &g.Count)
		}
		nums := make([]sql.NullFloat64, len(sels))
		times := make([]sql.NullTime, len(sels))
		for i, sel := range sels {
			if sel.isTime {
				dests = append(dests, &times[i])
			} else {
				dests = append(dests, &nums[i])
			}
		}
		if err := rows.Scan(dests...); err != nil {
			return nil, mapError(op, err)
		}
		for i, f := range p.By {
			g.Keys[f] = normalizeKey(keys[i])
		}
		for i, sel := range sels {
			g.assign(sel, nums[i], times[i])
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return groups, nil
}

// normalizeKey converts driver-level values into plain Go values so group
// keys compare naturally.
func normalizeKey(v any) any {
	if b, ok := v.([]byte); ok {
		return string(b)
	}
	return v
}
