package store

import (
	"context"
	"fmt"
	"strings"

	"github.com/lib/pq"
)

// deleteOne removes a single row by id; ErrNotFound when nothing matched.
func (s *Store) deleteOne(ctx context.Context, op, table, id string) error {
	res, err := s.q.ExecContext(ctx, fmt.Sprintf("DELETE FROM %s WHERE id = $1", table), id)
	if err != nil {
		return mapError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return mapError(op, err)
	}
	if n == 0 {
		return notFound(op)
	}
	return nil
}

// bulkScope builds the WHERE fragment of a bulk UPDATE/DELETE. Postgres
// has no LIMIT on those statements, so a capped bulk operation scopes
// itself through an id subselect.
func bulkScope(b *sqlBuilder, table, pred string, limit int) string {
	if limit <= 0 {
		return whereClause(pred)
	}
	inner := fmt.Sprintf("SELECT %s.id FROM %s%s LIMIT %s", table, table, whereClause(pred), b.arg(limit))
	return fmt.Sprintf(" WHERE %s.id IN (%s)", table, inner)
}

func (s *Store) deleteMany(ctx context.Context, op, table string, b *sqlBuilder, pred string, limit int) (int64, error) {
	query := fmt.Sprintf("DELETE FROM %s%s", table, bulkScope(b, table, pred, limit))
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError(op, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError(op, err)
	}
	return n, nil
}

func (s *Store) countRows(ctx context.Context, op, table string, b *sqlBuilder, pred string) (int64, error) {
	query := fmt.Sprintf("SELECT COUNT(*) FROM %s%s", table, whereClause(pred))
	var n int64
	if err := s.q.QueryRowContext(ctx, query, b.args...).Scan(&n); err != nil {
		return 0, mapError(op, err)
	}
	return n, nil
}

// relationCounts returns, per parent id, the number of child rows pointing
// at it. Parents without children are simply absent from the map.
func (s *Store) relationCounts(ctx context.Context, op, table, fk string, ids []string) (map[string]int64, error) {
	query := fmt.Sprintf("SELECT %s, COUNT(*) FROM %s WHERE %s = ANY($1) GROUP BY %s", fk, table, fk, fk)
	rows, err := s.q.QueryContext(ctx, query, pq.Array(ids))
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	out := make(map[string]int64)
	for rows.Next() {
		var id string
		var n int64
		if err := rows.Scan(&id, &n); err != nil {
			return nil, mapError(op, err)
		}
		out[id] = n
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}

// childOrder renders the ORDER BY body for a batched relation fetch, with
// the id tiebreak that keeps nested pagination deterministic.
func childOrder(op, table string, cols map[string]string, orderBy []Order) (string, error) {
	parts := make([]string, 0, len(orderBy)+1)
	for _, o := range orderBy {
		col, ok := cols[o.Field]
		if !ok {
			return "", fmt.Errorf("store: %s: cannot order relation by %q", op, o.Field)
		}
		expr := table + "." + col
		if o.Desc {
			expr += " DESC"
		} else {
			expr += " ASC"
		}
		if o.NullsFirst != nil {
			if *o.NullsFirst {
				expr += " NULLS FIRST"
			} else {
				expr += " NULLS LAST"
			}
		}
		parts = append(parts, expr)
	}
	parts = append(parts, table+".id ASC")
	return strings.Join(parts, ", "), nil
}

// childQuery assembles the batched fetch of children for a set of parents.
// A nested window (per-parent limit/offset) compiles to ROW_NUMBER over
// the parent key. filterSQL runs after the parent scope is bound so the
// placeholder order stays stable.
func childQuery(b *sqlBuilder, table, selects, fk string, parentIDs []string, filterSQL func(*sqlBuilder) string, order string, limit, offset int) string {
	pred := fmt.Sprintf("%s.%s = ANY(%s)", table, fk, b.arg(pq.Array(parentIDs)))
	if inner := filterSQL(b); inner != "" {
		pred += " AND " + inner
	}
	if limit <= 0 && offset <= 0 {
		return fmt.Sprintf("SELECT %s FROM %s WHERE %s ORDER BY %s", selects, table, pred, order)
	}
	sub := fmt.Sprintf("SELECT %s, ROW_NUMBER() OVER (PARTITION BY %s.%s ORDER BY %s) AS rn FROM %s WHERE %s",
		selects, table, fk, order, table, pred)
	query := fmt.Sprintf("SELECT %s FROM (%s) sub WHERE sub.rn > %s", selects, sub, b.arg(offset))
	if limit > 0 {
		query += fmt.Sprintf(" AND sub.rn <= %s", b.arg(offset+limit))
	}
	return query + " ORDER BY sub.rn"
}
