package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/domain"
)

const sizeColumns = "id, name, length, height, width, created_at, updated_at"

var (
	sizeCols = map[string]string{
		"id":        "id",
		"name":      "name",
		"length":    "length",
		"height":    "height",
		"width":     "width",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	}
	sizeNumCols = map[string]string{
		"length": "length",
		"height": "height",
		"width":  "width",
	}
	sizeTimeCols = map[string]string{"createdAt": "created_at", "updatedAt": "updated_at"}

	sizeOrderExprs = map[string]string{
		"variantCount": "(SELECT COUNT(*) FROM variants WHERE variants.size_id = sizes.id)",
	}
)

// SizeFilter is the declarative predicate over sizes.
type SizeFilter struct {
	And []SizeFilter
	Or  []SizeFilter
	Not []SizeFilter

	ID        *StringFilter
	Name      *StringFilter
	Length    *FloatFilter
	Height    *FloatFilter
	Width     *FloatFilter
	CreatedAt *TimeFilter
	UpdatedAt *TimeFilter

	Variants *VariantListFilter
}

func (f *SizeFilter) sql(b *sqlBuilder, t string) string {
	if f == nil {
		return ""
	}
	parts := composeBool(b, t, f.And, f.Or, f.Not, func(b *sqlBuilder, t string, nf SizeFilter) string {
		return nf.sql(b, t)
	})
	parts = appendSQL(parts, f.ID.sql(b, t+".id"))
	parts = appendSQL(parts, f.Name.sql(b, t+".name"))
	parts = appendSQL(parts, f.Length.sql(b, t+".length"))
	parts = appendSQL(parts, f.Height.sql(b, t+".height"))
	parts = appendSQL(parts, f.Width.sql(b, t+".width"))
	parts = appendSQL(parts, f.CreatedAt.sql(b, t+".created_at"))
	parts = appendSQL(parts, f.UpdatedAt.sql(b, t+".updated_at"))
	if f.Variants != nil {
		parts = appendSQL(parts, f.Variants.sql(b, "size_id", t+".id"))
	}
	return andAll(parts)
}

// SizeInclude declares which size relations to eager-load.
type SizeInclude struct {
	VariantCount bool
}

// ListSizesParams mirrors the uniform findMany contract.
type ListSizesParams struct {
	Where   *SizeFilter
	Include SizeInclude
	OrderBy []Order
	Limit   int
	Offset  int
	Cursor  *string
	Take    int
}

func scanSize(r rowScanner) (*domain.Size, error) {
	var z domain.Size
	if err := r.Scan(&z.ID, &z.Name, &z.Length, &z.Height, &z.Width, &z.CreatedAt, &z.UpdatedAt); err != nil {
		return nil, err
	}
	return &z, nil
}

// CreateSize inserts one size.
func (s *Store) CreateSize(ctx context.Context, z *domain.Size) (*domain.Size, error) {
	id := z.ID
	if id == "" {
		id = newID()
	}
	query := fmt.Sprintf(`INSERT INTO sizes (%s) VALUES ($1, $2, $3, $4, $5, COALESCE($6, now()), COALESCE($7, now())) RETURNING %s`,
		sizeColumns, sizeColumns)
	created, err := scanSize(s.q.QueryRowContext(ctx, query,
		id, z.Name, z.Length, z.Height, z.Width, timeOrNil(z.CreatedAt), timeOrNil(z.UpdatedAt)))
	if err != nil {
		return nil, mapError("CreateSize", err)
	}
	return created, nil
}

// CreateSizes batch-inserts sizes; see CreateUsers for the skipDuplicates
// contract.
func (s *Store) CreateSizes(ctx context.Context, zs []domain.Size, skipDuplicates bool) (int64, error) {
	if len(zs) == 0 {
		return 0, nil
	}
	b := &sqlBuilder{}
	values := make([]string, len(zs))
	for i, z := range zs {
		id := z.ID
		if id == "" {
			id = newID()
		}
		values[i] = fmt.Sprintf("(%s, %s, %s, %s, %s, COALESCE(%s, now()), COALESCE(%s, now()))",
			b.arg(id), b.arg(z.Name), b.arg(z.Length), b.arg(z.Height), b.arg(z.Width),
			b.arg(timeOrNil(z.CreatedAt)), b.arg(timeOrNil(z.UpdatedAt)))
	}
	query := fmt.Sprintf("INSERT INTO sizes (%s) VALUES %s", sizeColumns, strings.Join(values, ", "))
	if skipDuplicates {
		query += " ON CONFLICT DO NOTHING"
	}
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("CreateSizes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("CreateSizes", err)
	}
	return n, nil
}

// FindSizeByID returns (nil, nil) when no size matches.
func (s *Store) FindSizeByID(ctx context.Context, id string) (*domain.Size, error) {
	query := fmt.Sprintf("SELECT %s FROM sizes WHERE id = $1", sizeColumns)
	z, err := scanSize(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("FindSizeByID", err)
	}
	return z, nil
}

// GetSizeByID reports ErrNotFound instead of an empty result.
func (s *Store) GetSizeByID(ctx context.Context, id string) (*domain.Size, error) {
	z, err := s.FindSizeByID(ctx, id)
	if err == nil && z == nil {
		return nil, notFound("GetSizeByID")
	}
	return z, err
}

// ListSizes returns the ordered page of sizes matching the filter.
func (s *Store) ListSizes(ctx context.Context, p ListSizesParams) ([]domain.Size, error) {
	b := &sqlBuilder{}
	where := p.Where.sql(b, "sizes")
	query, reversed, err := listQuery{
		table: "sizes", selects: sizeColumns,
		cols: sizeCols, extra: sizeOrderExprs,
		where: where, orderBy: p.OrderBy,
		limit: p.Limit, offset: p.Offset, cursor: p.Cursor, take: p.Take,
	}.build("ListSizes", b)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError("ListSizes", err)
	}
	defer rows.Close()

	var sizes []domain.Size
	for rows.Next() {
		z, err := scanSize(rows)
		if err != nil {
			return nil, mapError("ListSizes", err)
		}
		sizes = append(sizes, *z)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListSizes", err)
	}
	if reversed {
		reverseSlice(sizes)
	}
	if p.Include.VariantCount && len(sizes) > 0 {
		ids := make([]string, len(sizes))
		for i, z := range sizes {
			ids[i] = z.ID
		}
		counts, err := s.relationCounts(ctx, "ListSizes", "variants", "size_id", ids)
		if err != nil {
			return nil, err
		}
		for i := range sizes {
			n := counts[sizes[i].ID]
			sizes[i].VariantCount = &n
		}
	}
	return sizes, nil
}

// SizePatch is a partial update; nil fields stay untouched.
type SizePatch struct {
	Name   *string
	Length *sql.NullFloat64
	Height *sql.NullFloat64
	Width  *sql.NullFloat64
}

func (p SizePatch) apply(sb *setBuilder) {
	if p.Name != nil {
		sb.set("name", *p.Name)
	}
	if p.Length != nil {
		sb.set("length", *p.Length)
	}
	if p.Height != nil {
		sb.set("height", *p.Height)
	}
	if p.Width != nil {
		sb.set("width", *p.Width)
	}
}

// UpdateSize applies a partial patch; ErrNotFound when the id does not
// match.
func (s *Store) UpdateSize(ctx context.Context, id string, patch SizePatch) (*domain.Size, error) {
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	query := fmt.Sprintf("UPDATE sizes SET %s WHERE id = %s RETURNING %s", sb.clause(), b.arg(id), sizeColumns)
	z, err := scanSize(s.q.QueryRowContext(ctx, query, b.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("UpdateSize")
		}
		return nil, mapError("UpdateSize", err)
	}
	return z, nil
}

// UpdateSizes applies the patch to every matching row.
func (s *Store) UpdateSizes(ctx context.Context, where *SizeFilter, patch SizePatch, limit int) (int64, error) {
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	pred := where.sql(b, "sizes")
	query := fmt.Sprintf("UPDATE sizes SET %s%s", sb.clause(), bulkScope(b, "sizes", pred, limit))
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("UpdateSizes", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("UpdateSizes", err)
	}
	return n, nil
}

// DeleteSize removes one size; sizes still referenced by variants cannot
// be deleted (ErrConstraintViolation).
func (s *Store) DeleteSize(ctx context.Context, id string) error {
	return s.deleteOne(ctx, "DeleteSize", "sizes", id)
}

// DeleteSizes removes every matching row; zero matches is not an error.
func (s *Store) DeleteSizes(ctx context.Context, where *SizeFilter, limit int) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "sizes")
	return s.deleteMany(ctx, "DeleteSizes", "sizes", b, pred, limit)
}

// CountSizes counts rows matching the filter.
func (s *Store) CountSizes(ctx context.Context, where *SizeFilter) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "sizes")
	return s.countRows(ctx, "CountSizes", "sizes", b, pred)
}

// AggregateSizes computes the requested statistics over matching rows.
// Length, height and width are the numeric fields.
func (s *Store) AggregateSizes(ctx context.Context, where *SizeFilter, spec AggregateSpec) (*Aggregate, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "sizes")
	return s.aggregateRows(ctx, "AggregateSizes", "sizes", sizeNumCols, sizeTimeCols, b, pred, spec)
}

// GroupSizesBy groups matching sizes by the given fields.
func (s *Store) GroupSizesBy(ctx context.Context, where *SizeFilter, p GroupByParams) ([]Group, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "sizes")
	return s.groupRows(ctx, "GroupSizesBy", "sizes", sizeCols, sizeNumCols, sizeTimeCols, b, pred, p)
}

// sizesByID batch-loads sizes referenced by the given ids.
func (s *Store) sizesByID(ctx context.Context, op string, ids []string) (map[string]domain.Size, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	b := &sqlBuilder{}
	query := childQuery(b, "sizes", sizeColumns, "id", ids, func(*sqlBuilder) string { return "" },
		"sizes.id ASC", 0, 0)
	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	out := make(map[string]domain.Size)
	for rows.Next() {
		z, err := scanSize(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out[z.ID] = *z
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}
