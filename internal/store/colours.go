package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/domain"
)

const colourColumns = "id, name, hex, created_at, updated_at"

var (
	colourCols = map[string]string{
		"id":        "id",
		"name":      "name",
		"hex":       "hex",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	}
	colourNumCols  = map[string]string{}
	colourTimeCols = map[string]string{"createdAt": "created_at", "updatedAt": "updated_at"}

	colourOrderExprs = map[string]string{
		"variantCount": "(SELECT COUNT(*) FROM variants WHERE variants.colour_id = colours.id)",
	}
)

// ColourFilter is the declarative predicate over colours.
type ColourFilter struct {
	And []ColourFilter
	Or  []ColourFilter
	Not []ColourFilter

	ID        *StringFilter
	Name      *StringFilter
	Hex       *StringFilter
	CreatedAt *TimeFilter
	UpdatedAt *TimeFilter

	// Variants filters colours through the variants tagged with them.
	Variants *VariantListFilter
}

func (f *ColourFilter) sql(b *sqlBuilder, t string) string {
	if f == nil {
		return ""
	}
	parts := composeBool(b, t, f.And, f.Or, f.Not, func(b *sqlBuilder, t string, nf ColourFilter) string {
		return nf.sql(b, t)
	})
	parts = appendSQL(parts, f.ID.sql(b, t+".id"))
	parts = appendSQL(parts, f.Name.sql(b, t+".name"))
	parts = appendSQL(parts, f.Hex.sql(b, t+".hex"))
	parts = appendSQL(parts, f.CreatedAt.sql(b, t+".created_at"))
	parts = appendSQL(parts, f.UpdatedAt.sql(b, t+".updated_at"))
	if f.Variants != nil {
		parts = appendSQL(parts, f.Variants.sql(b, "colour_id", t+".id"))
	}
	return andAll(parts)
}

// ColourInclude declares which colour relations to eager-load.
type ColourInclude struct {
	VariantCount bool
}

// ListColoursParams mirrors the uniform findMany contract.
type ListColoursParams struct {
	Where   *ColourFilter
	Include ColourInclude
	OrderBy []Order
	Limit   int
	Offset  int
	Cursor  *string
	Take    int
}

func scanColour(r rowScanner) (*domain.Colour, error) {
	var c domain.Colour
	if err := r.Scan(&c.ID, &c.Name, &c.Hex, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateColour inserts one colour.
func (s *Store) CreateColour(ctx context.Context, c *domain.Colour) (*domain.Colour, error) {
	id := c.ID
	if id == "" {
		id = newID()
	}
	query := fmt.Sprintf(`INSERT INTO colours (%s) VALUES ($1, $2, $3, COALESCE($4, now()), COALESCE($5, now())) RETURNING %s`,
		colourColumns, colourColumns)
	created, err := scanColour(s.q.QueryRowContext(ctx, query,
		id, c.Name, c.Hex, timeOrNil(c.CreatedAt), timeOrNil(c.UpdatedAt)))
	if err != nil {
		return nil, mapError("CreateColour", err)
	}
	return created, nil
}

// CreateColours batch-inserts colours; see CreateUsers for the
// skipDuplicates contract.
func (s *Store) CreateColours(ctx context.Context, cs []domain.Colour, skipDuplicates bool) (int64, error) {
	if len(cs) == 0 {
		return 0, nil
	}
	b := &sqlBuilder{}
	values := make([]string, len(cs))
	for i, c := range cs {
		id := c.ID
		if id == "" {
			id = newID()
		}
		values[i] = fmt.Sprintf("(%s, %s, %s, COALESCE(%s, now()), COALESCE(%s, now()))",
			b.arg(id), b.arg(c.Name), b.arg(c.Hex), b.arg(timeOrNil(c.CreatedAt)), b.arg(timeOrNil(c.UpdatedAt)))
	}
	query := fmt.Sprintf("INSERT INTO colours (%s) VALUES %s", colourColumns, strings.Join(values, ", "))
	if skipDuplicates {
		query += " ON CONFLICT DO NOTHING"
	}
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("CreateColours", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("CreateColours", err)
	}
	return n, nil
}

// FindColourByID returns (nil, nil) when no colour matches.
func (s *Store) FindColourByID(ctx context.Context, id string) (*domain.Colour, error) {
	query := fmt.Sprintf("SELECT %s FROM colours WHERE id = $1", colourColumns)
	c, err := scanColour(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("FindColourByID", err)
	}
	return c, nil
}

// GetColourByID reports ErrNotFound instead of an empty result.
func (s *Store) GetColourByID(ctx context.Context, id string) (*domain.Colour, error) {
	c, err := s.FindColourByID(ctx, id)
	if err == nil && c == nil {
		return nil, notFound("GetColourByID")
	}
	return c, err
}

// ListColours returns the ordered page of colours matching the filter.
func (s *Store) ListColours(ctx context.Context, p ListColoursParams) ([]domain.Colour, error) {
	b := &sqlBuilder{}
	where := p.Where.sql(b, "colours")
	query, reversed, err := listQuery{
		table: "colours", selects: colourColumns,
		cols: colourCols, extra: colourOrderExprs,
		where: where, orderBy: p.OrderBy,
		limit: p.Limit, offset: p.Offset, cursor: p.Cursor, take: p.Take,
	}.build("ListColours", b)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError("ListColours", err)
	}
	defer rows.Close()

	var colours []domain.Colour
	for rows.Next() {
		c, err := scanColour(rows)
		if err != nil {
			return nil, mapError("ListColours", err)
		}
		colours = append(colours, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListColours", err)
	}
	if reversed {
		reverseSlice(colours)
	}
	if p.Include.VariantCount && len(colours) > 0 {
		ids := make([]string, len(colours))
		for i, c := range colours {
			ids[i] = c.ID
		}
		counts, err := s.relationCounts(ctx, "ListColours", "variants", "colour_id", ids)
		if err != nil {
			return nil, err
		}
		for i := range colours {
			n := counts[colours[i].ID]
			colours[i].VariantCount = &n
		}
	}
	return colours, nil
}

// ColourPatch is a partial update; nil fields stay untouched.
type ColourPatch struct {
	Name *string
	Hex  *sql.NullString
}

func (p ColourPatch) apply(sb *setBuilder) {
	if p.Name != nil {
		sb.set("name", *p.Name)
	}
	if p.Hex != nil {
		sb.set("hex", *p.Hex)
	}
}

// UpdateColour applies a partial patch; ErrNotFound when the id does not
// match.
func (s *Store) UpdateColour(ctx context.Context, id string, patch ColourPatch) (*domain.Colour, error) {
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	query := fmt.Sprintf("UPDATE colours SET %s WHERE id = %s RETURNING %s", sb.clause(), b.arg(id), colourColumns)
	c, err := scanColour(s.q.QueryRowContext(ctx, query, b.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("UpdateColour")
		}
		return nil, mapError("UpdateColour", err)
	}
	return c, nil
}

// UpdateColours applies the patch to every matching row.
func (s *Store) UpdateColours(ctx context.Context, where *ColourFilter, patch ColourPatch, limit int) (int64, error) {
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	pred := where.sql(b, "colours")
	query := fmt.Sprintf("UPDATE colours SET %s%s", sb.clause(), bulkScope(b, "colours", pred, limit))
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("UpdateColours", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("UpdateColours", err)
	}
	return n, nil
}

// DeleteColour removes one colour; colours still referenced by variants
// cannot be deleted (ErrConstraintViolation).
func (s *Store) DeleteColour(ctx context.Context, id string) error {
	return s.deleteOne(ctx, "DeleteColour", "colours", id)
}

// DeleteColours removes every matching row; zero matches is not an error.
func (s *Store) DeleteColours(ctx context.Context, where *ColourFilter, limit int) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "colours")
	return s.deleteMany(ctx, "DeleteColours", "colours", b, pred, limit)
}

// CountColours counts rows matching the filter.
func (s *Store) CountColours(ctx context.Context, where *ColourFilter) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "colours")
	return s.countRows(ctx, "CountColours", "colours", b, pred)
}

// AggregateColours computes the requested statistics over matching rows.
func (s *Store) AggregateColours(ctx context.Context, where *ColourFilter, spec AggregateSpec) (*Aggregate, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "colours")
	return s.aggregateRows(ctx, "AggregateColours", "colours", colourNumCols, colourTimeCols, b, pred, spec)
}

// GroupColoursBy groups matching colours by the given fields.
func (s *Store) GroupColoursBy(ctx context.Context, where *ColourFilter, p GroupByParams) ([]Group, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "colours")
	return s.groupRows(ctx, "GroupColoursBy", "colours", colourCols, colourNumCols, colourTimeCols, b, pred, p)
}

// coloursByID batch-loads colours referenced by the given ids.
func (s *Store) coloursByID(ctx context.Context, op string, ids []string) (map[string]domain.Colour, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	b := &sqlBuilder{}
	query := childQuery(b, "colours", colourColumns, "id", ids, func(*sqlBuilder) string { return "" },
		"colours.id ASC", 0, 0)
	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	out := make(map[string]domain.Colour)
	for rows.Next() {
		c, err := scanColour(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out[c.ID] = *c
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}
