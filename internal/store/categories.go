package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/domain"
)

const categoryColumns = "id, name, type, created_at, updated_at"

var (
	categoryCols = map[string]string{
		"id":        "id",
		"name":      "name",
		"type":      "type",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	}
	categoryNumCols  = map[string]string{}
	categoryTimeCols = map[string]string{"createdAt": "created_at", "updatedAt": "updated_at"}

	categoryOrderExprs = map[string]string{
		"productCount": "(SELECT COUNT(*) FROM products WHERE products.category_id = categories.id)",
	}
)

// CategoryFilter is the declarative predicate over categories.
type CategoryFilter struct {
	And []CategoryFilter
	Or  []CategoryFilter
	Not []CategoryFilter

	ID        *StringFilter
	Name      *StringFilter
	Type      *StringFilter
	CreatedAt *TimeFilter
	UpdatedAt *TimeFilter

	// Products filters categories through the products classified by them.
	Products *ProductListFilter
}

func (f *CategoryFilter) sql(b *sqlBuilder, t string) string {
	if f == nil {
		return ""
	}
	parts := composeBool(b, t, f.And, f.Or, f.Not, func(b *sqlBuilder, t string, nf CategoryFilter) string {
		return nf.sql(b, t)
	})
	parts = appendSQL(parts, f.ID.sql(b, t+".id"))
	parts = appendSQL(parts, f.Name.sql(b, t+".name"))
	parts = appendSQL(parts, f.Type.sql(b, t+".type"))
	parts = appendSQL(parts, f.CreatedAt.sql(b, t+".created_at"))
	parts = appendSQL(parts, f.UpdatedAt.sql(b, t+".updated_at"))
	if f.Products != nil {
		parts = appendSQL(parts, f.Products.sql(b, "category_id", t+".id"))
	}
	return andAll(parts)
}

// CategoryInclude declares which category relations to eager-load.
type CategoryInclude struct {
	ProductCount bool
}

// ListCategoriesParams mirrors the uniform findMany contract.
type ListCategoriesParams struct {
	Where   *CategoryFilter
	Include CategoryInclude
	OrderBy []Order
	Limit   int
	Offset  int
	Cursor  *string
	Take    int
}

func scanCategory(r rowScanner) (*domain.Category, error) {
	var c domain.Category
	if err := r.Scan(&c.ID, &c.Name, &c.Type, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateCategory inserts one category.
func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) (*domain.Category, error) {
	id := c.ID
	if id == "" {
		id = newID()
	}
	query := fmt.Sprintf(`INSERT INTO categories (%s) VALUES ($1, $2, $3, COALESCE($4, now()), COALESCE($5, now())) RETURNING %s`,
		categoryColumns, categoryColumns)
	created, err := scanCategory(s.q.QueryRowContext(ctx, query,
		id, c.Name, c.Type, timeOrNil(c.CreatedAt), timeOrNil(c.UpdatedAt)))
	if err != nil {
		return nil, mapError("CreateCategory", err)
	}
	return created, nil
}

// CreateCategories batch-inserts categories; see CreateUsers for the
// skipDuplicates contract.
func (s *Store) CreateCategories(ctx context.Context, cs []domain.Category, skipDuplicates bool) (int64, error) {
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
			b.arg(id), b.arg(c.Name), b.arg(c.Type), b.arg(timeOrNil(c.CreatedAt)), b.arg(timeOrNil(c.UpdatedAt)))
	}
	query := fmt.Sprintf("INSERT INTO categories (%s) VALUES %s", categoryColumns, strings.Join(values, ", "))
	if skipDuplicates {
		query += " ON CONFLICT DO NOTHING"
	}
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("CreateCategories", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("CreateCategories", err)
	}
	return n, nil
}

// FindCategoryByID returns (nil, nil) when no category matches.
func (s *Store) FindCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	query := fmt.Sprintf("SELECT %s FROM categories WHERE id = $1", categoryColumns)
	c, err := scanCategory(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("FindCategoryByID", err)
	}
	return c, nil
}

// GetCategoryByID reports ErrNotFound instead of an empty result.
func (s *Store) GetCategoryByID(ctx context.Context, id string) (*domain.Category, error) {
	c, err := s.FindCategoryByID(ctx, id)
	if err == nil && c == nil {
		return nil, notFound("GetCategoryByID")
	}
	return c, err
}

// ListCategories returns the ordered page of categories matching the
// filter; orderable by "productCount".
func (s *Store) ListCategories(ctx context.Context, p ListCategoriesParams) ([]domain.Category, error) {
	b := &sqlBuilder{}
	where := p.Where.sql(b, "categories")
	query, reversed, err := listQuery{
		table: "categories", selects: categoryColumns,
		cols: categoryCols, extra: categoryOrderExprs,
		where: where, orderBy: p.OrderBy,
		limit: p.Limit, offset: p.Offset, cursor: p.Cursor, take: p.Take,
	}.build("ListCategories", b)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError("ListCategories", err)
	}
	defer rows.Close()

	var categories []domain.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, mapError("ListCategories", err)
		}
		categories = append(categories, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListCategories", err)
	}
	if reversed {
		reverseSlice(categories)
	}
	if p.Include.ProductCount && len(categories) > 0 {
		ids := make([]string, len(categories))
		for i, c := range categories {
			ids[i] = c.ID
		}
		counts, err := s.relationCounts(ctx, "ListCategories", "products", "category_id", ids)
		if err != nil {
			return nil, err
		}
		for i := range categories {
			n := counts[categories[i].ID]
			categories[i].ProductCount = &n
		}
	}
	return categories, nil
}

// CategoryPatch is a partial update; nil fields stay untouched.
type CategoryPatch struct {
	Name *string
	Type *sql.NullString
}

func (p CategoryPatch) apply(sb *setBuilder) {
	if p.Name != nil {
		sb.set("name", *p.Name)
	}
	if p.Type != nil {
		sb.set("type", *p.Type)
	}
}

// UpdateCategory applies a partial patch; ErrNotFound when the id does not
// match.
func (s *Store) UpdateCategory(ctx context.Context, id string, patch CategoryPatch) (*domain.Category, error) {
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	query := fmt.Sprintf("UPDATE categories SET %s WHERE id = %s RETURNING %s", sb.clause(), b.arg(id), categoryColumns)
	c, err := scanCategory(s.q.QueryRowContext(ctx, query, b.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("UpdateCategory")
		}
		return nil, mapError("UpdateCategory", err)
	}
	return c, nil
}

// UpdateCategories applies the patch to every matching row.
func (s *Store) UpdateCategories(ctx context.Context, where *CategoryFilter, patch CategoryPatch, limit int) (int64, error) {
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	pred := where.sql(b, "categories")
	query := fmt.Sprintf("UPDATE categories SET %s%s", sb.clause(), bulkScope(b, "categories", pred, limit))
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("UpdateCategories", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("UpdateCategories", err)
	}
	return n, nil
}

// DeleteCategory removes one category; categories still referenced by
// products cannot be deleted (ErrConstraintViolation).
func (s *Store) DeleteCategory(ctx context.Context, id string) error {
	return s.deleteOne(ctx, "DeleteCategory", "categories", id)
}

// DeleteCategories removes every matching row; zero matches is not an
// error.
func (s *Store) DeleteCategories(ctx context.Context, where *CategoryFilter, limit int) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "categories")
	return s.deleteMany(ctx, "DeleteCategories", "categories", b, pred, limit)
}

// CountCategories counts rows matching the filter.
func (s *Store) CountCategories(ctx context.Context, where *CategoryFilter) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "categories")
	return s.countRows(ctx, "CountCategories", "categories", b, pred)
}

// AggregateCategories computes the requested statistics over matching rows.
func (s *Store) AggregateCategories(ctx context.Context, where *CategoryFilter, spec AggregateSpec) (*Aggregate, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "categories")
	return s.aggregateRows(ctx, "AggregateCategories", "categories", categoryNumCols, categoryTimeCols, b, pred, spec)
}

// GroupCategoriesBy groups matching categories by the given fields.
func (s *Store) GroupCategoriesBy(ctx context.Context, where *CategoryFilter, p GroupByParams) ([]Group, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "categories")
	return s.groupRows(ctx, "GroupCategoriesBy", "categories", categoryCols, categoryNumCols, categoryTimeCols, b, pred, p)
}

// categoriesByID batch-loads categories referenced by the given ids.
func (s *Store) categoriesByID(ctx context.Context, op string, ids []string) (map[string]domain.Category, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	b := &sqlBuilder{}
	query := childQuery(b, "categories", categoryColumns, "id", ids, func(*sqlBuilder) string { return "" },
		"categories.id ASC", 0, 0)
	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	out := make(map[string]domain.Category)
	for rows.Next() {
		c, err := scanCategory(rows)
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
