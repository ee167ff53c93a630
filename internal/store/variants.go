package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/domain"
)

const variantColumns = "id, product_id, colour_id, size_id, sku, stock, created_at, updated_at"

var (
	variantCols = map[string]string{
		"id":        "id",
		"productId": "product_id",
		"colourId":  "colour_id",
		"sizeId":    "size_id",
		"sku":       "sku",
		"stock":     "stock",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	}
	variantNumCols = map[string]string{
		"stock": "stock",
	}
	variantTimeCols = map[string]string{"createdAt": "created_at", "updatedAt": "updated_at"}
)

// VariantFilter is the declarative predicate over variants.
type VariantFilter struct {
	And []VariantFilter
	Or  []VariantFilter
	Not []VariantFilter

	ID        *StringFilter
	ProductID *StringFilter
	ColourID  *StringFilter
	SizeID    *StringFilter
	SKU       *StringFilter
	Stock     *IntFilter
	CreatedAt *TimeFilter
	UpdatedAt *TimeFilter

	// Product filters variants through their owning product.
	Product *ProductFilter
	// Colour and Size filter variants through their attribute rows. A
	// variant with the attribute unset never matches.
	Colour *ColourFilter
	Size   *SizeFilter
}

func (f *VariantFilter) sql(b *sqlBuilder, t string) string {
	if f == nil {
		return ""
	}
	parts := composeBool(b, t, f.And, f.Or, f.Not, func(b *sqlBuilder, t string, nf VariantFilter) string {
		return nf.sql(b, t)
	})
	parts = appendSQL(parts, f.ID.sql(b, t+".id"))
	parts = appendSQL(parts, f.ProductID.sql(b, t+".product_id"))
	parts = appendSQL(parts, f.ColourID.sql(b, t+".colour_id"))
	parts = appendSQL(parts, f.SizeID.sql(b, t+".size_id"))
	parts = appendSQL(parts, f.SKU.sql(b, t+".sku"))
	parts = appendSQL(parts, f.Stock.sql(b, t+".stock"))
	parts = appendSQL(parts, f.CreatedAt.sql(b, t+".created_at"))
	parts = appendSQL(parts, f.UpdatedAt.sql(b, t+".updated_at"))
	if f.Product != nil {
		a := b.alias("p")
		join := fmt.Sprintf("%s.id = %s.product_id", a, t)
		parts = append(parts, existsSQL("products", a, join, f.Product.sql(b, a)))
	}
	if f.Colour != nil {
		a := b.alias("c")
		join := fmt.Sprintf("%s.id = %s.colour_id", a, t)
		parts = append(parts, existsSQL("colours", a, join, f.Colour.sql(b, a)))
	}
	if f.Size != nil {
		a := b.alias("z")
		join := fmt.Sprintf("%s.id = %s.size_id", a, t)
		parts = append(parts, existsSQL("sizes", a, join, f.Size.sql(b, a)))
	}
	return andAll(parts)
}

// VariantListFilter quantifies over a variant list relation.
type VariantListFilter struct {
	Some  *VariantFilter
	Every *VariantFilter
	None  *VariantFilter
}

func (f *VariantListFilter) sql(b *sqlBuilder, fk, owner string) string {
	if f == nil {
		return ""
	}
	var parts []string
	if f.Some != nil {
		a := b.alias("v")
		join := fmt.Sprintf("%s.%s = %s", a, fk, owner)
		parts = append(parts, existsSQL("variants", a, join, f.Some.sql(b, a)))
	}
	if f.Every != nil {
		a := b.alias("v")
		join := fmt.Sprintf("%s.%s = %s", a, fk, owner)
		if inner := f.Every.sql(b, a); inner != "" {
			parts = append(parts, "NOT "+existsSQL("variants", a, join, "NOT ("+inner+")"))
		}
	}
	if f.None != nil {
		a := b.alias("v")
		join := fmt.Sprintf("%s.%s = %s", a, fk, owner)
		parts = append(parts, "NOT "+existsSQL("variants", a, join, f.None.sql(b, a)))
	}
	return andAll(parts)
}

// VariantListOptions shapes a nested variant fetch: filter, order and a
// per-parent window.
type VariantListOptions struct {
	Where   *VariantFilter
	OrderBy []Order
	Limit   int
	Offset  int
}

// VariantInclude declares which variant relations to eager-load.
type VariantInclude struct {
	Product bool
	Colour  bool
	Size    bool
}

// ListVariantsParams mirrors the uniform findMany contract.
type ListVariantsParams struct {
	Where   *VariantFilter
	Include VariantInclude
	OrderBy []Order
	Limit   int
	Offset  int
	Cursor  *string
	Take    int
}

func scanVariant(r rowScanner) (*domain.Variant, error) {
	var v domain.Variant
	err := r.Scan(&v.ID, &v.ProductID, &v.ColourID, &v.SizeID, &v.SKU, &v.Stock,
		&v.CreatedAt, &v.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func negativeStock(op string) error {
	return fmt.Errorf("store: %s: stock must not be negative: %w", op, ErrConstraintViolation)
}

// CreateVariant inserts one variant bound to an existing product. A
// duplicate sku or dangling reference surfaces ErrConstraintViolation,
// as does a negative stock.
func (s *Store) CreateVariant(ctx context.Context, v *domain.Variant) (*domain.Variant, error) {
	if v.Stock < 0 {
		return nil, negativeStock("CreateVariant")
	}
	id := v.ID
	if id == "" {
		id = newID()
	}
	query := fmt.Sprintf(`INSERT INTO variants (%s) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()), COALESCE($8, now())) RETURNING %s`,
		variantColumns, variantColumns)
	row := s.q.QueryRowContext(ctx, query,
		id, v.ProductID, v.ColourID, v.SizeID, v.SKU, v.Stock,
		timeOrNil(v.CreatedAt), timeOrNil(v.UpdatedAt))
	created, err := scanVariant(row)
	if err != nil {
		return nil, mapError("CreateVariant", err)
	}
	return created, nil
}

// CreateVariants batch-inserts variants; see CreateUsers for the
// skipDuplicates contract.
func (s *Store) CreateVariants(ctx context.Context, vs []domain.Variant, skipDuplicates bool) (int64, error) {
	if len(vs) == 0 {
		return 0, nil
	}
	b := &sqlBuilder{}
	values := make([]string, len(vs))
	for i, v := range vs {
		if v.Stock < 0 {
			return 0, negativeStock("CreateVariants")
		}
		id := v.ID
		if id == "" {
			id = newID()
		}
		values[i] = fmt.Sprintf("(%s, %s, %s, %s, %s, %s, COALESCE(%s, now()), COALESCE(%s, now()))",
			b.arg(id), b.arg(v.ProductID), b.arg(v.ColourID), b.arg(v.SizeID), b.arg(v.SKU), b.arg(v.Stock),
			b.arg(timeOrNil(v.CreatedAt)), b.arg(timeOrNil(v.UpdatedAt)))
	}
	query := fmt.Sprintf("INSERT INTO variants (%s) VALUES %s", variantColumns, strings.Join(values, ", "))
	if skipDuplicates {
		query += " ON CONFLICT DO NOTHING"
	}
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("CreateVariants", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("CreateVariants", err)
	}
	return n, nil
}

// FindVariantByID returns (nil, nil) when no variant matches.
func (s *Store) FindVariantByID(ctx context.Context, id string) (*domain.Variant, error) {
	return s.findVariant(ctx, "FindVariantByID", "id", id)
}

// GetVariantByID reports ErrNotFound instead of an empty result.
func (s *Store) GetVariantByID(ctx context.Context, id string) (*domain.Variant, error) {
	v, err := s.findVariant(ctx, "GetVariantByID", "id", id)
	if err == nil && v == nil {
		return nil, notFound("GetVariantByID")
	}
	return v, err
}

// FindVariantBySKU looks a variant up by its unique sku; (nil, nil) when
// absent.
func (s *Store) FindVariantBySKU(ctx context.Context, sku string) (*domain.Variant, error) {
	return s.findVariant(ctx, "FindVariantBySKU", "sku", sku)
}

// GetVariantBySKU reports ErrNotFound instead of an empty result.
func (s *Store) GetVariantBySKU(ctx context.Context, sku string) (*domain.Variant, error) {
	v, err := s.findVariant(ctx, "GetVariantBySKU", "sku", sku)
	if err == nil && v == nil {
		return nil, notFound("GetVariantBySKU")
	}
	return v, err
}

func (s *Store) findVariant(ctx context.Context, op, col, key string) (*domain.Variant, error) {
	query := fmt.Sprintf("SELECT %s FROM variants WHERE %s = $1", variantColumns, col)
	v, err := scanVariant(s.q.QueryRowContext(ctx, query, key))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError(op, err)
	}
	return v, nil
}

// ListVariants returns the ordered page of variants matching the filter.
func (s *Store) ListVariants(ctx context.Context, p ListVariantsParams) ([]domain.Variant, error) {
	b := &sqlBuilder{}
	where := p.Where.sql(b, "variants")
	query, reversed, err := listQuery{
		table: "variants", selects: variantColumns,
		cols: variantCols,
		where: where, orderBy: p.OrderBy,
		limit: p.Limit, offset: p.Offset, cursor: p.Cursor, take: p.Take,
	}.build("ListVariants", b)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError("ListVariants", err)
	}
	defer rows.Close()

	var variants []domain.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, mapError("ListVariants", err)
		}
		variants = append(variants, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListVariants", err)
	}
	if reversed {
		reverseSlice(variants)
	}
	if err := s.loadVariantRelations(ctx, "ListVariants", variants, p.Include); err != nil {
		return nil, err
	}
	return variants, nil
}

func (s *Store) loadVariantRelations(ctx context.Context, op string, variants []domain.Variant, inc VariantInclude) error {
	if len(variants) == 0 || (!inc.Product && !inc.Colour && !inc.Size) {
		return nil
	}
	if inc.Product {
		ids := dedupIDs(variants, func(v domain.Variant) *string { return &v.ProductID })
		products, err := s.productsByID(ctx, op, ids)
		if err != nil {
			return err
		}
		for i := range variants {
			if p, ok := products[variants[i].ProductID]; ok {
				p := p
				variants[i].Product = &p
			}
		}
	}
	if inc.Colour {
		ids := dedupIDs(variants, func(v domain.Variant) *string { return v.ColourID })
		colours, err := s.coloursByID(ctx, op, ids)
		if err != nil {
			return err
		}
		for i := range variants {
			if variants[i].ColourID == nil {
				continue
			}
			if c, ok := colours[*variants[i].ColourID]; ok {
				c := c
				variants[i].Colour = &c
			}
		}
	}
	if inc.Size {
		ids := dedupIDs(variants, func(v domain.Variant) *string { return v.SizeID })
		sizes, err := s.sizesByID(ctx, op, ids)
		if err != nil {
			return err
		}
		for i := range variants {
			if variants[i].SizeID == nil {
				continue
			}
			if z, ok := sizes[*variants[i].SizeID]; ok {
				z := z
				variants[i].Size = &z
			}
		}
	}
	return nil
}

func dedupIDs(variants []domain.Variant, key func(domain.Variant) *string) []string {
	seen := make(map[string]bool)
	out := make([]string, 0, len(variants))
	for _, v := range variants {
		id := key(v)
		if id == nil || seen[*id] {
			continue
		}
		seen[*id] = true
		out = append(out, *id)
	}
	return out
}

// variantsOf batch-loads the variants hanging off the given parents.
func (s *Store) variantsOf(ctx context.Context, op, fk string, ids []string, opt VariantListOptions) ([]domain.Variant, error) {
	order, err := childOrder(op, "variants", variantCols, opt.OrderBy)
	if err != nil {
		return nil, err
	}
	b := &sqlBuilder{}
	query := childQuery(b, "variants", variantColumns, fk, ids, func(b *sqlBuilder) string {
		return opt.Where.sql(b, "variants")
	}, order, opt.Limit, opt.Offset)
	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	var out []domain.Variant
	for rows.Next() {
		v, err := scanVariant(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out = append(out, *v)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}

// VariantPatch is a partial update; nil fields stay untouched.
type VariantPatch struct {
	ProductID *string
	ColourID  *sql.NullString
	SizeID    *sql.NullString
	SKU       *string
	Stock     *int64
}

func (p VariantPatch) apply(sb *setBuilder) {
	if p.ProductID != nil {
		sb.set("product_id", *p.ProductID)
	}
	if p.ColourID != nil {
		sb.set("colour_id", *p.ColourID)
	}
	if p.SizeID != nil {
		sb.set("size_id", *p.SizeID)
	}
	if p.SKU != nil {
		sb.set("sku", *p.SKU)
	}
	if p.Stock != nil {
		sb.set("stock", *p.Stock)
	}
}

// UpdateVariant applies a partial patch; ErrNotFound when the id does not
// match.
func (s *Store) UpdateVariant(ctx context.Context, id string, patch VariantPatch) (*domain.Variant, error) {
	if patch.Stock != nil && *patch.Stock < 0 {
		return nil, negativeStock("UpdateVariant")
	}
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	query := fmt.Sprintf("UPDATE variants SET %s WHERE id = %s RETURNING %s", sb.clause(), b.arg(id), variantColumns)
	v, err := scanVariant(s.q.QueryRowContext(ctx, query, b.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("UpdateVariant")
		}
		return nil, mapError("UpdateVariant", err)
	}
	return v, nil
}

// UpdateVariants applies the patch to every matching row.
func (s *Store) UpdateVariants(ctx context.Context, where *VariantFilter, patch VariantPatch, limit int) (int64, error) {
	if patch.Stock != nil && *patch.Stock < 0 {
		return 0, negativeStock("UpdateVariants")
	}
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	pred := where.sql(b, "variants")
	query := fmt.Sprintf("UPDATE variants SET %s%s", sb.clause(), bulkScope(b, "variants", pred, limit))
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("UpdateVariants", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("UpdateVariants", err)
	}
	return n, nil
}

// AdjustVariantStock adds delta to the stock of one variant, clamping at
// the check constraint: a decrement below zero fails with
// ErrConstraintViolation and leaves the row untouched.
func (s *Store) AdjustVariantStock(ctx context.Context, id string, delta int64) (*domain.Variant, error) {
	query := fmt.Sprintf("UPDATE variants SET stock = stock + $1, updated_at = now() WHERE id = $2 RETURNING %s", variantColumns)
	v, err := scanVariant(s.q.QueryRowContext(ctx, query, delta, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("AdjustVariantStock")
		}
		return nil, mapError("AdjustVariantStock", err)
	}
	return v, nil
}

// UpsertVariant updates the variant holding sku, creating it when absent.
// Racing creators resolve inside the database, same as UpsertUser.
func (s *Store) UpsertVariant(ctx context.Context, sku string, create domain.Variant, update VariantPatch) (*domain.Variant, error) {
	if create.Stock < 0 || (update.Stock != nil && *update.Stock < 0) {
		return nil, negativeStock("UpsertVariant")
	}
	id := create.ID
	if id == "" {
		id = newID()
	}
	b := &sqlBuilder{}
	values := fmt.Sprintf("(%s, %s, %s, %s, %s, %s, COALESCE(%s, now()), COALESCE(%s, now()))",
		b.arg(id), b.arg(create.ProductID), b.arg(create.ColourID), b.arg(create.SizeID),
		b.arg(sku), b.arg(create.Stock),
		b.arg(timeOrNil(create.CreatedAt)), b.arg(timeOrNil(create.UpdatedAt)))
	sb := &setBuilder{b: b}
	update.apply(sb)
	query := fmt.Sprintf("INSERT INTO variants (%s) VALUES %s ON CONFLICT (sku) DO UPDATE SET %s RETURNING %s",
		variantColumns, values, sb.clause(), variantColumns)
	v, err := scanVariant(s.q.QueryRowContext(ctx, query, b.args...))
	if err != nil {
		return nil, mapError("UpsertVariant", err)
	}
	return v, nil
}

// DeleteVariant removes one variant; ErrNotFound when nothing matched.
func (s *Store) DeleteVariant(ctx context.Context, id string) error {
	return s.deleteOne(ctx, "DeleteVariant", "variants", id)
}

// DeleteVariants removes every matching row; zero matches is not an error.
func (s *Store) DeleteVariants(ctx context.Context, where *VariantFilter, limit int) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "variants")
	return s.deleteMany(ctx, "DeleteVariants", "variants", b, pred, limit)
}

// CountVariants counts rows matching the filter.
func (s *Store) CountVariants(ctx context.Context, where *VariantFilter) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "variants")
	return s.countRows(ctx, "CountVariants", "variants", b, pred)
}

// AggregateVariants computes the requested statistics over matching rows.
// Stock is the numeric field.
func (s *Store) AggregateVariants(ctx context.Context, where *VariantFilter, spec AggregateSpec) (*Aggregate, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "variants")
	return s.aggregateRows(ctx, "AggregateVariants", "variants", variantNumCols, variantTimeCols, b, pred, spec)
}

// GroupVariantsBy groups matching variants by the given fields.
func (s *Store) GroupVariantsBy(ctx context.Context, where *VariantFilter, p GroupByParams) ([]Group, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "variants")
	return s.groupRows(ctx, "GroupVariantsBy", "variants", variantCols, variantNumCols, variantTimeCols, b, pred, p)
}
