package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/domain"
)

const productColumns = "id, merchant_id, category_id, name, price, discount, description, has_variant, weight, avatar, created_at, updated_at"

var (
	productCols = map[string]string{
		"id":          "id",
		"merchantId":  "merchant_id",
		"categoryId":  "category_id",
		"name":        "name",
		"price":       "price",
		"discount":    "discount",
		"description": "description",
		"hasVariant":  "has_variant",
		"weight":      "weight",
		"avatar":      "avatar",
		"createdAt":   "created_at",
		"updatedAt":   "updated_at",
	}
	productNumCols = map[string]string{
		"price":    "price",
		"discount": "discount",
		"weight":   "weight",
	}
	productTimeCols = map[string]string{"createdAt": "created_at", "updatedAt": "updated_at"}

	productOrderExprs = map[string]string{
		"variantCount": "(SELECT COUNT(*) FROM variants WHERE variants.product_id = products.id)",
	}
)

// ProductFilter is the declarative predicate over products.
type ProductFilter struct {
	And []ProductFilter
	Or  []ProductFilter
	Not []ProductFilter

	ID          *StringFilter
	MerchantID  *StringFilter
	CategoryID  *StringFilter
	Name        *StringFilter
	Price       *FloatFilter
	Discount    *FloatFilter
	Description *StringFilter
	HasVariant  *BoolFilter
	Weight      *FloatFilter
	CreatedAt   *TimeFilter
	UpdatedAt   *TimeFilter

	// Merchant filters products through their owning merchant.
	Merchant *MerchantFilter
	// Category filters products through their category.
	Category *CategoryFilter
	// Variants filters products through their variant list.
	Variants *VariantListFilter
}

func (f *ProductFilter) sql(b *sqlBuilder, t string) string {
	if f == nil {
		return ""
	}
	parts := composeBool(b, t, f.And, f.Or, f.Not, func(b *sqlBuilder, t string, nf ProductFilter) string {
		return nf.sql(b, t)
	})
	parts = appendSQL(parts, f.ID.sql(b, t+".id"))
	parts = appendSQL(parts, f.MerchantID.sql(b, t+".merchant_id"))
	parts = appendSQL(parts, f.CategoryID.sql(b, t+".category_id"))
	parts = appendSQL(parts, f.Name.sql(b, t+".name"))
	parts = appendSQL(parts, f.Price.sql(b, t+".price"))
	parts = appendSQL(parts, f.Discount.sql(b, t+".discount"))
	parts = appendSQL(parts, f.Description.sql(b, t+".description"))
	parts = appendSQL(parts, f.HasVariant.sql(b, t+".has_variant"))
	parts = appendSQL(parts, f.Weight.sql(b, t+".weight"))
	parts = appendSQL(parts, f.CreatedAt.sql(b, t+".created_at"))
	parts = appendSQL(parts, f.UpdatedAt.sql(b, t+".updated_at"))
	if f.Merchant != nil {
		a := b.alias("m")
		join := fmt.Sprintf("%s.id = %s.merchant_id", a, t)
		parts = append(parts, existsSQL("merchants", a, join, f.Merchant.sql(b, a)))
	}
	if f.Category != nil {
		a := b.alias("c")
		join := fmt.Sprintf("%s.id = %s.category_id", a, t)
		parts = append(parts, existsSQL("categories", a, join, f.Category.sql(b, a)))
	}
	if f.Variants != nil {
		parts = appendSQL(parts, f.Variants.sql(b, "product_id", t+".id"))
	}
	return andAll(parts)
}

// ProductListFilter quantifies over a product list relation.
type ProductListFilter struct {
	Some  *ProductFilter
	Every *ProductFilter
	None  *ProductFilter
}

func (f *ProductListFilter) sql(b *sqlBuilder, fk, owner string) string {
	if f == nil {
		return ""
	}
	var parts []string
	if f.Some != nil {
		a := b.alias("p")
		join := fmt.Sprintf("%s.%s = %s", a, fk, owner)
		parts = append(parts, existsSQL("products", a, join, f.Some.sql(b, a)))
	}
	if f.Every != nil {
		a := b.alias("p")
		join := fmt.Sprintf("%s.%s = %s", a, fk, owner)
		if inner := f.Every.sql(b, a); inner != "" {
			parts = append(parts, "NOT "+existsSQL("products", a, join, "NOT ("+inner+")"))
		}
	}
	if f.None != nil {
		a := b.alias("p")
		join := fmt.Sprintf("%s.%s = %s", a, fk, owner)
		parts = append(parts, "NOT "+existsSQL("products", a, join, f.None.sql(b, a)))
	}
	return andAll(parts)
}

// ProductListOptions shapes a nested product fetch: filter, order and a
// per-parent window.
type ProductListOptions struct {
	Where   *ProductFilter
	OrderBy []Order
	Limit   int
	Offset  int
}

// ProductInclude declares which product relations to eager-load.
type ProductInclude struct {
	Merchant     bool
	Category     bool
	Variants     *VariantListOptions
	VariantCount bool
}

// ListProductsParams mirrors the uniform findMany contract.
type ListProductsParams struct {
	Where   *ProductFilter
	Include ProductInclude
	OrderBy []Order
	Limit   int
	Offset  int
	Cursor  *string
	Take    int
}

func scanProduct(r rowScanner) (*domain.Product, error) {
	var p domain.Product
	err := r.Scan(&p.ID, &p.MerchantID, &p.CategoryID, &p.Name, &p.Price, &p.Discount,
		&p.Description, &p.HasVariant, &p.Weight, &p.Avatar, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func negativePrice(op string) error {
	return fmt.Errorf("store: %s: price must not be negative: %w", op, ErrConstraintViolation)
}

// CreateProduct inserts one product bound to an existing merchant and,
// optionally, an existing category. Negative prices are rejected before
// the statement runs.
func (s *Store) CreateProduct(ctx context.Context, p *domain.Product) (*domain.Product, error) {
	if p.Price < 0 {
		return nil, negativePrice("CreateProduct")
	}
	id := p.ID
	if id == "" {
		id = newID()
	}
	query := fmt.Sprintf(`INSERT INTO products (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()), COALESCE($12, now())) RETURNING %s`,
		productColumns, productColumns)
	row := s.q.QueryRowContext(ctx, query,
		id, p.MerchantID, p.CategoryID, p.Name, p.Price, p.Discount,
		p.Description, p.HasVariant, p.Weight, p.Avatar,
		timeOrNil(p.CreatedAt), timeOrNil(p.UpdatedAt))
	created, err := scanProduct(row)
	if err != nil {
		return nil, mapError("CreateProduct", err)
	}
	return created, nil
}

// CreateProducts batch-inserts products; see CreateUsers for the
// skipDuplicates contract.
func (s *Store) CreateProducts(ctx context.Context, ps []domain.Product, skipDuplicates bool) (int64, error) {
	if len(ps) == 0 {
		return 0, nil
	}
	b := &sqlBuilder{}
	values := make([]string, len(ps))
	for i, p := range ps {
		if p.Price < 0 {
			return 0, negativePrice("CreateProducts")
		}
		id := p.ID
		if id == "" {
			id = newID()
		}
		values[i] = fmt.Sprintf("(%s, %s, %s, %s, %s, %s, %s, %s, %s, %s, COALESCE(%s, now()), COALESCE(%s, now()))",
			b.arg(id), b.arg(p.MerchantID), b.arg(p.CategoryID), b.arg(p.Name), b.arg(p.Price),
			b.arg(p.Discount), b.arg(p.Description), b.arg(p.HasVariant), b.arg(p.Weight), b.arg(p.Avatar),
			b.arg(timeOrNil(p.CreatedAt)), b.arg(timeOrNil(p.UpdatedAt)))
	}
	query := fmt.Sprintf("INSERT INTO products (%s) VALUES %s", productColumns, strings.Join(values, ", "))
	if skipDuplicates {
		query += " ON CONFLICT DO NOTHING"
	}
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("CreateProducts", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("CreateProducts", err)
	}
	return n, nil
}

// FindProductByID returns (nil, nil) when no product matches.
func (s *Store) FindProductByID(ctx context.Context, id string) (*domain.Product, error) {
	query := fmt.Sprintf("SELECT %s FROM products WHERE id = $1", productColumns)
	p, err := scanProduct(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("FindProductByID", err)
	}
	return p, nil
}

// GetProductByID reports ErrNotFound instead of an empty result.
func (s *Store) GetProductByID(ctx context.Context, id string) (*domain.Product, error) {
	p, err := s.FindProductByID(ctx, id)
	if err == nil && p == nil {
		return nil, notFound("GetProductByID")
	}
	return p, err
}

// ListProducts returns the ordered page of products matching the filter.
// Products can be ordered by "variantCount" on top of their own columns.
func (s *Store) ListProducts(ctx context.Context, p ListProductsParams) ([]domain.Product, error) {
	b := &sqlBuilder{}
	where := p.Where.sql(b, "products")
	query, reversed, err := listQuery{
		table: "products", selects: productColumns,
		cols: productCols, extra: productOrderExprs,
		where: where, orderBy: p.OrderBy,
		limit: p.Limit, offset: p.Offset, cursor: p.Cursor, take: p.Take,
	}.build("ListProducts", b)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError("ListProducts", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		pr, err := scanProduct(rows)
		if err != nil {
			return nil, mapError("ListProducts", err)
		}
		products = append(products, *pr)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListProducts", err)
	}
	if reversed {
		reverseSlice(products)
	}
	if err := s.loadProductRelations(ctx, "ListProducts", products, p.Include); err != nil {
		return nil, err
	}
	return products, nil
}

func (s *Store) loadProductRelations(ctx context.Context, op string, products []domain.Product, inc ProductInclude) error {
	if len(products) == 0 || (!inc.Merchant && !inc.Category && inc.Variants == nil && !inc.VariantCount) {
		return nil
	}
	ids := make([]string, len(products))
	for i, p := range products {
		ids[i] = p.ID
	}
	if inc.Merchant {
		merchantIDs := make([]string, 0, len(products))
		seen := make(map[string]bool)
		for _, p := range products {
			if !seen[p.MerchantID] {
				seen[p.MerchantID] = true
				merchantIDs = append(merchantIDs, p.MerchantID)
			}
		}
		merchants, err := s.merchantsByID(ctx, op, merchantIDs)
		if err != nil {
			return err
		}
		for i := range products {
			if m, ok := merchants[products[i].MerchantID]; ok {
				m := m
				products[i].Merchant = &m
			}
		}
	}
	if inc.Category {
		categoryIDs := make([]string, 0, len(products))
		seen := make(map[string]bool)
		for _, p := range products {
			if p.CategoryID == nil || seen[*p.CategoryID] {
				continue
			}
			seen[*p.CategoryID] = true
			categoryIDs = append(categoryIDs, *p.CategoryID)
		}
		categories, err := s.categoriesByID(ctx, op, categoryIDs)
		if err != nil {
			return err
		}
		for i := range products {
			if products[i].CategoryID == nil {
				continue
			}
			if c, ok := categories[*products[i].CategoryID]; ok {
				c := c
				products[i].Category = &c
			}
		}
	}
	if inc.Variants != nil {
		children, err := s.variantsOf(ctx, op, "product_id", ids, *inc.Variants)
		if err != nil {
			return err
		}
		byProduct := make(map[string][]domain.Variant)
		for _, v := range children {
			byProduct[v.ProductID] = append(byProduct[v.ProductID], v)
		}
		for i := range products {
			products[i].Variants = byProduct[products[i].ID]
		}
	}
	if inc.VariantCount {
		counts, err := s.relationCounts(ctx, op, "variants", "product_id", ids)
		if err != nil {
			return err
		}
		for i := range products {
			n := counts[products[i].ID]
			products[i].VariantCount = &n
		}
	}
	return nil
}

// productsOf batch-loads the products owned by the given merchants.
func (s *Store) productsOf(ctx context.Context, op string, merchantIDs []string, opt ProductListOptions) ([]domain.Product, error) {
	order, err := childOrder(op, "products", productCols, opt.OrderBy)
	if err != nil {
		return nil, err
	}
	b := &sqlBuilder{}
	query := childQuery(b, "products", productColumns, "merchant_id", merchantIDs, func(b *sqlBuilder) string {
		return opt.Where.sql(b, "products")
	}, order, opt.Limit, opt.Offset)
	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	var out []domain.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out = append(out, *p)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}

// ProductPatch is a partial update; nil fields stay untouched.
type ProductPatch struct {
	MerchantID  *string
	CategoryID  *sql.NullString
	Name        *string
	Price       *float64
	Discount    *sql.NullFloat64
	Description *sql.NullString
	HasVariant  *bool
	Weight      *sql.NullFloat64
	Avatar      *sql.NullString
}

func (p ProductPatch) apply(sb *setBuilder) {
	if p.MerchantID != nil {
		sb.set("merchant_id", *p.MerchantID)
	}
	if p.CategoryID != nil {
		sb.set("category_id", *p.CategoryID)
	}
	if p.Name != nil {
		sb.set("name", *p.Name)
	}
	if p.Price != nil {
		sb.set("price", *p.Price)
	}
	if p.Discount != nil {
		sb.set("discount", *p.Discount)
	}
	if p.Description != nil {
		sb.set("description", *p.Description)
	}
	if p.HasVariant != nil {
		sb.set("has_variant", *p.HasVariant)
	}
	if p.Weight != nil {
		sb.set("weight", *p.Weight)
	}
	if p.Avatar != nil {
		sb.set("avatar", *p.Avatar)
	}
}

// UpdateProduct applies a partial patch; ErrNotFound when the id does not
// match.
func (s *Store) UpdateProduct(ctx context.Context, id string, patch ProductPatch) (*domain.Product, error) {
	if patch.Price != nil && *patch.Price < 0 {
		return nil, negativePrice("UpdateProduct")
	}
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	query := fmt.Sprintf("UPDATE products SET %s WHERE id = %s RETURNING %s", sb.clause(), b.arg(id), productColumns)
	p, err := scanProduct(s.q.QueryRowContext(ctx, query, b.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("UpdateProduct")
		}
		return nil, mapError("UpdateProduct", err)
	}
	return p, nil
}

// UpdateProducts applies the patch to every matching row.
func (s *Store) UpdateProducts(ctx context.Context, where *ProductFilter, patch ProductPatch, limit int) (int64, error) {
	if patch.Price != nil && *patch.Price < 0 {
		return 0, negativePrice("UpdateProducts")
	}
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	pred := where.sql(b, "products")
	query := fmt.Sprintf("UPDATE products SET %s%s", sb.clause(), bulkScope(b, "products", pred, limit))
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("UpdateProducts", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("UpdateProducts", err)
	}
	return n, nil
}

// DeleteProduct removes one product; products still expanded into
// variants cannot be deleted (ErrConstraintViolation).
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	return s.deleteOne(ctx, "DeleteProduct", "products", id)
}

// DeleteProducts removes every matching row; zero matches is not an error.
func (s *Store) DeleteProducts(ctx context.Context, where *ProductFilter, limit int) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "products")
	return s.deleteMany(ctx, "DeleteProducts", "products", b, pred, limit)
}

// CountProducts counts rows matching the filter.
func (s *Store) CountProducts(ctx context.Context, where *ProductFilter) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "products")
	return s.countRows(ctx, "CountProducts", "products", b, pred)
}

// AggregateProducts computes the requested statistics over matching rows.
// Price, discount and weight are the numeric fields.
func (s *Store) AggregateProducts(ctx context.Context, where *ProductFilter, spec AggregateSpec) (*Aggregate, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "products")
	return s.aggregateRows(ctx, "AggregateProducts", "products", productNumCols, productTimeCols, b, pred, spec)
}

// GroupProductsBy groups matching products by the given fields, typically
// merchantId or categoryId.
func (s *Store) GroupProductsBy(ctx context.Context, where *ProductFilter, p GroupByParams) ([]Group, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "products")
	return s.groupRows(ctx, "GroupProductsBy", "products", productCols, productNumCols, productTimeCols, b, pred, p)
}

// productsByID batch-loads products referenced by the given ids.
func (s *Store) productsByID(ctx context.Context, op string, ids []string) (map[string]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	b := &sqlBuilder{}
	query := childQuery(b, "products", productColumns, "id", ids, func(*sqlBuilder) string { return "" },
		"products.id ASC", 0, 0)
	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	out := make(map[string]domain.Product)
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out[p.ID] = *p
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}
