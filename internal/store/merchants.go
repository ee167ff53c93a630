package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/domain"
)

const merchantColumns = "id, user_id, name, address, phone, avatar, type, status, created_at, updated_at"

var (
	merchantCols = map[string]string{
		"id":        "id",
		"userId":    "user_id",
		"name":      "name",
		"address":   "address",
		"phone":     "phone",
		"avatar":    "avatar",
		"type":      "type",
		"status":    "status",
		"createdAt": "created_at",
		"updatedAt": "updated_at",
	}
	merchantNumCols  = map[string]string{}
	merchantTimeCols = map[string]string{"createdAt": "created_at", "updatedAt": "updated_at"}

	merchantOrderExprs = map[string]string{
		"productCount": "(SELECT COUNT(*) FROM products WHERE products.merchant_id = merchants.id)",
	}
)

// MerchantFilter is the declarative predicate over merchants.
type MerchantFilter struct {
	And []MerchantFilter
	Or  []MerchantFilter
	Not []MerchantFilter

	ID        *StringFilter
	UserID    *StringFilter
	Name      *StringFilter
	Address   *StringFilter
	Phone     *StringFilter
	Type      *StringFilter
	Status    *StringFilter
	CreatedAt *TimeFilter
	UpdatedAt *TimeFilter

	// User filters merchants through their owner.
	User *UserFilter
	// Products filters merchants through their product list.
	Products *ProductListFilter
}

func (f *MerchantFilter) sql(b *sqlBuilder, t string) string {
	if f == nil {
		return ""
	}
	parts := composeBool(b, t, f.And, f.Or, f.Not, func(b *sqlBuilder, t string, nf MerchantFilter) string {
		return nf.sql(b, t)
	})
	parts = appendSQL(parts, f.ID.sql(b, t+".id"))
	parts = appendSQL(parts, f.UserID.sql(b, t+".user_id"))
	parts = appendSQL(parts, f.Name.sql(b, t+".name"))
	parts = appendSQL(parts, f.Address.sql(b, t+".address"))
	parts = appendSQL(parts, f.Phone.sql(b, t+".phone"))
	parts = appendSQL(parts, f.Type.sql(b, t+".type"))
	parts = appendSQL(parts, f.Status.sql(b, t+".status"))
	parts = appendSQL(parts, f.CreatedAt.sql(b, t+".created_at"))
	parts = appendSQL(parts, f.UpdatedAt.sql(b, t+".updated_at"))
	if f.User != nil {
		a := b.alias("u")
		join := fmt.Sprintf("%s.id = %s.user_id", a, t)
		parts = append(parts, existsSQL("users", a, join, f.User.sql(b, a)))
	}
	if f.Products != nil {
		parts = appendSQL(parts, f.Products.sql(b, "merchant_id", t+".id"))
	}
	return andAll(parts)
}

// MerchantListFilter quantifies over a merchant list relation.
type MerchantListFilter struct {
	Some  *MerchantFilter
	Every *MerchantFilter
	None  *MerchantFilter
}

func (f *MerchantListFilter) sql(b *sqlBuilder, fk, owner string) string {
	if f == nil {
		return ""
	}
	var parts []string
	if f.Some != nil {
		a := b.alias("m")
		join := fmt.Sprintf("%s.%s = %s", a, fk, owner)
		parts = append(parts, existsSQL("merchants", a, join, f.Some.sql(b, a)))
	}
	if f.Every != nil {
		a := b.alias("m")
		join := fmt.Sprintf("%s.%s = %s", a, fk, owner)
		if inner := f.Every.sql(b, a); inner != "" {
			parts = append(parts, "NOT "+existsSQL("merchants", a, join, "NOT ("+inner+")"))
		}
	}
	if f.None != nil {
		a := b.alias("m")
		join := fmt.Sprintf("%s.%s = %s", a, fk, owner)
		parts = append(parts, "NOT "+existsSQL("merchants", a, join, f.None.sql(b, a)))
	}
	return andAll(parts)
}

// MerchantListOptions shapes a nested merchant fetch: filter, order and a
// per-parent window.
type MerchantListOptions struct {
	Where   *MerchantFilter
	OrderBy []Order
	Limit   int
	Offset  int
}

// MerchantInclude declares which merchant relations to eager-load.
type MerchantInclude struct {
	User         bool
	Products     *ProductListOptions
	ProductCount bool
}

// ListMerchantsParams mirrors the uniform findMany contract.
type ListMerchantsParams struct {
	Where   *MerchantFilter
	Include MerchantInclude
	OrderBy []Order
	Limit   int
	Offset  int
	Cursor  *string
	Take    int
}

func scanMerchant(r rowScanner) (*domain.Merchant, error) {
	var m domain.Merchant
	err := r.Scan(&m.ID, &m.UserID, &m.Name, &m.Address, &m.Phone, &m.Avatar,
		&m.Type, &m.Status, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMerchant inserts one merchant bound to an existing user; a
// dangling userId surfaces ErrConstraintViolation. Status defaults to
// "active".
func (s *Store) CreateMerchant(ctx context.Context, m *domain.Merchant) (*domain.Merchant, error) {
	id := m.ID
	if id == "" {
		id = newID()
	}
	status := m.Status
	if status == "" {
		status = domain.MerchantStatusActive
	}
	query := fmt.Sprintf(`INSERT INTO merchants (%s) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), COALESCE($10, now())) RETURNING %s`,
		merchantColumns, merchantColumns)
	row := s.q.QueryRowContext(ctx, query,
		id, m.UserID, m.Name, m.Address, m.Phone, m.Avatar, m.Type, status,
		timeOrNil(m.CreatedAt), timeOrNil(m.UpdatedAt))
	created, err := scanMerchant(row)
	if err != nil {
		return nil, mapError("CreateMerchant", err)
	}
	return created, nil
}

// CreateMerchants batch-inserts merchants; see CreateUsers for the
// skipDuplicates contract.
func (s *Store) CreateMerchants(ctx context.Context, ms []domain.Merchant, skipDuplicates bool) (int64, error) {
	if len(ms) == 0 {
		return 0, nil
	}
	b := &sqlBuilder{}
	values := make([]string, len(ms))
	for i, m := range ms {
		id := m.ID
		if id == "" {
			id = newID()
		}
		status := m.Status
		if status == "" {
			status = domain.MerchantStatusActive
		}
		values[i] = fmt.Sprintf("(%s, %s, %s, %s, %s, %s, %s, %s, COALESCE(%s, now()), COALESCE(%s, now()))",
			b.arg(id), b.arg(m.UserID), b.arg(m.Name), b.arg(m.Address), b.arg(m.Phone),
			b.arg(m.Avatar), b.arg(m.Type), b.arg(status),
			b.arg(timeOrNil(m.CreatedAt)), b.arg(timeOrNil(m.UpdatedAt)))
	}
	query := fmt.Sprintf("INSERT INTO merchants (%s) VALUES %s", merchantColumns, strings.Join(values, ", "))
	if skipDuplicates {
		query += " ON CONFLICT DO NOTHING"
	}
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("CreateMerchants", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("CreateMerchants", err)
	}
	return n, nil
}

// FindMerchantByID returns (nil, nil) when no merchant matches.
func (s *Store) FindMerchantByID(ctx context.Context, id string) (*domain.Merchant, error) {
	query := fmt.Sprintf("SELECT %s FROM merchants WHERE id = $1", merchantColumns)
	m, err := scanMerchant(s.q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, mapError("FindMerchantByID", err)
	}
	return m, nil
}

// GetMerchantByID reports ErrNotFound instead of an empty result.
func (s *Store) GetMerchantByID(ctx context.Context, id string) (*domain.Merchant, error) {
	m, err := s.FindMerchantByID(ctx, id)
	if err == nil && m == nil {
		return nil, notFound("GetMerchantByID")
	}
	return m, err
}

// ListMerchants returns the ordered page of merchants matching the filter.
// Merchants can be ordered by "productCount" (number of owned products).
func (s *Store) ListMerchants(ctx context.Context, p ListMerchantsParams) ([]domain.Merchant, error) {
	b := &sqlBuilder{}
	where := p.Where.sql(b, "merchants")
	query, reversed, err := listQuery{
		table: "merchants", selects: merchantColumns,
		cols: merchantCols, extra: merchantOrderExprs,
		where: where, orderBy: p.OrderBy,
		limit: p.Limit, offset: p.Offset, cursor: p.Cursor, take: p.Take,
	}.build("ListMerchants", b)
	if err != nil {
		return nil, err
	}

	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError("ListMerchants", err)
	}
	defer rows.Close()

	var merchants []domain.Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, mapError("ListMerchants", err)
		}
		merchants = append(merchants, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError("ListMerchants", err)
	}
	if reversed {
		reverseSlice(merchants)
	}
	if err := s.loadMerchantRelations(ctx, merchants, p.Include); err != nil {
		return nil, err
	}
	return merchants, nil
}

func (s *Store) loadMerchantRelations(ctx context.Context, merchants []domain.Merchant, inc MerchantInclude) error {
	if len(merchants) == 0 || (!inc.User && inc.Products == nil && !inc.ProductCount) {
		return nil
	}
	ids := make([]string, len(merchants))
	for i, m := range merchants {
		ids[i] = m.ID
	}
	if inc.User {
		userIDs := make([]string, 0, len(merchants))
		seen := make(map[string]bool)
		for _, m := range merchants {
			if !seen[m.UserID] {
				seen[m.UserID] = true
				userIDs = append(userIDs, m.UserID)
			}
		}
		users, err := s.usersOf(ctx, "ListMerchants", userIDs)
		if err != nil {
			return err
		}
		for i := range merchants {
			if u, ok := users[merchants[i].UserID]; ok {
				u := u
				merchants[i].User = &u
			}
		}
	}
	if inc.Products != nil {
		children, err := s.productsOf(ctx, "ListMerchants", ids, *inc.Products)
		if err != nil {
			return err
		}
		byMerchant := make(map[string][]domain.Product)
		for _, p := range children {
			byMerchant[p.MerchantID] = append(byMerchant[p.MerchantID], p)
		}
		for i := range merchants {
			merchants[i].Products = byMerchant[merchants[i].ID]
		}
	}
	if inc.ProductCount {
		counts, err := s.relationCounts(ctx, "ListMerchants", "products", "merchant_id", ids)
		if err != nil {
			return err
		}
		for i := range merchants {
			n := counts[merchants[i].ID]
			merchants[i].ProductCount = &n
		}
	}
	return nil
}

// merchantsOf batch-loads the merchants owned by the given parents.
func (s *Store) merchantsOf(ctx context.Context, op, fk string, ids []string, opt MerchantListOptions) ([]domain.Merchant, error) {
	order, err := childOrder(op, "merchants", merchantCols, opt.OrderBy)
	if err != nil {
		return nil, err
	}
	b := &sqlBuilder{}
	query := childQuery(b, "merchants", merchantColumns, fk, ids, func(b *sqlBuilder) string {
		return opt.Where.sql(b, "merchants")
	}, order, opt.Limit, opt.Offset)
	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	var out []domain.Merchant
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}

// MerchantPatch is a partial update; nil fields stay untouched.
type MerchantPatch struct {
	UserID  *string
	Name    *string
	Address *sql.NullString
	Phone   *sql.NullString
	Avatar  *sql.NullString
	Type    *sql.NullString
	Status  *string
}

func (p MerchantPatch) apply(sb *setBuilder) {
	if p.UserID != nil {
		sb.set("user_id", *p.UserID)
	}
	if p.Name != nil {
		sb.set("name", *p.Name)
	}
	if p.Address != nil {
		sb.set("address", *p.Address)
	}
	if p.Phone != nil {
		sb.set("phone", *p.Phone)
	}
	if p.Avatar != nil {
		sb.set("avatar", *p.Avatar)
	}
	if p.Type != nil {
		sb.set("type", *p.Type)
	}
	if p.Status != nil {
		sb.set("status", *p.Status)
	}
}

// UpdateMerchant applies a partial patch; ErrNotFound when the id does not
// match.
func (s *Store) UpdateMerchant(ctx context.Context, id string, patch MerchantPatch) (*domain.Merchant, error) {
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	query := fmt.Sprintf("UPDATE merchants SET %s WHERE id = %s RETURNING %s", sb.clause(), b.arg(id), merchantColumns)
	m, err := scanMerchant(s.q.QueryRowContext(ctx, query, b.args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, notFound("UpdateMerchant")
		}
		return nil, mapError("UpdateMerchant", err)
	}
	return m, nil
}

// UpdateMerchants applies the patch to every matching row.
func (s *Store) UpdateMerchants(ctx context.Context, where *MerchantFilter, patch MerchantPatch, limit int) (int64, error) {
	b := &sqlBuilder{}
	sb := &setBuilder{b: b}
	patch.apply(sb)
	pred := where.sql(b, "merchants")
	query := fmt.Sprintf("UPDATE merchants SET %s%s", sb.clause(), bulkScope(b, "merchants", pred, limit))
	res, err := s.q.ExecContext(ctx, query, b.args...)
	if err != nil {
		return 0, mapError("UpdateMerchants", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, mapError("UpdateMerchants", err)
	}
	return n, nil
}

// DeleteMerchant removes one merchant; merchants still owning products
// cannot be deleted (ErrConstraintViolation).
func (s *Store) DeleteMerchant(ctx context.Context, id string) error {
	return s.deleteOne(ctx, "DeleteMerchant", "merchants", id)
}

// DeleteMerchants removes every matching row; zero matches is not an error.
func (s *Store) DeleteMerchants(ctx context.Context, where *MerchantFilter, limit int) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "merchants")
	return s.deleteMany(ctx, "DeleteMerchants", "merchants", b, pred, limit)
}

// CountMerchants counts rows matching the filter.
func (s *Store) CountMerchants(ctx context.Context, where *MerchantFilter) (int64, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "merchants")
	return s.countRows(ctx, "CountMerchants", "merchants", b, pred)
}

// AggregateMerchants computes the requested statistics over matching rows.
func (s *Store) AggregateMerchants(ctx context.Context, where *MerchantFilter, spec AggregateSpec) (*Aggregate, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "merchants")
	return s.aggregateRows(ctx, "AggregateMerchants", "merchants", merchantNumCols, merchantTimeCols, b, pred, spec)
}

// GroupMerchantsBy groups matching merchants by the given fields.
func (s *Store) GroupMerchantsBy(ctx context.Context, where *MerchantFilter, p GroupByParams) ([]Group, error) {
	b := &sqlBuilder{}
	pred := where.sql(b, "merchants")
	return s.groupRows(ctx, "GroupMerchantsBy", "merchants", merchantCols, merchantNumCols, merchantTimeCols, b, pred, p)
}

// merchantsByID batch-loads merchants referenced by the given ids.
func (s *Store) merchantsByID(ctx context.Context, op string, ids []string) (map[string]domain.Merchant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	b := &sqlBuilder{}
	query := childQuery(b, "merchants", merchantColumns, "id", ids, func(*sqlBuilder) string { return "" },
		"merchants.id ASC", 0, 0)
	rows, err := s.q.QueryContext(ctx, query, b.args...)
	if err != nil {
		return nil, mapError(op, err)
	}
	defer rows.Close()
	out := make(map[string]domain.Merchant)
	for rows.Next() {
		m, err := scanMerchant(rows)
		if err != nil {
			return nil, mapError(op, err)
		}
		out[m.ID] = *m
	}
	if err := rows.Err(); err != nil {
		return nil, mapError(op, err)
	}
	return out, nil
}
