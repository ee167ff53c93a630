package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/domain"
)

func TestStore_CreateMerchant_DefaultsStatus(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	query := regexp.QuoteMeta(`INSERT INTO merchants (id, user_id, name, address, phone, avatar, type, status, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, COALESCE($9, now()), COALESCE($10, now())) RETURNING id, user_id, name, address, phone, avatar, type, status, created_at, updated_at`)
	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "address", "phone", "avatar", "type", "status", "created_at", "updated_at"}).
		AddRow("m1", "u1", "Toko Alice", nil, nil, nil, nil, "active", now, now)

	mock.ExpectQuery(query).
		WithArgs("m1", "u1", "Toko Alice", nil, nil, nil, nil, "active", nil, nil).
		WillReturnRows(rows)

	created, err := store.CreateMerchant(context.Background(), &domain.Merchant{
		ID:     "m1",
		UserID: "u1",
		Name:   "Toko Alice",
	})

	require.NoError(t, err)
	assert.Equal(t, domain.MerchantStatusActive, created.Status)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListMerchants_OrderByProductCount(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	query := regexp.QuoteMeta(`SELECT id, user_id, name, address, phone, avatar, type, status, created_at, updated_at FROM merchants ORDER BY (SELECT COUNT(*) FROM products WHERE products.merchant_id = merchants.id) DESC, merchants.id DESC LIMIT $1`)
	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "address", "phone", "avatar", "type", "status", "created_at", "updated_at"}).
		AddRow("m2", "u2", "Toko Bob", nil, nil, nil, nil, "active", now, now).
		AddRow("m1", "u1", "Toko Alice", nil, nil, nil, nil, "active", now, now)
	mock.ExpectQuery(query).WithArgs(2).WillReturnRows(rows)

	merchants, err := store.ListMerchants(context.Background(), ListMerchantsParams{
		OrderBy: []Order{{Field: "productCount", Desc: true}},
		Limit:   2,
	})

	require.NoError(t, err)
	require.Len(t, merchants, 2)
	assert.Equal(t, "m2", merchants[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListMerchants_IncludeProductsWindow(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	listRows := sqlmock.NewRows([]string{"id", "user_id", "name", "address", "phone", "avatar", "type", "status", "created_at", "updated_at"}).
		AddRow("m1", "u1", "Toko Alice", nil, nil, nil, nil, "active", now, now).
		AddRow("m2", "u2", "Toko Bob", nil, nil, nil, nil, "active", now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, user_id, name, address, phone, avatar, type, status, created_at, updated_at FROM merchants ORDER BY merchants.id ASC`)).
		WillReturnRows(listRows)

	// Per-parent windows compile to a ROW_NUMBER partition over the
	// foreign key.
	childSQL := regexp.QuoteMeta(`SELECT id, merchant_id, category_id, name, price, discount, description, has_variant, weight, avatar, created_at, updated_at FROM (SELECT id, merchant_id, category_id, name, price, discount, description, has_variant, weight, avatar, created_at, updated_at, ROW_NUMBER() OVER (PARTITION BY products.merchant_id ORDER BY products.price DESC, products.id ASC) AS rn FROM products WHERE products.merchant_id = ANY($1)) sub WHERE sub.rn > $2 AND sub.rn <= $3 ORDER BY sub.rn`)
	childRows := sqlmock.NewRows([]string{"id", "merchant_id", "category_id", "name", "price", "discount", "description", "has_variant", "weight", "avatar", "created_at", "updated_at"}).
		AddRow("p9", "m1", nil, "Premium", 250000.0, nil, nil, false, nil, nil, now, now).
		AddRow("p3", "m2", nil, "Flagship", 900000.0, nil, nil, false, nil, nil, now, now)
	mock.ExpectQuery(childSQL).
		WithArgs(pq.Array([]string{"m1", "m2"}), 0, 1).
		WillReturnRows(childRows)

	merchants, err := store.ListMerchants(context.Background(), ListMerchantsParams{
		Include: MerchantInclude{
			Products: &ProductListOptions{
				OrderBy: []Order{{Field: "price", Desc: true}},
				Limit:   1,
			},
		},
	})

	require.NoError(t, err)
	require.Len(t, merchants, 2)
	require.Len(t, merchants[0].Products, 1)
	assert.Equal(t, "p9", merchants[0].Products[0].ID)
	require.Len(t, merchants[1].Products, 1)
	assert.Equal(t, "p3", merchants[1].Products[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_DeleteMerchant_OwningProducts(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	pqErr := &pq.Error{Code: "23503", Constraint: "products_merchant_id_fkey"}
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM merchants WHERE id = $1`)).
		WithArgs("m1").
		WillReturnError(pqErr)

	err := store.DeleteMerchant(context.Background(), "m1")

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraintViolation), "expected ErrConstraintViolation, got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListMerchants_UserRelationFilter(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	query := regexp.QuoteMeta(`SELECT id, user_id, name, address, phone, avatar, type, status, created_at, updated_at FROM merchants WHERE EXISTS (SELECT 1 FROM users u1 WHERE u1.id = merchants.user_id AND u1.username = $1) ORDER BY merchants.id ASC`)
	rows := sqlmock.NewRows([]string{"id", "user_id", "name", "address", "phone", "avatar", "type", "status", "created_at", "updated_at"}).
		AddRow("m1", "u1", "Toko Alice", nil, nil, nil, nil, "active", now, now)
	mock.ExpectQuery(query).WithArgs("alice").WillReturnRows(rows)

	merchants, err := store.ListMerchants(context.Background(), ListMerchantsParams{
		Where: &MerchantFilter{User: &UserFilter{Username: &StringFilter{Equals: PtrTo("alice")}}},
	})

	require.NoError(t, err)
	require.Len(t, merchants, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListUsers_EveryMerchantActive(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	// "every" quantification: no merchant of the user may fail the inner
	// predicate. Users with no merchants at all match vacuously.
	query := regexp.QuoteMeta(`SELECT id, username, fullname, gender, birth, address, phone, avatar, created_at, updated_at FROM users WHERE NOT EXISTS (SELECT 1 FROM merchants m1 WHERE m1.user_id = users.id AND NOT (m1.status = $1)) ORDER BY users.id ASC`)
	rows := sqlmock.NewRows([]string{"id", "username", "fullname", "gender", "birth", "address", "phone", "avatar", "created_at", "updated_at"}).
		AddRow("u1", "alice", "Alice", nil, nil, nil, nil, nil, now, now)
	mock.ExpectQuery(query).WithArgs("active").WillReturnRows(rows)

	users, err := store.ListUsers(context.Background(), ListUsersParams{
		Where: &UserFilter{
			Merchants: &MerchantListFilter{
				Every: &MerchantFilter{Status: &StringFilter{Equals: PtrTo("active")}},
			},
		},
	})

	require.NoError(t, err)
	require.Len(t, users, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}
