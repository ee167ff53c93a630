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

func TestStore_CreateProduct(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	query := regexp.QuoteMeta(`INSERT INTO products (id, merchant_id, category_id, name, price, discount, description, has_variant, weight, avatar, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, COALESCE($11, now()), COALESCE($12, now())) RETURNING id, merchant_id, category_id, name, price, discount, description, has_variant, weight, avatar, created_at, updated_at`)

	rows := sqlmock.NewRows([]string{"id", "merchant_id", "category_id", "name", "price", "discount", "description", "has_variant", "weight", "avatar", "created_at", "updated_at"}).
		AddRow("p1", "m1", "c1", "Kaos Polos", 100000.0, nil, nil, true, nil, nil, now, now)

	mock.ExpectQuery(query).
		WithArgs("p1", "m1", "c1", "Kaos Polos", 100000.0, nil, nil, true, nil, nil, nil, nil).
		WillReturnRows(rows)

	created, err := store.CreateProduct(context.Background(), &domain.Product{
		ID:         "p1",
		MerchantID: "m1",
		CategoryID: PtrTo("c1"),
		Name:       "Kaos Polos",
		Price:      100000,
		HasVariant: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "p1", created.ID)
	assert.Equal(t, 100000.0, created.Price)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateProduct_NegativePrice(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	created, err := store.CreateProduct(context.Background(), &domain.Product{
		ID:         "p1",
		MerchantID: "m1",
		Name:       "Broken",
		Price:      -1,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraintViolation), "expected ErrConstraintViolation, got %v", err)
	assert.Nil(t, created)
	require.NoError(t, mock.ExpectationsWereMet(), "the statement must never reach the database")
}

func TestStore_CreateProduct_DanglingMerchant(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	pqErr := &pq.Error{Code: "23503", Constraint: "products_merchant_id_fkey"}
	mock.ExpectQuery("INSERT INTO products").WillReturnError(pqErr)

	created, err := store.CreateProduct(context.Background(), &domain.Product{
		ID:         "p1",
		MerchantID: "ghost",
		Name:       "Orphan",
		Price:      1,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraintViolation), "expected ErrConstraintViolation, got %v", err)
	assert.Nil(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListProducts_MerchantRelationFilter(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	query := regexp.QuoteMeta(`SELECT id, merchant_id, category_id, name, price, discount, description, has_variant, weight, avatar, created_at, updated_at FROM products WHERE EXISTS (SELECT 1 FROM merchants m1 WHERE m1.id = products.merchant_id AND m1.status = $1) ORDER BY products.id ASC`)

	rows := sqlmock.NewRows([]string{"id", "merchant_id", "category_id", "name", "price", "discount", "description", "has_variant", "weight", "avatar", "created_at", "updated_at"}).
		AddRow("p1", "m1", nil, "Kaos Polos", 100000.0, nil, nil, false, nil, nil, now, now)

	mock.ExpectQuery(query).WithArgs("active").WillReturnRows(rows)

	products, err := store.ListProducts(context.Background(), ListProductsParams{
		Where: &ProductFilter{
			Merchant: &MerchantFilter{Status: &StringFilter{Equals: PtrTo("active")}},
		},
	})

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "p1", products[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListProducts_VariantSomeFilter(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	query := regexp.QuoteMeta(`SELECT id, merchant_id, category_id, name, price, discount, description, has_variant, weight, avatar, created_at, updated_at FROM products WHERE EXISTS (SELECT 1 FROM variants v1 WHERE v1.product_id = products.id AND v1.stock > $1) ORDER BY products.id ASC`)

	rows := sqlmock.NewRows([]string{"id", "merchant_id", "category_id", "name", "price", "discount", "description", "has_variant", "weight", "avatar", "created_at", "updated_at"}).
		AddRow("p1", "m1", nil, "Kaos Polos", 100000.0, nil, nil, true, nil, nil, now, now)

	mock.ExpectQuery(query).WithArgs(int64(0)).WillReturnRows(rows)

	products, err := store.ListProducts(context.Background(), ListProductsParams{
		Where: &ProductFilter{
			Variants: &VariantListFilter{
				Some: &VariantFilter{Stock: &IntFilter{Gt: PtrTo(int64(0))}},
			},
		},
	})

	require.NoError(t, err)
	require.Len(t, products, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpdateProducts_BulkWithLimit(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`UPDATE products SET discount = $1, updated_at = now() WHERE products.id IN (SELECT products.id FROM products WHERE products.merchant_id = $2 LIMIT $3)`)
	mock.ExpectExec(query).
		WithArgs(10.0, "m1", 5).
		WillReturnResult(sqlmock.NewResult(0, 5))

	n, err := store.UpdateProducts(context.Background(),
		&ProductFilter{MerchantID: &StringFilter{Equals: PtrTo("m1")}},
		ProductPatch{Discount: PtrTo(nullFloat(10))},
		5)

	require.NoError(t, err)
	assert.Equal(t, int64(5), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AggregateProducts(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT COUNT(*), MIN(price), MAX(price), AVG(price) FROM products WHERE products.merchant_id = $1`)
	rows := sqlmock.NewRows([]string{"count", "min", "max", "avg"}).AddRow(3, 50000.0, 150000.0, 100000.0)
	mock.ExpectQuery(query).WithArgs("m1").WillReturnRows(rows)

	agg, err := store.AggregateProducts(context.Background(),
		&ProductFilter{MerchantID: &StringFilter{Equals: PtrTo("m1")}},
		AggregateSpec{Count: true, Min: []string{"price"}, Max: []string{"price"}, Avg: []string{"price"}})

	require.NoError(t, err)
	assert.Equal(t, int64(3), agg.Count)
	require.NotNil(t, agg.Min["price"])
	assert.Equal(t, 50000.0, *agg.Min["price"])
	require.NotNil(t, agg.Avg["price"])
	assert.Equal(t, 100000.0, *agg.Avg["price"])
	_, sumRequested := agg.Sum["price"]
	assert.False(t, sumRequested, "sum was not requested and must be absent")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AggregateProducts_EmptyResultSet(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT COUNT(*), SUM(price), AVG(price) FROM products WHERE products.name = $1`)
	rows := sqlmock.NewRows([]string{"count", "sum", "avg"}).AddRow(0, nil, nil)
	mock.ExpectQuery(query).WithArgs("nothing").WillReturnRows(rows)

	agg, err := store.AggregateProducts(context.Background(),
		&ProductFilter{Name: &StringFilter{Equals: PtrTo("nothing")}},
		AggregateSpec{Count: true, Sum: []string{"price"}, Avg: []string{"price"}})

	require.NoError(t, err)
	assert.Equal(t, int64(0), agg.Count)
	sum, requested := agg.Sum["price"]
	assert.True(t, requested, "a requested statistic is present even when null")
	assert.Nil(t, sum, "sum over zero rows is null, never 0")
	avg, requested := agg.Avg["price"]
	assert.True(t, requested)
	assert.Nil(t, avg)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AggregateProducts_TimestampMinMax(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	oldest := time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)
	query := regexp.QuoteMeta(`SELECT MIN(created_at) FROM products`)
	rows := sqlmock.NewRows([]string{"min"}).AddRow(oldest)
	mock.ExpectQuery(query).WillReturnRows(rows)

	agg, err := store.AggregateProducts(context.Background(), nil,
		AggregateSpec{Min: []string{"createdAt"}})

	require.NoError(t, err)
	require.NotNil(t, agg.MinTime["createdAt"])
	assert.True(t, oldest.Equal(*agg.MinTime["createdAt"]))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GroupProductsBy_MerchantCounts(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT merchant_id, COUNT(*) FROM products GROUP BY merchant_id ORDER BY merchant_id ASC`)
	rows := sqlmock.NewRows([]string{"merchant_id", "count"}).
		AddRow("m1", 3).
		AddRow("m2", 5)
	mock.ExpectQuery(query).WillReturnRows(rows)

	groups, err := store.GroupProductsBy(context.Background(), nil, GroupByParams{
		By:      []string{"merchantId"},
		OrderBy: []Order{{Field: "merchantId"}},
		Agg:     AggregateSpec{Count: true},
	})

	require.NoError(t, err)
	require.Len(t, groups, 2)
	assert.Equal(t, "m1", groups[0].Keys["merchantId"])
	assert.Equal(t, int64(3), groups[0].Count)
	assert.Equal(t, "m2", groups[1].Keys["merchantId"])
	assert.Equal(t, int64(5), groups[1].Count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GroupProductsBy_HavingOnAggregate(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT merchant_id, COUNT(*), AVG(price) FROM products GROUP BY merchant_id HAVING AVG(price) >= $1 LIMIT $2`)
	rows := sqlmock.NewRows([]string{"merchant_id", "count", "avg"}).AddRow("m2", 5, 120000.0)
	mock.ExpectQuery(query).WithArgs(100000.0, 10).WillReturnRows(rows)

	groups, err := store.GroupProductsBy(context.Background(), nil, GroupByParams{
		By:     []string{"merchantId"},
		Having: []HavingCond{{Field: "price", Agg: AggAvg, Num: &FloatFilter{Gte: PtrTo(100000.0)}}},
		Take:   10,
		Agg:    AggregateSpec{Count: true, Avg: []string{"price"}},
	})

	require.NoError(t, err)
	require.Len(t, groups, 1)
	require.NotNil(t, groups[0].Avg["price"])
	assert.Equal(t, 120000.0, *groups[0].Avg["price"])
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GroupProductsBy_EmptyBy(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	groups, err := store.GroupProductsBy(context.Background(), nil, GroupByParams{
		Agg: AggregateSpec{Count: true},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGroupBy), "expected ErrInvalidGroupBy, got %v", err)
	assert.Nil(t, groups)
	require.NoError(t, mock.ExpectationsWereMet(), "validation must fail before any query runs")
}

func TestStore_GroupProductsBy_OrderFieldOutsideBy(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	_, err := store.GroupProductsBy(context.Background(), nil, GroupByParams{
		By:      []string{"merchantId"},
		OrderBy: []Order{{Field: "price"}},
		Agg:     AggregateSpec{Count: true},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGroupBy), "expected ErrInvalidGroupBy, got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_GroupProductsBy_RawHavingFieldOutsideBy(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	_, err := store.GroupProductsBy(context.Background(), nil, GroupByParams{
		By:     []string{"merchantId"},
		Having: []HavingCond{{Field: "categoryId", Str: &StringFilter{Equals: PtrTo("c1")}}},
		Agg:    AggregateSpec{Count: true},
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInvalidGroupBy), "expected ErrInvalidGroupBy, got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}
