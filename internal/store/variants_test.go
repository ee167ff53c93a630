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

func TestStore_CreateVariant(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	query := regexp.QuoteMeta(`INSERT INTO variants (id, product_id, colour_id, size_id, sku, stock, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()), COALESCE($8, now())) RETURNING id, product_id, colour_id, size_id, sku, stock, created_at, updated_at`)

	rows := sqlmock.NewRows([]string{"id", "product_id", "colour_id", "size_id", "sku", "stock", "created_at", "updated_at"}).
		AddRow("v1", "p1", "col1", "siz1", "SKU-001", 10, now, now)

	mock.ExpectQuery(query).
		WithArgs("v1", "p1", "col1", "siz1", "SKU-001", int64(10), nil, nil).
		WillReturnRows(rows)

	created, err := store.CreateVariant(context.Background(), &domain.Variant{
		ID:        "v1",
		ProductID: "p1",
		ColourID:  PtrTo("col1"),
		SizeID:    PtrTo("siz1"),
		SKU:       "SKU-001",
		Stock:     10,
	})

	require.NoError(t, err)
	assert.Equal(t, "v1", created.ID)
	assert.Equal(t, int64(10), created.Stock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateVariant_DuplicateSKU(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	pqErr := &pq.Error{Code: "23505", Constraint: "variants_sku_key"}
	mock.ExpectQuery("INSERT INTO variants").WillReturnError(pqErr)

	created, err := store.CreateVariant(context.Background(), &domain.Variant{
		ID:        "v2",
		ProductID: "p1",
		SKU:       "SKU-001",
		Stock:     1,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraintViolation), "expected ErrConstraintViolation, got %v", err)
	assert.Nil(t, created)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_CreateVariant_NegativeStock(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	created, err := store.CreateVariant(context.Background(), &domain.Variant{
		ID:        "v1",
		ProductID: "p1",
		SKU:       "SKU-001",
		Stock:     -1,
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraintViolation), "expected ErrConstraintViolation, got %v", err)
	assert.Nil(t, created)
	require.NoError(t, mock.ExpectationsWereMet(), "the statement must never reach the database")
}

func TestStore_GetVariantBySKU(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	query := regexp.QuoteMeta(`SELECT id, product_id, colour_id, size_id, sku, stock, created_at, updated_at FROM variants WHERE sku = $1`)
	rows := sqlmock.NewRows([]string{"id", "product_id", "colour_id", "size_id", "sku", "stock", "created_at", "updated_at"}).
		AddRow("v1", "p1", nil, nil, "SKU-001", 10, now, now)

	mock.ExpectQuery(query).WithArgs("SKU-001").WillReturnRows(rows)

	v, err := store.GetVariantBySKU(context.Background(), "SKU-001")

	require.NoError(t, err)
	assert.Equal(t, "v1", v.ID)
	assert.Nil(t, v.ColourID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AdjustVariantStock_BelowZero(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	pqErr := &pq.Error{Code: "23514", Constraint: "variants_stock_check"}
	query := regexp.QuoteMeta(`UPDATE variants SET stock = stock + $1, updated_at = now() WHERE id = $2 RETURNING id, product_id, colour_id, size_id, sku, stock, created_at, updated_at`)
	mock.ExpectQuery(query).WithArgs(int64(-20), "v1").WillReturnError(pqErr)

	v, err := store.AdjustVariantStock(context.Background(), "v1", -20)

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConstraintViolation), "expected ErrConstraintViolation, got %v", err)
	assert.Nil(t, v)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_UpsertVariant(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	query := regexp.QuoteMeta(`INSERT INTO variants (id, product_id, colour_id, size_id, sku, stock, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, now()), COALESCE($8, now())) ON CONFLICT (sku) DO UPDATE SET stock = $9, updated_at = now() RETURNING id, product_id, colour_id, size_id, sku, stock, created_at, updated_at`)
	rows := sqlmock.NewRows([]string{"id", "product_id", "colour_id", "size_id", "sku", "stock", "created_at", "updated_at"}).
		AddRow("v1", "p1", nil, nil, "SKU-001", 25, now, now)

	mock.ExpectQuery(query).
		WithArgs("v1", "p1", nil, nil, "SKU-001", int64(25), nil, nil, int64(25)).
		WillReturnRows(rows)

	v, err := store.UpsertVariant(context.Background(), "SKU-001",
		domain.Variant{ID: "v1", ProductID: "p1", Stock: 25},
		VariantPatch{Stock: PtrTo(int64(25))})

	require.NoError(t, err)
	assert.Equal(t, int64(25), v.Stock)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_ListVariants_IncludeColourAndSize(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	listRows := sqlmock.NewRows([]string{"id", "product_id", "colour_id", "size_id", "sku", "stock", "created_at", "updated_at"}).
		AddRow("v1", "p1", "col1", nil, "SKU-001", 10, now, now).
		AddRow("v2", "p1", nil, "siz1", "SKU-002", 5, now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, product_id, colour_id, size_id, sku, stock, created_at, updated_at FROM variants WHERE variants.product_id = $1 ORDER BY variants.id ASC`)).
		WithArgs("p1").
		WillReturnRows(listRows)

	colourRows := sqlmock.NewRows([]string{"id", "name", "hex", "created_at", "updated_at"}).
		AddRow("col1", "Merah", "#ff0000", now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, hex, created_at, updated_at FROM colours WHERE colours.id = ANY($1) ORDER BY colours.id ASC`)).
		WithArgs(pq.Array([]string{"col1"})).
		WillReturnRows(colourRows)

	sizeRows := sqlmock.NewRows([]string{"id", "name", "length", "height", "width", "created_at", "updated_at"}).
		AddRow("siz1", "M", nil, nil, nil, now, now)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT id, name, length, height, width, created_at, updated_at FROM sizes WHERE sizes.id = ANY($1) ORDER BY sizes.id ASC`)).
		WithArgs(pq.Array([]string{"siz1"})).
		WillReturnRows(sizeRows)

	variants, err := store.ListVariants(context.Background(), ListVariantsParams{
		Where:   &VariantFilter{ProductID: &StringFilter{Equals: PtrTo("p1")}},
		Include: VariantInclude{Colour: true, Size: true},
	})

	require.NoError(t, err)
	require.Len(t, variants, 2)
	require.NotNil(t, variants[0].Colour)
	assert.Equal(t, "Merah", variants[0].Colour.Name)
	assert.Nil(t, variants[0].Size)
	require.NotNil(t, variants[1].Size)
	assert.Equal(t, "M", variants[1].Size.Name)
	assert.Nil(t, variants[1].Colour)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_AggregateVariants_StockSum(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	query := regexp.QuoteMeta(`SELECT SUM(stock) FROM variants WHERE variants.product_id = $1`)
	rows := sqlmock.NewRows([]string{"sum"}).AddRow(15.0)
	mock.ExpectQuery(query).WithArgs("p1").WillReturnRows(rows)

	agg, err := store.AggregateVariants(context.Background(),
		&VariantFilter{ProductID: &StringFilter{Equals: PtrTo("p1")}},
		AggregateSpec{Sum: []string{"stock"}})

	require.NoError(t, err)
	require.NotNil(t, agg.Sum["stock"])
	assert.Equal(t, 15.0, *agg.Sum["stock"])
	require.NoError(t, mock.ExpectationsWereMet())
}
