package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-chi/chi/v5"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/store"
)

func newTestServer(t *testing.T) (*httptest.Server, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := NewHTTPHandler(store.New(db), zap.NewNop())
	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, mock
}

func doJSON(t *testing.T, method, url string, body any) *http.Response {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, url, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func TestHTTP_CreateUser(t *testing.T) {
	srv, mock := newTestServer(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "username", "fullname", "gender", "birth", "address", "phone", "avatar", "created_at", "updated_at",
	}).AddRow("u1", "alice", "Alice Doe", nil, nil, nil, nil, nil, now, now)
	mock.ExpectQuery(`INSERT INTO users`).WillReturnRows(rows)

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/users", map[string]any{
		"username": "alice",
		"fullname": "Alice Doe",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusCreated, resp.StatusCode)
	var got map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "alice", got["username"])
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHTTP_CreateUser_ValidationFailure(t *testing.T) {
	srv, mock := newTestServer(t)

	// Missing the required fullname, so the store is never reached.
	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/users", map[string]any{
		"username": "alice",
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHTTP_GetUser_NotFound(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT .* FROM users`).
		WillReturnRows(sqlmock.NewRows([]string{"id"}))

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/users/missing", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	var got ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Equal(t, "resource not found", got.Error)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHTTP_CreateVariant_DuplicateSKU(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(`INSERT INTO variants`).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "variants_sku_key"})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/variants", map[string]any{
		"product_id": "p1",
		"sku":        "TSHIRT-RED-M",
		"stock":      5,
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHTTP_AdjustVariantStock_Underflow(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(`UPDATE variants SET stock = stock`).
		WillReturnError(&pq.Error{Code: "23514", Constraint: "variants_stock_check"})

	resp := doJSON(t, http.MethodPost, srv.URL+"/api/v1/variants/v1/stock", map[string]any{
		"delta": -100,
	})
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHTTP_ListProducts_ByMerchant(t *testing.T) {
	srv, mock := newTestServer(t)
	now := time.Now()

	rows := sqlmock.NewRows([]string{
		"id", "merchant_id", "category_id", "name", "price", "discount",
		"description", "has_variant", "weight", "avatar", "created_at", "updated_at",
	}).
		AddRow("p1", "m1", nil, "Kaos Polos", 50000.0, nil, nil, true, nil, nil, now, now).
		AddRow("p2", "m1", nil, "Celana Jeans", 150000.0, nil, nil, false, nil, nil, now, now)
	mock.ExpectQuery(`SELECT .* FROM products WHERE products\.merchant_id = \$1`).
		WithArgs("m1", 10, 0).
		WillReturnRows(rows)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/products?merchant_id=m1", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	var got struct {
		Data []map[string]any `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&got))
	assert.Len(t, got.Data, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHTTP_GroupProducts_MissingBy(t *testing.T) {
	srv, mock := newTestServer(t)

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/products/group-by", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHTTP_DeleteMerchant_WithProducts(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectExec(`DELETE FROM merchants`).
		WillReturnError(&pq.Error{Code: "23503", Constraint: "products_merchant_id_fkey"})

	resp := doJSON(t, http.MethodDelete, srv.URL+"/api/v1/merchants/m1", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestHTTP_StorageUnavailable(t *testing.T) {
	srv, mock := newTestServer(t)

	mock.ExpectQuery(`SELECT .* FROM colours`).
		WillReturnError(&pq.Error{Code: "08006"})

	resp := doJSON(t, http.MethodGet, srv.URL+"/api/v1/colours", nil)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
	assert.NoError(t, mock.ExpectationsWereMet())
}
