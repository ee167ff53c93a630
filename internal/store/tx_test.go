package store

import (
	"context"
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memettekkee/PT-SDA-BE-TEST-sub000/internal/domain"
)

func TestStore_WithinTx_Commit(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	now := time.Now()
	mock.ExpectBegin()
	mock.ExpectQuery("INSERT INTO users").WillReturnRows(
		sqlmock.NewRows([]string{"id", "username", "fullname", "gender", "birth", "address", "phone", "avatar", "created_at", "updated_at"}).
			AddRow("u1", "alice", "Alice", nil, nil, nil, nil, nil, now, now))
	mock.ExpectQuery("INSERT INTO merchants").WillReturnRows(
		sqlmock.NewRows([]string{"id", "user_id", "name", "address", "phone", "avatar", "type", "status", "created_at", "updated_at"}).
			AddRow("m1", "u1", "Toko Alice", nil, nil, nil, nil, "active", now, now))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), TxOptions{}, func(tx *Store) error {
		u, err := tx.CreateUser(context.Background(), &domain.User{ID: "u1", Username: "alice", Fullname: "Alice"})
		if err != nil {
			return err
		}
		_, err = tx.CreateMerchant(context.Background(), &domain.Merchant{ID: "m1", UserID: u.ID, Name: "Toko Alice"})
		return err
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx_RollbackOnError(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	boom := errors.New("boom")
	err := store.WithinTx(context.Background(), TxOptions{}, func(tx *Store) error {
		return boom
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, boom), "the callback error surfaces unchanged")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx_SeesUncommittedWrites(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM variants WHERE id = $1`)).
		WithArgs("v1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM variants WHERE variants.product_id = $1`)).
		WithArgs("p1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectCommit()

	err := store.WithinTx(context.Background(), TxOptions{Isolation: sql.LevelSerializable}, func(tx *Store) error {
		if err := tx.DeleteVariant(context.Background(), "v1"); err != nil {
			return err
		}
		n, err := tx.CountVariants(context.Background(), &VariantFilter{ProductID: &StringFilter{Equals: PtrTo("p1")}})
		if err != nil {
			return err
		}
		assert.Equal(t, int64(0), n)
		return nil
	})

	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx_NestedRejected(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectBegin()
	mock.ExpectRollback()

	err := store.WithinTx(context.Background(), TxOptions{}, func(tx *Store) error {
		return tx.WithinTx(context.Background(), TxOptions{}, func(*Store) error { return nil })
	})

	require.Error(t, err)
	assert.Contains(t, err.Error(), "nested transactions")
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithinTx_BeginFailureIsConnectionFailure(t *testing.T) {
	db, mock, store := newMockDBAndStore(t)
	defer db.Close()

	mock.ExpectBegin().WillReturnError(context.DeadlineExceeded)

	err := store.WithinTx(context.Background(), TxOptions{Timeout: time.Millisecond}, func(*Store) error {
		return nil
	})

	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConnectionFailure), "expected ErrConnectionFailure, got %v", err)
	require.NoError(t, mock.ExpectationsWereMet())
}
