package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/bazaar-backend/pkg/db/dbtest"
	"github.com/angelmondragon/bazaar-backend/pkg/db/models"
)

func countSuppliers(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&models.Supplier{}).Count(&n).Error)
	return n
}

func newSupplier(name string) *models.Supplier {
	return &models.Supplier{UserID: uuid.New(), Name: name}
}

func TestWithTxCommitsOnSuccess(t *testing.T) {
	conn := dbtest.Open(t)
	client := Wrap(conn)

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		return tx.Create(newSupplier("kept")).Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), countSuppliers(t, conn))
}

func TestWithTxRollsBackOnError(t *testing.T) {
	conn := dbtest.Open(t)
	client := Wrap(conn)
	boom := errors.New("ledger write failed")

	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		if err := tx.Create(newSupplier("dropped")).Error; err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, countSuppliers(t, conn))
}

func TestWithTxRollsBackAndRepanics(t *testing.T) {
	conn := dbtest.Open(t)
	client := Wrap(conn)

	assert.PanicsWithValue(t, "stock underflow", func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(newSupplier("dropped")).Error)
			panic("stock underflow")
		})
	})
	assert.Zero(t, countSuppliers(t, conn))
}

func TestPing(t *testing.T) {
	client := Wrap(dbtest.Open(t))
	assert.NoError(t, client.Ping(context.Background()))
}

func TestIsUniqueViolation(t *testing.T) {
	conn := dbtest.Open(t)
	dup := newSupplier("first")
	require.NoError(t, conn.Create(dup).Error)
	sqliteErr := conn.Create(&models.Supplier{UserID: dup.UserID, Name: "second"}).Error
	require.Error(t, sqliteErr)

	pgErr := fmt.Errorf("insert order: %w", &pgconn.PgError{Code: "23505", ConstraintName: "orders_gateway_order_ref_key"})
	pqErr := &pq.Error{Code: "23505", Constraint: "returns_order_id_key"}

	cases := []struct {
		name       string
		err        error
		constraint string
		want       bool
	}{
		{"nil", nil, "", false},
		{"sqlite any", sqliteErr, "", true},
		{"sqlite column", sqliteErr, "suppliers.user_id", true},
		{"pgx any", pgErr, "", true},
		{"pgx matching constraint", pgErr, "orders_gateway_order_ref_key", true},
		{"pgx other constraint", pgErr, "returns_order_id_key", false},
		{"pq matching constraint", pqErr, "returns_order_id_key", true},
		{"pgx other code", &pgconn.PgError{Code: "23503"}, "", false},
		{"plain error", errors.New("connection reset"), "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, IsUniqueViolation(tc.err, tc.constraint))
		})
	}
}

func TestIsNotFound(t *testing.T) {
	conn := dbtest.Open(t)
	err := conn.First(&models.Supplier{}, "id = ?", uuid.New()).Error
	assert.True(t, IsNotFound(err))
	assert.True(t, IsNotFound(fmt.Errorf("load supplier: %w", gorm.ErrRecordNotFound)))
	assert.False(t, IsNotFound(errors.New("timeout")))
}
