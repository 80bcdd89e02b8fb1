package dbtx

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/openhfr/facility-registry/pkg/db/dbtest"
)

type widget struct {
	ID   uint `gorm:"primaryKey"`
	Name string
}

func count(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	require.NoError(t, db.Model(&widget{}).Count(&n).Error)
	return n
}

func TestRun_CommitsOnSuccess(t *testing.T) {
	db := dbtest.Open(t, &widget{})

	err := Run(context.Background(), db, func(ctx context.Context) error {
		return Conn(ctx, db).Create(&widget{Name: "a"}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), count(t, db))
}

func TestRun_RollsBackOnError(t *testing.T) {
	db := dbtest.Open(t, &widget{})
	boom := errors.New("boom")

	err := Run(context.Background(), db, func(ctx context.Context) error {
		if err := Conn(ctx, db).Create(&widget{Name: "a"}).Error; err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int64(0), count(t, db))
}

func TestRun_JoinsEnclosingTransaction(t *testing.T) {
	db := dbtest.Open(t, &widget{})
	boom := errors.New("outer failure")

	err := Run(context.Background(), db, func(ctx context.Context) error {
		outer, _ := From(ctx)
		innerErr := Run(ctx, db, func(inner context.Context) error {
			tx, ok := From(inner)
			require.True(t, ok)
			assert.Same(t, outer, tx)
			return Conn(inner, db).Create(&widget{Name: "inner"}).Error
		})
		require.NoError(t, innerErr)
		return boom
	})
	require.ErrorIs(t, err, boom)
	// The inner write belonged to the outer transaction and was rolled back with it.
	assert.Equal(t, int64(0), count(t, db))
}

func TestWithTx_NilIsNoop(t *testing.T) {
	ctx := WithTx(context.Background(), nil)
	_, ok := From(ctx)
	assert.False(t, ok)
}
