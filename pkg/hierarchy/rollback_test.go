package hierarchy

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockManager(t *testing.T) (*Manager, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	db, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	return NewManager(db, nil), mock
}

func TestDeleteUnit_CascadeFailureRollsBack(t *testing.T) {
	m, mock := newMockManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "admin_units" WHERE id = $1`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "level_id", "materialized_path"}).
			AddRow(4, "North", 2, "/1/4/"))
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "admin_units" WHERE materialized_path LIKE $1`)).
		WithArgs("/1/4/%").
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	_, err := m.DeleteUnit(context.Background(), 4, true)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestReorderLevels_MidwayFailureRollsBack(t *testing.T) {
	m, mock := newMockManager(t)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "admin_levels" ORDER BY sequence_number ASC`)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "sequence_number"}).
			AddRow(1, "National", 1).
			AddRow(2, "Region", 2))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "admin_levels" SET "sequence_number"=$1`)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta(`UPDATE "admin_levels" SET "sequence_number"=$1`)).
		WillReturnError(errors.New("deadlock detected"))
	mock.ExpectRollback()

	_, err := m.ReorderLevels(context.Background(), []uint{2, 1})
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}
