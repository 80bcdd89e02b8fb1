package db

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/openhfr/facility-registry/pkg/config"
)

func sharedMemoryDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)
	sqlDB, err := gdb.DB()
	require.NoError(t, err)
	// Lock holders release the connection while fn runs, so contention is
	// on the lock row, never on SQLite's own table locks.
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return gdb
}

func TestOpen(t *testing.T) {
	gdb, err := Open(config.DatabaseConfig{Type: "sqlite", DSN: ":memory:"})
	require.NoError(t, err)
	require.NoError(t, Ping(context.Background(), gdb))
	assert.Equal(t, "sqlite", gdb.Dialector.Name())

	_, err = Open(config.DatabaseConfig{Type: "oracle", DSN: "x"})
	assert.Error(t, err)
}

type fakeStore struct {
	migrated *int
	err      error
}

func (f fakeStore) AutoMigrate() error {
	*f.migrated++
	return f.err
}

func TestMigrate(t *testing.T) {
	gdb := sharedMemoryDB(t)
	n := 0
	require.NoError(t, Migrate(context.Background(), gdb, nil, fakeStore{migrated: &n}, fakeStore{migrated: &n}))
	assert.Equal(t, 2, n)

	boom := errors.New("boom")
	err := Migrate(context.Background(), gdb, nil, fakeStore{migrated: &n, err: boom}, fakeStore{migrated: &n})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 3, n)

	var rows int64
	require.NoError(t, gdb.Model(&migrationLockRecord{}).Count(&rows).Error)
	assert.Zero(t, rows)
}

func TestNewMigrationLocker_NilDB(t *testing.T) {
	called := false
	err := NewMigrationLocker(nil).WithLock(context.Background(), func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
}

func TestTableMigrationLock_Serializes(t *testing.T) {
	gdb := sharedMemoryDB(t)
	require.NoError(t, gdb.AutoMigrate(&migrationLockRecord{}))
	lock := &tableMigrationLock{db: gdb, retries: 200, interval: 10 * time.Millisecond, staleAfter: time.Minute}

	var holders, maxHolders int32
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := lock.WithLock(context.Background(), func() error {
				n := atomic.AddInt32(&holders, 1)
				for {
					m := atomic.LoadInt32(&maxHolders)
					if n <= m || atomic.CompareAndSwapInt32(&maxHolders, m, n) {
						break
					}
				}
				time.Sleep(20 * time.Millisecond)
				atomic.AddInt32(&holders, -1)
				return nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.EqualValues(t, 1, maxHolders)
}

func TestTableMigrationLock_ClearsStaleLock(t *testing.T) {
	gdb := sharedMemoryDB(t)
	require.NoError(t, gdb.AutoMigrate(&migrationLockRecord{}))
	require.NoError(t, gdb.Create(&migrationLockRecord{
		ID: "migration", LockedBy: "crashed-replica", LockedAt: time.Now().Add(-time.Hour),
	}).Error)

	lock := &tableMigrationLock{db: gdb, retries: 2, interval: time.Millisecond, staleAfter: time.Minute}
	called := false
	require.NoError(t, lock.WithLock(context.Background(), func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
}

func TestTableMigrationLock_GivesUp(t *testing.T) {
	gdb := sharedMemoryDB(t)
	require.NoError(t, gdb.AutoMigrate(&migrationLockRecord{}))
	require.NoError(t, gdb.Create(&migrationLockRecord{ID: "migration", LockedBy: "peer", LockedAt: time.Now()}).Error)

	lock := &tableMigrationLock{db: gdb, retries: 3, interval: time.Millisecond, staleAfter: time.Minute}
	err := lock.WithLock(context.Background(), func() error {
		t.Fatal("must not run without the lock")
		return nil
	})
	assert.ErrorContains(t, err, "after 3 attempts")
}

func TestPgAdvisoryLock(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	locker := NewMigrationLocker(gdb)
	require.IsType(t, &pgAdvisoryLock{}, locker)
	id := locker.(*pgAdvisoryLock).lockID

	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_lock($1)")).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(regexp.QuoteMeta("SELECT pg_advisory_unlock($1)")).WithArgs(id).WillReturnResult(sqlmock.NewResult(0, 0))

	boom := errors.New("migration failed")
	err = locker.WithLock(context.Background(), func() error { return boom })
	assert.ErrorIs(t, err, boom)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMySQLNamedLock(t *testing.T) {
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer sqlDB.Close()
	gdb, err := gorm.Open(mysql.New(mysql.Config{Conn: sqlDB, SkipInitializeWithVersion: true}),
		&gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	locker := NewMigrationLocker(gdb)
	require.IsType(t, &mysqlNamedLock{}, locker)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).WithArgs(migrationLockName, 60).
		WillReturnRows(sqlmock.NewRows([]string{"GET_LOCK"}).AddRow(1))
	mock.ExpectExec(regexp.QuoteMeta("SELECT RELEASE_LOCK(?)")).WithArgs(migrationLockName).
		WillReturnResult(sqlmock.NewResult(0, 0))

	called := false
	require.NoError(t, locker.WithLock(context.Background(), func() error {
		called = true
		return nil
	}))
	assert.True(t, called)
	assert.NoError(t, mock.ExpectationsWereMet())

	mock.ExpectQuery(regexp.QuoteMeta("SELECT GET_LOCK(?, ?)")).
		WillReturnRows(sqlmock.NewRows([]string{"GET_LOCK"}).AddRow(0))
	err = locker.WithLock(context.Background(), func() error {
		t.Fatal("must not run without the lock")
		return nil
	})
	assert.ErrorContains(t, err, "timed out")
}
