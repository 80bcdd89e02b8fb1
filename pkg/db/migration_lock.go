package db

import (
	"context"
	"database/sql"
	"fmt"
	"hash/crc32"
	"os"
	"time"

	"gorm.io/gorm"
)

const migrationLockName = "facility-registry-migration"

// MigrationLocker serializes migrations across replicas.
type MigrationLocker interface {
	// WithLock executes fn while holding the migration lock.
	// It blocks until the lock is acquired, then releases it after fn returns.
	WithLock(ctx context.Context, fn func() error) error
}

// NewMigrationLocker picks the lock for the database dialect. PostgreSQL and
// MySQL use session-level named locks; SQLite uses a lock table.
func NewMigrationLocker(gdb *gorm.DB) MigrationLocker {
	if gdb == nil {
		return noopMigrationLock{}
	}
	switch gdb.Dialector.Name() {
	case "postgres":
		return &pgAdvisoryLock{db: gdb, lockID: int64(crc32.ChecksumIEEE([]byte(migrationLockName)))}
	case "mysql":
		return &mysqlNamedLock{db: gdb, name: migrationLockName, timeout: 60}
	}
	// Create the lock table up front so concurrent callers never race on it.
	_ = gdb.AutoMigrate(&migrationLockRecord{})
	return &tableMigrationLock{db: gdb, retries: 30, interval: time.Second, staleAfter: 5 * time.Minute}
}

type noopMigrationLock struct{}

func (noopMigrationLock) WithLock(_ context.Context, fn func() error) error {
	return fn()
}

// pgAdvisoryLock holds a PostgreSQL advisory lock. Advisory locks belong to
// the session, so lock and unlock run on one pinned connection.
type pgAdvisoryLock struct {
	db     *gorm.DB
	lockID int64
}

func (l *pgAdvisoryLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		if err := conn.Exec("SELECT pg_advisory_lock(?)", l.lockID).Error; err != nil {
			return fmt.Errorf("acquire migration advisory lock: %w", err)
		}
		defer conn.Exec("SELECT pg_advisory_unlock(?)", l.lockID)
		return fn()
	})
}

// mysqlNamedLock holds a MySQL GET_LOCK lock on one pinned connection.
type mysqlNamedLock struct {
	db      *gorm.DB
	name    string
	timeout int
}

func (l *mysqlNamedLock) WithLock(ctx context.Context, fn func() error) error {
	return l.db.WithContext(ctx).Connection(func(conn *gorm.DB) error {
		var got sql.NullInt64
		if err := conn.Raw("SELECT GET_LOCK(?, ?)", l.name, l.timeout).Scan(&got).Error; err != nil {
			return fmt.Errorf("acquire migration lock: %w", err)
		}
		if !got.Valid || got.Int64 != 1 {
			return fmt.Errorf("acquire migration lock: timed out after %ds", l.timeout)
		}
		defer conn.Exec("SELECT RELEASE_LOCK(?)", l.name)
		return fn()
	})
}

type migrationLockRecord struct {
	ID       string    `gorm:"primaryKey;column:id"`
	LockedAt time.Time `gorm:"column:locked_at"`
	LockedBy string    `gorm:"column:locked_by"`
}

func (migrationLockRecord) TableName() string { return "migration_lock" }

// tableMigrationLock takes the lock by inserting a fixed row; the primary key
// makes a second insert fail. Rows older than staleAfter are assumed to be
// left by a crashed holder and are removed.
type tableMigrationLock struct {
	db         *gorm.DB
	retries    int
	interval   time.Duration
	staleAfter time.Duration
}

func (l *tableMigrationLock) WithLock(ctx context.Context, fn func() error) error {
	holder, _ := os.Hostname()
	if holder == "" {
		holder = "unknown"
	}
	row := migrationLockRecord{ID: "migration", LockedBy: holder}

	db := l.db.WithContext(ctx)
	for i := 0; ; i++ {
		db.Where("id = ? AND locked_at < ?", row.ID, time.Now().Add(-l.staleAfter)).Delete(&migrationLockRecord{})

		row.LockedAt = time.Now()
		err := db.Create(&row).Error
		if err == nil {
			break
		}
		if i >= l.retries-1 {
			return fmt.Errorf("acquire migration lock after %d attempts: %w", l.retries, err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(l.interval):
		}
	}
	defer l.db.Where("id = ?", row.ID).Delete(&migrationLockRecord{})

	return fn()
}
