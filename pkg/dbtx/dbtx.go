// Package dbtx carries a gorm transaction through a context so that stores
// called from a service join the caller's unit of work.
package dbtx

import (
	"context"

	"gorm.io/gorm"
)

type ctxKey struct{}

// WithTx stores a transaction in ctx for downstream store usage.
func WithTx(ctx context.Context, tx *gorm.DB) context.Context {
	if tx == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, tx)
}

// From extracts the transaction from ctx if present.
func From(ctx context.Context) (*gorm.DB, bool) {
	tx, ok := ctx.Value(ctxKey{}).(*gorm.DB)
	return tx, ok
}

// Conn returns the transaction in ctx, or db bound to ctx when there is none.
func Conn(ctx context.Context, db *gorm.DB) *gorm.DB {
	if tx, ok := From(ctx); ok {
		return tx
	}
	return db.WithContext(ctx)
}

// Run executes fn inside a transaction. If ctx already carries one, fn joins
// it and commit/rollback is left to the outermost caller.
func Run(ctx context.Context, db *gorm.DB, fn func(ctx context.Context) error) error {
	if _, ok := From(ctx); ok {
		return fn(ctx)
	}
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(WithTx(ctx, tx))
	})
}
