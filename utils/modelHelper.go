package utils

import (
	"context"
	"errors"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"bitbucket.org/mmdatafocus/procurement_backend/config"
	"gorm.io/gorm"
)

/* DB fetching */

// fetch model from db
// (may return RecordNotFound)
func FetchModel[T any](ctx context.Context, id int, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	// preloading
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, id).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch model by string (uuid) primary key
func FetchModelByUid[T any](ctx context.Context, uid string, associations ...string) (*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var result T
	err := dbCtx.First(&result, "id = ?", uid).Error
	if err != nil {
		return nil, ErrorRecordNotFound
	}
	return &result, nil
}

// fetch all models from db
func FetchAllModels[T any](ctx context.Context, associations ...string) ([]*T, error) {

	db := config.GetDB()
	dbCtx := db.WithContext(ctx)
	for _, field := range associations {
		dbCtx = dbCtx.Preload(field)
	}
	var results []*T
	err := dbCtx.Find(&results).Error
	if err != nil {
		return nil, err
	}
	return results, nil
}

// MySQL server error numbers we classify.
const (
	mysqlErrDuplicateEntry  = 1062
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

func mysqlErrNumber(err error) uint16 {
	var me *mysqlDriver.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// IsDuplicateKeyErr reports whether err is a unique-constraint violation.
// The inventory ledger relies on this to make reception recording idempotent.
func IsDuplicateKeyErr(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) || mysqlErrNumber(err) == mysqlErrDuplicateEntry
}

func isRetryableTxErr(err error) bool {
	n := mysqlErrNumber(err)
	return n == mysqlErrDeadlock || n == mysqlErrLockWaitTimeout
}

// RunInTransactionWithRetry runs fn inside a transaction and retries the whole
// transaction on deadlock / lock-wait-timeout, up to maxAttempts, with
// 50ms * 2^n backoff. Any other error aborts immediately. fn must be safe to
// re-run from scratch.
func RunInTransactionWithRetry(ctx context.Context, db *gorm.DB, maxAttempts int, fn func(tx *gorm.DB) error) error {
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	var lastErr error
	for attempt := 0; attempt < maxAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(50 * time.Millisecond << attempt):
			}
		}
		lastErr = db.WithContext(ctx).Transaction(fn)
		if lastErr == nil {
			return nil
		}
		if !isRetryableTxErr(lastErr) {
			return lastErr
		}
	}
	return NewConflictError("transaction retries exhausted", lastErr)
}
