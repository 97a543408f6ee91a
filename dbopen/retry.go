package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// busyAttempts is how many times a statement is tried before the BUSY error
// is surfaced. Backoff grows linearly: 100ms, then 200ms.
const busyAttempts = 3

const busyBackoffStep = 100 * time.Millisecond

// IsBusy reports whether err is an SQLite BUSY condition. The driver renders
// these as text, so this matches on the known message forms.
func IsBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// withBusyRetry runs attempt, retrying on BUSY with linear backoff. Any
// other error, or exhausting the attempts, surfaces immediately.
func withBusyRetry(ctx context.Context, op string, attempt func() error) error {
	var err error
	for i := range busyAttempts {
		if err = attempt(); err == nil {
			return nil
		}
		if !IsBusy(err) {
			return err
		}
		if i == busyAttempts-1 {
			break
		}
		if werr := sleepCtx(ctx, time.Duration(i+1)*busyBackoffStep); werr != nil {
			return fmt.Errorf("dbopen: %s: cancelled during retry: %w", op, werr)
		}
	}
	return err
}

// RunTx executes fn inside a transaction, retrying the whole transaction
// when SQLite reports BUSY. fn's own errors roll back and are returned as-is.
func RunTx(ctx context.Context, db *sql.DB, fn func(*sql.Tx) error) error {
	return withBusyRetry(ctx, "run tx", func() error {
		tx, err := db.BeginTx(ctx, nil)
		if err != nil {
			return fmt.Errorf("dbopen: begin tx: %w", err)
		}
		if err := fn(tx); err != nil {
			tx.Rollback()
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("dbopen: commit: %w", err)
		}
		return nil
	})
}

// Exec executes one statement, retrying on BUSY the same way RunTx does.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var result sql.Result
	err := withBusyRetry(ctx, "exec", func() error {
		var eerr error
		result, eerr = db.ExecContext(ctx, query, args...)
		return eerr
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
