package dbopen

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

const maxRetries = 3

// isBusy reports whether err is SQLite refusing a write because another
// connection holds the lock.
func isBusy(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}

// Exec is db.ExecContext retried up to three times (100/200 ms apart)
// while SQLite reports BUSY.
func Exec(ctx context.Context, db *sql.DB, query string, args ...any) (sql.Result, error) {
	var (
		res sql.Result
		err error
	)
	for i := range maxRetries {
		if res, err = db.ExecContext(ctx, query, args...); err == nil {
			return res, nil
		}
		if !isBusy(err) {
			return nil, err
		}
		if i < maxRetries-1 {
			if werr := sleepCtx(ctx, time.Duration(100*(i+1))*time.Millisecond); werr != nil {
				return nil, fmt.Errorf("dbopen: retry interrupted: %w", werr)
			}
		}
	}
	return nil, err
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
