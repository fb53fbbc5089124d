package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"sprint-academy/internal/logger"
)

// Retry controls how long Open waits for the database to come up.
type Retry struct {
	Attempts int
	Wait     time.Duration
}

// DefaultRetry matches a database container that needs ~30s to boot.
var DefaultRetry = Retry{Attempts: 10, Wait: 3 * time.Second}

// Connect opens the Postgres pool behind DATABASE_URL.
func Connect(ctx context.Context, databaseURL string, log *logger.Logger) (*sql.DB, error) {
	if databaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is not set")
	}
	return Open(ctx, "pgx", databaseURL, DefaultRetry, log)
}

// Open prepares a pool and pings it until it answers or the attempts run out.
func Open(ctx context.Context, driver, dsn string, retry Retry, log *logger.Logger) (*sql.DB, error) {
	if log == nil {
		log = logger.Nop()
	}
	if retry.Attempts < 1 {
		retry.Attempts = 1
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database connection (driver error): %w", err)
	}

	var pingErr error
	for i := 1; i <= retry.Attempts; i++ {
		if pingErr = db.PingContext(ctx); pingErr == nil {
			return db, nil
		}
		if i == retry.Attempts {
			break
		}
		log.Warn("database not ready, retrying", "attempt", i, "max_attempts", retry.Attempts, "wait", retry.Wait, "error", pingErr)
		select {
		case <-ctx.Done():
			db.Close()
			return nil, ctx.Err()
		case <-time.After(retry.Wait):
		}
	}

	db.Close()
	return nil, fmt.Errorf("failed to connect to database after %d attempts: %w", retry.Attempts, pingErr)
}
