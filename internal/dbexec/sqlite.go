package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

// SQLiteAdapter SQLite adapter
type SQLiteAdapter struct {
	db     *sql.DB
	config *SQLiteConfig
}

// SQLiteConfig SQLite connection config
type SQLiteConfig struct {
	FilePath string // DB file path, ":memory:" for in-memory

	BusyTimeout time.Duration
}

// NewSQLiteAdapter creates SQLite adapter
func NewSQLiteAdapter(config *SQLiteConfig) *SQLiteAdapter {
	return &SQLiteAdapter{
		config: config,
	}
}

// buildSQLiteDSN wires BusyTimeout onto the busy_timeout pragma via
// modernc.org/sqlite's _pragma DSN parameter, since this driver has no
// notion of a network connect deadline to map it onto instead.
func buildSQLiteDSN(cfg *SQLiteConfig) string {
	dsn := cfg.FilePath
	if cfg.BusyTimeout > 0 {
		dsn = fmt.Sprintf("%s?_pragma=busy_timeout(%d)", dsn, cfg.BusyTimeout.Milliseconds())
	}
	return dsn
}

// Connect connects to database. SQLite has no network handshake, so
// ConnectTimeout has nothing to bound there; instead BusyTimeout is
// wired to the busy_timeout pragma, the knob that actually matters for
// this driver: how long a writer waits on SQLITE_BUSY before giving up.
func (a *SQLiteAdapter) Connect(ctx context.Context) error {
	dsn := buildSQLiteDSN(a.config)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	// SQLite serializes all writers against a single file lock, so
	// holding more than one open connection only adds contention, not
	// throughput; a single pooled connection is the adapter's ceiling
	// regardless of what the caller configured.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	a.db = db
	return nil
}

// Close closes connection
func (a *SQLiteAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// ExecuteQuery executes query
func (a *SQLiteAdapter) ExecuteQuery(ctx context.Context, query string) (*QueryResult, error) {
	start := time.Now()

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return &QueryResult{
			Error:         err.Error(),
			ExecutionTime: time.Since(start).Milliseconds(),
		}, err // Return error, not nil
	}
	defer rows.Close()

	// Get column names
	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	// Read data, capped at MaxRows so a missing or ignored LIMIT clause
	// can't pull an unbounded result set into memory.
	var result []map[string]interface{}
	truncated := false
	for rows.Next() {
		if len(result) >= MaxRows {
			truncated = true
			break
		}

		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			if b, ok := val.([]byte); ok {
				row[col] = string(b)
			} else {
				row[col] = val
			}
		}
		result = append(result, row)
	}

	if err := rows.Err(); err != nil && !truncated {
		return nil, err
	}

	return &QueryResult{
		Columns:       columns,
		Rows:          result,
		RowCount:      len(result),
		ExecutionTime: time.Since(start).Milliseconds(),
		Truncated:     truncated,
	}, nil
}

// GetDatabaseType gets database type
func (a *SQLiteAdapter) GetDatabaseType() string {
	return "SQLite"
}

// DryRunSQL validates SQL syntax without fetching rows. Plain EXPLAIN on
// SQLite returns the VM's bytecode listing, not a query plan, so it's the
// wrong tool here; EXPLAIN QUERY PLAN is what actually mirrors the
// row-estimate plan MySQL's and PostgreSQL's EXPLAIN return.
func (a *SQLiteAdapter) DryRunSQL(ctx context.Context, query string) error {
	_, err := a.db.ExecContext(ctx, "EXPLAIN QUERY PLAN "+query)
	return err
}

// GetDatabaseVersion gets database version
func (a *SQLiteAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	result, err := a.ExecuteQuery(ctx, "SELECT sqlite_version() as version")
	if err != nil {
		return "", err
	}
	if result.Error != "" {
		return "", fmt.Errorf(result.Error)
	}
	if len(result.Rows) > 0 {
		if version, ok := result.Rows[0]["version"].(string); ok {
			return version, nil
		}
	}
	return "unknown", nil
}
