package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
)

// PostgreSQLAdapter PostgreSQL adapter
type PostgreSQLAdapter struct {
	db     *sql.DB
	config *PostgreSQLConfig
}

// PostgreSQLConfig PostgreSQL connection config
type PostgreSQLConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string
	SSLMode  string // disable, require, verify-ca, verify-full

	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// NewPostgreSQLAdapter creates PostgreSQL adapter
func NewPostgreSQLAdapter(config *PostgreSQLConfig) *PostgreSQLAdapter {
	if config.SSLMode == "" {
		config.SSLMode = "disable"
	}
	return &PostgreSQLAdapter{
		config: config,
	}
}

// buildPostgreSQLDSN assembles the libpq keyword/value DSN. connect_timeout
// is libpq's own option, expressed in whole seconds rather than the
// duration-string format MySQL's driver accepts.
func buildPostgreSQLDSN(cfg *PostgreSQLConfig) string {
	dsn := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.SSLMode,
	)
	if cfg.ConnectTimeout > 0 {
		dsn += fmt.Sprintf(" connect_timeout=%d", int(cfg.ConnectTimeout.Seconds()))
	}
	return dsn
}

// Connect connects to database. lib/pq takes connect_timeout as a DSN
// option in whole seconds (unlike MySQL's duration-string timeout param);
// there is no equivalent DSN knob for a per-statement read deadline, so
// ReadTimeout is instead applied as a session-level statement_timeout
// right after the connection is established.
func (a *PostgreSQLAdapter) Connect(ctx context.Context) error {
	dsn := buildPostgreSQLDSN(a.config)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}

	if a.config.MaxOpenConns > 0 {
		db.SetMaxOpenConns(a.config.MaxOpenConns)
	}
	if a.config.MaxIdleConns > 0 {
		db.SetMaxIdleConns(a.config.MaxIdleConns)
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	if a.config.ReadTimeout > 0 {
		stmt := fmt.Sprintf("SET statement_timeout = %d", a.config.ReadTimeout.Milliseconds())
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return fmt.Errorf("failed to set statement_timeout: %w", err)
		}
	}

	a.db = db
	return nil
}

// Close closes connection
func (a *PostgreSQLAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// ExecuteQuery executes query
func (a *PostgreSQLAdapter) ExecuteQuery(ctx context.Context, query string) (*QueryResult, error) {
	start := time.Now()

	rows, err := a.db.QueryContext(ctx, query)
	if err != nil {
		return &QueryResult{
			Error:         err.Error(),
			ExecutionTime: time.Since(start).Milliseconds(),
		}, err // Return error for caller to handle
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
func (a *PostgreSQLAdapter) GetDatabaseType() string {
	return "PostgreSQL"
}

// DryRunSQL validates SQL syntax via EXPLAIN without fetching rows.
// PostgreSQL's EXPLAIN accepts a COSTS option MySQL and SQLite don't
// understand; turning cost estimates off keeps the dry run a pure syntax
// and catalog check instead of also computing planner statistics.
func (a *PostgreSQLAdapter) DryRunSQL(ctx context.Context, query string) error {
	_, err := a.db.ExecContext(ctx, "EXPLAIN (COSTS FALSE) "+query)
	return err
}

// GetDatabaseVersion gets database version
func (a *PostgreSQLAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	result, err := a.ExecuteQuery(ctx, "SELECT version() as version")
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
