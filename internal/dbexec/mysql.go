package dbexec

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/go-sql-driver/mysql"
)

// MySQLAdapter MySQL adapter
type MySQLAdapter struct {
	db     *sql.DB
	config *MySQLConfig
}

// MySQLConfig MySQL connection config
type MySQLConfig struct {
	Host     string
	Port     int
	Database string
	User     string
	Password string

	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// NewMySQLAdapter creates MySQL adapter
func NewMySQLAdapter(config *MySQLConfig) *MySQLAdapter {
	return &MySQLAdapter{
		config: config,
	}
}

// buildMySQLDSN assembles the go-sql-driver DSN, layering the connect and
// read deadlines on as DSN parameters when configured.
func buildMySQLDSN(cfg *MySQLConfig) string {
	dsn := fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?parseTime=true",
		cfg.User,
		cfg.Password,
		cfg.Host,
		cfg.Port,
		cfg.Database,
	)
	if cfg.ConnectTimeout > 0 {
		dsn += fmt.Sprintf("&timeout=%s", cfg.ConnectTimeout)
	}
	if cfg.ReadTimeout > 0 {
		dsn += fmt.Sprintf("&readTimeout=%s", cfg.ReadTimeout)
	}
	return dsn
}

// Connect connects to database. The go-sql-driver DSN carries both
// deadlines directly: timeout bounds the initial TCP handshake,
// readTimeout bounds every subsequent row read, so a stuck EXPLAIN or a
// runaway aggregate can't hang the pipeline past what the caller configured.
func (a *MySQLAdapter) Connect(ctx context.Context) error {
	dsn := buildMySQLDSN(a.config)

	db, err := sql.Open("mysql", dsn)
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

	a.db = db
	return nil
}

// Close closes connection
func (a *MySQLAdapter) Close() error {
	if a.db != nil {
		return a.db.Close()
	}
	return nil
}

// ExecuteQuery executes query
func (a *MySQLAdapter) ExecuteQuery(ctx context.Context, query string) (*QueryResult, error) {
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

		// Create scan targets
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		// Scan row
		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, err
		}

		// Build map
		row := make(map[string]interface{})
		for i, col := range columns {
			val := values[i]
			// Handle []byte type
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
func (a *MySQLAdapter) GetDatabaseType() string {
	return "MySQL"
}

// DryRunSQL validates SQL syntax via EXPLAIN without fetching rows. MySQL's
// plain EXPLAIN already reports the row-estimate plan the pipeline wants.
func (a *MySQLAdapter) DryRunSQL(ctx context.Context, query string) error {
	_, err := a.db.ExecContext(ctx, "EXPLAIN "+query)
	return err
}

// GetDatabaseVersion gets database version
func (a *MySQLAdapter) GetDatabaseVersion(ctx context.Context) (string, error) {
	result, err := a.ExecuteQuery(ctx, "SELECT VERSION() as version")
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
