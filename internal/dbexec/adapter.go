// Package dbexec executes compiled SQL against a configured dialect
// (MySQL, PostgreSQL, SQLite) or, when no live database is configured,
// against a deterministic MockExecutor — adapted from the dialect
// adapters the surrounding codebase already carried, generalized to the
// plan-execution contract the pipeline needs: cost estimation before
// running anything, and post-execution data-quality checks on whatever
// comes back.
package dbexec

import (
	"context"
	"time"
)

// Dialect names a supported SQL dialect.
type Dialect string

const (
	MySQL      Dialect = "mysql"
	PostgreSQL Dialect = "postgresql"
	SQLite     Dialect = "sqlite"
)

// Executor runs SQL text against a database and reports what came back.
// Implementations only ever see already-compiled SQL; none of them parse
// or validate it beyond what the underlying driver does.
type Executor interface {
	Connect(ctx context.Context) error
	Close() error

	// ExecuteQuery runs query and returns at most MaxRows rows, setting
	// Truncated when more were available.
	ExecuteQuery(ctx context.Context, query string) (*QueryResult, error)

	// GetDatabaseType reports the dialect name, e.g. "MySQL".
	GetDatabaseType() string

	// GetDatabaseVersion reports the server version string, if available.
	GetDatabaseVersion(ctx context.Context) (string, error)

	// DryRunSQL validates query's syntax against the dialect without
	// fetching a result set.
	DryRunSQL(ctx context.Context, query string) error
}

// QueryResult is the unified shape every Executor returns.
type QueryResult struct {
	Columns       []string
	Rows          []map[string]interface{}
	RowCount      int
	ExecutionTime int64 // milliseconds
	Error         string

	// Truncated is set when the live backend returned more rows than
	// MaxRows and the adapter stopped scanning rather than buffer all of
	// them, mirroring the same ceiling EstimateCost enforces up front.
	Truncated bool
}

// DBConfig configures a live Executor. ConnectTimeout and ReadTimeout are
// applied the way each dialect actually exposes them: MySQL accepts both
// as DSN parameters, PostgreSQL takes ConnectTimeout as a libpq option and
// ReadTimeout as a session-level statement_timeout, and SQLite (no network
// round-trip at all) maps ConnectTimeout onto its busy_timeout pragma,
// which is the closest thing it has to a connection deadline.
type DBConfig struct {
	Type     string
	Host     string
	Port     int
	Database string
	User     string
	Password string

	FilePath string // SQLite only

	MaxOpenConns   int
	MaxIdleConns   int
	ConnectTimeout time.Duration
	ReadTimeout    time.Duration
}

// NewExecutor builds a live Executor from cfg.
func NewExecutor(cfg *DBConfig) (Executor, error) {
	switch cfg.Type {
	case "mysql":
		return NewMySQLAdapter(&MySQLConfig{
			Host:           cfg.Host,
			Port:           cfg.Port,
			Database:       cfg.Database,
			User:           cfg.User,
			Password:       cfg.Password,
			MaxOpenConns:   cfg.MaxOpenConns,
			MaxIdleConns:   cfg.MaxIdleConns,
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    cfg.ReadTimeout,
		}), nil
	case "postgresql":
		return NewPostgreSQLAdapter(&PostgreSQLConfig{
			Host:           cfg.Host,
			Port:           cfg.Port,
			Database:       cfg.Database,
			User:           cfg.User,
			Password:       cfg.Password,
			MaxOpenConns:   cfg.MaxOpenConns,
			MaxIdleConns:   cfg.MaxIdleConns,
			ConnectTimeout: cfg.ConnectTimeout,
			ReadTimeout:    cfg.ReadTimeout,
		}), nil
	case "sqlite":
		return NewSQLiteAdapter(&SQLiteConfig{
			FilePath:    cfg.FilePath,
			BusyTimeout: cfg.ConnectTimeout,
		}), nil
	default:
		return nil, &UnsupportedDatabaseError{Type: cfg.Type}
	}
}

// UnsupportedDatabaseError reports an unrecognized DBConfig.Type.
type UnsupportedDatabaseError struct {
	Type string
}

func (e *UnsupportedDatabaseError) Error() string {
	return "dbexec: unsupported database type: " + e.Type
}
