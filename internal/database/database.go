// Package database opens the SQL databases used by the definition source
// and the trace store, and runs dialect-aware queries against them.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/vk/botgraph/internal/config"
	"github.com/vk/botgraph/internal/ctxlog"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Query is a named SQL statement. PostgresQuery and SQLiteQuery override
// Query for their dialect.
type Query struct {
	ID            string
	Query         string
	PostgresQuery string
	SQLiteQuery   string
}

// For returns the statement text for a database type.
func (q Query) For(dbType string) string {
	switch {
	case dbType == config.DBPostgres && q.PostgresQuery != "":
		return q.PostgresQuery
	case dbType == config.DBSQLite && q.SQLiteQuery != "":
		return q.SQLiteQuery
	}
	return q.Query
}

// Client runs queries against one database.
type Client struct {
	db     *sql.DB
	dbType string
}

// NewClient wraps an open database.
func NewClient(db *sql.DB, dbType string) *Client {
	return &Client{db: db, dbType: dbType}
}

// DSN returns the driver name and data source name for ds.
func DSN(ds config.DataSource) (string, string, error) {
	switch ds.Type {
	case config.DBPostgres:
		sslmode := ds.SSLMode
		if sslmode == "" {
			sslmode = "disable"
		}
		port := ds.Port
		if port == 0 {
			port = 5432
		}
		return "postgres", fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			ds.Hostname, port, ds.Username, ds.Password, ds.Name, sslmode), nil
	case config.DBSQLite:
		options := ds.Options
		if options != "" && options[0] != '?' {
			options = "?" + options
		}
		return "sqlite", ds.Path + options, nil
	}
	return "", "", fmt.Errorf("unsupported database type: %s", ds.Type)
}

// Open connects to the database described by ds and verifies the
// connection.
func Open(ctx context.Context, ds config.DataSource) (*Client, error) {
	driver, dsn, err := DSN(ds)
	if err != nil {
		return nil, err
	}
	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", ds.Type, err)
	}
	if err := db.PingContext(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			return nil, fmt.Errorf("failed to ping %s database: %w (close error: %w)", ds.Type, err, closeErr)
		}
		return nil, fmt.Errorf("failed to ping %s database: %w", ds.Type, err)
	}
	if ds.Type == config.DBSQLite {
		// One writer at a time; concurrent sqlite writers fail with SQLITE_BUSY.
		db.SetMaxOpenConns(1)
	}
	ctxlog.FromContext(ctx).Debug("Database opened.", "type", ds.Type)
	return NewClient(db, ds.Type), nil
}

// Type returns the database type.
func (c *Client) Type() string { return c.dbType }

// Query runs a statement that returns rows. Each row is a map keyed by the
// lowercased column name.
func (c *Client) Query(ctx context.Context, q Query, args ...any) ([]map[string]any, error) {
	logger := ctxlog.FromContext(ctx)
	logger.Debug("Executing query.", "query", q.ID)

	rows, err := c.db.QueryContext(ctx, q.For(c.dbType), args...)
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.ID, err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logger.Error("Error closing rows.", "query", q.ID, "error", closeErr)
		}
	}()

	columns, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("query %s: %w", q.ID, err)
	}

	var results []map[string]any
	for rows.Next() {
		row := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range row {
			ptrs[i] = &row[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("query %s: %w", q.ID, err)
		}
		result := make(map[string]any, len(columns))
		for i, col := range columns {
			result[strings.ToLower(col)] = row[i]
		}
		results = append(results, result)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query %s: %w", q.ID, err)
	}
	return results, nil
}

// Execute runs a statement without rows and returns the affected row count.
func (c *Client) Execute(ctx context.Context, q Query, args ...any) (int64, error) {
	ctxlog.FromContext(ctx).Debug("Executing statement.", "query", q.ID)
	res, err := c.db.ExecContext(ctx, q.For(c.dbType), args...)
	if err != nil {
		return 0, fmt.Errorf("execute %s: %w", q.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("execute %s: %w", q.ID, err)
	}
	return n, nil
}

// Close closes the database.
func (c *Client) Close() error { return c.db.Close() }

// AsString converts a scanned column value to a string. Drivers return
// text columns as either string or []byte.
func AsString(v any) string {
	switch s := v.(type) {
	case nil:
		return ""
	case string:
		return s
	case []byte:
		return string(s)
	}
	return fmt.Sprint(v)
}
