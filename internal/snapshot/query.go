package snapshot

import (
	"context"
	"database/sql"
	"fmt"
	"sync"
	"sync/atomic"

	_ "github.com/marcboeker/go-duckdb"

	"github.com/xtxerr/feedoracle/internal/validation"
)

// QueryService runs SQL over exported snapshot files with an in-memory
// DuckDB database.
type QueryService struct {
	mu sync.RWMutex
	db *sql.DB

	queries atomic.Int64
	rows    atomic.Int64
	errors  atomic.Int64
}

// QueryStats holds query statistics.
type QueryStats struct {
	QueriesExecuted int64
	RowsReturned    int64
	Errors          int64
}

// NewQueryService opens an in-memory DuckDB database.
func NewQueryService() (*QueryService, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}
	return &QueryService{db: db}, nil
}

// Close closes the database.
func (s *QueryService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db != nil {
		err := s.db.Close()
		s.db = nil
		return err
	}
	return nil
}

// Table returns a FROM-clause expression reading the Parquet file(s) at
// path. Glob patterns are accepted.
func Table(path string) string {
	return "read_parquet(" + validation.QuoteSQLString(path) + ")"
}

// Query executes a SQL query and returns each row as a column map.
func (s *QueryService) Query(ctx context.Context, query string, args ...any) ([]map[string]interface{}, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.db == nil {
		return nil, fmt.Errorf("query service is closed")
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		s.errors.Add(1)
		return nil, err
	}
	defer rows.Close()

	columns, err := rows.Columns()
	if err != nil {
		return nil, err
	}

	var results []map[string]interface{}
	for rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			s.errors.Add(1)
			return nil, err
		}

		row := make(map[string]interface{}, len(columns))
		for i, col := range columns {
			row[col] = values[i]
		}
		results = append(results, row)
	}

	s.queries.Add(1)
	s.rows.Add(int64(len(results)))
	return results, rows.Err()
}

// Latest returns the stored value of every feed of type t in the snapshot
// file(s) at path, ordered by slot.
func (s *QueryService) Latest(ctx context.Context, path string, t int32) ([]map[string]interface{}, error) {
	q := `SELECT feed_name, params, value, timestamp FROM ` + Table(path) +
		` WHERE feed_type = ? ORDER BY slot`
	return s.Query(ctx, q, t)
}

// Stats returns query statistics.
func (s *QueryService) Stats() QueryStats {
	return QueryStats{
		QueriesExecuted: s.queries.Load(),
		RowsReturned:    s.rows.Load(),
		Errors:          s.errors.Load(),
	}
}
