package index

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

// DefaultTable is the table read by the postgres backend when none is configured.
const DefaultTable = "face_embeddings"

// pqUndefinedTable is the PostgreSQL error code for a missing relation.
const pqUndefinedTable = "42P01"

// loadPostgres reads every (id, embedding) row of table once and serves them from
// memory with the flat scan. Rows must carry the dense ids 0..N-1.
func loadPostgres(ctx context.Context, dsn, table string, metric Metric, dim int) (*flatIndex, error) {
	if dsn == "" {
		return nil, errors.New("postgres index source requires a DSN")
	}

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("%w: postgres source unreachable: %w", ErrIndexFileNotFound, err)
	}

	query := "SELECT id, embedding FROM " + pq.QuoteIdentifier(table) + " ORDER BY id"
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUndefinedTable {
			return nil, fmt.Errorf("%w: table %s", ErrIndexFileNotFound, table)
		}
		return nil, fmt.Errorf("query embeddings: %w", err)
	}
	defer rows.Close()

	var data []float32
	next := int64(0)
	for rows.Next() {
		var id int64
		var vec pgvector.Vector
		if err := rows.Scan(&id, &vec); err != nil {
			return nil, corruptf("table %s: scan row %d: %v", table, next, err)
		}
		if id != next {
			return nil, corruptf("table %s: ids are not dense, expected %d got %d", table, next, id)
		}
		s := vec.Slice()
		if len(s) != dim {
			return nil, corruptf("table %s: row %d has dimension %d, configured %d", table, id, len(s), dim)
		}
		data = append(data, s...)
		next++
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate embeddings: %w", err)
	}

	return newFlatIndex(metric, dim, data), nil
}
