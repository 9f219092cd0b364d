package metadata

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/kozaktomas/lookalike/internal/index"
	_ "github.com/lib/pq"
)

// DefaultTable is the table read by LoadSQL when none is configured.
const DefaultTable = "face_metadata"

// Supported SQL drivers.
const (
	DriverPostgres = "postgres"
	DriverMySQL    = "mysql"
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// LoadSQL reads every row of table once. Expected columns:
// id (integer), face_location (JSON array), full_photo_filename (text), data (JSON object).
func LoadSQL(ctx context.Context, driver, dsn, table string) (*Store, error) {
	if driver != DriverPostgres && driver != DriverMySQL {
		return nil, fmt.Errorf("unsupported metadata driver %q (supported: postgres, mysql)", driver)
	}
	if dsn == "" {
		return nil, errors.New("metadata DSN is required")
	}
	if table == "" {
		table = DefaultTable
	}
	if !tableNamePattern.MatchString(table) {
		return nil, fmt.Errorf("invalid metadata table name %q", table)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}
	defer db.Close()

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		return nil, fmt.Errorf("failed to ping %s: %w", driver, err)
	}

	query := "SELECT id, face_location, full_photo_filename, data FROM " + table
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query metadata: %w", err)
	}
	defer rows.Close()

	records := make(map[index.ID]Record)
	for rows.Next() {
		var (
			id       int64
			location []byte
			filename string
			data     []byte
		)
		if err := rows.Scan(&id, &location, &filename, &data); err != nil {
			return nil, fmt.Errorf("scan metadata row: %w", err)
		}
		if id < 0 || id > int64(^uint32(0)) {
			return nil, fmt.Errorf("%w: %d", ErrInvalidKey, id)
		}
		if _, dup := records[index.ID(id)]; dup {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrInvalidKey, id)
		}

		rec := Record{FullPhotoFilename: filename}
		if len(location) > 0 {
			if err := json.Unmarshal(location, &rec.FaceLocation); err != nil {
				return nil, fmt.Errorf("row %d: parse face_location: %w", id, err)
			}
		}
		if len(data) > 0 {
			if err := json.Unmarshal(data, &rec.Data); err != nil {
				return nil, fmt.Errorf("row %d: parse data: %w", id, err)
			}
		}
		records[index.ID(id)] = rec
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate metadata: %w", err)
	}

	return NewStore(records), nil
}
