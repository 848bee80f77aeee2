// Package db keeps the area-of-interest export log in DuckDB.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/marcboeker/go-duckdb"
)

// Config holds database configuration. An empty DataDir opens an in-memory
// database.
type Config struct {
	DataDir string
	DBName  string
}

var schema = []string{
	`CREATE SEQUENCE IF NOT EXISTS aoi_exports_seq`,
	`CREATE TABLE IF NOT EXISTS aoi_exports (
	id         BIGINT PRIMARY KEY DEFAULT nextval('aoi_exports_seq'),
	session    VARCHAR NOT NULL,
	filename   VARCHAR NOT NULL,
	bytes      INTEGER NOT NULL,
	vertices   INTEGER NOT NULL,
	area_km2   DOUBLE NOT NULL,
	h3_cells   INTEGER NOT NULL,
	created_at TIMESTAMP NOT NULL
)`,
}

// Entry is one row of the export log.
type Entry struct {
	ID        int64     `json:"id" doc:"Log sequence number"`
	Session   string    `json:"session" doc:"Viewer session that exported"`
	Filename  string    `json:"filename" doc:"Download file name" example:"area-selection.kml"`
	Bytes     int       `json:"bytes" doc:"Size of the KML document"`
	Vertices  int       `json:"vertices" doc:"Outer ring vertex count"`
	AreaKm2   float64   `json:"areaKm2" doc:"Geodesic area in square kilometres"`
	H3Cells   int       `json:"h3Cells" doc:"H3 cells covering the area"`
	CreatedAt time.Time `json:"createdAt" doc:"Export time (UTC)"`
}

// ExportLog records completed exports.
type ExportLog struct {
	db *sql.DB
}

// Open opens (creating if needed) the export log database.
func Open(cfg Config) (*ExportLog, error) {
	dsn := ""
	if cfg.DataDir != "" {
		duckdbDir := filepath.Join(cfg.DataDir, "duckdb")
		if err := os.MkdirAll(duckdbDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create duckdb directory: %w", err)
		}
		name := cfg.DBName
		if name == "" {
			name = "viewer"
		}
		dsn = filepath.Join(duckdbDir, name+".duckdb")
	}

	conn, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("db: open: %w", err)
	}
	for _, stmt := range schema {
		if _, err := conn.Exec(stmt); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("db: migrate: %w", err)
		}
	}
	return &ExportLog{db: conn}, nil
}

// Close closes the database connection.
func (l *ExportLog) Close() error {
	return l.db.Close()
}

// Record appends e. CreatedAt defaults to now.
func (l *ExportLog) Record(ctx context.Context, e Entry) error {
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	_, err := l.db.ExecContext(ctx,
		`INSERT INTO aoi_exports (session, filename, bytes, vertices, area_km2, h3_cells, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		e.Session, e.Filename, e.Bytes, e.Vertices, e.AreaKm2, e.H3Cells, e.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("db: record export: %w", err)
	}
	return nil
}

// Recent returns up to limit entries after skipping offset, newest first.
func (l *ExportLog) Recent(ctx context.Context, offset, limit int) ([]Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT id, session, filename, bytes, vertices, area_km2, h3_cells, created_at
		 FROM aoi_exports ORDER BY id DESC LIMIT ? OFFSET ?`, limit, max(offset, 0))
	if err != nil {
		return nil, fmt.Errorf("db: recent exports: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.ID, &e.Session, &e.Filename, &e.Bytes, &e.Vertices, &e.AreaKm2, &e.H3Cells, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("db: scan export: %w", err)
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// Count returns the number of logged exports.
func (l *ExportLog) Count(ctx context.Context) (int, error) {
	var n int
	if err := l.db.QueryRowContext(ctx, `SELECT count(*) FROM aoi_exports`).Scan(&n); err != nil {
		return 0, fmt.Errorf("db: count exports: %w", err)
	}
	return n, nil
}
