package recorder

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/anthanhphan/go-upload-gateway/internal/upload/port"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// PostgresRecorder persists final file records once an object reference
// exists. It owns no schema management beyond the insert.
type PostgresRecorder struct {
	db *sql.DB
}

// Ensure PostgresRecorder implements port.FileRecorder.
var _ port.FileRecorder = (*PostgresRecorder)(nil)

// Open connects to Postgres with the pgx driver and verifies the link.
func Open(ctx context.Context, dsn string) (*PostgresRecorder, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresRecorder{db: db}, nil
}

// NewWithDB wraps an existing connection, mainly for tests.
func NewWithDB(db *sql.DB) *PostgresRecorder {
	return &PostgresRecorder{db: db}
}

// CreateFileRecord inserts the file row and returns the generated id.
func (r *PostgresRecorder) CreateFileRecord(ctx context.Context, objectRef, fileName string, size int64, fileType, ownerID, folderID string) (string, error) {
	query := `
		INSERT INTO files (object_ref, file_name, file_size, file_type, owner_id, folder_id)
		VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''))
		RETURNING id;
	`
	var fileID string
	err := r.db.QueryRowContext(ctx, query, objectRef, fileName, size, fileType, ownerID, folderID).Scan(&fileID)
	if err != nil {
		return "", fmt.Errorf("insert file record: %w", err)
	}
	return fileID, nil
}

// Close releases the connection pool.
func (r *PostgresRecorder) Close() error {
	return r.db.Close()
}
