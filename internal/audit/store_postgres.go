package audit

import (
	"context"
	"database/sql"
	"fmt"

	// Registers the "postgres" driver.
	_ "github.com/lib/pq"
)

// PostgresStore appends audit entries to a table. The table is append-only;
// retention and rotation are handled outside the process.
type PostgresStore struct {
	db *sql.DB
}

// OpenPostgres connects with lib/pq and verifies the connection.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

// NewPostgresStore wraps an existing connection pool.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, entry Entry) error {
	const query = `
		INSERT INTO audit_entries
			(sequence, request_id, subject, operation, outcome, detail, recorded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.db.ExecContext(ctx, query,
		entry.Sequence,
		entry.RequestID,
		entry.Subject,
		entry.Operation,
		string(entry.Outcome),
		entry.Detail,
		entry.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// Close releases the underlying pool.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}
