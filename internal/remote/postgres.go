package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	_ "github.com/lib/pq"

	"github.com/meridianapps/resilience-core/internal/model"
)

// AuditStore is the authoritative remote audit log. All operations are
// best-effort from the Core's point of view; errors are handled by callers,
// never surfaced to signal sources.
type AuditStore interface {
	Insert(ctx context.Context, record model.AuditRecord) error
	RecentInterventions(ctx context.Context, limit int) ([]model.AuditRecord, error)
	Close() error
}

// PostgresStore implements AuditStore against the shared tenant audit_log
// table.
type PostgresStore struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewPostgresStore opens and pings the audit database.
func NewPostgresStore(host, port, user, password, dbname string, logger *slog.Logger) (*PostgresStore, error) {
	dsn := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=disable",
		host, port, user, password, dbname)

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	return &PostgresStore{db: db, logger: logger}, nil
}

// Close closes the database connection.
func (s *PostgresStore) Close() error {
	return s.db.Close()
}

// Insert appends one audit row. Rows are append-only; conflicts on id are
// ignored so a retried write stays idempotent.
func (s *PostgresStore) Insert(ctx context.Context, record model.AuditRecord) error {
	metadata, err := json.Marshal(record.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata: %w", err)
	}

	query := `
		INSERT INTO audit_log (id, actor_id, action, entity_type, metadata, severity, source, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING
	`
	actor := sql.NullString{String: record.ActorID, Valid: record.ActorID != ""}
	_, err = s.db.ExecContext(ctx, query,
		record.ID, actor, record.Action, record.EntityType,
		metadata, string(record.Severity), record.Source, record.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}
	return nil
}

// RecentInterventions returns the most recent security_intervention rows,
// newest first.
func (s *PostgresStore) RecentInterventions(ctx context.Context, limit int) ([]model.AuditRecord, error) {
	query := `
		SELECT id, actor_id, action, entity_type, metadata, severity, source, created_at
		FROM audit_log
		WHERE entity_type = $1
		ORDER BY created_at DESC
		LIMIT $2
	`
	rows, err := s.db.QueryContext(ctx, query, model.EntityTypeSecurityIntervention, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	defer rows.Close()

	var records []model.AuditRecord
	for rows.Next() {
		var rec model.AuditRecord
		var actor sql.NullString
		var metadata []byte
		var severity string

		if err := rows.Scan(&rec.ID, &actor, &rec.Action, &rec.EntityType,
			&metadata, &severity, &rec.Source, &rec.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit record: %w", err)
		}
		rec.ActorID = actor.String
		rec.Severity = model.Severity(severity)
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &rec.Metadata); err != nil {
				s.logger.Warn("skipping malformed audit metadata", "id", rec.ID, "error", err)
			}
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return records, nil
}
