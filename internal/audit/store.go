package audit

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/logger"
)

const schema = `
CREATE TABLE IF NOT EXISTS anonymization_audit (
	id           BIGSERIAL PRIMARY KEY,
	request_id   TEXT NOT NULL,
	strategy     TEXT NOT NULL,
	language     TEXT NOT NULL,
	input_length INTEGER NOT NULL,
	entity_count INTEGER NOT NULL,
	created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE TABLE IF NOT EXISTS audit_entities (
	audit_id      BIGINT NOT NULL REFERENCES anonymization_audit(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	entity_digest TEXT NOT NULL,
	method        TEXT NOT NULL,
	type          TEXT NOT NULL,
	replacement   TEXT NOT NULL,
	PRIMARY KEY (audit_id, position)
);
CREATE INDEX IF NOT EXISTS idx_anonymization_audit_created_at ON anonymization_audit (created_at DESC);`

// Store persists the anonymization audit trail in PostgreSQL
type Store struct {
	db     *sqlx.DB
	logger *logger.Logger
}

// NewStore connects to PostgreSQL and ensures the audit schema exists
func NewStore(cfg config.AuditConfig, log *logger.Logger) (*Store, error) {
	db, err := sqlx.Connect("postgres", cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(cfg.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	db.SetConnMaxIdleTime(cfg.ConnMaxIdleTime)

	store := &Store{db: db, logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := store.EnsureSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	log.Info("Audit store initialized",
		zap.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
		zap.Int("max_open_conns", cfg.MaxOpenConns),
		zap.Int("max_idle_conns", cfg.MaxIdleConns))

	return store, nil
}

// EnsureSchema creates the audit tables if missing
func (s *Store) EnsureSchema(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create audit schema: %w", err)
	}
	return nil
}

// Insert stores rec and its entities in one transaction
func (s *Store) Insert(ctx context.Context, rec *Record) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin audit transaction: %w", err)
	}
	defer tx.Rollback()

	err = tx.QueryRowxContext(ctx, `
		INSERT INTO anonymization_audit (request_id, strategy, language, input_length, entity_count)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		rec.RequestID, rec.Strategy, rec.Language, rec.InputLength, rec.EntityCount,
	).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert audit record: %w", err)
	}

	if len(rec.Entities) > 0 {
		query, args := entityInsert(rec.ID, rec.Entities)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert audit entities: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit audit record: %w", err)
	}

	s.logger.Debug("Audit record stored",
		zap.Int64("id", rec.ID),
		zap.String("request_id", rec.RequestID),
		zap.Int("entities", rec.EntityCount))

	return nil
}

// entityInsert builds a multi-row insert for entities
func entityInsert(auditID int64, entities []Entity) (string, []interface{}) {
	const columns = 6
	valueStrings := make([]string, 0, len(entities))
	args := make([]interface{}, 0, len(entities)*columns)

	for i, e := range entities {
		base := i * columns
		valueStrings = append(valueStrings, fmt.Sprintf("($%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6))
		args = append(args, auditID, e.Position, e.Digest, e.Method, e.Type, e.Replacement)
	}

	query := fmt.Sprintf(`
		INSERT INTO audit_entities (audit_id, position, entity_digest, method, type, replacement)
		VALUES %s`, strings.Join(valueStrings, ","))
	return query, args
}

// Recent returns the latest audit records with their entities
func (s *Store) Recent(ctx context.Context, limit int) ([]*Record, error) {
	var records []*Record
	err := s.db.SelectContext(ctx, &records, `
		SELECT id, request_id, strategy, language, input_length, entity_count, created_at
		FROM anonymization_audit
		ORDER BY created_at DESC, id DESC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit records: %w", err)
	}
	if len(records) == 0 {
		return records, nil
	}

	byID := make(map[int64]*Record, len(records))
	ids := make([]int64, 0, len(records))
	for _, r := range records {
		byID[r.ID] = r
		ids = append(ids, r.ID)
	}

	query, args, err := sqlx.In(`
		SELECT audit_id, position, entity_digest, method, type, replacement
		FROM audit_entities
		WHERE audit_id IN (?)
		ORDER BY audit_id, position`, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to build entity query: %w", err)
	}

	var entities []Entity
	if err := s.db.SelectContext(ctx, &entities, s.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to query audit entities: %w", err)
	}
	for _, e := range entities {
		if r, ok := byID[e.AuditID]; ok {
			r.Entities = append(r.Entities, e)
		}
	}

	return records, nil
}

// GetStats returns aggregate audit statistics
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{ByStrategy: make(map[string]int64)}

	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*), COALESCE(SUM(entity_count), 0)
		FROM anonymization_audit`,
	).Scan(&stats.TotalRequests, &stats.TotalEntities)
	if err != nil {
		return nil, fmt.Errorf("failed to get audit stats: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT strategy, COUNT(*)
		FROM anonymization_audit
		GROUP BY strategy`)
	if err != nil {
		return nil, fmt.Errorf("failed to get strategy stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var strategy string
		var count int64
		if err := rows.Scan(&strategy, &count); err != nil {
			s.logger.Error("Failed to scan strategy stats", zap.Error(err))
			continue
		}
		stats.ByStrategy[strategy] = count
	}

	return stats, rows.Err()
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// maskDatabaseURL hides the password of a database URL for logging
func maskDatabaseURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "invalid-url"
	}
	return u.Redacted()
}
