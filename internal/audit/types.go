package audit

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
)

// Record is one persisted anonymization call. Raw text is never stored;
// entities are kept as SHA-256 digests.
type Record struct {
	ID          int64     `db:"id" json:"id"`
	RequestID   string    `db:"request_id" json:"request_id"`
	Strategy    string    `db:"strategy" json:"strategy"`
	Language    string    `db:"language" json:"language"`
	InputLength int       `db:"input_length" json:"input_length"`
	EntityCount int       `db:"entity_count" json:"entity_count"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	Entities    []Entity  `db:"-" json:"entities,omitempty"`
}

// Entity is the audited form of one explanation
type Entity struct {
	AuditID     int64  `db:"audit_id" json:"-"`
	Position    int    `db:"position" json:"position"`
	Digest      string `db:"entity_digest" json:"entity_digest"`
	Method      string `db:"method" json:"method"`
	Type        string `db:"type" json:"type"`
	Replacement string `db:"replacement" json:"replacement"`
}

// Stats summarises the audit trail
type Stats struct {
	TotalRequests int64            `json:"total_requests"`
	TotalEntities int64            `json:"total_entities"`
	ByStrategy    map[string]int64 `json:"by_strategy"`
}

// NewRecord converts an anonymization result into its audited form
func NewRecord(requestID, strategy, language string, result anonymizer.Result) *Record {
	rec := &Record{
		RequestID:   requestID,
		Strategy:    strategy,
		Language:    language,
		InputLength: len(result.Original),
		EntityCount: len(result.Explanations),
		Entities:    make([]Entity, 0, len(result.Explanations)),
	}
	for i, e := range result.Explanations {
		rec.Entities = append(rec.Entities, Entity{
			Position:    i,
			Digest:      Digest(e.Entity),
			Method:      string(e.Method),
			Type:        e.Type,
			Replacement: e.Replacement,
		})
	}
	return rec
}

// Digest returns the hex SHA-256 of an entity surface text
func Digest(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}
