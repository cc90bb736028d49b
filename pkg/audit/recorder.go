package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/platinummonkey/ledgerlock/pkg/observability"
)

// Recorder appends entries to the audit trail.
//
// Record is fire-and-forget: a failed write is logged locally and never fails
// the primary operation. RecordTx writes inside a caller-owned transaction
// for the call sites where the audit entry must be atomic with the state
// change it documents (key rotation, role changes, ownership transfer).
type Recorder interface {
	Record(ctx context.Context, e *Entry)
	RecordTx(ctx context.Context, tx *sql.Tx, e *Entry) error
}

// PostgresRecorder persists audit entries to the audit_logs table.
type PostgresRecorder struct {
	db     *sql.DB
	logger *observability.Logger
}

// NewPostgresRecorder creates a recorder backed by db.
func NewPostgresRecorder(db *sql.DB, logger *observability.Logger) *PostgresRecorder {
	return &PostgresRecorder{db: db, logger: logger}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

const insertQuery = `
	INSERT INTO audit_logs (id, organization_id, user_id, action, resource_type, resource_id, details, ip_address, user_agent, created_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
`

func insert(ctx context.Context, ex execer, e *Entry) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.Details == nil {
		e.Details = map[string]any{}
	}

	detailsJSON, err := json.Marshal(e.Details)
	if err != nil {
		return fmt.Errorf("failed to marshal details: %w", err)
	}

	var ip interface{}
	if e.IPAddress != "" {
		ip = e.IPAddress
	}

	_, err = ex.ExecContext(ctx, insertQuery,
		e.ID, e.OrganizationID, e.UserID, e.Action, nullableString(string(e.ResourceType)),
		e.ResourceID, detailsJSON, ip, nullableString(e.UserAgent), e.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert audit log: %w", err)
	}
	return nil
}

// Record appends an entry outside any transaction. Failures are logged and
// swallowed so they cannot fail the operation being audited.
func (r *PostgresRecorder) Record(ctx context.Context, e *Entry) {
	if err := insert(ctx, r.db, e); err != nil {
		observability.AuditWriteFailures.Inc()
		r.logger.WithError(err).WithField("action", string(e.Action)).Error("audit write failed")
	}
}

// RecordTx appends an entry inside tx. The caller's transaction rolls back the
// entry together with the mutation if either fails.
func (r *PostgresRecorder) RecordTx(ctx context.Context, tx *sql.Tx, e *Entry) error {
	return insert(ctx, tx, e)
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

// NopRecorder discards everything. Used in tests and as a default when no
// recorder is wired.
type NopRecorder struct{}

func (NopRecorder) Record(ctx context.Context, e *Entry) {}

func (NopRecorder) RecordTx(ctx context.Context, tx *sql.Tx, e *Entry) error { return nil }
