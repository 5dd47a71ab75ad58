// Package store provides durable persistence for inbound emails, threat
// assessments and decision records.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// SQLiteStore is a SQLite implementation of core.EmailStore.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS emails (
	id TEXT PRIMARY KEY,
	message_id TEXT,
	sender TEXT,
	recipients TEXT,
	subject TEXT,
	source_ip TEXT,
	received_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS assessments (
	email_id TEXT PRIMARY KEY,
	threat_score REAL,
	threat_type TEXT,
	confidence REAL,
	payload TEXT,
	processed_at TIMESTAMP
);
CREATE TABLE IF NOT EXISTS decisions (
	id TEXT PRIMARY KEY,
	email_id TEXT,
	action TEXT,
	reason TEXT,
	actor TEXT,
	created_at TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_decisions_email ON decisions(email_id);
CREATE INDEX IF NOT EXISTS idx_decisions_action ON decisions(action, created_at);
`

// NewSQLiteStore opens the database and creates the schema.
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return &SQLiteStore{db: db, logger: logger}, nil
}

// SaveEmail persists the inbound email envelope. Attachment bytes and
// body content stay out of the audit store.
func (s *SQLiteStore) SaveEmail(ctx context.Context, email *core.InboundEmail) error {
	recipients, err := json.Marshal(email.Recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO emails (id, message_id, sender, recipients, subject, source_ip, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, email.ID, email.MessageID, email.Sender, string(recipients), email.Subject, email.SourceIP,
		email.ReceivedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert email: %w", err)
	}
	return nil
}

// SaveAssessment persists the combined assessment, with the full verdict
// tree as a JSON payload for audit.
func (s *SQLiteStore) SaveAssessment(ctx context.Context, assessment *core.CombinedThreatAssessment) error {
	payload, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO assessments (email_id, threat_score, threat_type, confidence, payload, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, assessment.EmailID, assessment.ThreatScore, assessment.ThreatType, assessment.Confidence,
		string(payload), assessment.ProcessedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

// SaveDecision appends a decision record. Records are insert-only.
func (s *SQLiteStore) SaveDecision(ctx context.Context, decision *core.DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, email_id, action, reason, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, decision.ID, decision.EmailID, string(decision.Action), decision.Reason, decision.Actor,
		decision.CreatedAt.Format(time.RFC3339))
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// GetAssessment fetches the stored assessment for an email.
func (s *SQLiteStore) GetAssessment(ctx context.Context, emailID string) (*core.CombinedThreatAssessment, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `
		SELECT payload FROM assessments WHERE email_id = ?
	`, emailID).Scan(&payload)
	if err == sql.ErrNoRows {
		return nil, core.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query assessment: %w", err)
	}

	var assessment core.CombinedThreatAssessment
	if err := json.Unmarshal([]byte(payload), &assessment); err != nil {
		return nil, fmt.Errorf("failed to unmarshal assessment: %w", err)
	}
	return &assessment, nil
}

// ListQuarantined returns the most recent quarantine decisions.
func (s *SQLiteStore) ListQuarantined(ctx context.Context, limit int) ([]core.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email_id, action, reason, actor, created_at
		FROM decisions WHERE action = ? ORDER BY created_at DESC LIMIT ?
	`, string(core.ActionQuarantine), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	return scanDecisions(rows)
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func scanDecisions(rows *sql.Rows) ([]core.DecisionRecord, error) {
	var decisions []core.DecisionRecord
	for rows.Next() {
		var d core.DecisionRecord
		var action, createdAt string
		if err := rows.Scan(&d.ID, &d.EmailID, &action, &d.Reason, &d.Actor, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Action = core.EmailAction(action)
		if t, err := time.Parse(time.RFC3339, createdAt); err == nil {
			d.CreatedAt = t
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}
