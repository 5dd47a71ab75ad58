package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/mikey/email-gateway/internal/core"
)

// MySQLStore is a MySQL implementation of core.EmailStore.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

var mysqlSchema = []string{
	`CREATE TABLE IF NOT EXISTS emails (
		id VARCHAR(36) PRIMARY KEY,
		message_id VARCHAR(255),
		sender VARCHAR(255),
		recipients TEXT,
		subject TEXT,
		source_ip VARCHAR(45),
		received_at TIMESTAMP NULL
	)`,
	`CREATE TABLE IF NOT EXISTS assessments (
		email_id VARCHAR(36) PRIMARY KEY,
		threat_score DOUBLE,
		threat_type VARCHAR(64),
		confidence DOUBLE,
		payload MEDIUMTEXT,
		processed_at TIMESTAMP NULL
	)`,
	`CREATE TABLE IF NOT EXISTS decisions (
		id VARCHAR(36) PRIMARY KEY,
		email_id VARCHAR(36),
		action VARCHAR(16),
		reason TEXT,
		actor VARCHAR(64),
		created_at TIMESTAMP NULL,
		INDEX idx_decisions_email (email_id),
		INDEX idx_decisions_action (action, created_at)
	)`,
}

// NewMySQLStore connects to MySQL and creates the schema.
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL connection: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	for _, stmt := range mysqlSchema {
		if _, err := db.Exec(stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return &MySQLStore{db: db, logger: logger}, nil
}

// SaveEmail persists the inbound email envelope.
func (s *MySQLStore) SaveEmail(ctx context.Context, email *core.InboundEmail) error {
	recipients, err := json.Marshal(email.Recipients)
	if err != nil {
		return fmt.Errorf("failed to marshal recipients: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		REPLACE INTO emails (id, message_id, sender, recipients, subject, source_ip, received_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`, email.ID, email.MessageID, email.Sender, string(recipients), email.Subject, email.SourceIP,
		email.ReceivedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert email: %w", err)
	}
	return nil
}

// SaveAssessment persists the combined assessment.
func (s *MySQLStore) SaveAssessment(ctx context.Context, assessment *core.CombinedThreatAssessment) error {
	payload, err := json.Marshal(assessment)
	if err != nil {
		return fmt.Errorf("failed to marshal assessment: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		REPLACE INTO assessments (email_id, threat_score, threat_type, confidence, payload, processed_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, assessment.EmailID, assessment.ThreatScore, assessment.ThreatType, assessment.Confidence,
		string(payload), assessment.ProcessedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert assessment: %w", err)
	}
	return nil
}

// SaveDecision appends a decision record.
func (s *MySQLStore) SaveDecision(ctx context.Context, decision *core.DecisionRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO decisions (id, email_id, action, reason, actor, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, decision.ID, decision.EmailID, string(decision.Action), decision.Reason, decision.Actor,
		decision.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert decision: %w", err)
	}
	return nil
}

// GetAssessment fetches the stored assessment for an email.
func (s *MySQLStore) GetAssessment(ctx context.Context, emailID string) (*core.CombinedThreatAssessment, error) {
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
func (s *MySQLStore) ListQuarantined(ctx context.Context, limit int) ([]core.DecisionRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, email_id, action, reason, actor, created_at
		FROM decisions WHERE action = ? ORDER BY created_at DESC LIMIT ?
	`, string(core.ActionQuarantine), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query decisions: %w", err)
	}
	defer rows.Close()

	var decisions []core.DecisionRecord
	for rows.Next() {
		var d core.DecisionRecord
		var action string
		if err := rows.Scan(&d.ID, &d.EmailID, &action, &d.Reason, &d.Actor, &d.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan decision: %w", err)
		}
		d.Action = core.EmailAction(action)
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// Close closes the database.
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
