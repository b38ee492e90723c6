package feedback

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"argus/core"
	"argus/detect"
	"argus/metrics"

	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

const candidateSchema = `
CREATE TABLE IF NOT EXISTS candidate_rules (
	id           TEXT PRIMARY KEY,
	title        TEXT NOT NULL,
	document     TEXT NOT NULL,
	status       TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
	submitted_at TEXT NOT NULL,
	decided_at   TEXT
);
CREATE INDEX IF NOT EXISTS idx_candidate_rules_status ON candidate_rules(status, submitted_at);
`

// sqliteTimeLayout is fixed width so that stored times sort as text
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore keeps candidates in a SQLite table with a status column.
// Approving also writes the document into the rules directory.
type SQLiteStore struct {
	db       *sql.DB
	rulesDir string
	logger   *zap.SugaredLogger
	now      func() time.Time
}

// NewSQLiteStore opens (creating if needed) the database at dbPath
func NewSQLiteStore(dbPath, rulesDir string, logger *zap.SugaredLogger) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	if err := os.MkdirAll(rulesDir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create rules directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}
	// single writer; the store is low volume
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000"} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("failed to configure SQLite (%s): %w", pragma, err)
		}
	}
	if _, err := db.Exec(candidateSchema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to create candidate schema: %w", err)
	}

	logger.Infow("Candidate rule store opened", "path", dbPath)
	return &SQLiteStore{db: db, rulesDir: rulesDir, logger: logger, now: time.Now}, nil
}

// Submit stores rule as pending. Resubmitting an ID replaces a pending
// document and leaves a decided one untouched.
func (s *SQLiteStore) Submit(ctx context.Context, rule *core.RuleDefinition) (string, error) {
	if err := validateRuleID(rule.ID); err != nil {
		return "", err
	}
	now := s.now().UTC()
	doc, err := EncodeRule(rule, now)
	if err != nil {
		return "", err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO candidate_rules (id, title, document, status, submitted_at)
		VALUES (?, ?, ?, 'pending', ?)
		ON CONFLICT(id) DO UPDATE SET title = excluded.title, document = excluded.document
		WHERE candidate_rules.status = 'pending'`,
		rule.ID, rule.Title, string(doc), now.Format(sqliteTimeLayout))
	if err != nil {
		return "", fmt.Errorf("failed to store candidate %s: %w", rule.ID, err)
	}
	s.logger.Infow("Rule submitted for review", "rule_id", rule.ID)
	metrics.CandidateRules.WithLabelValues(StatusPending).Inc()
	return rule.ID, nil
}

// Approve marks a pending rule approved and writes it into the rules
// directory. The status only changes when the file was written.
func (s *SQLiteStore) Approve(ctx context.Context, id string) (bool, error) {
	if err := validateRuleID(id); err != nil {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var doc string
	err = tx.QueryRowContext(ctx, `SELECT document FROM candidate_rules WHERE id = ? AND status = 'pending'`, id).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		s.logger.Warnw("Rule not pending", "rule_id", id)
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read candidate %s: %w", id, err)
	}

	if err := writeFileAtomic(filepath.Join(s.rulesDir, ruleFileName(id)), []byte(doc)); err != nil {
		return false, fmt.Errorf("failed to activate rule %s: %w", id, err)
	}
	if err := s.decide(ctx, tx, id, StatusApproved); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit approval of %s: %w", id, err)
	}

	s.logger.Infow("Rule approved and activated", "rule_id", id)
	metrics.CandidateRules.WithLabelValues(StatusApproved).Inc()
	return true, nil
}

// Reject marks a pending rule rejected
func (s *SQLiteStore) Reject(ctx context.Context, id string) (bool, error) {
	if err := validateRuleID(id); err != nil {
		return false, err
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE candidate_rules SET status = 'rejected', decided_at = ? WHERE id = ? AND status = 'pending'`,
		s.now().UTC().Format(sqliteTimeLayout), id)
	if err != nil {
		return false, fmt.Errorf("failed to reject %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n == 0 {
		s.logger.Warnw("Rule not pending", "rule_id", id)
		return false, nil
	}
	s.logger.Warnw("Rule rejected", "rule_id", id)
	metrics.CandidateRules.WithLabelValues(StatusRejected).Inc()
	return true, nil
}

func (s *SQLiteStore) decide(ctx context.Context, tx *sql.Tx, id, status string) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE candidate_rules SET status = ?, decided_at = ? WHERE id = ?`,
		status, s.now().UTC().Format(sqliteTimeLayout), id)
	if err != nil {
		return fmt.Errorf("failed to mark %s %s: %w", id, status, err)
	}
	return nil
}

// ListPending returns pending IDs in submission order
func (s *SQLiteStore) ListPending(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM candidate_rules WHERE status = 'pending' ORDER BY submitted_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rules: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Pending returns the parsed pending rules in submission order
func (s *SQLiteStore) Pending(ctx context.Context) ([]*core.RuleDefinition, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, document FROM candidate_rules WHERE status = 'pending' ORDER BY submitted_at, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending rules: %w", err)
	}
	defer rows.Close()

	var rules []*core.RuleDefinition
	for rows.Next() {
		var id, doc string
		if err := rows.Scan(&id, &doc); err != nil {
			return nil, err
		}
		rule, err := detect.ParseRuleDocument([]byte(doc))
		if err != nil {
			s.logger.Warnw("Pending rule does not parse", "rule_id", id, "error", err)
			continue
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// Status returns the lifecycle state of id
func (s *SQLiteStore) Status(ctx context.Context, id string) (string, bool, error) {
	var status string
	err := s.db.QueryRowContext(ctx, `SELECT status FROM candidate_rules WHERE id = ?`, id).Scan(&status)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return status, true, nil
}

// Close closes the database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
