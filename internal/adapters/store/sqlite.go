package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

// SQLiteStore is a SQLite implementation of the reputation and feedback
// stores. SQLite serializes writers, which gives the per-key atomicity the
// store contract requires.
type SQLiteStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSQLiteStore opens (creating if needed) a SQLite-backed store
func NewSQLiteStore(dbPath string, logger *zap.Logger) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS sender_reputation (
			identity TEXT PRIMARY KEY,
			confirmed_count INTEGER NOT NULL DEFAULT 0,
			rejected_count INTEGER NOT NULL DEFAULT 0,
			last_updated TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS domain_reputation (
			identity TEXT PRIMARY KEY,
			confirmed_count INTEGER NOT NULL DEFAULT 0,
			rejected_count INTEGER NOT NULL DEFAULT 0,
			last_updated TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS user_feedback_senders (
			user_id TEXT NOT NULL,
			sender TEXT NOT NULL,
			verdict TEXT NOT NULL,
			PRIMARY KEY (user_id, sender)
		)`,
		`CREATE TABLE IF NOT EXISTS user_feedback_domains (
			user_id TEXT NOT NULL,
			domain TEXT NOT NULL,
			verdict TEXT NOT NULL,
			PRIMARY KEY (user_id, domain, verdict)
		)`,
	} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &SQLiteStore{db: db, logger: logger}, nil
}

// GetSender retrieves the reputation record for a sender
func (s *SQLiteStore) GetSender(ctx context.Context, sender string) (*core.Reputation, error) {
	return s.getReputation(ctx, "sender_reputation", strings.ToLower(sender))
}

// GetDomain retrieves the reputation record for a domain
func (s *SQLiteStore) GetDomain(ctx context.Context, domain string) (*core.Reputation, error) {
	return s.getReputation(ctx, "domain_reputation", strings.ToLower(domain))
}

func (s *SQLiteStore) getReputation(ctx context.Context, table, identity string) (*core.Reputation, error) {
	rep := &core.Reputation{}
	var lastUpdated string

	err := s.db.QueryRowContext(ctx, fmt.Sprintf(`
		SELECT identity, confirmed_count, rejected_count, last_updated
		FROM %s
		WHERE identity = ?
	`, table), identity).Scan(&rep.Identity, &rep.ConfirmedCount, &rep.RejectedCount, &lastUpdated)

	if err != nil {
		if err == sql.ErrNoRows {
			return nil, core.ErrNotFound
		}
		return nil, fmt.Errorf("failed to query %s: %w", table, err)
	}

	if t, err := time.Parse(time.RFC3339, lastUpdated); err == nil {
		rep.LastUpdated = t
	}
	return rep, nil
}

// RecordOutcome increments one counter on both the sender and domain rows
// inside a single transaction
func (s *SQLiteStore) RecordOutcome(ctx context.Context, sender, domain string, isNewsletter bool) error {
	confirmed, rejected := 0, 1
	if isNewsletter {
		confirmed, rejected = 1, 0
	}
	now := time.Now().Format(time.RFC3339)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO %s (identity, confirmed_count, rejected_count, last_updated)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			confirmed_count = confirmed_count + excluded.confirmed_count,
			rejected_count = rejected_count + excluded.rejected_count,
			last_updated = excluded.last_updated
	`
	if _, err := tx.ExecContext(ctx, fmt.Sprintf(upsert, "sender_reputation"),
		strings.ToLower(sender), confirmed, rejected, now); err != nil {
		return fmt.Errorf("failed to update sender reputation: %w", err)
	}
	if domain != "" {
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(upsert, "domain_reputation"),
			strings.ToLower(domain), confirmed, rejected, now); err != nil {
			return fmt.Errorf("failed to update domain reputation: %w", err)
		}
	}

	return tx.Commit()
}

// Get retrieves a user's feedback record; unknown users get an empty record
func (s *SQLiteStore) Get(ctx context.Context, userID string) (*core.UserFeedback, error) {
	return loadFeedback(ctx, s.db, userID)
}

// Update runs fn against the user's current record inside a transaction and
// rewrites the user's rows with the result
func (s *SQLiteStore) Update(ctx context.Context, userID string, fn func(*core.UserFeedback) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	fb, err := loadFeedback(ctx, tx, userID)
	if err != nil {
		return err
	}
	if err := fn(fb); err != nil {
		return err
	}
	if err := saveFeedback(ctx, tx, userID, fb); err != nil {
		return err
	}
	return tx.Commit()
}

// Close closes the underlying database
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// querier covers both *sql.DB and *sql.Tx
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func loadFeedback(ctx context.Context, q querier, userID string) (*core.UserFeedback, error) {
	fb := core.NewUserFeedback()

	rows, err := q.QueryContext(ctx, `
		SELECT sender, verdict FROM user_feedback_senders WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load sender feedback: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sender, verdict string
		if err := rows.Scan(&sender, &verdict); err != nil {
			return nil, err
		}
		if verdict == "confirmed" {
			fb.ConfirmedSenders[sender] = true
		} else {
			fb.RejectedSenders[sender] = true
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	domainRows, err := q.QueryContext(ctx, `
		SELECT domain, verdict FROM user_feedback_domains WHERE user_id = ?
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load domain feedback: %w", err)
	}
	defer domainRows.Close()
	for domainRows.Next() {
		var domain, verdict string
		if err := domainRows.Scan(&domain, &verdict); err != nil {
			return nil, err
		}
		if verdict == "trusted" {
			fb.TrustedDomains[domain] = true
		} else {
			fb.BlockedDomains[domain] = true
		}
	}
	return fb, domainRows.Err()
}

func saveFeedback(ctx context.Context, q querier, userID string, fb *core.UserFeedback) error {
	if _, err := q.ExecContext(ctx, `DELETE FROM user_feedback_senders WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear sender feedback: %w", err)
	}
	if _, err := q.ExecContext(ctx, `DELETE FROM user_feedback_domains WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear domain feedback: %w", err)
	}

	insertSender := `INSERT INTO user_feedback_senders (user_id, sender, verdict) VALUES (?, ?, ?)`
	for sender := range fb.ConfirmedSenders {
		if _, err := q.ExecContext(ctx, insertSender, userID, sender, "confirmed"); err != nil {
			return fmt.Errorf("failed to save sender feedback: %w", err)
		}
	}
	for sender := range fb.RejectedSenders {
		if _, err := q.ExecContext(ctx, insertSender, userID, sender, "rejected"); err != nil {
			return fmt.Errorf("failed to save sender feedback: %w", err)
		}
	}

	insertDomain := `INSERT INTO user_feedback_domains (user_id, domain, verdict) VALUES (?, ?, ?)`
	for domain := range fb.TrustedDomains {
		if _, err := q.ExecContext(ctx, insertDomain, userID, domain, "trusted"); err != nil {
			return fmt.Errorf("failed to save domain feedback: %w", err)
		}
	}
	for domain := range fb.BlockedDomains {
		if _, err := q.ExecContext(ctx, insertDomain, userID, domain, "blocked"); err != nil {
			return fmt.Errorf("failed to save domain feedback: %w", err)
		}
	}
	return nil
}
