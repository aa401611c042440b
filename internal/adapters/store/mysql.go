package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

// MySQLStore is a MySQL implementation of the reputation and feedback stores.
// Row-level locking inside each transaction gives per-key atomicity.
type MySQLStore struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewMySQLStore connects to MySQL and creates the schema if needed
func NewMySQLStore(dsn string, logger *zap.Logger) (*MySQLStore, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to MySQL database: %w", err)
	}

	for _, ddl := range []string{
		`CREATE TABLE IF NOT EXISTS sender_reputation (
			identity VARCHAR(320) PRIMARY KEY,
			confirmed_count BIGINT UNSIGNED NOT NULL DEFAULT 0,
			rejected_count BIGINT UNSIGNED NOT NULL DEFAULT 0,
			last_updated TIMESTAMP NULL
		)`,
		`CREATE TABLE IF NOT EXISTS domain_reputation (
			identity VARCHAR(255) PRIMARY KEY,
			confirmed_count BIGINT UNSIGNED NOT NULL DEFAULT 0,
			rejected_count BIGINT UNSIGNED NOT NULL DEFAULT 0,
			last_updated TIMESTAMP NULL
		)`,
		`CREATE TABLE IF NOT EXISTS user_feedback_senders (
			user_id VARCHAR(128) NOT NULL,
			sender VARCHAR(320) NOT NULL,
			verdict VARCHAR(16) NOT NULL,
			PRIMARY KEY (user_id, sender)
		)`,
		`CREATE TABLE IF NOT EXISTS user_feedback_domains (
			user_id VARCHAR(128) NOT NULL,
			domain VARCHAR(255) NOT NULL,
			verdict VARCHAR(16) NOT NULL,
			PRIMARY KEY (user_id, domain, verdict)
		)`,
	} {
		if _, err := db.Exec(ddl); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to create schema: %w", err)
		}
	}

	return &MySQLStore{db: db, logger: logger}, nil
}

// GetSender retrieves the reputation record for a sender
func (s *MySQLStore) GetSender(ctx context.Context, sender string) (*core.Reputation, error) {
	return s.getReputation(ctx, "sender_reputation", strings.ToLower(sender))
}

// GetDomain retrieves the reputation record for a domain
func (s *MySQLStore) GetDomain(ctx context.Context, domain string) (*core.Reputation, error) {
	return s.getReputation(ctx, "domain_reputation", strings.ToLower(domain))
}

func (s *MySQLStore) getReputation(ctx context.Context, table, identity string) (*core.Reputation, error) {
	rep := &core.Reputation{}
	var lastUpdated sql.NullTime

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

	if lastUpdated.Valid {
		rep.LastUpdated = lastUpdated.Time
	}
	return rep, nil
}

// RecordOutcome increments one counter on both the sender and domain rows
// inside a single transaction
func (s *MySQLStore) RecordOutcome(ctx context.Context, sender, domain string, isNewsletter bool) error {
	confirmed, rejected := 0, 1
	if isNewsletter {
		confirmed, rejected = 1, 0
	}
	now := time.Now()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	upsert := `
		INSERT INTO %s (identity, confirmed_count, rejected_count, last_updated)
		VALUES (?, ?, ?, ?)
		ON DUPLICATE KEY UPDATE
			confirmed_count = confirmed_count + VALUES(confirmed_count),
			rejected_count = rejected_count + VALUES(rejected_count),
			last_updated = VALUES(last_updated)
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
func (s *MySQLStore) Get(ctx context.Context, userID string) (*core.UserFeedback, error) {
	return loadFeedback(ctx, s.db, userID)
}

// Update runs fn against the user's current record inside a transaction and
// rewrites the user's rows with the result
func (s *MySQLStore) Update(ctx context.Context, userID string, fn func(*core.UserFeedback) error) error {
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
func (s *MySQLStore) Close() error {
	return s.db.Close()
}
