package core

import (
	"context"
	"errors"
)

// ErrNotFound is returned by stores when no record exists for a key
var ErrNotFound = errors.New("record not found")

// Analyzer scores one email from a single evidence source. Implementations
// must be safe for concurrent use; the ensemble fans them out in parallel.
type Analyzer interface {
	// Method identifies which detection method this analyzer implements
	Method() DetectionMethod

	// Weight returns the analyzer's configured default weight
	Weight() float64

	// Analyze produces a detection score for the email. The feedback
	// snapshot is nil when no per-user context is available.
	Analyze(ctx context.Context, email *Email, feedback *UserFeedback) (*DetectionScore, error)
}

// ReputationStore persists confirmed/rejected counters per sender and domain
type ReputationStore interface {
	// GetSender retrieves the reputation record for a sender address,
	// or ErrNotFound
	GetSender(ctx context.Context, sender string) (*Reputation, error)

	// GetDomain retrieves the reputation record for a domain, or ErrNotFound
	GetDomain(ctx context.Context, domain string) (*Reputation, error)

	// RecordOutcome increments exactly one counter on both the sender and
	// its domain record, atomically together per key
	RecordOutcome(ctx context.Context, sender, domain string, isNewsletter bool) error
}

// FeedbackStore persists per-user explicit feedback sets
type FeedbackStore interface {
	// Get retrieves a user's feedback record; an empty record is returned
	// for unknown users
	Get(ctx context.Context, userID string) (*UserFeedback, error)

	// Update runs fn against the user's current record under per-user
	// serialization and persists the result
	Update(ctx context.Context, userID string, fn func(*UserFeedback) error) error
}

// EmailIndex keeps recently analyzed emails addressable by ID so that later
// feedback events can resolve the sender
type EmailIndex interface {
	// Put records an email for later lookup
	Put(ctx context.Context, email *Email) error

	// Get retrieves a recorded email by ID, or ErrNotFound
	Get(ctx context.Context, id string) (*Email, error)
}
