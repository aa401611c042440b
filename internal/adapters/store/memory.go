package store

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

// MemoryStore is an in-memory implementation of the reputation and feedback
// stores. Mutations take the write lock, which preserves the per-key atomic
// read-modify-write contract.
type MemoryStore struct {
	mu       sync.RWMutex
	senders  map[string]*core.Reputation
	domains  map[string]*core.Reputation
	feedback map[string]*core.UserFeedback
	logger   *zap.Logger
}

// NewMemoryStore creates an empty in-memory store
func NewMemoryStore(logger *zap.Logger) *MemoryStore {
	return &MemoryStore{
		senders:  make(map[string]*core.Reputation),
		domains:  make(map[string]*core.Reputation),
		feedback: make(map[string]*core.UserFeedback),
		logger:   logger,
	}
}

// SeedDomain installs prior counters for a domain if none exist yet; used to
// pre-load known newsletter providers
func (s *MemoryStore) SeedDomain(domain string, confirmed, rejected uint64) {
	domain = strings.ToLower(domain)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.domains[domain]; ok {
		return
	}
	s.domains[domain] = &core.Reputation{
		Identity:       domain,
		ConfirmedCount: confirmed,
		RejectedCount:  rejected,
		LastUpdated:    time.Now(),
	}
}

// GetSender retrieves the reputation record for a sender
func (s *MemoryStore) GetSender(ctx context.Context, sender string) (*core.Reputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.senders[strings.ToLower(sender)]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *rep
	return &copied, nil
}

// GetDomain retrieves the reputation record for a domain
func (s *MemoryStore) GetDomain(ctx context.Context, domain string) (*core.Reputation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rep, ok := s.domains[strings.ToLower(domain)]
	if !ok {
		return nil, core.ErrNotFound
	}
	copied := *rep
	return &copied, nil
}

// RecordOutcome increments one counter on the sender record and its domain
// record together
func (s *MemoryStore) RecordOutcome(ctx context.Context, sender, domain string, isNewsletter bool) error {
	sender = strings.ToLower(sender)
	domain = strings.ToLower(domain)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.increment(s.senders, sender, isNewsletter, now)
	if domain != "" {
		s.increment(s.domains, domain, isNewsletter, now)
	}
	return nil
}

func (s *MemoryStore) increment(records map[string]*core.Reputation, identity string, isNewsletter bool, now time.Time) {
	rep, ok := records[identity]
	if !ok {
		rep = &core.Reputation{Identity: identity}
		records[identity] = rep
	}
	if isNewsletter {
		rep.ConfirmedCount++
	} else {
		rep.RejectedCount++
	}
	rep.LastUpdated = now
}

// Get retrieves a user's feedback record; unknown users get an empty record
func (s *MemoryStore) Get(ctx context.Context, userID string) (*core.UserFeedback, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	fb, ok := s.feedback[userID]
	if !ok {
		return core.NewUserFeedback(), nil
	}
	return fb.Clone(), nil
}

// Update runs fn against a copy of the user's record and swaps the result in
func (s *MemoryStore) Update(ctx context.Context, userID string, fn func(*core.UserFeedback) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.feedback[userID]
	if !ok {
		current = core.NewUserFeedback()
	}
	next := current.Clone()
	if err := fn(next); err != nil {
		return err
	}
	s.feedback[userID] = next
	return nil
}

// MemoryEmailIndex keeps a bounded window of recently analyzed emails so
// that feedback events can resolve senders; it is always in-memory, whatever
// backend the stores use
type MemoryEmailIndex struct {
	mu     sync.RWMutex
	emails map[string]*core.Email
	order  []string
	max    int
}

// NewMemoryEmailIndex creates an email index; max 0 means the default of 1024
func NewMemoryEmailIndex(max int) *MemoryEmailIndex {
	if max <= 0 {
		max = 1024
	}
	return &MemoryEmailIndex{
		emails: make(map[string]*core.Email),
		max:    max,
	}
}

// Put records an email, evicting the oldest entry once the index is full
func (x *MemoryEmailIndex) Put(ctx context.Context, email *core.Email) error {
	if email == nil || email.ID == "" {
		return nil
	}

	x.mu.Lock()
	defer x.mu.Unlock()

	if _, ok := x.emails[email.ID]; !ok {
		x.order = append(x.order, email.ID)
		if len(x.order) > x.max {
			oldest := x.order[0]
			x.order = x.order[1:]
			delete(x.emails, oldest)
		}
	}
	x.emails[email.ID] = email
	return nil
}

// Get retrieves a recorded email by ID
func (x *MemoryEmailIndex) Get(ctx context.Context, id string) (*core.Email, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()

	email, ok := x.emails[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return email, nil
}
