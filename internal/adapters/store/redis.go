package store

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

// RedisStore implements the reputation and feedback stores on Redis.
// Counters use hash increments, which are atomic per key; feedback set
// rewrites are serialized per user with local keyed mutexes.
type RedisStore struct {
	client *redis.Client
	logger *zap.Logger

	mu    sync.Mutex
	users map[string]*sync.Mutex
}

// NewRedisStore connects to Redis and verifies the connection
func NewRedisStore(addr, password string, db int, logger *zap.Logger) (*RedisStore, error) {
	if addr == "" {
		addr = "localhost:6379"
	}

	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{
		client: client,
		logger: logger,
		users:  make(map[string]*sync.Mutex),
	}, nil
}

func senderKey(sender string) string {
	return "newsletter:rep:sender:" + strings.ToLower(sender)
}

func domainKey(domain string) string {
	return "newsletter:rep:domain:" + strings.ToLower(domain)
}

func feedbackKey(userID, set string) string {
	return "newsletter:fb:" + userID + ":" + set
}

// GetSender retrieves the reputation record for a sender
func (s *RedisStore) GetSender(ctx context.Context, sender string) (*core.Reputation, error) {
	return s.getReputation(ctx, senderKey(sender), strings.ToLower(sender))
}

// GetDomain retrieves the reputation record for a domain
func (s *RedisStore) GetDomain(ctx context.Context, domain string) (*core.Reputation, error) {
	return s.getReputation(ctx, domainKey(domain), strings.ToLower(domain))
}

func (s *RedisStore) getReputation(ctx context.Context, key, identity string) (*core.Reputation, error) {
	fields, err := s.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read reputation hash: %w", err)
	}
	if len(fields) == 0 {
		return nil, core.ErrNotFound
	}

	rep := &core.Reputation{Identity: identity}
	rep.ConfirmedCount, _ = strconv.ParseUint(fields["confirmed"], 10, 64)
	rep.RejectedCount, _ = strconv.ParseUint(fields["rejected"], 10, 64)
	if raw, ok := fields["last_updated"]; ok {
		if t, err := time.Parse(time.RFC3339, raw); err == nil {
			rep.LastUpdated = t
		}
	}
	return rep, nil
}

// RecordOutcome increments one counter on both the sender and domain hashes
// in a single pipeline
func (s *RedisStore) RecordOutcome(ctx context.Context, sender, domain string, isNewsletter bool) error {
	field := "rejected"
	if isNewsletter {
		field = "confirmed"
	}
	now := time.Now().Format(time.RFC3339)

	pipe := s.client.TxPipeline()
	pipe.HIncrBy(ctx, senderKey(sender), field, 1)
	pipe.HSet(ctx, senderKey(sender), "last_updated", now)
	if domain != "" {
		pipe.HIncrBy(ctx, domainKey(domain), field, 1)
		pipe.HSet(ctx, domainKey(domain), "last_updated", now)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to record outcome: %w", err)
	}
	return nil
}

// Get retrieves a user's feedback record; unknown users get an empty record
func (s *RedisStore) Get(ctx context.Context, userID string) (*core.UserFeedback, error) {
	fb := core.NewUserFeedback()
	for set, target := range map[string]map[string]bool{
		"confirmed_senders": fb.ConfirmedSenders,
		"rejected_senders":  fb.RejectedSenders,
		"trusted_domains":   fb.TrustedDomains,
		"blocked_domains":   fb.BlockedDomains,
	} {
		members, err := s.client.SMembers(ctx, feedbackKey(userID, set)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read feedback set %s: %w", set, err)
		}
		for _, member := range members {
			target[member] = true
		}
	}
	return fb, nil
}

// Update runs fn on the user's current record under a per-user lock and
// rewrites the feedback sets with the result
func (s *RedisStore) Update(ctx context.Context, userID string, fn func(*core.UserFeedback) error) error {
	lock := s.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	fb, err := s.Get(ctx, userID)
	if err != nil {
		return err
	}
	if err := fn(fb); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	for set, source := range map[string]map[string]bool{
		"confirmed_senders": fb.ConfirmedSenders,
		"rejected_senders":  fb.RejectedSenders,
		"trusted_domains":   fb.TrustedDomains,
		"blocked_domains":   fb.BlockedDomains,
	} {
		key := feedbackKey(userID, set)
		pipe.Del(ctx, key)
		if len(source) > 0 {
			members := make([]interface{}, 0, len(source))
			for member := range source {
				members = append(members, member)
			}
			pipe.SAdd(ctx, key, members...)
		}
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	return nil
}

func (s *RedisStore) userLock(userID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.users[userID]
	if !ok {
		lock = &sync.Mutex{}
		s.users[userID] = lock
	}
	return lock
}

// Close closes the Redis client
func (s *RedisStore) Close() error {
	return s.client.Close()
}
