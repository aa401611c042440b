package store

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

func TestMemoryStoreRecordOutcome(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	if _, err := s.GetSender(ctx, "news@example.com"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unseen sender, got %v", err)
	}

	if err := s.RecordOutcome(ctx, "news@example.com", "example.com", true); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if err := s.RecordOutcome(ctx, "news@example.com", "example.com", false); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	sender, err := s.GetSender(ctx, "news@example.com")
	if err != nil {
		t.Fatalf("GetSender failed: %v", err)
	}
	if sender.ConfirmedCount != 1 || sender.RejectedCount != 1 {
		t.Errorf("sender counters = (%d, %d), want (1, 1)", sender.ConfirmedCount, sender.RejectedCount)
	}
	if sender.LastUpdated.IsZero() {
		t.Error("LastUpdated should be stamped")
	}

	// Both levels move together
	domain, err := s.GetDomain(ctx, "example.com")
	if err != nil {
		t.Fatalf("GetDomain failed: %v", err)
	}
	if domain.ConfirmedCount != 1 || domain.RejectedCount != 1 {
		t.Errorf("domain counters = (%d, %d), want (1, 1)", domain.ConfirmedCount, domain.RejectedCount)
	}
}

func TestMemoryStoreCaseInsensitive(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	if err := s.RecordOutcome(ctx, "News@Example.COM", "Example.COM", true); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}
	if _, err := s.GetSender(ctx, "news@example.com"); err != nil {
		t.Errorf("lookup with lowercased sender failed: %v", err)
	}
	if _, err := s.GetDomain(ctx, "EXAMPLE.com"); err != nil {
		t.Errorf("lookup with mixed-case domain failed: %v", err)
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	if err := s.RecordOutcome(ctx, "news@example.com", "example.com", true); err != nil {
		t.Fatalf("RecordOutcome failed: %v", err)
	}

	rep, _ := s.GetSender(ctx, "news@example.com")
	rep.ConfirmedCount = 99

	again, _ := s.GetSender(ctx, "news@example.com")
	if again.ConfirmedCount != 1 {
		t.Error("mutating a returned record must not affect the store")
	}
}

func TestMemoryStoreSeedDomain(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	s.SeedDomain("Substack.com", 8, 2)
	rep, err := s.GetDomain(ctx, "substack.com")
	if err != nil {
		t.Fatalf("GetDomain failed: %v", err)
	}
	if rep.ConfirmedCount != 8 || rep.RejectedCount != 2 {
		t.Errorf("seeded counters = (%d, %d), want (8, 2)", rep.ConfirmedCount, rep.RejectedCount)
	}

	// Seeding never overwrites observed history
	s.SeedDomain("substack.com", 100, 0)
	rep, _ = s.GetDomain(ctx, "substack.com")
	if rep.ConfirmedCount != 8 {
		t.Error("SeedDomain must not replace an existing record")
	}
}

func TestMemoryStoreFeedbackLifecycle(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	// Unknown users get an empty record, not an error
	fb, err := s.Get(ctx, "u1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if len(fb.ConfirmedSenders) != 0 {
		t.Error("fresh feedback record should be empty")
	}

	update := func(sender string, isNewsletter bool) {
		t.Helper()
		err := s.Update(ctx, "u1", func(fb *core.UserFeedback) error {
			fb.RecordSender(sender, core.DomainOf(sender), isNewsletter)
			return nil
		})
		if err != nil {
			t.Fatalf("Update failed: %v", err)
		}
	}

	update("a@bulk.example.com", true)
	update("b@bulk.example.com", true)
	update("c@bulk.example.com", true)

	fb, _ = s.Get(ctx, "u1")
	if !fb.TrustedDomains["bulk.example.com"] {
		t.Error("domain should be trusted after three confirmed senders")
	}

	// Reversing one sender moves it between sets
	update("a@bulk.example.com", false)
	fb, _ = s.Get(ctx, "u1")
	if fb.ConfirmedSenders["a@bulk.example.com"] {
		t.Error("sender should have left the confirmed set")
	}
	if !fb.RejectedSenders["a@bulk.example.com"] {
		t.Error("sender should be in the rejected set")
	}

	// Snapshots taken before an update stay stable
	before, _ := s.Get(ctx, "u1")
	update("d@bulk.example.com", true)
	if before.ConfirmedSenders["d@bulk.example.com"] {
		t.Error("earlier snapshot must not observe later updates")
	}
}

func TestMemoryStoreUpdateError(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	wantErr := errors.New("rejected")
	err := s.Update(ctx, "u1", func(fb *core.UserFeedback) error {
		fb.ConfirmedSenders["x@example.com"] = true
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("Update error = %v, want %v", err, wantErr)
	}

	// A failed update leaves no trace
	fb, _ := s.Get(ctx, "u1")
	if fb.ConfirmedSenders["x@example.com"] {
		t.Error("failed update must not be visible")
	}
}

func TestMemoryStoreConcurrentOutcomes(t *testing.T) {
	s := NewMemoryStore(zap.NewNop())
	ctx := context.Background()

	const writers = 8
	const perWriter = 25

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				_ = s.RecordOutcome(ctx, "news@example.com", "example.com", true)
			}
		}()
	}
	wg.Wait()

	rep, err := s.GetSender(ctx, "news@example.com")
	if err != nil {
		t.Fatalf("GetSender failed: %v", err)
	}
	if rep.ConfirmedCount != writers*perWriter {
		t.Errorf("confirmed count = %d, want %d", rep.ConfirmedCount, writers*perWriter)
	}
}

func TestMemoryEmailIndex(t *testing.T) {
	idx := NewMemoryEmailIndex(3)
	ctx := context.Background()

	for i := 1; i <= 4; i++ {
		email := &core.Email{ID: fmt.Sprintf("e%d", i)}
		if err := idx.Put(ctx, email); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	// Oldest entry evicted once the window is full
	if _, err := idx.Get(ctx, "e1"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("expected e1 to be evicted, got %v", err)
	}
	for _, id := range []string{"e2", "e3", "e4"} {
		if _, err := idx.Get(ctx, id); err != nil {
			t.Errorf("Get(%s) failed: %v", id, err)
		}
	}

	// Re-putting an existing ID does not consume a slot
	if err := idx.Put(ctx, &core.Email{ID: "e4"}); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if _, err := idx.Get(ctx, "e2"); err != nil {
		t.Errorf("e2 should survive a duplicate Put: %v", err)
	}

	// Nil and ID-less emails are ignored
	if err := idx.Put(ctx, nil); err != nil {
		t.Errorf("Put(nil) = %v, want nil", err)
	}
	if err := idx.Put(ctx, &core.Email{}); err != nil {
		t.Errorf("Put of ID-less email = %v, want nil", err)
	}
}
