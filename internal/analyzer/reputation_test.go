package analyzer

import (
	"context"
	"testing"

	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/adapters/store"
	"github.com/inboxkit/newsletter-detector/internal/core"
	"github.com/inboxkit/newsletter-detector/internal/providers"
)

func newReputationFixture(t *testing.T) (*ReputationAnalyzer, *store.MemoryStore) {
	t.Helper()
	logger := zap.NewNop()
	mem := store.NewMemoryStore(logger)
	list := providers.NewList([]string{"mailchimp.com"}, logger)
	return NewReputationAnalyzer(0.2, mem, list, logger), mem
}

func fromEmail(sender string) *core.Email {
	return &core.Email{
		ID:      "test",
		Payload: &core.EmailPayload{Headers: []core.Header{{Name: "From", Value: sender}}},
	}
}

func record(t *testing.T, mem *store.MemoryStore, sender, domain string, confirmed, rejected int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < confirmed; i++ {
		if err := mem.RecordOutcome(ctx, sender, domain, true); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}
	for i := 0; i < rejected; i++ {
		if err := mem.RecordOutcome(ctx, sender, domain, false); err != nil {
			t.Fatalf("RecordOutcome failed: %v", err)
		}
	}
}

func TestReputationAnalyzerUnknownSender(t *testing.T) {
	a, _ := newReputationFixture(t)

	score, err := a.Analyze(context.Background(), fromEmail("stranger@example.com"), nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if score.Score != 0.5 || score.Confidence != 0.3 {
		t.Errorf("unknown sender scored (%v, %v), want (0.5, 0.3)", score.Score, score.Confidence)
	}
}

func TestReputationAnalyzerNoSender(t *testing.T) {
	a, _ := newReputationFixture(t)

	score, err := a.Analyze(context.Background(), &core.Email{ID: "blank"}, nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if score.Score != 0.5 || score.Confidence != 0.3 {
		t.Errorf("senderless email scored (%v, %v), want (0.5, 0.3)", score.Score, score.Confidence)
	}
}

func TestReputationAnalyzerSenderHistory(t *testing.T) {
	a, mem := newReputationFixture(t)
	record(t, mem, "news@example.com", "example.com", 3, 1)

	score, err := a.Analyze(context.Background(), fromEmail("news@example.com"), nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	// Score tracks the confirmed ratio; confidence grows with sample size
	if !almostEqual(score.Score, 0.75) {
		t.Errorf("score = %v, want 0.75", score.Score)
	}
	if !almostEqual(score.Confidence, 0.9) {
		t.Errorf("confidence = %v, want 0.9 for 4 observations", score.Confidence)
	}
	if score.Metadata["level"] != "sender" {
		t.Errorf("level = %q, want sender", score.Metadata["level"])
	}
}

func TestReputationAnalyzerSingleObservationLowConfidence(t *testing.T) {
	a, mem := newReputationFixture(t)
	record(t, mem, "once@example.com", "example.com", 1, 0)

	score, err := a.Analyze(context.Background(), fromEmail("once@example.com"), nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !almostEqual(score.Confidence, 0.3) {
		t.Errorf("confidence = %v, want 0.3 for a single observation", score.Confidence)
	}
	if !almostEqual(score.Score, 1.0) {
		t.Errorf("score = %v, want 1.0", score.Score)
	}
}

func TestReputationAnalyzerDomainFallback(t *testing.T) {
	a, mem := newReputationFixture(t)
	// History exists for other senders in the domain, not this one
	record(t, mem, "other@bulk.example.com", "bulk.example.com", 6, 4)

	score, err := a.Analyze(context.Background(), fromEmail("fresh@bulk.example.com"), nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !almostEqual(score.Score, 0.6) {
		t.Errorf("score = %v, want the domain ratio 0.6", score.Score)
	}
	// 0.4 + 10/20 caps at 0.8
	if !almostEqual(score.Confidence, 0.8) {
		t.Errorf("confidence = %v, want 0.8", score.Confidence)
	}
	if score.Metadata["level"] != "domain" {
		t.Errorf("level = %q, want domain", score.Metadata["level"])
	}
}

func TestReputationAnalyzerProviderListFallback(t *testing.T) {
	a, _ := newReputationFixture(t)

	score, err := a.Analyze(context.Background(), fromEmail("campaign@mailchimp.com"), nil)
	if err != nil {
		t.Fatalf("Analyze failed: %v", err)
	}
	if !almostEqual(score.Score, 0.8) || !almostEqual(score.Confidence, 0.7) {
		t.Errorf("provider-list hit scored (%v, %v), want (0.8, 0.7)", score.Score, score.Confidence)
	}
	if score.Metadata["level"] != "provider_list" {
		t.Errorf("level = %q, want provider_list", score.Metadata["level"])
	}
}

func TestIsDomainNewsletterProvider(t *testing.T) {
	a, mem := newReputationFixture(t)
	ctx := context.Background()

	// Static list wins regardless of history
	if ok, err := a.IsDomainNewsletterProvider(ctx, "mailchimp.com"); err != nil || !ok {
		t.Errorf("static provider = (%v, %v), want (true, nil)", ok, err)
	}

	// Exactly at the boundary: total 5, ratio exactly 0.6 does not qualify
	record(t, mem, "a@edge.example.com", "edge.example.com", 3, 2)
	if ok, err := a.IsDomainNewsletterProvider(ctx, "edge.example.com"); err != nil || ok {
		t.Errorf("ratio exactly 0.6 = (%v, %v), want (false, nil)", ok, err)
	}

	record(t, mem, "a@solid.example.com", "solid.example.com", 4, 1)
	if ok, err := a.IsDomainNewsletterProvider(ctx, "solid.example.com"); err != nil || !ok {
		t.Errorf("ratio 0.8 over 5 = (%v, %v), want (true, nil)", ok, err)
	}

	// Enough ratio but not enough volume
	record(t, mem, "a@thin.example.com", "thin.example.com", 3, 0)
	if ok, err := a.IsDomainNewsletterProvider(ctx, "thin.example.com"); err != nil || ok {
		t.Errorf("total 3 = (%v, %v), want (false, nil)", ok, err)
	}

	if ok, err := a.IsDomainNewsletterProvider(ctx, "unknown.example.com"); err != nil || ok {
		t.Errorf("unknown domain = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestIsSenderNewsletterProvider(t *testing.T) {
	a, mem := newReputationFixture(t)
	ctx := context.Background()

	record(t, mem, "news@indie.example.com", "indie.example.com", 3, 0)
	if ok, err := a.IsSenderNewsletterProvider(ctx, "news@indie.example.com"); err != nil || !ok {
		t.Errorf("established sender = (%v, %v), want (true, nil)", ok, err)
	}

	// A sender with thin history falls through to its domain
	if ok, err := a.IsSenderNewsletterProvider(ctx, "fresh@mailchimp.com"); err != nil || !ok {
		t.Errorf("sender on provider domain = (%v, %v), want (true, nil)", ok, err)
	}

	if ok, err := a.IsSenderNewsletterProvider(ctx, "bob@personal.example.com"); err != nil || ok {
		t.Errorf("unknown sender = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestGetSenderConfidenceScore(t *testing.T) {
	a, mem := newReputationFixture(t)
	ctx := context.Background()

	if got, err := a.GetSenderConfidenceScore(ctx, "nobody@example.com"); err != nil || got != 0.5 {
		t.Errorf("unseen sender = (%v, %v), want (0.5, nil)", got, err)
	}

	record(t, mem, "news@example.com", "example.com", 4, 1)
	if got, err := a.GetSenderConfidenceScore(ctx, "news@example.com"); err != nil || !almostEqual(got, 0.8) {
		t.Errorf("observed sender = (%v, %v), want (0.8, nil)", got, err)
	}
}

func TestUpdateSenderReputation(t *testing.T) {
	a, mem := newReputationFixture(t)
	ctx := context.Background()

	if err := a.UpdateSenderReputation(ctx, "news@example.com", true); err != nil {
		t.Fatalf("UpdateSenderReputation failed: %v", err)
	}

	rep, err := mem.GetSender(ctx, "news@example.com")
	if err != nil {
		t.Fatalf("GetSender failed: %v", err)
	}
	if rep.ConfirmedCount != 1 || rep.RejectedCount != 0 {
		t.Errorf("sender counters = (%d, %d), want (1, 0)", rep.ConfirmedCount, rep.RejectedCount)
	}
	if _, err := mem.GetDomain(ctx, "example.com"); err != nil {
		t.Errorf("domain record missing: %v", err)
	}
}
