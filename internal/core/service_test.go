package core

import (
	"context"
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
)

// stubAnalyzer returns a fixed score, error, or panic
type stubAnalyzer struct {
	method DetectionMethod
	score  *DetectionScore
	err    error
	panics bool
}

func (a *stubAnalyzer) Method() DetectionMethod { return a.method }
func (a *stubAnalyzer) Weight() float64         { return 0 }

func (a *stubAnalyzer) Analyze(_ context.Context, _ *Email, _ *UserFeedback) (*DetectionScore, error) {
	if a.panics {
		panic("boom")
	}
	return a.score, a.err
}

// fakeStores keeps everything in maps with no locking; service tests are
// single-user
type fakeStores struct {
	mu       sync.Mutex
	senders  map[string]*Reputation
	domains  map[string]*Reputation
	feedback map[string]*UserFeedback
	emails   map[string]*Email
}

func newFakeStores() *fakeStores {
	return &fakeStores{
		senders:  make(map[string]*Reputation),
		domains:  make(map[string]*Reputation),
		feedback: make(map[string]*UserFeedback),
		emails:   make(map[string]*Email),
	}
}

func (s *fakeStores) GetSender(_ context.Context, sender string) (*Reputation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rep, ok := s.senders[sender]; ok {
		return rep, nil
	}
	return nil, ErrNotFound
}

func (s *fakeStores) GetDomain(_ context.Context, domain string) (*Reputation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rep, ok := s.domains[domain]; ok {
		return rep, nil
	}
	return nil, ErrNotFound
}

func (s *fakeStores) RecordOutcome(_ context.Context, sender, domain string, isNewsletter bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, m := range map[string]map[string]*Reputation{sender: s.senders, domain: s.domains} {
		rep, ok := m[key]
		if !ok {
			rep = &Reputation{Identity: key}
			m[key] = rep
		}
		if isNewsletter {
			rep.ConfirmedCount++
		} else {
			rep.RejectedCount++
		}
	}
	return nil
}

func (s *fakeStores) Get(_ context.Context, userID string) (*UserFeedback, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if fb, ok := s.feedback[userID]; ok {
		return fb.Clone(), nil
	}
	return NewUserFeedback(), nil
}

func (s *fakeStores) Update(_ context.Context, userID string, fn func(*UserFeedback) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	fb, ok := s.feedback[userID]
	if !ok {
		fb = NewUserFeedback()
		s.feedback[userID] = fb
	}
	return fn(fb)
}

func (s *fakeStores) Put(_ context.Context, email *Email) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.emails[email.ID] = email
	return nil
}

func (s *fakeStores) GetEmail(ctx context.Context, id string) (*Email, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if email, ok := s.emails[id]; ok {
		return email, nil
	}
	return nil, ErrNotFound
}

// emailIndex adapts fakeStores to the EmailIndex port, whose Get collides
// with FeedbackStore.Get
type emailIndex struct{ *fakeStores }

func (i emailIndex) Get(ctx context.Context, id string) (*Email, error) {
	return i.fakeStores.GetEmail(ctx, id)
}

func newTestService(analyzers []Analyzer, stores *fakeStores) *DetectionService {
	return NewDetectionService(
		analyzers,
		NewDefaultCalculator(),
		stores,
		stores,
		emailIndex{stores},
		zap.NewNop(),
	)
}

func fixedScore(method DetectionMethod, score, confidence float64) *stubAnalyzer {
	return &stubAnalyzer{
		method: method,
		score:  &DetectionScore{Method: method, Score: score, Confidence: confidence},
	}
}

func TestDetectFusesAnalyzerScores(t *testing.T) {
	analyzers := []Analyzer{
		fixedScore(MethodHeader, 0.9, 0.8),
		fixedScore(MethodContentStructure, 0.8, 0.7),
		fixedScore(MethodSenderReputation, 0.5, 0.3),
		fixedScore(MethodUserFeedback, 0.5, 0.1),
	}
	svc := newTestService(analyzers, newFakeStores())

	result, err := svc.Detect(context.Background(), testEmail("e1"), nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	if len(result.Scores) != 4 {
		t.Fatalf("expected 4 scores, got %d", len(result.Scores))
	}
	// Scores stay in analyzer registration order despite the concurrent fan-out
	for i, analyzer := range analyzers {
		if result.Scores[i].Method != analyzer.Method() {
			t.Errorf("score %d has method %s, want %s", i, result.Scores[i].Method, analyzer.Method())
		}
	}
	if !almostEqual(result.CombinedScore, 0.491/0.60) {
		t.Errorf("combined score = %v, want %v", result.CombinedScore, 0.491/0.60)
	}
	if !result.IsNewsletter || result.NeedsVerification {
		t.Errorf("triage = (%v, %v), want (true, false)", result.IsNewsletter, result.NeedsVerification)
	}
	if result.ID == "" {
		t.Error("result should carry an ID")
	}
	if result.AnalyzedAt.IsZero() {
		t.Error("result should carry an analysis timestamp")
	}
}

func TestDetectNilEmail(t *testing.T) {
	svc := newTestService(nil, newFakeStores())
	if _, err := svc.Detect(context.Background(), nil, nil); err == nil {
		t.Error("expected error for nil email")
	}
}

func TestDetectAnalyzerErrorDegrades(t *testing.T) {
	analyzers := []Analyzer{
		fixedScore(MethodHeader, 0.9, 0.8),
		&stubAnalyzer{method: MethodSenderReputation, err: errors.New("store unavailable")},
	}
	svc := newTestService(analyzers, newFakeStores())

	result, err := svc.Detect(context.Background(), testEmail("e1"), nil)
	if err != nil {
		t.Fatalf("Detect should not fail when one analyzer errors: %v", err)
	}

	degraded := result.Scores[1]
	if degraded.Score != 0 || degraded.Confidence != 0.1 {
		t.Errorf("degraded score = (%v, %v), want (0, 0.1)", degraded.Score, degraded.Confidence)
	}
	if degraded.Reason == "" {
		t.Error("degraded score should carry the failure reason")
	}
}

func TestDetectAnalyzerPanicDegrades(t *testing.T) {
	analyzers := []Analyzer{
		fixedScore(MethodHeader, 0.9, 0.8),
		&stubAnalyzer{method: MethodContentStructure, panics: true},
	}
	svc := newTestService(analyzers, newFakeStores())

	result, err := svc.Detect(context.Background(), testEmail("e1"), nil)
	if err != nil {
		t.Fatalf("Detect should survive an analyzer panic: %v", err)
	}
	degraded := result.Scores[1]
	if degraded.Score != 0 || degraded.Confidence != 0.1 {
		t.Errorf("degraded score = (%v, %v), want (0, 0.1)", degraded.Score, degraded.Confidence)
	}
}

func TestDetectClampsOutOfRangeScores(t *testing.T) {
	analyzers := []Analyzer{
		&stubAnalyzer{
			method: MethodHeader,
			score:  &DetectionScore{Method: MethodHeader, Score: 1.7, Confidence: -0.5},
		},
	}
	svc := newTestService(analyzers, newFakeStores())

	result, err := svc.Detect(context.Background(), testEmail("e1"), nil)
	if err != nil {
		t.Fatalf("Detect failed: %v", err)
	}
	if got := result.Scores[0]; got.Score != 1 || got.Confidence != 0 {
		t.Errorf("clamped score = (%v, %v), want (1, 0)", got.Score, got.Confidence)
	}
}

func TestDetectFeedbackOverrideRaisesScore(t *testing.T) {
	// Weak ambient evidence plus a feedback analyzer that honors the snapshot
	snapshotScore := func(email *Email, fb *UserFeedback) *DetectionScore {
		if fb != nil && fb.ConfirmedSenders[email.Sender()] {
			return &DetectionScore{Method: MethodUserFeedback, Score: 1.0, Confidence: 1.0}
		}
		return &DetectionScore{Method: MethodUserFeedback, Score: 0.5, Confidence: 0.1}
	}

	email := testEmail("e1", Header{Name: "From", Value: "news@example.com"})
	stores := newFakeStores()
	stores.feedback["u1"] = NewUserFeedback()
	stores.feedback["u1"].RecordSender("news@example.com", "example.com", true)

	run := func(userID string) float64 {
		analyzers := []Analyzer{
			fixedScore(MethodHeader, 0.2, 0.6),
			fixedScore(MethodContentStructure, 0.1, 0.5),
			&feedbackStub{score: snapshotScore},
		}
		svc := newTestService(analyzers, stores)
		result, err := svc.DetectForUser(context.Background(), email, userID)
		if err != nil {
			t.Fatalf("DetectForUser failed: %v", err)
		}
		return result.CombinedScore
	}

	without := run("")
	with := run("u1")
	if with <= without {
		t.Errorf("confirmed-sender feedback should raise the combined score: %v <= %v", with, without)
	}
}

// feedbackStub lets a test compute its score from the feedback snapshot
type feedbackStub struct {
	score func(*Email, *UserFeedback) *DetectionScore
}

func (a *feedbackStub) Method() DetectionMethod { return MethodUserFeedback }
func (a *feedbackStub) Weight() float64         { return 0 }

func (a *feedbackStub) Analyze(_ context.Context, email *Email, fb *UserFeedback) (*DetectionScore, error) {
	return a.score(email, fb), nil
}

func TestTrackFeedbackUpdatesStores(t *testing.T) {
	stores := newFakeStores()
	email := testEmail("e1", Header{Name: "From", Value: "News <news@example.com>"})
	svc := newTestService([]Analyzer{fixedScore(MethodHeader, 0.9, 0.8)}, stores)

	if _, err := svc.Detect(context.Background(), email, nil); err != nil {
		t.Fatalf("Detect failed: %v", err)
	}

	event := &FeedbackEvent{EmailID: "e1", UserID: "u1", IsNewsletter: true, Source: "test"}
	if err := svc.TrackFeedback(context.Background(), event); err != nil {
		t.Fatalf("TrackFeedback failed: %v", err)
	}

	if rep := stores.senders["news@example.com"]; rep == nil || rep.ConfirmedCount != 1 {
		t.Errorf("sender reputation not updated: %+v", rep)
	}
	if rep := stores.domains["example.com"]; rep == nil || rep.ConfirmedCount != 1 {
		t.Errorf("domain reputation not updated: %+v", rep)
	}
	if fb := stores.feedback["u1"]; fb == nil || !fb.ConfirmedSenders["news@example.com"] {
		t.Error("user feedback not updated")
	}
	if event.Timestamp.IsZero() {
		t.Error("TrackFeedback should stamp the event")
	}
}

func TestTrackFeedbackValidation(t *testing.T) {
	svc := newTestService(nil, newFakeStores())
	ctx := context.Background()

	if err := svc.TrackFeedback(ctx, nil); err == nil {
		t.Error("expected error for nil event")
	}
	if err := svc.TrackFeedback(ctx, &FeedbackEvent{UserID: "u1"}); err == nil {
		t.Error("expected error for missing email ID")
	}
	if err := svc.TrackFeedback(ctx, &FeedbackEvent{EmailID: "e1"}); err == nil {
		t.Error("expected error for missing user ID")
	}
}

func TestTrackFeedbackUnknownEmail(t *testing.T) {
	svc := newTestService(nil, newFakeStores())
	err := svc.TrackFeedback(context.Background(), &FeedbackEvent{EmailID: "ghost", UserID: "u1"})
	if err == nil {
		t.Fatal("expected error for unknown email ID")
	}
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("error should wrap ErrNotFound, got %v", err)
	}
}
