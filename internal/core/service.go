package core

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DetectionService is the ensemble driver: it fans detection out across the
// analyzer set, fuses the scores, and closes the feedback loop back into the
// reputation and feedback stores.
type DetectionService struct {
	analyzers  []Analyzer
	calculator *Calculator
	reputation ReputationStore
	feedback   FeedbackStore
	emails     EmailIndex
	logger     *zap.Logger
}

// NewDetectionService creates a new detection service
func NewDetectionService(
	analyzers []Analyzer,
	calculator *Calculator,
	reputation ReputationStore,
	feedback FeedbackStore,
	emails EmailIndex,
	logger *zap.Logger,
) *DetectionService {
	return &DetectionService{
		analyzers:  analyzers,
		calculator: calculator,
		reputation: reputation,
		feedback:   feedback,
		emails:     emails,
		logger:     logger,
	}
}

// Detect runs every analyzer concurrently against the email and fuses their
// scores into one result. Analyzer failures degrade to low-confidence neutral
// scores instead of aborting the ensemble.
func (s *DetectionService) Detect(ctx context.Context, email *Email, feedback *UserFeedback) (*DetectionResult, error) {
	if email == nil {
		return nil, fmt.Errorf("email must not be nil")
	}

	if s.emails != nil {
		if err := s.emails.Put(ctx, email); err != nil {
			s.logger.Warn("Failed to index email for feedback lookup",
				zap.String("email_id", email.ID),
				zap.Error(err))
		}
	}

	scores := make([]DetectionScore, len(s.analyzers))
	var wg sync.WaitGroup
	for i, analyzer := range s.analyzers {
		wg.Add(1)
		go func(i int, analyzer Analyzer) {
			defer wg.Done()
			scores[i] = s.runAnalyzer(ctx, analyzer, email, feedback)
		}(i, analyzer)
	}
	wg.Wait()

	combined := s.calculator.CalculateConfidence(scores)
	result := &DetectionResult{
		ID:                uuid.NewString(),
		Scores:            scores,
		CombinedScore:     combined,
		IsNewsletter:      s.calculator.IsNewsletter(combined),
		NeedsVerification: s.calculator.NeedsVerification(combined),
		AnalyzedAt:        time.Now(),
	}

	s.logger.Debug("Detection complete",
		zap.String("email_id", email.ID),
		zap.Float64("combined_score", combined),
		zap.Bool("is_newsletter", result.IsNewsletter),
		zap.Bool("needs_verification", result.NeedsVerification))

	return result, nil
}

// DetectForUser loads the user's feedback snapshot before detection so that
// analyzers stay read-only with respect to shared state during the fan-out.
// An empty user ID runs detection without per-user context.
func (s *DetectionService) DetectForUser(ctx context.Context, email *Email, userID string) (*DetectionResult, error) {
	var feedback *UserFeedback
	if userID != "" && s.feedback != nil {
		fb, err := s.feedback.Get(ctx, userID)
		if err != nil {
			s.logger.Warn("Failed to load user feedback, detecting without it",
				zap.String("user_id", userID),
				zap.Error(err))
		} else {
			feedback = fb
		}
	}
	return s.Detect(ctx, email, feedback)
}

// runAnalyzer invokes one analyzer and converts any error or panic into a
// degraded score so a single failing analyzer cannot break the ensemble
func (s *DetectionService) runAnalyzer(ctx context.Context, analyzer Analyzer, email *Email, feedback *UserFeedback) (score DetectionScore) {
	method := analyzer.Method()

	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("Analyzer panicked",
				zap.String("method", string(method)),
				zap.Any("panic", r))
			score = DetectionScore{
				Method:     method,
				Score:      0,
				Confidence: 0.1,
				Reason:     fmt.Sprintf("analyzer panicked: %v", r),
			}
		}
	}()

	result, err := analyzer.Analyze(ctx, email, feedback)
	if err != nil {
		s.logger.Error("Analyzer failed",
			zap.String("method", string(method)),
			zap.Error(err))
		return DetectionScore{
			Method:     method,
			Score:      0,
			Confidence: 0.1,
			Reason:     fmt.Sprintf("analysis failed: %v", err),
		}
	}
	if result == nil {
		return DetectionScore{
			Method:     method,
			Score:      0,
			Confidence: 0.1,
			Reason:     "analyzer returned no score",
		}
	}
	return clampScore(*result)
}

// clampScore forces score and confidence into [0,1]
func clampScore(score DetectionScore) DetectionScore {
	score.Score = clamp01(score.Score)
	score.Confidence = clamp01(score.Confidence)
	return score
}

func clamp01(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}

// TrackFeedback is the feedback loop write path: it resolves the referenced
// email, records the decision in the user's feedback sets, and updates the
// sender and domain reputation counters. It never rescores past results.
func (s *DetectionService) TrackFeedback(ctx context.Context, event *FeedbackEvent) error {
	if event == nil {
		return fmt.Errorf("feedback event must not be nil")
	}
	if event.EmailID == "" {
		return fmt.Errorf("feedback event is missing an email ID")
	}
	if event.UserID == "" {
		return fmt.Errorf("feedback event is missing a user ID")
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	email, err := s.emails.Get(ctx, event.EmailID)
	if err != nil {
		return fmt.Errorf("failed to resolve email %q: %w", event.EmailID, err)
	}

	sender := email.Sender()
	if sender == "" {
		return fmt.Errorf("email %q has no sender address", event.EmailID)
	}
	domain := DomainOf(sender)

	if err := s.feedback.Update(ctx, event.UserID, func(fb *UserFeedback) error {
		fb.RecordSender(sender, domain, event.IsNewsletter)
		return nil
	}); err != nil {
		return fmt.Errorf("failed to record user feedback: %w", err)
	}

	if err := s.reputation.RecordOutcome(ctx, sender, domain, event.IsNewsletter); err != nil {
		return fmt.Errorf("failed to update reputation: %w", err)
	}

	s.logger.Info("Feedback recorded",
		zap.String("email_id", event.EmailID),
		zap.String("user_id", event.UserID),
		zap.String("sender", sender),
		zap.Bool("is_newsletter", event.IsNewsletter),
		zap.String("source", event.Source))

	return nil
}
