package analyzer

import (
	"context"

	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

// FeedbackAnalyzer applies per-user explicit decisions. Overrides take strict
// precedence: a sender-level confirm or reject is terminal with full
// confidence, domain-level trust/block is nearly as strong.
type FeedbackAnalyzer struct {
	weight float64
	logger *zap.Logger
}

// NewFeedbackAnalyzer creates a user-feedback analyzer
func NewFeedbackAnalyzer(weight float64, logger *zap.Logger) *FeedbackAnalyzer {
	return &FeedbackAnalyzer{
		weight: weight,
		logger: logger,
	}
}

// Method implements core.Analyzer
func (a *FeedbackAnalyzer) Method() core.DetectionMethod {
	return core.MethodUserFeedback
}

// Weight implements core.Analyzer
func (a *FeedbackAnalyzer) Weight() float64 {
	return a.weight
}

// Analyze resolves the email's sender against the user's feedback sets
func (a *FeedbackAnalyzer) Analyze(ctx context.Context, email *core.Email, feedback *core.UserFeedback) (*core.DetectionScore, error) {
	if feedback == nil {
		return &core.DetectionScore{
			Method:     core.MethodUserFeedback,
			Score:      0.5,
			Confidence: 0.1,
			Reason:     "no user feedback available",
		}, nil
	}

	sender := ""
	if email != nil {
		sender = email.Sender()
	}
	if sender == "" {
		return &core.DetectionScore{
			Method:     core.MethodUserFeedback,
			Score:      0.5,
			Confidence: 0.1,
			Reason:     "no sender address available",
		}, nil
	}
	domain := core.DomainOf(sender)

	switch {
	case feedback.ConfirmedSenders[sender]:
		return &core.DetectionScore{
			Method:     core.MethodUserFeedback,
			Score:      1.0,
			Confidence: 1.0,
			Reason:     "sender explicitly confirmed as newsletter",
		}, nil
	case feedback.RejectedSenders[sender]:
		return &core.DetectionScore{
			Method:     core.MethodUserFeedback,
			Score:      0.0,
			Confidence: 1.0,
			Reason:     "sender explicitly rejected as newsletter",
		}, nil
	case feedback.TrustedDomains[domain]:
		return &core.DetectionScore{
			Method:     core.MethodUserFeedback,
			Score:      0.9,
			Confidence: 0.9,
			Reason:     "domain trusted as newsletter source",
		}, nil
	case feedback.BlockedDomains[domain]:
		return &core.DetectionScore{
			Method:     core.MethodUserFeedback,
			Score:      0.1,
			Confidence: 0.9,
			Reason:     "domain blocked as newsletter source",
		}, nil
	default:
		return &core.DetectionScore{
			Method:     core.MethodUserFeedback,
			Score:      0.5,
			Confidence: 0.1,
			Reason:     "no feedback recorded for sender or domain",
		}, nil
	}
}
