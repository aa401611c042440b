package analyzer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/core"
	"github.com/inboxkit/newsletter-detector/internal/providers"
)

// staticProviderRatio is the assumed newsletter ratio for senders whose
// domain is on the known-provider list but has no observed history
const staticProviderRatio = 0.8

// ReputationAnalyzer scores an email from accumulated confirmed/rejected
// history: sender-level counters first, then the owning domain, then the
// static provider list, and finally an uninformative prior.
type ReputationAnalyzer struct {
	weight    float64
	store     core.ReputationStore
	providers *providers.List
	logger    *zap.Logger
}

// NewReputationAnalyzer creates a sender-reputation analyzer
func NewReputationAnalyzer(weight float64, store core.ReputationStore, list *providers.List, logger *zap.Logger) *ReputationAnalyzer {
	return &ReputationAnalyzer{
		weight:    weight,
		store:     store,
		providers: list,
		logger:    logger,
	}
}

// Method implements core.Analyzer
func (a *ReputationAnalyzer) Method() core.DetectionMethod {
	return core.MethodSenderReputation
}

// Weight implements core.Analyzer
func (a *ReputationAnalyzer) Weight() float64 {
	return a.weight
}

// Analyze looks up reputation for the email's sender. Store failures are
// returned as errors; the ensemble driver degrades them at its boundary.
func (a *ReputationAnalyzer) Analyze(ctx context.Context, email *core.Email, _ *core.UserFeedback) (*core.DetectionScore, error) {
	sender := ""
	if email != nil {
		sender = email.Sender()
	}
	if sender == "" {
		return &core.DetectionScore{
			Method:     core.MethodSenderReputation,
			Score:      0.5,
			Confidence: 0.3,
			Reason:     "no sender address available",
		}, nil
	}
	domain := core.DomainOf(sender)

	rep, err := a.store.GetSender(ctx, sender)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("sender reputation lookup failed: %w", err)
	}
	if rep != nil && rep.Total() > 0 {
		// Confidence grows with sample size; a single observation is
		// treated the same as no history
		confidence := 0.3
		if rep.Total() > 1 {
			confidence = 0.5 + float64(rep.Total())/10
			if confidence > 0.9 {
				confidence = 0.9
			}
		}
		return &core.DetectionScore{
			Method:     core.MethodSenderReputation,
			Score:      rep.Ratio(),
			Confidence: confidence,
			Reason: fmt.Sprintf("sender history: %d confirmed, %d rejected",
				rep.ConfirmedCount, rep.RejectedCount),
			Metadata: map[string]string{"level": "sender"},
		}, nil
	}

	domRep, err := a.store.GetDomain(ctx, domain)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return nil, fmt.Errorf("domain reputation lookup failed: %w", err)
	}
	if domRep != nil && domRep.Total() > 0 {
		confidence := 0.3
		if domRep.Total() > 2 {
			confidence = 0.4 + float64(domRep.Total())/20
			if confidence > 0.8 {
				confidence = 0.8
			}
		}
		return &core.DetectionScore{
			Method:     core.MethodSenderReputation,
			Score:      domRep.Ratio(),
			Confidence: confidence,
			Reason: fmt.Sprintf("domain history: %d confirmed, %d rejected",
				domRep.ConfirmedCount, domRep.RejectedCount),
			Metadata: map[string]string{"level": "domain"},
		}, nil
	}

	if a.providers != nil && a.providers.Contains(domain) {
		return &core.DetectionScore{
			Method:     core.MethodSenderReputation,
			Score:      staticProviderRatio,
			Confidence: 0.7,
			Reason:     fmt.Sprintf("domain %s is a known newsletter provider", domain),
			Metadata:   map[string]string{"level": "provider_list"},
		}, nil
	}

	return &core.DetectionScore{
		Method:     core.MethodSenderReputation,
		Score:      0.5,
		Confidence: 0.3,
		Reason:     "no reputation data for sender or domain",
	}, nil
}

// IsSenderNewsletterProvider reports whether the sender's own history marks
// it as a newsletter source, falling back to its domain
func (a *ReputationAnalyzer) IsSenderNewsletterProvider(ctx context.Context, sender string) (bool, error) {
	rep, err := a.store.GetSender(ctx, sender)
	if err != nil && !errors.Is(err, core.ErrNotFound) {
		return false, err
	}
	if rep != nil && rep.Total() >= 3 && rep.Ratio() > 0.6 {
		return true, nil
	}
	return a.IsDomainNewsletterProvider(ctx, core.DomainOf(sender))
}

// IsDomainNewsletterProvider reports whether a domain has enough confirmed
// history (total ≥ 5 and ratio > 0.6) or is on the static provider list
func (a *ReputationAnalyzer) IsDomainNewsletterProvider(ctx context.Context, domain string) (bool, error) {
	if a.providers != nil && a.providers.Contains(domain) {
		return true, nil
	}
	rep, err := a.store.GetDomain(ctx, domain)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return rep.Total() >= 5 && rep.Ratio() > 0.6, nil
}

// GetSenderConfidenceScore returns the observed confirmed ratio for a sender,
// or the uninformative prior 0.5 when no history exists
func (a *ReputationAnalyzer) GetSenderConfidenceScore(ctx context.Context, sender string) (float64, error) {
	rep, err := a.store.GetSender(ctx, sender)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			return 0.5, nil
		}
		return 0, err
	}
	if rep.Total() == 0 {
		return 0.5, nil
	}
	return rep.Ratio(), nil
}

// UpdateSenderReputation records one confirmed/rejected outcome against the
// sender and its domain together
func (a *ReputationAnalyzer) UpdateSenderReputation(ctx context.Context, sender string, isNewsletter bool) error {
	domain := core.DomainOf(sender)
	if err := a.store.RecordOutcome(ctx, sender, domain, isNewsletter); err != nil {
		return fmt.Errorf("failed to record outcome for %s: %w", sender, err)
	}
	a.logger.Debug("Sender reputation updated",
		zap.String("sender", sender),
		zap.Bool("is_newsletter", isNewsletter))
	return nil
}
