package analyzer

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

// newsletterLocalParts are sender local-part prefixes that indicate bulk or
// newsletter mail
var newsletterLocalParts = []string{
	"newsletter",
	"news",
	"digest",
	"no-reply",
	"noreply",
	"donotreply",
	"updates",
	"notifications",
	"hello",
	"info",
	"marketing",
	"weekly",
	"daily",
}

// platformHeaderPrefixes are header names injected by known mailing platforms
var platformHeaderPrefixes = []string{
	"list-id",
	"x-mailchimp",
	"x-mc-",
	"x-campaign",
	"x-mailgun",
	"x-ses-",
	"x-sg-",
	"feedback-id",
	"x-feedback-id",
}

// platformMailers are substrings of X-Mailer values set by campaign tooling
var platformMailers = []string{
	"mailchimp",
	"sendgrid",
	"mailgun",
	"campaign",
	"klaviyo",
	"hubspot",
	"constant contact",
}

// HeaderAnalyzer scores an email purely from its mail headers. It never
// consults external state and carries the largest default weight because
// header evidence is the least noisy signal available.
type HeaderAnalyzer struct {
	weight float64
	logger *zap.Logger
}

// NewHeaderAnalyzer creates a header analyzer with the given fusion weight
func NewHeaderAnalyzer(weight float64, logger *zap.Logger) *HeaderAnalyzer {
	return &HeaderAnalyzer{
		weight: weight,
		logger: logger,
	}
}

// Method implements core.Analyzer
func (a *HeaderAnalyzer) Method() core.DetectionMethod {
	return core.MethodHeader
}

// Weight implements core.Analyzer
func (a *HeaderAnalyzer) Weight() float64 {
	return a.weight
}

// Analyze pattern-matches the email's header list for newsletter markers
func (a *HeaderAnalyzer) Analyze(ctx context.Context, email *core.Email, _ *core.UserFeedback) (*core.DetectionScore, error) {
	if email == nil || email.Payload == nil || len(email.Payload.Headers) == 0 {
		return &core.DetectionScore{
			Method:     core.MethodHeader,
			Score:      0,
			Confidence: 0.3,
			Reason:     "no header data available",
		}, nil
	}

	score := 0.0
	var signals []string

	if a.hasUnsubscribeHeader(email) {
		score += 0.4
		signals = append(signals, "list-unsubscribe header")
	}
	if marker := a.platformMarker(email); marker != "" {
		score += 0.3
		signals = append(signals, fmt.Sprintf("mailing platform header (%s)", marker))
	}
	if prefix := a.newsletterLocalPart(email); prefix != "" {
		score += 0.2
		signals = append(signals, fmt.Sprintf("newsletter sender prefix (%s)", prefix))
	}
	if a.hasBulkPrecedence(email) {
		score += 0.1
		signals = append(signals, "bulk precedence")
	}
	if score > 1 {
		score = 1
	}

	confidence := 0.6
	if len(signals) > 1 {
		confidence += 0.1 * float64(len(signals)-1)
		if confidence > 0.9 {
			confidence = 0.9
		}
	}

	reason := "no newsletter header markers found"
	if len(signals) > 0 {
		reason = strings.Join(signals, "; ")
	}

	a.logger.Debug("Header analysis complete",
		zap.String("email_id", email.ID),
		zap.Float64("score", score),
		zap.Int("signals", len(signals)))

	return &core.DetectionScore{
		Method:     core.MethodHeader,
		Score:      score,
		Confidence: confidence,
		Reason:     reason,
		Metadata:   map[string]string{"signal_count": fmt.Sprintf("%d", len(signals))},
	}, nil
}

func (a *HeaderAnalyzer) hasUnsubscribeHeader(email *core.Email) bool {
	return email.Header("List-Unsubscribe") != "" || email.Header("List-Unsubscribe-Post") != ""
}

func (a *HeaderAnalyzer) platformMarker(email *core.Email) string {
	for _, h := range email.Payload.Headers {
		name := strings.ToLower(h.Name)
		for _, prefix := range platformHeaderPrefixes {
			if strings.HasPrefix(name, prefix) {
				return h.Name
			}
		}
	}

	mailer := strings.ToLower(email.Header("X-Mailer"))
	if mailer != "" {
		for _, platform := range platformMailers {
			if strings.Contains(mailer, platform) {
				return "X-Mailer"
			}
		}
	}
	return ""
}

func (a *HeaderAnalyzer) newsletterLocalPart(email *core.Email) string {
	sender := email.Sender()
	at := strings.Index(sender, "@")
	if at <= 0 {
		return ""
	}
	localPart := sender[:at]

	for _, prefix := range newsletterLocalParts {
		if strings.HasPrefix(localPart, prefix) {
			return prefix
		}
	}
	return ""
}

func (a *HeaderAnalyzer) hasBulkPrecedence(email *core.Email) bool {
	precedence := strings.ToLower(email.Header("Precedence"))
	return precedence == "bulk" || precedence == "list"
}
