package filter

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

// CliFilter implements a command-line interface for newsletter detection
type CliFilter struct {
	service *core.DetectionService
	logger  *zap.Logger
	userID  string
	verbose bool
}

// NewCliFilter creates a new CLI filter
func NewCliFilter(service *core.DetectionService, logger *zap.Logger, userID string, verbose bool) (*CliFilter, error) {
	return &CliFilter{
		service: service,
		logger:  logger,
		userID:  userID,
		verbose: verbose,
	}, nil
}

// ProcessEmail processes an email and displays the results
func (f *CliFilter) ProcessEmail(ctx context.Context, email *core.Email) (*core.DetectionResult, error) {
	f.logger.Debug("Processing email", zap.String("email_id", email.ID))

	fmt.Printf("\n=== Email Summary ===\n")
	fmt.Printf("From: %s\n", email.Header("From"))
	fmt.Printf("To: %s\n", email.Header("To"))
	fmt.Printf("Subject: %s\n", email.Header("Subject"))

	fmt.Printf("\n=== Analysis ===\n")
	fmt.Printf("Running analyzer ensemble...\n")
	startTime := time.Now()
	result, err := f.service.DetectForUser(ctx, email, f.userID)
	if err != nil {
		f.logger.Error("Failed to analyze email", zap.Error(err))
		fmt.Printf("Error: %v\n", err)
		return nil, err
	}
	duration := time.Since(startTime)

	fmt.Printf("\n=== Results ===\n")
	fmt.Printf("Is newsletter: %t\n", result.IsNewsletter)
	fmt.Printf("Needs verification: %t\n", result.NeedsVerification)
	fmt.Printf("Combined score: %.4f\n", result.CombinedScore)
	fmt.Printf("Processing time: %v\n", duration)

	if f.verbose {
		fmt.Printf("\n=== Analyzer Scores ===\n")
		for _, score := range result.Scores {
			fmt.Printf("%-20s score=%.4f confidence=%.4f  %s\n",
				score.Method, score.Score, score.Confidence, score.Reason)
		}
	}

	return result, nil
}

// Start is a no-op for the CLI filter
func (f *CliFilter) Start() error {
	return nil
}

// Stop is a no-op for the CLI filter
func (f *CliFilter) Stop() error {
	return nil
}
