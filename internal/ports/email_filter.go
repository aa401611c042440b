package ports

import (
	"context"

	"github.com/inboxkit/newsletter-detector/internal/core"
)

// EmailFilter defines the interface for email intake surfaces
type EmailFilter interface {
	// ProcessEmail runs detection for one email and returns the result
	ProcessEmail(ctx context.Context, email *core.Email) (*core.DetectionResult, error)

	// Start starts the filter service
	Start() error

	// Stop stops the filter service
	Stop() error
}
