package factory

import (
	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/adapters/filter"
	"github.com/inboxkit/newsletter-detector/internal/config"
	"github.com/inboxkit/newsletter-detector/internal/core"
	"github.com/inboxkit/newsletter-detector/internal/ports"
)

// FilterFactory creates email filters based on configuration
type FilterFactory struct {
	cfg     *config.Config
	logger  *zap.Logger
	service *core.DetectionService
}

// NewFilterFactory creates a new filter factory
func NewFilterFactory(cfg *config.Config, logger *zap.Logger, service *core.DetectionService) *FilterFactory {
	return &FilterFactory{
		cfg:     cfg,
		logger:  logger,
		service: service,
	}
}

// CreateEmailFilter creates the SMTP content filter from the server configuration
func (f *FilterFactory) CreateEmailFilter() (ports.EmailFilter, error) {
	serverCfg := f.cfg.GetServer()

	return filter.NewSMTPFilter(
		f.service,
		f.logger,
		serverCfg.ListenAddress,
		serverCfg.StatusHeader,
		serverCfg.ScoreHeader,
		serverCfg.ReasonHeader,
		serverCfg.UpstreamAddress,
		serverCfg.UpstreamPort,
		serverCfg.UpstreamEnabled,
		serverCfg.SubjectPrefix,
		serverCfg.ModifySubject,
	), nil
}
