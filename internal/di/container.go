package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/adapters/api"
	"github.com/inboxkit/newsletter-detector/internal/analyzer"
	"github.com/inboxkit/newsletter-detector/internal/config"
	"github.com/inboxkit/newsletter-detector/internal/core"
	"github.com/inboxkit/newsletter-detector/internal/factory"
	"github.com/inboxkit/newsletter-detector/internal/logging"
	"github.com/inboxkit/newsletter-detector/internal/ports"
	"github.com/inboxkit/newsletter-detector/internal/providers"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewStoreFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewFilterFactory); err != nil {
		return nil, err
	}

	// Register stores
	if err := container.Provide(func(f *factory.StoreFactory) (*factory.Stores, error) {
		return f.CreateStores()
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *factory.Stores) core.ReputationStore {
		return s.Reputation
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(s *factory.Stores) core.FeedbackStore {
		return s.Feedback
	}); err != nil {
		return nil, err
	}
	if err := container.Provide(func(f *factory.StoreFactory) core.EmailIndex {
		return f.CreateEmailIndex()
	}); err != nil {
		return nil, err
	}

	// Register newsletter provider domain list
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *providers.List {
		return providers.NewList(cfg.GetDetection().ProviderDomains, logger)
	}); err != nil {
		return nil, err
	}

	// Register the reputation analyzer on its own so the API can reach its
	// reputation query methods
	if err := container.Provide(func(cfg *config.Config, store core.ReputationStore, list *providers.List, logger *zap.Logger) *analyzer.ReputationAnalyzer {
		return analyzer.NewReputationAnalyzer(cfg.GetDetection().SenderReputationWeight, store, list, logger)
	}); err != nil {
		return nil, err
	}

	// Register the analyzer ensemble
	if err := container.Provide(func(cfg *config.Config, reputation *analyzer.ReputationAnalyzer, logger *zap.Logger) []core.Analyzer {
		detection := cfg.GetDetection()
		return []core.Analyzer{
			analyzer.NewHeaderAnalyzer(detection.HeaderWeight, logger),
			analyzer.NewContentAnalyzer(detection.ContentStructureWeight, logger),
			reputation,
			analyzer.NewFeedbackAnalyzer(detection.UserFeedbackWeight, logger),
		}
	}); err != nil {
		return nil, err
	}

	// Register the confidence calculator
	if err := container.Provide(func(cfg *config.Config) (*core.Calculator, error) {
		detection := cfg.GetDetection()
		thresholds, err := core.NewThresholds(detection.LowThreshold, detection.HighThreshold)
		if err != nil {
			return nil, err
		}
		weights := core.NewWeightTable(map[core.DetectionMethod]float64{
			core.MethodHeader:           detection.HeaderWeight,
			core.MethodContentStructure: detection.ContentStructureWeight,
			core.MethodSenderReputation: detection.SenderReputationWeight,
			core.MethodUserFeedback:     detection.UserFeedbackWeight,
		})
		return core.NewCalculator(weights, thresholds), nil
	}); err != nil {
		return nil, err
	}

	// Register the detection service
	if err := container.Provide(core.NewDetectionService); err != nil {
		return nil, err
	}

	// Register email filter
	if err := container.Provide(func(f *factory.FilterFactory) (ports.EmailFilter, error) {
		return f.CreateEmailFilter()
	}); err != nil {
		return nil, err
	}

	// Register the HTTP API
	if err := container.Provide(api.NewHandler); err != nil {
		return nil, err
	}
	if err := container.Provide(func(cfg *config.Config, handler *api.Handler, logger *zap.Logger) *api.Server {
		return api.NewServer(cfg.GetAPI().ListenAddress, handler, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
