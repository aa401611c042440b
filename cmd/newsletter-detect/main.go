package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"net/mail"
	"os"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inboxkit/newsletter-detector/internal/adapters/filter"
	"github.com/inboxkit/newsletter-detector/internal/adapters/store"
	"github.com/inboxkit/newsletter-detector/internal/analyzer"
	"github.com/inboxkit/newsletter-detector/internal/config"
	"github.com/inboxkit/newsletter-detector/internal/core"
	"github.com/inboxkit/newsletter-detector/internal/logging"
	"github.com/inboxkit/newsletter-detector/internal/providers"
)

var (
	// Detection flags
	headerWeight     = flag.Float64("header-weight", 0.4, "Ensemble weight for the header analyzer")
	contentWeight    = flag.Float64("content-weight", 0.3, "Ensemble weight for the content structure analyzer")
	reputationWeight = flag.Float64("reputation-weight", 0.2, "Ensemble weight for the sender reputation analyzer")
	feedbackWeight   = flag.Float64("feedback-weight", 0.1, "Ensemble weight for the user feedback analyzer")
	lowThreshold     = flag.Float64("low-threshold", 0.35, "Scores below this are classified as not a newsletter")
	highThreshold    = flag.Float64("high-threshold", 0.65, "Scores at or above this are classified as a newsletter")
	providerDomains  = flag.String("providers", "", "Comma-separated list of known newsletter provider domains")

	// Input flags
	inputFile  = flag.String("file", "", "Input email file (use stdin if not specified)")
	userID     = flag.String("user", "", "User ID for per-user feedback context")
	verbose    = flag.Bool("verbose", false, "Enable verbose logging and per-analyzer scores")
	jsonLog    = flag.Bool("json-log", false, "Output logs in JSON format")
	configFile = flag.String("config", "", "Path to config file (overrides command line flags)")
)

func main() {
	flag.Parse()

	var cfg *config.Config
	var err error

	// Initialize logger
	logger, err := logging.InitConsoleLogger(*verbose, *jsonLog)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	// Load configuration from file if specified
	if *configFile != "" {
		cfg, err = config.New()
		if err != nil {
			logger.Fatal("Failed to load configuration", zap.Error(err))
		}
		logger.Info("Loaded configuration from file", zap.String("file", cfg.GetViper().ConfigFileUsed()))
	} else {
		// Create config from command line flags
		cfg = createConfigFromFlags()
	}

	detection := cfg.GetDetection()

	// One-shot runs keep everything in memory
	memStore := store.NewMemoryStore(logger)
	list := providers.NewList(detection.ProviderDomains, logger)

	thresholds, err := core.NewThresholds(detection.LowThreshold, detection.HighThreshold)
	if err != nil {
		logger.Fatal("Invalid thresholds", zap.Error(err))
	}
	calculator := core.NewCalculator(core.NewWeightTable(map[core.DetectionMethod]float64{
		core.MethodHeader:           detection.HeaderWeight,
		core.MethodContentStructure: detection.ContentStructureWeight,
		core.MethodSenderReputation: detection.SenderReputationWeight,
		core.MethodUserFeedback:     detection.UserFeedbackWeight,
	}), thresholds)

	analyzers := []core.Analyzer{
		analyzer.NewHeaderAnalyzer(detection.HeaderWeight, logger),
		analyzer.NewContentAnalyzer(detection.ContentStructureWeight, logger),
		analyzer.NewReputationAnalyzer(detection.SenderReputationWeight, memStore, list, logger),
		analyzer.NewFeedbackAnalyzer(detection.UserFeedbackWeight, logger),
	}

	service := core.NewDetectionService(
		analyzers,
		calculator,
		memStore,
		memStore,
		store.NewMemoryEmailIndex(detection.EmailIndexSize),
		logger,
	)

	cliFilter, err := filter.NewCliFilter(service, logger, *userID, *verbose)
	if err != nil {
		logger.Fatal("Failed to create CLI filter", zap.Error(err))
	}

	// Read email from file or stdin
	var emailReader io.Reader
	if *inputFile != "" {
		file, err := os.Open(*inputFile)
		if err != nil {
			logger.Fatal("Failed to open input file", zap.Error(err), zap.String("file", *inputFile))
		}
		defer file.Close()
		emailReader = file
		logger.Info("Reading email from file", zap.String("file", *inputFile))
	} else {
		emailReader = os.Stdin
		logger.Info("Reading email from stdin")
	}

	// Parse email
	msg, err := mail.ReadMessage(bufio.NewReader(emailReader))
	if err != nil {
		logger.Fatal("Failed to parse email", zap.Error(err))
	}

	email, err := filter.EmailFromMessage(uuid.NewString(), msg)
	if err != nil {
		logger.Fatal("Failed to convert email message", zap.Error(err))
	}

	if _, err := cliFilter.ProcessEmail(context.Background(), email); err != nil {
		os.Exit(1)
	}
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags() *config.Config {
	v := config.NewEmptyViper()

	v.Set("detection.weights.header", *headerWeight)
	v.Set("detection.weights.content_structure", *contentWeight)
	v.Set("detection.weights.sender_reputation", *reputationWeight)
	v.Set("detection.weights.user_feedback", *feedbackWeight)
	v.Set("detection.thresholds.low", *lowThreshold)
	v.Set("detection.thresholds.high", *highThreshold)

	if *providerDomains != "" {
		domains := strings.Split(*providerDomains, ",")
		for i, domain := range domains {
			domains[i] = strings.TrimSpace(domain)
		}
		v.Set("detection.provider_domains", domains)
	} else {
		v.Set("detection.provider_domains", []string{})
	}

	return config.NewFromViper(v)
}
