package app

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/anonymizer"
	"github.com/raaihank/text-anonymizer/internal/audit"
	"github.com/raaihank/text-anonymizer/internal/cache"
	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/langid"
	"github.com/raaihank/text-anonymizer/internal/logger"
	"github.com/raaihank/text-anonymizer/internal/ner"
	"github.com/raaihank/text-anonymizer/internal/pattern"
	"github.com/raaihank/text-anonymizer/internal/semantic"
)

// Services holds the process-wide detectors and backing stores
type Services struct {
	Patterns *pattern.Detector
	Semantic anonymizer.SemanticDetector
	Cache    *cache.DetectionCache
	Audit    *audit.Store
}

// NewLogger builds the process logger from configuration. Command line
// tools log to stderr so stdout stays machine readable.
func NewLogger(cfg *config.Config, stderr bool) (*logger.Logger, error) {
	loggerConfig := logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Stderr: stderr,
	}
	if cfg.Logging.File.Enabled {
		loggerConfig.File = &logger.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		}
	}
	return logger.New(loggerConfig)
}

// Initialize loads the detectors once for the whole process. An
// unreachable Redis disables caching; an unreachable audit database is
// fatal when withAudit is set.
func Initialize(cfg *config.Config, log *logger.Logger, withAudit bool) (*Services, error) {
	services := &Services{}

	patterns, err := pattern.New(cfg.Patterns, log.WithComponent("pattern"))
	if err != nil {
		return nil, fmt.Errorf("failed to create pattern detector: %w", err)
	}
	services.Patterns = patterns

	identifier, err := langid.NewLingua(cfg.Semantic.Languages, cfg.Semantic.MinRelativeDistance)
	if err != nil {
		return nil, fmt.Errorf("failed to create language identifier: %w", err)
	}

	semanticLog := log.WithComponent("semantic")
	detector, err := semantic.New(cfg.Semantic, ner.NewLoader(semanticLog), identifier, semanticLog)
	if err != nil {
		return nil, fmt.Errorf("failed to create semantic detector: %w", err)
	}
	services.Semantic = detector

	if cfg.Cache.Enabled {
		detectionCache, err := cache.NewDetectionCache(cfg.Cache, detector, log.WithComponent("cache"))
		if err != nil {
			log.Warn("Detection cache unavailable, continuing without it", zap.Error(err))
		} else {
			services.Cache = detectionCache
			services.Semantic = detectionCache
		}
	}

	if withAudit && cfg.Audit.Enabled {
		store, err := audit.NewStore(cfg.Audit, log.WithComponent("audit"))
		if err != nil {
			services.Close()
			return nil, fmt.Errorf("failed to create audit store: %w", err)
		}
		services.Audit = store
	}

	log.Info("Services initialized",
		zap.Strings("semantic_languages", services.Semantic.Languages()),
		zap.Strings("pattern_rules", patterns.EnabledRules()),
		zap.Bool("cache", services.Cache != nil),
		zap.Bool("audit", services.Audit != nil),
	)

	return services, nil
}

// Close releases the backing stores
func (s *Services) Close() {
	if s.Cache != nil {
		s.Cache.Close()
	}
	if s.Audit != nil {
		s.Audit.Close()
	}
}
