package pattern

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/entity"
	"github.com/raaihank/text-anonymizer/internal/logger"
)

// Detector finds PII through fixed textual patterns
type Detector struct {
	rules   []Rule
	enabled map[string]bool
	logger  *logger.Logger
	mu      sync.RWMutex
}

// New creates a new pattern detector instance
func New(cfg config.PatternConfig, log *logger.Logger) (*Detector, error) {
	detector := &Detector{
		rules:   GetDefaultRules(),
		enabled: make(map[string]bool),
		logger:  log,
	}

	if err := detector.configure(cfg); err != nil {
		return nil, fmt.Errorf("failed to configure detectors: %w", err)
	}

	log.Info("Pattern detector initialized",
		zap.Int("total_rules", len(detector.rules)),
		zap.Strings("enabled_rules", detector.EnabledRules()),
	)

	return detector, nil
}

// configure applies the detector selection, then the disabled list
func (d *Detector) configure(cfg config.PatternConfig) error {
	if err := d.configureDetectors(cfg.Detectors); err != nil {
		return err
	}
	for _, name := range cfg.Disabled {
		if err := d.disableRule(name); err != nil {
			return err
		}
	}
	return nil
}

// configureDetectors enables rules based on configuration
func (d *Detector) configureDetectors(detectors []string) error {
	for _, rule := range d.rules {
		d.enabled[rule.Name] = false
	}

	for _, name := range detectors {
		if name == "all" {
			for _, rule := range d.rules {
				d.enabled[rule.Name] = true
			}
			continue
		}

		if _, known := d.enabled[name]; !known {
			return fmt.Errorf("unknown detector: %s", name)
		}
		d.enabled[name] = true
	}

	return nil
}

// Detect returns every pattern match in text keyed by surface text.
// Rules run independently over the full text; the first rule to claim an
// exact surface text keeps it.
func (d *Detector) Detect(text string) *entity.Set {
	entities := entity.NewSet()

	d.mu.RLock()
	defer d.mu.RUnlock()

	for _, rule := range d.rules {
		if !d.enabled[rule.Name] {
			continue
		}

		matches := rule.Pattern.FindAllString(text, -1)
		added := 0
		for _, match := range matches {
			if entities.Add(entity.Record{Text: match, Method: entity.MethodPattern, Type: rule.Name}) {
				added++
			}
		}

		if len(matches) > 0 {
			d.logger.Debug("Pattern rule matched",
				zap.String("rule", rule.Name),
				zap.Int("matches", len(matches)),
				zap.Int("registered", added),
			)
		}
	}

	return entities
}

// Reconfigure replaces the enabled rule set, keeping the previous one on error
func (d *Detector) Reconfigure(cfg config.PatternConfig) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	previous := d.enabled
	d.enabled = make(map[string]bool, len(previous))
	if err := d.configure(cfg); err != nil {
		d.enabled = previous
		return fmt.Errorf("failed to configure detectors: %w", err)
	}

	d.logger.Info("Pattern detector reconfigured",
		zap.Strings("detectors", cfg.Detectors),
		zap.Strings("disabled", cfg.Disabled),
	)
	return nil
}

// EnabledRules returns the enabled rule names in evaluation order
func (d *Detector) EnabledRules() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var enabled []string
	for _, rule := range d.rules {
		if d.enabled[rule.Name] {
			enabled = append(enabled, rule.Name)
		}
	}
	return enabled
}

// disableRule turns off a known rule; callers hold the lock
func (d *Detector) disableRule(ruleName string) error {
	if _, exists := d.enabled[ruleName]; !exists {
		return fmt.Errorf("unknown rule: %s", ruleName)
	}
	d.enabled[ruleName] = false
	return nil
}
