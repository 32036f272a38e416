package anonymizer

import (
	"context"
	"slices"
	"strings"
	"time"

	"github.com/raaihank/text-anonymizer/internal/entity"
	"github.com/raaihank/text-anonymizer/internal/logger"
	"github.com/raaihank/text-anonymizer/internal/token"
)

// LanguageAuto lets the semantic detector identify the language
const LanguageAuto = "auto"

// PatternDetector finds entities through fixed textual patterns
type PatternDetector interface {
	Detect(text string) *entity.Set
}

// SemanticDetector finds named entities for a language hint
type SemanticDetector interface {
	Detect(ctx context.Context, text, lang string) *entity.Set
	Languages() []string
}

// Explanation describes one substitution
type Explanation struct {
	Entity      string        `json:"entity"`
	Method      entity.Method `json:"method"`
	Type        string        `json:"type"`
	Replacement string        `json:"replacement"`
}

// Result is the outcome of one anonymization call
type Result struct {
	Original     string        `json:"original"`
	Anonymized   string        `json:"anonymized"`
	Explanations []Explanation `json:"explanations"`
}

// Types counts explanations per entity type
func (r Result) Types() map[string]int {
	types := make(map[string]int)
	for _, e := range r.Explanations {
		types[e.Type]++
	}
	return types
}

// Engine anonymizes text for a single session. It owns its token
// registry and is not safe for concurrent use.
type Engine struct {
	strategy   Strategy
	language   string
	patterns   PatternDetector
	semantic   SemanticDetector
	substitute func(string) string
	sub        Substituter
	allowed    []string
	logger     *logger.Logger
}

// Option configures an Engine
type Option func(*Engine)

// WithSubstituter replaces the session token registry
func WithSubstituter(sub Substituter) Option {
	return func(e *Engine) {
		e.sub = sub
	}
}

// WithAllowedStrategies restricts New to the named strategies. A nil
// list allows every known strategy.
func WithAllowedStrategies(names []string) Option {
	return func(e *Engine) {
		e.allowed = names
	}
}

// WithLogger sets the engine logger
func WithLogger(log *logger.Logger) Option {
	return func(e *Engine) {
		e.logger = log
	}
}

// New validates strategy and language and builds an Engine with a fresh
// token registry. Invalid values fail with *ConfigError before any
// detection work.
func New(strategy, language string, patterns PatternDetector, semantic SemanticDetector, opts ...Option) (*Engine, error) {
	e := &Engine{
		language: language,
		patterns: patterns,
		semantic: semantic,
		logger:   logger.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	s, err := ParseStrategy(strategy)
	if err != nil {
		return nil, err
	}
	if e.allowed != nil && !slices.Contains(e.allowed, strategy) {
		return nil, &ConfigError{Field: "strategy", Value: strategy, Allowed: e.allowed}
	}

	supported := append([]string{LanguageAuto}, semantic.Languages()...)
	if !slices.Contains(supported, language) {
		return nil, &ConfigError{Field: "language", Value: language, Allowed: supported}
	}

	e.strategy = s
	if e.sub == nil {
		e.sub = token.NewRegistry()
	}
	e.substitute = s.substitution(e.sub)

	return e, nil
}

// Strategy returns the engine strategy
func (e *Engine) Strategy() Strategy {
	return e.strategy
}

// Language returns the configured language hint
func (e *Engine) Language() string {
	return e.language
}

// Detect runs both detectors over text and merges their findings,
// semantic records overwriting pattern records with the same text.
func (e *Engine) Detect(ctx context.Context, text string) *entity.Set {
	merged := e.patterns.Detect(text)
	merged.Merge(e.semantic.Detect(ctx, text, e.language))
	return merged
}

// Anonymize replaces every detected entity in text. Entities are
// substituted shortest first and every occurrence of an entity is
// replaced in the working text.
func (e *Engine) Anonymize(ctx context.Context, text string) Result {
	start := time.Now()

	entities := e.Detect(ctx, text)

	anonymized := text
	explanations := make([]Explanation, 0, entities.Len())
	for _, r := range entities.ByLength() {
		if r.Text == "" {
			continue
		}
		replacement := e.substitute(r.Text)
		anonymized = strings.ReplaceAll(anonymized, r.Text, replacement)
		explanations = append(explanations, Explanation{
			Entity:      r.Text,
			Method:      r.Method,
			Type:        r.Type,
			Replacement: replacement,
		})
	}

	result := Result{Original: text, Anonymized: anonymized, Explanations: explanations}
	e.logger.LogAnonymization(string(e.strategy), e.language, result.Types(), len(text), time.Since(start))

	return result
}
