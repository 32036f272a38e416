package ner

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/logger"
)

// Model kinds accepted in configuration
const (
	KindLexicon = "lexicon"
	KindONNX    = "onnx"
)

// ErrModelNotFound is returned when a language has no loadable model
var ErrModelNotFound = errors.New("ner model not found")

// Span is a labelled region of the input, offsets in bytes
type Span struct {
	Text  string
	Label string
	Start int
	End   int
}

// Model extracts named entities from text
type Model interface {
	Entities(ctx context.Context, text string) ([]Span, error)
	Name() string
}

// Loader resolves the model configured for a language
type Loader interface {
	Load(lang string, cfg config.ModelConfig) (Model, error)
}

// MissingModelsError names every language whose model failed to load
type MissingModelsError struct {
	Languages []string
	Causes    map[string]error
}

func (e *MissingModelsError) Error() string {
	return fmt.Sprintf("failed to load NER models for languages: %s", strings.Join(e.Languages, ", "))
}

func (e *MissingModelsError) Unwrap() error {
	return ErrModelNotFound
}

// DefaultLoader builds lexicon and ONNX models from configuration
type DefaultLoader struct {
	logger *logger.Logger
}

// NewLoader creates the default model loader
func NewLoader(log *logger.Logger) *DefaultLoader {
	return &DefaultLoader{logger: log}
}

// Load builds the model for lang
func (l *DefaultLoader) Load(lang string, cfg config.ModelConfig) (Model, error) {
	switch cfg.Kind {
	case KindLexicon, "":
		return NewLexiconModel(lang, cfg)
	case KindONNX:
		return newONNXModel(lang, cfg, l.logger)
	default:
		return nil, fmt.Errorf("%w: unknown model kind %q for language %s", ErrModelNotFound, cfg.Kind, lang)
	}
}

// LoadAll loads a model for every language in order. All failures are
// collected so the returned error names every missing language.
func LoadAll(loader Loader, languages []string, models map[string]config.ModelConfig, log *logger.Logger) (map[string]Model, error) {
	loaded := make(map[string]Model, len(languages))
	missing := &MissingModelsError{Causes: make(map[string]error)}

	for _, lang := range languages {
		cfg, ok := models[lang]
		if !ok {
			missing.Languages = append(missing.Languages, lang)
			missing.Causes[lang] = fmt.Errorf("%w: no model configured", ErrModelNotFound)
			continue
		}

		model, err := loader.Load(lang, cfg)
		if err != nil {
			log.Error("Failed to load NER model",
				zap.String("language", lang),
				zap.String("kind", cfg.Kind),
				zap.Error(err),
			)
			missing.Languages = append(missing.Languages, lang)
			missing.Causes[lang] = err
			continue
		}

		log.Info("NER model loaded",
			zap.String("language", lang),
			zap.String("model", model.Name()),
		)
		loaded[lang] = model
	}

	if len(missing.Languages) > 0 {
		return nil, missing
	}
	return loaded, nil
}
