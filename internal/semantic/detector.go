package semantic

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/entity"
	"github.com/raaihank/text-anonymizer/internal/langid"
	"github.com/raaihank/text-anonymizer/internal/logger"
	"github.com/raaihank/text-anonymizer/internal/ner"
)

// LanguageAuto asks the detector to identify the language itself
const LanguageAuto = "auto"

// Detector finds named entities with one NER model per language
type Detector struct {
	languages  []string
	models     map[string]ner.Model
	aliases    map[string]string
	identifier langid.Identifier
	logger     *logger.Logger
}

// New loads a model for every configured language. Construction fails
// with *ner.MissingModelsError naming every language that could not be
// loaded. A nil identifier sends every "auto" request down the fallback path.
func New(cfg config.SemanticConfig, loader ner.Loader, identifier langid.Identifier, log *logger.Logger) (*Detector, error) {
	if len(cfg.Languages) == 0 {
		return nil, fmt.Errorf("no semantic languages configured")
	}

	models, err := ner.LoadAll(loader, cfg.Languages, cfg.Models, log)
	if err != nil {
		return nil, err
	}

	aliases := make(map[string]string, len(cfg.Aliases))
	for from, to := range cfg.Aliases {
		if _, ok := models[to]; !ok {
			return nil, fmt.Errorf("alias %s points to unconfigured language %s", from, to)
		}
		aliases[from] = to
	}

	return &Detector{
		languages:  append([]string(nil), cfg.Languages...),
		models:     models,
		aliases:    aliases,
		identifier: identifier,
		logger:     log,
	}, nil
}

// Languages returns the served languages in fallback order
func (d *Detector) Languages() []string {
	return append([]string(nil), d.languages...)
}

// Detect returns semantic entities in text. lang is "auto" or a served
// language code.
func (d *Detector) Detect(ctx context.Context, text, lang string) *entity.Set {
	resolved, ok := d.Resolve(text, lang)
	if !ok {
		return d.detectAll(ctx, text)
	}
	return d.detectWith(ctx, text, resolved)
}

// Resolve maps a language hint to a served language. It reports false
// when detection must fall back to running every model.
func (d *Detector) Resolve(text, lang string) (string, bool) {
	if lang == LanguageAuto {
		if d.identifier == nil {
			return "", false
		}
		identified, err := d.identifier.Identify(text)
		if err != nil {
			if !errors.Is(err, langid.ErrUndetermined) {
				d.logger.Warn("Language identification failed", zap.Error(err))
			}
			d.logger.Debug("Language undetermined, running all models")
			return "", false
		}
		lang = identified
	}

	if _, ok := d.models[lang]; ok {
		return lang, true
	}
	if alias, ok := d.aliases[lang]; ok {
		return alias, true
	}

	d.logger.Debug("No model for language, running all models", zap.String("language", lang))
	return "", false
}

// detectWith runs a single model; first occurrence of a surface text wins
func (d *Detector) detectWith(ctx context.Context, text, lang string) *entity.Set {
	entities := entity.NewSet()
	for _, span := range d.run(ctx, text, lang) {
		entities.Add(entity.Record{
			Text:      span.Text,
			Method:    entity.MethodSemantic,
			Type:      span.Label,
			Languages: []string{lang},
		})
	}
	return entities
}

// detectAll runs every model in configured order. Text already found by an
// earlier model only gains the later model's language.
func (d *Detector) detectAll(ctx context.Context, text string) *entity.Set {
	entities := entity.NewSet()
	for _, lang := range d.languages {
		for _, span := range d.run(ctx, text, lang) {
			added := entities.Add(entity.Record{
				Text:      span.Text,
				Method:    entity.MethodSemantic,
				Type:      span.Label,
				Languages: []string{lang},
			})
			if !added {
				entities.AddLanguage(span.Text, lang)
			}
		}
	}
	return entities
}

// run never fails: model errors are logged and yield no spans
func (d *Detector) run(ctx context.Context, text, lang string) []ner.Span {
	model := d.models[lang]
	spans, err := model.Entities(ctx, text)
	if err != nil {
		d.logger.Error("NER model failed",
			zap.String("language", lang),
			zap.String("model", model.Name()),
			zap.Error(err),
		)
		return nil
	}
	return spans
}
