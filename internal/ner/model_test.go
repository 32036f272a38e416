package ner

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/raaihank/text-anonymizer/internal/config"
	"github.com/raaihank/text-anonymizer/internal/logger"
)

type fakeModel struct{ name string }

func (f fakeModel) Entities(context.Context, string) ([]Span, error) { return nil, nil }
func (f fakeModel) Name() string                                     { return f.name }

type fakeLoader struct {
	fail map[string]bool
}

func (f fakeLoader) Load(lang string, cfg config.ModelConfig) (Model, error) {
	if f.fail[lang] {
		return nil, ErrModelNotFound
	}
	return fakeModel{name: cfg.Name}, nil
}

func TestLoadAll(t *testing.T) {
	log := logger.NewNop()
	models := map[string]config.ModelConfig{
		"en": {Name: "en_model"},
		"pt": {Name: "pt_model"},
		"es": {Name: "es_model"},
	}

	t.Run("AllLoaded", func(t *testing.T) {
		loaded, err := LoadAll(fakeLoader{}, []string{"en", "pt"}, models, log)
		if err != nil {
			t.Fatalf("LoadAll failed: %v", err)
		}
		if len(loaded) != 2 || loaded["pt"].Name() != "pt_model" {
			t.Errorf("Unexpected models: %v", loaded)
		}
	})

	t.Run("EveryMissingLanguageNamed", func(t *testing.T) {
		loader := fakeLoader{fail: map[string]bool{"en": true, "es": true}}
		_, err := LoadAll(loader, []string{"en", "pt", "es", "fr"}, models, log)

		var missing *MissingModelsError
		if !errors.As(err, &missing) {
			t.Fatalf("Expected MissingModelsError, got %v", err)
		}
		want := []string{"en", "es", "fr"}
		if strings.Join(missing.Languages, ",") != strings.Join(want, ",") {
			t.Errorf("Expected missing %v, got %v", want, missing.Languages)
		}
		if !errors.Is(err, ErrModelNotFound) {
			t.Error("MissingModelsError should unwrap to ErrModelNotFound")
		}
		if !strings.Contains(err.Error(), "en, es, fr") {
			t.Errorf("Error message should list languages, got %q", err.Error())
		}
	})
}

func TestDefaultLoader(t *testing.T) {
	loader := NewLoader(logger.NewNop())

	t.Run("Lexicon", func(t *testing.T) {
		m, err := loader.Load("en", config.ModelConfig{Kind: KindLexicon, Name: "en_core_lexicon"})
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if m.Name() != "en_core_lexicon" {
			t.Errorf("Expected configured name, got %s", m.Name())
		}
	})

	t.Run("UnknownKind", func(t *testing.T) {
		if _, err := loader.Load("en", config.ModelConfig{Kind: "spacy"}); !errors.Is(err, ErrModelNotFound) {
			t.Errorf("Expected ErrModelNotFound, got %v", err)
		}
	})

	t.Run("ONNXWithoutFiles", func(t *testing.T) {
		if _, err := loader.Load("en", config.ModelConfig{Kind: KindONNX}); !errors.Is(err, ErrModelNotFound) {
			t.Errorf("Expected ErrModelNotFound, got %v", err)
		}
	})
}
