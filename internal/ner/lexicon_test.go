package ner

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/raaihank/text-anonymizer/internal/config"
)

func loadLexicon(t *testing.T, lang string) *LexiconModel {
	t.Helper()
	m, err := NewLexiconModel(lang, config.ModelConfig{Kind: KindLexicon})
	if err != nil {
		t.Fatalf("Failed to load %s lexicon: %v", lang, err)
	}
	return m
}

func spanLabels(spans []Span) map[string]string {
	out := make(map[string]string, len(spans))
	for _, s := range spans {
		out[s.Text] = s.Label
	}
	return out
}

func TestLexiconModelEnglish(t *testing.T) {
	m := loadLexicon(t, "en")
	text := "John Doe works at Acme Corp in New York."

	spans, err := m.Entities(context.Background(), text)
	if err != nil {
		t.Fatalf("Entities failed: %v", err)
	}

	got := spanLabels(spans)
	want := map[string]string{"John Doe": "PERSON", "Acme Corp": "ORG", "New York": "GPE"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Expected %q labelled %s, got %q (all: %v)", k, v, got[k], got)
		}
	}

	for _, s := range spans {
		if text[s.Start:s.End] != s.Text {
			t.Errorf("Span offsets [%d:%d] do not cover %q", s.Start, s.End, s.Text)
		}
	}
}

func TestLexiconModelPortuguese(t *testing.T) {
	m := loadLexicon(t, "pt")

	spans, err := m.Entities(context.Background(), "João Silva trabalha na Empresa XYZ em Lisboa.")
	if err != nil {
		t.Fatalf("Entities failed: %v", err)
	}

	got := spanLabels(spans)
	want := map[string]string{"João Silva": "PER", "Empresa XYZ": "ORG", "Lisboa": "LOC"}
	for k, v := range want {
		if got[k] != v {
			t.Errorf("Expected %q labelled %s, got %q (all: %v)", k, v, got[k], got)
		}
	}
}

func TestLexiconModelEdgeCases(t *testing.T) {
	en := loadLexicon(t, "en")
	pt := loadLexicon(t, "pt")
	ctx := context.Background()

	t.Run("NoEntities", func(t *testing.T) {
		spans, _ := en.Entities(ctx, "This text has no entities.")
		if len(spans) != 0 {
			t.Errorf("Expected no spans, got %v", spans)
		}
	})

	t.Run("PossessiveStopsRun", func(t *testing.T) {
		spans, _ := en.Entities(ctx, "John Doe's email is john.doe@example.com")
		if len(spans) != 1 || spans[0].Text != "John Doe" {
			t.Errorf("Expected only John Doe, got %v", spans)
		}
	})

	t.Run("LeadingWordDropped", func(t *testing.T) {
		spans, _ := en.Entities(ctx, "Dear Mary Smith, thanks.")
		if len(spans) != 1 || spans[0].Text != "Mary Smith" {
			t.Errorf("Expected Mary Smith, got %v", spans)
		}
	})

	t.Run("ConnectorInsideName", func(t *testing.T) {
		got := spanLabels(mustEntities(t, pt, "Falei com o Banco de Portugal ontem."))
		if got["Banco de Portugal"] != "ORG" {
			t.Errorf("Expected Banco de Portugal as ORG, got %v", got)
		}
	})

	t.Run("TrailingConnectorDropped", func(t *testing.T) {
		got := spanLabels(mustEntities(t, pt, "A Maria de casa saiu."))
		if _, ok := got["Maria de"]; ok {
			t.Errorf("Connector must not end an entity: %v", got)
		}
		if got["Maria"] != "PER" {
			t.Errorf("Expected Maria as PER, got %v", got)
		}
	})

	t.Run("Cancelled", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		if _, err := en.Entities(cctx, "John Doe"); err == nil {
			t.Error("Expected context error")
		}
	})
}

func mustEntities(t *testing.T, m Model, text string) []Span {
	t.Helper()
	spans, err := m.Entities(context.Background(), text)
	if err != nil {
		t.Fatalf("Entities failed: %v", err)
	}
	return spans
}

func TestNewLexiconModel(t *testing.T) {
	t.Run("UnknownLanguage", func(t *testing.T) {
		_, err := NewLexiconModel("fr", config.ModelConfig{Kind: KindLexicon})
		if !errors.Is(err, ErrModelNotFound) {
			t.Fatalf("Expected ErrModelNotFound, got %v", err)
		}
	})

	t.Run("CustomPath", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "fr.yaml")
		data := []byte("language: fr\nlabels:\n  person: PER\ngiven_names: [Pierre]\n")
		if err := os.WriteFile(path, data, 0o644); err != nil {
			t.Fatalf("Failed to write lexicon: %v", err)
		}

		m, err := NewLexiconModel("fr", config.ModelConfig{Kind: KindLexicon, LexiconPath: path})
		if err != nil {
			t.Fatalf("Failed to load custom lexicon: %v", err)
		}
		if m.Name() != "fr_lexicon" {
			t.Errorf("Expected default name fr_lexicon, got %s", m.Name())
		}
		got := spanLabels(mustEntities(t, m, "Bonjour, Pierre Dupont arrive."))
		if got["Pierre Dupont"] != "PER" {
			t.Errorf("Expected Pierre Dupont as PER, got %v", got)
		}
	})
}
