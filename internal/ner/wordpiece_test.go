package ner

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func testVocab() map[string]int64 {
	pieces := []string{"[PAD]", "[UNK]", "[CLS]", "[SEP]", "john", "doe", "works", "at", "ac", "##me", "'", "s", ".", "lis", "##boa"}
	vocab := make(map[string]int64, len(pieces))
	for i, p := range pieces {
		vocab[p] = int64(i)
	}
	return vocab
}

func TestTokenize(t *testing.T) {
	tok := NewTokenizer(testVocab(), true, 32)
	text := "John Doe works at Acme."
	input := tok.Tokenize(text)

	var pieces []string
	for _, tk := range input.Tokens {
		pieces = append(pieces, tk.Piece)
	}
	want := "[CLS] john doe works at ac ##me . [SEP]"
	if got := strings.Join(pieces, " "); got != want {
		t.Fatalf("Expected %q, got %q", want, got)
	}

	t.Run("OffsetsCoverSource", func(t *testing.T) {
		acme := input.Tokens[5:7]
		if text[acme[0].Start:acme[1].End] != "Acme" {
			t.Errorf("Subword offsets do not cover Acme: %+v", acme)
		}
		if acme[0].Word != acme[1].Word {
			t.Errorf("Subwords must share a word index")
		}
	})

	t.Run("MasksAligned", func(t *testing.T) {
		if len(input.InputIDs) != len(input.Tokens) || len(input.AttentionMask) != len(input.Tokens) {
			t.Errorf("Input arrays not aligned with tokens")
		}
	})

	t.Run("UnknownWord", func(t *testing.T) {
		in := tok.Tokenize("zzz")
		if in.Tokens[1].Piece != "[UNK]" || in.Tokens[1].End != 3 {
			t.Errorf("Expected [UNK] covering the word, got %+v", in.Tokens[1])
		}
	})

	t.Run("Truncation", func(t *testing.T) {
		short := NewTokenizer(testVocab(), true, 4)
		in := short.Tokenize("john doe works")
		if !in.Truncated || len(in.Tokens) != 4 {
			t.Errorf("Expected truncation to 4 tokens, got %d (truncated=%v)", len(in.Tokens), in.Truncated)
		}
	})

	t.Run("SubwordOffsets", func(t *testing.T) {
		in := tok.Tokenize("em Lisboa")
		var covered string
		for _, tk := range in.Tokens {
			if strings.HasPrefix(tk.Piece, "lis") || tk.Piece == "##boa" {
				covered += "em Lisboa"[tk.Start:tk.End]
			}
		}
		if covered != "Lisboa" {
			t.Errorf("Expected pieces to cover Lisboa, got %q", covered)
		}
	})
}

func TestLoadVocab(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "vocab.txt")
		if err := os.WriteFile(path, []byte("[PAD]\n[UNK]\n[CLS]\n[SEP]\nhello\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		vocab, err := LoadVocab(path)
		if err != nil {
			t.Fatalf("LoadVocab failed: %v", err)
		}
		if vocab["hello"] != 4 {
			t.Errorf("Expected id 4 for hello, got %d", vocab["hello"])
		}
	})

	t.Run("MissingSpecialTokens", func(t *testing.T) {
		path := filepath.Join(dir, "bad.txt")
		if err := os.WriteFile(path, []byte("hello\n"), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := LoadVocab(path); err == nil {
			t.Error("Expected error for vocab without special tokens")
		}
	})
}

func TestDecodeBIO(t *testing.T) {
	tok := NewTokenizer(testVocab(), true, 32)
	text := "John Doe works at Acme."
	input := tok.Tokenize(text)
	// [CLS] john doe works at ac ##me . [SEP]
	labels := []string{"O", "B-PER", "I-PER", "O", "O", "B-ORG", "O", "O", "O"}

	spans := DecodeBIO(text, input.Tokens, labels)
	if len(spans) != 2 {
		t.Fatalf("Expected 2 spans, got %+v", spans)
	}
	if spans[0].Text != "John Doe" || spans[0].Label != "PER" {
		t.Errorf("Unexpected first span %+v", spans[0])
	}
	if spans[1].Text != "Acme" || spans[1].Label != "ORG" {
		t.Errorf("Subword continuation should extend the entity, got %+v", spans[1])
	}

	t.Run("StrayInsideStartsEntity", func(t *testing.T) {
		labels := []string{"O", "I-PER", "B-LOC", "O", "O", "O", "O", "O", "O"}
		spans := DecodeBIO(text, input.Tokens, labels)
		if len(spans) != 2 || spans[0].Text != "John" || spans[1].Text != "Doe" || spans[1].Label != "LOC" {
			t.Errorf("Unexpected spans %+v", spans)
		}
	})

	t.Run("BareLabels", func(t *testing.T) {
		labels := []string{"O", "PER", "O", "O", "O", "O", "O", "O", "O"}
		spans := DecodeBIO(text, input.Tokens, labels)
		if len(spans) != 1 || spans[0].Label != "PER" {
			t.Errorf("Unexpected spans %+v", spans)
		}
	})
}

func TestArgmaxLabels(t *testing.T) {
	names := []string{"O", "B-PER", "I-PER"}
	logits := []float32{
		0.9, 0.05, 0.05,
		0.1, 0.8, 0.1,
		0.2, 0.3, 0.5,
	}
	got := argmaxLabels(logits, 3, 3, names)
	want := []string{"O", "B-PER", "I-PER"}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("Token %d: expected %s, got %s", i, want[i], got[i])
		}
	}
}
