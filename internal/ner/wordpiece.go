package ner

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"unicode"
	"unicode/utf8"
)

// BERT special tokens
const (
	tokenPAD = "[PAD]"
	tokenUNK = "[UNK]"
	tokenCLS = "[CLS]"
	tokenSEP = "[SEP]"

	subwordPrefix   = "##"
	maxCharsPerWord = 100
)

// Token is one WordPiece with the byte range of the source text it covers.
// Word is the index of the source word, -1 for special tokens.
type Token struct {
	ID    int64
	Piece string
	Start int
	End   int
	Word  int
}

// TokenizedInput represents tokenized text ready for model inference
type TokenizedInput struct {
	Tokens        []Token
	InputIDs      []int64
	AttentionMask []int64
	TokenTypeIDs  []int64
	Truncated     bool
}

// Tokenizer is a BERT WordPiece tokenizer that keeps character offsets
type Tokenizer struct {
	Vocab     map[string]int64
	Lowercase bool
	MaxLength int
}

// LoadVocab reads a vocab.txt file, one token per line, id = line number
func LoadVocab(path string) (map[string]int64, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open vocab: %w", err)
	}
	defer file.Close()

	vocab := make(map[string]int64)
	scanner := bufio.NewScanner(file)
	var id int64
	for scanner.Scan() {
		vocab[strings.TrimRight(scanner.Text(), "\r")] = id
		id++
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read vocab: %w", err)
	}

	for _, special := range []string{tokenPAD, tokenUNK, tokenCLS, tokenSEP} {
		if _, ok := vocab[special]; !ok {
			return nil, fmt.Errorf("vocab is missing %s", special)
		}
	}
	return vocab, nil
}

// NewTokenizer creates a tokenizer over vocab
func NewTokenizer(vocab map[string]int64, lowercase bool, maxLength int) *Tokenizer {
	if maxLength <= 2 {
		maxLength = 512
	}
	return &Tokenizer{Vocab: vocab, Lowercase: lowercase, MaxLength: maxLength}
}

// Tokenize splits text into [CLS] pieces... [SEP] without padding.
// Input beyond MaxLength is truncated.
func (t *Tokenizer) Tokenize(text string) *TokenizedInput {
	tokens := []Token{{ID: t.Vocab[tokenCLS], Piece: tokenCLS, Word: -1}}
	truncated := false

	for wordIdx, w := range basicTokenize(text) {
		pieces := t.wordPieces(text[w.start:w.end], w.start, wordIdx)
		if len(tokens)+len(pieces) > t.MaxLength-1 {
			truncated = true
			break
		}
		tokens = append(tokens, pieces...)
	}

	tokens = append(tokens, Token{ID: t.Vocab[tokenSEP], Piece: tokenSEP, Start: len(text), End: len(text), Word: -1})

	input := &TokenizedInput{
		Tokens:        tokens,
		InputIDs:      make([]int64, len(tokens)),
		AttentionMask: make([]int64, len(tokens)),
		TokenTypeIDs:  make([]int64, len(tokens)),
		Truncated:     truncated,
	}
	for i, tok := range tokens {
		input.InputIDs[i] = tok.ID
		input.AttentionMask[i] = 1
	}
	return input
}

// wordPieces applies greedy longest-match-first over one word
func (t *Tokenizer) wordPieces(w string, offset, wordIdx int) []Token {
	unk := []Token{{ID: t.Vocab[tokenUNK], Piece: tokenUNK, Start: offset, End: offset + len(w), Word: wordIdx}}
	if utf8.RuneCountInString(w) > maxCharsPerWord {
		return unk
	}

	lookup := w
	if t.Lowercase {
		lookup = strings.ToLower(w)
	}
	// Lowercasing can change byte lengths, so piece boundaries are tracked in runes
	srcRunes := runeOffsets(w)
	runes := []rune(lookup)
	if len(runes) != len(srcRunes)-1 {
		runes = []rune(w)
	}

	var pieces []Token
	start := 0
	for start < len(runes) {
		end := len(runes)
		var matched *Token
		for end > start {
			piece := string(runes[start:end])
			if start > 0 {
				piece = subwordPrefix + piece
			}
			if id, ok := t.Vocab[piece]; ok {
				matched = &Token{
					ID:    id,
					Piece: piece,
					Start: offset + srcRunes[start],
					End:   offset + srcRunes[end],
					Word:  wordIdx,
				}
				break
			}
			end--
		}
		if matched == nil {
			return unk
		}
		pieces = append(pieces, *matched)
		start = end
	}
	return pieces
}

// basicTokenize splits on whitespace and isolates punctuation
func basicTokenize(text string) []word {
	var words []word
	start := -1

	for i, r := range text {
		switch {
		case unicode.IsSpace(r) || unicode.IsControl(r):
			if start >= 0 {
				words = append(words, word{text: text[start:i], start: start, end: i})
				start = -1
			}
		case isPunct(r):
			if start >= 0 {
				words = append(words, word{text: text[start:i], start: start, end: i})
				start = -1
			}
			end := i + utf8.RuneLen(r)
			words = append(words, word{text: text[i:end], start: i, end: end})
		default:
			if start < 0 {
				start = i
			}
		}
	}
	if start >= 0 {
		words = append(words, word{text: text[start:], start: start, end: len(text)})
	}
	return words
}

func isPunct(r rune) bool {
	if (r >= 33 && r <= 47) || (r >= 58 && r <= 64) || (r >= 91 && r <= 96) || (r >= 123 && r <= 126) {
		return true
	}
	return unicode.IsPunct(r)
}

// runeOffsets returns the byte offset of every rune plus len(s)
func runeOffsets(s string) []int {
	offsets := make([]int, 0, len(s)+1)
	for i := range s {
		offsets = append(offsets, i)
	}
	return append(offsets, len(s))
}
