package langid

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pemistahl/lingua-go"
)

// ErrUndetermined is returned when no language can be identified reliably
var ErrUndetermined = errors.New("language undetermined")

// Identifier resolves the natural language of a text to an ISO 639-1 code
type Identifier interface {
	Identify(text string) (string, error)
}

// LinguaIdentifier identifies languages with lingua-go
type LinguaIdentifier struct {
	detector lingua.LanguageDetector
}

// NewLingua builds an identifier restricted to codes. With fewer than two
// codes every language lingua knows is considered.
func NewLingua(codes []string, minRelativeDistance float64) (*LinguaIdentifier, error) {
	var languages []lingua.Language
	for _, code := range codes {
		lang, ok := languageFor(code)
		if !ok {
			return nil, fmt.Errorf("unsupported language for identification: %s", code)
		}
		languages = append(languages, lang)
	}

	var builder lingua.LanguageDetectorBuilder
	if len(languages) >= 2 {
		builder = lingua.NewLanguageDetectorBuilder().FromLanguages(languages...)
	} else {
		builder = lingua.NewLanguageDetectorBuilder().FromAllLanguages()
	}

	detector := builder.
		WithMinimumRelativeDistance(minRelativeDistance).
		Build()

	return &LinguaIdentifier{detector: detector}, nil
}

// Identify returns the lowercase ISO 639-1 code of text
func (l *LinguaIdentifier) Identify(text string) (string, error) {
	if strings.TrimSpace(text) == "" {
		return "", ErrUndetermined
	}

	lang, ok := l.detector.DetectLanguageOf(text)
	if !ok {
		return "", ErrUndetermined
	}
	return strings.ToLower(lang.IsoCode639_1().String()), nil
}

func languageFor(code string) (lingua.Language, bool) {
	code = strings.ToLower(code)
	for _, lang := range lingua.AllLanguages() {
		if strings.ToLower(lang.IsoCode639_1().String()) == code {
			return lang, true
		}
	}
	return lingua.Unknown, false
}
