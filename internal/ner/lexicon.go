package ner

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	"github.com/raaihank/text-anonymizer/internal/config"
)

//go:embed lexicons/*.yaml
var embeddedLexicons embed.FS

var wordPattern = regexp.MustCompile(`[\p{L}\p{N}]+(?:-[\p{L}\p{N}]+)*`)

// Lexicon is the gazetteer behind a LexiconModel
type Lexicon struct {
	Language string `yaml:"language"`
	Labels   struct {
		Person       string `yaml:"person"`
		Organization string `yaml:"organization"`
		Location     string `yaml:"location"`
	} `yaml:"labels"`
	Connectors           []string `yaml:"connectors"`
	GivenNames           []string `yaml:"given_names"`
	Surnames             []string `yaml:"surnames"`
	Organizations        []string `yaml:"organizations"`
	OrganizationPrefixes []string `yaml:"organization_prefixes"`
	OrganizationSuffixes []string `yaml:"organization_suffixes"`
	Locations            []string `yaml:"locations"`
}

// LexiconModel tags runs of capitalized words using a per-language gazetteer
type LexiconModel struct {
	name string

	labelPerson string
	labelOrg    string
	labelLoc    string

	connectors    map[string]bool
	givenNames    map[string]bool
	surnames      map[string]bool
	organizations map[string]bool
	orgPrefixes   map[string]bool
	orgSuffixes   map[string]bool
	locations     map[string]bool
}

type word struct {
	text       string
	start, end int
}

// NewLexiconModel loads the lexicon for lang. A configured lexicon_path
// takes precedence over the built-in lexicon.
func NewLexiconModel(lang string, cfg config.ModelConfig) (*LexiconModel, error) {
	var (
		data []byte
		err  error
	)
	if cfg.LexiconPath != "" {
		data, err = os.ReadFile(cfg.LexiconPath)
	} else {
		data, err = embeddedLexicons.ReadFile("lexicons/" + lang + ".yaml")
	}
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: no lexicon for language %s", ErrModelNotFound, lang)
		}
		return nil, fmt.Errorf("failed to read lexicon for %s: %w", lang, err)
	}

	var lex Lexicon
	if err := yaml.Unmarshal(data, &lex); err != nil {
		return nil, fmt.Errorf("failed to parse lexicon for %s: %w", lang, err)
	}

	name := cfg.Name
	if name == "" {
		name = lang + "_lexicon"
	}
	return NewLexiconModelFrom(name, lex), nil
}

// NewLexiconModelFrom builds a model from an in-memory lexicon
func NewLexiconModelFrom(name string, lex Lexicon) *LexiconModel {
	m := &LexiconModel{
		name:          name,
		labelPerson:   orDefault(lex.Labels.Person, "PERSON"),
		labelOrg:      orDefault(lex.Labels.Organization, "ORG"),
		labelLoc:      orDefault(lex.Labels.Location, "LOC"),
		connectors:    toSet(lex.Connectors),
		givenNames:    toSet(lex.GivenNames),
		surnames:      toSet(lex.Surnames),
		organizations: toSet(lex.Organizations),
		orgPrefixes:   toSet(lex.OrganizationPrefixes),
		orgSuffixes:   toSet(lex.OrganizationSuffixes),
		locations:     toSet(lex.Locations),
	}
	return m
}

// Name returns the configured model name
func (m *LexiconModel) Name() string {
	return m.name
}

// Entities returns labelled spans in order of appearance
func (m *LexiconModel) Entities(ctx context.Context, text string) ([]Span, error) {
	var spans []Span
	for _, run := range m.capitalizedRuns(text) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		// Leading words are dropped until the remainder is recognised,
		// so "Dear John Smith" still yields "John Smith". Surname-only
		// evidence is tried after every stronger reading has failed.
		if span, ok := m.match(text, run, false); ok {
			spans = append(spans, span)
		} else if span, ok := m.match(text, run, true); ok {
			spans = append(spans, span)
		}
	}
	return spans, nil
}

func (m *LexiconModel) match(text string, run []word, weak bool) (Span, bool) {
	for i := range run {
		if m.connectors[run[i].text] {
			continue
		}
		if label, ok := m.classify(run[i:], weak); ok {
			start, end := run[i].start, run[len(run)-1].end
			return Span{Text: text[start:end], Label: label, Start: start, End: end}, true
		}
	}
	return Span{}, false
}

func (m *LexiconModel) classify(words []word, weak bool) (string, bool) {
	phrase := joinWords(words)
	first, last := words[0].text, words[len(words)-1].text
	multi := len(words) > 1

	if weak {
		if multi && m.surnames[last] {
			return m.labelPerson, true
		}
		return "", false
	}

	switch {
	case m.organizations[phrase]:
		return m.labelOrg, true
	case multi && (m.orgPrefixes[first] || m.orgSuffixes[last]):
		return m.labelOrg, true
	case m.locations[phrase]:
		return m.labelLoc, true
	case m.givenNames[first]:
		return m.labelPerson, true
	}
	return "", false
}

// capitalizedRuns groups capitalized words separated only by blanks.
// Connectors may join two capitalized words but never end a run.
func (m *LexiconModel) capitalizedRuns(text string) [][]word {
	var (
		runs    [][]word
		current []word
		pending []word
	)

	flush := func() {
		if len(current) > 0 {
			runs = append(runs, current)
		}
		current, pending = nil, nil
	}

	locs := wordPattern.FindAllStringIndex(text, -1)
	for i, loc := range locs {
		w := word{text: text[loc[0]:loc[1]], start: loc[0], end: loc[1]}

		if i > 0 && !blankGap(text[locs[i-1][1]:loc[0]]) {
			flush()
		}

		switch {
		case isCapitalized(w.text):
			current = append(current, pending...)
			current = append(current, w)
			pending = nil
		case len(current) > 0 && m.connectors[w.text]:
			pending = append(pending, w)
		default:
			flush()
		}
	}
	flush()

	return runs
}

func joinWords(words []word) string {
	parts := make([]string, len(words))
	for i, w := range words {
		parts[i] = w.text
	}
	return strings.Join(parts, " ")
}

func blankGap(gap string) bool {
	if gap == "" {
		return false
	}
	for _, r := range gap {
		if r != ' ' && r != '\t' {
			return false
		}
	}
	return true
}

func isCapitalized(s string) bool {
	r, _ := utf8.DecodeRuneInString(s)
	return unicode.IsUpper(r)
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
