package ner

import "strings"

// DecodeBIO turns per-token labels into entity spans over text.
// Only the first piece of each word decides its label; later pieces
// extend the current entity. An I- tag of a different type, or one
// with no open entity, starts a new entity.
func DecodeBIO(text string, tokens []Token, labels []string) []Span {
	var (
		spans   []Span
		current *Span
		curType string
	)

	closeSpan := func() {
		if current != nil {
			current.Text = text[current.Start:current.End]
			spans = append(spans, *current)
			current = nil
			curType = ""
		}
	}

	prevWord := -1
	for i, tok := range tokens {
		if tok.Word < 0 || i >= len(labels) {
			continue
		}

		if tok.Word == prevWord {
			if current != nil {
				current.End = tok.End
			}
			continue
		}
		prevWord = tok.Word

		prefix, typ := splitTag(labels[i])
		switch {
		case prefix == "O":
			closeSpan()
		case prefix == "I" && current != nil && typ == curType:
			current.End = tok.End
		default:
			closeSpan()
			current = &Span{Label: typ, Start: tok.Start, End: tok.End}
			curType = typ
		}
	}
	closeSpan()

	return spans
}

// splitTag splits "B-PER" into ("B", "PER"). Bare labels are treated as B-.
func splitTag(tag string) (string, string) {
	if tag == "" || tag == "O" {
		return "O", ""
	}
	if len(tag) > 2 && tag[1] == '-' && (tag[0] == 'B' || tag[0] == 'I') {
		return tag[:1], tag[2:]
	}
	return "B", strings.TrimSpace(tag)
}
