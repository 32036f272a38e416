package token

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"github.com/google/uuid"
)

const (
	tokenPrefix = "TOKEN_"
	hashPrefix  = "HASH_"
	hashModulus = 1_000_000
)

// Registry issues substitutes for one anonymization session.
// It is not safe for concurrent use; create one per session.
type Registry struct {
	tokens map[string]string
	issued map[string]struct{}
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		tokens: make(map[string]string),
		issued: make(map[string]struct{}),
	}
}

// GetToken returns the token for entity, issuing a new one on first use
func (r *Registry) GetToken(entity string) string {
	if tok, ok := r.tokens[entity]; ok {
		return tok
	}

	tok := newToken()
	for {
		if _, taken := r.issued[tok]; !taken {
			break
		}
		tok = newToken()
	}

	r.tokens[entity] = tok
	r.issued[tok] = struct{}{}
	return tok
}

// Len returns the number of tokens issued so far
func (r *Registry) Len() int {
	return len(r.tokens)
}

// Mask keeps the first and last character and stars the rest.
// Entities of two characters or fewer are fully starred.
func (r *Registry) Mask(entity string) string {
	return Mask(entity)
}

// Hash returns the short numeric tag for entity
func (r *Registry) Hash(entity string) string {
	return Hash(entity)
}

// Mask is the stateless masking transform
func Mask(entity string) string {
	n := utf8.RuneCountInString(entity)
	if n <= 2 {
		return strings.Repeat("*", n)
	}

	first, _ := utf8.DecodeRuneInString(entity)
	last, _ := utf8.DecodeLastRuneInString(entity)

	var b strings.Builder
	b.Grow(len(entity))
	b.WriteRune(first)
	b.WriteString(strings.Repeat("*", n-2))
	b.WriteRune(last)
	return b.String()
}

// Hash is the stateless hashing transform. The digest is reduced modulo
// one million, so distinct entities can share a tag.
func Hash(entity string) string {
	return fmt.Sprintf("%s%d", hashPrefix, xxhash.Sum64String(entity)%hashModulus)
}

func newToken() string {
	id := uuid.New()
	return tokenPrefix + id.String()[:8]
}
