package anonymizer

import "strings"

// Strategy selects how detected entities are substituted
type Strategy string

const (
	// ConsistentTokens replaces each entity with a session-stable token
	ConsistentTokens Strategy = "consistent_tokens"
	// Masking keeps the first and last character of each entity
	Masking Strategy = "masking"
	// Hashing replaces each entity with a short numeric digest tag
	Hashing Strategy = "hashing"
)

// Strategies returns every supported strategy
func Strategies() []Strategy {
	return []Strategy{ConsistentTokens, Masking, Hashing}
}

// StrategyNames returns every supported strategy name
func StrategyNames() []string {
	names := make([]string, 0, 3)
	for _, s := range Strategies() {
		names = append(names, string(s))
	}
	return names
}

// ParseStrategy validates a strategy name
func ParseStrategy(name string) (Strategy, error) {
	for _, s := range Strategies() {
		if string(s) == name {
			return s, nil
		}
	}
	return "", &ConfigError{Field: "strategy", Value: name, Allowed: StrategyNames()}
}

// Substituter produces replacements for surface text
type Substituter interface {
	GetToken(entity string) string
	Mask(entity string) string
	Hash(entity string) string
}

// substitution resolves the strategy to its replacement function once
func (s Strategy) substitution(sub Substituter) func(string) string {
	switch s {
	case Masking:
		return sub.Mask
	case Hashing:
		return sub.Hash
	default:
		return sub.GetToken
	}
}

func (s Strategy) String() string {
	return string(s)
}

func joinAllowed(allowed []string) string {
	return strings.Join(allowed, ", ")
}
