package pattern

import "regexp"

// Rule names, also used as the entity type of their matches
const (
	RuleEmail      = "email"
	RulePhoneOrNIF = "phone_or_nif"
	RuleIPAddress  = "ip_address"
	RuleCreditCard = "credit_card"
)

// Rule is a single named detection pattern
type Rule struct {
	Name    string
	Pattern *regexp.Regexp
}

// GetDefaultRules returns the built-in rules in evaluation order.
// Order matters: a surface text matched by an earlier rule keeps that rule's type.
func GetDefaultRules() []Rule {
	return []Rule{
		{
			// Both ends anchored on word runes; RE2's \b is ASCII only
			Name:    RuleEmail,
			Pattern: regexp.MustCompile(`[\p{L}\p{N}_][\p{L}\p{N}_.\-]*@[\p{L}\p{N}_.\-]*[\p{L}\p{N}_]`),
		},
		{
			// Covers bare 9-digit national IDs as well as punctuated international numbers
			Name:    RulePhoneOrNIF,
			Pattern: regexp.MustCompile(`(?:\+\d{1,3}[\s.\-]?)?(?:\(?\d{3}\)?[\s.\-]?){2}\d{3,4}`),
		},
		{
			// No octet range validation
			Name:    RuleIPAddress,
			Pattern: regexp.MustCompile(`\b(?:\d{1,3}\.){3}\d{1,3}\b`),
		},
		{
			Name:    RuleCreditCard,
			Pattern: regexp.MustCompile(`\b(?:\d[ \-]*?){13,16}\b`),
		},
	}
}
