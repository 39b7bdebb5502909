package policy

import "regexp"

// piiRules are applied in order; card runs before phone so a card
// number is not half-matched as a phone number.
var piiRules = []struct {
	pattern *regexp.Regexp
	mask    string
}{
	{regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`), "[REDACTED_EMAIL]"},
	{regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`), "[REDACTED_CARD]"},
	{regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`), "[REDACTED_PHONE]"},
}

// RedactPII masks emails, card numbers and phone numbers before a
// payload is persisted. The safety filter blocks whole messages;
// redaction is the second line for storable text that still carries
// contact details.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	for _, rule := range piiRules {
		next := rule.pattern.ReplaceAllString(out, rule.mask)
		changed = changed || next != out
		out = next
	}
	return out, changed
}
