package dns

import (
	"iter"
	"strings"
)

// ChallengeLabel is the label prepended to a domain for DNS-01 TXT records.
const ChallengeLabel = "_acme-challenge"

// ChallengeName returns the TXT record name for a DNS-01 challenge.
// e.g. "app.example.com" → "_acme-challenge.app.example.com"
func ChallengeName(domain string) string {
	return ChallengeLabel + "." + strings.TrimSuffix(domain, ".")
}

// Candidates yields the possible zone names for a domain, most specific first,
// stripping one leading label at a time until a single label is left.
// e.g. "a.example.co.uk" → "a.example.co.uk", "example.co.uk", "co.uk", "uk"
func Candidates(domain string) iter.Seq[string] {
	domain = strings.TrimSuffix(domain, ".")
	return func(yield func(string) bool) {
		for h := domain; h != ""; {
			if !yield(h) {
				return
			}
			idx := strings.Index(h, ".")
			if idx < 0 {
				return
			}
			h = h[idx+1:]
		}
	}
}
