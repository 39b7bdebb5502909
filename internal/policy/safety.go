package policy

import (
	"strings"

	"github.com/antoniostano/pixel/internal/persona"
)

// Decision explains why a message was blocked from storage or handling.
type Decision struct {
	Blocked bool
	Reason  string
}

// Filter screens inbound text for content that must never reach storage
// or the generation call: hostility and real-world meeting coordination
// (addresses, locations, timings).
type Filter struct {
	dangerous []string
	hostile   []string
}

func NewFilter(cfg *persona.Config) *Filter {
	return &Filter{
		dangerous: lowerAll(cfg.Keywords.Dangerous),
		hostile:   lowerAll(cfg.Keywords.Hostile),
	}
}

// CheckStorable decides whether a message may be written to history.
// Dangerous real-world coordination and hostile content are both kept
// out of storage.
func (f *Filter) CheckStorable(text string) Decision {
	lower := strings.ToLower(text)
	for _, kw := range f.dangerous {
		if kw != "" && strings.Contains(lower, kw) {
			return Decision{Blocked: true, Reason: "real_world_data"}
		}
	}
	for _, kw := range f.hostile {
		if kw != "" && strings.Contains(lower, kw) {
			return Decision{Blocked: true, Reason: "hostile"}
		}
	}
	return Decision{}
}

// IsHostile reports whether the text matches the configured hostility
// list. Matching is case-insensitive over the mixed-language keywords.
func (f *Filter) IsHostile(text string) bool {
	lower := strings.ToLower(text)
	for _, kw := range f.hostile {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
