package memory

import (
	"log"
	"strings"
	"sync"
	"time"

	"github.com/antoniostano/pixel/internal/persona"
	"github.com/antoniostano/pixel/internal/policy"
)

// Record holds a user's confirmed identity facts. Created on the first
// explicit self-identification, updated (never merged) on later
// confirmations, and kept for the process lifetime.
type Record struct {
	UserID            string    `json:"user_id"`
	ConfirmedName     string    `json:"confirmed_name"`
	ConfirmationCount int       `json:"confirmation_count"`
	ConfirmedAt       time.Time `json:"confirmed_at"`
}

// Picker selects an index from a template set. Production injects a
// seeded random picker; tests inject a fixed one so synthesized replies
// stay reproducible.
type Picker interface {
	Pick(n int) int
}

// Store is the in-process table of per-user identity facts plus the
// policy-governed synthesized replies for hostile and name-correction
// input. Those are the only canned texts the system may emit.
type Store struct {
	templates       persona.Templates
	filter          *policy.Filter
	picker          Picker
	confusionMargin int

	mu     sync.RWMutex
	users  map[string]*Record
	closed bool
}

// New builds a store. confusionMargin is the edit/length distance above
// which a newly mentioned name counts as a mix-up; values below 1 fall
// back to 2.
func New(cfg *persona.Config, filter *policy.Filter, picker Picker, confusionMargin int) *Store {
	if confusionMargin < 1 {
		confusionMargin = 2
	}
	return &Store{
		templates:       cfg.Templates,
		filter:          filter,
		picker:          picker,
		confusionMargin: confusionMargin,
		users:           make(map[string]*Record),
	}
}

// ConfirmName upserts the user's self-declared name. Idempotent; on an
// unavailable store it fails closed: logs, returns false, never panics.
func (s *Store) ConfirmName(userID, name string) bool {
	name = strings.TrimSpace(name)
	if userID == "" || name == "" {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		log.Printf("memory store closed, dropping name confirmation for user %s", userID)
		return false
	}

	rec, ok := s.users[userID]
	if !ok {
		rec = &Record{UserID: userID}
		s.users[userID] = rec
	}
	rec.ConfirmedName = name
	rec.ConfirmationCount++
	rec.ConfirmedAt = time.Now().UTC()
	return true
}

// GetMemory returns a copy of the user's record, if any.
func (s *Store) GetMemory(userID string) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.users[userID]
	if !ok {
		return Record{}, false
	}
	return *rec, true
}

// DetectNameConfusion reports whether a newly mentioned name is far
// enough from the confirmed one to count as a mix-up. The margin is a
// policy threshold, not an exact-match test, so informal spellings of
// the same name ("Rahul"/"rahul"/"Raahul") do not trigger it.
func (s *Store) DetectNameConfusion(userID, mentioned string) bool {
	mentioned = strings.TrimSpace(mentioned)
	if mentioned == "" {
		return false
	}
	rec, ok := s.GetMemory(userID)
	if !ok || rec.ConfirmedName == "" {
		return false
	}

	a := strings.ToLower(rec.ConfirmedName)
	b := strings.ToLower(mentioned)
	if a == b {
		return false
	}
	return editDistance(a, b) > s.confusionMargin
}

// IsHostile reports whether text trips the configured hostility list.
func (s *Store) IsHostile(text string) bool {
	return s.filter.IsHostile(text)
}

// SynthesizeHostileReply picks a policy-approved boundary-setting reply,
// personalized with the stored name when present.
func (s *Store) SynthesizeHostileReply(userID string) string {
	return s.personalize(userID, s.pickFrom(s.templates.HostileReplies))
}

// SynthesizeCorrectionReply picks a policy-approved apology for a name
// mix-up, personalized with the stored name when present.
func (s *Store) SynthesizeCorrectionReply(userID string) string {
	return s.personalize(userID, s.pickFrom(s.templates.CorrectionReplies))
}

// Close marks the store unavailable; further confirmations fail closed.
func (s *Store) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

func (s *Store) pickFrom(templates []string) string {
	if len(templates) == 0 {
		return ""
	}
	idx := s.picker.Pick(len(templates))
	if idx < 0 || idx >= len(templates) {
		idx = 0
	}
	return templates[idx]
}

func (s *Store) personalize(userID, reply string) string {
	name := "yaar"
	if rec, ok := s.GetMemory(userID); ok && rec.ConfirmedName != "" {
		name = rec.ConfirmedName
	}
	return strings.ReplaceAll(reply, "{name}", name)
}

// editDistance is a plain Levenshtein distance over runes; the name
// vocabulary is tiny so the quadratic cost is irrelevant.
func editDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min3(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

func min3(a, b, c int) int {
	if b < a {
		a = b
	}
	if c < a {
		a = c
	}
	return a
}
