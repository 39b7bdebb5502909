package validate

import (
	"strings"

	"github.com/antoniostano/pixel/internal/classify"
	"github.com/antoniostano/pixel/internal/persona"
)

// Validator trims generated replies to the budget of their message
// category. Output is always a single line and never exceeds the
// category's word budget once emoji glyphs are excluded.
type Validator struct {
	cfg *persona.Config
}

func New(cfg *persona.Config) *Validator {
	return &Validator{cfg: cfg}
}

// Validate enforces the word/line budget for msgType. Over-budget
// replies first lose short connector words, then get hard-truncated
// with a preference for sentence-ending punctuation over a mid-clause
// cut. Replies that already match a forbidden fragment are returned
// unmodified: truncation must not make a bad reply worse.
func (v *Validator) Validate(raw string, msgType classify.MessageType) string {
	reply := collapseLines(raw)
	if strings.TrimSpace(reply) == "" {
		return ""
	}

	limit := v.cfg.LimitFor(string(msgType))
	if v.countWords(reply) <= limit.MaxWords {
		return reply
	}

	// A reply that is already low-information filler only gets worse
	// when mangled further.
	lower := strings.ToLower(reply)
	for _, fragment := range v.cfg.Limits.ForbiddenFragments {
		if fragment != "" && strings.Contains(lower, strings.ToLower(fragment)) {
			return reply
		}
	}

	if shortened := v.dropConnectors(reply); v.countWords(shortened) <= limit.MaxWords {
		return shortened
	}

	return v.truncate(reply, limit.MaxWords)
}

// countWords counts whitespace-separated words, excluding configured
// emoji glyphs so a trailing emoji never costs budget.
func (v *Validator) countWords(s string) int {
	n := 0
	for _, w := range strings.Fields(s) {
		if !v.isEmojiWord(w) {
			n++
		}
	}
	return n
}

func (v *Validator) isEmojiWord(w string) bool {
	for _, glyph := range v.cfg.Limits.EmojiGlyphs {
		if glyph != "" && strings.HasPrefix(w, glyph) {
			return true
		}
	}
	return false
}

// dropConnectors removes the configured low-information connector words.
func (v *Validator) dropConnectors(s string) string {
	kept := make([]string, 0, 8)
	for _, w := range strings.Fields(s) {
		if v.isConnector(w) {
			continue
		}
		kept = append(kept, w)
	}
	return strings.Join(kept, " ")
}

func (v *Validator) isConnector(w string) bool {
	trimmed := strings.ToLower(strings.Trim(w, ".,!?"))
	for _, c := range v.cfg.Limits.ConnectorWords {
		if trimmed == c {
			return true
		}
	}
	return false
}

// truncate keeps at most maxWords countable words, then backtracks to
// the nearest sentence-ending punctuation so the cut lands on a
// complete thought whenever one exists.
func (v *Validator) truncate(s string, maxWords int) string {
	words := strings.Fields(s)
	kept := make([]string, 0, len(words))
	count := 0
	for _, w := range words {
		if !v.isEmojiWord(w) {
			count++
		}
		if count > maxWords {
			break
		}
		kept = append(kept, w)
	}

	out := strings.Join(kept, " ")
	if idx := lastSentenceEnd(out); idx > 0 {
		out = out[:idx+1]
	}
	return strings.TrimSpace(out)
}

func lastSentenceEnd(s string) int {
	for i := len(s) - 1; i >= 0; i-- {
		switch s[i] {
		case '.', '?', '!':
			return i
		}
	}
	return -1
}

// collapseLines folds embedded line breaks into single spaces; replies
// are always delivered as one line.
func collapseLines(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(strings.Join(strings.Fields(s), " "))
}
