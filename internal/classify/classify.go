package classify

import (
	"strings"

	"github.com/antoniostano/pixel/internal/persona"
)

// MessageType labels the behavioral category of an inbound message.
type MessageType string

const (
	TypeIdentity  MessageType = "identity"
	TypeDryReply  MessageType = "dry_reply"
	TypeConfused  MessageType = "confused"
	TypeAnnoyed   MessageType = "annoyed"
	TypeAckReply  MessageType = "ack_reply"
	TypeGreeting  MessageType = "greeting"
	TypeUnsafe    MessageType = "unsafe"
	TypeFlirty    MessageType = "flirty"
	TypeEmotional MessageType = "emotional"
	TypeCasual    MessageType = "casual"
)

// Mood labels the emotional tone of an inbound message.
type Mood string

const (
	MoodExcited   Mood = "excited"
	MoodNegative  Mood = "negative"
	MoodLowEnergy Mood = "low_energy"
	MoodConfused  Mood = "confused"
	MoodIrritated Mood = "irritated"
	MoodDry       Mood = "dry"
	MoodNeutral   Mood = "neutral"
)

// Token thresholds separating the "short" categories from freeform text.
const (
	shortTypeTokens = 2
	shortMoodTokens = 3
)

// Classifier maps raw text to (MessageType, Mood) with ordered
// first-match-wins keyword rules. It is a pure function of the text and
// the persona keyword lists; no state, no I/O.
type Classifier struct {
	keywords persona.Keywords
}

func New(cfg *persona.Config) *Classifier {
	return &Classifier{keywords: cfg.Keywords}
}

// Classify evaluates the rule ladder in priority order. The order is
// part of the contract: identity question, short uninterested, short
// confusion, short annoyance, short acknowledgement, greeting, unsafe,
// flirty, emotional, then casual. Changing it changes behavior.
func (c *Classifier) Classify(text string, inGroup bool) (MessageType, Mood) {
	lower := strings.ToLower(text)
	tokens := len(strings.Fields(text))
	short := tokens > 0 && tokens <= shortTypeTokens

	msgType := TypeCasual
	switch {
	case containsAny(lower, c.keywords.IdentityQuestion):
		msgType = TypeIdentity
	case short && containsWord(lower, c.keywords.Uninterested):
		msgType = TypeDryReply
	case short && containsWord(lower, c.keywords.Confusion):
		msgType = TypeConfused
	case short && containsWord(lower, c.keywords.Annoyance):
		msgType = TypeAnnoyed
	case short && containsWord(lower, c.keywords.Acknowledgement):
		msgType = TypeAckReply
	case containsAny(lower, c.keywords.Greeting):
		msgType = TypeGreeting
	case containsAny(lower, c.keywords.Unsafe):
		msgType = TypeUnsafe
	case containsAny(lower, c.keywords.Flirty):
		msgType = TypeFlirty
	case containsAny(lower, c.keywords.Emotional):
		msgType = TypeEmotional
	}

	return msgType, c.mood(lower, tokens)
}

// mood runs the independent mood ladder: excited, negative, then the
// short variants, dry, neutral.
func (c *Classifier) mood(lower string, tokens int) Mood {
	short := tokens > 0 && tokens <= shortMoodTokens
	switch {
	case containsAny(lower, c.keywords.HighEnergy) || strings.Contains(lower, "!"):
		return MoodExcited
	case !short && containsAny(lower, c.keywords.LowEnergy):
		return MoodNegative
	case short && containsWord(lower, c.keywords.LowEnergy):
		return MoodLowEnergy
	case short && containsWord(lower, c.keywords.Confusion):
		return MoodConfused
	case short && containsWord(lower, c.keywords.Annoyance):
		return MoodIrritated
	case short:
		return MoodDry
	default:
		return MoodNeutral
	}
}

func containsAny(lower string, keywords []string) bool {
	for _, kw := range keywords {
		if kw != "" && strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}

// containsWord matches whole tokens so that e.g. "ok" does not fire
// inside "joke". Used for the short categories where substring matching
// is too loose.
func containsWord(lower string, keywords []string) bool {
	fields := strings.FieldsFunc(lower, func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	})
	for _, f := range fields {
		for _, kw := range keywords {
			if f == kw {
				return true
			}
		}
	}
	return false
}
