package intent

import (
	"strings"

	"github.com/antoniostano/pixel/internal/classify"
	"github.com/antoniostano/pixel/internal/history"
)

// Label is the abstract behavioral directive handed to the prompt
// assembler. It is guidance for the generator, never literal reply text.
type Label string

const (
	LabelAcknowledgeNoPressure Label = "acknowledge_without_pressure"
	LabelValidateIdentity      Label = "validate_user_identity"
	LabelClarifyGently         Label = "clarify_gently"
	LabelDefuseCalmly          Label = "defuse_calmly"
	LabelGreetWarmly           Label = "greet_warmly"
	LabelDeflectUnsafe         Label = "deflect_unsafe_topic"
	LabelTeasePlayfully        Label = "tease_playfully"
	LabelEmpathize             Label = "empathize"
	LabelCelebrate             Label = "celebrate"
	LabelChatNaturally         Label = "chat_naturally"
	LabelHostileBoundary       Label = "hostile_boundary"
	LabelNameCorrection        Label = "name_correction"
)

// Descriptor carries the resolved intent plus tone and approach hints.
// Synthesized is set only for the hostile/name-correction intents whose
// wording must stay deterministic and policy-governed; for every other
// intent it is empty and the hints must never be echoed verbatim.
type Descriptor struct {
	MessageType classify.MessageType
	Mood        classify.Mood
	Label       Label
	ToneHint    string
	Approach    string
	RawText     string
	Disengaged  bool
	Synthesized string
}

// disengagedWindow and disengagedMin define the scan: at least two
// short low-information turns among the last four mark the user as
// disengaged, and downstream must not push follow-up questions at them.
const (
	disengagedWindow = 4
	disengagedMin    = 2
	shortTurnTokens  = 3
)

// Resolver maps (type, mood, text, history) to a Descriptor.
type Resolver struct{}

func NewResolver() *Resolver {
	return &Resolver{}
}

func (r *Resolver) Resolve(msgType classify.MessageType, mood classify.Mood, text string, recent []history.Turn) Descriptor {
	d := Descriptor{
		MessageType: msgType,
		Mood:        mood,
		RawText:     text,
		Disengaged:  Disengaged(recent),
	}

	switch msgType {
	case classify.TypeIdentity:
		d.Label = LabelValidateIdentity
		d.ToneHint = "warm and affirming"
		d.Approach = "validate who the user is to you; do not introduce yourself"
	case classify.TypeDryReply:
		d.Label = LabelAcknowledgeNoPressure
		d.ToneHint = "light and unbothered"
		d.Approach = "acknowledge briefly with a playful statement; no questions"
	case classify.TypeConfused:
		d.Label = LabelClarifyGently
		d.ToneHint = "patient"
		d.Approach = "restate the last point simply without condescending"
	case classify.TypeAnnoyed:
		d.Label = LabelDefuseCalmly
		d.ToneHint = "calm and easygoing"
		d.Approach = "lower the temperature; give space, do not push"
	case classify.TypeAckReply:
		d.Label = LabelAcknowledgeNoPressure
		d.ToneHint = "relaxed"
		d.Approach = "mirror the acknowledgement briefly and let the topic rest"
	case classify.TypeGreeting:
		d.Label = LabelGreetWarmly
		d.ToneHint = "friendly"
		d.Approach = "greet back in kind, matching time-of-day phrasing when present"
	case classify.TypeUnsafe:
		d.Label = LabelDeflectUnsafe
		d.ToneHint = "firm but not preachy"
		d.Approach = "decline the topic in one short line and move on"
	case classify.TypeFlirty:
		d.Label = LabelTeasePlayfully
		d.ToneHint = "confident and teasing"
		d.Approach = "deflect the compliment with humor; stay friendly, not romantic"
	case classify.TypeEmotional:
		if mood == classify.MoodExcited {
			d.Label = LabelCelebrate
			d.ToneHint = "high energy"
			d.Approach = "share the excitement in the user's own register"
		} else {
			d.Label = LabelEmpathize
			d.ToneHint = "soft and present"
			d.Approach = "sit with the feeling; no advice unless asked"
		}
	default:
		d.Label = LabelChatNaturally
		d.ToneHint = "casual"
		d.Approach = "respond to exactly what was said, nothing more"
	}

	if d.Disengaged {
		d.Approach += "; user seems disengaged, keep it minimal and ask nothing"
	}
	return d
}

// Hostile builds the dedicated hostile-input descriptor carrying the
// synthesized policy reply. The generation call is skipped for these.
func Hostile(text, reply string) Descriptor {
	return Descriptor{
		MessageType: classify.TypeUnsafe,
		Mood:        classify.MoodIrritated,
		Label:       LabelHostileBoundary,
		RawText:     text,
		Synthesized: reply,
	}
}

// NameCorrection builds the descriptor for a detected name mix-up,
// again with deterministic wording.
func NameCorrection(text, reply string) Descriptor {
	return Descriptor{
		MessageType: classify.TypeIdentity,
		Mood:        classify.MoodNeutral,
		Label:       LabelNameCorrection,
		RawText:     text,
		Synthesized: reply,
	}
}

// Disengaged reports whether at least disengagedMin of the last
// disengagedWindow turns are short low-information acknowledgements.
func Disengaged(recent []history.Turn) bool {
	start := len(recent) - disengagedWindow
	if start < 0 {
		start = 0
	}
	short := 0
	for _, turn := range recent[start:] {
		if turn.Role != history.RoleUser {
			continue
		}
		if isLowInformation(turn.Content) {
			short++
		}
	}
	return short >= disengagedMin
}

func isLowInformation(text string) bool {
	fields := strings.Fields(text)
	if len(fields) == 0 || len(fields) > shortTurnTokens {
		return false
	}
	// Anything with a question or real punctuation still carries intent.
	if strings.ContainsAny(text, "?!") {
		return false
	}
	return true
}
