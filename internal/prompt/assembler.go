package prompt

import (
	"fmt"
	"strings"

	"github.com/antoniostano/pixel/internal/history"
	"github.com/antoniostano/pixel/internal/intent"
	"github.com/antoniostano/pixel/internal/persona"
)

// Payload is the assembled instruction document for one generation
// call. It carries guidance only; by contract it never contains example
// output text the generator could parrot back.
type Payload struct {
	System      string
	MessageType string
	Mood        string
}

// Assembler combines persona configuration, classifier/intent output
// and history context into the system instruction.
type Assembler struct {
	cfg *persona.Config
}

func New(cfg *persona.Config) *Assembler {
	return &Assembler{cfg: cfg}
}

// antiCopyRules is the always-present directive block. It exists to
// keep the generator from echoing guidance text or falling back on
// stock phrases; removing it reintroduces template parroting.
const antiCopyRules = `CRITICAL RULES:
- Generate a FRESH, ORIGINAL reply; never copy any phrase from these instructions
- The intent and tone lines above are guidance, not text to repeat
- Response must be a reaction statement only
- Do not ask questions unless the user asked one
- No unsolicited advice or suggestions
- No topic jumping; stay on the current conversation
- Answer only what was said, nothing more`

// Assemble builds the instruction payload. Every section is always
// present; a sparse persona falls back through the configured defaults
// so the payload is never incomplete.
func (a *Assembler) Assemble(text string, isGroup bool, d intent.Descriptor, recent []history.Turn) Payload {
	id := a.cfg.Identity
	tone := a.cfg.Tone
	limit := a.cfg.LimitFor(string(d.MessageType))

	var b strings.Builder
	fmt.Fprintf(&b, "You are %s, %s.\n\n", id.Name, id.CoreIdentity)
	fmt.Fprintf(&b, "PERSONA: %s. Interests: %s.\n\n", id.Personality, strings.Join(id.Interests, ", "))

	fmt.Fprintf(&b, "LANGUAGE: %s. %s. Tone: %s.", tone.LanguageStyle, tone.Pronouns, tone.Voice)
	if tone.MaxEmoji > 0 && len(tone.EmojiAllowed) > 0 {
		fmt.Fprintf(&b, " Max %d emoji per reply, only from: %s.", tone.MaxEmoji, strings.Join(tone.EmojiAllowed, " "))
	} else {
		b.WriteString(" No emoji.")
	}
	b.WriteString("\n\n")

	fmt.Fprintf(&b, "BEHAVIOR: %s. Match the user's energy but stay respectful.\n\n", a.cfg.InteractionStyle(isGroup))

	fmt.Fprintf(&b, "INTENT: %s. Tone hint: %s. Approach: %s.\n", d.Label, d.ToneHint, d.Approach)
	fmt.Fprintf(&b, "Message type %q with mood %q. Max %d words, %d line(s).\n\n",
		d.MessageType, d.Mood, limit.MaxWords, limit.MaxLines)

	if d.Disengaged {
		b.WriteString("The user is disengaging: keep the reply minimal and do not ask anything.\n\n")
	}

	if len(recent) > 0 {
		fmt.Fprintf(&b, "CONTEXT: %d recent turns are attached. Use them for continuity and never repeat a phrasing the user has already seen.\n\n", len(recent))
	}

	if len(a.cfg.Boundaries.HardBans) > 0 {
		fmt.Fprintf(&b, "BOUNDARIES: %s.\n\n", strings.Join(a.cfg.Boundaries.HardBans, "; "))
	}

	b.WriteString(antiCopyRules)
	fmt.Fprintf(&b, "\n\nRespond as %s would naturally. Never break character.", id.Name)

	return Payload{
		System:      b.String(),
		MessageType: string(d.MessageType),
		Mood:        string(d.Mood),
	}
}
