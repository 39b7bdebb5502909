package persona

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// Config is the static persona description loaded once at startup and
// treated as read-only by every component.
type Config struct {
	Identity   Identity   `json:"identity"`
	Tone       Tone       `json:"tone"`
	Boundaries Boundaries `json:"boundaries"`
	Context    Context    `json:"context"`
	Limits     Limits     `json:"limits"`
	Keywords   Keywords   `json:"keywords"`
	Templates  Templates  `json:"templates"`
}

type Identity struct {
	Name         string   `json:"name"`
	CoreIdentity string   `json:"core_identity"`
	Personality  string   `json:"personality"`
	Interests    []string `json:"interests"`
	Introduction string   `json:"introduction"`
}

type Tone struct {
	LanguageStyle string   `json:"language_style"`
	Pronouns      string   `json:"pronouns"`
	Voice         string   `json:"voice"`
	EmojiAllowed  []string `json:"emoji_allowed"`
	MaxEmoji      int      `json:"max_emoji_per_reply"`
}

type Boundaries struct {
	HardBans []string `json:"hard_bans"`
}

// Context carries the interaction style per chat context. Lookup falls
// back group -> private -> default so the assembler always has a style.
type Context struct {
	Group   string `json:"group_interaction_style"`
	Private string `json:"private_interaction_style"`
	Default string `json:"default_interaction_style"`
}

// CategoryLimit bounds replies for one message category.
type CategoryLimit struct {
	MaxWords int `json:"max_words"`
	MaxLines int `json:"max_lines"`
}

type Limits struct {
	Default            CategoryLimit            `json:"default"`
	Categories         map[string]CategoryLimit `json:"categories"`
	ForbiddenFragments []string                 `json:"forbidden_fragments"`
	EmojiGlyphs        []string                 `json:"emoji_glyphs"`
	ConnectorWords     []string                 `json:"connector_words"`
}

// Keywords are the ordered-rule vocabularies. All matching is
// case-insensitive substring membership; the lists mix English and
// informal Hinglish spellings on purpose.
type Keywords struct {
	IdentityQuestion []string `json:"identity_question"`
	Uninterested     []string `json:"uninterested"`
	Confusion        []string `json:"confusion"`
	Annoyance        []string `json:"annoyance"`
	Acknowledgement  []string `json:"acknowledgement"`
	Greeting         []string `json:"greeting"`
	Unsafe           []string `json:"unsafe"`
	Flirty           []string `json:"flirty"`
	Emotional        []string `json:"emotional"`
	HighEnergy       []string `json:"high_energy"`
	LowEnergy        []string `json:"low_energy"`
	Hostile          []string `json:"hostile"`
	Dangerous        []string `json:"dangerous"`
}

// Templates are the only literal canned replies the whole system is
// allowed to emit; hostility and name corrections must stay auditable.
type Templates struct {
	HostileReplies    []string `json:"hostile_replies"`
	CorrectionReplies []string `json:"correction_replies"`
	Fallback          string   `json:"fallback"`
}

// categoryFiles maps persona directory files to config sections. A
// missing file keeps the built-in default for that section; a malformed
// one is a fatal configuration error.
var categoryFiles = map[string]func(*Config) any{
	"identity.json":   func(c *Config) any { return &c.Identity },
	"tone.json":       func(c *Config) any { return &c.Tone },
	"boundaries.json": func(c *Config) any { return &c.Boundaries },
	"context.json":    func(c *Config) any { return &c.Context },
	"limits.json":     func(c *Config) any { return &c.Limits },
	"keywords.json":   func(c *Config) any { return &c.Keywords },
	"templates.json":  func(c *Config) any { return &c.Templates },
}

// Load reads persona JSON documents from dir, starting from Default()
// so absent files and keys degrade to documented defaults.
func Load(dir string) (Config, error) {
	cfg := Default()
	if strings.TrimSpace(dir) == "" {
		return cfg, nil
	}

	for name, section := range categoryFiles {
		path := filepath.Join(dir, name)
		data, err := os.ReadFile(path)
		if err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return Config{}, fmt.Errorf("read persona file %s: %w", path, err)
		}
		if err := json.Unmarshal(data, section(&cfg)); err != nil {
			return Config{}, fmt.Errorf("parse persona file %s: %w", path, err)
		}
	}

	cfg.fillMissing()
	return cfg, nil
}

// Default returns the built-in persona used when no directory is given.
func Default() Config {
	cfg := Config{
		Identity: Identity{
			Name:         "Pixel",
			CoreIdentity: "a sweet Gen-Z friend who chats in casual Hinglish",
			Personality:  "confident, playful, a little sarcastic, never clingy",
			Interests:    []string{"music", "memes", "late-night talks"},
			Introduction: "Pixel hoon, aapki sweet friend",
		},
		Tone: Tone{
			LanguageStyle: "casual Hinglish, short sentences, no formal words",
			Pronouns:      "female first person",
			Voice:         "warm, confident, lightly teasing",
			EmojiAllowed:  []string{"🙂", "😊", "✨"},
			MaxEmoji:      1,
		},
		Boundaries: Boundaries{
			HardBans: []string{
				"no adult content",
				"no real-world meetups, addresses or timings",
				"no breaking character",
			},
		},
		Context: Context{
			Group:   "reply only when addressed, keep it brief, never dominate the chat",
			Private: "friendly and warm like a close friend, match the user's energy",
			Default: "friendly, warm and respectful like a Gen-Z friend",
		},
		Limits: Limits{
			Default: CategoryLimit{MaxWords: 15, MaxLines: 1},
			Categories: map[string]CategoryLimit{
				"dry_reply": {MaxWords: 6, MaxLines: 1},
				"greeting":  {MaxWords: 8, MaxLines: 1},
				"emotional": {MaxWords: 20, MaxLines: 1},
				"flirty":    {MaxWords: 12, MaxLines: 1},
				"casual":    {MaxWords: 15, MaxLines: 1},
				"ack_reply": {MaxWords: 6, MaxLines: 1},
				"confused":  {MaxWords: 10, MaxLines: 1},
				"annoyed":   {MaxWords: 10, MaxLines: 1},
				"identity":  {MaxWords: 10, MaxLines: 1},
				"unsafe":    {MaxWords: 10, MaxLines: 1},
			},
			ForbiddenFragments: []string{
				"samjhi...",
				"what happened?",
				"that sounds cool",
				"empty fillers",
				"random english",
			},
			EmojiGlyphs: []string{"🙂", "😊", "💕", "✨", "😍", "😉", "🎉"},
			ConnectorWords: []string{
				"the", "and", "but", "hai", "hu", "mai", "kya", "kyun", "kaise",
			},
		},
		Keywords: Keywords{
			IdentityQuestion: []string{"ham kon h", "main kon hoon", "who am i", "mera naam kya h"},
			Uninterested:     []string{"ok", "hmm", "acha", "thik", "han", "yes", "no", "k", "sahi"},
			Confusion:        []string{"kya", "what", "huh", "matlab", "kaise", "why", "kyu"},
			Annoyance:        []string{"ugh", "uff", "offo", "bas", "chup", "stop"},
			Acknowledgement:  []string{"haan", "theek", "right", "fine", "cool", "okay"},
			Greeting:         []string{"hello", "hi", "hey", "good morning", "good night", "bye"},
			Unsafe: []string{
				"porn", "xxx", "nude", "adult", "sex", "horny", "sexy",
				"kutte", "gaand", "randi", "hijra",
			},
			Flirty:     []string{"cute", "beautiful", "love", "date", "crush", "marry"},
			Emotional:  []string{"sad", "cry", "depressed", "happy", "excited", "angry"},
			HighEnergy: []string{"wow", "amazing", "awesome", "wooo", "yay", "omg"},
			LowEnergy: []string{
				"sad", "bad", "bekar", "bura", "upset", "depressed", "faltu",
				"bakwas", "boring", "pakau", "irritating", "ganda",
			},
			Hostile: []string{
				"stupid", "idiot", "bakwas", "chutiya", "madarchod", "bhosdi",
				"pagal hai kya", "nonsense", "shut up",
			},
			Dangerous: []string{
				"meet", "milna", "milenge", "aa rahi hoon", "aaunga",
				"address", "ghar", "home", "location", "where are you",
				"baje", "kal", "tomorrow", "place",
			},
		},
		Templates: Templates{
			HostileReplies: []string{
				"itna attitude kisliye? tameez se baat karo",
				"rude hona zaroori hai kya? main bhi ignore kar sakti hoon",
				"aise baat karoge toh reply nahi milega",
			},
			CorrectionReplies: []string{
				"oops, sorry {name}! ab yaad rahega",
				"got it {name}, galti ho gayi",
				"theek hai {name}, note kar liya",
			},
			Fallback: "sorry... thoda network issue, ek minute",
		},
	}
	return cfg
}

// fillMissing patches holes left by sparse persona files back to the
// built-in defaults so a partial config can never crash a component.
func (c *Config) fillMissing() {
	def := Default()
	if strings.TrimSpace(c.Identity.Name) == "" {
		c.Identity.Name = def.Identity.Name
	}
	if strings.TrimSpace(c.Identity.Introduction) == "" {
		c.Identity.Introduction = def.Identity.Introduction
	}
	if strings.TrimSpace(c.Context.Default) == "" {
		c.Context.Default = def.Context.Default
	}
	if c.Limits.Default.MaxWords <= 0 {
		c.Limits.Default.MaxWords = def.Limits.Default.MaxWords
	}
	if c.Limits.Default.MaxLines <= 0 {
		c.Limits.Default.MaxLines = def.Limits.Default.MaxLines
	}
	if c.Limits.Categories == nil {
		c.Limits.Categories = def.Limits.Categories
	}
	if len(c.Limits.EmojiGlyphs) == 0 {
		c.Limits.EmojiGlyphs = def.Limits.EmojiGlyphs
	}
	if len(c.Limits.ConnectorWords) == 0 {
		c.Limits.ConnectorWords = def.Limits.ConnectorWords
	}
	fillList(&c.Keywords.IdentityQuestion, def.Keywords.IdentityQuestion)
	fillList(&c.Keywords.Uninterested, def.Keywords.Uninterested)
	fillList(&c.Keywords.Confusion, def.Keywords.Confusion)
	fillList(&c.Keywords.Annoyance, def.Keywords.Annoyance)
	fillList(&c.Keywords.Acknowledgement, def.Keywords.Acknowledgement)
	fillList(&c.Keywords.Greeting, def.Keywords.Greeting)
	fillList(&c.Keywords.Unsafe, def.Keywords.Unsafe)
	fillList(&c.Keywords.Flirty, def.Keywords.Flirty)
	fillList(&c.Keywords.Emotional, def.Keywords.Emotional)
	fillList(&c.Keywords.HighEnergy, def.Keywords.HighEnergy)
	fillList(&c.Keywords.LowEnergy, def.Keywords.LowEnergy)
	fillList(&c.Keywords.Hostile, def.Keywords.Hostile)
	fillList(&c.Keywords.Dangerous, def.Keywords.Dangerous)
	if len(c.Templates.HostileReplies) == 0 {
		c.Templates.HostileReplies = def.Templates.HostileReplies
	}
	if len(c.Templates.CorrectionReplies) == 0 {
		c.Templates.CorrectionReplies = def.Templates.CorrectionReplies
	}
	if strings.TrimSpace(c.Templates.Fallback) == "" {
		c.Templates.Fallback = def.Templates.Fallback
	}
}

func fillList(dst *[]string, def []string) {
	if len(*dst) == 0 {
		*dst = def
	}
}

// InteractionStyle resolves the context style with the documented
// group -> private -> default fallback chain.
func (c *Config) InteractionStyle(isGroup bool) string {
	if isGroup && strings.TrimSpace(c.Context.Group) != "" {
		return c.Context.Group
	}
	if strings.TrimSpace(c.Context.Private) != "" {
		return c.Context.Private
	}
	return c.Context.Default
}

// LimitFor returns the word/line budget for a message category, falling
// back to the global default when the category is not configured.
func (c *Config) LimitFor(category string) CategoryLimit {
	if l, ok := c.Limits.Categories[category]; ok && l.MaxWords > 0 {
		if l.MaxLines <= 0 {
			l.MaxLines = c.Limits.Default.MaxLines
		}
		return l
	}
	return c.Limits.Default
}
