package engine

import (
	"context"
	"log"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/antoniostano/pixel/internal/classify"
	"github.com/antoniostano/pixel/internal/generate"
	"github.com/antoniostano/pixel/internal/history"
	"github.com/antoniostano/pixel/internal/intent"
	"github.com/antoniostano/pixel/internal/memory"
	"github.com/antoniostano/pixel/internal/observability"
	"github.com/antoniostano/pixel/internal/persona"
	"github.com/antoniostano/pixel/internal/prompt"
	"github.com/antoniostano/pixel/internal/protocol"
	"github.com/antoniostano/pixel/internal/validate"
)

const lockStripes = 64

// namePatterns capture self-introductions in either language. The
// captured token is the name the user wants remembered.
var namePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bmy name is ([\p{L}]+)`),
	regexp.MustCompile(`(?i)\bmera naam ([\p{L}]+) hai\b`),
	regexp.MustCompile(`(?i)\bmain ([\p{L}]+) hoon\b`),
}

// Deps collects everything the pipeline needs. All fields except Store
// and Stages are required.
type Deps struct {
	Persona    *persona.Config
	Classifier *classify.Classifier
	Resolver   *intent.Resolver
	Memory     *memory.Store
	Windows    *history.Windows
	Store      *history.Sharded
	Assembler  *prompt.Assembler
	Validator  *validate.Validator
	Client     generate.Client
	Metrics    *observability.Metrics
	Stages     *observability.StageWindow

	// RateLimit is the minimum gap between messages from one user.
	// Zero disables limiting.
	RateLimit time.Duration
	// Retention bounds how long shard records survive between sweeps.
	Retention time.Duration
}

// Engine runs the full decision pipeline for one inbound message:
// gating, classification, intent resolution, memory, prompt assembly,
// generation and validation. Messages from the same conversation are
// serialized on a striped lock so history reads and writes stay ordered.
type Engine struct {
	deps    Deps
	mention string

	stripes [lockStripes]sync.Mutex

	limiterMu sync.Mutex
	lastSeen  map[string]time.Time
}

func New(deps Deps) *Engine {
	return &Engine{
		deps:     deps,
		mention:  "@" + strings.ToLower(deps.Persona.Identity.Name),
		lastSeen: make(map[string]time.Time),
	}
}

// HandleMessage processes one inbound turn and returns the reply event.
// A Silent reply means the engine deliberately chose not to answer; the
// transport should drop it rather than deliver it.
func (e *Engine) HandleMessage(ctx context.Context, msg protocol.UserMessage) (protocol.AssistantReply, error) {
	start := time.Now()
	text := strings.TrimSpace(msg.Text)

	if silent, reason := e.shouldStaySilent(msg, text); silent {
		log.Printf("staying silent for user %s: %s", msg.UserID, reason)
		return e.silentReply(msg), nil
	}
	text = e.stripMention(text)

	lock := e.stripeFor(msg.UserID, msg.ChatID)
	lock.Lock()
	defer lock.Unlock()

	key := history.Key{UserID: msg.UserID, ChatID: msg.ChatID}
	reply := e.respond(ctx, msg, key, text)

	elapsed := time.Since(start)
	e.deps.Metrics.ObservePipelineLatency(elapsed)
	if e.deps.Stages != nil {
		e.deps.Stages.Observe(observability.StageTotal, float64(elapsed.Milliseconds()))
	}
	return reply, nil
}

func (e *Engine) respond(ctx context.Context, msg protocol.UserMessage, key history.Key, text string) protocol.AssistantReply {
	stageStart := time.Now()
	msgType, mood := e.deps.Classifier.Classify(text, msg.IsGroup)
	e.observeStage(observability.StageClassify, stageStart)
	e.deps.Metrics.MessagesHandled.WithLabelValues(string(msgType), string(mood)).Inc()

	// Hostility is answered from templates, never from generation.
	if e.deps.Memory.IsHostile(text) {
		e.deps.Metrics.HostileBlocked.Inc()
		e.observeIndicator("hostile_blocked")
		d := intent.Hostile(text, e.deps.Memory.SynthesizeHostileReply(msg.UserID))
		e.recordExchange(ctx, msg, key, text, d.Synthesized)
		return e.reply(msg, d.Synthesized, d.MessageType, d.Mood)
	}

	if name, ok := extractName(text); ok {
		if e.deps.Memory.DetectNameConfusion(msg.UserID, name) {
			d := intent.NameCorrection(text, e.deps.Memory.SynthesizeCorrectionReply(msg.UserID))
			e.recordExchange(ctx, msg, key, text, d.Synthesized)
			return e.reply(msg, d.Synthesized, d.MessageType, d.Mood)
		}
		if !e.deps.Memory.ConfirmName(msg.UserID, name) {
			log.Printf("name confirmation dropped for user %s", msg.UserID)
		}
	}

	recent := e.deps.Windows.Recent(key, 0)

	stageStart = time.Now()
	d := e.deps.Resolver.Resolve(msgType, mood, text, recent)
	e.observeStage(observability.StageResolve, stageStart)
	if d.Disengaged {
		e.deps.Metrics.DisengagedTurns.Inc()
	}

	e.deps.Windows.Append(key, history.Turn{Role: history.RoleUser, Content: text})
	e.persistTurn(ctx, msg, text)

	// Generation sees the window including the turn being answered;
	// the pre-append slice above only feeds the disengagement check.
	turns := e.deps.Windows.Recent(key, 0)
	payload := e.deps.Assembler.Assemble(text, msg.IsGroup, d, turns)

	stageStart = time.Now()
	raw, err := e.deps.Client.Generate(ctx, payload, turns)
	e.observeStage(observability.StageGenerate, stageStart)
	if err != nil {
		log.Printf("generation failed for user %s: %v", msg.UserID, err)
		e.deps.Metrics.GenerationCalls.WithLabelValues("error").Inc()
		raw = e.deps.Persona.Templates.Fallback
		e.deps.Metrics.FallbackReplies.Inc()
		e.observeIndicator("fallback_reply")
	} else {
		e.deps.Metrics.GenerationCalls.WithLabelValues("ok").Inc()
	}

	stageStart = time.Now()
	reply := e.deps.Validator.Validate(raw, msgType)
	e.observeStage(observability.StageValidate, stageStart)
	if reply == "" {
		if msgType == classify.TypeIdentity {
			reply = e.deps.Persona.Identity.Introduction
		} else {
			reply = e.deps.Persona.Templates.Fallback
			e.deps.Metrics.FallbackReplies.Inc()
			e.observeIndicator("fallback_reply")
		}
	}

	e.deps.Windows.Append(key, history.Turn{Role: history.RoleAssistant, Content: reply})
	return e.reply(msg, reply, msgType, mood)
}

// recordExchange stores a template-answered turn so later turns still
// see it in context.
func (e *Engine) recordExchange(ctx context.Context, msg protocol.UserMessage, key history.Key, text, reply string) {
	e.deps.Windows.Append(key, history.Turn{Role: history.RoleUser, Content: text})
	e.deps.Windows.Append(key, history.Turn{Role: history.RoleAssistant, Content: reply})
	e.persistTurn(ctx, msg, text)
}

func (e *Engine) persistTurn(ctx context.Context, msg protocol.UserMessage, text string) {
	if e.deps.Store == nil || e.deps.Store.ShardCount() == 0 {
		return
	}
	stageStart := time.Now()
	stored, err := e.deps.Store.WriteTurn(ctx, msg.UserID, msg.DisplayName, text)
	e.observeStage(observability.StageStore, stageStart)
	switch {
	case err != nil:
		log.Printf("history write failed for user %s: %v", msg.UserID, err)
		e.deps.Metrics.ShardOps.WithLabelValues("write", "error").Inc()
	case !stored:
		e.deps.Metrics.StorageBlocked.Inc()
		e.deps.Metrics.ShardOps.WithLabelValues("write", "blocked").Inc()
	default:
		e.deps.Metrics.ShardOps.WithLabelValues("write", "ok").Inc()
	}
}

func (e *Engine) shouldStaySilent(msg protocol.UserMessage, text string) (bool, string) {
	if text == "" {
		return true, "empty message"
	}
	// Slash commands are for whatever bot they name, not for us.
	if strings.HasPrefix(text, "/") && !strings.Contains(strings.ToLower(text), e.mention) {
		return true, "command for another bot"
	}
	if msg.IsGroup && !e.addressedToUs(msg, text) {
		return true, "unaddressed group message"
	}
	if e.rateLimited(msg.UserID) {
		return true, "rate limited"
	}
	return false, ""
}

// addressedToUs gates group chatter: reply only when mentioned, replied
// to, or called by name.
func (e *Engine) addressedToUs(msg protocol.UserMessage, text string) bool {
	if msg.Mentioned || msg.IsReplyToUs {
		return true
	}
	lower := strings.ToLower(text)
	name := strings.ToLower(e.deps.Persona.Identity.Name)
	for _, tok := range strings.FieldsFunc(lower, func(r rune) bool {
		return r == ' ' || r == ',' || r == '.' || r == '!' || r == '?'
	}) {
		if tok == name || tok == e.mention {
			return true
		}
	}
	return false
}

func (e *Engine) rateLimited(userID string) bool {
	if e.deps.RateLimit <= 0 {
		return false
	}
	now := time.Now()
	e.limiterMu.Lock()
	defer e.limiterMu.Unlock()
	if last, ok := e.lastSeen[userID]; ok && now.Sub(last) < e.deps.RateLimit {
		return true
	}
	e.lastSeen[userID] = now
	return false
}

func (e *Engine) stripMention(text string) string {
	fields := strings.Fields(text)
	kept := fields[:0]
	for _, f := range fields {
		if strings.ToLower(strings.Trim(f, ",.!?")) == e.mention {
			continue
		}
		kept = append(kept, f)
	}
	return strings.Join(kept, " ")
}

func (e *Engine) stripeFor(userID, chatID string) *sync.Mutex {
	idx := xxhash.Sum64String(userID+"\x00"+chatID) % lockStripes
	return &e.stripes[idx]
}

func (e *Engine) reply(msg protocol.UserMessage, text string, msgType classify.MessageType, mood classify.Mood) protocol.AssistantReply {
	return protocol.AssistantReply{
		Type:        protocol.TypeAssistantReply,
		UserID:      msg.UserID,
		ChatID:      msg.ChatID,
		Text:        text,
		MessageKind: string(msgType),
		Mood:        string(mood),
		TSMs:        time.Now().UnixMilli(),
	}
}

func (e *Engine) silentReply(msg protocol.UserMessage) protocol.AssistantReply {
	return protocol.AssistantReply{
		Type:   protocol.TypeAssistantReply,
		UserID: msg.UserID,
		ChatID: msg.ChatID,
		Silent: true,
		TSMs:   time.Now().UnixMilli(),
	}
}

func (e *Engine) observeStage(stage string, start time.Time) {
	if e.deps.Stages == nil {
		return
	}
	e.deps.Stages.Observe(stage, float64(time.Since(start).Microseconds())/1000)
}

func (e *Engine) observeIndicator(name string) {
	if e.deps.Stages == nil {
		return
	}
	e.deps.Stages.ObserveIndicator(name)
}

// StartJanitor sweeps expired shard records and stale limiter entries
// until ctx is cancelled.
func (e *Engine) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				e.sweep(ctx)
			}
		}
	}()
}

func (e *Engine) sweep(ctx context.Context) {
	if e.deps.Store != nil && e.deps.Retention > 0 {
		evicted := e.deps.Store.EvictOlderThan(ctx, e.deps.Retention)
		if evicted > 0 {
			log.Printf("evicted %d expired history records", evicted)
			e.deps.Metrics.EvictedRecords.Add(float64(evicted))
		}
	}

	cutoff := time.Now().Add(-10 * e.deps.RateLimit)
	e.limiterMu.Lock()
	for user, last := range e.lastSeen {
		if last.Before(cutoff) {
			delete(e.lastSeen, user)
		}
	}
	e.limiterMu.Unlock()
}

func extractName(text string) (string, bool) {
	for _, re := range namePatterns {
		if m := re.FindStringSubmatch(text); m != nil {
			name := strings.TrimSpace(m[1])
			if name != "" {
				return name, true
			}
		}
	}
	return "", false
}
