package engine

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/antoniostano/pixel/internal/classify"
	"github.com/antoniostano/pixel/internal/generate"
	"github.com/antoniostano/pixel/internal/history"
	"github.com/antoniostano/pixel/internal/intent"
	"github.com/antoniostano/pixel/internal/memory"
	"github.com/antoniostano/pixel/internal/observability"
	"github.com/antoniostano/pixel/internal/persona"
	"github.com/antoniostano/pixel/internal/policy"
	"github.com/antoniostano/pixel/internal/prompt"
	"github.com/antoniostano/pixel/internal/protocol"
	"github.com/antoniostano/pixel/internal/validate"
)

// Prometheus instruments register globally, so the whole test binary
// shares one Metrics value.
var testMetrics = observability.NewMetrics("pixel_engine_test")

type stubClient struct {
	calls    int
	reply    string
	err      error
	lastSys  string
	lastHist []history.Turn
}

func (s *stubClient) Generate(ctx context.Context, payload prompt.Payload, recent []history.Turn) (string, error) {
	s.calls++
	s.lastSys = payload.System
	s.lastHist = append([]history.Turn(nil), recent...)
	return s.reply, s.err
}

var _ generate.Client = (*stubClient)(nil)

func newTestEngine(t *testing.T, client generate.Client, rateLimit time.Duration) *Engine {
	t.Helper()
	cfg := persona.Default()
	filter := policy.NewFilter(&cfg)
	windows, err := history.NewWindows(128, 15)
	if err != nil {
		t.Fatalf("NewWindows() error = %v", err)
	}
	return New(Deps{
		Persona:    &cfg,
		Classifier: classify.New(&cfg),
		Resolver:   intent.NewResolver(),
		Memory:     memory.New(&cfg, filter, memory.FixedPicker(0), 0),
		Windows:    windows,
		Assembler:  prompt.New(&cfg),
		Validator:  validate.New(&cfg),
		Client:     client,
		Metrics:    testMetrics,
		Stages:     observability.NewStageWindow(32),
		RateLimit:  rateLimit,
	})
}

func msg(userID, text string) protocol.UserMessage {
	return protocol.UserMessage{
		Type:   protocol.TypeUserMessage,
		UserID: userID,
		ChatID: "c1",
		Text:   text,
	}
}

func TestHandleMessageNormalFlow(t *testing.T) {
	client := &stubClient{reply: "haan bolo, sab badhiya"}
	e := newTestEngine(t, client, 0)

	reply, err := e.HandleMessage(context.Background(), msg("u1", "aaj ka din kaisa tha tumhara"))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply.Silent {
		t.Fatalf("reply unexpectedly silent")
	}
	if reply.Text != "haan bolo, sab badhiya" {
		t.Fatalf("Text = %q, want generated reply", reply.Text)
	}
	if client.calls != 1 {
		t.Fatalf("generation calls = %d, want 1", client.calls)
	}
	if reply.MessageKind != string(classify.TypeCasual) {
		t.Fatalf("MessageKind = %q, want %q", reply.MessageKind, classify.TypeCasual)
	}
}

func TestHandleMessageDryRunDisengages(t *testing.T) {
	client := &stubClient{reply: "thik hai"}
	e := newTestEngine(t, client, 0)
	ctx := context.Background()

	var last protocol.AssistantReply
	for i := 0; i < 3; i++ {
		var err error
		last, err = e.HandleMessage(ctx, msg("u-dry", "ok"))
		if err != nil {
			t.Fatalf("HandleMessage() error = %v", err)
		}
	}

	if last.MessageKind != string(classify.TypeDryReply) {
		t.Fatalf("MessageKind = %q, want %q", last.MessageKind, classify.TypeDryReply)
	}
	if !strings.Contains(client.lastSys, "The user is disengaging") {
		t.Fatalf("prompt missing disengagement directive:\n%s", client.lastSys)
	}
	if !strings.Contains(client.lastSys, "Do not ask questions") {
		t.Fatalf("prompt missing no-question rule")
	}
}

func TestHandleMessageHostileSkipsGeneration(t *testing.T) {
	client := &stubClient{reply: "should never be used"}
	e := newTestEngine(t, client, 0)

	reply, err := e.HandleMessage(context.Background(), msg("u-hostile", "you are stupid"))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if client.calls != 0 {
		t.Fatalf("generation calls = %d, want 0", client.calls)
	}
	cfg := persona.Default()
	if reply.Text != cfg.Templates.HostileReplies[0] {
		t.Fatalf("Text = %q, want first hostile template", reply.Text)
	}
	if reply.MessageKind != string(classify.TypeUnsafe) {
		t.Fatalf("MessageKind = %q, want %q", reply.MessageKind, classify.TypeUnsafe)
	}
}

func TestHandleMessageNameConfirmationAndConfusion(t *testing.T) {
	client := &stubClient{reply: "nice to meet you yaar"}
	e := newTestEngine(t, client, 0)
	ctx := context.Background()

	if _, err := e.HandleMessage(ctx, msg("u-name", "my name is Rahul")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	rec, ok := e.deps.Memory.GetMemory("u-name")
	if !ok || rec.ConfirmedName != "Rahul" {
		t.Fatalf("GetMemory() = %+v, %v, want confirmed Rahul", rec, ok)
	}

	reply, err := e.HandleMessage(ctx, msg("u-name", "mera naam Priya hai"))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !strings.Contains(reply.Text, "Rahul") {
		t.Fatalf("correction reply = %q, want personalized with Rahul", reply.Text)
	}
	if strings.Contains(reply.Text, "{name}") {
		t.Fatalf("correction reply leaked placeholder: %q", reply.Text)
	}
	// The correction path never reaches generation for that turn.
	if client.calls != 1 {
		t.Fatalf("generation calls = %d, want 1", client.calls)
	}
}

func TestHandleMessageGroupGating(t *testing.T) {
	client := &stubClient{reply: "haan bolo"}
	e := newTestEngine(t, client, 0)
	ctx := context.Background()

	unaddressed := msg("u-group", "kal movie chalte hain sab log")
	unaddressed.IsGroup = true
	reply, err := e.HandleMessage(ctx, unaddressed)
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !reply.Silent {
		t.Fatalf("unaddressed group message answered: %+v", reply)
	}
	if client.calls != 0 {
		t.Fatalf("generation calls = %d, want 0", client.calls)
	}

	byName := msg("u-group", "pixel kya kar rahi ho")
	byName.IsGroup = true
	reply, err = e.HandleMessage(ctx, byName)
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply.Silent {
		t.Fatalf("named group message ignored")
	}

	mentioned := msg("u-group", "@pixel sunao")
	mentioned.IsGroup = true
	mentioned.Mentioned = true
	reply, err = e.HandleMessage(ctx, mentioned)
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if reply.Silent {
		t.Fatalf("mentioned group message ignored")
	}
}

func TestHandleMessageIgnoresOtherBotCommands(t *testing.T) {
	client := &stubClient{}
	e := newTestEngine(t, client, 0)

	reply, err := e.HandleMessage(context.Background(), msg("u-cmd", "/weather@SomeOtherBot delhi"))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !reply.Silent {
		t.Fatalf("command for another bot answered: %+v", reply)
	}
	if client.calls != 0 {
		t.Fatalf("generation calls = %d, want 0", client.calls)
	}
}

func TestHandleMessageRateLimit(t *testing.T) {
	client := &stubClient{reply: "haan"}
	e := newTestEngine(t, client, time.Minute)
	ctx := context.Background()

	first, err := e.HandleMessage(ctx, msg("u-fast", "hello hello kaise ho aap log"))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if first.Silent {
		t.Fatalf("first message unexpectedly silent")
	}

	second, err := e.HandleMessage(ctx, msg("u-fast", "aur ek aur sawaal hai mera"))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if !second.Silent {
		t.Fatalf("second message within the limit was answered")
	}
}

func TestHandleMessageIdentityFallbackOnEmptyReply(t *testing.T) {
	client := &stubClient{reply: "   "}
	e := newTestEngine(t, client, 0)

	reply, err := e.HandleMessage(context.Background(), msg("u-id", "who am i"))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	cfg := persona.Default()
	if reply.Text != cfg.Identity.Introduction {
		t.Fatalf("Text = %q, want introduction fallback", reply.Text)
	}
}

func TestHandleMessageFallbackOnGenerationError(t *testing.T) {
	client := &stubClient{err: context.DeadlineExceeded}
	e := newTestEngine(t, client, 0)

	reply, err := e.HandleMessage(context.Background(), msg("u-err", "kya chal raha hai aajkal"))
	if err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	cfg := persona.Default()
	if reply.Text != cfg.Templates.Fallback {
		t.Fatalf("Text = %q, want fallback template", reply.Text)
	}
}

func TestExtractName(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"my name is Rahul", "Rahul", true},
		{"mera naam Priya hai", "Priya", true},
		{"main Aman hoon", "Aman", true},
		{"naam toh suna hoga", "", false},
		{"what is your name", "", false},
	}

	for _, tt := range tests {
		got, ok := extractName(tt.text)
		if got != tt.want || ok != tt.ok {
			t.Fatalf("extractName(%q) = %q, %v, want %q, %v", tt.text, got, ok, tt.want, tt.ok)
		}
	}
}

func TestGenerationSeesCurrentMessage(t *testing.T) {
	client := &stubClient{reply: "acha, park mein kya kiya"}
	e := newTestEngine(t, client, 0)
	ctx := context.Background()

	text := "mujhe aaj bahut acha laga park mein"
	if _, err := e.HandleMessage(ctx, msg("u-hist", text)); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if len(client.lastHist) == 0 {
		t.Fatalf("generation history is empty")
	}
	last := client.lastHist[len(client.lastHist)-1]
	if last.Role != history.RoleUser || last.Content != text {
		t.Fatalf("last generation turn = (%s, %q), want (%s, %q)",
			last.Role, last.Content, history.RoleUser, text)
	}

	// A second exchange keeps the prior turns ahead of the new one.
	if _, err := e.HandleMessage(ctx, msg("u-hist", "phir shaam ko ghar aa gaya")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}
	if len(client.lastHist) != 3 {
		t.Fatalf("generation history length = %d, want 3", len(client.lastHist))
	}
	if client.lastHist[0].Content != text {
		t.Fatalf("first turn = %q, want %q", client.lastHist[0].Content, text)
	}
	if last := client.lastHist[2]; last.Role != history.RoleUser || last.Content != "phir shaam ko ghar aa gaya" {
		t.Fatalf("last turn = (%s, %q), want the current message", last.Role, last.Content)
	}
}

func TestGenerationCallOutcomesCounted(t *testing.T) {
	okBefore := testutil.ToFloat64(testMetrics.GenerationCalls.WithLabelValues("ok"))
	errBefore := testutil.ToFloat64(testMetrics.GenerationCalls.WithLabelValues("error"))

	good := newTestEngine(t, &stubClient{reply: "sab badhiya chal raha"}, 0)
	if _, err := good.HandleMessage(context.Background(), msg("u-ok", "aaj kaam kaisa raha tumhara")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	bad := newTestEngine(t, &stubClient{err: errors.New("endpoint down")}, 0)
	if _, err := bad.HandleMessage(context.Background(), msg("u-err", "aaj kaam kaisa raha tumhara")); err != nil {
		t.Fatalf("HandleMessage() error = %v", err)
	}

	if got := testutil.ToFloat64(testMetrics.GenerationCalls.WithLabelValues("ok")) - okBefore; got != 1 {
		t.Fatalf("ok generation calls delta = %v, want 1", got)
	}
	if got := testutil.ToFloat64(testMetrics.GenerationCalls.WithLabelValues("error")) - errBefore; got != 1 {
		t.Fatalf("error generation calls delta = %v, want 1", got)
	}
}
