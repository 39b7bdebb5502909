package generate

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/antoniostano/pixel/internal/history"
	"github.com/antoniostano/pixel/internal/prompt"
	"github.com/antoniostano/pixel/internal/reliability"
)

// Client is the opaque text-generation collaborator. It may time out or
// return empty content; both count as failure and are retried by the
// wrapper, never by implementations.
type Client interface {
	Generate(ctx context.Context, payload prompt.Payload, recent []history.Turn) (string, error)
}

// ErrEmptyReply marks a generation call that succeeded at the HTTP
// level but produced nothing usable.
var ErrEmptyReply = errors.New("generation returned empty reply")

// HTTPStatusError reports a non-2xx generation endpoint answer.
type HTTPStatusError struct {
	StatusCode int
	Body       string
}

func (e *HTTPStatusError) Error() string {
	return fmt.Sprintf("generation http status %d: %s", e.StatusCode, e.Body)
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Messages []chatMessage `json:"messages"`
}

// HTTPClient posts the instruction payload plus history to a
// chat-completion style endpoint and extracts the reply text.
type HTTPClient struct {
	url    string
	client *http.Client
}

func NewHTTPClient(url string, timeout time.Duration) *HTTPClient {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPClient{
		url:    strings.TrimSpace(url),
		client: &http.Client{Timeout: timeout},
	}
}

func (c *HTTPClient) Generate(ctx context.Context, payload prompt.Payload, recent []history.Turn) (string, error) {
	msgs := make([]chatMessage, 0, len(recent)+1)
	msgs = append(msgs, chatMessage{Role: "system", Content: payload.System})
	for _, turn := range recent {
		msgs = append(msgs, chatMessage{Role: string(turn.Role), Content: turn.Content})
	}

	body, err := json.Marshal(chatRequest{Messages: msgs})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("send request: %w", err)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		return "", &HTTPStatusError{StatusCode: res.StatusCode, Body: string(snippet)}
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var obj map[string]any
	if err := json.Unmarshal(raw, &obj); err != nil {
		// Some endpoints answer plain text.
		text := strings.TrimSpace(string(raw))
		if text == "" {
			return "", ErrEmptyReply
		}
		return text, nil
	}

	text := strings.TrimSpace(extractText(obj))
	if text == "" {
		return "", ErrEmptyReply
	}
	return text, nil
}

func extractText(obj map[string]any) string {
	for _, k := range []string{"reply", "text", "output", "message"} {
		if v, ok := obj[k]; ok {
			if s, ok := v.(string); ok {
				return s
			}
		}
	}
	return ""
}

// Reliable wraps a Client with the bounded retry budget and the static
// safe fallback. Exhausted retries degrade to the fallback reply rather
// than surfacing a technical error to the end user.
type Reliable struct {
	inner    Client
	attempts int
	backoff  time.Duration
	fallback string
}

func NewReliable(inner Client, attempts int, backoff time.Duration, fallback string) *Reliable {
	if attempts < 1 {
		attempts = 3
	}
	if backoff <= 0 {
		backoff = time.Second
	}
	return &Reliable{inner: inner, attempts: attempts, backoff: backoff, fallback: fallback}
}

// Generate retries the inner client and never fails: when the budget is
// exhausted it logs and returns the configured fallback reply.
func (r *Reliable) Generate(ctx context.Context, payload prompt.Payload, recent []history.Turn) (string, error) {
	var reply string
	err := reliability.Retry(ctx, r.attempts, r.backoff, func(ctx context.Context) error {
		out, err := r.inner.Generate(ctx, payload, recent)
		if err != nil {
			var statusErr *HTTPStatusError
			if errors.As(err, &statusErr) && !reliability.IsRetryableHTTPStatus(statusErr.StatusCode) {
				return reliability.Permanent(err)
			}
			return err
		}
		if strings.TrimSpace(out) == "" {
			return ErrEmptyReply
		}
		reply = out
		return nil
	})
	if err != nil {
		log.Printf("generation failed after %d attempts, using fallback: %v", r.attempts, err)
		return r.fallback, nil
	}
	return reply, nil
}
