package history

import (
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// Role identifies who produced a conversation turn.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one immutable message in a conversation window.
type Turn struct {
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// Key uniquely identifies a conversation window for the lifetime of the
// process.
type Key struct {
	UserID string
	ChatID string
}

// Windows is the in-process registry of per-conversation turn windows.
// Both dimensions are bounded: each window keeps at most turnCap turns
// (FIFO, oldest evicted first) and the registry itself holds at most
// conversationCap conversations, least-recently-used evicted first, so
// memory stays capped no matter how many users show up.
type Windows struct {
	turnCap       int
	conversations *lru.Cache[Key, *window]
}

type window struct {
	mu    sync.Mutex
	turns []Turn
}

// NewWindows builds the registry. turnCap is clamped to the supported
// 8..15 range; conversationCap must be positive.
func NewWindows(conversationCap, turnCap int) (*Windows, error) {
	if turnCap < 8 {
		turnCap = 8
	}
	if turnCap > 15 {
		turnCap = 15
	}
	cache, err := lru.New[Key, *window](conversationCap)
	if err != nil {
		return nil, fmt.Errorf("conversation cache: %w", err)
	}
	return &Windows{turnCap: turnCap, conversations: cache}, nil
}

// Append records a turn at the end of the key's window, evicting the
// oldest turn once the window is full.
func (w *Windows) Append(key Key, turn Turn) {
	if turn.Timestamp.IsZero() {
		turn.Timestamp = time.Now().UTC()
	}
	win := w.windowFor(key)
	win.mu.Lock()
	defer win.mu.Unlock()
	win.turns = append(win.turns, turn)
	if len(win.turns) > w.turnCap {
		// Shift instead of reslicing so the backing array does not pin
		// evicted turn contents.
		copy(win.turns, win.turns[len(win.turns)-w.turnCap:])
		win.turns = win.turns[:w.turnCap]
	}
}

// Recent returns up to limit most recent turns in insertion order.
// limit <= 0 means the whole window.
func (w *Windows) Recent(key Key, limit int) []Turn {
	win, ok := w.conversations.Get(key)
	if !ok {
		return nil
	}
	win.mu.Lock()
	defer win.mu.Unlock()
	turns := win.turns
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Clear drops the window for a key.
func (w *Windows) Clear(key Key) {
	w.conversations.Remove(key)
}

// Len reports how many turns the key's window currently holds.
func (w *Windows) Len(key Key) int {
	win, ok := w.conversations.Get(key)
	if !ok {
		return 0
	}
	win.mu.Lock()
	defer win.mu.Unlock()
	return len(win.turns)
}

func (w *Windows) windowFor(key Key) *window {
	if win, ok := w.conversations.Get(key); ok {
		return win
	}
	win := &window{}
	if existing, found, _ := w.conversations.PeekOrAdd(key, win); found {
		return existing
	}
	return win
}
