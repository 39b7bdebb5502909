package history

import (
	"fmt"
	"sync"
	"testing"
)

func TestWindowFIFOEviction(t *testing.T) {
	w, err := NewWindows(64, 10)
	if err != nil {
		t.Fatalf("NewWindows() error = %v", err)
	}
	key := Key{UserID: "u1", ChatID: "c1"}

	for i := 0; i < 13; i++ {
		w.Append(key, Turn{Role: RoleUser, Content: fmt.Sprintf("turn %d", i)})
	}

	turns := w.Recent(key, 0)
	if len(turns) != 10 {
		t.Fatalf("window holds %d turns, want 10", len(turns))
	}
	if turns[0].Content != "turn 3" {
		t.Fatalf("oldest turn = %q, want %q (FIFO eviction)", turns[0].Content, "turn 3")
	}
	if turns[9].Content != "turn 12" {
		t.Fatalf("newest turn = %q, want %q", turns[9].Content, "turn 12")
	}
}

func TestWindowRecentLimit(t *testing.T) {
	w, _ := NewWindows(64, 12)
	key := Key{UserID: "u1", ChatID: "c1"}
	for i := 0; i < 6; i++ {
		w.Append(key, Turn{Role: RoleUser, Content: fmt.Sprintf("t%d", i)})
	}

	recent := w.Recent(key, 4)
	if len(recent) != 4 {
		t.Fatalf("Recent(4) = %d turns, want 4", len(recent))
	}
	if recent[0].Content != "t2" {
		t.Fatalf("Recent(4)[0] = %q, want t2", recent[0].Content)
	}

	if got := w.Recent(Key{UserID: "nobody", ChatID: "c"}, 4); got != nil {
		t.Fatalf("Recent() for unknown key = %v, want nil", got)
	}
}

func TestWindowKeysAreIndependent(t *testing.T) {
	w, _ := NewWindows(64, 10)
	a := Key{UserID: "u1", ChatID: "private"}
	b := Key{UserID: "u1", ChatID: "group"}

	w.Append(a, Turn{Role: RoleUser, Content: "private msg"})
	w.Append(b, Turn{Role: RoleUser, Content: "group msg"})

	if n := w.Len(a); n != 1 {
		t.Fatalf("Len(a) = %d, want 1", n)
	}
	if got := w.Recent(b, 0)[0].Content; got != "group msg" {
		t.Fatalf("window b leaked content: %q", got)
	}
}

func TestWindowConversationCapBounded(t *testing.T) {
	w, _ := NewWindows(4, 10)
	for i := 0; i < 10; i++ {
		w.Append(Key{UserID: fmt.Sprintf("u%d", i), ChatID: "c"}, Turn{Role: RoleUser, Content: "hi"})
	}
	// The registry is LRU-bounded: the earliest conversations are gone.
	if n := w.Len(Key{UserID: "u0", ChatID: "c"}); n != 0 {
		t.Fatalf("evicted conversation still holds %d turns", n)
	}
	if n := w.Len(Key{UserID: "u9", ChatID: "c"}); n != 1 {
		t.Fatalf("recent conversation lost, Len = %d", n)
	}
}

func TestWindowConcurrentAppends(t *testing.T) {
	w, _ := NewWindows(64, 15)
	key := Key{UserID: "u1", ChatID: "c1"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				w.Append(key, Turn{Role: RoleUser, Content: "x"})
			}
		}()
	}
	wg.Wait()

	if n := w.Len(key); n != 15 {
		t.Fatalf("Len() = %d after concurrent appends, want cap 15", n)
	}
}
