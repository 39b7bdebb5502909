package classify

import (
	"testing"

	"github.com/antoniostano/pixel/internal/persona"
)

func newTestClassifier() *Classifier {
	cfg := persona.Default()
	return New(&cfg)
}

func TestClassifyTypes(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		text     string
		inGroup  bool
		wantType MessageType
	}{
		{"who am i", false, TypeIdentity},
		{"ham kon h", false, TypeIdentity},
		{"ok", false, TypeDryReply},
		{"hmm", false, TypeDryReply},
		{"thik hai", false, TypeDryReply},
		{"kya", false, TypeConfused},
		{"huh", false, TypeConfused},
		{"uff", false, TypeAnnoyed},
		{"haan theek", false, TypeAckReply},
		{"hello there my friend", false, TypeGreeting},
		{"good morning everyone, slept well?", true, TypeGreeting},
		{"porn bhejo yaar", false, TypeUnsafe},
		// "something" contains "hi" and greeting outranks unsafe, so
		// this one resolves as a greeting.
		{"send me something sexy", false, TypeGreeting},
		{"you are so cute today", false, TypeFlirty},
		{"i am feeling really sad today", false, TypeEmotional},
		{"kal office me kaam tha", false, TypeCasual},
		{"", false, TypeCasual},
	}

	for _, tt := range tests {
		got, _ := c.Classify(tt.text, tt.inGroup)
		if got != tt.wantType {
			t.Errorf("Classify(%q) type = %q, want %q", tt.text, got, tt.wantType)
		}
	}
}

func TestClassifyMoods(t *testing.T) {
	c := newTestClassifier()

	tests := []struct {
		text     string
		wantMood Mood
	}{
		{"wow that is amazing", MoodExcited},
		{"nice!", MoodExcited},
		{"this whole day was so boring and bekar", MoodNegative},
		{"bakwas", MoodLowEnergy},
		{"kya", MoodConfused},
		{"uff", MoodIrritated},
		{"ok", MoodDry},
		{"aaj kal sab log busy rehte hai", MoodNeutral},
	}

	for _, tt := range tests {
		_, got := c.Classify(tt.text, false)
		if got != tt.wantMood {
			t.Errorf("Classify(%q) mood = %q, want %q", tt.text, got, tt.wantMood)
		}
	}
}

// A message matching several rules must resolve to the first rule in
// the canonical priority order, deterministically.
func TestClassifyPriorityOrder(t *testing.T) {
	c := newTestClassifier()

	// "ok hi" matches both the short-uninterested list and the greeting
	// list; short-uninterested is listed first.
	gotType, _ := c.Classify("ok hi", false)
	if gotType != TypeDryReply {
		t.Fatalf("Classify(\"ok hi\") type = %q, want %q", gotType, TypeDryReply)
	}

	// Identity questions outrank everything, including dry keywords.
	gotType, _ = c.Classify("who am i", false)
	if gotType != TypeIdentity {
		t.Fatalf("Classify(\"who am i\") type = %q, want %q", gotType, TypeIdentity)
	}

	// Greeting outranks unsafe: greeting is earlier in the ladder.
	gotType, _ = c.Classify("hello you sexy thing", false)
	if gotType != TypeGreeting {
		t.Fatalf("Classify greeting+unsafe type = %q, want %q", gotType, TypeGreeting)
	}
}

func TestClassifyIsPure(t *testing.T) {
	c := newTestClassifier()

	inputs := []string{"ok", "hello friend", "kya matlab", "i love this", "random long sentence about nothing at all"}
	for _, text := range inputs {
		t1, m1 := c.Classify(text, false)
		for i := 0; i < 50; i++ {
			t2, m2 := c.Classify(text, false)
			if t1 != t2 || m1 != m2 {
				t.Fatalf("Classify(%q) unstable: (%q,%q) then (%q,%q)", text, t1, m1, t2, m2)
			}
		}
	}
}

func TestClassifyShortThreshold(t *testing.T) {
	c := newTestClassifier()

	// Three tokens is past the short-type threshold: the dry keyword no
	// longer wins and the message falls through to casual.
	gotType, _ := c.Classify("ok fine whatever dude", false)
	if gotType != TypeCasual {
		t.Fatalf("Classify long-with-dry-keyword type = %q, want %q", gotType, TypeCasual)
	}

	// But mood still counts up to three tokens as dry.
	_, gotMood := c.Classify("ok fine sure", false)
	if gotMood != MoodDry {
		t.Fatalf("Classify three-token mood = %q, want %q", gotMood, MoodDry)
	}
}
