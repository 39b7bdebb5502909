package protocol

import (
	"errors"
	"testing"
)

func TestParseClientMessageUserMessage(t *testing.T) {
	raw := []byte(`{"type":"user_message","user_id":"u1","chat_id":"c1","text":"kya kar rahi ho","display_name":"Rahul","is_group":true,"mentioned":true,"ts_ms":123}`)
	msg, err := ParseClientMessage(raw)
	if err != nil {
		t.Fatalf("ParseClientMessage() error = %v", err)
	}

	user, ok := msg.(UserMessage)
	if !ok {
		t.Fatalf("message type = %T, want UserMessage", msg)
	}
	if user.UserID != "u1" || user.ChatID != "c1" {
		t.Fatalf("unexpected user message: %+v", user)
	}
	if !user.IsGroup || !user.Mentioned {
		t.Fatalf("group flags not decoded: %+v", user)
	}
	if user.TSMs != 123 {
		t.Fatalf("TSMs = %d, want %d", user.TSMs, 123)
	}
}

func TestParseClientMessageRejectsUnknownType(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":"wat"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}

func TestParseClientMessageRejectsInvalidEnvelope(t *testing.T) {
	_, err := ParseClientMessage([]byte(`{"type":`))
	if err == nil {
		t.Fatalf("expected decode error")
	}
}

func TestUserMessageValidate(t *testing.T) {
	tests := []struct {
		name    string
		msg     UserMessage
		wantErr bool
	}{
		{"complete", UserMessage{UserID: "u1", ChatID: "c1", Text: "hi"}, false},
		{"missing user", UserMessage{ChatID: "c1", Text: "hi"}, true},
		{"missing chat", UserMessage{UserID: "u1", Text: "hi"}, true},
		{"blank text", UserMessage{UserID: "u1", ChatID: "c1", Text: "   "}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.msg.Validate()
			if (err != nil) != tt.wantErr {
				t.Fatalf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func BenchmarkParseClientMessageUserMessage(b *testing.B) {
	raw := []byte(`{"type":"user_message","user_id":"u1","chat_id":"c1","text":"arre yaar aaj toh kamaal ho gaya","ts_ms":123456}`)
	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		msg, err := ParseClientMessage(raw)
		if err != nil {
			b.Fatalf("ParseClientMessage() error = %v", err)
		}
		if _, ok := msg.(UserMessage); !ok {
			b.Fatalf("message type = %T, want UserMessage", msg)
		}
	}
}
