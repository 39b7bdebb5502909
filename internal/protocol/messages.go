package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeUserMessage    MessageType = "user_message"
	TypeAssistantReply MessageType = "assistant_reply"
	TypeSystemEvent    MessageType = "system_event"
	TypeErrorEvent     MessageType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type MessageType `json:"type"`
}

// UserMessage is an inbound chat turn from a client.
type UserMessage struct {
	Type        MessageType `json:"type"`
	UserID      string      `json:"user_id"`
	ChatID      string      `json:"chat_id"`
	Text        string      `json:"text"`
	DisplayName string      `json:"display_name,omitempty"`
	IsGroup     bool        `json:"is_group"`
	Mentioned   bool        `json:"mentioned"`
	IsReplyToUs bool        `json:"is_reply_to_us"`
	TSMs        int64       `json:"ts_ms"`
}

// AssistantReply carries the assistant's turn back to the client.
// Silent is set when the engine decided not to answer at all, for
// example an unaddressed group message or a rate limited sender.
type AssistantReply struct {
	Type        MessageType `json:"type"`
	UserID      string      `json:"user_id"`
	ChatID      string      `json:"chat_id"`
	Text        string      `json:"text"`
	MessageKind string      `json:"message_kind"`
	Mood        string      `json:"mood"`
	Silent      bool        `json:"silent,omitempty"`
	TSMs        int64       `json:"ts_ms"`
}

type SystemEvent struct {
	Type   MessageType `json:"type"`
	UserID string      `json:"user_id,omitempty"`
	Code   string      `json:"code"`
	Detail string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	UserID    string      `json:"user_id,omitempty"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

// ParseClientMessage decodes and validates a raw client frame.
func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeUserMessage:
		var msg UserMessage
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if err := msg.Validate(); err != nil {
			return nil, err
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}

// Validate rejects frames the engine cannot route.
func (m UserMessage) Validate() error {
	if strings.TrimSpace(m.UserID) == "" {
		return errors.New("user_message missing user_id")
	}
	if strings.TrimSpace(m.ChatID) == "" {
		return errors.New("user_message missing chat_id")
	}
	if strings.TrimSpace(m.Text) == "" {
		return errors.New("user_message missing text")
	}
	return nil
}
