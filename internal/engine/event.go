package engine

import (
	"encoding/json"
	"fmt"
	"strings"
)

// EventKind classifies a decoded feed event.
type EventKind int

const (
	// EventUnknown marks event types this client does not understand.
	// They are logged and skipped, never fatal.
	EventUnknown EventKind = iota
	// EventDelta carries one incremental text fragment of a bot reply.
	EventDelta
	// EventMessageCompleted carries the authoritative full content of one
	// finished message.
	EventMessageCompleted
	// EventChatCompleted carries the server-assigned conversation id.
	EventChatCompleted
	// EventDone terminates the turn.
	EventDone
)

// Event names used by the upstream feed.
const (
	wireEventDelta            = "conversation.message.delta"
	wireEventMessageCompleted = "conversation.message.completed"
	wireEventChatCompleted    = "conversation.chat.completed"
)

// Event is one decoded feed record.
type Event struct {
	Kind           EventKind
	Content        string
	BotID          string
	MessageType    string
	CreatedAt      int64 // millisecond epoch, normalized
	ConversationID string
	RawEvent       string
}

type wirePayload struct {
	Event   string `json:"event"`
	Done    bool   `json:"done"`
	Message *struct {
		Content   string `json:"content"`
		BotID     string `json:"bot_id"`
		Type      string `json:"type"`
		CreatedAt int64  `json:"created_at"`
	} `json:"message"`
	Chat *struct {
		ConversationID string `json:"conversation_id"`
	} `json:"chat"`
}

// Decode parses one raw SSE data payload into a typed event. It is a pure
// function: a malformed frame yields an error the caller logs and skips,
// never an aborted session.
func Decode(raw string) (Event, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return Event{}, fmt.Errorf("empty event payload")
	}

	var payload wirePayload
	if err := json.Unmarshal([]byte(trimmed), &payload); err != nil {
		return Event{}, fmt.Errorf("decode event payload: %w", err)
	}

	if payload.Done {
		return Event{Kind: EventDone}, nil
	}

	switch payload.Event {
	case wireEventDelta:
		ev := Event{Kind: EventDelta, RawEvent: payload.Event}
		if payload.Message != nil {
			ev.Content = payload.Message.Content
			ev.BotID = payload.Message.BotID
			ev.CreatedAt = normalizeTimestamp(payload.Message.CreatedAt)
		}
		return ev, nil
	case wireEventMessageCompleted:
		ev := Event{Kind: EventMessageCompleted, RawEvent: payload.Event}
		if payload.Message != nil {
			ev.Content = payload.Message.Content
			ev.BotID = payload.Message.BotID
			ev.MessageType = payload.Message.Type
			ev.CreatedAt = normalizeTimestamp(payload.Message.CreatedAt)
		}
		return ev, nil
	case wireEventChatCompleted:
		ev := Event{Kind: EventChatCompleted, RawEvent: payload.Event}
		if payload.Chat != nil {
			ev.ConversationID = payload.Chat.ConversationID
		}
		return ev, nil
	}

	return Event{Kind: EventUnknown, RawEvent: payload.Event}, nil
}

// normalizeTimestamp converts second-epoch values to millisecond epoch. The
// upstream mixes both depending on the code path that produced the message;
// every component downstream of the decoder assumes milliseconds.
func normalizeTimestamp(ts int64) int64 {
	if ts == 0 {
		return 0
	}
	if ts < 1_000_000_000_000 {
		return ts * 1000
	}
	return ts
}
