package engine

import (
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/npc-chat/internal/model/chat"
)

// Tracker holds the in-progress message per speaker for the active turn.
// It is owned by a single Controller and mutated only from its callbacks,
// so it needs no locking of its own.
type Tracker struct {
	entries map[string]*chat.Message
	// order keeps speaker keys in creation order; the last entry is the
	// fallback target for unattributable fragments.
	order []string
}

// NewTracker returns an empty tracker.
func NewTracker() *Tracker {
	return &Tracker{entries: make(map[string]*chat.Message)}
}

// StartOrAppend creates the speaker's in-progress message on first fragment
// or appends to it afterwards. Content is append-only for the duration of
// the turn; no attributed fragment is ever discarded.
//
// A fragment with an empty speaker id cannot be attributed: it is appended
// to the most recently created tracked message as a best-effort
// continuation. This is a heuristic, not a guarantee.
func (t *Tracker) StartOrAppend(botID, fragment string, createdAtHint int64) *chat.Message {
	if botID == "" {
		if last := t.mostRecent(); last != nil {
			last.Content += fragment
			return last
		}
		// Nothing in flight to continue; track under the empty key so
		// the text still reaches the transcript.
	}

	if msg, ok := t.entries[botID]; ok {
		msg.Content += fragment
		return msg
	}

	createdAt := createdAtHint
	if createdAt == 0 {
		createdAt = time.Now().UnixMilli()
	}

	msg := &chat.Message{
		ID:          uuid.NewString(),
		Role:        chat.RoleAssistant,
		BotID:       botID,
		Content:     fragment,
		CreatedAt:   createdAt,
		Provisional: true,
	}
	t.entries[botID] = msg
	t.order = append(t.order, botID)
	return msg
}

// SetFinalContent applies the authoritative full content delivered by a
// message-completed event. The accumulated fragments are a prefix of the
// full content, so this never shrinks a message; shorter payloads are
// ignored to preserve the append-only invariant.
func (t *Tracker) SetFinalContent(botID, content string) *chat.Message {
	msg, ok := t.entries[botID]
	if !ok {
		msg = t.mostRecent()
	}
	if msg == nil {
		return t.StartOrAppend(botID, content, 0)
	}
	if len(content) >= len(msg.Content) {
		msg.Content = content
	}
	return msg
}

// Snapshot returns copies of the in-progress messages in creation order.
func (t *Tracker) Snapshot() []chat.Message {
	out := make([]chat.Message, 0, len(t.order))
	for _, key := range t.order {
		out = append(out, *t.entries[key])
	}
	return out
}

// FinalizeAll marks every tracked message as no longer provisional, returns
// them in creation order, and clears the tracker for the next turn.
func (t *Tracker) FinalizeAll() []chat.Message {
	out := make([]chat.Message, 0, len(t.order))
	for _, key := range t.order {
		msg := t.entries[key]
		msg.Provisional = false
		out = append(out, *msg)
	}
	t.entries = make(map[string]*chat.Message)
	t.order = nil
	return out
}

// SubstituteEmpty fills messages that never received content with the
// given text, used on transport errors so no placeholder survives the turn.
func (t *Tracker) SubstituteEmpty(text string) {
	for _, key := range t.order {
		if t.entries[key].Content == "" {
			t.entries[key].Content = text
		}
	}
}

// Discard drops every in-progress message, used on cancellation.
func (t *Tracker) Discard() {
	t.entries = make(map[string]*chat.Message)
	t.order = nil
}

// Len reports how many messages are currently in flight.
func (t *Tracker) Len() int {
	return len(t.order)
}

func (t *Tracker) mostRecent() *chat.Message {
	if len(t.order) == 0 {
		return nil
	}
	return t.entries[t.order[len(t.order)-1]]
}
