package engine

import (
	"testing"

	"github.com/zhouzirui/npc-chat/internal/model/chat"
)

func TestTrackerStartOrAppend(t *testing.T) {
	tr := NewTracker()

	msg := tr.StartOrAppend("bot-alice", "Hello", 1000)
	if msg.Content != "Hello" || msg.BotID != "bot-alice" {
		t.Fatalf("unexpected first message %+v", msg)
	}
	if !msg.Provisional {
		t.Fatal("in-progress message must be provisional")
	}
	if msg.Role != chat.RoleAssistant {
		t.Fatalf("expected assistant role, got %q", msg.Role)
	}
	if msg.CreatedAt != 1000 {
		t.Fatalf("timestamp hint must be used, got %d", msg.CreatedAt)
	}

	tr.StartOrAppend("bot-alice", " there", 0)
	if got := tr.Snapshot()[0].Content; got != "Hello there" {
		t.Fatalf("expected accumulated content, got %q", got)
	}
	if tr.Len() != 1 {
		t.Fatalf("expected one tracked message, got %d", tr.Len())
	}
}

func TestTrackerUnattributedContinuation(t *testing.T) {
	tr := NewTracker()
	tr.StartOrAppend("bot-alice", "Hello", 0)
	tr.StartOrAppend("bot-bob", "Hi", 0)

	// Empty speaker id continues the most recently created message.
	tr.StartOrAppend("", " all", 0)

	snap := tr.Snapshot()
	if len(snap) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(snap))
	}
	if snap[0].Content != "Hello" {
		t.Fatalf("first speaker must be untouched, got %q", snap[0].Content)
	}
	if snap[1].Content != "Hi all" {
		t.Fatalf("continuation must extend most recent, got %q", snap[1].Content)
	}
}

func TestTrackerUnattributedWithNothingInFlight(t *testing.T) {
	tr := NewTracker()

	tr.StartOrAppend("", "orphan text", 0)
	snap := tr.Snapshot()
	if len(snap) != 1 || snap[0].Content != "orphan text" {
		t.Fatalf("orphan fragment must still reach the transcript, got %+v", snap)
	}
	if snap[0].BotID != "" {
		t.Fatalf("orphan message must stay unattributed, got %q", snap[0].BotID)
	}
}

func TestTrackerSetFinalContent(t *testing.T) {
	tr := NewTracker()
	tr.StartOrAppend("bot-alice", "Hello th", 0)

	tr.SetFinalContent("bot-alice", "Hello there, traveler.")
	if got := tr.Snapshot()[0].Content; got != "Hello there, traveler." {
		t.Fatalf("full content must replace the prefix, got %q", got)
	}

	// A shorter payload must never shrink accumulated content.
	tr.SetFinalContent("bot-alice", "Hello")
	if got := tr.Snapshot()[0].Content; got != "Hello there, traveler." {
		t.Fatalf("content must not shrink, got %q", got)
	}
}

func TestTrackerSetFinalContentFallsBackToMostRecent(t *testing.T) {
	tr := NewTracker()
	tr.StartOrAppend("bot-alice", "partial", 0)

	tr.SetFinalContent("", "partial but longer")
	if got := tr.Snapshot()[0].Content; got != "partial but longer" {
		t.Fatalf("unattributed completion must target most recent, got %q", got)
	}
}

func TestTrackerFinalizeAll(t *testing.T) {
	tr := NewTracker()
	tr.StartOrAppend("bot-alice", "one", 5)
	tr.StartOrAppend("bot-bob", "two", 6)

	final := tr.FinalizeAll()
	if len(final) != 2 {
		t.Fatalf("expected 2 finalized messages, got %d", len(final))
	}
	for _, msg := range final {
		if msg.Provisional {
			t.Fatalf("finalized message %s still provisional", msg.ID)
		}
	}
	if tr.Len() != 0 {
		t.Fatalf("tracker must be empty after finalize, got %d", tr.Len())
	}
}

func TestTrackerSubstituteEmpty(t *testing.T) {
	tr := NewTracker()
	tr.StartOrAppend("bot-alice", "", 0)
	tr.StartOrAppend("bot-bob", "has content", 0)

	tr.SubstituteEmpty("[error] boom")

	snap := tr.Snapshot()
	if snap[0].Content != "[error] boom" {
		t.Fatalf("empty message must receive substitute, got %q", snap[0].Content)
	}
	if snap[1].Content != "has content" {
		t.Fatalf("partial content must be kept, got %q", snap[1].Content)
	}
}

func TestTrackerDiscard(t *testing.T) {
	tr := NewTracker()
	tr.StartOrAppend("bot-alice", "gone", 0)

	tr.Discard()
	if tr.Len() != 0 || len(tr.Snapshot()) != 0 {
		t.Fatal("discard must drop every in-progress message")
	}
}
