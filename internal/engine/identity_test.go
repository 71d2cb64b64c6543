package engine

import (
	"strings"
	"testing"

	"github.com/zhouzirui/npc-chat/internal/model/roster"
)

func testDirectory() roster.Directory {
	return roster.NewMemoryStore([]roster.Bot{
		{BotID: "bot-alice", BotName: "Alice"},
		{BotID: "bot-bob", BotName: "Bob"},
	})
}

func TestResolveKnownMarker(t *testing.T) {
	r := NewResolver("|", 24, testDirectory())

	res := r.Resolve("Alice|Hello there", "bot-fallback")
	if res.BotID != "bot-alice" {
		t.Fatalf("expected bot-alice, got %q", res.BotID)
	}
	if res.Remainder != "Hello there" {
		t.Fatalf("marker must be stripped, got %q", res.Remainder)
	}
	if res.DisplayName != "Alice" {
		t.Fatalf("expected display name Alice, got %q", res.DisplayName)
	}
}

func TestResolveUnknownMarker(t *testing.T) {
	r := NewResolver("|", 24, testDirectory())

	res := r.Resolve("Mallory|Hi", "bot-fallback")
	if res.BotID != "" {
		t.Fatalf("unknown name must not be attributed, got %q", res.BotID)
	}
	if res.DisplayName != "Mallory" || res.Remainder != "Hi" {
		t.Fatalf("unexpected resolution %+v", res)
	}
}

func TestResolveNoMarker(t *testing.T) {
	r := NewResolver("|", 24, testDirectory())

	res := r.Resolve("plain continuation text", "bot-alice")
	if res.BotID != "bot-alice" {
		t.Fatalf("expected fallback, got %q", res.BotID)
	}
	if res.Remainder != "plain continuation text" {
		t.Fatalf("fragment must be untouched, got %q", res.Remainder)
	}
}

func TestResolveDelimiterBeyondMaxLen(t *testing.T) {
	r := NewResolver("|", 8, testDirectory())

	fragment := strings.Repeat("a", 9) + "|tail"
	res := r.Resolve(fragment, "bot-bob")
	if res.BotID != "bot-bob" {
		t.Fatalf("late delimiter must not be a marker, got %q", res.BotID)
	}
	if res.Remainder != fragment {
		t.Fatalf("fragment must be untouched, got %q", res.Remainder)
	}
}

func TestResolveLeadingDelimiter(t *testing.T) {
	r := NewResolver("|", 24, testDirectory())

	res := r.Resolve("|not a marker", "bot-alice")
	if res.BotID != "bot-alice" || res.Remainder != "|not a marker" {
		t.Fatalf("leading delimiter must not be a marker, got %+v", res)
	}
}

func TestResolveBlankName(t *testing.T) {
	r := NewResolver("|", 24, testDirectory())

	res := r.Resolve("   |text", "bot-alice")
	if res.BotID != "bot-alice" || res.Remainder != "   |text" {
		t.Fatalf("blank marker name must fall back, got %+v", res)
	}
}

func TestResolveCustomDelimiter(t *testing.T) {
	r := NewResolver("::", 24, testDirectory())

	res := r.Resolve("Bob::something", "")
	if res.BotID != "bot-bob" || res.Remainder != "something" {
		t.Fatalf("unexpected resolution %+v", res)
	}
}
