package server

import (
	"errors"
	"testing"

	"github.com/zhouzirui/npc-chat/internal/model/chat"
)

func TestStoreConversationLifecycle(t *testing.T) {
	store := NewStore()

	conv := store.CreateConversation("user-1")
	if conv.ID == "" {
		t.Fatal("conversation must receive an id")
	}

	messages, err := store.ListMessages(conv.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 0 {
		t.Fatalf("new conversation must be empty, got %d", len(messages))
	}

	saved, err := store.AppendMessage(chat.Message{
		ConversationID: conv.ID,
		Role:           chat.RoleUser,
		Content:        "hello",
	})
	if err != nil {
		t.Fatalf("AppendMessage failed: %v", err)
	}
	if saved.ID == "" || saved.CreatedAt == 0 {
		t.Fatalf("message must receive id and timestamp, got %+v", saved)
	}

	messages, err = store.ListMessages(conv.ID)
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 1 || messages[0].Content != "hello" {
		t.Fatalf("unexpected stored messages %+v", messages)
	}

	// Listing must return a copy.
	messages[0].Content = "mutated"
	again, _ := store.ListMessages(conv.ID)
	if again[0].Content != "hello" {
		t.Fatal("ListMessages must not expose internal state")
	}
}

func TestStoreUnknownConversation(t *testing.T) {
	store := NewStore()

	if _, err := store.ListMessages("nope"); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
	if _, err := store.AppendMessage(chat.Message{ConversationID: "nope"}); !errors.Is(err, ErrConversationNotFound) {
		t.Fatalf("expected ErrConversationNotFound, got %v", err)
	}
}
