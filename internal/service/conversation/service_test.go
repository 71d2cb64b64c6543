package conversation

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/npc-chat/internal/model/chat"
	"github.com/zhouzirui/npc-chat/pkg/utils"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()

	r := chi.NewRouter()
	r.Get("/ai-npc/npc/conversation/create", func(w http.ResponseWriter, req *http.Request) {
		if req.URL.Query().Get("userId") == "" {
			utils.RespondError(w, http.StatusBadRequest, "userId required")
			return
		}
		utils.RespondEnvelope(w, map[string]any{
			"conversation": chat.Conversation{ID: "conv-1", CreatedAt: 1000, UpdatedAt: 1000},
		})
	})
	r.Get("/ai-npc/npc/conversation/message/list", func(w http.ResponseWriter, req *http.Request) {
		utils.RespondEnvelope(w, map[string]any{
			"total": 4,
			"items": []chat.Message{
				{ID: "m3", Role: chat.RoleAssistant, BotID: "bot-alice", Content: "hi!", CreatedAt: 3000},
				{ID: "m1", Role: chat.RoleUser, Content: "hello", CreatedAt: 1000},
				// Polling redelivered the same question moments later.
				{ID: "m2", Role: chat.RoleUser, Content: "hello", CreatedAt: 2000},
				{ID: "m4", Role: chat.RoleUser, Content: "hello", CreatedAt: 1000 + 60_000},
			},
		})
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv
}

func TestCreateConversation(t *testing.T) {
	srv := newUpstream(t)
	svc := NewService(srv.URL, 5*time.Second, 30*time.Second)

	conv, err := svc.CreateConversation(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("CreateConversation failed: %v", err)
	}
	if conv.ID != "conv-1" {
		t.Fatalf("unexpected conversation %+v", conv)
	}
}

func TestCreateConversationUpstreamError(t *testing.T) {
	srv := newUpstream(t)
	svc := NewService(srv.URL, 5*time.Second, 30*time.Second)

	if _, err := svc.CreateConversation(context.Background(), ""); err == nil {
		t.Fatal("expected an error from the in-band failure code")
	}
}

func TestLoadMessagesMergesHistory(t *testing.T) {
	srv := newUpstream(t)
	svc := NewService(srv.URL, 5*time.Second, 30*time.Second)

	messages, err := svc.LoadMessages(context.Background(), "conv-1")
	if err != nil {
		t.Fatalf("LoadMessages failed: %v", err)
	}

	// m2 is a polling duplicate of m1 inside the window; m4 is a
	// deliberate repeat a minute later and must survive.
	if len(messages) != 3 {
		t.Fatalf("expected 3 merged messages, got %d: %+v", len(messages), messages)
	}
	if messages[0].ID != "m1" || messages[1].ID != "m3" || messages[2].ID != "m4" {
		t.Fatalf("unexpected merge order: %s %s %s", messages[0].ID, messages[1].ID, messages[2].ID)
	}
}

func TestMergeHistoryNeverCollapsesReplies(t *testing.T) {
	merged := MergeHistory([]chat.Message{
		{ID: "a", Role: chat.RoleAssistant, BotID: "bot-alice", Content: "same", CreatedAt: 1000},
		{ID: "b", Role: chat.RoleAssistant, BotID: "bot-bob", Content: "same", CreatedAt: 2000},
	}, 30*time.Second)

	if len(merged) != 2 {
		t.Fatalf("bot replies must never be collapsed, got %d", len(merged))
	}
}

func TestMergeHistoryEmpty(t *testing.T) {
	if got := MergeHistory(nil, 30*time.Second); got != nil {
		t.Fatalf("expected nil for empty history, got %v", got)
	}
}
