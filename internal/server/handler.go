package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/zhouzirui/npc-chat/internal/model/chat"
	"github.com/zhouzirui/npc-chat/internal/model/roster"
	"github.com/zhouzirui/npc-chat/pkg/utils"
)

// wireEvent is one SSE frame in the upstream feed format.
type wireEvent struct {
	Event   string       `json:"event,omitempty"`
	Message *wireMessage `json:"message,omitempty"`
	Chat    *wireChat    `json:"chat,omitempty"`
	Done    bool         `json:"done,omitempty"`
}

type wireMessage struct {
	Content   string `json:"content,omitempty"`
	BotID     string `json:"bot_id,omitempty"`
	Type      string `json:"type,omitempty"`
	CreatedAt int64  `json:"created_at,omitempty"`
}

type wireChat struct {
	ConversationID string `json:"conversation_id"`
}

// Handler serves the NPC API surface the chat client consumes.
type Handler struct {
	store     *Store
	bots      roster.Directory
	responder *Responder
	delimiter string
}

// NewRouter wires the NPC API routes. responder may be nil; replies then
// fall back to scripted text.
func NewRouter(store *Store, bots roster.Directory, responder *Responder, delimiter string) http.Handler {
	h := &Handler{
		store:     store,
		bots:      bots,
		responder: responder,
		delimiter: delimiter,
	}

	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/ai-npc/npc", func(api chi.Router) {
		api.Get("/bot/list", h.handleBotList)
		api.Get("/conversation/create", h.handleCreateConversation)
		api.Get("/conversation/message/list", h.handleMessageList)
		api.Get("/streamChat/create", h.handleStreamChat)
	})

	return r
}

func (h *Handler) handleBotList(w http.ResponseWriter, r *http.Request) {
	items := h.bots.List()
	utils.RespondEnvelope(w, map[string]any{
		"total": len(items),
		"items": items,
	})
}

func (h *Handler) handleCreateConversation(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if userID == "" {
		utils.RespondError(w, http.StatusBadRequest, "userId query parameter is required")
		return
	}

	conv := h.store.CreateConversation(userID)
	log.Printf("[server] created conversation %s for user=%s", conv.ID, userID)
	utils.RespondEnvelope(w, map[string]any{"conversation": conv})
}

func (h *Handler) handleMessageList(w http.ResponseWriter, r *http.Request) {
	conversationID := r.URL.Query().Get("conversationId")
	if conversationID == "" {
		utils.RespondError(w, http.StatusBadRequest, "conversationId query parameter is required")
		return
	}

	messages, err := h.store.ListMessages(conversationID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	utils.RespondEnvelope(w, map[string]any{
		"total": len(messages),
		"items": messages,
	})
}

// handleStreamChat answers one user turn as an SSE stream: marker-prefixed
// deltas per bot, one completed frame per finished reply, the chat record,
// then the terminal done frame.
func (h *Handler) handleStreamChat(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	content := query.Get("content")
	conversationID := query.Get("conversationId")
	userID := query.Get("userID")
	botID := query.Get("botID")

	if content == "" || conversationID == "" {
		utils.RespondError(w, http.StatusBadRequest, "content and conversationId query parameters are required")
		return
	}

	targets, err := h.targetBots(botID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	history, err := h.store.ListMessages(conversationID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, err.Error())
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	if _, err := h.store.AppendMessage(chat.Message{
		ConversationID: conversationID,
		Role:           chat.RoleUser,
		Content:        content,
	}); err != nil {
		log.Printf("[server] failed to save user message: %v", err)
	}

	utils.SetupSSEHeaders(w)
	ctx := r.Context()

	for _, bot := range targets {
		reply, err := h.streamBotReply(ctx, w, flusher, bot, history, content)
		if err != nil {
			log.Printf("[server] reply for bot=%s failed: %v", bot.BotID, err)
			continue
		}

		// The upstream reports completed message timestamps in seconds.
		utils.SendSSEChunk(w, flusher, wireEvent{
			Event: "conversation.message.completed",
			Message: &wireMessage{
				Content:   bot.BotName + h.delimiter + reply,
				BotID:     bot.BotID,
				Type:      "answer",
				CreatedAt: time.Now().Unix(),
			},
		})

		if _, err := h.store.AppendMessage(chat.Message{
			ConversationID: conversationID,
			Role:           chat.RoleAssistant,
			BotID:          bot.BotID,
			Content:        reply,
		}); err != nil {
			log.Printf("[server] failed to save reply for bot=%s: %v", bot.BotID, err)
		}
	}

	utils.SendSSEChunk(w, flusher, wireEvent{
		Event: "conversation.chat.completed",
		Chat:  &wireChat{ConversationID: conversationID},
	})
	utils.SendSSEChunk(w, flusher, wireEvent{Done: true})

	log.Printf("[server] completed stream for conversation=%s user=%s bots=%d", conversationID, userID, len(targets))
}

// targetBots resolves the botID parameter: a known id selects that bot,
// while empty or "all" fans the turn out to the whole roster.
func (h *Handler) targetBots(botID string) ([]roster.Bot, error) {
	if botID == "" || botID == "all" {
		items := h.bots.List()
		if len(items) == 0 {
			return nil, fmt.Errorf("bot roster is empty")
		}
		return items, nil
	}

	bot, ok := h.bots.FindByID(botID)
	if !ok {
		return nil, fmt.Errorf("bot %s not found", botID)
	}
	return []roster.Bot{bot}, nil
}

// streamBotReply emits one bot's reply as delta frames, the first carrying
// the speaker marker, and returns the full text for persistence.
func (h *Handler) streamBotReply(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, bot roster.Bot, history []chat.Message, content string) (string, error) {
	if h.responder != nil {
		reply, err := h.relayModelReply(ctx, w, flusher, bot, history, content)
		if err == nil {
			return reply, nil
		}
		log.Printf("[server] model reply failed for bot=%s: %v; using scripted reply", bot.BotID, err)
	}

	reply := scriptedReply(bot, content)
	first := true
	for _, chunk := range splitChunks(reply, 12) {
		h.sendDelta(w, flusher, bot, chunk, &first)
	}
	return reply, nil
}

func (h *Handler) relayModelReply(ctx context.Context, w http.ResponseWriter, flusher http.Flusher, bot roster.Bot, history []chat.Message, content string) (string, error) {
	stream, err := h.responder.Stream(ctx, bot, history, content)
	if err != nil {
		return "", err
	}
	defer stream.Close()

	var reply string
	first := true
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return "", recvErr
		}
		if chunk == nil || chunk.Content == "" {
			continue
		}

		reply += chunk.Content
		h.sendDelta(w, flusher, bot, chunk.Content, &first)
	}

	if reply == "" {
		return "", fmt.Errorf("model returned an empty reply")
	}
	return reply, nil
}

func (h *Handler) sendDelta(w http.ResponseWriter, flusher http.Flusher, bot roster.Bot, chunk string, first *bool) {
	if *first {
		chunk = bot.BotName + h.delimiter + chunk
		*first = false
	}
	utils.SendSSEChunk(w, flusher, wireEvent{
		Event:   "conversation.message.delta",
		Message: &wireMessage{Content: chunk},
	})
}

func scriptedReply(bot roster.Bot, content string) string {
	return fmt.Sprintf("%s considers %q for a moment. %s", bot.BotName, content, bot.Description)
}

// splitChunks cuts text into rune-bounded pieces to mimic token streaming.
func splitChunks(text string, size int) []string {
	runes := []rune(text)
	chunks := make([]string, 0, len(runes)/size+1)
	for start := 0; start < len(runes); start += size {
		end := start + size
		if end > len(runes) {
			end = len(runes)
		}
		chunks = append(chunks, string(runes[start:end]))
	}
	return chunks
}
