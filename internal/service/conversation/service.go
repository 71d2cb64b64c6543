// Package conversation talks to the upstream conversation endpoints and
// prepares stored history for display.
package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/zhouzirui/npc-chat/internal/engine"
	"github.com/zhouzirui/npc-chat/internal/model/chat"
)

const (
	createPath   = "/ai-npc/npc/conversation/create"
	messagesPath = "/ai-npc/npc/conversation/message/list"
)

// Service wraps the conversation REST surface.
type Service struct {
	baseURL     string
	client      *http.Client
	dedupWindow time.Duration
}

// NewService builds a conversation service. dedupWindow bounds the
// polling-duplicate suppression applied when merging stored history.
func NewService(baseURL string, timeout, dedupWindow time.Duration) *Service {
	return &Service{
		baseURL:     strings.TrimRight(baseURL, "/"),
		client:      &http.Client{Timeout: timeout},
		dedupWindow: dedupWindow,
	}
}

// CreateConversation provisions a new conversation for the user.
func (s *Service) CreateConversation(ctx context.Context, userID string) (chat.Conversation, error) {
	query := url.Values{}
	query.Set("userId", userID)

	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			Conversation chat.Conversation `json:"conversation"`
		} `json:"data"`
	}
	if err := s.getJSON(ctx, createPath+"?"+query.Encode(), &payload); err != nil {
		return chat.Conversation{}, err
	}
	if payload.Code != http.StatusOK {
		return chat.Conversation{}, fmt.Errorf("create conversation: upstream code %d: %s", payload.Code, payload.Msg)
	}
	if payload.Data.Conversation.ID == "" {
		return chat.Conversation{}, fmt.Errorf("create conversation: upstream returned no id")
	}
	return payload.Data.Conversation, nil
}

// LoadMessages fetches a conversation's stored messages and merges them
// into display form: ordered, with polling duplicates suppressed.
func (s *Service) LoadMessages(ctx context.Context, conversationID string) ([]chat.Message, error) {
	query := url.Values{}
	query.Set("conversationId", conversationID)

	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			Items []chat.Message `json:"items"`
		} `json:"data"`
	}
	if err := s.getJSON(ctx, messagesPath+"?"+query.Encode(), &payload); err != nil {
		return nil, err
	}
	if payload.Code != http.StatusOK {
		return nil, fmt.Errorf("list messages: upstream code %d: %s", payload.Code, payload.Msg)
	}

	return MergeHistory(payload.Data.Items, s.dedupWindow), nil
}

func (s *Service) getJSON(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request %s: unexpected status %d", path, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s response: %w", path, err)
	}
	return nil
}

// MergeHistory orders stored messages for display and collapses the
// duplicate user questions the upstream's polling redelivers: identical
// content within the window is dropped, deliberate repeats outside it are
// kept, and bot replies are never collapsed.
func MergeHistory(messages []chat.Message, window time.Duration) []chat.Message {
	if len(messages) == 0 {
		return nil
	}

	ordered := engine.Order(messages)
	pending := engine.NewPendingTurns(window)

	out := make([]chat.Message, 0, len(ordered))
	for _, msg := range ordered {
		if msg.Role == chat.RoleUser && pending.ShouldSuppress(msg.Content, msg.CreatedAt) {
			continue
		}
		out = append(out, msg)
	}
	return out
}
