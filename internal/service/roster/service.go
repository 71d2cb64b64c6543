// Package roster fetches and caches the bot list the upstream NPC API
// exposes. The cache is an owned object with a session-scoped lifetime,
// injected into whoever needs name→id resolution; concurrent fetches
// collapse into one request.
package roster

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/zhouzirui/npc-chat/internal/model/roster"
)

const (
	listPath = "/ai-npc/npc/bot/list"

	// cacheTTL matches the upstream client's observed refresh interval.
	cacheTTL = time.Minute
)

// Service retrieves the bot roster and serves a Directory over it.
type Service struct {
	baseURL string
	client  *http.Client

	group singleflight.Group

	mu        sync.RWMutex
	store     *roster.MemoryStore
	fetchedAt time.Time
}

// NewService builds a roster service against the given API base URL.
func NewService(baseURL string, timeout time.Duration) *Service {
	return &Service{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

// Directory returns a usable directory, fetching the roster on first use or
// after the cache expires. Concurrent callers share one in-flight fetch.
func (s *Service) Directory(ctx context.Context) (roster.Directory, error) {
	s.mu.RLock()
	store, fetchedAt := s.store, s.fetchedAt
	s.mu.RUnlock()

	if store != nil && time.Since(fetchedAt) < cacheTTL {
		return store, nil
	}
	return s.refresh(ctx)
}

// Refresh discards the cache and fetches the roster again.
func (s *Service) Refresh(ctx context.Context) (roster.Directory, error) {
	s.mu.Lock()
	s.store = nil
	s.mu.Unlock()
	return s.refresh(ctx)
}

func (s *Service) refresh(ctx context.Context) (roster.Directory, error) {
	result, err, _ := s.group.Do("bot-list", func() (any, error) {
		bots, err := s.fetch(ctx)
		if err != nil {
			return nil, err
		}
		store := roster.NewMemoryStore(bots)
		s.mu.Lock()
		s.store = store
		s.fetchedAt = time.Now()
		s.mu.Unlock()
		log.Printf("[roster] loaded %d bots", len(bots))
		return store, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*roster.MemoryStore), nil
}

func (s *Service) fetch(ctx context.Context) ([]roster.Bot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+listPath, nil)
	if err != nil {
		return nil, fmt.Errorf("build bot list request: %w", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch bot list: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch bot list: unexpected status %d", resp.StatusCode)
	}

	var payload struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
		Data struct {
			Items []roster.Bot `json:"items"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode bot list: %w", err)
	}
	if payload.Code != http.StatusOK {
		return nil, fmt.Errorf("fetch bot list: upstream code %d: %s", payload.Code, payload.Msg)
	}

	return payload.Data.Items, nil
}
