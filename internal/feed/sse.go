package feed

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
)

const streamPath = "/ai-npc/npc/streamChat/create"

// SSEFeed reads turns from the upstream streaming endpoint. Frames arrive
// as `data: {json}` lines separated by blank lines; each data payload is
// delivered to the callbacks verbatim.
type SSEFeed struct {
	baseURL string
	client  *http.Client
}

// NewSSEFeed builds a feed against the given API base URL. The supplied
// client must not carry a global timeout, streams are long-lived; pass nil
// for a default.
func NewSSEFeed(baseURL string, client *http.Client) *SSEFeed {
	if client == nil {
		client = &http.Client{}
	}
	return &SSEFeed{baseURL: strings.TrimRight(baseURL, "/"), client: client}
}

// Open starts the stream and reads it on a dedicated goroutine until the
// server finishes, the request fails, or the handle is closed.
func (f *SSEFeed) Open(ctx context.Context, req Request, cb Callbacks) (Handle, error) {
	query := url.Values{}
	query.Set("content", req.Content)
	query.Set("conversationId", req.ConversationID)
	query.Set("userID", req.UserID)
	query.Set("botID", req.BotID)

	ctx, cancel := context.WithCancel(ctx)

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, f.baseURL+streamPath+"?"+query.Encode(), nil)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	httpReq.Header.Set("Accept", "text/event-stream")

	resp, err := f.client.Do(httpReq)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("open stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		cancel()
		return nil, fmt.Errorf("open stream: unexpected status %d", resp.StatusCode)
	}

	h := &sseHandle{cancel: cancel}
	go f.readLoop(ctx, resp, cb, h)
	return h, nil
}

func (f *SSEFeed) readLoop(ctx context.Context, resp *http.Response, cb Callbacks, h *sseHandle) {
	defer resp.Body.Close()

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var data []string
	flush := func() {
		for _, payload := range data {
			if cb.OnPayload != nil {
				cb.OnPayload(payload)
			}
		}
		data = data[:0]
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			flush()
			continue
		}
		if payload, ok := strings.CutPrefix(line, "data:"); ok {
			data = append(data, strings.TrimSpace(payload))
		}
		// Other SSE fields (event:, id:, retry:) are irrelevant here;
		// the payload itself carries the event type.
	}
	flush()

	if err := scanner.Err(); err != nil && ctx.Err() == nil {
		h.terminate(func() {
			if cb.OnError != nil {
				cb.OnError(fmt.Errorf("read stream: %w", err))
			}
		})
		return
	}

	if ctx.Err() != nil {
		// Closed locally; the consumer already moved on.
		log.Printf("[sse] stream closed by client")
		return
	}

	h.terminate(func() {
		if cb.OnComplete != nil {
			cb.OnComplete()
		}
	})
}

type sseHandle struct {
	cancel   context.CancelFunc
	terminal sync.Once
}

// Close aborts the stream. Idempotent; late frames are dropped by the
// consumer's own guards.
func (h *sseHandle) Close() {
	h.cancel()
}

// terminate runs the terminal callback at most once.
func (h *sseHandle) terminate(fn func()) {
	h.terminal.Do(fn)
}
