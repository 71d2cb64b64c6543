// Package feed abstracts the event stream a chat turn is read from. The
// engine consumes raw payloads in arrival order followed by exactly one
// terminal signal; it never sees HTTP.
package feed

import "context"

// Request identifies one chat turn to open a feed for.
type Request struct {
	Content        string
	BotID          string
	ConversationID string
	UserID         string
}

// Callbacks receive the feed's output. OnPayload is invoked once per event
// payload in arrival order, always from the same goroutine; afterwards
// exactly one of OnComplete or OnError fires.
type Callbacks struct {
	OnPayload  func(raw string)
	OnComplete func()
	OnError    func(err error)
}

// Handle controls an open feed. Close is idempotent and safe to call after
// natural completion.
type Handle interface {
	Close()
}

// Feed opens event streams for chat turns.
type Feed interface {
	Open(ctx context.Context, req Request, cb Callbacks) (Handle, error)
}
