package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zhouzirui/npc-chat/internal/config"
	"github.com/zhouzirui/npc-chat/internal/feed"
	"github.com/zhouzirui/npc-chat/internal/model/chat"
	"github.com/zhouzirui/npc-chat/internal/model/roster"
)

var (
	ErrTurnInProgress = errors.New("a turn is already in progress")
	ErrDuplicateTurn  = errors.New("duplicate submission suppressed")
	ErrSessionClosed  = errors.New("session is closed")
	ErrMissingTarget  = errors.New("bot id and conversation id are required")
)

// State names the controller's position in the turn lifecycle.
type State int

const (
	StateIdle State = iota
	StateAwaitingFirstByte
	StateStreaming
	StateCompleting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateAwaitingFirstByte:
		return "awaiting-first-byte"
	case StateStreaming:
		return "streaming"
	case StateCompleting:
		return "completing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// UpdateFunc receives progress: the latest fragment text, whether the turn
// finished, and the full transcript snapshot in display order.
type UpdateFunc func(fragment string, done bool, messages []chat.Message)

// Controller drives one conversation's turns against an event feed. It owns
// the tracker and the pending-turn cache; both are discarded with the
// controller. A single turn may be in flight at a time: a second Submit
// while streaming is rejected, never queued.
//
// The turn lifecycle is Idle → AwaitingFirstByte → Streaming → Completing →
// Closed; after a turn closes the controller re-arms to Idle so the same
// instance can drive the next turn of the conversation. Close makes the
// closed state permanent.
type Controller struct {
	cfg      config.EngineConfig
	feed     feed.Feed
	resolver *Resolver
	userID   string

	mu            sync.Mutex
	state         State
	sessionClosed bool
	turnSeq       uint64
	history       []chat.Message
	tracker       *Tracker
	pending       *PendingTurns
	conversation  string
	targetBotID   string
	onUpdate      UpdateFunc
	handle        feed.Handle
	stall         *time.Timer
}

// NewController builds a controller for one conversation. The directory is
// shared and read-only; everything else is owned by this instance.
func NewController(cfg config.EngineConfig, f feed.Feed, directory roster.Directory, userID string) *Controller {
	return &Controller{
		cfg:      cfg,
		feed:     f,
		resolver: NewResolver(cfg.MarkerDelimiter, cfg.MarkerMaxLen, directory),
		userID:   userID,
		state:    StateIdle,
		tracker:  NewTracker(),
		pending:  NewPendingTurns(cfg.DedupWindow),
	}
}

// State reports the current lifecycle state, for disabling duplicate-submit
// affordances in the caller.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// ConversationID returns the conversation this controller is bound to,
// including a server-assigned id adopted mid-stream.
func (c *Controller) ConversationID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.conversation
}

// LoadHistory replaces the transcript with already-persisted messages, e.g.
// after the caller merged stored history. Only permitted between turns.
func (c *Controller) LoadHistory(messages []chat.Message) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateIdle {
		return ErrTurnInProgress
	}
	c.history = append([]chat.Message(nil), messages...)
	return nil
}

// Messages returns the transcript in display order, provisional messages
// included.
func (c *Controller) Messages() []chat.Message {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// Submit starts a new turn: records the user message, opens the feed, and
// streams updates to onUpdate until the turn completes. Rejections are
// synchronous; an accepted turn always terminates in finite time with a
// final done=true update.
func (c *Controller) Submit(ctx context.Context, content, botID, conversationID string, onUpdate UpdateFunc) error {
	c.mu.Lock()
	if c.sessionClosed {
		c.mu.Unlock()
		return ErrSessionClosed
	}
	if c.state != StateIdle {
		c.mu.Unlock()
		return ErrTurnInProgress
	}
	if botID == "" || conversationID == "" {
		c.mu.Unlock()
		return ErrMissingTarget
	}

	now := time.Now().UnixMilli()
	if c.pending.ShouldSuppress(content, now) {
		c.mu.Unlock()
		return ErrDuplicateTurn
	}

	c.history = append(c.history, chat.Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Role:           chat.RoleUser,
		Content:        content,
		CreatedAt:      now,
	})
	c.conversation = conversationID
	c.targetBotID = botID
	c.onUpdate = onUpdate
	c.state = StateAwaitingFirstByte
	c.turnSeq++
	seq := c.turnSeq
	snapshot := c.snapshotLocked()
	c.mu.Unlock()

	if onUpdate != nil {
		onUpdate("", false, snapshot)
	}

	handle, err := c.feed.Open(ctx, feed.Request{
		Content:        content,
		BotID:          botID,
		ConversationID: conversationID,
		UserID:         c.userID,
	}, feed.Callbacks{
		OnPayload:  func(raw string) { c.handlePayload(seq, raw) },
		OnComplete: func() { c.handleComplete(seq) },
		OnError:    func(err error) { c.handleError(seq, err) },
	})
	if err != nil {
		// The turn was accepted; its failure is reported the same way
		// a mid-stream error is, so the caller sees exactly one
		// completion signal.
		log.Printf("[engine] feed open failed: %v", err)
		c.handleError(seq, err)
		return nil
	}

	c.mu.Lock()
	if c.turnSeq == seq && (c.state == StateAwaitingFirstByte || c.state == StateStreaming) {
		c.handle = handle
		c.stall = time.AfterFunc(c.cfg.StallTimeout, func() { c.handleStall(seq) })
		c.mu.Unlock()
		return nil
	}
	// The turn already ended (error, cancel, or an extremely fast feed).
	c.mu.Unlock()
	handle.Close()
	return nil
}

// Cancel aborts the in-flight turn, if any. Provisional messages are
// discarded and never surface in later updates; fragments arriving after
// cancellation are ignored.
func (c *Controller) Cancel() {
	c.mu.Lock()
	handle := c.abortLocked()
	if !c.sessionClosed {
		c.state = StateIdle
	}
	c.mu.Unlock()
	if handle != nil {
		handle.Close()
	}
}

// Close cancels any in-flight turn and permanently closes the controller.
func (c *Controller) Close() {
	c.mu.Lock()
	handle := c.abortLocked()
	c.sessionClosed = true
	c.state = StateClosed
	c.mu.Unlock()
	if handle != nil {
		handle.Close()
	}
}

// abortLocked tears down the active turn without emitting updates.
func (c *Controller) abortLocked() feed.Handle {
	handle := c.handle
	c.handle = nil
	if c.stall != nil {
		c.stall.Stop()
		c.stall = nil
	}
	c.tracker.Discard()
	c.onUpdate = nil
	c.turnSeq++
	return handle
}

func (c *Controller) handlePayload(seq uint64, raw string) {
	c.mu.Lock()
	if !c.turnActiveLocked(seq) {
		c.mu.Unlock()
		return
	}

	ev, err := Decode(raw)
	if err != nil {
		// One malformed frame never aborts the session.
		log.Printf("[engine] skipping malformed frame: %v", err)
		c.mu.Unlock()
		return
	}

	if c.state == StateAwaitingFirstByte {
		c.state = StateStreaming
	}
	if c.stall != nil {
		c.stall.Reset(c.cfg.StallTimeout)
	}

	var fragment string
	emit := false

	switch ev.Kind {
	case EventDelta:
		fragment = c.routeDeltaLocked(ev)
		emit = true
	case EventMessageCompleted:
		// Only "answer" messages carry transcript content; other types
		// (follow-up suggestions, tool traces) are skipped.
		if ev.MessageType == "" || ev.MessageType == "answer" {
			c.routeCompletedLocked(ev)
			emit = true
		}
	case EventChatCompleted:
		if ev.ConversationID != "" {
			c.conversation = ev.ConversationID
		}
	case EventDone:
		cb, snapshot := c.finishLocked()
		c.mu.Unlock()
		if cb != nil {
			cb("", true, snapshot)
		}
		return
	default:
		log.Printf("[engine] ignoring unknown event %q", ev.RawEvent)
	}

	var cb UpdateFunc
	var snapshot []chat.Message
	if emit {
		cb = c.onUpdate
		snapshot = c.snapshotLocked()
	}
	c.mu.Unlock()
	if cb != nil {
		cb(fragment, false, snapshot)
	}
}

// routeDeltaLocked attributes one fragment and grows the tracked message.
// Speaker priority: text marker, then the event's structured bot id, then
// continuation of the current speaker, then the request's target bot.
func (c *Controller) routeDeltaLocked(ev Event) string {
	res := c.resolver.Resolve(ev.Content, "")
	botID := res.BotID
	if botID == "" && ev.BotID != "" {
		botID = ev.BotID
	}
	if botID == "" && res.DisplayName == "" && c.tracker.Len() == 0 {
		botID = c.targetBotID
	}
	c.tracker.StartOrAppend(botID, res.Remainder, ev.CreatedAt)
	return res.Remainder
}

func (c *Controller) routeCompletedLocked(ev Event) {
	res := c.resolver.Resolve(ev.Content, "")
	botID := res.BotID
	if botID == "" && ev.BotID != "" {
		botID = ev.BotID
	}
	c.tracker.SetFinalContent(botID, res.Remainder)
}

func (c *Controller) handleComplete(seq uint64) {
	c.mu.Lock()
	if !c.turnActiveLocked(seq) {
		c.mu.Unlock()
		return
	}
	cb, snapshot := c.finishLocked()
	c.mu.Unlock()
	if cb != nil {
		cb("", true, snapshot)
	}
}

func (c *Controller) handleError(seq uint64, err error) {
	c.mu.Lock()
	if !c.turnActiveLocked(seq) {
		c.mu.Unlock()
		return
	}

	// Substitute an error marker for anything that never received content;
	// partial content is kept as-is. The transcript must never retain a
	// permanently "thinking" placeholder.
	errText := fmt.Sprintf("[error] %v", err)
	if c.tracker.Len() == 0 {
		c.tracker.StartOrAppend(c.targetBotID, errText, 0)
	} else {
		c.tracker.SubstituteEmpty(errText)
	}

	cb, snapshot := c.finishLocked()
	c.mu.Unlock()
	if cb != nil {
		cb(errText, true, snapshot)
	}
}

// handleStall fires when no event arrived within the stall timeout. The
// turn is force-finalized exactly as on normal completion: fail-open, the
// user keeps whatever content arrived.
func (c *Controller) handleStall(seq uint64) {
	c.mu.Lock()
	if !c.turnActiveLocked(seq) {
		c.mu.Unlock()
		return
	}
	log.Printf("[engine] stream stalled for %s, force-completing turn", c.cfg.StallTimeout)
	cb, snapshot := c.finishLocked()
	c.mu.Unlock()
	if cb != nil {
		cb("", true, snapshot)
	}
}

// finishLocked finalizes the turn and returns the callback and final
// snapshot for the caller to emit after releasing the lock. Guarded by
// turnActiveLocked, so completion is emitted exactly once per turn.
func (c *Controller) finishLocked() (UpdateFunc, []chat.Message) {
	c.state = StateCompleting
	c.history = append(c.history, c.tracker.FinalizeAll()...)

	if c.stall != nil {
		c.stall.Stop()
		c.stall = nil
	}
	if c.handle != nil {
		c.handle.Close()
		c.handle = nil
	}

	cb := c.onUpdate
	c.onUpdate = nil
	snapshot := c.snapshotLocked()

	c.state = StateClosed
	c.turnSeq++
	if !c.sessionClosed {
		c.state = StateIdle
	}
	return cb, snapshot
}

func (c *Controller) turnActiveLocked(seq uint64) bool {
	if c.turnSeq != seq {
		return false
	}
	return c.state == StateAwaitingFirstByte || c.state == StateStreaming
}

func (c *Controller) snapshotLocked() []chat.Message {
	all := make([]chat.Message, 0, len(c.history)+c.tracker.Len())
	all = append(all, c.history...)
	all = append(all, c.tracker.Snapshot()...)
	return Order(all)
}
