package engine

import "time"

type pendingTurn struct {
	content     string
	submittedAt int64
}

// PendingTurns is a small recency-bounded record of recent user submissions,
// used to suppress the duplicate deliveries the upstream's polling produces.
// Identical content inside the window is a duplicate; identical content
// outside it is a deliberate repeat and passes through. Entries are not part
// of the transcript.
type PendingTurns struct {
	window  time.Duration
	entries []pendingTurn
}

// NewPendingTurns builds a cache with the given suppression window.
func NewPendingTurns(window time.Duration) *PendingTurns {
	if window <= 0 {
		window = 30 * time.Second
	}
	return &PendingTurns{window: window}
}

// ShouldSuppress reports whether a submission with this content at this
// millisecond timestamp duplicates a recent one. When it does not, the
// submission is recorded for future checks.
func (p *PendingTurns) ShouldSuppress(content string, submittedAt int64) bool {
	windowMs := p.window.Milliseconds()

	kept := p.entries[:0]
	for _, entry := range p.entries {
		if submittedAt-entry.submittedAt < windowMs {
			kept = append(kept, entry)
		}
	}
	p.entries = kept

	for _, entry := range p.entries {
		delta := submittedAt - entry.submittedAt
		if delta < 0 {
			delta = -delta
		}
		if entry.content == content && delta < windowMs {
			return true
		}
	}

	p.entries = append(p.entries, pendingTurn{content: content, submittedAt: submittedAt})
	return false
}
