package engine

import (
	"log"
	"strings"

	"github.com/zhouzirui/npc-chat/internal/model/roster"
)

// Resolution is the outcome of speaker identification for one fragment.
type Resolution struct {
	// BotID is the resolved speaker, or empty when a marker named a bot
	// the directory does not know.
	BotID string
	// DisplayName is the marker text, when one was present.
	DisplayName string
	// Remainder is the fragment with any marker prefix stripped.
	Remainder string
}

// Resolver extracts speaker markers from fragment text. The upstream embeds
// the bot display name as a literal prefix in the first fragment of a reply,
// separated by a reserved delimiter; this is a fragile protocol, so the
// delimiter and the maximum marker length are configurable and suspected
// false positives are logged rather than silently mis-attributed.
type Resolver struct {
	delimiter string
	maxLen    int
	directory roster.Directory
}

// NewResolver builds a Resolver over the given directory. The directory is
// read-only and may be shared across sessions.
func NewResolver(delimiter string, maxLen int, directory roster.Directory) *Resolver {
	if delimiter == "" {
		delimiter = "|"
	}
	if maxLen <= 0 {
		maxLen = 24
	}
	return &Resolver{delimiter: delimiter, maxLen: maxLen, directory: directory}
}

// Resolve identifies the speaker of a fragment. When no marker is present
// the request's target bot is assumed. Deterministic, no state mutation.
func (r *Resolver) Resolve(fragment, fallbackBotID string) Resolution {
	idx := strings.Index(fragment, r.delimiter)
	if idx <= 0 || idx > r.maxLen {
		return Resolution{BotID: fallbackBotID, Remainder: fragment}
	}

	name := strings.TrimSpace(fragment[:idx])
	if name == "" {
		return Resolution{BotID: fallbackBotID, Remainder: fragment}
	}

	remainder := fragment[idx+len(r.delimiter):]
	if id, ok := r.directory.IDForName(name); ok {
		return Resolution{BotID: id, DisplayName: name, Remainder: remainder}
	}

	// A delimiter this early in a fragment usually is a marker, but the
	// name is not in the roster: either a stale roster or ordinary prose
	// containing the delimiter.
	log.Printf("[engine] unresolved speaker marker %q, treating as unattributed", name)
	return Resolution{DisplayName: name, Remainder: remainder}
}
