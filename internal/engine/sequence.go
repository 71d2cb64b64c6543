package engine

import (
	"sort"

	"github.com/zhouzirui/npc-chat/internal/model/chat"
)

// Order returns the messages in display order: createdAt ascending, user
// before assistant at equal timestamps, then id lexical order. The input is
// not modified; the same multiset always yields the same sequence, so two
// replays of one recorded event stream produce identical transcripts.
func Order(messages []chat.Message) []chat.Message {
	out := append([]chat.Message(nil), messages...)
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.CreatedAt != b.CreatedAt {
			return a.CreatedAt < b.CreatedAt
		}
		if a.Role != b.Role {
			return a.Role == chat.RoleUser
		}
		return a.ID < b.ID
	})
	return out
}
