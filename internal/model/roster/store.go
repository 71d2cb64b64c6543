package roster

// Directory resolves speaker markers to bot identities. Implementations are
// read-only from the engine's point of view and may be shared across
// concurrently running sessions.
type Directory interface {
	List() []Bot
	FindByID(id string) (Bot, bool)
	IDForName(name string) (string, bool)
}

// MemoryStore implements Directory over a fixed slice of bots.
type MemoryStore struct {
	items   []Bot
	byName  map[string]string
	byBotID map[string]Bot
}

// NewMemoryStore returns a MemoryStore indexed over the supplied bots.
func NewMemoryStore(items []Bot) *MemoryStore {
	s := &MemoryStore{
		items:   append([]Bot(nil), items...),
		byName:  make(map[string]string, len(items)),
		byBotID: make(map[string]Bot, len(items)),
	}
	for _, bot := range s.items {
		s.byBotID[bot.BotID] = bot
		if bot.BotName != "" {
			s.byName[bot.BotName] = bot.BotID
		}
	}
	return s
}

// List returns a copy of the bot list.
func (s *MemoryStore) List() []Bot {
	return append([]Bot(nil), s.items...)
}

// FindByID looks up a bot by identifier.
func (s *MemoryStore) FindByID(id string) (Bot, bool) {
	bot, ok := s.byBotID[id]
	return bot, ok
}

// IDForName maps a display name to a bot identifier.
func (s *MemoryStore) IDForName(name string) (string, bool) {
	id, ok := s.byName[name]
	return id, ok
}
