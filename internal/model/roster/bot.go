package roster

// Bot describes one chat persona exposed by the upstream NPC API.
type Bot struct {
	BotID       string `json:"bot_id"`
	BotName     string `json:"bot_name"`
	IconURL     string `json:"icon_url,omitempty"`
	Description string `json:"description,omitempty"`
	PublishTime string `json:"publish_time,omitempty"`
}

// Seed provides the default bots served by the development server.
func Seed() []Bot {
	return []Bot{
		{
			BotID:       "bot-merlin",
			BotName:     "Merlin",
			Description: "Court wizard. Answers in riddles more often than is helpful.",
		},
		{
			BotID:       "bot-socrates",
			BotName:     "Socrates",
			Description: "Asks three questions for every one he answers.",
		},
		{
			BotID:       "bot-stark",
			BotName:     "Stark",
			Description: "Fast, confident, occasionally insufferable engineer.",
		},
	}
}
