package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/npc-chat/internal/config"
	"github.com/zhouzirui/npc-chat/internal/model/chat"
	"github.com/zhouzirui/npc-chat/internal/model/roster"
)

const npcSystemPrompt = `You are {bot_name}, a character in a group chat.
Character notes: {description}
Stay in character, answer in first person, and keep replies short enough
for a chat bubble. Never mention that you are an AI model.`

// Responder generates NPC replies through a model-backed chain. It is
// optional; the handler falls back to scripted replies when it is nil.
type Responder struct {
	runnable compose.Runnable[map[string]any, *schema.Message]
}

// NewResponder compiles the reply chain against the configured model.
func NewResponder(ctx context.Context, cfg config.AIConfig) (*Responder, error) {
	model, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("create chat model: %w", err)
	}

	template := prompt.FromMessages(schema.FString,
		schema.SystemMessage(npcSystemPrompt),
		schema.MessagesPlaceholder("chat_history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(template)
	chain.AppendChatModel(model)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("compile reply chain: %w", err)
	}

	return &Responder{runnable: runnable}, nil
}

// Stream produces a token stream for one bot's reply to the query.
func (r *Responder) Stream(ctx context.Context, bot roster.Bot, history []chat.Message, query string) (*schema.StreamReader[*schema.Message], error) {
	input := map[string]any{
		"bot_name":     bot.BotName,
		"description":  bot.Description,
		"chat_history": toSchemaMessages(history),
		"query":        query,
	}
	return r.runnable.Stream(ctx, input)
}

func toSchemaMessages(history []chat.Message) []*schema.Message {
	converted := make([]*schema.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case chat.RoleUser:
			converted = append(converted, schema.UserMessage(m.Content))
		case chat.RoleAssistant:
			converted = append(converted, schema.AssistantMessage(m.Content, nil))
		}
	}
	return converted
}
