package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/google/uuid"
	"github.com/joho/godotenv"

	"github.com/zhouzirui/npc-chat/internal/config"
	"github.com/zhouzirui/npc-chat/internal/engine"
	"github.com/zhouzirui/npc-chat/internal/feed"
	"github.com/zhouzirui/npc-chat/internal/model/chat"
	"github.com/zhouzirui/npc-chat/internal/model/roster"
	conversationService "github.com/zhouzirui/npc-chat/internal/service/conversation"
	rosterService "github.com/zhouzirui/npc-chat/internal/service/roster"
)

func main() {
	botName := flag.String("bot", "all", "display name of the bot to address, or \"all\"")
	resumeID := flag.String("conversation", "", "conversation id to resume instead of creating one")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: failed to load .env file: %v", err)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	userID := cfg.API.UserID
	if userID == "" {
		userID = uuid.NewString()
	}

	rosterSvc := rosterService.NewService(cfg.API.BaseURL, cfg.API.Timeout)
	directory, err := rosterSvc.Directory(ctx)
	if err != nil {
		log.Fatalf("failed to load bot roster: %v", err)
	}

	botID := "all"
	if *botName != "all" {
		id, ok := directory.IDForName(*botName)
		if !ok {
			log.Fatalf("unknown bot %q; try one of: %s", *botName, botNames(directory))
		}
		botID = id
	}

	convSvc := conversationService.NewService(cfg.API.BaseURL, cfg.API.Timeout, cfg.Engine.DedupWindow)
	controller := engine.NewController(cfg.Engine, feed.NewSSEFeed(cfg.API.BaseURL, nil), directory, userID)
	defer controller.Close()

	conversationID := *resumeID
	if conversationID == "" {
		conv, err := convSvc.CreateConversation(ctx, userID)
		if err != nil {
			log.Fatalf("failed to create conversation: %v", err)
		}
		conversationID = conv.ID
	} else {
		history, err := convSvc.LoadMessages(ctx, conversationID)
		if err != nil {
			log.Fatalf("failed to load conversation %s: %v", conversationID, err)
		}
		if err := controller.LoadHistory(history); err != nil {
			log.Fatalf("failed to restore history: %v", err)
		}
		printTranscript(history, directory)
	}

	fmt.Printf("conversation %s ready; talking to %s (ctrl-d or /quit to exit)\n", conversationID, *botName)

	render := &renderer{bots: directory}
	input := bufio.NewScanner(os.Stdin)

	for {
		fmt.Print("> ")
		if !input.Scan() {
			break
		}
		line := strings.TrimSpace(input.Text())

		switch {
		case line == "":
			continue
		case line == "/quit":
			return
		case line == "/bots":
			fmt.Println(botNames(directory))
			continue
		}

		done := make(chan struct{})
		render.reset()
		err := controller.Submit(ctx, line, botID, conversationID, func(fragment string, finished bool, messages []chat.Message) {
			render.update(fragment, messages)
			if finished {
				fmt.Println()
				close(done)
			}
		})
		switch {
		case err == nil:
		case errors.Is(err, engine.ErrDuplicateTurn):
			fmt.Println("(duplicate of a just-sent message, ignored)")
			continue
		default:
			log.Printf("send failed: %v", err)
			continue
		}

		select {
		case <-done:
		case <-ctx.Done():
			controller.Cancel()
			fmt.Println("\n(turn canceled)")
			return
		}
	}

	if err := input.Err(); err != nil {
		log.Printf("stdin error: %v", err)
	}
}

// renderer prints streamed fragments, inserting a speaker header whenever
// the fragment lands on a different message than the previous one.
type renderer struct {
	bots       roster.Directory
	lastTarget string
}

func (r *renderer) reset() {
	r.lastTarget = ""
}

func (r *renderer) update(fragment string, messages []chat.Message) {
	if fragment == "" {
		return
	}

	target := latestAssistant(messages)
	if target.ID != "" && target.ID != r.lastTarget {
		if r.lastTarget != "" {
			fmt.Println()
		}
		fmt.Printf("%s: ", r.speakerName(target))
		r.lastTarget = target.ID
	}
	fmt.Print(fragment)
}

func (r *renderer) speakerName(msg chat.Message) string {
	if bot, ok := r.bots.FindByID(msg.BotID); ok {
		return bot.BotName
	}
	return "???"
}

func latestAssistant(messages []chat.Message) chat.Message {
	for i := len(messages) - 1; i >= 0; i-- {
		if messages[i].Role == chat.RoleAssistant {
			return messages[i]
		}
	}
	return chat.Message{}
}

func printTranscript(messages []chat.Message, bots roster.Directory) {
	for _, msg := range messages {
		name := "you"
		if msg.Role == chat.RoleAssistant {
			name = "???"
			if bot, ok := bots.FindByID(msg.BotID); ok {
				name = bot.BotName
			}
		}
		fmt.Printf("%s: %s\n", name, msg.Content)
	}
}

func botNames(bots roster.Directory) string {
	names := make([]string, 0, 4)
	for _, bot := range bots.List() {
		names = append(names, bot.BotName)
	}
	return strings.Join(names, ", ")
}
