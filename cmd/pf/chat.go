package main

import (
	"bufio"
	"fmt"
	"log"
	"strings"

	"github.com/dhowland/pfchat/internal/auth"
	"github.com/dhowland/pfchat/internal/history"
	"github.com/dhowland/pfchat/internal/stream"
	"github.com/spf13/cobra"
	"gorm.io/gorm"
)

func newChatCmd() *cobra.Command {
	var (
		configPath string
		title      string
	)

	cmd := &cobra.Command{
		Use:   "chat [chat-id]",
		Short: "Open an interactive chat session",
		Long:  "Streams a conversation with the portfolio assistant. With no chat ID, a new chat is created.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID := ""
			if len(args) == 1 {
				chatID = args[0]
			}
			return runChat(cmd, configPath, chatID, title)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&title, "title", "t", "New chat", "title for a newly created chat")
	return cmd
}

func runChat(cmd *cobra.Command, configPath, chatID, title string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store := auth.NewStore(auth.DefaultPath())
	if _, err := store.Load(); err != nil {
		return fmt.Errorf("not logged in: run `pf login` first")
	}

	if chatID == "" {
		client, err := newAPIClient(cfg, store)
		if err != nil {
			return err
		}
		chat, err := client.CreateChat(cmd.Context(), title)
		if err != nil {
			return fmt.Errorf("create chat: %w", err)
		}
		chatID = chat.ID
		fmt.Fprintf(cmd.OutOrStdout(), "Created chat %s\n", chatID)
	}

	gormDB, err := openCache(cfg)
	if err != nil {
		return err
	}
	if err := history.UpsertChat(gormDB, chatID, title); err != nil {
		log.Printf("chat: cache chat: %v", err)
	}

	out := cmd.OutOrStdout()
	turnDone := make(chan struct{}, 1)
	signalDone := func() {
		select {
		case turnDone <- struct{}{}:
		default:
		}
	}

	var sess *stream.Session
	sess, err = stream.NewSession(stream.SessionOpts{
		ChatID: chatID,
		Config: streamConfig(cfg),
		Tokens: store.TokenSource(),
		Callbacks: stream.Callbacks{
			OnStatusChange: func(st stream.Status) {
				fmt.Fprintf(out, "\n[%s]\n", st)
			},
			OnChunk: func(text string) {
				fmt.Fprint(out, text)
			},
			OnToolStatus: func(tools []stream.ToolStatus) {
				for _, t := range tools {
					fmt.Fprintf(out, "\n[tool %s: %s]\n", t.Name, t.State)
				}
			},
			OnTurnComplete: func(turn stream.CompletedTurn) {
				fmt.Fprintln(out)
				if err := history.RecordAssistantTurn(gormDB, turn); err != nil {
					fmt.Fprintf(out, "(history: %v)\n", err)
				}
				signalDone()
			},
			OnChartGenerated: func(chartRef string) {
				fmt.Fprintf(out, "\n[chart: %s]\n", chartRef)
			},
			OnRateLimitExceeded: func(message string, _ stream.RateLimitSnapshot) {
				fmt.Fprintf(out, "\n%s\n", message)
				signalDone()
			},
			OnChatRenamed: func(id, newTitle string) {
				fmt.Fprintf(out, "\n[chat renamed: %s]\n", newTitle)
				if err := history.RenameChat(gormDB, id, newTitle); err != nil {
					log.Printf("chat: cache rename: %v", err)
				}
			},
			OnError: func(err error) {
				fmt.Fprintf(out, "\nerror: %v\n", err)
				signalDone()
			},
		},
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.Connect(cmd.Context()); err != nil {
		return err
	}

	fmt.Fprintln(out, "Type a message, or /quit to exit. /help lists commands.")
	scanner := bufio.NewScanner(cmd.InOrStdin())
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "/") {
			if quit := replCommand(cmd, sess, gormDB, line); quit {
				return nil
			}
			continue
		}

		if err := sess.SendMessage(sess.ChatID(), line); err != nil {
			fmt.Fprintf(out, "send failed: %v\n", err)
			continue
		}
		if err := history.RecordUserTurn(gormDB, sess.ChatID(), line); err != nil {
			log.Printf("chat: cache user turn: %v", err)
		}

		select {
		case <-turnDone:
		case <-cmd.Context().Done():
			return nil
		}
	}
}

// replCommand handles slash commands. It returns true when the REPL should
// exit.
func replCommand(cmd *cobra.Command, sess *stream.Session, gormDB *gorm.DB, line string) bool {
	out := cmd.OutOrStdout()
	fields := strings.Fields(line)
	switch fields[0] {
	case "/quit", "/exit":
		return true
	case "/help":
		fmt.Fprintln(out, "/status    connection state and rate limits")
		fmt.Fprintln(out, "/switch ID attach to a different chat")
		fmt.Fprintln(out, "/reconnect retry after a failed connection")
		fmt.Fprintln(out, "/quit      exit")
	case "/status":
		fmt.Fprintf(out, "chat %s: %s\n", sess.ChatID(), sess.Status())
		if msg := sess.LastError(); msg != "" {
			fmt.Fprintf(out, "last error: %s\n", msg)
		}
		limits := sess.RateLimit()
		fmt.Fprintf(out, "hourly %d/%d, daily %d/%d\n",
			limits.Hourly.Used, limits.Hourly.Limit, limits.Daily.Used, limits.Daily.Limit)
	case "/switch":
		if len(fields) != 2 {
			fmt.Fprintln(out, "usage: /switch <chat-id>")
			return false
		}
		if err := sess.SwitchChat(cmd.Context(), fields[1]); err != nil {
			fmt.Fprintf(out, "switch failed: %v\n", err)
			return false
		}
		if err := history.UpsertChat(gormDB, fields[1], ""); err != nil {
			log.Printf("chat: cache chat: %v", err)
		}
	case "/reconnect":
		if err := sess.Reconnect(); err != nil {
			fmt.Fprintf(out, "reconnect failed: %v\n", err)
		}
	default:
		fmt.Fprintf(out, "unknown command %s\n", fields[0])
	}
	return false
}
