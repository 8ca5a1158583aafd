package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dhowland/pfchat/internal/auth"
	"github.com/dhowland/pfchat/internal/config"
	"github.com/dhowland/pfchat/internal/gateway"
	"github.com/dhowland/pfchat/internal/notify"
	"github.com/dhowland/pfchat/internal/stream"
	"github.com/spf13/cobra"
)

func newGatewayCmd() *cobra.Command {
	var (
		configPath string
		port       int
		chatID     string
	)

	cmd := &cobra.Command{
		Use:   "gateway <chat-id>",
		Short: "Serve the chat session to a browser",
		Long:  "Runs a local web server that attaches to one chat and re-serves it over HTTP with a live event stream.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			chatID = args[0]
			return runGateway(cmd, configPath, chatID, port)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().IntVarP(&port, "port", "p", 0, "port to listen on (default from config)")
	return cmd
}

func runGateway(cmd *cobra.Command, configPath, chatID string, port int) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	store := auth.NewStore(auth.DefaultPath())
	if _, err := store.Load(); err != nil {
		return fmt.Errorf("not logged in: run `pf login` first")
	}

	gormDB, err := openCache(cfg)
	if err != nil {
		return err
	}

	notifier := buildNotifier(cfg)
	hub := gateway.NewHub()

	sess, err := stream.NewSession(stream.SessionOpts{
		ChatID:    chatID,
		Config:    streamConfig(cfg),
		Tokens:    store.TokenSource(),
		Callbacks: hub.Callbacks(gateway.BridgeOpts{DB: gormDB, Notifier: notifier}),
	})
	if err != nil {
		return err
	}
	defer sess.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	if err := sess.Connect(ctx); err != nil {
		return err
	}

	if port <= 0 {
		port = cfg.Gateway.Port
	}
	return gateway.Start(ctx, gateway.StartOpts{
		DB:        gormDB,
		Session:   sess,
		Hub:       hub,
		Port:      port,
		PruneCron: cfg.Gateway.PruneCron,
		Retention: time.Duration(cfg.Gateway.PruneDays) * 24 * time.Hour,
		Out:       cmd.OutOrStdout(),
	})
}

// buildNotifier assembles the configured alert channels. Misconfigured
// channels are logged and skipped rather than blocking startup.
func buildNotifier(cfg *config.Config) notify.Notifier {
	var notifiers []notify.Notifier
	if cfg.Notify.Slack.BotToken != "" {
		s, err := notify.NewSlack(notify.SlackOpts{
			BotToken:  cfg.Notify.Slack.BotToken,
			ChannelID: cfg.Notify.Slack.ChannelID,
		})
		if err != nil {
			log.Printf("gateway: slack notifier: %v", err)
		} else {
			notifiers = append(notifiers, s)
		}
	}
	if cfg.Notify.Discord.BotToken != "" {
		d, err := notify.NewDiscord(notify.DiscordOpts{
			BotToken:  cfg.Notify.Discord.BotToken,
			ChannelID: cfg.Notify.Discord.ChannelID,
		})
		if err != nil {
			log.Printf("gateway: discord notifier: %v", err)
		} else {
			notifiers = append(notifiers, d)
		}
	}
	if len(notifiers) == 0 {
		return nil
	}
	return notify.NewMulti(notifiers...)
}
