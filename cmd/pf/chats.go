package main

import (
	"fmt"
	"log"
	"text/tabwriter"

	"github.com/dhowland/pfchat/internal/auth"
	"github.com/dhowland/pfchat/internal/history"
	"github.com/spf13/cobra"
)

func newChatsCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "chats",
		Short: "Manage chat threads",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runChatsList(cmd, configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newChatsCreateCmd(&configPath))
	cmd.AddCommand(newChatsRenameCmd(&configPath))
	cmd.AddCommand(newChatsDeleteCmd(&configPath))
	return cmd
}

func runChatsList(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg, auth.NewStore(auth.DefaultPath()))
	if err != nil {
		return err
	}

	chats, err := client.ListChats(cmd.Context())
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No chats")
		return nil
	}

	// Refresh the local cache opportunistically; a cache failure is not
	// worth failing the listing over.
	if gormDB, err := openCache(cfg); err == nil {
		for _, c := range chats {
			if err := history.UpsertChat(gormDB, c.ID, c.Title); err != nil {
				log.Printf("chats: cache refresh: %v", err)
				break
			}
		}
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	for _, c := range chats {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Title, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func newChatsCreateCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "create <title>",
		Short: "Create a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg, auth.NewStore(auth.DefaultPath()))
			if err != nil {
				return err
			}
			chat, err := client.CreateChat(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Created chat %s (%s)\n", chat.ID, chat.Title)
			return nil
		},
	}
}

func newChatsRenameCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "rename <chat-id> <title>",
		Short: "Rename a chat",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg, auth.NewStore(auth.DefaultPath()))
			if err != nil {
				return err
			}
			if err := client.RenameChat(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			if gormDB, err := openCache(cfg); err == nil {
				if err := history.RenameChat(gormDB, args[0], args[1]); err != nil {
					log.Printf("chats: cache rename: %v", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Renamed %s\n", args[0])
			return nil
		},
	}
}

func newChatsDeleteCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <chat-id>",
		Short: "Delete a chat",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg, auth.NewStore(auth.DefaultPath()))
			if err != nil {
				return err
			}
			if err := client.DeleteChat(cmd.Context(), args[0]); err != nil {
				return err
			}
			if gormDB, err := openCache(cfg); err == nil {
				if err := history.DeleteChat(gormDB, args[0]); err != nil {
					log.Printf("chats: cache delete: %v", err)
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
}
