package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dhowland/pfchat/internal/auth"
	"github.com/spf13/cobra"
)

func newAdminCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "admin",
		Short: "Administrative commands",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newAdminStatsCmd(&configPath))
	return cmd
}

func newAdminStatsCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Show service usage statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			store := auth.NewStore(auth.DefaultPath())
			creds, err := store.Load()
			if err != nil {
				return fmt.Errorf("not logged in: run `pf login --admin` first")
			}
			if !creds.IsAdmin {
				return fmt.Errorf("stored credential is not an admin credential")
			}
			client, err := newAPIClient(cfg, store)
			if err != nil {
				return err
			}

			stats, err := client.GetAdminStats(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "Total users:\t%d\n", stats.TotalUsers)
			fmt.Fprintf(w, "Active chats:\t%d\n", stats.ActiveChats)
			fmt.Fprintf(w, "Messages today:\t%d\n", stats.MessagesToday)
			fmt.Fprintf(w, "Tokens today:\t%s\n", formatTokenCount(int64(stats.TokensToday)))
			fmt.Fprintf(w, "Rate-limited users:\t%d\n", stats.RateLimitedUsers)
			return w.Flush()
		},
	}
}
