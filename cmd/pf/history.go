package main

import (
	"encoding/json"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/dhowland/pfchat/internal/history"
	"github.com/spf13/cobra"
)

func newHistoryCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Browse the local chat history cache",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistoryList(cmd, configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newHistoryShowCmd(&configPath))
	cmd.AddCommand(newHistorySearchCmd(&configPath))
	cmd.AddCommand(newHistoryPruneCmd(&configPath))
	return cmd
}

func runHistoryList(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	gormDB, err := openCache(cfg)
	if err != nil {
		return err
	}

	chats, err := history.Chats(gormDB)
	if err != nil {
		return err
	}
	if len(chats) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No cached chats")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tUPDATED")
	for _, c := range chats {
		fmt.Fprintf(w, "%s\t%s\t%s\n", c.ID, c.Title, c.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func newHistoryShowCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "show <chat-id>",
		Short: "Print a cached transcript",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			gormDB, err := openCache(cfg)
			if err != nil {
				return err
			}

			msgs, err := history.Transcript(gormDB, args[0], limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range msgs {
				fmt.Fprintf(out, "[%s] %s\n", m.Role, m.Content)
				if m.Role == history.RoleAssistant && m.ToolsUsed != "" {
					var tools []string
					if json.Unmarshal([]byte(m.ToolsUsed), &tools) == nil && len(tools) > 0 {
						fmt.Fprintf(out, "  tools: %v\n", tools)
					}
				}
				if m.ChartRef != "" {
					fmt.Fprintf(out, "  chart: %s\n", m.ChartRef)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 0, "show only the most recent N messages")
	return cmd
}

func newHistorySearchCmd(configPath *string) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search cached messages",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			gormDB, err := openCache(cfg)
			if err != nil {
				return err
			}

			msgs, err := history.Search(gormDB, args[0], limit)
			if err != nil {
				return err
			}
			if len(msgs) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "No matches")
				return nil
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "CHAT\tROLE\tWHEN\tCONTENT")
			for _, m := range msgs {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n",
					m.ChatID, m.Role, m.CreatedAt.Format("2006-01-02 15:04"), truncate(m.Content, 60))
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 50, "maximum matches to show")
	return cmd
}

func newHistoryPruneCmd(configPath *string) *cobra.Command {
	var days int

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Delete cached messages older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			if days <= 0 {
				days = cfg.Gateway.PruneDays
			}
			gormDB, err := openCache(cfg)
			if err != nil {
				return err
			}

			removed, err := history.PruneOlderThan(gormDB, time.Duration(days)*24*time.Hour, time.Now())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d messages older than %d days\n", removed, days)
			return nil
		},
	}

	cmd.Flags().IntVar(&days, "days", 0, "retention in days (default from config)")
	return cmd
}

// truncate shortens s to max runes for table display. Slicing by runes
// keeps multi-byte characters intact.
func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max-1]) + "…"
}
