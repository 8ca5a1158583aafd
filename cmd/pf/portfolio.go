package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/dhowland/pfchat/internal/api"
	"github.com/dhowland/pfchat/internal/auth"
	"github.com/spf13/cobra"
)

func newPortfolioCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "portfolio",
		Short: "Manage portfolio holdings",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPortfolioList(cmd, configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newPortfolioAddCmd(&configPath))
	cmd.AddCommand(newPortfolioRemoveCmd(&configPath))
	return cmd
}

func runPortfolioList(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg, auth.NewStore(auth.DefaultPath()))
	if err != nil {
		return err
	}

	holdings, err := client.ListHoldings(cmd.Context())
	if err != nil {
		return err
	}
	if len(holdings) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No holdings")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tSYMBOL\tQUANTITY\tCOST BASIS")
	for _, h := range holdings {
		fmt.Fprintf(w, "%s\t%s\t%g\t%.2f\n", h.ID, h.Symbol, h.Quantity, h.CostBasis)
	}
	return w.Flush()
}

func newPortfolioAddCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "add <symbol> <quantity> <cost-basis>",
		Short: "Add a position",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			quantity, err := strconv.ParseFloat(args[1], 64)
			if err != nil {
				return fmt.Errorf("invalid quantity %q", args[1])
			}
			costBasis, err := strconv.ParseFloat(args[2], 64)
			if err != nil {
				return fmt.Errorf("invalid cost basis %q", args[2])
			}

			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg, auth.NewStore(auth.DefaultPath()))
			if err != nil {
				return err
			}

			h, err := client.AddHolding(cmd.Context(), api.NewHolding{
				Symbol:    args[0],
				Quantity:  quantity,
				CostBasis: costBasis,
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Added %s (%g @ %.2f), id %s\n",
				h.Symbol, h.Quantity, h.CostBasis, h.ID)
			return nil
		},
	}
}

func newPortfolioRemoveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <holding-id>",
		Short: "Remove a position",
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
			if err := client.RemoveHolding(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
			return nil
		},
	}
}
