package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/dhowland/pfchat/internal/api"
	"github.com/dhowland/pfchat/internal/auth"
	"github.com/spf13/cobra"
)

func newProfileCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show the account profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runProfileShow(cmd, configPath)
		},
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to config file")

	cmd.AddCommand(newProfileSetCmd(&configPath))
	return cmd
}

func runProfileShow(cmd *cobra.Command, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	client, err := newAPIClient(cfg, auth.NewStore(auth.DefaultPath()))
	if err != nil {
		return err
	}

	profile, err := client.GetProfile(cmd.Context())
	if err != nil {
		return err
	}
	printProfile(cmd, profile)
	return nil
}

func newProfileSetCmd(configPath *string) *cobra.Command {
	var (
		name     string
		risk     string
		currency string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Update profile fields",
		RunE: func(cmd *cobra.Command, args []string) error {
			if name == "" && risk == "" && currency == "" {
				return fmt.Errorf("nothing to update: pass --name, --risk, or --currency")
			}
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			client, err := newAPIClient(cfg, auth.NewStore(auth.DefaultPath()))
			if err != nil {
				return err
			}
			profile, err := client.UpdateProfile(cmd.Context(), api.ProfileUpdate{
				Name:          name,
				RiskTolerance: risk,
				BaseCurrency:  currency,
			})
			if err != nil {
				return err
			}
			printProfile(cmd, profile)
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "display name")
	cmd.Flags().StringVar(&risk, "risk", "", "risk tolerance: conservative, moderate, aggressive")
	cmd.Flags().StringVar(&currency, "currency", "", "base currency code")
	return cmd
}

func printProfile(cmd *cobra.Command, p *api.Profile) {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintf(w, "Email:\t%s\n", p.Email)
	fmt.Fprintf(w, "Name:\t%s\n", p.Name)
	fmt.Fprintf(w, "Risk tolerance:\t%s\n", p.RiskTolerance)
	fmt.Fprintf(w, "Base currency:\t%s\n", p.BaseCurrency)
	fmt.Fprintf(w, "Total value:\t%.2f %s\n", p.TotalValue, p.BaseCurrency)
	w.Flush()
}
