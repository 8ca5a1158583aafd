package main

import (
	"fmt"
	"time"

	"github.com/dhowland/pfchat/internal/api"
	"github.com/dhowland/pfchat/internal/auth"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func newLoginCmd() *cobra.Command {
	var (
		configPath string
		email      string
		admin      bool
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authenticate and store a credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLogin(cmd, configPath, email, admin)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	cmd.Flags().BoolVar(&admin, "admin", false, "log in against the admin endpoint")
	return cmd
}

func runLogin(cmd *cobra.Command, configPath, email string, admin bool) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	client, err := api.NewClient(api.ClientOpts{BaseURL: cfg.Server.BaseURL})
	if err != nil {
		return err
	}

	if email == "" {
		if email, err = promptLine(cmd, "Email"); err != nil {
			return err
		}
	}
	password, err := promptPassword(cmd, "Password")
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	var resp *api.TokenResponse
	if admin {
		resp, err = client.AdminLogin(ctx, email, password)
	} else {
		resp, err = client.Login(ctx, email, password)
	}
	if err != nil {
		return fmt.Errorf("login failed: %w", err)
	}

	store := auth.NewStore(auth.DefaultPath())
	creds := auth.Credentials{
		Token: &oauth2.Token{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			Expiry:       time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		},
		Email:   resp.User.Email,
		IsAdmin: resp.User.IsAdmin,
	}
	if err := store.Save(creds); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Logged in as %s\n", resp.User.Email)
	return nil
}

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Discard the stored credential",
		RunE: func(cmd *cobra.Command, args []string) error {
			store := auth.NewStore(auth.DefaultPath())
			if err := store.Clear(); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		},
	}
}
