package main

import (
	"fmt"
	"time"

	"github.com/dhowland/pfchat/internal/api"
	"github.com/dhowland/pfchat/internal/auth"
	"github.com/spf13/cobra"
	"golang.org/x/oauth2"
)

func newRegisterCmd() *cobra.Command {
	var (
		configPath string
		email      string
	)

	cmd := &cobra.Command{
		Use:   "register",
		Short: "Create an account via email one-time code",
		Long:  "Requests a one-time code for the given email, then verifies it and sets the account name and password.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegister(cmd, configPath, email)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVarP(&email, "email", "e", "", "account email")
	return cmd
}

func runRegister(cmd *cobra.Command, configPath, email string) error {
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

	ctx := cmd.Context()
	if err := client.RequestOTP(ctx, email); err != nil {
		return fmt.Errorf("request code: %w", err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "A verification code was sent to %s\n", email)

	code, err := promptLine(cmd, "Code")
	if err != nil {
		return err
	}
	name, err := promptLine(cmd, "Name")
	if err != nil {
		return err
	}
	password, err := promptPassword(cmd, "Password")
	if err != nil {
		return err
	}

	resp, err := client.VerifyOTP(ctx, email, code, name, password)
	if err != nil {
		return fmt.Errorf("verification failed: %w", err)
	}

	store := auth.NewStore(auth.DefaultPath())
	err = store.Save(auth.Credentials{
		Token: &oauth2.Token{
			AccessToken:  resp.AccessToken,
			RefreshToken: resp.RefreshToken,
			Expiry:       time.Now().Add(time.Duration(resp.ExpiresIn) * time.Second),
		},
		Email: resp.User.Email,
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Registered and logged in as %s\n", resp.User.Email)
	return nil
}
