package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/dhowland/pfchat/internal/api"
	"github.com/dhowland/pfchat/internal/auth"
	"github.com/dhowland/pfchat/internal/config"
	"github.com/dhowland/pfchat/internal/db"
	"github.com/dhowland/pfchat/internal/stream"
	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gorm.io/gorm"
)

// loadConfig reads the config file, falling back to the per-user default path.
func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		path = config.DefaultPath()
	}
	return config.Load(path)
}

// newAPIClient builds a REST client with the stored credential attached.
func newAPIClient(cfg *config.Config, store *auth.Store) (*api.Client, error) {
	return api.NewClient(api.ClientOpts{
		BaseURL: cfg.Server.BaseURL,
		Tokens:  store.TokenSource(),
	})
}

// openCache connects to the local history cache and migrates its schema.
func openCache(cfg *config.Config) (*gorm.DB, error) {
	gormDB, err := db.Open(cfg.Cache)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return gormDB, nil
}

// streamConfig maps the YAML stream settings onto the session config.
func streamConfig(cfg *config.Config) stream.Config {
	return stream.Config{
		WSURL:                cfg.Server.WSURL,
		HeartbeatInterval:    time.Duration(cfg.Stream.HeartbeatSec) * time.Second,
		ReconnectBase:        time.Duration(cfg.Stream.ReconnectBaseMs) * time.Millisecond,
		ReconnectMax:         time.Duration(cfg.Stream.ReconnectMaxMs) * time.Millisecond,
		MaxReconnectAttempts: cfg.Stream.MaxReconnectRetries,
	}
}

// promptLine reads one line of visible input.
func promptLine(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ", label)
	reader := bufio.NewReader(cmd.InOrStdin())
	line, err := reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

// promptPassword reads a password without echoing when stdin is a terminal.
func promptPassword(cmd *cobra.Command, label string) (string, error) {
	fmt.Fprintf(cmd.OutOrStdout(), "%s: ", label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		data, err := term.ReadPassword(fd)
		fmt.Fprintln(cmd.OutOrStdout())
		if err != nil {
			return "", err
		}
		return string(data), nil
	}
	// Non-interactive input (tests, pipes) falls back to a plain line read.
	return promptLine(cmd, "")
}
