package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/shipmatebot/shipmate/internal/config"
)

func newInitCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a Shipmate config file interactively",
		Long:  "Prompts for platform credentials (tokens are read without echo) and writes a starter config file.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInit(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "shipmate.yaml", "path to write the config file")
	return cmd
}

func runInit(cmd *cobra.Command, configPath string) error {
	if _, err := os.Stat(configPath); err == nil {
		return fmt.Errorf("init: %s already exists", configPath)
	}

	out := cmd.OutOrStdout()
	reader := bufio.NewReader(cmd.InOrStdin())

	fmt.Fprintf(out, "Platform (discord/slack): ")
	platform, err := readLine(reader)
	if err != nil {
		return err
	}

	cfg := &config.Config{Platform: platform}
	switch platform {
	case "discord":
		token, err := readSecret(reader, out, "Discord bot token: ")
		if err != nil {
			return err
		}
		cfg.Discord.Token = token
	case "slack":
		appToken, err := readSecret(reader, out, "Slack app token (xapp-...): ")
		if err != nil {
			return err
		}
		botToken, err := readSecret(reader, out, "Slack bot token (xoxb-...): ")
		if err != nil {
			return err
		}
		cfg.Slack.AppToken = appToken
		cfg.Slack.BotToken = botToken
	default:
		return fmt.Errorf("init: unsupported platform %q", platform)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("init: marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0o600); err != nil {
		return fmt.Errorf("init: write config: %w", err)
	}

	fmt.Fprintf(out, "Wrote %s\n", configPath)
	return nil
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("init: read input: %w", err)
	}
	return strings.TrimSpace(line), nil
}

// readSecret reads a token without echoing it when stdin is a terminal.
// Falls back to a plain line read when input is piped.
func readSecret(r *bufio.Reader, out io.Writer, prompt string) (string, error) {
	fmt.Fprintf(out, "%s", prompt)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		secret, err := term.ReadPassword(fd)
		fmt.Fprintln(out)
		if err != nil {
			return "", fmt.Errorf("init: read secret: %w", err)
		}
		return strings.TrimSpace(string(secret)), nil
	}
	line, err := r.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("init: read secret: %w", err)
	}
	return strings.TrimSpace(line), nil
}
