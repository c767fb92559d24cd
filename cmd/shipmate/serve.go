package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/shipmatebot/shipmate/internal/bot"
	"github.com/shipmatebot/shipmate/internal/chat"
	discordadapter "github.com/shipmatebot/shipmate/internal/chat/discord"
	slackadapter "github.com/shipmatebot/shipmate/internal/chat/slack"
	"github.com/shipmatebot/shipmate/internal/config"
	"github.com/shipmatebot/shipmate/internal/db"
	"github.com/shipmatebot/shipmate/internal/gitremote"
	"github.com/shipmatebot/shipmate/internal/store"
	"github.com/shipmatebot/shipmate/internal/userapi"
)

func newServeCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the Shipmate daemon",
		Long:  "Connects to the configured chat platform and listens for build, upload, and git commands.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, configPath)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "shipmate.yaml", "path to Shipmate config file")
	return cmd
}

func runServe(cmd *cobra.Command, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	gormDB, err := connectStorage(cfg)
	if err != nil {
		return err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return err
	}

	st, err := store.New(gormDB)
	if err != nil {
		return err
	}

	adapter, err := createAdapter(cfg)
	if err != nil {
		return err
	}

	sup := bot.NewSupervisor(bot.SupervisorOpts{
		Interpreter: cfg.Shell.Interpreter,
		WakeCommand: cfg.Shell.WakeCommand,
	})

	var branches bot.BranchLister
	if cfg.GitHub.Token != "" {
		branches, err = gitremote.New(cfg.GitHub.Token, cfg.GitHub.Owner, cfg.GitHub.Repo)
		if err != nil {
			return err
		}
	}

	daemon, err := bot.NewDaemon(bot.DaemonOpts{
		Store:      st,
		Adapter:    adapter,
		Supervisor: sup,
		Branches:   branches,
		Out:        cmd.OutOrStdout(),
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle OS signals for graceful shutdown.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		fmt.Fprintf(cmd.OutOrStdout(), "\nReceived %s, shutting down...\n", sig)
		cancel()
	}()

	// User admin API runs alongside the daemon.
	go func() {
		err := userapi.Start(ctx, userapi.StartOpts{
			Store: st,
			Port:  cfg.HTTP.Port,
			Out:   cmd.OutOrStdout(),
		})
		if err != nil {
			log.Printf("userapi: %v", err)
		}
	}()

	return daemon.Run(ctx)
}

// connectStorage opens the configured database backend: SQLite by path,
// or MySQL when a host is set.
func connectStorage(cfg *config.Config) (*gorm.DB, error) {
	if cfg.Storage.Host != "" {
		return db.ConnectMySQL(cfg.Storage.Host, cfg.Storage.Port, cfg.Storage.User, cfg.Storage.Database)
	}
	return db.ConnectSQLite(cfg.Storage.Path)
}

// createAdapter builds a platform adapter from the config.
func createAdapter(cfg *config.Config) (chat.Adapter, error) {
	switch cfg.Platform {
	case "discord":
		return discordadapter.New(discordadapter.AdapterOpts{
			BotToken: cfg.Discord.Token,
		})
	case "slack":
		return slackadapter.New(slackadapter.AdapterOpts{
			AppToken: cfg.Slack.AppToken,
			BotToken: cfg.Slack.BotToken,
		})
	default:
		return nil, fmt.Errorf("serve: unsupported platform %q", cfg.Platform)
	}
}
