package main

import (
	"fmt"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/shipmatebot/shipmate/internal/config"
	"github.com/shipmatebot/shipmate/internal/db"
	"github.com/shipmatebot/shipmate/internal/store"
)

func newUsersCmd() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage bot users",
		Long:  "Lists, approves, and removes the chat users allowed to drive Shipmate.",
	}
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "shipmate.yaml", "path to Shipmate config file")

	cmd.AddCommand(newUsersListCmd(&configPath))
	cmd.AddCommand(newUsersApproveCmd(&configPath))
	cmd.AddCommand(newUsersRemoveCmd(&configPath))
	return cmd
}

func newUsersListCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known users and their approval state",
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			users, err := st.Users()
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tUSERNAME\tAVAILABLE")
			for _, u := range users {
				fmt.Fprintf(w, "%d\t%s\t%t\n", u.ID, u.Username, u.Available)
			}
			return w.Flush()
		},
	}
}

func newUsersApproveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "approve <user-id>",
		Short: "Allow a user to drive the bot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("users: invalid user id %q", args[0])
			}
			st, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			if err := st.SetUserAvailable(id, true); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %d approved\n", id)
			return nil
		},
	}
}

func newUsersRemoveCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <user-id>",
		Short: "Remove a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("users: invalid user id %q", args[0])
			}
			st, err := storeFromConfig(*configPath)
			if err != nil {
				return err
			}
			if err := st.DeleteUser(id); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %d removed\n", id)
			return nil
		},
	}
}

// storeFromConfig opens the configured database and wraps it in a Store.
func storeFromConfig(configPath string) (*store.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	gormDB, err := connectStorage(cfg)
	if err != nil {
		return nil, err
	}
	if err := db.AutoMigrate(gormDB); err != nil {
		return nil, err
	}
	return store.New(gormDB)
}
