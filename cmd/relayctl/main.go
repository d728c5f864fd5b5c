// relayctl is the operator CLI: schema setup, user removal and history
// cleanup, run against the same database the service uses.
package main

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/tinywideclouds/go-notification-relay/internal/storage/gormstore"
	"github.com/tinywideclouds/go-notification-relay/pkg/notify"
)

func main() {
	_ = godotenv.Load()

	var databaseURL string

	root := &cobra.Command{
		Use:           "relayctl",
		Short:         "Administration tool for the notification relay",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&databaseURL, "database-url", os.Getenv("DATABASE_URL"), "database DSN (postgres:// URL or sqlite file)")

	openStore := func() (*gormstore.Store, error) {
		if databaseURL == "" {
			databaseURL = "relay.db"
		}
		var (
			db  *gorm.DB
			err error
		)
		if strings.HasPrefix(databaseURL, "postgres://") || strings.HasPrefix(databaseURL, "postgresql://") {
			db, err = gorm.Open(postgres.Open(databaseURL), &gorm.Config{})
		} else {
			db, err = gorm.Open(sqlite.Open(databaseURL), &gorm.Config{})
		}
		if err != nil {
			return nil, fmt.Errorf("failed to open database: %w", err)
		}
		return gormstore.New(db), nil
	}

	createDB := &cobra.Command{
		Use:   "create-db",
		Short: "Create or update the database schema",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			if err := store.Migrate(); err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			cmd.Println("Schema is up to date.")
			return nil
		},
	}

	var retainDays int
	cleanup := &cobra.Command{
		Use:   "cleanup",
		Short: "Delete notifications older than the retention window",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			cutoff := time.Now().UTC().AddDate(0, 0, -retainDays)
			deleted, err := store.DeleteNotificationsBefore(cmd.Context(), cutoff)
			if err != nil {
				return fmt.Errorf("cleanup failed: %w", err)
			}
			cmd.Printf("Deleted %d notifications older than %d days.\n", deleted, retainDays)
			return nil
		},
	}
	cleanup.Flags().IntVar(&retainDays, "days", 30, "delete notifications older than this many days")

	deleteUser := &cobra.Command{
		Use:   "delete-user <username>",
		Short: "Remove a user along with their tokens and subscriptions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			username := strings.ToLower(args[0])
			user, err := store.UserByUsername(cmd.Context(), username)
			if errors.Is(err, notify.ErrNotFound) {
				return fmt.Errorf("no such user: %s", username)
			}
			if err != nil {
				return err
			}
			if err := store.DeleteUser(cmd.Context(), user.ID); err != nil {
				return fmt.Errorf("delete failed: %w", err)
			}
			cmd.Printf("Deleted user %s.\n", username)
			return nil
		},
	}

	root.AddCommand(createDB, cleanup, deleteUser)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
