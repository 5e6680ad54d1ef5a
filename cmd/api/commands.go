package main

import (
	"errors"
	"fmt"

	"github.com/samber/do/v2"
	"github.com/spf13/cobra"

	"wishlist_backend/internal/store"
)

var errMemoryDriver = errors.New("DB_DRIVER=memory keeps nothing between runs")

func newMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DBDriver == "memory" {
				return errMemoryDriver
			}

			db, err := store.ConnectDB(cfg.DBDriver, cfg.DBDataSourceName, cfg.DBMaxOpenConns)
			if err != nil {
				return fmt.Errorf("failed to connect to database: %w", err)
			}
			defer db.Close()

			if err := store.RunMigrations(db); err != nil {
				return fmt.Errorf("failed to run migrations: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return nil
		},
	}
}

func newSeedCommand() *cobra.Command {
	var baseURL string

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Insert a demo public wishlist",
		Long: `Insert a public demo wishlist with three items and a couple of sample
contributions, then print its share link.

For the in-memory store use "serve --seed" instead.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.DBDriver == "memory" {
				return fmt.Errorf("%w, use serve --seed", errMemoryDriver)
			}

			injector := newContainer(cfg)
			defer func() {
				if err := injector.Shutdown(); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "shutdown errors: %v\n", err)
				}
			}()

			st, err := do.Invoke[*StoreHandle](injector)
			if err != nil {
				return err
			}
			w, err := store.SeedDemo(cmd.Context(), st, st.Seeder)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Created wishlist %q (share_token=%s)\n", w.Title, w.ShareToken)
			fmt.Fprintf(out, "Public share URL: %s/public/%s\n", baseURL, w.ShareToken)
			return nil
		},
	}

	cmd.Flags().StringVar(&baseURL, "base-url", "http://localhost:3000", "frontend base URL used in the printed share link")

	return cmd
}
