package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/samber/do/v2"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"wishlist_backend/internal/config"
	"wishlist_backend/internal/realtime"
	"wishlist_backend/internal/store"
)

type application struct {
	config      *config.Config
	logger      *logrus.Logger
	injector    *do.RootScope
	hub         *realtime.Hub
	broadcaster *realtime.Broadcaster
	server      *http.Server
	relayDone   chan struct{}
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "wishlist",
		Short:         "Social wishlist backend",
		Long:          "Reservations, group contributions and live updates for shared wishlists.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.AddCommand(newServeCommand())
	cmd.AddCommand(newMigrateCommand())
	cmd.AddCommand(newSeedCommand())

	return cmd
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadConfig()
	if err != nil {
		return nil, fmt.Errorf("failed to load configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func newServeCommand() *cobra.Command {
	var seed bool

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket server",
		Long: `Run the HTTP API and websocket server.

With DB_DRIVER=memory, --seed loads a demo wishlist at startup so the
service can be tried without Postgres.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if seed && cfg.DBDriver != "memory" {
				return errors.New("--seed needs DB_DRIVER=memory, use the seed command for Postgres")
			}
			return runServer(cmd.Context(), cfg, seed)
		},
	}

	cmd.Flags().BoolVar(&seed, "seed", false, "seed a demo wishlist into the in-memory store")

	return cmd
}

func runServer(ctx context.Context, cfg *config.Config, seed bool) error {
	injector := newContainer(cfg)

	app := &application{
		config:    cfg,
		injector:  injector,
		relayDone: make(chan struct{}),
	}

	var err error
	if app.logger, err = do.Invoke[*logrus.Logger](injector); err != nil {
		return err
	}
	if app.server, err = do.Invoke[*http.Server](injector); err != nil {
		app.shutdownContainer()
		return err
	}
	app.hub = do.MustInvoke[*realtime.Hub](injector)
	app.broadcaster = do.MustInvoke[*realtime.Broadcaster](injector)

	if seed {
		st := do.MustInvoke[*StoreHandle](injector)
		w, err := store.SeedDemo(ctx, st, st.Seeder)
		if err != nil {
			app.shutdownContainer()
			return err
		}
		app.logger.WithField("share_token", w.ShareToken).Info("demo wishlist seeded")
	}

	return app.serve()
}

func (app *application) serve() error {
	relayCtx, stopRelay := context.WithCancel(context.Background())
	go func() {
		defer close(app.relayDone)
		app.broadcaster.Run(relayCtx)
	}()

	app.logger.Infof("Starting server on %s", app.server.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	var serveErr error
	select {
	case serveErr = <-errChan:
		app.logger.WithError(serveErr).Error("server error")
	case sig := <-quit:
		app.logger.Infof("Received signal %s. Shutting down server...", sig)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.WithError(err).Error("graceful server shutdown failed")
	} else {
		app.logger.Info("Server gracefully stopped.")
	}

	stopRelay()
	select {
	case <-app.relayDone:
		app.logger.Info("Relay subscriber stopped.")
	case <-time.After(10 * time.Second):
		app.logger.Warn("Relay subscriber did not stop in time.")
	}

	app.hub.CloseAll()
	if err := app.broadcaster.Wait(ctx); err != nil {
		app.logger.WithError(err).Warn("pending broadcasts did not finish")
	}

	app.shutdownContainer()
	app.logger.Info("Application shut down complete.")
	return serveErr
}

// shutdownContainer closes Redis and the store.
func (app *application) shutdownContainer() {
	if err := app.injector.Shutdown(); err != nil {
		fmt.Fprintf(os.Stderr, "shutdown errors: %v\n", err)
	}
}
