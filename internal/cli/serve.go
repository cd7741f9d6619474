package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/routecast/routecast/internal/broker"
	"github.com/routecast/routecast/internal/config"
	"github.com/routecast/routecast/internal/docstore"
	"github.com/routecast/routecast/internal/store"
)

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database  string
	ProjectID string
}

// NewServeCommand creates the serve command: the broker process.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the analytical-store broker",
		Long: `Run the single-writer broker that owns the analytical database.

The broker takes the exclusive SQLite lock at startup (failing fast if
another broker holds it), watches the request collection on the mediating
store, and executes operations on behalf of client processes.

Example:
  routecast serve --config routecast.yaml
  routecast serve --db ./routecast.db --project my-gcp-project`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to the analytical SQLite database (overrides config)")
	cmd.Flags().StringVar(&opts.ProjectID, "project", "", "GCP project for the Firestore mediating store (overrides config)")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	configureLogging(opts.Verbose)

	cfg, err := loadConfig(opts.RootOptions)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load config", err)
	}
	if opts.Database != "" {
		cfg.Database = opts.Database
	}
	if opts.ProjectID != "" {
		cfg.Docstore.Backend = "firestore"
		cfg.Docstore.ProjectID = opts.ProjectID
	}

	parentCtx := cmd.Context()
	if parentCtx == nil {
		parentCtx = context.Background()
	}
	ctx, cancel := context.WithCancel(parentCtx)
	defer cancel()

	slog.Info("opening analytical database", "path", cfg.Database)
	st, err := store.Open(cfg.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()

	docs, cleanup, err := openDocstore(ctx, cfg.Docstore)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to connect mediating store", err)
	}
	defer cleanup()

	b := broker.New(docs, st,
		broker.WithHandlerTimeout(cfg.Broker.HandlerTimeout.Std()),
		broker.WithCollections(collectionsFromConfig(cfg.Docstore.Collections)),
	)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	go func() {
		select {
		case sig := <-sigChan:
			slog.Info("received signal, shutting down", "signal", sig)
			cancel()
		case <-ctx.Done():
		}
	}()

	fmt.Fprintln(cmd.OutOrStdout(), "Broker started. Draining requests...")
	fmt.Fprintln(cmd.OutOrStdout(), "Press Ctrl-C to stop.")

	if err := b.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return WrapExitError(ExitFailure, "broker error", err)
	}

	slog.Info("broker stopped gracefully")
	return nil
}

func configureLogging(verbose bool) {
	logLevel := slog.LevelInfo
	if verbose {
		logLevel = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel})
	slog.SetDefault(slog.New(handler))
}

// openDocstore builds the configured mediating-store adapter. The
// returned cleanup is always safe to call.
func openDocstore(ctx context.Context, cfg config.DocstoreConfig) (docstore.Store, func(), error) {
	switch cfg.Backend {
	case "memory":
		return docstore.NewMemstore(), func() {}, nil
	case "firestore":
		fs, err := docstore.NewFirestore(ctx, cfg.ProjectID)
		if err != nil {
			return nil, func() {}, err
		}
		return fs, func() {
			if err := fs.Close(); err != nil {
				slog.Error("error closing firestore client", "error", err)
			}
		}, nil
	default:
		return nil, func() {}, fmt.Errorf("unknown docstore backend %q", cfg.Backend)
	}
}

func collectionsFromConfig(c config.CollectionsConfig) broker.Collections {
	return broker.Collections{
		Requests: c.Requests,
		Orders:   c.Orders,
		Routes:   c.Routes,
	}
}
