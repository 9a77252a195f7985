package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/cognos/internal/server"
	"github.com/roach88/cognos/internal/store"
)

// shutdownTimeout bounds graceful shutdown of the HTTP server.
const shutdownTimeout = 5 * time.Second

// ServeOptions holds flags for the serve command.
type ServeOptions struct {
	*RootOptions
	Database string
	Addr     string
}

// NewServeCommand creates the serve command.
func NewServeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ServeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve recorded runs over HTTP",
		Long: `Start an HTTP server exposing the runs recorded in a database.

Routes:
  GET /healthz            database reachability
  GET /runs               recent runs (?limit=N plus filters)
  GET /runs/{id}          one run with its event log summary
  GET /runs/{id}/events   trace events of a run (filters)
  GET /metrics            Prometheus metrics

Filters are query parameters named after a field, as in
?status=failed,cancelled or ?started_at=2025-03-01 (time fields are
lower bounds). An unknown field or a malformed value answers 400.

Examples:
  cognos serve --db runs.db
  cognos serve --db runs.db --addr 127.0.0.1:9090`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.Addr, "addr", ":8080", "address to listen on")

	return cmd
}

func runServe(opts *ServeOptions, cmd *cobra.Command) error {
	logger := newLogger(opts.RootOptions, cmd.ErrOrStderr())

	st, err := store.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	defer st.Close()

	ln, err := net.Listen("tcp", opts.Addr)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to listen", err)
	}

	ctx, stop := signalContext(cmd.Context(), logger)
	defer stop()

	fmt.Fprintf(cmd.OutOrStdout(), "Serving %s on %s\n", opts.Database, ln.Addr())
	if err := serveUntilDone(ctx, ln, server.NewHandler(st, logger), logger); err != nil {
		return WrapExitError(ExitFailure, "server error", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Server stopped gracefully")
	return nil
}

// serveUntilDone serves handler on ln until ctx is cancelled, then shuts
// the server down, giving outstanding requests shutdownTimeout to finish.
func serveUntilDone(ctx context.Context, ln net.Listener, handler http.Handler, logger *slog.Logger) error {
	srv := &http.Server{
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	// Channel to listen for errors coming from the listener.
	serverErrors := make(chan error, 1)
	go func() {
		serverErrors <- srv.Serve(ln)
	}()

	select {
	case err := <-serverErrors:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err

	case <-ctx.Done():
		logger.Info("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warn("graceful shutdown did not complete", "timeout", shutdownTimeout, "error", err)
			if err := srv.Close(); err != nil {
				return fmt.Errorf("close server: %w", err)
			}
		}
		return nil
	}
}
