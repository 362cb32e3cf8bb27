package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"foratask-backend/pkg/clock"

	"github.com/spf13/cobra"
)

var (
	serveAddr      string
	serveNoJobs    bool
	serveNoMigrate bool
)

func serveCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the background scans",
		Long: `Start the ForaTask API.

Examples:
  foratask serve
  foratask serve --addr :9090
  foratask serve --no-jobs`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (defaults to :$PORT)")
	cmd.Flags().BoolVar(&serveNoJobs, "no-jobs", false, "do not run the background scans in this process")
	cmd.Flags().BoolVar(&serveNoMigrate, "no-migrate", false, "skip schema migration on start")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := loadApp(ctx, !serveNoMigrate, clock.Real{})
	if err != nil {
		return err
	}
	defer app.Close()

	addr := serveAddr
	if addr == "" {
		addr = ":" + app.Config.Port
	}
	server := app.Router().Server(addr)

	if !serveNoJobs {
		jobs := app.NewScheduler()
		jobs.Start(ctx)
		defer jobs.Stop()
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server starting on %s", addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
		log.Println("Shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), app.Config.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("Server stopped")
	return nil
}
