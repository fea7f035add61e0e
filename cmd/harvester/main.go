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

	"github.com/spf13/cobra"
	"github.com/timmy/harvester/internal/api"
	"github.com/timmy/harvester/internal/domain"
	"github.com/timmy/harvester/internal/logger"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "harvester",
		Short:         "Content research harvester",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config file (default ./configs/config.yaml)")

	rootCmd.AddCommand(
		newRunCmd(&configPath),
		newServeCmd(&configPath),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		var ee *exitError
		if errors.As(err, &ee) {
			os.Exit(ee.code)
		}
		os.Exit(1)
	}
}

// exitCode maps a terminal run status to the process exit code.
// Retryable outcomes get 2 so a scheduler can tell them from hard failures.
func exitCode(status domain.RunStatus) int {
	switch status {
	case domain.RunStatusComplete, domain.RunStatusPartial:
		return 0
	case domain.RunStatusRateLimited, domain.RunStatusIncomplete:
		return 2
	default:
		return 1
	}
}

func newRunCmd(configPath *string) *cobra.Command {
	var sourceID string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one harvest pass for a source",
		Long: `Run one harvest pass (scan, harvest, classify, transform, validate, score, publish)
and print the run result as JSON.

Exit codes: 0 COMPLETE or PARTIAL, 2 RATE_LIMITED or INCOMPLETE, 1 FAILED.

Example: harvester run --source social --config ./configs/config.yaml`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			// stdout carries the result.
			a, err := newApp(ctx, *configPath, cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			defer a.close()

			res, runErr := a.service.Run(ctx, sourceID)
			if res == nil {
				return runErr
			}

			out, err := jsonIndent(res)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), out)

			if code := exitCode(res.Status); code != 0 {
				err := runErr
				if err == nil {
					err = fmt.Errorf("run %s finished with status %s", res.RunID, res.Status)
				}
				return &exitError{code: code, err: err}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&sourceID, "source", domain.SourceSocial, "Source to harvest (social, feed)")
	return cmd
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the admin API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			a, err := newApp(ctx, *configPath, nil)
			if err != nil {
				return err
			}
			defer a.close()

			router := api.SetupRouter(api.RouterDeps{
				Runs:        a.service,
				History:     a.runs,
				Entries:     a.research,
				Checks:      a.healthChecks(),
				CORSOrigins: a.cfg.Server.CORSOrigins,
				Logger:      a.log,
			}, a.cfg.Server.Mode)

			srv := &http.Server{
				Addr:              fmt.Sprintf(":%d", a.cfg.Server.Port),
				Handler:           router,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				a.log.WithFields(logger.Fields{
					"port": a.cfg.Server.Port,
					"mode": a.cfg.Server.Mode,
				}).Info("Starting API server")
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errCh <- err
				}
				close(errCh)
			}()

			select {
			case err := <-errCh:
				if err != nil {
					return fmt.Errorf("server failed: %w", err)
				}
			case <-ctx.Done():
			}

			a.log.Info("Shutting down server...")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("server forced to shutdown: %w", err)
			}
			a.log.Info("Server exited")
			return nil
		},
	}
}
