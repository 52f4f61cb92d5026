package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/hazyhaar/inviterelay/relay"
	"github.com/hazyhaar/inviterelay/relay/event"
)

func init() {
	rootCmd.AddCommand(
		loopCmd("run", "Open both sites and run the capture and submit loops.", event.RoleCapture, event.RoleSubmit),
		loopCmd("capture", "Run the capture loop only.", event.RoleCapture),
		loopCmd("submit", "Run the submit loop only.", event.RoleSubmit),
	)
}

func loopCmd(use, short string, roles ...event.Role) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			e, err := setup(cmd)
			if err != nil {
				return err
			}
			defer e.Close()
			return runLoops(cmd.Context(), e, roles)
		},
	}
}

func runLoops(ctx context.Context, e *env, roles []event.Role) error {
	var opts []relay.Option
	opts = append(opts, relay.WithLogger(e.logger))
	if e.journal != nil {
		opts = append(opts, relay.WithEventLog(e.journal))
		if n, err := e.journal.Cleanup(ctx, e.cfg.Store.JournalRetention); err != nil {
			e.logger.Warn("relay: journal cleanup", "error", err)
		} else if n > 0 {
			e.logger.Info("relay: journal cleanup", "deleted", n)
		}
	}

	r, err := relay.New(e.cfg, e.store, nil, opts...)
	if err != nil {
		return err
	}

	if addr := e.cfg.Status.Addr; addr != "" {
		stop := serveStatus(ctx, e, r.Operator(), addr)
		defer stop()
	}

	e.logger.Info("relay: starting", "roles", roles, "store", storeName(e))
	err = r.Run(ctx, roles...)
	e.logger.Info("relay: stopped")
	return err
}

// serveStatus starts the status API and returns a function that shuts it
// down.
func serveStatus(ctx context.Context, e *env, op *relay.Operator, addr string) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           op.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		e.logger.Info("relay: status api listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			e.logger.Error("relay: status api", "error", err)
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			e.logger.Warn("relay: status api shutdown", "error", err)
		}
	}
}

func storeName(e *env) string {
	if e.cfg.Store.Memory {
		return "memory"
	}
	return e.cfg.Store.Path
}
