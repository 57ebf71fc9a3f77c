package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"vrtq/internal/app"
)

func newServeCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run producers, workers and the audit trail from a config file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			a, err := app.New(cfgPath, app.Options{})
			if err != nil {
				return err
			}
			if err := a.Start(ctx); err != nil {
				return fmt.Errorf("start: %w", err)
			}

			select {
			case <-ctx.Done():
			case <-a.Done():
			}

			stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer stopCancel()
			_ = a.Stop(stopCtx)
			return a.Err()
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "./vrtq.yaml", "path to config (yaml or json)")
	return cmd
}
