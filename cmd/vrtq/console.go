package main

import (
	"context"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"vrtq/internal/console"
	"vrtq/internal/eventbus"
	"vrtq/internal/jobqueue"
	"vrtq/internal/runtime/supervisor"
	"vrtq/internal/storage"
	logx "vrtq/pkg/logx"
)

func newConsoleCmd(g *globalOptions) *cobra.Command {
	var (
		slice     uint
		auditPath string
	)
	cmd := &cobra.Command{
		Use:   "console",
		Short: "Drive a queue interactively from stdin",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			level := g.logLevel
			if level == "" {
				level = "warn"
			}
			log := logx.NewWriter(os.Stderr, level)
			bus := eventbus.New()
			q, err := jobqueue.New(slice, jobqueue.WithLogger(log.With(logx.String("comp", "queue"))), jobqueue.WithBus(bus))
			if err != nil {
				return err
			}

			var opts []console.Option
			if p := strings.TrimSpace(auditPath); p != "" {
				st, err := storage.Open(storage.Config{Driver: "file", Path: p}, log)
				if err != nil {
					return err
				}
				defer st.Close()

				sup := supervisor.New(ctx, supervisor.WithLogger(log))
				sup.GoRestart("storage.recorder", storage.NewRecorder(st, bus, log).Run)
				defer func() { _ = sup.Stop(context.Background()) }()
				opts = append(opts, console.WithStore(st))
			}

			return console.New(q, opts...).Run(ctx, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().UintVarP(&slice, "slice", "n", 1, "time slice granted per process step")
	cmd.Flags().StringVar(&auditPath, "audit-file", "", "append job events to this JSON Lines file (enables history)")
	return cmd
}
