package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"vrtq/internal/app"
	logx "vrtq/pkg/logx"
)

func newDemoCmd(g *globalOptions) *cobra.Command {
	var (
		slice    uint
		duration time.Duration
		unit     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Run the scripted producer and one worker against a fresh queue",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := signal.NotifyContext(cmd.Context(), os.Interrupt)
			defer cancel()

			level := g.logLevel
			if level == "" {
				level = "info"
			}
			res, err := app.RunDemo(ctx, app.DemoOptions{
				TimeSlice: slice,
				TimeUnit:  unit,
				Duration:  duration,
				Log:       logx.NewConsole(level),
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for i, s := range res.Slices {
				state := fmt.Sprintf("%d left", s.VRT)
				if s.Finished {
					state = "finished"
				}
				fmt.Fprintf(out, "%2d. %-8s p=%-3d ran %d, %s\n", i+1, s.Name, s.Priority, s.Granted, state)
			}
			fmt.Fprintf(out, "%d slices, %d jobs pending\n", len(res.Slices), res.Pending)
			return nil
		},
	}
	cmd.Flags().UintVarP(&slice, "slice", "n", 1, "time slice granted per step")
	cmd.Flags().DurationVar(&duration, "duration", 24*time.Second, "stop after this long (0 waits for the queue to drain)")
	cmd.Flags().DurationVar(&unit, "unit", time.Second, "wall-clock length of one time unit")
	return cmd
}
