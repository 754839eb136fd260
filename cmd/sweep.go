package cmd

import (
	"fmt"

	"seat-reservation/internal/reaper"

	"github.com/spf13/cobra"
)

func newSweepCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run every reaper once and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context(), c.cfg, c.log, bootstrapOptions{events: true})
			if err != nil {
				return err
			}
			defer rt.Close()

			rows, err := reaper.New(rt.repo, rt.publisher, nil, c.cfg.Reaper, c.log, rt.metrics).RunOnce(cmd.Context())
			for _, name := range []string{reaper.HoldReaper, reaper.BookingReaper, reaper.IdempotencyReaper} {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%d\n", name, rows[name])
			}
			return err
		},
	}
}
