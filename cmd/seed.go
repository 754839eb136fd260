package cmd

import (
	"fmt"

	"seat-reservation/internal/dto/request"
	"seat-reservation/internal/usecase"

	"github.com/spf13/cobra"
)

func newSeedCommand(c *cli) *cobra.Command {
	var count int

	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Create AVAILABLE seats and print their ids",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context(), c.cfg, c.log, bootstrapOptions{})
			if err != nil {
				return err
			}
			defer rt.Close()

			seats := usecase.NewSeatService(rt.deps(), c.log)
			res, err := seats.SeedSeats(cmd.Context(), &request.SeedSeatsRequest{Count: count})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, id := range res.SeatIDs {
				if _, err := fmt.Fprintln(out, id); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&count, "count", 10, "number of seats to create")
	return cmd
}
