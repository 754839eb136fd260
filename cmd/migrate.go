package cmd

import (
	"github.com/spf13/cobra"
)

func newMigrateCommand(c *cli) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := bootstrap(cmd.Context(), c.cfg, c.log, bootstrapOptions{migrate: true})
			if err != nil {
				return err
			}
			rt.Close()
			return nil
		},
	}
}
