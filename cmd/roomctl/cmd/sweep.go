package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newSweepCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Delete rooms whose lecture is gone, cancelled or past the grace window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, rooms, err := a.services()
			if err != nil {
				return err
			}
			deleted, err := rooms.CleanupExpiredRooms(cmd.Context())
			for _, id := range deleted {
				fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%d room(s) deleted\n", len(deleted))
			return nil
		},
	}
}
