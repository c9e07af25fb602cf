package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newRoomsCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "rooms",
		Short: "List rooms with their lectures",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, rooms, err := a.services()
			if err != nil {
				return err
			}
			items, err := rooms.GetRoomsWithLectures(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tSTATUS\tPARTICIPANTS\tLECTURE\tLECTURE STATUS")
			for _, r := range items {
				lecture, lstatus := "-", "-"
				if r.Lecture != nil {
					lecture, lstatus = r.Lecture.Name, string(r.Lecture.Status)
				}
				fmt.Fprintf(w, "%s\t%s\t%d/%d\t%s\t%s\n", r.ID, r.Status, len(r.Participants), r.Capacity, lecture, lstatus)
			}
			return w.Flush()
		},
	}
}
