package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/cwrk-planet/classroom-service/internal/domain"
)

func newTransitionCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "transition <lectureId> <status>",
		Short: "Move a lecture to a new status and update its room",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			lectures, _, err := a.services()
			if err != nil {
				return err
			}
			next := domain.LectureStatus(args[1])
			if !next.Valid() {
				return fmt.Errorf("unknown status %q (want one of %v)", args[1], domain.AllLectureStatuses())
			}
			lec, err := lectures.Transition(cmd.Context(), args[0], next)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", lec.ID, lec.Status)
			return nil
		},
	}
}
