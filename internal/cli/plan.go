package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

func newPlanCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "plan",
		Short: "Print the queries of a shared scan",
		Long:  "Pushes every --filter as one consumer and prints the query of each split, one per line.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, err := f.open(cmd.Context(), cmd)
			if err != nil {
				return err
			}
			defer s.Close()

			splits, err := s.reader.PlanSplits(cmd.Context())
			if err != nil {
				return fmt.Errorf("plan: %w", err)
			}
			for _, sp := range splits {
				fmt.Fprintln(cmd.OutOrStdout(), sp.Query)
			}
			return nil
		},
	}
}
