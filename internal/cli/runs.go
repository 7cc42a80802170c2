package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/matzehuels/fractal/pkg/errors"
	"github.com/matzehuels/fractal/pkg/record"
)

// runsCommand lists recorded runs, or the ticks of one run.
func (c *CLI) runsCommand() *cobra.Command {
	var runID string
	var limit int

	cmd := &cobra.Command{
		Use:   "runs <database>",
		Short: "List runs recorded with --record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if _, err := os.Stat(args[0]); err != nil {
				return errors.Wrap(errors.ErrCodeNotFound, err, "no database at %s", args[0])
			}
			rec, err := record.Open(args[0])
			if err != nil {
				return err
			}
			defer rec.Close()

			if runID == "" {
				runs, err := rec.Runs(cmd.Context())
				if err != nil {
					return err
				}
				if len(runs) == 0 {
					printInfo("No runs recorded")
					return nil
				}
				for _, r := range runs {
					fmt.Printf("%s  %s\n", StyleHighlight.Render(r.ID),
						StyleDim.Render(fmt.Sprintf("%s · depth %d · %d nodes · seed %d · %s",
							r.Variant, r.Depth, r.Nodes, r.Seed, r.StartedAt.Local().Format("2006-01-02 15:04:05"))))
				}
				return nil
			}

			ticks, err := rec.Ticks(cmd.Context(), runID)
			if err != nil {
				return err
			}
			if len(ticks) == 0 {
				return errors.New(errors.ErrCodeNotFound, "run %s has no recorded ticks", runID)
			}
			if limit > 0 && len(ticks) > limit {
				ticks = ticks[len(ticks)-limit:]
			}
			for _, t := range ticks {
				levels, err := rec.Levels(cmd.Context(), runID, uint64(t.Tick))
				if err != nil {
					return err
				}
				if len(levels) == 0 {
					continue
				}
				deepest := levels[len(levels)-1]
				fmt.Printf("%s  %s\n", StyleNumber.Render(fmt.Sprintf("%6d", t.Tick)),
					StyleDim.Render(fmt.Sprintf("dt %.4f · %d nodes · leaves y %.3f…%.3f",
						t.DeltaTime, t.Nodes, deepest.MinY, deepest.MaxY)))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&runID, "run", "", "show the ticks of this run")
	cmd.Flags().IntVar(&limit, "limit", 20, "show at most this many of the latest ticks (0 = all)")

	return cmd
}
