package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"clipper/internal/pipeline"
	"clipper/internal/preflight"
	"clipper/internal/review"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var (
		maxItems     int
		eventDir     string
		reviewAction string
		skipChecks   bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process the event queue through review, render, and upload enqueue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if !skipChecks {
				results := preflight.RunAll(cfg)
				if !preflight.AllPassed(results) {
					fmt.Fprintln(out, renderPreflight(results))
					return fmt.Errorf("preflight checks failed; fix the environment or pass --skip-checks")
				}
			}

			var gate review.Gate
			if reviewAction != "" {
				gate, err = review.ForAction(reviewAction)
				if err != nil {
					return err
				}
			}

			driver, err := ctx.newDriver(gate)
			if err != nil {
				return err
			}

			max := maxItems
			if max == 0 {
				max = cfg.Pipeline.MaxItems
			}
			summary, err := driver.Run(cmd.Context(), pipeline.Options{
				MaxItems: max,
				EventDir: eventDir,
			})
			if err != nil {
				return err
			}
			if summary.AlreadyRunning {
				fmt.Fprintln(out, "Another invocation holds the queue lock; nothing to do")
				return nil
			}
			fmt.Fprintln(out, summary.String())
			return nil
		},
	}

	cmd.Flags().IntVar(&maxItems, "max", 0, "Maximum queue items to process this run (0 uses config)")
	cmd.Flags().StringVar(&eventDir, "event-dir", "", "Process a single event directory, enqueuing it if needed")
	cmd.Flags().StringVar(&reviewAction, "review", "", "Override review action: prompt, approve, reject, or defer")
	cmd.Flags().BoolVar(&skipChecks, "skip-checks", false, "Skip environment preflight checks")

	return cmd
}

func renderPreflight(results []preflight.Result) string {
	rows := make([][]string, 0, len(results))
	for _, result := range results {
		rows = append(rows, []string{result.Name, yesNo(result.Passed), result.Detail})
	}
	return renderTable(
		[]string{"Check", "Passed", "Detail"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft},
	)
}
