package main

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"clipper/internal/preflight"
	"clipper/internal/queue"
)

type statusView struct {
	Active      map[string]int `json:"active"`
	ActiveTotal int            `json:"active_total"`
	Deferred    int            `json:"deferred"`
	Rejected    int            `json:"rejected"`
	Upload      int            `json:"upload"`
	Quarantined int            `json:"quarantined"`
	NextPublish string         `json:"next_publish,omitempty"`
}

func newStatusCommand(ctx *commandContext) *cobra.Command {
	var withChecks bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show queue counts and environment health",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.queueStore()
			if err != nil {
				return err
			}
			counts, err := store.Snapshot()
			if err != nil {
				return err
			}
			nextPublish, err := nextScheduledPublish(store)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				view := statusView{
					Active:      make(map[string]int, len(counts.Active)),
					ActiveTotal: counts.Total(),
					Deferred:    counts.Deferred,
					Rejected:    counts.Rejected,
					Upload:      counts.Upload,
					Quarantined: counts.Bad,
					NextPublish: nextPublish,
				}
				for status, n := range counts.Active {
					view.Active[string(status)] = n
				}
				encoder := json.NewEncoder(out)
				encoder.SetIndent("", "  ")
				return encoder.Encode(view)
			}

			fmt.Fprintln(out, renderTable(
				[]string{"Queue", "Count"},
				buildCountRows(counts),
				[]columnAlignment{alignLeft, alignRight},
			))
			if nextPublish != "" {
				fmt.Fprintf(out, "Next scheduled publish: %s\n", nextPublish)
			}
			if counts.Bad > 0 {
				fmt.Fprintf(out, "%d malformed line(s) quarantined; inspect %s\n",
					counts.Bad, store.QuarantinePath())
			}

			if withChecks {
				fmt.Fprintln(out, renderPreflight(preflight.RunAll(cfg)))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&withChecks, "checks", false, "Also run environment preflight checks")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit machine-readable JSON")
	return cmd
}

// nextScheduledPublish returns the earliest publish timestamp still waiting
// in the upload queue. RFC3339 strings with a fixed offset order
// lexicographically.
func nextScheduledPublish(store *queue.Store) (string, error) {
	uploads, err := store.LoadUploads()
	if err != nil {
		return "", err
	}
	next := ""
	for _, upload := range uploads {
		if upload.PublishAt == "" {
			continue
		}
		if next == "" || upload.PublishAt < next {
			next = upload.PublishAt
		}
	}
	return next, nil
}

func buildCountRows(counts queue.Counts) [][]string {
	rows := make([][]string, 0, len(counts.Active)+4)
	for _, status := range []queue.Status{
		queue.StatusPending,
		queue.StatusUnderReview,
		queue.StatusApproved,
		queue.StatusRendering,
		queue.StatusRendered,
	} {
		if n := counts.Active[status]; n > 0 {
			rows = append(rows, []string{string(status), strconv.Itoa(n)})
		}
	}
	rows = append(rows,
		[]string{"active total", strconv.Itoa(counts.Total())},
		[]string{"deferred", strconv.Itoa(counts.Deferred)},
		[]string{"rejected", strconv.Itoa(counts.Rejected)},
		[]string{"upload", strconv.Itoa(counts.Upload)},
	)
	return rows
}
