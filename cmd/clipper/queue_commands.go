package main

import (
	"fmt"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"clipper/internal/config"
	"clipper/internal/queue"
	"clipper/internal/render"
)

func newQueueCommand(ctx *commandContext) *cobra.Command {
	queueCmd := &cobra.Command{
		Use:   "queue",
		Short: "Inspect and manage the durable queues",
	}

	queueCmd.AddCommand(newQueueListCommand(ctx))
	queueCmd.AddCommand(newQueueRequeueCommand(ctx))
	queueCmd.AddCommand(newQueueClearFlagCommand(ctx))
	queueCmd.AddCommand(newQueueReconcileCommand(ctx))

	return queueCmd
}

func newQueueListCommand(ctx *commandContext) *cobra.Command {
	var includeParked bool
	var includeUploads bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List queue items",
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.queueStore()
			if err != nil {
				return err
			}
			items, bad, err := store.LoadEvents()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()

			if includeParked {
				deferred, err := store.LoadDeferred()
				if err != nil {
					return err
				}
				rejected, err := store.LoadRejected()
				if err != nil {
					return err
				}
				items = append(items, deferred...)
				items = append(items, rejected...)
			}

			if len(items) == 0 {
				fmt.Fprintln(out, "Queue is empty")
			} else {
				rows := make([][]string, 0, len(items))
				for _, item := range items {
					publish := item.PublishAt
					if publish == "" {
						publish = "-"
					}
					rows = append(rows, []string{
						item.EventName,
						string(item.Status),
						publish,
						item.LastError,
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Event", "Status", "Publish At", "Last Error"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignLeft},
				))
			}

			if includeUploads {
				uploads, err := store.LoadUploads()
				if err != nil {
					return err
				}
				if len(uploads) == 0 {
					fmt.Fprintln(out, "Upload queue is empty")
				} else {
					rows := make([][]string, 0, len(uploads))
					for _, upload := range uploads {
						rows = append(rows, []string{upload.VideoPath, upload.Title, upload.PublishAt})
					}
					fmt.Fprintln(out, renderTable(
						[]string{"Video", "Title", "Publish At"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignLeft},
					))
				}
			}

			if len(bad) > 0 {
				fmt.Fprintf(out, "%d malformed line(s) pending quarantine\n", len(bad))
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&includeParked, "parked", false, "Include deferred and rejected items")
	cmd.Flags().BoolVar(&includeUploads, "uploads", false, "Include the upload handoff queue")
	return cmd
}

func newQueueRequeueCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "requeue <event-dir>",
		Short: "Move a deferred item back into the active queue",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			store, err := ctx.queueStore()
			if err != nil {
				return err
			}
			eventDir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}

			lock := flock.New(cfg.LockPath())
			locked, err := lock.TryLock()
			if err != nil {
				return err
			}
			if !locked {
				fmt.Fprintln(cmd.OutOrStdout(), "Another invocation holds the queue lock; nothing to do")
				return nil
			}
			defer func() {
				_ = lock.Unlock()
			}()

			item, err := store.RemoveDeferred(eventDir)
			if err != nil {
				return err
			}
			item.Status = queue.StatusPending
			item.LastError = ""
			if err := store.AppendEvents(item); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Requeued %s\n", item.EventName)
			return nil
		},
	}
}

func newQueueClearFlagCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "clear-flag <event-dir>",
		Short: "Remove render failure flags so an event becomes retryable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			eventDir, err := config.ExpandPath(args[0])
			if err != nil {
				return err
			}
			removed, err := render.ClearFlags(eventDir)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Removed %d flag(s) under %s\n", removed, eventDir)
			return nil
		},
	}
}

func newQueueReconcileCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reconcile",
		Short: "Re-enqueue picked candidates missing from every durable queue",
		RunE: func(cmd *cobra.Command, args []string) error {
			p, err := ctx.newPicker()
			if err != nil {
				return err
			}
			restored, alreadyRunning, err := p.Reconcile()
			if err != nil {
				return err
			}
			if alreadyRunning {
				fmt.Fprintln(cmd.OutOrStdout(), "Another invocation holds the queue lock; nothing to do")
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d item(s)\n", restored)
			return nil
		},
	}
}
