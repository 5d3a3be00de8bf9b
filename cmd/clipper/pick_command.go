package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"clipper/internal/picker"
)

func newPickCommand(ctx *commandContext) *cobra.Command {
	var (
		modeFlag     string
		totalFlag    int
		perSession   int
		noOverlap    bool
		allowOverlap bool
		seedFlag     int64
		startFlag    string
		pitchHours   float64
		dryRun       bool
	)

	cmd := &cobra.Command{
		Use:   "pick",
		Short: "Select candidates across all sessions and enqueue them",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			mode := modeFlag
			if strings.TrimSpace(mode) == "" {
				mode = cfg.Picker.Mode
			}
			parsedMode, err := picker.ParseMode(mode)
			if err != nil {
				return err
			}

			total := totalFlag
			if total == 0 {
				total = cfg.Picker.Total
			}
			maxPer := perSession
			if maxPer == 0 {
				maxPer = cfg.Picker.MaxPerSession
			}
			overlap := cfg.Picker.NoOverlap
			if cmd.Flags().Changed("no-overlap") {
				overlap = noOverlap
			}
			if allowOverlap {
				overlap = false
			}
			pitch := pitchHours
			if !cmd.Flags().Changed("pitch-hours") {
				pitch = cfg.Picker.PitchHours
			}

			zone := cfg.PublishZone()
			var start time.Time
			if strings.TrimSpace(startFlag) != "" {
				start, err = parseStart(startFlag, zone)
				if err != nil {
					return err
				}
			}

			p, err := ctx.newPicker()
			if err != nil {
				return err
			}
			result, err := p.Pick(picker.Request{
				Mode:          parsedMode,
				Total:         total,
				MaxPerSession: maxPer,
				NoOverlap:     overlap,
				Seed:          seedFlag,
				Start:         start,
				PitchHours:    pitch,
				Zone:          zone,
				DryRun:        dryRun,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if result.AlreadyRunning {
				fmt.Fprintln(out, "Another invocation holds the queue lock; nothing to do")
				return nil
			}
			if len(result.Picks) == 0 {
				fmt.Fprintln(out, "No unpicked candidates available")
				return nil
			}

			rows := make([][]string, 0, len(result.Picks))
			for _, pick := range result.Picks {
				publish := pick.PublishAt
				if publish == "" {
					publish = "-"
				}
				rows = append(rows, []string{
					pick.Session.Name,
					pick.EventName,
					strconv.FormatFloat(pick.Candidate.Motion, 'f', 1, 64),
					publish,
				})
			}
			fmt.Fprintln(out, renderTable(
				[]string{"Session", "Event", "Motion", "Publish At"},
				rows,
				[]columnAlignment{alignLeft, alignLeft, alignRight, alignLeft},
			))
			fmt.Fprintf(out, "Picked %d candidate(s) with mode %s (seed %d)\n", len(result.Picks), parsedMode, result.Seed)
			if result.Short {
				fmt.Fprintln(out, "Pool was short: fewer unpicked candidates than requested")
			}
			if dryRun {
				fmt.Fprintln(out, "Dry run: nothing was committed")
			}
			for _, skip := range result.Skipped {
				fmt.Fprintf(out, "Skipped %s: %s\n", skip.Session, skip.Reason)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&modeFlag, "mode", "", "Scoring mode: random, motion, band, or hybrid")
	cmd.Flags().IntVar(&totalFlag, "total", 0, "How many candidates to pick")
	cmd.Flags().IntVar(&perSession, "max-per-session", 0, "Cap picks per session (0 uses config)")
	cmd.Flags().BoolVar(&noOverlap, "no-overlap", false, "Reject picks overlapping prior picks in the same session")
	cmd.Flags().BoolVar(&allowOverlap, "allow-overlap", false, "Permit overlapping picks regardless of config")
	cmd.Flags().Int64Var(&seedFlag, "seed", 0, "Random seed (0 generates one)")
	cmd.Flags().StringVar(&startFlag, "start", "", "First publish slot (RFC3339 or HH:MM in the publish zone)")
	cmd.Flags().Float64Var(&pitchHours, "pitch-hours", 0, "Hours between publish slots (0 leaves timestamps empty)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Select and schedule without committing")

	return cmd
}

// parseStart accepts either a full RFC3339 timestamp or a bare HH:MM clock
// time, resolved to the next occurrence in the publish zone.
func parseStart(raw string, zone *time.Location) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	clock, err := time.Parse("15:04", raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse start %q: want RFC3339 or HH:MM", raw)
	}
	now := time.Now().In(zone)
	start := time.Date(now.Year(), now.Month(), now.Day(), clock.Hour(), clock.Minute(), 0, 0, zone)
	if !start.After(now) {
		start = start.Add(24 * time.Hour)
	}
	return start, nil
}
