package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"bidsify/internal/classifier"
	"bidsify/internal/history"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int
	var allSubjects bool

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List previous runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			subject := cfg.Subject.ID
			if allSubjects {
				subject = ""
			}
			return ctx.requireHistory(func(store *history.Store) error {
				runs, err := store.ListRuns(cmd.Context(), subject, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(runs) == 0 {
					fmt.Fprintln(out, "No runs recorded")
					return nil
				}
				colorize := shouldColorize(out)
				rows := make([][]string, 0, len(runs))
				for _, r := range runs {
					rows = append(rows, []string{
						shortID(r.ID),
						classifier.SubjectLabel(r.Subject),
						colorStatus(string(r.Status), colorize),
						strconv.Itoa(r.SessionCount),
						strconv.Itoa(r.FailedCount),
						formatTimestamp(r.StartedAt),
						formatDuration(r.Duration()),
					})
				}
				fmt.Fprintln(out, renderTable(
					[]string{"Run", "Subject", "Status", "Sessions", "Failed", "Started", "Duration"},
					rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignRight},
				))
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "l", 20, "Maximum number of runs to list (0 for all)")
	cmd.Flags().BoolVar(&allSubjects, "all", false, "List runs for every subject, not only the configured one")
	cmd.AddCommand(newHistoryShowCommand(ctx))
	return cmd
}

func newHistoryShowCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show <run-id>",
		Short: "Show sessions and file placements of a run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.requireHistory(func(store *history.Store) error {
				run, err := store.GetRun(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				sessions, err := store.Sessions(cmd.Context(), run.ID)
				if err != nil {
					return err
				}
				placements, err := store.Placements(cmd.Context(), run.ID)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colorize := shouldColorize(out)
				fmt.Fprintf(out, "Run %s\n", run.ID)
				fmt.Fprintf(out, "  Subject:  %s\n", classifier.SubjectLabel(run.Subject))
				fmt.Fprintf(out, "  Output:   %s\n", run.OutputDir)
				fmt.Fprintf(out, "  Status:   %s\n", colorStatus(string(run.Status), colorize))
				fmt.Fprintf(out, "  Started:  %s\n", formatTimestamp(run.StartedAt))
				fmt.Fprintf(out, "  Duration: %s\n", formatDuration(run.Duration()))
				if run.ErrorMessage != "" {
					fmt.Fprintf(out, "  Error:    %s\n", run.ErrorMessage)
				}

				if len(sessions) > 0 {
					rows := make([][]string, 0, len(sessions))
					for _, s := range sessions {
						rows = append(rows, []string{
							s.SessionID,
							colorStatus(string(s.Status), colorize),
							strconv.Itoa(s.Series),
							strconv.Itoa(s.Files),
							s.FailureKind,
							truncate(s.ErrorMessage, 80),
						})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable(
						[]string{"Session", "Status", "Series", "Files", "Failure", "Error"},
						rows,
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight},
					))
				}

				if len(placements) > 0 {
					rows := make([][]string, 0, len(placements))
					for _, p := range placements {
						rows = append(rows, []string{
							p.SessionID,
							p.Original,
							categoryLabel(classifier.Category(p.Category)),
							p.Destination,
						})
					}
					fmt.Fprintln(out)
					fmt.Fprintln(out, renderTable([]string{"Session", "Original", "Category", "Destination"}, rows, nil))
				}
				return nil
			})
		},
	}
}
