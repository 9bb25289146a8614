package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"bidsify/internal/classifier"
	"bidsify/internal/history"
	"bidsify/internal/preflight"
	"bidsify/internal/workflow"
)

func newRunCommand(ctx *commandContext) *cobra.Command {
	var stopOnError bool

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Convert and organize every configured session of the subject",
		Long: `Run dcm2niix for each session and organize the output into
<output_dir>/sub-<subject>/<session>/{dwi,anat,func,misc}.

Sessions run in order. A failed session does not stop the others unless
--stop-on-error is set or workflow.continue_on_error is false; the command
exits non-zero whenever any session fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if stopOnError {
				cfg.Workflow.ContinueOnError = false
			}
			plan, err := workflow.PlanFromConfig(cfg)
			if err != nil {
				return err
			}
			if err := preflight.Err(preflight.RunAll(cfg, preflight.Options{})); err != nil {
				return err
			}
			return executePlan(cmd, ctx, plan)
		},
	}

	cmd.Flags().BoolVar(&stopOnError, "stop-on-error", false, "Stop at the first failed session")
	return cmd
}

func executePlan(cmd *cobra.Command, ctx *commandContext, plan workflow.Plan) error {
	cfg, err := ctx.ensureConfig()
	if err != nil {
		return err
	}
	logger, err := ctx.ensureLogger()
	if err != nil {
		return err
	}
	return ctx.withHistory(func(store *history.Store) error {
		var rec workflow.Recorder
		if store != nil {
			rec = store
		}
		runner, err := workflow.NewFromConfig(cfg, logger, rec)
		if err != nil {
			return err
		}
		report, runErr := runner.Run(cmd.Context(), plan)
		if len(report.Sessions) > 0 {
			out := cmd.OutOrStdout()
			renderRunReport(out, report, shouldColorize(out))
		}
		return runErr
	})
}

func renderRunReport(out io.Writer, report workflow.Report, colorize bool) {
	headers := []string{"Session", "Status", "Series", "DWI", "Anat", "Func", "Misc", "Error"}
	aligns := []columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignRight, alignRight, alignRight, alignLeft}
	rows := make([][]string, 0, len(report.Sessions))
	var series int
	totals := make(map[classifier.Category]int, len(classifier.Categories))
	for _, s := range report.Sessions {
		counts := s.Organization.Counts()
		for category, n := range counts {
			totals[category] += n
		}
		series += s.Conversion.Series
		errText := ""
		if s.Err != nil {
			errText = truncate(s.Err.Error(), 80)
		}
		rows = append(rows, []string{
			s.ID,
			colorStatus(string(s.Status), colorize),
			strconv.Itoa(s.Conversion.Series),
			strconv.Itoa(counts[classifier.CategoryDiffusion]),
			strconv.Itoa(counts[classifier.CategoryAnatomical]),
			strconv.Itoa(counts[classifier.CategoryFunctional]),
			strconv.Itoa(counts[classifier.CategoryMisc]),
			errText,
		})
	}
	footer := []string{
		"Total",
		"",
		strconv.Itoa(series),
		strconv.Itoa(totals[classifier.CategoryDiffusion]),
		strconv.Itoa(totals[classifier.CategoryAnatomical]),
		strconv.Itoa(totals[classifier.CategoryFunctional]),
		strconv.Itoa(totals[classifier.CategoryMisc]),
	}
	fmt.Fprintln(out, tableLayout{Headers: headers, Rows: rows, Aligns: aligns, Footer: footer}.render())
	fmt.Fprintf(out, "Run %s (%s): %d succeeded, %d failed, %d skipped in %s\n",
		shortID(report.RunID),
		report.Subject,
		report.Count(history.SessionSucceeded),
		report.Count(history.SessionFailed),
		report.Count(history.SessionSkipped),
		formatDuration(report.Duration()),
	)
}
