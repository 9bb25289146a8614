package main

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"bidsify/internal/classifier"
	"bidsify/internal/config"
	"bidsify/internal/organizer"
	"bidsify/internal/preflight"
	"bidsify/internal/services"
	"bidsify/internal/workflow"
)

func newOrganizeCommand(ctx *commandContext) *cobra.Command {
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "organize [session-id...]",
		Short: "Organize already converted sessions without running dcm2niix",
		Long: `Classify the flat files in <output_dir>/sub-<subject>/<session> and move
them into dwi, anat, func and misc. Without arguments every configured
session is organized. An already organized session fails because its
subdirectories exist.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			if cfg.Subject.ID == "" {
				return errors.New("subject is required; pass --subject or set subject.id")
			}
			ids := args
			if len(ids) == 0 {
				ids = cfg.SessionIDs()
			}
			if len(ids) == 0 {
				return errors.New("no sessions given and none configured")
			}
			for _, id := range ids {
				if err := config.ValidateSessionID(id); err != nil {
					return services.Wrap(services.ErrConfiguration, "organizing", "parse arguments", "", err)
				}
			}

			if dryRun {
				c := classifier.New(classifier.WithAccelerationMarkers(cfg.Classifier.AccelerationMarkers))
				out := cmd.OutOrStdout()
				var failures []error
				for _, id := range ids {
					mirror, err := organizer.Mirror(classifier.SessionDir(cfg.Paths.OutputDir, cfg.Subject.ID, id))
					if err != nil {
						failures = append(failures, fmt.Errorf("session %s: %w", id, err))
						continue
					}
					org := organizer.New(c, nil, organizer.WithFilesystem(mirror))
					report, err := org.Organize(cmd.Context(), cfg.Paths.OutputDir, cfg.Subject.ID, id)
					if err != nil {
						failures = append(failures, fmt.Errorf("session %s: %w", id, err))
						continue
					}
					renderPlacementPlan(cmd, report)
				}
				if len(failures) == 0 {
					fmt.Fprintln(out, "Dry run: no files were moved")
				}
				return errors.Join(failures...)
			}

			if err := preflight.Err(preflight.RunAll(cfg, preflight.Options{SkipConverter: true})); err != nil {
				return err
			}
			plan := workflow.Plan{
				Subject:         cfg.Subject.ID,
				OutputDir:       cfg.Paths.OutputDir,
				ContinueOnError: cfg.Workflow.ContinueOnError,
				SkipConversion:  true,
			}
			for _, id := range ids {
				plan.Sessions = append(plan.Sessions, workflow.SessionPlan{ID: id})
			}
			return executePlan(cmd, ctx, plan)
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, "Rehearse the organization in memory and show where files would go")
	return cmd
}

func renderPlacementPlan(cmd *cobra.Command, report organizer.Report) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s/%s (%s)\n", report.Subject, report.Session, report.SessionDir)
	if len(report.Placements) == 0 {
		fmt.Fprintln(out, "  no files to organize")
		return
	}
	rows := make([][]string, 0, len(report.Placements))
	for _, p := range report.Placements {
		rows = append(rows, []string{p.Original, categoryLabel(p.Category), filepath.ToSlash(p.Destination)})
	}
	fmt.Fprintln(out, renderTable([]string{"File", "Category", "Destination"}, rows, nil))
}
