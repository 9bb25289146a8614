package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bidsify/internal/classifier"
	"bidsify/internal/config"
	"bidsify/internal/deps"
	"bidsify/internal/history"
	"bidsify/internal/preflight"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration, dependency checks and per-session state",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			colorize := shouldColorize(out)

			var lines []string
			lines = append(lines, renderSectionHeader("Configuration", colorize)...)
			configPath := ctx.configPath
			if !ctx.configExists {
				configPath += " (not found, defaults in use)"
			}
			lines = append(lines,
				renderStatusLine("Config", statusInfo, configPath, colorize),
				renderStatusLine("Subject", subjectKind(cfg), subjectText(cfg), colorize),
				renderStatusLine("Output directory", statusInfo, cfg.Paths.OutputDir, colorize),
				renderStatusLine("History", statusInfo, historyText(cfg), colorize),
				"",
			)

			lines = append(lines, renderSectionHeader("Preflight", colorize)...)
			for _, r := range preflight.RunAll(cfg, preflight.Options{}) {
				kind := statusOK
				if !r.Passed {
					kind = statusError
				}
				lines = append(lines, renderStatusLine(r.Name, kind, r.Detail, colorize))
			}
			if missing := deps.Missing(preflight.CheckSystemDeps(cfg)); len(missing) > 0 {
				lines = append(lines, "", fmt.Sprintf("Install %s or set converter.binary in the config.", strings.Join(missing, ", ")))
			}
			fmt.Fprintln(out, strings.Join(lines, "\n"))

			if cfg.Subject.ID == "" || len(cfg.Sessions) == 0 {
				fmt.Fprintln(out)
				fmt.Fprintln(out, "No sessions configured.")
				return nil
			}

			return ctx.withHistory(func(store *history.Store) error {
				rows := make([][]string, 0, len(cfg.Sessions))
				for _, s := range cfg.Sessions {
					last, err := lastRunText(cmd.Context(), store, cfg.Subject.ID, s.ID, colorize)
					if err != nil {
						return err
					}
					files, organized := inspectSession(classifier.SessionDir(cfg.Paths.OutputDir, cfg.Subject.ID, s.ID))
					rows = append(rows, []string{s.ID, s.SourceDir, files, organized, last})
				}
				fmt.Fprintln(out)
				fmt.Fprintln(out, renderTable([]string{"Session", "Source", "Unorganized files", "Organized", "Last run"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignRight}))
				return nil
			})
		},
	}
}

func subjectKind(cfg *config.Config) statusKind {
	if cfg.Subject.ID == "" {
		return statusWarn
	}
	return statusInfo
}

func subjectText(cfg *config.Config) string {
	if cfg.Subject.ID == "" {
		return "not set"
	}
	return classifier.SubjectLabel(cfg.Subject.ID)
}

func historyText(cfg *config.Config) string {
	if !cfg.History.Enabled {
		return "disabled"
	}
	return cfg.HistoryPath()
}

// inspectSession reports the number of flat files in a session directory and
// whether the category subdirectories exist.
func inspectSession(dir string) (string, string) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "-", "no"
	}
	files := 0
	for _, e := range entries {
		if e.Type().IsRegular() {
			files++
		}
	}
	present := 0
	for _, sub := range classifier.Dirs() {
		if info, err := os.Stat(filepath.Join(dir, sub)); err == nil && info.IsDir() {
			present++
		}
	}
	organized := "no"
	switch {
	case present == len(classifier.Dirs()):
		organized = "yes"
	case present > 0:
		organized = "partial"
	}
	return fmt.Sprint(files), organized
}

func lastRunText(ctx context.Context, store *history.Store, subject, session string, colorize bool) (string, error) {
	if store == nil {
		return "-", nil
	}
	rec, err := store.LatestSession(ctx, subject, session)
	if err != nil {
		return "", err
	}
	if rec == nil {
		return "never", nil
	}
	return fmt.Sprintf("%s %s (%s)", colorStatus(string(rec.Status), colorize), formatTimestamp(rec.StartedAt), shortID(rec.RunID)), nil
}
