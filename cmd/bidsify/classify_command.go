package main

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"bidsify/internal/classifier"
)

func newClassifyCommand(ctx *commandContext) *cobra.Command {
	var sessionID string
	var showRules bool

	cmd := &cobra.Command{
		Use:   "classify [filename...]",
		Short: "Show how filenames would be classified and renamed",
		Long: `Apply the classification rules to the given filenames without touching
disk. Names are matched case-sensitively in rule order; the first match wins.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			c := classifier.New(classifier.WithAccelerationMarkers(cfg.Classifier.AccelerationMarkers))
			out := cmd.OutOrStdout()

			if showRules {
				rows := make([][]string, 0, len(c.Rules())+1)
				for i, rule := range c.Rules() {
					suffix := rule.Suffix
					if suffix == "" {
						suffix = "task-<task>_bold"
					}
					rows = append(rows, []string{fmt.Sprint(i + 1), rule.Pattern, categoryLabel(rule.Category), rule.Category.Dir(), suffix})
				}
				rows = append(rows, []string{"-", "(no match)", categoryLabel(classifier.CategoryMisc), classifier.CategoryMisc.Dir(), "(name kept)"})
				fmt.Fprintln(out, renderTable([]string{"#", "Pattern", "Category", "Directory", "Suffix"}, rows, []columnAlignment{alignRight}))
				if len(args) == 0 {
					return nil
				}
			}
			if len(args) == 0 {
				return errors.New("at least one filename is required (or pass --rules)")
			}

			subject := "<subject>"
			if cfg.Subject.ID != "" {
				subject = cfg.Subject.ID
			}
			session := strings.TrimSpace(sessionID)
			if session == "" {
				if ids := cfg.SessionIDs(); len(ids) > 0 {
					session = ids[0]
				} else {
					session = "<session>"
				}
			}
			label := classifier.SubjectLabel(subject)

			var failures []error
			rows := make([][]string, 0, len(args))
			for _, name := range args {
				name = filepath.Base(name)
				result, err := c.Classify(name)
				if err != nil {
					failures = append(failures, fmt.Errorf("%s: %w", name, err))
					rows = append(rows, []string{name, "error", "", truncate(err.Error(), 60)})
					continue
				}
				dest := result.Category.Dir() + "/" + result.Filename(label, session)
				rows = append(rows, []string{name, categoryLabel(result.Category), result.Rule, dest})
			}
			fmt.Fprintln(out, renderTable([]string{"File", "Category", "Rule", "Destination"}, rows, nil))
			return errors.Join(failures...)
		},
	}

	cmd.Flags().StringVar(&sessionID, "session-id", "", "Session used in derived names (default: first configured session)")
	cmd.Flags().BoolVar(&showRules, "rules", false, "Print the rule table")
	return cmd
}
