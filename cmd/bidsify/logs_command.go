package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"bidsify/internal/logs"
)

func newLogsCommand(ctx *commandContext) *cobra.Command {
	var lines int
	var follow bool
	var runID string
	var grep string

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent log output",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			path := cfg.LogPath()
			if path == "" {
				return errors.New("paths.log_dir is not configured")
			}

			filter := logs.Filter{Contains: grep}
			if runID != "" {
				filter.Contains = runID
			}

			out := cmd.OutOrStdout()
			result, err := logs.Tail(path, logs.TailOptions{Limit: lines, Filter: filter})
			if err != nil {
				return err
			}
			for _, line := range result.Lines {
				fmt.Fprintln(out, line)
			}
			if !follow {
				return nil
			}
			return logs.Follow(cmd.Context(), path, result.Offset, filter, 500*time.Millisecond, func(line string) {
				fmt.Fprintln(out, line)
			})
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of trailing lines to show")
	cmd.Flags().BoolVarP(&follow, "follow", "f", false, "Keep printing new lines until interrupted")
	cmd.Flags().StringVar(&runID, "run", "", "Only lines of the given run ID")
	cmd.Flags().StringVar(&grep, "grep", "", "Only lines containing this text")
	return cmd
}
