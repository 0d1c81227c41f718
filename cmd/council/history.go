package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ShayCichocki/council/internal/state"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent council runs",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, root, err := loadProject()
		if err != nil {
			return err
		}
		db, err := state.OpenStore(resolvePath(root, cfg.State.Path))
		if err != nil {
			return fmt.Errorf("open run history: %w", err)
		}
		defer db.Close()

		runs, err := db.ListRuns(historyLimit)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if len(runs) == 0 {
			fmt.Fprintln(out, "No runs recorded yet.")
			return nil
		}
		for _, r := range runs {
			kind := "council"
			if r.IsSelfImprove {
				kind = "self-improve"
			}
			fmt.Fprintf(out, "%s  %-12s  %s\n", r.CreatedAt.Local().Format("2006-01-02 15:04"), kind, truncate(r.Prompt, 60))
			fmt.Fprintf(out, "    %s\n", truncate(firstLine(r.FinalAnswer), 72))
		}
		return nil
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Number of runs to show")
}

func firstLine(s string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(s), "\n")
	return line
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 3 {
		return string(r[:n])
	}
	return string(r[:n-3]) + "..."
}
