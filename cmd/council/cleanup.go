package main

import (
	"fmt"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/council/internal/exec"
	"github.com/ShayCichocki/council/internal/git"
	"github.com/ShayCichocki/council/internal/state"
)

// runRetention is how long run history is kept by cleanup --runs.
const runRetention = 30 * 24 * time.Hour

var (
	cleanupKeep   int
	cleanupBase   string
	cleanupDryRun bool
	cleanupRuns   bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete merged self-improve and self-heal branches",
	Long: `Delete branches created by self-improvement and self-healing that have
been merged into the base branch, keeping the newest ones.

Unmerged branches are never touched and deletion uses git branch -d.

Examples:
  council cleanup                # keep the newest 5 of each kind
  council cleanup --keep 0       # delete every merged branch
  council cleanup --dry-run      # list what would be deleted
  council cleanup --runs         # also purge run history older than 30 days`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupKeep, "keep", 5, "Number of newest merged branches to keep per prefix")
	cleanupCmd.Flags().StringVar(&cleanupBase, "base", "main", "Branch the candidates must be merged into")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "List branches without deleting them")
	cleanupCmd.Flags().BoolVar(&cleanupRuns, "runs", false, "Purge run history older than 30 days")
}

func runCleanup(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadProject()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	ctx := cmd.Context()
	runner := git.NewRunner(root, exec.NewRunner())

	for _, prefix := range []string{cfg.SelfImprove.BranchPrefix, cfg.Healing.BranchPrefix} {
		var branches []string
		if cleanupDryRun {
			branches = runner.StaleMergedBranches(ctx, cleanupKeep, cleanupBase, prefix)
		} else {
			branches = runner.CleanupMergedBranches(ctx, cleanupKeep, cleanupBase, prefix)
		}

		if len(branches) == 0 {
			printStatus(out, "•", fmt.Sprintf("No merged %s branches to delete", prefix), color.FgYellow)
			continue
		}
		verb := "Deleted"
		if cleanupDryRun {
			verb = "Would delete"
		}
		printStatus(out, "✓", fmt.Sprintf("%s %d %s branch(es)", verb, len(branches), prefix), color.FgGreen)
		for _, b := range branches {
			fmt.Fprintf(out, "  - %s\n", b)
		}
	}

	if !cleanupRuns {
		return nil
	}
	db, err := state.OpenStore(resolvePath(root, cfg.State.Path))
	if err != nil {
		return fmt.Errorf("open run history: %w", err)
	}
	defer db.Close()

	if cleanupDryRun {
		fmt.Fprintf(out, "Would purge runs older than %s\n", runRetention)
		return nil
	}
	n, err := db.PurgeOldRuns(runRetention)
	if err != nil {
		return err
	}
	printStatus(out, "✓", fmt.Sprintf("Purged %d run(s) older than 30 days", n), color.FgGreen)
	return nil
}
