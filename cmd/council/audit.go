package main

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/ShayCichocki/council/internal/audit"
)

var (
	auditLimit int
	auditJSON  bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show the proposal audit log",
	Long: `Show the newest entries of the append-only audit log that records every
self-improvement and self-healing decision.

Examples:
  council audit            # newest 20 entries
  council audit -n 100
  council audit --json     # one JSON object per line`,
	Args: cobra.NoArgs,
	RunE: runAudit,
}

func init() {
	auditCmd.Flags().IntVarP(&auditLimit, "limit", "n", 20, "Number of entries to show (0 for all)")
	auditCmd.Flags().BoolVar(&auditJSON, "json", false, "Output raw JSON lines")
}

func runAudit(cmd *cobra.Command, args []string) error {
	cfg, root, err := loadProject()
	if err != nil {
		return err
	}
	entries, err := audit.ReadEntries(resolvePath(root, cfg.Healing.AuditLog))
	if err != nil {
		return err
	}
	entries = audit.Tail(entries, auditLimit)

	out := cmd.OutOrStdout()
	if auditJSON {
		enc := json.NewEncoder(out)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	if len(entries) == 0 {
		fmt.Fprintln(out, "Audit log is empty.")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(out, "%s  %s  #%-8s %s\n",
			e.Timestamp, statusColor(e.ApprovalStatus).Sprintf("%-12s", e.ApprovalStatus), e.ProposalID, e.ErrorType)
		fmt.Fprintf(out, "    %s\n", truncate(e.ProposalSummary, 100))
		if len(e.FilesChanged) > 0 {
			fmt.Fprintf(out, "    files: %s (~%d lines)\n", strings.Join(e.FilesChanged, ", "), e.LOCChangedEstimate)
		}
	}
	return nil
}

func statusColor(s audit.Status) *color.Color {
	switch s {
	case audit.StatusApplied:
		return color.New(color.FgGreen)
	case audit.StatusFailedApply, audit.StatusRejected:
		return color.New(color.FgRed)
	case audit.StatusApproved:
		return color.New(color.FgCyan)
	default:
		return color.New(color.FgYellow)
	}
}
