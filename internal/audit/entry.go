// Package audit writes the append-only proposal lifecycle log: one JSON
// object per line, ASCII-escaped, never rewritten.
package audit

import (
	"strings"
	"time"
)

// Status is the approval state recorded by an entry.
type Status string

const (
	StatusPending     Status = "pending"
	StatusApproved    Status = "approved"
	StatusRejected    Status = "rejected"
	StatusApplied     Status = "applied"
	StatusFailedApply Status = "failed_apply"
)

// Entry is one lifecycle transition. Field order matches the on-disk layout.
type Entry struct {
	Timestamp          string   `json:"timestamp"`
	ErrorType          string   `json:"error_type"`
	ErrorMessage       string   `json:"error_message"`
	StackSummary       []string `json:"stack_summary"`
	ProposalID         string   `json:"proposal_id"`
	ProposalSummary    string   `json:"proposal_summary"`
	FilesChanged       []string `json:"files_changed"`
	LOCChangedEstimate int      `json:"loc_changed_estimate"`
	ApprovalStatus     Status   `json:"approval_status"`
}

// EntryParams are the inputs to NewEntry.
type EntryParams struct {
	ErrorMessage    string
	StackSummary    []string
	ProposalID      string
	ProposalSummary string
	FilesChanged    []string
	LOCChanged      int
	Status          Status
	// Now overrides the clock; zero means time.Now.
	Now time.Time
}

// NewEntry builds an entry, deriving the error type from the message prefix.
func NewEntry(p EntryParams) Entry {
	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}
	stack := p.StackSummary
	if stack == nil {
		stack = []string{}
	}
	files := p.FilesChanged
	if files == nil {
		files = []string{}
	}
	return Entry{
		Timestamp:          now.UTC().Format("2006-01-02T15:04:05.000000"),
		ErrorType:          ErrorType(p.ErrorMessage),
		ErrorMessage:       p.ErrorMessage,
		StackSummary:       stack,
		ProposalID:         p.ProposalID,
		ProposalSummary:    p.ProposalSummary,
		FilesChanged:       files,
		LOCChangedEstimate: p.LOCChanged,
		ApprovalStatus:     p.Status,
	}
}

// ErrorType returns the text before the first colon, or "UnknownError".
func ErrorType(message string) string {
	head, _, found := strings.Cut(message, ":")
	head = strings.TrimSpace(head)
	if !found || head == "" {
		return "UnknownError"
	}
	return head
}
