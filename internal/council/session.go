package council

import (
	"fmt"
	"strings"

	"github.com/ShayCichocki/council/internal/api"
	"github.com/ShayCichocki/council/internal/proposal"
)

// DefaultHistoryMessages is how many history messages feed the
// conversation preamble.
const DefaultHistoryMessages = 8

// Decision is a parsed answer to a yes/no approval question.
type Decision int

const (
	// DecisionNone means the input is not an approval answer.
	DecisionNone Decision = iota
	// DecisionApprove accepts the pending item.
	DecisionApprove
	// DecisionReject declines the pending item.
	DecisionReject
)

// ParseDecision interprets input as an approval answer. "yes", "y" and the
// optional confirmation phrase approve; "no" and "n" reject. Matching is
// case-insensitive on the trimmed input.
func ParseDecision(input, phrase string) Decision {
	s := strings.ToLower(strings.TrimSpace(input))
	switch {
	case s == "yes" || s == "y":
		return DecisionApprove
	case phrase != "" && s == strings.ToLower(strings.TrimSpace(phrase)):
		return DecisionApprove
	case s == "no" || s == "n":
		return DecisionReject
	}
	return DecisionNone
}

// Session is the per-conversation state a caller threads through pipeline
// runs. The pipeline only reads it; callers update it with Observe and the
// Clear methods. A Session is not safe for concurrent use.
type Session struct {
	history    []api.Message
	maxHistory int

	// PendingProposal awaits approval after a self-improvement run.
	PendingProposal *proposal.Proposal
	// PendingGatePrompt is the prompt the Curator asked to escalate.
	PendingGatePrompt string
	// PendingHealingID is the healing proposal awaiting review, or 0.
	PendingHealingID int
}

// NewSession creates a session keeping maxHistory messages of context.
func NewSession(maxHistory int) *Session {
	if maxHistory <= 0 {
		maxHistory = DefaultHistoryMessages
	}
	return &Session{maxHistory: maxHistory}
}

// History returns the recorded conversation, oldest first.
func (s *Session) History() []api.Message {
	return append([]api.Message(nil), s.history...)
}

// HasHistory reports whether any exchange has been recorded.
func (s *Session) HasHistory() bool {
	return s != nil && len(s.history) > 0
}

// ContextPrompt wraps input with the recent conversation. Without history
// the input is returned unchanged.
func (s *Session) ContextPrompt(input string) string {
	if !s.HasHistory() {
		return input
	}
	recent := s.history
	if len(recent) > s.maxHistory {
		recent = recent[len(recent)-s.maxHistory:]
	}

	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		speaker := "You"
		if m.Role == api.RoleAssistant {
			speaker = "Council Final Answer"
		}
		lines = append(lines, fmt.Sprintf("%s: %s", speaker, m.Content))
	}

	return fmt.Sprintf("Previous conversation summary:\n%s\n\nNew message: %s\n\nRespond as the full council deliberation.",
		strings.Join(lines, "\n"), input)
}

// Record appends one exchange to the history.
func (s *Session) Record(input, answer string) {
	s.history = append(s.history,
		api.Message{Role: api.RoleUser, Content: input},
		api.Message{Role: api.RoleAssistant, Content: answer})
	// Keep a bounded backlog; only the last maxHistory are ever shown.
	if over := len(s.history) - 4*s.maxHistory; over > 0 {
		s.history = append([]api.Message(nil), s.history[over:]...)
	}
}

// Observe applies the transitions implied by a finished run. An apply or
// reject attempt clears the pending proposal whatever its outcome; a
// successful run is recorded and its proposal, if any, becomes pending.
func (s *Session) Observe(input string, r *Result) {
	if r == nil {
		return
	}
	if r.Execution != nil {
		s.ClearProposal()
		return
	}
	if r.Error != "" {
		return
	}
	s.Record(input, r.FinalAnswer)
	if r.Proposal != nil && len(r.Proposal.FileChanges) > 0 {
		s.PendingProposal = r.Proposal
	}
}

// ClearProposal drops the pending proposal.
func (s *Session) ClearProposal() {
	s.PendingProposal = nil
}

// ClearGate drops the pending gate prompt.
func (s *Session) ClearGate() {
	s.PendingGatePrompt = ""
}

// ClearHealing drops the pending healing id.
func (s *Session) ClearHealing() {
	s.PendingHealingID = 0
}
