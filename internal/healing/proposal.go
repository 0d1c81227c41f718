package healing

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/ShayCichocki/council/internal/proposal"
)

// Section markers in a healing response, in declaration order.
const (
	MarkerRootCause = "ROOT_CAUSE:"
	MarkerDiff      = "DIFF:"
	MarkerTests     = "TESTS:"
	MarkerRisks     = "RISKS:"
)

// NoDiff is the sentinel a model writes when it cannot produce a patch.
const NoDiff = "NO_DIFF"

var healingMarkers = []string{MarkerRootCause, MarkerDiff, MarkerTests, MarkerRisks}

// DefaultTests run when a response names no tests.
var DefaultTests = []string{"go test ./..."}

// Proposal is a diagnosis and patch for a captured failure.
type Proposal struct {
	RootCause      string            `json:"root_cause"`
	UnifiedDiff    string            `json:"unified_diff"`
	Tests          []string          `json:"tests"`
	Risks          string            `json:"risks"`
	AgentReasoning map[string]string `json:"agent_reasoning"`
	RawResponse    string            `json:"raw_response"`
	SelfCritique   string            `json:"self_critique"`
}

// HasDiff reports whether the proposal carries a patch to apply.
func (p *Proposal) HasDiff() bool {
	d := strings.TrimSpace(p.UnifiedDiff)
	return d != "" && !strings.HasPrefix(d, NoDiff)
}

// ParseProposal extracts a Proposal from a response. Missing sections are
// left empty; when no test commands are found defaultTests are used.
func ParseProposal(response string, reasoning map[string]string, defaultTests []string) *Proposal {
	s := proposal.Sections(response, healingMarkers)

	var tests []string
	for _, line := range strings.Split(s[MarkerTests], "\n") {
		cmd := strings.TrimLeft(strings.TrimSpace(line), "-* ")
		cmd = strings.TrimSpace(strings.Trim(cmd, "`"))
		if cmd != "" {
			tests = append(tests, cmd)
		}
	}
	if len(tests) == 0 {
		if len(defaultTests) == 0 {
			defaultTests = DefaultTests
		}
		tests = append([]string(nil), defaultTests...)
	}

	if reasoning == nil {
		reasoning = map[string]string{}
	}
	return &Proposal{
		RootCause:      s[MarkerRootCause],
		UnifiedDiff:    proposal.StripFences(s[MarkerDiff]),
		Tests:          tests,
		Risks:          s[MarkerRisks],
		AgentReasoning: reasoning,
		RawResponse:    response,
	}
}

// BuildPrompt asks the council to diagnose ec in the healing sections.
func BuildPrompt(ec *ErrorContext) string {
	var b strings.Builder
	b.WriteString("Self-healing mode: analyze the failure and propose a fix.\n")
	b.WriteString("Respond in the exact sections below:\n")
	b.WriteString("ROOT_CAUSE:\nDIFF:\nTESTS:\nRISKS:\n")
	b.WriteString("If no diff is possible, write NO_DIFF under DIFF.\n\n")
	fmt.Fprintf(&b, "ERROR_MESSAGE: %s\n", ec.ErrorMessage)
	fmt.Fprintf(&b, "STACK_TRACE:\n%s\n", ec.StackTrace)
	fmt.Fprintf(&b, "PROMPT: %s\n", ec.Prompt)
	fmt.Fprintf(&b, "AGENT_STATE: %s\n", indentJSON(ec.AgentState))
	fmt.Fprintf(&b, "SYSTEM_METRICS:\n%s\n", indentJSON(ec.SystemMetrics))
	fmt.Fprintf(&b, "GIT_CONTEXT:\n%s\n", indentJSON(ec.GitContext))
	fmt.Fprintf(&b, "CODE_CONTEXT:\n%s\n", indentJSON(ec.CodeContext))
	return b.String()
}

// CritiquePrompt asks the council to review its own proposal.
func CritiquePrompt(ec *ErrorContext, p *Proposal) string {
	return "Review this self-healing proposal. " +
		"List any parts of this proposal that might be incorrect, speculative, " +
		"or based on missing context. Be brutally honest and concise.\n\n" +
		fmt.Sprintf("ERROR_MESSAGE: %s\n", ec.ErrorMessage) +
		fmt.Sprintf("ROOT_CAUSE: %s\n", p.RootCause) +
		fmt.Sprintf("DIFF:\n%s\n", p.UnifiedDiff) +
		fmt.Sprintf("TESTS: %s\n", strings.Join(p.Tests, ", ")) +
		fmt.Sprintf("RISKS: %s\n", p.Risks)
}

func indentJSON(v any) string {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "{}"
	}
	return string(data)
}
