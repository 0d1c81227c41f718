package council

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

// confirmationCues mark a Curator reply that asks to escalate.
var confirmationCues = []string{"(yes/no)", "ready for full council"}

// GateRequest is the input to RunGate.
type GateRequest struct {
	Prompt  string
	Session *Session
	Sink    Sink
}

// GateResult is the lighter result of a Curator-only run.
type GateResult struct {
	Output             string `json:"output"`
	AskingConfirmation bool   `json:"asking_confirmation"`
	Prompt             string `json:"prompt"`
	Error              string `json:"error,omitempty"`
}

// RunGate runs only the Curator stage. AskingConfirmation is set when the
// conversation already has history and the Curator asks whether to
// convene the full council.
func (p *Pipeline) RunGate(ctx context.Context, req GateRequest) *GateResult {
	res := &GateResult{Prompt: req.Prompt}

	sink := req.Sink
	if sink == nil {
		sink = BufferedSink{}
	}

	out, err := p.runStage(ctx, sink, StageCurator, false, req.Prompt, nil)
	if err != nil {
		res.Error = fmt.Sprintf("%s failed: %s", StageCurator, err.Error())
		p.logger.Warn("gate failed", zap.Error(err))
		return res
	}

	res.Output = out
	res.AskingConfirmation = req.Session.HasHistory() && AsksConfirmation(out)
	return res
}

// AsksConfirmation reports whether a Curator reply asks to escalate.
func AsksConfirmation(output string) bool {
	lower := strings.ToLower(output)
	for _, cue := range confirmationCues {
		if strings.Contains(lower, cue) {
			return true
		}
	}
	return false
}
