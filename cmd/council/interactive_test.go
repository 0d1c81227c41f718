package main

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"iter"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"

	"github.com/ShayCichocki/council/internal/api"
	"github.com/ShayCichocki/council/internal/audit"
	"github.com/ShayCichocki/council/internal/config"
	"github.com/ShayCichocki/council/internal/council"
	"github.com/ShayCichocki/council/internal/healing"
)

const (
	curatorAnswer   = "Hello! Happy to help."
	curatorEscalate = "This needs depth. Ready for full council? (yes/no)"
	judgeAnswer     = "Final Answer:\n1. Plan\n2. Build\n3. Measure\n4. Review\nRationale: Weighed every view."
	healingAnswer   = "ROOT_CAUSE: The stage map is nil.\nDIFF:\nNO_DIFF\nTESTS:\n- go test ./...\nRISKS: Low."
)

// override replaces the scripted reply for one call.
type override struct {
	text string
	err  error
}

// scriptedGateway answers by stage. respond may override the reply for a
// call; a nil override keeps the defaults.
type scriptedGateway struct {
	curator string
	respond func(system, topic string) *override

	mu      sync.Mutex
	systems []string
	topics  []string
}

func (g *scriptedGateway) Complete(_ context.Context, req api.Request) (string, error) {
	system, topic := req.Messages[0].Content, req.Messages[1].Content
	g.mu.Lock()
	g.systems = append(g.systems, system)
	g.topics = append(g.topics, topic)
	g.mu.Unlock()

	if g.respond != nil {
		if o := g.respond(system, topic); o != nil {
			return o.text, o.err
		}
	}
	switch {
	case strings.Contains(topic, "Review this self-healing proposal"):
		return "The diagnosis is speculative.", nil
	case strings.Contains(topic, "Self-healing mode"):
		if strings.HasPrefix(system, "You are the Judge") {
			return healingAnswer, nil
		}
		return "diagnosis notes", nil
	case strings.HasPrefix(system, "You are the Curator"):
		if g.curator != "" {
			return g.curator, nil
		}
		return curatorAnswer, nil
	case strings.HasPrefix(system, "You are the Judge"):
		return judgeAnswer, nil
	}
	return "stage notes", nil
}

func (g *scriptedGateway) Stream(ctx context.Context, req api.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		out, err := g.Complete(ctx, req)
		yield(out, err)
	}
}

func (g *scriptedGateway) Name() string { return "scripted" }

// stagesCalled names the role of every call, in order.
func (g *scriptedGateway) stagesCalled() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	var out []string
	for _, sys := range g.systems {
		fields := strings.Fields(strings.TrimPrefix(sys, "You are the "))
		out = append(out, strings.Trim(fields[0], ",."))
	}
	return out
}

func newTestREPL(t *testing.T, gw api.Gateway, input string) (*repl, *bytes.Buffer) {
	t.Helper()
	root := t.TempDir()
	logger := zap.NewNop()

	a := &app{
		cfg:     config.Default(),
		root:    root,
		logger:  logger,
		gateway: gw,
	}
	a.audit = audit.NewLog(filepath.Join(root, ".council", "healing_log.jsonl"), logger)
	a.pipeline = council.New(gw, council.Config{ProjectRoot: root}, council.WithLogger(logger))
	a.healer = healing.NewOrchestrator(healing.Config{
		Root:    root,
		Council: a.pipeline,
		Audit:   a.audit,
		Logger:  logger,
	})
	a.capture = healing.NewCapture(nil)

	var out bytes.Buffer
	r := &repl{
		app:     a,
		session: council.NewSession(a.cfg.Council.HistoryMessages),
		in:      bufio.NewScanner(strings.NewReader(input)),
		out:     &out,
	}
	return r, &out
}

func assertContains(t *testing.T, out string, wants ...string) {
	t.Helper()
	for _, want := range wants {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestREPL_ExitsOnlyOnExitOrQuit(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "quit", input: "help\nquit\nnever asked\n"},
		{name: "exit", input: "pending\nEXIT\nnever asked\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &scriptedGateway{}
			r, out := newTestREPL(t, gw, tt.input)

			if err := r.loop(context.Background()); err != nil {
				t.Fatalf("loop: %v", err)
			}
			assertContains(t, out.String(), "Goodbye.")
			if n := len(gw.stagesCalled()); n != 0 {
				t.Errorf("gateway called %d times after exit", n)
			}
		})
	}
}

func TestREPL_EndOfInputEndsLoop(t *testing.T) {
	r, _ := newTestREPL(t, &scriptedGateway{}, "")
	if err := r.loop(context.Background()); err != nil {
		t.Fatalf("loop: %v", err)
	}
}

func TestREPL_CaughtErrorsDoNotEndLoop(t *testing.T) {
	r, out := newTestREPL(t, &scriptedGateway{}, "approve 7\nreject x\nheal\nWhat next?\nexit\n")

	if err := r.loop(context.Background()); err != nil {
		t.Fatalf("loop: %v", err)
	}
	assertContains(t, out.String(),
		"unknown healing proposal: 7",
		"usage: reject <id>",
		"Nothing to heal",
		"=== FINAL COUNCIL ANSWER ===",
		"Goodbye.")
}

func TestREPL_PanicIsCapturedAndLoopContinues(t *testing.T) {
	gw := &scriptedGateway{respond: func(_, topic string) *override {
		if strings.Contains(topic, "boom") {
			panic("gateway exploded")
		}
		return nil
	}}
	r, out := newTestREPL(t, gw, "boom\nStill there?\nexit\n")

	if err := r.loop(context.Background()); err != nil {
		t.Fatalf("loop: %v", err)
	}
	assertContains(t, out.String(),
		"Internal error: gateway exploded",
		"Type 'heal'",
		"=== FINAL COUNCIL ANSWER ===",
		"Goodbye.")
	if r.lastFailure == nil || !strings.Contains(r.lastFailure.ErrorMessage, "gateway exploded") {
		t.Fatalf("lastFailure = %+v", r.lastFailure)
	}
	if r.lastFailure.Prompt != "boom" {
		t.Errorf("lastFailure.Prompt = %q", r.lastFailure.Prompt)
	}
}

func TestREPL_FailedRunOffersHealing(t *testing.T) {
	gw := &scriptedGateway{respond: func(system, topic string) *override {
		healingRun := strings.Contains(strings.ToLower(topic), "self-healing")
		if strings.HasPrefix(system, "You are the Researcher") && !healingRun {
			return &override{err: errors.New("backend went away")}
		}
		return nil
	}}
	r, out := newTestREPL(t, gw, "Why is the sky blue?\nheal\nno\nexit\n")

	if err := r.loop(context.Background()); err != nil {
		t.Fatalf("loop: %v", err)
	}
	assertContains(t, out.String(),
		"Researcher failed: backend went away",
		"Type 'heal' to ask the council for a fix.",
		"=== SELF-HEALING PROPOSAL #1 ===",
		"Root cause: The stage map is nil.",
		"Healing proposal #1 rejected.")
	if r.session.PendingHealingID != 0 {
		t.Errorf("PendingHealingID = %d after answer", r.session.PendingHealingID)
	}
	if len(r.app.healer.Pending()) != 0 {
		t.Error("rejected proposal still pending")
	}

	entries, err := audit.ReadEntries(r.app.audit.Path())
	if err != nil {
		t.Fatalf("ReadEntries: %v", err)
	}
	var statuses []audit.Status
	for _, e := range entries {
		statuses = append(statuses, e.ApprovalStatus)
	}
	if len(statuses) != 2 || statuses[0] != audit.StatusPending || statuses[1] != audit.StatusRejected {
		t.Errorf("audit statuses = %v", statuses)
	}
}

func TestREPL_HealingYesIsConsumed(t *testing.T) {
	r, out := newTestREPL(t, &scriptedGateway{}, "heal\nyes\nexit\n")
	r.lastFailure = &healing.ErrorContext{ErrorMessage: "Critic failed: timeout", Prompt: "plan"}

	if err := r.loop(context.Background()); err != nil {
		t.Fatalf("loop: %v", err)
	}
	assertContains(t, out.String(), "Fix not applied: No diff supplied in proposal.")
	if strings.Contains(out.String(), "=== FINAL COUNCIL ANSWER ===") {
		t.Error("the yes answer was sent to the council as a prompt")
	}
}

func TestREPL_GateAnswers(t *testing.T) {
	tests := []struct {
		name       string
		answer     string
		wantStages []string
		wantOut    string
	}{
		{
			name:       "yes convenes the council",
			answer:     "yes",
			wantStages: []string{"Curator", "Researcher", "Critic", "Planner", "Judge"},
			wantOut:    "=== FINAL COUNCIL ANSWER ===",
		},
		{
			name:       "no declines",
			answer:     "n",
			wantStages: []string{"Curator"},
			wantOut:    "the full council will not convene",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gw := &scriptedGateway{curator: curatorEscalate}
			r, out := newTestREPL(t, gw, "Plan our roadmap\n"+tt.answer+"\nexit\n")
			r.session.Record("hi", "hello")

			if err := r.loop(context.Background()); err != nil {
				t.Fatalf("loop: %v", err)
			}
			got := gw.stagesCalled()
			if strings.Join(got, ",") != strings.Join(tt.wantStages, ",") {
				t.Errorf("stages = %v, want %v", got, tt.wantStages)
			}
			assertContains(t, out.String(), tt.wantOut)
			if r.session.PendingGatePrompt != "" {
				t.Errorf("PendingGatePrompt = %q after answer", r.session.PendingGatePrompt)
			}
		})
	}
}

func TestREPL_GateAnsweredDirectlyIsRecorded(t *testing.T) {
	gw := &scriptedGateway{}
	r, out := newTestREPL(t, gw, "thanks!\nexit\n")
	r.session.Record("hi", "hello")

	if err := r.loop(context.Background()); err != nil {
		t.Fatalf("loop: %v", err)
	}
	if got := gw.stagesCalled(); len(got) != 1 || got[0] != "Curator" {
		t.Errorf("stages = %v, want only the Curator", got)
	}
	assertContains(t, out.String(), curatorAnswer)
	if h := r.session.History(); len(h) != 4 || h[2].Content != "thanks!" {
		t.Errorf("history = %+v", h)
	}
}

func TestREPL_SelfImproveBypassesGate(t *testing.T) {
	gw := &scriptedGateway{}
	r, _ := newTestREPL(t, gw, "self-improve the logger\nexit\n")
	r.session.Record("hi", "hello")

	if err := r.loop(context.Background()); err != nil {
		t.Fatalf("loop: %v", err)
	}

	roles := council.DefaultRoles()
	if len(gw.systems) != len(council.Stages) {
		t.Fatalf("calls = %d, want a full run of %d stages", len(gw.systems), len(council.Stages))
	}
	for i, stage := range council.Stages {
		if !strings.HasPrefix(gw.systems[i], roles[stage].SelfImprove[:25]) {
			t.Errorf("%s did not use its self-improvement template: %q", stage, gw.systems[i])
		}
	}
}
