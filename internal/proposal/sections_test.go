package proposal

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSections_OrderedSlicing(t *testing.T) {
	text := "intro\nROOT_CAUSE:\nMissing key.\nDIFF:\n+fix\nTESTS:\n- go test ./...\nRISKS:\nNone."
	markers := []string{"ROOT_CAUSE:", "DIFF:", "TESTS:", "RISKS:"}

	got := Sections(text, markers)
	want := map[string]string{
		"ROOT_CAUSE:": "Missing key.",
		"DIFF:":       "+fix",
		"TESTS:":      "- go test ./...",
		"RISKS:":      "None.",
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("Sections mismatch (-want +got):\n%s", d)
	}
}

func TestSections_AbsentMarkers(t *testing.T) {
	got := Sections("PROPOSAL: only this", Markers)
	want := map[string]string{
		MarkerProposal: "only this",
		MarkerFiles:    "",
		MarkerImpact:   "",
		MarkerRollback: "",
	}
	if d := cmp.Diff(want, got); d != "" {
		t.Errorf("Sections mismatch (-want +got):\n%s", d)
	}
}

func TestSections_OutOfDeclarationOrder(t *testing.T) {
	text := "IMPACT: small\nPROPOSAL: rename things\nROLLBACK: git revert"
	got := Sections(text, Markers)

	if got[MarkerImpact] != "small" {
		t.Errorf("IMPACT = %q, want %q", got[MarkerImpact], "small")
	}
	if got[MarkerProposal] != "rename things" {
		t.Errorf("PROPOSAL = %q, want %q", got[MarkerProposal], "rename things")
	}
	if got[MarkerRollback] != "git revert" {
		t.Errorf("ROLLBACK = %q, want %q", got[MarkerRollback], "git revert")
	}
}

func TestSections_FirstOccurrenceWins(t *testing.T) {
	text := "DIFF: first\nTESTS: run\nDIFF: second"
	got := Sections(text, []string{"DIFF:", "TESTS:"})
	if got["DIFF:"] != "first" {
		t.Errorf("DIFF = %q, want %q", got["DIFF:"], "first")
	}
	if got["TESTS:"] != "run\nDIFF: second" {
		t.Errorf("TESTS = %q, want body to run to end of text", got["TESTS:"])
	}
}

func TestSections_Deterministic(t *testing.T) {
	texts := []string{
		"",
		"no markers at all",
		"PROPOSAL: a\nFILES_TO_CHANGE:\ncmd/x/main.go\npackage main\nIMPACT: b\nROLLBACK: c",
		"ROLLBACK: r\nIMPACT: i\nIMPACT: again",
	}
	for _, text := range texts {
		first := Sections(text, Markers)
		second := Sections(text, Markers)
		if d := cmp.Diff(first, second); d != "" {
			t.Errorf("Sections(%q) not deterministic:\n%s", text, d)
		}
	}
}
