package council

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoadRoles_Overrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	content := `judge:
  instruction: "Answer with {recommendations} bullet points."
critic:
  self_improve: "Be harsh about code."
`
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	roles, err := LoadRoles(path)
	if err != nil {
		t.Fatalf("LoadRoles failed: %v", err)
	}

	if got := roles.instruction(StageJudge, false, 6, 5); got != "Answer with 6 bullet points." {
		t.Errorf("judge instruction = %q", got)
	}
	defaults := DefaultRoles()
	if roles[StageCritic].Instruction != defaults[StageCritic].Instruction {
		t.Error("unset fields should keep their defaults")
	}
	if roles[StageCritic].SelfImprove != "Be harsh about code." {
		t.Errorf("critic self_improve = %q", roles[StageCritic].SelfImprove)
	}
}

func TestLoadRoles_UnknownStage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "roles.yaml")
	_ = os.WriteFile(path, []byte("oracle:\n  instruction: x\n"), 0644)

	_, err := LoadRoles(path)
	if err == nil || !strings.Contains(err.Error(), "oracle") {
		t.Errorf("error = %v, want unknown stage", err)
	}
}

func TestLoadRoles_EmptyPath(t *testing.T) {
	roles, err := LoadRoles("")
	if err != nil {
		t.Fatalf("LoadRoles failed: %v", err)
	}
	if len(roles) != len(Stages) {
		t.Errorf("got %d roles, want %d", len(roles), len(Stages))
	}
}

func TestInstruction_SelfImproveFallback(t *testing.T) {
	roles := Roles{StageJudge: {Instruction: "normal"}}
	if got := roles.instruction(StageJudge, true, 4, 5); got != "normal" {
		t.Errorf("instruction = %q, want fallback to normal", got)
	}
}
