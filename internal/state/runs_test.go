package state

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/ShayCichocki/council/internal/council"
)

func sampleResult(id, prompt string) *council.Result {
	return &council.Result{
		ID:     id,
		Prompt: prompt,
		Stages: []council.StageResult{
			{Stage: council.StageResearcher, Output: "facts"},
			{Stage: council.StageJudge, Output: "Final Answer: do it"},
		},
		FinalAnswer:      "do it",
		ReasoningSummary: "because",
	}
}

func TestRecordRun_GetRun(t *testing.T) {
	db := setupTestDB(t)
	fixed := time.Date(2025, 3, 4, 5, 6, 7, 0, time.UTC)
	db.now = func() time.Time { return fixed }

	if err := db.RecordRun(context.Background(), sampleResult("run-1", "what now?")); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}

	got, err := db.GetRun("run-1")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	want := &Run{
		ID:          "run-1",
		Prompt:      "what now?",
		FinalAnswer: "do it",
		Reasoning:   "because",
		StageCount:  2,
		CreatedAt:   fixed,
		Stages: []RunStageRow{
			{Name: "Researcher", Output: "facts"},
			{Name: "Judge", Output: "Final Answer: do it"},
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("run mismatch (-want +got):\n%s", diff)
	}
}

func TestGetRun_Missing(t *testing.T) {
	db := setupTestDB(t)
	got, err := db.GetRun("nope")
	if err != nil {
		t.Fatalf("GetRun failed: %v", err)
	}
	if got != nil {
		t.Errorf("GetRun = %+v, want nil", got)
	}
}

func TestRecordRun_SkipsFailedAndInterrupted(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()

	failed := sampleResult("f", "p")
	failed.Error = "Critic failed: boom"
	interrupted := sampleResult("i", "p")
	interrupted.Interrupted = true

	for _, r := range []*council.Result{failed, interrupted, nil} {
		if err := db.RecordRun(ctx, r); err != nil {
			t.Fatalf("RecordRun failed: %v", err)
		}
	}
	runs, err := db.ListRuns(10)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 0 {
		t.Errorf("recorded %d runs, want 0", len(runs))
	}
}

func TestRecordRun_AssignsMissingID(t *testing.T) {
	db := setupTestDB(t)
	res := sampleResult("", "p")
	res.IsSelfImprove = true
	if err := db.RecordRun(context.Background(), res); err != nil {
		t.Fatalf("RecordRun failed: %v", err)
	}
	runs, err := db.ListRuns(1)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	if len(runs) != 1 || runs[0].ID == "" || !runs[0].IsSelfImprove {
		t.Errorf("runs = %+v", runs)
	}
}

func TestListRuns_NewestFirst(t *testing.T) {
	db := setupTestDB(t)
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "c"} {
		at := base.Add(time.Duration(i) * time.Hour)
		db.now = func() time.Time { return at }
		if err := db.RecordRun(context.Background(), sampleResult(id, "p-"+id)); err != nil {
			t.Fatalf("RecordRun(%s) failed: %v", id, err)
		}
	}

	runs, err := db.ListRuns(2)
	if err != nil {
		t.Fatalf("ListRuns failed: %v", err)
	}
	var ids []string
	for _, r := range runs {
		ids = append(ids, r.ID)
		if r.Stages != nil {
			t.Errorf("ListRuns should not load stages for %s", r.ID)
		}
	}
	if diff := cmp.Diff([]string{"c", "b"}, ids); diff != "" {
		t.Errorf("order mismatch (-want +got):\n%s", diff)
	}
}

func TestPurgeOldRuns(t *testing.T) {
	db := setupTestDB(t)
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	old := now.Add(-40 * 24 * time.Hour)
	db.now = func() time.Time { return old }
	if err := db.RecordRun(context.Background(), sampleResult("old", "p")); err != nil {
		t.Fatal(err)
	}
	db.now = func() time.Time { return now }
	if err := db.RecordRun(context.Background(), sampleResult("new", "p")); err != nil {
		t.Fatal(err)
	}

	n, err := db.PurgeOldRuns(30 * 24 * time.Hour)
	if err != nil {
		t.Fatalf("PurgeOldRuns failed: %v", err)
	}
	if n != 1 {
		t.Errorf("purged %d runs, want 1", n)
	}

	var stages int
	if err := db.queryRow("SELECT COUNT(*) FROM run_stages WHERE run_id = ?", "old").Scan(&stages); err != nil {
		t.Fatal(err)
	}
	if stages != 0 {
		t.Errorf("stages of purged run remain: %d", stages)
	}
	if r, _ := db.GetRun("new"); r == nil {
		t.Error("recent run was purged")
	}
}

func TestOpenStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".council", "state.db")
	db, err := OpenStore(path)
	if err != nil {
		t.Fatalf("OpenStore failed: %v", err)
	}
	defer db.Close()
	if db.Path() != path {
		t.Errorf("Path() = %q", db.Path())
	}
	if _, err := db.ListRuns(1); err != nil {
		t.Errorf("ListRuns on fresh db: %v", err)
	}
}
