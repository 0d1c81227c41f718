package council

import (
	"context"
	"iter"
	"strings"
	"sync"

	"github.com/ShayCichocki/council/internal/api"
	"github.com/ShayCichocki/council/internal/proposal"
	"github.com/ShayCichocki/council/internal/selfimprove"
)

// mockGateway answers each call in order from responses and records the
// requests it saw. failAt makes the call with that index return err.
type mockGateway struct {
	mu        sync.Mutex
	responses []string
	failAt    int
	err       error
	requests  []api.Request
	// block makes calls wait for ctx to end.
	block bool
}

func newMockGateway(responses ...string) *mockGateway {
	return &mockGateway{responses: responses, failAt: -1}
}

func (m *mockGateway) next(ctx context.Context, req api.Request) (string, error) {
	m.mu.Lock()
	idx := len(m.requests)
	m.requests = append(m.requests, req)
	block := m.block
	m.mu.Unlock()

	if block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	if idx == m.failAt {
		return "", m.err
	}
	if idx < len(m.responses) {
		return m.responses[idx], nil
	}
	return "", nil
}

func (m *mockGateway) Complete(ctx context.Context, req api.Request) (string, error) {
	return m.next(ctx, req)
}

func (m *mockGateway) Stream(ctx context.Context, req api.Request) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		out, err := m.next(ctx, req)
		if err != nil {
			yield("", err)
			return
		}
		for _, word := range strings.SplitAfter(out, " ") {
			if !yield(word, nil) {
				return
			}
		}
	}
}

func (m *mockGateway) Name() string { return "mock" }

func (m *mockGateway) calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// systemPrompts returns the system message of every recorded request.
func (m *mockGateway) systemPrompts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []string
	for _, r := range m.requests {
		out = append(out, r.Messages[0].Content)
	}
	return out
}

// mockApplier records apply and reject calls.
type mockApplier struct {
	applied  []*proposal.Proposal
	rejected []*proposal.Proposal
	err      error
}

func (m *mockApplier) Apply(_ context.Context, p *proposal.Proposal, _ string) (*selfimprove.ApplyResult, error) {
	m.applied = append(m.applied, p)
	if m.err != nil {
		return &selfimprove.ApplyResult{Branch: "self-improve/proposal-x"}, m.err
	}
	return &selfimprove.ApplyResult{Branch: "self-improve/proposal-x", Message: "Applied 1 file(s) on branch self-improve/proposal-x"}, nil
}

func (m *mockApplier) Reject(_ context.Context, p *proposal.Proposal) error {
	m.rejected = append(m.rejected, p)
	return nil
}

// mockRecorder collects recorded runs.
type mockRecorder struct {
	runs []*Result
}

func (m *mockRecorder) RecordRun(_ context.Context, r *Result) error {
	m.runs = append(m.runs, r)
	return nil
}
