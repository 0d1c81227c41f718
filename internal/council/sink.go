package council

import (
	"context"
	"strings"

	"github.com/ShayCichocki/council/internal/api"
)

// Sink collects one stage's output from the gateway. The pipeline calls
// every stage through a Sink and never branches on streaming itself.
type Sink interface {
	Collect(ctx context.Context, gw api.Gateway, stage Stage, req api.Request) (string, error)
}

// BufferedSink issues one blocking completion per stage.
type BufferedSink struct{}

// Collect returns the full completion text.
func (BufferedSink) Collect(ctx context.Context, gw api.Gateway, _ Stage, req api.Request) (string, error) {
	return gw.Complete(ctx, req)
}

// StreamSink forwards fragments to callbacks as they arrive and returns the
// concatenated text.
type StreamSink struct {
	// OnStage is called before a stage's first request.
	OnStage func(stage Stage)
	// OnFragment receives every non-empty fragment.
	OnFragment func(stage Stage, fragment string)
}

// Collect ranges over the gateway stream. Cancelling ctx stops the stream
// at the next fragment.
func (s StreamSink) Collect(ctx context.Context, gw api.Gateway, stage Stage, req api.Request) (string, error) {
	if s.OnStage != nil {
		s.OnStage(stage)
	}
	var b strings.Builder
	for fragment, err := range gw.Stream(ctx, req) {
		if err != nil {
			return b.String(), err
		}
		if fragment == "" {
			continue
		}
		b.WriteString(fragment)
		if s.OnFragment != nil {
			s.OnFragment(stage, fragment)
		}
		if ctx.Err() != nil {
			return b.String(), ctx.Err()
		}
	}
	return b.String(), nil
}
