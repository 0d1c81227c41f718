// Package healing captures runtime failures with enough context to
// reproduce them, asks the council for a diagnosis and patch, and applies
// approved patches on a fresh branch behind a fail-fast test run.
package healing

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"runtime/debug"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/ShayCichocki/council/internal/git"
)

const (
	// maxFrames is how many innermost frames are kept as code context.
	maxFrames = 5
	// snippetRadius is the number of lines shown either side of a frame.
	snippetRadius = 3
	// summaryFrames is how many frames StackSummary reports.
	summaryFrames = 3
)

// CodeFrame is one stack frame with the surrounding source.
type CodeFrame struct {
	File     string `json:"file"`
	Line     int    `json:"line"`
	Function string `json:"function"`
	Snippet  string `json:"snippet"`
}

// SystemMetrics describes the process at capture time.
type SystemMetrics struct {
	PID      int   `json:"pid"`
	RSSBytes int64 `json:"rss_bytes"`
}

// ErrorContext is an immutable snapshot of a failure.
type ErrorContext struct {
	ErrorMessage  string            `json:"error_message"`
	StackTrace    string            `json:"stack_trace,omitempty"`
	Prompt        string            `json:"prompt,omitempty"`
	AgentState    map[string]string `json:"agent_state"`
	SystemMetrics SystemMetrics     `json:"system_metrics"`
	GitContext    map[string]string `json:"git_context"`
	// CodeContext runs from the outermost to the innermost kept frame.
	CodeContext []CodeFrame `json:"code_context"`
	Timestamp   float64     `json:"timestamp"`
}

// Capture builds ErrorContext values for a project.
type Capture struct {
	git git.ContextOperations
	now func() time.Time
}

// NewCapture creates a capture helper. g may be nil, in which case the git
// context is left empty.
func NewCapture(g git.ContextOperations) *Capture {
	return &Capture{git: g, now: time.Now}
}

// stackTracer is implemented by errors created with github.com/pkg/errors.
type stackTracer interface {
	StackTrace() errors.StackTrace
}

// FromError captures err. The stack recorded by the innermost pkg/errors
// value in the chain is used; otherwise the capture site's stack is.
func (c *Capture) FromError(ctx context.Context, err error, prompt string, agentState map[string]string) *ErrorContext {
	ec := c.base(ctx, errorMessage(err), prompt, agentState)

	if st := innermostStack(err); st != nil {
		ec.StackTrace = fmt.Sprintf("%+v", err)
		ec.CodeContext = codeContext(framesFromStack(st))
		return ec
	}

	frames := callerFrames(3)
	ec.StackTrace = err.Error() + "\n" + formatFrames(frames)
	ec.CodeContext = codeContext(frames)
	return ec
}

// FromPanic captures a recovered panic value. It must be called from the
// deferred function that recovered, so the panicking frames are still on
// the stack.
func (c *Capture) FromPanic(ctx context.Context, recovered any, prompt string, agentState map[string]string) *ErrorContext {
	var msg string
	switch v := recovered.(type) {
	case error:
		msg = errorMessage(v)
	default:
		msg = fmt.Sprintf("panic: %v", v)
	}
	ec := c.base(ctx, msg, prompt, agentState)
	ec.StackTrace = string(debug.Stack())
	ec.CodeContext = codeContext(callerFrames(3))
	return ec
}

// FromMessage captures a reported error string with no stack.
func (c *Capture) FromMessage(ctx context.Context, message, prompt string, agentState map[string]string) *ErrorContext {
	return c.base(ctx, message, prompt, agentState)
}

func (c *Capture) base(ctx context.Context, message, prompt string, agentState map[string]string) *ErrorContext {
	if agentState == nil {
		agentState = map[string]string{}
	}
	return &ErrorContext{
		ErrorMessage:  message,
		Prompt:        prompt,
		AgentState:    agentState,
		SystemMetrics: SystemMetrics{PID: os.Getpid(), RSSBytes: rssBytes()},
		GitContext:    c.gitContext(ctx),
		CodeContext:   []CodeFrame{},
		Timestamp:     float64(c.now().UnixNano()) / 1e9,
	}
}

func (c *Capture) gitContext(ctx context.Context) map[string]string {
	if c.git == nil {
		return map[string]string{"branch": "", "status": "", "diff_stat": "", "last_commit": ""}
	}
	return c.git.Context(ctx)
}

// errorMessage renders "<Type>: <message>" using the root cause's type.
func errorMessage(err error) string {
	if err == nil {
		return "UnknownError: <nil>"
	}
	return fmt.Sprintf("%s: %s", typeName(errors.Cause(err)), err.Error())
}

// genericErrorTypes carry no information beyond their message.
var genericErrorTypes = map[string]bool{
	"errors.errorString": true,
	"errors.fundamental": true,
	"errors.withStack":   true,
	"errors.withMessage": true,
	"fmt.wrapError":      true,
	"fmt.wrapErrors":     true,
}

func typeName(err error) string {
	name := strings.TrimPrefix(fmt.Sprintf("%T", err), "*")
	if genericErrorTypes[name] {
		return "Error"
	}
	return name
}

// innermostStack returns the deepest recorded stack in err's chain.
func innermostStack(err error) errors.StackTrace {
	var found errors.StackTrace
	for e := err; e != nil; {
		if st, ok := e.(stackTracer); ok {
			found = st.StackTrace()
		}
		u, ok := e.(interface{ Unwrap() error })
		if !ok {
			break
		}
		e = u.Unwrap()
	}
	return found
}

type frame struct {
	file     string
	line     int
	function string
}

// framesFromStack converts a pkg/errors stack, innermost first.
func framesFromStack(st errors.StackTrace) []frame {
	frames := make([]frame, 0, len(st))
	for _, f := range st {
		pc := uintptr(f) - 1
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}
		file, line := fn.FileLine(pc)
		frames = append(frames, frame{file: file, line: line, function: fn.Name()})
	}
	return filterRuntime(frames)
}

// callerFrames returns the current goroutine's stack, innermost first,
// skipping skip frames.
func callerFrames(skip int) []frame {
	pcs := make([]uintptr, 64)
	n := runtime.Callers(skip, pcs)
	iter := runtime.CallersFrames(pcs[:n])
	var frames []frame
	for {
		f, more := iter.Next()
		frames = append(frames, frame{file: f.File, line: f.Line, function: f.Function})
		if !more {
			break
		}
	}
	return filterRuntime(frames)
}

func filterRuntime(frames []frame) []frame {
	out := frames[:0]
	for _, f := range frames {
		if strings.HasPrefix(f.function, "runtime.") || f.function == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

func formatFrames(frames []frame) string {
	var b strings.Builder
	for _, f := range frames {
		fmt.Fprintf(&b, "%s\n\t%s:%d\n", f.function, f.file, f.line)
	}
	return b.String()
}

// codeContext keeps the innermost maxFrames frames, ordered outermost to
// innermost, each with a source snippet.
func codeContext(innerFirst []frame) []CodeFrame {
	n := len(innerFirst)
	if n > maxFrames {
		n = maxFrames
	}
	out := make([]CodeFrame, 0, n)
	for i := n - 1; i >= 0; i-- {
		f := innerFirst[i]
		out = append(out, CodeFrame{
			File:     f.file,
			Line:     f.line,
			Function: f.function,
			Snippet:  readSnippet(f.file, f.line, snippetRadius),
		})
	}
	return out
}

// readSnippet returns lines [line-radius, line+radius] of file, or "" if
// the file cannot be read.
func readSnippet(file string, line, radius int) string {
	data, err := os.ReadFile(filepath.Clean(file))
	if err != nil {
		return ""
	}
	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	start := line - radius - 1
	if start < 0 {
		start = 0
	}
	end := line + radius
	if end > len(lines) {
		end = len(lines)
	}
	if start >= end {
		return ""
	}
	return strings.Join(lines[start:end], "\n")
}

// StackSummary returns up to three innermost frames as
// "file:line in function", outermost first. Without code context the
// text stack trace is parsed instead.
func (ec *ErrorContext) StackSummary() []string {
	if len(ec.CodeContext) > 0 {
		frames := ec.CodeContext
		if len(frames) > summaryFrames {
			frames = frames[len(frames)-summaryFrames:]
		}
		out := make([]string, 0, len(frames))
		for _, f := range frames {
			out = append(out, fmt.Sprintf("%s:%d in %s", f.File, f.Line, f.Function))
		}
		return out
	}
	return summarizeTrace(ec.StackTrace)
}

// summarizeTrace parses Go stack text, where a function line is followed
// by a tab-indented "file:line" line, innermost first.
func summarizeTrace(trace string) []string {
	var entries []string
	lines := strings.Split(trace, "\n")
	for i := 1; i < len(lines); i++ {
		loc := lines[i]
		if !strings.HasPrefix(loc, "\t") || strings.HasPrefix(lines[i-1], "\t") {
			continue
		}
		loc = strings.TrimSpace(loc)
		if sp := strings.IndexByte(loc, ' '); sp >= 0 {
			loc = loc[:sp]
		}
		if !strings.Contains(loc, ".go:") {
			continue
		}
		fn := strings.TrimSpace(lines[i-1])
		if paren := strings.LastIndexByte(fn, '('); paren > 0 {
			fn = fn[:paren]
		}
		if strings.HasPrefix(fn, "runtime.") || strings.HasPrefix(fn, "runtime/") {
			continue
		}
		entries = append(entries, fmt.Sprintf("%s in %s", loc, fn))
		if len(entries) == summaryFrames {
			break
		}
	}
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if entries == nil {
		return []string{}
	}
	return entries
}
