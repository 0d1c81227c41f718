package council

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/ShayCichocki/council/internal/proposal"
)

// Synthesis markers in the Judge's output.
const (
	MarkerFinalAnswer = "Final Answer:"
	MarkerRationale   = "Rationale:"
)

const (
	// DefaultRecommendations is the minimum number of numbered items in a
	// final answer.
	DefaultRecommendations = 4
	// DefaultRationaleLimit caps the reasoning summary, in characters.
	DefaultRationaleLimit = 800

	rationaleMissing     = "Rationale not provided."
	rationaleSynthesized = "Synthesized from all agent inputs."
	truncationMarker     = " ...[truncated]"
)

// ParseSynthesis splits the Judge's output into the final answer and the
// rationale. With neither marker the whole output is the answer.
func ParseSynthesis(output string, rationaleLimit int) (answer, rationale string) {
	hasAnswer := proposal.Present(output, MarkerFinalAnswer)
	hasRationale := proposal.Present(output, MarkerRationale)
	sections := proposal.Sections(output, []string{MarkerFinalAnswer, MarkerRationale})

	switch {
	case hasAnswer && hasRationale:
		answer, rationale = sections[MarkerFinalAnswer], sections[MarkerRationale]
	case hasAnswer:
		answer, rationale = sections[MarkerFinalAnswer], rationaleMissing
	case hasRationale:
		answer = strings.TrimSpace(output[:strings.Index(output, MarkerRationale)])
		rationale = sections[MarkerRationale]
	default:
		answer, rationale = strings.TrimSpace(output), rationaleSynthesized
	}
	if rationale == "" {
		rationale = rationaleMissing
	}
	return answer, truncate(rationale, rationaleLimit)
}

func truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit]) + truncationMarker
}

// numberedItem matches a top-level numbered line such as "3. Do the thing".
var numberedItem = regexp.MustCompile(`(?m)^(\d+)\. `)

// fallbackRecommendations fill an answer that has too few numbered items.
var fallbackRecommendations = []string{
	"Start with a small, low-risk pilot to validate the core idea before committing fully.",
	"Define clear success metrics and review progress against them at regular checkpoints.",
	"Identify the main risks early and prepare a fallback plan for each.",
	"Gather feedback from the people most affected and adjust the plan accordingly.",
	"Document decisions and their reasoning so the approach can be revisited later.",
	"Schedule a follow-up review to decide whether to expand, adjust or stop.",
}

// CountRecommendations returns the number of top-level numbered items.
func CountRecommendations(answer string) int {
	return len(numberedItem.FindAllString(answer, -1))
}

// EnsureRecommendations appends fallback items until answer has at least n
// numbered items. New items continue after the highest existing number so
// no number repeats. An answer that already complies is returned unchanged.
func EnsureRecommendations(answer string, n int) string {
	matches := numberedItem.FindAllStringSubmatch(answer, -1)
	if len(matches) >= n {
		return answer
	}

	next := 1
	for _, m := range matches {
		if v, err := strconv.Atoi(m[1]); err == nil && v >= next {
			next = v + 1
		}
	}

	var b strings.Builder
	b.WriteString(strings.TrimRight(answer, " \t\r\n"))
	for i := 0; len(matches)+i < n; i++ {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString(strconv.Itoa(next + i))
		b.WriteString(". ")
		b.WriteString(fallbackRecommendations[i%len(fallbackRecommendations)])
	}
	return b.String()
}
