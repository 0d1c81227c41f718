// Package council runs the fixed deliberation pipeline: a sequence of
// role-specific completion calls where each stage sees every earlier
// stage's output, ending in a synthesis that is normalised into a
// numbered recommendation list.
package council

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Stage names one role in the pipeline.
type Stage string

const (
	// StageCurator is the optional fast gatekeeper.
	StageCurator Stage = "Curator"
	// StageResearcher explores the topic.
	StageResearcher Stage = "Researcher"
	// StageCritic challenges the research.
	StageCritic Stage = "Critic"
	// StagePlanner structures the ideas into steps.
	StagePlanner Stage = "Planner"
	// StageJudge synthesises the final answer.
	StageJudge Stage = "Judge"
)

// Stages lists every stage in execution order.
var Stages = []Stage{StageCurator, StageResearcher, StageCritic, StagePlanner, StageJudge}

// Role holds a stage's instruction for normal and self-improvement runs.
// Instructions may use {recommendations} and {proposal_stages}, which are
// replaced with the configured counts.
type Role struct {
	Instruction string `yaml:"instruction"`
	SelfImprove string `yaml:"self_improve"`
}

// Roles maps each stage to its role text.
type Roles map[Stage]Role

// DefaultRoles returns the built-in role instructions.
func DefaultRoles() Roles {
	return Roles{
		StageCurator: {
			Instruction: "You are the Curator, the council's fast gatekeeper. Decide whether the message " +
				"needs a full council deliberation. If it is a greeting, a quick factual question or a " +
				"follow-up you can answer directly, answer it in a few sentences. If it deserves deeper " +
				"thought, restate the question in one sentence and end with: Ready for full council? (yes/no)",
			SelfImprove: "You are the Curator reviewing a request to improve this project's own source code. " +
				"Restate which part of the codebase the request concerns and what a successful change " +
				"would look like, in at most five sentences.",
		},
		StageResearcher: {
			Instruction: "You are the Researcher. Gather facts and explore bold options for the topic. " +
				"Cover several distinct directions, including unconventional ones, and note what each " +
				"depends on.",
			SelfImprove: "You are the Researcher analysing this project's codebase. Using the file list " +
				"provided, identify the components involved in the request, how they fit together and " +
				"where a change would have to be made.",
		},
		StageCritic: {
			Instruction: "You are the Critic. Challenge the earlier contributions: point out weaknesses, " +
				"risks, hidden assumptions and missing options. Be direct and specific.",
			SelfImprove: "You are the Critic reviewing a proposed change to this codebase. Point out risks " +
				"of breaking existing behaviour, missing tests and incomplete edits. Reject any plan " +
				"that relies on placeholder code.",
		},
		StagePlanner: {
			Instruction: "You are the Planner. Turn the research and critique into a structured plan with " +
				"clear, actionable steps, grouped into tracks where that helps.",
			SelfImprove: "You are the Planner. Break the change into exactly {proposal_stages} ordered " +
				"proposal stages. For each stage list the files to edit and what changes in them.",
		},
		StageJudge: {
			Instruction: "You are the Judge. Synthesise all contributions into one answer. Respond in " +
				"exactly this format:\n" +
				"Final Answer:\n" +
				"1. <recommendation>\n" +
				"(at least {recommendations} numbered recommendations, one per line)\n" +
				"Rationale: <a short explanation of how you weighed the council's input>",
			SelfImprove: "You are the Judge. Produce a concrete code change proposal in exactly these " +
				"sections:\n" +
				"PROPOSAL: <one paragraph describing the change>\n" +
				"FILES_TO_CHANGE:\n" +
				"<relative/path/to/file.go>\n" +
				"<the complete new file content, never abbreviated>\n" +
				"(repeat path and content for every file)\n" +
				"IMPACT: <what changes for users and callers>\n" +
				"ROLLBACK: <how to undo the change>\n" +
				"Always write full file contents. Never use placeholders or omit code.",
		},
	}
}

// instruction returns the stage's instruction with counts substituted.
func (r Roles) instruction(stage Stage, selfImprove bool, recommendations, proposalStages int) string {
	role := r[stage]
	text := role.Instruction
	if selfImprove && role.SelfImprove != "" {
		text = role.SelfImprove
	}
	return strings.NewReplacer(
		"{recommendations}", strconv.Itoa(recommendations),
		"{proposal_stages}", strconv.Itoa(proposalStages),
	).Replace(text)
}

// rolesFile is the on-disk layout of a roles override file, keyed by
// lower-case stage name.
type rolesFile map[string]Role

// LoadRoles reads role overrides from a YAML file and merges them over the
// defaults. Only non-empty fields replace a default.
func LoadRoles(path string) (Roles, error) {
	roles := DefaultRoles()
	if path == "" {
		return roles, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read roles file: %w", err)
	}

	var overrides rolesFile
	if err := yaml.Unmarshal(data, &overrides); err != nil {
		return nil, fmt.Errorf("parse roles file: %w", err)
	}

	for key, override := range overrides {
		stage, ok := stageByName(key)
		if !ok {
			return nil, fmt.Errorf("roles file: unknown stage %q", key)
		}
		role := roles[stage]
		if override.Instruction != "" {
			role.Instruction = override.Instruction
		}
		if override.SelfImprove != "" {
			role.SelfImprove = override.SelfImprove
		}
		roles[stage] = role
	}
	return roles, nil
}

func stageByName(name string) (Stage, bool) {
	for _, s := range Stages {
		if strings.EqualFold(string(s), strings.TrimSpace(name)) {
			return s, true
		}
	}
	return "", false
}
