package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sentinel/internal/ports"
)

var ErrRunnerTimedOut = errors.New("ai runner timed out")

const analysisSystemPrompt = `You are an AI assistant analyzing issues and proposing solutions.

IMPORTANT: This is the ANALYSIS phase only. Do NOT make any code changes or
modifications to files.

Provide:
- Your understanding of what the issue is asking for
- A detailed solution proposal (do not implement it yet)
- A step-by-step implementation plan
- Files that would need to be modified
- Potential risks or considerations

You will implement the solution only after human approval.`

const implementationSystemPrompt = `You are an AI assistant implementing approved solutions for issues.
You have access to the codebase and can make changes to fix the issue.

Implement the approved solution, make the necessary code changes, and
provide a summary of what was implemented. Only make changes that are
necessary to fix the issue.`

const refineSystemPrompt = `You are an AI assistant refining solution proposals based on human feedback.

Understand the feedback, address the concerns raised, and provide an
improved proposal that addresses both the original issue and the feedback.`

// invokeRunner shells out to the configured AI CLI through the executor, so
// the AI tool sits behind the same allow-list and timeout policy as git.
// runner.timeout_seconds caps the invocation on top of the profile timeout;
// the tighter of the two wins.
func (s *Service) invokeRunner(ctx context.Context, prompt string, dir string) (string, error) {
	if s.cfg.Runner.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(s.cfg.Runner.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	args := []string{"--prompt", prompt, "-y"}
	if model := strings.TrimSpace(s.cfg.Runner.Model); model != "" {
		args = append(args, "--model", model)
	}

	result, err := s.executor.Run(ctx, s.cfg.Runner.Program, args, dir)
	if err != nil {
		return "", err
	}
	if result.TimedOut {
		return "", ErrRunnerTimedOut
	}
	if result.ExitCode != 0 {
		detail := firstLine(result.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", result.ExitCode)
		}
		return "", fmt.Errorf("ai runner failed: %s", detail)
	}

	output := strings.TrimSpace(result.Stdout)
	if output == "" {
		return "", errors.New("ai runner produced no output")
	}
	return output, nil
}

func (s *Service) runAnalysisPrompt(ctx context.Context, issue ports.Issue) (string, error) {
	prompt := fmt.Sprintf(
		"System: %s\n\nUser: Please analyze this issue and propose a solution:\n\n**Issue #%d: %s**\n\n**Description:**\n%s\n\nProvide your analysis and proposed solution.",
		analysisSystemPrompt,
		issue.Number,
		issue.Title,
		orDefault(issue.Body, "No description provided"),
	)
	return s.invokeRunner(ctx, prompt, s.cfg.Git.RepoDir)
}

func (s *Service) runImplementationPrompt(ctx context.Context, issue ports.Issue) (string, error) {
	prompt := fmt.Sprintf(
		"System: %s\n\nUser: Please implement the approved solution for this issue:\n\n**Issue #%d: %s**\n\n**Original Description:**\n%s\n\nThe proposal approved on this issue is the plan of record. Implement it and summarize the changes made.",
		implementationSystemPrompt,
		issue.Number,
		issue.Title,
		orDefault(issue.Body, "No description provided"),
	)
	return s.invokeRunner(ctx, prompt, s.cfg.Git.RepoDir)
}

func (s *Service) runRefinePrompt(ctx context.Context, issue ports.Issue, feedback string) (string, error) {
	prompt := fmt.Sprintf(
		"System: %s\n\nUser: Please refine your proposal for this issue based on the feedback:\n\n**Issue #%d: %s**\n\n**Original Description:**\n%s\n\n**Human Feedback:**\n%s\n\nProvide a refined proposal that addresses the feedback.",
		refineSystemPrompt,
		issue.Number,
		issue.Title,
		orDefault(issue.Body, "No description provided"),
		feedback,
	)
	return s.invokeRunner(ctx, prompt, s.cfg.Git.RepoDir)
}

// RunnerAvailability probes the AI CLI with a version check.
type RunnerAvailability struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Detail    string `json:"detail,omitempty"`
}

func (s *Service) runnerAvailability(ctx context.Context) RunnerAvailability {
	result, err := s.executor.Run(ctx, s.cfg.Runner.Program, []string{"--version"}, "")
	if err != nil {
		return RunnerAvailability{Available: false, Detail: err.Error()}
	}
	if result.TimedOut || result.ExitCode != 0 {
		detail := firstLine(result.Stderr)
		if detail == "" {
			detail = fmt.Sprintf("exit code %d", result.ExitCode)
		}
		return RunnerAvailability{Available: false, Detail: detail}
	}
	return RunnerAvailability{Available: true, Version: firstLine(result.Stdout)}
}

func orDefault(value string, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
