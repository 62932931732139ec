// Package orchestrator is the event-driven issue resolution core: webhook
// verification and classification, the label state machine dispatch, the
// bounded background-task dispatcher, and the guarded external-command
// boundary around the AI tool and git.
package orchestrator

import (
	"context"
	"time"

	"sentinel/internal/bootstrap/config"
	"sentinel/internal/domain/workflow"
	"sentinel/internal/ports"
)

type Service struct {
	cfg        config.Config
	labels     workflow.Labels
	tracker    ports.IssueTracker
	repo       ports.DeliveryRepository
	uow        ports.UnitOfWork
	executor   *Executor
	dispatcher *Dispatcher
	git        gitOps

	// Test seams; production wiring fills these with the executor-backed
	// defaults in NewService.
	analyzeFn   func(ctx context.Context, issue ports.Issue) (string, error)
	implementFn func(ctx context.Context, issue ports.Issue) (string, error)
	refineFn    func(ctx context.Context, issue ports.Issue, feedback string) (string, error)
	now         func() time.Time
}

// NewService wires the orchestration core. The executor is shared between
// the AI runner and git operations so both stay behind the same allow-list.
func NewService(
	cfg config.Config,
	tracker ports.IssueTracker,
	repo ports.DeliveryRepository,
	uow ports.UnitOfWork,
	executor *Executor,
) *Service {
	s := &Service{
		cfg:      cfg,
		labels:   labelsFromConfig(cfg.Labels),
		tracker:  tracker,
		repo:     repo,
		uow:      uow,
		executor: executor,
		git:      newGitRunner(executor, cfg.Git.RepoDir),
		now:      time.Now,
	}

	s.dispatcher = NewDispatcher(
		cfg.Dispatcher.MaxConcurrent,
		time.Duration(cfg.Dispatcher.TaskTimeoutSeconds)*time.Second,
	)

	s.analyzeFn = s.runAnalysisPrompt
	s.implementFn = s.runImplementationPrompt
	s.refineFn = s.runRefinePrompt

	return s
}

func labelsFromConfig(cfg config.LabelsConfig) workflow.Labels {
	return workflow.Labels{
		Ready:    cfg.Ready,
		Proposal: cfg.Proposal,
		Approved: cfg.Approved,
		Working:  cfg.Working,
		Done:     cfg.Done,
		Rejected: cfg.Rejected,
	}
}

// Labels exposes the configured stage labels (used by transport handlers).
func (s *Service) Labels() workflow.Labels { return s.labels }

// Executor exposes the command executor so the server can run its profile
// watcher.
func (s *Service) Executor() *Executor { return s.executor }

// Dispatcher exposes in-flight state for health and shutdown.
func (s *Service) Dispatcher() *Dispatcher { return s.dispatcher }

// RecentTaskRuns lists audit rows for dispatched tasks, most recent first.
func (s *Service) RecentTaskRuns(ctx context.Context, limit int) ([]ports.TaskRun, error) {
	return s.repo.ListRecentTaskRuns(ctx, limit)
}
