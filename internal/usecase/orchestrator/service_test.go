package orchestrator

import (
	"context"
	"sync"
	"time"

	"sentinel/internal/bootstrap/config"
	"sentinel/internal/ports"
)

// fakeTracker is an in-memory IssueTracker recording every mutation.
type fakeTracker struct {
	mu       sync.Mutex
	issue    ports.Issue
	getErr   error
	comments []string
	setCalls [][]string
	removed  []string
	prs      []ports.PullRequestInput
	closed   []int

	commentErr error
	addErr     error
	setErr     error
	prErr      error
}

func (f *fakeTracker) GetIssue(ctx context.Context, number int) (ports.Issue, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return ports.Issue{}, f.getErr
	}
	issue := f.issue
	issue.Number = number
	return issue, nil
}

func (f *fakeTracker) AddComment(ctx context.Context, number int, body string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commentErr != nil {
		return f.commentErr
	}
	f.comments = append(f.comments, body)
	return nil
}

func (f *fakeTracker) AddLabels(ctx context.Context, number int, labels ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.addErr != nil {
		return f.addErr
	}
	f.issue.Labels = append(f.issue.Labels, labels...)
	return nil
}

func (f *fakeTracker) RemoveLabel(ctx context.Context, number int, label string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.removed = append(f.removed, label)
	next := f.issue.Labels[:0]
	for _, l := range f.issue.Labels {
		if l != label {
			next = append(next, l)
		}
	}
	f.issue.Labels = next
	return nil
}

func (f *fakeTracker) SetLabels(ctx context.Context, number int, labels []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.setErr != nil {
		return f.setErr
	}
	f.setCalls = append(f.setCalls, labels)
	f.issue.Labels = append([]string(nil), labels...)
	return nil
}

func (f *fakeTracker) CreatePullRequest(ctx context.Context, input ports.PullRequestInput) (ports.PullRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.prErr != nil {
		return ports.PullRequest{}, f.prErr
	}
	f.prs = append(f.prs, input)
	return ports.PullRequest{Number: 500 + len(f.prs), URL: "https://example.test/pr/1"}, nil
}

func (f *fakeTracker) CloseIssue(ctx context.Context, number int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, number)
	return nil
}

func (f *fakeTracker) labels() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.issue.Labels...)
}

func (f *fakeTracker) commentBodies() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.comments...)
}

// fakeRepo keeps deliveries and task runs in maps, matching the duplicate
// semantics of the sqlite repository.
type fakeRepo struct {
	mu         sync.Mutex
	deliveries map[string]ports.Delivery
	runs       map[string]ports.TaskRun
	order      []string
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		deliveries: make(map[string]ports.Delivery),
		runs:       make(map[string]ports.TaskRun),
	}
}

func (f *fakeRepo) InsertDelivery(ctx context.Context, delivery ports.Delivery) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.deliveries[delivery.DeliveryID]; ok {
		return ports.ErrDuplicateDelivery
	}
	f.deliveries[delivery.DeliveryID] = delivery
	return nil
}

func (f *fakeRepo) PruneDeliveriesBefore(ctx context.Context, cutoff string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var pruned int64
	for id, d := range f.deliveries {
		if d.ReceivedAt < cutoff {
			delete(f.deliveries, id)
			pruned++
		}
	}
	return pruned, nil
}

func (f *fakeRepo) InsertTaskRun(ctx context.Context, run ports.TaskRun) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs[run.RunID] = run
	f.order = append(f.order, run.RunID)
	return nil
}

func (f *fakeRepo) FinishTaskRun(ctx context.Context, runID string, outcome string, detail string, finishedAt string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	run, ok := f.runs[runID]
	if !ok {
		return ports.ErrTaskRunNotFound
	}
	run.Outcome = outcome
	run.Detail = detail
	run.FinishedAt = finishedAt
	f.runs[runID] = run
	return nil
}

func (f *fakeRepo) ListRecentTaskRuns(ctx context.Context, limit int) ([]ports.TaskRun, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.TaskRun, 0, len(f.order))
	for i := len(f.order) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.runs[f.order[i]])
	}
	return out, nil
}

func (f *fakeRepo) taskRuns() []ports.TaskRun {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]ports.TaskRun, 0, len(f.order))
	for _, id := range f.order {
		out = append(out, f.runs[id])
	}
	return out
}

type fakeUOW struct{}

func (fakeUOW) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

// fakeGit records operations and reports configurable change state.
type fakeGit struct {
	mu         sync.Mutex
	branches   []string
	commits    []string
	pushes     []string
	cleanups   []string
	hasChanges    bool
	branchErr     error
	hasChangesErr error
	commitErr     error
	pushErr       error
}

func (f *fakeGit) CurrentBranch(ctx context.Context) (string, error) { return "main", nil }

func (f *fakeGit) CreateBranch(ctx context.Context, name string, base string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.branchErr != nil {
		return f.branchErr
	}
	f.branches = append(f.branches, name)
	return nil
}

func (f *fakeGit) HasChanges(ctx context.Context) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.hasChangesErr != nil {
		return false, f.hasChangesErr
	}
	return f.hasChanges, nil
}

func (f *fakeGit) CommitAll(ctx context.Context, message string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.commitErr != nil {
		return "", f.commitErr
	}
	f.commits = append(f.commits, message)
	return "abc1234", nil
}

func (f *fakeGit) Push(ctx context.Context, name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.pushErr != nil {
		return f.pushErr
	}
	f.pushes = append(f.pushes, name)
	return nil
}

func (f *fakeGit) CleanupBranch(ctx context.Context, name string, base string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cleanups = append(f.cleanups, name)
	return nil
}

func (f *fakeGit) ConfigStatus(ctx context.Context) (GitConfigStatus, error) {
	return GitConfigStatus{UserName: "bot", UserEmail: "bot@example.test", Configured: true}, nil
}

func testConfig() config.Config {
	cfg := config.Config{}
	cfg.GitHub.Repo = "octo/demo"
	cfg.GitHub.Token = "test-token"
	cfg.GitHub.WebhookSecret = "secret"
	cfg.Labels.Ready = "ai-ready"
	cfg.Labels.Proposal = "ai-proposal-pending"
	cfg.Labels.Approved = "ai-approved"
	cfg.Labels.Working = "ai-working"
	cfg.Labels.Done = "ai-done"
	cfg.Labels.Rejected = "ai-rejected"
	cfg.Git.RepoDir = "/tmp/clone"
	cfg.Git.BaseBranch = "main"
	cfg.Git.BranchPrefix = "sentinel/issue-"
	cfg.Git.CommitPrefix = "feat: "
	cfg.Runner.Program = "gemini"
	cfg.Dispatcher.MaxConcurrent = 2
	cfg.Dispatcher.TaskTimeoutSeconds = 60
	cfg.Dispatcher.DedupWindowMinutes = 60
	return cfg
}

type testHarness struct {
	service *Service
	tracker *fakeTracker
	repo    *fakeRepo
	git     *fakeGit
}

func newTestService(cfg config.Config) *testHarness {
	tracker := &fakeTracker{}
	repo := newFakeRepo()
	git := &fakeGit{}

	s := NewService(cfg, tracker, repo, fakeUOW{}, NewExecutorWithProfile(ExecProfile{
		Programs: map[string]ProgramPolicy{},
	}))
	s.git = git
	s.now = func() time.Time { return time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC) }
	s.analyzeFn = func(ctx context.Context, issue ports.Issue) (string, error) {
		return "proposed fix", nil
	}
	s.implementFn = func(ctx context.Context, issue ports.Issue) (string, error) {
		return "implemented fix", nil
	}
	s.refineFn = func(ctx context.Context, issue ports.Issue, feedback string) (string, error) {
		return "refined: " + feedback, nil
	}

	return &testHarness{service: s, tracker: tracker, repo: repo, git: git}
}

func (h *testHarness) waitTasks(ctx context.Context) error {
	return h.service.dispatcher.Wait(ctx)
}
