package ports

import (
	"context"
	"errors"
)

var (
	ErrDuplicateDelivery = errors.New("duplicate delivery")
	ErrTaskRunNotFound   = errors.New("task run not found")
)

// TimestampLayout formats persisted timestamps with fixed-width
// nanoseconds so string comparison matches chronological order.
const TimestampLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Delivery is one recorded webhook delivery, kept for the dedup window.
type Delivery struct {
	DeliveryID  string
	IssueNumber int
	EventKind   string
	Label       string
	PayloadSHA  string
	ReceivedAt  string
}

// TaskRun is the audit row for one dispatched background task.
type TaskRun struct {
	RunID       string
	IssueNumber int
	Action      string
	Outcome     string
	Detail      string
	StartedAt   string
	FinishedAt  string
}

type DeliveryRepository interface {
	// InsertDelivery records a delivery; a repeated delivery identifier
	// returns ErrDuplicateDelivery.
	InsertDelivery(ctx context.Context, delivery Delivery) error
	PruneDeliveriesBefore(ctx context.Context, cutoff string) (int64, error)

	InsertTaskRun(ctx context.Context, run TaskRun) error
	FinishTaskRun(ctx context.Context, runID string, outcome string, detail string, finishedAt string) error
	ListRecentTaskRuns(ctx context.Context, limit int) ([]TaskRun, error)
}
