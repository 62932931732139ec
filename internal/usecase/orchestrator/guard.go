package orchestrator

import (
	"context"
	"log/slog"
	"time"

	"sentinel/internal/bootstrap/logging"
	"sentinel/internal/domain/workflow"
	"sentinel/internal/ports"
)

// admitDelivery records a delivery inside one transaction and drops exact
// replays via the delivery-id primary key. Rows older than the dedup window
// are pruned on the way through, keeping the set bounded. This guards
// against redelivery only; concurrent double-processing of one issue is
// stopped by the dispatcher's in-flight registry.
func (s *Service) admitDelivery(ctx context.Context, event workflow.Event) error {
	now := s.now()
	window := time.Duration(s.cfg.Dispatcher.DedupWindowMinutes) * time.Minute
	if window <= 0 {
		window = time.Hour
	}

	return s.uow.WithTx(ctx, func(txCtx context.Context) error {
		if err := s.repo.InsertDelivery(txCtx, ports.Delivery{
			DeliveryID:  event.DeliveryID,
			IssueNumber: event.IssueNumber,
			EventKind:   string(event.Kind),
			Label:       event.Label,
			PayloadSHA:  event.PayloadSHA,
			ReceivedAt:  nowUTCString(now),
		}); err != nil {
			return err
		}

		cutoff := nowUTCString(now.Add(-window))
		pruned, err := s.repo.PruneDeliveriesBefore(txCtx, cutoff)
		if err != nil {
			return err
		}
		if pruned > 0 {
			logging.Debug(ctx, "pruned expired deliveries", slog.Int64("count", pruned))
		}
		return nil
	})
}
