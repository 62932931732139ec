package orchestrator

import (
	"context"
	"errors"
	"testing"
	"time"

	"sentinel/internal/ports"
)

func TestAdmitDeliveryRejectsReplay(t *testing.T) {
	h := newTestService(testConfig())
	event := labeledEvent("ai-ready", 7)
	event.DeliveryID = "replay-me"

	if err := h.service.admitDelivery(context.Background(), event); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	err := h.service.admitDelivery(context.Background(), event)
	if !errors.Is(err, ports.ErrDuplicateDelivery) {
		t.Fatalf("second admit error = %v, want ErrDuplicateDelivery", err)
	}
}

func TestAdmitDeliveryPrunesExpiredRecords(t *testing.T) {
	h := newTestService(testConfig())

	stale := labeledEvent("ai-ready", 1)
	stale.DeliveryID = "stale"
	if err := h.service.admitDelivery(context.Background(), stale); err != nil {
		t.Fatalf("admit stale: %v", err)
	}

	// jump past the dedup window and admit another delivery
	base := h.service.now()
	h.service.now = func() time.Time { return base.Add(2 * time.Hour) }

	fresh := labeledEvent("ai-ready", 2)
	fresh.DeliveryID = "fresh"
	if err := h.service.admitDelivery(context.Background(), fresh); err != nil {
		t.Fatalf("admit fresh: %v", err)
	}

	if _, ok := h.repo.deliveries["stale"]; ok {
		t.Fatal("expired delivery should have been pruned")
	}

	// the pruned id is admissible again
	if err := h.service.admitDelivery(context.Background(), stale); err != nil {
		t.Fatalf("re-admit after prune: %v", err)
	}
}
