package worker

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"

	"github.com/angelmondragon/pastrypickup-backend/internal/loyalty"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
)

type fakeAccountLister struct {
	ids   []uuid.UUID
	pages int
}

func (f *fakeAccountLister) ListAccountIDs(_ context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	f.pages++
	start := 0
	if after != uuid.Nil {
		for i, id := range f.ids {
			if id == after {
				start = i + 1
				break
			}
		}
	}
	end := min(start+limit, len(f.ids))
	return f.ids[start:end], nil
}

type fakeReconciler struct {
	drift map[uuid.UUID]int64
	fail  map[uuid.UUID]bool
	heal  []bool
	seen  []uuid.UUID
}

func (f *fakeReconciler) Reconcile(_ context.Context, userID uuid.UUID, heal bool) (*loyalty.Reconciliation, error) {
	f.seen = append(f.seen, userID)
	f.heal = append(f.heal, heal)
	if f.fail[userID] {
		return nil, errors.New("boom")
	}
	drift := f.drift[userID]
	return &loyalty.Reconciliation{UserID: userID, Drift: drift, BalancesHealed: heal && drift != 0}, nil
}

func TestLoyaltyReconcileJobPagesThroughAccounts(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()}
	lister := &fakeAccountLister{ids: ids}
	ledger := &fakeReconciler{drift: map[uuid.UUID]int64{ids[3]: 50}}
	job, err := NewLoyaltyReconcileJob(LoyaltyReconcileJobParams{
		Logger:    logger.New(logger.Options{ServiceName: "worker-test"}),
		Accounts:  lister,
		Ledger:    ledger,
		BatchSize: 2,
		Heal:      true,
	})
	if err != nil {
		t.Fatalf("NewLoyaltyReconcileJob: %v", err)
	}
	if err := job.Run(context.Background()); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(ledger.seen) != len(ids) {
		t.Fatalf("expected %d accounts reconciled, got %d", len(ids), len(ledger.seen))
	}
	if lister.pages != 3 {
		t.Fatalf("expected 3 pages, got %d", lister.pages)
	}
	for _, heal := range ledger.heal {
		if !heal {
			t.Fatalf("expected heal flag to be forwarded")
		}
	}
}

func TestLoyaltyReconcileJobKeepsGoingAfterFailure(t *testing.T) {
	ids := []uuid.UUID{uuid.New(), uuid.New(), uuid.New()}
	ledger := &fakeReconciler{fail: map[uuid.UUID]bool{ids[0]: true}}
	job, err := NewLoyaltyReconcileJob(LoyaltyReconcileJobParams{
		Logger:   logger.New(logger.Options{ServiceName: "worker-test"}),
		Accounts: &fakeAccountLister{ids: ids},
		Ledger:   ledger,
	})
	if err != nil {
		t.Fatalf("NewLoyaltyReconcileJob: %v", err)
	}
	if err := job.Run(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(ledger.seen) != 3 {
		t.Fatalf("expected all accounts visited, got %d", len(ledger.seen))
	}
}
