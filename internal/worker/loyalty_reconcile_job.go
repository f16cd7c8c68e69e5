package worker

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/pastrypickup-backend/internal/loyalty"
	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
)

const defaultReconcileBatch = 200

type accountLister interface {
	ListAccountIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type reconciler interface {
	Reconcile(ctx context.Context, userID uuid.UUID, heal bool) (*loyalty.Reconciliation, error)
}

// LoyaltyReconcileJobParams configure the ledger drift sweep.
type LoyaltyReconcileJobParams struct {
	Logger    *logger.Logger
	Accounts  accountLister
	Ledger    reconciler
	BatchSize int
	Heal      bool
}

// NewLoyaltyReconcileJob walks every loyalty account and compares its cached
// balance with the transaction log.
func NewLoyaltyReconcileJob(params LoyaltyReconcileJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Accounts == nil {
		return nil, fmt.Errorf("account lister required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("loyalty service required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}
	return &loyaltyReconcileJob{
		logg:     params.Logger,
		accounts: params.Accounts,
		ledger:   params.Ledger,
		batch:    batch,
		heal:     params.Heal,
	}, nil
}

type loyaltyReconcileJob struct {
	logg     *logger.Logger
	accounts accountLister
	ledger   reconciler
	batch    int
	heal     bool
}

func (j *loyaltyReconcileJob) Name() string { return "loyalty-reconcile" }

func (j *loyaltyReconcileJob) Run(ctx context.Context) error {
	var (
		errs    error
		after   uuid.UUID
		checked int
		drifted int
		healed  int
	)
	for {
		ids, err := j.accounts.ListAccountIDs(ctx, after, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list loyalty accounts: %w", err))
		}
		for _, id := range ids {
			report, err := j.ledger.Reconcile(ctx, id, j.heal)
			if err != nil {
				errs = multierr.Append(errs, fmt.Errorf("reconcile %s: %w", id, err))
				continue
			}
			checked++
			if report.Drift != 0 {
				drifted++
			}
			if report.BalancesHealed || report.LevelHealed {
				healed++
			}
		}
		if len(ids) < j.batch {
			break
		}
		after = ids[len(ids)-1]
	}
	j.logg.Info(j.logg.WithFields(ctx, map[string]any{
		"checked": checked,
		"drifted": drifted,
		"healed":  healed,
	}), "loyalty reconcile complete")
	return errs
}
