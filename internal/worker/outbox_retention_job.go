package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/pastrypickup-backend/pkg/logger"
)

const defaultOutboxRetention = 30 * 24 * time.Hour

type publishedPruner interface {
	DeletePublishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// jobFunc adapts a plain function to Job.
type jobFunc struct {
	name string
	run  func(ctx context.Context) error
}

func (f jobFunc) Name() string                  { return f.name }
func (f jobFunc) Run(ctx context.Context) error { return f.run(ctx) }

// NewOutboxRetentionJob prunes delivered outbox rows older than keep. Failed
// and dead rows are left for inspection.
func NewOutboxRetentionJob(logg *logger.Logger, repo publishedPruner, keep time.Duration) (Job, error) {
	return newOutboxRetentionJob(logg, repo, keep, time.Now)
}

func newOutboxRetentionJob(logg *logger.Logger, repo publishedPruner, keep time.Duration, now func() time.Time) (Job, error) {
	if logg == nil || repo == nil {
		return nil, fmt.Errorf("logger and outbox repository required")
	}
	if keep <= 0 {
		keep = defaultOutboxRetention
	}
	return jobFunc{name: "outbox-retention", run: func(ctx context.Context) error {
		cutoff := now().UTC().Add(-keep)
		n, err := repo.DeletePublishedBefore(ctx, cutoff)
		if err != nil {
			return fmt.Errorf("prune outbox before %s: %w", cutoff.Format(time.RFC3339), err)
		}
		if n > 0 {
			logg.Info(logg.WithField(ctx, "rows_deleted", n), "outbox pruned")
		}
		return nil
	}}, nil
}
