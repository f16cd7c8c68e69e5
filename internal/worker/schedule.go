package worker

import (
	"context"
	"fmt"
	"time"
)

// Job is one unit of background work. Run should return once its batch is done;
// the service calls it again on a later cycle.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

type slot struct {
	job     Job
	every   time.Duration
	lastRun time.Time
}

func (s *slot) due(now time.Time) bool {
	return s.every <= 0 || s.lastRun.IsZero() || now.Sub(s.lastRun) >= s.every
}

// Schedule lists jobs in the order they run within a cycle. A job added with
// every <= 0 runs on each cycle; otherwise it is skipped until every has
// elapsed since its last run.
type Schedule struct {
	slots []*slot
}

func (s *Schedule) Add(job Job, every time.Duration) error {
	if job == nil {
		return fmt.Errorf("nil job")
	}
	for _, existing := range s.slots {
		if existing.job.Name() == job.Name() {
			return fmt.Errorf("job %q scheduled twice", job.Name())
		}
	}
	s.slots = append(s.slots, &slot{job: job, every: every})
	return nil
}

// Names lists scheduled jobs in run order.
func (s *Schedule) Names() []string {
	names := make([]string, len(s.slots))
	for i, sl := range s.slots {
		names[i] = sl.job.Name()
	}
	return names
}

func (s *Schedule) due(now time.Time) []*slot {
	var out []*slot
	for _, sl := range s.slots {
		if sl.due(now) {
			out = append(out, sl)
		}
	}
	return out
}
