package sweeper

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
)

// Scheduler runs the sweep on a fixed configurable interval, off the
// request path.
type Scheduler struct {
	scheduler *gocron.Scheduler
}

func Start(sw *Sweeper, interval time.Duration) (*Scheduler, error) {
	scheduler := gocron.NewScheduler(time.UTC)

	_, err := scheduler.Every(interval).Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		if err := sw.RunOnce(ctx); err != nil {
			sw.Log.Error("block sweep failed", "error", err)
		}
	})
	if err != nil {
		return nil, err
	}

	scheduler.StartAsync()
	return &Scheduler{scheduler: scheduler}, nil
}

func (s *Scheduler) Stop() {
	if s.scheduler != nil {
		s.scheduler.Stop()
	}
}
