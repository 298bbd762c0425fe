// services/scheduler.go
package services

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"go.uber.org/zap"
)

// StartEvictionScheduler sweeps the registry every interval. The caller shuts
// the returned scheduler down on exit.
func (reg *Registry) StartEvictionScheduler(ctx context.Context, interval time.Duration) (gocron.Scheduler, error) {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			sweepCtx, cancel := context.WithTimeout(ctx, interval)
			defer cancel()
			if n := reg.Sweep(sweepCtx); n > 0 {
				reg.logger.Info("[Scheduler] evicted rooms", zap.Int("count", n), zap.Int("live", reg.Live()))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("schedule eviction sweep: %w", err)
	}

	sched.Start()
	return sched, nil
}
