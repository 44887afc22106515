package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"wifiportal/internal/queue"
)

type Enqueuer interface {
	Enqueue(ctx context.Context, taskType string, fields map[string]any) error
}

type Sweeper interface {
	ExpireSessions(ctx context.Context) (int64, error)
}

// Scheduler triggers the session expiry sweep. With a queue the sweep is
// handed to the worker, otherwise it runs in this process.
type Scheduler struct {
	cron     *cron.Cron
	queue    Enqueuer
	sweeper  Sweeper
	schedule string
	log      zerolog.Logger
}

func NewScheduler(enqueuer Enqueuer, sweeper Sweeper, schedule string, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:     c,
		queue:    enqueuer,
		sweeper:  sweeper,
		schedule: schedule,
		log:      log,
	}
}

func (s *Scheduler) Start() error {
	if s.schedule == "" {
		return nil
	}
	if _, err := s.cron.AddFunc(s.schedule, s.sweep); err != nil {
		return err
	}
	s.cron.Start()
	return nil
}

// Stop halts the schedule and returns a context that is done once a running
// sweep has finished.
func (s *Scheduler) Stop() context.Context {
	return s.cron.Stop()
}

func (s *Scheduler) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.queue != nil {
		err := s.queue.Enqueue(ctx, queue.TaskExpireSessions, nil)
		if err == nil {
			return
		}
		s.log.Error().Err(err).Msg("enqueue expiry sweep failed, running inline")
	}

	if _, err := s.sweeper.ExpireSessions(ctx); err != nil {
		s.log.Error().Err(err).Msg("expiry sweep failed")
	}
}
