package statuscache

import (
	"context"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// Sweeper runs Store.Sweep on a cron schedule, independent of reads and
// writes.
type Sweeper struct {
	store  Store
	cron   *cron.Cron
	logger *slog.Logger
}

// NewSweeper schedules sweeps according to schedule (cron spec or
// descriptor such as "@every 1m").
func NewSweeper(store Store, schedule string, logger *slog.Logger) (*Sweeper, error) {
	s := &Sweeper{
		store:  store,
		cron:   cron.New(),
		logger: logger,
	}

	_, err := s.cron.AddFunc(schedule, func() {
		removed, err := s.store.Sweep(context.Background())
		if err != nil {
			s.logger.Warn("status cache sweep failed", slog.String("error", err.Error()))
			return
		}
		if removed > 0 {
			s.logger.Debug("status cache sweep", slog.Int("removed", removed))
		}
	})
	if err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Sweeper) Start() {
	s.cron.Start()
}

// Stop halts scheduling and waits for a running sweep to finish.
func (s *Sweeper) Stop() {
	<-s.cron.Stop().Done()
}
