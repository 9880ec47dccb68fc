// Package pool runs the bounded worker pool plus a janitor that returns
// stuck jobs to the queue.
package pool

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/caseforge/docstream/internal/queue"
	"github.com/caseforge/docstream/internal/statuscache"
	"github.com/caseforge/docstream/internal/worker"
)

type WorkerPool struct {
	workers      []*worker.Worker
	repo         queue.JobRepoInterface
	lockDuration time.Duration
	logger       *slog.Logger
	wg           sync.WaitGroup
	ctx          context.Context
	cancel       context.CancelFunc
}

func NewWorkerPool(
	count int,
	repo queue.JobRepoInterface,
	registry *worker.Registry,
	store statuscache.Store,
	lockDuration time.Duration,
	logger *slog.Logger,
) *WorkerPool {
	ctx, cancel := context.WithCancel(context.Background())
	p := &WorkerPool{repo: repo, lockDuration: lockDuration, logger: logger, ctx: ctx, cancel: cancel}

	for i := 1; i <= count; i++ {
		id := fmt.Sprintf("worker-%d", i)
		p.workers = append(p.workers, worker.New(id, repo, registry, store, lockDuration, logger))
	}
	return p
}

func (p *WorkerPool) Start() {
	for _, w := range p.workers {
		w.Start(p.ctx)
	}

	p.wg.Add(1)
	go p.janitor()
}

// janitor recovers jobs whose worker died while holding the lock.
func (p *WorkerPool) janitor() {
	defer p.wg.Done()
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			stuck, err := p.repo.ListStuck(p.ctx, p.lockDuration*2)
			if err != nil {
				p.logger.Warn("janitor list failed", slog.String("error", err.Error()))
				continue
			}
			for _, j := range stuck {
				p.logger.Warn("recovering stuck job", slog.String("job_id", j.ID))
				if err := p.repo.Release(p.ctx, j.ID); err != nil {
					p.logger.Warn("release failed", slog.String("job_id", j.ID), slog.String("error", err.Error()))
				}
			}
		case <-p.ctx.Done():
			return
		}
	}
}

func (p *WorkerPool) Stop() {
	p.cancel()
	for _, w := range p.workers {
		w.Stop()
	}
	p.wg.Wait()
}
