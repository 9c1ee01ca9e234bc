package retention

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/orrn/labelspool/internal/logging"
)

// JobDeleter removes job history created before a cutoff.
type JobDeleter interface {
	DeleteJobsBefore(ctx context.Context, cutoff time.Time) (int64, error)
}

// Pruner deletes print job history older than the retention window once a
// day.
type Pruner struct {
	jobs     JobDeleter
	days     int
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPruner(jobs JobDeleter, days int, logger *zap.Logger) *Pruner {
	return &Pruner{
		jobs:     jobs,
		days:     days,
		interval: 24 * time.Hour,
		now:      time.Now,
		logger:   logging.OrNop(logger).Named("retention"),
		stopCh:   make(chan struct{}),
	}
}

// Start prunes once immediately and then daily. It does nothing when the
// retention window is zero.
func (p *Pruner) Start() {
	if p.days <= 0 {
		return
	}
	p.wg.Add(1)
	go p.run()
}

func (p *Pruner) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}

func (p *Pruner) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.RunOnce(context.Background())
	for {
		select {
		case <-p.stopCh:
			return
		case <-ticker.C:
			p.RunOnce(context.Background())
		}
	}
}

// RunOnce deletes jobs older than the retention window and returns how many
// were removed.
func (p *Pruner) RunOnce(ctx context.Context) int64 {
	cutoff := p.now().AddDate(0, 0, -p.days)
	deleted, err := p.jobs.DeleteJobsBefore(ctx, cutoff)
	if err != nil {
		p.logger.Error("failed to prune job history", zap.Time("cutoff", cutoff), zap.Error(err))
		return 0
	}
	if deleted > 0 {
		p.logger.Info("pruned job history", zap.Int64("deleted", deleted), zap.Time("cutoff", cutoff))
	}
	return deleted
}
