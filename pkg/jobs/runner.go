package jobs

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Task is the unit of work executed on each tick.
type Task func(context.Context) error

// RunnerConfig configures periodic execution behaviour.
type RunnerConfig struct {
	Interval   time.Duration
	RunAtStart bool
	Logger     *zap.Logger
}

// Runner executes a task on a fixed cadence until stopped.
type Runner struct {
	name     string
	task     Task
	interval time.Duration
	runFirst bool
	logger   *zap.Logger

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	started bool
}

// NewRunner builds a runner executing task every cfg.Interval.
func NewRunner(name string, task Task, cfg RunnerConfig) *Runner {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Hour
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Runner{
		name:     name,
		task:     task,
		interval: cfg.Interval,
		runFirst: cfg.RunAtStart,
		logger:   cfg.Logger,
	}
}

// Start launches the tick loop. Safe to call once.
func (r *Runner) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return
	}
	r.ctx, r.cancel = context.WithCancel(ctx)
	r.wg.Add(1)
	go r.loop()
	r.started = true
	r.logger.Sugar().Infow("runner started", "runner", r.name, "interval", r.interval)
}

// Stop cancels the loop and waits for the in-flight tick to finish.
func (r *Runner) Stop() {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return
	}
	r.cancel()
	r.mu.Unlock()
	r.wg.Wait()
	r.logger.Sugar().Infow("runner stopped", "runner", r.name)
}

func (r *Runner) loop() {
	defer r.wg.Done()

	if r.runFirst {
		r.tick()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.ctx.Done():
			return
		case <-ticker.C:
			r.tick()
		}
	}
}

func (r *Runner) tick() {
	start := time.Now()
	if err := r.task(r.ctx); err != nil {
		r.logger.Sugar().Errorw("runner tick failed", "runner", r.name, "error", err)
		return
	}
	r.logger.Sugar().Debugw("runner tick completed", "runner", r.name, "duration", time.Since(start))
}
