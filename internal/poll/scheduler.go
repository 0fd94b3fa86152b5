// Package poll runs periodic refresh tasks. Runs are serial per task, ticks
// that land while a run is in flight are skipped, re-entry aborts the
// in-flight run, and nothing runs while the workspace is hidden.
package poll

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/logger"
	"github.com/adamavenir/aioffice/internal/metrics"
)

// Task refreshes one resource. ctx is cancelled when the run is superseded,
// the workspace is hidden, or the job is cancelled; a task must not apply
// results once ctx is done.
type Task func(ctx context.Context) error

// Live reports whether a run's results may still be applied.
func Live(ctx context.Context) bool {
	return ctx.Err() == nil
}

// Scheduler owns a fleet of jobs sharing one visibility switch.
type Scheduler struct {
	vis *Visibility
	log *slog.Logger

	mu     sync.Mutex
	jobs   map[*Job]struct{}
	closed bool
}

// NewScheduler creates a scheduler. A nil vis means always visible.
func NewScheduler(vis *Visibility) *Scheduler {
	if vis == nil {
		vis = NewVisibility(true)
	}
	return &Scheduler{
		vis:  vis,
		log:  slog.Default().With("component", "poll"),
		jobs: make(map[*Job]struct{}),
	}
}

// Visibility returns the switch the scheduler observes.
func (s *Scheduler) Visibility() *Visibility { return s.vis }

// Option configures a scheduled job.
type Option func(*jobConfig)

type jobConfig struct {
	enabled   bool
	immediate bool
}

// Enabled sets whether the job starts enabled (default true).
func Enabled(enabled bool) Option {
	return func(c *jobConfig) { c.enabled = enabled }
}

// Deferred skips the run normally performed at install time.
func Deferred() Option {
	return func(c *jobConfig) { c.immediate = false }
}

// Schedule installs task to run every interval and returns its handle.
func (s *Scheduler) Schedule(name string, task Task, interval time.Duration, opts ...Option) *Job {
	cfg := jobConfig{enabled: true, immediate: true}
	for _, opt := range opts {
		opt(&cfg)
	}
	if interval <= 0 {
		interval = time.Second
	}
	j := &Job{
		name:  name,
		task:  task,
		s:     s,
		cmds:  make(chan jobCmd, 8),
		stop:  make(chan struct{}),
		done:  make(chan struct{}),
		runs:  new(atomic.Int64),
		guard: new(atomic.Bool),
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(j.done)
		return j
	}
	s.jobs[j] = struct{}{}
	s.mu.Unlock()

	go j.loop(interval, cfg)
	return j
}

// Close cancels every job and waits for in-flight runs to return.
func (s *Scheduler) Close() {
	s.mu.Lock()
	s.closed = true
	jobs := make([]*Job, 0, len(s.jobs))
	for j := range s.jobs {
		jobs = append(jobs, j)
	}
	s.mu.Unlock()
	for _, j := range jobs {
		j.Cancel()
	}
}

func (s *Scheduler) forget(j *Job) {
	s.mu.Lock()
	delete(s.jobs, j)
	s.mu.Unlock()
}

type jobCmdKind int

const (
	cmdRunNow jobCmdKind = iota
	cmdEnable
	cmdDisable
	cmdInterval
)

type jobCmd struct {
	kind     jobCmdKind
	interval time.Duration
}

// Job is the cancel handle of a scheduled task.
type Job struct {
	name string
	task Task
	s    *Scheduler

	cmds     chan jobCmd
	stop     chan struct{}
	done     chan struct{}
	stopOnce sync.Once

	runs  *atomic.Int64
	guard *atomic.Bool
}

// Name returns the job's task name.
func (j *Job) Name() string { return j.name }

// Runs returns how many runs have started.
func (j *Job) Runs() int64 { return j.runs.Load() }

// Running reports whether a run is in flight.
func (j *Job) Running() bool { return j.guard.Load() }

// RunNow aborts any in-flight run and starts a fresh one.
func (j *Job) RunNow() { j.send(jobCmd{kind: cmdRunNow}) }

// SetEnabled toggles the job; disabling aborts an in-flight run.
func (j *Job) SetEnabled(enabled bool) {
	if enabled {
		j.send(jobCmd{kind: cmdEnable})
		return
	}
	j.send(jobCmd{kind: cmdDisable})
}

// SetInterval changes the tick interval.
func (j *Job) SetInterval(d time.Duration) {
	if d > 0 {
		j.send(jobCmd{kind: cmdInterval, interval: d})
	}
}

// Cancel aborts the in-flight run, deinstalls the job and waits for it.
func (j *Job) Cancel() {
	j.stopOnce.Do(func() { close(j.stop) })
	<-j.done
}

func (j *Job) send(cmd jobCmd) {
	select {
	case j.cmds <- cmd:
	case <-j.done:
	}
}

func (j *Job) loop(interval time.Duration, cfg jobConfig) {
	defer close(j.done)
	defer j.s.forget(j)

	visCh, unsubscribe := j.s.vis.subscribe()
	defer unsubscribe()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	enabled := cfg.enabled
	visible := j.s.vis.Visible()

	var (
		cancelRun context.CancelFunc
		runDone   chan struct{}
		pending   bool
	)

	start := func() {
		base := metrics.WithTag(context.Background(), j.name)
		base = logger.WithFields(base, logger.Fields{Component: "poll", Task: j.name})
		ctx, cancel := context.WithCancel(base)
		cancelRun = cancel
		done := make(chan struct{})
		runDone = done
		j.guard.Store(true)
		j.runs.Add(1)
		go j.execute(ctx, done)
	}
	// reenter aborts an in-flight run and queues a fresh one for when it returns.
	reenter := func() {
		if runDone != nil {
			cancelRun()
			pending = true
			return
		}
		start()
	}

	if enabled && visible && cfg.immediate {
		start()
	}

	for {
		select {
		case <-j.stop:
			if runDone != nil {
				cancelRun()
				<-runDone
				j.guard.Store(false)
			}
			return

		case <-ticker.C:
			if enabled && visible && runDone == nil {
				start()
			}

		case v := <-visCh:
			visible = v
			if !visible {
				pending = false
				if runDone != nil {
					cancelRun()
				}
				continue
			}
			if enabled {
				reenter()
			}

		case cmd := <-j.cmds:
			switch cmd.kind {
			case cmdRunNow:
				if enabled && visible {
					reenter()
				}
			case cmdEnable:
				if !enabled {
					enabled = true
					if visible && runDone == nil {
						start()
					}
				}
			case cmdDisable:
				enabled = false
				pending = false
				if runDone != nil {
					cancelRun()
				}
			case cmdInterval:
				ticker.Reset(cmd.interval)
			}

		case <-runDone:
			cancelRun()
			cancelRun, runDone = nil, nil
			j.guard.Store(false)
			if pending && enabled && visible {
				pending = false
				start()
			}
		}
	}
}

func (j *Job) execute(ctx context.Context, done chan struct{}) {
	defer close(done)
	outcome := "ok"
	defer func() {
		if r := recover(); r != nil {
			outcome = "error"
			j.s.log.ErrorContext(ctx, "poll task panicked", "panic", fmt.Sprint(r))
		}
		metrics.RecordPollRun(ctx, j.name, outcome)
	}()

	err := j.task(ctx)
	switch {
	case err == nil:
	case ctx.Err() != nil || apperr.IsCancelled(err):
		outcome = "cancelled"
	default:
		outcome = "error"
		j.s.log.WarnContext(ctx, "poll task failed", "err", err)
	}
}
