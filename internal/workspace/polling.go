package workspace

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/adamavenir/aioffice/internal/api"
	"github.com/adamavenir/aioffice/internal/config"
	"github.com/adamavenir/aioffice/internal/poll"
	"github.com/adamavenir/aioffice/internal/types"
)

// Polling job names. They double as request-meter tags.
const (
	jobChannels  = "channels"
	jobAgents    = "agents"
	jobActivity  = "activity"
	jobProviders = "providers"
	jobProcesses = "processes"
	jobAudit     = "audit"
	jobConsole   = "console"
	jobApprovals = "approvals"
	jobTasks     = "tasks"
)

// ActivityLimit bounds the channel activity poll.
const ActivityLimit = 50

// AuditLimit bounds the audit poll.
const AuditLimit = 50

// tasksInterval is fixed; the board is also refreshed after every move.
const tasksInterval = 20 * time.Second

func intervals(p config.PollingConfig) map[string]time.Duration {
	return map[string]time.Duration{
		jobChannels:  p.Channels,
		jobAgents:    p.Agents,
		jobActivity:  p.Activity,
		jobProviders: p.Providers,
		jobProcesses: p.Processes,
		jobAudit:     p.Audit,
		jobConsole:   p.Console,
		jobApprovals: p.Approvals,
		jobTasks:     tasksInterval,
	}
}

func (w *Workspace) installPolling(p config.PollingConfig) {
	tasks := map[string]poll.Task{
		jobChannels:  w.pollChannels,
		jobAgents:    w.pollAgents,
		jobActivity:  w.pollActivity,
		jobProviders: w.pollProviders,
		jobProcesses: w.pollProcesses,
		jobAudit:     w.pollAudit,
		jobConsole:   w.pollConsole,
		jobApprovals: w.pollApprovals,
		jobTasks:     w.pollTasks,
	}
	w.jobs = make(map[string]*poll.Job, len(tasks))
	for name, every := range intervals(p) {
		w.jobs[name] = w.sched.Schedule(name, tasks[name], every)
	}
}

func (w *Workspace) runJob(name string) {
	if j, ok := w.jobs[name]; ok {
		j.RunNow()
	}
}

// Refresh re-runs every poller now.
func (w *Workspace) Refresh() {
	for _, j := range w.jobs {
		j.RunNow()
	}
}

// ApplyConfig hot-applies polling intervals and the beep flag.
func (w *Workspace) ApplyConfig(cfg *config.Config) {
	w.mu.Lock()
	w.cfg = cfg
	w.mu.Unlock()
	w.beep.Store(cfg.Notifications.BeepEnabled())
	for name, every := range intervals(cfg.Polling) {
		if j, ok := w.jobs[name]; ok {
			j.SetInterval(every)
		}
	}
	w.log.Info("configuration reloaded")
}

// WatchConfig reloads path on change until ctx is done.
func (w *Workspace) WatchConfig(ctx context.Context, path string) error {
	return config.Watch(ctx, path, w.ApplyConfig)
}

// Config returns the active configuration.
func (w *Workspace) Config() *config.Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.cfg
}

func (w *Workspace) pollChannels(ctx context.Context) error {
	list, err := w.client.ListChannels(ctx)
	if err != nil {
		return err
	}
	if !poll.Live(ctx) {
		return nil
	}
	keep := make(map[string]bool, len(list))
	for _, c := range list {
		keep[c.ID] = true
	}
	w.mu.Lock()
	var gone []string
	for _, c := range w.channels {
		if !keep[c.ID] {
			gone = append(gone, c.ID)
		}
	}
	w.channels = list
	w.mu.Unlock()

	for _, id := range gone {
		w.Unread.Forget(id)
	}
	w.changed(jobChannels)
	return nil
}

func (w *Workspace) pollAgents(ctx context.Context) error {
	agents, err := w.client.ListAgents(ctx, false)
	if err != nil {
		return err
	}
	if !poll.Live(ctx) {
		return nil
	}
	w.mu.Lock()
	w.agents = agents
	w.mu.Unlock()
	w.changed(jobAgents)
	return nil
}

func (w *Workspace) pollActivity(ctx context.Context) error {
	activity, err := w.client.ChannelActivity(ctx, ActivityLimit)
	if err != nil {
		return err
	}
	if !poll.Live(ctx) {
		return nil
	}
	w.Unread.Apply(ctx, activity, w.channelIDs())
	w.changed(jobActivity)
	return nil
}

func (w *Workspace) pollProviders(ctx context.Context) error {
	next := make(map[types.Backend]bool, len(types.Backends))
	var errs []error
	for _, b := range types.Backends {
		ok, err := w.client.ProviderStatus(ctx, b)
		if err != nil {
			if !poll.Live(ctx) {
				return nil
			}
			errs = append(errs, fmt.Errorf("%s: %w", b, err))
		}
		next[b] = ok
	}
	if !poll.Live(ctx) {
		return nil
	}
	w.mu.Lock()
	w.health = next
	w.mu.Unlock()
	w.changed(jobProviders)
	return errors.Join(errs...)
}

func (w *Workspace) pollProcesses(ctx context.Context) error {
	procs, err := w.client.Processes(ctx)
	if err != nil {
		return err
	}
	if !poll.Live(ctx) {
		return nil
	}
	w.mu.Lock()
	w.processes = procs
	w.mu.Unlock()
	w.changed(jobProcesses)
	return nil
}

func (w *Workspace) pollAudit(ctx context.Context) error {
	channel := w.Channel()
	if channel == "" {
		return nil
	}
	entries, err := w.client.Audit(ctx, channel, AuditLimit)
	if err != nil {
		return err
	}
	if !poll.Live(ctx) || channel != w.Channel() {
		return nil
	}
	w.mu.Lock()
	w.audit = entries
	w.mu.Unlock()
	w.changed(jobAudit)
	return nil
}

func (w *Workspace) pollConsole(ctx context.Context) error {
	channel := w.Channel()
	if channel == "" {
		return nil
	}
	events, err := w.client.ConsoleEvents(ctx, channel)
	if err != nil {
		return err
	}
	if !poll.Live(ctx) || channel != w.Channel() {
		return nil
	}
	w.mu.Lock()
	w.console = events
	w.mu.Unlock()
	w.changed(jobConsole)
	return nil
}

func (w *Workspace) pollApprovals(ctx context.Context) error {
	pending, err := w.client.PendingApprovals(ctx)
	if err != nil {
		return err
	}
	if !poll.Live(ctx) {
		return nil
	}
	w.mu.Lock()
	w.approvals = pending
	w.mu.Unlock()
	w.changed(jobApprovals)
	return nil
}

func (w *Workspace) pollTasks(ctx context.Context) error {
	p := w.Project()
	if p == nil {
		return nil
	}
	tasks, err := w.client.ListTasks(ctx, api.TaskFilter{Project: p.Project, Branch: p.Branch})
	if err != nil {
		return err
	}
	if !poll.Live(ctx) || !sameProject(p, w.Project()) {
		return nil
	}
	w.mu.Lock()
	w.tasks = tasks
	w.mu.Unlock()
	w.changed(jobTasks)
	return nil
}

func (w *Workspace) channelIDs() []string {
	w.mu.Lock()
	defer w.mu.Unlock()
	ids := make([]string, 0, len(w.channels))
	for _, c := range w.channels {
		ids = append(ids, c.ID)
	}
	return ids
}

// Snapshot is a consistent copy of the polled resources.
type Snapshot struct {
	Channels  []types.Channel
	Agents    []types.Agent
	Tasks     []types.Task
	Processes []types.Process
	Audit     []types.AuditEntry
	Console   []types.ConsoleEvent
	Approvals []types.Approval
	Health    map[types.Backend]bool
	Project   *types.ActiveProject
	Banner    string
}

// Snapshot returns the polled state.
func (w *Workspace) Snapshot() Snapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	s := Snapshot{
		Channels:  append([]types.Channel(nil), w.channels...),
		Agents:    append([]types.Agent(nil), w.agents...),
		Tasks:     append([]types.Task(nil), w.tasks...),
		Processes: append([]types.Process(nil), w.processes...),
		Audit:     append([]types.AuditEntry(nil), w.audit...),
		Console:   append([]types.ConsoleEvent(nil), w.console...),
		Approvals: append([]types.Approval(nil), w.approvals...),
		Health:    make(map[types.Backend]bool, len(w.health)),
		Banner:    w.banner,
	}
	for k, v := range w.health {
		s.Health[k] = v
	}
	if w.project != nil {
		p := *w.project
		s.Project = &p
	}
	return s
}
