// Package workspace composes the stream, unread, spec, layout, settings and
// guidance engines behind one handle and drives the polling fleet.
package workspace

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/adamavenir/aioffice/internal/api"
	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/beginner"
	"github.com/adamavenir/aioffice/internal/bus"
	"github.com/adamavenir/aioffice/internal/config"
	"github.com/adamavenir/aioffice/internal/kv"
	"github.com/adamavenir/aioffice/internal/layout"
	"github.com/adamavenir/aioffice/internal/logger"
	"github.com/adamavenir/aioffice/internal/poll"
	"github.com/adamavenir/aioffice/internal/settings"
	"github.com/adamavenir/aioffice/internal/specdoc"
	"github.com/adamavenir/aioffice/internal/stream"
	"github.com/adamavenir/aioffice/internal/types"
	"github.com/adamavenir/aioffice/internal/unread"
	"github.com/adamavenir/aioffice/internal/wizard"
)

// Options wires a workspace to its collaborators.
type Options struct {
	Client *api.Client
	Store  *kv.Store
	// Dialer opens push links; nil runs chat on REST history alone.
	Dialer stream.Dialer
	// Notifier overrides the beep notifier.
	Notifier unread.Notifier
	// Visibility is shared with the polling fleet; nil means visible.
	Visibility *poll.Visibility
	// Backoff overrides the push reconnect backoff.
	Backoff stream.Backoff
}

// Workspace is the client state for one signed-in session.
type Workspace struct {
	client *api.Client
	store  *kv.Store
	log    *slog.Logger

	Bus      *bus.Bus
	Layers   *bus.Layers
	Stream   *stream.Controller
	Unread   *unread.Engine
	Layout   *layout.Engine
	Settings *settings.Engine
	Guidance *beginner.Tracker

	sched *poll.Scheduler
	jobs  map[string]*poll.Job
	beep  atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu         sync.Mutex
	cfg        *config.Config
	channels   []types.Channel
	agents     []types.Agent
	tasks      []types.Task
	processes  []types.Process
	audit      []types.AuditEntry
	console    []types.ConsoleEvent
	approvals  []types.Approval
	health     map[types.Backend]bool
	project    *types.ActiveProject
	editor     *specdoc.Editor
	draft      *wizard.Wizard
	view       beginner.View
	banner     string
	selectSeq  uint64
	closed     bool
}

// Open builds a workspace and starts its polling fleet.
func Open(cfg *config.Config, opts Options) *Workspace {
	ctx, cancel := context.WithCancel(context.Background())
	w := &Workspace{
		client:   opts.Client,
		store:    opts.Store,
		log:      slog.Default().With("component", "workspace"),
		Bus:      bus.New(),
		Layers:   bus.NewLayers(),
		Layout:   layout.New(opts.Store),
		Settings: settings.New(opts.Client, opts.Store),
		Guidance: beginner.NewTracker(opts.Store),
		sched:    poll.NewScheduler(opts.Visibility),
		ctx:      ctx,
		cancel:   cancel,
		cfg:      cfg,
		health:   make(map[types.Backend]bool),
		view:     beginner.ViewChat,
	}
	w.beep.Store(cfg.Notifications.BeepEnabled())

	notifier := opts.Notifier
	if notifier == nil {
		notifier = unread.NewBeepNotifier(w.beep.Load, cfg.Notifications.Desktop)
	}
	w.Unread = unread.New(opts.Store, notifier)
	w.Stream = stream.NewController(stream.Options{
		Backend:  opts.Client,
		Dialer:   opts.Dialer,
		BaseURL:  opts.Client.BaseURL(),
		PushPath: cfg.Server.PushPath,
		ActorID:  cfg.User.ID,
		Backoff:  opts.Backoff,
	})

	w.installPolling(cfg.Polling)
	w.Layers.Listen(ctx, w.Bus)
	w.listen()
	w.watchStream()
	return w
}

// Client returns the REST client.
func (w *Workspace) Client() *api.Client { return w.client }

// Store returns the UI-state store.
func (w *Workspace) Store() *kv.Store { return w.store }

// Close stops polling, the push link and any open editors.
func (w *Workspace) Close() {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	editor, draft := w.editor, w.draft
	w.editor, w.draft = nil, nil
	w.mu.Unlock()

	w.sched.Close()
	w.cancel()
	w.Stream.Close()
	if editor != nil {
		editor.Close()
	}
	if draft != nil {
		draft.Close()
	}
	w.wg.Wait()
}

// SetVisible suspends or resumes the polling fleet.
func (w *Workspace) SetVisible(visible bool) {
	w.sched.Visibility().Set(visible)
}

func (w *Workspace) changed(what string) {
	w.Bus.Publish(bus.Updated, what)
}

func (w *Workspace) listen() {
	events := w.Bus.Subscribe(w.ctx, bus.AgentsUpdated, bus.InsertSpecDraft, bus.ResetUIState)
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		for ev := range events {
			switch ev.Topic {
			case bus.AgentsUpdated:
				w.runJob(jobAgents)
			case bus.InsertSpecDraft:
				if p, ok := ev.Payload.(bus.InsertDraft); ok {
					if ed := w.Spec(); ed != nil {
						if err := ed.InsertDraft(p.SectionKey, p.Text); err != nil {
							w.log.Debug("insert draft ignored", "section", p.SectionKey, "err", err)
						}
					}
				}
			case bus.ResetUIState:
				n := w.Layout.ResetProject()
				w.log.Debug("layout state reset", "rows", n)
				w.changed("layout")
			}
		}
	}()
}

// watchStream follows project switches announced on the push link.
func (w *Workspace) watchStream() {
	updates, stop := w.Stream.Subscribe()
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		defer stop()
		for {
			select {
			case <-w.ctx.Done():
				return
			case <-updates:
				if p := w.Stream.ActiveProject(); p != nil && !sameProject(p, w.Project()) {
					w.applyProject(p)
				}
				w.changed("stream")
			}
		}
	}()
}

func sameProject(a, b *types.ActiveProject) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Project == b.Project && a.Branch == b.Branch
}

// SelectChannel switches the workspace to channel. The in-flight activity
// poll is aborted, the new channel's seen-id is initialised from a fresh
// single-message fetch, and the chat, project and spec are reloaded.
func (w *Workspace) SelectChannel(ctx context.Context, channel string) error {
	ctx = logger.WithFields(ctx, logger.Fields{Channel: channel, Component: "workspace"})

	w.mu.Lock()
	w.selectSeq++
	seq := w.selectSeq
	w.banner = ""
	w.mu.Unlock()

	w.Unread.SetCurrent(channel)
	w.runJob(jobActivity)
	if channel != "" {
		if err := w.Unread.SyncFromLatest(ctx, channel, w.client); err != nil && !apperr.IsCancelled(err) {
			w.log.WarnContext(ctx, "seen-id sync failed", "err", err)
		}
	}
	w.runJob(jobAudit)
	w.runJob(jobConsole)

	streamErr := w.Stream.SetChannel(ctx, channel)
	if streamErr != nil && !apperr.IsCancelled(streamErr) {
		w.setBanner(streamErr)
	}

	var project *types.ActiveProject
	if channel != "" {
		p, err := w.client.ActiveProject(ctx, channel)
		switch {
		case err == nil:
			project = &p
		case !apperr.IsCancelled(err):
			w.log.DebugContext(ctx, "no active project", "err", err)
		}
	}
	if !w.current(seq) {
		return apperr.Cancelled("workspace.select_channel", context.Canceled)
	}
	w.applyProject(project)

	editor := specdoc.NewEditor(w.client, w.store, channel)
	w.mu.Lock()
	old := w.editor
	w.editor = editor
	w.mu.Unlock()
	if old != nil {
		old.Close()
	}
	if channel != "" {
		if err := editor.Load(ctx); err != nil && !apperr.IsCancelled(err) {
			w.log.WarnContext(ctx, "spec load failed", "err", err)
		}
	}
	w.changed("channel")
	if apperr.IsCancelled(streamErr) {
		return nil
	}
	return streamErr
}

func (w *Workspace) current(seq uint64) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return seq == w.selectSeq
}

func (w *Workspace) applyProject(p *types.ActiveProject) {
	w.mu.Lock()
	w.project = p
	w.mu.Unlock()

	name, branch := "", ""
	if p != nil {
		name, branch = p.Project, p.Branch
	}
	w.Layout.SetScope(name, branch)
	w.Guidance.SetProject(name)
	w.runJob(jobTasks)
	w.Bus.Publish(bus.ProjectSwitched, p)
}

// Channel returns the selected channel.
func (w *Workspace) Channel() string {
	return w.Unread.Current()
}

// Project returns the project bound to the selected channel.
func (w *Workspace) Project() *types.ActiveProject {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.project == nil {
		return nil
	}
	p := *w.project
	return &p
}

// Spec returns the spec editor of the selected channel.
func (w *Workspace) Spec() *specdoc.Editor {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.editor
}

// Banner returns the user-facing error of the last action.
func (w *Workspace) Banner() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.banner
}

// DismissBanner clears the banner.
func (w *Workspace) DismissBanner() {
	w.mu.Lock()
	w.banner = ""
	w.mu.Unlock()
	w.changed("banner")
}

func (w *Workspace) setBanner(err error) {
	if err == nil || apperr.IsCancelled(err) {
		return
	}
	w.mu.Lock()
	w.banner = apperr.UserMessage(err)
	w.mu.Unlock()
	w.changed("banner")
}

// OpenView records a view switch for guidance and broadcasts it.
func (w *Workspace) OpenView(v beginner.View) {
	w.mu.Lock()
	w.view = v
	w.mu.Unlock()
	w.Guidance.MarkViewed(v)
	w.Bus.Publish(bus.ViewChanged, v)
}

// View returns the focused view.
func (w *Workspace) View() beginner.View {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.view
}

// SetMode switches the workspace mode of the active scope.
func (w *Workspace) SetMode(mode string) layout.Mode {
	m := w.Layout.SetMode(mode)
	w.Bus.Publish(bus.ModeChanged, m)
	return m
}

// Steps evaluates the guidance steps for the selected channel.
func (w *Workspace) Steps() []beginner.Step {
	s := beginner.Signals{
		Views:        w.Guidance.Views(),
		MessageCount: len(w.Stream.Messages()),
	}
	if ed := w.Spec(); ed != nil {
		s.SpecLength = specLength(ed.Sections())
		s.SpecCompleteness = ed.Completeness().Percent
		s.SpecApproved = ed.Status() == types.SpecApproved
	}
	channel := w.Channel()
	w.mu.Lock()
	for _, p := range w.processes {
		if p.Channel != "" && p.Channel != channel {
			continue
		}
		if p.Status == "running" {
			s.PreviewRunning = true
		}
		if p.URL != "" {
			s.PreviewURL = p.URL
		}
	}
	w.mu.Unlock()
	return beginner.Evaluate(s)
}

func specLength(sections specdoc.Sections) int {
	n := 0
	for _, body := range sections {
		n += len([]rune(body))
	}
	return n
}

// GuidanceEnabled reports whether the beginner steps are shown.
func (w *Workspace) GuidanceEnabled() bool {
	return beginner.Enabled(w.store)
}

// SetGuidanceEnabled shows or hides the beginner steps.
func (w *Workspace) SetGuidanceEnabled(on bool) {
	beginner.SetEnabled(w.store, on)
	w.changed("prefs")
}
