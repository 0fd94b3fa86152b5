// Package beginner derives the Discuss/Spec/Build/Preview guidance steps
// from signals owned by other components.
package beginner

import (
	"sort"
	"strings"
	"sync"

	"github.com/adamavenir/aioffice/internal/kv"
)

// Status is the state of one guidance step.
type Status string

const (
	NotStarted Status = "Not started"
	InProgress Status = "In progress"
	Ready      Status = "Ready"
	Done       Status = "Done"
)

// View is a workspace view the user can open.
type View string

const (
	ViewChat    View = "chat"
	ViewSpec    View = "spec"
	ViewFiles   View = "files"
	ViewTasks   View = "tasks"
	ViewPreview View = "preview"
)

// Step thresholds.
const (
	DiscussDoneMessages = 4
	SpecReadyLength     = 420
	SpecReadyPercent    = 70
)

// Signals are the observable inputs to the guidance steps.
type Signals struct {
	Views            map[View]bool
	MessageCount     int
	SpecLength       int
	SpecCompleteness int
	SpecApproved     bool
	PreviewRunning   bool
	PreviewURL       string
}

// Step is one evaluated guidance step.
type Step struct {
	Name   string
	Status Status
	Hint   string
}

func discuss(s Signals) Status {
	switch {
	case s.MessageCount <= 0:
		return NotStarted
	case s.MessageCount < DiscussDoneMessages:
		return InProgress
	}
	return Done
}

func spec(s Signals) Status {
	switch {
	case s.SpecApproved:
		return Done
	case s.SpecLength == 0:
		return NotStarted
	case s.SpecLength >= SpecReadyLength && s.SpecCompleteness >= SpecReadyPercent:
		return Ready
	}
	return InProgress
}

func preview(s Signals) Status {
	switch {
	case s.PreviewRunning || strings.TrimSpace(s.PreviewURL) != "":
		return Done
	case s.Views[ViewPreview]:
		return InProgress
	}
	return NotStarted
}

func build(s Signals) Status {
	files, tasks := s.Views[ViewFiles], s.Views[ViewTasks]
	switch {
	case files && tasks && preview(s) == Done:
		return Done
	case files && tasks:
		return Ready
	case files || tasks:
		return InProgress
	}
	return NotStarted
}

// Evaluate returns the four steps in order.
func Evaluate(s Signals) []Step {
	return []Step{
		{Name: "Discuss", Status: discuss(s), Hint: "Describe what you want to build in chat."},
		{Name: "Spec", Status: spec(s), Hint: "Fill the required spec sections and approve."},
		{Name: "Build", Status: build(s), Hint: "Open Files and Tasks to follow the build."},
		{Name: "Preview", Status: preview(s), Hint: "Run the preview to see the app."},
	}
}

// Next returns the first step that is not done.
func Next(steps []Step) (Step, bool) {
	for _, st := range steps {
		if st.Status != Done {
			return st, true
		}
	}
	return Step{}, false
}

// Tracker persists which views a project has opened.
type Tracker struct {
	store *kv.Store

	mu      sync.Mutex
	project string
	views   map[View]bool
}

// NewTracker creates a tracker with no project selected.
func NewTracker(store *kv.Store) *Tracker {
	return &Tracker{store: store, views: make(map[View]bool)}
}

func progressKey(project string) string {
	return kv.Key(kv.DomainBeginnerProgress, project)
}

// SetProject loads the opened views of project.
func (t *Tracker) SetProject(project string) {
	saved := kv.Read(t.store, progressKey(project), []string(nil))
	views := make(map[View]bool, len(saved))
	for _, v := range saved {
		views[View(v)] = true
	}
	t.mu.Lock()
	t.project = project
	t.views = views
	t.mu.Unlock()
}

// MarkViewed records that v was opened and reports whether it was new.
func (t *Tracker) MarkViewed(v View) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.views[v] {
		return false
	}
	t.views[v] = true
	list := make([]string, 0, len(t.views))
	for view := range t.views {
		list = append(list, string(view))
	}
	sort.Strings(list)
	t.store.Write(progressKey(t.project), list)
	return true
}

// Views returns a copy of the opened views.
func (t *Tracker) Views() map[View]bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[View]bool, len(t.views))
	for k, v := range t.views {
		out[k] = v
	}
	return out
}

// Reset forgets the opened views of the active project.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.views = make(map[View]bool)
	t.store.Remove(progressKey(t.project))
}

func enabledKey() string {
	return kv.Key(kv.DomainBeginnerEnabled, kv.GlobalScope)
}

// Enabled reports whether beginner guidance is shown. It defaults to on.
func Enabled(store *kv.Store) bool {
	return kv.Read(store, enabledKey(), true)
}

// SetEnabled toggles beginner guidance.
func SetEnabled(store *kv.Store, on bool) {
	store.Write(enabledKey(), on)
}
