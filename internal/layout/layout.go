// Package layout remembers pane ratios and collapsed panels per project,
// branch and workspace mode.
package layout

import (
	"math"
	"strings"
	"sync"

	"github.com/adamavenir/aioffice/internal/kv"
)

// Mode is a workspace arrangement.
type Mode string

const (
	ModeSplit        Mode = "split"
	ModeFullIDE      Mode = "full-ide"
	ModeFocusChat    Mode = "focus-chat"
	ModeFocusPreview Mode = "focus-preview"
	ModeFocusFiles   Mode = "focus-files"
)

// Modes lists every mode in menu order.
var Modes = []Mode{ModeSplit, ModeFullIDE, ModeFocusChat, ModeFocusPreview, ModeFocusFiles}

// NormalizeMode maps user input to a mode. "focus" means focus-preview and
// anything unknown falls back to split.
func NormalizeMode(s string) Mode {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "focus" {
		return ModeFocusPreview
	}
	for _, m := range Modes {
		if string(m) == s {
			return m
		}
	}
	return ModeSplit
}

// Panel names used in collapsed maps.
const (
	PanelSidebar  = "sidebar"
	PanelChat     = "chat"
	PanelPreview  = "preview"
	PanelFiles    = "files"
	PanelTerminal = "terminal"
)

// Layout is the effective arrangement of one mode.
type Layout struct {
	Mode        Mode
	Ratio       float64
	LeftRatio   float64
	CenterRatio float64
	Collapsed   map[string]bool
}

// Patch is a partial layout. It is also the persisted form, so absent keys
// keep falling through to the defaults.
type Patch struct {
	Ratio       *float64        `json:"ratio,omitempty"`
	LeftRatio   *float64        `json:"leftRatio,omitempty"`
	CenterRatio *float64        `json:"centerRatio,omitempty"`
	Collapsed   map[string]bool `json:"collapsed,omitempty"`
}

// Float returns a pointer to v, for building patches.
func Float(v float64) *float64 { return &v }

// Defaults returns the default layout of mode.
func Defaults(mode Mode) Layout {
	switch NormalizeMode(string(mode)) {
	case ModeFullIDE:
		return Layout{Mode: ModeFullIDE, LeftRatio: 0.2, CenterRatio: 0.5, Collapsed: map[string]bool{
			PanelFiles: false, PanelChat: false, PanelTerminal: true,
		}}
	case ModeFocusChat:
		return Layout{Mode: ModeFocusChat, Collapsed: map[string]bool{PanelSidebar: false}}
	case ModeFocusPreview:
		return Layout{Mode: ModeFocusPreview, Collapsed: map[string]bool{PanelChat: true}}
	case ModeFocusFiles:
		return Layout{Mode: ModeFocusFiles, Collapsed: map[string]bool{PanelChat: true}}
	}
	return Layout{Mode: ModeSplit, Ratio: 0.42, Collapsed: map[string]bool{
		PanelSidebar: false, PanelChat: false, PanelPreview: false,
	}}
}

// Keys lists the layout keys valid for mode.
func Keys(mode Mode) []string {
	switch NormalizeMode(string(mode)) {
	case ModeSplit:
		return []string{"ratio", "collapsed"}
	case ModeFullIDE:
		return []string{"leftRatio", "centerRatio", "collapsed"}
	}
	return []string{"collapsed"}
}

func validRatio(v *float64) bool {
	return v != nil && !math.IsNaN(*v) && *v > 0 && *v < 1
}

// Merge applies patches over defaults in order. Keys that are not valid for
// the mode and out-of-range ratios are ignored; collapsed flags are merged
// per panel.
func Merge(defaults Layout, patches ...Patch) Layout {
	out := defaults
	out.Collapsed = make(map[string]bool, len(defaults.Collapsed))
	for k, v := range defaults.Collapsed {
		out.Collapsed[k] = v
	}
	for _, p := range patches {
		switch out.Mode {
		case ModeSplit:
			if validRatio(p.Ratio) {
				out.Ratio = *p.Ratio
			}
		case ModeFullIDE:
			left, center := out.LeftRatio, out.CenterRatio
			if validRatio(p.LeftRatio) {
				left = *p.LeftRatio
			}
			if validRatio(p.CenterRatio) {
				center = *p.CenterRatio
			}
			if left+center < 1 {
				out.LeftRatio, out.CenterRatio = left, center
			}
		}
		for k, v := range p.Collapsed {
			out.Collapsed[k] = v
		}
	}
	return out
}

func mergePatch(base, p Patch) Patch {
	if p.Ratio != nil {
		base.Ratio = p.Ratio
	}
	if p.LeftRatio != nil {
		base.LeftRatio = p.LeftRatio
	}
	if p.CenterRatio != nil {
		base.CenterRatio = p.CenterRatio
	}
	if len(p.Collapsed) > 0 {
		merged := make(map[string]bool, len(base.Collapsed)+len(p.Collapsed))
		for k, v := range base.Collapsed {
			merged[k] = v
		}
		for k, v := range p.Collapsed {
			merged[k] = v
		}
		base.Collapsed = merged
	}
	return base
}

// AsPatch converts l to its persisted form, keeping only the mode's keys.
func (l Layout) AsPatch() Patch {
	p := Patch{Collapsed: make(map[string]bool, len(l.Collapsed))}
	for k, v := range l.Collapsed {
		p.Collapsed[k] = v
	}
	switch l.Mode {
	case ModeSplit:
		p.Ratio = Float(l.Ratio)
	case ModeFullIDE:
		p.LeftRatio = Float(l.LeftRatio)
		p.CenterRatio = Float(l.CenterRatio)
	}
	return p
}

// Ratios returns the pane widths of l as fractions summing to one.
func (l Layout) Ratios() []float64 {
	switch l.Mode {
	case ModeSplit:
		return NormalizeRatios([]float64{l.Ratio, 1 - l.Ratio}, 2)
	case ModeFullIDE:
		return NormalizeRatios([]float64{l.LeftRatio, l.CenterRatio, 1 - l.LeftRatio - l.CenterRatio}, 3)
	}
	return []float64{1}
}

// NormalizeRatios returns n strictly positive ratios summing to one.
// Missing, non-finite and non-positive entries take the mean of the valid
// ones, or an equal share when none are valid.
func NormalizeRatios(ratios []float64, n int) []float64 {
	if n <= 0 {
		return nil
	}
	out := make([]float64, n)
	sum, valid := 0.0, 0
	for i := 0; i < n; i++ {
		out[i] = -1
		if i < len(ratios) {
			v := ratios[i]
			if !math.IsNaN(v) && !math.IsInf(v, 0) && v > 0 {
				out[i] = v
				sum += v
				valid++
			}
		}
	}
	fill := 1.0
	if valid > 0 {
		fill = sum / float64(valid)
	}
	total := 0.0
	for i := range out {
		if out[i] < 0 {
			out[i] = fill
		}
		total += out[i]
	}
	for i := range out {
		out[i] /= total
	}
	return out
}

// Engine tracks the active scope and mode and the session's live overrides.
type Engine struct {
	store *kv.Store

	mu      sync.Mutex
	project string
	branch  string
	mode    Mode
	live    map[string]Patch
}

// New creates an engine with no project selected.
func New(store *kv.Store) *Engine {
	e := &Engine{store: store, live: make(map[string]Patch)}
	e.mode = e.loadMode()
	return e
}

func branchScope(branch string) string {
	if branch == "" {
		return "default"
	}
	return branch
}

func (e *Engine) modeKey() string {
	return kv.Key(kv.DomainLayoutMode, e.project, branchScope(e.branch))
}

func (e *Engine) stateKey(mode Mode) string {
	return kv.Key(kv.DomainLayoutState, e.project, branchScope(e.branch), string(mode))
}

func (e *Engine) loadMode() Mode {
	return NormalizeMode(kv.Read(e.store, e.modeKey(), string(ModeSplit)))
}

// SetScope switches to a project and branch and restores its mode.
func (e *Engine) SetScope(project, branch string) Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.project, e.branch = project, branch
	e.mode = e.loadMode()
	return e.mode
}

// Scope returns the active project and branch.
func (e *Engine) Scope() (project, branch string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.project, e.branch
}

// Mode returns the active mode.
func (e *Engine) Mode() Mode {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.mode
}

// SetMode normalizes and persists the mode for the active scope.
func (e *Engine) SetMode(s string) Mode {
	mode := NormalizeMode(s)
	e.mu.Lock()
	defer e.mu.Unlock()
	e.mode = mode
	e.store.Write(e.modeKey(), string(mode))
	return mode
}

// Layout returns the effective layout of the active mode.
func (e *Engine) Layout() Layout {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.layoutLocked()
}

func (e *Engine) layoutLocked() Layout {
	key := e.stateKey(e.mode)
	var persisted Patch
	e.store.Decode(key, &persisted)
	return Merge(Defaults(e.mode), persisted, e.live[key])
}

// Update merges p into the session override and persists the result.
func (e *Engine) Update(p Patch) Layout {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := e.stateKey(e.mode)
	e.live[key] = mergePatch(e.live[key], p)
	merged := e.layoutLocked()
	e.store.Write(key, merged.AsPatch())
	return merged
}

// ToggleCollapsed flips one panel of the active mode.
func (e *Engine) ToggleCollapsed(panel string) Layout {
	current := e.Layout().Collapsed[panel]
	return e.Update(Patch{Collapsed: map[string]bool{panel: !current}})
}

// Reset forgets the persisted and live layout of the active mode.
func (e *Engine) Reset() Layout {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := e.stateKey(e.mode)
	delete(e.live, key)
	e.store.Remove(key)
	return Defaults(e.mode)
}

// ResetProject forgets the persisted and live layouts of every branch and
// mode of the active project. It returns the number of stored rows removed.
func (e *Engine) ResetProject() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.project == "" {
		return 0
	}
	prefix := kv.Prefix(kv.DomainLayoutState, e.project)
	for key := range e.live {
		if strings.HasPrefix(key, prefix) {
			delete(e.live, key)
		}
	}
	return e.store.Clear(prefix)
}

// CommitRatios stores the ratios produced by a pane drag. For full-ide,
// the first two entries are the left and center panes.
func (e *Engine) CommitRatios(ratios []float64) Layout {
	switch e.Mode() {
	case ModeSplit:
		r := NormalizeRatios(ratios, 2)
		return e.Update(Patch{Ratio: Float(r[0])})
	case ModeFullIDE:
		r := NormalizeRatios(ratios, 3)
		return e.Update(Patch{LeftRatio: Float(r[0]), CenterRatio: Float(r[1])})
	}
	return e.Layout()
}
