// Package wizard drives the three-step project creation flow. All state
// changes go through a single command loop, so a submit always sees the
// latest accepted prompt.
package wizard

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/kv"
)

// Step is a wizard page.
type Step int

const (
	StepDescribe Step = 1
	StepReview   Step = 2
	StepCreate   Step = 3
)

func (s Step) String() string {
	switch s {
	case StepDescribe:
		return "describe"
	case StepReview:
		return "review"
	case StepCreate:
		return "create"
	}
	return fmt.Sprintf("step(%d)", int(s))
}

// Destination is the tab opened after creation.
type Destination string

const (
	OpenChat    Destination = "chat"
	OpenSpec    Destination = "spec"
	OpenPreview Destination = "preview"
)

// Valid reports whether d is a known destination.
func (d Destination) Valid() bool {
	return d == OpenChat || d == OpenSpec || d == OpenPreview
}

// Phase is where a draft sits in the Discuss, Spec, Build pipeline.
type Phase string

const (
	PhaseDiscuss      Phase = "DISCUSS"
	PhaseSpec         Phase = "SPEC"
	PhaseReadyToBuild Phase = "READY_TO_BUILD"
)

// BrainstormMessage is one turn of the pre-creation discussion.
type BrainstormMessage struct {
	Sender    string    `json:"sender"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
}

// Draft is the serializable wizard state.
type Draft struct {
	ID          string              `json:"id"`
	Step        Step                `json:"step"`
	Prompt      string              `json:"prompt"`
	TemplateID  string              `json:"template_id,omitempty"`
	Stack       string              `json:"stack,omitempty"`
	ProjectName string              `json:"project_name,omitempty"`
	Imports     []ImportItem        `json:"imports,omitempty"`
	Destination Destination         `json:"destination"`
	Phase       Phase               `json:"phase"`
	Brainstorm  []BrainstormMessage `json:"brainstorm,omitempty"`
	Summary     string              `json:"summary,omitempty"`
	CreatedAt   time.Time           `json:"created_at"`
	UpdatedAt   time.Time           `json:"updated_at"`
}

// Name returns the explicit project name, or one derived from the prompt.
func (d Draft) Name() string {
	if d.ProjectName != "" {
		return d.ProjectName
	}
	return DeriveProjectName(d.Prompt)
}

// StackHint returns the chosen stack, or the hint of the first import.
func (d Draft) StackHint() string {
	if d.Stack != "" {
		return d.Stack
	}
	for _, item := range d.Imports {
		if item.StackHint != "" {
			return item.StackHint
		}
	}
	return ""
}

func (d Draft) clone() Draft {
	out := d
	out.Imports = append([]ImportItem(nil), d.Imports...)
	out.Brainstorm = append([]BrainstormMessage(nil), d.Brainstorm...)
	return out
}

func newDraft(now time.Time) Draft {
	return Draft{
		ID:          uuid.NewString(),
		Step:        StepDescribe,
		Destination: OpenChat,
		Phase:       PhaseDiscuss,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

// Seed is the hand-off produced by a completed wizard.
type Seed struct {
	DraftID     string              `json:"draft_id"`
	Prompt      string              `json:"prompt"`
	TemplateID  string              `json:"template_id,omitempty"`
	ProjectName string              `json:"project_name"`
	Stack       string              `json:"stack,omitempty"`
	Imports     []ImportItem        `json:"imports,omitempty"`
	Phase       Phase               `json:"phase"`
	Brainstorm  []BrainstormMessage `json:"brainstorm,omitempty"`
	Summary     string              `json:"summary,omitempty"`
}

func seedOf(d Draft) Seed {
	d = d.clone()
	return Seed{
		DraftID:     d.ID,
		Prompt:      strings.TrimSpace(d.Prompt),
		TemplateID:  d.TemplateID,
		ProjectName: d.Name(),
		Stack:       d.StackHint(),
		Imports:     d.Imports,
		Phase:       d.Phase,
		Brainstorm:  d.Brainstorm,
		Summary:     d.Summary,
	}
}

// Handoff is passed to the creation handler.
type Handoff struct {
	Seed    Seed
	OpenTab Destination
}

// SubmitFunc creates the project described by a handoff.
type SubmitFunc func(ctx context.Context, h Handoff) error

// DiscussFunc opens a discussion about a seed without creating a project.
type DiscussFunc func(ctx context.Context, seed Seed) error

const (
	// AutosaveDelay is the debounce before the draft is persisted.
	AutosaveDelay = 280 * time.Millisecond
	// PromptNotCaptured is returned when a submit races a prompt edit.
	PromptNotCaptured = "Prompt not captured, try again."
	promptRequired    = "Describe what you want to build first."
)

type command struct {
	op      string
	fn      func(d *Draft) (changed bool, err error)
	discard bool
	reply   chan error
}

// Wizard owns one creation draft.
type Wizard struct {
	store *kv.Store
	delay time.Duration
	now   func() time.Time
	log   *slog.Logger

	cmds chan command
	quit chan struct{}
	done chan struct{}
}

// Option customises a Wizard.
type Option func(*Wizard)

// WithAutosaveDelay overrides AutosaveDelay.
func WithAutosaveDelay(d time.Duration) Option {
	return func(w *Wizard) { w.delay = d }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) Option {
	return func(w *Wizard) { w.now = now }
}

func draftKey() string {
	return kv.Key(kv.DomainWizardDraft, kv.GlobalScope)
}

// Open restores the persisted draft, if any, and starts the command loop.
func Open(store *kv.Store, opts ...Option) *Wizard {
	w := &Wizard{
		store: store,
		delay: AutosaveDelay,
		now:   time.Now,
		log:   slog.Default().With("component", "wizard"),
		cmds:  make(chan command),
		quit:  make(chan struct{}),
		done:  make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	d := newDraft(w.now().UTC())
	var saved Draft
	if store.Decode(draftKey(), &saved) && saved.ID != "" {
		d = saved
		if d.Step < StepDescribe || d.Step > StepCreate {
			d.Step = StepDescribe
		}
		if !d.Destination.Valid() {
			d.Destination = OpenChat
		}
	}
	go w.loop(d)
	return w
}

func (w *Wizard) loop(d Draft) {
	defer close(w.done)
	var timer *time.Timer
	var fire <-chan time.Time
	pending := false
	for {
		select {
		case cmd := <-w.cmds:
			changed, err := cmd.fn(&d)
			if cmd.discard && timer != nil {
				timer.Stop()
				fire = nil
				pending = false
			}
			if changed {
				d.UpdatedAt = w.now().UTC()
				pending = true
				if timer == nil {
					timer = time.NewTimer(w.delay)
				} else {
					if !timer.Stop() {
						select {
						case <-timer.C:
						default:
						}
					}
					timer.Reset(w.delay)
				}
				fire = timer.C
			}
			if err != nil && !apperr.Is(err, apperr.KindValidation) && !apperr.Is(err, apperr.KindState) {
				w.log.Warn("wizard command failed", "op", cmd.op, "err", err)
			}
			cmd.reply <- err
		case <-fire:
			fire = nil
			pending = false
			w.store.Write(draftKey(), d)
		case <-w.quit:
			if timer != nil {
				timer.Stop()
			}
			if pending {
				w.store.Write(draftKey(), d)
			}
			return
		}
	}
}

func (w *Wizard) do(op string, fn func(d *Draft) (bool, error)) error {
	return w.send(command{op: op, fn: fn, reply: make(chan error, 1)})
}

func (w *Wizard) send(cmd command) error {
	op := cmd.op
	select {
	case w.cmds <- cmd:
	case <-w.done:
		return apperr.State(op, "wizard is closed")
	}
	return <-cmd.reply
}

// Close persists a pending draft and stops the loop.
func (w *Wizard) Close() {
	select {
	case <-w.quit:
	default:
		close(w.quit)
	}
	<-w.done
}

// Snapshot returns a copy of the draft.
func (w *Wizard) Snapshot() Draft {
	var out Draft
	_ = w.do("snapshot", func(d *Draft) (bool, error) {
		out = d.clone()
		return false, nil
	})
	return out
}

// SetPrompt records the prompt text.
func (w *Wizard) SetPrompt(text string) error {
	return w.do("set_prompt", func(d *Draft) (bool, error) {
		if d.Prompt == text {
			return false, nil
		}
		d.Prompt = text
		return true, nil
	})
}

// SetTemplate selects a template id.
func (w *Wizard) SetTemplate(id string) error {
	return w.do("set_template", func(d *Draft) (bool, error) {
		d.TemplateID = strings.TrimSpace(id)
		return true, nil
	})
}

// SetStack records the stack choice.
func (w *Wizard) SetStack(stack string) error {
	return w.do("set_stack", func(d *Draft) (bool, error) {
		d.Stack = strings.TrimSpace(stack)
		return true, nil
	})
}

// SetProjectName sets an explicit name. A blank name re-enables the name
// derived from the prompt.
func (w *Wizard) SetProjectName(name string) error {
	return w.do("set_project_name", func(d *Draft) (bool, error) {
		normalized := NormalizeProjectName(name)
		if strings.TrimSpace(name) != "" && normalized == "" {
			return false, apperr.Validation("wizard.set_project_name", "project name needs letters or digits")
		}
		d.ProjectName = normalized
		return true, nil
	})
}

// SetDestination picks the tab opened after creation.
func (w *Wizard) SetDestination(dest Destination) error {
	return w.do("set_destination", func(d *Draft) (bool, error) {
		if !dest.Valid() {
			return false, apperr.Validation("wizard.set_destination", fmt.Sprintf("unknown destination %q", dest))
		}
		d.Destination = dest
		return true, nil
	})
}

// SetPhase moves the draft along the pipeline.
func (w *Wizard) SetPhase(p Phase) error {
	return w.do("set_phase", func(d *Draft) (bool, error) {
		switch p {
		case PhaseDiscuss, PhaseSpec, PhaseReadyToBuild:
		default:
			return false, apperr.Validation("wizard.set_phase", fmt.Sprintf("unknown phase %q", p))
		}
		d.Phase = p
		return true, nil
	})
}

// SetSummary stores the AI summary block.
func (w *Wizard) SetSummary(md string) error {
	return w.do("set_summary", func(d *Draft) (bool, error) {
		d.Summary = strings.TrimSpace(md)
		return true, nil
	})
}

// AppendBrainstorm adds a discussion turn.
func (w *Wizard) AppendBrainstorm(msg BrainstormMessage) error {
	return w.do("append_brainstorm", func(d *Draft) (bool, error) {
		if strings.TrimSpace(msg.Content) == "" {
			return false, nil
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = w.now().UTC()
		}
		d.Brainstorm = append(d.Brainstorm, msg)
		return true, nil
	})
}

// AddImport classifies files and queues the resulting item.
func (w *Wizard) AddImport(files []ImportEntry) (ImportItem, error) {
	item, err := Classify(files)
	if err != nil {
		return ImportItem{}, err
	}
	err = w.do("add_import", func(d *Draft) (bool, error) {
		d.Imports = append(d.Imports, item)
		return true, nil
	})
	return item, err
}

// RemoveImport drops a queued item by id.
func (w *Wizard) RemoveImport(id string) error {
	return w.do("remove_import", func(d *Draft) (bool, error) {
		for i, item := range d.Imports {
			if item.ID == id {
				d.Imports = append(d.Imports[:i], d.Imports[i+1:]...)
				return true, nil
			}
		}
		return false, nil
	})
}

// Next advances one step. Leaving the first two steps needs a prompt.
func (w *Wizard) Next() error {
	return w.do("next", func(d *Draft) (bool, error) {
		if d.Step >= StepCreate {
			return false, apperr.State("wizard.next", "already on the last step")
		}
		if strings.TrimSpace(d.Prompt) == "" {
			return false, apperr.Validation("wizard.next", promptRequired)
		}
		d.Step++
		return true, nil
	})
}

// Back returns to the previous step.
func (w *Wizard) Back() error {
	return w.do("back", func(d *Draft) (bool, error) {
		if d.Step <= StepDescribe {
			return false, nil
		}
		d.Step--
		return true, nil
	})
}

// Submit creates the project. typed is the prompt the caller displays; if
// it differs from the accepted prompt the submit is refused and submit is
// never called. On success the persisted draft is discarded.
func (w *Wizard) Submit(ctx context.Context, typed string, submit SubmitFunc) error {
	const op = "wizard.submit"
	var h Handoff
	err := w.do(op, func(d *Draft) (bool, error) {
		if d.Step != StepCreate {
			return false, apperr.State(op, "finish the previous steps first")
		}
		if typed != d.Prompt {
			return false, apperr.Validation(op, PromptNotCaptured)
		}
		if strings.TrimSpace(d.Prompt) == "" {
			return false, apperr.Validation(op, promptRequired)
		}
		h = Handoff{Seed: seedOf(*d), OpenTab: d.Destination}
		return false, nil
	})
	if err != nil {
		return err
	}
	if err := submit(ctx, h); err != nil {
		return err
	}
	return w.Reset()
}

// DiscussFirst hands the draft to the discussion flow without creating a
// project. It is only offered on the last step.
func (w *Wizard) DiscussFirst(ctx context.Context, discuss DiscussFunc) error {
	const op = "wizard.discuss_first"
	var seed Seed
	err := w.do(op, func(d *Draft) (bool, error) {
		if d.Step != StepCreate {
			return false, apperr.State(op, "discuss first is offered on the last step")
		}
		if strings.TrimSpace(d.Prompt) == "" {
			return false, apperr.Validation(op, promptRequired)
		}
		d.Phase = PhaseDiscuss
		seed = seedOf(*d)
		return true, nil
	})
	if err != nil {
		return err
	}
	return discuss(ctx, seed)
}

// Reset discards the draft and its persisted copy.
func (w *Wizard) Reset() error {
	return w.send(command{
		op: "reset",
		fn: func(d *Draft) (bool, error) {
			*d = newDraft(w.now().UTC())
			w.store.Remove(draftKey())
			return false, nil
		},
		discard: true,
		reply:   make(chan error, 1),
	})
}
