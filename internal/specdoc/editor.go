package specdoc

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/kv"
	"github.com/adamavenir/aioffice/internal/types"
)

const (
	// ApproveThreshold is the minimum completeness percent for approval.
	ApproveThreshold = 70
	// ApprovePhrase must be typed to approve a spec.
	ApprovePhrase = "APPROVE SPEC"
	// DraftDelay is the debounce before an edit is persisted locally.
	DraftDelay = 350 * time.Millisecond
	// RestoredNotice is shown when a local draft replaces the server copy.
	RestoredNotice = "Restored unsaved local draft."
)

// Remote is the server side of the spec workflow.
type Remote interface {
	CurrentSpec(ctx context.Context, channel string) (types.SpecDocument, error)
	SaveSpec(ctx context.Context, channel, specMD, ideaBankMD string) (types.SpecDocument, error)
	ApproveSpec(ctx context.Context, channel, confirmText string) (types.SpecDocument, error)
	SpecHistory(ctx context.Context, project string, limit int) ([]types.SpecSnapshot, error)
}

// Draft is the locally persisted editor state.
type Draft struct {
	SpecMD     string    `json:"spec_md"`
	IdeaBankMD string    `json:"idea_bank_md"`
	UpdatedAt  time.Time `json:"updated_at"`
	Sections   Sections  `json:"sections,omitempty"`
}

// Editor holds the structured spec for one channel. The section map is the
// source of truth; markdown is produced only for transport and the local
// draft.
type Editor struct {
	remote  Remote
	store   *kv.Store
	channel string
	delay   time.Duration
	now     func() time.Time
	log     *slog.Logger

	mu       sync.Mutex
	sections Sections
	ideaBank string
	status   types.SpecStatus
	version  int
	project  string
	notice   string
	dirty    bool
	timer    *time.Timer
	closed   bool
}

// EditorOption customises an Editor.
type EditorOption func(*Editor)

// WithDraftDelay overrides DraftDelay.
func WithDraftDelay(d time.Duration) EditorOption {
	return func(e *Editor) { e.delay = d }
}

// WithClock overrides the wall clock.
func WithClock(now func() time.Time) EditorOption {
	return func(e *Editor) { e.now = now }
}

// NewEditor creates an editor for channel.
func NewEditor(remote Remote, store *kv.Store, channel string, opts ...EditorOption) *Editor {
	e := &Editor{
		remote:   remote,
		store:    store,
		channel:  channel,
		delay:    DraftDelay,
		now:      time.Now,
		log:      slog.Default().With("component", "specdoc", "channel", channel),
		sections: NewSections(),
		status:   types.SpecNone,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Editor) draftKey() string {
	return kv.Key(kv.DomainSpecDraft, e.channel)
}

// Load fetches the server spec. A stored local draft that differs from it
// is restored and RestoredNotice is set.
func (e *Editor) Load(ctx context.Context) error {
	doc, err := e.remote.CurrentSpec(ctx, e.channel)
	if err != nil {
		return err
	}
	server := Parse(doc.SpecMD)
	serverIdea := strings.TrimSpace(doc.IdeaBankMD)

	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = doc.Status
	if e.status == "" {
		e.status = types.SpecNone
	}
	e.version = doc.SpecVersion
	e.project = doc.Project
	e.sections = server
	e.ideaBank = serverIdea
	e.notice = ""
	e.dirty = false

	var draft Draft
	if !e.store.Decode(e.draftKey(), &draft) {
		return nil
	}
	local := draft.Sections
	if local == nil {
		local = Parse(draft.SpecMD)
	}
	local = fillSchema(local)
	if len(DiffSections(local, server)) == 0 && strings.TrimSpace(draft.IdeaBankMD) == serverIdea {
		e.store.Remove(e.draftKey())
		return nil
	}
	e.sections = local
	e.ideaBank = strings.TrimSpace(draft.IdeaBankMD)
	e.notice = RestoredNotice
	return nil
}

func fillSchema(s Sections) Sections {
	out := NewSections()
	for k, v := range s {
		if _, ok := Lookup(k); ok {
			out[k] = normalizeBody(v)
		}
	}
	return out
}

// Channel returns the channel the editor is bound to.
func (e *Editor) Channel() string { return e.channel }

// Sections returns a copy of the current sections.
func (e *Editor) Sections() Sections {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.sections.Clone()
}

// IdeaBank returns the idea-bank markdown.
func (e *Editor) IdeaBank() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.ideaBank
}

// Markdown renders the current sections.
func (e *Editor) Markdown() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Build(e.sections)
}

// Completeness computes completeness of the current sections.
func (e *Editor) Completeness() Completeness {
	e.mu.Lock()
	defer e.mu.Unlock()
	return Compute(e.sections)
}

// Status returns the approval status.
func (e *Editor) Status() types.SpecStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Version returns the last server spec_version.
func (e *Editor) Version() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.version
}

// Project returns the project reported by the server.
func (e *Editor) Project() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.project
}

// Notice returns the pending user notice, if any.
func (e *Editor) Notice() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.notice
}

// DismissNotice clears the notice.
func (e *Editor) DismissNotice() {
	e.mu.Lock()
	e.notice = ""
	e.mu.Unlock()
}

// Dirty reports unsaved edits.
func (e *Editor) Dirty() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.dirty
}

// SetSection replaces the body of key.
func (e *Editor) SetSection(key, body string) error {
	if _, ok := Lookup(key); !ok {
		return apperr.Validation("spec.set_section", fmt.Sprintf("unknown section %q", key))
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sections[key] = body
	e.touchLocked()
	return nil
}

// SetIdeaBank replaces the idea-bank markdown.
func (e *Editor) SetIdeaBank(md string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ideaBank = md
	e.touchLocked()
}

// InsertDraft appends text to the body of key, separated by a blank line.
func (e *Editor) InsertDraft(key, text string) error {
	if _, ok := Lookup(key); !ok {
		return apperr.Validation("spec.insert_draft", fmt.Sprintf("unknown section %q", key))
	}
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	body := strings.TrimSpace(e.sections[key])
	if body == "" {
		e.sections[key] = text
	} else {
		e.sections[key] = body + "\n\n" + text
	}
	e.touchLocked()
	return nil
}

// ReplaceAll swaps every section body, for example after importing markdown.
func (e *Editor) ReplaceAll(s Sections) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.sections = fillSchema(s)
	e.touchLocked()
}

func (e *Editor) touchLocked() {
	e.dirty = true
	if e.closed {
		return
	}
	if e.timer != nil {
		e.timer.Stop()
	}
	e.timer = time.AfterFunc(e.delay, e.persistDraft)
}

func (e *Editor) persistDraft() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.persistDraftLocked()
}

func (e *Editor) persistDraftLocked() {
	if !e.dirty {
		return
	}
	e.store.Write(e.draftKey(), Draft{
		SpecMD:     Build(e.sections),
		IdeaBankMD: e.ideaBank,
		UpdatedAt:  e.now().UTC(),
		Sections:   e.sections.Clone(),
	})
}

// Flush writes any pending draft immediately.
func (e *Editor) Flush() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.timer != nil {
		e.timer.Stop()
		e.timer = nil
	}
	e.persistDraftLocked()
}

// SaveDraft sends the current sections to the server. On success the
// local draft is dropped and the server's version and status are adopted.
func (e *Editor) SaveDraft(ctx context.Context) error {
	e.mu.Lock()
	md := Build(e.sections)
	idea := e.ideaBank
	e.mu.Unlock()

	doc, err := e.remote.SaveSpec(ctx, e.channel, md, idea)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if doc.SpecVersion > 0 {
		e.version = doc.SpecVersion
	}
	e.status = doc.Status
	if e.status == "" || e.status == types.SpecNone {
		e.status = types.SpecDraft
	}
	if doc.Project != "" {
		e.project = doc.Project
	}
	// Edits made while the save was in flight stay dirty.
	if Build(e.sections) == md && e.ideaBank == idea {
		e.dirty = false
		if e.timer != nil {
			e.timer.Stop()
			e.timer = nil
		}
		e.store.Remove(e.draftKey())
	}
	return nil
}

// CheckApproval returns the reason approval would be refused, or nil.
func (e *Editor) CheckApproval(confirm string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.checkApprovalLocked(confirm)
}

func (e *Editor) checkApprovalLocked(confirm string) error {
	const op = "spec.approve"
	if e.status != types.SpecDraft {
		if e.status == types.SpecApproved {
			return apperr.State(op, "spec is already approved")
		}
		return apperr.State(op, "save the spec as a draft before approving")
	}
	if c := Compute(e.sections); !c.Ready() {
		return apperr.State(op, fmt.Sprintf("completeness is %d%%; fill required sections first", c.Percent))
	}
	if strings.TrimSpace(confirm) != ApprovePhrase {
		return apperr.Validation(op, fmt.Sprintf("type %s to confirm", ApprovePhrase))
	}
	return nil
}

// Approve approves the saved draft. The server is contacted only when the
// status is draft, completeness reaches ApproveThreshold and confirm is
// ApprovePhrase.
func (e *Editor) Approve(ctx context.Context, confirm string) error {
	e.mu.Lock()
	if err := e.checkApprovalLocked(confirm); err != nil {
		e.mu.Unlock()
		return err
	}
	e.mu.Unlock()

	doc, err := e.remote.ApproveSpec(ctx, e.channel, ApprovePhrase)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.status = doc.Status
	if e.status == "" {
		e.status = types.SpecApproved
	}
	if doc.SpecVersion > 0 {
		e.version = doc.SpecVersion
	}
	e.log.Info("spec approved", "version", e.version)
	return nil
}

// Close flushes the pending draft and stops the debounce timer.
func (e *Editor) Close() {
	e.Flush()
	e.mu.Lock()
	e.closed = true
	e.mu.Unlock()
}
