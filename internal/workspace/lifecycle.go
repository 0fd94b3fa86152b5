package workspace

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/adamavenir/aioffice/internal/api"
	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/beginner"
	"github.com/adamavenir/aioffice/internal/bus"
	"github.com/adamavenir/aioffice/internal/types"
	"github.com/adamavenir/aioffice/internal/wizard"
)

// CreateChannel creates a group channel and reloads the list.
func (w *Workspace) CreateChannel(ctx context.Context, name string) (types.Channel, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Channel{}, apperr.Validation("workspace.create_channel", "channel name is required")
	}
	ch, err := w.client.CreateChannel(ctx, name)
	if err != nil {
		return types.Channel{}, err
	}
	w.runJob(jobChannels)
	return ch, nil
}

// DeleteChannel deletes a channel and forgets its watermarks. Deleting the
// selected channel deselects it.
func (w *Workspace) DeleteChannel(ctx context.Context, id string, deleteMessages bool) error {
	if err := w.client.DeleteChannel(ctx, id, deleteMessages); err != nil {
		return err
	}
	w.Unread.Forget(id)
	if w.Channel() == id {
		if err := w.SelectChannel(ctx, ""); err != nil && !apperr.IsCancelled(err) {
			return err
		}
	}
	w.runJob(jobChannels)
	return nil
}

// Wizard opens the project creation wizard, restoring any saved draft.
func (w *Workspace) Wizard() *wizard.Wizard {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.draft == nil {
		w.draft = wizard.Open(w.store)
	}
	return w.draft
}

// CloseWizard flushes and closes the wizard.
func (w *Workspace) CloseWizard() {
	w.mu.Lock()
	d := w.draft
	w.draft = nil
	w.mu.Unlock()
	if d != nil {
		d.Close()
	}
}

func destinationView(d wizard.Destination) beginner.View {
	switch d {
	case wizard.OpenSpec:
		return beginner.ViewSpec
	case wizard.OpenPreview:
		return beginner.ViewPreview
	}
	return beginner.ViewChat
}

// SubmitProject creates a project from a wizard handoff, switches to its
// channel and opens the requested tab.
func (w *Workspace) SubmitProject(ctx context.Context, h wizard.Handoff) error {
	created, err := w.client.CreateProjectFromPrompt(ctx, api.CreateFromPrompt{
		Prompt:      h.Seed.Prompt,
		Template:    h.Seed.TemplateID,
		ProjectName: h.Seed.ProjectName,
	})
	if err != nil {
		return err
	}
	w.log.InfoContext(ctx, "project created", "project", created.Project, "channel", created.Channel)
	w.runJob(jobChannels)
	if created.Channel == "" {
		return nil
	}
	if err := w.SelectChannel(ctx, created.Channel); err != nil {
		return err
	}
	w.OpenView(destinationView(h.OpenTab))
	return nil
}

// DiscussDraft opens a brainstorm channel for a seed without creating the
// project.
func (w *Workspace) DiscussDraft(ctx context.Context, seed wizard.Seed) error {
	name := "draft-" + seed.ProjectName
	if seed.ProjectName == "" {
		name = "draft-" + seed.DraftID
	}
	ch, err := w.CreateChannel(ctx, name)
	if err != nil {
		return err
	}
	if err := w.SelectChannel(ctx, ch.ID); err != nil {
		return err
	}
	w.Bus.Publish(bus.ChatContextAdd, bus.ChatContext{Label: "Draft prompt", Text: seed.Prompt})
	return nil
}

// RenameProject sets a project's display name.
func (w *Workspace) RenameProject(ctx context.Context, name, displayName string) error {
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return apperr.Validation("workspace.rename_project", "display name is required")
	}
	return w.client.RenameProject(ctx, name, displayName)
}

// RequestProjectDelete starts a two-phase delete and returns the token the
// user must confirm with.
func (w *Workspace) RequestProjectDelete(ctx context.Context, name string) (string, error) {
	res, err := w.client.DeleteProject(ctx, name, "")
	if err != nil {
		return "", err
	}
	if res.ConfirmToken == "" {
		return "", apperr.Server("workspace.delete_project", 0, "server did not issue a confirmation token")
	}
	return res.ConfirmToken, nil
}

// ConfirmProjectDelete completes a two-phase delete.
func (w *Workspace) ConfirmProjectDelete(ctx context.Context, name, token string) error {
	const op = "workspace.delete_project"
	if strings.TrimSpace(token) == "" {
		return apperr.Validation(op, "confirmation token is required")
	}
	res, err := w.client.DeleteProject(ctx, name, token)
	if err != nil {
		return err
	}
	if !res.Deleted && !res.OK {
		return apperr.Server(op, 0, fmt.Sprintf("project %s was not deleted", name))
	}
	if p := w.Project(); p != nil && p.Project == name {
		w.applyProject(nil)
	}
	w.runJob(jobChannels)
	return nil
}

// ImportProject uploads an archive as a new project.
func (w *Workspace) ImportProject(ctx context.Context, projectName, filename string, r io.Reader) (types.ProjectCreated, error) {
	created, err := w.client.ImportProject(ctx, projectName, filename, r)
	if err != nil {
		return types.ProjectCreated{}, err
	}
	w.runJob(jobChannels)
	return created, nil
}

// StartAppBuilder starts an app-builder run in the selected channel.
func (w *Workspace) StartAppBuilder(ctx context.Context, req types.AppBuilderRequest) (map[string]any, error) {
	if req.Channel == "" {
		req.Channel = w.Channel()
	}
	return w.client.StartAppBuilder(ctx, req)
}

// EraseMemory erases memory scopes of the active project. typed must be
// the confirmation phrase.
func (w *Workspace) EraseMemory(ctx context.Context, req types.MemoryEraseRequest, typed string) error {
	req.ConfirmText = strings.TrimSpace(typed)
	if req.Project == "" {
		if p := w.Project(); p != nil {
			req.Project = p.Project
		}
	}
	if err := w.client.EraseMemory(ctx, req); err != nil {
		return err
	}
	if req.ClearMessages {
		if err := w.Stream.Reload(ctx); err != nil {
			w.log.WarnContext(ctx, "history reload failed", "err", err)
		}
	}
	if req.ClearTasks {
		w.runJob(jobTasks)
	}
	return nil
}

// ApplyMerge merges source into target after an explicit confirmation.
func (w *Workspace) ApplyMerge(ctx context.Context, source, target string, confirmed bool) (types.MergePreview, error) {
	p := w.Project()
	if p == nil {
		return types.MergePreview{}, apperr.State("workspace.merge", "no project selected")
	}
	return w.client.MergeApply(ctx, p.Project, source, target, confirmed)
}

// RouteAgent binds an agent and tells every view the agents changed.
func (w *Workspace) RouteAgent(ctx context.Context, id string, backend types.Backend, model string) (types.Agent, error) {
	a, err := w.Settings.RouteAgent(ctx, id, backend, model)
	if err != nil {
		return types.Agent{}, err
	}
	w.Bus.Publish(bus.AgentsUpdated, id)
	return a, nil
}

// ResetUI dismisses every overlay and forgets the active project's
// layout state.
func (w *Workspace) ResetUI() {
	w.Bus.Publish(bus.ResetUIState, nil)
}
