package api

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/types"
)

// TaskFilter narrows a task listing.
type TaskFilter struct {
	Project string
	Branch  string
	Status  types.TaskStatus
}

// ListTasks returns board tasks.
func (c *Client) ListTasks(ctx context.Context, f TaskFilter) ([]types.Task, error) {
	q := url.Values{}
	if f.Project != "" {
		q.Set("project", f.Project)
	}
	if f.Branch != "" {
		q.Set("branch", f.Branch)
	}
	if f.Status != "" {
		q.Set("status", string(f.Status))
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/tasks", q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[types.Task]("GET /api/tasks", raw, "tasks")
}

// CreateTask creates a board task.
func (c *Client) CreateTask(ctx context.Context, in types.TaskInput) (types.Task, error) {
	if in.Title == "" {
		return types.Task{}, apperr.Validation("POST /api/tasks", "title is required")
	}
	if in.Priority < 0 || in.Priority > 3 {
		return types.Task{}, apperr.Validation("POST /api/tasks", "priority must be between 0 and 3")
	}
	var out types.Task
	if err := c.doJSON(ctx, http.MethodPost, "/api/tasks", nil, in, &out); err != nil {
		return types.Task{}, err
	}
	return out, nil
}

// SetTaskStatus moves a task to another column.
func (c *Client) SetTaskStatus(ctx context.Context, id int64, status types.TaskStatus) (types.Task, error) {
	path := fmt.Sprintf("/api/tasks/%d/status", id)
	if !status.Valid() {
		return types.Task{}, apperr.Validation("PATCH "+path, fmt.Sprintf("unknown status %q", status))
	}
	var out types.Task
	body := map[string]string{"status": string(status)}
	if err := c.doJSON(ctx, http.MethodPatch, path, nil, body, &out); err != nil {
		return types.Task{}, err
	}
	return out, nil
}

// CurrentSpec returns the spec bound to channel.
func (c *Client) CurrentSpec(ctx context.Context, channel string) (types.SpecDocument, error) {
	q := url.Values{}
	q.Set("channel", channel)
	var out types.SpecDocument
	if err := c.doJSON(ctx, http.MethodGet, "/api/spec/current", q, nil, &out); err != nil {
		return types.SpecDocument{}, err
	}
	if out.Status == "" {
		out.Status = types.SpecNone
	}
	return out, nil
}

// SaveSpec stores a draft and returns the new version.
func (c *Client) SaveSpec(ctx context.Context, channel, specMD, ideaBankMD string) (types.SpecDocument, error) {
	var out types.SpecDocument
	body := map[string]string{"channel": channel, "spec_md": specMD, "idea_bank_md": ideaBankMD}
	if err := c.doJSON(ctx, http.MethodPost, "/api/spec/current", nil, body, &out); err != nil {
		return types.SpecDocument{}, err
	}
	if out.Status == "" {
		out.Status = types.SpecDraft
	}
	return out, nil
}

// ApproveSpec approves the channel's draft spec.
func (c *Client) ApproveSpec(ctx context.Context, channel, confirmText string) (types.SpecDocument, error) {
	var out types.SpecDocument
	body := map[string]string{"channel": channel, "confirm_text": confirmText}
	if err := c.doJSON(ctx, http.MethodPost, "/api/spec/approve", nil, body, &out); err != nil {
		return types.SpecDocument{}, err
	}
	if out.Status == "" {
		out.Status = types.SpecApproved
	}
	return out, nil
}

// SpecHistory returns recent spec and idea-bank snapshots.
func (c *Client) SpecHistory(ctx context.Context, project string, limit int) ([]types.SpecSnapshot, error) {
	q := limitQuery(limit)
	q.Set("project", project)
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/spec/history", q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[types.SpecSnapshot]("GET /api/spec/history", raw, "history")
}

// ActiveProject returns the project bound to channel.
func (c *Client) ActiveProject(ctx context.Context, channel string) (types.ActiveProject, error) {
	var out types.ActiveProject
	if err := c.doJSON(ctx, http.MethodGet, "/api/projects/active/"+seg(channel), nil, nil, &out); err != nil {
		return types.ActiveProject{}, err
	}
	if out.Channel == "" {
		out.Channel = channel
	}
	return out, nil
}

// CreateFromPrompt is the body of a prompt-driven project creation.
type CreateFromPrompt struct {
	Prompt      string `json:"prompt"`
	Template    string `json:"template,omitempty"`
	ProjectName string `json:"project_name,omitempty"`
}

// CreateProjectFromPrompt creates a project seeded from a prompt.
func (c *Client) CreateProjectFromPrompt(ctx context.Context, req CreateFromPrompt) (types.ProjectCreated, error) {
	if req.Prompt == "" {
		return types.ProjectCreated{}, apperr.Validation("POST /api/projects/create_from_prompt", "prompt is required")
	}
	var out types.ProjectCreated
	if err := c.doJSON(ctx, http.MethodPost, "/api/projects/create_from_prompt", nil, req, &out); err != nil {
		return types.ProjectCreated{}, err
	}
	return out, nil
}

// RenameProject sets a project's display name.
func (c *Client) RenameProject(ctx context.Context, name, displayName string) error {
	body := map[string]string{"display_name": displayName}
	return c.doJSON(ctx, http.MethodPut, "/api/projects/"+seg(name)+"/display-name", nil, body, nil)
}

// DeleteProject performs one phase of the two-phase delete. With an empty
// token the server returns a confirm_token; repeating the call with that
// token deletes the project.
func (c *Client) DeleteProject(ctx context.Context, name, confirmToken string) (types.ProjectDeletion, error) {
	q := url.Values{}
	if confirmToken != "" {
		q.Set("confirm_token", confirmToken)
	}
	var out types.ProjectDeletion
	if err := c.doJSON(ctx, http.MethodDelete, "/api/projects/"+seg(name), q, nil, &out); err != nil {
		return types.ProjectDeletion{}, err
	}
	return out, nil
}

// ImportProject uploads an archive or bundle as a new project.
func (c *Client) ImportProject(ctx context.Context, projectName, filename string, r io.Reader) (types.ProjectCreated, error) {
	var out types.ProjectCreated
	fields := map[string]string{}
	if projectName != "" {
		fields["project_name"] = projectName
	}
	if err := c.upload(ctx, "/api/projects/import", "file", filename, r, fields, &out); err != nil {
		return types.ProjectCreated{}, err
	}
	return out, nil
}

// StartAppBuilder kicks off an app-builder run.
func (c *Client) StartAppBuilder(ctx context.Context, req types.AppBuilderRequest) (map[string]any, error) {
	if req.Channel == "" || req.AppName == "" || req.Goal == "" {
		return nil, apperr.Validation("POST /api/app-builder/start", "channel, app name and goal are required")
	}
	var out map[string]any
	if err := c.doJSON(ctx, http.MethodPost, "/api/app-builder/start", nil, req, &out); err != nil {
		return nil, err
	}
	return out, nil
}
