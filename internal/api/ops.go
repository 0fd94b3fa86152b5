package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/types"
)

// EraseConfirmation is the phrase a memory erase must carry.
const EraseConfirmation = "ERASE"

// PulseStatus reports the pulse loop.
func (c *Client) PulseStatus(ctx context.Context) (types.PulseStatus, error) {
	var out types.PulseStatus
	err := c.doJSON(ctx, http.MethodGet, "/api/pulse/status", nil, nil, &out)
	return out, err
}

// StartPulse starts the pulse loop.
func (c *Client) StartPulse(ctx context.Context) (types.PulseStatus, error) {
	var out types.PulseStatus
	err := c.doJSON(ctx, http.MethodPost, "/api/pulse/start", nil, struct{}{}, &out)
	return out, err
}

// StopPulse stops the pulse loop.
func (c *Client) StopPulse(ctx context.Context) (types.PulseStatus, error) {
	var out types.PulseStatus
	err := c.doJSON(ctx, http.MethodPost, "/api/pulse/stop", nil, struct{}{}, &out)
	return out, err
}

// ReleaseGate returns the latest release verdict.
func (c *Client) ReleaseGate(ctx context.Context) (types.ReleaseGate, error) {
	var out types.ReleaseGate
	err := c.doJSON(ctx, http.MethodGet, "/api/release-gate", nil, nil, &out)
	return out, err
}

// RunReleaseGate evaluates the release gate now.
func (c *Client) RunReleaseGate(ctx context.Context) (types.ReleaseGate, error) {
	var out types.ReleaseGate
	err := c.doJSON(ctx, http.MethodPost, "/api/release-gate", nil, struct{}{}, &out)
	return out, err
}

// ReleaseGateHistory returns past release verdicts.
func (c *Client) ReleaseGateHistory(ctx context.Context) ([]types.ReleaseGate, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/release-gate/history", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[types.ReleaseGate]("GET /api/release-gate/history", raw, "history")
}

// Audit returns audit rows for channel.
func (c *Client) Audit(ctx context.Context, channel string, limit int) ([]types.AuditEntry, error) {
	q := limitQuery(limit)
	if channel != "" {
		q.Set("channel", channel)
	}
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/audit", q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[types.AuditEntry]("GET /api/audit", raw, "entries")
}

// ConsoleEvents returns tool/console events for channel.
func (c *Client) ConsoleEvents(ctx context.Context, channel string) ([]types.ConsoleEvent, error) {
	var raw json.RawMessage
	path := "/api/console/events/" + seg(channel)
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[types.ConsoleEvent]("GET "+path, raw, "events")
}

// Processes lists managed processes.
func (c *Client) Processes(ctx context.Context) ([]types.Process, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/process/list", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[types.Process]("GET /api/process/list", raw, "processes")
}

// StopProcess stops a managed process.
func (c *Client) StopProcess(ctx context.Context, id string) error {
	body := map[string]string{"id": id}
	return c.doJSON(ctx, http.MethodPost, "/api/process/stop", nil, body, nil)
}

// PendingApprovals lists tool approvals awaiting the user.
func (c *Client) PendingApprovals(ctx context.Context) ([]types.Approval, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/approvals/pending", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[types.Approval]("GET /api/approvals/pending", raw, "approvals")
}

// MemoryStats summarises agent memory for project.
func (c *Client) MemoryStats(ctx context.Context, project string) (types.MemoryStats, error) {
	q := url.Values{}
	q.Set("project", project)
	var out types.MemoryStats
	err := c.doJSON(ctx, http.MethodGet, "/api/memory/stats", q, nil, &out)
	return out, err
}

// EraseMemory erases memory scopes. The request must carry the typed
// confirmation phrase; otherwise the server is not contacted.
func (c *Client) EraseMemory(ctx context.Context, req types.MemoryEraseRequest) error {
	if req.ConfirmText != EraseConfirmation {
		return apperr.Validation("POST /api/memory/erase", "type ERASE to confirm")
	}
	if len(req.Scopes) == 0 && !req.ClearMessages && !req.ClearTasks {
		return apperr.Validation("POST /api/memory/erase", "select at least one scope")
	}
	return c.doJSON(ctx, http.MethodPost, "/api/memory/erase", nil, req, nil)
}

func gitPath(project, op string) string {
	return "/api/projects/" + seg(project) + "/git/" + op
}

// GitStatus returns the working tree status.
func (c *Client) GitStatus(ctx context.Context, project string) (types.GitStatus, error) {
	var out types.GitStatus
	err := c.doJSON(ctx, http.MethodGet, gitPath(project, "status"), nil, nil, &out)
	return out, err
}

// GitLog returns recent commits.
func (c *Client) GitLog(ctx context.Context, project string, limit int) ([]types.GitCommit, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, gitPath(project, "log"), limitQuery(limit), nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[types.GitCommit]("GET "+gitPath(project, "log"), raw, "commits")
}

// GitDiff returns the working tree diff.
func (c *Client) GitDiff(ctx context.Context, project string) (string, error) {
	var out struct {
		Diff string `json:"diff"`
	}
	err := c.doJSON(ctx, http.MethodGet, gitPath(project, "diff"), nil, nil, &out)
	return out.Diff, err
}

// GitBranches lists branches.
func (c *Client) GitBranches(ctx context.Context, project string) ([]string, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, gitPath(project, "branches"), nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[string]("GET "+gitPath(project, "branches"), raw, "branches")
}

// GitCommit commits the working tree.
func (c *Client) GitCommit(ctx context.Context, project, message string) (types.GitCommit, error) {
	if message == "" {
		return types.GitCommit{}, apperr.Validation("POST "+gitPath(project, "commit"), "commit message is required")
	}
	var out types.GitCommit
	body := map[string]string{"message": message}
	err := c.doJSON(ctx, http.MethodPost, gitPath(project, "commit"), nil, body, &out)
	return out, err
}

// GitBranch creates a branch.
func (c *Client) GitBranch(ctx context.Context, project, name string) error {
	body := map[string]string{"name": name}
	return c.doJSON(ctx, http.MethodPost, gitPath(project, "branch"), nil, body, nil)
}

// MergePreview previews merging source into target.
func (c *Client) MergePreview(ctx context.Context, project, source, target string) (types.MergePreview, error) {
	var out types.MergePreview
	body := map[string]string{"source": source, "target": target}
	err := c.doJSON(ctx, http.MethodPost, "/api/projects/"+seg(project)+"/merge-preview", nil, body, &out)
	return out, err
}

// MergeApply merges source into target. confirmed must reflect an explicit
// user confirmation.
func (c *Client) MergeApply(ctx context.Context, project, source, target string, confirmed bool) (types.MergePreview, error) {
	path := "/api/projects/" + seg(project) + "/merge-apply"
	if !confirmed {
		return types.MergePreview{}, apperr.Validation("POST "+path, "merge must be confirmed")
	}
	var out types.MergePreview
	body := map[string]string{"source": source, "target": target}
	err := c.doJSON(ctx, http.MethodPost, path, nil, body, &out)
	return out, err
}
