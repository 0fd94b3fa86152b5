package types

import "time"

// ChannelKind distinguishes group rooms from direct messages.
type ChannelKind string

const (
	ChannelGroup ChannelKind = "group"
	ChannelDM    ChannelKind = "dm"
)

// Channel represents a server-side message container.
type Channel struct {
	ID              string      `json:"id"`
	Type            ChannelKind `json:"type"`
	Name            string      `json:"name"`
	AgentID         string      `json:"agent_id,omitempty"`
	LatestMessageID int64       `json:"latest_message_id,omitempty"`
	LastActivityAt  *time.Time  `json:"last_activity_at,omitempty"`
}

// Backend identifies a model provider.
type Backend string

const (
	BackendOpenAI Backend = "openai"
	BackendClaude Backend = "claude"
	BackendOllama Backend = "ollama"
)

// Backends lists every provider in display order.
var Backends = []Backend{BackendOpenAI, BackendClaude, BackendOllama}

// Agent represents an AI agent profile.
type Agent struct {
	ID             string  `json:"id"`
	DisplayName    string  `json:"display_name"`
	Role           string  `json:"role"`
	Backend        Backend `json:"backend"`
	Model          string  `json:"model"`
	Permissions    string  `json:"permissions"`
	Active         bool    `json:"active"`
	Color          string  `json:"color"`
	Emoji          string  `json:"emoji"`
	SystemPrompt   string  `json:"system_prompt"`
	ProviderKeyRef *string `json:"provider_key_ref,omitempty"`
	BaseURL        *string `json:"base_url,omitempty"`
}

// AgentPatch is a partial agent update.
type AgentPatch struct {
	DisplayName    *string  `json:"display_name,omitempty"`
	Role           *string  `json:"role,omitempty"`
	Backend        *Backend `json:"backend,omitempty"`
	Model          *string  `json:"model,omitempty"`
	Permissions    *string  `json:"permissions,omitempty"`
	Active         *bool    `json:"active,omitempty"`
	Color          *string  `json:"color,omitempty"`
	Emoji          *string  `json:"emoji,omitempty"`
	SystemPrompt   *string  `json:"system_prompt,omitempty"`
	ProviderKeyRef *string  `json:"provider_key_ref,omitempty"`
	BaseURL        *string  `json:"base_url,omitempty"`
}

// MessageType represents the kind of a channel message.
type MessageType string

const (
	MessageTypeMessage    MessageType = "message"
	MessageTypeSystem     MessageType = "system"
	MessageTypeReview     MessageType = "review"
	MessageTypeDecision   MessageType = "decision"
	MessageTypeToolResult MessageType = "tool_result"
)

// SenderUser and SenderSystem are the non-agent senders.
const (
	SenderUser   = "user"
	SenderSystem = "system"
)

// Message represents a channel message. IDs increase strictly within a channel.
type Message struct {
	ID        int64       `json:"id"`
	Channel   string      `json:"channel"`
	Sender    string      `json:"sender"`
	CreatedAt time.Time   `json:"created_at"`
	Content   string      `json:"content"`
	MsgType   MessageType `json:"msg_type"`
	ParentID  *int64      `json:"parent_id,omitempty"`
	ClientID  string      `json:"client_id,omitempty"`
}

// ReactionCount is the aggregate for one emoji.
type ReactionCount struct {
	Count int `json:"count"`
}

// ReactionSummary maps emoji to its aggregate.
type ReactionSummary map[string]ReactionCount

// Clone returns a copy of the summary.
func (r ReactionSummary) Clone() ReactionSummary {
	if r == nil {
		return nil
	}
	out := make(ReactionSummary, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// ChannelActivity is the latest message watermark for a channel.
type ChannelActivity struct {
	ChannelID       string `json:"channel_id"`
	LatestMessageID int64  `json:"latest_message_id"`
}

// FileDescriptor describes an uploaded attachment.
type FileDescriptor struct {
	FileName     string `json:"file_name"`
	OriginalName string `json:"original_name"`
	Path         string `json:"path"`
	URL          string `json:"url"`
	Size         int64  `json:"size"`
	ContentType  string `json:"content_type"`
}

// TaskStatus represents the board column of a task.
type TaskStatus string

const (
	TaskBacklog    TaskStatus = "backlog"
	TaskInProgress TaskStatus = "in_progress"
	TaskReview     TaskStatus = "review"
	TaskBlocked    TaskStatus = "blocked"
	TaskDone       TaskStatus = "done"
)

// Valid reports whether s is a known task status.
func (s TaskStatus) Valid() bool {
	switch s {
	case TaskBacklog, TaskInProgress, TaskReview, TaskBlocked, TaskDone:
		return true
	}
	return false
}

// Task represents a board task.
type Task struct {
	ID          int64      `json:"id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Assignee    string     `json:"assignee"`
	Status      TaskStatus `json:"status"`
	Priority    int        `json:"priority"`
	Project     string     `json:"project,omitempty"`
	Branch      string     `json:"branch,omitempty"`
}

// TaskInput is the body for task creation.
type TaskInput struct {
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Assignee    string `json:"assignee,omitempty"`
	Priority    int    `json:"priority"`
	Project     string `json:"project,omitempty"`
	Branch      string `json:"branch,omitempty"`
}

// SpecStatus represents the approval state of a spec.
type SpecStatus string

const (
	SpecNone     SpecStatus = "none"
	SpecDraft    SpecStatus = "draft"
	SpecApproved SpecStatus = "approved"
)

// SpecDocument is the server view of a project spec.
type SpecDocument struct {
	Project     string     `json:"project"`
	Status      SpecStatus `json:"status"`
	SpecVersion int        `json:"spec_version"`
	SpecMD      string     `json:"spec_md"`
	IdeaBankMD  string     `json:"idea_bank_md"`
}

// SpecSnapshot is one entry of the spec history.
type SpecSnapshot struct {
	ID          int64     `json:"id"`
	Kind        string    `json:"kind"`
	SpecVersion int       `json:"spec_version"`
	Content     string    `json:"content"`
	CreatedAt   time.Time `json:"created_at"`
}

// ProviderConfig is the settings view of one provider.
type ProviderConfig struct {
	Provider     Backend    `json:"provider"`
	HasKey       bool       `json:"has_key"`
	MaskedKey    string     `json:"masked_key,omitempty"`
	KeyRef       string     `json:"key_ref,omitempty"`
	DefaultModel string     `json:"default_model,omitempty"`
	BaseURL      string     `json:"base_url,omitempty"`
	LastTestedAt *time.Time `json:"last_tested_at,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	Available    *bool      `json:"available,omitempty"`
}

// ProviderDiagnostic caches the last test outcome for a provider.
type ProviderDiagnostic struct {
	LastTestAt   time.Time      `json:"last_test_at"`
	LatencyMS    int64          `json:"latency_ms"`
	OK           bool           `json:"ok"`
	Status       int            `json:"status,omitempty"`
	ErrorSummary string         `json:"error_summary,omitempty"`
	Details      map[string]any `json:"details,omitempty"`
}

// ProviderTestResult is the server response to a provider test.
type ProviderTestResult struct {
	OK        bool           `json:"ok"`
	LatencyMS *int64         `json:"latency_ms,omitempty"`
	Model     string         `json:"model,omitempty"`
	Error     string         `json:"error,omitempty"`
	Code      string         `json:"code,omitempty"`
	Status    int            `json:"status,omitempty"`
	RequestID string         `json:"request_id,omitempty"`
	Hint      string         `json:"hint,omitempty"`
	Details   map[string]any `json:"details,omitempty"`
}

// AgentCredential is a per-agent credential override.
type AgentCredential struct {
	AgentID   string  `json:"agent_id"`
	Backend   Backend `json:"backend"`
	HasKey    bool    `json:"has_key"`
	MaskedKey string  `json:"masked_key,omitempty"`
	BaseURL   string  `json:"base_url,omitempty"`
	Model     string  `json:"model,omitempty"`
}

// UsageBudget is the monthly budget setting.
type UsageBudget struct {
	BudgetUSD float64 `json:"budget_usd"`
	SpentUSD  float64 `json:"spent_usd,omitempty"`
}

// UsageSummary aggregates spend per provider.
type UsageSummary struct {
	TotalUSD    float64            `json:"total_usd"`
	ByProvider  map[string]float64 `json:"by_provider,omitempty"`
	TotalTokens int64              `json:"total_tokens,omitempty"`
}

// ActiveProject is the project bound to a channel.
type ActiveProject struct {
	Channel     string `json:"channel"`
	Project     string `json:"project"`
	DisplayName string `json:"display_name,omitempty"`
	Branch      string `json:"branch,omitempty"`
	Path        string `json:"path,omitempty"`
}

// ProjectCreated is the response to create_from_prompt.
type ProjectCreated struct {
	Project string `json:"project"`
	Channel string `json:"channel,omitempty"`
	Path    string `json:"path,omitempty"`
}

// ProjectDeletion is the response of either phase of a project delete.
type ProjectDeletion struct {
	OK           bool   `json:"ok"`
	ConfirmToken string `json:"confirm_token,omitempty"`
	Deleted      bool   `json:"deleted,omitempty"`
}

// AppBuilderRequest starts an app-builder run.
type AppBuilderRequest struct {
	Channel      string `json:"channel"`
	AppName      string `json:"app_name"`
	Goal         string `json:"goal"`
	Stack        string `json:"stack"`
	TargetDir    string `json:"target_dir,omitempty"`
	IncludeTests bool   `json:"include_tests"`
}

// PulseStatus reports the background pulse loop.
type PulseStatus struct {
	Running  bool   `json:"running"`
	Interval int    `json:"interval_seconds,omitempty"`
	LastRun  string `json:"last_run,omitempty"`
}

// ReleaseGate is a release readiness verdict.
type ReleaseGate struct {
	Status    string         `json:"status"`
	Checks    map[string]any `json:"checks,omitempty"`
	CreatedAt string         `json:"created_at,omitempty"`
}

// AuditEntry is one audit log row.
type AuditEntry struct {
	ID        int64     `json:"id"`
	Channel   string    `json:"channel"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// ConsoleEvent is one tool/console event for a channel.
type ConsoleEvent struct {
	ID        int64          `json:"id"`
	Channel   string         `json:"channel"`
	Kind      string         `json:"kind"`
	Message   string         `json:"message"`
	Data      map[string]any `json:"data,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// Process is a managed process on the backend.
type Process struct {
	ID      string `json:"id"`
	Channel string `json:"channel,omitempty"`
	Command string `json:"command"`
	Status  string `json:"status"`
	Port    int    `json:"port,omitempty"`
	URL     string `json:"url,omitempty"`
}

// Approval is a pending tool approval request.
type Approval struct {
	ID        string    `json:"id"`
	Channel   string    `json:"channel"`
	AgentID   string    `json:"agent_id"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail"`
	CreatedAt time.Time `json:"created_at"`
}

// MemoryStats summarises agent memory for a project.
type MemoryStats struct {
	Project string         `json:"project"`
	Counts  map[string]int `json:"counts"`
}

// MemoryEraseRequest erases memory scopes.
type MemoryEraseRequest struct {
	Project       string   `json:"project"`
	Scopes        []string `json:"scopes"`
	ClearMessages bool     `json:"also_clear_messages,omitempty"`
	ClearTasks    bool     `json:"also_clear_tasks,omitempty"`
	ConfirmText   string   `json:"confirm_text"`
}

// GitStatus is the working tree status of a project.
type GitStatus struct {
	Branch  string   `json:"branch"`
	Clean   bool     `json:"clean"`
	Changed []string `json:"changed,omitempty"`
	Ahead   int      `json:"ahead,omitempty"`
	Behind  int      `json:"behind,omitempty"`
}

// GitCommit is one log entry.
type GitCommit struct {
	Hash    string `json:"hash"`
	Author  string `json:"author"`
	Date    string `json:"date"`
	Message string `json:"message"`
}

// MergePreview describes a pending merge.
type MergePreview struct {
	Source    string   `json:"source"`
	Target    string   `json:"target"`
	Conflicts []string `json:"conflicts,omitempty"`
	Files     []string `json:"files,omitempty"`
	CanMerge  bool     `json:"can_merge"`
}
