// Package settings manages provider key references, per-agent runtime
// bindings, credential overrides and provider diagnostics.
package settings

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/adamavenir/aioffice/internal/api"
	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/kv"
	"github.com/adamavenir/aioffice/internal/types"
)

// Remote is the server surface used by the settings engine.
type Remote interface {
	Providers(ctx context.Context) ([]types.ProviderConfig, error)
	SettingsProviders(ctx context.Context) (map[types.Backend]types.ProviderConfig, error)
	SaveSettingsProviders(ctx context.Context, patch map[types.Backend]api.ProviderSettingsPatch) (map[types.Backend]types.ProviderConfig, error)
	SaveProvider(ctx context.Context, req api.ProviderSave) (types.ProviderConfig, error)
	TestProvider(ctx context.Context, req api.ProviderTest) (types.ProviderTestResult, error)
	ListAgents(ctx context.Context, activeOnly bool) ([]types.Agent, error)
	PatchAgent(ctx context.Context, id string, patch types.AgentPatch) (types.Agent, error)
	RepairAgents(ctx context.Context) (api.RepairResult, error)
	AgentCredential(ctx context.Context, agentID string) ([]types.AgentCredential, error)
	SaveAgentCredential(ctx context.Context, agentID string, req api.CredentialSave) (types.ProviderTestResult, error)
	ClearAgentCredential(ctx context.Context, agentID string, backend types.Backend) error
	UsageBudget(ctx context.Context) (types.UsageBudget, error)
	SetUsageBudget(ctx context.Context, budgetUSD float64) (types.UsageBudget, error)
	UsageSummary(ctx context.Context) (types.UsageSummary, error)
}

// Runtime sources reported for an agent.
const (
	SourceOverride = "agent override"
	SourceProvider = "provider default"
)

// ProviderDraft is the unsaved provider form.
type ProviderDraft struct {
	KeyRef       string
	APIKey       string
	BaseURL      string
	DefaultModel string
}

// Snapshot is a consistent copy of the engine state.
type Snapshot struct {
	Providers   map[types.Backend]types.ProviderConfig
	Agents      []types.Agent
	Diagnostics map[types.Backend]types.ProviderDiagnostic
}

// Engine caches provider and agent settings.
type Engine struct {
	remote Remote
	store  *kv.Store
	now    func() time.Time
	log    *slog.Logger

	mu        sync.Mutex
	providers map[types.Backend]types.ProviderConfig
	agents    []types.Agent
	overrides map[string][]types.AgentCredential
	drafts    map[types.Backend]ProviderDraft
}

// New creates an engine.
func New(remote Remote, store *kv.Store) *Engine {
	return &Engine{
		remote:    remote,
		store:     store,
		now:       time.Now,
		log:       slog.Default().With("component", "settings"),
		providers: make(map[types.Backend]types.ProviderConfig),
		overrides: make(map[string][]types.AgentCredential),
		drafts:    make(map[types.Backend]ProviderDraft),
	}
}

// SetClock overrides the wall clock.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

func knownBackend(b types.Backend) bool {
	for _, k := range types.Backends {
		if k == b {
			return true
		}
	}
	return false
}

// Refresh reloads providers and agents.
func (e *Engine) Refresh(ctx context.Context) error {
	if err := e.RefreshProviders(ctx); err != nil {
		return err
	}
	return e.RefreshAgents(ctx)
}

// RefreshProviders merges /api/providers with the settings map; the
// settings map wins per field when both report a provider.
func (e *Engine) RefreshProviders(ctx context.Context) error {
	list, err := e.remote.Providers(ctx)
	if err != nil {
		return err
	}
	settings, err := e.remote.SettingsProviders(ctx)
	if err != nil {
		return err
	}
	merged := make(map[types.Backend]types.ProviderConfig, len(types.Backends))
	for _, p := range list {
		merged[p.Provider] = p
	}
	for name, p := range settings {
		merged[name] = overlayProvider(merged[name], p)
	}
	e.mu.Lock()
	e.providers = merged
	e.mu.Unlock()
	return nil
}

func overlayProvider(base, p types.ProviderConfig) types.ProviderConfig {
	if p.Provider != "" {
		base.Provider = p.Provider
	}
	base.HasKey = base.HasKey || p.HasKey
	if p.MaskedKey != "" {
		base.MaskedKey = p.MaskedKey
	}
	if p.KeyRef != "" {
		base.KeyRef = p.KeyRef
	}
	if p.DefaultModel != "" {
		base.DefaultModel = p.DefaultModel
	}
	if p.BaseURL != "" {
		base.BaseURL = p.BaseURL
	}
	if p.LastTestedAt != nil {
		base.LastTestedAt = p.LastTestedAt
	}
	if p.LastError != "" {
		base.LastError = p.LastError
	}
	if p.Available != nil {
		base.Available = p.Available
	}
	return base
}

// RefreshAgents reloads every agent, active or not.
func (e *Engine) RefreshAgents(ctx context.Context) error {
	agents, err := e.remote.ListAgents(ctx, false)
	if err != nil {
		return err
	}
	sort.SliceStable(agents, func(i, j int) bool { return agents[i].ID < agents[j].ID })
	e.mu.Lock()
	e.agents = agents
	e.mu.Unlock()
	return nil
}

// Snapshot returns a copy of the cached state plus stored diagnostics.
func (e *Engine) Snapshot() Snapshot {
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Snapshot{
		Providers:   make(map[types.Backend]types.ProviderConfig, len(e.providers)),
		Agents:      append([]types.Agent(nil), e.agents...),
		Diagnostics: make(map[types.Backend]types.ProviderDiagnostic),
	}
	for k, v := range e.providers {
		s.Providers[k] = v
	}
	for _, b := range types.Backends {
		if d, ok := e.Diagnostic(b); ok {
			s.Diagnostics[b] = d
		}
	}
	return s
}

// Provider returns the cached config of b.
func (e *Engine) Provider(b types.Backend) (types.ProviderConfig, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	p, ok := e.providers[b]
	return p, ok
}

// Agents returns the cached agents.
func (e *Engine) Agents() []types.Agent {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]types.Agent(nil), e.agents...)
}

// Draft returns the unsaved form for b.
func (e *Engine) Draft(b types.Backend) ProviderDraft {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.drafts[b]
}

// SetDraft replaces the unsaved form for b.
func (e *Engine) SetDraft(b types.Backend, d ProviderDraft) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.drafts[b] = d
}

// SaveProvider posts the draft of b. On success the cached mask is updated
// and the draft's API key is cleared.
func (e *Engine) SaveProvider(ctx context.Context, b types.Backend) (types.ProviderConfig, error) {
	const op = "settings.save_provider"
	if !knownBackend(b) {
		return types.ProviderConfig{}, apperr.Validation(op, fmt.Sprintf("unknown provider %q", b))
	}
	d := e.Draft(b)
	req := api.ProviderSave{
		Provider:     b,
		KeyRef:       strings.TrimSpace(d.KeyRef),
		APIKey:       strings.TrimSpace(d.APIKey),
		BaseURL:      strings.TrimSpace(d.BaseURL),
		DefaultModel: strings.TrimSpace(d.DefaultModel),
	}
	saved, err := e.remote.SaveProvider(ctx, req)
	if err != nil {
		return types.ProviderConfig{}, err
	}
	if req.APIKey != "" {
		saved.HasKey = true
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	merged := overlayProvider(e.providers[b], saved)
	e.providers[b] = merged
	d = e.drafts[b]
	d.APIKey = ""
	e.drafts[b] = d
	return merged, nil
}

// PatchProviderSettings applies a settings patch and refreshes the cache
// with the providers the server returns.
func (e *Engine) PatchProviderSettings(ctx context.Context, patch map[types.Backend]api.ProviderSettingsPatch) error {
	updated, err := e.remote.SaveSettingsProviders(ctx, patch)
	if err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for name, p := range updated {
		e.providers[name] = overlayProvider(e.providers[name], p)
	}
	return nil
}

// HasAgentBinding reports whether an agent names both a backend and a model.
func HasAgentBinding(a types.Agent) bool {
	return strings.TrimSpace(string(a.Backend)) != "" && strings.TrimSpace(a.Model) != ""
}

// RouteAgent binds an agent to a backend and model.
func (e *Engine) RouteAgent(ctx context.Context, id string, backend types.Backend, model string) (types.Agent, error) {
	const op = "settings.route_agent"
	if !knownBackend(backend) {
		return types.Agent{}, apperr.Validation(op, fmt.Sprintf("unknown provider %q", backend))
	}
	if strings.TrimSpace(model) == "" {
		return types.Agent{}, apperr.Validation(op, "model is required")
	}
	updated, err := e.remote.PatchAgent(ctx, id, types.AgentPatch{Backend: &backend, Model: &model})
	if err != nil {
		return types.Agent{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, a := range e.agents {
		if a.ID == id {
			e.agents[i] = updated
			return updated, nil
		}
	}
	e.agents = append(e.agents, updated)
	return updated, nil
}

// RepairAgents restores missing default agents and reloads the list.
func (e *Engine) RepairAgents(ctx context.Context) (api.RepairResult, error) {
	res, err := e.remote.RepairAgents(ctx)
	if err != nil {
		return api.RepairResult{}, err
	}
	if err := e.RefreshAgents(ctx); err != nil {
		return res, err
	}
	return res, nil
}

// LoadOverrides fetches an agent's credential overrides.
func (e *Engine) LoadOverrides(ctx context.Context, agentID string) ([]types.AgentCredential, error) {
	creds, err := e.remote.AgentCredential(ctx, agentID)
	if err != nil {
		return nil, err
	}
	e.mu.Lock()
	e.overrides[agentID] = creds
	e.mu.Unlock()
	return creds, nil
}

// SaveOverride stores an agent credential override and reloads it.
func (e *Engine) SaveOverride(ctx context.Context, agentID string, req api.CredentialSave) error {
	if !knownBackend(req.Backend) {
		return apperr.Validation("settings.save_override", fmt.Sprintf("unknown provider %q", req.Backend))
	}
	req.Test = false
	if _, err := e.remote.SaveAgentCredential(ctx, agentID, req); err != nil {
		return err
	}
	_, err := e.LoadOverrides(ctx, agentID)
	return err
}

// TestOverride checks an agent credential without storing it.
func (e *Engine) TestOverride(ctx context.Context, agentID string, req api.CredentialSave) (Outcome, error) {
	req.Test = true
	start := e.now()
	res, err := e.remote.SaveAgentCredential(ctx, agentID, req)
	return e.outcome(req.Backend, start, res, err, false)
}

// ClearOverride removes an agent's override for backend.
func (e *Engine) ClearOverride(ctx context.Context, agentID string, backend types.Backend) error {
	if err := e.remote.ClearAgentCredential(ctx, agentID, backend); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	kept := e.overrides[agentID][:0:0]
	for _, c := range e.overrides[agentID] {
		if c.Backend != backend {
			kept = append(kept, c)
		}
	}
	e.overrides[agentID] = kept
	return nil
}

// RuntimeSource reports where an agent's credentials come from.
func (e *Engine) RuntimeSource(a types.Agent) string {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, c := range e.overrides[a.ID] {
		if c.HasKey && (c.Backend == a.Backend || c.Backend == "") {
			return SourceOverride
		}
	}
	if a.ProviderKeyRef != nil && *a.ProviderKeyRef != "" {
		return SourceOverride
	}
	return SourceProvider
}

// Budget returns the usage budget.
func (e *Engine) Budget(ctx context.Context) (types.UsageBudget, error) {
	return e.remote.UsageBudget(ctx)
}

// SetBudget updates the usage budget.
func (e *Engine) SetBudget(ctx context.Context, usd float64) (types.UsageBudget, error) {
	return e.remote.SetUsageBudget(ctx, usd)
}

// Usage returns the spend summary.
func (e *Engine) Usage(ctx context.Context) (types.UsageSummary, error) {
	return e.remote.UsageSummary(ctx)
}

// Settings categories.
var Categories = []string{"providers", "agents", "usage", "diagnostics", "appearance"}

func categoryKey() string {
	return kv.Key(kv.DomainSettingsCategory, kv.GlobalScope)
}

// Category returns the focused settings category.
func Category(store *kv.Store) string {
	c := kv.Read(store, categoryKey(), Categories[0])
	for _, known := range Categories {
		if c == known {
			return c
		}
	}
	return Categories[0]
}

// SetCategory focuses a settings category.
func SetCategory(store *kv.Store, c string) error {
	for _, known := range Categories {
		if c == known {
			store.Write(categoryKey(), c)
			return nil
		}
	}
	return apperr.Validation("settings.category", fmt.Sprintf("unknown category %q", c))
}
