package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/types"
)

// decodeList accepts either a bare JSON array or an object holding the
// array under key.
func decodeList[T any](op string, raw json.RawMessage, key string) ([]T, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil, nil
	}
	var out []T
	if raw[0] == '[' {
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, apperr.Server(op, http.StatusOK, fmt.Sprintf("decode response: %v", err))
		}
		return out, nil
	}
	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(raw, &envelope); err != nil {
		return nil, apperr.Server(op, http.StatusOK, fmt.Sprintf("decode response: %v", err))
	}
	inner, ok := envelope[key]
	if !ok {
		return nil, nil
	}
	if err := json.Unmarshal(inner, &out); err != nil {
		return nil, apperr.Server(op, http.StatusOK, fmt.Sprintf("decode %s: %v", key, err))
	}
	return out, nil
}

// ListAgents returns agents; activeOnly=false includes inactive ones.
func (c *Client) ListAgents(ctx context.Context, activeOnly bool) ([]types.Agent, error) {
	q := url.Values{}
	q.Set("active_only", strconv.FormatBool(activeOnly))
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/agents", q, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[types.Agent]("GET /api/agents", raw, "agents")
}

// PatchAgent applies a partial update to an agent.
func (c *Client) PatchAgent(ctx context.Context, id string, patch types.AgentPatch) (types.Agent, error) {
	var out types.Agent
	if err := c.doJSON(ctx, http.MethodPatch, "/api/agents/"+seg(id), nil, patch, &out); err != nil {
		return types.Agent{}, err
	}
	return out, nil
}

// RepairResult reports what an agent repair changed.
type RepairResult struct {
	OK       bool     `json:"ok"`
	Repaired []string `json:"repaired,omitempty"`
}

// RepairAgents asks the server to restore missing default agents.
func (c *Client) RepairAgents(ctx context.Context) (RepairResult, error) {
	var out RepairResult
	if err := c.doJSON(ctx, http.MethodPost, "/api/agents/repair", nil, struct{}{}, &out); err != nil {
		return RepairResult{}, err
	}
	return out, nil
}

// Providers returns the provider summary list.
func (c *Client) Providers(ctx context.Context) ([]types.ProviderConfig, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/providers", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[types.ProviderConfig]("GET /api/providers", raw, "providers")
}

// ProviderSave is the body of a provider save.
type ProviderSave struct {
	Provider     types.Backend `json:"provider"`
	KeyRef       string        `json:"key_ref,omitempty"`
	APIKey       string        `json:"api_key,omitempty"`
	BaseURL      string        `json:"base_url,omitempty"`
	DefaultModel string        `json:"default_model,omitempty"`
}

// SaveProvider stores a provider key reference and defaults.
func (c *Client) SaveProvider(ctx context.Context, req ProviderSave) (types.ProviderConfig, error) {
	var out types.ProviderConfig
	if err := c.doJSON(ctx, http.MethodPost, "/api/providers", nil, req, &out); err != nil {
		return types.ProviderConfig{}, err
	}
	if out.Provider == "" {
		out.Provider = req.Provider
	}
	return out, nil
}

// ProviderTest is the body of a provider test.
type ProviderTest struct {
	Provider types.Backend `json:"provider"`
	APIKey   string        `json:"api_key,omitempty"`
	Model    string        `json:"model,omitempty"`
	BaseURL  string        `json:"base_url,omitempty"`
}

// TestProvider checks a provider. With an explicit key the generic endpoint
// is used; otherwise the provider's stored credentials are tested.
func (c *Client) TestProvider(ctx context.Context, req ProviderTest) (types.ProviderTestResult, error) {
	var out types.ProviderTestResult
	path := "/api/providers/" + seg(string(req.Provider)) + "/test"
	if req.APIKey != "" {
		path = "/api/providers/test"
	}
	if err := c.doJSON(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return types.ProviderTestResult{}, err
	}
	return out, nil
}

// SettingsProviders returns the per-provider settings map.
func (c *Client) SettingsProviders(ctx context.Context) (map[types.Backend]types.ProviderConfig, error) {
	var raw json.RawMessage
	if err := c.doJSON(ctx, http.MethodGet, "/api/settings/providers", nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeProviderMap(raw)
}

// ProviderSettingsPatch updates one provider's settings.
type ProviderSettingsPatch struct {
	KeyRef       *string `json:"key_ref,omitempty"`
	BaseURL      *string `json:"base_url,omitempty"`
	DefaultModel *string `json:"default_model,omitempty"`
}

// SaveSettingsProviders applies per-provider patches and returns the result.
func (c *Client) SaveSettingsProviders(ctx context.Context, patch map[types.Backend]ProviderSettingsPatch) (map[types.Backend]types.ProviderConfig, error) {
	var raw json.RawMessage
	body := map[string]any{"providers": patch}
	if err := c.doJSON(ctx, http.MethodPost, "/api/settings/providers", nil, body, &raw); err != nil {
		return nil, err
	}
	return decodeProviderMap(raw)
}

func decodeProviderMap(raw json.RawMessage) (map[types.Backend]types.ProviderConfig, error) {
	raw = bytes.TrimSpace(raw)
	out := make(map[types.Backend]types.ProviderConfig)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return out, nil
	}
	if raw[0] == '[' {
		list, err := decodeList[types.ProviderConfig]("GET /api/settings/providers", raw, "")
		if err != nil {
			return nil, err
		}
		for _, p := range list {
			out[p.Provider] = p
		}
		return out, nil
	}
	var envelope struct {
		Providers json.RawMessage `json:"providers"`
	}
	if err := json.Unmarshal(raw, &envelope); err == nil && len(envelope.Providers) > 0 {
		return decodeProviderMap(envelope.Providers)
	}
	var byName map[types.Backend]types.ProviderConfig
	if err := json.Unmarshal(raw, &byName); err != nil {
		return nil, apperr.Server("GET /api/settings/providers", http.StatusOK, fmt.Sprintf("decode response: %v", err))
	}
	for name, p := range byName {
		if p.Provider == "" {
			p.Provider = name
		}
		out[name] = p
	}
	return out, nil
}

// ProviderStatus reports whether a provider backend is reachable.
func (c *Client) ProviderStatus(ctx context.Context, provider types.Backend) (bool, error) {
	var out struct {
		Available bool `json:"available"`
	}
	if err := c.doJSON(ctx, http.MethodGet, "/api/"+seg(string(provider))+"/status", nil, nil, &out); err != nil {
		return false, err
	}
	return out.Available, nil
}

// AgentCredential returns an agent's credential override, if any.
func (c *Client) AgentCredential(ctx context.Context, agentID string) ([]types.AgentCredential, error) {
	var raw json.RawMessage
	path := "/api/agents/" + seg(agentID) + "/credentials"
	if err := c.doJSON(ctx, http.MethodGet, path, nil, nil, &raw); err != nil {
		return nil, err
	}
	return decodeList[types.AgentCredential]("GET "+path, raw, "credentials")
}

// CredentialSave is the body of an agent credential save.
type CredentialSave struct {
	Backend types.Backend `json:"backend"`
	APIKey  string        `json:"api_key,omitempty"`
	BaseURL string        `json:"base_url,omitempty"`
	Model   string        `json:"model,omitempty"`
	Test    bool          `json:"test,omitempty"`
}

// SaveAgentCredential stores (or, with Test, checks) an agent override.
func (c *Client) SaveAgentCredential(ctx context.Context, agentID string, req CredentialSave) (types.ProviderTestResult, error) {
	var out types.ProviderTestResult
	path := "/api/agents/" + seg(agentID) + "/credentials"
	if err := c.doJSON(ctx, http.MethodPost, path, nil, req, &out); err != nil {
		return types.ProviderTestResult{}, err
	}
	return out, nil
}

// ClearAgentCredential removes an agent's override for backend.
func (c *Client) ClearAgentCredential(ctx context.Context, agentID string, backend types.Backend) error {
	q := url.Values{}
	q.Set("backend", string(backend))
	return c.doJSON(ctx, http.MethodDelete, "/api/agents/"+seg(agentID)+"/credentials", q, nil, nil)
}

// UsageBudget returns the configured spend budget.
func (c *Client) UsageBudget(ctx context.Context) (types.UsageBudget, error) {
	var out types.UsageBudget
	if err := c.doJSON(ctx, http.MethodGet, "/api/usage/budget", nil, nil, &out); err != nil {
		return types.UsageBudget{}, err
	}
	return out, nil
}

// SetUsageBudget updates the spend budget.
func (c *Client) SetUsageBudget(ctx context.Context, budgetUSD float64) (types.UsageBudget, error) {
	if budgetUSD < 0 {
		return types.UsageBudget{}, apperr.Validation("PUT /api/usage/budget", "budget must not be negative")
	}
	var out types.UsageBudget
	body := map[string]float64{"budget_usd": budgetUSD}
	if err := c.doJSON(ctx, http.MethodPut, "/api/usage/budget", nil, body, &out); err != nil {
		return types.UsageBudget{}, err
	}
	return out, nil
}

// UsageSummary returns aggregated spend.
func (c *Client) UsageSummary(ctx context.Context) (types.UsageSummary, error) {
	var out types.UsageSummary
	if err := c.doJSON(ctx, http.MethodGet, "/api/usage/summary", nil, nil, &out); err != nil {
		return types.UsageSummary{}, err
	}
	return out, nil
}
