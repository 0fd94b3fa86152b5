package settings

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/dustin/go-humanize"
	"github.com/oklog/ulid/v2"

	"github.com/adamavenir/aioffice/internal/api"
	"github.com/adamavenir/aioffice/internal/apperr"
	"github.com/adamavenir/aioffice/internal/kv"
	"github.com/adamavenir/aioffice/internal/types"
)

// BillingHint is added to quota-shaped failures.
const BillingHint = "This looks like a quota or billing limit. Check the provider account's plan and credits."

// Failure is a structured provider-test error.
type Failure struct {
	Provider    types.Backend  `json:"provider"`
	Error       string         `json:"error"`
	Code        string         `json:"code,omitempty"`
	Status      int            `json:"status,omitempty"`
	RequestID   string         `json:"request_id,omitempty"`
	Hint        string         `json:"hint,omitempty"`
	BillingHint string         `json:"billing_hint,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
}

// Raw returns the failure as indented JSON for copying.
func (f Failure) Raw() string {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return f.Error
	}
	return string(data)
}

// Outcome is the result of a provider or override test.
type Outcome struct {
	Provider  types.Backend `json:"provider"`
	OK        bool          `json:"ok"`
	LatencyMS int64         `json:"latency_ms"`
	Model     string        `json:"model,omitempty"`
	RequestID string        `json:"request_id"`
	Failure   *Failure      `json:"failure,omitempty"`
}

// clipboardWrite is replaced in tests.
var clipboardWrite = clipboard.WriteAll

// CopyDetails puts the raw failure details on the system clipboard.
func CopyDetails(f Failure) error {
	if err := clipboardWrite(f.Raw()); err != nil {
		return fmt.Errorf("copy details: %w", err)
	}
	return nil
}

func quotaShaped(parts ...string) bool {
	text := strings.ToLower(strings.Join(parts, " "))
	for _, marker := range []string{"quota", "billing", "credit", "insufficient_funds", "payment"} {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func diagKey(b types.Backend) string {
	return kv.Key(kv.DomainProviderDiag, string(b))
}

// Diagnostic returns the cached test outcome of b.
func (e *Engine) Diagnostic(b types.Backend) (types.ProviderDiagnostic, bool) {
	var d types.ProviderDiagnostic
	if !e.store.Decode(diagKey(b), &d) {
		return types.ProviderDiagnostic{}, false
	}
	return d, true
}

// DiagnosticAge describes when b was last tested, for example "3 minutes ago".
func (e *Engine) DiagnosticAge(b types.Backend) string {
	d, ok := e.Diagnostic(b)
	if !ok || d.LastTestAt.IsZero() {
		return "never tested"
	}
	return humanize.RelTime(d.LastTestAt, e.now(), "ago", "from now")
}

// TestProvider checks b with the draft key when one is typed, otherwise
// with the stored credentials. The diagnostics cache is updated with the
// server's latency or, when it omits one, the measured wall-clock time.
func (e *Engine) TestProvider(ctx context.Context, b types.Backend) (Outcome, error) {
	if !knownBackend(b) {
		return Outcome{}, apperr.Validation("settings.test_provider", fmt.Sprintf("unknown provider %q", b))
	}
	d := e.Draft(b)
	req := api.ProviderTest{
		Provider: b,
		APIKey:   strings.TrimSpace(d.APIKey),
		Model:    strings.TrimSpace(d.DefaultModel),
		BaseURL:  strings.TrimSpace(d.BaseURL),
	}
	start := e.now()
	res, err := e.remote.TestProvider(ctx, req)
	return e.outcome(b, start, res, err, true)
}

func (e *Engine) outcome(b types.Backend, start time.Time, res types.ProviderTestResult, err error, record bool) (Outcome, error) {
	if apperr.IsCancelled(err) {
		return Outcome{}, err
	}
	finished := e.now()
	latency := finished.Sub(start).Milliseconds()
	if res.LatencyMS != nil {
		latency = *res.LatencyMS
	}
	out := Outcome{Provider: b, LatencyMS: latency, Model: res.Model, RequestID: res.RequestID}
	if out.RequestID == "" {
		out.RequestID = "local-" + ulid.Make().String()
	}

	diag := types.ProviderDiagnostic{LastTestAt: finished.UTC(), LatencyMS: latency, Details: res.Details}
	switch {
	case err != nil:
		f := &Failure{Provider: b, Error: apperr.UserMessage(err), RequestID: out.RequestID}
		var ae *apperr.Error
		if errors.As(err, &ae) {
			f.Status = ae.Status
		}
		if quotaShaped(f.Error) || f.Status == 402 {
			f.BillingHint = BillingHint
		}
		out.Failure = f
		diag.Status = f.Status
		diag.ErrorSummary = f.Error
	case !res.OK:
		f := &Failure{
			Provider:  b,
			Error:     res.Error,
			Code:      res.Code,
			Status:    res.Status,
			RequestID: out.RequestID,
			Hint:      res.Hint,
			Details:   res.Details,
		}
		if f.Error == "" {
			f.Error = "provider test failed"
		}
		if quotaShaped(res.Code, res.Error, res.Hint) || res.Status == 402 {
			f.BillingHint = BillingHint
		}
		out.Failure = f
		diag.Status = res.Status
		diag.ErrorSummary = f.Error
	default:
		out.OK = true
		diag.OK = true
		diag.Status = res.Status
	}

	if record {
		e.store.Write(diagKey(b), diag)
		e.mu.Lock()
		if p, ok := e.providers[b]; ok {
			at := diag.LastTestAt
			p.LastTestedAt = &at
			p.LastError = diag.ErrorSummary
			e.providers[b] = p
		}
		e.mu.Unlock()
	}
	if !out.OK {
		e.log.Info("provider test failed", "provider", b, "status", diag.Status, "err", diag.ErrorSummary)
	}
	return out, nil
}
