package wizard

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/adamavenir/aioffice/internal/kv"
	"github.com/adamavenir/aioffice/internal/types"
)

// Discuss pane split bounds.
const (
	DefaultDiscussRatio = 0.6
	MinDiscussRatio     = 0.3
	MaxDiscussRatio     = 0.8
)

// Participants returns the agents taking part in a draft brainstorm.
func Participants(store *kv.Store) []string {
	return kv.Read[[]string](store, kv.Key(kv.DomainDiscussParticipant, kv.GlobalScope), nil)
}

// SetParticipants stores the participant list, dropping blanks and
// duplicates while keeping order.
func SetParticipants(store *kv.Store, ids []string) []string {
	seen := make(map[string]bool, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	store.Write(kv.Key(kv.DomainDiscussParticipant, kv.GlobalScope), out)
	return out
}

// DiscussRatio returns the persisted brainstorm pane split.
func DiscussRatio(store *kv.Store) float64 {
	return clampDiscuss(kv.Read(store, kv.Key(kv.DomainDiscussRatio, kv.GlobalScope), DefaultDiscussRatio))
}

// SetDiscussRatio clamps and stores the brainstorm pane split.
func SetDiscussRatio(store *kv.Store, r float64) float64 {
	r = clampDiscuss(r)
	store.Write(kv.Key(kv.DomainDiscussRatio, kv.GlobalScope), r)
	return r
}

func clampDiscuss(r float64) float64 {
	if math.IsNaN(r) {
		return DefaultDiscussRatio
	}
	return math.Min(MaxDiscussRatio, math.Max(MinDiscussRatio, r))
}

// HealthState is the outcome of a provider health check.
type HealthState string

const (
	HealthChecking    HealthState = "checking"
	HealthOK          HealthState = "ok"
	HealthUnavailable HealthState = "unavailable"
	HealthError       HealthState = "error"
)

// Health is the health check result for one provider.
type Health struct {
	Provider  types.Backend
	State     HealthState
	Error     string
	CheckedAt time.Time
}

// StatusChecker reports whether a provider is reachable.
type StatusChecker interface {
	ProviderStatus(ctx context.Context, provider types.Backend) (bool, error)
}

// CheckProviders checks every provider concurrently.
func CheckProviders(ctx context.Context, checker StatusChecker) map[types.Backend]Health {
	out := make(map[types.Backend]Health, len(types.Backends))
	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, b := range types.Backends {
		wg.Add(1)
		go func(b types.Backend) {
			defer wg.Done()
			h := Health{Provider: b, CheckedAt: time.Now().UTC()}
			ok, err := checker.ProviderStatus(ctx, b)
			switch {
			case err != nil:
				h.State = HealthError
				h.Error = err.Error()
			case ok:
				h.State = HealthOK
			default:
				h.State = HealthUnavailable
			}
			mu.Lock()
			out[b] = h
			mu.Unlock()
		}(b)
	}
	wg.Wait()
	return out
}

// Healthy reports whether at least one provider answered ok.
func Healthy(health map[types.Backend]Health) bool {
	for _, h := range health {
		if h.State == HealthOK {
			return true
		}
	}
	return false
}
